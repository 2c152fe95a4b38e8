package barcode

import (
	"image/png"
	"log/slog"
	"os"
	"path/filepath"

	bc "github.com/boombuler/barcode"
	"github.com/boombuler/barcode/code128"
	"github.com/pkg/errors"
)

const (
	imageWidth  = 400
	imageHeight = 120
)

// ImageStore writes Code 128 PNG images named after the encoded value.
type ImageStore struct {
	dir string
}

func NewImageStore(dir string) *ImageStore {
	if dir == "" {
		dir = filepath.Join("static", "barcodes")
	}
	return &ImageStore{dir: dir}
}

func (s *ImageStore) Path(value string) string {
	return filepath.Join(s.dir, value+".png")
}

// Write renders value and stores it, returning the file path.
func (s *ImageStore) Write(value string) (string, error) {
	code, err := code128.Encode(value)
	if err != nil {
		return "", errors.Wrap(err, "encode code128")
	}
	scaled, err := bc.Scale(code, imageWidth, imageHeight)
	if err != nil {
		return "", errors.Wrap(err, "scale barcode")
	}

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", errors.Wrap(err, "mkdir barcode dir")
	}
	path := s.Path(value)
	f, err := os.Create(path)
	if err != nil {
		return "", errors.Wrap(err, "create barcode file")
	}
	defer f.Close()

	if err := png.Encode(f, scaled); err != nil {
		return "", errors.Wrap(err, "encode png")
	}
	return path, nil
}

// Read returns the stored PNG for value.
func (s *ImageStore) Read(value string) ([]byte, error) {
	b, err := os.ReadFile(s.Path(value))
	if err != nil {
		return nil, errors.Wrap(err, "read barcode")
	}
	return b, nil
}

// Remove deletes the image. A missing file is not an error.
func (s *ImageStore) Remove(value string) error {
	err := os.Remove(s.Path(value))
	if err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, "remove barcode")
	}
	if err == nil {
		slog.Debug("barcode image removed", "value", value)
	}
	return nil
}
