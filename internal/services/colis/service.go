package colis

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/BearBump/ColisTrack/internal/models"
	"github.com/BearBump/ColisTrack/internal/storage/pgstore"
	"github.com/pkg/errors"
)

var (
	ErrNotFound     = errors.New("colis not found")
	ErrConflict     = errors.New("colis identifier already in use")
	ErrInvalidInput = errors.New("invalid colis input")
)

const (
	maxCreateAttempts = 5
	maxIDLength       = 64
)

// lookup order when an identifier could match several columns
var resolveOrder = []pgstore.IdentifierColumn{
	pgstore.ColumnID,
	pgstore.ColumnReference,
	pgstore.ColumnTCN,
	pgstore.ColumnBarcode,
}

type Repository interface {
	CreateColis(ctx context.Context, c *models.Colis) error
	GetColisBy(ctx context.Context, column pgstore.IdentifierColumn, value string) (*models.Colis, error)
	UpdateColis(ctx context.Context, id string, upd models.ColisUpdate) (*models.Colis, error)
	DeleteColis(ctx context.Context, id string) (*models.Colis, error)
	SearchColis(ctx context.Context, f models.ColisFilter) ([]*models.Colis, int64, error)
	ColisStats(ctx context.Context) (models.ColisStats, error)
}

type IdentifierSource interface {
	ID() string
	Reference() string
	TCN() string
	Barcode() string
}

type ImageStore interface {
	Write(value string) (string, error)
	Read(value string) ([]byte, error)
	Remove(value string) error
}

type CreateInput struct {
	ID          string
	Description string
	Meta        map[string]any
}

type Service struct {
	repo   Repository
	ids    IdentifierSource
	images ImageStore
	now    func() time.Time
}

func New(repo Repository, ids IdentifierSource, images ImageStore) *Service {
	return &Service{repo: repo, ids: ids, images: images, now: time.Now}
}

// Resolve finds the colis identified by identifier, trying id, reference, tcn
// and barcode in that order. The first column that matches wins.
func (s *Service) Resolve(ctx context.Context, identifier string) (*models.Colis, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return nil, errors.Wrap(ErrInvalidInput, "identifier is required")
	}
	for _, col := range resolveOrder {
		c, err := s.repo.GetColisBy(ctx, col, identifier)
		if err != nil {
			return nil, err
		}
		if c != nil {
			return c, nil
		}
	}
	return nil, errors.Wrapf(ErrNotFound, "identifier %q", identifier)
}

// Create stores a new colis with freshly generated reference, tcn and barcode.
// Generated values that collide are drawn again; a caller supplied id that
// collides fails with ErrConflict.
func (s *Service) Create(ctx context.Context, in CreateInput) (*models.Colis, error) {
	customID := strings.TrimSpace(in.ID)
	if len(customID) > maxIDLength {
		return nil, errors.Wrapf(ErrInvalidInput, "id longer than %d characters", maxIDLength)
	}

	for attempt := 1; attempt <= maxCreateAttempts; attempt++ {
		id := customID
		if id == "" {
			id = s.ids.ID()
		}
		now := s.now().UTC()
		c := &models.Colis{
			ID:          id,
			Reference:   s.ids.Reference(),
			TCN:         s.ids.TCN(),
			Barcode:     s.ids.Barcode(),
			Description: in.Description,
			Status:      models.ColisStatusPending,
			Meta:        in.Meta,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if c.Meta == nil {
			c.Meta = map[string]any{}
		}

		err := s.repo.CreateColis(ctx, c)
		var conflict *pgstore.IdentifierConflictError
		if errors.As(err, &conflict) {
			if customID != "" && conflict.Value == customID {
				return nil, errors.Wrapf(ErrConflict, "identifier %q", customID)
			}
			slog.Warn("generated colis identifier collided, retrying", "value", conflict.Value, "attempt", attempt)
			continue
		}
		if err != nil {
			return nil, errors.Wrap(err, "create colis")
		}

		s.writeImage(c.Barcode)
		slog.Info("colis created", "id", c.ID, "reference", c.Reference, "tcn", c.TCN)
		return c, nil
	}
	return nil, errors.Wrapf(ErrConflict, "no free identifiers after %d attempts", maxCreateAttempts)
}

// ResolveOrCreate returns the colis matching identifier, creating one with
// identifier as its id when none exists.
func (s *Service) ResolveOrCreate(ctx context.Context, identifier, description string) (*models.Colis, bool, error) {
	c, err := s.Resolve(ctx, identifier)
	if err == nil {
		return c, false, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, false, err
	}

	c, err = s.Create(ctx, CreateInput{ID: strings.TrimSpace(identifier), Description: description})
	if errors.Is(err, ErrConflict) {
		// lost a race against a concurrent create of the same id
		c, rerr := s.Resolve(ctx, identifier)
		if rerr == nil {
			return c, false, nil
		}
	}
	if err != nil {
		return nil, false, err
	}
	return c, true, nil
}

func (s *Service) Update(ctx context.Context, id string, upd models.ColisUpdate) (*models.Colis, error) {
	if upd.Status != nil && strings.TrimSpace(*upd.Status) == "" {
		return nil, errors.Wrap(ErrInvalidInput, "status must not be empty")
	}
	c, err := s.repo.UpdateColis(ctx, id, upd)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, errors.Wrapf(ErrNotFound, "id %q", id)
	}
	return c, nil
}

// Delete removes the colis and its barcode image.
func (s *Service) Delete(ctx context.Context, id string) error {
	c, err := s.repo.DeleteColis(ctx, id)
	if err != nil {
		return err
	}
	if c == nil {
		return errors.Wrapf(ErrNotFound, "id %q", id)
	}
	if s.images != nil {
		if err := s.images.Remove(c.Barcode); err != nil {
			slog.Warn("barcode image removal failed", "id", id, "err", err)
		}
	}
	slog.Info("colis deleted", "id", id)
	return nil
}

func (s *Service) Search(ctx context.Context, f models.ColisFilter) ([]*models.Colis, int64, error) {
	return s.repo.SearchColis(ctx, f)
}

func (s *Service) Stats(ctx context.Context) (models.ColisStats, error) {
	st, err := s.repo.ColisStats(ctx)
	if err != nil {
		return st, err
	}
	if st.StatusDistribution == nil {
		st.StatusDistribution = map[string]int64{}
	}
	if st.LocationDistribution == nil {
		st.LocationDistribution = map[string]int64{}
	}
	return st, nil
}

// RegenerateBarcode renders the barcode image of colis id again.
func (s *Service) RegenerateBarcode(ctx context.Context, id string) (string, error) {
	c, err := s.repo.GetColisBy(ctx, pgstore.ColumnID, id)
	if err != nil {
		return "", err
	}
	if c == nil {
		return "", errors.Wrapf(ErrNotFound, "id %q", id)
	}
	if s.images == nil {
		return "", errors.New("barcode images are disabled")
	}
	return s.images.Write(c.Barcode)
}

// BarcodeImage returns the PNG of the colis barcode, rendering it when missing.
func (s *Service) BarcodeImage(ctx context.Context, id string) ([]byte, error) {
	c, err := s.repo.GetColisBy(ctx, pgstore.ColumnID, id)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, errors.Wrapf(ErrNotFound, "id %q", id)
	}
	if s.images == nil {
		return nil, errors.New("barcode images are disabled")
	}
	if b, err := s.images.Read(c.Barcode); err == nil {
		return b, nil
	}
	if _, err := s.images.Write(c.Barcode); err != nil {
		return nil, err
	}
	return s.images.Read(c.Barcode)
}

func (s *Service) writeImage(value string) {
	if s.images == nil {
		return
	}
	if _, err := s.images.Write(value); err != nil {
		slog.Warn("barcode image generation failed", "value", value, "err", err)
	}
}
