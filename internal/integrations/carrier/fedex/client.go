package fedex

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BearBump/ColisTrack/internal/integrations/carrier"
	"github.com/BearBump/ColisTrack/internal/models"
	"github.com/pkg/errors"
)

const DefaultBaseURL = "https://apis-sandbox.fedex.com"

type TokenProvider interface {
	Token(ctx context.Context) (string, error)
}

type Client struct {
	baseURL  string
	tokens   TokenProvider
	httpc    *http.Client
	proofDir string
	now      func() time.Time
}

func New(baseURL string, tokens TokenProvider) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		tokens:  tokens,
		httpc: &http.Client{
			Timeout: 10 * time.Second,
		},
		now: time.Now,
	}
}

// WithProofDir enables the on-disk cache of proof-of-delivery documents.
func (c *Client) WithProofDir(dir string) *Client {
	c.proofDir = dir
	return c
}

func (c *Client) WithTimeout(d time.Duration) *Client {
	if d > 0 {
		c.httpc.Timeout = d
	}
	return c
}

// Track queries the FedEx tracking endpoint for one number and normalizes the answer.
func (c *Client) Track(ctx context.Context, trackingNumber string) models.TrackingResult {
	started := c.now()

	var res models.TrackingResult
	info, err := c.track(ctx, trackingNumber)
	if err != nil {
		res = models.FailedTracking(trackingNumber, err.Error(), c.now())
		slog.Error("fedex track", "tracking_number", trackingNumber, "error", err.Error())
		return res
	}

	return models.TrackingResult{
		Success: true,
		Data:    info,
		Metadata: map[string]any{
			"timestamp":       c.now().UTC().Format(time.RFC3339),
			"tracking_number": trackingNumber,
			"response_time":   c.now().Sub(started).Seconds(),
		},
	}
}

// trackError carries a message that is already in its user-facing form.
type trackError struct{ msg string }

func (e *trackError) Error() string { return e.msg }

func failf(format string, args ...any) error {
	return &trackError{msg: fmt.Sprintf(format, args...)}
}

func (c *Client) track(ctx context.Context, trackingNumber string) (*models.TrackingInfo, error) {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, failf("FedEx authentication failed: %v", err)
	}

	var body trackRequest
	item := trackingInfoItem{}
	item.TrackingNumberInfo.TrackingNumber = trackingNumber
	body.TrackingInfo = []trackingInfoItem{item}
	body.IncludeDetailedScans = true

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, failf("Error tracking package: %v", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/track/v1/trackingnumbers", bytes.NewReader(payload))
	if err != nil {
		return nil, failf("Error tracking package: %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-locale", "en_US")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, failf("HTTP request error while tracking package: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, failf("FedEx API returned an error: http %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var tr trackResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return nil, failf("Error tracking package: %v", errors.Wrap(err, "decode"))
	}

	complete := tr.Output.CompleteTrackResults
	if len(complete) == 0 || len(complete[0].TrackResults) == 0 {
		return nil, failf("No tracking results found")
	}

	first := &complete[0].TrackResults[0]
	if first.Error != nil && first.Error.Code != "" {
		return nil, failf("FedEx API returned an error: %s: %s", first.Error.Code, first.Error.Message)
	}

	info := normalize(first)
	if info.TrackingNumber == "" {
		info.TrackingNumber = trackingNumber
		info.TrackingURL = trackingURLPrefix + trackingNumber
	}
	return &info, nil
}

// ProofOfDelivery returns the signed proof PDF, cached on disk when a proof dir is set.
func (c *Client) ProofOfDelivery(ctx context.Context, trackingNumber string) ([]byte, error) {
	if !safeFileName(trackingNumber) {
		return nil, errors.Errorf("invalid tracking number %q", trackingNumber)
	}

	var path string
	if c.proofDir != "" {
		path = filepath.Join(c.proofDir, trackingNumber+".pdf")
		if b, err := os.ReadFile(path); err == nil {
			return b, nil
		}
	}

	token, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, err
	}

	url := fmt.Sprintf("%s/track/v1/shipments/%s/proof-of-delivery", c.baseURL, trackingNumber)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errors.Wrap(err, "new request")
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/pdf")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "do request")
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, carrier.ErrProofNotFound
	}
	if resp.StatusCode/100 != 2 {
		return nil, fmt.Errorf("fedex proof of delivery http %d", resp.StatusCode)
	}

	pdf, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "read proof")
	}

	if path != "" {
		if err := os.MkdirAll(c.proofDir, 0o755); err != nil {
			slog.Warn("proof cache dir", "error", err.Error())
		} else if err := os.WriteFile(path, pdf, 0o644); err != nil {
			slog.Warn("proof cache write", "path", path, "error", err.Error())
		}
	}
	return pdf, nil
}

func safeFileName(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !(r >= '0' && r <= '9' || r >= 'A' && r <= 'Z' || r >= 'a' && r <= 'z' || r == '-' || r == '_') {
			return false
		}
	}
	return true
}
