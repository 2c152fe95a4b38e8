package history

import (
	"context"
	"log/slog"
	"time"

	"github.com/BearBump/ColisTrack/internal/models"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

var (
	ErrNotFound          = errors.New("history entry not found")
	ErrInvalidInput      = errors.New("invalid history input")
	ErrUnsupportedFormat = errors.New("unsupported export format")
)

type Repository interface {
	InsertHistory(ctx context.Context, h *models.HistoryEntry) error
	ListHistory(ctx context.Context, userID int64, page, pageSize int) ([]*models.HistoryEntry, int64, error)
	ListAllHistory(ctx context.Context, userID int64) ([]*models.HistoryEntry, error)
	GetHistory(ctx context.Context, userID int64, id string) (*models.HistoryEntry, error)
	UpdateHistory(ctx context.Context, userID int64, id string, upd models.HistoryUpdate) (*models.HistoryEntry, error)
	DeleteHistory(ctx context.Context, userID int64, id string) (bool, error)
	DeleteManyHistory(ctx context.Context, userID int64, ids []string) (int64, error)
	DeleteHistoryOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

type Service struct {
	repo Repository
	now  func() time.Time
}

func New(repo Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

// LogSearch records a lookup made by userID. It returns nil when the entry
// could not be stored; the failure is logged, not returned.
func (s *Service) LogSearch(ctx context.Context, userID int64, trackingNumber string, status *string, meta map[string]any) *models.HistoryEntry {
	if meta == nil {
		meta = map[string]any{}
	}
	h := &models.HistoryEntry{
		ID:             uuid.NewString(),
		UserID:         userID,
		TrackingNumber: trackingNumber,
		Status:         status,
		Meta:           meta,
		CreatedAt:      s.now().UTC(),
	}
	if err := s.repo.InsertHistory(ctx, h); err != nil {
		slog.Error("log tracking search", "user_id", userID, "tracking_number", trackingNumber, "error", err.Error())
		return nil
	}
	return h
}

func (s *Service) List(ctx context.Context, userID int64, page, pageSize int) ([]*models.HistoryEntry, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 10
	}
	return s.repo.ListHistory(ctx, userID, page, pageSize)
}

func (s *Service) Get(ctx context.Context, userID int64, id string) (*models.HistoryEntry, error) {
	h, err := s.repo.GetHistory(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if h == nil {
		return nil, errors.Wrapf(ErrNotFound, "id %q", id)
	}
	return h, nil
}

func (s *Service) Update(ctx context.Context, userID int64, id string, upd models.HistoryUpdate) (*models.HistoryEntry, error) {
	if upd.Note == nil && upd.Pinned == nil {
		return nil, errors.Wrap(ErrInvalidInput, "nothing to update")
	}
	h, err := s.repo.UpdateHistory(ctx, userID, id, upd)
	if err != nil {
		return nil, err
	}
	if h == nil {
		return nil, errors.Wrapf(ErrNotFound, "id %q", id)
	}
	return h, nil
}

func (s *Service) Delete(ctx context.Context, userID int64, id string) error {
	ok, err := s.repo.DeleteHistory(ctx, userID, id)
	if err != nil {
		return err
	}
	if !ok {
		return errors.Wrapf(ErrNotFound, "id %q", id)
	}
	return nil
}

// DeleteMany removes the listed entries that belong to userID and reports how many went.
func (s *Service) DeleteMany(ctx context.Context, userID int64, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, errors.Wrap(ErrInvalidInput, "ids is empty")
	}
	return s.repo.DeleteManyHistory(ctx, userID, ids)
}

// DeleteOlderThan removes entries created strictly before now minus days.
func (s *Service) DeleteOlderThan(ctx context.Context, days int) (int64, error) {
	if days < 0 {
		return 0, errors.Wrap(ErrInvalidInput, "days must not be negative")
	}
	cutoff := s.now().UTC().AddDate(0, 0, -days)
	n, err := s.repo.DeleteHistoryOlderThan(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	slog.Info("history purged", "days", days, "deleted", n)
	return n, nil
}
