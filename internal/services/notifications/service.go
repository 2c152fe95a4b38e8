package notifications

import (
	"context"
	"time"

	"github.com/BearBump/ColisTrack/internal/models"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

var (
	ErrNotFound     = errors.New("notification not found")
	ErrInvalidInput = errors.New("invalid notification input")
)

const maxListLimit = 100

type Repository interface {
	InsertNotification(ctx context.Context, n *models.Notification) error
	ListNotifications(ctx context.Context, f models.NotificationFilter) ([]*models.Notification, error)
	MarkNotificationRead(ctx context.Context, id string, at time.Time) (*models.Notification, error)
	MarkAllNotificationsRead(ctx context.Context, at time.Time) (int64, error)
	DeleteNotificationsOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

type Service struct {
	repo Repository
	now  func() time.Time
}

func New(repo Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

func ValidType(t models.NotificationType) bool {
	switch t {
	case models.NotificationTrackingUpdate, models.NotificationDeliveryStatus,
		models.NotificationSystemAlert, models.NotificationCustom:
		return true
	}
	return false
}

func ValidPriority(p models.NotificationPriority) bool {
	switch p {
	case models.PriorityLow, models.PriorityMedium, models.PriorityHigh, models.PriorityUrgent:
		return true
	}
	return false
}

// Create stores n as a new unread notification. Priority defaults to medium.
func (s *Service) Create(ctx context.Context, n models.Notification) (*models.Notification, error) {
	if n.Priority == "" {
		n.Priority = models.PriorityMedium
	}
	if !ValidType(n.Type) {
		return nil, errors.Wrapf(ErrInvalidInput, "type %q", n.Type)
	}
	if !ValidPriority(n.Priority) {
		return nil, errors.Wrapf(ErrInvalidInput, "priority %q", n.Priority)
	}
	if n.Title == "" || n.Message == "" {
		return nil, errors.Wrap(ErrInvalidInput, "title and message are required")
	}

	n.ID = uuid.NewString()
	n.IsRead = false
	n.ReadAt = nil
	n.CreatedAt = s.now().UTC()
	if n.Meta == nil {
		n.Meta = map[string]any{}
	}
	if err := s.repo.InsertNotification(ctx, &n); err != nil {
		return nil, err
	}
	return &n, nil
}

func (s *Service) List(ctx context.Context, f models.NotificationFilter) ([]*models.Notification, error) {
	if f.Type != "" && !ValidType(f.Type) {
		return nil, errors.Wrapf(ErrInvalidInput, "type %q", f.Type)
	}
	if f.Skip < 0 {
		f.Skip = 0
	}
	if f.Limit <= 0 || f.Limit > maxListLimit {
		f.Limit = maxListLimit
	}
	return s.repo.ListNotifications(ctx, f)
}

func (s *Service) MarkRead(ctx context.Context, id string) (*models.Notification, error) {
	n, err := s.repo.MarkNotificationRead(ctx, id, s.now().UTC())
	if err != nil {
		return nil, err
	}
	if n == nil {
		return nil, errors.Wrapf(ErrNotFound, "id %q", id)
	}
	return n, nil
}

func (s *Service) MarkAllRead(ctx context.Context) (int64, error) {
	return s.repo.MarkAllNotificationsRead(ctx, s.now().UTC())
}

func (s *Service) DeleteOlderThan(ctx context.Context, days int) (int64, error) {
	if days < 0 {
		return 0, errors.Wrap(ErrInvalidInput, "days must not be negative")
	}
	return s.repo.DeleteNotificationsOlderThan(ctx, s.now().UTC().AddDate(0, 0, -days))
}
