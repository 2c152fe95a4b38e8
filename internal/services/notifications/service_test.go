package notifications

import (
	"context"
	"testing"
	"time"

	"github.com/BearBump/ColisTrack/internal/models"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockRepo struct {
	mock.Mock
}

func (m *mockRepo) InsertNotification(ctx context.Context, n *models.Notification) error {
	return m.Called(ctx, n).Error(0)
}

func (m *mockRepo) ListNotifications(ctx context.Context, f models.NotificationFilter) ([]*models.Notification, error) {
	args := m.Called(ctx, f)
	out, _ := args.Get(0).([]*models.Notification)
	return out, args.Error(1)
}

func (m *mockRepo) MarkNotificationRead(ctx context.Context, id string, at time.Time) (*models.Notification, error) {
	args := m.Called(ctx, id, at)
	n, _ := args.Get(0).(*models.Notification)
	return n, args.Error(1)
}

func (m *mockRepo) MarkAllNotificationsRead(ctx context.Context, at time.Time) (int64, error) {
	args := m.Called(ctx, at)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockRepo) DeleteNotificationsOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	args := m.Called(ctx, cutoff)
	return args.Get(0).(int64), args.Error(1)
}

func TestCreate_FillsDefaults(t *testing.T) {
	repo := &mockRepo{}
	s := New(repo)
	now := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	repo.On("InsertNotification", mock.Anything, mock.MatchedBy(func(n *models.Notification) bool {
		return n.ID != "" && !n.IsRead && n.Priority == models.PriorityMedium && n.CreatedAt.Equal(now)
	})).Return(nil).Once()

	n, err := s.Create(context.Background(), models.Notification{
		Type: models.NotificationTrackingUpdate, Title: "t", Message: "m", IsRead: true,
	})
	require.NoError(t, err)
	require.False(t, n.IsRead)
	require.NotNil(t, n.Meta)
	repo.AssertExpectations(t)
}

func TestCreate_Validation(t *testing.T) {
	repo := &mockRepo{}
	s := New(repo)

	_, err := s.Create(context.Background(), models.Notification{Type: "spam", Title: "t", Message: "m"})
	require.ErrorIs(t, err, ErrInvalidInput)

	_, err = s.Create(context.Background(), models.Notification{Type: models.NotificationCustom, Priority: "critical", Title: "t", Message: "m"})
	require.ErrorIs(t, err, ErrInvalidInput)

	_, err = s.Create(context.Background(), models.Notification{Type: models.NotificationCustom})
	require.ErrorIs(t, err, ErrInvalidInput)

	repo.AssertNotCalled(t, "InsertNotification", mock.Anything, mock.Anything)
}

func TestList_ClampsLimit(t *testing.T) {
	repo := &mockRepo{}
	s := New(repo)

	repo.On("ListNotifications", mock.Anything, models.NotificationFilter{Skip: 0, Limit: 100, UnreadOnly: true}).
		Return([]*models.Notification{{ID: "a"}}, nil).Once()

	out, err := s.List(context.Background(), models.NotificationFilter{Skip: -3, Limit: 5000, UnreadOnly: true})
	require.NoError(t, err)
	require.Len(t, out, 1)

	_, err = s.List(context.Background(), models.NotificationFilter{Type: "nope"})
	require.ErrorIs(t, err, ErrInvalidInput)
	repo.AssertExpectations(t)
}

func TestMarkRead(t *testing.T) {
	repo := &mockRepo{}
	s := New(repo)

	repo.On("MarkNotificationRead", mock.Anything, "missing", mock.Anything).Return(nil, nil).Once()
	_, err := s.MarkRead(context.Background(), "missing")
	require.ErrorIs(t, err, ErrNotFound)

	repo.On("MarkAllNotificationsRead", mock.Anything, mock.Anything).Return(int64(4), nil).Once()
	n, err := s.MarkAllRead(context.Background())
	require.NoError(t, err)
	require.EqualValues(t, 4, n)
}

func TestDeleteOlderThan(t *testing.T) {
	repo := &mockRepo{}
	s := New(repo)
	now := time.Date(2024, 5, 31, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	repo.On("DeleteNotificationsOlderThan", mock.Anything, now.AddDate(0, 0, -30)).Return(int64(2), nil).Once()
	n, err := s.DeleteOlderThan(context.Background(), 30)
	require.NoError(t, err)
	require.EqualValues(t, 2, n)
	repo.AssertExpectations(t)
}
