package pgstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/BearBump/ColisTrack/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
)

const notificationColumns = `id, type, priority, title, message, tracking_number, is_read, read_at, meta_data, created_at`

func scanNotification(row scanner) (*models.Notification, error) {
	var n models.Notification
	var meta []byte
	if err := row.Scan(
		&n.ID, &n.Type, &n.Priority, &n.Title, &n.Message, &n.TrackingNumber,
		&n.IsRead, &n.ReadAt, &meta, &n.CreatedAt,
	); err != nil {
		return nil, err
	}
	n.Meta = decodeMap(meta)
	return &n, nil
}

func (s *Storage) InsertNotification(ctx context.Context, n *models.Notification) error {
	_, err := s.db.Exec(ctx, `
INSERT INTO notifications (`+notificationColumns+`)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
`, n.ID, string(n.Type), string(n.Priority), n.Title, n.Message, n.TrackingNumber,
		n.IsRead, n.ReadAt, encodeMap(n.Meta), n.CreatedAt.UTC())
	return errors.Wrap(err, "insert notification")
}

func (s *Storage) ListNotifications(ctx context.Context, f models.NotificationFilter) ([]*models.Notification, error) {
	var where []string
	var args []any
	if f.UnreadOnly {
		where = append(where, "is_read = FALSE")
	}
	if f.Type != "" {
		args = append(args, string(f.Type))
		where = append(where, fmt.Sprintf("type = $%d", len(args)))
	}
	cond := ""
	if len(where) > 0 {
		cond = " WHERE " + strings.Join(where, " AND ")
	}

	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}
	skip := f.Skip
	if skip < 0 {
		skip = 0
	}
	args = append(args, limit, skip)

	rows, err := s.db.Query(ctx, fmt.Sprintf(`SELECT %s FROM notifications%s ORDER BY created_at DESC, id LIMIT $%d OFFSET $%d`,
		notificationColumns, cond, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, errors.Wrap(err, "select notifications")
	}
	defer rows.Close()

	out := []*models.Notification{}
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan notification")
		}
		out = append(out, n)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}
	return out, nil
}

// MarkNotificationRead returns nil when id is unknown. read_at keeps its first value.
func (s *Storage) MarkNotificationRead(ctx context.Context, id string, at time.Time) (*models.Notification, error) {
	row := s.db.QueryRow(ctx, `
UPDATE notifications SET
  is_read = TRUE,
  read_at = COALESCE(read_at, $2)
WHERE id = $1
RETURNING `+notificationColumns, id, at.UTC())
	n, err := scanNotification(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "mark notification read")
	}
	return n, nil
}

func (s *Storage) MarkAllNotificationsRead(ctx context.Context, at time.Time) (int64, error) {
	tag, err := s.db.Exec(ctx, `UPDATE notifications SET is_read = TRUE, read_at = $1 WHERE is_read = FALSE`, at.UTC())
	if err != nil {
		return 0, errors.Wrap(err, "mark all notifications read")
	}
	return tag.RowsAffected(), nil
}

func (s *Storage) DeleteNotificationsOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.db.Exec(ctx, `DELETE FROM notifications WHERE created_at < $1`, cutoff.UTC())
	if err != nil {
		return 0, errors.Wrap(err, "purge notifications")
	}
	return tag.RowsAffected(), nil
}
