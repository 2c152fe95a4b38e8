package pgstore

import (
	"context"
	"time"

	"github.com/BearBump/ColisTrack/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
)

const historyColumns = `id, user_id, tracking_number, status, meta_data, note, pinned, created_at`

func scanHistory(row scanner) (*models.HistoryEntry, error) {
	var h models.HistoryEntry
	var meta []byte
	if err := row.Scan(&h.ID, &h.UserID, &h.TrackingNumber, &h.Status, &meta, &h.Note, &h.Pinned, &h.CreatedAt); err != nil {
		return nil, err
	}
	h.Meta = decodeMap(meta)
	return &h, nil
}

func (s *Storage) InsertHistory(ctx context.Context, h *models.HistoryEntry) error {
	_, err := s.db.Exec(ctx, `
INSERT INTO tracking_history (`+historyColumns+`)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
`, h.ID, h.UserID, h.TrackingNumber, h.Status, encodeMap(h.Meta), h.Note, h.Pinned, h.CreatedAt.UTC())
	return errors.Wrap(err, "insert history")
}

// ListHistory returns the user's entries newest first and the user's total count.
func (s *Storage) ListHistory(ctx context.Context, userID int64, page, pageSize int) ([]*models.HistoryEntry, int64, error) {
	var total int64
	if err := s.db.QueryRow(ctx, `SELECT count(*) FROM tracking_history WHERE user_id = $1`, userID).Scan(&total); err != nil {
		return nil, 0, errors.Wrap(err, "count history")
	}

	limit, offset := pageBounds(page, pageSize)
	rows, err := s.db.Query(ctx, `
SELECT `+historyColumns+`
FROM tracking_history
WHERE user_id = $1
ORDER BY created_at DESC, id
LIMIT $2 OFFSET $3
`, userID, limit, offset)
	if err != nil {
		return nil, 0, errors.Wrap(err, "select history")
	}
	defer rows.Close()

	out, err := collectHistory(rows)
	if err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

// ListAllHistory returns every entry of the user, newest first.
func (s *Storage) ListAllHistory(ctx context.Context, userID int64) ([]*models.HistoryEntry, error) {
	rows, err := s.db.Query(ctx, `
SELECT `+historyColumns+`
FROM tracking_history
WHERE user_id = $1
ORDER BY created_at DESC, id
`, userID)
	if err != nil {
		return nil, errors.Wrap(err, "select history")
	}
	defer rows.Close()
	return collectHistory(rows)
}

func collectHistory(rows pgx.Rows) ([]*models.HistoryEntry, error) {
	out := []*models.HistoryEntry{}
	for rows.Next() {
		h, err := scanHistory(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan history")
		}
		out = append(out, h)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}
	return out, nil
}

// GetHistory returns nil when the entry does not exist or belongs to another user.
func (s *Storage) GetHistory(ctx context.Context, userID int64, id string) (*models.HistoryEntry, error) {
	row := s.db.QueryRow(ctx, `SELECT `+historyColumns+` FROM tracking_history WHERE id = $1 AND user_id = $2`, id, userID)
	h, err := scanHistory(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "select history entry")
	}
	return h, nil
}

func (s *Storage) UpdateHistory(ctx context.Context, userID int64, id string, upd models.HistoryUpdate) (*models.HistoryEntry, error) {
	row := s.db.QueryRow(ctx, `
UPDATE tracking_history SET
  note = COALESCE($3, note),
  pinned = COALESCE($4, pinned)
WHERE id = $1 AND user_id = $2
RETURNING `+historyColumns, id, userID, upd.Note, upd.Pinned)
	h, err := scanHistory(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "update history")
	}
	return h, nil
}

func (s *Storage) DeleteHistory(ctx context.Context, userID int64, id string) (bool, error) {
	tag, err := s.db.Exec(ctx, `DELETE FROM tracking_history WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return false, errors.Wrap(err, "delete history")
	}
	return tag.RowsAffected() > 0, nil
}

// DeleteManyHistory deletes the listed entries owned by userID; ids of other users are ignored.
func (s *Storage) DeleteManyHistory(ctx context.Context, userID int64, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	tag, err := s.db.Exec(ctx, `DELETE FROM tracking_history WHERE user_id = $1 AND id = ANY($2::text[])`, userID, ids)
	if err != nil {
		return 0, errors.Wrap(err, "delete history batch")
	}
	return tag.RowsAffected(), nil
}

func (s *Storage) DeleteHistoryOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.db.Exec(ctx, `DELETE FROM tracking_history WHERE created_at < $1`, cutoff.UTC())
	if err != nil {
		return 0, errors.Wrap(err, "purge history")
	}
	return tag.RowsAffected(), nil
}
