package pgstore

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/BearBump/ColisTrack/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
)

const trackingColumns = `id, tracking_number, carrier, status, service_type, colis_id, meta_data, snapshot,
  last_checked_at, next_check_at, check_fail_count, last_error, created_at, updated_at`

// sortable columns exposed to search
var trackingSortColumns = map[string]string{
	"created_at":      "created_at",
	"updated_at":      "updated_at",
	"tracking_number": "tracking_number",
	"status":          "status",
	"carrier":         "carrier",
	"service_type":    "service_type",
}

func scanTracking(row scanner) (*models.TrackingRecord, error) {
	var t models.TrackingRecord
	var meta, snapshot []byte
	if err := row.Scan(
		&t.ID, &t.TrackingNumber, &t.Carrier, &t.Status, &t.ServiceType, &t.ColisID, &meta, &snapshot,
		&t.LastCheckedAt, &t.NextCheckAt, &t.CheckFailCount, &t.LastError, &t.CreatedAt, &t.UpdatedAt,
	); err != nil {
		return nil, err
	}
	t.Meta = decodeMap(meta)
	if len(snapshot) > 0 {
		var info models.TrackingInfo
		if json.Unmarshal(snapshot, &info) == nil {
			t.Snapshot = &info
		}
	}
	return &t, nil
}

func (s *Storage) GetTrackingByNumber(ctx context.Context, trackingNumber string) (*models.TrackingRecord, error) {
	row := s.db.QueryRow(ctx, `SELECT `+trackingColumns+` FROM trackings WHERE tracking_number = $1`, trackingNumber)
	t, err := scanTracking(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "select tracking")
	}
	return t, nil
}

// SearchTrackings filters conjunctively; total counts every match before paging.
func (s *Storage) SearchTrackings(ctx context.Context, f models.TrackingFilter) ([]*models.TrackingRecord, int64, error) {
	var where []string
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if f.TrackingNumber != "" {
		where = append(where, "t.tracking_number ILIKE "+arg("%"+f.TrackingNumber+"%"))
	}
	if f.Status != "" {
		where = append(where, "t.status = "+arg(f.Status))
	}
	if f.Carrier != "" {
		where = append(where, "t.carrier = "+arg(f.Carrier))
	}
	if f.CustomerName != "" {
		where = append(where, "t.meta_data->>'customer_name' ILIKE "+arg("%"+f.CustomerName+"%"))
	}
	if f.StartDate != nil {
		where = append(where, "t.created_at >= "+arg(f.StartDate.UTC()))
	}
	if f.EndDate != nil {
		where = append(where, "t.created_at <= "+arg(f.EndDate.UTC()))
	}
	if !f.Location.Empty() {
		var loc []string
		if f.Location.City != "" {
			loc = append(loc, "e.city = "+arg(f.Location.City))
		}
		if f.Location.State != "" {
			loc = append(loc, "e.state = "+arg(f.Location.State))
		}
		if f.Location.Country != "" {
			loc = append(loc, "e.country = "+arg(f.Location.Country))
		}
		if f.Location.PostalCode != "" {
			loc = append(loc, "e.postal_code = "+arg(f.Location.PostalCode))
		}
		where = append(where, "EXISTS (SELECT 1 FROM tracking_events e WHERE e.tracking_id = t.id AND "+strings.Join(loc, " AND ")+")")
	}
	if f.ServiceType != "" {
		where = append(where, "t.service_type = "+arg(f.ServiceType))
	}
	if f.IsDelivered != nil {
		if *f.IsDelivered {
			where = append(where, "t.status = "+arg(models.TrackingStatusDelivered))
		} else {
			where = append(where, "t.status <> "+arg(models.TrackingStatusDelivered))
		}
	}

	cond := ""
	if len(where) > 0 {
		cond = " WHERE " + strings.Join(where, " AND ")
	}

	var total int64
	if err := s.db.QueryRow(ctx, `SELECT count(*) FROM trackings t`+cond, args...).Scan(&total); err != nil {
		return nil, 0, errors.Wrap(err, "count trackings")
	}

	col, ok := trackingSortColumns[f.SortBy]
	if !ok {
		col = "created_at"
	}
	dir := "DESC"
	if strings.EqualFold(f.SortOrder, "asc") {
		dir = "ASC"
	}

	limit, offset := pageBounds(f.Page, f.PageSize)
	q := fmt.Sprintf(`SELECT %s FROM trackings t%s ORDER BY t.%s %s, t.id %s LIMIT %s OFFSET %s`,
		prefixed("t", trackingColumns), cond, col, dir, dir, arg(limit), arg(offset))

	rows, err := s.db.Query(ctx, q, args...)
	if err != nil {
		return nil, 0, errors.Wrap(err, "select trackings")
	}
	defer rows.Close()

	out := make([]*models.TrackingRecord, 0, limit)
	for rows.Next() {
		t, err := scanTracking(rows)
		if err != nil {
			return nil, 0, errors.Wrap(err, "scan tracking")
		}
		out = append(out, t)
	}
	if rows.Err() != nil {
		return nil, 0, errors.Wrap(rows.Err(), "rows")
	}
	return out, total, nil
}

func (s *Storage) TrackingStats(ctx context.Context) (models.TrackingStats, error) {
	st := models.TrackingStats{
		StatusDistribution:  map[string]int64{},
		CarrierDistribution: map[string]int64{},
	}
	if err := s.db.QueryRow(ctx, `SELECT count(*) FROM trackings`).Scan(&st.Total); err != nil {
		return st, errors.Wrap(err, "count trackings")
	}
	if err := s.groupCount(ctx, `SELECT status, count(*) FROM trackings GROUP BY status`, st.StatusDistribution); err != nil {
		return st, err
	}
	if err := s.groupCount(ctx, `SELECT carrier, count(*) FROM trackings GROUP BY carrier`, st.CarrierDistribution); err != nil {
		return st, err
	}
	st.Delivered = st.StatusDistribution[models.TrackingStatusDelivered]
	st.InTransit = st.StatusDistribution[models.TrackingStatusInTransit]
	st.Exception = st.StatusDistribution[models.TrackingStatusException]
	return st, nil
}

// ClaimDueTrackings picks undelivered records whose next check is due and pushes
// their next_check_at forward by lease so other workers skip them meanwhile.
// Uses SELECT ... FOR UPDATE SKIP LOCKED.
func (s *Storage) ClaimDueTrackings(ctx context.Context, now time.Time, limit int, lease time.Duration) ([]*models.TrackingRecord, error) {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, errors.Wrap(err, "begin tx")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	rows, err := tx.Query(ctx, `
SELECT `+trackingColumns+`
FROM trackings
WHERE next_check_at <= $1
  AND status <> $2
ORDER BY next_check_at ASC
LIMIT $3
FOR UPDATE SKIP LOCKED
`, now.UTC(), models.TrackingStatusDelivered, limit)
	if err != nil {
		return nil, errors.Wrap(err, "select due trackings")
	}

	var picked []*models.TrackingRecord
	for rows.Next() {
		t, err := scanTracking(rows)
		if err != nil {
			rows.Close()
			return nil, errors.Wrap(err, "scan due tracking")
		}
		picked = append(picked, t)
	}
	rows.Close()
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}

	leaseUntil := now.UTC().Add(lease)
	for _, t := range picked {
		_, err := tx.Exec(ctx, `UPDATE trackings SET next_check_at = $2, updated_at = now() WHERE id = $1`, t.ID, leaseUntil)
		if err != nil {
			return nil, errors.Wrap(err, "lease tracking")
		}
		t.NextCheckAt = leaseUntil
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, errors.Wrap(err, "commit tx")
	}
	return picked, nil
}

// RefreshTracking makes the record due for the next poll cycle.
func (s *Storage) RefreshTracking(ctx context.Context, trackingNumber string) (bool, error) {
	tag, err := s.db.Exec(ctx, `UPDATE trackings SET next_check_at = now(), updated_at = now() WHERE tracking_number = $1`, trackingNumber)
	if err != nil {
		return false, errors.Wrap(err, "refresh tracking")
	}
	return tag.RowsAffected() > 0, nil
}

func prefixed(alias, columns string) string {
	parts := strings.Split(columns, ",")
	for i, p := range parts {
		parts[i] = alias + "." + strings.TrimSpace(p)
	}
	return strings.Join(parts, ", ")
}
