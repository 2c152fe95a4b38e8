package pgstore

import (
	"context"
	"encoding/json"
	"time"

	"github.com/BearBump/ColisTrack/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
)

// TrackingUpdate is one carrier check applied to a tracking record.
// A non-empty Error only bumps the failure counters of an existing record.
type TrackingUpdate struct {
	TrackingNumber string
	Carrier        string
	CheckedAt      time.Time

	Status      string
	ServiceType string
	Meta        map[string]any
	Snapshot    *models.TrackingInfo

	NextCheckAt time.Time

	Events []models.StoredEvent

	// applied to the colis whose id equals the tracking number, if any
	ColisLocation     *string
	EstimatedDelivery *time.Time

	Error *string
}

type UpdateOutcome struct {
	TrackingID     uint64
	Created        bool
	PreviousStatus string
	ColisLinked    bool
}

func (s *Storage) ApplyTrackingUpdate(ctx context.Context, upd TrackingUpdate) (UpdateOutcome, error) {
	var out UpdateOutcome

	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return out, errors.Wrap(err, "begin tx")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if upd.Error != nil && *upd.Error != "" {
		err := tx.QueryRow(ctx, `
UPDATE trackings
SET
  last_checked_at = $2,
  check_fail_count = check_fail_count + 1,
  last_error = $3,
  next_check_at = $4,
  updated_at = now()
WHERE tracking_number = $1
RETURNING id, status
`, upd.TrackingNumber, upd.CheckedAt.UTC(), *upd.Error, upd.NextCheckAt.UTC()).Scan(&out.TrackingID, &out.PreviousStatus)
		if errors.Is(err, pgx.ErrNoRows) {
			return out, nil
		}
		if err != nil {
			return out, errors.Wrap(err, "update tracking (error)")
		}
		if err := tx.Commit(ctx); err != nil {
			return out, errors.Wrap(err, "commit tx")
		}
		return out, nil
	}

	err = tx.QueryRow(ctx, `SELECT status FROM trackings WHERE tracking_number = $1 FOR UPDATE`, upd.TrackingNumber).
		Scan(&out.PreviousStatus)
	if errors.Is(err, pgx.ErrNoRows) {
		out.Created = true
	} else if err != nil {
		return out, errors.Wrap(err, "select tracking status")
	}

	var snapshot []byte
	if upd.Snapshot != nil {
		if snapshot, err = json.Marshal(upd.Snapshot); err != nil {
			return out, errors.Wrap(err, "marshal snapshot")
		}
	}
	carrier := upd.Carrier
	if carrier == "" {
		carrier = models.CarrierFedEx
	}
	serviceType := upd.ServiceType
	if serviceType == "" {
		serviceType = string(models.ServiceUnknown)
	}

	var colisID *string
	err = tx.QueryRow(ctx, `
INSERT INTO trackings (
  tracking_number, carrier, status, service_type, colis_id, meta_data, snapshot,
  last_checked_at, next_check_at, check_fail_count, last_error, created_at, updated_at
)
VALUES ($1, $2, $3, $4, (SELECT c.id FROM colis c WHERE c.id = $1), $5, $6, $7, $8, 0, NULL, now(), now())
ON CONFLICT (tracking_number) DO UPDATE SET
  carrier = EXCLUDED.carrier,
  status = EXCLUDED.status,
  service_type = EXCLUDED.service_type,
  colis_id = COALESCE(EXCLUDED.colis_id, trackings.colis_id),
  meta_data = trackings.meta_data || EXCLUDED.meta_data,
  snapshot = COALESCE(EXCLUDED.snapshot, trackings.snapshot),
  last_checked_at = EXCLUDED.last_checked_at,
  next_check_at = EXCLUDED.next_check_at,
  check_fail_count = 0,
  last_error = NULL,
  updated_at = now()
RETURNING id, colis_id
`, upd.TrackingNumber, carrier, upd.Status, serviceType, encodeMap(upd.Meta), snapshot,
		upd.CheckedAt.UTC(), upd.NextCheckAt.UTC()).Scan(&out.TrackingID, &colisID)
	if err != nil {
		return out, errors.Wrap(err, "upsert tracking")
	}

	for _, e := range upd.Events {
		_, err := tx.Exec(ctx, `
INSERT INTO tracking_events (
  tracking_id, status, description, event_time, raw_timestamp,
  city, state, country, postal_code, event_code, created_at
)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10, now())
ON CONFLICT (tracking_id, status, event_time, raw_timestamp, description, city) DO NOTHING
`, out.TrackingID, e.Status, e.Description, e.EventTime.UTC(), e.RawTime,
			e.City, e.State, e.Country, e.PostalCode, e.EventCode)
		if err != nil {
			return out, errors.Wrap(err, "insert tracking event")
		}
	}

	if colisID != nil && *colisID == upd.TrackingNumber {
		_, err := tx.Exec(ctx, `
UPDATE colis
SET
  status = $2,
  location = COALESCE($3, location),
  estimated_delivery = COALESCE($4, estimated_delivery),
  updated_at = now()
WHERE id = $1
`, *colisID, upd.Status, upd.ColisLocation, upd.EstimatedDelivery)
		if err != nil {
			return out, errors.Wrap(err, "update colis status")
		}
		out.ColisLinked = true
	}

	if err := tx.Commit(ctx); err != nil {
		return out, errors.Wrap(err, "commit tx")
	}
	return out, nil
}

func (s *Storage) ListTrackingEvents(ctx context.Context, trackingID uint64, limit, offset int) ([]*models.StoredEvent, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}

	rows, err := s.db.Query(ctx, `
SELECT
  id, tracking_id, status, description, event_time, raw_timestamp,
  city, state, country, postal_code, event_code, created_at
FROM tracking_events
WHERE tracking_id = $1
ORDER BY event_time DESC
LIMIT $2 OFFSET $3
`, trackingID, limit, offset)
	if err != nil {
		return nil, errors.Wrap(err, "select events")
	}
	defer rows.Close()

	var out []*models.StoredEvent
	for rows.Next() {
		var e models.StoredEvent
		if err := rows.Scan(
			&e.ID, &e.TrackingID, &e.Status, &e.Description, &e.EventTime, &e.RawTime,
			&e.City, &e.State, &e.Country, &e.PostalCode, &e.EventCode, &e.CreatedAt,
		); err != nil {
			return nil, errors.Wrap(err, "scan event")
		}
		out = append(out, &e)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}
	return out, nil
}
