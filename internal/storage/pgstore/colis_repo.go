package pgstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/BearBump/ColisTrack/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pkg/errors"
)

// IdentifierColumn names one of the four columns a colis can be looked up by.
type IdentifierColumn string

const (
	ColumnID        IdentifierColumn = "id"
	ColumnReference IdentifierColumn = "reference"
	ColumnTCN       IdentifierColumn = "tcn"
	ColumnBarcode   IdentifierColumn = "code_barre"
)

const colisColumns = `id, reference, tcn, code_barre, description, status, location,
  estimated_delivery, meta_data, created_at, updated_at`

// serializes colis creation so the cross-column uniqueness check cannot race
const colisCreateLockKey = 7_310_042

func scanColis(row scanner) (*models.Colis, error) {
	var c models.Colis
	var meta []byte
	if err := row.Scan(
		&c.ID, &c.Reference, &c.TCN, &c.Barcode, &c.Description, &c.Status, &c.Location,
		&c.EstimatedDelivery, &meta, &c.CreatedAt, &c.UpdatedAt,
	); err != nil {
		return nil, err
	}
	c.Meta = decodeMap(meta)
	return &c, nil
}

// CreateColis inserts c after checking that none of its identifiers is used by
// another colis in any identifier column.
func (s *Storage) CreateColis(ctx context.Context, c *models.Colis) error {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return errors.Wrap(err, "begin tx")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, colisCreateLockKey); err != nil {
		return errors.Wrap(err, "lock colis create")
	}

	ids := c.Identifiers()
	var taken string
	err = tx.QueryRow(ctx, `
SELECT v FROM unnest($1::text[]) AS v
WHERE EXISTS (
  SELECT 1 FROM colis
  WHERE id = v OR reference = v OR tcn = v OR code_barre = v
)
LIMIT 1
`, ids).Scan(&taken)
	switch {
	case err == nil:
		return &IdentifierConflictError{Value: taken}
	case !errors.Is(err, pgx.ErrNoRows):
		return errors.Wrap(err, "check colis identifiers")
	}

	_, err = tx.Exec(ctx, `
INSERT INTO colis (`+colisColumns+`)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
`, c.ID, c.Reference, c.TCN, c.Barcode, c.Description, c.Status, c.Location,
		c.EstimatedDelivery, encodeMap(c.Meta), c.CreatedAt.UTC(), c.UpdatedAt.UTC())
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return &IdentifierConflictError{Value: pgErr.ConstraintName}
		}
		return errors.Wrap(err, "insert colis")
	}

	if err := tx.Commit(ctx); err != nil {
		return errors.Wrap(err, "commit tx")
	}
	return nil
}

// GetColisBy returns nil when no colis has value in column.
func (s *Storage) GetColisBy(ctx context.Context, column IdentifierColumn, value string) (*models.Colis, error) {
	switch column {
	case ColumnID, ColumnReference, ColumnTCN, ColumnBarcode:
	default:
		return nil, errors.Errorf("unknown identifier column %q", column)
	}

	row := s.db.QueryRow(ctx, `SELECT `+colisColumns+` FROM colis WHERE `+string(column)+` = $1`, value)
	c, err := scanColis(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "select colis")
	}
	return c, nil
}

// UpdateColis applies the non-nil fields of upd; meta keys are merged. Returns nil when id is unknown.
func (s *Storage) UpdateColis(ctx context.Context, id string, upd models.ColisUpdate) (*models.Colis, error) {
	var meta []byte
	if upd.Meta != nil {
		meta = encodeMap(upd.Meta)
	}
	row := s.db.QueryRow(ctx, `
UPDATE colis SET
  description = COALESCE($2, description),
  status = COALESCE($3, status),
  location = COALESCE($4, location),
  estimated_delivery = COALESCE($5, estimated_delivery),
  meta_data = CASE WHEN $6::jsonb IS NULL THEN meta_data ELSE meta_data || $6::jsonb END,
  updated_at = $7
WHERE id = $1
RETURNING `+colisColumns,
		id, upd.Description, upd.Status, upd.Location, upd.EstimatedDelivery, meta, time.Now().UTC())
	c, err := scanColis(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "update colis")
	}
	return c, nil
}

// DeleteColis removes the colis and returns it, or nil when it did not exist.
func (s *Storage) DeleteColis(ctx context.Context, id string) (*models.Colis, error) {
	row := s.db.QueryRow(ctx, `DELETE FROM colis WHERE id = $1 RETURNING `+colisColumns, id)
	c, err := scanColis(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "delete colis")
	}
	return c, nil
}

func (s *Storage) SearchColis(ctx context.Context, f models.ColisFilter) ([]*models.Colis, int64, error) {
	var where []string
	var args []any
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}

	if f.Status != "" {
		add("status = $%d", f.Status)
	}
	if f.Location != "" {
		add("location = $%d", f.Location)
	}
	if f.Query != "" {
		args = append(args, "%"+f.Query+"%")
		n := len(args)
		where = append(where, fmt.Sprintf("(reference ILIKE $%d OR tcn ILIKE $%d OR code_barre ILIKE $%d OR id ILIKE $%d)", n, n, n, n))
	}

	cond := ""
	if len(where) > 0 {
		cond = " WHERE " + strings.Join(where, " AND ")
	}

	var total int64
	if err := s.db.QueryRow(ctx, `SELECT count(*) FROM colis`+cond, args...).Scan(&total); err != nil {
		return nil, 0, errors.Wrap(err, "count colis")
	}

	limit, offset := pageBounds(f.Page, f.PageSize)
	args = append(args, limit, offset)
	rows, err := s.db.Query(ctx, fmt.Sprintf(`SELECT %s FROM colis%s ORDER BY created_at DESC, id LIMIT $%d OFFSET $%d`,
		colisColumns, cond, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, errors.Wrap(err, "select colis")
	}
	defer rows.Close()

	out := make([]*models.Colis, 0, limit)
	for rows.Next() {
		c, err := scanColis(rows)
		if err != nil {
			return nil, 0, errors.Wrap(err, "scan colis")
		}
		out = append(out, c)
	}
	if rows.Err() != nil {
		return nil, 0, errors.Wrap(rows.Err(), "rows")
	}
	return out, total, nil
}

func (s *Storage) ColisStats(ctx context.Context) (models.ColisStats, error) {
	st := models.ColisStats{
		StatusDistribution:   map[string]int64{},
		LocationDistribution: map[string]int64{},
	}
	if err := s.db.QueryRow(ctx, `SELECT count(*) FROM colis`).Scan(&st.Total); err != nil {
		return st, errors.Wrap(err, "count colis")
	}

	if err := s.groupCount(ctx, `SELECT status, count(*) FROM colis GROUP BY status`, st.StatusDistribution); err != nil {
		return st, err
	}
	if err := s.groupCount(ctx, `SELECT location, count(*) FROM colis WHERE location IS NOT NULL GROUP BY location`, st.LocationDistribution); err != nil {
		return st, err
	}
	return st, nil
}

func (s *Storage) groupCount(ctx context.Context, q string, into map[string]int64) error {
	rows, err := s.db.Query(ctx, q)
	if err != nil {
		return errors.Wrap(err, "group count")
	}
	defer rows.Close()
	for rows.Next() {
		var k string
		var n int64
		if err := rows.Scan(&k, &n); err != nil {
			return errors.Wrap(err, "scan group count")
		}
		into[k] = n
	}
	return errors.Wrap(rows.Err(), "rows")
}

func pageBounds(page, pageSize int) (limit, offset int) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 10
	}
	return pageSize, (page - 1) * pageSize
}
