package storage

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/lib/pq"
)

type PSQLStorage struct {
	db *sql.DB
}

// Creates a new Postgres Storage using the provided connection string.
//
// If clearDB is true, the database will be cleared on startup. You
// probably only want this for testing.
func NewPSQLStorage(connStr string, clearDB bool) (*PSQLStorage, error) {

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open db: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping db: %w", err)
	}

	if clearDB {
		_, err = db.Exec(`
DROP TABLE IF EXISTS curve;
DROP TABLE IF EXISTS curve_set;
`)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("clearing db: %w", err)
		}
	}

	_, err = db.Exec(`
CREATE TABLE IF NOT EXISTS curve_set (
    id TEXT NOT NULL,
    source TEXT NOT NULL,
    hash TEXT NOT NULL,
    created_at TIMESTAMPTZ NOT NULL,
    degree INTEGER NOT NULL,
    observations INTEGER NOT NULL,
    curves INTEGER NOT NULL,
    PRIMARY KEY (id)
);

CREATE TABLE IF NOT EXISTS curve (
    set_id TEXT NOT NULL,
    route_id TEXT NOT NULL,
    service_id TEXT NOT NULL,
    shape_id TEXT NOT NULL,
    stop_id TEXT NOT NULL,
    degree INTEGER NOT NULL,
    coefficients DOUBLE PRECISION[] NOT NULL,
    x_shift DOUBLE PRECISION NOT NULL,
    x_scale DOUBLE PRECISION NOT NULL,
    samples INTEGER NOT NULL,
    fit_rank INTEGER NOT NULL,
    min_x DOUBLE PRECISION NOT NULL,
    max_x DOUBLE PRECISION NOT NULL,
    rmse DOUBLE PRECISION NOT NULL,
    PRIMARY KEY (set_id, route_id, service_id, shape_id, stop_id)
);

CREATE INDEX IF NOT EXISTS curve_set_hash ON curve_set (hash);
`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating tables: %w", err)
	}

	return &PSQLStorage{
		db: db,
	}, nil
}

func (s *PSQLStorage) Close() error {
	err := s.db.Close()
	if err != nil {
		return fmt.Errorf("failed to close db: %w", err)
	}
	return nil
}

func (s *PSQLStorage) ListCurveSets(filter ListCurveSetsFilter) ([]*CurveSet, error) {
	query := `
SELECT
    id,
    source,
    hash,
    created_at,
    degree,
    observations,
    curves
FROM curve_set`

	conditions := []string{}
	params := []interface{}{}
	paramCount := 1

	if filter.ID != "" {
		conditions = append(conditions, fmt.Sprintf("id = $%d", paramCount))
		params = append(params, filter.ID)
		paramCount++
	}
	if filter.Source != "" {
		conditions = append(conditions, fmt.Sprintf("source = $%d", paramCount))
		params = append(params, filter.Source)
		paramCount++
	}
	if filter.Hash != "" {
		conditions = append(conditions, fmt.Sprintf("hash = $%d", paramCount))
		params = append(params, filter.Hash)
		paramCount++
	}
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}

	query += " ORDER BY created_at DESC"

	rows, err := s.db.Query(query, params...)
	if err != nil {
		return nil, fmt.Errorf("listing curve sets: %w", err)
	}
	defer rows.Close()

	sets := []*CurveSet{}
	for rows.Next() {
		var set CurveSet
		err := rows.Scan(
			&set.ID,
			&set.Source,
			&set.Hash,
			&set.CreatedAt,
			&set.Degree,
			&set.Observations,
			&set.Curves,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning curve set: %w", err)
		}
		set.CreatedAt = set.CreatedAt.UTC()
		sets = append(sets, &set)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating curve sets: %w", err)
	}

	return sets, nil
}

func (s *PSQLStorage) WriteCurveSet(set *CurveSet, curves []*Curve) error {
	if set.ID == "" {
		return fmt.Errorf("curve set has no ID")
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(`DELETE FROM curve WHERE set_id = $1`, set.ID)
	if err != nil {
		return fmt.Errorf("clearing curves: %w", err)
	}

	_, err = tx.Exec(`
INSERT INTO curve_set (
    id,
    source,
    hash,
    created_at,
    degree,
    observations,
    curves
)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (id) DO UPDATE SET
    source = EXCLUDED.source,
    hash = EXCLUDED.hash,
    created_at = EXCLUDED.created_at,
    degree = EXCLUDED.degree,
    observations = EXCLUDED.observations,
    curves = EXCLUDED.curves
`,
		set.ID,
		set.Source,
		set.Hash,
		set.CreatedAt.UTC(),
		set.Degree,
		set.Observations,
		set.Curves,
	)
	if err != nil {
		return fmt.Errorf("writing curve set: %w", err)
	}

	if len(curves) == 0 {
		return tx.Commit()
	}

	// Bulk load via COPY
	stmt, err := tx.Prepare(pq.CopyIn(
		"curve",
		"set_id",
		"route_id",
		"service_id",
		"shape_id",
		"stop_id",
		"degree",
		"coefficients",
		"x_shift",
		"x_scale",
		"samples",
		"fit_rank",
		"min_x",
		"max_x",
		"rmse",
	))
	if err != nil {
		return fmt.Errorf("preparing copy: %w", err)
	}

	for _, c := range curves {
		_, err = stmt.Exec(
			set.ID,
			c.RouteID,
			c.ServiceID,
			c.ShapeID,
			c.StopID,
			c.Degree,
			pq.Array(c.Coefficients),
			c.Shift,
			c.Scale,
			c.Samples,
			c.Rank,
			c.MinX,
			c.MaxX,
			c.RMSE,
		)
		if err != nil {
			stmt.Close()
			return fmt.Errorf("copying curve: %w", err)
		}
	}

	if _, err := stmt.Exec(); err != nil {
		stmt.Close()
		return fmt.Errorf("flushing copy: %w", err)
	}
	if err := stmt.Close(); err != nil {
		return fmt.Errorf("closing copy: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing: %w", err)
	}

	return nil
}

func (s *PSQLStorage) ReadCurves(setID string) ([]*Curve, error) {
	var exists bool
	err := s.db.QueryRow(
		`SELECT EXISTS (SELECT 1 FROM curve_set WHERE id = $1)`,
		setID,
	).Scan(&exists)
	if err != nil {
		return nil, fmt.Errorf("looking up curve set: %w", err)
	}
	if !exists {
		return nil, fmt.Errorf("curve set '%s' not found", setID)
	}

	rows, err := s.db.Query(`
SELECT
    route_id,
    service_id,
    shape_id,
    stop_id,
    degree,
    coefficients,
    x_shift,
    x_scale,
    samples,
    fit_rank,
    min_x,
    max_x,
    rmse
FROM curve
WHERE set_id = $1
ORDER BY route_id, service_id, shape_id, stop_id`, setID)
	if err != nil {
		return nil, fmt.Errorf("querying curves: %w", err)
	}
	defer rows.Close()

	curves := []*Curve{}
	for rows.Next() {
		var c Curve
		var coefficients pq.Float64Array
		err := rows.Scan(
			&c.RouteID,
			&c.ServiceID,
			&c.ShapeID,
			&c.StopID,
			&c.Degree,
			&coefficients,
			&c.Shift,
			&c.Scale,
			&c.Samples,
			&c.Rank,
			&c.MinX,
			&c.MaxX,
			&c.RMSE,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning curve: %w", err)
		}
		c.Coefficients = []float64(coefficients)
		curves = append(curves, &c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating curves: %w", err)
	}

	return curves, nil
}

func (s *PSQLStorage) DeleteCurveSet(setID string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.Exec(`DELETE FROM curve_set WHERE id = $1`, setID)
	if err != nil {
		return fmt.Errorf("deleting curve set: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("counting deleted rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("curve set '%s' not found", setID)
	}

	_, err = tx.Exec(`DELETE FROM curve WHERE set_id = $1`, setID)
	if err != nil {
		return fmt.Errorf("deleting curves: %w", err)
	}

	return tx.Commit()
}
