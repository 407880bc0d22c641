package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3"
)

type SQLiteConfig struct {
	OnDisk    bool
	Directory string
}

type SQLiteStorage struct {
	SQLiteConfig

	db *sql.DB
}

func NewSQLiteStorage(cfg ...SQLiteConfig) (*SQLiteStorage, error) {
	onDisk := false
	directory := ""
	if len(cfg) > 0 {
		onDisk = cfg[0].OnDisk
		directory = cfg[0].Directory
	}

	sourceName := ":memory:"
	if onDisk {
		sourceName = directory + "/estimator.db"
	}

	db, err := sql.Open("sqlite3", sourceName)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Each connection to :memory: gets its own database.
	if !onDisk {
		db.SetMaxOpenConns(1)
	}

	_, err = db.Exec(`
CREATE TABLE IF NOT EXISTS curve_set (
    id TEXT NOT NULL,
    source TEXT NOT NULL,
    hash TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL,
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
    coefficients TEXT NOT NULL,
    x_shift REAL NOT NULL,
    x_scale REAL NOT NULL,
    samples INTEGER NOT NULL,
    fit_rank INTEGER NOT NULL,
    min_x REAL NOT NULL,
    max_x REAL NOT NULL,
    rmse REAL NOT NULL,
PRIMARY KEY (set_id, route_id, service_id, shape_id, stop_id)
);`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating tables: %w", err)
	}

	return &SQLiteStorage{
		SQLiteConfig: SQLiteConfig{
			OnDisk:    onDisk,
			Directory: directory,
		},
		db: db,
	}, nil
}

func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

func (s *SQLiteStorage) ListCurveSets(filter ListCurveSetsFilter) ([]*CurveSet, error) {
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
	if filter.ID != "" {
		conditions = append(conditions, "id = ?")
		params = append(params, filter.ID)
	}
	if filter.Source != "" {
		conditions = append(conditions, "source = ?")
		params = append(params, filter.Source)
	}
	if filter.Hash != "" {
		conditions = append(conditions, "hash = ?")
		params = append(params, filter.Hash)
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

func (s *SQLiteStorage) WriteCurveSet(set *CurveSet, curves []*Curve) error {
	if set.ID == "" {
		return fmt.Errorf("curve set has no ID")
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(`DELETE FROM curve WHERE set_id = ?`, set.ID)
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
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (id) DO UPDATE SET
    source = excluded.source,
    hash = excluded.hash,
    created_at = excluded.created_at,
    degree = excluded.degree,
    observations = excluded.observations,
    curves = excluded.curves
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

	stmt, err := tx.Prepare(`
INSERT INTO curve (
    set_id,
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
)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing curve insert: %w", err)
	}
	defer stmt.Close()

	for _, c := range curves {
		coefficients, err := json.Marshal(c.Coefficients)
		if err != nil {
			return fmt.Errorf("encoding coefficients: %w", err)
		}

		_, err = stmt.Exec(
			set.ID,
			c.RouteID,
			c.ServiceID,
			c.ShapeID,
			c.StopID,
			c.Degree,
			string(coefficients),
			c.Shift,
			c.Scale,
			c.Samples,
			c.Rank,
			c.MinX,
			c.MaxX,
			c.RMSE,
		)
		if err != nil {
			return fmt.Errorf("writing curve: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing: %w", err)
	}

	return nil
}

func (s *SQLiteStorage) ReadCurves(setID string) ([]*Curve, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM curve_set WHERE id = ?`, setID).Scan(&n)
	if err != nil {
		return nil, fmt.Errorf("looking up curve set: %w", err)
	}
	if n == 0 {
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
WHERE set_id = ?
ORDER BY route_id, service_id, shape_id, stop_id`, setID)
	if err != nil {
		return nil, fmt.Errorf("querying curves: %w", err)
	}
	defer rows.Close()

	curves := []*Curve{}
	for rows.Next() {
		var c Curve
		var coefficients string
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
		if err := json.Unmarshal([]byte(coefficients), &c.Coefficients); err != nil {
			return nil, fmt.Errorf("decoding coefficients: %w", err)
		}
		curves = append(curves, &c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating curves: %w", err)
	}

	return curves, nil
}

func (s *SQLiteStorage) DeleteCurveSet(setID string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.Exec(`DELETE FROM curve_set WHERE id = ?`, setID)
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

	_, err = tx.Exec(`DELETE FROM curve WHERE set_id = ?`, setID)
	if err != nil {
		return fmt.Errorf("deleting curves: %w", err)
	}

	return tx.Commit()
}
