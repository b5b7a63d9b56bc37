// Package store handles SQLite persistence.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/verte-zerg/omorifit/internal/model"

	_ "modernc.org/sqlite" // SQLite driver.
)

// Fixed-width so that created_at sorts as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// ErrNotFound is returned when a sweep id does not exist.
var ErrNotFound = errors.New("sweep not found")

// Store wraps SQLite access for sweep data.
type Store struct {
	db *sql.DB
}

// Open opens or creates the SQLite database and applies migrations.
func Open(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		if cerr := db.Close(); cerr != nil {
			// Best-effort close on migration failure.
			_ = cerr
		}
		return nil, err
	}
	return store, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS sweeps (
			id INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			history_path TEXT NOT NULL,
			created_at TEXT NOT NULL,
			events INTEGER NOT NULL,
			intervals INTEGER NOT NULL,
			points INTEGER NOT NULL,
			non_finite INTEGER NOT NULL,
			duration_ms INTEGER NOT NULL,
			mref REAL NOT NULL,
			msup REAL NOT NULL,
			mag_min REAL NOT NULL,
			mag_max REAL NOT NULL,
			lmr TEXT NOT NULL,
			use_intervals INTEGER NOT NULL,
			workers INTEGER NOT NULL,
			best_b REAL NOT NULL,
			best_alpha REAL NOT NULL,
			best_p REAL NOT NULL,
			best_c REAL NOT NULL,
			best_aint REAL NOT NULL,
			best_a REAL NOT NULL,
			best_ams REAL NOT NULL,
			best_loglike REAL
		);`,
		`CREATE TABLE IF NOT EXISTS sweep_points (
			sweep_id INTEGER NOT NULL,
			seq INTEGER NOT NULL,
			b REAL NOT NULL,
			alpha REAL NOT NULL,
			p REAL NOT NULL,
			c REAL NOT NULL,
			aint REAL NOT NULL,
			a REAL NOT NULL,
			ams REAL NOT NULL,
			loglike REAL,
			PRIMARY KEY (sweep_id, seq)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_sweeps_created_at ON sweeps(created_at);`,
		`CREATE INDEX IF NOT EXISTS idx_sweep_points_loglike ON sweep_points(sweep_id, loglike);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// InsertSweep stores a sweep summary and all its points in one transaction.
func (s *Store) InsertSweep(ctx context.Context, sum model.SweepSummary, points []model.SweepPoint) (id int64, err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() {
		if err != nil {
			if rerr := tx.Rollback(); rerr != nil {
				// Best-effort rollback.
				_ = rerr
			}
		}
	}()

	cfg := sum.Config
	best := sum.Best
	res, err := tx.ExecContext(ctx,
		`INSERT INTO sweeps (name, history_path, created_at, events, intervals, points, non_finite, duration_ms,
			mref, msup, mag_min, mag_max, lmr, use_intervals, workers,
			best_b, best_alpha, best_p, best_c, best_aint, best_a, best_ams, best_loglike)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sum.Name,
		sum.HistoryPath,
		sum.CreatedAt.UTC().Format(timeLayout),
		sum.Events,
		sum.Intervals,
		len(points),
		sum.NonFinite,
		sum.DurationMs,
		cfg.Ref,
		cfg.Sup,
		cfg.MagMin,
		cfg.MagMax,
		cfg.LMR,
		cfg.UseIntervals,
		cfg.Workers,
		best.B,
		best.Alpha,
		best.P,
		best.C,
		best.Aint,
		best.A,
		best.Ams,
		finiteOrNull(best.LogLike),
	)
	if err != nil {
		return 0, err
	}
	id, err = res.LastInsertId()
	if err != nil {
		return 0, err
	}

	if len(points) > 0 {
		stmt, err := tx.PrepareContext(ctx,
			`INSERT INTO sweep_points (sweep_id, seq, b, alpha, p, c, aint, a, ams, loglike)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return 0, err
		}
		defer func() {
			if cerr := stmt.Close(); cerr != nil {
				// Best-effort statement close.
				_ = cerr
			}
		}()
		for i, pt := range points {
			if _, err := stmt.ExecContext(ctx, id, i, pt.B, pt.Alpha, pt.P, pt.C, pt.Aint, pt.A, pt.Ams, finiteOrNull(pt.LogLike)); err != nil {
				return 0, err
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return id, nil
}

const sweepColumns = `id, name, history_path, created_at, events, intervals, points, non_finite, duration_ms,
	mref, msup, mag_min, mag_max, lmr, use_intervals, workers,
	best_b, best_alpha, best_p, best_c, best_aint, best_a, best_ams, best_loglike`

// ListSweeps returns every stored sweep summary, newest first.
func (s *Store) ListSweeps(ctx context.Context) ([]model.SweepSummary, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+sweepColumns+` FROM sweeps ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			// Best-effort rows close.
			_ = cerr
		}
	}()

	var result []model.SweepSummary
	for rows.Next() {
		sum, err := scanSweep(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// GetSweep returns one sweep summary.
func (s *Store) GetSweep(ctx context.Context, id int64) (model.SweepSummary, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sweepColumns+` FROM sweeps WHERE id = ?`, id)
	sum, err := scanSweep(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.SweepSummary{}, fmt.Errorf("sweep %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return model.SweepSummary{}, err
	}
	return sum, nil
}

// ListSweepPoints returns the points of a sweep in evaluation order.
// Points stored without a finite log-likelihood come back as -Inf.
func (s *Store) ListSweepPoints(ctx context.Context, id int64) ([]model.SweepPoint, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT b, alpha, p, c, aint, a, ams, loglike FROM sweep_points WHERE sweep_id = ? ORDER BY seq ASC`, id)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			// Best-effort rows close.
			_ = cerr
		}
	}()

	var result []model.SweepPoint
	for rows.Next() {
		var pt model.SweepPoint
		var ll sql.NullFloat64
		if err := rows.Scan(&pt.B, &pt.Alpha, &pt.P, &pt.C, &pt.Aint, &pt.A, &pt.Ams, &ll); err != nil {
			return nil, err
		}
		pt.LogLike = nullToLogLike(ll)
		result = append(result, pt)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// DeleteSweep removes a sweep and its points.
func (s *Store) DeleteSweep(ctx context.Context, id int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM sweep_points WHERE sweep_id = ?`, id); err != nil {
		_ = tx.Rollback()
		return err
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM sweeps WHERE id = ?`, id)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	if n == 0 {
		_ = tx.Rollback()
		return fmt.Errorf("sweep %d: %w", id, ErrNotFound)
	}
	return tx.Commit()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSweep(row scanner) (model.SweepSummary, error) {
	var sum model.SweepSummary
	var createdAt string
	var bestLL sql.NullFloat64
	cfg := &sum.Config
	best := &sum.Best
	if err := row.Scan(
		&sum.ID, &sum.Name, &sum.HistoryPath, &createdAt, &sum.Events, &sum.Intervals, &sum.Points, &sum.NonFinite, &sum.DurationMs,
		&cfg.Ref, &cfg.Sup, &cfg.MagMin, &cfg.MagMax, &cfg.LMR, &cfg.UseIntervals, &cfg.Workers,
		&best.B, &best.Alpha, &best.P, &best.C, &best.Aint, &best.A, &best.Ams, &bestLL,
	); err != nil {
		return model.SweepSummary{}, err
	}
	parsed, err := time.Parse(timeLayout, createdAt)
	if err != nil {
		return model.SweepSummary{}, err
	}
	sum.CreatedAt = parsed
	best.LogLike = nullToLogLike(bestLL)
	// Sweeps always run with likelihood terms.
	cfg.Likelihood = true
	return sum, nil
}

// Non-finite log-likelihoods are stored as NULL.
func finiteOrNull(v float64) sql.NullFloat64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: v, Valid: true}
}

func nullToLogLike(v sql.NullFloat64) float64 {
	if !v.Valid {
		return math.Inf(-1)
	}
	return v.Float64
}
