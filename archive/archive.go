// Package archive keeps a SQLite history of finished report runs: which
// sources went in and the graded summary that came out.
package archive

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"covreport/config"

	_ "modernc.org/sqlite"
)

// Store persists finished runs. Intermediate per-channel data is never stored.
type Store struct {
	cfg       config.ArchiveConfig
	db        *sql.DB
	preflight Preflight
}

// SourceRecord describes one input of a run.
type SourceRecord struct {
	Area        string
	Path        string
	Fingerprint string
	Rows        int
	Samples     int
	Status      string
	Reason      string
}

// MeasurementRecord is one graded summary cell.
type MeasurementRecord struct {
	Area        string
	Technology  string
	TariffClass string
	Operator    string
	Value       *float64
	Band        string
}

// Run is a finished report run.
type Run struct {
	ID           int64
	StartedAt    time.Time
	FinishedAt   time.Time
	Output       string
	Generation   string
	Fingerprint  string
	Sources      []SourceRecord
	Measurements []MeasurementRecord
}

// Open initializes the SQLite database at cfg.DBPath. A damaged database is
// quarantined first and replaced by an empty one; see Preflight.
func Open(cfg config.ArchiveConfig) (*Store, error) {
	if strings.TrimSpace(cfg.DBPath) == "" {
		return nil, fmt.Errorf("archive: empty path")
	}
	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755); err != nil {
		return nil, fmt.Errorf("archive: mkdir: %w", err)
	}
	pre, err := preflight(cfg.DBPath, time.Duration(cfg.BusyTimeoutMS)*time.Millisecond)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("archive: open db: %w", err)
	}
	db.SetMaxOpenConns(1)
	busy := cfg.BusyTimeoutMS
	if busy <= 0 {
		busy = 5000
	}
	sync := strings.ToUpper(strings.TrimSpace(cfg.Synchronous))
	if sync == "" {
		sync = "NORMAL"
	}
	if _, err := db.Exec(fmt.Sprintf(`pragma journal_mode=WAL; pragma synchronous=%s; pragma busy_timeout=%d; pragma foreign_keys=ON`, sync, busy)); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("archive: pragmas: %w", err)
	}
	if err := ensureSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{cfg: cfg, db: db, preflight: pre}, nil
}

// Preflight reports what Open found when it checked the existing database.
func (s *Store) Preflight() Preflight {
	return s.preflight
}

// Close releases the database handle.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func ensureSchema(db *sql.DB) error {
	schema := `
	create table if not exists runs (
		id integer primary key autoincrement,
		started_at integer,
		finished_at integer,
		output text,
		generation text,
		fingerprint text
	);
	create table if not exists run_sources (
		run_id integer references runs(id) on delete cascade,
		area text,
		path text,
		fingerprint text,
		rows integer,
		samples integer,
		status text,
		reason text
	);
	create table if not exists run_measurements (
		run_id integer references runs(id) on delete cascade,
		seq integer,
		area text,
		technology text,
		tariff_class text,
		operator text,
		value real,
		band text
	);
	create index if not exists idx_runs_fingerprint on runs(fingerprint);
	create index if not exists idx_run_sources_run on run_sources(run_id);
	create index if not exists idx_run_measurements_run on run_measurements(run_id, seq);
	`
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("archive: schema: %w", err)
	}
	return nil
}

// Purpose: Persist one finished run and apply run retention.
// Key aspects: Single transaction; retention keeps the newest RetentionRuns
// runs (0 keeps everything).
// Upstream: covreport.Generate after the workbook is written.
// Downstream: prune.
func (s *Store) Record(ctx context.Context, run Run) (int64, error) {
	if s == nil || s.db == nil {
		return 0, fmt.Errorf("archive: store is nil")
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("archive: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `insert into runs(started_at, finished_at, output, generation, fingerprint) values(?,?,?,?,?)`,
		run.StartedAt.UTC().UnixMilli(), run.FinishedAt.UTC().UnixMilli(), run.Output, run.Generation, run.Fingerprint)
	if err != nil {
		return 0, fmt.Errorf("archive: insert run: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("archive: run id: %w", err)
	}

	srcStmt, err := tx.PrepareContext(ctx, `insert into run_sources(run_id, area, path, fingerprint, rows, samples, status, reason) values(?,?,?,?,?,?,?,?)`)
	if err != nil {
		return 0, fmt.Errorf("archive: prepare sources: %w", err)
	}
	defer srcStmt.Close()
	for _, src := range run.Sources {
		if _, err := srcStmt.ExecContext(ctx, id, src.Area, src.Path, src.Fingerprint, src.Rows, src.Samples, src.Status, src.Reason); err != nil {
			return 0, fmt.Errorf("archive: insert source: %w", err)
		}
	}

	mStmt, err := tx.PrepareContext(ctx, `insert into run_measurements(run_id, seq, area, technology, tariff_class, operator, value, band) values(?,?,?,?,?,?,?,?)`)
	if err != nil {
		return 0, fmt.Errorf("archive: prepare measurements: %w", err)
	}
	defer mStmt.Close()
	for i, m := range run.Measurements {
		var value sql.NullFloat64
		if m.Value != nil {
			value = sql.NullFloat64{Float64: *m.Value, Valid: true}
		}
		if _, err := mStmt.ExecContext(ctx, id, i, m.Area, m.Technology, m.TariffClass, m.Operator, value, m.Band); err != nil {
			return 0, fmt.Errorf("archive: insert measurement: %w", err)
		}
	}

	if err := s.prune(ctx, tx); err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("archive: commit: %w", err)
	}
	return id, nil
}

func (s *Store) prune(ctx context.Context, tx *sql.Tx) error {
	if s.cfg.RetentionRuns <= 0 {
		return nil
	}
	if _, err := tx.ExecContext(ctx, `delete from runs where id not in (select id from runs order by id desc limit ?)`, s.cfg.RetentionRuns); err != nil {
		return fmt.Errorf("archive: prune runs: %w", err)
	}
	// foreign_keys is per connection; clear children explicitly as well
	for _, table := range []string{"run_sources", "run_measurements"} {
		if _, err := tx.ExecContext(ctx, `delete from `+table+` where run_id not in (select id from runs)`); err != nil {
			return fmt.Errorf("archive: prune %s: %w", table, err)
		}
	}
	return nil
}

// Recent returns the newest runs (without measurements), newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Run, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("archive: store is nil")
	}
	if limit <= 0 {
		return []Run{}, nil
	}
	rows, err := s.db.QueryContext(ctx, `select id, started_at, finished_at, output, generation, fingerprint from runs order by id desc limit ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("archive: query recent: %w", err)
	}
	defer rows.Close()

	results := make([]Run, 0, limit)
	for rows.Next() {
		var (
			r                 Run
			started, finished int64
		)
		if err := rows.Scan(&r.ID, &started, &finished, &r.Output, &r.Generation, &r.Fingerprint); err != nil {
			return nil, fmt.Errorf("archive: scan recent: %w", err)
		}
		r.StartedAt = time.UnixMilli(started).UTC()
		r.FinishedAt = time.UnixMilli(finished).UTC()
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("archive: iterate recent: %w", err)
	}
	return results, nil
}

// LastWithFingerprint returns the newest run whose combined input
// fingerprint matches, if any.
func (s *Store) LastWithFingerprint(ctx context.Context, fingerprint string) (Run, bool, error) {
	var (
		r                 Run
		started, finished int64
	)
	err := s.db.QueryRowContext(ctx, `select id, started_at, finished_at, output, generation, fingerprint from runs where fingerprint = ? order by id desc limit 1`, fingerprint).
		Scan(&r.ID, &started, &finished, &r.Output, &r.Generation, &r.Fingerprint)
	if err == sql.ErrNoRows {
		return Run{}, false, nil
	}
	if err != nil {
		return Run{}, false, fmt.Errorf("archive: query fingerprint: %w", err)
	}
	r.StartedAt = time.UnixMilli(started).UTC()
	r.FinishedAt = time.UnixMilli(finished).UTC()
	return r, true, nil
}

// Load returns a run with its sources and measurements.
func (s *Store) Load(ctx context.Context, id int64) (Run, error) {
	var (
		r                 Run
		started, finished int64
	)
	err := s.db.QueryRowContext(ctx, `select id, started_at, finished_at, output, generation, fingerprint from runs where id = ?`, id).
		Scan(&r.ID, &started, &finished, &r.Output, &r.Generation, &r.Fingerprint)
	if err != nil {
		return Run{}, fmt.Errorf("archive: load run %d: %w", id, err)
	}
	r.StartedAt = time.UnixMilli(started).UTC()
	r.FinishedAt = time.UnixMilli(finished).UTC()

	srcRows, err := s.db.QueryContext(ctx, `select area, path, fingerprint, rows, samples, status, reason from run_sources where run_id = ? order by rowid`, id)
	if err != nil {
		return Run{}, fmt.Errorf("archive: load sources: %w", err)
	}
	defer srcRows.Close()
	for srcRows.Next() {
		var src SourceRecord
		if err := srcRows.Scan(&src.Area, &src.Path, &src.Fingerprint, &src.Rows, &src.Samples, &src.Status, &src.Reason); err != nil {
			return Run{}, fmt.Errorf("archive: scan source: %w", err)
		}
		r.Sources = append(r.Sources, src)
	}
	if err := srcRows.Err(); err != nil {
		return Run{}, fmt.Errorf("archive: iterate sources: %w", err)
	}

	mRows, err := s.db.QueryContext(ctx, `select area, technology, tariff_class, operator, value, band from run_measurements where run_id = ? order by seq`, id)
	if err != nil {
		return Run{}, fmt.Errorf("archive: load measurements: %w", err)
	}
	defer mRows.Close()
	for mRows.Next() {
		var (
			m     MeasurementRecord
			value sql.NullFloat64
		)
		if err := mRows.Scan(&m.Area, &m.Technology, &m.TariffClass, &m.Operator, &value, &m.Band); err != nil {
			return Run{}, fmt.Errorf("archive: scan measurement: %w", err)
		}
		if value.Valid {
			v := value.Float64
			m.Value = &v
		}
		r.Measurements = append(r.Measurements, m)
	}
	if err := mRows.Err(); err != nil {
		return Run{}, fmt.Errorf("archive: iterate measurements: %w", err)
	}
	return r, nil
}
