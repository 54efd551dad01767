package archive

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"
)

// Preflight is the outcome of checking an existing archive before opening it.
type Preflight struct {
	Healthy        bool
	Quarantined    bool
	QuarantinePath string
	Elapsed        time.Duration
	Err            error // checkpoint or quick_check failure that caused quarantine
}

var dbSidecars = []string{"", "-wal", "-shm", "-journal"}

// Purpose: Make sure a damaged archive never blocks a report run.
// Key aspects: Bounded WAL checkpoint + quick_check; on failure the database
// and its sidecars are renamed with a .bad-<UTC stamp> suffix so Open starts
// a fresh file. A missing file is healthy.
// Upstream: Open.
// Downstream: quickCheck, quarantine.
func preflight(path string, timeout time.Duration) (Preflight, error) {
	var res Preflight
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		res.Healthy = true
		return res, nil
	}
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	start := time.Now()
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return res, fmt.Errorf("archive: preflight open: %w", err)
	}
	db.SetMaxOpenConns(1)
	_, checkErr := db.ExecContext(ctx, "pragma wal_checkpoint(TRUNCATE)")
	if checkErr == nil {
		checkErr = quickCheck(ctx, db)
	}
	_ = db.Close()
	res.Elapsed = time.Since(start)
	if checkErr == nil {
		res.Healthy = true
		return res, nil
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return res, fmt.Errorf("archive: preflight timed out after %s", timeout)
	}

	dest, err := quarantine(path, time.Now().UTC())
	if err != nil {
		return res, fmt.Errorf("archive: quarantine failed: %w (check: %v)", err, checkErr)
	}
	res.Quarantined = true
	res.QuarantinePath = dest
	res.Err = checkErr
	return res, nil
}

func quickCheck(ctx context.Context, db *sql.DB) error {
	rows, err := db.QueryContext(ctx, "pragma quick_check")
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var status string
		if err := rows.Scan(&status); err != nil {
			return err
		}
		if strings.TrimSpace(status) != "ok" {
			return fmt.Errorf("quick_check reported %q", status)
		}
	}
	return rows.Err()
}

func quarantine(path string, now time.Time) (string, error) {
	suffix := ".bad-" + now.Format("20060102T150405Z")
	for _, side := range dbSidecars {
		src := path + side
		if err := os.Rename(src, src+suffix); err != nil && !errors.Is(err, os.ErrNotExist) {
			return "", err
		}
	}
	return path + suffix, nil
}
