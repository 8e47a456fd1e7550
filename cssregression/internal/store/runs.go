// CLAUDE:SUMMARY Run and per-case result rows: begin/finish a run, record compared suites, list and fetch history.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hazyhaar/cssregression/cssregression/internal/model"
)

// Run kinds.
const (
	KindReference = "reference"
	KindTest      = "test"
)

// Run statuses.
const (
	StatusRunning = "running"
	StatusDone    = "done"
	StatusError   = "error"
)

// Run is one reference or test invocation.
type Run struct {
	ID         string `json:"id"`
	Kind       string `json:"kind"`
	Query      string `json:"query"`
	Threshold  int    `json:"threshold"`
	Status     string `json:"status"`
	OK         int    `json:"ok"`
	Failed     int    `json:"failed"`
	Error      string `json:"error,omitempty"`
	StartedAt  int64  `json:"started_at"`
	FinishedAt int64  `json:"finished_at,omitempty"`
}

// Result is one compared test case of a run.
type Result struct {
	RunID          string `json:"run_id"`
	Seq            int    `json:"seq"`
	Entity         string `json:"entity"`
	Site           string `json:"site"`
	Name           string `json:"name"`
	Width          int    `json:"width"`
	URL            string `json:"url"`
	ReferencePath  string `json:"reference_path"`
	TestPath       string `json:"test_path"`
	DifferencePath string `json:"difference_path"`
	Difference     int    `json:"difference"`
	OK             bool   `json:"ok"`
	Failure        string `json:"failure,omitempty"`
}

// BeginRun inserts a running run and returns its UUIDv7 id.
func (s *Store) BeginRun(ctx context.Context, kind, query string, threshold int) (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("store: run id: %w", err)
	}
	_, err = s.DB.ExecContext(ctx, `
		INSERT INTO runs (id, kind, query, threshold, status, started_at)
		VALUES (?,?,?,?,?,?)`,
		id.String(), kind, query, threshold, StatusRunning, time.Now().UnixMilli(),
	)
	if err != nil {
		return "", fmt.Errorf("store: begin run: %w", err)
	}
	return id.String(), nil
}

// RecordSuite appends every case of suite to the run's results.
func (s *Store) RecordSuite(ctx context.Context, runID, entity string, suite *model.TestSuite) error {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: record suite: %w", err)
	}
	defer tx.Rollback()

	var seq int
	if err := tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(seq), 0) FROM results WHERE run_id = ?`, runID).Scan(&seq); err != nil {
		return fmt.Errorf("store: record suite: %w", err)
	}

	for _, tc := range suite.Tests {
		seq++
		_, err := tx.ExecContext(ctx, `
			INSERT INTO results (run_id, seq, entity, site, name, width, url,
				reference_path, test_path, difference_path, difference, ok, failure)
			VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?)`,
			runID, seq, entity, suite.Site, tc.Name, tc.ViewportWidth, tc.URL,
			tc.ReferenceImagePath, tc.TestImagePath, tc.DifferenceImagePath,
			tc.Difference, boolInt(tc.IsValid), tc.Failure,
		)
		if err != nil {
			return fmt.Errorf("store: record %s: %w", tc.Label(), err)
		}
	}
	return tx.Commit()
}

// FinishRun stores the final counters. A non-empty errMsg marks the run as
// errored.
func (s *Store) FinishRun(ctx context.Context, runID string, ok, failed int, errMsg string) error {
	status := StatusDone
	if errMsg != "" {
		status = StatusError
	}
	res, err := s.DB.ExecContext(ctx, `
		UPDATE runs SET status = ?, ok = ?, failed = ?, error = ?, finished_at = ?
		WHERE id = ?`,
		status, ok, failed, errMsg, time.Now().UnixMilli(), runID,
	)
	if err != nil {
		return fmt.Errorf("store: finish run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("store: finish run %s: not found", runID)
	}
	return nil
}

// ListRuns returns the most recent runs first.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]*Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.DB.QueryContext(ctx, `
		SELECT id, kind, query, threshold, status, ok, failed, error, started_at, finished_at
		FROM runs ORDER BY started_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("store: list runs: %w", err)
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("store: list runs: %w", err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// GetRun returns nil, nil when the run does not exist.
func (s *Store) GetRun(ctx context.Context, id string) (*Run, error) {
	row := s.DB.QueryRowContext(ctx, `
		SELECT id, kind, query, threshold, status, ok, failed, error, started_at, finished_at
		FROM runs WHERE id = ?`, id)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: get run: %w", err)
	}
	return r, nil
}

// Results lists the run's cases in recording order.
func (s *Store) Results(ctx context.Context, runID string, failedOnly bool) ([]*Result, error) {
	q := `
		SELECT run_id, seq, entity, site, name, width, url,
			reference_path, test_path, difference_path, difference, ok, failure
		FROM results WHERE run_id = ?`
	if failedOnly {
		q += ` AND ok = 0`
	}
	q += ` ORDER BY seq`

	rows, err := s.DB.QueryContext(ctx, q, runID)
	if err != nil {
		return nil, fmt.Errorf("store: results: %w", err)
	}
	defer rows.Close()

	var out []*Result
	for rows.Next() {
		r, err := scanResult(rows)
		if err != nil {
			return nil, fmt.Errorf("store: results: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// GetResult returns nil, nil when the case does not exist.
func (s *Store) GetResult(ctx context.Context, runID string, seq int) (*Result, error) {
	row := s.DB.QueryRowContext(ctx, `
		SELECT run_id, seq, entity, site, name, width, url,
			reference_path, test_path, difference_path, difference, ok, failure
		FROM results WHERE run_id = ? AND seq = ?`, runID, seq)
	r, err := scanResult(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: get result: %w", err)
	}
	return r, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (*Run, error) {
	r := &Run{}
	var finished sql.NullInt64
	if err := sc.Scan(&r.ID, &r.Kind, &r.Query, &r.Threshold, &r.Status,
		&r.OK, &r.Failed, &r.Error, &r.StartedAt, &finished); err != nil {
		return nil, err
	}
	r.FinishedAt = finished.Int64
	return r, nil
}

func scanResult(sc scanner) (*Result, error) {
	r := &Result{}
	var ok int
	if err := sc.Scan(&r.RunID, &r.Seq, &r.Entity, &r.Site, &r.Name, &r.Width, &r.URL,
		&r.ReferencePath, &r.TestPath, &r.DifferencePath, &r.Difference, &ok, &r.Failure); err != nil {
		return nil, err
	}
	r.OK = ok != 0
	return r, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
