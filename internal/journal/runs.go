package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// RunStatus is the terminal (or current) state of a run.
type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunEmpty     RunStatus = "empty"
	RunFailed    RunStatus = "failed"
)

// Run is one pipeline invocation.
type Run struct {
	ID         string    `json:"id"`
	TaskFile   string    `json:"task_file,omitempty"`
	OutputPath string    `json:"output_path"`
	Status     RunStatus `json:"status"`
	Requests   int       `json:"requests"`
	Produced   int       `json:"produced"`
	Skipped    int       `json:"skipped"`
	Error      string    `json:"error,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at,omitzero"`
}

// Outcome is the terminal state of one request within a run.
type Outcome struct {
	RunID      string    `json:"run_id"`
	Index      int       `json:"index"`
	SourceRef  string    `json:"source_ref"`
	SourceID   string    `json:"source_id,omitempty"`
	State      string    `json:"state"`
	Reason     string    `json:"reason,omitempty"`
	Method     string    `json:"method,omitempty"`
	ClipPath   string    `json:"clip_path,omitempty"`
	Error      string    `json:"error,omitempty"`
	RecordedAt time.Time `json:"recorded_at"`
}

// BeginRun inserts a run in the running state.
func (s *Store) BeginRun(ctx context.Context, run Run) error {
	if run.ID == "" {
		return errors.New("run id is required")
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now()
	}
	err := s.exec(ctx,
		`INSERT INTO runs (id, task_file, output_path, status, request_count, started_at)
         VALUES (?, ?, ?, ?, ?, ?)`,
		run.ID,
		nullableString(run.TaskFile),
		run.OutputPath,
		RunRunning,
		run.Requests,
		formatTime(run.StartedAt),
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// RecordOutcome stores the terminal state of a request.
func (s *Store) RecordOutcome(ctx context.Context, outcome Outcome) error {
	if outcome.RecordedAt.IsZero() {
		outcome.RecordedAt = time.Now()
	}
	err := s.exec(ctx,
		`INSERT OR REPLACE INTO outcomes (
            run_id, request_index, source_ref, source_id, state, reason,
            method, clip_path, error_message, recorded_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		outcome.RunID,
		outcome.Index,
		outcome.SourceRef,
		nullableString(outcome.SourceID),
		outcome.State,
		nullableString(outcome.Reason),
		nullableString(outcome.Method),
		nullableString(outcome.ClipPath),
		nullableString(outcome.Error),
		formatTime(outcome.RecordedAt),
	)
	if err != nil {
		return fmt.Errorf("insert outcome: %w", err)
	}
	return nil
}

// FinishRun records the final status and counts of a run.
func (s *Store) FinishRun(ctx context.Context, id string, status RunStatus, produced, skipped int, runErr error) error {
	var message string
	if runErr != nil {
		message = runErr.Error()
	}
	err := s.exec(ctx,
		`UPDATE runs SET status = ?, produced_count = ?, skipped_count = ?, error_message = ?, finished_at = ?
         WHERE id = ?`,
		status,
		produced,
		skipped,
		nullableString(message),
		formatTime(time.Now()),
		id,
	)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	return nil
}

const runColumns = `id, task_file, output_path, status, request_count, produced_count,
    skipped_count, error_message, started_at, finished_at`

// ListRuns returns the most recent runs, newest first.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+runColumns+` FROM runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// GetRun returns the run with the given id, or nil when none exists.
func (s *Store) GetRun(ctx context.Context, id string) (*Run, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &run, nil
}

// Outcomes returns the recorded outcomes of a run in request order.
func (s *Store) Outcomes(ctx context.Context, runID string) ([]Outcome, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, request_index, source_ref, source_id, state, reason, method,
                clip_path, error_message, recorded_at
         FROM outcomes WHERE run_id = ? ORDER BY request_index`, runID)
	if err != nil {
		return nil, fmt.Errorf("query outcomes: %w", err)
	}
	defer rows.Close()

	var outcomes []Outcome
	for rows.Next() {
		var (
			o                                      Outcome
			sourceID, reason, method, clip, errMsg sql.NullString
			recorded                               sql.NullString
		)
		if err := rows.Scan(&o.RunID, &o.Index, &o.SourceRef, &sourceID, &o.State, &reason, &method, &clip, &errMsg, &recorded); err != nil {
			return nil, fmt.Errorf("scan outcome: %w", err)
		}
		o.SourceID = sourceID.String
		o.Reason = reason.String
		o.Method = method.String
		o.ClipPath = clip.String
		o.Error = errMsg.String
		o.RecordedAt = parseTime(recorded)
		outcomes = append(outcomes, o)
	}
	return outcomes, rows.Err()
}

// Prune deletes all but the newest keep runs along with their outcomes and
// returns how many runs were removed. keep <= 0 keeps everything.
func (s *Store) Prune(ctx context.Context, keep int) (int64, error) {
	if keep <= 0 {
		return 0, nil
	}
	var removed int64
	err := retryOnBusy(ctx, func() error {
		res, err := s.db.ExecContext(ctx,
			`DELETE FROM runs WHERE id NOT IN (SELECT id FROM runs ORDER BY started_at DESC LIMIT ?)`, keep)
		if err != nil {
			return err
		}
		removed, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("prune runs: %w", err)
	}
	return removed, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (Run, error) {
	var (
		run               Run
		taskFile, errMsg  sql.NullString
		started, finished sql.NullString
		status            string
	)
	if err := row.Scan(&run.ID, &taskFile, &run.OutputPath, &status, &run.Requests, &run.Produced,
		&run.Skipped, &errMsg, &started, &finished); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Run{}, err
		}
		return Run{}, fmt.Errorf("scan run: %w", err)
	}
	run.TaskFile = taskFile.String
	run.Status = RunStatus(status)
	run.Error = errMsg.String
	run.StartedAt = parseTime(started)
	run.FinishedAt = parseTime(finished)
	return run, nil
}
