package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
)

// ExecutionRecord is one persisted execution cycle.
type ExecutionRecord struct {
	ID          string `json:"id"`
	TestName    string `json:"test_name"`
	OutputDir   string `json:"output_dir"`
	Repetitions int    `json:"repetitions"`
	Error       string `json:"error,omitempty"`
	CreatedAt   string `json:"created_at"`
}

// RunRecord is one persisted run.
type RunRecord struct {
	ExecutionID string   `json:"execution_id"`
	Repetition  int      `json:"repetition"`
	TotalFrames *int64   `json:"total_frames,omitempty"`
	JankyFrames *int64   `json:"janky_frames,omitempty"`
	Error       string   `json:"error,omitempty"`
	Artifacts   []string `json:"artifacts"`
}

// FailureRecord is one persisted assertion failure.
type FailureRecord struct {
	ExecutionID string `json:"execution_id"`
	Assertion   string `json:"assertion"`
	Repetition  int    `json:"repetition"`
	Message     string `json:"message"`
}

// ListExecutions returns executions, newest first. With testName non-empty,
// only that test's executions are returned.
func (s *Store) ListExecutions(ctx context.Context, testName string) ([]ExecutionRecord, error) {
	query := `SELECT id, test_name, output_dir, repetitions, COALESCE(error, ''), created_at
	          FROM executions`
	var args []any
	if testName != "" {
		query += ` WHERE test_name = ?`
		args = append(args, testName)
	}
	query += ` ORDER BY created_at DESC, id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list executions: %w", err)
	}
	defer rows.Close()

	var records []ExecutionRecord
	for rows.Next() {
		var rec ExecutionRecord
		if err := rows.Scan(&rec.ID, &rec.TestName, &rec.OutputDir, &rec.Repetitions, &rec.Error, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan execution: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// GetExecution returns one execution by ID.
func (s *Store) GetExecution(ctx context.Context, id string) (ExecutionRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, test_name, output_dir, repetitions, COALESCE(error, ''), created_at
		 FROM executions WHERE id = ?`,
		id,
	)
	var rec ExecutionRecord
	if err := row.Scan(&rec.ID, &rec.TestName, &rec.OutputDir, &rec.Repetitions, &rec.Error, &rec.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ExecutionRecord{}, fmt.Errorf("execution %q not found", id)
		}
		return ExecutionRecord{}, fmt.Errorf("get execution: %w", err)
	}
	return rec, nil
}

// ListRuns returns the runs of one execution, in repetition order.
func (s *Store) ListRuns(ctx context.Context, executionID string) ([]RunRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT execution_id, repetition, total_frames, janky_frames, COALESCE(error, ''), artifacts
		 FROM runs WHERE execution_id = ? ORDER BY repetition`,
		executionID,
	)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var records []RunRecord
	for rows.Next() {
		var rec RunRecord
		var artifacts string
		if err := rows.Scan(&rec.ExecutionID, &rec.Repetition, &rec.TotalFrames, &rec.JankyFrames, &rec.Error, &artifacts); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		if err := json.Unmarshal([]byte(artifacts), &rec.Artifacts); err != nil {
			return nil, fmt.Errorf("parse artifacts for run %d: %w", rec.Repetition, err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// ListFailures returns the assertion failures of one execution.
func (s *Store) ListFailures(ctx context.Context, executionID string) ([]FailureRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT execution_id, assertion, repetition, message
		 FROM assertion_failures WHERE execution_id = ? ORDER BY id`,
		executionID,
	)
	if err != nil {
		return nil, fmt.Errorf("list failures: %w", err)
	}
	defer rows.Close()

	var records []FailureRecord
	for rows.Next() {
		var rec FailureRecord
		if err := rows.Scan(&rec.ExecutionID, &rec.Assertion, &rec.Repetition, &rec.Message); err != nil {
			return nil, fmt.Errorf("scan failure: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}
