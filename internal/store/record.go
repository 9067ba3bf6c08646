package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/roach88/flick/internal/harness"
)

// RecordExecution persists one execution cycle: the result, its runs, and
// the assertion failures of the most recent evaluation. Returns the new
// execution ID. Writes are transactional so a partial record never
// survives a crash.
func (s *Store) RecordExecution(ctx context.Context, res *harness.Result, failures []harness.Failure) (string, error) {
	if res == nil {
		return "", fmt.Errorf("nil result")
	}
	id := uuid.NewString()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	var execErr any
	if res.Err != nil {
		execErr = res.Err.Error()
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO executions (id, test_name, output_dir, repetitions, error) VALUES (?, ?, ?, ?, ?)`,
		id, res.TestName, res.OutputDir, len(res.Runs), execErr,
	)
	if err != nil {
		return "", fmt.Errorf("insert execution: %w", err)
	}

	for _, run := range res.Runs {
		artifacts, err := json.Marshal(run.Artifacts)
		if err != nil {
			return "", fmt.Errorf("marshal artifacts: %w", err)
		}
		var totalFrames, jankyFrames any
		if run.Jank != nil {
			totalFrames = run.Jank.TotalFrames
			jankyFrames = run.Jank.JankyFrames
		}
		var runErr any
		if run.Err != nil {
			runErr = run.Err.Error()
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO runs (execution_id, repetition, total_frames, janky_frames, error, artifacts)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			id, run.Repetition, totalFrames, jankyFrames, runErr, string(artifacts),
		)
		if err != nil {
			return "", fmt.Errorf("insert run %d: %w", run.Repetition, err)
		}
	}

	for _, f := range failures {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO assertion_failures (execution_id, assertion, repetition, message) VALUES (?, ?, ?, ?)`,
			id, f.Assertion, f.Repetition, f.Message,
		)
		if err != nil {
			return "", fmt.Errorf("insert failure for %s: %w", f.Assertion, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit: %w", err)
	}
	return id, nil
}
