package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/roach88/flick/internal/harness"
	"github.com/roach88/flick/internal/store"
)

// ResultsDBName is the results database file written under the scenario's
// output directory.
const ResultsDBName = "results.db"

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	OnlyFlaky   bool // evaluate only the flaky assertion subset
	Keep        bool // keep artifacts of passing runs
	Repetitions int  // override the scenario's repetition count
}

// RunReport is the run command's output payload.
type RunReport struct {
	Name        string   `json:"name"`
	ExecutionID string   `json:"execution_id,omitempty"`
	Repetitions int      `json:"repetitions"`
	Pass        bool     `json:"pass"`
	Failures    []string `json:"failures,omitempty"`
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <scenario.yaml>",
		Short: "Execute a transition scenario",
		Long: `Execute a transition scenario: drive the transition the configured
number of times, capture a trace per monitor around each transition
window, and evaluate the scenario's assertions over the captured data.

Trace artifacts and the results database are written under the
scenario's output directory. Artifacts of passing runs are deleted
afterwards unless --keep is set; failing runs always retain their
artifacts for post-mortem inspection.

Exit codes:
  0 - Transition executed and all assertions passed
  1 - Assertions failed
  2 - Command error (invalid scenario, transition could not run, etc.)

Examples:
  flick run scenarios/app_launch.yaml
  flick run scenarios/app_launch.yaml --repetitions 5 --keep
  flick run scenarios/app_launch.yaml --only-flaky --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScenario(cmd, opts, args[0])
		},
	}

	cmd.Flags().BoolVar(&opts.OnlyFlaky, "only-flaky", false, "evaluate only assertions marked flaky")
	cmd.Flags().BoolVar(&opts.Keep, "keep", false, "keep artifacts of passing runs")
	cmd.Flags().IntVar(&opts.Repetitions, "repetitions", 0, "override the scenario's repetition count")

	return cmd
}

func runScenario(cmd *cobra.Command, opts *RunOptions, path string) error {
	w := cmd.OutOrStdout()
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	scenario, err := LoadScenario(path)
	if err != nil {
		return respondError(w, opts.RootOptions, ErrCodeScenario, err)
	}
	if opts.Repetitions > 0 {
		scenario.Repetitions = opts.Repetitions
	}

	test, err := BuildTest(scenario, commandLogger(cmd, opts.RootOptions))
	if err != nil {
		return respondError(w, opts.RootOptions, ErrCodeScenario, err)
	}

	report := RunReport{Name: scenario.Name, Repetitions: scenario.Repetitions}

	// Execute and evaluate. CheckAssertions triggers the execution
	// lazily; an execution failure is fatal and distinct from assertion
	// failures.
	checkErr := test.CheckAssertions(ctx, opts.OnlyFlaky)

	var aerr *harness.AssertionError
	switch {
	case checkErr == nil:
		report.Pass = true
	case errors.As(checkErr, &aerr):
		for _, f := range aerr.Failures {
			report.Failures = append(report.Failures, f.String())
		}
	default:
		// Failed executions are recorded too: the error row and any
		// partial runs are the post-mortem trail.
		if _, rerr := recordExecution(ctx, scenario, test, nil); rerr != nil {
			checkErr = errors.Join(checkErr, rerr)
		}
		return respondError(w, opts.RootOptions, ErrCodeExecution, checkErr)
	}

	// Record the execution before cleanup so the report survives artifact
	// deletion.
	report.ExecutionID, err = recordExecution(ctx, scenario, test, aerr)
	if err != nil {
		return respondError(w, opts.RootOptions, ErrCodeStore, err)
	}

	if !opts.Keep {
		if err := test.CleanUp(); err != nil {
			return respondError(w, opts.RootOptions, ErrCodeStore, err)
		}
	}

	return respondRun(w, opts, report)
}

// recordExecution persists the execution cycle to the results database.
func recordExecution(ctx context.Context, scenario *Scenario, test *harness.Test, aerr *harness.AssertionError) (string, error) {
	st, err := store.Open(filepath.Join(scenario.OutputDir, ResultsDBName))
	if err != nil {
		return "", fmt.Errorf("open results database: %w", err)
	}
	defer st.Close()

	var failures []harness.Failure
	if aerr != nil {
		failures = aerr.Failures
	}
	return st.RecordExecution(ctx, test.Result(), failures)
}

// respondRun renders the run report and maps assertion failures to exit
// code 1.
func respondRun(w io.Writer, opts *RunOptions, report RunReport) error {
	if opts.Format == "json" {
		resp := CLIResponse{Status: "ok", Data: report}
		if !report.Pass {
			resp.Status = "error"
			resp.Error = &CLIError{
				Code:    ErrCodeAssertion,
				Message: fmt.Sprintf("%d assertion failure(s)", len(report.Failures)),
			}
		}
		if err := writeJSON(w, resp); err != nil {
			return err
		}
	} else {
		if report.Pass {
			fmt.Fprintf(w, "✓ %s (%d repetitions)\n", report.Name, report.Repetitions)
		} else {
			fmt.Fprintf(w, "✗ %s (%d repetitions)\n", report.Name, report.Repetitions)
			for _, line := range report.Failures {
				fmt.Fprintf(w, "  %s\n", line)
			}
		}
		if report.ExecutionID != "" {
			fmt.Fprintf(w, "recorded execution %s\n", report.ExecutionID)
		}
	}

	if !report.Pass {
		return NewExitError(ExitFailure, fmt.Sprintf("%d assertion failure(s)", len(report.Failures)))
	}
	return nil
}

// respondError renders a command error in the configured format and wraps
// it with exit code 2.
func respondError(w io.Writer, opts *RootOptions, code string, err error) error {
	if opts.Format == "json" {
		_ = writeJSON(w, CLIResponse{
			Status: "error",
			Error:  &CLIError{Code: code, Message: err.Error()},
		})
	} else {
		fmt.Fprintf(w, "Error [%s]: %v\n", code, err)
	}
	return WrapExitError(ExitCommandError, code, err)
}

// commandLogger builds the execution logger: verbose mode logs phase
// progress to stderr, otherwise logging is suppressed.
func commandLogger(cmd *cobra.Command, opts *RootOptions) *slog.Logger {
	if !opts.Verbose {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: slog.LevelDebug}))
}
