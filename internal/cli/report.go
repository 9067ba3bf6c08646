package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/flick/internal/store"
)

// ReportOptions holds flags for the report command.
type ReportOptions struct {
	*RootOptions
	Test      string // filter executions by test name
	Execution string // show one execution in detail
	Limit     int    // cap the execution listing
}

// ExecutionDetail is the detailed payload for a single execution.
type ExecutionDetail struct {
	Execution store.ExecutionRecord `json:"execution"`
	Runs      []store.RunRecord     `json:"runs"`
	Failures  []store.FailureRecord `json:"failures,omitempty"`
}

// NewReportCommand creates the report command.
func NewReportCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReportOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "report <results.db>",
		Short: "Inspect recorded executions",
		Long: `Inspect the results database written by the run command: list recorded
executions, or show one execution's runs and assertion failures in
detail with --execution.

Examples:
  flick report flick-out/results.db
  flick report flick-out/results.db --test app_launch --limit 5
  flick report flick-out/results.db --execution 7b0c... --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReport(cmd, opts, args[0])
		},
	}

	cmd.Flags().StringVar(&opts.Test, "test", "", "only show executions of this test")
	cmd.Flags().StringVar(&opts.Execution, "execution", "", "show this execution in detail")
	cmd.Flags().IntVar(&opts.Limit, "limit", 20, "maximum number of executions to list")

	return cmd
}

func runReport(cmd *cobra.Command, opts *ReportOptions, dbPath string) error {
	w := cmd.OutOrStdout()
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	st, err := store.Open(dbPath)
	if err != nil {
		return respondError(w, opts.RootOptions, ErrCodeStore, err)
	}
	defer st.Close()

	if opts.Execution != "" {
		return reportExecution(ctx, w, opts, st)
	}
	return reportListing(ctx, w, opts, st)
}

// reportListing prints the recorded executions, newest first.
func reportListing(ctx context.Context, w io.Writer, opts *ReportOptions, st *store.Store) error {
	executions, err := st.ListExecutions(ctx, opts.Test)
	if err != nil {
		return respondError(w, opts.RootOptions, ErrCodeStore, err)
	}
	if opts.Limit > 0 && len(executions) > opts.Limit {
		executions = executions[:opts.Limit]
	}

	if opts.Format == "json" {
		return writeJSON(w, CLIResponse{Status: "ok", Data: executions})
	}

	if len(executions) == 0 {
		fmt.Fprintln(w, "no recorded executions")
		return nil
	}
	for _, exec := range executions {
		status := "ok"
		if exec.Error != "" {
			status = "error"
		}
		fmt.Fprintf(w, "%s  %-8s %s  runs=%d  %s\n",
			exec.CreatedAt, status, exec.TestName, exec.Repetitions, exec.ID)
	}
	return nil
}

// reportExecution prints one execution's runs and assertion failures.
func reportExecution(ctx context.Context, w io.Writer, opts *ReportOptions, st *store.Store) error {
	var detail ExecutionDetail
	exec, err := st.GetExecution(ctx, opts.Execution)
	if err != nil {
		return respondError(w, opts.RootOptions, ErrCodeStore, err)
	}
	detail.Execution = exec

	if detail.Runs, err = st.ListRuns(ctx, opts.Execution); err != nil {
		return respondError(w, opts.RootOptions, ErrCodeStore, err)
	}
	if detail.Failures, err = st.ListFailures(ctx, opts.Execution); err != nil {
		return respondError(w, opts.RootOptions, ErrCodeStore, err)
	}

	if opts.Format == "json" {
		return writeJSON(w, CLIResponse{Status: "ok", Data: detail})
	}

	fmt.Fprintf(w, "execution %s\n", exec.ID)
	fmt.Fprintf(w, "  test:     %s\n", exec.TestName)
	fmt.Fprintf(w, "  recorded: %s\n", exec.CreatedAt)
	if exec.Error != "" {
		fmt.Fprintf(w, "  error:    %s\n", exec.Error)
	}
	for _, run := range detail.Runs {
		fmt.Fprintf(w, "  run %d: %d artifact(s)", run.Repetition, len(run.Artifacts))
		if run.TotalFrames != nil && run.JankyFrames != nil {
			fmt.Fprintf(w, ", jank %d/%d", *run.JankyFrames, *run.TotalFrames)
		}
		if run.Error != "" {
			fmt.Fprintf(w, ", error: %s", run.Error)
		}
		fmt.Fprintln(w)
	}
	for _, f := range detail.Failures {
		if f.Repetition < 0 {
			fmt.Fprintf(w, "  failure [%s]: %s\n", f.Assertion, f.Message)
		} else {
			fmt.Fprintf(w, "  failure [%s] run %d: %s\n", f.Assertion, f.Repetition, f.Message)
		}
	}
	return nil
}
