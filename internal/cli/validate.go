package cli

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"
)

// ValidateReport is the validate command's output payload.
type ValidateReport struct {
	Name        string `json:"name"`
	Repetitions int    `json:"repetitions"`
	Monitors    int    `json:"monitors"`
	Assertions  int    `json:"assertions"`
	Valid       bool   `json:"valid"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate <scenario.yaml>",
		Short: "Validate a scenario without running it",
		Long: `Validate a scenario file: check it against the scenario schema, apply
defaults, and construct the test it describes. Nothing is run on the
device.

Exit codes:
  0 - Scenario is valid
  2 - Scenario failed to load or validate`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return validateScenarioFile(cmd.OutOrStdout(), opts, args[0])
		},
	}
}

func validateScenarioFile(w io.Writer, opts *RootOptions, path string) error {
	scenario, err := LoadScenario(path)
	if err != nil {
		return respondError(w, opts, ErrCodeScenario, err)
	}

	// Building the test catches what static validation cannot, like a
	// monitor name that is not a valid artifact-path component.
	silent := slog.New(slog.NewTextHandler(io.Discard, nil))
	if _, err := BuildTest(scenario, silent); err != nil {
		return respondError(w, opts, ErrCodeScenario, err)
	}

	report := ValidateReport{
		Name:        scenario.Name,
		Repetitions: scenario.Repetitions,
		Monitors:    len(scenario.Monitors),
		Assertions:  len(scenario.Assertions),
		Valid:       true,
	}
	if opts.Format == "json" {
		return writeJSON(w, CLIResponse{Status: "ok", Data: report})
	}
	fmt.Fprintf(w, "✓ %s is valid (%d repetitions, %d monitors, %d assertions)\n",
		report.Name, report.Repetitions, report.Monitors, report.Assertions)
	return nil
}
