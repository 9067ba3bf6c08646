package cli

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"

	"cuelang.org/go/cue/cuecontext"
	cueyaml "cuelang.org/go/encoding/yaml"
	"gopkg.in/yaml.v3"
)

//go:embed scenario.cue
var scenarioSchema string

// Scenario is a declarative transition test definition.
// Scenarios drive the device through shell commands; the engine itself
// stays agnostic of how phases are expressed.
type Scenario struct {
	// Name uniquely identifies this scenario. Used as the test name, so it
	// must be a valid artifact-path component.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description,omitempty"`

	// OutputDir is where trace artifacts and the results database are
	// written. Defaults to "flick-out".
	OutputDir string `yaml:"output_dir,omitempty"`

	// Repetitions is how many times the transition is driven. Defaults
	// to 1.
	Repetitions int `yaml:"repetitions,omitempty"`

	// Device configures the shell-backed device handle.
	Device DeviceConfig `yaml:"device,omitempty"`

	// Monitors capture device state around the transition window.
	Monitors []MonitorConfig `yaml:"monitors,omitempty"`

	// Jank optionally configures a frame-jank counter.
	Jank *JankConfig `yaml:"jank,omitempty"`

	// Phase command lists. Each entry is one shell command.
	SetupOnce    []string `yaml:"setup_once,omitempty"`
	Setup        []string `yaml:"setup,omitempty"`
	Teardown     []string `yaml:"teardown,omitempty"`
	TeardownOnce []string `yaml:"teardown_once,omitempty"`

	// Transition is the command sequence monitors capture. Steps may run
	// a command, capture a tagged snapshot, or wait for device idle.
	Transition []TransitionStep `yaml:"transition"`

	// Assertions validate the captured traces.
	Assertions []AssertionConfig `yaml:"assertions,omitempty"`
}

// DeviceConfig configures the shell-backed device handle.
type DeviceConfig struct {
	// Shell is the command prefix every device call is run through,
	// e.g. ["adb", "shell"]. Defaults to ["/bin/sh", "-c"].
	Shell []string `yaml:"shell,omitempty"`

	// IdleProbe is a command that succeeds once the device is quiescent.
	IdleProbe string `yaml:"idle_probe,omitempty"`

	// IdleAttempts bounds the idle probe retries.
	IdleAttempts int `yaml:"idle_attempts,omitempty"`

	// IdleIntervalMs is the delay between idle probe attempts.
	IdleIntervalMs int `yaml:"idle_interval_ms,omitempty"`
}

// MonitorConfig configures one command-driven trace monitor.
type MonitorConfig struct {
	Name    string `yaml:"name"`
	Capture string `yaml:"capture"`
}

// JankConfig configures the frame-jank counter command.
// The command must print cumulative "total janky" frame counts.
type JankConfig struct {
	Counter string `yaml:"counter"`
}

// TransitionStep is one step of the transition phase.
// Exactly one of Run, Tag, or WaitIdle must be set.
type TransitionStep struct {
	Run      string `yaml:"run,omitempty"`
	Tag      string `yaml:"tag,omitempty"`
	WaitIdle bool   `yaml:"wait_idle,omitempty"`
}

// AssertionConfig is one declarative assertion.
type AssertionConfig struct {
	// Type selects the assertion:
	//   - snapshot_count: monitor captured exactly Count snapshots per run
	//   - state_contains: some snapshot of Monitor contains Substring
	//   - state_order: Substrings appear across Monitor's snapshots in order
	//   - tag_present: Tag was captured in every run
	//   - jank_below: janky frames do not exceed Max
	//   - runs_consistent: every run captured the same snapshot count
	Type string `yaml:"type"`

	// Name overrides the derived assertion name.
	Name string `yaml:"name,omitempty"`

	// Flaky excludes the assertion from the default pass.
	Flaky bool `yaml:"flaky,omitempty"`

	Monitor    string   `yaml:"monitor,omitempty"`
	Count      int      `yaml:"count,omitempty"`
	Substring  string   `yaml:"substring,omitempty"`
	Substrings []string `yaml:"substrings,omitempty"`
	Tag        string   `yaml:"tag,omitempty"`
	Max        int64    `yaml:"max,omitempty"`
}

// LoadScenario reads a scenario YAML file, validates it against the
// embedded CUE schema, and decodes it.
//
// Schema validation runs first so typos and type errors are reported with
// the schema's vocabulary; strict YAML decoding then catches anything the
// schema cannot express.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	if err := validateScenarioBytes(path, data); err != nil {
		return nil, err
	}

	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // Reject unknown fields (typos)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	applyDefaults(&scenario)
	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenarioBytes checks the raw YAML against the embedded schema.
func validateScenarioBytes(path string, data []byte) error {
	ctx := cuecontext.New()
	schema := ctx.CompileString(scenarioSchema)
	if err := schema.Err(); err != nil {
		return fmt.Errorf("internal: scenario schema is invalid: %w", err)
	}

	file, err := cueyaml.Extract(path, data)
	if err != nil {
		return fmt.Errorf("failed to parse YAML: %w", err)
	}
	value := ctx.BuildFile(file)
	if err := value.Err(); err != nil {
		return fmt.Errorf("failed to build scenario value: %w", err)
	}

	unified := schema.Unify(value)
	if err := unified.Validate(); err != nil {
		return fmt.Errorf("scenario does not match schema: %w", err)
	}
	return nil
}

// applyDefaults fills optional fields with their documented defaults.
func applyDefaults(s *Scenario) {
	if s.OutputDir == "" {
		s.OutputDir = "flick-out"
	}
	if s.Repetitions == 0 {
		s.Repetitions = 1
	}
	if len(s.Device.Shell) == 0 {
		s.Device.Shell = []string{"/bin/sh", "-c"}
	}
	if s.Device.IdleAttempts == 0 {
		s.Device.IdleAttempts = 5
	}
	if s.Device.IdleIntervalMs == 0 {
		s.Device.IdleIntervalMs = 100
	}
}

// validateScenario checks constraints the schema cannot express.
func validateScenario(s *Scenario) error {
	for i, step := range s.Transition {
		set := 0
		if step.Run != "" {
			set++
		}
		if step.Tag != "" {
			set++
		}
		if step.WaitIdle {
			set++
		}
		if set != 1 {
			return fmt.Errorf("transition[%d]: exactly one of run, tag, wait_idle is required", i)
		}
	}

	for i, a := range s.Assertions {
		if err := validateAssertionConfig(i, a); err != nil {
			return err
		}
	}

	if s.Jank == nil {
		for i, a := range s.Assertions {
			if a.Type == "jank_below" {
				return fmt.Errorf("assertions[%d]: jank_below requires a jank monitor", i)
			}
		}
	}
	return nil
}

// validateAssertionConfig checks per-type required fields.
func validateAssertionConfig(index int, a AssertionConfig) error {
	switch a.Type {
	case "snapshot_count":
		if a.Monitor == "" {
			return fmt.Errorf("assertions[%d]: monitor is required for snapshot_count", index)
		}
	case "state_contains":
		if a.Monitor == "" || a.Substring == "" {
			return fmt.Errorf("assertions[%d]: monitor and substring are required for state_contains", index)
		}
	case "state_order":
		if a.Monitor == "" || len(a.Substrings) < 2 {
			return fmt.Errorf("assertions[%d]: monitor and at least two substrings are required for state_order", index)
		}
	case "tag_present":
		if a.Tag == "" {
			return fmt.Errorf("assertions[%d]: tag is required for tag_present", index)
		}
	case "jank_below":
		// max may legitimately be zero: no jank allowed.
	case "runs_consistent":
		if a.Monitor == "" {
			return fmt.Errorf("assertions[%d]: monitor is required for runs_consistent", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
