package mcp

import "time"

// ValidateInput defines the input for the cosim_validate tool.
type ValidateInput struct {
	Path string `json:"path" jsonschema:"Parameter file (JSON or YAML) to validate"`
}

// ViolationOutput is one validation failure.
type ViolationOutput struct {
	Path       string `json:"path" jsonschema:"Dotted parameter path"`
	Value      string `json:"value,omitempty" jsonschema:"Offending value, if present"`
	Constraint string `json:"constraint" jsonschema:"Violated constraint"`
}

// ValidateOutput defines the output for the cosim_validate tool.
type ValidateOutput struct {
	Valid      bool              `json:"valid" jsonschema:"Whether the configuration is valid"`
	CoSim      bool              `json:"co_simulation" jsonschema:"Whether co-simulation is enabled"`
	Regions    []int             `json:"regions,omitempty" jsonschema:"Region ids simulated by the spiking simulator"`
	Violations []ViolationOutput `json:"violations,omitempty" jsonschema:"Every violation found"`
	Message    string            `json:"message" jsonschema:"Human-readable summary"`
}

// ExpandInput defines the input for the cosim_expand tool.
type ExpandInput struct {
	Path string `json:"path" jsonschema:"Exploration file (JSON or YAML)"`
}

// VariantOutput describes one expanded variant.
type VariantOutput struct {
	Name       string            `json:"name" jsonschema:"Combination name"`
	ResultPath string            `json:"result_path" jsonschema:"Result directory of the variant"`
	Violations []ViolationOutput `json:"violations,omitempty" jsonschema:"Validation violations; a variant with any is not launched"`
}

// ExpandOutput defines the output for the cosim_expand tool.
type ExpandOutput struct {
	Exploration string          `json:"exploration,omitempty" jsonschema:"Exploration name"`
	Count       int             `json:"count" jsonschema:"Number of variants"`
	Invalid     int             `json:"invalid" jsonschema:"Number of invalid variants; the exploration launches nothing while any remain"`
	Variants    []VariantOutput `json:"variants" jsonschema:"Variants in launch order"`
}

// RunsInput defines the input for the cosim_runs tool.
type RunsInput struct {
	Limit int    `json:"limit,omitempty" jsonschema:"Maximum number of runs (default 20)"`
	ID    string `json:"id,omitempty" jsonschema:"Return only this run, with its processes"`
}

// ProcessOutput is one process of a recorded run.
type ProcessOutput struct {
	Name     string `json:"name"`
	Group    string `json:"group"`
	ExitCode int    `json:"exit_code"`
	Error    string `json:"error,omitempty"`
}

// RunOutput is one ledger row.
type RunOutput struct {
	ID          string          `json:"id"`
	Exploration string          `json:"exploration,omitempty"`
	Combination string          `json:"combination,omitempty"`
	ResultPath  string          `json:"result_path"`
	Status      string          `json:"status"`
	Error       string          `json:"error,omitempty"`
	StartedAt   time.Time       `json:"started_at"`
	FinishedAt  *time.Time      `json:"finished_at,omitempty"`
	Processes   []ProcessOutput `json:"processes,omitempty"`
}

// RunsOutput defines the output for the cosim_runs tool.
type RunsOutput struct {
	Runs  []RunOutput `json:"runs"`
	Count int         `json:"count"`
}
