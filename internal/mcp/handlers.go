package mcp

import (
	"context"
	"errors"
	"fmt"
	"time"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/nvandessel/cosim/internal/explore"
	"github.com/nvandessel/cosim/internal/params"
	"github.com/nvandessel/cosim/internal/pathutil"
	"github.com/nvandessel/cosim/internal/ratelimit"
	"github.com/nvandessel/cosim/internal/store"
)

const defaultRunsLimit = 20

// registerTools registers all cosim MCP tools with the server.
func (s *Server) registerTools() {
	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "cosim_validate",
		Description: "Validate a co-simulation parameter file and list every violation (path, value, constraint)",
	}, s.handleValidate)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "cosim_expand",
		Description: "Expand an exploration file into its parameter variants without running anything",
	}, s.handleExpand)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "cosim_runs",
		Description: "List recent runs from the run ledger, or show one run with its processes",
	}, s.handleRuns)
}

func (s *Server) handleValidate(ctx context.Context, req *sdk.CallToolRequest, args ValidateInput) (_ *sdk.CallToolResult, _ ValidateOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.audit.Record("cosim_validate", start, retErr, map[string]any{"path": args.Path})
	}()

	if err := ratelimit.CheckLimit(s.toolLimiters, "cosim_validate"); err != nil {
		return nil, ValidateOutput{}, err
	}
	if args.Path == "" {
		return nil, ValidateOutput{}, fmt.Errorf("path is required")
	}

	cfg, err := params.Load(args.Path)
	if err != nil {
		var verr *params.ValidationError
		if !errors.As(err, &verr) {
			return nil, ValidateOutput{}, err
		}
		return nil, ValidateOutput{
			Violations: violationOutputs(verr),
			Message:    fmt.Sprintf("%d violation(s) in %s", len(verr.Violations), pathutil.RedactPath(args.Path)),
		}, nil
	}

	return nil, ValidateOutput{
		Valid:   true,
		CoSim:   cfg.CoSimulationEnabled(),
		Regions: cfg.Regions(),
		Message: "Configuration is valid",
	}, nil
}

func (s *Server) handleExpand(ctx context.Context, req *sdk.CallToolRequest, args ExpandInput) (_ *sdk.CallToolResult, _ ExpandOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.audit.Record("cosim_expand", start, retErr, map[string]any{"path": args.Path})
	}()

	if err := ratelimit.CheckLimit(s.toolLimiters, "cosim_expand"); err != nil {
		return nil, ExpandOutput{}, err
	}
	if args.Path == "" {
		return nil, ExpandOutput{}, fmt.Errorf("path is required")
	}

	spec, err := explore.LoadSpec(args.Path)
	if err != nil {
		return nil, ExpandOutput{}, err
	}
	base, err := spec.LoadBase(false, nil)
	if err != nil {
		return nil, ExpandOutput{}, fmt.Errorf("loading base configuration: %w", err)
	}
	variants, err := explore.NewEngine(s.registry).Expand(base, spec)
	if err != nil {
		return nil, ExpandOutput{}, err
	}

	var invalid *explore.InvalidVariantsError
	if err := explore.Validate(variants); err != nil && !errors.As(err, &invalid) {
		return nil, ExpandOutput{}, err
	}

	out := ExpandOutput{
		Exploration: spec.Name,
		Count:       len(variants),
		Variants:    make([]VariantOutput, len(variants)),
	}
	for i, v := range variants {
		out.Variants[i] = VariantOutput{Name: v.Name, ResultPath: v.Config.ResultPath()}
		if invalid != nil {
			if verr, ok := invalid.Variants[v.Name]; ok {
				out.Variants[i].Violations = violationOutputs(verr)
				out.Invalid++
			}
		}
	}
	return nil, out, nil
}

func violationOutputs(verr *params.ValidationError) []ViolationOutput {
	out := make([]ViolationOutput, len(verr.Violations))
	for i, v := range verr.Violations {
		out[i] = ViolationOutput{Path: v.Path, Constraint: v.Constraint}
		if v.Value != nil {
			out[i].Value = fmt.Sprintf("%v", v.Value)
		}
	}
	return out
}

func (s *Server) handleRuns(ctx context.Context, req *sdk.CallToolRequest, args RunsInput) (_ *sdk.CallToolResult, _ RunsOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.audit.Record("cosim_runs", start, retErr, map[string]any{"limit": args.Limit, "id": args.ID})
	}()

	if err := ratelimit.CheckLimit(s.toolLimiters, "cosim_runs"); err != nil {
		return nil, RunsOutput{}, err
	}

	if args.ID != "" {
		run, err := s.runs.GetRun(ctx, args.ID)
		if err != nil {
			return nil, RunsOutput{}, err
		}
		return nil, RunsOutput{Runs: []RunOutput{toRunOutput(*run)}, Count: 1}, nil
	}

	limit := args.Limit
	if limit <= 0 {
		limit = defaultRunsLimit
	}
	runs, err := s.runs.ListRuns(ctx, limit)
	if err != nil {
		return nil, RunsOutput{}, fmt.Errorf("listing runs: %w", err)
	}
	out := RunsOutput{Runs: make([]RunOutput, len(runs)), Count: len(runs)}
	for i, r := range runs {
		out.Runs[i] = toRunOutput(r)
	}
	return nil, out, nil
}

func toRunOutput(r store.Run) RunOutput {
	out := RunOutput{
		ID:          r.ID,
		Exploration: r.Exploration,
		Combination: r.Combination,
		ResultPath:  r.ResultPath,
		Status:      r.Status,
		Error:       r.Error,
		StartedAt:   r.StartedAt,
		FinishedAt:  r.FinishedAt,
	}
	for _, p := range r.Processes {
		out.Processes = append(out.Processes, ProcessOutput{Name: p.Name, Group: p.Group, ExitCode: p.ExitCode, Error: p.Error})
	}
	return out
}
