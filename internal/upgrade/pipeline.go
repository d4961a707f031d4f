package upgrade

import (
	"fmt"

	"gridcore/internal/version"
	"gridcore/pkg/outcome"
)

// ShallUpgrade decides whether step applies at the current version under the
// strategy. The result distinguishes three cases: ok(true) to run, ok(false)
// to skip, and a failure outcome when the strategy cannot parse one of the
// version tokens. The failure case is never folded into "skip"; an operator
// must be able to tell "step does not apply" from "cannot determine
// applicability".
func ShallUpgrade(step Step, current string, strategy version.Strategy) outcome.Outcome[bool] {
	if strategy == nil {
		strategy = version.Default()
	}
	applicable, err := version.Within(strategy, current, step.minVersion, step.maxVersion)
	if err != nil {
		return outcome.Errf[bool]("step %s: %w", step.name, err)
	}
	return outcome.OK(applicable)
}

// RunStep executes the step over data, passing the upgrade context only to
// steps constructed with one. Errors returned by the step body, and panics
// raised inside it, are converted into a failure outcome carrying
// "Failed {name}: {original error}"; a step never aborts the caller. On
// success the outcome wraps the step's return value.
func RunStep(step Step, data any, uctx Context) (result outcome.Outcome[any]) {
	defer func() {
		if r := recover(); r != nil {
			result = outcome.Errf[any]("Failed %s: %v", step.name, r)
		}
	}()
	var (
		transformed any
		err         error
	)
	if step.acceptsContext {
		transformed, err = step.ctxFn(data, uctx)
	} else {
		transformed, err = step.fn(data)
	}
	if err != nil {
		return outcome.Errf[any]("Failed %s: %w", step.name, err)
	}
	return outcome.OK(transformed)
}

// StepStatus classifies a step's fate within one pipeline run.
type StepStatus string

const (
	// StatusApplied marks a step that ran and succeeded.
	StatusApplied StepStatus = "applied"
	// StatusSkipped marks a step outside its applicability range.
	StatusSkipped StepStatus = "skipped"
	// StatusFailed marks a step that ran and failed.
	StatusFailed StepStatus = "failed"
	// StatusUndecided marks a step whose applicability could not be
	// determined.
	StatusUndecided StepStatus = "undecided"
)

// StepResult records one step's fate within a pipeline run.
type StepResult struct {
	Name          string     `json:"name"`
	TargetVersion string     `json:"target_version"`
	Status        StepStatus `json:"status"`
	Err           error      `json:"-"`
}

// Plan partitions candidate steps by applicability at the current version.
type Plan struct {
	Applicable []Step
	Skipped    []Step
	Undecided  []StepResult
}

// RunReport aggregates the fate of every candidate step plus the final
// payload.
type RunReport struct {
	Results []StepResult
	Data    any
}

// OK reports whether every candidate step either applied or was cleanly
// skipped.
func (r RunReport) OK() bool {
	for _, res := range r.Results {
		if res.Status == StatusFailed || res.Status == StatusUndecided {
			return false
		}
	}
	return true
}

// Failures returns the failed and undecided step results.
func (r RunReport) Failures() []StepResult {
	var out []StepResult
	for _, res := range r.Results {
		if res.Status == StatusFailed || res.Status == StatusUndecided {
			out = append(out, res)
		}
	}
	return out
}

// Applied returns the results of steps that ran and succeeded, in execution
// order.
func (r RunReport) Applied() []StepResult {
	var out []StepResult
	for _, res := range r.Results {
		if res.Status == StatusApplied {
			out = append(out, res)
		}
	}
	return out
}

// Pipeline filters steps by applicability and executes the applicable ones
// in declaration order. It never reorders steps, provides no rollback, and
// holds no locks; step idempotency is the author's concern.
type Pipeline struct {
	strategy version.Strategy
}

// PipelineOption customizes pipeline construction.
type PipelineOption func(*Pipeline)

// WithStrategy overrides the versioning strategy used for applicability
// decisions. The default is semantic versioning.
func WithStrategy(strategy version.Strategy) PipelineOption {
	return func(p *Pipeline) { p.strategy = strategy }
}

// NewPipeline constructs a pipeline.
func NewPipeline(opts ...PipelineOption) Pipeline {
	p := Pipeline{strategy: version.Default()}
	for _, opt := range opts {
		opt(&p)
	}
	return p
}

// Strategy returns the versioning strategy decisions are made with.
func (p Pipeline) Strategy() version.Strategy { return p.strategy }

func checkUniqueNames(steps []Step) error {
	seen := make(map[string]struct{}, len(steps))
	for _, step := range steps {
		if _, dup := seen[step.name]; dup {
			return fmt.Errorf("duplicate step name %q", step.name)
		}
		seen[step.name] = struct{}{}
	}
	return nil
}

// Plan partitions steps by applicability at current without executing
// anything. Steps whose applicability cannot be determined land in Undecided
// with the parse failure attached.
func (p Pipeline) Plan(current string, steps []Step) (Plan, error) {
	if err := checkUniqueNames(steps); err != nil {
		return Plan{}, err
	}
	var plan Plan
	for _, step := range steps {
		decision := ShallUpgrade(step, current, p.strategy)
		switch {
		case decision.IsErr():
			plan.Undecided = append(plan.Undecided, StepResult{
				Name:          step.name,
				TargetVersion: step.target,
				Status:        StatusUndecided,
				Err:           decision.Err(),
			})
		case decision.Value():
			plan.Applicable = append(plan.Applicable, step)
		default:
			plan.Skipped = append(plan.Skipped, step)
		}
	}
	return plan, nil
}

// Run executes the applicable steps in declaration order, chaining each
// success's output into the next step's input. A failed step is recorded
// and execution continues with the last good payload, so the original data
// survives when the first step fails. The error return covers invariant
// violations only (duplicate step names); per-step failures live in the
// report.
func (p Pipeline) Run(current string, steps []Step, data any, uctx Context) (RunReport, error) {
	if err := checkUniqueNames(steps); err != nil {
		return RunReport{}, err
	}
	report := RunReport{Data: data, Results: make([]StepResult, 0, len(steps))}
	for _, step := range steps {
		result := StepResult{Name: step.name, TargetVersion: step.target}
		decision := ShallUpgrade(step, current, p.strategy)
		if decision.IsErr() {
			result.Status = StatusUndecided
			result.Err = decision.Err()
			report.Results = append(report.Results, result)
			continue
		}
		if !decision.Value() {
			result.Status = StatusSkipped
			report.Results = append(report.Results, result)
			continue
		}
		executed := RunStep(step, report.Data, uctx)
		if executed.IsErr() {
			result.Status = StatusFailed
			result.Err = executed.Err()
			report.Results = append(report.Results, result)
			continue
		}
		report.Data = executed.Value()
		result.Status = StatusApplied
		report.Results = append(report.Results, result)
	}
	return report, nil
}
