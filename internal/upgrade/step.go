// Package upgrade implements the versioned migration pipeline: named steps
// gated by inclusive version ranges, an applicability decision that keeps
// "skip" distinguishable from "cannot tell", and uniform failure capture so
// a broken step never aborts the run.
package upgrade

import (
	"errors"
	"fmt"
	"strings"
)

// Type categorizes what a step operates on.
type Type string

const (
	// TypeStore marks a step that reshapes the persisted store as a whole.
	TypeStore Type = "store"
	// TypeComponent marks a step that rewrites individual component records.
	TypeComponent Type = "component"
)

func (t Type) valid() bool {
	switch t {
	case TypeStore, TypeComponent:
		return true
	}
	return false
}

// Context carries free-form cross-step information supplied by the host.
// Only steps constructed with NewContextStep receive it.
type Context map[string]any

// Func transforms an opaque payload.
type Func func(data any) (any, error)

// ContextFunc transforms an opaque payload with access to the shared
// upgrade context.
type ContextFunc func(data any, uctx Context) (any, error)

// ErrInvalidStep reports a step that fails construction validation.
var ErrInvalidStep = errors.New("invalid upgrade step")

// Step is a named, version-range-gated unit of migration logic. Steps are
// declared statically by plugins and never mutated after construction;
// whether a step receives the upgrade context is fixed at construction
// instead of inspected from its function signature.
type Step struct {
	name           string
	fn             Func
	ctxFn          ContextFunc
	target         string
	upgradeType    Type
	minVersion     string
	maxVersion     string
	acceptsContext bool
}

// StepOption customizes step construction.
type StepOption func(*Step)

// WithMinVersion sets the inclusive lower applicability bound.
func WithMinVersion(v string) StepOption {
	return func(s *Step) { s.minVersion = strings.TrimSpace(v) }
}

// WithMaxVersion sets the inclusive upper applicability bound.
func WithMaxVersion(v string) StepOption {
	return func(s *Step) { s.maxVersion = strings.TrimSpace(v) }
}

// NewStep constructs a step whose function takes the payload alone. Bound
// tokens are interpreted by the pipeline's versioning strategy at decision
// time; construction only validates that name, function, target version,
// and type are present and well formed.
func NewStep(name string, fn Func, targetVersion string, upgradeType Type, opts ...StepOption) (Step, error) {
	if fn == nil {
		return Step{}, fmt.Errorf("%w: step %q needs a function", ErrInvalidStep, name)
	}
	step := Step{name: strings.TrimSpace(name), fn: fn, target: strings.TrimSpace(targetVersion), upgradeType: upgradeType}
	return finishStep(step, opts)
}

// NewContextStep constructs a step whose function also receives the shared
// upgrade context.
func NewContextStep(name string, fn ContextFunc, targetVersion string, upgradeType Type, opts ...StepOption) (Step, error) {
	if fn == nil {
		return Step{}, fmt.Errorf("%w: step %q needs a function", ErrInvalidStep, name)
	}
	step := Step{name: strings.TrimSpace(name), ctxFn: fn, target: strings.TrimSpace(targetVersion), upgradeType: upgradeType, acceptsContext: true}
	return finishStep(step, opts)
}

func finishStep(step Step, opts []StepOption) (Step, error) {
	for _, opt := range opts {
		opt(&step)
	}
	if step.name == "" {
		return Step{}, fmt.Errorf("%w: name required", ErrInvalidStep)
	}
	if step.target == "" {
		return Step{}, fmt.Errorf("%w: step %q needs a target version", ErrInvalidStep, step.name)
	}
	if !step.upgradeType.valid() {
		return Step{}, fmt.Errorf("%w: step %q has unknown type %q", ErrInvalidStep, step.name, step.upgradeType)
	}
	return step, nil
}

// Name returns the step name, unique within a pipeline run.
func (s Step) Name() string { return s.name }

// TargetVersion returns the version the store conforms to once the step has
// been applied.
func (s Step) TargetVersion() string { return s.target }

// UpgradeType returns the step category.
func (s Step) UpgradeType() Type { return s.upgradeType }

// MinVersion returns the inclusive lower bound, empty when unbounded.
func (s Step) MinVersion() string { return s.minVersion }

// MaxVersion returns the inclusive upper bound, empty when unbounded.
func (s Step) MaxVersion() string { return s.maxVersion }

// AcceptsContext reports whether the step's function receives the shared
// upgrade context.
func (s Step) AcceptsContext() bool { return s.acceptsContext }
