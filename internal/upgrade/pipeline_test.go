package upgrade

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"gridcore/internal/version"
)

func mustStep(t *testing.T, name string, fn Func, target string, opts ...StepOption) Step {
	t.Helper()
	step, err := NewStep(name, fn, target, TypeStore, opts...)
	if err != nil {
		t.Fatalf("NewStep(%s): %v", name, err)
	}
	return step
}

func TestShallUpgradeDecisionTable(t *testing.T) {
	cases := []struct {
		name    string
		opts    []StepOption
		current string
		want    bool
	}{
		{"below min", []StepOption{WithMinVersion("2.0")}, "1.5", false},
		{"above max", []StepOption{WithMaxVersion("5.0")}, "6.0", false},
		{"within bounds", []StepOption{WithMinVersion("1.0"), WithMaxVersion("4.0")}, "2.0", true},
		{"no bounds", nil, "0.0.1", true},
		{"at min", []StepOption{WithMinVersion("2.0")}, "2.0", true},
		{"at max", []StepOption{WithMaxVersion("5.0")}, "5.0", true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			step := mustStep(t, "probe", passthrough, "9.9.9", tc.opts...)
			decision := ShallUpgrade(step, tc.current, version.Default())
			if decision.IsErr() {
				t.Fatalf("unexpected failure outcome: %v", decision.Err())
			}
			if decision.Value() != tc.want {
				t.Fatalf("ShallUpgrade(current=%s) = %v, want %v", tc.current, decision.Value(), tc.want)
			}
		})
	}
}

func TestShallUpgradeUnparseableIsFailureNotSkip(t *testing.T) {
	step := mustStep(t, "probe", passthrough, "2.0.0", WithMinVersion("1.0.0"))
	decision := ShallUpgrade(step, "three-ish", version.Default())
	if !decision.IsErr() {
		t.Fatalf("unparseable version must be a failure outcome, got ok(%v)", decision.Value())
	}
	var parseErr *version.ParseError
	if !errors.As(decision.Err(), &parseErr) {
		t.Fatalf("failure should carry the parse error, got %v", decision.Err())
	}
}

func TestShallUpgradeUnparseableBoundIsFailure(t *testing.T) {
	step := mustStep(t, "probe", passthrough, "2.0.0", WithMinVersion("not-a-version"))
	if decision := ShallUpgrade(step, "1.0.0", version.Default()); !decision.IsErr() {
		t.Fatalf("unparseable bound must be a failure outcome")
	}
}

func TestShallUpgradeNilStrategyDefaults(t *testing.T) {
	step := mustStep(t, "probe", passthrough, "2.0.0", WithMinVersion("1.0.0"))
	if decision := ShallUpgrade(step, "1.5.0", nil); decision.IsErr() || !decision.Value() {
		t.Fatalf("nil strategy should fall back to semver, got %s", decision)
	}
}

func TestRunStepTransformsPayload(t *testing.T) {
	step := mustStep(t, "increment", func(data any) (any, error) {
		return data.(int) + 1, nil
	}, "2.0.0")
	result := RunStep(step, 41, nil)
	if result.IsErr() {
		t.Fatalf("unexpected failure: %v", result.Err())
	}
	if result.Value() != 42 {
		t.Fatalf("expected ok(42), got %s", result)
	}
}

func TestRunStepFailureMessage(t *testing.T) {
	cause := fmt.Errorf("column base_kv missing")
	step := mustStep(t, "rename-columns", func(any) (any, error) {
		return nil, cause
	}, "2.0.0")
	result := RunStep(step, nil, nil)
	if !result.IsErr() {
		t.Fatalf("expected failure outcome")
	}
	if got := result.Err().Error(); got != "Failed rename-columns: column base_kv missing" {
		t.Fatalf("unexpected failure message: %q", got)
	}
	if !errors.Is(result.Err(), cause) {
		t.Fatalf("failure should wrap the original error")
	}
}

func TestRunStepRecoversPanic(t *testing.T) {
	step := mustStep(t, "explosive", func(any) (any, error) {
		panic("unexpected layout")
	}, "2.0.0")
	result := RunStep(step, nil, nil)
	if !result.IsErr() {
		t.Fatalf("panic must convert to failure outcome")
	}
	if !strings.Contains(result.Err().Error(), "Failed explosive") {
		t.Fatalf("unexpected message: %q", result.Err().Error())
	}
}

func TestRunStepContextPassthrough(t *testing.T) {
	var seen Context
	step, err := NewContextStep("with-context", func(data any, uctx Context) (any, error) {
		seen = uctx
		return data, nil
	}, "2.0.0", TypeStore)
	if err != nil {
		t.Fatalf("NewContextStep: %v", err)
	}
	uctx := Context{"dry_run": true, "operator": "test"}
	if result := RunStep(step, "payload", uctx); result.IsErr() {
		t.Fatalf("unexpected failure: %v", result.Err())
	}
	if seen["dry_run"] != true || seen["operator"] != "test" {
		t.Fatalf("context not passed through unchanged: %v", seen)
	}
}

func TestPlanPartitionsSteps(t *testing.T) {
	steps := []Step{
		mustStep(t, "old", passthrough, "1.5.0", WithMaxVersion("1.0.0")),
		mustStep(t, "due", passthrough, "2.0.0", WithMinVersion("1.0.0"), WithMaxVersion("1.9.9")),
		mustStep(t, "broken-bound", passthrough, "2.0.0", WithMinVersion("oops")),
	}
	plan, err := NewPipeline().Plan("1.2.0", steps)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if len(plan.Applicable) != 1 || plan.Applicable[0].Name() != "due" {
		t.Fatalf("unexpected applicable set: %+v", plan.Applicable)
	}
	if len(plan.Skipped) != 1 || plan.Skipped[0].Name() != "old" {
		t.Fatalf("unexpected skipped set: %+v", plan.Skipped)
	}
	if len(plan.Undecided) != 1 || plan.Undecided[0].Name != "broken-bound" || plan.Undecided[0].Err == nil {
		t.Fatalf("unexpected undecided set: %+v", plan.Undecided)
	}
}

func TestPlanRejectsDuplicateNames(t *testing.T) {
	steps := []Step{
		mustStep(t, "same", passthrough, "1.0.0"),
		mustStep(t, "same", passthrough, "2.0.0"),
	}
	if _, err := NewPipeline().Plan("1.0.0", steps); err == nil {
		t.Fatalf("expected duplicate name error")
	}
}

func TestRunChainsPayloadThroughSteps(t *testing.T) {
	steps := []Step{
		mustStep(t, "double", func(data any) (any, error) { return data.(int) * 2, nil }, "1.1.0"),
		mustStep(t, "add-one", func(data any) (any, error) { return data.(int) + 1, nil }, "1.2.0"),
	}
	report, err := NewPipeline().Run("1.0.0", steps, 20, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !report.OK() {
		t.Fatalf("expected clean run: %+v", report.Results)
	}
	if report.Data != 41 {
		t.Fatalf("expected chained payload 41, got %v", report.Data)
	}
	if len(report.Applied()) != 2 {
		t.Fatalf("expected both steps applied")
	}
}

func TestRunContinuesAfterFailureWithLastGoodPayload(t *testing.T) {
	steps := []Step{
		mustStep(t, "first", func(data any) (any, error) { return data.(string) + "+first", nil }, "1.1.0"),
		mustStep(t, "faulty", func(any) (any, error) { return nil, fmt.Errorf("bad shape") }, "1.2.0"),
		mustStep(t, "third", func(data any) (any, error) { return data.(string) + "+third", nil }, "1.3.0"),
	}
	report, err := NewPipeline().Run("1.0.0", steps, "orig", nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.OK() {
		t.Fatalf("expected failure recorded")
	}
	if report.Data != "orig+first+third" {
		t.Fatalf("failure must not corrupt the chained payload, got %v", report.Data)
	}
	failures := report.Failures()
	if len(failures) != 1 || failures[0].Name != "faulty" || failures[0].Status != StatusFailed {
		t.Fatalf("unexpected failures: %+v", failures)
	}
	if !strings.Contains(failures[0].Err.Error(), "Failed faulty") {
		t.Fatalf("unexpected failure message: %v", failures[0].Err)
	}
}

func TestRunPreservesOriginalWhenFirstStepFails(t *testing.T) {
	steps := []Step{
		mustStep(t, "only", func(any) (any, error) { return nil, fmt.Errorf("nope") }, "1.1.0"),
	}
	report, err := NewPipeline().Run("1.0.0", steps, "untouched", nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.Data != "untouched" {
		t.Fatalf("original payload must be preserved on failure, got %v", report.Data)
	}
}

func TestRunRecordsSkippedAndUndecided(t *testing.T) {
	steps := []Step{
		mustStep(t, "not-yet", passthrough, "9.0.0", WithMinVersion("8.0.0")),
		mustStep(t, "cannot-tell", passthrough, "2.0.0", WithMaxVersion("garbage")),
		mustStep(t, "runs", func(data any) (any, error) { return data.(int) + 1, nil }, "1.1.0"),
	}
	report, err := NewPipeline().Run("1.0.0", steps, 1, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	byName := map[string]StepResult{}
	for _, res := range report.Results {
		byName[res.Name] = res
	}
	if byName["not-yet"].Status != StatusSkipped {
		t.Fatalf("expected skip, got %+v", byName["not-yet"])
	}
	if byName["cannot-tell"].Status != StatusUndecided || byName["cannot-tell"].Err == nil {
		t.Fatalf("expected undecided with error, got %+v", byName["cannot-tell"])
	}
	if byName["runs"].Status != StatusApplied || report.Data != 2 {
		t.Fatalf("expected applied step to run, got %+v data=%v", byName["runs"], report.Data)
	}
	if report.OK() {
		t.Fatalf("undecided step must fail the report")
	}
}

func TestRunRejectsDuplicateNames(t *testing.T) {
	steps := []Step{
		mustStep(t, "dup", passthrough, "1.0.0"),
		mustStep(t, "dup", passthrough, "2.0.0"),
	}
	if _, err := NewPipeline().Run("1.0.0", steps, nil, nil); err == nil {
		t.Fatalf("expected duplicate name error")
	}
}

func TestRunWithCustomStrategy(t *testing.T) {
	pipeline := NewPipeline(WithStrategy(version.Semver{}))
	step := mustStep(t, "typed", func(data any) (any, error) { return data, nil }, "2.0.0", WithMinVersion("1"))
	report, err := pipeline.Run("1.5", []Step{step}, "x", nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !report.OK() || len(report.Applied()) != 1 {
		t.Fatalf("expected applied step, got %+v", report.Results)
	}
}
