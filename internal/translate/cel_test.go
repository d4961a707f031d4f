package translate

import (
	"strings"
	"testing"

	"gridcore/pkg/domain"
)

func TestCompileFilterEvaluates(t *testing.T) {
	filter, err := CompileFilter(`component == "bus" && fields.base_kv >= 100.0`)
	if err != nil {
		t.Fatalf("CompileFilter: %v", err)
	}
	eligible, err := filter.Eligible(domain.NewRecord("bus", map[string]any{"base_kv": 110.0}))
	if err != nil {
		t.Fatalf("Eligible: %v", err)
	}
	if !eligible {
		t.Fatalf("expected record to pass the filter")
	}
	eligible, err = filter.Eligible(domain.NewRecord("line", map[string]any{"base_kv": 110.0}))
	if err != nil {
		t.Fatalf("Eligible: %v", err)
	}
	if eligible {
		t.Fatalf("expected component mismatch to fail the filter")
	}
}

func TestCompileFilterRejectsNonBool(t *testing.T) {
	_, err := CompileFilter(`fields.base_kv`)
	if err == nil {
		t.Fatalf("expected output type error")
	}
	if !strings.Contains(err.Error(), "must evaluate to bool") {
		t.Fatalf("unexpected message: %q", err.Error())
	}
}

func TestCompileFilterRejectsMalformedExpression(t *testing.T) {
	if _, err := CompileFilter(`fields.base_kv >=`); err == nil {
		t.Fatalf("expected compile error")
	}
	if _, err := CompileFilter("   "); err == nil {
		t.Fatalf("expected error for empty expression")
	}
}

func TestCompileGetterEvaluates(t *testing.T) {
	getter, err := CompileGetter(`fields.r_ohm + fields.x_ohm`)
	if err != nil {
		t.Fatalf("CompileGetter: %v", err)
	}
	value, err := getter(domain.NewRecord("line", map[string]any{"r_ohm": 0.5, "x_ohm": 1.5}))
	if err != nil {
		t.Fatalf("getter: %v", err)
	}
	if value != 2.0 {
		t.Fatalf("unexpected derived value: %v", value)
	}
}

func TestCompileGetterMissingFieldReportsError(t *testing.T) {
	getter, err := CompileGetter(`fields.absent * 2.0`)
	if err != nil {
		t.Fatalf("CompileGetter: %v", err)
	}
	if _, err := getter(domain.NewRecord("line", map[string]any{})); err == nil {
		t.Fatalf("expected evaluation error for missing field")
	}
}

func TestCompiledProgramsAreCached(t *testing.T) {
	expr := `fields.cached_probe > 1.0`
	if _, err := CompileFilter(expr); err != nil {
		t.Fatalf("CompileFilter: %v", err)
	}
	if _, ok := filterProgramCache.Load(expr); !ok {
		t.Fatalf("expected compiled filter in cache")
	}
}
