package translate

import (
	"fmt"
	"strings"
	"sync"

	"github.com/google/cel-go/cel"

	"gridcore/pkg/domain"
)

// CEL expressions in manifests see three variables: fields (the record's
// field map), component (the record type), and id.
var newRuleCELEnv = sync.OnceValues(func() (*cel.Env, error) {
	return cel.NewEnv(
		cel.Variable("fields", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("component", cel.StringType),
		cel.Variable("id", cel.StringType),
		cel.CrossTypeNumericComparisons(true),
	)
})

var (
	filterProgramCache sync.Map
	getterProgramCache sync.Map
)

func compileRuleProgram(expr string, cache *sync.Map) (cel.Program, *cel.Type, error) {
	trimmed := strings.TrimSpace(expr)
	if trimmed == "" {
		return nil, nil, fmt.Errorf("expression required")
	}
	if cached, ok := cache.Load(trimmed); ok {
		entry := cached.(compiledProgram)
		return entry.program, entry.output, nil
	}
	env, err := newRuleCELEnv()
	if err != nil {
		return nil, nil, err
	}
	ast, issues := env.Compile(trimmed)
	if issues != nil && issues.Err() != nil {
		return nil, nil, fmt.Errorf("compile %q: %w", trimmed, issues.Err())
	}
	program, err := env.Program(ast)
	if err != nil {
		return nil, nil, err
	}
	cache.Store(trimmed, compiledProgram{program: program, output: ast.OutputType()})
	return program, ast.OutputType(), nil
}

type compiledProgram struct {
	program cel.Program
	output  *cel.Type
}

func celActivation(record domain.Record) map[string]any {
	fields := record.Fields
	if fields == nil {
		fields = map[string]any{}
	}
	return map[string]any{
		"fields":    fields,
		"component": record.Type,
		"id":        record.ID,
	}
}

// CompileFilter compiles a CEL expression into a rule filter. The expression
// must evaluate to a boolean; any other output type is a construction-time
// error.
func CompileFilter(expr string) (Filter, error) {
	program, output, err := compileRuleProgram(expr, &filterProgramCache)
	if err != nil {
		return nil, err
	}
	if output != cel.BoolType {
		return nil, fmt.Errorf("filter %q must evaluate to bool, got %s", strings.TrimSpace(expr), output)
	}
	return FilterFunc(func(record domain.Record) (bool, error) {
		out, _, err := program.Eval(celActivation(record))
		if err != nil {
			return false, fmt.Errorf("evaluate filter %q: %w", strings.TrimSpace(expr), err)
		}
		eligible, ok := out.Value().(bool)
		if !ok {
			return false, fmt.Errorf("filter %q returned %T, want bool", strings.TrimSpace(expr), out.Value())
		}
		return eligible, nil
	}), nil
}

// CompileGetter compiles a CEL expression into a derive getter. The
// expression's native result becomes the target field value.
func CompileGetter(expr string) (Getter, error) {
	program, _, err := compileRuleProgram(expr, &getterProgramCache)
	if err != nil {
		return nil, err
	}
	return func(record domain.Record) (any, error) {
		out, _, err := program.Eval(celActivation(record))
		if err != nil {
			return nil, fmt.Errorf("evaluate %q: %w", strings.TrimSpace(expr), err)
		}
		return out.Value(), nil
	}, nil
}
