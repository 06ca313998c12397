package corpus

import (
	"fmt"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
)

// Filter is a compiled CEL predicate over test cases.
//
// Expressions see the string variables id, name, category, grammar,
// length, variant, suite, input and expected, e.g.
//
//	suite == "adversarial" && category.startsWith("Typographical")
type Filter struct {
	expr    string
	program cel.Program
}

// CompileFilter type-checks expr. It must evaluate to a bool.
func CompileFilter(expr string) (*Filter, error) {
	env, err := cel.NewEnv(
		cel.Variable("id", cel.StringType),
		cel.Variable("name", cel.StringType),
		cel.Variable("category", cel.StringType),
		cel.Variable("grammar", cel.StringType),
		cel.Variable("length", cel.StringType),
		cel.Variable("variant", cel.StringType),
		cel.Variable("suite", cel.StringType),
		cel.Variable("input", cel.StringType),
		cel.Variable("expected", cel.StringType),
	)
	if err != nil {
		return nil, fmt.Errorf("create CEL environment: %w", err)
	}

	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, &Error{Code: ErrCodeFilter, Message: fmt.Sprintf("compile %q: %v", expr, issues.Err())}
	}
	if !ast.OutputType().IsExactType(cel.BoolType) {
		return nil, &Error{Code: ErrCodeFilter, Message: fmt.Sprintf("%q must return bool, got %v", expr, ast.OutputType())}
	}
	program, err := env.Program(ast)
	if err != nil {
		return nil, &Error{Code: ErrCodeFilter, Message: fmt.Sprintf("program %q: %v", expr, err)}
	}
	return &Filter{expr: expr, program: program}, nil
}

// String returns the source expression.
func (f *Filter) String() string {
	return f.expr
}

// Match evaluates the filter against tc.
func (f *Filter) Match(tc TestCase) (bool, error) {
	result, _, err := f.program.Eval(map[string]any{
		"id":       tc.ID,
		"name":     tc.Name,
		"category": tc.Category,
		"grammar":  tc.GrammarTag,
		"length":   string(tc.LengthClass),
		"variant":  string(tc.Variant),
		"suite":    string(tc.Suite),
		"input":    tc.InputText,
		"expected": tc.ExpectedOutput,
	})
	if err != nil {
		return false, &Error{Code: ErrCodeFilter, CaseID: tc.ID, Message: fmt.Sprintf("evaluate %q: %v", f.expr, err)}
	}
	if result.Type() != types.BoolType {
		return false, &Error{Code: ErrCodeFilter, CaseID: tc.ID, Message: fmt.Sprintf("%q returned %v, want bool", f.expr, result.Type())}
	}
	return result.Value().(bool), nil
}

// Apply returns the cases of r matching f. The first evaluation error
// aborts the filter.
func (f *Filter) Apply(r *Repository) (*Repository, error) {
	var evalErr error
	out := r.Filter(func(tc TestCase) bool {
		if evalErr != nil {
			return false
		}
		ok, err := f.Match(tc)
		if err != nil {
			evalErr = err
			return false
		}
		return ok
	})
	if evalErr != nil {
		return nil, evalErr
	}
	return out, nil
}
