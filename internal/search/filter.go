package search

import (
	"fmt"

	"github.com/google/cel-go/cel"

	"github.com/corvus-sec/intelgraph/internal/store/entity"
	"github.com/corvus-sec/intelgraph/internal/types"
)

// Filter is a compiled CEL predicate over search candidates. Expressions
// see the variables id, type, name, description (strings) and metadata
// (a map of dynamic values), e.g.:
//
//	type == "attack-pattern" && "windows" in metadata.x_mitre_platforms
type Filter struct {
	program cel.Program
	source  string
}

// CompileFilter compiles a CEL expression into a Filter. An empty
// expression returns a nil Filter, which matches everything.
func CompileFilter(expression string) (*Filter, error) {
	if expression == "" {
		return nil, nil
	}

	env, err := cel.NewEnv(
		cel.Variable("id", cel.StringType),
		cel.Variable("type", cel.StringType),
		cel.Variable("name", cel.StringType),
		cel.Variable("description", cel.StringType),
		cel.Variable("metadata", cel.MapType(cel.StringType, cel.DynType)),
	)
	if err != nil {
		return nil, types.WrapError(types.FILTER_COMPILE_FAIL, "failed to build filter environment", err)
	}

	ast, issues := env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, types.WrapError(types.FILTER_COMPILE_FAIL,
			fmt.Sprintf("invalid filter expression %q", expression), issues.Err())
	}
	if ast.OutputType() != cel.BoolType {
		return nil, types.NewError(types.FILTER_COMPILE_FAIL,
			fmt.Sprintf("filter expression %q must evaluate to a boolean, got %s", expression, ast.OutputType()))
	}

	program, err := env.Program(ast)
	if err != nil {
		return nil, types.WrapError(types.FILTER_COMPILE_FAIL, "failed to build filter program", err)
	}
	return &Filter{program: program, source: expression}, nil
}

// Matches evaluates the predicate against one candidate. Evaluation
// errors (missing metadata keys, type mismatches) exclude the candidate
// rather than failing the search.
func (f *Filter) Matches(c entity.Candidate) bool {
	if f == nil {
		return true
	}

	metadata := c.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}
	out, _, err := f.program.Eval(map[string]any{
		"id":          c.ID,
		"type":        c.Type,
		"name":        c.Name,
		"description": c.Description,
		"metadata":    metadata,
	})
	if err != nil {
		return false
	}
	keep, ok := out.Value().(bool)
	return ok && keep
}

// String returns the source expression.
func (f *Filter) String() string {
	if f == nil {
		return ""
	}
	return f.source
}
