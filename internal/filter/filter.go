// Package filter compiles the user-supplied filter, pre-filter, and having
// expressions into closed predicates. The expression language is
// deliberately restricted to comparisons, boolean connectives, arithmetic,
// and field references; it is never a general-purpose code evaluator.
package filter

import (
	"fmt"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// Predicate is a compiled boolean expression over named fields.
// A nil *Predicate accepts everything.
type Predicate struct {
	src  string
	prog *vm.Program
}

// Compile parses and typechecks the expression once, up front. A compile
// failure is a configuration error, unlike per-record evaluation failures.
func Compile(src string) (*Predicate, error) {
	if src == "" {
		return nil, nil
	}
	// The builtin count() would otherwise shadow the count aggregate field
	// in having expressions.
	prog, err := expr.Compile(src,
		expr.AsBool(),
		expr.AllowUndefinedVariables(),
		expr.DisableBuiltin("count"),
	)
	if err != nil {
		return nil, fmt.Errorf("compiling expression %q: %w", src, err)
	}
	return &Predicate{src: src, prog: prog}, nil
}

// Allow evaluates the predicate against the given fields. Evaluation errors
// exclude the record or group, never escalate.
func (p *Predicate) Allow(fields map[string]any) bool {
	if p == nil {
		return true
	}
	out, err := expr.Run(p.prog, fields)
	if err != nil {
		return false
	}
	keep, ok := out.(bool)
	return ok && keep
}

// String returns the source expression, for debug tracing.
func (p *Predicate) String() string {
	if p == nil {
		return ""
	}
	return p.src
}

// LineEnv builds the environment for a pre-filter expression, which sees
// only the raw line text.
func LineEnv(line string) map[string]any {
	return map[string]any{"line": line}
}
