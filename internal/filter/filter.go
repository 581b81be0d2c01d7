// Package filter compiles tool-level filter sets into PostgREST predicates.
// A filter set maps column names to conditions; conditions combine
// conjunctively, so application order never changes the compiled result.
package filter

import (
	"github.com/GoodFinds/mcp-supabase/internal/supabase"
)

type Operator string

const (
	OpEq    Operator = "eq"
	OpNeq   Operator = "neq"
	OpGt    Operator = "gt"
	OpGte   Operator = "gte"
	OpLt    Operator = "lt"
	OpLte   Operator = "lte"
	OpLike  Operator = "like"
	OpIlike Operator = "ilike"
	OpIn    Operator = "in"
	OpIs    Operator = "is"
)

// Profile is the operator subset a verb accepts. Reads take the full set;
// mutations exclude the pattern and null operators.
type Profile int

const (
	ProfileQuery Profile = iota
	ProfileMutation
)

var queryOperators = map[Operator]struct{}{
	OpEq: {}, OpNeq: {}, OpGt: {}, OpGte: {}, OpLt: {}, OpLte: {},
	OpLike: {}, OpIlike: {}, OpIn: {}, OpIs: {},
}

var mutationOperators = map[Operator]struct{}{
	OpEq: {}, OpNeq: {}, OpGt: {}, OpGte: {}, OpLt: {}, OpLte: {},
	OpIn: {},
}

func (p Profile) allows(op Operator) bool {
	if p == ProfileMutation {
		_, ok := mutationOperators[op]
		return ok
	}
	_, ok := queryOperators[op]
	return ok
}

// Condition is a single column predicate: an operator and its operand.
type Condition struct {
	Operator Operator
	Value    any
}

// Parse normalizes a raw condition from tool input. A {operator, value}
// object becomes a structured condition; anything else is an equality test
// on the value itself.
func Parse(raw any) Condition {
	if obj, ok := raw.(map[string]any); ok {
		if op, ok := obj["operator"].(string); ok {
			return Condition{Operator: Operator(op), Value: obj["value"]}
		}
	}
	return Condition{Operator: OpEq, Value: raw}
}

// Apply compiles a filter set onto a builder as a conjunction of predicates.
// Operators outside the profile's set fall back to equality on the condition
// value rather than failing; a nil or empty set leaves the builder untouched.
func Apply(fb *supabase.FilterBuilder, filters map[string]any, profile Profile) *supabase.FilterBuilder {
	for column, raw := range filters {
		cond := Parse(raw)
		op := cond.Operator
		if !profile.allows(op) {
			op = OpEq
		}
		switch op {
		case OpEq:
			fb.Eq(column, cond.Value)
		case OpNeq:
			fb.Neq(column, cond.Value)
		case OpGt:
			fb.Gt(column, cond.Value)
		case OpGte:
			fb.Gte(column, cond.Value)
		case OpLt:
			fb.Lt(column, cond.Value)
		case OpLte:
			fb.Lte(column, cond.Value)
		case OpLike:
			fb.Like(column, cond.Value)
		case OpIlike:
			fb.Ilike(column, cond.Value)
		case OpIn:
			fb.In(column, cond.Value)
		case OpIs:
			fb.Is(column, cond.Value)
		}
	}
	return fb
}
