package search

import (
	"github.com/sarveshkapre/embeddb/pkg/errors"
	"github.com/sarveshkapre/embeddb/pkg/types"
)

// FilterOp enumerates the scalar comparison operators.
type FilterOp byte

const (
	OpEq FilterOp = iota
	OpNe
	OpLt
	OpLte
	OpGt
	OpGte
)

func (op FilterOp) String() string {
	switch op {
	case OpEq:
		return "eq"
	case OpNe:
		return "ne"
	case OpLt:
		return "lt"
	case OpLte:
		return "lte"
	case OpGt:
		return "gt"
	case OpGte:
		return "gte"
	default:
		return "unknown"
	}
}

// Condition is one clause of a filter: column op value.
type Condition struct {
	Column string
	Op     FilterOp
	Value  types.Value
}

// Filter is a conjunction of conditions; a row matches when every
// condition holds. An empty filter matches everything.
type Filter []Condition

// Matches evaluates the filter against a row payload. Integer
// literals compare against Float columns by promotion; string-vs-
// numeric and other cross-kind comparisons are an InvalidArgument.
func (f Filter) Matches(payload types.Payload) (bool, error) {
	for _, c := range f {
		ok, err := evalCondition(c, payload)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

func evalCondition(c Condition, payload types.Payload) (bool, error) {
	if c.Op > OpGte {
		return false, errors.InvalidArgument("bad filter op %d", c.Op)
	}

	col, present := payload[c.Column]
	if !present || col.IsNull() {
		// A null never satisfies a comparison; Ne against a concrete
		// value is the one op a missing column can pass.
		return c.Op == OpNe && !c.Value.IsNull(), nil
	}

	// Numeric columns compare numerically with int->float promotion.
	if isNumeric(col) && isNumeric(c.Value) {
		return compareOrdered(asFloat(col), asFloat(c.Value), c.Op), nil
	}

	if col.Kind != c.Value.Kind {
		return false, errors.InvalidArgument(
			"filter on %q compares %s against %s", c.Column, col.Kind.String(), c.Value.Kind.String())
	}

	switch col.Kind {
	case types.KindString:
		return compareOrdered(col.Str, c.Value.Str, c.Op), nil
	case types.KindBool:
		switch c.Op {
		case OpEq:
			return col.Bool == c.Value.Bool, nil
		case OpNe:
			return col.Bool != c.Value.Bool, nil
		default:
			return false, errors.InvalidArgument("filter op %s not valid for Bool column %q", c.Op, c.Column)
		}
	case types.KindBytes:
		switch c.Op {
		case OpEq:
			return col.Equal(c.Value), nil
		case OpNe:
			return !col.Equal(c.Value), nil
		default:
			return false, errors.InvalidArgument("filter op %s not valid for Bytes column %q", c.Op, c.Column)
		}
	default:
		return false, errors.InvalidArgument("filter on %q: unsupported value kind", c.Column)
	}
}

func isNumeric(v types.Value) bool {
	return v.Kind == types.KindInt64 || v.Kind == types.KindFloat64
}

func asFloat(v types.Value) float64 {
	if v.Kind == types.KindInt64 {
		return float64(v.Int)
	}
	return v.Float
}

func compareOrdered[T float64 | string](a, b T, op FilterOp) bool {
	switch op {
	case OpEq:
		return a == b
	case OpNe:
		return a != b
	case OpLt:
		return a < b
	case OpLte:
		return a <= b
	case OpGt:
		return a > b
	case OpGte:
		return a >= b
	default:
		return false
	}
}
