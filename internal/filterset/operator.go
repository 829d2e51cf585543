package filterset

import (
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/graphql-go/graphql"

	"graphql-sqlfilter/internal/sqltype"
	"graphql-sqlfilter/internal/sqlutil"
)

// Built-in operator names.
const (
	OpEq          = "eq"
	OpNe          = "ne"
	OpLike        = "like"
	OpILike       = "ilike"
	OpIsNull      = "is_null"
	OpIn          = "in"
	OpNotIn       = "not_in"
	OpLt          = "lt"
	OpLte         = "lte"
	OpGt          = "gt"
	OpGte         = "gte"
	OpRange       = "range"
	OpContains    = "contains"
	OpContainedBy = "contained_by"
	OpOverlap     = "overlap"

	OpAnd = "and"
	OpOr  = "or"
	OpNot = "not"
)

// Range input keys.
const (
	RangeBegin = "begin"
	RangeEnd   = "end"
)

const delimiter = "_"

// Field is the column-like target an operator is applied to.
type Field struct {
	// Name is the model attribute name.
	Name string
	// Expr is the qualified SQL expression for the attribute.
	Expr     string
	Type     *sqltype.Type
	Nullable bool
	Dialect  *sqlutil.Dialect
}

// ApplyFunc builds a predicate for a field and an input value.
type ApplyFunc func(f Field, value any) (sq.Sqlizer, error)

// InputTypeFunc builds the GraphQL input type of an operator's field from the
// attribute's own input type.
type InputTypeFunc func(types *TypeRegistry, base graphql.Input, nullable bool, description string) graphql.Input

// Operator is a named comparison applicable to one or more attribute types.
type Operator struct {
	Name string
	// RenderName is appended to the attribute name to build the external key.
	// The empty render name marks the default operator.
	RenderName string
	Apply      ApplyFunc
	// InputType is optional; the attribute's own type is used when nil.
	InputType   InputTypeFunc
	Description string
	// ForTypes adds the operator to the allowed list of each type.
	ForTypes []*sqltype.Type
}

func isComposition(name string) bool {
	return name == OpAnd || name == OpOr || name == OpNot
}

// Key builds the external filter key for an attribute and operator.
func (o *Operator) Key(attr string) string {
	if o.RenderName == "" {
		return attr
	}
	return attr + delimiter + o.RenderName
}

func builtinOperators() []Operator {
	return []Operator{
		{Name: OpEq, RenderName: "", Apply: applyEq, Description: "Exact match."},
		{Name: OpNe, RenderName: "ne", Apply: applyNe, Description: "Not match."},
		{Name: OpLike, RenderName: "like", Apply: applyLike, Description: "Case-sensitive containment test."},
		{Name: OpILike, RenderName: "ilike", Apply: applyILike, Description: "Case-insensitive containment test."},
		{Name: OpIsNull, RenderName: "is_null", Apply: applyIsNull, InputType: booleanInput, Description: "Takes either `true` or `false`."},
		{Name: OpIn, RenderName: "in", Apply: applyIn, InputType: listInput, Description: "In a given list."},
		{Name: OpNotIn, RenderName: "not_in", Apply: applyNotIn, InputType: listInput, Description: "Not in a given list."},
		{Name: OpLt, RenderName: "lt", Apply: compare("<", func(e string, v any) sq.Sqlizer { return sq.Lt{e: v} }), Description: "Less than."},
		{Name: OpLte, RenderName: "lte", Apply: compare("<=", func(e string, v any) sq.Sqlizer { return sq.LtOrEq{e: v} }), Description: "Less than or equal to."},
		{Name: OpGt, RenderName: "gt", Apply: compare(">", func(e string, v any) sq.Sqlizer { return sq.Gt{e: v} }), Description: "Greater than."},
		{Name: OpGte, RenderName: "gte", Apply: compare(">=", func(e string, v any) sq.Sqlizer { return sq.GtOrEq{e: v} }), Description: "Greater than or equal to."},
		{Name: OpRange, RenderName: "range", Apply: applyRange, InputType: rangeInput, Description: "Selects values within a given range."},
		{
			Name: OpContains, RenderName: "contains", Apply: applyContains,
			Description: "Elements are a superset of the elements of the argument array expression.",
		},
		{
			Name: OpContainedBy, RenderName: "contained_by", Apply: applyContainedBy,
			Description: "Elements are a proper subset of the elements of the argument array expression.",
		},
		{
			Name: OpOverlap, RenderName: "overlap", Apply: applyOverlap,
			Description: "Array has elements in common with an argument array expression.",
		},
		{Name: OpAnd, RenderName: "and", Description: "Conjunction of filters joined by ``AND``."},
		{Name: OpOr, RenderName: "or", Description: "Conjunction of filters joined by ``OR``."},
		{Name: OpNot, RenderName: "not", Description: "Negation of filters."},
	}
}

var (
	ordered  = []string{OpEq, OpLt, OpLte, OpGt, OpGte, OpNe, OpIn, OpNotIn, OpRange}
	textual  = []string{OpEq, OpNe, OpLike, OpILike, OpIn, OpNotIn}
	identity = []string{OpEq, OpNe, OpIn, OpNotIn}
)

func builtinAllowed() map[*sqltype.Type][]string {
	return map[*sqltype.Type][]string{
		sqltype.Boolean:  {OpEq, OpNe},
		sqltype.Date:     ordered,
		sqltype.Time:     ordered,
		sqltype.DateTime: ordered,
		sqltype.Integer:  ordered,
		sqltype.Numeric:  ordered,
		sqltype.String:   textual,
		sqltype.TSVector: textual,
		sqltype.UUID:     identity,
		sqltype.INET:     identity,
		sqltype.CIDR:     identity,
		sqltype.JSON:     identity,
		sqltype.HSTORE:   identity,
		sqltype.Array:    {OpEq, OpNe, OpIn, OpNotIn, OpLt, OpLte, OpGt, OpGte, OpContains, OpContainedBy, OpOverlap},
	}
}

func isArray(f Field) bool {
	return f.Type != nil && f.Type.IsArray()
}

func applyEq(f Field, value any) (sq.Sqlizer, error) {
	if isArray(f) {
		return f.Dialect.ArrayCompare(f.Expr, "=", value)
	}
	if _, ok := value.([]any); ok {
		return nil, fmt.Errorf("%w: %s expects a single value", ErrInvalidValue, f.Name)
	}
	return sq.Eq{f.Expr: value}, nil
}

func applyNe(f Field, value any) (sq.Sqlizer, error) {
	if isArray(f) {
		return f.Dialect.ArrayCompare(f.Expr, "<>", value)
	}
	if _, ok := value.([]any); ok {
		return nil, fmt.Errorf("%w: %s expects a single value", ErrInvalidValue, f.Name)
	}
	return sq.NotEq{f.Expr: value}, nil
}

func applyLike(f Field, value any) (sq.Sqlizer, error) {
	return sq.Like{f.Expr: value}, nil
}

func applyILike(f Field, value any) (sq.Sqlizer, error) {
	return f.Dialect.ILike(f.Expr, value), nil
}

func applyIsNull(f Field, value any) (sq.Sqlizer, error) {
	isNull, ok := value.(bool)
	if !ok {
		return nil, fmt.Errorf("%w: %s_is_null expects a boolean", ErrInvalidValue, f.Name)
	}
	if isNull {
		return sq.Eq{f.Expr: nil}, nil
	}
	return sq.NotEq{f.Expr: nil}, nil
}

func listValue(f Field, value any) ([]any, error) {
	switch v := value.(type) {
	case []any:
		return v, nil
	case []string:
		out := make([]any, len(v))
		for i := range v {
			out[i] = v[i]
		}
		return out, nil
	case []int:
		out := make([]any, len(v))
		for i := range v {
			out[i] = v[i]
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: %s expects a list, got %T", ErrInvalidValue, f.Name, value)
	}
}

func applyIn(f Field, value any) (sq.Sqlizer, error) {
	values, err := listValue(f, value)
	if err != nil {
		return nil, err
	}
	if isArray(f) {
		return f.Dialect.ArrayIn(f.Expr, values, false)
	}
	return sq.Eq{f.Expr: values}, nil
}

func applyNotIn(f Field, value any) (sq.Sqlizer, error) {
	values, err := listValue(f, value)
	if err != nil {
		return nil, err
	}
	if isArray(f) {
		return f.Dialect.ArrayIn(f.Expr, values, true)
	}
	return sq.NotEq{f.Expr: values}, nil
}

// compare builds an ordering comparison; array columns go through the dialect.
func compare(op string, build func(expr string, value any) sq.Sqlizer) ApplyFunc {
	return func(f Field, value any) (sq.Sqlizer, error) {
		if isArray(f) {
			return f.Dialect.ArrayCompare(f.Expr, op, value)
		}
		return build(f.Expr, value), nil
	}
}

func applyRange(f Field, value any) (sq.Sqlizer, error) {
	bounds, ok := value.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: %s_range expects {begin, end}", ErrInvalidValue, f.Name)
	}
	begin, hasBegin := bounds[RangeBegin]
	end, hasEnd := bounds[RangeEnd]
	if !hasBegin || !hasEnd {
		return nil, fmt.Errorf("%w: %s_range requires both begin and end", ErrInvalidValue, f.Name)
	}
	return sq.Expr(f.Expr+" BETWEEN ? AND ?", begin, end), nil
}

func applyContains(f Field, value any) (sq.Sqlizer, error) {
	return f.Dialect.ArrayContains(f.Expr, value)
}

func applyContainedBy(f Field, value any) (sq.Sqlizer, error) {
	return f.Dialect.ArrayContainedBy(f.Expr, value)
}

func applyOverlap(f Field, value any) (sq.Sqlizer, error) {
	return f.Dialect.ArrayOverlap(f.Expr, value)
}

func booleanInput(_ *TypeRegistry, _ graphql.Input, _ bool, _ string) graphql.Input {
	return graphql.Boolean
}

func listInput(_ *TypeRegistry, base graphql.Input, nullable bool, _ string) graphql.Input {
	if _, isList := base.(*graphql.List); isList {
		return graphql.NewList(base)
	}
	if nullable {
		return graphql.NewList(base)
	}
	return graphql.NewList(graphql.NewNonNull(base))
}

func rangeInput(types *TypeRegistry, base graphql.Input, _ bool, description string) graphql.Input {
	return types.rangeType(base, description)
}
