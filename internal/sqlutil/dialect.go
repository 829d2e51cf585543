// Package sqlutil holds the per-dialect rendering rules used when
// predicates and joins are built.
package sqlutil

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"github.com/lib/pq"
)

// Dialect captures the rendering differences between supported databases.
type Dialect struct {
	Name        string
	quote       func(string) string
	placeholder sq.PlaceholderFormat
	nativeILike bool
	jsonArrays  bool
}

var (
	// MySQL renders backtick identifiers, emulates ILIKE with LOWER and stores arrays as JSON.
	MySQL = &Dialect{
		Name:        "mysql",
		quote:       quoteWith("`"),
		placeholder: sq.Question,
		jsonArrays:  true,
	}
	// Postgres renders double-quoted identifiers, $n placeholders and native array operators.
	Postgres = &Dialect{
		Name:        "postgres",
		quote:       quoteWith(`"`),
		placeholder: sq.Dollar,
		nativeILike: true,
	}
)

// quoteWith returns a quoter wrapping names in q and doubling any q inside.
func quoteWith(q string) func(string) string {
	return func(name string) string {
		return q + strings.ReplaceAll(name, q, q+q) + q
	}
}

// DialectByName returns the dialect registered under name.
func DialectByName(name string) (*Dialect, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "mysql", "tidb":
		return MySQL, nil
	case "postgres", "postgresql", "pg":
		return Postgres, nil
	default:
		return nil, fmt.Errorf("unsupported SQL dialect %q", name)
	}
}

// Quote quotes an identifier for this dialect.
func (d *Dialect) Quote(name string) string {
	return d.quote(name)
}

// Qualify returns qualifier.column with the column quoted. The qualifier is expected
// to be quoted already.
func (d *Dialect) Qualify(qualifier, column string) string {
	if qualifier == "" {
		return d.quote(column)
	}
	return qualifier + "." + d.quote(column)
}

// Placeholder returns the placeholder format for final statements.
func (d *Dialect) Placeholder() sq.PlaceholderFormat {
	return d.placeholder
}

// ILike renders a case-insensitive pattern match.
func (d *Dialect) ILike(expr string, value any) sq.Sqlizer {
	if d.nativeILike {
		return sq.ILike{expr: value}
	}
	return sq.Expr(fmt.Sprintf("LOWER(%s) LIKE LOWER(?)", expr), value)
}

// ArrayValue converts a Go slice into a bind value for an array column.
func (d *Dialect) ArrayValue(value any) (any, error) {
	if value == nil {
		return nil, nil
	}
	if kind := reflect.TypeOf(value).Kind(); kind != reflect.Slice && kind != reflect.Array {
		return nil, fmt.Errorf("array value must be a list, got %T", value)
	}
	if d.jsonArrays {
		encoded, err := json.Marshal(value)
		if err != nil {
			return nil, fmt.Errorf("encode array value: %w", err)
		}
		return string(encoded), nil
	}
	return pq.Array(value), nil
}

func (d *Dialect) arrayParam() string {
	if d.jsonArrays {
		return "CAST(? AS JSON)"
	}
	return "?"
}

// ArrayCompare renders expr <op> value for an array column.
func (d *Dialect) ArrayCompare(expr, op string, value any) (sq.Sqlizer, error) {
	v, err := d.ArrayValue(value)
	if err != nil {
		return nil, err
	}
	if v == nil {
		if op == "=" {
			return sq.Eq{expr: nil}, nil
		}
		return sq.NotEq{expr: nil}, nil
	}
	return sq.Expr(fmt.Sprintf("%s %s %s", expr, op, d.arrayParam()), v), nil
}

// ArrayIn renders membership of an array column in a list of arrays.
func (d *Dialect) ArrayIn(expr string, values []any, negate bool) (sq.Sqlizer, error) {
	if len(values) == 0 {
		if negate {
			return sq.Expr("(1=1)"), nil
		}
		return sq.Expr("(1=0)"), nil
	}
	params := make([]string, len(values))
	args := make([]any, len(values))
	for i, value := range values {
		v, err := d.ArrayValue(value)
		if err != nil {
			return nil, err
		}
		params[i] = d.arrayParam()
		args[i] = v
	}
	op := "IN"
	if negate {
		op = "NOT IN"
	}
	return sq.Expr(fmt.Sprintf("%s %s (%s)", expr, op, strings.Join(params, ",")), args...), nil
}

// ArrayContains renders "expr contains every element of value".
func (d *Dialect) ArrayContains(expr string, value any) (sq.Sqlizer, error) {
	v, err := d.ArrayValue(value)
	if err != nil {
		return nil, err
	}
	if d.jsonArrays {
		return sq.Expr(fmt.Sprintf("JSON_CONTAINS(%s, CAST(? AS JSON))", expr), v), nil
	}
	return sq.Expr(expr+" @> ?", v), nil
}

// ArrayContainedBy renders "every element of expr is in value".
func (d *Dialect) ArrayContainedBy(expr string, value any) (sq.Sqlizer, error) {
	v, err := d.ArrayValue(value)
	if err != nil {
		return nil, err
	}
	if d.jsonArrays {
		return sq.Expr(fmt.Sprintf("JSON_CONTAINS(CAST(? AS JSON), %s)", expr), v), nil
	}
	return sq.Expr(expr+" <@ ?", v), nil
}

// ArrayOverlap renders "expr and value share at least one element".
func (d *Dialect) ArrayOverlap(expr string, value any) (sq.Sqlizer, error) {
	v, err := d.ArrayValue(value)
	if err != nil {
		return nil, err
	}
	if d.jsonArrays {
		return sq.Expr(fmt.Sprintf("JSON_OVERLAPS(%s, CAST(? AS JSON))", expr), v), nil
	}
	return sq.Expr(expr+" && ?", v), nil
}
