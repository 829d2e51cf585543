package filterset

import (
	"strings"

	sq "github.com/Masterminds/squirrel"
)

type notExpr []sq.Sqlizer

// Not negates the conjunction of parts: NOT (a AND b), never (NOT a) AND (NOT b).
func Not(parts ...sq.Sqlizer) sq.Sqlizer {
	if len(parts) == 1 {
		if and, ok := parts[0].(sq.And); ok {
			return notExpr(and)
		}
	}
	return notExpr(parts)
}

func (n notExpr) ToSql() (string, []any, error) {
	sqls := make([]string, 0, len(n))
	var args []any
	for _, part := range n {
		s, a, err := part.ToSql()
		if err != nil {
			return "", nil, err
		}
		if s == "" {
			continue
		}
		sqls = append(sqls, s)
		args = append(args, a...)
	}
	if len(sqls) == 0 {
		return "", nil, nil
	}
	return "NOT (" + strings.Join(sqls, " AND ") + ")", args, nil
}

// conjunction joins predicates with AND, returning a lone predicate unchanged.
func conjunction(preds []sq.Sqlizer) sq.Sqlizer {
	switch len(preds) {
	case 0:
		return nil
	case 1:
		return preds[0]
	default:
		return sq.And(preds)
	}
}

// exists wraps a correlated sub-select.
func exists(sub sq.SelectBuilder) sq.Sqlizer {
	return sq.Expr("EXISTS (?)", sub)
}
