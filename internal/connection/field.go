package connection

import (
	"context"
	"fmt"
	"slices"
	"strconv"

	sq "github.com/Masterminds/squirrel"
	"github.com/graphql-go/graphql"
	"go.opentelemetry.io/otel/attribute"

	"graphql-sqlfilter/internal/dbexec"
	"graphql-sqlfilter/internal/filterset"
	"graphql-sqlfilter/internal/model"
)

// Field is a connection field over one model.
type Field struct {
	factory   *Factory
	model     *model.Model
	filterSet *filterset.FilterSet
}

// Model returns the listed model.
func (fd *Field) Model() *model.Model { return fd.model }

// FilterSet returns the filter set bound to the filter argument, or nil.
func (fd *Field) FilterSet() *filterset.FilterSet { return fd.filterSet }

// GraphQL returns the field definition.
func (fd *Field) GraphQL() *graphql.Field {
	f := fd.factory
	f.mu.Lock()
	defer f.mu.Unlock()
	return &graphql.Field{
		Type:        f.connectionLocked(fd.model),
		Args:        fd.args(),
		Description: fmt.Sprintf("Lists %s rows.", fd.model.Name),
		Resolve:     fd.Resolve,
	}
}

// args must be called with the factory lock held.
func (fd *Field) args() graphql.FieldConfigArgument {
	f := fd.factory
	args := graphql.FieldConfigArgument{
		"sort": &graphql.ArgumentConfig{
			Type:        graphql.NewList(graphql.NewNonNull(f.sortEnumLocked(fd.model))),
			Description: "Sort order; defaults to the primary key.",
		},
		"first":  &graphql.ArgumentConfig{Type: graphql.Int, Description: fmt.Sprintf("Returns the first n edges (at most %d).", f.maxLimit)},
		"last":   &graphql.ArgumentConfig{Type: graphql.Int, Description: fmt.Sprintf("Returns the last n edges (at most %d).", f.maxLimit)},
		"after":  &graphql.ArgumentConfig{Type: graphql.String, Description: "Returns edges after this cursor."},
		"before": &graphql.ArgumentConfig{Type: graphql.String, Description: "Returns edges before this cursor."},
	}
	if fd.filterSet != nil {
		args[f.filterArg] = &graphql.ArgumentConfig{Type: fd.filterSet.Type()}
	}
	return args
}

// typeName is the node type name cursors are bound to.
func (fd *Field) typeName() string {
	return fd.factory.Node(fd.model).Name()
}

// GetQuery builds the query a connection page is sliced from: all rows of
// the model, the default filter and the filter argument applied, then sorted.
func (fd *Field) GetQuery(ctx context.Context, args map[string]any) (*filterset.Query, error) {
	q, err := fd.filtered(ctx, args)
	if err != nil {
		return nil, err
	}
	sorts, err := fd.sorting(args)
	if err != nil {
		return nil, err
	}
	return fd.order(q, sorts), nil
}

func (fd *Field) filtered(ctx context.Context, args map[string]any) (*filterset.Query, error) {
	q := filterset.NewQuery(fd.model, fd.factory.dialect)
	if fd.filterSet == nil {
		return q, nil
	}
	var tree map[string]any
	if raw, ok := args[fd.factory.filterArg]; ok && raw != nil {
		if tree, ok = raw.(map[string]any); !ok {
			return nil, fmt.Errorf("%s: expected an object, got %T", fd.factory.filterArg, raw)
		}
	}
	return fd.filterSet.Filter(ctx, q, tree)
}

// sorting returns the requested order, or the primary key ascending.
func (fd *Field) sorting(args map[string]any) ([]sortValue, error) {
	var sorts []sortValue
	switch raw := args["sort"].(type) {
	case nil:
	case sortValue:
		sorts = append(sorts, raw)
	case []any:
		for _, item := range raw {
			s, ok := item.(sortValue)
			if !ok {
				return nil, fmt.Errorf("sort: unexpected value %v", item)
			}
			sorts = append(sorts, s)
		}
	default:
		return nil, fmt.Errorf("sort: unexpected value %v", raw)
	}
	if len(sorts) > 0 {
		return sorts, nil
	}
	for _, col := range fd.model.PrimaryKey() {
		sorts = append(sorts, sortValue{attr: col.Name})
	}
	return sorts, nil
}

// order appends ORDER BY for sorts, then the remaining primary key columns
// so offsets are stable.
func (fd *Field) order(q *filterset.Query, sorts []sortValue) *filterset.Query {
	exprs := make([]string, 0, len(sorts))
	seen := make([]string, 0, len(sorts))
	for _, s := range sorts {
		dir := " ASC"
		if s.desc {
			dir = " DESC"
		}
		exprs = append(exprs, q.Col(s.attr)+dir)
		seen = append(seen, s.attr)
	}
	for _, col := range fd.model.PrimaryKey() {
		if !slices.Contains(seen, col.Name) {
			exprs = append(exprs, q.Col(col.Name)+" ASC")
		}
	}
	if len(exprs) == 0 {
		return q
	}
	return q.OrderBy(exprs...)
}

// Resolve lists one page of rows.
func (fd *Field) Resolve(p graphql.ResolveParams) (any, error) {
	ctx, span := startSpan(p.Context, "connection.resolve",
		attribute.String("connection.model", fd.model.Name),
	)
	out, err := fd.resolve(ctx, p.Args)
	finishSpan(span, err)
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (fd *Field) resolve(ctx context.Context, args map[string]any) (map[string]any, error) {
	q, err := fd.filtered(ctx, args)
	if err != nil {
		return nil, err
	}
	sorts, err := fd.sorting(args)
	if err != nil {
		return nil, err
	}
	typeName, key := fd.typeName(), sortKey(sorts)
	pg, err := fd.factory.parsePage(args, typeName, key)
	if err != nil {
		return nil, err
	}

	total, err := fd.count(ctx, q)
	if err != nil {
		return nil, err
	}
	w := pg.window(total)

	var rows []map[string]any
	if w.end > w.start {
		limit := uint64(w.end - w.start)
		q = fd.order(q, sorts)
		q = q.WithBuilder(q.Builder().Limit(limit).Offset(uint64(w.start)))
		query, queryArgs, err := q.ToSql()
		if err != nil {
			return nil, fmt.Errorf("failed to build %s query: %w", fd.model.Name, err)
		}
		rows, err = dbexec.Query(ctx, fd.factory.exec, columnNames(fd.model), query, queryArgs...)
		if err != nil {
			return nil, fmt.Errorf("failed to list %s: %w", fd.model.Name, err)
		}
	}
	return result(rows, w, total, typeName, key), nil
}

func (fd *Field) count(ctx context.Context, q *filterset.Query) (int, error) {
	query, args, err := sq.Select("COUNT(*)").
		FromSelect(q.Builder(), "__count").
		PlaceholderFormat(q.Dialect().Placeholder()).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("failed to build %s count: %w", fd.model.Name, err)
	}
	rows, err := dbexec.Query(ctx, fd.factory.exec, []string{"count"}, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", fd.model.Name, err)
	}
	if len(rows) == 0 {
		return 0, nil
	}
	return toInt(rows[0]["count"])
}

func toInt(v any) (int, error) {
	switch n := v.(type) {
	case int64:
		return int(n), nil
	case int:
		return n, nil
	case int32:
		return int(n), nil
	case uint64:
		return int(n), nil
	case float64:
		return int(n), nil
	case string:
		out, err := strconv.Atoi(n)
		if err != nil {
			return 0, fmt.Errorf("unexpected count %q", n)
		}
		return out, nil
	default:
		return 0, fmt.Errorf("unexpected count %v (%T)", v, v)
	}
}

// columnNames pairs with the select list of filterset.NewQuery.
func columnNames(m *model.Model) []string {
	cols := m.Columns()
	names := make([]string, len(cols))
	for i, col := range cols {
		names[i] = col.Name
	}
	return names
}
