package filterset

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"graphql-sqlfilter/internal/model"
	"graphql-sqlfilter/internal/naming"
	"graphql-sqlfilter/internal/sqlutil"
)

const tracerName = "graphql-sqlfilter/filterset"

// Filter applies the default filter and the filter tree to q. Each top-level
// key contributes one WHERE predicate; and/or/not nest. Every call starts a
// new alias cache, which is also attached to the request scope in ctx.
func (fs *FilterSet) Filter(ctx context.Context, q *Query, tree map[string]any) (*Query, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "filterset.filter", trace.WithAttributes(
		attribute.String("filterset.name", fs.name),
		attribute.Int("filterset.keys", len(tree)),
	))
	defer span.End()
	start := time.Now()

	out, err := fs.filter(ctx, q, tree)
	if fs.metrics != nil {
		fs.metrics.RecordTranslation(ctx, fs.name, time.Since(start), err)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return out, nil
}

func (fs *FilterSet) filter(ctx context.Context, q *Query, tree map[string]any) (*Query, error) {
	if fs.model == nil {
		return nil, fmt.Errorf("%w: %s is abstract", ErrModelNotSpecified, fs.name)
	}
	if q.model != fs.model {
		return nil, fmt.Errorf("filter set %s cannot filter a query over %s", fs.name, q.model.Name)
	}

	q = q.withFreshAliases()
	if scope, ok := ScopeFromContext(ctx); ok {
		scope.SetAliasCache(q.aliases)
	}

	if fs.defaultFilter != nil {
		next, pred, err := fs.defaultFilter(ctx, q)
		if err != nil {
			return nil, fmt.Errorf("default filter of %s: %w", fs.name, err)
		}
		if next != nil {
			q = next
		}
		if pred != nil {
			q = q.Where(pred)
		}
	}

	t := &translator{ctx: ctx, fs: fs, d: q.dialect}
	q, preds, err := t.many(q, fs.root, q.qualifier, tree)
	if err != nil {
		return nil, err
	}
	for _, pred := range preds {
		q = q.Where(pred)
	}
	return q, nil
}

type translator struct {
	ctx context.Context
	fs  *FilterSet
	d   *sqlutil.Dialect
}

// many translates every key of tree in sorted order, skipping keys that
// produce nothing.
func (t *translator) many(q *Query, n *node, qualifier string, tree map[string]any) (*Query, []sq.Sqlizer, error) {
	keys := make([]string, 0, len(tree))
	for key := range tree {
		keys = append(keys, key)
	}
	slices.Sort(keys)

	var preds []sq.Sqlizer
	for _, key := range keys {
		next, pred, err := t.one(q, n, qualifier, key, tree[key])
		if err != nil {
			return nil, nil, err
		}
		q = next
		if pred != nil {
			preds = append(preds, pred)
		}
	}
	return q, preds, nil
}

func (t *translator) one(q *Query, n *node, qualifier, key string, value any) (*Query, sq.Sqlizer, error) {
	if n == t.fs.root {
		if cf, ok := t.fs.customs[key]; ok {
			next, pred, err := cf.Apply(t.ctx, q, value)
			if err != nil {
				return nil, nil, translateErr(key, err)
			}
			if next == nil {
				next = q
			}
			return next, pred, nil
		}
	}

	switch key {
	case n.registry.RenderName(OpAnd):
		return t.list(q, n, qualifier, key, value, false)
	case n.registry.RenderName(OpOr):
		return t.list(q, n, qualifier, key, value, true)
	case n.registry.RenderName(OpNot):
		sub, ok := value.(map[string]any)
		if !ok {
			return nil, nil, translateErr(key, fmt.Errorf("%w: expected an object, got %T", ErrInvalidValue, value))
		}
		q, preds, err := t.many(q, n, qualifier, sub)
		if err != nil || len(preds) == 0 {
			return q, nil, err
		}
		return q, Not(preds...), nil
	}

	if rel, ok := n.relations[key]; ok {
		return t.relation(q, n, qualifier, key, rel, value)
	}

	d, ok := n.filters[key]
	if !ok {
		attr, op, err := n.registry.Split(key)
		if err != nil {
			return nil, nil, err
		}
		d = descriptor{attr: attr, op: op}
	}
	field, err := t.field(n.model, qualifier, d.attr)
	if err != nil {
		return nil, nil, translateErr(key, err)
	}
	if col, isCol := n.model.Column(d.attr); isCol && len(col.EnumValues) > 0 {
		if value, err = coerceEnum(n.model, col, value); err != nil {
			return nil, nil, translateErr(key, err)
		}
	}
	pred, err := d.op.Apply(field, value)
	if err != nil {
		return nil, nil, translateErr(key, err)
	}
	return q, pred, nil
}

func (t *translator) field(m *model.Model, qualifier, attr string) (Field, error) {
	a, ok := m.Attr(attr)
	if !ok {
		return Field{}, &TranslateError{Key: attr, Err: ErrFieldNotFound}
	}
	d := t.d
	switch v := a.(type) {
	case *model.Column:
		return Field{Name: attr, Expr: d.Qualify(qualifier, v.SQLName()), Type: v.Type, Nullable: v.Nullable, Dialect: d}, nil
	case *model.Computed:
		return Field{Name: attr, Expr: v.SQL(qualifier), Type: v.Type, Nullable: true, Dialect: d}, nil
	default:
		return Field{}, &TranslateError{Key: attr, Err: ErrFieldNotFound}
	}
}

func (t *translator) list(q *Query, n *node, qualifier, key string, value any, or bool) (*Query, sq.Sqlizer, error) {
	var items []any
	switch v := value.(type) {
	case []any:
		items = v
	case map[string]any:
		items = []any{v}
	case []map[string]any:
		for _, item := range v {
			items = append(items, item)
		}
	default:
		return nil, nil, translateErr(key, fmt.Errorf("%w: expected a list of objects, got %T", ErrInvalidValue, value))
	}

	var parts []sq.Sqlizer
	for _, item := range items {
		sub, ok := item.(map[string]any)
		if !ok {
			return nil, nil, translateErr(key, fmt.Errorf("%w: expected an object, got %T", ErrInvalidValue, item))
		}
		next, preds, err := t.many(q, n, qualifier, sub)
		if err != nil {
			return nil, nil, err
		}
		q = next
		if pred := conjunction(preds); pred != nil {
			parts = append(parts, pred)
		}
	}
	switch {
	case len(parts) == 0:
		return q, nil, nil
	case or:
		return q, sq.Or(parts), nil
	default:
		return q, sq.And(parts), nil
	}
}

func (t *translator) relation(q *Query, n *node, qualifier, key string, rel *relationFilter, value any) (*Query, sq.Sqlizer, error) {
	sub, ok := value.(map[string]any)
	if !ok {
		return nil, nil, translateErr(key, fmt.Errorf("%w: expected an object, got %T", ErrInvalidValue, value))
	}
	q, matched, bare, err := t.chain(q, n.model, qualifier, rel.hops, rel.node, sub)
	if err != nil || matched == nil {
		return q, nil, err
	}
	if rel.mode == ModeHas {
		return q, sq.Or{Not(bare), matched}, nil
	}
	return q, matched, nil
}

// chain builds EXISTS sub-queries along hops. matched applies the nested
// filter at the last hop; bare only tests that the related rows exist.
// matched is nil when the nested filter produces no predicate.
func (t *translator) chain(q *Query, owner *model.Model, ownerQual string, hops []*model.Relationship, n *node, tree map[string]any) (*Query, sq.Sqlizer, sq.Sqlizer, error) {
	sub, target, targetQual, err := t.hop(q, owner, ownerQual, hops[0])
	if err != nil {
		return nil, nil, nil, err
	}

	var inner, innerBare sq.Sqlizer
	if len(hops) > 1 {
		q, inner, innerBare, err = t.chain(q, target, targetQual, hops[1:], n, tree)
		if err != nil {
			return nil, nil, nil, err
		}
	} else {
		var preds []sq.Sqlizer
		q, preds, err = t.many(q, n, targetQual, tree)
		if err != nil {
			return nil, nil, nil, err
		}
		inner = conjunction(preds)
	}
	if inner == nil {
		return q, nil, nil, nil
	}

	bare := exists(sub)
	if innerBare != nil {
		bare = exists(sub.Where(innerBare))
	}
	return q, exists(sub.Where(inner)), bare, nil
}

// hop starts "SELECT 1 FROM target" correlated with the owner row.
func (t *translator) hop(q *Query, owner *model.Model, ownerQual string, rel *model.Relationship) (sq.SelectBuilder, *model.Model, string, error) {
	target, err := owner.Target(rel)
	if err != nil {
		return sq.SelectBuilder{}, nil, "", err
	}
	d := t.d
	targetQual := d.Quote(q.nextAlias(target.Table))
	targetFrom := d.Quote(target.Table) + " AS " + targetQual

	if rel.Through == nil {
		conds := make([]string, len(rel.LocalColumns))
		for i := range rel.LocalColumns {
			conds[i] = attrExpr(target, d, targetQual, rel.RemoteColumns[i]) + " = " + attrExpr(owner, d, ownerQual, rel.LocalColumns[i])
		}
		return sq.Select("1").From(targetFrom).Where(strings.Join(conds, " AND ")), target, targetQual, nil
	}

	junctionQual := d.Quote(q.nextAlias(rel.Through.Table))
	on := make([]string, len(rel.RemoteColumns))
	for i := range rel.RemoteColumns {
		on[i] = attrExpr(target, d, targetQual, rel.RemoteColumns[i]) + " = " + d.Qualify(junctionQual, rel.Through.RemoteColumns[i])
	}
	where := make([]string, len(rel.LocalColumns))
	for i := range rel.LocalColumns {
		where[i] = d.Qualify(junctionQual, rel.Through.LocalColumns[i]) + " = " + attrExpr(owner, d, ownerQual, rel.LocalColumns[i])
	}
	sub := sq.Select("1").
		From(d.Quote(rel.Through.Table) + " AS " + junctionQual).
		Join(targetFrom + " ON " + strings.Join(on, " AND ")).
		Where(strings.Join(where, " AND "))
	return sub, target, targetQual, nil
}

// coerceEnum accepts either stored enum values or their GraphQL names.
func coerceEnum(m *model.Model, col *model.Column, value any) (any, error) {
	switch v := value.(type) {
	case string:
		return enumMember(m, col, v)
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("%w: %s.%s expects enum values, got %T", ErrInvalidValue, m.Name, col.Name, item)
			}
			member, err := enumMember(m, col, s)
			if err != nil {
				return nil, err
			}
			out[i] = member
		}
		return out, nil
	default:
		return value, nil
	}
}

func enumMember(m *model.Model, col *model.Column, v string) (string, error) {
	for _, allowed := range col.EnumValues {
		if v == allowed || v == naming.EnumValueName(allowed) {
			return allowed, nil
		}
	}
	return "", fmt.Errorf("%w: %q is not a value of %s.%s", ErrInvalidValue, v, m.Name, col.Name)
}
