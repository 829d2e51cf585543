package filterset

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	sq "github.com/Masterminds/squirrel"

	"graphql-sqlfilter/internal/logging"
	"graphql-sqlfilter/internal/model"
	"graphql-sqlfilter/internal/sqlutil"
)

// Query is a SELECT over a model that filters are added to. Predicates are
// built with '?' placeholders; ToSql converts them for the dialect.
type Query struct {
	model     *model.Model
	dialect   *sqlutil.Dialect
	builder   sq.SelectBuilder
	qualifier string
	aliases   *AliasCache
	joined    map[*Alias]bool
	seq       *int
}

// NewQuery selects every column of m.
func NewQuery(m *model.Model, d *sqlutil.Dialect) *Query {
	if d == nil {
		d = sqlutil.MySQL
	}
	qualifier := d.Quote(m.Table)
	cols := make([]string, 0, len(m.Columns()))
	for _, c := range m.Columns() {
		cols = append(cols, d.Qualify(qualifier, c.SQLName()))
	}
	return &Query{
		model:     m,
		dialect:   d,
		builder:   sq.Select(cols...).From(qualifier),
		qualifier: qualifier,
		aliases:   NewAliasCache(d),
		joined:    make(map[*Alias]bool),
		seq:       new(int),
	}
}

func (q *Query) clone() *Query {
	c := *q
	c.joined = make(map[*Alias]bool, len(q.joined))
	for a := range q.joined {
		c.joined[a] = true
	}
	return &c
}

// Model returns the queried model.
func (q *Query) Model() *model.Model { return q.model }

// Dialect returns the rendering dialect.
func (q *Query) Dialect() *sqlutil.Dialect { return q.dialect }

// Qualifier returns the quoted name the model's table is referenced by.
func (q *Query) Qualifier() string { return q.qualifier }

// Aliases returns the alias cache of the current filtering pass.
func (q *Query) Aliases() *AliasCache { return q.aliases }

// Col returns the qualified expression of a column or computed attribute.
func (q *Query) Col(attr string) string {
	return attrExpr(q.model, q.dialect, q.qualifier, attr)
}

// Where adds a predicate.
func (q *Query) Where(pred sq.Sqlizer) *Query {
	c := q.clone()
	c.builder = c.builder.Where(pred)
	return c
}

// Join inner-joins an alias once; repeated joins of the same alias are ignored.
func (q *Query) Join(a *Alias, on string, args ...any) *Query {
	if q.joined[a] {
		return q
	}
	c := q.clone()
	c.builder = c.builder.Join(a.Table()+" ON "+on, args...)
	c.joined[a] = true
	return c
}

// LeftJoin left-joins an alias once.
func (q *Query) LeftJoin(a *Alias, on string, args ...any) *Query {
	if q.joined[a] {
		return q
	}
	c := q.clone()
	c.builder = c.builder.LeftJoin(a.Table()+" ON "+on, args...)
	c.joined[a] = true
	return c
}

// Distinct makes the select DISTINCT, typically after joining a collection.
func (q *Query) Distinct() *Query {
	c := q.clone()
	c.builder = c.builder.Distinct()
	return c
}

// OrderBy appends ORDER BY expressions.
func (q *Query) OrderBy(exprs ...string) *Query {
	c := q.clone()
	c.builder = c.builder.OrderBy(exprs...)
	return c
}

// Builder returns the underlying builder with '?' placeholders, suitable for
// embedding as a sub-query.
func (q *Query) Builder() sq.SelectBuilder { return q.builder }

// WithBuilder replaces the underlying builder.
func (q *Query) WithBuilder(b sq.SelectBuilder) *Query {
	c := q.clone()
	c.builder = b
	return c
}

// ToSql renders the statement with the dialect's placeholders.
func (q *Query) ToSql() (string, []any, error) {
	return q.builder.PlaceholderFormat(q.dialect.Placeholder()).ToSql()
}

// nextAlias returns a fresh sub-query alias such as __membership_1.
func (q *Query) nextAlias(table string) string {
	*q.seq++
	return fmt.Sprintf("__%s_%d", table, *q.seq)
}

// withFreshAliases starts a filtering pass with an empty alias cache.
func (q *Query) withFreshAliases() *Query {
	c := q.clone()
	c.aliases = NewAliasCache(q.dialect)
	c.seq = new(int)
	return c
}

func attrExpr(m *model.Model, d *sqlutil.Dialect, qualifier, attr string) string {
	a, ok := m.Attr(attr)
	if ok {
		switch v := a.(type) {
		case *model.Column:
			return d.Qualify(qualifier, v.SQLName())
		case *model.Computed:
			return v.SQL(qualifier)
		}
	}
	return d.Qualify(qualifier, attr)
}

// Alias is a named reference to a model's table inside one query.
type Alias struct {
	Model   *model.Model
	Name    string
	dialect *sqlutil.Dialect
}

// Qualifier returns the quoted alias name.
func (a *Alias) Qualifier() string { return a.dialect.Quote(a.Name) }

// Table renders "table AS alias" for FROM and JOIN clauses.
func (a *Alias) Table() string {
	return a.dialect.Quote(a.Model.Table) + " AS " + a.Qualifier()
}

// Col returns the aliased expression of an attribute.
func (a *Alias) Col(attr string) string {
	return attrExpr(a.Model, a.dialect, a.Qualifier(), attr)
}

type aliasKey struct {
	model *model.Model
	name  string
}

// AliasCache hands out one Alias per (model, name) for the lifetime of a
// filtering pass, so independent filters that join the same table under the
// same name share a single join.
type AliasCache struct {
	mu      sync.Mutex
	dialect *sqlutil.Dialect
	aliases map[aliasKey]*Alias
	anon    int
}

// NewAliasCache creates an empty cache.
func NewAliasCache(d *sqlutil.Dialect) *AliasCache {
	if d == nil {
		d = sqlutil.MySQL
	}
	return &AliasCache{dialect: d, aliases: make(map[aliasKey]*Alias)}
}

// Get returns the alias for (m, name), creating it on first use. An empty
// name gets a generated one.
func (c *AliasCache) Get(m *model.Model, name string) *Alias {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := aliasKey{model: m, name: name}
	if a, ok := c.aliases[key]; ok {
		return a
	}
	aliasName := name
	if aliasName == "" {
		c.anon++
		aliasName = fmt.Sprintf("%s_%d", m.Table, c.anon)
	}
	a := &Alias{Model: m, Name: aliasName, dialect: c.dialect}
	c.aliases[key] = a
	return a
}

// Len reports the number of cached aliases.
func (c *AliasCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.aliases)
}

// Aliased returns the alias for (m, name) in q's current filtering pass.
// The same arguments always return the same *Alias.
func Aliased(q *Query, m *model.Model, name string) *Alias {
	return q.aliases.Get(m, name)
}

// RequestScope identifies one request. Filter attaches its alias cache to the
// scope so request-bound helpers can reach it.
type RequestScope interface {
	AliasCache() *AliasCache
	SetAliasCache(*AliasCache)
}

// Scope is the default RequestScope. It also carries per-request values such
// as nested connection loaders.
type Scope struct {
	mu      sync.Mutex
	aliases *AliasCache
	values  map[any]any
}

// NewScope creates an empty request scope.
func NewScope() *Scope {
	return &Scope{values: make(map[any]any)}
}

func (s *Scope) AliasCache() *AliasCache {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.aliases
}

func (s *Scope) SetAliasCache(c *AliasCache) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.aliases = c
}

// LoadOrStore returns the value stored under key, storing value when absent.
func (s *Scope) LoadOrStore(key, value any) (actual any, loaded bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.values[key]; ok {
		return existing, true
	}
	s.values[key] = value
	return value, false
}

type scopeKey struct{}

// WithRequestScope attaches a request scope to ctx.
func WithRequestScope(ctx context.Context, scope RequestScope) context.Context {
	return context.WithValue(ctx, scopeKey{}, scope)
}

// ScopeFromContext returns the request scope attached to ctx.
func ScopeFromContext(ctx context.Context) (RequestScope, bool) {
	scope, ok := ctx.Value(scopeKey{}).(RequestScope)
	return scope, ok && scope != nil
}

// AliasedFromContext looks the alias up through the request scope in ctx.
//
// Deprecated: use Aliased with the query passed to the custom filter.
func AliasedFromContext(ctx context.Context, m *model.Model, name string) (*Alias, error) {
	logging.FromContext(ctx).Warn("AliasedFromContext is deprecated; use Aliased(query, model, name)",
		slog.Bool("deprecated", true),
		slog.String("model", m.Name),
	)
	scope, ok := ScopeFromContext(ctx)
	if !ok {
		return nil, ErrNoRequestScope
	}
	cache := scope.AliasCache()
	if cache == nil {
		return nil, fmt.Errorf("%w: no filtering pass is active", ErrNoRequestScope)
	}
	return cache.Get(m, name), nil
}
