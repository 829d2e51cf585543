package connection

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	sq "github.com/Masterminds/squirrel"
	"github.com/graphql-go/graphql"
	"go.opentelemetry.io/otel/attribute"

	"graphql-sqlfilter/internal/dbexec"
	"graphql-sqlfilter/internal/filterset"
	"graphql-sqlfilter/internal/logging"
	"graphql-sqlfilter/internal/model"
	"graphql-sqlfilter/internal/observability"
)

const (
	batchParentPrefix = "__batch_parent_"
	junctionAlias     = "__junction"
)

var batchMaxInClause = 1000

// NestedLoader loads the related rows of one relationship for every parent
// resolved at the same response path. Parent keys queued before the first
// result is read are fetched with a single query.
type NestedLoader struct {
	field *Field
	owner *model.Model
	rel   *model.Relationship
	args  map[string]any

	mu      sync.Mutex
	pending [][]any
	queued  map[string]bool
	done    map[string]error
	results map[string][]map[string]any
}

func newNestedLoader(target *Field, owner *model.Model, rel *model.Relationship, args map[string]any) *NestedLoader {
	return &NestedLoader{
		field:   target,
		owner:   owner,
		rel:     rel,
		args:    args,
		queued:  make(map[string]bool),
		done:    make(map[string]error),
		results: make(map[string][]map[string]any),
	}
}

// Load queues a parent key and returns a function that yields its related
// rows. Keys with no related rows yield an empty slice.
func (l *NestedLoader) Load(key []any) func(context.Context) ([]map[string]any, error) {
	k := tupleKey(key)
	l.mu.Lock()
	if _, done := l.done[k]; !done && !l.queued[k] {
		l.queued[k] = true
		l.pending = append(l.pending, key)
	}
	l.mu.Unlock()

	return func(ctx context.Context) ([]map[string]any, error) {
		l.mu.Lock()
		defer l.mu.Unlock()
		if _, done := l.done[k]; !done {
			l.dispatch(ctx)
		}
		if err := l.done[k]; err != nil {
			return nil, err
		}
		rows := l.results[k]
		if rows == nil {
			rows = []map[string]any{}
		}
		return rows, nil
	}
}

func (l *NestedLoader) relationName() string {
	return l.owner.Name + "." + l.rel.Name
}

// dispatch fetches every pending key. It runs with l.mu held.
func (l *NestedLoader) dispatch(ctx context.Context) {
	keys := l.pending
	l.pending = nil
	if len(keys) == 0 {
		return
	}

	ctx, span := startSpan(ctx, "connection.batch",
		attribute.String("connection.relation", l.relationName()),
		attribute.Int("connection.batch.parents", len(keys)),
	)
	metrics := l.field.factory.metricsFor(observability.MetricsFromContext(ctx))

	var err error
	rowCount := 0
	for _, chunk := range chunkKeys(keys, batchMaxInClause) {
		var rows []map[string]any
		rows, err = l.fetch(ctx, chunk)
		if err != nil {
			err = fmt.Errorf("failed to load %s: %w", l.relationName(), err)
			break
		}
		rowCount += len(rows)
		for k, group := range groupByAliases(rows, parentAliases(len(l.rel.LocalColumns))) {
			l.results[k] = append(l.results[k], group...)
		}
		if metrics != nil {
			metrics.RecordBatch(ctx, l.relationName(), len(chunk), len(rows))
		}
	}
	for _, key := range keys {
		k := tupleKey(key)
		delete(l.queued, k)
		l.done[k] = err
	}

	span.SetAttributes(attribute.Int("connection.batch.rows", rowCount))
	finishSpan(span, err)
	logging.FromContext(ctx).Debug("nested connection batch loaded",
		slog.String("relation", l.relationName()),
		slog.Int("parents", len(keys)),
		slog.Int("rows", rowCount),
	)
}

// fetch selects the filtered, sorted target rows of keys, each tagged with
// its parent key under the __batch_parent_N aliases.
func (l *NestedLoader) fetch(ctx context.Context, keys [][]any) ([]map[string]any, error) {
	q, err := l.field.filtered(ctx, l.args)
	if err != nil {
		return nil, err
	}
	sorts, err := l.field.sorting(l.args)
	if err != nil {
		return nil, err
	}
	q = l.field.order(q, sorts)

	d := q.Dialect()
	rel := l.rel
	b := q.Builder()
	parents := make([]string, len(rel.LocalColumns))
	if rel.Through == nil {
		for i, attr := range rel.RemoteColumns {
			parents[i] = q.Col(attr)
		}
	} else {
		j := d.Quote(junctionAlias)
		on := make([]string, len(rel.RemoteColumns))
		for i, attr := range rel.RemoteColumns {
			on[i] = q.Col(attr) + " = " + d.Qualify(j, rel.Through.RemoteColumns[i])
		}
		b = b.Join(d.Quote(rel.Through.Table) + " AS " + j + " ON " + strings.Join(on, " AND "))
		for i, col := range rel.Through.LocalColumns {
			parents[i] = d.Qualify(j, col)
		}
	}

	names := columnNames(q.Model())
	aliases := parentAliases(len(parents))
	for i, expr := range parents {
		b = b.Column(expr + " AS " + d.Quote(aliases[i]))
	}
	names = append(names, aliases...)
	b = b.Where(keyPredicate(parents, keys))

	query, args, err := b.PlaceholderFormat(d.Placeholder()).ToSql()
	if err != nil {
		return nil, err
	}
	return dbexec.Query(ctx, l.field.factory.exec, names, query, args...)
}

func parentAliases(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("%s%d", batchParentPrefix, i)
	}
	return out
}

// keyPredicate matches exprs against keys: "x IN (?,?)" for a single column,
// "(x, y) IN ((?,?),(?,?))" for composite keys.
func keyPredicate(exprs []string, keys [][]any) sq.Sqlizer {
	if len(exprs) == 1 {
		values := make([]any, len(keys))
		for i, key := range keys {
			values[i] = key[0]
		}
		return sq.Eq{exprs[0]: values}
	}
	return tupleIn{exprs: exprs, tuples: keys}
}

type tupleIn struct {
	exprs  []string
	tuples [][]any
}

func (t tupleIn) ToSql() (string, []any, error) {
	if len(t.tuples) == 0 {
		return "(1=0)", nil, nil
	}
	placeholders := "(" + strings.TrimSuffix(strings.Repeat("?,", len(t.exprs)), ",") + ")"
	groups := make([]string, len(t.tuples))
	args := make([]any, 0, len(t.tuples)*len(t.exprs))
	for i, tuple := range t.tuples {
		if len(tuple) != len(t.exprs) {
			return "", nil, fmt.Errorf("key has %d values, expected %d", len(tuple), len(t.exprs))
		}
		groups[i] = placeholders
		args = append(args, tuple...)
	}
	sql := "(" + strings.Join(t.exprs, ", ") + ") IN (" + strings.Join(groups, ",") + ")"
	return sql, args, nil
}

func chunkKeys(keys [][]any, max int) [][][]any {
	if len(keys) == 0 {
		return nil
	}
	if max <= 0 || len(keys) <= max {
		return [][][]any{keys}
	}
	chunks := make([][][]any, 0, (len(keys)+max-1)/max)
	for start := 0; start < len(keys); start += max {
		end := min(start+max, len(keys))
		chunks = append(chunks, keys[start:end])
	}
	return chunks
}

// groupByAliases removes the alias columns from rows and groups the rows by
// their values.
func groupByAliases(rows []map[string]any, aliases []string) map[string][]map[string]any {
	grouped := make(map[string][]map[string]any)
	for _, row := range rows {
		values := make([]any, len(aliases))
		for i, alias := range aliases {
			values[i] = row[alias]
			delete(row, alias)
		}
		key := tupleKey(values)
		grouped[key] = append(grouped[key], row)
	}
	return grouped
}

// tupleKey compares key values by their text so driver types that differ
// between parent and child rows still match.
func tupleKey(values []any) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = fmt.Sprint(dbexec.ConvertValue(v))
	}
	return strings.Join(parts, "\x1f")
}

type loaderKey struct {
	path string
	args string
}

type loaderStore interface {
	LoadOrStore(key, value any) (any, bool)
}

// loaderFor returns the loader shared by every resolution of the current
// field path in this request. Without a request scope each call gets its own
// loader and nothing is batched.
func (f *Factory) loaderFor(p graphql.ResolveParams, owner *model.Model, rel *model.Relationship, target *model.Model, args map[string]any) *NestedLoader {
	fresh := newNestedLoader(f.Field(target), owner, rel, args)
	scope, ok := filterset.ScopeFromContext(p.Context)
	if !ok {
		return fresh
	}
	store, ok := scope.(loaderStore)
	if !ok {
		return fresh
	}
	key := loaderKey{path: LoaderPath(p.Info.Path), args: fmt.Sprint(args)}
	actual, _ := store.LoadOrStore(key, fresh)
	return actual.(*NestedLoader)
}

// LoaderPath renders the field names of path, skipping list indexes, so every
// element of a list shares one loader.
func LoaderPath(path *graphql.ResponsePath) string {
	var parts []string
	for cur := path; cur != nil; cur = cur.Prev {
		if name, ok := cur.Key.(string); ok {
			parts = append(parts, name)
		}
	}
	for i, j := 0, len(parts)-1; i < j; i, j = i+1, j-1 {
		parts[i], parts[j] = parts[j], parts[i]
	}
	return strings.Join(parts, ".")
}
