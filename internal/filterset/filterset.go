// Package filterset generates GraphQL filter input types for relational
// models and translates filter values into SQL predicates.
//
// A filter set is defined once per model with Define. Its Type is placed on
// a GraphQL field argument; Filter turns the argument value into WHERE
// clauses on a Query.
package filterset

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	sq "github.com/Masterminds/squirrel"
	"github.com/graphql-go/graphql"

	"graphql-sqlfilter/internal/model"
	"graphql-sqlfilter/internal/observability"
	"graphql-sqlfilter/internal/sqlutil"
)

// CustomFunc translates the value of a custom filter. It may return a
// modified query (for example with a join added) and a predicate; a nil
// predicate contributes nothing.
type CustomFunc func(ctx context.Context, q *Query, value any) (*Query, sq.Sqlizer, error)

// DefaultFunc supplies a predicate that is applied on every filtering pass,
// even when the client sends no filters.
type DefaultFunc func(ctx context.Context, q *Query) (*Query, sq.Sqlizer, error)

// CustomFilter is a hand-written top-level filter.
type CustomFilter struct {
	Name string
	// Type defaults to the generic scalar.
	Type        graphql.Input
	Description string
	Apply       CustomFunc
}

// FilterSet is a generated filter input type bound to a model.
type FilterSet struct {
	name          string
	model         *model.Model
	registry      *Registry
	types         *TypeRegistry
	root          *node
	customs       map[string]CustomFilter
	defaultFilter DefaultFunc
	metrics       *observability.Metrics
	logger        *slog.Logger
}

type options struct {
	base          *FilterSet
	delta         Delta
	customs       []CustomFilter
	defaultFilter DefaultFunc
	types         *TypeRegistry
	description   string
	metrics       *observability.Metrics
	logger        *slog.Logger
}

// Option configures Define.
type Option func(*options)

// WithBase layers the new filter set on base, inheriting its operator
// registry, custom filters and default filter. base is typically abstract.
func WithBase(base *FilterSet) Option {
	return func(o *options) { o.base = base }
}

// WithOperators extends the inherited operator registry with d.
func WithOperators(d Delta) Option {
	return func(o *options) { o.delta = d }
}

// WithCustomFilter adds hand-written top-level filters.
func WithCustomFilter(filters ...CustomFilter) Option {
	return func(o *options) { o.customs = append(o.customs, filters...) }
}

// WithDefaultFilter sets a predicate applied on every filtering pass.
func WithDefaultFilter(fn DefaultFunc) Option {
	return func(o *options) { o.defaultFilter = fn }
}

// WithTypeRegistry uses types instead of the process-wide registry. Filter
// sets placed in the same schema must share one.
func WithTypeRegistry(types *TypeRegistry) Option {
	return func(o *options) { o.types = types }
}

// WithDescription sets the input type description.
func WithDescription(description string) Option {
	return func(o *options) { o.description = description }
}

// WithMetrics records translation counts and durations.
func WithMetrics(m *observability.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithLogger sets the logger used at definition time.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// Define builds a filter set named name for m. A nil model with an empty
// spec defines an abstract filter set that only carries operators and
// custom filters for others to build on.
func Define(name string, m *model.Model, spec FieldSpec, opts ...Option) (*FilterSet, error) {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if m == nil && len(spec) > 0 {
		return nil, fmt.Errorf("%w: %s declares fields", ErrModelNotSpecified, name)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}

	fs := &FilterSet{
		name:          name,
		model:         m,
		registry:      DefaultRegistry(),
		types:         o.types,
		customs:       make(map[string]CustomFilter),
		defaultFilter: o.defaultFilter,
		metrics:       o.metrics,
		logger:        o.logger,
	}
	if o.base != nil {
		fs.registry = o.base.registry
		for key, cf := range o.base.customs {
			fs.customs[key] = cf
		}
		if fs.defaultFilter == nil {
			fs.defaultFilter = o.base.defaultFilter
		}
		if fs.types == nil {
			fs.types = o.base.types
		}
		if fs.metrics == nil {
			fs.metrics = o.base.metrics
		}
	}
	if fs.types == nil {
		fs.types = DefaultTypes()
	}

	registry, err := fs.registry.Extend(o.delta)
	if err != nil {
		return nil, fmt.Errorf("filter set %s: %w", name, err)
	}
	fs.registry = registry

	for _, cf := range o.customs {
		if cf.Name == "" || cf.Apply == nil {
			return nil, fmt.Errorf("%w: %s: custom filters need a name and an apply function", ErrInvalidFieldSpec, name)
		}
		fs.customs[cf.Name] = cf
	}

	if m == nil {
		return fs, nil
	}

	extra := make(graphql.InputObjectConfigFieldMap, len(fs.customs))
	for key, cf := range fs.customs {
		typ := cf.Type
		if typ == nil {
			typ = fs.types.Scalars().Generic
		}
		extra[key] = &graphql.InputObjectFieldConfig{Type: typ, Description: cf.Description}
	}

	description := o.description
	if description == "" {
		description = fmt.Sprintf("Filters for %s.", m.Name)
	}
	gen := &generator{registry: fs.registry, types: fs.types}
	root, err := gen.build(fs.types.UniqueName(name, "filterset:"+name), description, m, spec, extra)
	if err != nil {
		return nil, fmt.Errorf("filter set %s: %w", name, err)
	}
	fs.root = root

	fs.logger.Debug("filter set defined",
		slog.String("filter_set", name),
		slog.String("model", m.Name),
		slog.Int("fields", len(root.fields)),
		slog.Int("custom_filters", len(fs.customs)),
	)
	return fs, nil
}

// Name returns the name passed to Define.
func (fs *FilterSet) Name() string { return fs.name }

// Model returns the bound model, or nil for an abstract filter set.
func (fs *FilterSet) Model() *model.Model { return fs.model }

// Abstract reports whether the filter set has no model.
func (fs *FilterSet) Abstract() bool { return fs.model == nil }

// Registry returns the effective operator registry.
func (fs *FilterSet) Registry() *Registry { return fs.registry }

// Type returns the generated input object, or nil for an abstract filter set.
func (fs *FilterSet) Type() *graphql.InputObject {
	if fs.root == nil {
		return nil
	}
	return fs.root.object
}

// Keys lists the top-level filter keys, sorted.
func (fs *FilterSet) Keys() []string {
	if fs.root == nil {
		keys := make([]string, 0, len(fs.customs))
		for key := range fs.customs {
			keys = append(keys, key)
		}
		slices.Sort(keys)
		return keys
	}
	return fs.root.keys()
}

// IsCustom reports whether key is a hand-written filter.
func (fs *FilterSet) IsCustom(key string) bool {
	_, ok := fs.customs[key]
	return ok
}

// NewQuery starts a query over the filter set's model.
func (fs *FilterSet) NewQuery(d *sqlutil.Dialect) *Query {
	return NewQuery(fs.model, d)
}
