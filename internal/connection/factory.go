// Package connection exposes models as Relay connection fields. Each field
// takes a filter set as its filters argument, a sort enum and offset cursors;
// relationship fields of the generated node types are nested connections
// resolved in batches per response path.
package connection

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/graphql-go/graphql"
	"github.com/iancoleman/strcase"

	"graphql-sqlfilter/internal/dbexec"
	"graphql-sqlfilter/internal/filterset"
	"graphql-sqlfilter/internal/model"
	"graphql-sqlfilter/internal/naming"
	"graphql-sqlfilter/internal/observability"
	"graphql-sqlfilter/internal/sqlutil"
)

const (
	// DefaultLimit is the page size when neither first nor last is given.
	DefaultLimit = 25
	// MaxLimit caps first and last.
	MaxLimit = 100
	// DefaultFilterArg is the name of the filter argument.
	DefaultFilterArg = "filters"
)

// ReservedArgs are the arguments every connection field takes. The filter
// argument cannot use one of these names.
var ReservedArgs = []string{"sort", "first", "last", "after", "before"}

// IsReservedArg reports whether name is one of ReservedArgs.
func IsReservedArg(name string) bool {
	return slices.Contains(ReservedArgs, name)
}

// Config configures a Factory.
type Config struct {
	Schema   *model.Schema
	Executor dbexec.QueryExecutor
	// Dialect defaults to MySQL.
	Dialect *sqlutil.Dialect
	// Types defaults to filterset.DefaultTypes; it should be the registry the
	// filter sets were defined with.
	Types *filterset.TypeRegistry
	// FilterSets maps model names to the filter set of their connections.
	// Models without one get connections without a filter argument.
	FilterSets map[string]*filterset.FilterSet
	// FilterArg renames the filter argument on every connection field.
	FilterArg    string
	DefaultLimit int
	MaxLimit     int
	Namer        *naming.Namer
	Metrics      *observability.Metrics
	Logger       *slog.Logger
}

// Factory builds node, connection and sort types for the models of one
// schema and the connection fields that use them.
type Factory struct {
	schema       *model.Schema
	exec         dbexec.QueryExecutor
	dialect      *sqlutil.Dialect
	types        *filterset.TypeRegistry
	filterSets   map[*model.Model]*filterset.FilterSet
	byInput      map[*graphql.InputObject]*filterset.FilterSet
	filterArg    string
	defaultLimit int
	maxLimit     int
	namer        *naming.Namer
	metrics      *observability.Metrics
	logger       *slog.Logger

	mu            sync.Mutex
	nodes         map[*model.Model]*graphql.Object
	nodeModels    map[string]*model.Model
	nodeInterface *graphql.Interface
	connections   map[*model.Model]*graphql.Object
	sorts         map[*model.Model]*graphql.Enum
	fields        map[*model.Model]*Field
	pageInfo      *graphql.Object
}

// NewFactory validates cfg and creates a factory.
func NewFactory(cfg Config) (*Factory, error) {
	if cfg.Schema == nil {
		return nil, errors.New("connection factory requires a schema")
	}
	if cfg.Executor == nil {
		return nil, errors.New("connection factory requires a query executor")
	}
	f := &Factory{
		schema:       cfg.Schema,
		exec:         cfg.Executor,
		dialect:      cfg.Dialect,
		types:        cfg.Types,
		filterSets:   make(map[*model.Model]*filterset.FilterSet),
		byInput:      make(map[*graphql.InputObject]*filterset.FilterSet),
		filterArg:    cfg.FilterArg,
		defaultLimit: cfg.DefaultLimit,
		maxLimit:     cfg.MaxLimit,
		namer:        cfg.Namer,
		metrics:      cfg.Metrics,
		logger:       cfg.Logger,
		nodes:        make(map[*model.Model]*graphql.Object),
		nodeModels:   make(map[string]*model.Model),
		connections:  make(map[*model.Model]*graphql.Object),
		sorts:        make(map[*model.Model]*graphql.Enum),
		fields:       make(map[*model.Model]*Field),
	}
	if f.dialect == nil {
		f.dialect = sqlutil.MySQL
	}
	if f.types == nil {
		f.types = filterset.DefaultTypes()
	}
	if f.filterArg == "" {
		f.filterArg = DefaultFilterArg
	}
	if IsReservedArg(f.filterArg) {
		return nil, fmt.Errorf("filter argument %q clashes with a connection argument", f.filterArg)
	}
	if f.maxLimit <= 0 {
		f.maxLimit = MaxLimit
	}
	if f.defaultLimit <= 0 {
		f.defaultLimit = DefaultLimit
	}
	if f.defaultLimit > f.maxLimit {
		f.defaultLimit = f.maxLimit
	}
	if f.namer == nil {
		f.namer = naming.Default()
	}
	if f.logger == nil {
		f.logger = slog.Default()
	}

	for name, fs := range cfg.FilterSets {
		m, ok := cfg.Schema.Model(name)
		if !ok {
			return nil, fmt.Errorf("filter set %s: model %s is not in the schema", fs.Name(), name)
		}
		if fs.Abstract() {
			return nil, fmt.Errorf("filter set %s: %w", fs.Name(), filterset.ErrModelNotSpecified)
		}
		if fs.Model() != m {
			return nil, fmt.Errorf("filter set %s filters %s, not %s", fs.Name(), fs.Model().Name, name)
		}
		f.filterSets[m] = fs
		f.byInput[fs.Type()] = fs
	}
	return f, nil
}

// FilterArg returns the name of the filter argument.
func (f *Factory) FilterArg() string { return f.filterArg }

// FilterSet returns the filter set used by m's connections.
func (f *Factory) FilterSet(m *model.Model) (*filterset.FilterSet, bool) {
	fs, ok := f.filterSets[m]
	return fs, ok
}

// FilterSetFor recovers the filter set of the field being resolved from the
// type of its filter argument.
func (f *Factory) FilterSetFor(info graphql.ResolveInfo) (*filterset.FilterSet, bool) {
	parent, ok := info.ParentType.(*graphql.Object)
	if !ok {
		return nil, false
	}
	def, ok := parent.Fields()[info.FieldName]
	if !ok {
		return nil, false
	}
	for _, arg := range def.Args {
		if arg.Name() != f.filterArg {
			continue
		}
		input, ok := arg.Type.(*graphql.InputObject)
		if !ok {
			return nil, false
		}
		fs, ok := f.byInput[input]
		return fs, ok
	}
	return nil, false
}

// Field returns the root connection field over m.
func (f *Factory) Field(m *model.Model) *Field {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fieldLocked(m)
}

func (f *Factory) fieldLocked(m *model.Model) *Field {
	if fd, ok := f.fields[m]; ok {
		return fd
	}
	fd := &Field{factory: f, model: m, filterSet: f.filterSets[m]}
	f.fields[m] = fd
	return fd
}

// RootFieldName names the root connection field of m, e.g. allUsers.
func (f *Factory) RootFieldName(m *model.Model) string {
	return strcase.ToLowerCamel("all_" + f.namer.Pluralize(strcase.ToSnake(m.Name)))
}

// QueryFields returns one connection field per model of the schema, plus
// the node field when any node type carries a global ID.
func (f *Factory) QueryFields() graphql.Fields {
	fields := graphql.Fields{}
	withID := false
	for _, m := range f.schema.Models() {
		fields[f.RootFieldName(m)] = f.Field(m).GraphQL()
		withID = withID || hasNodeID(m)
	}
	if withID {
		fields["node"] = f.NodeField()
	}
	return fields
}

// Schema builds a schema whose query type holds QueryFields.
func (f *Factory) Schema() (graphql.Schema, error) {
	query := graphql.NewObject(graphql.ObjectConfig{
		Name:   "Query",
		Fields: f.QueryFields(),
	})
	var types []graphql.Type
	for _, m := range f.schema.Models() {
		types = append(types, f.Node(m))
	}
	schema, err := graphql.NewSchema(graphql.SchemaConfig{Query: query, Types: types})
	if err != nil {
		return graphql.Schema{}, fmt.Errorf("failed to build schema: %w", err)
	}
	return schema, nil
}

func (f *Factory) metricsFor(ctxMetrics *observability.Metrics) *observability.Metrics {
	if f.metrics != nil {
		return f.metrics
	}
	return ctxMetrics
}
