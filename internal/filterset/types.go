package filterset

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/graphql-go/graphql"

	"graphql-sqlfilter/internal/model"
	"graphql-sqlfilter/internal/naming"
	"graphql-sqlfilter/internal/scalars"
	"graphql-sqlfilter/internal/sqltype"
)

// TypeRegistry hands out unique GraphQL type names and caches the shared input
// types (ranges and enums) so one schema never holds two types with the same name.
type TypeRegistry struct {
	mu      sync.Mutex
	names   *naming.CollisionResolver
	ranges  map[string]*graphql.InputObject
	enums   map[string]*graphql.Enum
	scalars *scalars.Set
}

// NewTypeRegistry creates an empty registry. Collisions are logged through logger.
func NewTypeRegistry(logger *slog.Logger) *TypeRegistry {
	return &TypeRegistry{
		names:   naming.NewCollisionResolver(logger),
		ranges:  make(map[string]*graphql.InputObject),
		enums:   make(map[string]*graphql.Enum),
		scalars: scalars.Default(),
	}
}

var defaultTypes = sync.OnceValue(func() *TypeRegistry {
	return NewTypeRegistry(nil)
})

// DefaultTypes returns the process-wide type registry.
func DefaultTypes() *TypeRegistry {
	return defaultTypes()
}

// Scalars returns the scalar set used for generated types.
func (t *TypeRegistry) Scalars() *scalars.Set {
	return t.scalars
}

// UniqueName registers name, appending 2, 3, ... when it is already taken.
func (t *TypeRegistry) UniqueName(name, source string) string {
	return t.names.RegisterType(name, source)
}

func (t *TypeRegistry) rangeType(base graphql.Input, description string) *graphql.InputObject {
	name := base.Name() + "Range"
	if list, ok := base.(*graphql.List); ok {
		name = list.OfType.Name() + "ListRange"
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if existing, ok := t.ranges[name]; ok {
		return existing
	}
	bound := graphql.NewNonNull(base)
	obj := graphql.NewInputObject(graphql.InputObjectConfig{
		Name:        t.names.RegisterType(name, "range"),
		Description: description,
		Fields: graphql.InputObjectConfigFieldMap{
			RangeBegin: &graphql.InputObjectFieldConfig{Type: bound},
			RangeEnd:   &graphql.InputObjectFieldConfig{Type: bound},
		},
	})
	t.ranges[name] = obj
	return obj
}

// EnumType returns the shared enum type for an enum column. Values are named
// with naming.EnumValueName and carry the stored value.
func (t *TypeRegistry) EnumType(m *model.Model, col *model.Column) *graphql.Enum {
	key := m.Name + "." + col.Name

	t.mu.Lock()
	defer t.mu.Unlock()
	if existing, ok := t.enums[key]; ok {
		return existing
	}
	values := graphql.EnumValueConfigMap{}
	for _, v := range col.EnumValues {
		values[naming.EnumValueName(v)] = &graphql.EnumValueConfig{Value: v}
	}
	enum := graphql.NewEnum(graphql.EnumConfig{
		Name:        t.names.RegisterType(naming.TypeName(m.Name, col.Name, "enum"), "enum:"+key),
		Description: fmt.Sprintf("Values of %s.%s.", m.Name, col.Name),
		Values:      values,
	})
	t.enums[key] = enum
	return enum
}

// ColumnType returns the GraphQL type of a column's values.
func (t *TypeRegistry) ColumnType(m *model.Model, col *model.Column) graphql.Input {
	if col.IsEnum() && len(col.EnumValues) > 0 {
		return t.EnumType(m, col)
	}
	return t.valueType(col.Type)
}

func (t *TypeRegistry) valueType(ty *sqltype.Type) graphql.Input {
	if ty == nil {
		return t.scalars.Generic
	}
	if ty.IsArray() {
		return graphql.NewList(t.valueType(ty.Elem))
	}
	return t.scalars.ForType(ty.GraphQL).(graphql.Input)
}
