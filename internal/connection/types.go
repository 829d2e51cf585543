package connection

import (
	"fmt"
	"strings"

	"github.com/graphql-go/graphql"

	"graphql-sqlfilter/internal/model"
	"graphql-sqlfilter/internal/naming"
)

// sortValue is the internal value of a sort enum member.
type sortValue struct {
	attr string
	desc bool
}

func (s sortValue) name() string {
	if s.desc {
		return naming.SortValueName(s.attr, "desc")
	}
	return naming.SortValueName(s.attr, "asc")
}

// sortKey identifies an ordering inside cursors.
func sortKey(sorts []sortValue) string {
	names := make([]string, len(sorts))
	for i, s := range sorts {
		names[i] = s.name()
	}
	return strings.Join(names, ",")
}

// Node returns the object type for m's rows: its columns plus one field per
// relationship whose target is in the schema.
func (f *Factory) Node(m *model.Model) *graphql.Object {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.nodeLocked(m)
}

func (f *Factory) nodeLocked(m *model.Model) *graphql.Object {
	if obj, ok := f.nodes[m]; ok {
		return obj
	}
	name := f.types.UniqueName(m.Name, "node "+m.Name)
	var interfaces []*graphql.Interface
	if hasNodeID(m) {
		interfaces = append(interfaces, f.nodeInterfaceLocked())
		f.nodeModels[name] = m
	}
	obj := graphql.NewObject(graphql.ObjectConfig{
		Name:        name,
		Description: fmt.Sprintf("A row of %s.", m.Table),
		Interfaces:  interfaces,
		Fields: graphql.FieldsThunk(func() graphql.Fields {
			return f.nodeFields(m, name)
		}),
	})
	f.nodes[m] = obj
	return obj
}

func (f *Factory) nodeFields(m *model.Model, name string) graphql.Fields {
	fields := graphql.Fields{}
	if hasNodeID(m) {
		fields[NodeIDField] = &graphql.Field{
			Type:        graphql.NewNonNull(graphql.ID),
			Description: "The global ID of this row.",
			Resolve:     f.nodeIDResolver(m, name),
		}
	}
	for _, col := range m.Columns() {
		out, ok := f.types.ColumnType(m, col).(graphql.Output)
		if !ok {
			continue
		}
		if !col.Nullable {
			out = graphql.NewNonNull(out)
		}
		fields[col.Name] = &graphql.Field{Type: out, Description: col.Comment}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	for _, rel := range m.Relationships() {
		target, err := m.Target(rel)
		if err != nil {
			f.logger.Warn("skipping relationship with unresolved target",
				"model", m.Name, "relationship", rel.Name, "error", err.Error())
			continue
		}
		if rel.Uselist {
			fields[rel.Name] = &graphql.Field{
				Type:        f.connectionLocked(target),
				Args:        f.fieldLocked(target).args(),
				Description: fmt.Sprintf("Related %s rows.", target.Name),
				Resolve:     f.nestedResolver(m, rel, target),
			}
			continue
		}
		fields[rel.Name] = &graphql.Field{
			Type:        f.nodeLocked(target),
			Description: fmt.Sprintf("The related %s row.", target.Name),
			Resolve:     f.nestedResolver(m, rel, target),
		}
	}
	return fields
}

// Connection returns the {Model}Connection type.
func (f *Factory) Connection(m *model.Model) *graphql.Object {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connectionLocked(m)
}

func (f *Factory) connectionLocked(m *model.Model) *graphql.Object {
	if obj, ok := f.connections[m]; ok {
		return obj
	}
	node := f.nodeLocked(m)
	edge := graphql.NewObject(graphql.ObjectConfig{
		Name:        f.types.UniqueName(naming.TypeName(m.Name, "edge"), "edge "+m.Name),
		Description: "A node and its cursor.",
		Fields: graphql.Fields{
			"node":   &graphql.Field{Type: graphql.NewNonNull(node)},
			"cursor": &graphql.Field{Type: graphql.NewNonNull(graphql.String)},
		},
	})
	obj := graphql.NewObject(graphql.ObjectConfig{
		Name:        f.types.UniqueName(naming.TypeName(m.Name, "connection"), "connection "+m.Name),
		Description: fmt.Sprintf("A page of %s rows.", m.Name),
		Fields: graphql.Fields{
			"edges":      &graphql.Field{Type: graphql.NewNonNull(graphql.NewList(graphql.NewNonNull(edge)))},
			"pageInfo":   &graphql.Field{Type: graphql.NewNonNull(f.pageInfoLocked())},
			"totalCount": &graphql.Field{Type: graphql.NewNonNull(graphql.Int)},
		},
	})
	f.connections[m] = obj
	return obj
}

func (f *Factory) pageInfoLocked() *graphql.Object {
	if f.pageInfo != nil {
		return f.pageInfo
	}
	f.pageInfo = graphql.NewObject(graphql.ObjectConfig{
		Name:        f.types.UniqueName("PageInfo", "connection page info"),
		Description: "Pagination state of a connection.",
		Fields: graphql.Fields{
			"hasNextPage":     &graphql.Field{Type: graphql.NewNonNull(graphql.Boolean)},
			"hasPreviousPage": &graphql.Field{Type: graphql.NewNonNull(graphql.Boolean)},
			"startCursor":     &graphql.Field{Type: graphql.String},
			"endCursor":       &graphql.Field{Type: graphql.String},
		},
	})
	return f.pageInfo
}

// SortEnum returns the {Model}SortEnum type with ATTR_ASC and ATTR_DESC
// members for every column of m.
func (f *Factory) SortEnum(m *model.Model) *graphql.Enum {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sortEnumLocked(m)
}

func (f *Factory) sortEnumLocked(m *model.Model) *graphql.Enum {
	if enum, ok := f.sorts[m]; ok {
		return enum
	}
	values := graphql.EnumValueConfigMap{}
	for _, col := range m.Columns() {
		for _, s := range []sortValue{{attr: col.Name}, {attr: col.Name, desc: true}} {
			direction := "ascending"
			if s.desc {
				direction = "descending"
			}
			values[s.name()] = &graphql.EnumValueConfig{
				Value:       s,
				Description: fmt.Sprintf("Order by %s, %s.", col.Name, direction),
			}
		}
	}
	enum := graphql.NewEnum(graphql.EnumConfig{
		Name:   f.types.UniqueName(naming.TypeName(m.Name, "sort", "enum"), "sort "+m.Name),
		Values: values,
	})
	f.sorts[m] = enum
	return enum
}
