// Package model holds the relational metadata the filter layer consumes:
// models, their attributes (columns, computed expressions, relationships,
// proxies), primary keys and the schema that links them.
package model

import (
	"fmt"
	"sort"
	"strings"

	"graphql-sqlfilter/internal/sqltype"
)

// Attribute is one of *Column, *Computed, *Relationship or *Proxy.
type Attribute interface {
	AttrName() string
	attribute()
}

// Column is a persisted column.
type Column struct {
	Name string
	// ColumnName is the SQL column name; defaults to Name.
	ColumnName string
	Type       *sqltype.Type
	Nullable   bool
	PrimaryKey bool
	// EnumValues lists allowed values for enum columns, in declaration order.
	EnumValues []string
	Comment    string
}

// Computed is a non-persisted attribute backed by a SQL expression.
// The placeholder {t} in Expr is replaced with the quoted table qualifier.
type Computed struct {
	Name string
	Expr string
	// Type is optional; computed attributes without a type take a generic scalar input.
	Type    *sqltype.Type
	Comment string
}

// Junction describes a secondary (association) table between two models.
type Junction struct {
	Table string
	// LocalColumns in the junction pair positionally with Relationship.LocalColumns.
	LocalColumns []string
	// RemoteColumns in the junction pair positionally with Relationship.RemoteColumns.
	RemoteColumns []string
}

// Relationship links a model to a target model.
type Relationship struct {
	Name   string
	Target string
	// LocalColumns are attribute names on the owning model.
	LocalColumns []string
	// RemoteColumns are attribute names on the target model.
	RemoteColumns []string
	Through       *Junction
	// Uselist marks collection-valued relationships.
	Uselist bool
}

// Proxy exposes a relationship of a related model as if it were local,
// e.g. User.groups through User.memberships -> Membership.group.
type Proxy struct {
	Name string
	// Via is a relationship on the owning model.
	Via string
	// Attr is a relationship on Via's target.
	Attr string
}

func (c *Column) AttrName() string       { return c.Name }
func (c *Computed) AttrName() string     { return c.Name }
func (r *Relationship) AttrName() string { return r.Name }
func (p *Proxy) AttrName() string        { return p.Name }

func (*Column) attribute()       {}
func (*Computed) attribute()     {}
func (*Relationship) attribute() {}
func (*Proxy) attribute()        {}

// SQLName returns the SQL column name.
func (c *Column) SQLName() string {
	if c.ColumnName != "" {
		return c.ColumnName
	}
	return c.Name
}

// IsEnum reports whether the column carries enum values.
func (c *Column) IsEnum() bool {
	return len(c.EnumValues) > 0 || (c.Type != nil && c.Type.Is(sqltype.Enum))
}

// SQL renders the computed expression for the given quoted qualifier.
func (c *Computed) SQL(qualifier string) string {
	return strings.ReplaceAll(c.Expr, "{t}", qualifier)
}

// Model is a mapped table.
type Model struct {
	Name  string
	Table string

	attrs  []Attribute
	byName map[string]Attribute
	schema *Schema
}

// New creates a model with the given attributes.
func New(name, table string, attrs ...Attribute) *Model {
	m := &Model{Name: name, Table: table, byName: make(map[string]Attribute)}
	for _, a := range attrs {
		m.Add(a)
	}
	return m
}

// Add appends an attribute, replacing any attribute with the same name.
func (m *Model) Add(a Attribute) {
	if m.byName == nil {
		m.byName = make(map[string]Attribute)
	}
	if _, exists := m.byName[a.AttrName()]; exists {
		for i, existing := range m.attrs {
			if existing.AttrName() == a.AttrName() {
				m.attrs[i] = a
			}
		}
	} else {
		m.attrs = append(m.attrs, a)
	}
	m.byName[a.AttrName()] = a
}

// Attr looks up an attribute by name.
func (m *Model) Attr(name string) (Attribute, bool) {
	a, ok := m.byName[name]
	return a, ok
}

// Attributes returns attributes in declaration order.
func (m *Model) Attributes() []Attribute {
	out := make([]Attribute, len(m.attrs))
	copy(out, m.attrs)
	return out
}

// Columns returns the persisted columns in declaration order.
func (m *Model) Columns() []*Column {
	var out []*Column
	for _, a := range m.attrs {
		if c, ok := a.(*Column); ok {
			out = append(out, c)
		}
	}
	return out
}

// Column returns the named persisted column.
func (m *Model) Column(name string) (*Column, bool) {
	c, ok := m.byName[name].(*Column)
	return c, ok
}

// Relationships returns relationships in declaration order.
func (m *Model) Relationships() []*Relationship {
	var out []*Relationship
	for _, a := range m.attrs {
		if r, ok := a.(*Relationship); ok {
			out = append(out, r)
		}
	}
	return out
}

// PrimaryKey returns the primary key columns in declaration order.
func (m *Model) PrimaryKey() []*Column {
	var out []*Column
	for _, c := range m.Columns() {
		if c.PrimaryKey {
			out = append(out, c)
		}
	}
	return out
}

// Schema returns the schema the model was registered with, if any.
func (m *Model) Schema() *Schema {
	return m.schema
}

// Target resolves a relationship's target model.
func (m *Model) Target(rel *Relationship) (*Model, error) {
	if m.schema == nil {
		return nil, fmt.Errorf("model %s is not registered in a schema", m.Name)
	}
	target, ok := m.schema.Model(rel.Target)
	if !ok {
		return nil, fmt.Errorf("relationship %s.%s targets unknown model %s", m.Name, rel.Name, rel.Target)
	}
	return target, nil
}

// ProxyPath resolves a proxy into its two relationship hops.
func (m *Model) ProxyPath(p *Proxy) (*Relationship, *Relationship, error) {
	via, ok := m.byName[p.Via].(*Relationship)
	if !ok {
		return nil, nil, fmt.Errorf("proxy %s.%s: %s is not a relationship", m.Name, p.Name, p.Via)
	}
	mid, err := m.Target(via)
	if err != nil {
		return nil, nil, err
	}
	hop, ok := mid.byName[p.Attr].(*Relationship)
	if !ok {
		return nil, nil, fmt.Errorf("proxy %s.%s: %s.%s is not a relationship", m.Name, p.Name, mid.Name, p.Attr)
	}
	return via, hop, nil
}

// Schema is a set of models that may reference each other.
type Schema struct {
	models map[string]*Model
	order  []string
}

// NewSchema creates an empty schema.
func NewSchema() *Schema {
	return &Schema{models: make(map[string]*Model)}
}

// Add registers models. Relationships are checked by Validate once every model is present.
func (s *Schema) Add(models ...*Model) error {
	for _, m := range models {
		if m.Name == "" {
			return fmt.Errorf("model name is required")
		}
		if _, exists := s.models[m.Name]; exists {
			return fmt.Errorf("duplicate model %s", m.Name)
		}
		if m.Table == "" {
			return fmt.Errorf("model %s has no table", m.Name)
		}
		m.schema = s
		s.models[m.Name] = m
		s.order = append(s.order, m.Name)
	}
	return nil
}

// Model looks up a model by name.
func (s *Schema) Model(name string) (*Model, bool) {
	m, ok := s.models[name]
	return m, ok
}

// Models returns models in registration order.
func (s *Schema) Models() []*Model {
	out := make([]*Model, 0, len(s.order))
	for _, name := range s.order {
		out = append(out, s.models[name])
	}
	return out
}

// Validate checks that relationships and proxies resolve and that every model has a primary key.
func (s *Schema) Validate() error {
	var problems []string
	for _, m := range s.Models() {
		if len(m.PrimaryKey()) == 0 {
			problems = append(problems, fmt.Sprintf("model %s has no primary key", m.Name))
		}
		for _, a := range m.attrs {
			switch attr := a.(type) {
			case *Relationship:
				target, err := m.Target(attr)
				if err != nil {
					problems = append(problems, err.Error())
					continue
				}
				if len(attr.LocalColumns) == 0 || len(attr.LocalColumns) != len(attr.RemoteColumns) {
					problems = append(problems, fmt.Sprintf("relationship %s.%s has mismatched join columns", m.Name, attr.Name))
				}
				for _, col := range attr.LocalColumns {
					if _, ok := m.Column(col); !ok {
						problems = append(problems, fmt.Sprintf("relationship %s.%s: unknown local column %s", m.Name, attr.Name, col))
					}
				}
				for _, col := range attr.RemoteColumns {
					if _, ok := target.Column(col); !ok {
						problems = append(problems, fmt.Sprintf("relationship %s.%s: unknown remote column %s.%s", m.Name, attr.Name, target.Name, col))
					}
				}
				if attr.Through != nil && (len(attr.Through.LocalColumns) != len(attr.LocalColumns) || len(attr.Through.RemoteColumns) != len(attr.RemoteColumns)) {
					problems = append(problems, fmt.Sprintf("relationship %s.%s has mismatched junction columns", m.Name, attr.Name))
				}
			case *Proxy:
				if _, _, err := m.ProxyPath(attr); err != nil {
					problems = append(problems, err.Error())
				}
			}
		}
	}
	if len(problems) > 0 {
		sort.Strings(problems)
		return fmt.Errorf("invalid schema: %s", strings.Join(problems, "; "))
	}
	return nil
}
