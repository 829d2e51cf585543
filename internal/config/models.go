package config

import (
	"fmt"
	"strings"

	"graphql-sqlfilter/internal/filterset"
	"graphql-sqlfilter/internal/model"
	"graphql-sqlfilter/internal/sqltype"
)

// HasDeclaredModels reports whether the model graph is declared in configuration
// rather than introspected.
func (c *Config) HasDeclaredModels() bool {
	return len(c.Models) > 0
}

// DeclaredSchema builds and validates the schema described by the models section.
func (c *Config) DeclaredSchema() (*model.Schema, error) {
	schema := model.NewSchema()
	for i, mc := range c.Models {
		m, err := mc.build()
		if err != nil {
			return nil, fmt.Errorf("models[%d]: %w", i, err)
		}
		if err := schema.Add(m); err != nil {
			return nil, err
		}
	}
	if err := schema.Validate(); err != nil {
		return nil, err
	}
	return schema, nil
}

func (mc ModelConfig) build() (*model.Model, error) {
	m := model.New(mc.Name, mc.Table)
	for _, cc := range mc.Columns {
		t, err := parseDeclaredType(cc.Type)
		if err != nil {
			return nil, fmt.Errorf("column %s.%s: %w", mc.Name, cc.Name, err)
		}
		m.Add(&model.Column{
			Name:       cc.Name,
			ColumnName: cc.Column,
			Type:       t,
			Nullable:   cc.Nullable,
			PrimaryKey: cc.PrimaryKey,
			EnumValues: append([]string(nil), cc.Enum...),
		})
	}
	for _, cc := range mc.Computed {
		c := &model.Computed{Name: cc.Name, Expr: cc.Expr}
		if strings.TrimSpace(cc.Type) != "" {
			t, err := parseDeclaredType(cc.Type)
			if err != nil {
				return nil, fmt.Errorf("computed %s.%s: %w", mc.Name, cc.Name, err)
			}
			c.Type = t
		}
		m.Add(c)
	}
	for _, rc := range mc.Relationships {
		rel := &model.Relationship{
			Name:          rc.Name,
			Target:        rc.Target,
			LocalColumns:  append([]string(nil), rc.Local...),
			RemoteColumns: append([]string(nil), rc.Remote...),
			Uselist:       rc.Many,
		}
		if rc.Through != nil {
			rel.Through = &model.Junction{
				Table:         rc.Through.Table,
				LocalColumns:  append([]string(nil), rc.Through.Local...),
				RemoteColumns: append([]string(nil), rc.Through.Remote...),
			}
			rel.Uselist = true
		}
		m.Add(rel)
	}
	for _, pc := range mc.Proxies {
		m.Add(&model.Proxy{Name: pc.Name, Via: pc.Via, Attr: pc.Attr})
	}
	return m, nil
}

// parseDeclaredType resolves a declared SQL type name, rejecting names with no
// known type family.
func parseDeclaredType(name string) (*sqltype.Type, error) {
	if strings.TrimSpace(name) == "" {
		return nil, fmt.Errorf("type is required")
	}
	t := sqltype.Parse(name)
	if t.Parent == nil && !knownRoot(t) {
		return nil, fmt.Errorf("unsupported type %q", name)
	}
	return t, nil
}

func knownRoot(t *sqltype.Type) bool {
	switch t {
	case sqltype.Boolean, sqltype.Date, sqltype.Time, sqltype.DateTime, sqltype.Integer,
		sqltype.Numeric, sqltype.String, sqltype.TSVector, sqltype.UUID, sqltype.INET,
		sqltype.CIDR, sqltype.JSON, sqltype.HSTORE, sqltype.Binary, sqltype.Vector:
		return true
	}
	return false
}

// TypeName returns the GraphQL input type name of the filter set.
func (s FilterSetConfig) TypeName() string {
	if name := strings.TrimSpace(s.Name); name != "" {
		return name
	}
	return s.Model + "Filter"
}

// FieldSpec converts the configured fields into a filterset.FieldSpec.
func (s FilterSetConfig) FieldSpec() (filterset.FieldSpec, error) {
	spec, err := fieldSpec(s.Fields)
	if err != nil {
		return nil, fmt.Errorf("filters.sets[%s]: %w", s.Model, err)
	}
	return spec, nil
}

func fieldSpec(fields []FieldConfig) (filterset.FieldSpec, error) {
	spec := make(filterset.FieldSpec, len(fields))
	for i, f := range fields {
		name := strings.TrimSpace(f.Name)
		if name == "" {
			return nil, fmt.Errorf("%w: fields[%d]: name cannot be empty", filterset.ErrInvalidFieldSpec, i)
		}
		if _, dup := spec[name]; dup {
			return nil, fmt.Errorf("%w: %s: declared twice", filterset.ErrInvalidFieldSpec, name)
		}
		rule, err := f.rule(name)
		if err != nil {
			return nil, err
		}
		spec[name] = rule
	}
	return spec, nil
}

func (f FieldConfig) rule(name string) (filterset.Rule, error) {
	if len(f.Fields) > 0 {
		if len(f.Ops) > 0 {
			return nil, fmt.Errorf("%w: %s: ops and fields cannot both be set", filterset.ErrInvalidFieldSpec, name)
		}
		nested, err := fieldSpec(f.Fields)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		if strings.TrimSpace(f.Mode) == "" {
			return nested, nil
		}
		mode, err := filterset.ParseRelationMode(f.Mode)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		return filterset.Relation{Spec: nested, Mode: mode}, nil
	}

	switch {
	case f.Mode != "":
		return nil, fmt.Errorf("%w: %s: mode requires nested fields", filterset.ErrInvalidFieldSpec, name)
	case len(f.Ops) == 0:
		return nil, fmt.Errorf("%w: %s: list ops or nested fields", filterset.ErrInvalidFieldSpec, name)
	case len(f.Ops) == 1 && strings.EqualFold(strings.TrimSpace(f.Ops[0]), "all"):
		return filterset.All, nil
	}
	ops := make(filterset.Ops, 0, len(f.Ops))
	for _, op := range f.Ops {
		ops = append(ops, strings.TrimSpace(op))
	}
	return ops, nil
}
