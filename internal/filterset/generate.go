package filterset

import (
	"fmt"
	"slices"
	"strings"

	"github.com/graphql-go/graphql"

	"graphql-sqlfilter/internal/model"
	"graphql-sqlfilter/internal/naming"
	"graphql-sqlfilter/internal/sqltype"
)

// descriptor records what a generated filter key translates to.
type descriptor struct {
	attr string
	op   *Operator
}

// relationFilter is a nested filter reached through one or two relationship hops.
type relationFilter struct {
	hops []*model.Relationship
	mode RelationMode
	node *node
}

// node is one generated input object: the root filter or a nested relation filter.
type node struct {
	name      string
	model     *model.Model
	registry  *Registry
	object    *graphql.InputObject
	fields    graphql.InputObjectConfigFieldMap
	filters   map[string]descriptor
	relations map[string]*relationFilter
}

type generator struct {
	registry *Registry
	types    *TypeRegistry
}

func (g *generator) build(name, description string, m *model.Model, spec FieldSpec, extra graphql.InputObjectConfigFieldMap) (*node, error) {
	n := &node{
		name:      name,
		model:     m,
		registry:  g.registry,
		fields:    make(graphql.InputObjectConfigFieldMap),
		filters:   make(map[string]descriptor),
		relations: make(map[string]*relationFilter),
	}

	for _, attrName := range spec.Names() {
		rule := spec[attrName]
		a, ok := m.Attr(attrName)
		if !ok {
			return nil, fmt.Errorf("%w: %s.%s", ErrUnknownAttribute, m.Name, attrName)
		}
		var err error
		switch attr := a.(type) {
		case *model.Column:
			err = g.columnFilters(n, attr, rule)
		case *model.Computed:
			err = g.computedFilters(n, attr, rule)
		case *model.Relationship:
			err = g.relationFilters(n, attrName, []*model.Relationship{attr}, rule)
		case *model.Proxy:
			via, hop, perr := m.ProxyPath(attr)
			if perr != nil {
				return nil, perr
			}
			err = g.relationFilters(n, attrName, []*model.Relationship{via, hop}, rule)
		}
		if err != nil {
			return nil, err
		}
	}

	for key, field := range extra {
		if err := n.claim(key); err != nil {
			return nil, err
		}
		n.fields[key] = field
	}

	n.object = graphql.NewInputObject(graphql.InputObjectConfig{
		Name:        name,
		Description: description,
		Fields:      graphql.InputObjectConfigFieldMapThunk(n.fieldMap),
	})
	return n, nil
}

// fieldMap adds the composition fields. It runs lazily so and/or/not can
// reference the object being defined.
func (n *node) fieldMap() graphql.InputObjectConfigFieldMap {
	fields := make(graphql.InputObjectConfigFieldMap, len(n.fields)+3)
	for key, field := range n.fields {
		fields[key] = field
	}
	fields[n.registry.RenderName(OpAnd)] = &graphql.InputObjectFieldConfig{
		Type:        graphql.NewList(graphql.NewNonNull(n.object)),
		Description: n.registry.Description(OpAnd),
	}
	fields[n.registry.RenderName(OpOr)] = &graphql.InputObjectFieldConfig{
		Type:        graphql.NewList(graphql.NewNonNull(n.object)),
		Description: n.registry.Description(OpOr),
	}
	fields[n.registry.RenderName(OpNot)] = &graphql.InputObjectFieldConfig{
		Type:        n.object,
		Description: n.registry.Description(OpNot),
	}
	return fields
}

// keys lists every external key of the node, sorted.
func (n *node) keys() []string {
	keys := make([]string, 0, len(n.fields)+3)
	for key := range n.fields {
		keys = append(keys, key)
	}
	keys = append(keys, n.registry.RenderName(OpAnd), n.registry.RenderName(OpOr), n.registry.RenderName(OpNot))
	slices.Sort(keys)
	return keys
}

func (n *node) claim(key string) error {
	if _, taken := n.fields[key]; taken {
		return fmt.Errorf("%w: %s: key %q is generated twice", ErrInvalidFieldSpec, n.name, key)
	}
	switch key {
	case n.registry.RenderName(OpAnd), n.registry.RenderName(OpOr), n.registry.RenderName(OpNot):
		return fmt.Errorf("%w: %s: key %q is reserved", ErrInvalidFieldSpec, n.name, key)
	}
	return nil
}

func (g *generator) columnFilters(n *node, col *model.Column, rule Rule) error {
	ops, err := g.operators(n.model, col.Name, col.Type, col.Nullable, false, rule)
	if err != nil {
		return err
	}
	base := g.types.ColumnType(n.model, col)
	for _, op := range ops {
		if err := g.addFilter(n, col.Name, op, base, col.Nullable); err != nil {
			return err
		}
	}
	return nil
}

func (g *generator) computedFilters(n *node, c *model.Computed, rule Rule) error {
	ops, err := g.operators(n.model, c.Name, c.Type, true, true, rule)
	if err != nil {
		return err
	}
	base := g.types.valueType(c.Type)
	for _, op := range ops {
		if err := g.addFilter(n, c.Name, op, base, true); err != nil {
			return err
		}
	}
	return nil
}

func (g *generator) operators(m *model.Model, attr string, ty *sqltype.Type, nullable, computed bool, rule Rule) ([]*Operator, error) {
	var names []string
	switch r := rule.(type) {
	case Ops:
		names = r
	case allOps:
		if computed {
			return nil, fmt.Errorf("%w: %s.%s", ErrAutoOperatorsUnsupported, m.Name, attr)
		}
		if ty == nil {
			return nil, fmt.Errorf("%w: %s.%s has no type", ErrUnsupportedColumnType, m.Name, attr)
		}
		allowed, ok := g.registry.AllowedFor(ty)
		if !ok {
			return nil, fmt.Errorf("%w %s for %s.%s; list operators explicitly or extend the registry",
				ErrUnsupportedColumnType, ty, m.Name, attr)
		}
		names = allowed
		if nullable && !slices.Contains(names, OpIsNull) {
			names = append(slices.Clone(names), OpIsNull)
		}
	default:
		return nil, fmt.Errorf("%w: %s.%s is not a relationship and cannot take nested filters", ErrInvalidFieldSpec, m.Name, attr)
	}

	ops := make([]*Operator, 0, len(names))
	seen := make(map[string]bool, len(names))
	for _, name := range names {
		if seen[name] {
			continue
		}
		seen[name] = true
		op, ok := g.registry.Operator(name)
		if !ok || isComposition(name) {
			return nil, fmt.Errorf("%w: %q for %s.%s", ErrUnknownOperator, name, m.Name, attr)
		}
		ops = append(ops, op)
	}
	return ops, nil
}

func (g *generator) addFilter(n *node, attr string, op *Operator, base graphql.Input, nullable bool) error {
	key := op.Key(attr)
	if err := n.claim(key); err != nil {
		return err
	}
	description := n.registry.Description(op.Name)
	typ := base
	if op.InputType != nil {
		typ = op.InputType(g.types, base, nullable, description)
	}
	n.fields[key] = &graphql.InputObjectFieldConfig{Type: typ, Description: description}
	n.filters[key] = descriptor{attr: attr, op: op}
	return nil
}

func (g *generator) relationFilters(n *node, attr string, hops []*model.Relationship, rule Rule) error {
	var rel Relation
	switch r := rule.(type) {
	case FieldSpec:
		rel = Relation{Spec: r}
	case Relation:
		rel = r
	default:
		return fmt.Errorf("%w: %s.%s is a relationship; give nested filters", ErrInvalidFieldSpec, n.model.Name, attr)
	}

	target := n.model
	collection := false
	for _, hop := range hops {
		next, err := target.Target(hop)
		if err != nil {
			return err
		}
		target = next
		collection = collection || hop.Uselist
	}
	mode := rel.Mode
	if mode == ModeAuto {
		mode = ModeHas
		if collection {
			mode = ModeAny
		}
	}

	if err := n.claim(attr); err != nil {
		return err
	}
	childName := g.types.UniqueName(naming.TypeName(strings.TrimSuffix(n.name, "Filter"), attr, "filter"), n.model.Name+"."+attr)
	child, err := g.build(childName, fmt.Sprintf("Filters on %s.%s.", n.model.Name, attr), target, rel.Spec, nil)
	if err != nil {
		return err
	}

	verb := "any related"
	if mode == ModeHas {
		verb = "the related"
	}
	n.fields[attr] = &graphql.InputObjectFieldConfig{
		Type:        child.object,
		Description: fmt.Sprintf("Matches when %s %s satisfies the filter (%s).", verb, target.Name, mode),
	}
	n.relations[attr] = &relationFilter{hops: hops, mode: mode, node: child}
	return nil
}
