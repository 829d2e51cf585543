package filterset

import (
	"fmt"
	"slices"
	"sort"
	"strings"
	"sync"

	"graphql-sqlfilter/internal/sqltype"
)

// Delta is one layer of operator configuration.
type Delta struct {
	// Operators are added, or shadow an inherited operator with the same name.
	Operators []Operator
	// Allowed replaces the allowed-operator list of a type.
	Allowed map[*sqltype.Type][]string
	// Descriptions overrides operator descriptions by name.
	Descriptions map[string]string
}

func (d Delta) empty() bool {
	return len(d.Operators) == 0 && len(d.Allowed) == 0 && len(d.Descriptions) == 0
}

// Registry resolves operators and allowed-operator rules. A registry is
// immutable: Extend returns a child that references its parent and holds only
// its own delta, and lookups walk from the child towards the base.
type Registry struct {
	parent       *Registry
	operators    map[string]*Operator
	allowed      map[*sqltype.Type][]string
	typeAdds     map[*sqltype.Type][]string
	descriptions map[string]string

	splitOnce  sync.Once
	splitOrder []*Operator
	splitCache sync.Map // key -> splitResult
}

type splitResult struct {
	attr string
	op   *Operator
}

var defaultRegistry = sync.OnceValue(func() *Registry {
	r := &Registry{
		operators:    make(map[string]*Operator),
		allowed:      builtinAllowed(),
		typeAdds:     make(map[*sqltype.Type][]string),
		descriptions: make(map[string]string),
	}
	for _, op := range builtinOperators() {
		op := op
		r.operators[op.Name] = &op
	}
	return r
})

// DefaultRegistry returns the base registry holding the built-in operators.
func DefaultRegistry() *Registry {
	return defaultRegistry()
}

// Extend returns a registry layered on r. r itself is never modified.
func (r *Registry) Extend(d Delta) (*Registry, error) {
	if d.empty() {
		return r, nil
	}
	child := &Registry{
		parent:       r,
		operators:    make(map[string]*Operator, len(d.Operators)),
		allowed:      make(map[*sqltype.Type][]string, len(d.Allowed)),
		typeAdds:     make(map[*sqltype.Type][]string),
		descriptions: make(map[string]string, len(d.Descriptions)),
	}
	for _, op := range d.Operators {
		op := op
		if op.Name == "" {
			return nil, fmt.Errorf("%w: operator name is required", ErrUnknownOperator)
		}
		if !isComposition(op.Name) && op.Apply == nil {
			return nil, fmt.Errorf("operator %q has no predicate function", op.Name)
		}
		child.operators[op.Name] = &op
		for _, t := range op.ForTypes {
			if !slices.Contains(child.typeAdds[t], op.Name) {
				child.typeAdds[t] = append(child.typeAdds[t], op.Name)
			}
		}
	}
	for t, names := range d.Allowed {
		for _, name := range names {
			if _, ok := child.Operator(name); !ok {
				return nil, fmt.Errorf("%w: %q in allowed operators for %s", ErrUnknownOperator, name, t)
			}
		}
		child.allowed[t] = slices.Clone(names)
	}
	for name, desc := range d.Descriptions {
		if _, ok := child.Operator(name); !ok {
			return nil, fmt.Errorf("%w: %q in descriptions", ErrUnknownOperator, name)
		}
		child.descriptions[name] = desc
	}
	return child, nil
}

// Operator looks an operator up by name, most-derived layer first.
func (r *Registry) Operator(name string) (*Operator, bool) {
	for l := r; l != nil; l = l.parent {
		if op, ok := l.operators[name]; ok {
			return op, true
		}
	}
	return nil, false
}

// Description returns the effective description of an operator.
func (r *Registry) Description(name string) string {
	for l := r; l != nil; l = l.parent {
		if desc, ok := l.descriptions[name]; ok {
			return desc
		}
		if op, ok := l.operators[name]; ok {
			return op.Description
		}
	}
	return ""
}

// RenderName returns the external name of an operator, e.g. the key used for "and".
func (r *Registry) RenderName(name string) string {
	if op, ok := r.Operator(name); ok {
		return op.RenderName
	}
	return name
}

// layers returns the chain base first.
func (r *Registry) layers() []*Registry {
	var out []*Registry
	for l := r; l != nil; l = l.parent {
		out = append(out, l)
	}
	slices.Reverse(out)
	return out
}

// allowedExact resolves the rule registered for exactly t. Layers apply base
// first: an explicit list replaces what came before and ForTypes entries append.
func (r *Registry) allowedExact(t *sqltype.Type) ([]string, bool) {
	var list []string
	found := false
	for _, l := range r.layers() {
		if names, ok := l.allowed[t]; ok {
			list = slices.Clone(names)
			found = true
		}
		for _, name := range l.typeAdds[t] {
			found = true
			if !slices.Contains(list, name) {
				list = append(list, name)
			}
		}
	}
	return list, found
}

// AllowedFor returns the operators valid for t, walking t's parent chain until
// a rule matches.
func (r *Registry) AllowedFor(t *sqltype.Type) ([]string, bool) {
	for _, ty := range t.Lineage() {
		if list, ok := r.allowedExact(ty); ok {
			return list, true
		}
	}
	return nil, false
}

func (r *Registry) buildSplitOrder() {
	seen := make(map[string]bool)
	var ops []*Operator
	for l := r; l != nil; l = l.parent {
		names := make([]string, 0, len(l.operators))
		for name := range l.operators {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			if seen[name] || isComposition(name) {
				continue
			}
			seen[name] = true
			ops = append(ops, l.operators[name])
		}
	}
	sort.SliceStable(ops, func(i, j int) bool {
		if len(ops[i].RenderName) != len(ops[j].RenderName) {
			return len(ops[i].RenderName) > len(ops[j].RenderName)
		}
		return ops[i].Name < ops[j].Name
	})
	r.splitOrder = ops
}

// Split maps an external key back to its attribute and operator. The longest
// matching render-name suffix wins; a key without a suffix uses the default
// operator. Results are cached because the registry never changes.
func (r *Registry) Split(key string) (string, *Operator, error) {
	if cached, ok := r.splitCache.Load(key); ok {
		res := cached.(splitResult)
		return res.attr, res.op, nil
	}
	r.splitOnce.Do(r.buildSplitOrder)

	var fallback *Operator
	for _, op := range r.splitOrder {
		if op.RenderName == "" {
			if fallback == nil {
				fallback = op
			}
			continue
		}
		suffix := delimiter + op.RenderName
		if strings.HasSuffix(key, suffix) && len(key) > len(suffix) {
			res := splitResult{attr: key[:len(key)-len(suffix)], op: op}
			r.splitCache.Store(key, res)
			return res.attr, res.op, nil
		}
	}
	if fallback != nil {
		r.splitCache.Store(key, splitResult{attr: key, op: fallback})
		return key, fallback, nil
	}
	return "", nil, &TranslateError{Key: key, Err: ErrOperatorNotFound}
}
