package filterset

import (
	"fmt"
	"sort"
	"strings"
)

// FieldSpec maps model attribute names to the filters generated for them.
type FieldSpec map[string]Rule

// Rule says which filters an attribute gets. It is one of Ops, All,
// FieldSpec (nested filters for a relationship) or Relation.
type Rule interface {
	isRule()
}

// Ops lists operator names explicitly.
type Ops []string

type allOps struct{}

// All selects every operator allowed for the attribute's type, plus is_null
// when the column is nullable.
var All Rule = allOps{}

// RelationMode picks how a nested filter tests a relationship.
type RelationMode int

const (
	// ModeAuto uses ModeAny for collections and ModeHas for scalar relationships.
	ModeAuto RelationMode = iota
	// ModeAny matches when at least one related row satisfies the nested filter.
	ModeAny
	// ModeHas matches when the related row is absent or satisfies the nested filter.
	ModeHas
)

func (m RelationMode) String() string {
	switch m {
	case ModeAny:
		return "any"
	case ModeHas:
		return "has"
	default:
		return "auto"
	}
}

// Relation is a nested filter with an explicit mode.
type Relation struct {
	Spec FieldSpec
	Mode RelationMode
}

func (Ops) isRule()       {}
func (allOps) isRule()    {}
func (FieldSpec) isRule() {}
func (Relation) isRule()  {}

// Names returns the attribute names in sorted order.
func (s FieldSpec) Names() []string {
	names := make([]string, 0, len(s))
	for name := range s {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ParseFieldSpec converts a decoded configuration value into a FieldSpec.
// Lists become Ops, the string "ALL" becomes All and maps nest. A map
// holding "mode" and "fields" keys becomes a Relation.
func ParseFieldSpec(raw map[string]any) (FieldSpec, error) {
	spec := make(FieldSpec, len(raw))
	for name, value := range raw {
		rule, err := parseRule(name, value)
		if err != nil {
			return nil, err
		}
		spec[name] = rule
	}
	return spec, nil
}

func parseRule(name string, value any) (Rule, error) {
	switch v := value.(type) {
	case string:
		if strings.EqualFold(v, "all") {
			return All, nil
		}
		return Ops{v}, nil
	case []string:
		return Ops(v), nil
	case []any:
		ops := make(Ops, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("%w: %s: operator names must be strings, got %T", ErrInvalidFieldSpec, name, item)
			}
			ops = append(ops, s)
		}
		return ops, nil
	case map[string]any:
		if fields, ok := v["fields"]; ok {
			if _, hasMode := v["mode"]; hasMode {
				return parseRelation(name, v["mode"], fields)
			}
		}
		return ParseFieldSpec(v)
	default:
		return nil, fmt.Errorf("%w: %s: unsupported rule %T", ErrInvalidFieldSpec, name, value)
	}
}

func parseRelation(name string, mode, fields any) (Rule, error) {
	raw, ok := fields.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: %s: fields must be a map", ErrInvalidFieldSpec, name)
	}
	nested, err := ParseFieldSpec(raw)
	if err != nil {
		return nil, err
	}
	m, ok := mode.(string)
	if !ok && mode != nil {
		return nil, fmt.Errorf("%w: %s: mode must be a string, got %T", ErrInvalidFieldSpec, name, mode)
	}
	parsed, err := ParseRelationMode(m)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return Relation{Spec: nested, Mode: parsed}, nil
}

// ParseRelationMode reads a relation mode name. The empty string means ModeAuto.
func ParseRelationMode(s string) (RelationMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "auto":
		return ModeAuto, nil
	case "any":
		return ModeAny, nil
	case "has":
		return ModeHas, nil
	default:
		return ModeAuto, fmt.Errorf("%w: unknown relation mode %q", ErrInvalidFieldSpec, s)
	}
}
