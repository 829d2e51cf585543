package naming

import "github.com/jinzhu/inflection"

func inflect(overrides map[string]string, word string, rule func(string) string) string {
	if v, ok := overrides[word]; ok {
		return v
	}
	return rule(word)
}

// Pluralize returns the plural of word; PluralOverrides wins over the inflection rules.
func (n *Namer) Pluralize(word string) string {
	return inflect(n.config.PluralOverrides, word, inflection.Plural)
}

// Singularize is the inverse of Pluralize, using SingularOverrides.
func (n *Namer) Singularize(word string) string {
	return inflect(n.config.SingularOverrides, word, inflection.Singular)
}
