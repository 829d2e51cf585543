package introspection

import (
	"fmt"
	"strings"
)

// parseValueList reads the quoted members of an enum(...) or set(...)
// COLUMN_TYPE. Both backslash escapes and doubled quotes are honoured.
func parseValueList(kind, columnType string) ([]string, error) {
	trimmed := strings.TrimSpace(columnType)
	prefix := kind + "("
	lower := strings.ToLower(trimmed)
	if !strings.HasPrefix(lower, prefix) || !strings.HasSuffix(lower, ")") {
		return nil, fmt.Errorf("invalid %s definition %q", kind, columnType)
	}

	definition := trimmed[len(prefix) : len(trimmed)-1]
	var values []string
	i := 0
	skipSpaces := func() {
		for i < len(definition) && definition[i] == ' ' {
			i++
		}
	}
	for {
		skipSpaces()
		if i >= len(definition) {
			break
		}
		if definition[i] != '\'' {
			return nil, fmt.Errorf("expected quote at position %d", i)
		}
		i++

		var sb strings.Builder
		closed := false
		for i < len(definition) && !closed {
			switch ch := definition[i]; {
			case ch == '\\':
				if i+1 >= len(definition) {
					return nil, fmt.Errorf("unterminated escape")
				}
				sb.WriteByte(definition[i+1])
				i += 2
			case ch == '\'' && i+1 < len(definition) && definition[i+1] == '\'':
				sb.WriteByte('\'')
				i += 2
			case ch == '\'':
				closed = true
				i++
			default:
				sb.WriteByte(ch)
				i++
			}
		}
		if !closed {
			return nil, fmt.Errorf("unterminated value")
		}
		values = append(values, sb.String())

		skipSpaces()
		if i < len(definition) {
			if definition[i] != ',' {
				return nil, fmt.Errorf("expected comma at position %d", i)
			}
			i++
		}
	}

	if len(values) == 0 {
		return nil, fmt.Errorf("no %s values parsed", kind)
	}
	return values, nil
}
