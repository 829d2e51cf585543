// Package naming derives model, relationship and GraphQL names from SQL
// schema names, including pluralization and collision handling.
package naming

import (
	"log/slog"
	"regexp"
	"strings"

	"github.com/iancoleman/strcase"
)

// Namer converts SQL names into model, relationship and GraphQL names.
type Namer struct {
	config Config
	logger *slog.Logger
}

// New creates a Namer with the given configuration
func New(cfg Config, logger *slog.Logger) *Namer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Namer{config: cfg, logger: logger}
}

// Default returns a Namer with default configuration
func Default() *Namer {
	return New(DefaultConfig(), nil)
}

var reservedTypeNames = map[string]struct{}{
	"Query":        {},
	"Mutation":     {},
	"Subscription": {},
	"PageInfo":     {},
	"Node":         {},
}

// ModelName converts a table name to a singular PascalCase model name.
// Example: "user_profiles" -> "UserProfile"
func (n *Namer) ModelName(tableName string) string {
	if override, ok := n.config.ModelNames[tableName]; ok {
		return override
	}
	snake := strcase.ToSnake(tableName)
	parts := strings.Split(snake, "_")
	parts[len(parts)-1] = n.Singularize(parts[len(parts)-1])
	name := strcase.ToCamel(strings.Join(parts, "_"))
	if _, reserved := reservedTypeNames[name]; reserved {
		n.logger.Warn("model name conflicts with reserved GraphQL type, auto-suffixed",
			slog.String("original", name),
			slog.String("renamed", name+"_"),
		)
		return name + "_"
	}
	return name
}

// TypeName joins parts into a PascalCase GraphQL type name.
// Example: ("User", "memberships", "Filter") -> "UserMembershipsFilter"
func TypeName(parts ...string) string {
	var b strings.Builder
	for _, p := range parts {
		b.WriteString(strcase.ToCamel(p))
	}
	return b.String()
}

// ManyToOneName derives a relationship name from the FK column with common suffixes stripped.
// Example: "author_id" -> "author", "createdByUserId" -> "created_by_user"
func (n *Namer) ManyToOneName(fkColumn string) string {
	name := strcase.ToSnake(fkColumn)
	for _, suffix := range []string{"_id", "_fk"} {
		if strings.HasSuffix(name, suffix) && len(name) > len(suffix) {
			name = name[:len(name)-len(suffix)]
			break
		}
	}
	return name
}

// OneToManyName derives the collection name for a reverse FK.
// When the source table has a single FK to the parent the pluralized table name is used;
// otherwise it is prefixed with the FK name for disambiguation.
func (n *Namer) OneToManyName(sourceTable, fkColumn string, isOnlyFK bool) string {
	plural := n.Pluralize(n.Singularize(strcase.ToSnake(sourceTable)))
	if isOnlyFK {
		return plural
	}
	return n.ManyToOneName(fkColumn) + "_" + plural
}

var invalidEnumChars = regexp.MustCompile(`[^A-Za-z0-9_]+`)

// EnumValueName converts a stored enum value into a valid GraphQL enum value name.
// Example: "in progress" -> "IN_PROGRESS", "1" -> "_1"
func EnumValueName(value string) string {
	cleaned := invalidEnumChars.ReplaceAllString(value, "_")
	name := strcase.ToScreamingSnake(cleaned)
	if name == "" {
		return "EMPTY"
	}
	if name[0] >= '0' && name[0] <= '9' {
		name = "_" + name
	}
	switch name {
	case "TRUE", "FALSE", "NULL":
		name += "_"
	}
	return name
}

// SortValueName builds the sort enum value for an attribute and direction.
// Example: ("created_at", "asc") -> "CREATED_AT_ASC"
func SortValueName(attr, direction string) string {
	return strcase.ToScreamingSnake(attr) + "_" + strings.ToUpper(direction)
}
