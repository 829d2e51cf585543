package naming

import (
	"fmt"
	"log/slog"
	"sync"
)

// CollisionResolver tracks registered names and resolves collisions
// by applying numeric suffixes when duplicates are detected.
type CollisionResolver struct {
	mu         sync.Mutex
	seenTypes  map[string]string            // GraphQL type name → source
	seenFields map[string]map[string]string // owner → field name → source
	logger     *slog.Logger
}

// NewCollisionResolver creates a new collision resolver.
func NewCollisionResolver(logger *slog.Logger) *CollisionResolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &CollisionResolver{
		seenTypes:  make(map[string]string),
		seenFields: make(map[string]map[string]string),
		logger:     logger,
	}
}

// RegisterType registers a GraphQL type name and returns the resolved name.
// If a collision occurs, applies a numeric suffix and logs a warning.
func (c *CollisionResolver) RegisterType(graphqlName, source string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.resolveCollision(graphqlName, c.seenTypes, source)
}

// TypeExists reports whether a type name has been registered.
func (c *CollisionResolver) TypeExists(name string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.seenTypes[name]
	return ok
}

// RegisterField registers a field name within an owner and returns the resolved name.
// If a collision occurs, applies a numeric suffix and logs a warning.
func (c *CollisionResolver) RegisterField(owner, fieldName, source string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.seenFields[owner] == nil {
		c.seenFields[owner] = make(map[string]string)
	}
	return c.resolveCollision(fieldName, c.seenFields[owner], source)
}

// resolveCollision attempts to register a name in the given map.
// If the name already exists, finds the next available numeric suffix.
func (c *CollisionResolver) resolveCollision(name string, seen map[string]string, source string) string {
	if _, exists := seen[name]; !exists {
		seen[name] = source
		return name
	}

	existingSource := seen[name]
	c.logger.Warn("naming collision detected, applying suffix",
		slog.String("name", name),
		slog.String("existing_source", existingSource),
		slog.String("new_source", source),
	)

	for i := 2; ; i++ {
		suffixed := fmt.Sprintf("%s%d", name, i)
		if _, exists := seen[suffixed]; !exists {
			seen[suffixed] = source
			return suffixed
		}
	}
}
