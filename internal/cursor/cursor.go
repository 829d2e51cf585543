// Package cursor encodes and decodes Relay-style connection cursors.
// Cursors are opaque base64-encoded JSON objects carrying the connection's
// node type, its sort key and the zero-based offset of the edge.
package cursor

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
)

const version = 1

type payload struct {
	Version  int    `json:"v"`
	TypeName string `json:"t"`
	SortKey  string `json:"k"`
	Offset   int    `json:"o"`
}

// Position is a decoded cursor.
type Position struct {
	TypeName string
	SortKey  string
	Offset   int
}

// EncodeCursor builds an opaque cursor for the edge at offset.
func EncodeCursor(typeName, sortKey string, offset int) string {
	data, err := json.Marshal(payload{
		Version:  version,
		TypeName: typeName,
		SortKey:  sortKey,
		Offset:   offset,
	})
	if err != nil {
		return ""
	}
	return base64.StdEncoding.EncodeToString(data)
}

// DecodeCursor parses a cursor produced by EncodeCursor.
func DecodeCursor(raw string) (Position, error) {
	data, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return Position{}, fmt.Errorf("invalid cursor: %w", err)
	}
	var p payload
	if err := json.Unmarshal(data, &p); err != nil {
		return Position{}, fmt.Errorf("invalid cursor format: %w", err)
	}
	if p.Version != version {
		return Position{}, fmt.Errorf("invalid cursor format: unsupported version %d", p.Version)
	}
	if p.TypeName == "" {
		return Position{}, fmt.Errorf("invalid cursor: missing type")
	}
	if p.Offset < 0 {
		return Position{}, fmt.Errorf("invalid cursor: negative offset")
	}
	return Position{TypeName: p.TypeName, SortKey: p.SortKey, Offset: p.Offset}, nil
}

// ValidateCursor confirms the cursor was issued for the same node type and order.
func ValidateCursor(expectedType, expectedSortKey string, pos Position) error {
	if pos.TypeName != expectedType {
		return fmt.Errorf("cursor type mismatch: expected %s, got %s", expectedType, pos.TypeName)
	}
	if pos.SortKey != expectedSortKey {
		return fmt.Errorf("cursor sort mismatch: expected %s, got %s", expectedSortKey, pos.SortKey)
	}
	return nil
}

// Offset decodes raw and validates it against the connection, returning the edge offset.
func Offset(expectedType, expectedSortKey, raw string) (int, error) {
	pos, err := DecodeCursor(raw)
	if err != nil {
		return 0, err
	}
	if err := ValidateCursor(expectedType, expectedSortKey, pos); err != nil {
		return 0, err
	}
	return pos.Offset, nil
}
