package cursor

import (
	"encoding/base64"
	"testing"
)

func TestEncodeDecode_Roundtrip(t *testing.T) {
	tests := []struct {
		name     string
		typeName string
		sortKey  string
		offset   int
	}{
		{name: "first edge", typeName: "User", sortKey: "ID_ASC", offset: 0},
		{name: "multi-column sort", typeName: "Article", sortKey: "TEXT_DESC,ID_ASC", offset: 41},
		{name: "empty sort key", typeName: "Group", sortKey: "", offset: 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			encoded := EncodeCursor(tt.typeName, tt.sortKey, tt.offset)
			if encoded == "" {
				t.Fatal("EncodeCursor returned empty string")
			}

			pos, err := DecodeCursor(encoded)
			if err != nil {
				t.Fatalf("DecodeCursor error: %v", err)
			}
			if pos.TypeName != tt.typeName {
				t.Errorf("typeName: got %q, want %q", pos.TypeName, tt.typeName)
			}
			if pos.SortKey != tt.sortKey {
				t.Errorf("sortKey: got %q, want %q", pos.SortKey, tt.sortKey)
			}
			if pos.Offset != tt.offset {
				t.Errorf("offset: got %d, want %d", pos.Offset, tt.offset)
			}
		})
	}
}

func TestDecodeCursor_Errors(t *testing.T) {
	enc := func(s string) string { return base64.StdEncoding.EncodeToString([]byte(s)) }
	tests := []struct {
		name  string
		input string
	}{
		{"invalid base64", "not-valid-base64!!!"},
		{"invalid json", enc("not-json")},
		{"wrong version", enc(`{"v":2,"t":"User","k":"ID_ASC","o":1}`)},
		{"missing type", enc(`{"v":1,"k":"ID_ASC","o":1}`)},
		{"negative offset", enc(`{"v":1,"t":"User","k":"ID_ASC","o":-1}`)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := DecodeCursor(tt.input); err == nil {
				t.Fatal("expected error, got nil")
			}
		})
	}
}

func TestValidateCursor(t *testing.T) {
	pos := Position{TypeName: "User", SortKey: "ID_ASC", Offset: 4}

	if err := ValidateCursor("User", "ID_ASC", pos); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := ValidateCursor("Group", "ID_ASC", pos); err == nil {
		t.Fatal("expected type mismatch error")
	}
	if err := ValidateCursor("User", "ID_DESC", pos); err == nil {
		t.Fatal("expected sort mismatch error")
	}
}

func TestOffset(t *testing.T) {
	raw := EncodeCursor("User", "ID_ASC", 7)

	offset, err := Offset("User", "ID_ASC", raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if offset != 7 {
		t.Errorf("offset: got %d, want 7", offset)
	}
	if _, err := Offset("User", "USERNAME_ASC", raw); err == nil {
		t.Fatal("expected sort mismatch error")
	}
}
