package filterset

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFieldSpec(t *testing.T) {
	spec, err := ParseFieldSpec(map[string]any{
		"username":  "ALL",
		"balance":   []any{"eq", "gt"},
		"is_active": "eq",
		"memberships": map[string]any{
			"is_moderator": []any{"eq"},
		},
		"parent_group": map[string]any{
			"mode":   "any",
			"fields": map[string]any{"name": "all"},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, All, spec["username"])
	assert.Equal(t, Ops{"eq", "gt"}, spec["balance"])
	assert.Equal(t, Ops{"eq"}, spec["is_active"])
	assert.Equal(t, FieldSpec{"is_moderator": Ops{"eq"}}, spec["memberships"])
	assert.Equal(t, Relation{Spec: FieldSpec{"name": All}, Mode: ModeAny}, spec["parent_group"])
	assert.Equal(t, []string{"balance", "is_active", "memberships", "parent_group", "username"}, spec.Names())
}

func TestParseFieldSpecErrors(t *testing.T) {
	for _, raw := range []map[string]any{
		{"balance": 3},
		{"balance": []any{"eq", 1}},
		{"rel": map[string]any{"mode": "some", "fields": map[string]any{}}},
		{"rel": map[string]any{"mode": "any", "fields": "name"}},
		{"rel": map[string]any{"mode": 3, "fields": map[string]any{}}},
	} {
		_, err := ParseFieldSpec(raw)
		assert.ErrorIs(t, err, ErrInvalidFieldSpec, "raw %v", raw)
	}
}

func TestParseRelationMode(t *testing.T) {
	for in, want := range map[string]RelationMode{"": ModeAuto, "Auto": ModeAuto, "any": ModeAny, " HAS ": ModeHas} {
		got, err := ParseRelationMode(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseRelationMode("some")
	assert.ErrorIs(t, err, ErrInvalidFieldSpec)
}

func TestRelationModeString(t *testing.T) {
	assert.Equal(t, "auto", ModeAuto.String())
	assert.Equal(t, "any", ModeAny.String())
	assert.Equal(t, "has", ModeHas.String())
}
