package filterset

import (
	"context"
	"errors"
	"strings"
	"testing"

	sq "github.com/Masterminds/squirrel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"graphql-sqlfilter/internal/sqlutil"
)

func userFilter(t *testing.T, f *fixture, opts ...Option) *FilterSet {
	t.Helper()
	return f.define(t, "UserFilter", f.user, FieldSpec{
		"username":                 All,
		"balance":                  All,
		"is_active":                All,
		"status":                   All,
		"username_hybrid_property": Ops{OpEq},
		"memberships":              FieldSpec{"is_moderator": Ops{OpEq}},
		"groups":                   FieldSpec{"name": Ops{OpEq}},
		"member_groups":            FieldSpec{"name": Ops{OpEq}},
	}, opts...)
}

func TestFilterCombinesTopLevelKeysWithAnd(t *testing.T) {
	f := newFixture()
	fs := userFilter(t, f)

	q, err := fs.Filter(context.Background(), NewQuery(f.user, sqlutil.MySQL), map[string]any{
		"username_ilike": "%user%",
		"balance_gt":     20,
	})
	require.NoError(t, err)

	sql, args, err := q.ToSql()
	require.NoError(t, err)
	assert.Equal(t,
		"SELECT `user`.`user_id`, `user`.`username`, `user`.`balance`, `user`.`is_active`, `user`.`status` FROM `user` "+
			"WHERE `user`.`balance` > ? AND LOWER(`user`.`username`) LIKE LOWER(?)",
		sql)
	assert.Equal(t, []any{20, "%user%"}, args)
}

func TestFilterOperators(t *testing.T) {
	f := newFixture()
	fs := userFilter(t, f)

	cases := []struct {
		name   string
		tree   map[string]any
		clause string
		args   []any
	}{
		{"eq", map[string]any{"username": "bob"}, "`user`.`username` = ?", []any{"bob"}},
		{"ne", map[string]any{"balance_ne": 3}, "`user`.`balance` <> ?", []any{3}},
		{"like", map[string]any{"username_like": "b%"}, "`user`.`username` LIKE ?", []any{"b%"}},
		{"is null", map[string]any{"balance_is_null": true}, "`user`.`balance` IS NULL", nil},
		{"is not null", map[string]any{"balance_is_null": false}, "`user`.`balance` IS NOT NULL", nil},
		{"in", map[string]any{"balance_in": []any{1, 2}}, "`user`.`balance` IN (?,?)", []any{1, 2}},
		{"not in", map[string]any{"balance_not_in": []any{1}}, "`user`.`balance` NOT IN (?)", []any{1}},
		{"empty in", map[string]any{"balance_in": []any{}}, "(1=0)", nil},
		{"lte", map[string]any{"balance_lte": 5}, "`user`.`balance` <= ?", []any{5}},
		{"range", map[string]any{"balance_range": map[string]any{"begin": 1, "end": 10}}, "`user`.`balance` BETWEEN ? AND ?", []any{1, 10}},
		{"computed", map[string]any{"username_hybrid_property": "bob"}, "LOWER(`user`.username) = ?", []any{"bob"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			q, err := fs.Filter(context.Background(), NewQuery(f.user, nil), tc.tree)
			require.NoError(t, err)
			clause, args := where(t, q)
			assert.Equal(t, tc.clause, clause)
			if tc.args == nil {
				assert.Empty(t, args)
			} else {
				assert.Equal(t, tc.args, args)
			}
		})
	}
}

func TestFilterEmptyTreeIsNoop(t *testing.T) {
	f := newFixture()
	fs := userFilter(t, f)

	for _, tree := range []map[string]any{
		nil,
		{},
		{"and": []any{}},
		{"or": []any{map[string]any{}}},
		{"not": map[string]any{}},
		{"memberships": map[string]any{}},
	} {
		q, err := fs.Filter(context.Background(), NewQuery(f.user, nil), tree)
		require.NoError(t, err)
		clause, _ := where(t, q)
		assert.Empty(t, clause, "tree %v", tree)
	}
}

func TestFilterNotNegatesConjunction(t *testing.T) {
	f := newFixture()
	fs := userFilter(t, f)

	q, err := fs.Filter(context.Background(), NewQuery(f.user, nil), map[string]any{
		"not": map[string]any{
			"and": []any{
				map[string]any{"username": "a"},
				map[string]any{"balance": 1},
			},
		},
	})
	require.NoError(t, err)
	clause, args := where(t, q)
	assert.Equal(t, "NOT (`user`.`username` = ? AND `user`.`balance` = ?)", clause)
	assert.Equal(t, []any{"a", 1}, args)

	q, err = fs.Filter(context.Background(), NewQuery(f.user, nil), map[string]any{
		"not": map[string]any{"username": "a", "balance": 1},
	})
	require.NoError(t, err)
	clause, _ = where(t, q)
	assert.Equal(t, "NOT (`user`.`balance` = ? AND `user`.`username` = ?)", clause)
}

func TestFilterOrGroupsEachElement(t *testing.T) {
	f := newFixture()
	fs := userFilter(t, f)

	q, err := fs.Filter(context.Background(), NewQuery(f.user, nil), map[string]any{
		"or": []any{
			map[string]any{"username": "a"},
			map[string]any{"balance_gt": 1, "is_active": true},
		},
	})
	require.NoError(t, err)
	clause, args := where(t, q)
	assert.Equal(t, "(`user`.`username` = ? OR (`user`.`balance` > ? AND `user`.`is_active` = ?))", clause)
	assert.Equal(t, []any{"a", 1, true}, args)
}

func TestFilterCollectionRelationUsesExists(t *testing.T) {
	f := newFixture()
	fs := userFilter(t, f)

	q, err := fs.Filter(context.Background(), NewQuery(f.user, nil), map[string]any{
		"memberships": map[string]any{"is_moderator": true},
	})
	require.NoError(t, err)
	clause, args := where(t, q)
	assert.Equal(t,
		"EXISTS (SELECT 1 FROM `membership` AS `__membership_1` "+
			"WHERE `__membership_1`.`user_id` = `user`.`user_id` AND `__membership_1`.`is_moderator` = ?)",
		clause)
	assert.Equal(t, []any{true}, args)
}

func TestFilterJunctionRelation(t *testing.T) {
	f := newFixture()
	fs := userFilter(t, f)

	q, err := fs.Filter(context.Background(), NewQuery(f.user, nil), map[string]any{
		"groups": map[string]any{"name": "admins"},
	})
	require.NoError(t, err)
	clause, _ := where(t, q)
	assert.Equal(t,
		"EXISTS (SELECT 1 FROM `membership` AS `__membership_2` "+
			"JOIN `group` AS `__group_1` ON `__group_1`.`id` = `__membership_2`.`group_id` "+
			"WHERE `__membership_2`.`user_id` = `user`.`user_id` AND `__group_1`.`name` = ?)",
		clause)
}

func TestFilterProxyNestsTwoHops(t *testing.T) {
	f := newFixture()
	fs := userFilter(t, f)

	q, err := fs.Filter(context.Background(), NewQuery(f.user, nil), map[string]any{
		"member_groups": map[string]any{"name": "admins"},
	})
	require.NoError(t, err)
	clause, args := where(t, q)
	assert.Equal(t,
		"EXISTS (SELECT 1 FROM `membership` AS `__membership_1` "+
			"WHERE `__membership_1`.`user_id` = `user`.`user_id` AND "+
			"EXISTS (SELECT 1 FROM `group` AS `__group_2` "+
			"WHERE `__group_2`.`id` = `__membership_1`.`group_id` AND `__group_2`.`name` = ?))",
		clause)
	assert.Equal(t, []any{"admins"}, args)
}

func TestFilterScalarRelationHas(t *testing.T) {
	f := newFixture()
	fs := f.define(t, "GroupFilter", f.group, FieldSpec{
		"parent_group": FieldSpec{"name": Ops{OpEq}},
	})

	q, err := fs.Filter(context.Background(), NewQuery(f.group, nil), map[string]any{
		"parent_group": map[string]any{"name": "root"},
	})
	require.NoError(t, err)
	clause, args := where(t, q)
	sub := "SELECT 1 FROM `group` AS `__group_1` WHERE `__group_1`.`id` = `group`.`parent_group_id`"
	assert.Equal(t,
		"(NOT (EXISTS ("+sub+")) OR EXISTS ("+sub+" AND `__group_1`.`name` = ?))",
		clause)
	assert.Equal(t, []any{"root"}, args)
}

func TestFilterRelationModeOverride(t *testing.T) {
	f := newFixture()
	fs := f.define(t, "GroupFilter", f.group, FieldSpec{
		"parent_group": Relation{Spec: FieldSpec{"name": Ops{OpEq}}, Mode: ModeAny},
	})

	q, err := fs.Filter(context.Background(), NewQuery(f.group, nil), map[string]any{
		"parent_group": map[string]any{"name": "root"},
	})
	require.NoError(t, err)
	clause, _ := where(t, q)
	assert.True(t, strings.HasPrefix(clause, "EXISTS ("), clause)
	assert.NotContains(t, clause, "NOT")
}

func TestFilterFieldNotFound(t *testing.T) {
	f := newFixture()
	fs := userFilter(t, f)

	_, err := fs.Filter(context.Background(), NewQuery(f.user, nil), map[string]any{"bogus_field": 1})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrFieldNotFound)
	assert.Equal(t, "field not found: bogus_field", err.Error())

	_, err = fs.Filter(context.Background(), NewQuery(f.user, nil), map[string]any{"bogus_field_ne": 1})
	var te *TranslateError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, "bogus_field", te.Key)
}

func TestFilterInvalidValues(t *testing.T) {
	f := newFixture()
	fs := userFilter(t, f)

	for _, tree := range []map[string]any{
		{"balance_is_null": "yes"},
		{"balance_in": 3},
		{"balance_range": map[string]any{"begin": 1}},
		{"and": "x"},
		{"not": []any{}},
		{"status": "away"},
	} {
		_, err := fs.Filter(context.Background(), NewQuery(f.user, nil), tree)
		assert.ErrorIs(t, err, ErrInvalidValue, "tree %v", tree)
	}
}

func TestFilterEnumAcceptsStoredValueOrName(t *testing.T) {
	f := newFixture()
	fs := userFilter(t, f)

	q, err := fs.Filter(context.Background(), NewQuery(f.user, nil), map[string]any{
		"status_in": []any{"ONLINE", "offline"},
	})
	require.NoError(t, err)
	clause, args := where(t, q)
	assert.Equal(t, "`user`.`status` IN (?,?)", clause)
	assert.Equal(t, []any{"online", "offline"}, args)
}

func TestFilterPostgresPlaceholders(t *testing.T) {
	f := newFixture()
	fs := userFilter(t, f)

	q, err := fs.Filter(context.Background(), NewQuery(f.user, sqlutil.Postgres), map[string]any{
		"username_ilike": "%a%",
		"memberships":    map[string]any{"is_moderator": true},
	})
	require.NoError(t, err)
	clause, args := where(t, q)
	assert.Equal(t,
		`EXISTS (SELECT 1 FROM "membership" AS "__membership_1" WHERE "__membership_1"."user_id" = "user"."user_id" AND "__membership_1"."is_moderator" = $1)`+
			` AND "user"."username" ILIKE $2`,
		clause)
	assert.Equal(t, []any{true, "%a%"}, args)
}

func TestFilterDefaultFilterAlwaysApplies(t *testing.T) {
	f := newFixture()
	fs := userFilter(t, f, WithDefaultFilter(func(_ context.Context, q *Query) (*Query, sq.Sqlizer, error) {
		return q, sq.Eq{q.Col("is_active"): true}, nil
	}))

	q, err := fs.Filter(context.Background(), NewQuery(f.user, nil), nil)
	require.NoError(t, err)
	clause, _ := where(t, q)
	assert.Equal(t, "`user`.`is_active` = ?", clause)

	q, err = fs.Filter(context.Background(), NewQuery(f.user, nil), map[string]any{"balance": 1})
	require.NoError(t, err)
	clause, _ = where(t, q)
	assert.Equal(t, "`user`.`is_active` = ? AND `user`.`balance` = ?", clause)
}

func TestFilterRejectsQueryOverOtherModel(t *testing.T) {
	f := newFixture()
	fs := userFilter(t, f)

	_, err := fs.Filter(context.Background(), NewQuery(f.group, nil), nil)
	assert.Error(t, err)
}
