package filterset

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"graphql-sqlfilter/internal/model"
	"graphql-sqlfilter/internal/model/modeltest"
)

type fixture struct {
	schema     *model.Schema
	user       *model.Model
	membership *model.Model
	group      *model.Model
	article    *model.Model
	types      *TypeRegistry
}

func newFixture() *fixture {
	s := modeltest.Schema()
	return &fixture{
		schema:     s,
		user:       modeltest.MustModel(s, "User"),
		membership: modeltest.MustModel(s, "Membership"),
		group:      modeltest.MustModel(s, "Group"),
		article:    modeltest.MustModel(s, "Article"),
		types:      NewTypeRegistry(nil),
	}
}

func (f *fixture) define(t *testing.T, name string, m *model.Model, spec FieldSpec, opts ...Option) *FilterSet {
	t.Helper()
	opts = append([]Option{WithTypeRegistry(f.types)}, opts...)
	fs, err := Define(name, m, spec, opts...)
	require.NoError(t, err)
	return fs
}

// where renders q and returns everything after WHERE, or "" when there is none.
func where(t *testing.T, q *Query) (string, []any) {
	t.Helper()
	sql, args, err := q.ToSql()
	require.NoError(t, err)
	_, clause, found := strings.Cut(sql, " WHERE ")
	if !found {
		return "", args
	}
	return clause, args
}
