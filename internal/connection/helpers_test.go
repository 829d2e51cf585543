package connection

import (
	"context"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/graphql-go/graphql"
	"github.com/stretchr/testify/require"

	"graphql-sqlfilter/internal/dbexec"
	"graphql-sqlfilter/internal/filterset"
	"graphql-sqlfilter/internal/model"
	"graphql-sqlfilter/internal/model/modeltest"
)

const (
	userColumns       = "`user`.`user_id`, `user`.`username`, `user`.`balance`, `user`.`is_active`, `user`.`status`"
	membershipColumns = "`membership`.`id`, `membership`.`user_id`, `membership`.`group_id`, `membership`.`is_moderator`, `membership`.`creator_username`"
	groupColumns      = "`group`.`id`, `group`.`name`, `group`.`parent_group_id`"
	articleColumns    = "`article`.`id`, `article`.`text`, `article`.`tags`, `article`.`author_first_name`, `article`.`author_last_name`"
)

type env struct {
	schema     *model.Schema
	user       *model.Model
	membership *model.Model
	group      *model.Model
	author     *model.Model
	article    *model.Model
	types      *filterset.TypeRegistry
	filterSets map[string]*filterset.FilterSet
	mock       sqlmock.Sqlmock
	exec       dbexec.QueryExecutor
	factory    *Factory
}

func newEnv(t *testing.T, userOpts ...filterset.Option) *env {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	s := modeltest.Schema()
	e := &env{
		schema:     s,
		user:       modeltest.MustModel(s, "User"),
		membership: modeltest.MustModel(s, "Membership"),
		group:      modeltest.MustModel(s, "Group"),
		author:     modeltest.MustModel(s, "Author"),
		article:    modeltest.MustModel(s, "Article"),
		types:      filterset.NewTypeRegistry(nil),
		mock:       mock,
		exec:       dbexec.NewDBExecutor(db, nil),
	}

	define := func(name string, m *model.Model, spec filterset.FieldSpec, opts ...filterset.Option) *filterset.FilterSet {
		opts = append([]filterset.Option{filterset.WithTypeRegistry(e.types)}, opts...)
		fs, err := filterset.Define(name, m, spec, opts...)
		require.NoError(t, err)
		return fs
	}
	e.filterSets = map[string]*filterset.FilterSet{
		"User": define("UserFilter", e.user, filterset.FieldSpec{
			"username":    filterset.Ops{filterset.OpEq, filterset.OpIn},
			"is_active":   filterset.Ops{filterset.OpEq},
			"memberships": filterset.FieldSpec{"is_moderator": filterset.Ops{filterset.OpEq}},
		}, userOpts...),
		"Membership": define("MembershipFilter", e.membership, filterset.FieldSpec{
			"is_moderator": filterset.Ops{filterset.OpEq},
		}),
		"Article": define("ArticleFilter", e.article, filterset.FieldSpec{
			"text": filterset.Ops{filterset.OpLike},
		}),
	}

	e.factory, err = NewFactory(Config{
		Schema:     s,
		Executor:   e.exec,
		Types:      e.types,
		FilterSets: e.filterSets,
	})
	require.NoError(t, err)
	return e
}

// run executes query with a fresh request scope and fails on GraphQL errors.
func (e *env) run(t *testing.T, query string) map[string]any {
	t.Helper()
	result := e.do(t, query)
	require.Empty(t, result.Errors)
	require.NoError(t, e.mock.ExpectationsWereMet())
	return result.Data.(map[string]any)
}

func (e *env) do(t *testing.T, query string) *graphql.Result {
	t.Helper()
	schema, err := e.factory.Schema()
	require.NoError(t, err)
	ctx := filterset.WithRequestScope(context.Background(), filterset.NewScope())
	return graphql.Do(graphql.Params{Schema: schema, RequestString: query, Context: ctx})
}

func (e *env) expectCount(inner string, n int64) {
	e.mock.ExpectQuery(quote("SELECT COUNT(*) FROM (" + inner + ") AS __count")).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(n))
}

// edges returns the edges list of a connection value.
func edges(t *testing.T, conn any) []any {
	t.Helper()
	m, ok := conn.(map[string]any)
	require.True(t, ok, "connection is %T", conn)
	list, ok := m["edges"].([]any)
	require.True(t, ok, "edges is %T", m["edges"])
	return list
}

func node(t *testing.T, edge any) map[string]any {
	t.Helper()
	n, ok := edge.(map[string]any)["node"].(map[string]any)
	require.True(t, ok)
	return n
}

func quote(sql string) string {
	return regexp.QuoteMeta(sql)
}
