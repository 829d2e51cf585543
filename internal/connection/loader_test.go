package connection

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	sq "github.com/Masterminds/squirrel"
	"github.com/graphql-go/graphql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"graphql-sqlfilter/internal/filterset"
)

func TestNestedConnectionLoadsAllParentsInOneQuery(t *testing.T) {
	e := newEnv(t)
	users := "SELECT " + userColumns + " FROM `user`"
	e.expectCount(users, 3)
	e.mock.ExpectQuery(quote(users + " ORDER BY `user`.`user_id` ASC LIMIT 3 OFFSET 0")).
		WillReturnRows(userRows().
			AddRow(int64(1), "alice", nil, nil, nil).
			AddRow(int64(2), "bob", nil, nil, nil).
			AddRow(int64(3), "carol", nil, nil, nil))
	e.mock.ExpectQuery(quote("SELECT " + membershipColumns + ", `membership`.`user_id` AS `__batch_parent_0` FROM `membership` " +
		"WHERE `membership`.`is_moderator` = ? AND `membership`.`user_id` IN (?,?,?) ORDER BY `membership`.`id` ASC")).
		WithArgs(true, int64(1), int64(2), int64(3)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "group_id", "is_moderator", "creator_username", "__batch_parent_0"}).
			AddRow(int64(10), int64(1), int64(5), true, "alice", int64(1)).
			AddRow(int64(11), int64(1), int64(6), true, "alice", int64(1)).
			AddRow(int64(12), int64(3), int64(5), true, "carol", int64(3)))

	data := e.run(t, `{
		allUsers(first: 3) {
			edges { node {
				username
				memberships(filters: {is_moderator: true}, first: 1) {
					totalCount
					edges { node { id group_id } }
					pageInfo { hasNextPage }
				}
			} }
		}
	}`)

	list := edges(t, data["allUsers"])
	require.Len(t, list, 3)

	alice := node(t, list[0])["memberships"].(map[string]any)
	assert.Equal(t, 2, alice["totalCount"])
	aliceEdges := edges(t, alice)
	require.Len(t, aliceEdges, 1)
	assert.Equal(t, map[string]any{"id": 10, "group_id": 5}, node(t, aliceEdges[0]))
	assert.Equal(t, true, alice["pageInfo"].(map[string]any)["hasNextPage"])

	bob := node(t, list[1])["memberships"].(map[string]any)
	assert.Equal(t, 0, bob["totalCount"])
	assert.Empty(t, edges(t, bob))

	carol := node(t, list[2])["memberships"].(map[string]any)
	assert.Equal(t, 1, carol["totalCount"])
}

func TestNestedConnectionThroughJunction(t *testing.T) {
	e := newEnv(t)
	users := "SELECT " + userColumns + " FROM `user`"
	e.expectCount(users, 2)
	e.mock.ExpectQuery(quote(users + " ORDER BY `user`.`user_id` ASC LIMIT 2 OFFSET 0")).
		WillReturnRows(userRows().
			AddRow(int64(1), "alice", nil, nil, nil).
			AddRow(int64(2), "bob", nil, nil, nil))
	e.mock.ExpectQuery(quote("SELECT " + groupColumns + ", `__junction`.`user_id` AS `__batch_parent_0` FROM `group` " +
		"JOIN `membership` AS `__junction` ON `group`.`id` = `__junction`.`group_id` " +
		"WHERE `__junction`.`user_id` IN (?,?) ORDER BY `group`.`name` DESC, `group`.`id` ASC")).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "parent_group_id", "__batch_parent_0"}).
			AddRow(int64(5), "admins", nil, int64(1)).
			AddRow(int64(5), "admins", nil, int64(2)).
			AddRow(int64(6), "staff", int64(5), int64(2)))

	data := e.run(t, `{ allUsers(first: 2) { edges { node { groups(sort: [NAME_DESC]) { edges { node { name } } } } } } }`)

	list := edges(t, data["allUsers"])
	assert.Len(t, edges(t, node(t, list[0])["groups"]), 1)
	bobGroups := edges(t, node(t, list[1])["groups"])
	require.Len(t, bobGroups, 2)
	assert.Equal(t, "admins", node(t, bobGroups[0])["name"])
	assert.Equal(t, "staff", node(t, bobGroups[1])["name"])
}

func TestNestedConnectionWithCompositeKey(t *testing.T) {
	e := newEnv(t)
	authors := "SELECT `author`.`first_name`, `author`.`last_name` FROM `author`"
	e.expectCount(authors, 2)
	e.mock.ExpectQuery(quote(authors + " ORDER BY `author`.`first_name` ASC, `author`.`last_name` ASC LIMIT 25 OFFSET 0")).
		WillReturnRows(sqlmock.NewRows([]string{"first_name", "last_name"}).
			AddRow("Ada", "Lovelace").
			AddRow("Alan", "Turing"))
	e.mock.ExpectQuery(quote("SELECT " + articleColumns + ", `article`.`author_first_name` AS `__batch_parent_0`, " +
		"`article`.`author_last_name` AS `__batch_parent_1` FROM `article` " +
		"WHERE `article`.`text` LIKE ? AND (`article`.`author_first_name`, `article`.`author_last_name`) IN ((?,?),(?,?)) " +
		"ORDER BY `article`.`id` ASC")).
		WithArgs("%engine%", "Ada", "Lovelace", "Alan", "Turing").
		WillReturnRows(sqlmock.NewRows([]string{"id", "text", "tags", "author_first_name", "author_last_name", "__batch_parent_0", "__batch_parent_1"}).
			AddRow(int64(1), "analytical engine", nil, "Ada", "Lovelace", "Ada", "Lovelace"))

	data := e.run(t, `{ allAuthors { edges { node { last_name articles(filters: {text_like: "%engine%"}) { totalCount } } } } }`)

	list := edges(t, data["allAuthors"])
	require.Len(t, list, 2)
	assert.Equal(t, 1, node(t, list[0])["articles"].(map[string]any)["totalCount"])
	assert.Equal(t, 0, node(t, list[1])["articles"].(map[string]any)["totalCount"])
}

func TestNestedScalarRelationship(t *testing.T) {
	e := newEnv(t)
	memberships := "SELECT " + membershipColumns + " FROM `membership`"
	e.expectCount(memberships, 3)
	e.mock.ExpectQuery(quote(memberships + " ORDER BY `membership`.`id` ASC LIMIT 25 OFFSET 0")).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "group_id", "is_moderator", "creator_username"}).
			AddRow(int64(10), int64(1), int64(5), true, "alice").
			AddRow(int64(11), int64(1), int64(6), false, "alice").
			AddRow(int64(12), int64(9), int64(6), false, "alice"))
	e.mock.ExpectQuery(quote("SELECT " + userColumns + ", `user`.`user_id` AS `__batch_parent_0` FROM `user` " +
		"WHERE `user`.`user_id` IN (?,?) ORDER BY `user`.`user_id` ASC")).
		WithArgs(int64(1), int64(9)).
		WillReturnRows(sqlmock.NewRows([]string{"user_id", "username", "balance", "is_active", "status", "__batch_parent_0"}).
			AddRow(int64(1), "alice", nil, nil, nil, int64(1)))

	data := e.run(t, `{ allMemberships { edges { node { id user { username } } } } }`)

	list := edges(t, data["allMemberships"])
	require.Len(t, list, 3)
	assert.Equal(t, map[string]any{"username": "alice"}, node(t, list[0])["user"])
	assert.Equal(t, map[string]any{"username": "alice"}, node(t, list[1])["user"])
	assert.Nil(t, node(t, list[2])["user"])
}

func TestNestedRelationshipWithNullKeySkipsLoader(t *testing.T) {
	e := newEnv(t)
	groups := "SELECT " + groupColumns + " FROM `group`"
	e.expectCount(groups, 1)
	e.mock.ExpectQuery(quote(groups + " ORDER BY `group`.`id` ASC LIMIT 25 OFFSET 0")).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "parent_group_id"}).
			AddRow(int64(5), "admins", nil))

	data := e.run(t, `{ allGroups { edges { node { name parent_group { name } } } } }`)

	list := edges(t, data["allGroups"])
	require.Len(t, list, 1)
	assert.Nil(t, node(t, list[0])["parent_group"])
}

func TestNestedLoaderErrorsReachEveryParent(t *testing.T) {
	e := newEnv(t)
	users := "SELECT " + userColumns + " FROM `user`"
	e.expectCount(users, 2)
	e.mock.ExpectQuery(quote(users + " ORDER BY `user`.`user_id` ASC LIMIT 25 OFFSET 0")).
		WillReturnRows(userRows().
			AddRow(int64(1), "alice", nil, nil, nil).
			AddRow(int64(2), "bob", nil, nil, nil))
	e.mock.ExpectQuery(quote("FROM `membership`")).WillReturnError(errors.New("connection reset"))

	result := e.do(t, `{ allUsers { edges { node { memberships { totalCount } } } } }`)

	require.Len(t, result.Errors, 2)
	for _, err := range result.Errors {
		assert.Contains(t, err.Message, "failed to load User.memberships: connection reset")
	}
	require.NoError(t, e.mock.ExpectationsWereMet())
}

func TestLoaderPathSkipsListIndexes(t *testing.T) {
	path := &graphql.ResponsePath{Key: "allUsers"}
	path = &graphql.ResponsePath{Prev: path, Key: "edges"}
	path = &graphql.ResponsePath{Prev: path, Key: 3}
	path = &graphql.ResponsePath{Prev: path, Key: "node"}
	path = &graphql.ResponsePath{Prev: path, Key: "memberships"}

	assert.Equal(t, "allUsers.edges.node.memberships", LoaderPath(path))
	assert.Equal(t, "", LoaderPath(nil))
}

func TestLoaderSharedPerPathWithinRequest(t *testing.T) {
	e := newEnv(t)
	rel := e.user.Relationships()[0]
	pathTo := func(field string, index int) *graphql.ResponsePath {
		p := &graphql.ResponsePath{Key: "allUsers"}
		p = &graphql.ResponsePath{Prev: p, Key: "edges"}
		p = &graphql.ResponsePath{Prev: p, Key: index}
		p = &graphql.ResponsePath{Prev: p, Key: "node"}
		return &graphql.ResponsePath{Prev: p, Key: field}
	}
	params := func(ctx context.Context, field string, index int) graphql.ResolveParams {
		return graphql.ResolveParams{Context: ctx, Info: graphql.ResolveInfo{Path: pathTo(field, index)}}
	}

	ctx := filterset.WithRequestScope(context.Background(), filterset.NewScope())
	first := e.factory.loaderFor(params(ctx, "memberships", 0), e.user, rel, e.membership, nil)
	second := e.factory.loaderFor(params(ctx, "memberships", 1), e.user, rel, e.membership, nil)
	aliased := e.factory.loaderFor(params(ctx, "moderated", 0), e.user, rel, e.membership, nil)
	assert.Same(t, first, second)
	assert.NotSame(t, first, aliased)

	other := filterset.WithRequestScope(context.Background(), filterset.NewScope())
	assert.NotSame(t, first, e.factory.loaderFor(params(other, "memberships", 0), e.user, rel, e.membership, nil))

	unscoped := e.factory.loaderFor(params(context.Background(), "memberships", 0), e.user, rel, e.membership, nil)
	assert.NotSame(t, unscoped, e.factory.loaderFor(params(context.Background(), "memberships", 0), e.user, rel, e.membership, nil))
}

func TestNestedLoaderDeduplicatesKeys(t *testing.T) {
	e := newEnv(t)
	rel := e.user.Relationships()[0]
	loader := newNestedLoader(e.factory.Field(e.membership), e.user, rel, nil)

	e.mock.ExpectQuery(quote("`membership`.`user_id` IN (?,?)")).
		WithArgs(int64(1), int64(2)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "group_id", "is_moderator", "creator_username", "__batch_parent_0"}))

	a := loader.Load([]any{int64(1)})
	b := loader.Load([]any{int64(2)})
	c := loader.Load([]any{int64(1)})

	for _, load := range []func(context.Context) ([]map[string]any, error){a, b, c} {
		rows, err := load(context.Background())
		require.NoError(t, err)
		assert.Empty(t, rows)
	}
	require.NoError(t, e.mock.ExpectationsWereMet())
}

func TestKeyPredicate(t *testing.T) {
	sql, args, err := keyPredicate([]string{"a"}, [][]any{{1}, {2}}).ToSql()
	require.NoError(t, err)
	assert.Equal(t, "a IN (?,?)", sql)
	assert.Equal(t, []any{1, 2}, args)

	sql, args, err = keyPredicate([]string{"a", "b"}, [][]any{{1, "x"}, {2, "y"}}).ToSql()
	require.NoError(t, err)
	assert.Equal(t, "(a, b) IN ((?,?),(?,?))", sql)
	assert.Equal(t, []any{1, "x", 2, "y"}, args)

	sql, _, err = sq.Select("1").Where(tupleIn{exprs: []string{"a", "b"}}).ToSql()
	require.NoError(t, err)
	assert.Equal(t, "SELECT 1 WHERE (1=0)", sql)

	_, _, err = tupleIn{exprs: []string{"a", "b"}, tuples: [][]any{{1}}}.ToSql()
	assert.Error(t, err)
}

func TestChunkKeys(t *testing.T) {
	keys := [][]any{{1}, {2}, {3}, {4}, {5}}

	chunks := chunkKeys(keys, 2)
	require.Len(t, chunks, 3)
	assert.Equal(t, [][]any{{5}}, chunks[2])
	assert.Len(t, chunkKeys(keys, 0), 1)
	assert.Nil(t, chunkKeys(nil, 2))
}

func TestGroupByAliasesMatchesDriverTypes(t *testing.T) {
	rows := []map[string]any{
		{"id": int64(1), "__batch_parent_0": []byte("7")},
		{"id": int64(2), "__batch_parent_0": int64(8)},
	}

	grouped := groupByAliases(rows, parentAliases(1))

	assert.Equal(t, []map[string]any{{"id": int64(1)}}, grouped[tupleKey([]any{int64(7)})])
	assert.Equal(t, []map[string]any{{"id": int64(2)}}, grouped[tupleKey([]any{"8"})])
}

func TestBatchSpanRecordsParentsAndRows(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	previous := otel.GetTracerProvider()
	otel.SetTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder)))
	t.Cleanup(func() { otel.SetTracerProvider(previous) })

	e := newEnv(t)
	loader := newNestedLoader(e.factory.Field(e.membership), e.user, e.user.Relationships()[0], nil)
	e.mock.ExpectQuery(quote("FROM `membership`")).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "group_id", "is_moderator", "creator_username", "__batch_parent_0"}).
			AddRow(int64(10), int64(1), int64(5), true, "alice", int64(1)))

	load := loader.Load([]any{int64(1)})
	loader.Load([]any{int64(2)})
	_, err := load(context.Background())
	require.NoError(t, err)

	var batch sdktrace.ReadOnlySpan
	for _, span := range recorder.Ended() {
		if span.Name() == "connection.batch" {
			batch = span
		}
	}
	require.NotNil(t, batch)
	attrs := map[attribute.Key]attribute.Value{}
	for _, kv := range batch.Attributes() {
		attrs[kv.Key] = kv.Value
	}
	assert.Equal(t, "User.memberships", attrs["connection.relation"].AsString())
	assert.Equal(t, int64(2), attrs["connection.batch.parents"].AsInt64())
	assert.Equal(t, int64(1), attrs["connection.batch.rows"].AsInt64())
	assert.Equal(t, "success", attrs["connection.outcome"].AsString())
}
