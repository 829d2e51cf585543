package introspection

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"graphql-sqlfilter/internal/model"
	"graphql-sqlfilter/internal/sqltype"
)

const (
	tablesQuery  = "FROM INFORMATION_SCHEMA.TABLES"
	columnsQuery = "FROM INFORMATION_SCHEMA.COLUMNS"
	fkQuery      = "FROM INFORMATION_SCHEMA.KEY_COLUMN_USAGE"
)

func tableRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"TABLE_NAME", "TABLE_TYPE", "TABLE_COMMENT"})
}

func columnRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"TABLE_NAME", "COLUMN_NAME", "DATA_TYPE", "COLUMN_TYPE", "COLUMN_COMMENT", "IS_NULLABLE", "COLUMN_KEY"})
}

func fkRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"TABLE_NAME", "COLUMN_NAME", "REFERENCED_TABLE_NAME", "REFERENCED_COLUMN_NAME", "CONSTRAINT_NAME", "ORDINAL_POSITION"})
}

// expectUsersAndGroups registers the information_schema rows of a
// user/group/membership database plus one view.
func expectUsersAndGroups(mock sqlmock.Sqlmock) {
	mock.ExpectQuery(tablesQuery).WithArgs("app").
		WillReturnRows(tableRows().
			AddRow("group", "BASE TABLE", "").
			AddRow("membership", "BASE TABLE", nil).
			AddRow("moderators", "VIEW", "").
			AddRow("user", "BASE TABLE", " people "))

	mock.ExpectQuery(columnsQuery).WithArgs("app").
		WillReturnRows(columnRows().
			AddRow("group", "id", "int", "int(11)", "", "NO", "PRI").
			AddRow("group", "name", "varchar", "varchar(64)", "", "NO", "").
			AddRow("group", "parent_group_id", "int", "int(11)", "", "YES", "MUL").
			AddRow("membership", "id", "int", "int(11)", "", "NO", "PRI").
			AddRow("membership", "user_id", "int", "int(11)", "", "NO", "MUL").
			AddRow("membership", "group_id", "int", "int(11)", "", "NO", "MUL").
			AddRow("membership", "is_moderator", "tinyint", "tinyint(1)", "", "NO", "").
			AddRow("moderators", "username", "varchar", "varchar(64)", "", "NO", "").
			AddRow("user", "id", "int", "int(11)", "", "NO", "PRI").
			AddRow("user", "username", "varchar", "varchar(64)", "login name", "NO", "UNI").
			AddRow("user", "status", "enum", "enum('offline','online')", "", "YES", ""))

	mock.ExpectQuery(fkQuery).WithArgs("app").
		WillReturnRows(fkRows().
			AddRow("group", "parent_group_id", "group", "id", "fk_parent", 1).
			AddRow("membership", "group_id", "group", "id", "fk_group", 1).
			AddRow("membership", "user_id", "user", "id", "fk_user", 1))
}

func TestReadSchema(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	expectUsersAndGroups(mock)

	schema, err := ReadSchema(context.Background(), db, "app", nil)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())

	require.Len(t, schema.Tables, 4)
	user, ok := schema.Table("user")
	require.True(t, ok)
	assert.Equal(t, "people", user.Comment)
	assert.Equal(t, []string{"id"}, user.PrimaryKey())
	status, ok := user.Column("status")
	require.True(t, ok)
	assert.True(t, status.IsNullable)
	assert.Equal(t, []string{"offline", "online"}, status.EnumValues)

	view, _ := schema.Table("moderators")
	assert.True(t, view.IsView)
	assert.Empty(t, view.PrimaryKey())
	assert.Empty(t, view.ForeignKeys)

	membership, _ := schema.Table("membership")
	assert.Len(t, membership.ForeignKeys, 2)
	assert.Len(t, membership.Columns, 4)
}

func TestReadSchemaIgnoresRowsOfUnlistedTables(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	mock.ExpectQuery(tablesQuery).WillReturnRows(tableRows().AddRow("user", "BASE TABLE", ""))
	mock.ExpectQuery(columnsQuery).WillReturnRows(columnRows().
		AddRow("user", "id", "int", "int(11)", "", "NO", "PRI").
		AddRow("sequence_tmp", "id", "int", "int(11)", "", "NO", "PRI"))
	mock.ExpectQuery(fkQuery).WillReturnRows(fkRows().
		AddRow("sequence_tmp", "user_id", "user", "id", "fk_tmp", 1))

	schema, err := ReadSchema(context.Background(), db, "app", nil)
	require.NoError(t, err)
	require.Len(t, schema.Tables, 1)
	assert.Len(t, schema.Tables[0].Columns, 1)
	assert.Empty(t, schema.Tables[0].ForeignKeys)
}

func TestReadSchemaWrapsErrors(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	mock.ExpectQuery(tablesQuery).WillReturnRows(tableRows().AddRow("user", "BASE TABLE", ""))
	mock.ExpectQuery(columnsQuery).WillReturnError(errors.New("access denied"))

	_, err = ReadSchema(context.Background(), db, "app", nil)
	require.Error(t, err)
	assert.Equal(t, "failed to read columns: access denied", err.Error())
}

func TestReflectBuildsRelationships(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	expectUsersAndGroups(mock)

	schema, err := Reflect(context.Background(), db, "app", Options{})
	require.NoError(t, err)

	var names []string
	for _, m := range schema.Models() {
		names = append(names, m.Name)
	}
	assert.Equal(t, []string{"Group", "Membership", "User"}, names)

	user, _ := schema.Model("User")
	status, ok := user.Column("status")
	require.True(t, ok)
	assert.True(t, status.IsEnum())
	assert.Equal(t, "login name", mustColumn(t, user, "username").Comment)

	membership, _ := schema.Model("Membership")
	assert.Same(t, sqltype.Boolean, mustColumn(t, membership, "is_moderator").Type)
	assert.Equal(t, []string{"group", "user"}, relationshipNames(membership))

	assert.Equal(t, []string{"memberships", "groups"}, relationshipNames(user))
	groups := mustRelationship(t, user, "groups")
	assert.Equal(t, "Group", groups.Target)
	assert.True(t, groups.Uselist)
	assert.Equal(t, &model.Junction{Table: "membership", LocalColumns: []string{"user_id"}, RemoteColumns: []string{"group_id"}}, groups.Through)

	group, _ := schema.Model("Group")
	assert.Equal(t, []string{"parent_group", "groups", "memberships", "users"}, relationshipNames(group))
	parent := mustRelationship(t, group, "parent_group")
	assert.False(t, parent.Uselist)
	assert.Equal(t, []string{"parent_group_id"}, parent.LocalColumns)
	assert.Equal(t, []string{"id"}, parent.RemoteColumns)
}

func TestBuildModelsSkipsTablesWithoutPrimaryKeyAndExcluded(t *testing.T) {
	raw := &Schema{Tables: []Table{
		{Name: "audit_log", Columns: []Column{{Name: "message", DataType: "text"}}},
		{Name: "tmp_import", Columns: []Column{{Name: "id", DataType: "int", IsPrimaryKey: true}}},
		{Name: "user", Columns: []Column{{Name: "id", DataType: "int", IsPrimaryKey: true}}},
	}}

	schema, err := BuildModels(raw, Options{Exclude: []string{"TMP_*"}})
	require.NoError(t, err)
	require.Len(t, schema.Models(), 1)
	assert.Equal(t, "User", schema.Models()[0].Name)
}

func TestBuildModelsCompositeForeignKey(t *testing.T) {
	raw := &Schema{Tables: []Table{
		{Name: "articles", Columns: []Column{
			{Name: "id", DataType: "int", IsPrimaryKey: true},
			{Name: "author_first_name", DataType: "varchar"},
			{Name: "author_last_name", DataType: "varchar"},
		}, ForeignKeys: []ForeignKey{
			{ConstraintName: "fk_author", ColumnName: "author_first_name", ReferencedTable: "authors", ReferencedColumn: "first_name", OrdinalPosition: 1},
			{ConstraintName: "fk_author", ColumnName: "author_last_name", ReferencedTable: "authors", ReferencedColumn: "last_name", OrdinalPosition: 2},
		}},
		{Name: "authors", Columns: []Column{
			{Name: "first_name", DataType: "varchar", IsPrimaryKey: true},
			{Name: "last_name", DataType: "varchar", IsPrimaryKey: true},
		}},
	}}

	schema, err := BuildModels(raw, Options{})
	require.NoError(t, err)

	article, _ := schema.Model("Article")
	author := mustRelationship(t, article, "author")
	assert.Equal(t, []string{"author_first_name", "author_last_name"}, author.LocalColumns)
	assert.Equal(t, []string{"first_name", "last_name"}, author.RemoteColumns)

	authorModel, _ := schema.Model("Author")
	articles := mustRelationship(t, authorModel, "articles")
	assert.True(t, articles.Uselist)
	assert.Equal(t, []string{"first_name", "last_name"}, articles.LocalColumns)
}

func TestBuildModelsResolvesNameCollisions(t *testing.T) {
	raw := &Schema{Tables: []Table{
		{Name: "post", Columns: []Column{
			{Name: "id", DataType: "int", IsPrimaryKey: true},
			{Name: "owner", DataType: "int"},
			{Name: "editor_id", DataType: "int", IsNullable: true},
		}, ForeignKeys: []ForeignKey{
			{ConstraintName: "fk_editor", ColumnName: "editor_id", ReferencedTable: "user", ReferencedColumn: "id", OrdinalPosition: 1},
			{ConstraintName: "fk_owner", ColumnName: "owner", ReferencedTable: "user", ReferencedColumn: "id", OrdinalPosition: 1},
		}},
		{Name: "user", Columns: []Column{{Name: "id", DataType: "int", IsPrimaryKey: true}}},
	}}

	schema, err := BuildModels(raw, Options{})
	require.NoError(t, err)

	post, _ := schema.Model("Post")
	assert.Equal(t, []string{"editor", "owner2"}, relationshipNames(post))
	user, _ := schema.Model("User")
	assert.Equal(t, []string{"editor_posts", "owner_posts"}, relationshipNames(user))
	// two FKs to the same table are not a junction
	for _, rel := range user.Relationships() {
		assert.Nil(t, rel.Through)
	}
}

func mustColumn(t *testing.T, m *model.Model, name string) *model.Column {
	t.Helper()
	c, ok := m.Column(name)
	require.True(t, ok, "column %s.%s", m.Name, name)
	return c
}

func mustRelationship(t *testing.T, m *model.Model, name string) *model.Relationship {
	t.Helper()
	a, ok := m.Attr(name)
	require.True(t, ok, "relationship %s.%s", m.Name, name)
	rel, ok := a.(*model.Relationship)
	require.True(t, ok)
	return rel
}

func relationshipNames(m *model.Model) []string {
	var out []string
	for _, rel := range m.Relationships() {
		out = append(out, rel.Name)
	}
	return out
}
