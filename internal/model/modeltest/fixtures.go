// Package modeltest provides a small users-and-groups schema shared by tests.
package modeltest

import (
	"graphql-sqlfilter/internal/model"
	"graphql-sqlfilter/internal/sqltype"
)

// Schema builds the fixture schema:
//
//	User 1-* Membership *-1 Group (and User *-* Group through membership)
//	Group 1-* Group (parent_group / sub_groups)
//	Author 1-* Article with a composite primary key
func Schema() *model.Schema {
	user := model.New("User", "user",
		&model.Column{Name: "id", ColumnName: "user_id", Type: sqltype.Integer, PrimaryKey: true},
		&model.Column{Name: "username", Type: sqltype.String},
		&model.Column{Name: "balance", Type: sqltype.Integer, Nullable: true},
		&model.Column{Name: "is_active", Type: sqltype.Boolean, Nullable: true},
		&model.Column{Name: "status", Type: sqltype.Enum, Nullable: true, EnumValues: []string{"offline", "online"}},
		&model.Computed{Name: "username_hybrid_property", Expr: "LOWER({t}.username)"},
		&model.Relationship{Name: "memberships", Target: "Membership", LocalColumns: []string{"id"}, RemoteColumns: []string{"user_id"}, Uselist: true},
		&model.Relationship{Name: "created_memberships", Target: "Membership", LocalColumns: []string{"username"}, RemoteColumns: []string{"creator_username"}, Uselist: true},
		&model.Relationship{
			Name: "groups", Target: "Group",
			LocalColumns: []string{"id"}, RemoteColumns: []string{"id"},
			Through: &model.Junction{Table: "membership", LocalColumns: []string{"user_id"}, RemoteColumns: []string{"group_id"}},
			Uselist: true,
		},
		&model.Proxy{Name: "member_groups", Via: "memberships", Attr: "group"},
	)

	membership := model.New("Membership", "membership",
		&model.Column{Name: "id", Type: sqltype.Integer, PrimaryKey: true},
		&model.Column{Name: "user_id", Type: sqltype.Integer},
		&model.Column{Name: "group_id", Type: sqltype.Integer},
		&model.Column{Name: "is_moderator", Type: sqltype.Boolean},
		&model.Column{Name: "creator_username", Type: sqltype.String},
		&model.Relationship{Name: "user", Target: "User", LocalColumns: []string{"user_id"}, RemoteColumns: []string{"id"}},
		&model.Relationship{Name: "group", Target: "Group", LocalColumns: []string{"group_id"}, RemoteColumns: []string{"id"}},
	)

	group := model.New("Group", "group",
		&model.Column{Name: "id", Type: sqltype.Integer, PrimaryKey: true},
		&model.Column{Name: "name", Type: sqltype.String},
		&model.Column{Name: "parent_group_id", Type: sqltype.Integer, Nullable: true},
		&model.Relationship{Name: "memberships", Target: "Membership", LocalColumns: []string{"id"}, RemoteColumns: []string{"group_id"}, Uselist: true},
		&model.Relationship{Name: "parent_group", Target: "Group", LocalColumns: []string{"parent_group_id"}, RemoteColumns: []string{"id"}},
		&model.Relationship{Name: "sub_groups", Target: "Group", LocalColumns: []string{"id"}, RemoteColumns: []string{"parent_group_id"}, Uselist: true},
	)

	author := model.New("Author", "author",
		&model.Column{Name: "first_name", Type: sqltype.String, PrimaryKey: true},
		&model.Column{Name: "last_name", Type: sqltype.String, PrimaryKey: true},
		&model.Relationship{
			Name: "articles", Target: "Article",
			LocalColumns:  []string{"first_name", "last_name"},
			RemoteColumns: []string{"author_first_name", "author_last_name"},
			Uselist:       true,
		},
	)

	article := model.New("Article", "article",
		&model.Column{Name: "id", Type: sqltype.Integer, PrimaryKey: true},
		&model.Column{Name: "text", Type: sqltype.Text, Nullable: true},
		&model.Column{Name: "tags", Type: sqltype.ArrayOf(sqltype.String), Nullable: true},
		&model.Column{Name: "author_first_name", Type: sqltype.String},
		&model.Column{Name: "author_last_name", Type: sqltype.String},
		&model.Relationship{
			Name: "author", Target: "Author",
			LocalColumns:  []string{"author_first_name", "author_last_name"},
			RemoteColumns: []string{"first_name", "last_name"},
		},
	)

	schema := model.NewSchema()
	if err := schema.Add(user, membership, group, author, article); err != nil {
		panic(err)
	}
	if err := schema.Validate(); err != nil {
		panic(err)
	}
	return schema
}

// MustModel returns a fixture model by name.
func MustModel(s *model.Schema, name string) *model.Model {
	m, ok := s.Model(name)
	if !ok {
		panic("unknown fixture model " + name)
	}
	return m
}
