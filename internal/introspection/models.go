package introspection

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"strings"

	"github.com/iancoleman/strcase"

	"graphql-sqlfilter/internal/model"
	"graphql-sqlfilter/internal/naming"
	"graphql-sqlfilter/internal/sqltype"
)

// Options controls how tables become models.
type Options struct {
	Namer *naming.Namer
	// Exclude holds case-insensitive glob patterns of table names to skip.
	Exclude []string
	Logger  *slog.Logger
}

// Reflect introspects databaseName and builds a validated model schema from it.
func Reflect(ctx context.Context, db Queryer, databaseName string, opts Options) (*model.Schema, error) {
	raw, err := ReadSchema(ctx, db, databaseName, opts.Logger)
	if err != nil {
		return nil, err
	}
	_, span := startSpan(ctx, "introspection.build_models")
	defer span.End()
	schema, err := BuildModels(raw, opts)
	if err != nil {
		recordSpanError(span, err)
		return nil, err
	}
	return schema, nil
}

type builder struct {
	namer    *naming.Namer
	logger   *slog.Logger
	names    *naming.CollisionResolver
	models   map[string]*model.Model // by table name
	fkCount  map[string]map[string]int
	excludes []string
}

// BuildModels maps every base table with a primary key to a model. Foreign
// keys become many-to-one relationships and their reverse collections; a
// table with exactly two non-null foreign keys to different tables also links
// those tables many-to-many through itself.
func BuildModels(raw *Schema, opts Options) (*model.Schema, error) {
	b := &builder{
		namer:    opts.Namer,
		logger:   opts.Logger,
		models:   make(map[string]*model.Model),
		fkCount:  make(map[string]map[string]int),
		excludes: opts.Exclude,
	}
	if b.namer == nil {
		b.namer = naming.Default()
	}
	if b.logger == nil {
		b.logger = slog.Default()
	}
	b.names = naming.NewCollisionResolver(b.logger)

	var ordered []*model.Model
	for _, table := range raw.Tables {
		if m := b.model(table); m != nil {
			b.models[table.Name] = m
			ordered = append(ordered, m)
		}
	}

	for _, table := range raw.Tables {
		for _, fk := range ForeignKeyConstraints(table) {
			if b.fkCount[table.Name] == nil {
				b.fkCount[table.Name] = make(map[string]int)
			}
			b.fkCount[table.Name][fk.ReferencedTable]++
		}
	}
	for _, table := range raw.Tables {
		b.manyToOne(table)
	}
	for _, table := range raw.Tables {
		b.oneToMany(table, raw)
	}
	for _, table := range raw.Tables {
		b.manyToMany(table)
	}

	schema := model.NewSchema()
	if err := schema.Add(ordered...); err != nil {
		return nil, err
	}
	if err := schema.Validate(); err != nil {
		return nil, err
	}
	return schema, nil
}

func (b *builder) excluded(table string) bool {
	lower := strings.ToLower(table)
	for _, pattern := range b.excludes {
		if ok, err := path.Match(strings.ToLower(pattern), lower); err == nil && ok {
			return true
		}
	}
	return false
}

func (b *builder) model(table Table) *model.Model {
	switch {
	case table.IsView:
		b.logger.Debug("skipping view", slog.String("table", table.Name))
		return nil
	case b.excluded(table.Name):
		b.logger.Debug("skipping excluded table", slog.String("table", table.Name))
		return nil
	case len(table.PrimaryKey()) == 0:
		b.logger.Warn("skipping table without primary key", slog.String("table", table.Name))
		return nil
	}

	name := b.names.RegisterType(b.namer.ModelName(table.Name), "table "+table.Name)
	m := model.New(name, table.Name)
	for _, col := range table.Columns {
		b.names.RegisterField(name, col.Name, "column "+col.Name)
		c := &model.Column{
			Name:       col.Name,
			Type:       sqltype.ParseColumnType(col.DataType, col.ColumnType),
			Nullable:   col.IsNullable,
			PrimaryKey: col.IsPrimaryKey,
			Comment:    col.Comment,
		}
		if c.Type.Is(sqltype.Enum) {
			c.EnumValues = col.EnumValues
		}
		m.Add(c)
	}
	return m
}

func (b *builder) addRelationship(owner *model.Model, rel *model.Relationship, source string) {
	rel.Name = b.names.RegisterField(owner.Name, rel.Name, source)
	owner.Add(rel)
}

func (b *builder) manyToOne(table Table) {
	owner := b.models[table.Name]
	if owner == nil {
		return
	}
	for _, fk := range ForeignKeyConstraints(table) {
		target := b.models[fk.ReferencedTable]
		if target == nil {
			continue
		}
		name := b.namer.ManyToOneName(fk.ColumnNames[0])
		if len(fk.ColumnNames) > 1 {
			name = strcase.ToSnake(b.namer.Singularize(fk.ReferencedTable))
		}
		b.addRelationship(owner, &model.Relationship{
			Name:          name,
			Target:        target.Name,
			LocalColumns:  append([]string(nil), fk.ColumnNames...),
			RemoteColumns: append([]string(nil), fk.ReferencedColumns...),
		}, "foreign key "+fk.ConstraintName)
	}
}

func (b *builder) oneToMany(table Table, raw *Schema) {
	owner := b.models[table.Name]
	if owner == nil {
		return
	}
	for _, other := range raw.Tables {
		source := b.models[other.Name]
		if source == nil {
			continue
		}
		for _, fk := range ForeignKeyConstraints(other) {
			if fk.ReferencedTable != table.Name {
				continue
			}
			isOnlyFK := b.fkCount[other.Name][table.Name] == 1
			b.addRelationship(owner, &model.Relationship{
				Name:          b.namer.OneToManyName(other.Name, fk.ColumnNames[0], isOnlyFK),
				Target:        source.Name,
				LocalColumns:  append([]string(nil), fk.ReferencedColumns...),
				RemoteColumns: append([]string(nil), fk.ColumnNames...),
				Uselist:       true,
			}, "reverse foreign key "+other.Name+"."+fk.ConstraintName)
		}
	}
}

func (b *builder) manyToMany(table Table) {
	fks := ForeignKeyConstraints(table)
	if table.IsView || b.excluded(table.Name) || len(fks) != 2 || fks[0].ReferencedTable == fks[1].ReferencedTable {
		return
	}
	for _, fk := range fks {
		for _, name := range fk.ColumnNames {
			if col, ok := table.Column(name); !ok || col.IsNullable {
				return
			}
		}
	}
	left, right := b.models[fks[0].ReferencedTable], b.models[fks[1].ReferencedTable]
	if left == nil || right == nil {
		return
	}
	b.link(left, right, table.Name, fks[0], fks[1])
	b.link(right, left, table.Name, fks[1], fks[0])
}

// link adds owner's collection of target through junction, where local is the
// junction's key to owner and remote its key to target.
func (b *builder) link(owner, target *model.Model, junction string, local, remote ForeignKeyConstraint) {
	b.addRelationship(owner, &model.Relationship{
		Name:          b.namer.Pluralize(strcase.ToSnake(target.Name)),
		Target:        target.Name,
		LocalColumns:  append([]string(nil), local.ReferencedColumns...),
		RemoteColumns: append([]string(nil), remote.ReferencedColumns...),
		Through: &model.Junction{
			Table:         junction,
			LocalColumns:  append([]string(nil), local.ColumnNames...),
			RemoteColumns: append([]string(nil), remote.ColumnNames...),
		},
		Uselist: true,
	}, fmt.Sprintf("junction %s", junction))
}
