// Package introspection reads table, column and key metadata from a MySQL
// information_schema and turns it into the model graph filter sets are built on.
package introspection

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Column is one column as information_schema reports it.
type Column struct {
	Name         string
	DataType     string
	ColumnType   string
	IsNullable   bool
	IsPrimaryKey bool
	EnumValues   []string
	Comment      string
}

// ForeignKey is one column of a foreign key constraint.
type ForeignKey struct {
	ColumnName       string // e.g., "user_id"
	ReferencedTable  string // e.g., "user"
	ReferencedColumn string // e.g., "id"
	ConstraintName   string // e.g., "membership_ibfk_1"
	OrdinalPosition  int
}

// Table is a base table or view. Views never carry keys.
type Table struct {
	Name        string
	IsView      bool
	Comment     string
	Columns     []Column
	ForeignKeys []ForeignKey
}

// PrimaryKey returns the primary key column names in column order.
func (t Table) PrimaryKey() []string {
	var out []string
	for _, col := range t.Columns {
		if col.IsPrimaryKey {
			out = append(out, col.Name)
		}
	}
	return out
}

// Column looks up a column by name.
func (t Table) Column(name string) (Column, bool) {
	for _, col := range t.Columns {
		if col.Name == name {
			return col, true
		}
	}
	return Column{}, false
}

// Schema is the raw metadata of one database, tables sorted by name.
type Schema struct {
	Database string
	Tables   []Table
}

// Table looks up a table by name.
func (s *Schema) Table(name string) (*Table, bool) {
	for i := range s.Tables {
		if s.Tables[i].Name == name {
			return &s.Tables[i], true
		}
	}
	return nil, false
}

// Queryer provides query access for schema introspection.
type Queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

const (
	tablesSQL = `
		SELECT TABLE_NAME, TABLE_TYPE, TABLE_COMMENT
		FROM INFORMATION_SCHEMA.TABLES
		WHERE TABLE_SCHEMA = ? AND TABLE_TYPE IN ('BASE TABLE', 'VIEW')
		ORDER BY TABLE_NAME`

	columnsSQL = `
		SELECT TABLE_NAME, COLUMN_NAME, DATA_TYPE, COLUMN_TYPE, COLUMN_COMMENT, IS_NULLABLE, COLUMN_KEY
		FROM INFORMATION_SCHEMA.COLUMNS
		WHERE TABLE_SCHEMA = ?
		ORDER BY TABLE_NAME, ORDINAL_POSITION`

	foreignKeysSQL = `
		SELECT TABLE_NAME, COLUMN_NAME, REFERENCED_TABLE_NAME, REFERENCED_COLUMN_NAME, CONSTRAINT_NAME, ORDINAL_POSITION
		FROM INFORMATION_SCHEMA.KEY_COLUMN_USAGE
		WHERE TABLE_SCHEMA = ? AND REFERENCED_TABLE_SCHEMA = TABLE_SCHEMA
		ORDER BY TABLE_NAME, CONSTRAINT_NAME, ORDINAL_POSITION`
)

// ReadSchema reads every base table and view of databaseName with one query
// per metadata kind. A nil logger falls back to slog.Default.
func ReadSchema(ctx context.Context, db Queryer, databaseName string, logger *slog.Logger) (*Schema, error) {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, span := startSpan(ctx, "introspection.read_schema", attribute.String("db.name", databaseName))
	defer span.End()

	schema := &Schema{Database: databaseName}
	index := make(map[string]int)

	err := scanAll(ctx, db, "tables", tablesSQL, databaseName, func(rows *sql.Rows) error {
		var t Table
		var tableType string
		var comment sql.NullString
		if err := rows.Scan(&t.Name, &tableType, &comment); err != nil {
			return err
		}
		t.IsView = strings.EqualFold(tableType, "VIEW")
		t.Comment = strings.TrimSpace(comment.String)
		index[t.Name] = len(schema.Tables)
		schema.Tables = append(schema.Tables, t)
		return nil
	})
	if err != nil {
		recordSpanError(span, err)
		return nil, err
	}

	err = scanAll(ctx, db, "columns", columnsSQL, databaseName, func(rows *sql.Rows) error {
		var table, nullable, key string
		var comment sql.NullString
		var col Column
		if err := rows.Scan(&table, &col.Name, &col.DataType, &col.ColumnType, &comment, &nullable, &key); err != nil {
			return err
		}
		i, ok := index[table]
		if !ok {
			return nil
		}
		col.Comment = strings.TrimSpace(comment.String)
		col.IsNullable = strings.EqualFold(nullable, "YES")
		col.IsPrimaryKey = !schema.Tables[i].IsView && key == "PRI"
		if kind := strings.ToLower(col.DataType); kind == "enum" || kind == "set" {
			values, err := parseValueList(kind, col.ColumnType)
			if err != nil {
				logger.Warn("failed to parse "+kind+" values",
					slog.String("table", table),
					slog.String("column", col.Name),
					slog.String("type", col.ColumnType),
					slog.String("error", err.Error()),
				)
			}
			col.EnumValues = values
		}
		schema.Tables[i].Columns = append(schema.Tables[i].Columns, col)
		return nil
	})
	if err != nil {
		recordSpanError(span, err)
		return nil, err
	}

	err = scanAll(ctx, db, "foreign_keys", foreignKeysSQL, databaseName, func(rows *sql.Rows) error {
		var table string
		var fk ForeignKey
		if err := rows.Scan(&table, &fk.ColumnName, &fk.ReferencedTable, &fk.ReferencedColumn, &fk.ConstraintName, &fk.OrdinalPosition); err != nil {
			return err
		}
		if i, ok := index[table]; ok && !schema.Tables[i].IsView {
			schema.Tables[i].ForeignKeys = append(schema.Tables[i].ForeignKeys, fk)
		}
		return nil
	})
	if err != nil {
		recordSpanError(span, err)
		return nil, err
	}

	span.SetAttributes(attribute.Int("db.tables", len(schema.Tables)))
	return schema, nil
}

// scanAll runs one information_schema query and hands each row to scan.
func scanAll(ctx context.Context, db Queryer, what, query, databaseName string, scan func(*sql.Rows) error) error {
	ctx, span := startSpan(ctx, "introspection.query", attribute.String("introspection.kind", what))
	defer span.End()

	err := func() error {
		rows, err := db.QueryContext(ctx, query, databaseName)
		if err != nil {
			return err
		}
		defer func() { _ = rows.Close() }()
		for rows.Next() {
			if err := scan(rows); err != nil {
				return err
			}
		}
		return rows.Err()
	}()
	if err != nil {
		recordSpanError(span, err)
		return fmt.Errorf("failed to read %s: %w", what, err)
	}
	return nil
}

func startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return otel.Tracer("graphql-sqlfilter/introspection").Start(ctx, name, trace.WithAttributes(attrs...))
}

func recordSpanError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
