// Package sqltype describes column value types as a small hierarchy.
// Operator rules are registered against a type and inherited by its refinements,
// so a rule for Integer also covers SmallInteger and BigInteger.
package sqltype

import "strings"

// GraphQLType represents the category of GraphQL scalar used for a column's values.
type GraphQLType int

const (
	// TypeString is the default category for text and unknown SQL types.
	TypeString GraphQLType = iota
	// TypeInt represents integer numeric types.
	TypeInt
	// TypeBigInt represents 64-bit integers that exceed GraphQL Int.
	TypeBigInt
	// TypeFloat represents floating-point numeric types.
	TypeFloat
	// TypeDecimal represents fixed-point numeric types.
	TypeDecimal
	// TypeBoolean represents boolean types.
	TypeBoolean
	// TypeJSON represents JSON data types.
	TypeJSON
	// TypeDate represents calendar dates.
	TypeDate
	// TypeDateTime represents timestamps.
	TypeDateTime
	// TypeEnum represents enumerations; the concrete enum comes from the column.
	TypeEnum
	// TypeGeneric is used when the value type cannot be inferred.
	TypeGeneric
)

// String returns the GraphQL scalar type name for schema generation.
func (t GraphQLType) String() string {
	switch t {
	case TypeInt:
		return "Int"
	case TypeBigInt:
		return "BigInt"
	case TypeFloat:
		return "Float"
	case TypeDecimal:
		return "Decimal"
	case TypeBoolean:
		return "Boolean"
	case TypeJSON:
		return "JSON"
	case TypeDate:
		return "Date"
	case TypeDateTime:
		return "DateTime"
	case TypeEnum:
		return "Enum"
	case TypeGeneric:
		return "GenericScalar"
	default:
		return "String"
	}
}

// Type is a node in the column type hierarchy.
type Type struct {
	Name    string
	Parent  *Type
	GraphQL GraphQLType
	// Elem is the element type of an array type.
	Elem *Type
}

// Built-in types. Refinements point at their parent so rule lookup can walk upward.
var (
	Boolean = &Type{Name: "BOOLEAN", GraphQL: TypeBoolean}

	Date     = &Type{Name: "DATE", GraphQL: TypeDate}
	Time     = &Type{Name: "TIME", GraphQL: TypeString}
	DateTime = &Type{Name: "DATETIME", GraphQL: TypeDateTime}
	// Timestamp refines DateTime.
	Timestamp = &Type{Name: "TIMESTAMP", Parent: DateTime, GraphQL: TypeDateTime}

	Integer      = &Type{Name: "INTEGER", GraphQL: TypeInt}
	SmallInteger = &Type{Name: "SMALLINT", Parent: Integer, GraphQL: TypeInt}
	BigInteger   = &Type{Name: "BIGINT", Parent: Integer, GraphQL: TypeBigInt}
	Year         = &Type{Name: "YEAR", Parent: Integer, GraphQL: TypeInt}

	Numeric = &Type{Name: "NUMERIC", GraphQL: TypeDecimal}
	Float   = &Type{Name: "FLOAT", Parent: Numeric, GraphQL: TypeFloat}

	String = &Type{Name: "STRING", GraphQL: TypeString}
	Text   = &Type{Name: "TEXT", Parent: String, GraphQL: TypeString}
	Enum   = &Type{Name: "ENUM", Parent: String, GraphQL: TypeEnum}
	Set    = &Type{Name: "SET", Parent: String, GraphQL: TypeString}
	// TSVector is a full-text search document; it shares the string operators.
	TSVector = &Type{Name: "TSVECTOR", GraphQL: TypeString}

	UUID   = &Type{Name: "UUID", GraphQL: TypeString}
	INET   = &Type{Name: "INET", GraphQL: TypeString}
	CIDR   = &Type{Name: "CIDR", GraphQL: TypeString}
	JSON   = &Type{Name: "JSON", GraphQL: TypeJSON}
	HSTORE = &Type{Name: "HSTORE", GraphQL: TypeJSON}

	// Array is the parent of every ArrayOf type.
	Array = &Type{Name: "ARRAY", GraphQL: TypeString}

	// Binary and Vector have no operator rules of their own.
	Binary = &Type{Name: "BINARY", GraphQL: TypeString}
	Vector = &Type{Name: "VECTOR", GraphQL: TypeString}
)

// ArrayOf returns an array type whose elements have type elem.
func ArrayOf(elem *Type) *Type {
	name := "ARRAY"
	gql := TypeString
	if elem != nil {
		name = elem.Name + "[]"
		gql = elem.GraphQL
	}
	return &Type{Name: name, Parent: Array, GraphQL: gql, Elem: elem}
}

// IsArray reports whether t is an array type.
func (t *Type) IsArray() bool {
	return t.Is(Array)
}

// Is reports whether t is other or refines it.
func (t *Type) Is(other *Type) bool {
	for cur := t; cur != nil; cur = cur.Parent {
		if cur == other {
			return true
		}
	}
	return false
}

// Lineage returns t followed by its ancestors, most specific first.
func (t *Type) Lineage() []*Type {
	var out []*Type
	for cur := t; cur != nil; cur = cur.Parent {
		out = append(out, cur)
	}
	return out
}

func (t *Type) String() string {
	if t == nil {
		return "<nil>"
	}
	return t.Name
}

var byName = map[string]*Type{
	"TINYINT":    SmallInteger,
	"SMALLINT":   SmallInteger,
	"MEDIUMINT":  Integer,
	"INT":        Integer,
	"INTEGER":    Integer,
	"SERIAL":     BigInteger,
	"BIGINT":     BigInteger,
	"BIT":        Integer,
	"YEAR":       Year,
	"FLOAT":      Float,
	"DOUBLE":     Float,
	"REAL":       Float,
	"DECIMAL":    Numeric,
	"NUMERIC":    Numeric,
	"BOOL":       Boolean,
	"BOOLEAN":    Boolean,
	"JSON":       JSON,
	"JSONB":      JSON,
	"HSTORE":     HSTORE,
	"CHAR":       String,
	"VARCHAR":    String,
	"TINYTEXT":   Text,
	"TEXT":       Text,
	"MEDIUMTEXT": Text,
	"LONGTEXT":   Text,
	"ENUM":       Enum,
	"SET":        Set,
	"BLOB":       Binary,
	"TINYBLOB":   Binary,
	"MEDIUMBLOB": Binary,
	"LONGBLOB":   Binary,
	"BINARY":     Binary,
	"VARBINARY":  Binary,
	"DATE":       Date,
	"DATETIME":   DateTime,
	"TIMESTAMP":  Timestamp,
	"TIME":       Time,
	"UUID":       UUID,
	"INET":       INET,
	"CIDR":       CIDR,
	"TSVECTOR":   TSVector,
	"VECTOR":     Vector,
}

// Parse converts a SQL data type string into a Type.
// The input is case-insensitive and size specifiers like (10,2) or (255) are stripped.
// A trailing "[]" produces an array type. Unknown names produce a detached type with no
// parent, which callers report as unsupported.
func Parse(sqlType string) *Type {
	trimmed := strings.TrimSpace(sqlType)
	if strings.HasSuffix(trimmed, "[]") {
		return ArrayOf(Parse(strings.TrimSuffix(trimmed, "[]")))
	}
	if idx := strings.Index(trimmed, "("); idx != -1 {
		trimmed = trimmed[:idx]
	}
	upper := strings.ToUpper(strings.TrimSpace(trimmed))
	if t, ok := byName[upper]; ok {
		return t
	}
	return &Type{Name: upper, GraphQL: TypeString}
}

// ParseColumnType is like Parse but understands full COLUMN_TYPE strings,
// where MySQL reports booleans as tinyint(1).
func ParseColumnType(dataType, columnType string) *Type {
	if strings.EqualFold(strings.TrimSpace(columnType), "tinyint(1)") {
		return Boolean
	}
	return Parse(dataType)
}
