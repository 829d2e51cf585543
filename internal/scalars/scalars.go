// Package scalars defines the custom GraphQL scalars used by filter inputs and
// connection node types. Scalars are shared through Default so every generated
// type references the same instances within a schema.
package scalars

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"sync"
	"time"

	"github.com/graphql-go/graphql"
	"github.com/graphql-go/graphql/language/ast"

	"graphql-sqlfilter/internal/sqltype"
)

// Set groups one instance of every scalar.
type Set struct {
	JSON     *graphql.Scalar
	BigInt   *graphql.Scalar
	Decimal  *graphql.Scalar
	Date     *graphql.Scalar
	DateTime *graphql.Scalar
	Generic  *graphql.Scalar
}

var defaultSet = sync.OnceValue(func() *Set {
	return &Set{
		JSON:     JSON(),
		BigInt:   BigInt(),
		Decimal:  Decimal(),
		Date:     Date(),
		DateTime: DateTime(),
		Generic:  Generic(),
	}
})

// Default returns the process-wide scalar set.
func Default() *Set {
	return defaultSet()
}

// ForType returns the GraphQL scalar for a column type category.
// Enums are not handled here; callers build an enum type from the column.
func (s *Set) ForType(t sqltype.GraphQLType) graphql.Output {
	switch t {
	case sqltype.TypeInt:
		return graphql.Int
	case sqltype.TypeBigInt:
		return s.BigInt
	case sqltype.TypeFloat:
		return graphql.Float
	case sqltype.TypeDecimal:
		return s.Decimal
	case sqltype.TypeBoolean:
		return graphql.Boolean
	case sqltype.TypeJSON:
		return s.JSON
	case sqltype.TypeDate:
		return s.Date
	case sqltype.TypeDateTime:
		return s.DateTime
	case sqltype.TypeGeneric:
		return s.Generic
	default:
		return graphql.String
	}
}

func JSON() *graphql.Scalar {
	return graphql.NewScalar(graphql.ScalarConfig{
		Name:        "JSON",
		Description: "Arbitrary JSON value serialized as a string.",
		Serialize: func(value interface{}) interface{} {
			switch v := value.(type) {
			case []byte:
				return string(v)
			case string:
				return v
			case nil:
				return nil
			default:
				serialized, err := json.Marshal(v)
				if err != nil {
					slog.Default().Warn("failed to serialize JSON scalar", slog.String("error", err.Error()))
					return nil
				}
				return string(serialized)
			}
		},
		ParseValue: func(value interface{}) interface{} {
			if s, ok := value.(string); ok {
				return s
			}
			return nil
		},
		ParseLiteral: func(valueAST ast.Value) interface{} {
			if sv, ok := valueAST.(*ast.StringValue); ok {
				return sv.Value
			}
			return nil
		},
	})
}

func BigInt() *graphql.Scalar {
	return graphql.NewScalar(graphql.ScalarConfig{
		Name:        "BigInt",
		Description: "64-bit integer value serialized as a string.",
		Serialize: func(value interface{}) interface{} {
			switch v := value.(type) {
			case uint:
				return strconv.FormatUint(uint64(v), 10)
			case uint64:
				return strconv.FormatUint(v, 10)
			case []byte:
				value = string(v)
			}
			if parsed, ok := toInt64(value); ok {
				return strconv.FormatInt(parsed, 10)
			}
			return nil
		},
		ParseValue: func(value interface{}) interface{} {
			if parsed, ok := toInt64(value); ok {
				return parsed
			}
			return nil
		},
		ParseLiteral: func(valueAST ast.Value) interface{} {
			switch v := valueAST.(type) {
			case *ast.IntValue:
				if parsed, err := strconv.ParseInt(v.Value, 10, 64); err == nil {
					return parsed
				}
			case *ast.StringValue:
				if parsed, err := strconv.ParseInt(v.Value, 10, 64); err == nil {
					return parsed
				}
			}
			return nil
		},
	})
}

// toInt64 accepts integer kinds, integral floats within range, and decimal strings.
func toInt64(value interface{}) (int64, bool) {
	switch v := value.(type) {
	case int:
		return int64(v), true
	case int8:
		return int64(v), true
	case int16:
		return int64(v), true
	case int32:
		return int64(v), true
	case int64:
		return v, true
	case uint8:
		return int64(v), true
	case uint16:
		return int64(v), true
	case uint32:
		return int64(v), true
	case uint:
		if uint64(v) > math.MaxInt64 {
			return 0, false
		}
		return int64(v), true
	case uint64:
		if v > math.MaxInt64 {
			return 0, false
		}
		return int64(v), true
	case float64:
		if v != math.Trunc(v) || v >= math.MaxInt64 || v < math.MinInt64 {
			return 0, false
		}
		return int64(v), true
	case string:
		parsed, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return 0, false
		}
		return parsed, true
	default:
		return 0, false
	}
}

func Decimal() *graphql.Scalar {
	coerce := func(value interface{}) interface{} {
		switch v := value.(type) {
		case string:
			if _, err := strconv.ParseFloat(v, 64); err != nil {
				return nil
			}
			return v
		case []byte:
			return string(v)
		case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
			return fmt.Sprintf("%v", v)
		default:
			return nil
		}
	}
	return graphql.NewScalar(graphql.ScalarConfig{
		Name:        "Decimal",
		Description: "Fixed-point decimal value serialized as a string.",
		Serialize:   coerce,
		ParseValue:  coerce,
		ParseLiteral: func(valueAST ast.Value) interface{} {
			switch v := valueAST.(type) {
			case *ast.StringValue:
				return coerce(v.Value)
			case *ast.IntValue:
				return v.Value
			case *ast.FloatValue:
				return v.Value
			default:
				return nil
			}
		},
	})
}

const dateLayout = "2006-01-02"

func parseDate(s string) (time.Time, bool) {
	if parsed, err := time.Parse(dateLayout, s); err == nil {
		return parsed, true
	}
	if parsed, err := time.Parse(time.RFC3339, s); err == nil {
		return time.Date(parsed.Year(), parsed.Month(), parsed.Day(), 0, 0, 0, 0, time.UTC), true
	}
	return time.Time{}, false
}

func Date() *graphql.Scalar {
	return graphql.NewScalar(graphql.ScalarConfig{
		Name:        "Date",
		Description: "Date value serialized as YYYY-MM-DD.",
		Serialize: func(value interface{}) interface{} {
			switch v := value.(type) {
			case time.Time:
				return v.UTC().Format(dateLayout)
			case *time.Time:
				if v == nil {
					return nil
				}
				return v.UTC().Format(dateLayout)
			case []byte:
				return string(v)
			case string:
				return v
			default:
				return nil
			}
		},
		ParseValue: func(value interface{}) interface{} {
			switch v := value.(type) {
			case time.Time:
				return v
			case string:
				if parsed, ok := parseDate(v); ok {
					return parsed
				}
			}
			return nil
		},
		ParseLiteral: func(valueAST ast.Value) interface{} {
			if sv, ok := valueAST.(*ast.StringValue); ok {
				if parsed, ok := parseDate(sv.Value); ok {
					return parsed
				}
			}
			return nil
		},
	})
}

var dateTimeLayouts = []string{time.RFC3339Nano, "2006-01-02 15:04:05", "2006-01-02T15:04:05"}

func parseDateTime(s string) (time.Time, bool) {
	for _, layout := range dateTimeLayouts {
		if parsed, err := time.Parse(layout, s); err == nil {
			return parsed, true
		}
	}
	return time.Time{}, false
}

func DateTime() *graphql.Scalar {
	return graphql.NewScalar(graphql.ScalarConfig{
		Name:        "DateTime",
		Description: "Timestamp serialized as RFC 3339.",
		Serialize: func(value interface{}) interface{} {
			switch v := value.(type) {
			case time.Time:
				return v.UTC().Format(time.RFC3339Nano)
			case *time.Time:
				if v == nil {
					return nil
				}
				return v.UTC().Format(time.RFC3339Nano)
			case []byte:
				if parsed, ok := parseDateTime(string(v)); ok {
					return parsed.UTC().Format(time.RFC3339Nano)
				}
				return string(v)
			default:
				return nil
			}
		},
		ParseValue: func(value interface{}) interface{} {
			switch v := value.(type) {
			case time.Time:
				return v
			case string:
				if parsed, ok := parseDateTime(v); ok {
					return parsed
				}
			}
			return nil
		},
		ParseLiteral: func(valueAST ast.Value) interface{} {
			if sv, ok := valueAST.(*ast.StringValue); ok {
				if parsed, ok := parseDateTime(sv.Value); ok {
					return parsed
				}
			}
			return nil
		},
	})
}

// Generic accepts any scalar or list literal unchanged. It types inputs whose
// value type cannot be inferred, such as computed attributes.
func Generic() *graphql.Scalar {
	identity := func(value interface{}) interface{} { return value }
	var parseLiteral func(valueAST ast.Value) interface{}
	parseLiteral = func(valueAST ast.Value) interface{} {
		switch v := valueAST.(type) {
		case *ast.StringValue:
			return v.Value
		case *ast.BooleanValue:
			return v.Value
		case *ast.EnumValue:
			return v.Value
		case *ast.IntValue:
			if parsed, err := strconv.ParseInt(v.Value, 10, 64); err == nil {
				return int(parsed)
			}
			return nil
		case *ast.FloatValue:
			if parsed, err := strconv.ParseFloat(v.Value, 64); err == nil {
				return parsed
			}
			return nil
		case *ast.ListValue:
			out := make([]interface{}, 0, len(v.Values))
			for _, item := range v.Values {
				out = append(out, parseLiteral(item))
			}
			return out
		case *ast.ObjectValue:
			out := make(map[string]interface{}, len(v.Fields))
			for _, field := range v.Fields {
				out[field.Name.Value] = parseLiteral(field.Value)
			}
			return out
		default:
			return nil
		}
	}
	return graphql.NewScalar(graphql.ScalarConfig{
		Name:         "GenericScalar",
		Description:  "Any scalar, list or object value; its type is not checked.",
		Serialize:    identity,
		ParseValue:   identity,
		ParseLiteral: parseLiteral,
	})
}
