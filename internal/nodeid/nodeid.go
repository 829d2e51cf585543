// Package nodeid encodes and decodes Relay global node IDs. An ID is the
// base64 encoding of a JSON array holding the node type name followed by the
// row's primary key values.
package nodeid

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"graphql-sqlfilter/internal/model"
	"graphql-sqlfilter/internal/sqltype"
)

// ErrInvalidID is returned for IDs that do not decode to a type name and at
// least one key value.
var ErrInvalidID = errors.New("invalid node id")

const dateLayout = "2006-01-02"

// Encode builds the global ID of the typeName row with primary key pk.
func Encode(typeName string, pk ...any) (string, error) {
	payload := make([]any, 0, len(pk)+1)
	payload = append(payload, typeName)
	for _, v := range pk {
		if t, ok := v.(time.Time); ok {
			v = t.UTC().Format(time.RFC3339Nano)
		}
		payload = append(payload, v)
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to encode %s id: %w", typeName, err)
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

// Decode splits a global ID into its type name and raw key values. Numbers
// come back as json.Number so large keys keep their precision.
func Decode(id string) (string, []any, error) {
	raw, err := base64.StdEncoding.DecodeString(id)
	if err != nil {
		return "", nil, fmt.Errorf("%w: %v", ErrInvalidID, err)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var payload []any
	if err := dec.Decode(&payload); err != nil {
		return "", nil, fmt.Errorf("%w: %v", ErrInvalidID, err)
	}
	if len(payload) < 2 {
		return "", nil, fmt.Errorf("%w: missing type or primary key values", ErrInvalidID)
	}
	typeName, ok := payload[0].(string)
	if !ok || typeName == "" {
		return "", nil, fmt.Errorf("%w: missing type name", ErrInvalidID)
	}
	return typeName, payload[1:], nil
}

// ParseKey converts a decoded key value into the Go value bound for col.
func ParseKey(col *model.Column, raw any) (any, error) {
	if raw == nil {
		return nil, fmt.Errorf("%w: missing value for %s", ErrInvalidID, col.Name)
	}
	invalid := func(kind string) error {
		return fmt.Errorf("%w: invalid %s value for %s", ErrInvalidID, kind, col.Name)
	}

	var category sqltype.GraphQLType
	if col.Type != nil {
		category = col.Type.GraphQL
	}
	switch category {
	case sqltype.TypeInt, sqltype.TypeBigInt:
		s, ok := numberText(raw)
		if !ok {
			return nil, invalid("integer")
		}
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, invalid("integer")
		}
		return n, nil
	case sqltype.TypeFloat:
		s, ok := numberText(raw)
		if !ok {
			return nil, invalid("float")
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, invalid("float")
		}
		return f, nil
	case sqltype.TypeDecimal:
		s, ok := numberText(raw)
		if !ok {
			return nil, invalid("decimal")
		}
		return s, nil
	case sqltype.TypeBoolean:
		switch v := raw.(type) {
		case bool:
			return v, nil
		case string:
			b, err := strconv.ParseBool(v)
			if err != nil {
				return nil, invalid("boolean")
			}
			return b, nil
		}
		return nil, invalid("boolean")
	case sqltype.TypeDate, sqltype.TypeDateTime:
		s, ok := raw.(string)
		if !ok {
			return nil, invalid("date")
		}
		if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
			if category == sqltype.TypeDate {
				return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), nil
			}
			return t, nil
		}
		if t, err := time.Parse(dateLayout, s); err == nil {
			return t, nil
		}
		return nil, invalid("date")
	default:
		switch v := raw.(type) {
		case string:
			return v, nil
		case json.Number:
			return v.String(), nil
		}
		return nil, invalid("string")
	}
}

func numberText(raw any) (string, bool) {
	switch v := raw.(type) {
	case json.Number:
		return v.String(), true
	case string:
		return v, true
	case int64:
		return strconv.FormatInt(v, 10), true
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), true
	}
	return "", false
}
