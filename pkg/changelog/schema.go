package changelog

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrSchemaMismatch is returned when a row does not conform to its schema.
var ErrSchemaMismatch = errors.New("row does not match schema")

// FieldType is the logical type of a row field.
type FieldType int8

const (
	TypeInt64 FieldType = iota
	TypeFloat64
	TypeString
	TypeBool
	TypeTimestamp
	TypeBytes
)

func (t FieldType) String() string {
	switch t {
	case TypeInt64:
		return "BIGINT"
	case TypeFloat64:
		return "DOUBLE"
	case TypeString:
		return "STRING"
	case TypeBool:
		return "BOOLEAN"
	case TypeTimestamp:
		return "TIMESTAMP"
	case TypeBytes:
		return "BYTES"
	default:
		return "UNKNOWN"
	}
}

// Zero returns the zero value of the Go type carrying t.
func (t FieldType) Zero() any {
	switch t {
	case TypeInt64:
		return int64(0)
	case TypeFloat64:
		return float64(0)
	case TypeString:
		return ""
	case TypeBool:
		return false
	case TypeTimestamp:
		return time.Time{}
	case TypeBytes:
		return []byte{}
	default:
		return nil
	}
}

// ParseFieldType parses the SQL-ish type names used in configuration.
func ParseFieldType(s string) (FieldType, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "BIGINT", "INT", "INT64", "LONG":
		return TypeInt64, nil
	case "DOUBLE", "FLOAT", "FLOAT64":
		return TypeFloat64, nil
	case "STRING", "VARCHAR":
		return TypeString, nil
	case "BOOLEAN", "BOOL":
		return TypeBool, nil
	case "TIMESTAMP":
		return TypeTimestamp, nil
	case "BYTES", "BINARY":
		return TypeBytes, nil
	default:
		return TypeInt64, fmt.Errorf("unknown field type %q", s)
	}
}

// Field describes one column of a Row.
type Field struct {
	Name     string
	Type     FieldType
	Nullable bool
}

// Schema is the ordered list of fields every Row of a stream carries.
type Schema struct {
	Fields []Field
}

// NewSchema returns a Schema, rejecting empty and duplicated field names.
func NewSchema(fields ...Field) (*Schema, error) {
	seen := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		if f.Name == "" {
			return nil, fmt.Errorf("schema field name can not be empty")
		}
		if _, ok := seen[f.Name]; ok {
			return nil, fmt.Errorf("duplicated schema field %q", f.Name)
		}
		seen[f.Name] = struct{}{}
	}
	return &Schema{Fields: fields}, nil
}

// IndexOf returns the position of the named field, or -1.
func (s *Schema) IndexOf(name string) int {
	for i, f := range s.Fields {
		if f.Name == name {
			return i
		}
	}
	return -1
}

// Arity is the number of fields.
func (s *Schema) Arity() int {
	return len(s.Fields)
}

// Validate checks the field count and the Go type of every value.
func (s *Schema) Validate(row Row) error {
	if len(row.Fields) != len(s.Fields) {
		return fmt.Errorf("%w: expected %d fields, got %d", ErrSchemaMismatch, len(s.Fields), len(row.Fields))
	}
	for i, f := range s.Fields {
		v := row.Fields[i]
		if v == nil {
			if !f.Nullable {
				return fmt.Errorf("%w: field %q is not nullable", ErrSchemaMismatch, f.Name)
			}
			continue
		}
		if !typeMatches(f.Type, v) {
			return fmt.Errorf("%w: field %q expects %s, got %T", ErrSchemaMismatch, f.Name, f.Type, v)
		}
	}
	return nil
}

func typeMatches(t FieldType, v any) bool {
	switch v.(type) {
	case int64:
		return t == TypeInt64
	case float64:
		return t == TypeFloat64
	case string:
		return t == TypeString
	case bool:
		return t == TypeBool
	case time.Time:
		return t == TypeTimestamp
	case []byte:
		return t == TypeBytes
	default:
		return false
	}
}
