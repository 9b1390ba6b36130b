package changelog

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Row is an ordered tuple of typed fields tagged with a change kind.
// Supported field values are int64, float64, string, bool, time.Time, []byte and nil.
type Row struct {
	Kind   Kind
	Fields []any
}

// NewRow returns a Row of the given kind.
func NewRow(kind Kind, fields ...any) Row {
	return Row{Kind: kind, Fields: fields}
}

// InsertRow is shorthand for NewRow(Insert, fields...).
func InsertRow(fields ...any) Row {
	return NewRow(Insert, fields...)
}

// IsZero returns true for the zero Row, which is used as "no row".
func (r Row) IsZero() bool {
	return r.Fields == nil
}

// Clone returns a deep copy so that the caller can not alias the stored row.
func (r Row) Clone() Row {
	if r.Fields == nil {
		return Row{Kind: r.Kind}
	}
	fields := make([]any, len(r.Fields))
	for i, v := range r.Fields {
		if b, ok := v.([]byte); ok {
			cp := make([]byte, len(b))
			copy(cp, b)
			fields[i] = cp
			continue
		}
		fields[i] = v
	}
	return Row{Kind: r.Kind, Fields: fields}
}

// WithKind returns a copy of r carrying kind.
func (r Row) WithKind(kind Kind) Row {
	c := r.Clone()
	c.Kind = kind
	return c
}

// FieldsEqual compares the fields of two rows, ignoring their kinds.
func (r Row) FieldsEqual(other Row) bool {
	if len(r.Fields) != len(other.Fields) {
		return false
	}
	for i := range r.Fields {
		if !valueEqual(r.Fields[i], other.Fields[i]) {
			return false
		}
	}
	return true
}

// Equal compares kind and fields.
func (r Row) Equal(other Row) bool {
	return r.Kind == other.Kind && r.FieldsEqual(other)
}

// String renders the row as "+I[a, 1, true]".
func (r Row) String() string {
	var sb strings.Builder
	sb.WriteString(r.Kind.ShortString())
	sb.WriteByte('[')
	for i, v := range r.Fields {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(formatValue(v))
	}
	sb.WriteByte(']')
	return sb.String()
}

func valueEqual(a, b any) bool {
	switch av := a.(type) {
	case nil:
		return b == nil
	case []byte:
		bv, ok := b.([]byte)
		return ok && bytes.Equal(av, bv)
	case time.Time:
		bv, ok := b.(time.Time)
		return ok && av.Equal(bv)
	default:
		return a == b
	}
}

func formatValue(v any) string {
	switch t := v.(type) {
	case nil:
		return "null"
	case int64:
		return strconv.FormatInt(t, 10)
	case float64:
		return strconv.FormatFloat(t, 'g', -1, 64)
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case time.Time:
		return t.UTC().Format(time.RFC3339Nano)
	case []byte:
		return fmt.Sprintf("%x", t)
	default:
		return fmt.Sprintf("%v", t)
	}
}
