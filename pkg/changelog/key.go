package changelog

import (
	"fmt"
	"strconv"
	"strings"
)

// Key is the projection of one or more fields of a Row. Rows with equal keys
// belong to the same dedup partition.
type Key string

// KeySelector projects the key fields out of a row.
type KeySelector struct {
	indices []int
	names   []string
}

// NewKeySelector returns a KeySelector over the named fields of schema.
func NewKeySelector(schema *Schema, names ...string) (*KeySelector, error) {
	if len(names) == 0 {
		return nil, fmt.Errorf("at least one key field is required")
	}
	ks := &KeySelector{names: names}
	for _, n := range names {
		idx := schema.IndexOf(n)
		if idx < 0 {
			return nil, fmt.Errorf("key field %q not found in schema", n)
		}
		ks.indices = append(ks.indices, idx)
	}
	return ks, nil
}

// Names returns the key field names.
func (ks *KeySelector) Names() []string {
	return ks.names
}

// Key returns the key of row. String values are quoted so that the encoding is
// unambiguous for any combination of field values.
func (ks *KeySelector) Key(row Row) (Key, error) {
	var sb strings.Builder
	for i, idx := range ks.indices {
		if idx >= len(row.Fields) {
			return "", fmt.Errorf("%w: key field %q missing", ErrSchemaMismatch, ks.names[i])
		}
		if i > 0 {
			sb.WriteByte(',')
		}
		switch v := row.Fields[idx].(type) {
		case string:
			sb.WriteString(strconv.Quote(v))
		default:
			sb.WriteString(formatValue(v))
		}
	}
	return Key(sb.String()), nil
}
