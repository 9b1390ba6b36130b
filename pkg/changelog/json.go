package changelog

import (
	"fmt"

	"github.com/goccy/go-json"
)

type jsonEvent struct {
	Key  string         `json:"key"`
	Kind string         `json:"kind"`
	Row  map[string]any `json:"row"`
}

// MarshalEventJSON renders e as {"key": ..., "kind": "INSERT", "row": {field: value}}.
// Row fields are named after schema and written in name order.
func MarshalEventJSON(schema *Schema, e Event) ([]byte, error) {
	if len(e.Row.Fields) != schema.Arity() {
		return nil, fmt.Errorf("%w: expected %d fields, got %d", ErrSchemaMismatch, schema.Arity(), len(e.Row.Fields))
	}
	row := make(map[string]any, len(e.Row.Fields))
	for i, f := range schema.Fields {
		row[f.Name] = e.Row.Fields[i]
	}
	return json.Marshal(jsonEvent{Key: string(e.Key), Kind: e.Row.Kind.String(), Row: row})
}
