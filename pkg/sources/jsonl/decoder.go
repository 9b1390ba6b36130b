package jsonl

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/araddon/dateparse"
	"github.com/goccy/go-json"

	"github.com/numaproj/numadedup/pkg/changelog"
	"github.com/numaproj/numadedup/pkg/dedup"
	"github.com/numaproj/numadedup/pkg/watermark/wmb"
)

// ErrMalformedLine is returned for a line that is not a row or a watermark.
var ErrMalformedLine = errors.New("malformed input line")

// Decoder turns JSON objects into operator elements. Three shapes are accepted:
//
//	{"watermark": 1700000000000}
//	{"kind": "-U", "row": {"id": "a", "ts": 3}}
//	{"id": "a", "ts": 3}
//
// A flat object is an INSERT. Fields missing from the object are null.
// TIMESTAMP fields take epoch milliseconds or any date string dateparse
// understands, BYTES fields take standard base64.
type Decoder struct {
	schema   *changelog.Schema
	location *time.Location
}

// NewDecoder returns a Decoder for rows of schema. Date strings without a zone
// are read in loc, UTC if nil.
func NewDecoder(schema *changelog.Schema, loc *time.Location) *Decoder {
	if loc == nil {
		loc = time.UTC
	}
	return &Decoder{schema: schema, location: loc}
}

// Decode decodes one JSON object.
func (d *Decoder) Decode(line []byte) (dedup.Element, error) {
	dec := json.NewDecoder(bytes.NewReader(line))
	dec.UseNumber()
	var obj map[string]any
	if err := dec.Decode(&obj); err != nil {
		return dedup.Element{}, fmt.Errorf("%w: %v", ErrMalformedLine, err)
	}
	if w, ok := obj["watermark"]; ok && len(obj) == 1 {
		t, err := d.timestamp(w)
		if err != nil {
			return dedup.Element{}, fmt.Errorf("%w: watermark, %v", ErrMalformedLine, err)
		}
		return dedup.WatermarkElement(wmb.Watermark(t)), nil
	}

	kind := changelog.Insert
	if inner, ok := obj["row"].(map[string]any); ok && d.schema.IndexOf("row") < 0 {
		if k, ok := obj["kind"]; ok {
			s, _ := k.(string)
			parsed, err := changelog.ParseKind(s)
			if err != nil {
				return dedup.Element{}, fmt.Errorf("%w: %v", ErrMalformedLine, err)
			}
			kind = parsed
		}
		obj = inner
	}

	fields := make([]any, d.schema.Arity())
	for i, f := range d.schema.Fields {
		v, ok := obj[f.Name]
		if !ok || v == nil {
			continue
		}
		converted, err := d.convert(f.Type, v)
		if err != nil {
			return dedup.Element{}, fmt.Errorf("%w: field %q, %v", ErrMalformedLine, f.Name, err)
		}
		fields[i] = converted
	}
	return dedup.RowElement(changelog.NewRow(kind, fields...)), nil
}

func (d *Decoder) convert(t changelog.FieldType, v any) (any, error) {
	switch t {
	case changelog.TypeInt64:
		switch x := v.(type) {
		case json.Number:
			return x.Int64()
		case string:
			return strconv.ParseInt(x, 10, 64)
		}
	case changelog.TypeFloat64:
		switch x := v.(type) {
		case json.Number:
			return x.Float64()
		case string:
			return strconv.ParseFloat(x, 64)
		}
	case changelog.TypeString:
		switch x := v.(type) {
		case string:
			return x, nil
		case json.Number:
			return x.String(), nil
		}
	case changelog.TypeBool:
		switch x := v.(type) {
		case bool:
			return x, nil
		case string:
			return strconv.ParseBool(x)
		}
	case changelog.TypeTimestamp:
		return d.timestamp(v)
	case changelog.TypeBytes:
		if x, ok := v.(string); ok {
			return base64.StdEncoding.DecodeString(x)
		}
	}
	return nil, fmt.Errorf("can not read %T as %s", v, t)
}

func (d *Decoder) timestamp(v any) (time.Time, error) {
	switch x := v.(type) {
	case json.Number:
		ms, err := x.Int64()
		if err != nil {
			return time.Time{}, err
		}
		return time.UnixMilli(ms), nil
	case string:
		return dateparse.ParseIn(x, d.location)
	default:
		return time.Time{}, fmt.Errorf("can not read %T as a timestamp", v)
	}
}
