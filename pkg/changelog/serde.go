package changelog

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"time"
)

type rowPreamble struct {
	Kind  Kind
	Arity int16
}

// EncodeRow encodes row to the binary format described by schema. Every field is
// prefixed with a null marker; variable length values carry an int32 length.
func EncodeRow(schema *Schema, row Row) ([]byte, error) {
	if err := schema.Validate(row); err != nil {
		return nil, err
	}
	var buf = new(bytes.Buffer)
	var preamble = rowPreamble{
		Kind:  row.Kind,
		Arity: int16(len(row.Fields)),
	}
	if err := binary.Write(buf, binary.LittleEndian, preamble); err != nil {
		return nil, err
	}
	for i, f := range schema.Fields {
		if err := encodeValue(buf, f.Type, row.Fields[i]); err != nil {
			return nil, fmt.Errorf("failed to encode field %q, %w", f.Name, err)
		}
	}
	return buf.Bytes(), nil
}

// DecodeRow decodes a row previously encoded with EncodeRow under the same schema.
func DecodeRow(schema *Schema, data []byte) (Row, error) {
	var r = bytes.NewReader(data)
	var preamble = new(rowPreamble)
	if err := binary.Read(r, binary.LittleEndian, preamble); err != nil {
		return Row{}, err
	}
	if !preamble.Kind.IsValid() {
		return Row{}, fmt.Errorf("%w: invalid row kind %d", ErrSchemaMismatch, preamble.Kind)
	}
	if int(preamble.Arity) != schema.Arity() {
		return Row{}, fmt.Errorf("%w: encoded arity %d, schema arity %d", ErrSchemaMismatch, preamble.Arity, schema.Arity())
	}
	fields := make([]any, schema.Arity())
	for i, f := range schema.Fields {
		v, err := decodeValue(r, f.Type)
		if err != nil {
			return Row{}, fmt.Errorf("failed to decode field %q, %w", f.Name, err)
		}
		fields[i] = v
	}
	if r.Len() != 0 {
		return Row{}, fmt.Errorf("%w: %d trailing bytes", ErrSchemaMismatch, r.Len())
	}
	return Row{Kind: preamble.Kind, Fields: fields}, nil
}

func encodeValue(buf *bytes.Buffer, t FieldType, v any) error {
	if v == nil {
		return buf.WriteByte(0)
	}
	if err := buf.WriteByte(1); err != nil {
		return err
	}
	switch t {
	case TypeInt64:
		return binary.Write(buf, binary.LittleEndian, v.(int64))
	case TypeFloat64:
		return binary.Write(buf, binary.LittleEndian, math.Float64bits(v.(float64)))
	case TypeBool:
		var b uint8
		if v.(bool) {
			b = 1
		}
		return buf.WriteByte(b)
	case TypeTimestamp:
		return binary.Write(buf, binary.LittleEndian, v.(time.Time).UnixNano())
	case TypeString:
		return writeBytes(buf, []byte(v.(string)))
	case TypeBytes:
		return writeBytes(buf, v.([]byte))
	default:
		return fmt.Errorf("unknown field type %d", t)
	}
}

func writeBytes(buf *bytes.Buffer, b []byte) error {
	if err := binary.Write(buf, binary.LittleEndian, int32(len(b))); err != nil {
		return err
	}
	_, err := buf.Write(b)
	return err
}

func decodeValue(r *bytes.Reader, t FieldType) (any, error) {
	marker, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	if marker == 0 {
		return nil, nil
	}
	switch t {
	case TypeInt64:
		var v int64
		err = binary.Read(r, binary.LittleEndian, &v)
		return v, err
	case TypeFloat64:
		var v uint64
		err = binary.Read(r, binary.LittleEndian, &v)
		return math.Float64frombits(v), err
	case TypeBool:
		b, err := r.ReadByte()
		return b == 1, err
	case TypeTimestamp:
		var v int64
		err = binary.Read(r, binary.LittleEndian, &v)
		return time.Unix(0, v).UTC(), err
	case TypeString:
		b, err := readBytes(r)
		return string(b), err
	case TypeBytes:
		return readBytes(r)
	default:
		return nil, fmt.Errorf("unknown field type %d", t)
	}
}

func readBytes(r *bytes.Reader) ([]byte, error) {
	var n int32
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return nil, err
	}
	if n < 0 || int(n) > r.Len() {
		return nil, fmt.Errorf("invalid length %d", n)
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return nil, err
	}
	return b, nil
}
