package state

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"hash/crc32"

	"github.com/numaproj/numadedup/pkg/changelog"
	"github.com/numaproj/numadedup/pkg/dedup/ordering"
)

const codecVersion int8 = 1

// statePreamble is the fixed header of an encoded DedupState.
type statePreamble struct {
	Version    int8
	Ordering   int64
	HasEmitted bool
	RowLen     int32
	Checksum   uint32
}

// Codec serializes DedupState with the winner row encoded per the stream schema.
type Codec struct {
	schema *changelog.Schema
}

// NewCodec returns a Codec for rows of schema.
func NewCodec(schema *changelog.Schema) *Codec {
	return &Codec{schema: schema}
}

// Encode encodes s. The winner row is protected by a crc32 checksum.
func (c *Codec) Encode(s DedupState) ([]byte, error) {
	row, err := changelog.EncodeRow(c.schema, s.Winner)
	if err != nil {
		return nil, fmt.Errorf("failed to encode winner row, %w", err)
	}
	var buf = new(bytes.Buffer)
	hp := statePreamble{
		Version:    codecVersion,
		Ordering:   int64(s.Ordering),
		HasEmitted: s.HasEmitted,
		RowLen:     int32(len(row)),
		Checksum:   crc32.ChecksumIEEE(row),
	}
	if err = binary.Write(buf, binary.LittleEndian, hp); err != nil {
		return nil, err
	}
	if _, err = buf.Write(row); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Decode decodes a state encoded by Encode. Any mismatch is reported as ErrCorruptedState.
func (c *Codec) Decode(data []byte) (DedupState, error) {
	var r = bytes.NewReader(data)
	var hp = new(statePreamble)
	if err := binary.Read(r, binary.LittleEndian, hp); err != nil {
		return DedupState{}, fmt.Errorf("%w: %v", ErrCorruptedState, err)
	}
	if hp.Version != codecVersion {
		return DedupState{}, fmt.Errorf("%w: unsupported version %d", ErrCorruptedState, hp.Version)
	}
	if hp.RowLen < 0 || int(hp.RowLen) != r.Len() {
		return DedupState{}, fmt.Errorf("%w: expected row length %d, got %d", ErrCorruptedState, hp.RowLen, r.Len())
	}
	row := data[len(data)-int(hp.RowLen):]
	if crc32.ChecksumIEEE(row) != hp.Checksum {
		return DedupState{}, fmt.Errorf("%w: checksum mismatch", ErrCorruptedState)
	}
	winner, err := changelog.DecodeRow(c.schema, row)
	if err != nil {
		return DedupState{}, fmt.Errorf("%w: %v", ErrCorruptedState, err)
	}
	return DedupState{
		Winner:     winner,
		Ordering:   ordering.Value(hp.Ordering),
		HasEmitted: hp.HasEmitted,
	}, nil
}
