package minibatch

import (
	"github.com/numaproj/numadedup/pkg/changelog"
	"github.com/numaproj/numadedup/pkg/dedup/ordering"
)

// Entry is one buffered row with the ordering value assigned at arrival.
type Entry struct {
	Row      changelog.Row
	Ordering ordering.Value
}

// Bundle buffers rows per key. Keys are kept in the order of their first row and
// rows per key in arrival order.
type Bundle struct {
	keys []changelog.Key
	rows map[changelog.Key][]Entry
	size int
}

// NewBundle returns an empty bundle.
func NewBundle() *Bundle {
	return &Bundle{rows: make(map[changelog.Key][]Entry)}
}

// Add appends a row for key.
func (b *Bundle) Add(key changelog.Key, row changelog.Row, v ordering.Value) {
	entries, ok := b.rows[key]
	if !ok {
		b.keys = append(b.keys, key)
	}
	b.rows[key] = append(entries, Entry{Row: row, Ordering: v})
	b.size++
}

// Keys returns the buffered keys in first arrival order.
func (b *Bundle) Keys() []changelog.Key {
	return b.keys
}

// Rows returns the buffered rows of key in arrival order.
func (b *Bundle) Rows(key changelog.Key) []Entry {
	return b.rows[key]
}

// Len returns the number of buffered rows.
func (b *Bundle) Len() int {
	return b.size
}

// Reset drops every buffered row.
func (b *Bundle) Reset() {
	b.keys = nil
	b.rows = make(map[changelog.Key][]Entry)
	b.size = 0
}
