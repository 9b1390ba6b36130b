package decision

import (
	"fmt"
	"strings"

	"github.com/numaproj/numadedup/pkg/dedup/ordering"
)

// Strategy selects which row of a key is kept as the winner.
type Strategy int8

const (
	// FirstRow keeps the row with the smallest ordering value.
	FirstRow Strategy = iota
	// LastRow keeps the row with the largest ordering value.
	LastRow
)

func (s Strategy) String() string {
	switch s {
	case FirstRow:
		return "FIRST_ROW"
	case LastRow:
		return "LAST_ROW"
	default:
		return fmt.Sprintf("Strategy(%d)", int8(s))
	}
}

// ParseStrategy parses FIRST_ROW or LAST_ROW, case insensitive.
func ParseStrategy(s string) (Strategy, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "FIRST_ROW":
		return FirstRow, nil
	case "LAST_ROW":
		return LastRow, nil
	default:
		return 0, fmt.Errorf("unknown dedup strategy %q", s)
	}
}

// comparator reports whether a newly arrived candidate replaces the current
// winner. Ties are resolved by arrival: the earlier row keeps winning under
// FirstRow, the later row wins under LastRow.
type comparator func(candidate, current ordering.Value) bool

func firstRowBeats(candidate, current ordering.Value) bool {
	return candidate < current
}

func lastRowBeats(candidate, current ordering.Value) bool {
	return candidate >= current
}

func (s Strategy) comparator() comparator {
	if s == LastRow {
		return lastRowBeats
	}
	return firstRowBeats
}
