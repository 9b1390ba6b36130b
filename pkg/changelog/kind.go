package changelog

import (
	"fmt"
	"strings"
)

// Kind is the change kind a Row carries in a changelog stream.
type Kind int8

const (
	// Insert adds a new row.
	Insert Kind = iota
	// UpdateBefore retracts the previous version of an updated row.
	UpdateBefore
	// UpdateAfter carries the new version of an updated row.
	UpdateAfter
	// Delete retracts a row.
	Delete
)

func (k Kind) String() string {
	switch k {
	case Insert:
		return "INSERT"
	case UpdateBefore:
		return "UPDATE_BEFORE"
	case UpdateAfter:
		return "UPDATE_AFTER"
	case Delete:
		return "DELETE"
	default:
		return "UNKNOWN"
	}
}

// ShortString returns the compact notation used in logs and golden files, e.g. "+I" or "-U".
func (k Kind) ShortString() string {
	switch k {
	case Insert:
		return "+I"
	case UpdateBefore:
		return "-U"
	case UpdateAfter:
		return "+U"
	case Delete:
		return "-D"
	default:
		return "??"
	}
}

// IsRetraction returns true for kinds that withdraw a previously emitted row.
func (k Kind) IsRetraction() bool {
	return k == UpdateBefore || k == Delete
}

// IsValid returns true if k is one of the four known kinds.
func (k Kind) IsValid() bool {
	return k >= Insert && k <= Delete
}

// ParseKind accepts both the long (INSERT) and the short (+I) notation.
func ParseKind(s string) (Kind, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "", "INSERT", "+I":
		return Insert, nil
	case "UPDATE_BEFORE", "-U":
		return UpdateBefore, nil
	case "UPDATE_AFTER", "+U":
		return UpdateAfter, nil
	case "DELETE", "-D":
		return Delete, nil
	default:
		return Insert, fmt.Errorf("unknown row kind %q", s)
	}
}
