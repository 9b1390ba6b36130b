// Package decision decides, per incoming row, how the winner of its key changes.
// The engine is pure: it reads the current state and returns the next one,
// leaving emission and persistence to the caller.
package decision

import (
	"fmt"

	"github.com/numaproj/numadedup/pkg/changelog"
	"github.com/numaproj/numadedup/pkg/dedup/ordering"
	"github.com/numaproj/numadedup/pkg/dedup/state"
)

// Outcome is the effect of one row on the state of its key.
type Outcome int8

const (
	// Insert sets the first winner of an unseen key.
	Insert Outcome = iota
	// Discard leaves the state untouched.
	Discard
	// Update replaces the winner with a row carrying different fields.
	Update
	// NoopUpdate replaces the winner with a field-for-field identical row. Only
	// the ordering value changes, nothing is visible downstream.
	NoopUpdate
	// Retract withdraws the winner and evicts the state of the key.
	Retract
)

func (o Outcome) String() string {
	switch o {
	case Insert:
		return "insert"
	case Discard:
		return "discard"
	case Update:
		return "update"
	case NoopUpdate:
		return "noop_update"
	case Retract:
		return "retract"
	default:
		return fmt.Sprintf("Outcome(%d)", int8(o))
	}
}

// Decision is the result of Engine.Decide. Next is only meaningful when Exists
// is set; a Retract leaves no state behind.
type Decision struct {
	Outcome Outcome
	Next    state.DedupState
	Exists  bool
}

// Changed reports whether the state of the key must be written back.
func (d Decision) Changed() bool {
	return d.Outcome != Discard
}

// Engine applies one Strategy. It holds no per-key data and is safe for
// concurrent use.
type Engine struct {
	strategy Strategy
	beats    comparator
}

// NewEngine returns an engine for strategy.
func NewEngine(strategy Strategy) *Engine {
	return &Engine{strategy: strategy, beats: strategy.comparator()}
}

// Strategy returns the configured strategy.
func (e *Engine) Strategy() Strategy {
	return e.strategy
}

// Decide returns the next state of a key for row with ordering value v, given the
// current state cur (exists is false for an unseen key). HasEmitted is carried
// over from cur; the caller marks it once the change has been emitted.
//
// Rows of kind UPDATE_BEFORE or DELETE are retractions: they withdraw the winner
// only if they carry exactly its fields, and are discarded otherwise.
func (e *Engine) Decide(cur state.DedupState, exists bool, row changelog.Row, v ordering.Value) Decision {
	if row.Kind.IsRetraction() {
		if exists && row.FieldsEqual(cur.Winner) {
			return Decision{Outcome: Retract}
		}
		return Decision{Outcome: Discard, Next: cur, Exists: exists}
	}
	winner := row.WithKind(changelog.Insert)
	if !exists {
		return Decision{
			Outcome: Insert,
			Next:    state.DedupState{Winner: winner, Ordering: v},
			Exists:  true,
		}
	}
	if !e.beats(v, cur.Ordering) {
		return Decision{Outcome: Discard, Next: cur, Exists: true}
	}
	outcome := Update
	if winner.FieldsEqual(cur.Winner) {
		outcome = NoopUpdate
	}
	return Decision{
		Outcome: outcome,
		Next:    state.DedupState{Winner: winner, Ordering: v, HasEmitted: cur.HasEmitted},
		Exists:  true,
	}
}
