package emitter

import (
	"errors"
	"fmt"
	"sync"

	"github.com/numaproj/numadedup/pkg/changelog"
)

// ErrMalformedChangelog is returned by Validator for a sequence that downstream
// could not replay.
var ErrMalformedChangelog = errors.New("malformed changelog")

type keyView struct {
	row           changelog.Row
	pendingBefore bool
}

// Validator replays emitted events per key and rejects any event that breaks
// INSERT, (UPDATE_BEFORE, UPDATE_AFTER)*, DELETE sequencing. A DELETE ends the
// sequence and a new INSERT may start another one.
type Validator struct {
	sync.Mutex
	requireUpdateBefore bool
	keys                map[changelog.Key]*keyView
}

// NewValidator returns a Validator. With requireUpdateBefore unset, a lone
// UPDATE_AFTER is accepted for a key that has a visible row.
func NewValidator(requireUpdateBefore bool) *Validator {
	return &Validator{
		requireUpdateBefore: requireUpdateBefore,
		keys:                make(map[changelog.Key]*keyView),
	}
}

// Check validates events in order without recording them.
func (v *Validator) Check(events ...changelog.Event) error {
	v.Lock()
	defer v.Unlock()
	_, err := v.replay(events)
	return err
}

// Observe validates events in order and records them. Nothing is recorded if
// any event is invalid.
func (v *Validator) Observe(events ...changelog.Event) error {
	v.Lock()
	defer v.Unlock()
	views, err := v.replay(events)
	if err != nil {
		return err
	}
	for k, kv := range views {
		if kv == nil {
			delete(v.keys, k)
		} else {
			v.keys[k] = kv
		}
	}
	return nil
}

// replay applies events to copies of the touched key views. A nil view marks a
// key with no visible row.
func (v *Validator) replay(events []changelog.Event) (map[changelog.Key]*keyView, error) {
	views := make(map[changelog.Key]*keyView)
	for _, e := range events {
		if _, ok := views[e.Key]; !ok {
			if kv, ok := v.keys[e.Key]; ok {
				cp := *kv
				views[e.Key] = &cp
			} else {
				views[e.Key] = nil
			}
		}
		if err := observe(views, e, v.requireUpdateBefore); err != nil {
			return nil, err
		}
	}
	return views, nil
}

func observe(views map[changelog.Key]*keyView, e changelog.Event, requireUpdateBefore bool) error {
	kv := views[e.Key]
	visible := kv != nil
	if visible && kv.pendingBefore && e.Row.Kind != changelog.UpdateAfter {
		return fmt.Errorf("%w: key %s expected UPDATE_AFTER, got %s", ErrMalformedChangelog, e.Key, e.Row.Kind)
	}
	switch e.Row.Kind {
	case changelog.Insert:
		if visible {
			return fmt.Errorf("%w: key %s got INSERT while %s is visible", ErrMalformedChangelog, e.Key, kv.row)
		}
		views[e.Key] = &keyView{row: e.Row.Clone()}
	case changelog.UpdateBefore:
		if !visible || !kv.row.FieldsEqual(e.Row) {
			return fmt.Errorf("%w: key %s UPDATE_BEFORE %s does not retract the visible row", ErrMalformedChangelog, e.Key, e.Row)
		}
		kv.pendingBefore = true
	case changelog.UpdateAfter:
		if !visible {
			return fmt.Errorf("%w: key %s got UPDATE_AFTER without a visible row", ErrMalformedChangelog, e.Key)
		}
		if requireUpdateBefore && !kv.pendingBefore {
			return fmt.Errorf("%w: key %s got UPDATE_AFTER without UPDATE_BEFORE", ErrMalformedChangelog, e.Key)
		}
		kv.row = e.Row.Clone()
		kv.pendingBefore = false
	case changelog.Delete:
		if !visible || !kv.row.FieldsEqual(e.Row) {
			return fmt.Errorf("%w: key %s DELETE %s does not retract the visible row", ErrMalformedChangelog, e.Key, e.Row)
		}
		views[e.Key] = nil
	default:
		return fmt.Errorf("%w: key %s has invalid kind %s", ErrMalformedChangelog, e.Key, e.Row.Kind)
	}
	return nil
}

// Reset forgets every observed key.
func (v *Validator) Reset() {
	v.Lock()
	defer v.Unlock()
	v.keys = make(map[changelog.Key]*keyView)
}

// Seed records row as visible for key without an event, for rows downstream
// received before a restore.
func (v *Validator) Seed(key changelog.Key, row changelog.Row) {
	v.Lock()
	defer v.Unlock()
	v.keys[key] = &keyView{row: row.Clone()}
}

// Visible returns the row downstream sees for key after the observed events.
func (v *Validator) Visible(key changelog.Key) (changelog.Row, bool) {
	v.Lock()
	defer v.Unlock()
	kv, ok := v.keys[key]
	if !ok {
		return changelog.Row{}, false
	}
	return kv.row.Clone(), true
}
