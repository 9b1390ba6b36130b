package changelog

// Event is one changelog record emitted downstream. The change kind is carried by Row.Kind.
type Event struct {
	Key Key
	Row Row
}

// NewEvent returns an Event whose row carries kind.
func NewEvent(key Key, row Row, kind Kind) Event {
	return Event{Key: key, Row: row.WithKind(kind)}
}

func (e Event) String() string {
	return string(e.Key) + " " + e.Row.String()
}
