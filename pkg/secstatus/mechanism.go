package secstatus

import "slices"

// Marker is a mechanism carrying no data besides its kind. Its presence alone
// is the security state, e.g. "PIN verified".
type Marker struct {
	kind          Kind
	invalidatedBy []Event
}

// NewMarker creates a marker removed whenever one of events is raised.
func NewMarker(kind Kind, events ...Event) *Marker {
	return &Marker{kind: kind, invalidatedBy: events}
}

func (m *Marker) Kind() Kind {
	return m.kind
}

func (m *Marker) InvalidatedBy(ev Event) bool {
	return slices.Contains(m.invalidatedBy, ev)
}

func (m *Marker) String() string {
	return string(m.kind)
}
