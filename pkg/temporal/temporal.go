package temporal

import "time"

// Window is a half-open validity interval [ActiveFrom, ActiveTo).
// A nil ActiveTo means the record is open-ended.
type Window struct {
	ActiveFrom time.Time  `json:"active_from" gorm:"not null"`
	ActiveTo   *time.Time `json:"active_to,omitempty"`
}

// ActiveAt reports whether the window contains the given instant.
//
// Call sites filtering rows in SQL use the equivalent predicate
// `active_from <= ? AND (active_to IS NULL OR active_to > ?)` so the
// temporal rule stays explicit at every query, never an implicit scope.
func (w Window) ActiveAt(t time.Time) bool {
	if t.Before(w.ActiveFrom) {
		return false
	}
	if w.ActiveTo == nil {
		return true
	}
	return t.Before(*w.ActiveTo)
}

// Open returns an open-ended window starting at t.
func Open(t time.Time) Window {
	return Window{ActiveFrom: t.UTC()}
}

// CloseAt returns a copy of the window terminated at t.
func (w Window) CloseAt(t time.Time) Window {
	closed := t.UTC()
	w.ActiveTo = &closed
	return w
}
