// internal/state/store.go
package state

import "time"

// Store owns the session and action tables. It is created by the caller and
// passed by reference to whatever needs it.
type Store struct {
	Sessions *SessionTable
	Actions  *ActionTable
}

// NewStore creates a Store with empty tables. now is the session activity
// clock; nil means time.Now.
func NewStore(now func() time.Time) *Store {
	return &Store{
		Sessions: NewSessionTable(now),
		Actions:  NewActionTable(),
	}
}

// Clear empties both tables. Both tables are locked for the whole clear, and
// subscribers are only notified once both are empty.
func (s *Store) Clear() {
	st, at := s.Sessions.t, s.Actions.t

	st.mu.Lock()
	at.mu.Lock()
	sessionChanges := st.clearLocked()
	actionChanges := at.clearLocked()
	at.mu.Unlock()
	st.mu.Unlock()

	st.notify(sessionChanges)
	at.notify(actionChanges)
}
