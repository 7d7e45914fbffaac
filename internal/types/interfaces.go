// internal/types/interfaces.go
package types

// SessionReader is the read side of the session table handed to consumers.
type SessionReader interface {
	Get(key SessionKey) (Session, bool)
	Values() []Session
	Len() int
}

// ActionReader is the read side of the action table handed to consumers.
type ActionReader interface {
	Get(id ActionID) (Action, bool)
	Values() []Action
	Len() int
}
