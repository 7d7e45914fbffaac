// internal/state/session.go
package state

import (
	"time"

	"github.com/user/clawmon/internal/types"
)

type SessionChange = Change[types.SessionKey, types.Session]

// SessionTable is the in-memory keyed store of sessions.
type SessionTable struct {
	t   *table[types.SessionKey, types.Session]
	now func() time.Time
}

// NewSessionTable creates an empty SessionTable. now supplies the activity
// clock; nil means time.Now.
func NewSessionTable(now func() time.Time) *SessionTable {
	if now == nil {
		now = time.Now
	}
	return &SessionTable{
		t:   newTable[types.SessionKey](types.Session.Clone),
		now: now,
	}
}

// Upsert inserts the session or overwrites the existing record with it,
// metadata included. LastActivityAt is kept if the stored value is newer.
func (s *SessionTable) Upsert(session types.Session) {
	s.t.upsert(session.Key, func(cur *types.Session, exists bool) {
		last := cur.LastActivityAt
		*cur = session.Clone()
		if exists && last.After(cur.LastActivityAt) {
			cur.LastActivityAt = last
		}
	})
}

// UpdateStatus sets the status of an existing session and stamps its
// activity time. Absent keys are ignored.
func (s *SessionTable) UpdateStatus(key types.SessionKey, status types.SessionStatus) bool {
	now := s.now()
	return s.t.update(key, func(cur *types.Session) {
		cur.Status = status
		touch(cur, now)
	})
}

// Update applies a partial update to an existing session. Absent keys are
// ignored. A patch that sets the status also stamps the activity time.
func (s *SessionTable) Update(key types.SessionKey, patch types.SessionPatch) bool {
	now := s.now()
	return s.t.update(key, func(cur *types.Session) {
		patch.Apply(cur)
		if patch.Status != nil {
			touch(cur, now)
		}
	})
}

func touch(s *types.Session, now time.Time) {
	if now.After(s.LastActivityAt) {
		s.LastActivityAt = now
	}
}

func (s *SessionTable) Get(key types.SessionKey) (types.Session, bool) { return s.t.get(key) }
func (s *SessionTable) Values() []types.Session                       { return s.t.values() }
func (s *SessionTable) Len() int                                      { return s.t.len() }
func (s *SessionTable) Delete(key types.SessionKey) bool              { return s.t.delete(key) }
func (s *SessionTable) Clear()                                        { s.t.clear() }

// Subscribe registers fn for every committed change.
func (s *SessionTable) Subscribe(fn Observer[types.SessionKey, types.Session]) types.SubscriptionID {
	return s.t.subscribe(fn)
}

func (s *SessionTable) Unsubscribe(id types.SubscriptionID) bool { return s.t.unsubscribe(id) }
