// internal/types/models.go
package types

import (
	"encoding/json"
	"maps"
	"time"
)

// SessionStatus is the lifecycle state of a session as reported by the feed.
type SessionStatus string

const (
	SessionPending SessionStatus = "pending"
	SessionActive  SessionStatus = "active"
	SessionIdle    SessionStatus = "idle"
	SessionDone    SessionStatus = "done"
	SessionError   SessionStatus = "error"
)

func (s SessionStatus) Valid() bool {
	switch s {
	case SessionPending, SessionActive, SessionIdle, SessionDone, SessionError:
		return true
	}
	return false
}

// ActionType classifies an action record.
type ActionType string

const (
	ActionDelta      ActionType = "delta"
	ActionFinal      ActionType = "final"
	ActionAborted    ActionType = "aborted"
	ActionError      ActionType = "error"
	ActionToolCall   ActionType = "tool_call"
	ActionToolResult ActionType = "tool_result"
)

func (t ActionType) Valid() bool {
	switch t {
	case ActionDelta, ActionFinal, ActionAborted, ActionError, ActionToolCall, ActionToolResult:
		return true
	}
	return false
}

// Terminal reports whether t ends a run's streaming phase.
func (t ActionType) Terminal() bool {
	return t == ActionFinal || t == ActionError || t == ActionAborted
}

// EventType is the source classification of an action. Presentation only.
type EventType string

const (
	EventChat   EventType = "chat"
	EventAgent  EventType = "agent"
	EventSystem EventType = "system"
)

type Session struct {
	Key            SessionKey        `json:"key"`
	Status         SessionStatus     `json:"status"`
	LastActivityAt time.Time         `json:"last_activity_at"`
	AgentID        string            `json:"agent_id,omitempty"`
	Platform       string            `json:"platform,omitempty"`
	Recipient      string            `json:"recipient,omitempty"`
	IsGroup        bool              `json:"is_group,omitempty"`
	Metadata       map[string]string `json:"metadata,omitempty"`
}

// Clone returns a copy that shares no maps with s.
func (s Session) Clone() Session {
	s.Metadata = maps.Clone(s.Metadata)
	return s
}

// SessionPatch is a partial session update. Nil fields are left untouched.
type SessionPatch struct {
	Status         *SessionStatus
	LastActivityAt *time.Time
	AgentID        *string
	Platform       *string
	Recipient      *string
	IsGroup        *bool
	Metadata       map[string]string
}

// Apply copies the set fields of p onto s. Metadata keys are merged.
// LastActivityAt never moves backwards.
func (p SessionPatch) Apply(s *Session) {
	if p.Status != nil {
		s.Status = *p.Status
	}
	if p.LastActivityAt != nil && p.LastActivityAt.After(s.LastActivityAt) {
		s.LastActivityAt = *p.LastActivityAt
	}
	if p.AgentID != nil {
		s.AgentID = *p.AgentID
	}
	if p.Platform != nil {
		s.Platform = *p.Platform
	}
	if p.Recipient != nil {
		s.Recipient = *p.Recipient
	}
	if p.IsGroup != nil {
		s.IsGroup = *p.IsGroup
	}
	if len(p.Metadata) > 0 {
		if s.Metadata == nil {
			s.Metadata = make(map[string]string, len(p.Metadata))
		}
		maps.Copy(s.Metadata, p.Metadata)
	}
}

// Empty reports whether the patch sets nothing.
func (p SessionPatch) Empty() bool {
	return p.Status == nil && p.LastActivityAt == nil && p.AgentID == nil &&
		p.Platform == nil && p.Recipient == nil && p.IsGroup == nil && len(p.Metadata) == 0
}

type Action struct {
	ID         ActionID        `json:"id"`
	RunID      RunID           `json:"run_id"`
	SessionKey SessionKey      `json:"session_key,omitempty"`
	Type       ActionType      `json:"type"`
	EventType  EventType       `json:"event_type"`
	Seq        int64           `json:"seq"`
	Timestamp  time.Time       `json:"timestamp"`
	Content    string          `json:"content,omitempty"`
	ToolName   string          `json:"tool_name,omitempty"`
	ToolArgs   json.RawMessage `json:"tool_args,omitempty"`
}

// Clone returns a copy that shares no buffers with a.
func (a Action) Clone() Action {
	if a.ToolArgs != nil {
		a.ToolArgs = append(json.RawMessage(nil), a.ToolArgs...)
	}
	return a
}
