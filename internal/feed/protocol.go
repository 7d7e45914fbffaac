// internal/feed/protocol.go
package feed

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/user/clawmon/internal/types"
)

// ErrMalformed is wrapped by every structural validation failure.
var ErrMalformed = errors.New("malformed frame")

// Kind identifies the frame variant.
type Kind string

const (
	KindSession       Kind = "session"
	KindSessionStatus Kind = "session_status"
	KindSessionUpdate Kind = "session_update"
	KindAction        Kind = "action"
	KindReset         Kind = "reset"
)

// Frame is one decoded and validated feed event.
type Frame struct {
	Kind    Kind
	Session *types.Session      // KindSession
	Key     types.SessionKey    // KindSessionStatus, KindSessionUpdate
	Status  types.SessionStatus // KindSessionStatus
	Patch   types.SessionPatch  // KindSessionUpdate
	Action  *types.Action       // KindAction

	// Raw is the compact wire form, written to captures as one line.
	Raw []byte
}

// Wire shapes. The gateway emits camelCase keys and Unix millisecond times.

type envelope struct {
	Kind    Kind         `json:"kind"`
	Session *wireSession `json:"session,omitempty"`
	Key     string       `json:"key,omitempty"`
	Status  string       `json:"status,omitempty"`
	Patch   *wirePatch   `json:"patch,omitempty"`
	Action  *wireAction  `json:"action,omitempty"`
}

type wireSession struct {
	Key            string            `json:"key"`
	Status         string            `json:"status"`
	LastActivityAt int64             `json:"lastActivityAt"`
	AgentID        string            `json:"agentId,omitempty"`
	Platform       string            `json:"platform,omitempty"`
	Recipient      string            `json:"recipient,omitempty"`
	IsGroup        bool              `json:"isGroup,omitempty"`
	Metadata       map[string]string `json:"metadata,omitempty"`
}

type wirePatch struct {
	Status         *string           `json:"status,omitempty"`
	LastActivityAt *int64            `json:"lastActivityAt,omitempty"`
	AgentID        *string           `json:"agentId,omitempty"`
	Platform       *string           `json:"platform,omitempty"`
	Recipient      *string           `json:"recipient,omitempty"`
	IsGroup        *bool             `json:"isGroup,omitempty"`
	Metadata       map[string]string `json:"metadata,omitempty"`
}

type wireAction struct {
	ID         string          `json:"id"`
	RunID      string          `json:"runId"`
	SessionKey string          `json:"sessionKey,omitempty"`
	Type       string          `json:"type"`
	EventType  string          `json:"eventType"`
	Seq        int64           `json:"seq"`
	Timestamp  int64           `json:"timestamp"`
	Content    json.RawMessage `json:"content,omitempty"`
	ToolName   string          `json:"toolName,omitempty"`
	ToolArgs   json.RawMessage `json:"toolArgs,omitempty"`
}

func malformed(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrMalformed, fmt.Sprintf(format, args...))
}

// Decode parses one JSON frame and checks the structure the tables depend on.
func Decode(data []byte) (*Frame, error) {
	var buf bytes.Buffer
	if err := json.Compact(&buf, data); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	var env envelope
	if err := json.Unmarshal(buf.Bytes(), &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	frame, err := env.toFrame()
	if err != nil {
		return nil, err
	}
	frame.Raw = buf.Bytes()
	return frame, nil
}

// ResetFrame returns the frame that clears both tables.
func ResetFrame() *Frame {
	return encode(&Frame{Kind: KindReset}, envelope{Kind: KindReset})
}

// StatusFrame returns a session_status frame for key.
func StatusFrame(key types.SessionKey, status types.SessionStatus) *Frame {
	return encode(
		&Frame{Kind: KindSessionStatus, Key: key, Status: status},
		envelope{Kind: KindSessionStatus, Key: string(key), Status: string(status)},
	)
}

func encode(f *Frame, env envelope) *Frame {
	// Marshal cannot fail for an envelope.
	f.Raw, _ = json.Marshal(env)
	return f
}

func (env *envelope) toFrame() (*Frame, error) {
	switch env.Kind {
	case KindSession:
		if env.Session == nil {
			return nil, malformed("session frame without session")
		}
		s, err := env.Session.toSession()
		if err != nil {
			return nil, err
		}
		return &Frame{Kind: env.Kind, Session: s}, nil

	case KindSessionStatus:
		if env.Key == "" {
			return nil, malformed("session_status frame without key")
		}
		status := types.SessionStatus(env.Status)
		if !status.Valid() {
			return nil, malformed("unknown session status %q", env.Status)
		}
		return &Frame{Kind: env.Kind, Key: types.SessionKey(env.Key), Status: status}, nil

	case KindSessionUpdate:
		if env.Key == "" {
			return nil, malformed("session_update frame without key")
		}
		if env.Patch == nil {
			return nil, malformed("session_update frame without patch")
		}
		patch, err := env.Patch.toPatch()
		if err != nil {
			return nil, err
		}
		return &Frame{Kind: env.Kind, Key: types.SessionKey(env.Key), Patch: patch}, nil

	case KindAction:
		if env.Action == nil {
			return nil, malformed("action frame without action")
		}
		a, err := env.Action.toAction()
		if err != nil {
			return nil, err
		}
		return &Frame{Kind: env.Kind, Action: a}, nil

	case KindReset:
		return &Frame{Kind: env.Kind}, nil

	case "":
		return nil, malformed("missing kind")
	default:
		return nil, malformed("unknown kind %q", env.Kind)
	}
}

func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}

func (w *wireSession) toSession() (*types.Session, error) {
	if w.Key == "" {
		return nil, malformed("session without key")
	}
	status := types.SessionStatus(w.Status)
	if !status.Valid() {
		return nil, malformed("session %s: unknown status %q", w.Key, w.Status)
	}
	return &types.Session{
		Key:            types.SessionKey(w.Key),
		Status:         status,
		LastActivityAt: fromMillis(w.LastActivityAt),
		AgentID:        w.AgentID,
		Platform:       w.Platform,
		Recipient:      w.Recipient,
		IsGroup:        w.IsGroup,
		Metadata:       w.Metadata,
	}, nil
}

func (w *wirePatch) toPatch() (types.SessionPatch, error) {
	p := types.SessionPatch{
		AgentID:   w.AgentID,
		Platform:  w.Platform,
		Recipient: w.Recipient,
		IsGroup:   w.IsGroup,
		Metadata:  w.Metadata,
	}
	if w.Status != nil {
		status := types.SessionStatus(*w.Status)
		if !status.Valid() {
			return p, malformed("unknown session status %q", *w.Status)
		}
		p.Status = &status
	}
	if w.LastActivityAt != nil {
		at := fromMillis(*w.LastActivityAt)
		p.LastActivityAt = &at
	}
	if p.Empty() {
		return p, malformed("empty session patch")
	}
	return p, nil
}

func (w *wireAction) toAction() (*types.Action, error) {
	typ := types.ActionType(w.Type)
	if !typ.Valid() {
		return nil, malformed("action %q: unknown type %q", w.ID, w.Type)
	}
	if w.ID == "" {
		return nil, malformed("%s action without id", typ)
	}
	// The streaming record key is derived from the run id.
	if (typ == types.ActionDelta || typ.Terminal()) && w.RunID == "" {
		return nil, malformed("%s action %s without runId", typ, w.ID)
	}
	content, err := decodeContent(w.Content)
	if err != nil {
		return nil, fmt.Errorf("%w: action %s content: %v", ErrMalformed, w.ID, err)
	}
	return &types.Action{
		ID:         types.ActionID(w.ID),
		RunID:      types.RunID(w.RunID),
		SessionKey: types.SessionKey(w.SessionKey),
		Type:       typ,
		EventType:  types.EventType(w.EventType),
		Seq:        w.Seq,
		Timestamp:  fromMillis(w.Timestamp),
		Content:    content,
		ToolName:   w.ToolName,
		ToolArgs:   w.ToolArgs,
	}, nil
}

// decodeContent returns string content as-is and structured content as its
// compact JSON text.
func decodeContent(raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", nil
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", err
		}
		return s, nil
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return "", err
	}
	return buf.String(), nil
}
