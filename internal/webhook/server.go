// internal/webhook/server.go
package webhook

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sort"

	"github.com/user/clawmon/internal/digest"
	"github.com/user/clawmon/internal/feed"
	"github.com/user/clawmon/internal/gateway"
	"github.com/user/clawmon/internal/state"
	"github.com/user/clawmon/internal/types"
)

const maxBodySize = 8 << 20

// Server exposes the tables over HTTP and accepts feed frames. Reads go
// straight to the tables; every write goes through the dispatcher.
type Server struct {
	store      *state.Store
	dispatcher *gateway.Dispatcher
	digest     *digest.Digester
	mux        *http.ServeMux
}

// NewServer creates a Server. dg may be nil, in which case token counts are
// omitted. Frames are captured by the dispatcher's recorder, if any.
func NewServer(store *state.Store, dispatcher *gateway.Dispatcher, dg *digest.Digester) *Server {
	s := &Server{
		store:      store,
		dispatcher: dispatcher,
		digest:     dg,
		mux:        http.NewServeMux(),
	}
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("POST /webhook/events", s.handleEvents)
	s.mux.HandleFunc("POST /api/reset", s.handleReset)
	s.mux.HandleFunc("GET /api/sessions", s.handleSessions)
	s.mux.HandleFunc("GET /api/sessions/{key}", s.handleSession)
	s.mux.HandleFunc("GET /api/actions", s.handleActions)
	s.mux.HandleFunc("GET /api/actions/{id}", s.handleAction)
	return s
}

// ServeHTTP delegates to the internal mux, implementing http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"sessions": s.store.Sessions.Len(),
		"actions":  s.store.Actions.Len(),
		"pending":  s.dispatcher.Pending(),
	})
}

// handleEvents accepts a single JSON frame or a JSONL body. The whole body is
// validated before anything is queued, so a malformed line rejects the
// request without partial application.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodySize))
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
		return
	}

	frames, err := decodeBody(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if len(frames) == 0 {
		writeError(w, http.StatusBadRequest, "no frames in request body")
		return
	}

	accepted := 0
	for _, frame := range frames {
		if err := s.dispatcher.Enqueue(frame); err != nil {
			slog.Warn("frame rejected", "kind", frame.Kind, "error", err)
			writeJSON(w, http.StatusServiceUnavailable, map[string]any{
				"error":    err.Error(),
				"accepted": accepted,
			})
			return
		}
		accepted++
	}
	writeJSON(w, http.StatusAccepted, map[string]int{"accepted": accepted})
}

func decodeBody(body []byte) ([]*feed.Frame, error) {
	body = bytes.TrimSpace(body)
	if json.Valid(body) {
		frame, err := feed.Decode(body)
		if err != nil {
			return nil, err
		}
		return []*feed.Frame{frame}, nil
	}

	var frames []*feed.Frame
	reader := feed.NewReader(bytes.NewReader(body), true)
	for {
		frame, err := reader.Next()
		if errors.Is(err, io.EOF) {
			return frames, nil
		}
		if err != nil {
			return nil, err
		}
		frames = append(frames, frame)
	}
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	if err := s.dispatcher.Apply(r.Context(), feed.ResetFrame()); err != nil {
		slog.Error("reset failed", "error", err)
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	sessions := s.store.Sessions.Values()
	if status := types.SessionStatus(r.URL.Query().Get("status")); status != "" {
		if !status.Valid() {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown status %q", status))
			return
		}
		filtered := sessions[:0]
		for _, sess := range sessions {
			if sess.Status == status {
				filtered = append(filtered, sess)
			}
		}
		sessions = filtered
	}

	sort.SliceStable(sessions, func(i, j int) bool {
		return sessions[i].LastActivityAt.After(sessions[j].LastActivityAt)
	})
	if sessions == nil {
		sessions = []types.Session{}
	}
	writeJSON(w, http.StatusOK, sessions)
}

type sessionResponse struct {
	types.Session
	Actions []actionResponse `json:"actions"`
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	key := types.SessionKey(r.PathValue("key"))
	sess, ok := s.store.Sessions.Get(key)
	if !ok {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}

	resp := sessionResponse{Session: sess, Actions: []actionResponse{}}
	for _, a := range s.store.Actions.Values() {
		if a.SessionKey == key {
			resp.Actions = append(resp.Actions, s.actionResponse(a))
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

type actionResponse struct {
	types.Action
	Tokens int `json:"tokens,omitempty"`
}

func (s *Server) actionResponse(a types.Action) actionResponse {
	resp := actionResponse{Action: a}
	if s.digest != nil {
		resp.Tokens = s.digest.ActionTokens(a)
	}
	return resp
}

func (s *Server) handleActions(w http.ResponseWriter, r *http.Request) {
	var actions []types.Action
	if run := r.URL.Query().Get("run"); run != "" {
		actions = s.store.Actions.ByRun(types.RunID(run))
	} else {
		actions = s.store.Actions.Values()
	}

	result := make([]actionResponse, 0, len(actions))
	for _, a := range actions {
		result = append(result, s.actionResponse(a))
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleAction(w http.ResponseWriter, r *http.Request) {
	a, ok := s.store.Actions.Get(types.ActionID(r.PathValue("id")))
	if !ok {
		writeError(w, http.StatusNotFound, "action not found")
		return
	}
	writeJSON(w, http.StatusOK, s.actionResponse(a))
}
