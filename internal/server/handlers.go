package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/devchilll/scope/internal/audit"
	"github.com/devchilll/scope/internal/bank"
	"github.com/devchilll/scope/internal/escalation"
	"github.com/devchilll/scope/internal/iam"
	"github.com/devchilll/scope/internal/tools"
)

// Identity headers. Authentication happens upstream; these carry the
// already-authenticated principal into the governance layer.
const (
	headerUser = "X-Scope-User"
	headerRole = "X-Scope-Role"
	headerName = "X-Scope-Name"
)

// principalFrom resolves the request's principal. A missing user id is a
// 401; an unrecognized role string downgrades to USER and is logged, never
// rejected.
func (s *Server) principalFrom(r *http.Request) (iam.Principal, bool) {
	userID := r.Header.Get(headerUser)
	if userID == "" {
		return iam.Principal{}, false
	}
	role, recognized := iam.ParseRole(r.Header.Get(headerRole))
	if !recognized {
		s.logger.Warn("unrecognized role, defaulting to user",
			"principal", userID, "role_header", r.Header.Get(headerRole))
	}
	return iam.Principal{ID: userID, Role: role, Name: r.Header.Get(headerName)}, true
}

type requestBody struct {
	Text string `json:"text"`
}

func (s *Server) handleRequest(w http.ResponseWriter, r *http.Request) {
	p, ok := s.principalFrom(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "missing " + headerUser + " header"})
		return
	}

	var body requestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Text == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "body must be JSON with a non-empty text field"})
		return
	}

	result := s.currentPipeline().Handle(r.Context(), p, body.Text)
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleListEscalations(w http.ResponseWriter, r *http.Request) {
	p, ok := s.principalFrom(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "missing " + headerUser + " header"})
		return
	}

	tickets, err := s.dispatcher.ListEscalations(p, r.URL.Query().Get("status"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	if tickets == nil {
		tickets = []escalation.Ticket{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"tickets": tickets})
}

func (s *Server) handleQueueStats(w http.ResponseWriter, r *http.Request) {
	p, ok := s.principalFrom(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "missing " + headerUser + " header"})
		return
	}

	stats, err := s.dispatcher.QueueStats(p)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

type resolveBody struct {
	Note string `json:"note"`
}

func (s *Server) handleResolve(w http.ResponseWriter, r *http.Request) {
	p, ok := s.principalFrom(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "missing " + headerUser + " header"})
		return
	}

	var body resolveBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
		return
	}

	resolved, err := s.dispatcher.ResolveEscalation(p, r.PathValue("id"), body.Note)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"resolved": resolved})
}

func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	p, ok := s.principalFrom(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "missing " + headerUser + " header"})
		return
	}

	events, err := s.dispatcher.ViewLogs(p, audit.QueryOpts{
		EventType: r.URL.Query().Get("type"),
		UserID:    r.URL.Query().Get("user"),
		Since:     r.URL.Query().Get("since"),
		Limit:     parseLimit(r, 50),
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	if events == nil {
		events = []audit.Event{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": events})
}

func (s *Server) handleListTools(w http.ResponseWriter, r *http.Request) {
	p, ok := s.principalFrom(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "missing " + headerUser + " header"})
		return
	}

	names := tools.ToolsFor(p.Role)
	if names == nil {
		names = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"role":  p.Role,
		"tools": names,
	})
}

// writeError maps gate errors onto HTTP statuses. The user-facing message
// comes from the tools taxonomy so API and CLI phrase denials identically.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	var denied *iam.AccessDeniedError
	status := http.StatusInternalServerError
	switch {
	case errors.As(err, &denied):
		status = http.StatusForbidden
	case errors.Is(err, bank.ErrAccountNotFound):
		status = http.StatusNotFound
	case errors.Is(err, bank.ErrInvalidAmount),
		errors.Is(err, bank.ErrInsufficientFunds),
		errors.Is(err, bank.ErrNotAccountOwner):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, escalation.ErrStorageUnavailable):
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, map[string]string{"error": tools.UserMessage(err)})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// parseLimit reads a query limit with a default.
func parseLimit(r *http.Request, def int) int {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return def
	}
	return n
}
