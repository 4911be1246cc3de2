// Package server exposes the conversation gateway over a small JSON HTTP API.
package server

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/user/tickerchat/internal/conversation"
	"github.com/user/tickerchat/internal/gateway"
	"github.com/user/tickerchat/internal/models"
	"github.com/user/tickerchat/internal/quota"
	"github.com/user/tickerchat/internal/telemetry"
	"github.com/user/tickerchat/internal/types"
)

// maxBody bounds a chat request, attachment included.
const maxBody = 30 << 20

// Server is the HTTP handler for the chat API. Identity comes from the
// request body; authentication and entitlement are enforced upstream.
type Server struct {
	gateway  *gateway.Gateway
	gate     *quota.Gate
	registry *models.Registry
	journal  *telemetry.Journal
	mux      *http.ServeMux
}

// New creates a Server. journal may be nil, which disables /api/stats.
func New(gw *gateway.Gateway, gate *quota.Gate, registry *models.Registry, journal *telemetry.Journal) *Server {
	s := &Server{
		gateway:  gw,
		gate:     gate,
		registry: registry,
		journal:  journal,
		mux:      http.NewServeMux(),
	}
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /api/models", s.handleModels)
	s.mux.HandleFunc("POST /api/chat", s.handleChat)
	s.mux.HandleFunc("GET /api/conversations/{user}", s.handleConversation)
	s.mux.HandleFunc("GET /api/quota/{user}", s.handleQuota)
	s.mux.HandleFunc("GET /api/stats", s.handleStats)
	return s
}

// ServeHTTP delegates to the internal mux, implementing http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// ConversationKey is the gateway key for an HTTP caller.
func ConversationKey(user string) types.ConversationKey {
	if user == "" {
		user = "anonymous"
	}
	return types.NewConversationKey("http", user)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("encode response failed", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "active_turns": s.gateway.Active()})
}

func (s *Server) handleModels(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.registry.All())
}

// chatRequest is the JSON body for POST /api/chat.
type chatRequest struct {
	UserID           string `json:"user_id"`
	Subscriber       bool   `json:"subscriber"`
	Query            string `json:"query"`
	Model            string `json:"model"`
	AttachmentName   string `json:"attachment_name"`
	AttachmentBase64 string `json:"attachment_base64"`
}

type chatResponse struct {
	TurnID    types.TurnID           `json:"turn_id,omitempty"`
	Rejected  conversation.Rejection `json:"rejected,omitempty"`
	Success   bool                   `json:"success"`
	Model     string                 `json:"model"`
	ElapsedMS int64                  `json:"elapsed_ms"`
	Answer    string                 `json:"answer,omitempty"`
	Snapshot  conversation.Snapshot  `json:"snapshot"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	user := types.User{
		ID:            types.UserID(req.UserID),
		Authenticated: req.UserID != "",
		Subscriber:    req.Subscriber,
	}
	sub := conversation.Submission{Text: req.Query}
	if req.AttachmentBase64 != "" {
		data, err := base64.StdEncoding.DecodeString(req.AttachmentBase64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "attachment_base64 is not valid base64")
			return
		}
		name := req.AttachmentName
		if name == "" {
			name = "attachment"
		}
		sub.Attachment = &types.Attachment{Name: name, ContentType: http.DetectContentType(data), Data: data}
	}

	key := ConversationKey(req.UserID)
	if req.Model != "" {
		orch, err := s.gateway.Orchestrator(key)
		if err != nil {
			writeError(w, http.StatusServiceUnavailable, err.Error())
			return
		}
		if orch.Model().Key != req.Model {
			if _, err := orch.SelectModel(r.Context(), user, req.Model); err != nil {
				switch {
				case errors.Is(err, models.ErrUpgradeRequired):
					writeJSON(w, http.StatusPaymentRequired, chatResponse{Rejected: conversation.RejectUpgradeRequired, Model: orch.Model().Key})
				default:
					writeError(w, http.StatusBadRequest, err.Error())
				}
				return
			}
		}
	}

	out, err := s.gateway.Submit(r.Context(), key, user, sub)
	switch {
	case errors.Is(err, conversation.ErrEmptySubmission):
		writeError(w, http.StatusBadRequest, "query or attachment required")
		return
	case errors.Is(err, conversation.ErrTurnInProgress):
		writeError(w, http.StatusConflict, "a turn is already in progress for this user")
		return
	case errors.Is(err, gateway.ErrStopped):
		writeError(w, http.StatusServiceUnavailable, "server is shutting down")
		return
	case err != nil:
		slog.Error("chat submit failed", "user_id", req.UserID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	resp := chatResponse{
		TurnID:    out.TurnID,
		Rejected:  out.Rejected,
		Success:   out.Success,
		Model:     out.Model.Key,
		ElapsedMS: out.Elapsed.Milliseconds(),
		Answer:    lastAnswer(out.Snapshot),
		Snapshot:  out.Snapshot,
	}
	status := http.StatusOK
	switch out.Rejected {
	case conversation.RejectAuthRequired:
		status = http.StatusUnauthorized
	case conversation.RejectUpgradeRequired:
		status = http.StatusPaymentRequired
	}
	writeJSON(w, status, resp)
}

// lastAnswer returns the content of the final assistant message, if the
// conversation ends with one.
func lastAnswer(snap conversation.Snapshot) string {
	if n := len(snap.Messages); n > 0 && snap.Messages[n-1].Role == types.RoleAssistant {
		return snap.Messages[n-1].Content
	}
	return ""
}

func (s *Server) handleConversation(w http.ResponseWriter, r *http.Request) {
	snap, ok := s.gateway.Snapshot(ConversationKey(r.PathValue("user")))
	if !ok {
		writeError(w, http.StatusNotFound, "conversation not found")
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

type quotaResponse struct {
	UserID    string    `json:"user_id"`
	Unlimited bool      `json:"unlimited"`
	Used      int       `json:"used"`
	Limit     int       `json:"limit"`
	Remaining int       `json:"remaining"`
	ResetsAt  time.Time `json:"resets_at"`
}

func (s *Server) handleQuota(w http.ResponseWriter, r *http.Request) {
	user := types.UserID(r.PathValue("user"))
	subscriber, _ := strconv.ParseBool(r.URL.Query().Get("subscriber"))

	used, err := s.gate.Count(r.Context(), user)
	if err != nil {
		slog.Error("read quota failed", "user_id", user, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	remaining, resetAt, err := s.gate.Remaining(r.Context(), user)
	if err != nil {
		slog.Error("read quota failed", "user_id", user, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	writeJSON(w, http.StatusOK, quotaResponse{
		UserID:    string(user),
		Unlimited: subscriber,
		Used:      used,
		Limit:     s.gate.Limit(),
		Remaining: remaining,
		ResetsAt:  resetAt,
	})
}

type statsResponse struct {
	telemetry.Stats
	ActiveTurns   int64 `json:"active_turns"`
	Conversations int   `json:"conversations"`
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if s.journal == nil {
		writeError(w, http.StatusServiceUnavailable, "stats not configured")
		return
	}

	limit := 1000
	if q := r.URL.Query().Get("limit"); q != "" {
		if n, err := strconv.Atoi(q); err == nil && n > 0 {
			limit = n
		}
	}

	records, err := s.journal.Tail(limit)
	if err != nil {
		slog.Error("read journal failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	writeJSON(w, http.StatusOK, statsResponse{
		Stats:         telemetry.Summarize(records),
		ActiveTurns:   s.gateway.Active(),
		Conversations: len(s.gateway.Keys()),
	})
}
