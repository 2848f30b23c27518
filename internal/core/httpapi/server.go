// Package httpapi exposes one agent's conversation, audit log, and health
// over HTTP. It follows the same handler/mux shape as the agent control
// plane this codebase already speaks, adapted to a chat-facing surface.
package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/tamalebot/tamalebot-core/common/trace"
	"github.com/tamalebot/tamalebot-core/common/version"
	"github.com/tamalebot/tamalebot-core/internal/core/agent"
	"github.com/tamalebot/tamalebot-core/internal/core/audit"
	"github.com/tamalebot/tamalebot-core/internal/core/conversation"
	"github.com/tamalebot/tamalebot-core/internal/core/provider"
)

const (
	defaultLogLimit = 50
	maxLogLimit     = 200
)

// MessageRequest is the body of POST /message.
type MessageRequest struct {
	ChatKey string `json:"chatKey"`
	Text    string `json:"text"`
}

// MessageResponse is the body returned by POST /message.
type MessageResponse struct {
	Text          string `json:"text"`
	ToolCallCount int    `json:"toolCallCount"`
	Iterations    int    `json:"iterations"`
}

// ClearRequest is the body of POST /clear.
type ClearRequest struct {
	ChatKey string `json:"chatKey"`
}

// LogsResponse is the body returned by GET /logs.
type LogsResponse struct {
	Entries []audit.Entry `json:"entries"`
}

// MemoryStatsResponse is the body returned by GET /memory/stats.
type MemoryStatsResponse struct {
	Chats          int `json:"chats"`
	TotalMessages  int `json:"totalMessages"`
}

// Handlers bundles the dependencies the server delegates to.
type Handlers struct {
	AgentID      string
	Loop         *agent.Loop
	Conversation *conversation.Store
	Journal      *audit.Journal
	Model        string
	SystemPrompt string
}

// Server is the chat-facing HTTP API for one agent.
type Server struct {
	addr     string
	handlers Handlers
	server   *http.Server
}

// New constructs a Server listening on addr.
func New(addr string, h Handlers) *Server {
	s := &Server{addr: addr, handlers: h}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.withTrace(s.withCORS(s.handleHealth)))
	mux.HandleFunc("/message", s.withTrace(s.withCORS(s.handleMessage)))
	mux.HandleFunc("/clear", s.withTrace(s.withCORS(s.handleClear)))
	mux.HandleFunc("/logs", s.withTrace(s.withCORS(s.handleLogs)))
	mux.HandleFunc("/memory/stats", s.withTrace(s.withCORS(s.handleMemoryStats)))

	s.server = &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
	}
	return s
}

// Start begins listening and returns once the listener is bound.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("httpapi: listen %s: %w", s.addr, err)
	}
	slog.Info("httpapi: server listening", "addr", ln.Addr().String())
	go func() {
		if err := s.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			slog.Error("httpapi: server error", "err", err)
		}
	}()
	go func() {
		<-ctx.Done()
		s.server.Shutdown(context.Background())
	}()
	return nil
}

// Handler returns the server's http.Handler without binding a listener, for
// use with httptest.NewServer in tests.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Stop gracefully shuts down the server.
func (s *Server) Stop() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.server.Shutdown(ctx)
}

// withTrace assigns a correlation ID to the request, attaching it to the
// request context (so handlers can log it) and echoing it back on the
// X-Trace-Id response header.
func (s *Server) withTrace(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Trace-Id")
		if id == "" {
			id = trace.GenerateID()
		}
		w.Header().Set("X-Trace-Id", id)
		next(w, r.WithContext(trace.WithTraceID(r.Context(), id)))
	}
}

func (s *Server) withCORS(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next(w, r)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "agentId": s.handlers.AgentID, "version": version.Info()})
}

func (s *Server) handleMessage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req MessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request: "+err.Error())
		return
	}
	if req.ChatKey == "" {
		writeError(w, http.StatusBadRequest, "chatKey is required")
		return
	}
	if req.Text == "" {
		writeError(w, http.StatusBadRequest, "text is required")
		return
	}

	var toolSchemas []provider.ToolSchema
	if s.handlers.Loop.Registry != nil {
		for _, d := range s.handlers.Loop.Registry.Definitions() {
			toolSchemas = append(toolSchemas, provider.ToolSchema{Name: d.Name, Description: d.Description, InputSchema: d.InputSchema})
		}
	}

	var resp MessageResponse
	var runErr error
	s.handlers.Conversation.WithTurn(req.ChatKey, func() {
		history := s.handlers.Conversation.History(req.ChatKey)
		result, err := s.handlers.Loop.Run(r.Context(), s.handlers.AgentID, req.Text, history, agent.Config{
			Model:        s.handlers.Model,
			SystemPrompt: s.handlers.SystemPrompt,
			Tools:        toolSchemas,
		})
		if err != nil {
			runErr = err
			return
		}
		s.handlers.Conversation.SetHistory(req.ChatKey, result.History)
		resp = MessageResponse{Text: result.Text, ToolCallCount: result.ToolCallCount, Iterations: result.Iterations}
	})
	if runErr != nil {
		slog.Error("httpapi: message run failed", "err", runErr, "chat_key", req.ChatKey, "trace_id", trace.FromContext(r.Context()))
		writeError(w, http.StatusInternalServerError, runErr.Error())
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req ClearRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request: "+err.Error())
		return
	}
	if req.ChatKey == "" {
		writeError(w, http.StatusBadRequest, "chatKey is required")
		return
	}
	s.handlers.Conversation.Clear(req.ChatKey)
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	limit := defaultLogLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}
	if limit > maxLogLimit {
		limit = maxLogLimit
	}

	filter := audit.Filter{Limit: limit, AgentID: s.handlers.AgentID}
	if d := r.URL.Query().Get("decision"); d != "" {
		filter.Decision = audit.Decision(d)
	}

	entries, err := s.handlers.Journal.GetEntries(filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, LogsResponse{Entries: entries})
}

func (s *Server) handleMemoryStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	stats := s.handlers.Conversation.Stats()
	writeJSON(w, http.StatusOK, MemoryStatsResponse{Chats: stats.Chats, TotalMessages: stats.TotalMessages})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

// writeError sends msg as a JSON error body, cut to at most 200 bytes.
func writeError(w http.ResponseWriter, status int, msg string) {
	if len(msg) > 200 {
		msg = msg[:200]
	}
	writeJSON(w, status, map[string]string{"error": msg})
}
