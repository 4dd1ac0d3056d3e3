// Package server provides Anna's HTTP API.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/jxucoder/anna/internal/companion"
	"github.com/jxucoder/anna/internal/config"
	"github.com/jxucoder/anna/internal/logging"
	"github.com/jxucoder/anna/internal/memory"
	"github.com/jxucoder/anna/internal/metrics"
)

// Companion answers messages and reports statistics.
type Companion interface {
	Reply(ctx context.Context, conversationID, speaker, message string) (*companion.Reply, error)
	Stats(ctx context.Context) (map[string]any, error)
}

// Memories searches remembered conversations.
type Memories interface {
	Search(ctx context.Context, f memory.Filter) ([]memory.Entry, error)
}

// Server is the Anna HTTP API server.
type Server struct {
	config    *config.Config
	companion Companion
	memories  Memories
	metrics   *metrics.Metrics
	router    chi.Router
	log       zerolog.Logger
}

// New creates a Server. m may be nil, which disables /metrics.
func New(cfg *config.Config, c Companion, mem Memories, m *metrics.Metrics, log zerolog.Logger) *Server {
	s := &Server{
		config:    cfg,
		companion: c,
		memories:  mem,
		metrics:   m,
		log:       logging.Component(log, "server"),
	}
	s.router = s.buildRouter()
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.config.ServerAddr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	s.log.Info().Str("addr", s.config.ServerAddr).Msg("Anna server listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(5 * time.Minute))

	r.Route("/api", func(r chi.Router) {
		r.Get("/stats", s.handleStats)
		r.Post("/chat", s.handleChat)
		r.Get("/memories", s.handleMemories)
	})

	if s.metrics != nil {
		r.Handle("/metrics", s.metrics.Handler())
	}

	// Health check.
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})

	return r
}

// requestLogger logs one line per request through zerolog.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.log.Debug().
			Str("request_id", middleware.GetReqID(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("took", time.Since(start)).
			Msg("request")
	})
}

// --- Request/Response types ---

type chatRequest struct {
	ConversationID string `json:"conversation_id"`
	Speaker        string `json:"speaker"`
	Message        string `json:"message"`
}

type chatResponse struct {
	ConversationID string `json:"conversation_id"`
	Reply          string `json:"reply"`
	Backend        string `json:"backend"`
	DurationMS     int64  `json:"duration_ms"`
}

type memoryResponse struct {
	ID             int64     `json:"id"`
	ConversationID string    `json:"conversation_id,omitempty"`
	Kind           string    `json:"kind"`
	Content        string    `json:"content"`
	Speaker        string    `json:"speaker,omitempty"`
	Importance     int       `json:"importance"`
	Tags           []string  `json:"tags,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// --- Handlers ---

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.companion.Stats(r.Context())
	if err != nil {
		s.log.Error().Err(err).Msg("stats")
		writeError(w, http.StatusInternalServerError, "failed to read stats")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Message == "" {
		writeError(w, http.StatusBadRequest, "message is required")
		return
	}
	if req.ConversationID == "" {
		req.ConversationID = uuid.NewString()
	}
	if req.Speaker == "" {
		req.Speaker = s.config.Speaker
	}

	s.log.Info().
		Str("conversation", req.ConversationID).
		Str("speaker", req.Speaker).
		Str("message", truncate(req.Message, 80)).
		Msg("chat message")

	reply, err := s.companion.Reply(r.Context(), req.ConversationID, req.Speaker, req.Message)
	switch {
	case errors.Is(err, companion.ErrEmptyMessage):
		writeError(w, http.StatusBadRequest, "message is required")
		return
	case errors.Is(err, companion.ErrNoBackend):
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	case err != nil:
		s.log.Error().Err(err).Str("conversation", req.ConversationID).Msg("reply failed")
		writeError(w, http.StatusBadGateway, "failed to produce a reply")
		return
	}

	writeJSON(w, http.StatusOK, chatResponse{
		ConversationID: reply.ConversationID,
		Reply:          reply.Text,
		Backend:        string(reply.Backend),
		DurationMS:     reply.Duration.Milliseconds(),
	})
}

func (s *Server) handleMemories(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := memory.Filter{
		Query:          q.Get("q"),
		Speaker:        q.Get("speaker"),
		ConversationID: q.Get("conversation_id"),
	}
	if k := q.Get("kind"); k != "" {
		kind, err := memory.ParseKind(k)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		f.Kind = kind
	}
	if l := q.Get("limit"); l != "" {
		n, err := strconv.Atoi(l)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		f.Limit = n
	}

	entries, err := s.memories.Search(r.Context(), f)
	if err != nil {
		s.log.Error().Err(err).Msg("memory search")
		writeError(w, http.StatusInternalServerError, "failed to search memories")
		return
	}
	out := make([]memoryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, memoryResponse{
			ID:             e.ID,
			ConversationID: e.ConversationID,
			Kind:           string(e.Kind),
			Content:        e.Content,
			Speaker:        e.Speaker,
			Importance:     int(e.Importance),
			Tags:           e.Tags,
			CreatedAt:      e.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

// --- Helpers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func truncate(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen-3]) + "..."
}
