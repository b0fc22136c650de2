package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/google/uuid"

	"github.com/novahq/nova/internal/chat"
	"github.com/novahq/nova/internal/observability"
)

// Service identity reported by the root route.
const (
	ServiceName    = "NOVA AI"
	ServiceVersion = "8.0.0"
)

// DefaultResetIdentity answers /reset calls that name nobody.
const DefaultResetIdentity = "guest"

type Server struct {
	chat   *chat.Orchestrator
	stats  *observability.Stats
	static http.Handler
}

func New(orch *chat.Orchestrator, stats *observability.Stats) *Server {
	return &Server{
		chat:   orch,
		stats:  stats,
		static: newStaticHandler(),
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	}))

	r.Get("/", s.handleInfo)
	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		observability.MetricsHandler().ServeHTTP(w, r)
	})

	r.Post("/chat", s.handleChat)
	r.Post("/reset", s.handleReset)
	r.Get("/stats", s.handleStats)

	r.Get("/demo", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/demo/", http.StatusTemporaryRedirect)
	})
	r.Handle("/demo/*", http.StripPrefix("/demo/", s.static))

	return r
}

type chatRequest struct {
	Message     string   `json:"message"`
	UID         string   `json:"uid"`
	Model       string   `json:"model"`
	Temperature *float64 `json:"temperature"`
	MaxTokens   *int     `json:"maxTokens"`
}

type resetRequest struct {
	UID string `json:"uid"`
}

// statusResponse is the non-streaming answer shape shared by rejections
// and /reset.
type statusResponse struct {
	Status   string `json:"status"`
	Response string `json:"response"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, errEmptyBody) {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	uid := strings.TrimSpace(req.UID)
	if uid == "" {
		uid = uuid.NewString()
	}

	sw := newStreamWriter(w)
	res, err := s.chat.Chat(r.Context(), uid, chat.Prompt{
		Message:     req.Message,
		Model:       req.Model,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	}, sw.emit)
	if err != nil {
		// A listening client already received the in-band error fragment;
		// the stream simply ends here.
		return
	}

	switch res.Outcome {
	case chat.OutcomeRejectedInput:
		respondJSON(w, http.StatusOK, statusResponse{Status: "error", Response: res.Reply})
	case chat.OutcomeRejectedRate:
		respondJSON(w, http.StatusOK, statusResponse{Status: "limited", Response: res.Reply})
	default:
		// A reply with zero fragments still answers with streaming headers.
		sw.finish()
	}
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	var req resetRequest
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, errEmptyBody) {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	uid := strings.TrimSpace(req.UID)
	if uid == "" {
		uid = DefaultResetIdentity
	}
	if err := s.chat.Reset(r.Context(), uid); err != nil {
		respondError(w, http.StatusInternalServerError, "reset_failed", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, statusResponse{Status: "success", Response: "Chat cleared."})
}

func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, s.stats.Snapshot())
}

func (s *Server) handleInfo(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"name":    ServiceName,
		"status":  "online 🔥🪟",
		"version": ServiceVersion,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{"status": "ready"})
}

// streamWriter relays reply fragments to the client as they arrive. Headers
// go out lazily with the first fragment so rejections decided before any
// upstream byte can still answer with plain JSON.
type streamWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
	started bool
}

func newStreamWriter(w http.ResponseWriter) *streamWriter {
	flusher, _ := w.(http.Flusher)
	return &streamWriter{w: w, flusher: flusher}
}

func (sw *streamWriter) start() {
	if sw.started {
		return
	}
	sw.started = true
	h := sw.w.Header()
	h.Set("Content-Type", "text/event-stream; charset=utf-8")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	sw.w.WriteHeader(http.StatusOK)
	if sw.flusher != nil {
		sw.flusher.Flush()
	}
}

func (sw *streamWriter) emit(fragment string) error {
	sw.start()
	if _, err := io.WriteString(sw.w, fragment); err != nil {
		return fmt.Errorf("write fragment: %w", err)
	}
	if sw.flusher != nil {
		sw.flusher.Flush()
	}
	return nil
}

func (sw *streamWriter) finish() {
	sw.start()
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

var errEmptyBody = errors.New("empty body")

func decodeJSON(r *http.Request, out any) error {
	if r.Body == nil {
		return errEmptyBody
	}
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(out); err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "eof") {
			return errEmptyBody
		}
		return err
	}
	return nil
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}
