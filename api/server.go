// Package api exposes the journal over HTTP. Handlers are thin: decode,
// call the pipeline or companion, encode.
package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/quailyquaily/emotionbank/companion"
	"github.com/quailyquaily/emotionbank/memory"
)

type Server struct {
	pipeline  *memory.Pipeline
	companion *companion.Responder
	logger    *slog.Logger

	// MaxUploadBytes bounds multipart memory uploads; zero means 32 MiB.
	MaxUploadBytes int64
}

func NewServer(pipeline *memory.Pipeline, responder *companion.Responder, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		pipeline:  pipeline,
		companion: responder,
		logger:    logger,
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Logger, middleware.Recoverer)

	r.Get("/", s.handleRoot)
	r.Get("/health", s.handleHealth)
	r.Post("/memories", s.handleUpload)
	r.Get("/memories", s.handleRetrieve)
	r.Get("/chat", s.handleChat)
	r.Post("/chat", s.handleChat)

	return r
}

func (s *Server) handleRoot(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"message": "emotionbank api is running",
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
