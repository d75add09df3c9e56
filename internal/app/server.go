package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/markdave123-py/Indexa/internal/api/handlers"
	appMiddleware "github.com/markdave123-py/Indexa/internal/api/middlewares"
	"github.com/markdave123-py/Indexa/internal/config"
)

// Server wraps the HTTP server instance and its handlers.
type Server struct {
	httpServer *http.Server
	logger     *zap.Logger
}

// NewServer builds and wires all routes.
func NewServer(cfg *config.Config, jobs handlers.JobSubmitter, search handlers.Searcher, logger *zap.Logger) *Server {
	return &Server{
		httpServer: &http.Server{
			Addr:              ":" + cfg.Port,
			Handler:           NewRouter(cfg, jobs, search, logger),
			ReadHeaderTimeout: 10 * time.Second,
		},
		logger: logger,
	}
}

// NewRouter mounts the API. Token issuance and the JWT guard are only
// installed when JWT_SECRET is set.
func NewRouter(cfg *config.Config, jobs handlers.JobSubmitter, search handlers.Searcher, logger *zap.Logger) http.Handler {
	jobHandler := handlers.NewJobHandler(jobs, cfg.MaxUploadBytes, logger.Named("http"))
	searchHandler := handlers.NewSearchHandler(search)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(appMiddleware.RequestLogger(logger.Named("http")))
	r.Use(middleware.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Get("/healthz", handlers.Healthz)

	r.Route("/api", func(api chi.Router) {
		if cfg.AuthEnabled() {
			tokenHandler := handlers.NewTokenHandler(cfg.APIClientID, cfg.APIClientSecretHash, cfg.JWTSecret)
			api.Post("/token", tokenHandler.IssueToken)
		}

		api.Group(func(protected chi.Router) {
			if cfg.AuthEnabled() {
				protected.Use(appMiddleware.JWTMiddleware([]byte(cfg.JWTSecret)))
			}
			// ingestion jobs run for as long as their documents need
			protected.Post("/jobs", jobHandler.CreateJob)
			protected.With(middleware.Timeout(60*time.Second)).
				Post("/indexes/{index}/search", searchHandler.Search)
		})
	})

	return r
}

// Start runs the HTTP server until Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info("HTTP server listening", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}
