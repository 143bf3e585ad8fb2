package server

import (
	"context"
	"net/http"

	"github.com/modelbridge/modelbridge/config"
	"github.com/modelbridge/modelbridge/pkg/otel"
	"github.com/modelbridge/modelbridge/server/anthropic"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

type Server struct {
	*config.Config

	handler http.Handler
}

func New(cfg *config.Config) *Server {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"*"},
	}))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	r.Route("/v1", func(r chi.Router) {
		anthropic.New(cfg).Attach(r)
	})

	var handler http.Handler = r

	if otel.EnableTelemetry {
		handler = otelhttp.NewHandler(handler, "server")
	}

	return &Server{
		Config: cfg,

		handler: handler,
	}
}

func (s *Server) Handler() http.Handler {
	return s.handler
}

func (s *Server) ListenAndServe(ctx context.Context) error {
	server := &http.Server{
		Addr:    s.Address,
		Handler: s.handler,
	}

	go func() {
		<-ctx.Done()
		server.Shutdown(context.Background())
	}()

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}

	return nil
}
