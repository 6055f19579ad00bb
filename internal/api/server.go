// ABOUTME: HTTP surface for queue, assignment operations and event streaming
// ABOUTME: chi router with CORS; every route is scoped by the verified identity

package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-playground/validator/v10"

	"github.com/deskhive/deskrouter/internal/assignment"
	"github.com/deskhive/deskrouter/internal/directory"
	"github.com/deskhive/deskrouter/internal/notify"
	"github.com/deskhive/deskrouter/internal/queue"
	"github.com/deskhive/deskrouter/internal/selector"
)

// Server wires the routing core to HTTP.
type Server struct {
	engine      *assignment.Service
	queue       *queue.View
	directory   *directory.Service
	broadcaster *notify.Broadcaster
	validate    *validator.Validate
	logger      *slog.Logger

	jwtSecret      string
	defaultMode    selector.Mode
	allowedOrigins []string
}

// Options configures a Server.
type Options struct {
	Engine      *assignment.Service
	Queue       *queue.View
	Directory   *directory.Service
	Broadcaster *notify.Broadcaster
	JWTSecret   string
	// DefaultMode is used when an auto-assign request names no mode.
	DefaultMode    selector.Mode
	AllowedOrigins []string
	Logger         *slog.Logger
}

// NewServer creates the HTTP server.
func NewServer(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	mode := opts.DefaultMode
	if mode == "" {
		mode = selector.ModeManual
	}
	return &Server{
		engine:         opts.Engine,
		queue:          opts.Queue,
		directory:      opts.Directory,
		broadcaster:    opts.Broadcaster,
		validate:       validator.New(validator.WithRequiredStructEnabled()),
		logger:         logger.With("component", "api"),
		jwtSecret:      opts.JWTSecret,
		defaultMode:    mode,
		allowedOrigins: opts.AllowedOrigins,
	}
}

// Router builds the chi router with middleware and all routes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	origins := s.allowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Get("/healthz", s.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Use(RequireAuth(s.jwtSecret))

		r.Get("/queue", s.handleGetQueue)
		r.Get("/queue/stats", s.handleGetStats)
		r.Get("/events", s.handleEvents)

		r.Route("/conversations/{conversationID}", func(r chi.Router) {
			r.Get("/agents", s.handleAgentsFor)
			r.Post("/take", s.handleTake)
			r.Post("/assign", s.handleAssign)
			r.Delete("/assign/{agentID}", s.handleUnassign)
			r.Post("/primary", s.handleSetPrimary)
			r.Post("/autoassign", s.handleAutoAssign)
		})

		r.Route("/webhooks", func(r chi.Router) {
			r.Post("/conversation", s.handleConversationWebhook)
			r.Post("/availability", s.handleAvailabilityWebhook)
		})
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
