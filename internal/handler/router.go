package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/autostream/agent/backend/internal/config"
	"github.com/autostream/agent/backend/internal/handler/chat"
	"github.com/autostream/agent/backend/internal/handler/lead"
	"github.com/autostream/agent/backend/internal/handler/stream"
	"github.com/autostream/agent/backend/internal/handler/ws"
	middlewarePkg "github.com/autostream/agent/backend/internal/middleware"
	"github.com/autostream/agent/backend/internal/service/agent"
	chatService "github.com/autostream/agent/backend/internal/service/chat"
	"github.com/autostream/agent/backend/pkg/utils"
)

// Deps are the services the HTTP API exposes.
type Deps struct {
	Agent     *agent.Orchestrator
	Sessions  *chatService.Service
	Leads     lead.Lister
	RateLimit config.RateLimitConfig
	Logger    *zap.Logger
}

// NewRouter wires HTTP routes to core services.
func NewRouter(deps Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middlewarePkg.Logging(deps.Logger))
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		utils.RespondJSON(w, http.StatusOK, map[string]any{
			"status":   "ok",
			"sessions": deps.Sessions.Len(),
		})
	})

	r.Route("/api", func(api chi.Router) {
		if deps.RateLimit.Enabled() {
			api.Use(middlewarePkg.NewRateLimiter(deps.RateLimit).Handler)
		}

		chat.New(deps.Agent, deps.Sessions, deps.Logger).RegisterRoutes(api)
		lead.New(deps.Leads).RegisterRoutes(api)
		stream.New(deps.Agent, deps.Logger).RegisterRoutes(api)
		ws.New(deps.Agent, deps.Logger).RegisterRoutes(api)
	})

	return r
}
