package router

import (
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/adaptor"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"

	"github.com/telecarehq/telecare_backend/config"
	"github.com/telecarehq/telecare_backend/internal/api/http/handler"
	"github.com/telecarehq/telecare_backend/internal/api/http/middleware"
	"github.com/telecarehq/telecare_backend/internal/service/appointment"
	"github.com/telecarehq/telecare_backend/internal/service/auth"
	"github.com/telecarehq/telecare_backend/internal/service/conversation"
	"github.com/telecarehq/telecare_backend/internal/service/directory"
	"github.com/telecarehq/telecare_backend/internal/service/identity"
	"github.com/telecarehq/telecare_backend/internal/store"
)

// Module provides the Router to the fx graph.
var Module = fx.Module("router", fx.Provide(NewRouter))

type Params struct {
	fx.In

	Cfg             *config.Config
	Redis           *redis.Client
	Guard           identity.Service
	AuthSvc         auth.Service
	AppointmentSvc  appointment.Service
	ConversationSvc conversation.Service
	DirectorySvc    directory.Service
}

type Router struct {
	p Params
}

func NewRouter(p Params) *Router {
	return &Router{p: p}
}

func (r *Router) Register(app *fiber.App) {
	r.registerSystemRoutes(app)

	authRequired := middleware.AuthRequired(r.p.Guard, r.p.Redis)
	patientOnly := middleware.AuthRequired(r.p.Guard, r.p.Redis, store.RolePatient)

	authH := handler.NewAuthHandler(r.p.AuthSvc)
	appointmentH := handler.NewAppointmentHandler(r.p.AppointmentSvc)
	conversationH := handler.NewConversationHandler(r.p.ConversationSvc)
	directoryH := handler.NewDirectoryHandler(r.p.DirectorySvc)

	api := app.Group("/api/v1")

	r.registerAuthRoutes(api, authH, authRequired)
	r.registerAppointmentRoutes(api, appointmentH, authRequired, patientOnly)
	r.registerConversationRoutes(api, conversationH, authRequired)
	r.registerDirectoryRoutes(api, directoryH, authRequired)
}

func (r *Router) registerSystemRoutes(app *fiber.App) {
	app.Get(healthcheck.LivenessEndpoint, healthcheck.New())
	app.Get(healthcheck.ReadinessEndpoint, healthcheck.New())
	app.Get(healthcheck.StartupEndpoint, healthcheck.New())

	if r.p.Cfg.Observability.Enabled && r.p.Cfg.Observability.Metrics.Enabled {
		path := r.p.Cfg.Observability.Metrics.Path
		if path == "" {
			path = "/metrics"
		}
		app.Get(path, adaptor.HTTPHandler(promhttp.Handler()))
	}
}
