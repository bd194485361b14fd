package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/spec-kit/resource-queue/internal/api/http/handlers"
	"github.com/spec-kit/resource-queue/internal/auth"
	"github.com/spec-kit/resource-queue/internal/observability"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Resources      *handlers.ResourcesHandler
	Users          *handlers.UsersHandler
	AuthMiddleware *auth.AuthMiddleware
	Metrics        *observability.Metrics
}

// NewApp creates the fiber application. Immutable keeps params and body
// values valid after the handler returns; ids flow into session and cache stores.
func NewApp(name string) *fiber.App {
	return fiber.New(fiber.Config{AppName: name, Immutable: true})
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)
	if cfg.Metrics != nil {
		app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(cfg.Metrics.Registry, promhttp.HandlerOpts{})))
	}

	authenticated := []fiber.Handler{cfg.AuthMiddleware.Handle, auth.RequireAnyRole()}

	resources := app.Group("/resources", authenticated...)
	resources.Post("/", cfg.Resources.Create)
	resources.Get("/:id", cfg.Resources.Get)
	resources.Post("/:id/transitions", cfg.Resources.Transition)
	resources.Get("/:id/transitions/:status", cfg.Resources.CheckTransition)
	resources.Post("/:id/users", cfg.Resources.AddUsers)
	resources.Delete("/:id/users", cfg.Resources.RemoveUsers)

	users := app.Group("/users", authenticated...)
	users.Get("/me", cfg.Users.Me)
	users.Get("/search", cfg.Users.Search)
	users.Delete("/me", cfg.Users.Delete)
	users.Post("/me/subscriptions", cfg.Users.AddSubscription)
	users.Post("/", auth.RequireGlobalAdmin(), cfg.Users.Create)
	users.Post("/:id/tokens", auth.RequireGlobalAdmin(), cfg.Users.IssueToken)

	app.Get("/notifications", append(authenticated, cfg.Users.Notifications)...)
}
