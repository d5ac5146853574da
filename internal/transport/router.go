package transport

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/pitabwire/marketdesk/internal/config"
	"github.com/pitabwire/marketdesk/internal/definition"
	"github.com/pitabwire/marketdesk/internal/idempotency"
	"github.com/pitabwire/marketdesk/internal/importlog"
	"github.com/pitabwire/marketdesk/internal/metadata"
	"github.com/pitabwire/marketdesk/internal/observability"
	"github.com/pitabwire/marketdesk/internal/session"
	"github.com/pitabwire/marketdesk/model"
)

// Dependencies holds all injected dependencies for the HTTP transport layer.
// Idempotency and ImportHistory are optional.
type Dependencies struct {
	Config             *config.Config
	Logger             *zap.Logger
	Metrics            *observability.Metrics
	Authenticate       func(http.Handler) http.Handler
	CapabilityResolver model.CapabilityResolver
	Readiness          observability.ReadinessChecks

	Definitions *definition.Registry
	Menu        *metadata.MenuProvider
	Collections *metadata.CollectionProvider

	Views       *session.Registry
	ViewBuilder ViewBuilder

	Idempotency    idempotency.Store
	IdempotencyTTL time.Duration

	Importer      UserImporter
	ImportHistory importlog.Store
}

// NewRouter creates a chi.Router with the full middleware pipeline and all
// route registrations. Health, readiness, and metrics endpoints bypass the
// authentication middleware.
func NewRouter(deps Dependencies) chi.Router {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	r := chi.NewRouter()

	// Global middleware: applied to all routes including health.
	r.Use(Recovery(logger))
	r.Use(CORS(deps.Config.Server.CORS))
	r.Use(RequestID)
	r.Use(SecurityHeaders)
	r.Use(observability.TracingMiddleware)

	r.Get("/ui/health", observability.HandleHealth())
	r.Get("/ui/ready", observability.HandleReady(deps.Readiness))
	r.Handle("/metrics", observability.Handler())

	auth := deps.Authenticate
	if auth == nil {
		auth = func(next http.Handler) http.Handler { return next }
	}

	fs := formSubmission{
		defs:    deps.Definitions,
		views:   deps.Views,
		store:   deps.Idempotency,
		ttl:     deps.IdempotencyTTL,
		metrics: deps.Metrics,
		logger:  logger,
	}
	if !deps.Config.Idempotency.Enabled {
		fs.store = nil
	}
	im := imports{
		importer:   deps.Importer,
		history:    deps.ImportHistory,
		maxBytes:   deps.Config.Import.MaxFileBytes,
		maxVisible: deps.Config.Views.MaxVisiblePages,
		logger:     logger,
	}

	r.Group(func(r chi.Router) {
		r.Use(deps.Metrics.MetricsMiddleware)
		r.Use(auth)
		r.Use(BuildRequestContext(deps.Config.Identity.ClaimPaths))
		r.Use(ResolveCapabilities(deps.CapabilityResolver, logger))
		r.Use(HandlerTimeout(deps.Config.Server.HandlerTimeout))
		r.Use(RequestLogging(logger))

		r.Get("/ui/navigation", handleNavigation(deps.Menu))
		r.Get("/ui/collections/{collection}", handleCollection(deps.Collections))
		r.Post("/ui/collections/{collection}/views", handleOpenView(deps.Definitions, deps.Views, deps.ViewBuilder))

		r.Route("/ui/views/{viewId}", func(r chi.Router) {
			r.Get("/", handleGetView(deps.Definitions, deps.Views))
			r.Delete("/", handleCloseView(deps.Views))
			r.Patch("/filters", handleApplyFilters(deps.Definitions, deps.Views))
			r.Put("/page", handleSetPage(deps.Definitions, deps.Views))
			r.Post("/reload", handleReloadView(deps.Definitions, deps.Views))
			r.Post("/form", handleOpenForm(deps.Definitions, deps.Views))
			r.Delete("/form", handleCloseForm(deps.Definitions, deps.Views))
			r.Post("/form/submit", handleSubmitForm(fs))
			r.Post("/rows/{rowId}/status", handleToggleStatus(deps.Definitions, deps.Views))
			r.Delete("/rows/{rowId}", handleDeleteRow(deps.Definitions, deps.Views))
		})

		if deps.Importer != nil {
			r.Post("/ui/imports/users", handleImportUsers(im))
			r.Get("/ui/imports", handleListImports(im))
		}
	})

	return r
}
