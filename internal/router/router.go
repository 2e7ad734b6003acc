package router

import (
	"net/http"
	"strings"

	"treeadopt/internal/auth"
	"treeadopt/internal/handler"
	"treeadopt/internal/metrics"
	"treeadopt/internal/middleware"

	"github.com/rs/zerolog"
)

// Handlers groups the HTTP handlers served by the router.
type Handlers struct {
	Trees    *handler.TreeHandler
	Orders   *handler.OrderHandler
	Tasks    *handler.TaskHandler
	Payments *handler.PaymentHandler
	Admin    *handler.AdminHandler

	// Uploads serves locally stored images below UploadsPath. Optional.
	Uploads     http.Handler
	UploadsPath string
}

// Auth holds the credentials checked by the route groups.
type Auth struct {
	JWTSecret string
	APIKey    string
}

// New creates a new HTTP router with all routes and middleware configured.
func New(h Handlers, creds Auth, m *metrics.Metrics, logger zerolog.Logger) http.Handler {
	mux := http.NewServeMux()

	// Health check endpoint (no authentication required)
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status": "healthy"}`))
	})
	mux.Handle("GET /metrics", m.Handler())
	if h.Uploads != nil && strings.HasPrefix(h.UploadsPath, "/") {
		prefix := strings.TrimRight(h.UploadsPath, "/") + "/"
		mux.Handle("GET "+prefix, http.StripPrefix(prefix, h.Uploads))
	}

	authenticated := middleware.Authenticate(creds.JWTSecret, logger)
	buyer := group(authenticated, middleware.RequireRole(auth.RoleBuyer))
	wellwisher := group(authenticated, middleware.RequireRole(auth.RoleWellwisher))
	viewer := group(authenticated, middleware.RequireRole(auth.RoleBuyer, auth.RoleWellwisher))
	admin := group(authenticated, middleware.RequireRole(auth.RoleAdmin))
	gateway := middleware.APIKeyAuth(creds.APIKey, logger)

	// Catalogue
	mux.HandleFunc("GET /api/trees", h.Trees.GetAll)
	mux.HandleFunc("GET /api/trees/{id}", h.Trees.GetByID)

	// Orders
	mux.Handle("POST /api/orders", buyer(http.HandlerFunc(h.Orders.Create)))
	mux.Handle("GET /api/orders/{code}", viewer(http.HandlerFunc(h.Orders.GetByCode)))
	mux.Handle("POST /api/orders/{id}/cancel", buyer(http.HandlerFunc(h.Orders.Cancel)))

	// Payment gateway callback
	mux.Handle("POST /api/payments/events", gateway(http.HandlerFunc(h.Payments.Event)))

	// Wellwisher field work
	mux.Handle("GET /api/wellwisher/tasks", wellwisher(http.HandlerFunc(h.Tasks.List)))
	mux.Handle("PUT /api/wellwisher/tasks", wellwisher(http.HandlerFunc(h.Tasks.UpdateStatus)))
	mux.Handle("POST /api/wellwisher/planting", wellwisher(http.HandlerFunc(h.Tasks.Planting)))
	mux.Handle("POST /api/wellwisher/growth-update", wellwisher(http.HandlerFunc(h.Tasks.GrowthUpdate)))
	mux.Handle("GET /api/wellwisher/stats", wellwisher(http.HandlerFunc(h.Tasks.Stats)))

	// Operator actions
	mux.Handle("PUT /api/admin/orders/{id}/notes", admin(http.HandlerFunc(h.Orders.UpdateNotes)))
	mux.Handle("POST /api/admin/sweeps/escalation", admin(http.HandlerFunc(h.Admin.RunEscalation)))
	mux.Handle("POST /api/admin/sweeps/assignment", admin(http.HandlerFunc(h.Admin.RetryAssignments)))

	// Apply middleware in order: Recovery -> RequestID -> Logging -> CORS
	var handler http.Handler = mux
	handler = middleware.CORS(handler)
	handler = middleware.Logging(logger, m)(handler)
	handler = middleware.RequestID(handler)
	handler = middleware.Recovery(logger)(handler)

	return handler
}

// group composes middleware so the first one runs outermost.
func group(mws ...func(http.Handler) http.Handler) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		for i := len(mws) - 1; i >= 0; i-- {
			next = mws[i](next)
		}
		return next
	}
}
