package routes

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"appdownloader/database"
	"appdownloader/docs"
	"appdownloader/middleware"
	"appdownloader/utils"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type limitClass int

const (
	limitNone limitClass = iota
	// limitIP is the per-IP limiter used on signup and login.
	limitIP
	// limitUser is the per-user limiter of authenticated routes.
	limitUser
)

// Route pairs a handler with the capability it requires, its rate limit and its documentation.
// The router and the OpenAPI document are both generated from the same table.
type Route struct {
	Method  string
	Path    string
	Access  middleware.Access
	Limit   limitClass
	Handler http.HandlerFunc
	Doc     docs.Operation
}

// Options are the HTTP settings the router needs.
type Options struct {
	CORSAllowedOrigins []string
	TrustedProxies     []string
	// MediaRoot and MediaURL are set when screenshots are kept on local disk.
	MediaRoot string
	MediaURL  string
}

// Table lists every API route.
func Table() []Route {
	return append(UsersRoutes(), AdminRoutes()...)
}

// OpenAPIDocument builds the API document from Table.
func OpenAPIDocument() *docs.Document {
	table := Table()
	ops := make([]docs.Operation, 0, len(table))
	for _, rt := range table {
		op := rt.Doc
		op.Method = rt.Method
		op.Path = rt.Path
		op.Secured = rt.Access != middleware.Anonymous
		if op.Responses == nil {
			op.Responses = map[int]docs.Response{}
		}
		if op.Secured {
			op.Responses[http.StatusUnauthorized] = docs.Response{Description: "Missing or invalid token", Schema: docs.Ref("Error")}
		}
		if rt.Access == middleware.Admin {
			op.Responses[http.StatusForbidden] = docs.Response{Description: "Caller is not staff", Schema: docs.Ref("Error")}
		}
		if rt.Limit != limitNone {
			op.Responses[http.StatusTooManyRequests] = docs.Response{Description: "Rate limited", Schema: docs.Ref("Error")}
		}
		ops = append(ops, op)
	}
	return docs.Build("Android App API", "v1", ops)
}

func optionsHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusNoContent)
}

func InitRouter(opts Options) *mux.Router {
	r := mux.NewRouter()

	// Health check endpoint for Docker health checks (root level)
	r.Handle("/health", http.HandlerFunc(healthHandler)).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.HandlerFor(utils.MetricsRegistry, promhttp.HandlerOpts{})).Methods(http.MethodGet)

	origins := opts.CORSAllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(func(next http.Handler) http.Handler {
		return handlers.CORS(
			handlers.AllowedOrigins(origins),
			handlers.AllowedMethods([]string{"GET", "POST", "OPTIONS"}),
			handlers.AllowedHeaders([]string{"Content-Type", "Authorization", "X-Requested-With", "X-Request-ID"}),
			handlers.ExposedHeaders([]string{"X-Request-ID", "Retry-After"}),
		)(next)
	})
	r.Use(middleware.MetricsMiddleware)

	// signup/login: 60 per IP per 5 minutes
	loginLimiter := middleware.NewIPRateLimiter(60, 5*time.Minute, opts.TrustedProxies)
	// 120 reads and 60 writes per user per minute
	userLimiter := middleware.NewUserRateLimiter(120, 60, time.Minute)

	for _, rt := range Table() {
		var h http.Handler = rt.Handler
		if rt.Limit == limitUser {
			h = userLimiter.Middleware(h)
		}
		h = middleware.Authorize(rt.Access, database.DB)(h)
		if rt.Limit == limitIP {
			h = loginLimiter.Middleware(h)
		}
		r.Handle(rt.Path, h).Methods(rt.Method)
		// the web client omits the trailing slash on some calls
		if alias := strings.TrimSuffix(rt.Path, "/"); alias != rt.Path {
			r.Handle(alias, h).Methods(rt.Method)
		}
	}

	docServer := docs.NewServer(OpenAPIDocument())
	r.HandleFunc("/swagger.json", docServer.JSON).Methods(http.MethodGet)
	r.HandleFunc("/swagger.yaml", docServer.YAML).Methods(http.MethodGet)
	r.HandleFunc("/swagger/", docServer.SwaggerUI).Methods(http.MethodGet)
	r.HandleFunc("/redoc/", docServer.Redoc).Methods(http.MethodGet)

	if opts.MediaRoot != "" && opts.MediaURL != "" {
		prefix := "/" + strings.Trim(opts.MediaURL, "/") + "/"
		r.PathPrefix(prefix).Handler(http.StripPrefix(prefix, http.FileServer(http.Dir(opts.MediaRoot)))).Methods(http.MethodGet, http.MethodHead)
	}

	// Add catch-all OPTIONS handler for CORS preflight
	r.PathPrefix("/").HandlerFunc(optionsHandler).Methods(http.MethodOptions)

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		utils.WriteError(w, req, utils.NewNotFound("Not found."))
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		utils.WriteJSON(w, http.StatusMethodNotAllowed, utils.ErrorResponse{Error: "Method not allowed."})
	})
	return r
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	status, code := "healthy", http.StatusOK
	dbStatus := "ok"
	if database.DB == nil {
		dbStatus = "not connected"
	} else if sqlDB, err := database.DB.DB(); err != nil {
		dbStatus = err.Error()
	} else {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := sqlDB.PingContext(ctx); err != nil {
			dbStatus = "unreachable"
		}
	}
	if dbStatus != "ok" {
		status, code = "degraded", http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"status":    status,
		"database":  dbStatus,
		"timestamp": time.Now().Unix(),
		"service":   "appdownloader-api",
	})
}
