package middleware

import (
	"context"
	"net/http"
	"runtime/debug"
	"strconv"
	"time"

	"appdownloader/utils"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
)

// SecurityOptions configures SecurityHeadersMiddleware.
type SecurityOptions struct {
	Development bool
	HSTS        bool
	CSP         string
}

const defaultCSP = "default-src 'none'; frame-ancestors 'none'; base-uri 'self';"

// SecurityHeadersMiddleware sets the standard hardening headers. CSP is skipped in development
// and on the documentation pages, which load scripts from a CDN.
func SecurityHeadersMiddleware(opts SecurityOptions) func(http.Handler) http.Handler {
	csp := opts.CSP
	if csp == "" {
		csp = defaultCSP
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			h.Set("X-Frame-Options", "DENY")
			h.Set("X-Content-Type-Options", "nosniff")
			h.Set("Referrer-Policy", "no-referrer")
			if !opts.Development && !isDocsPath(r.URL.Path) {
				h.Set("Content-Security-Policy", csp)
			}
			if opts.HSTS {
				// 1 year HSTS
				h.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains; preload")
			}
			next.ServeHTTP(w, r)
		})
	}
}

func isDocsPath(p string) bool {
	return p == "/swagger/" || p == "/redoc/"
}

// responseRecorder wraps ResponseWriter to capture status code
type responseRecorder struct {
	http.ResponseWriter
	status int
}

func (r *responseRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// RequestLogMiddleware logs every request with its status and latency.
func RequestLogMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &responseRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		entry := utils.RequestLogger(r).WithFields(map[string]interface{}{
			"status":      rec.status,
			"duration_ms": time.Since(start).Milliseconds(),
			"remote":      r.RemoteAddr,
		})
		if rid := rec.Header().Get("X-Request-ID"); rid != "" {
			entry = entry.WithField("request_id", rid)
		}
		switch {
		case rec.status >= 500:
			entry.Error("request")
		case rec.status >= 400:
			entry.Warn("request")
		default:
			entry.Info("request")
		}
	})
}

// RequestIDMiddleware injects a request id into context and response headers
func RequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rid := r.Header.Get("X-Request-ID")
		if rid == "" || len(rid) > 64 {
			rid = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", rid)
		ctx := context.WithValue(r.Context(), utils.RequestIDKey, rid)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// TimeoutMiddleware cancels the request context after timeout. Every gorm call uses WithContext,
// so a stuck query is aborted with the request.
func TimeoutMiddleware(timeout time.Duration) func(http.Handler) http.Handler {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), timeout)
			defer cancel()
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RecoveryMiddleware recovers from panics, logs securely and returns generic 500
func RecoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				utils.RequestLogger(r).WithField("panic", rec).WithField("stack", string(debug.Stack())).Error("panic recovered")
				resp := utils.ErrorResponse{Error: "Internal server error"}
				if rid, ok := r.Context().Value(utils.RequestIDKey).(string); ok {
					resp.RequestID = rid
				}
				utils.WriteJSON(w, http.StatusInternalServerError, resp)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// MetricsMiddleware records request counts and latency per route template. It must run inside
// the router so mux.CurrentRoute is populated.
func MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &responseRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		route := "unmatched"
		if cr := mux.CurrentRoute(r); cr != nil {
			if tpl, err := cr.GetPathTemplate(); err == nil {
				route = tpl
			}
		}
		utils.HTTPRequestsTotal.WithLabelValues(route, r.Method, strconv.Itoa(rec.status)).Inc()
		utils.HTTPRequestDuration.WithLabelValues(route, r.Method).Observe(time.Since(start).Seconds())
	})
}
