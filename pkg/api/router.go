package api

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/marmos91/ntlmgate/internal/logger"
	"github.com/marmos91/ntlmgate/pkg/config"
	"github.com/marmos91/ntlmgate/pkg/handshake"
	promMetrics "github.com/marmos91/ntlmgate/pkg/metrics/prometheus"
)

// RouterDeps carries the collaborators the router wires together.
type RouterDeps struct {
	// Controller drives the NTLM handshake.
	Controller *handshake.Controller

	// Sessions issues and validates session cookies.
	Sessions *SessionManager

	// Protected is the application served behind authentication. When nil,
	// a built-in handler exposing /whoami is used.
	Protected http.Handler

	// Metrics configures the metrics endpoint; Registry must be set when
	// metrics are enabled.
	Metrics  config.MetricsConfig
	Registry *prometheus.Registry
}

// NewRouter creates and configures the chi router with all middleware and
// routes.
//
// Routes:
//   - GET /health - Liveness probe
//   - GET /health/ready - Readiness probe
//   - <metrics path> - Prometheus metrics (when enabled)
//   - <callback path> - NTLM handshake endpoint (any method)
//   - /* - the protected application, behind session authentication with
//     NTLM challenge-trigger on unauthorized responses
func NewRouter(deps RouterDeps) http.Handler {
	r := chi.NewRouter()

	// Middleware stack - order matters
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	// Health routes - unauthenticated
	r.Route("/health", func(r chi.Router) {
		r.Get("/", handleLiveness)
		r.Get("/ready", handleReadiness)
	})

	if deps.Metrics.Enabled && deps.Registry != nil {
		r.Handle(deps.Metrics.Path, promMetrics.Handler(deps.Registry))
	}

	// The handshake endpoint matches any method: browsers retry NTLM with
	// whatever verb the original request used.
	r.Handle(deps.Controller.CallbackPath(), callbackHandler(deps.Controller, deps.Sessions))

	protected := deps.Protected
	if protected == nil {
		protected = defaultProtectedHandler()
	}

	// Everything else is the protected application. The session middleware
	// attaches identity when a valid cookie is present; the challenge
	// trigger converts bare 401s into a handshake redirect.
	r.Group(func(r chi.Router) {
		r.Use(challengeTrigger(deps.Controller))
		r.Use(deps.Sessions.Authenticate)
		r.Handle("/*", requireSession(protected))
	})

	return r
}

// callbackHandler runs one handshake step per request and dispatches the
// result: sign-in plus redirect on a ticket, or the 401 challenge/initiation
// response otherwise.
func callbackHandler(controller *handshake.Controller, sessions *SessionManager) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		outcome := controller.HandleStep(handshake.Request{
			Token:         r.URL.Query().Get(handshake.StateParam),
			Authorization: r.Header.Get("Authorization"),
		})

		if outcome.Ticket == nil {
			w.Header().Set("WWW-Authenticate", outcome.WWWAuthenticate)
			w.WriteHeader(outcome.Status)
			return
		}

		if err := sessions.SignIn(w, outcome.Ticket.Identity); err != nil {
			logger.Error("session sign-in failed",
				logger.KeyUser, outcome.Ticket.Identity.Name,
				logger.KeyError, err)
			http.Error(w, "internal server error", http.StatusInternalServerError)
			return
		}

		// Back to the resource the user originally asked for.
		http.Redirect(w, r, outcome.Ticket.Properties.RedirectURL, http.StatusFound)
	})
}

// challengeTrigger intercepts unauthorized responses from the inner handler.
//
// When the inner handler responds 401 without setting WWW-Authenticate, the
// trigger starts a handshake for the requested URL and redirects the browser
// to the callback path instead: NTLM negotiation needs a stable URL, not the
// arbitrary protected resource. A 401 that already carries WWW-Authenticate
// is passed through untouched.
func challengeTrigger(controller *handshake.Controller) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			iw := &interceptWriter{ResponseWriter: w}
			next.ServeHTTP(iw, r)

			if !iw.intercepted {
				return
			}

			loc, err := controller.Begin(handshake.Properties{
				RedirectURL: r.URL.RequestURI(),
			})
			if err != nil {
				// Missing redirect target is a configuration error, not a
				// request-level condition.
				logger.Error("handshake trigger failed", logger.KeyError, err)
				http.Error(w, "internal server error", http.StatusInternalServerError)
				return
			}

			http.Redirect(w, r, loc, http.StatusFound)
		})
	}
}

// interceptWriter swallows a bare 401 (no WWW-Authenticate) so the
// challenge trigger can replace it with a redirect. Anything else passes
// through unchanged.
type interceptWriter struct {
	http.ResponseWriter
	wroteHeader bool
	intercepted bool
}

func (w *interceptWriter) WriteHeader(status int) {
	if w.wroteHeader {
		return
	}
	w.wroteHeader = true

	if status == http.StatusUnauthorized && w.Header().Get("WWW-Authenticate") == "" {
		w.intercepted = true
		return
	}
	w.ResponseWriter.WriteHeader(status)
}

func (w *interceptWriter) Write(b []byte) (int, error) {
	if !w.wroteHeader {
		w.WriteHeader(http.StatusOK)
	}
	if w.intercepted {
		// Drop the body of the swallowed response.
		return len(b), nil
	}
	return w.ResponseWriter.Write(b)
}

// requireSession rejects requests without an authenticated session with a
// bare 401, which the challenge trigger upgrades to a handshake redirect.
func requireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := SessionFromContext(r.Context()); !ok {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// defaultProtectedHandler serves the built-in authenticated surface.
func defaultProtectedHandler() http.Handler {
	mux := chi.NewRouter()
	mux.Get("/whoami", handleWhoami)
	mux.NotFound(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("authenticated\n"))
	})
	return mux
}

// handleWhoami returns the authenticated identity as JSON.
func handleWhoami(w http.ResponseWriter, r *http.Request) {
	claims, ok := SessionFromContext(r.Context())
	if !ok {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{
		"id":          claims.Subject,
		"name":        claims.Name,
		"sid":         claims.SID,
		"domain":      claims.Domain,
		"auth_method": claims.AuthMethod,
	})
}

// handleLiveness reports that the process is up.
func handleLiveness(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// handleReadiness reports that the server can serve handshakes.
func handleReadiness(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ready"})
}

// isHealthPath returns true if the request path is a healthcheck endpoint.
func isHealthPath(path string) bool {
	return path == "/health" || strings.HasPrefix(path, "/health/")
}

// requestLogger logs requests using the internal logger.
//
// Healthcheck requests are logged at DEBUG level to reduce noise.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := middleware.GetReqID(r.Context())

		logger.Debug("request started",
			logger.KeyRequestID, requestID,
			logger.KeyMethod, r.Method,
			logger.KeyPath, r.URL.Path,
			logger.KeyClientIP, r.RemoteAddr,
		)

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		logArgs := []any{
			logger.KeyRequestID, requestID,
			logger.KeyMethod, r.Method,
			logger.KeyPath, r.URL.Path,
			logger.KeyStatus, ww.Status(),
			"duration", time.Since(start).String(),
		}

		if isHealthPath(r.URL.Path) {
			logger.Debug("request completed", logArgs...)
		} else {
			logger.Info("request completed", logArgs...)
		}
	})
}
