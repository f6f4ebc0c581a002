package httpapi

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"issuedesk.org/internal/auth"
	"issuedesk.org/internal/issue"
	"issuedesk.org/internal/obs"
)

// ReadyProbe reports whether the service can serve traffic (DB ping).
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// Options wires the HTTP layer to its dependencies.
type Options struct {
	Sessions *auth.Service
	Issues   *issue.Service
	Codec    *auth.Codec
	Ready    ReadyProbe
	Version  string

	ClientOrigin   string
	CookieSecure   bool
	CookieSameSite http.SameSite
	AccessTTL      time.Duration
	RefreshTTL     time.Duration
}

// API is the HTTP layer.
type API struct {
	mux        *http.ServeMux
	sessions   *auth.Service
	issues     *issue.Service
	codec      *auth.Codec
	readyProbe ReadyProbe
	version    string

	clientOrigin   string
	cookieSecure   bool
	cookieSameSite http.SameSite
	accessTTL      time.Duration
	refreshTTL     time.Duration
}

func New(opts Options) (*API, error) {
	if opts.Sessions == nil || opts.Issues == nil || opts.Codec == nil {
		return nil, errors.New("httpapi: session service, issue service and codec are required")
	}
	if opts.AccessTTL <= 0 || opts.RefreshTTL <= 0 {
		return nil, errors.New("httpapi: token lifetimes are required")
	}
	if opts.CookieSameSite == 0 {
		opts.CookieSameSite = http.SameSiteLaxMode
	}
	a := &API{
		mux:            http.NewServeMux(),
		sessions:       opts.Sessions,
		issues:         opts.Issues,
		codec:          opts.Codec,
		readyProbe:     opts.Ready,
		version:        opts.Version,
		clientOrigin:   strings.TrimRight(opts.ClientOrigin, "/"),
		cookieSecure:   opts.CookieSecure,
		cookieSameSite: opts.CookieSameSite,
		accessTTL:      opts.AccessTTL,
		refreshTTL:     opts.RefreshTTL,
	}

	// health/ready/info
	a.mux.HandleFunc("/healthz", a.Healthz)
	a.mux.HandleFunc("/readyz", a.Ready)
	a.mux.HandleFunc("/v1/info", a.Info)

	// Prometheus metrics
	a.mux.Handle("/metrics", obs.Handler())

	// sessions
	a.mux.HandleFunc("/api/v1/auth/register", a.handleRegister)
	a.mux.HandleFunc("/api/v1/auth/login", a.handleLogin)
	a.mux.HandleFunc("/api/v1/auth/refresh", a.handleRefresh)
	a.mux.HandleFunc("/api/v1/auth/logout", a.handleLogout)
	a.mux.HandleFunc("/api/v1/auth/me", a.handleMe)

	// issues
	a.mux.HandleFunc("/api/v1/issues", a.handleIssuesCollection)
	a.mux.HandleFunc("/api/v1/issues/", a.handleIssueResource)

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	return a, nil
}

// Handler assembles the middleware chain around the mux. Order
// matters: the request id must exist before logging, and the auth
// check runs after the cheap guards so unauthenticated floods hit the
// rate limiter first.
func (a *API) Handler() http.Handler {
	h := a.withAuth(a.mux)
	h = a.originGuard(h)
	h = MaxBodyBytes(h, 1<<20)
	h = a.authRateLimit(h)
	h = RateLimit(h, 50, 25)
	h = a.cors(h)
	h = SecurityHeaders(h)
	h = obs.Instrument(h)
	h = LoggingJSON(h)
	h = RequestID(h)
	return h
}

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "issuedesk-api",
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if err := a.readyProbe.Check(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
}

func (a *API) Info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    "issuedesk-api",
		"time":    time.Now().UTC().Format(time.RFC3339),
		"version": a.version,
	})
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	payload := map[string]any{
		"error": msg,
	}
	if rid := RequestIDFromContext(r.Context()); rid != "" {
		payload["request_id"] = rid
	}
	writeJSON(w, code, payload)
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request, allowed ...string) {
	w.Header().Set("Allow", strings.Join(allowed, ", "))
	writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	reader := http.MaxBytesReader(w, r.Body, 1<<20)
	defer reader.Close()
	dec := json.NewDecoder(reader)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return errors.New("unexpected data after JSON body")
		}
		return err
	}
	return nil
}
