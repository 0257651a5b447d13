package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"

	"ebdconsole.org/internal/access"
	"ebdconsole.org/internal/console"
	"ebdconsole.org/internal/dashboard"
	"ebdconsole.org/internal/live"
	"ebdconsole.org/internal/obs"
)

const serviceName = "ebd-console"

// Pinger is anything readiness can ping, usually the document store.
type Pinger interface {
	Ping(ctx context.Context) error
}

// ReadyProbe checks the dependencies the console cannot serve without.
type ReadyProbe struct {
	Store Pinger
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.Store == nil {
		return nil
	}
	return rp.Store.Ping(ctx)
}

// Options wires the API to its collaborators.
type Options struct {
	Version       string
	Ready         ReadyProbe
	Verifier      *access.TokenVerifier
	Console       *console.Manager
	Dashboard     *dashboard.Service
	Hub           *live.Hub
	RateBurst     int
	RatePerSecond int
	MaxBodyBytes  int64
	FetchTimeout  time.Duration
}

// API is the HTTP layer of the console.
type API struct {
	mux          *http.ServeMux
	handler      http.Handler
	readyProbe   ReadyProbe
	version      string
	verifier     *access.TokenVerifier
	console      *console.Manager
	dashboards   *dashboard.Service
	hub          *live.Hub
	validate     *validator.Validate
	fetchTimeout time.Duration
}

func New(opts Options) (*API, error) {
	if opts.Verifier == nil {
		return nil, errors.New("httpapi: token verifier is required")
	}
	if opts.Console == nil || opts.Dashboard == nil {
		return nil, errors.New("httpapi: console and dashboard are required")
	}
	if opts.RateBurst <= 0 {
		opts.RateBurst = 20
	}
	if opts.RatePerSecond <= 0 {
		opts.RatePerSecond = 10
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = 1 << 20
	}
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = 10 * time.Second
	}
	a := &API{
		mux:          http.NewServeMux(),
		readyProbe:   opts.Ready,
		version:      opts.Version,
		verifier:     opts.Verifier,
		console:      opts.Console,
		dashboards:   opts.Dashboard,
		hub:          opts.Hub,
		validate:     validator.New(validator.WithRequiredStructEnabled()),
		fetchTimeout: opts.FetchTimeout,
	}
	a.routes()

	var h http.Handler = a.mux
	h = a.withIdentity(h)
	h = MaxBodyBytes(h, opts.MaxBodyBytes)
	h = RateLimit(h, opts.RateBurst, opts.RatePerSecond)
	h = CORS(h)
	h = SecurityHeaders(h)
	h = obs.Instrument(h)
	h = LoggingJSON(h)
	a.handler = RequestID(h)
	return a, nil
}

func (a *API) routes() {
	a.mux.HandleFunc("GET /healthz", a.Healthz)
	a.mux.HandleFunc("GET /readyz", a.Ready)
	a.mux.Handle("GET /metrics", obs.Handler())

	a.mux.HandleFunc("GET /v1/scope", a.Scope)
	a.mux.HandleFunc("GET /v1/reference", a.Reference)
	a.mux.HandleFunc("POST /v1/reference/refetch", a.Refetch)
	a.mux.HandleFunc("POST /v1/reference/invalidate", a.Invalidate)
	a.mux.HandleFunc("GET /v1/dashboard", a.Dashboard)
	a.mux.HandleFunc("POST /v1/presentations", a.OpenPresentation)
	a.mux.HandleFunc("GET /v1/presentations/{id}", a.GetPresentation)
	a.mux.HandleFunc("DELETE /v1/presentations/{id}", a.ClosePresentation)
	a.mux.HandleFunc("POST /v1/presentations/{id}/{op}", a.PresentationCommand)
	a.mux.HandleFunc("GET /v1/events", a.Events)

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		respondError(w, http.StatusNotFound, "not found")
	})
}

// Handler returns the fully wrapped handler.
func (a *API) Handler() http.Handler { return a.handler }

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": serviceName,
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if err := a.readyProbe.Check(r.Context()); err != nil {
		obs.SetReady(false)
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	obs.SetReady(true)
	writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]any{"error": msg})
}

func (a *API) decodeBody(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return errBadRequest("invalid JSON body: " + err.Error())
	}
	if err := a.validate.Struct(dst); err != nil {
		return errBadRequest(validationMessage(err))
	}
	return nil
}

func (a *API) withFetchTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, a.fetchTimeout)
}
