// Package httpapi serves the REST surface under /api plus /healthz and /metrics.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"ewastePickup/internal/aggregate"
	"ewastePickup/internal/auth"
	"ewastePickup/internal/config"
	"ewastePickup/internal/identity"
	"ewastePickup/internal/lifecycle"
	"ewastePickup/internal/logging"
	"ewastePickup/internal/metrics"
	"ewastePickup/internal/report"
)

// Deps are the services and settings the router is built from.
type Deps struct {
	Identity   *identity.Service
	Engine     *lifecycle.Engine
	Aggregates *aggregate.Service
	Reports    *report.Emitter
	Log        logrus.FieldLogger

	CORSOrigins    []string
	RateLimitRPS   float64
	RateLimitBurst int
}

type api struct {
	Deps
}

// NewRouter wires every route. Authentication is resolved for all routes when
// a bearer token is present; handlers decide whether a principal is required.
func NewRouter(d Deps) http.Handler {
	if d.Log == nil {
		d.Log = logging.Discard()
	}
	a := &api{Deps: d}

	r := mux.NewRouter()
	r.Use(metrics.InstrumentHandler, accessLog(d.Log), corsMiddleware(d.CORSOrigins))

	r.HandleFunc("/healthz", a.handleHealth).Methods(http.MethodGet)
	r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)

	apiR := r.PathPrefix("/api").Subrouter()
	apiR.Use(auth.HTTPMiddleware(d.Identity))

	authR := apiR.PathPrefix("/auth").Subrouter()
	if d.RateLimitRPS > 0 {
		authR.Use(newRateLimiter(d.RateLimitRPS, d.RateLimitBurst, d.Log).Handler)
	}
	authR.HandleFunc("/register", a.handleRegister).Methods(http.MethodPost, http.MethodOptions)
	authR.HandleFunc("/login", a.handleLogin).Methods(http.MethodPost, http.MethodOptions)
	authR.HandleFunc("/me", a.handleMe).Methods(http.MethodGet, http.MethodOptions)

	apiR.HandleFunc("/profile", a.handleUpdateProfile).Methods(http.MethodPatch, http.MethodOptions)

	apiR.HandleFunc("/requests", a.handleListRequests).Methods(http.MethodGet, http.MethodOptions)
	apiR.HandleFunc("/requests", a.handleCreateRequest).Methods(http.MethodPost, http.MethodOptions)
	apiR.HandleFunc("/requests/{id:[0-9]+}", a.handleGetRequest).Methods(http.MethodGet, http.MethodOptions)
	apiR.HandleFunc("/requests/{id:[0-9]+}", a.handleEditRequest).Methods(http.MethodPatch, http.MethodOptions)
	apiR.HandleFunc("/requests/{id:[0-9]+}/assign", a.handleAssign).Methods(http.MethodPost, http.MethodOptions)
	apiR.HandleFunc("/requests/{id:[0-9]+}/status", a.handleSetStatus).Methods(http.MethodPost, http.MethodOptions)
	apiR.HandleFunc("/requests/{id:[0-9]+}/cancel", a.handleCancel).Methods(http.MethodPost, http.MethodOptions)
	apiR.HandleFunc("/requests/{id:[0-9]+}/rating", a.handleRate).Methods(http.MethodPost, http.MethodOptions)

	apiR.HandleFunc("/collectors", a.handleListCollectors).Methods(http.MethodGet, http.MethodOptions)
	apiR.HandleFunc("/collectors", a.handleRegisterCollector).Methods(http.MethodPost, http.MethodOptions)

	apiR.HandleFunc("/dashboard/stats", a.handleDashboardStats).Methods(http.MethodGet, http.MethodOptions)
	apiR.HandleFunc("/reports/monthly", a.handleMonthlyReport).Methods(http.MethodGet, http.MethodOptions)

	return r
}

// StartHTTP serves the router on the configured address and returns a shutdown function.
// An empty address leaves the REST server off and returns a no-op shutdown.
func StartHTTP(cfg *config.Config, d Deps) (func(context.Context) error, error) {
	if cfg == nil {
		panic("config is required")
	}
	if cfg.HTTP.Address == "" {
		return func(context.Context) error { return nil }, nil
	}
	d.CORSOrigins = cfg.HTTP.CORSOrigins
	d.RateLimitRPS = cfg.HTTP.RateLimitRPS
	d.RateLimitBurst = cfg.HTTP.RateLimitBurst

	srv := &http.Server{
		Addr:              cfg.HTTP.Address,
		Handler:           NewRouter(d),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      60 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// Surface immediate bind failures.
	select {
	case err := <-errCh:
		if err != nil {
			return nil, err
		}
	case <-time.After(100 * time.Millisecond):
	}
	return srv.Shutdown, nil
}
