// Package httpapi exposes the authentication subsystem and the record
// collaborators over JSON/HTTP.
package httpapi

import (
	"context"
	"net/http"

	"github.com/go-playground/validator/v10"

	"zhardem.org/internal/auth"
	"zhardem.org/internal/obs"
	"zhardem.org/internal/records"
)

const maxBodyBytes = 1 << 20

// ReadyProbe reports whether the process can serve traffic.
type ReadyProbe func(ctx context.Context) error

// RateConfig controls the per-IP login limiter.
type RateConfig struct {
	Enabled   bool
	Burst     int
	PerSecond int
}

// Options wires an API instance.
type Options struct {
	Auth      *auth.Service
	Records   *records.Service
	Ownership *auth.OwnershipChecker
	Probe     ReadyProbe
	Version   string
	Cookies   CookieConfig
	LoginRate RateConfig
}

// API routes HTTP traffic to the auth service and the record service.
type API struct {
	mux       *http.ServeMux
	auth      *auth.Service
	records   *records.Service
	ownership *auth.OwnershipChecker
	probe     ReadyProbe
	version   string
	cookies   CookieConfig
	validate  *validator.Validate
}

func New(opts Options) *API {
	a := &API{
		mux:       http.NewServeMux(),
		auth:      opts.Auth,
		records:   opts.Records,
		ownership: opts.Ownership,
		probe:     opts.Probe,
		version:   opts.Version,
		cookies:   opts.Cookies,
		validate:  validator.New(validator.WithRequiredStructEnabled()),
	}
	a.routes(opts.LoginRate)
	return a
}

func (a *API) routes(loginRate RateConfig) {
	a.mux.HandleFunc("/healthz", a.handleHealth)
	a.mux.HandleFunc("/readyz", a.handleReady)
	a.mux.HandleFunc("/v1/info", a.handleInfo)
	a.mux.Handle("/metrics", obs.Handler())

	login := http.Handler(http.HandlerFunc(a.handleLogin))
	if loginRate.Enabled {
		login = RateLimit(login, loginRate.Burst, loginRate.PerSecond)
	}
	a.mux.HandleFunc("/v1/auth/register", a.handleRegister)
	a.mux.Handle("/v1/auth/login", login)
	a.mux.HandleFunc("/v1/auth/refresh", a.handleRefresh)
	a.mux.HandleFunc("/v1/auth/logout", a.handleLogout)
	a.mux.HandleFunc("/v1/auth/me", a.handleMe)
	a.mux.HandleFunc("/v1/auth/pending", a.handlePending)
	a.mux.HandleFunc("/v1/auth/accounts", a.handleAccounts)
	a.mux.HandleFunc("/v1/auth/accounts/", a.handleAccountResource)

	for _, e := range records.Registry() {
		entity := e
		a.mux.HandleFunc("/v1/"+entity.Name, func(w http.ResponseWriter, r *http.Request) {
			a.handleRecordCollection(w, r, entity)
		})
		a.mux.HandleFunc("/v1/"+entity.Name+"/", func(w http.ResponseWriter, r *http.Request) {
			a.handleRecordResource(w, r, entity)
		})
	}
}

// Handler returns the fully wrapped handler chain.
func (a *API) Handler() http.Handler {
	var h http.Handler = a.mux
	h = a.withAuth(h)
	h = MaxBodyBytes(h, maxBodyBytes)
	h = CORS(h)
	h = SecurityHeaders(h)
	h = Logging(h)
	h = RequestID(h)
	return obs.Instrument(h)
}
