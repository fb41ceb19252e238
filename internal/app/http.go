package app

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"roundtable/pkg/api"
	"roundtable/pkg/auth"
	"roundtable/pkg/banner"
	"roundtable/pkg/telemetry"
)

// printBanner prints the startup banner and build info.
func (a *App) printBanner() {
	verStr := a.version
	if a.commit != "none" {
		verStr += " (" + a.commit + ")"
	}
	if a.buildDate != "unknown" {
		verStr += " @ " + a.buildDate
	}
	banner.PrintWithEff(a.eff, verStr)
}

// setupHTTPHandlers sets up all HTTP handlers on the provided mux.
func (a *App) setupHTTPHandlers(mux *http.ServeMux) {
	mux.HandleFunc("/healthz", api.HealthHandler)
	mux.HandleFunc("/readyz", api.ReadyHandler)
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/", a.server.Router())
}

// startHTTP builds the handler, starts the HTTP server in a goroutine and
// returns a channel that will contain any server error.
func (a *App) startHTTP(_ context.Context) <-chan error {
	mux := http.NewServeMux()
	a.setupHTTPHandlers(mux)

	sec := a.eff.Config.Security
	secCfg := auth.SecConfig{
		AllowedOrigins: append([]string{}, sec.CORS.AllowedOrigins...),
		BackendKeys:    map[string]struct{}{},
		FrontendKeys:   map[string]struct{}{},
	}
	for _, k := range sec.APIKeys.Backend {
		secCfg.BackendKeys[k] = struct{}{}
	}
	for _, k := range sec.APIKeys.Frontend {
		secCfg.FrontendKeys[k] = struct{}{}
	}
	limiter := auth.NewLimiter(time.Duration(sec.RateLimit.WindowSeconds)*time.Second, sec.RateLimit.MaxPerWindow)

	// wrap mux with auth middleware, then telemetry middleware
	wrapped := auth.Middleware(secCfg, limiter)(mux)
	wrapped = telemetry.Middleware(wrapped)

	// SSE streams stay open for the length of a discussion run; no write
	// timeout on the server.
	a.srv = &http.Server{Addr: a.eff.Addr, Handler: wrapped, ReadHeaderTimeout: 10 * time.Second}

	errCh := make(chan error, 1)
	go func() {
		cert := a.eff.Config.Server.TLS.CertFile
		key := a.eff.Config.Server.TLS.KeyFile
		if cert != "" && key != "" {
			errCh <- a.srv.ListenAndServeTLS(cert, key)
		} else {
			errCh <- a.srv.ListenAndServe()
		}
	}()
	return errCh
}
