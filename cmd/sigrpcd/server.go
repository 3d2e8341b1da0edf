package main

import (
	"expvar"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/mattn/go-isatty"
	"github.com/mnehpets/sigrpc/config"
	"github.com/mnehpets/sigrpc/endpoint"
	"github.com/mnehpets/sigrpc/example/arith"
	"github.com/mnehpets/sigrpc/jsonrpc"
	"github.com/mnehpets/sigrpc/middleware"
	"github.com/mnehpets/sigrpc/quota"
	"github.com/rs/cors"
)

// newLogger returns a text logger for terminals and a JSON logger otherwise.
func newLogger(w io.Writer, level slog.Level) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}
	if f, ok := w.(interface{ Fd() uintptr }); ok && isatty.IsTerminal(f.Fd()) {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

// newService builds the arithmetic service described by cfg.
func newService(cfg *config.Config, logger *slog.Logger) (*jsonrpc.Service, error) {
	sc := cfg.Service
	opts := []jsonrpc.ServiceOption{
		jsonrpc.WithInfo(jsonrpc.Info{
			Name:    sc.Name,
			ID:      sc.ID,
			Version: sc.Version,
			Summary: sc.Summary,
			Help:    sc.Help,
			Address: sc.Address,
		}),
		jsonrpc.WithDebug(sc.Debug),
		jsonrpc.WithSafe(sc.Safe),
		jsonrpc.WithHTTPErrors(sc.HTTPErrors),
		jsonrpc.WithPaddingNames(sc.PaddingNames...),
		jsonrpc.WithContentType(sc.ContentType),
		jsonrpc.WithFaultPropagation(sc.PropagateFaults),
		jsonrpc.WithMaxBodySize(cfg.Server.MaxBodyBytes),
		jsonrpc.WithLogger(logger),
	}

	if sc.Verbose != nil {
		opts = append(opts, jsonrpc.WithVerbose(*sc.Verbose))
	}

	var limits []jsonrpc.Validator
	if q := cfg.Quota; q.Rate > 0 {
		limits = append(limits, quota.NewRateLimiter(q.Rate, max(q.Burst, 1)))
	}
	if q := cfg.Quota; q.BudgetCalls > 0 {
		keyID, keys, err := middleware.ParseKeys(q.CookieKeys)
		if err != nil {
			return nil, fmt.Errorf("quota cookie keys: %w", err)
		}
		cookie, err := middleware.NewSealedCookie(q.CookieName, keyID, keys, middleware.WithPath(cfg.Server.Path))
		if err != nil {
			return nil, fmt.Errorf("quota cookie: %w", err)
		}
		limits = append(limits, quota.NewCookieBudget(cookie, q.BudgetCalls, q.BudgetWindow.Std()))
	}
	if len(limits) != 0 {
		opts = append(opts, jsonrpc.WithValidator(quota.Chain(limits...)))
	}
	return jsonrpc.NewService(arith.Checked, opts...), nil
}

// newMux routes the RPC endpoint, a health check and the expvar page.
func newMux(cfg *config.Config, svc *jsonrpc.Service) http.Handler {
	var hardening []middleware.SecurityHeadersOption
	if age := cfg.Server.HSTSMaxAge.Std(); age > 0 {
		hardening = append(hardening, middleware.WithHSTS(int(age.Seconds()), true, false))
	}
	var rpc http.Handler = svc.Handler(middleware.NewSecurityHeadersProcessor(hardening...))
	if origins := cfg.CORS.AllowedOrigins; len(origins) != 0 {
		rpc = cors.New(cors.Options{
			AllowedOrigins:   origins,
			AllowedMethods:   []string{http.MethodGet, http.MethodPost},
			AllowedHeaders:   []string{"Content-Type", "X-Requested-With"},
			AllowCredentials: cfg.CORS.AllowCredentials,
		}).Handler(rpc)
	}

	mux := http.NewServeMux()
	mux.Handle(cfg.Server.Path, rpc)
	mux.Handle("GET /healthz", endpoint.HandleFunc(healthz))
	mux.Handle("GET /debug/vars", expvar.Handler())
	return mux
}

func healthz(_ http.ResponseWriter, r *http.Request, _ struct{}) (endpoint.Renderer, error) {
	if r.Method == http.MethodHead {
		return &endpoint.NoContentRenderer{Status: http.StatusOK}, nil
	}
	return &endpoint.StringRenderer{Body: "ok\n"}, nil
}
