// Package api exposes the ballot ledger over HTTP.
package api

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	chiprometheus "github.com/766b/chi-prometheus"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"go.vocdoni.io/zkballot/ledger"
	"go.vocdoni.io/zkballot/log"
	"go.vocdoni.io/zkballot/voting"
)

// APIConfig type represents the configuration for the API HTTP server.
type APIConfig struct {
	Host   string
	Port   int
	Ledger *ledger.Ledger
	// Metrics is an optional registry exposed next to the default one.
	Metrics *prometheus.Registry
	// PrometheusID enables the per route HTTP metrics under this name.
	PrometheusID string
}

// API type represents the API HTTP server.
type API struct {
	router       *chi.Mux
	ledger       *ledger.Ledger
	orchestrator *voting.Orchestrator
	gatherer     prometheus.Gatherer

	host   string
	port   int
	server *http.Server
}

var (
	httpMetricsMu sync.Mutex
	httpMetrics   = map[string]func(http.Handler) http.Handler{}
)

// httpMetricsMiddleware returns the chi-prometheus middleware for id. The
// middleware registers its collectors globally, so it is created once per id.
func httpMetricsMiddleware(id string) func(http.Handler) http.Handler {
	httpMetricsMu.Lock()
	defer httpMetricsMu.Unlock()
	if m, ok := httpMetrics[id]; ok {
		return m
	}
	m := chiprometheus.NewMiddleware(id)
	httpMetrics[id] = m
	return m
}

// New creates a new API instance with the given configuration. Start must be
// called to serve it.
func New(conf *APIConfig) (*API, error) {
	if conf == nil {
		return nil, fmt.Errorf("missing API configuration")
	}
	if conf.Ledger == nil {
		return nil, fmt.Errorf("missing ledger instance")
	}
	a := &API{
		ledger:       conf.Ledger,
		orchestrator: conf.Ledger.Orchestrator(),
		gatherer:     prometheus.DefaultGatherer,
		host:         conf.Host,
		port:         conf.Port,
	}
	if conf.Metrics != nil {
		a.gatherer = prometheus.Gatherers{prometheus.DefaultGatherer, conf.Metrics}
	}
	a.initRouter(conf.PrometheusID)
	return a, nil
}

// Router returns the chi router for testing purposes
func (a *API) Router() *chi.Mux {
	return a.router
}

// Start listens on the configured address and serves the API in the
// background. It returns the listening address.
func (a *API) Start() (net.Addr, error) {
	ln, err := net.Listen("tcp", net.JoinHostPort(a.host, fmt.Sprintf("%d", a.port)))
	if err != nil {
		return nil, err
	}
	a.server = &http.Server{
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       10 * time.Second,
		ReadHeaderTimeout: 3 * time.Second,
		Handler:           a.router,
	}
	go func() {
		log.Infow("starting API server", "address", ln.Addr().String())
		if err := a.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			log.Fatalf("failed to start the API server: %v", err)
		}
	}()
	return ln.Addr(), nil
}

// Stop shuts the server down.
func (a *API) Stop(ctx context.Context) error {
	if a.server == nil {
		return nil
	}
	return a.server.Shutdown(ctx)
}

// registerHandlers registers all the API handlers.
func (a *API) registerHandlers() {
	handlers := []struct {
		method, endpoint string
		fn               http.HandlerFunc
	}{
		{http.MethodGet, PingEndpoint, func(w http.ResponseWriter, r *http.Request) { httpWriteOK(w) }},
		{http.MethodGet, InfoEndpoint, a.info},
		{http.MethodGet, CandidatesEndpoint, a.candidates},
		{http.MethodGet, PhaseEndpoint, a.phase},
		{http.MethodGet, CommitmentEndpoint, a.commitment},
		{http.MethodGet, NullifierEndpoint, a.nullifier},
		{http.MethodGet, TotalVotesEndpoint, a.totalVotes},
		{http.MethodPost, TransactionsEndpoint, a.submitTx},
		{http.MethodGet, TransactionEndpoint, a.transaction},
		{http.MethodGet, BlockEndpoint, a.block},
		{http.MethodGet, MetricsEndpoint, promhttp.HandlerFor(a.gatherer, promhttp.HandlerOpts{}).ServeHTTP},
	}
	for _, h := range handlers {
		log.Infow("register handler", "endpoint", h.endpoint, "method", h.method)
		a.router.Method(h.method, h.endpoint, h.fn)
	}
	a.router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		ErrResourceNotFound.With(r.URL.Path).Write(w)
	})
}

// stdLogger routes the chi request log through the zap logger, at debug level.
type stdLogger struct {
	log *zap.SugaredLogger
}

func (l stdLogger) Print(v ...any) { l.log.Debug(fmt.Sprint(v...)) }

// initRouter creates the router with all the routes and middleware.
func (a *API) initRouter(prometheusID string) {
	// Create the router with a basic middleware stack
	a.router = chi.NewRouter()
	a.router.Use(cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		AllowCredentials: true,
		MaxAge:           300, // Maximum value not ignored by any of major browsers
	}).Handler)
	a.router.Use(middleware.RequestLogger(&middleware.DefaultLogFormatter{
		Logger:  stdLogger{log.Logger()},
		NoColor: true,
	}))
	a.router.Use(middleware.Recoverer)
	a.router.Use(middleware.Throttle(100))
	a.router.Use(middleware.ThrottleBacklog(5000, 40000, 60*time.Second))
	a.router.Use(middleware.Timeout(45 * time.Second))
	if prometheusID != "" {
		a.router.Use(httpMetricsMiddleware(prometheusID))
	}

	// Register the API handlers
	a.registerHandlers()
}
