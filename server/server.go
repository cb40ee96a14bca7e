package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sort"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jonwraymond/pipecache/admin"
	"github.com/jonwraymond/pipecache/auth"
	"github.com/jonwraymond/pipecache/config"
	"github.com/jonwraymond/pipecache/health"
	"github.com/jonwraymond/pipecache/observe"
	"github.com/jonwraymond/pipecache/pipeline"
	"github.com/jonwraymond/pipecache/reader"
	"github.com/jonwraymond/pipecache/resilience"
	"github.com/jonwraymond/pipecache/source"
	"github.com/jonwraymond/pipecache/store"
)

// Option customizes New.
type Option func(*options)

type options struct {
	databases map[string]*sql.DB
	s3        source.S3API
	evaluator []pipeline.Option
	registry  *prometheus.Registry
}

// WithDatabase supplies an open handle for the named database instead of
// opening it from its DSN. The caller keeps ownership.
func WithDatabase(name string, db *sql.DB) Option {
	return func(o *options) { o.databases[name] = db }
}

// WithS3Client supplies the client behind s3:// sources.
func WithS3Client(client source.S3API) Option {
	return func(o *options) { o.s3 = client }
}

// WithEvaluatorOptions appends options to every evaluator.
func WithEvaluatorOptions(opts ...pipeline.Option) Option {
	return func(o *options) { o.evaluator = append(o.evaluator, opts...) }
}

// WithRegistry replaces the prometheus registry served on the metrics path.
func WithRegistry(reg *prometheus.Registry) Option {
	return func(o *options) { o.registry = reg }
}

// Server is an assembled pipecache service.
//
// Contract:
//   - Concurrency: Handler is safe for concurrent use.
//   - Lifecycle: Close must be called once the server is no longer used,
//     whether or not Run was called.
type Server struct {
	cfg      *config.Config
	obs      observe.Observer
	logger   observe.Logger
	registry *prometheus.Registry
	latency  *observe.LatencyTracker
	health   *health.Aggregator

	stores   map[string]*store.FilesystemStore
	ownedDBs []*sql.DB
	mounts   []*mount
	handler  http.Handler
}

// New builds a server from cfg. On error everything opened so far is
// released.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*Server, error) {
	o := &options{databases: make(map[string]*sql.DB)}
	for _, opt := range opts {
		opt(o)
	}

	s := &Server{
		cfg:     cfg,
		stores:  make(map[string]*store.FilesystemStore, len(cfg.Stores)),
		latency: observe.NewLatencyTracker(0.01),
		health:  health.NewAggregator(health.AggregatorConfig{Timeout: cfg.Health.Timeout}),
	}
	if err := s.build(ctx, o); err != nil {
		_ = s.Close(context.WithoutCancel(ctx))
		return nil, err
	}
	return s, nil
}

func (s *Server) build(ctx context.Context, o *options) error {
	s.registry = o.registry
	if s.registry == nil {
		s.registry = prometheus.NewRegistry()
		s.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}

	obsCfg := s.cfg.Observe
	obsCfg.Metrics.Registerer = s.registry
	obs, err := observe.NewObserver(ctx, obsCfg)
	if err != nil {
		return fmt.Errorf("server: observer: %w", err)
	}
	s.obs = obs
	s.logger = obs.Logger()

	if err := s.openStores(); err != nil {
		return err
	}
	resolver, err := s.buildResolver(ctx, o)
	if err != nil {
		return err
	}
	dbs, err := s.openDatabases(o)
	if err != nil {
		return err
	}
	components, err := s.buildComponents(resolver, dbs)
	if err != nil {
		return err
	}

	mw, err := observe.MiddlewareFromObserver(obs, s.latency)
	if err != nil {
		return fmt.Errorf("server: middleware: %w", err)
	}
	evaluators := s.buildEvaluators(o)
	for _, mc := range s.cfg.Mounts {
		s.mounts = append(s.mounts, newMount(mc, components, evaluators[mc.Store], mw))
	}

	handler, err := s.routes()
	if err != nil {
		return err
	}
	s.handler = handler
	return nil
}

func (s *Server) openStores() error {
	for _, name := range sortedKeys(s.cfg.Stores) {
		sc := s.cfg.Stores[name]
		sc.Logger = s.logger
		st, err := store.New(sc)
		if err != nil {
			return fmt.Errorf("server: store %q: %w", name, err)
		}
		s.stores[name] = st
		s.health.Register(health.NewProbeChecker("store."+name, st))
	}
	return nil
}

// buildResolver serves plain paths and file: URIs from the source root and
// s3:// URIs through a resilient S3 resolver.
func (s *Server) buildResolver(ctx context.Context, o *options) (source.Resolver, error) {
	sc := s.cfg.Sources

	var files source.Resolver
	if sc.Root != "" {
		fr, err := source.NewFileResolver(sc.Root)
		if err != nil {
			return nil, fmt.Errorf("server: %w", err)
		}
		files = fr
	}
	reg := source.NewRegistry(files)
	if files != nil {
		reg.Register("file", files)
	}

	client := o.s3
	if client == nil && sc.S3 != nil {
		c, err := source.NewS3Client(ctx, *sc.S3)
		if err != nil {
			return nil, fmt.Errorf("server: %w", err)
		}
		client = c
	}
	if client != nil {
		exec := resilience.NewExecutorFromConfig(sc.Resilience)
		reg.Register("s3", source.NewResilient(source.NewS3Resolver(client), exec))
		if cb := exec.CircuitBreaker(); cb != nil {
			s.health.Register(health.NewBreakerChecker("source.s3", cb))
		}
	}

	s.logger.Debug(ctx, "source schemes", observe.F("schemes", reg.Schemes()), observe.F("root", sc.Root))
	return reg, nil
}

func (s *Server) openDatabases(o *options) (map[string]*sql.DB, error) {
	dbs := make(map[string]*sql.DB, len(s.cfg.Databases))
	for _, name := range sortedKeys(s.cfg.Databases) {
		db, ok := o.databases[name]
		if !ok {
			dc := s.cfg.Databases[name]
			var err error
			db, err = sql.Open(dc.Driver, dc.DSN)
			if err != nil {
				return nil, fmt.Errorf("server: database %q: %w", name, err)
			}
			s.ownedDBs = append(s.ownedDBs, db)
			if dc.MaxOpenConns > 0 {
				db.SetMaxOpenConns(dc.MaxOpenConns)
			}
			if dc.MaxIdleConns > 0 {
				db.SetMaxIdleConns(dc.MaxIdleConns)
			}
			if dc.ConnMaxLifetime > 0 {
				db.SetConnMaxLifetime(dc.ConnMaxLifetime)
			}
		}
		dbs[name] = db
		s.health.Register(health.NewProbeChecker("database."+name, health.ProbeFunc(db.PingContext)))
	}
	return dbs, nil
}

func (s *Server) buildComponents(resolver source.Resolver, dbs map[string]*sql.DB) (map[string]pipeline.Component, error) {
	components := make(map[string]pipeline.Component, len(s.cfg.Components))
	for name, cc := range s.cfg.Components {
		logger := s.logger.With(observe.F("component", name))
		switch cc.Type {
		case config.TypeResource:
			components[name] = reader.NewResourceReader(cc.Resource, resolver, logger)
		case config.TypeImage:
			components[name] = reader.NewImageReader(cc.Image, resolver, logger)
		case config.TypeDatabase:
			r, err := reader.NewDatabaseReader(cc.Table, dbs[cc.Database], logger)
			if err != nil {
				return nil, fmt.Errorf("server: component %q: %w", name, err)
			}
			components[name] = r
		default:
			return nil, fmt.Errorf("server: component %q: unknown type %q", name, cc.Type)
		}
	}
	return components, nil
}

// buildEvaluators returns one evaluator per store name. The "" entry
// serves mounts without a store.
func (s *Server) buildEvaluators(o *options) map[string]*pipeline.Evaluator {
	opts := []pipeline.Option{
		pipeline.WithLogger(s.logger),
		pipeline.WithKeyPrefix(s.cfg.Evaluator.KeyPrefix),
	}
	if s.cfg.Evaluator.SharedRegeneration {
		opts = append(opts, pipeline.WithSharedRegeneration())
	}
	opts = append(opts, o.evaluator...)

	evaluators := map[string]*pipeline.Evaluator{"": pipeline.NewEvaluator(nil, opts...)}
	for name, st := range s.stores {
		evaluators[name] = pipeline.NewEvaluator(st, opts...)
	}
	return evaluators
}

func (s *Server) routes() (http.Handler, error) {
	mux := http.NewServeMux()
	for _, m := range s.mounts {
		mux.Handle(m.path, m)
	}
	health.RegisterHandlers(mux, s.health)
	if p := s.cfg.Server.MetricsPath; p != "" {
		mux.Handle("GET "+p, promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{Registry: s.registry}))
	}

	ac := s.cfg.Admin
	if !ac.Enabled {
		return mux, nil
	}
	var chain auth.Chain
	if ac.JWT != nil {
		a, err := auth.NewJWTAuthenticator(*ac.JWT)
		if err != nil {
			return nil, fmt.Errorf("server: admin: %w", err)
		}
		chain = append(chain, a)
	}
	if ac.APIKeys != nil {
		chain = append(chain, auth.NewAPIKeyAuthenticator(*ac.APIKeys))
	}

	managed := make(map[string]admin.Store, len(s.stores))
	for name, st := range s.stores {
		managed[name] = st
	}
	api := admin.NewHandler(admin.Config{Stores: managed, Latency: s.latency, Logger: s.logger}).Routes(ac.Prefix)
	mux.Handle(ac.Prefix+"/", auth.NewMiddleware(chain, s.logger).Require(ac.Roles...)(api))
	return mux, nil
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler { return s.handler }

// Health returns the aggregator behind the readiness endpoints.
func (s *Server) Health() *health.Aggregator { return s.health }

// Latency returns the per-pipeline latency sketches.
func (s *Server) Latency() *observe.LatencyTracker { return s.latency }

// Run listens on the configured address and serves until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Server.Addr)
	if err != nil {
		return fmt.Errorf("server: listen %s: %w", s.cfg.Server.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is done, then shuts down gracefully within
// the configured shutdown timeout.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: s.cfg.Server.ReadHeaderTimeout,
		BaseContext:       func(net.Listener) context.Context { return context.WithoutCancel(ctx) },
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()
	s.logger.Info(ctx, "serving", observe.F("addr", ln.Addr().String()), observe.F("mounts", len(s.mounts)))

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server: serve: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.Server.ShutdownTimeout)
	defer cancel()
	s.logger.Info(shutdownCtx, "shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}

// Close releases stores, databases opened from their DSN and telemetry.
func (s *Server) Close(ctx context.Context) error {
	var errs []error
	for _, name := range sortedKeys(s.stores) {
		if err := s.stores[name].Close(); err != nil {
			errs = append(errs, fmt.Errorf("store %q: %w", name, err))
		}
	}
	for _, db := range s.ownedDBs {
		if err := db.Close(); err != nil {
			errs = append(errs, fmt.Errorf("database: %w", err))
		}
	}
	if s.obs != nil {
		ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := s.obs.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
