package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/bjaus/restroute"
	"github.com/bjaus/restroute/httphost"
	"github.com/bjaus/restroute/kvstore"
	"github.com/bjaus/restroute/observability"
	"github.com/bjaus/restroute/openapi"
	"github.com/bjaus/restroute/resource"
	"github.com/bjaus/restroute/storage"
)

// app wires configuration into stores, resources and the HTTP host.
type app struct {
	cfg       Config
	logger    *slog.Logger
	store     restroute.Store
	limiter   restroute.RateLimiter
	sink      *observability.PrometheusSink
	verifier  restroute.TokenVerifier
	resources []*resource.Resource

	pool  *pgxpool.Pool
	redis *redis.Client
}

func newApp(ctx context.Context, cfg Config, logger *slog.Logger) (*app, error) {
	a := &app{
		cfg:    cfg,
		logger: logger,
		sink:   observability.NewPrometheusSink(),
	}

	if cfg.Redis.Addr != "" {
		client, err := kvstore.Dial(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			return nil, err
		}
		a.redis = client
		a.store = kvstore.NewRedis(client, kvstore.WithKeyPrefix(cfg.Redis.Prefix))
		a.limiter = kvstore.NewRedisRateLimiter(client)
	} else {
		mem := kvstore.NewMemory()
		go mem.Start(ctx)
		a.store = mem
		a.limiter = restroute.NewStoreRateLimiter(mem, time.Now)
	}

	if cfg.JWT.Secret != "" {
		v, err := restroute.NewHS256Verifier(cfg.JWT.Secret, restroute.WithLeeway(cfg.JWT.Leeway))
		if err != nil {
			a.close()
			return nil, err
		}
		a.verifier = v
	}

	var adapter *storage.Adapter
	if cfg.Postgres.DSN != "" {
		pool, ad, err := storage.Connect(ctx, cfg.Postgres.DSN, storage.WithTablePrefix(cfg.Postgres.TablePrefix))
		if err != nil {
			a.close()
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		a.pool = pool
		adapter = ad
	}

	for _, rc := range cfg.Resources {
		res, err := a.resource(ctx, rc, adapter)
		if err != nil {
			a.close()
			return nil, err
		}
		a.resources = append(a.resources, res)
	}
	return a, nil
}

func (a *app) resource(ctx context.Context, rc ResourceConfig, adapter *storage.Adapter) (*resource.Resource, error) {
	res := resource.New(rc.Name).
		Namespace(a.cfg.Namespace).
		Fields(rc.Fields...).
		Filters(rc.Filters...).
		Sort(rc.Sort...).
		Middleware(a.middlewares()...).
		RouterOptions(
			restroute.WithHostAdapter(httphost.Adapter{}),
			restroute.WithLogger(a.logger),
		)

	policy := resource.Policy{Public: rc.Public, Scopes: rc.Scopes}
	if a.verifier != nil && !rc.Public {
		policy.Rules = map[resource.Action]resource.Rule{resource.AnyAction: resource.RuleFunc(hasBearer)}
	}
	res.Policy(policy)

	switch {
	case rc.ContentType != "" && adapter != nil:
		res.FromContent(rc.ContentType).WithContentRepository(&resource.SQLContentRepository{Adapter: adapter})
	case rc.ContentType != "":
		repo := resource.NewMemoryContent()
		for _, row := range rc.Seed {
			if _, err := repo.Create(ctx, rc.ContentType, row, nil); err != nil {
				return nil, fmt.Errorf("seed %s: %w", rc.Name, err)
			}
		}
		res.FromContent(rc.ContentType).WithContentRepository(repo)
	case adapter != nil:
		res.FromTable(rc.Table, rc.PrimaryKey).WithTableRepository(&resource.SQLTableRepository{Adapter: adapter})
	default:
		repo := resource.NewMemoryTable()
		for _, row := range rc.Seed {
			if _, err := repo.Create(ctx, rc.Table, primaryKey(rc), row, nil); err != nil {
				return nil, fmt.Errorf("seed %s: %w", rc.Name, err)
			}
		}
		res.FromTable(rc.Table, primaryKey(rc)).WithTableRepository(repo)
	}
	return res, nil
}

func primaryKey(rc ResourceConfig) string {
	if rc.PrimaryKey == "" {
		return "id"
	}
	return rc.PrimaryKey
}

func hasBearer(req restroute.Request) bool {
	_, ok := restroute.BearerToken(req)
	return ok || slices.Contains([]string{http.MethodGet, http.MethodHead}, req.Method())
}

func (a *app) middlewares() []restroute.Middleware {
	auditLog := logrus.New()
	auditLog.SetFormatter(&logrus.JSONFormatter{})

	mws := []restroute.Middleware{
		restroute.Recovery(a.logger),
		restroute.Audit(restroute.AuditConfig{Logger: observability.LogrusAuditLogger{Logger: auditLog}}),
		restroute.Metrics(restroute.MetricsConfig{Sink: a.sink}),
		restroute.RateLimit(restroute.RateLimitConfig{
			Limiter: a.limiter,
			Limit:   a.cfg.RateLimit.Limit,
			Window:  a.cfg.RateLimit.Window,
		}),
	}
	if a.verifier != nil {
		mws = append(mws, writesOnly(restroute.JWTAuth(restroute.JWTAuthConfig{
			Verifier:       a.verifier,
			RequiredScopes: a.cfg.JWT.Scopes,
			UserMapper:     restroute.ClaimsMapper{},
		})))
	}
	return append(mws,
		restroute.Cache(restroute.CacheConfig{Store: a.store, TTL: a.cfg.Cache.TTL, Logger: a.logger}),
		restroute.Idempotency(restroute.IdempotencyConfig{Store: a.store}),
	)
}

// writesOnly applies mw to every method except GET and HEAD.
func writesOnly(mw restroute.Middleware) restroute.Middleware {
	return restroute.MiddlewareFunc(func(rc restroute.RequestContext, next restroute.Next) (any, error) {
		switch rc.Request().Method() {
		case http.MethodGet, http.MethodHead:
			return next(rc)
		}
		return mw.Handle(rc, next)
	})
}

func (a *app) openAPIOptions() openapi.Options {
	return openapi.Options{
		Title:     a.cfg.Title,
		ServerURL: a.cfg.Prefix,
		Components: map[string]any{
			"securitySchemes": map[string]any{
				"bearer": map[string]any{"type": "http", "scheme": "bearer", "bearerFormat": "JWT"},
			},
		},
	}
}

func (a *app) sources() []any {
	out := make([]any, len(a.resources))
	for i, r := range a.resources {
		out[i] = r
	}
	return out
}

// handler builds the HTTP host serving every resource, the OpenAPI
// document with its docs page and the metrics endpoint.
func (a *app) handler() (http.Handler, error) {
	mws := []func(http.Handler) http.Handler{
		middleware.RealIP,
		httphost.AccessLog(a.logger),
		middleware.Timeout(30 * time.Second),
		httphost.SecureHeaders(httphost.SecureConfig{}),
	}
	if len(a.cfg.CORS.Origins) > 0 {
		mws = append(mws, httphost.CORS(httphost.CORSConfig{AllowOrigins: a.cfg.CORS.Origins}))
	}
	d := httphost.New(
		httphost.WithPrefix(a.cfg.Prefix),
		httphost.WithLogger(a.logger),
		httphost.WithMiddleware(mws...),
	)

	for _, r := range a.resources {
		if err := d.Mount(r); err != nil {
			return nil, fmt.Errorf("mount %s: %w", r.Name(), err)
		}
	}
	err := openapi.Register(a.cfg.Namespace, openapi.StaticProvider(true, a.sources()...), openapi.RegisterOptions{
		Options:       a.openAPIOptions(),
		RouterOptions: []restroute.RouterOption{restroute.WithHostAdapter(httphost.Adapter{})},
	}, d)
	if err != nil {
		return nil, err
	}
	if a.cfg.Metrics.Path != "" {
		d.Mux().Method(http.MethodGet, a.cfg.Metrics.Path, a.sink.Handler())
	}
	if a.cfg.Docs.Path != "" {
		specURL := strings.TrimSuffix(a.cfg.Prefix, "/") + "/" + a.cfg.Namespace + "/openapi.json"
		d.Mux().Method(http.MethodGet, a.cfg.Docs.Path, openapi.DocsHandler(a.cfg.Title, specURL))
	}
	return d, nil
}

// document exports the OpenAPI document of every resource.
func (a *app) document() (openapi.Document, error) {
	contracts, err := openapi.ContractsFromSources(true, a.sources()...)
	if err != nil {
		return openapi.Document{}, err
	}
	return openapi.Export(contracts, a.openAPIOptions()), nil
}

func (a *app) close() {
	if a.pool != nil {
		a.pool.Close()
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Warn("close redis", "err", err)
		}
	}
}
