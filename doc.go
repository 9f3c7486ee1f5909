// Package restroute declares namespaced REST routes, runs them through
// composable middleware pipelines and hands them to a host routing table.
//
// A Router owns one vendor/version namespace. Routes accept handlers in any
// of four shapes, and every result is normalized into a Response:
//
//	r := restroute.NewRouter("acme", "v1")
//	r.Use(restroute.Recovery(nil), restroute.Audit(restroute.AuditConfig{}))
//	r.Get("/articles/{id}", func(rc restroute.RequestContext, req restroute.Request) (any, error) {
//	    return loadArticle(rc.Context(), req.PathParams()["id"])
//	}).Meta(map[string]any{"operationId": "getArticle", "tags": []string{"Articles"}})
//
// Groups share a prefix, middlewares and default tags:
//
//	r.Group("/admin", func(s restroute.Scope) {
//	    s.Delete("/cache", purge)
//	}, restroute.WithGroupMiddleware(restroute.JWTAuth(cfg)))
//
// Middlewares run in declaration order (global, group, route) and may
// short-circuit, decorate the RequestContext or post-process the result.
// Errors become the envelope
//
//	{"error": {"code": ..., "message": ..., "requestId": ..., "details": {...}}}
//
// Register binds the table into a Dispatcher. The httphost package serves
// routes over net/http; MemoryDispatcher invokes them directly in tests.
//
//	if err := r.Register(httphost.New()); err != nil { ... }
//
// Sub-packages build on the core: resource derives CRUD routes from a
// declaration, openapi exports route contracts as an OpenAPI 3.1 document,
// kvstore provides stores and limiters for the cache, idempotency and rate
// limit middlewares, and observability provides metric sinks and audit
// loggers.
package restroute
