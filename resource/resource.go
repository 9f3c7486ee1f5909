// Package resource generates CRUD routes for a content type or a database
// table from a declarative description.
package resource

import (
	"fmt"
	"net/http"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/bjaus/restroute"
)

// VisibilityFunc decides whether a fetched content item may be exposed.
type VisibilityFunc func(item map[string]any, rc restroute.RequestContext) bool

// Resource describes one CRUD resource. Configure it with the builder
// methods, then call Register or Router; the compiled configuration is
// fixed from then on.
type Resource struct {
	name        string
	namespace   string
	contentType string
	table       string
	primaryKey  string

	actions      []Action
	fields       []string
	filters      []string
	sort         []string
	filterSchema map[string]FilterRule

	defaultPerPage int
	maxPerPage     int
	maxOffset      int

	visibleStatuses []string
	visibility      VisibilityFunc
	policy          Policy

	content ContentRepository
	tables  TableRepository

	middlewares []restroute.Middleware
	routerOpts  []restroute.RouterOption

	compiled *restroute.Router
}

// New starts a resource named name; its routes live under /name.
func New(name string) *Resource {
	return &Resource{
		name:            name,
		actions:         append([]Action(nil), Actions...),
		visibleStatuses: []string{"publish"},
	}
}

// Name returns the resource name.
func (r *Resource) Name() string { return r.name }

// Namespace sets the vendor[/...]/version namespace.
func (r *Resource) Namespace(ns string) *Resource {
	r.namespace = strings.Trim(ns, "/")
	return r
}

// FromContent backs the resource by a host content type.
func (r *Resource) FromContent(contentType string) *Resource {
	r.contentType = contentType
	r.table = ""
	return r
}

// FromTable backs the resource by a table with an explicit primary key.
func (r *Resource) FromTable(table, primaryKey string) *Resource {
	r.table = table
	r.primaryKey = primaryKey
	r.contentType = ""
	return r
}

// Allow restricts the generated actions.
func (r *Resource) Allow(actions ...Action) *Resource {
	r.actions = append([]Action(nil), actions...)
	return r
}

// Fields sets the projectable and writable fields.
func (r *Resource) Fields(fields ...string) *Resource {
	r.fields = append([]string(nil), fields...)
	return r
}

// Filters sets the filterable fields.
func (r *Resource) Filters(filters ...string) *Resource {
	r.filters = append([]string(nil), filters...)
	return r
}

// FilterSchema types filters. Filters without a rule pass through as-is.
func (r *Resource) FilterSchema(schema map[string]FilterRule) *Resource {
	r.filterSchema = schema
	return r
}

// Sort sets the sortable fields.
func (r *Resource) Sort(fields ...string) *Resource {
	r.sort = append([]string(nil), fields...)
	return r
}

// Pagination sets the page size bounds and the deepest offset allowed.
func (r *Resource) Pagination(defaultPerPage, maxPerPage, maxOffset int) *Resource {
	r.defaultPerPage = defaultPerPage
	r.maxPerPage = maxPerPage
	r.maxOffset = maxOffset
	if maxOffset == 0 {
		r.maxOffset = NoOffset
	}
	return r
}

// VisibleStatuses sets the statuses content lists are restricted to when
// the caller does not filter on status. Default: publish.
func (r *Resource) VisibleStatuses(statuses ...string) *Resource {
	r.visibleStatuses = append([]string(nil), statuses...)
	return r
}

// Visibility adds a predicate every content item must pass.
func (r *Resource) Visibility(fn VisibilityFunc) *Resource {
	r.visibility = fn
	return r
}

// Policy sets the access policy.
func (r *Resource) Policy(p Policy) *Resource {
	r.policy = p
	return r
}

// WithContentRepository sets the repository of content-backed resources.
func (r *Resource) WithContentRepository(repo ContentRepository) *Resource {
	r.content = repo
	return r
}

// WithTableRepository sets the repository of table-backed resources.
func (r *Resource) WithTableRepository(repo TableRepository) *Resource {
	r.tables = repo
	return r
}

// Middleware adds middlewares to every generated route.
func (r *Resource) Middleware(mws ...restroute.Middleware) *Resource {
	r.middlewares = append(r.middlewares, mws...)
	return r
}

// RouterOptions passes options to the generated router.
func (r *Resource) RouterOptions(opts ...restroute.RouterOption) *Resource {
	r.routerOpts = append(r.routerOpts, opts...)
	return r
}

// Register compiles the resource and binds its routes through d.
func (r *Resource) Register(d restroute.Dispatcher) error {
	router, err := r.Router()
	if err != nil {
		return err
	}
	return router.Register(d)
}

// Contracts returns the contracts of the generated routes, or nil when the
// resource configuration is invalid. Callers that must surface the
// configuration error use Router.
func (r *Resource) Contracts(openAPIOnly bool) []restroute.Contract {
	router, err := r.Router()
	if err != nil {
		return nil
	}
	return router.Contracts(openAPIOnly)
}

// Router compiles the resource into a router carrying its routes. The
// router is built once.
func (r *Resource) Router() (*restroute.Router, error) {
	if r.compiled != nil {
		return r.compiled, nil
	}
	vendor, version, err := restroute.SplitNamespace(r.namespace)
	if err != nil {
		return nil, err
	}
	if err := r.validate(); err != nil {
		return nil, err
	}
	parser, err := NewQueryParser(QueryRules{
		Fields:         r.fields,
		Filters:        r.filters,
		Sort:           r.sort,
		FilterSchema:   r.filterSchema,
		DefaultPerPage: r.defaultPerPage,
		MaxPerPage:     r.maxPerPage,
		MaxOffset:      r.maxOffset,
	})
	if err != nil {
		return nil, err
	}

	router := restroute.NewRouter(vendor, version, r.routerOpts...)
	router.Use(r.middlewares...)
	h := &handlers{res: r, parser: parser, source: r.source()}
	r.declare(router, h)

	r.compiled = router
	return router, nil
}

var resourceName = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

func (r *Resource) validate() error {
	fail := func(format string, args ...any) error {
		return &restroute.ConfigError{Message: fmt.Sprintf("resource %s: ", r.name) + fmt.Sprintf(format, args...)}
	}
	if !resourceName.MatchString(r.name) {
		return fail("name must match %s", resourceName)
	}
	if len(r.actions) == 0 {
		return fail("at least one action is required")
	}
	for _, a := range r.actions {
		if !slices.Contains(Actions, a) {
			return fail("unsupported action %q", a)
		}
	}
	if r.maxOffset < 0 && r.maxOffset != NoOffset {
		return fail("max offset must be greater than or equal to 0")
	}
	switch {
	case r.table != "":
		if len(r.fields) == 0 {
			return fail("table sources require an explicit field list")
		}
		if r.primaryKey == "" {
			return fail("table sources require a primary key")
		}
		if r.tables == nil {
			return fail("table sources require a table repository")
		}
	case r.contentType != "":
		if len(r.fields) == 0 {
			r.fields = []string{"id", "title", "slug", "excerpt", "date", "status", "author"}
		}
		if r.content == nil {
			return fail("content sources require a content repository")
		}
	default:
		return fail("a content type or table source is required")
	}
	return nil
}

// schemaBase is the PascalCased resource name used for schema names.
func (r *Resource) schemaBase() string {
	return restroute.PascalCase(r.name)
}

func (r *Resource) idField() string {
	if r.table != "" {
		return r.primaryKey
	}
	return "id"
}

func (r *Resource) declare(router *restroute.Router, h *handlers) {
	base := r.schemaBase()
	ref := "#/components/schemas/" + base
	collection := "/" + r.name
	item := collection + "/{id:[0-9]+}"
	idArgs := map[string]any{
		"id": map[string]any{"type": "integer", "required": true},
	}

	meta := func(action Action, extra map[string]any) map[string]any {
		m := map[string]any{
			"operationId": lowerFirst(base) + restroute.PascalCase(string(action)),
			"tags":        []string{base},
			"resource":    r.name,
		}
		if len(r.policy.Scopes) > 0 {
			m["policy"] = map[string]any{"scopes": r.policy.Scopes}
		}
		for k, v := range extra {
			m[k] = v
		}
		return m
	}

	for _, action := range Actions {
		if !slices.Contains(r.actions, action) {
			continue
		}
		permission := r.policy.PermissionFor(action)
		switch action {
		case ActionList:
			router.Get(collection, h.list).
				Meta(meta(action, map[string]any{
					"responseSchema": ref,
					"parameters":     r.listParameters(),
				})).
				Permission(permission)
		case ActionGet:
			router.Get(item, h.get).
				Args(idArgs).
				Meta(meta(action, map[string]any{"responseSchema": ref})).
				Permission(permission)
		case ActionCreate:
			router.Post(collection, h.create).
				Meta(meta(action, map[string]any{"requestSchema": ref, "responseSchema": ref})).
				Permission(permission)
		case ActionUpdate:
			for _, method := range []string{http.MethodPut, http.MethodPatch} {
				opID := lowerFirst(base) + "Update"
				if method == http.MethodPatch {
					opID = lowerFirst(base) + "Patch"
				}
				router.Root().Handle(method, item, h.update).
					Args(idArgs).
					Meta(meta(action, map[string]any{
						"operationId":    opID,
						"requestSchema":  ref,
						"responseSchema": ref,
					})).
					Permission(permission)
			}
		case ActionDelete:
			router.Delete(item, h.delete).
				Args(idArgs).
				Meta(meta(action, nil)).
				Permission(permission)
		}
	}
}

func (r *Resource) listParameters() []map[string]any {
	params := []map[string]any{
		queryParam("fields", map[string]any{"type": "string"}),
		queryParam("sort", map[string]any{"type": "string"}),
		queryParam("page", map[string]any{"type": "integer", "minimum": 1}),
		queryParam("per_page", map[string]any{"type": "integer", "minimum": 1}),
	}
	for _, f := range r.filters {
		params = append(params, queryParam(f, filterSchemaFor(r.filterSchema[f])))
	}
	return params
}

func queryParam(name string, schema map[string]any) map[string]any {
	return map[string]any{"name": name, "in": "query", "required": false, "schema": schema}
}

func filterSchemaFor(rule FilterRule) map[string]any {
	switch rule.Type {
	case FilterInt:
		return map[string]any{"type": "integer"}
	case FilterFloat:
		return map[string]any{"type": "number"}
	case FilterBool:
		return map[string]any{"type": "boolean"}
	case FilterDate:
		return map[string]any{"type": "string", "format": "date-time"}
	case FilterEnum:
		return map[string]any{"type": "string", "enum": rule.Values}
	default:
		return map[string]any{"type": "string"}
	}
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToLower(s[:1]) + s[1:]
}

func parseID(req restroute.Request) (int64, bool) {
	raw, ok := req.Param("id")
	if !ok {
		return 0, false
	}
	var s string
	switch v := raw.(type) {
	case string:
		s = v
	case int:
		s = strconv.Itoa(v)
	case int64:
		s = strconv.FormatInt(v, 10)
	case float64:
		s = strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return 0, false
	}
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id < 1 {
		return 0, false
	}
	return id, true
}
