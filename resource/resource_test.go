package resource_test

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bjaus/restroute"
	"github.com/bjaus/restroute/resource"
)

type stubContent struct {
	items []map[string]any
	total int
	last  resource.ListQuery
}

func (s *stubContent) List(_ context.Context, _ string, q resource.ListQuery) (resource.ListResult, error) {
	s.last = q
	return resource.ListResult{Items: s.items, Total: s.total, Page: q.Page, PerPage: q.PerPage}, nil
}

func (s *stubContent) Get(_ context.Context, _ string, id int64, _ []string) (map[string]any, bool, error) {
	for _, item := range s.items {
		if item["id"] == id {
			return item, true, nil
		}
	}
	return nil, false, nil
}

func (s *stubContent) Create(context.Context, string, map[string]any, []string) (map[string]any, error) {
	return nil, nil
}

func (s *stubContent) Update(context.Context, string, int64, map[string]any, []string) (map[string]any, bool, error) {
	return nil, false, nil
}

func (s *stubContent) Delete(context.Context, string, int64) (bool, error) { return false, nil }

func register(t *testing.T, res *resource.Resource) *restroute.MemoryDispatcher {
	t.Helper()
	d := &restroute.MemoryDispatcher{}
	require.NoError(t, res.Register(d))
	return d
}

func call(t *testing.T, d *restroute.MemoryDispatcher, method, uri string, req *restroute.StaticRequest) *restroute.Response {
	t.Helper()
	b, ok := d.Find(method, uri)
	require.True(t, ok, "route %s %s not bound", method, uri)
	req.Verb = method
	resp, ok := b.Callback(req).(*restroute.Response)
	require.True(t, ok)
	return resp
}

func errorCode(t *testing.T, resp *restroute.Response) string {
	t.Helper()
	body, ok := resp.Body.(map[string]any)
	require.True(t, ok)
	envelope, ok := body["error"].(map[string]any)
	require.True(t, ok)
	return envelope["code"].(string)
}

const itemURI = "/articles/{id:[0-9]+}"

func articles(repo resource.ContentRepository) *resource.Resource {
	return resource.New("articles").
		Namespace("blog/v1").
		FromContent("post").
		Fields("id", "title", "status").
		Filters("status").
		Sort("id", "title").
		WithContentRepository(repo)
}

func TestResourceRegistersRoutes(t *testing.T) {
	t.Parallel()

	d := register(t, articles(resource.NewMemoryContent()))

	var got []string
	for _, b := range d.Bindings() {
		assert.Equal(t, "blog/v1", b.Namespace)
		got = append(got, b.Definition.Method+" "+b.Definition.URI)
	}
	assert.Equal(t, []string{
		"GET /articles",
		"GET " + itemURI,
		"POST /articles",
		"PUT " + itemURI,
		"PATCH " + itemURI,
		"DELETE " + itemURI,
	}, got)
}

func TestResourceAllowRestrictsRoutes(t *testing.T) {
	t.Parallel()

	d := register(t, articles(resource.NewMemoryContent()).Allow(resource.ActionList, resource.ActionGet))
	assert.Len(t, d.Bindings(), 2)
	_, ok := d.Find(http.MethodPost, "/articles")
	assert.False(t, ok)
}

func TestResourceListVisibility(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		status    string
		wantItems int
	}{
		"published item is listed": {status: "publish", wantItems: 1},
		"draft item is filtered":   {status: "draft", wantItems: 0},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			repo := &stubContent{
				items: []map[string]any{{"id": int64(1), "title": "Hello", "status": tc.status}},
				total: 1,
			}
			d := register(t, articles(repo))

			resp := call(t, d, http.MethodGet, "/articles", &restroute.StaticRequest{})
			require.Equal(t, http.StatusOK, resp.StatusCode())

			body := resp.Body.(map[string]any)
			assert.Len(t, body["data"], tc.wantItems)
			assert.Equal(t, map[string]any{"page": 1, "perPage": 20, "total": 1}, body["meta"])
			assert.Equal(t, "publish", repo.last.Filters["status"])
		})
	}
}

func TestResourceListRejectsOverflowingPage(t *testing.T) {
	t.Parallel()

	d := register(t, articles(resource.NewMemoryContent()))

	resp := call(t, d, http.MethodGet, "/articles", &restroute.StaticRequest{
		Query: map[string]any{"page": "3074457345618258604", "per_page": "3"},
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode())
	assert.Equal(t, restroute.CodeValidationFailed, errorCode(t, resp))
}

func TestMemoryContentPagesPastEnd(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repo := resource.NewMemoryContent()
	for _, title := range []string{"a", "b", "c"} {
		_, err := repo.Create(ctx, "post", map[string]any{"title": title}, nil)
		require.NoError(t, err)
	}

	tests := map[string]struct {
		page      int
		wantItems int
	}{
		"last page":    {page: 2, wantItems: 1},
		"past the end": {page: 3, wantItems: 0},
		"overflowing":  {page: 3074457345618258604, wantItems: 0},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			res, err := repo.List(ctx, "post", resource.ListQuery{Page: tc.page, PerPage: 2})
			require.NoError(t, err)
			assert.Len(t, res.Items, tc.wantItems)
			assert.Equal(t, 3, res.Total)
		})
	}
}

func TestResourceListStatusOverride(t *testing.T) {
	t.Parallel()

	repo := &stubContent{items: []map[string]any{{"id": int64(1), "status": "draft"}}, total: 1}
	d := register(t, articles(repo))

	resp := call(t, d, http.MethodGet, "/articles", &restroute.StaticRequest{
		Query: map[string]any{"status": "draft"},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode())
	assert.Len(t, resp.Body.(map[string]any)["data"], 1)
	assert.Equal(t, "draft", repo.last.Filters["status"])
}

func TestResourceVisibilityPolicy(t *testing.T) {
	t.Parallel()

	repo := &stubContent{items: []map[string]any{
		{"id": int64(1), "title": "keep", "status": "publish"},
		{"id": int64(2), "title": "hide", "status": "publish"},
	}, total: 2}
	res := articles(repo).Visibility(func(item map[string]any, _ restroute.RequestContext) bool {
		return item["title"] != "hide"
	})
	d := register(t, res)

	resp := call(t, d, http.MethodGet, "/articles", &restroute.StaticRequest{})
	data := resp.Body.(map[string]any)["data"].([]map[string]any)
	require.Len(t, data, 1)
	assert.Equal(t, "keep", data[0]["title"])

	resp = call(t, d, http.MethodGet, itemURI, &restroute.StaticRequest{Path: map[string]string{"id": "2"}})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode())
}

func TestResourceListRejectsUnknownParameter(t *testing.T) {
	t.Parallel()

	d := register(t, articles(resource.NewMemoryContent()))

	resp := call(t, d, http.MethodGet, "/articles", &restroute.StaticRequest{
		Query: map[string]any{"foo": "1"},
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode())
	assert.Equal(t, restroute.CodeValidationFailed, errorCode(t, resp))
}

func TestResourceCRUD(t *testing.T) {
	t.Parallel()

	res := articles(resource.NewMemoryContent()).
		VisibleStatuses("publish", "draft").
		Policy(resource.Policy{Public: true})
	d := register(t, res)

	created := call(t, d, http.MethodPost, "/articles", &restroute.StaticRequest{
		JSON: map[string]any{"title": "First"},
	})
	require.Equal(t, http.StatusCreated, created.StatusCode())
	item := created.Body.(map[string]any)
	assert.Equal(t, int64(1), item["id"])
	assert.Equal(t, "First", item["title"])
	assert.Equal(t, "draft", item["status"])

	got := call(t, d, http.MethodGet, itemURI, &restroute.StaticRequest{Path: map[string]string{"id": "1"}})
	require.Equal(t, http.StatusOK, got.StatusCode())
	assert.Equal(t, "First", got.Body.(map[string]any)["title"])

	updated := call(t, d, http.MethodPatch, itemURI, &restroute.StaticRequest{
		Path: map[string]string{"id": "1"},
		Form: map[string]any{"status": "publish"},
	})
	require.Equal(t, http.StatusOK, updated.StatusCode())
	assert.Equal(t, "publish", updated.Body.(map[string]any)["status"])

	deleted := call(t, d, http.MethodDelete, itemURI, &restroute.StaticRequest{Path: map[string]string{"id": "1"}})
	require.Equal(t, http.StatusOK, deleted.StatusCode())
	assert.Equal(t, map[string]any{"data": map[string]any{"id": int64(1), "deleted": true}}, deleted.Body)

	missing := call(t, d, http.MethodDelete, itemURI, &restroute.StaticRequest{Path: map[string]string{"id": "1"}})
	assert.Equal(t, http.StatusNotFound, missing.StatusCode())
	assert.Equal(t, restroute.CodeNotFound, errorCode(t, missing))
}

func TestResourcePayloadValidation(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		req        *restroute.StaticRequest
		wantFields []string
	}{
		"empty payload": {
			req:        &restroute.StaticRequest{},
			wantFields: []string{"payload"},
		},
		"id is not writable": {
			req:        &restroute.StaticRequest{JSON: map[string]any{"id": 5, "title": "x"}},
			wantFields: []string{"id"},
		},
		"unknown keys are all reported": {
			req:        &restroute.StaticRequest{JSON: map[string]any{"a": 1, "b": 2}},
			wantFields: []string{"a", "b"},
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			d := register(t, articles(resource.NewMemoryContent()).Policy(resource.Policy{Public: true}))
			resp := call(t, d, http.MethodPost, "/articles", tc.req)
			require.Equal(t, http.StatusBadRequest, resp.StatusCode())

			details := resp.Body.(map[string]any)["error"].(map[string]any)["details"].(map[string]any)
			fieldErrors := details["fieldErrors"].(map[string][]string)
			for _, f := range tc.wantFields {
				assert.Contains(t, fieldErrors, f)
			}
			assert.Len(t, fieldErrors, len(tc.wantFields))
		})
	}
}

func TestResourceGetNotFound(t *testing.T) {
	t.Parallel()

	d := register(t, articles(resource.NewMemoryContent()))

	tests := map[string]string{
		"missing":     "42",
		"not numeric": "abc",
		"zero":        "0",
	}
	for name, id := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			resp := call(t, d, http.MethodGet, itemURI, &restroute.StaticRequest{Path: map[string]string{"id": id}})
			assert.Equal(t, http.StatusNotFound, resp.StatusCode())
			assert.Equal(t, restroute.CodeNotFound, errorCode(t, resp))
		})
	}
}

func TestResourceTableSource(t *testing.T) {
	t.Parallel()

	repo := resource.NewMemoryTable()
	res := resource.New("books").
		Namespace("acme/library/v2").
		FromTable("books", "book_id").
		Fields("book_id", "title", "pages").
		Filters("pages").
		FilterSchema(map[string]resource.FilterRule{"pages": {Type: resource.FilterInt}}).
		Sort("pages").
		Policy(resource.Policy{Public: true}).
		WithTableRepository(repo)
	d := register(t, res)

	for _, p := range []map[string]any{{"title": "a", "pages": 10}, {"title": "b", "pages": 20}} {
		resp := call(t, d, http.MethodPost, "/books", &restroute.StaticRequest{JSON: p})
		require.Equal(t, http.StatusCreated, resp.StatusCode())
	}

	resp := call(t, d, http.MethodGet, "/books", &restroute.StaticRequest{
		Query: map[string]any{"pages": "20", "fields": "title"},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode())
	body := resp.Body.(map[string]any)
	assert.Equal(t, []map[string]any{{"title": "b"}}, body["data"])
	assert.Equal(t, 1, body["meta"].(map[string]any)["total"])

	b, ok := d.Find(http.MethodGet, "/books")
	require.True(t, ok)
	assert.Equal(t, "acme/library/v2", b.Namespace)
}

func TestResourceConfigErrors(t *testing.T) {
	t.Parallel()

	tests := map[string]*resource.Resource{
		"namespace without version": resource.New("articles").
			Namespace("blog").
			FromContent("post").
			WithContentRepository(resource.NewMemoryContent()),
		"table without fields": resource.New("books").
			Namespace("acme/v1").
			FromTable("books", "id").
			WithTableRepository(resource.NewMemoryTable()),
		"table without primary key": resource.New("books").
			Namespace("acme/v1").
			FromTable("books", "").
			Fields("title").
			WithTableRepository(resource.NewMemoryTable()),
		"no source": resource.New("books").Namespace("acme/v1"),
		"no repository": resource.New("articles").
			Namespace("acme/v1").
			FromContent("post"),
		"unknown action": articles(resource.NewMemoryContent()).
			Allow("archive"),
		"default above max": articles(resource.NewMemoryContent()).
			Pagination(50, 10, 100),
		"negative max offset": articles(resource.NewMemoryContent()).
			Pagination(10, 20, -1),
		"enum without values": articles(resource.NewMemoryContent()).
			FilterSchema(map[string]resource.FilterRule{"status": {Type: resource.FilterEnum}}),
	}

	for name, res := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			err := res.Register(&restroute.MemoryDispatcher{})
			var ce *restroute.ConfigError
			require.ErrorAs(t, err, &ce)
			assert.Nil(t, res.Contracts(false))
		})
	}
}

func TestResourcePermissions(t *testing.T) {
	t.Parallel()

	editor := resource.CapabilityFunc(func(req restroute.Request, capability string) bool {
		return req.Header("X-Role") == "editor" && capability == "edit_posts"
	})

	tests := map[string]struct {
		policy    resource.Policy
		action    string
		headers   map[string]string
		wantAllow bool
	}{
		"reads allowed by default":  {action: "GET /articles", wantAllow: true},
		"writes denied by default":  {action: "POST /articles", wantAllow: false},
		"public allows writes":      {policy: resource.Policy{Public: true}, action: "DELETE " + itemURI, wantAllow: true},
		"custom permission decides": {policy: resource.Policy{Permission: func(restroute.Request) bool { return false }}, action: "GET /articles", wantAllow: false},
		"capability granted": {
			policy:    resource.Policy{Rules: map[resource.Action]resource.Rule{resource.ActionCreate: resource.Capability("publish_posts", "edit_posts")}, Checker: editor},
			action:    "POST /articles",
			headers:   map[string]string{"X-Role": "editor"},
			wantAllow: true,
		},
		"capability missing": {
			policy:    resource.Policy{Rules: map[resource.Action]resource.Rule{resource.ActionCreate: resource.Capability("edit_posts")}, Checker: editor},
			action:    "POST /articles",
			wantAllow: false,
		},
		"wildcard rule": {
			policy:    resource.Policy{Rules: map[resource.Action]resource.Rule{resource.AnyAction: resource.Deny()}},
			action:    "GET /articles",
			wantAllow: false,
		},
		"action rule beats wildcard": {
			policy: resource.Policy{Rules: map[resource.Action]resource.Rule{
				resource.AnyAction:    resource.Deny(),
				resource.ActionUpdate: resource.Allow(),
			}},
			action:    "PUT " + itemURI,
			wantAllow: true,
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			d := register(t, articles(resource.NewMemoryContent()).Policy(tc.policy))
			var found *restroute.Binding
			for _, b := range d.Bindings() {
				if b.Definition.Method+" "+b.Definition.URI == tc.action {
					found = &b
					break
				}
			}
			require.NotNil(t, found)
			assert.Equal(t, tc.wantAllow, found.Allowed(&restroute.StaticRequest{Headers: tc.headers}))
		})
	}
}

func TestResourceContracts(t *testing.T) {
	t.Parallel()

	res := articles(resource.NewMemoryContent()).Policy(resource.Policy{Scopes: []string{"articles:read"}})
	contracts := res.Contracts(true)
	require.Len(t, contracts, 6)

	ids := make([]string, 0, len(contracts))
	for _, c := range contracts {
		ids = append(ids, c.Meta.OperationID)
		assert.Equal(t, []string{"Articles"}, c.Meta.Tags)
		assert.Equal(t, []string{"articles:read"}, c.Meta.Scopes)
		assert.Equal(t, "blog/v1", c.Namespace)
	}
	assert.Equal(t, []string{
		"articlesList", "articlesGet", "articlesCreate", "articlesUpdate", "articlesPatch", "articlesDelete",
	}, ids)

	list := contracts[0]
	assert.Equal(t, "#/components/schemas/Articles", list.Meta.ResponseSchema)
	names := make([]string, 0, len(list.Meta.Parameters))
	for _, p := range list.Meta.Parameters {
		names = append(names, p["name"].(string))
	}
	assert.Equal(t, []string{"fields", "sort", "page", "per_page", "status"}, names)

	create := contracts[2]
	assert.Equal(t, "#/components/schemas/Articles", create.Meta.RequestSchema)
	assert.Equal(t, map[string]any{"type": "integer", "required": true}, contracts[1].Args["id"])
}
