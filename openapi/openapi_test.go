package openapi_test

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bjaus/restroute"
	"github.com/bjaus/restroute/openapi"
	"github.com/bjaus/restroute/resource"
)

func noop() (any, error) { return nil, nil }

func articlesRouter() *restroute.Router {
	r := restroute.NewRouter("acme", "v1")
	r.Get("/articles", noop).Meta(map[string]any{
		"operationId":    "listArticles",
		"tags":           []string{"Articles"},
		"scopes":         []string{"content:read"},
		"responseSchema": "#/components/schemas/ArticleList",
		"parameters": []map[string]any{
			{"name": "page", "in": "query", "schema": map[string]any{"type": "integer"}, "description": "Page number"},
			{"name": "", "in": "query"},
			{"name": "trace", "in": "body"},
		},
		"resource": "articles",
	})
	r.Post("/articles", noop).Meta(map[string]any{
		"operationId":   "createArticle",
		"requestSchema": "#/components/schemas/ArticleInput",
	})
	r.Get("/articles/{id:[0-9]+}", noop)
	r.Delete("/articles/(?P<id>[\\d]+)/tags/{tag}", noop).Meta(map[string]any{
		"parameters": []map[string]any{{"name": "id", "in": "path", "schema": map[string]any{"type": "integer"}}},
	})
	r.Get("/internal", noop).Meta(map[string]any{"openapi": map[string]any{"include": false}})
	return r
}

func TestExportDefaults(t *testing.T) {
	t.Parallel()

	doc := openapi.Export(nil, openapi.Options{})

	assert.Equal(t, "3.1.0", doc.OpenAPI)
	assert.Equal(t, openapi.Info{Title: "restroute API", Version: "v1"}, doc.Info)
	assert.Equal(t, []openapi.Server{{URL: "/wp-json"}}, doc.Servers)
	assert.Empty(t, doc.Paths)
	assert.Contains(t, doc.Components["schemas"], "Error")
	assert.Contains(t, doc.Components["responses"], "ErrorResponse")
}

func TestExportOptions(t *testing.T) {
	t.Parallel()

	doc := openapi.Export(nil, openapi.Options{
		Title:          "Acme",
		Version:        "2.0.0",
		Description:    "Acme content API",
		ServerURL:      "https://acme.test/wp-json",
		OpenAPIVersion: "3.1.1",
	})

	assert.Equal(t, "3.1.1", doc.OpenAPI)
	assert.Equal(t, openapi.Info{Title: "Acme", Version: "2.0.0", Description: "Acme content API"}, doc.Info)
	assert.Equal(t, "https://acme.test/wp-json", doc.Servers[0].URL)
}

func TestExportOperations(t *testing.T) {
	t.Parallel()

	doc := openapi.Export(articlesRouter().Contracts(false), openapi.Options{})

	assert.Equal(t, []string{
		"/acme/v1/articles",
		"/acme/v1/articles/{id}",
		"/acme/v1/articles/{id}/tags/{tag}",
	}, doc.SortedPaths())
	assert.Equal(t, []string{"get", "post"}, doc.Paths["/acme/v1/articles"].Methods())

	list := doc.Paths["/acme/v1/articles"]["get"]
	assert.Equal(t, "listArticles", list.OperationID)
	assert.Equal(t, []string{"Articles"}, list.Tags)
	assert.Equal(t, []string{"content:read"}, list.Scopes)
	assert.Equal(t, map[string]any{"resource": "articles"}, list.Extensions)
	assert.Nil(t, list.RequestBody)
	assert.Equal(t, []openapi.Parameter{
		{In: "query", Name: "page", Schema: map[string]any{"type": "integer"}, Description: "Page number"},
		{In: "query", Name: "trace", Schema: map[string]any{"type": "string"}},
	}, list.Parameters)
	assert.Equal(t, "#/components/schemas/ArticleList", list.Responses["200"].Content["application/json"].Schema.Ref)
	assert.Equal(t, "#/components/responses/ErrorResponse", list.Responses["default"].Ref)

	create := doc.Paths["/acme/v1/articles"]["post"]
	require.NotNil(t, create.RequestBody)
	assert.True(t, create.RequestBody.Required)
	assert.Equal(t, "#/components/schemas/ArticleInput", create.RequestBody.Content["application/json"].Schema.Ref)
	assert.Contains(t, create.Responses, "201")
	assert.NotContains(t, create.Responses, "200")

	get := doc.Paths["/acme/v1/articles/{id}"]["get"]
	assert.Equal(t, "getArticlesId", get.OperationID)
	assert.Equal(t, []openapi.Parameter{
		{In: "path", Name: "id", Required: true, Schema: map[string]any{"type": "string"}},
	}, get.Parameters)

	del := doc.Paths["/acme/v1/articles/{id}/tags/{tag}"]["delete"]
	assert.Equal(t, []openapi.Parameter{
		{In: "path", Name: "id", Required: true, Schema: map[string]any{"type": "integer"}},
		{In: "path", Name: "tag", Required: true, Schema: map[string]any{"type": "string"}},
	}, del.Parameters)
}

func TestExportExcludedRoutes(t *testing.T) {
	t.Parallel()

	contracts := articlesRouter().Contracts(false)

	doc := openapi.Export(contracts, openapi.Options{})
	assert.NotContains(t, doc.Paths, "/acme/v1/internal")

	doc = openapi.Export(contracts, openapi.Options{IncludeExcluded: true})
	assert.Contains(t, doc.Paths, "/acme/v1/internal")
}

func TestExportIsDeterministic(t *testing.T) {
	t.Parallel()

	contracts := articlesRouter().Contracts(true)
	reversed := make([]restroute.Contract, len(contracts))
	for i, c := range contracts {
		reversed[len(contracts)-1-i] = c
	}

	a, err := json.Marshal(openapi.Export(contracts, openapi.Options{}))
	require.NoError(t, err)
	b, err := json.Marshal(openapi.Export(reversed, openapi.Options{}))
	require.NoError(t, err)
	assert.JSONEq(t, string(a), string(b))
	assert.Equal(t, string(a), string(b))
}

func TestExportSkipsUnknownMethodsAndFallsBackOperationID(t *testing.T) {
	t.Parallel()

	doc := openapi.Export([]restroute.Contract{
		{Namespace: "acme/v1", Method: "TRACE", Path: "/debug", Meta: restroute.RouteMeta{Include: true}},
		{Namespace: "acme/v1", Method: "GET", Path: "/user-profiles/{id}", Meta: restroute.RouteMeta{Include: true}},
	}, openapi.Options{})

	assert.NotContains(t, doc.Paths, "/acme/v1/debug")
	assert.Equal(t, "getAcmeV1UserProfilesId", doc.Paths["/acme/v1/user-profiles/{id}"]["get"].OperationID)
}

func TestExportMergesComponents(t *testing.T) {
	t.Parallel()

	doc := openapi.Export(nil, openapi.Options{Components: map[string]any{
		"schemas": map[string]any{
			"Article": map[string]any{"type": "object"},
		},
		"responses": map[string]any{
			"ErrorResponse": map[string]any{"description": "Something went wrong"},
		},
		"securitySchemes": map[string]any{
			"bearer": map[string]any{"type": "http", "scheme": "bearer"},
		},
	}})

	schemas := doc.Components["schemas"].(map[string]any)
	assert.Contains(t, schemas, "Error")
	assert.Contains(t, schemas, "Article")

	errResp := doc.Components["responses"].(map[string]any)["ErrorResponse"].(map[string]any)
	assert.Equal(t, "Something went wrong", errResp["description"])
	assert.Contains(t, errResp, "content")
	assert.Contains(t, doc.Components, "securitySchemes")

	fresh := openapi.Export(nil, openapi.Options{})
	assert.NotContains(t, fresh.Components["schemas"], "Article")
}

func TestPath(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		namespace string
		uri       string
		want      string
	}{
		"plain":         {"acme/v1", "/articles", "/acme/v1/articles"},
		"root":          {"acme/v1", "/", "/acme/v1"},
		"brace regex":   {"/acme/v1/", "/articles/{id:[0-9]+}", "/acme/v1/articles/{id}"},
		"named group":   {"acme/v1", "/articles/(?P<id>\\d+)", "/acme/v1/articles/{id}"},
		"bare param":    {"acme/v1", "articles/{slug}/", "/acme/v1/articles/{slug}"},
		"two params":    {"acme/v1", "/a/{x:[a-z]+}/b/{y}", "/acme/v1/a/{x}/b/{y}"},
		"empty segment": {"", "/health", "/health"},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, openapi.Path(tc.namespace, tc.uri))
		})
	}
}

func TestRegister(t *testing.T) {
	t.Parallel()

	articles := articlesRouter()
	d := &restroute.MemoryDispatcher{}
	err := openapi.Register("acme/v1", openapi.StaticProvider(true, articles), openapi.RegisterOptions{
		Options:    openapi.Options{Title: "Acme"},
		Permission: func(req restroute.Request) bool { return req.Header("X-Admin") == "1" },
	}, d)
	require.NoError(t, err)

	b, ok := d.Find(http.MethodGet, "/openapi.json")
	require.True(t, ok)
	assert.Equal(t, "acme/v1", b.Namespace)

	meta := b.Definition.RouteMeta()
	assert.Equal(t, "openApiDocument", meta.OperationID)
	assert.Equal(t, []string{"OpenApi"}, meta.Tags)
	assert.False(t, meta.Include)

	assert.False(t, b.Allowed(&restroute.StaticRequest{}))
	assert.True(t, b.Allowed(&restroute.StaticRequest{Headers: map[string]string{"X-Admin": "1"}}))

	resp, ok := b.Callback(&restroute.StaticRequest{Verb: http.MethodGet}).(*restroute.Response)
	require.True(t, ok)
	assert.Equal(t, http.StatusOK, resp.StatusCode())
	doc, ok := resp.Body.(openapi.Document)
	require.True(t, ok)
	assert.Equal(t, "Acme", doc.Info.Title)
	assert.Contains(t, doc.Paths, "/acme/v1/articles")
	assert.NotContains(t, doc.Paths, "/acme/v1/internal")
}

func TestRegisterDefaultsToAllowAll(t *testing.T) {
	t.Parallel()

	d := &restroute.MemoryDispatcher{}
	require.NoError(t, openapi.Register("/acme/v2/", func() []restroute.Contract { return nil }, openapi.RegisterOptions{}, d))

	b, ok := d.Find(http.MethodGet, "/openapi.json")
	require.True(t, ok)
	assert.Equal(t, "acme/v2", b.Namespace)
	assert.True(t, b.Allowed(&restroute.StaticRequest{}))
}

func TestRegisterNestedNamespace(t *testing.T) {
	t.Parallel()

	books := resource.New("books").
		Namespace("acme/library/v1").
		FromTable("books", "id").
		Fields("id", "title").
		WithTableRepository(resource.NewMemoryTable())

	d := &restroute.MemoryDispatcher{}
	require.NoError(t, books.Register(d))
	require.NoError(t, openapi.Register("acme/library/v1", openapi.StaticProvider(true, books), openapi.RegisterOptions{}, d))

	b, ok := d.Find(http.MethodGet, "/openapi.json")
	require.True(t, ok)
	assert.Equal(t, "acme/library/v1", b.Namespace)

	resp, ok := b.Callback(&restroute.StaticRequest{Verb: http.MethodGet}).(*restroute.Response)
	require.True(t, ok)
	doc, ok := resp.Body.(openapi.Document)
	require.True(t, ok)
	assert.Contains(t, doc.Paths, "/acme/library/v1/books")
}

func TestRegisterRejectsBadInput(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		namespace string
		provider  openapi.Provider
	}{
		"one part":      {"acme", openapi.StaticProvider(true)},
		"empty segment": {"acme//v1", openapi.StaticProvider(true)},
		"bad segment":   {"acme/v 1", openapi.StaticProvider(true)},
		"no provider":   {"acme/v1", nil},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			d := &restroute.MemoryDispatcher{}
			err := openapi.Register(tc.namespace, tc.provider, openapi.RegisterOptions{}, d)
			var ce *restroute.ConfigError
			assert.ErrorAs(t, err, &ce)
			assert.Empty(t, d.Bindings())
		})
	}
}

func TestContractsFromSources(t *testing.T) {
	t.Parallel()

	articles := articlesRouter()
	extra := restroute.Contract{Namespace: "acme/v1", Method: "GET", Path: "/extra", Meta: restroute.RouteMeta{Include: true}}

	got, err := openapi.ContractsFromSources(true,
		articles,
		[]restroute.Contract{extra, {Namespace: "acme/v1"}},
		extra,
	)
	require.NoError(t, err)
	assert.Len(t, got, len(articles.Contracts(true))+2)

	all, err := openapi.ContractsFromSources(false, articles)
	require.NoError(t, err)
	assert.Len(t, all, len(articles.Contracts(true))+1)

	_, err = openapi.ContractsFromSources(true, "nope")
	var argErr *restroute.ArgumentError
	assert.ErrorAs(t, err, &argErr)
}

func TestContractsFromSourcesResources(t *testing.T) {
	t.Parallel()

	valid := resource.New("books").
		Namespace("acme/v1").
		FromTable("books", "id").
		Fields("id", "title").
		WithTableRepository(resource.NewMemoryTable())
	got, err := openapi.ContractsFromSources(true, valid)
	require.NoError(t, err)
	assert.Len(t, got, 6)

	broken := resource.New("books").
		Namespace("acme").
		FromContent("post").
		WithContentRepository(resource.NewMemoryContent())
	_, err = openapi.ContractsFromSources(true, valid, broken)
	var ce *restroute.ConfigError
	require.ErrorAs(t, err, &ce)
	assert.Contains(t, err.Error(), "source 1")

	assert.Empty(t, openapi.StaticProvider(true, broken)())
}

func TestWriters(t *testing.T) {
	t.Parallel()

	doc := openapi.Export(articlesRouter().Contracts(true), openapi.Options{})

	var jsonOut bytes.Buffer
	require.NoError(t, openapi.WriteJSON(&jsonOut, doc))
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(jsonOut.Bytes(), &decoded))
	assert.Equal(t, "3.1.0", decoded["openapi"])
	assert.Contains(t, jsonOut.String(), `"x-scopes"`)
	assert.Contains(t, jsonOut.String(), `"x-restroute"`)

	var yamlOut bytes.Buffer
	require.NoError(t, openapi.WriteYAML(&yamlOut, doc))
	assert.Contains(t, yamlOut.String(), "openapi: 3.1.0")
	assert.Contains(t, yamlOut.String(), "operationId: listArticles")
	assert.Contains(t, yamlOut.String(), "#/components/responses/ErrorResponse")
}

func TestHandler(t *testing.T) {
	t.Parallel()

	h := openapi.Handler(openapi.StaticProvider(true, articlesRouter()), openapi.Options{Title: "Acme"})

	tests := map[string]struct {
		path        string
		contentType string
		wantBody    string
	}{
		"json": {path: "/openapi.json", contentType: "application/json", wantBody: `"title":"Acme"`},
		"yaml": {path: "/openapi.yaml", contentType: "application/yaml", wantBody: "title: Acme"},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tc.path, nil))

			assert.Equal(t, http.StatusOK, rec.Code)
			assert.Equal(t, tc.contentType, rec.Header().Get("Content-Type"))
			body, err := io.ReadAll(rec.Body)
			require.NoError(t, err)
			assert.Contains(t, string(body), tc.wantBody)
		})
	}
}

func TestDocsHandler(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	openapi.DocsHandler("", "/wp-json/acme/v1/openapi.json").ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/docs", nil))

	assert.Equal(t, "text/html; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), "<title>restroute API</title>")
	assert.Contains(t, rec.Body.String(), `apiDescriptionUrl="/wp-json/acme/v1/openapi.json"`)
}
