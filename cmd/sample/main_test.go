package main

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Addr)
	assert.Equal(t, "acme/v1", cfg.Namespace)
	assert.Equal(t, time.Minute, cfg.RateLimit.Window)
	assert.Equal(t, 30*time.Second, cfg.Cache.TTL)
	require.Len(t, cfg.Resources, 2)
	assert.Equal(t, "post", cfg.Resources[0].ContentType)
	assert.Equal(t, "products", cfg.Resources[1].Table)
}

func TestLoadConfigFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "sample.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
addr: ":9090"
namespace: shop/v2
resources:
  - name: orders
    table: orders
    fields: [id, total]
`), 0o600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.Addr)
	assert.Equal(t, "shop/v2", cfg.Namespace)
	assert.Equal(t, "/wp-json", cfg.Prefix)
	require.Len(t, cfg.Resources, 1)
	assert.Equal(t, "orders", cfg.Resources[0].Name)
}

func TestLoadConfigRejects(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		body    string
		wantErr string
	}{
		"unknown key":    {body: "colour: blue\n", wantErr: "field colour not found"},
		"both sources":   {body: "resources:\n  - {name: a, table: a, contentType: post}\n", wantErr: "set exactly one"},
		"no source":      {body: "resources:\n  - {name: a}\n", wantErr: "set exactly one"},
		"duplicate name": {body: "resources:\n  - {name: a, table: a}\n  - {name: a, table: b}\n", wantErr: "duplicate resource"},
		"no namespace":   {body: "namespace: \"\"\n", wantErr: "namespace is required"},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			path := filepath.Join(t.TempDir(), "sample.yaml")
			require.NoError(t, os.WriteFile(path, []byte(tc.body), 0o600))
			_, err := LoadConfig(path)
			assert.ErrorContains(t, err, tc.wantErr)
		})
	}

	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "read config")
}

func testServer(t *testing.T) *httptest.Server {
	t.Helper()

	cfg, err := LoadConfig("")
	require.NoError(t, err)
	a, err := newApp(t.Context(), cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	t.Cleanup(a.close)

	h, err := a.handler()
	require.NoError(t, err)
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return srv
}

func getJSON(t *testing.T, url string) (int, map[string]any) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return resp.StatusCode, body
}

func TestServerServesResources(t *testing.T) {
	t.Parallel()

	srv := testServer(t)

	status, body := getJSON(t, srv.URL+"/wp-json/acme/v1/articles?fields=id,title")
	require.Equal(t, http.StatusOK, status)
	items := body["data"].([]any)
	require.Len(t, items, 1)
	assert.Equal(t, map[string]any{"id": float64(1), "title": "Hello world"}, items[0])

	status, body = getJSON(t, srv.URL+"/wp-json/acme/v1/products/1")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "Anvil", body["name"])

	resp, err := http.Post(srv.URL+"/wp-json/acme/v1/products", "application/json", bytes.NewReader([]byte(`{"sku":"B-2","name":"Rope","price":3}`)))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestServerServesDocumentAndMetrics(t *testing.T) {
	t.Parallel()

	srv := testServer(t)

	status, doc := getJSON(t, srv.URL+"/wp-json/acme/v1/openapi.json")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "3.1.0", doc["openapi"])
	paths := doc["paths"].(map[string]any)
	assert.Contains(t, paths, "/acme/v1/articles")
	assert.Contains(t, paths, "/acme/v1/products/{id}")
	assert.NotContains(t, paths, "/acme/v1/openapi.json")

	status, _ = getJSON(t, srv.URL+"/wp-json/acme/v1/articles")
	require.Equal(t, http.StatusOK, status)

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	out, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(out), `restroute_requests_total{method="GET",route="/acme/v1/articles",status_class="2xx"} 1`)

	docs, err := http.Get(srv.URL + "/docs")
	require.NoError(t, err)
	defer docs.Body.Close()
	page, err := io.ReadAll(docs.Body)
	require.NoError(t, err)
	assert.Equal(t, "nosniff", docs.Header.Get("X-Content-Type-Options"))
	assert.Contains(t, string(page), `apiDescriptionUrl="/wp-json/acme/v1/openapi.json"`)
}

func TestSpecCommand(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		args []string
		want string
	}{
		"json": {args: []string{"spec"}, want: `"openapi": "3.1.0"`},
		"yaml": {args: []string{"spec", "--format", "yaml"}, want: "openapi: 3.1.0"},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			var out bytes.Buffer
			cmd := newRootCommand()
			cmd.SetOut(&out)
			cmd.SetErr(io.Discard)
			cmd.SetArgs(tc.args)
			require.NoError(t, cmd.Execute())
			assert.Contains(t, out.String(), tc.want)
			assert.Contains(t, out.String(), "articlesList")
		})
	}
}

func TestSpecCommandRejectsUnknownFormat(t *testing.T) {
	t.Parallel()

	cmd := newRootCommand()
	cmd.SetOut(io.Discard)
	cmd.SetErr(io.Discard)
	cmd.SetArgs([]string{"spec", "--format", "xml"})
	assert.ErrorContains(t, cmd.Execute(), `unknown format "xml"`)
}
