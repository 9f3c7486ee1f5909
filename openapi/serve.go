package openapi

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/bjaus/restroute"
)

// Provider returns the contracts to document. It is called on every
// document request.
type Provider func() []restroute.Contract

// RegisterOptions configure the document route.
type RegisterOptions struct {
	Options
	// Permission guards the route. Default: restroute.AllowAll.
	Permission restroute.PermissionFunc
	// Router options for the document router, such as a logger.
	RouterOptions []restroute.RouterOption
}

// Register binds GET /openapi.json under namespace ("vendor[/...]/version")
// through d. The route itself is left out of exported documents.
func Register(namespace string, provider Provider, opts RegisterOptions, d restroute.Dispatcher) error {
	if provider == nil {
		return &restroute.ConfigError{Message: "openapi: contracts provider is required"}
	}
	vendor, version, err := restroute.SplitNamespace(namespace)
	if err != nil {
		return fmt.Errorf("openapi: %w", err)
	}

	permission := opts.Permission
	if permission == nil {
		permission = restroute.AllowAll
	}

	r := restroute.NewRouter(vendor, version, opts.RouterOptions...)
	r.Get("/openapi.json", func() (any, error) {
		return Export(provider(), opts.Options), nil
	}).Meta(map[string]any{
		"operationId": "openApiDocument",
		"tags":        []string{"OpenApi"},
		"openapi":     map[string]any{"include": false},
	}).Permission(permission)

	return r.Register(d)
}

// ContractsFromSources collects contracts from sources, each of which is
// a restroute.ContractSource (a Router or a Resource), a
// []restroute.Contract or a single restroute.Contract. A source that
// compiles to a Router, such as a Resource, fails with its configuration
// error. Hand-built contracts without a method or path are skipped.
func ContractsFromSources(openAPIOnly bool, sources ...any) ([]restroute.Contract, error) {
	var out []restroute.Contract
	for i, src := range sources {
		switch s := src.(type) {
		case interface {
			Router() (*restroute.Router, error)
		}:
			router, err := s.Router()
			if err != nil {
				return nil, fmt.Errorf("openapi: source %d: %w", i, err)
			}
			out = append(out, router.Contracts(openAPIOnly)...)
		case restroute.ContractSource:
			out = append(out, s.Contracts(openAPIOnly)...)
		case []restroute.Contract:
			for _, c := range s {
				if c.Method != "" && c.Path != "" {
					out = append(out, c)
				}
			}
		case restroute.Contract:
			if s.Method != "" && s.Path != "" {
				out = append(out, s)
			}
		default:
			return nil, restroute.InvalidArgument("openapi: source %d: unsupported type %T", i, src)
		}
	}
	return out, nil
}

// StaticProvider returns a Provider that collects contracts from sources
// on every call. A failing source is logged and yields no contracts.
func StaticProvider(openAPIOnly bool, sources ...any) Provider {
	return func() []restroute.Contract {
		contracts, err := ContractsFromSources(openAPIOnly, sources...)
		if err != nil {
			slog.Error("openapi: collect contracts", "error", err)
			return nil
		}
		return contracts
	}
}

// WriteJSON writes doc as indented JSON to w.
func WriteJSON(w io.Writer, doc Document) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(doc)
}

// WriteYAML writes doc as YAML to w.
func WriteYAML(w io.Writer, doc Document) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return err
	}
	return enc.Close()
}

// Handler serves the document built from provider as JSON, or as YAML
// when the request path ends in .yaml or .yml.
func Handler(provider Provider, opts Options) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		doc := Export(provider(), opts)
		if strings.HasSuffix(r.URL.Path, ".yaml") || strings.HasSuffix(r.URL.Path, ".yml") {
			w.Header().Set("Content-Type", "application/yaml")
			//nolint:errcheck,gosec // best-effort after WriteHeader
			WriteYAML(w, doc)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		//nolint:errcheck,gosec // best-effort after WriteHeader
		json.NewEncoder(w).Encode(doc)
	})
}
