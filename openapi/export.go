package openapi

import (
	"net/http"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/bjaus/restroute"
)

// Options tune the exported document. Zero values select the defaults.
type Options struct {
	Title          string // default: "restroute API"
	Version        string // default: "v1"
	Description    string
	ServerURL      string // default: "/wp-json"
	OpenAPIVersion string // default: "3.1.0"
	// IncludeExcluded exports routes whose meta sets openapi.include=false.
	IncludeExcluded bool
	// Components are merged recursively over the default Error schema and
	// ErrorResponse response.
	Components map[string]any
}

const errorResponseRef = "#/components/responses/ErrorResponse"

var documentedMethods = map[string]bool{
	"get": true, "post": true, "put": true, "patch": true,
	"delete": true, "options": true, "head": true,
}

var (
	braceParam = regexp.MustCompile(`\{([A-Za-z0-9_]+):[^}]*\}`)
	namedGroup = regexp.MustCompile(`\(\?P<([A-Za-z0-9_]+)>[^)]+\)`)
	pathParam  = regexp.MustCompile(`\{([A-Za-z0-9_]+)\}`)
	nonAlnum   = regexp.MustCompile(`[^A-Za-z0-9]+`)
)

// Export builds an OpenAPI document from contracts. It is pure: equal
// inputs give equal documents, with paths and methods in sorted order
// once encoded.
func Export(contracts []restroute.Contract, opts Options) Document {
	doc := Document{
		OpenAPI: orDefault(opts.OpenAPIVersion, "3.1.0"),
		Info: Info{
			Title:       orDefault(opts.Title, "restroute API"),
			Version:     orDefault(opts.Version, "v1"),
			Description: opts.Description,
		},
		Servers:    []Server{{URL: orDefault(opts.ServerURL, "/wp-json")}},
		Paths:      map[string]PathItem{},
		Components: components(opts.Components),
	}

	for _, c := range contracts {
		if !opts.IncludeExcluded && !c.Meta.Include {
			continue
		}
		method := strings.ToLower(c.Method)
		if !documentedMethods[method] {
			continue
		}
		path := Path(c.Namespace, c.Path)
		if doc.Paths[path] == nil {
			doc.Paths[path] = PathItem{}
		}
		doc.Paths[path][method] = operation(c, method, path)
	}
	return doc
}

// Path joins a namespace and route URI into an OpenAPI path, rewriting
// {name:regex} and (?P<name>regex) parameters to {name}.
func Path(namespace, uri string) string {
	trimmed := strings.Trim(uri, "/")
	trimmed = braceParam.ReplaceAllString(trimmed, "{$1}")
	trimmed = namedGroup.ReplaceAllString(trimmed, "{$1}")
	return "/" + strings.Trim(strings.Trim(namespace, "/")+"/"+trimmed, "/")
}

// Methods returns the sorted methods of item.
func (item PathItem) Methods() []string {
	out := make([]string, 0, len(item))
	for m := range item {
		out = append(out, m)
	}
	sort.Strings(out)
	return out
}

// SortedPaths returns the document paths in sorted order.
func (d Document) SortedPaths() []string {
	out := make([]string, 0, len(d.Paths))
	for p := range d.Paths {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

func operation(c restroute.Contract, method, path string) Operation {
	meta := c.Meta
	op := Operation{
		OperationID: meta.OperationID,
		Tags:        nonEmpty(meta.Tags),
		Scopes:      nonEmpty(meta.Scopes),
		Responses:   responses(method, meta.ResponseSchema),
	}
	if op.OperationID == "" {
		op.OperationID = strings.ToLower(c.Method) + fallbackSuffix(path)
	}
	op.Parameters = pathParameters(parameters(meta.Parameters), path)
	if meta.RequestSchema != "" {
		op.RequestBody = &RequestBody{
			Required: method == "post" || method == "put" || method == "patch",
			Content: map[string]MediaType{
				"application/json": {Schema: Ref{Ref: meta.RequestSchema}},
			},
		}
	}
	if len(meta.Extensions) > 0 {
		op.Extensions = meta.Extensions
	}
	return op
}

func responses(method, schema string) map[string]Response {
	status := http.StatusOK
	if method == "post" {
		status = http.StatusCreated
	}
	ok := Response{Description: "Successful response"}
	if schema != "" {
		ok.Content = map[string]MediaType{
			"application/json": {Schema: Ref{Ref: schema}},
		}
	}
	return map[string]Response{
		strconv.Itoa(status): ok,
		"default":            {Ref: errorResponseRef},
	}
}

func parameters(raw []map[string]any) []Parameter {
	var out []Parameter
	for _, p := range raw {
		name, _ := p["name"].(string)
		if name == "" {
			continue
		}
		in, _ := p["in"].(string)
		switch in {
		case "query", "path", "header", "cookie":
		default:
			in = "query"
		}
		schema, ok := p["schema"].(map[string]any)
		if !ok {
			schema = map[string]any{"type": "string"}
		}
		required, _ := p["required"].(bool)
		param := Parameter{
			In:       in,
			Name:     name,
			Required: in == "path" || required,
			Schema:   schema,
		}
		param.Description, _ = p["description"].(string)
		out = append(out, param)
	}
	return out
}

// pathParameters marks declared path parameters required and declares
// the path's remaining parameters as required strings.
func pathParameters(params []Parameter, path string) []Parameter {
	seen := map[string]bool{}
	for i := range params {
		if params[i].In == "path" {
			params[i].Required = true
			seen[params[i].Name] = true
		}
	}
	for _, m := range pathParam.FindAllStringSubmatch(path, -1) {
		if seen[m[1]] {
			continue
		}
		seen[m[1]] = true
		params = append(params, Parameter{
			In:       "path",
			Name:     m[1],
			Required: true,
			Schema:   map[string]any{"type": "string"},
		})
	}
	return params
}

func components(custom map[string]any) map[string]any {
	base := map[string]any{
		"schemas": map[string]any{
			"Error": map[string]any{
				"type":     "object",
				"required": []any{"error"},
				"properties": map[string]any{
					"error": map[string]any{
						"type":     "object",
						"required": []any{"code", "message", "requestId"},
						"properties": map[string]any{
							"code":      map[string]any{"type": "string"},
							"message":   map[string]any{"type": "string"},
							"requestId": map[string]any{"type": "string"},
							"details": map[string]any{
								"type":                 "object",
								"additionalProperties": true,
							},
						},
					},
				},
			},
		},
		"responses": map[string]any{
			"ErrorResponse": map[string]any{
				"description": "Error response",
				"content": map[string]any{
					"application/json": map[string]any{
						"schema": map[string]any{"$ref": "#/components/schemas/Error"},
					},
				},
			},
		},
	}
	return merge(base, custom)
}

// merge overlays src on dst, descending into maps present on both sides.
func merge(dst, src map[string]any) map[string]any {
	for k, v := range src {
		sv, srcIsMap := v.(map[string]any)
		dv, dstIsMap := dst[k].(map[string]any)
		if srcIsMap && dstIsMap {
			dst[k] = merge(dv, sv)
			continue
		}
		if srcIsMap {
			dst[k] = merge(map[string]any{}, sv)
			continue
		}
		dst[k] = v
	}
	return dst
}

func fallbackSuffix(path string) string {
	var b strings.Builder
	for _, w := range strings.Fields(nonAlnum.ReplaceAllString(path, " ")) {
		w = strings.ToLower(w)
		b.WriteString(strings.ToUpper(w[:1]) + w[1:])
	}
	if b.Len() == 0 {
		return "Operation"
	}
	return b.String()
}

func nonEmpty(list []string) []string {
	var out []string
	for _, s := range list {
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
