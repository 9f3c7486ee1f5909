// Package openapi exports route contracts as an OpenAPI 3.1 document and
// serves that document as a route of its own.
package openapi

// Document is the top-level OpenAPI document.
type Document struct {
	OpenAPI    string              `json:"openapi" yaml:"openapi"`
	Info       Info                `json:"info" yaml:"info"`
	Servers    []Server            `json:"servers" yaml:"servers"`
	Paths      map[string]PathItem `json:"paths" yaml:"paths"`
	Components map[string]any      `json:"components" yaml:"components"`
}

// Info holds API metadata.
type Info struct {
	Title       string `json:"title" yaml:"title"`
	Version     string `json:"version" yaml:"version"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
}

// Server is one base URL the API is reachable at.
type Server struct {
	URL string `json:"url" yaml:"url"`
}

// PathItem maps lower-cased HTTP methods to operations.
type PathItem map[string]Operation

// Operation describes a single API operation on a path.
type Operation struct {
	OperationID string              `json:"operationId" yaml:"operationId"`
	Tags        []string            `json:"tags,omitempty" yaml:"tags,omitempty"`
	Parameters  []Parameter         `json:"parameters,omitempty" yaml:"parameters,omitempty"`
	RequestBody *RequestBody        `json:"requestBody,omitempty" yaml:"requestBody,omitempty"`
	Responses   map[string]Response `json:"responses" yaml:"responses"`
	Scopes      []string            `json:"x-scopes,omitempty" yaml:"x-scopes,omitempty"`
	// Extensions carries route meta outside the known keys.
	Extensions map[string]any `json:"x-restroute,omitempty" yaml:"x-restroute,omitempty"`
}

// Parameter describes a single operation parameter.
type Parameter struct {
	In          string         `json:"in" yaml:"in"`
	Name        string         `json:"name" yaml:"name"`
	Required    bool           `json:"required" yaml:"required"`
	Schema      map[string]any `json:"schema" yaml:"schema"`
	Description string         `json:"description,omitempty" yaml:"description,omitempty"`
}

// RequestBody describes the request body.
type RequestBody struct {
	Required bool                 `json:"required" yaml:"required"`
	Content  map[string]MediaType `json:"content" yaml:"content"`
}

// MediaType is a media type object referencing a schema.
type MediaType struct {
	Schema Ref `json:"schema" yaml:"schema"`
}

// Ref is a JSON reference.
type Ref struct {
	Ref string `json:"$ref" yaml:"$ref"`
}

// Response is either a reference or an inline response.
type Response struct {
	Ref         string               `json:"$ref,omitempty" yaml:"$ref,omitempty"`
	Description string               `json:"description,omitempty" yaml:"description,omitempty"`
	Content     map[string]MediaType `json:"content,omitempty" yaml:"content,omitempty"`
}
