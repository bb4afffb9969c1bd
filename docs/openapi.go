// Package docs builds the OpenAPI 3 document from the route table and serves it as JSON, YAML,
// Swagger UI and ReDoc.
package docs

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
)

type Schema struct {
	Ref                  string             `json:"$ref,omitempty" yaml:"$ref,omitempty"`
	Type                 string             `json:"type,omitempty" yaml:"type,omitempty"`
	Format               string             `json:"format,omitempty" yaml:"format,omitempty"`
	Description          string             `json:"description,omitempty" yaml:"description,omitempty"`
	Properties           map[string]*Schema `json:"properties,omitempty" yaml:"properties,omitempty"`
	Items                *Schema            `json:"items,omitempty" yaml:"items,omitempty"`
	Required             []string           `json:"required,omitempty" yaml:"required,omitempty"`
	Nullable             bool               `json:"nullable,omitempty" yaml:"nullable,omitempty"`
	Minimum              *float64           `json:"minimum,omitempty" yaml:"minimum,omitempty"`
	MaxLength            int                `json:"maxLength,omitempty" yaml:"maxLength,omitempty"`
	OneOf                []*Schema          `json:"oneOf,omitempty" yaml:"oneOf,omitempty"`
	AdditionalProperties *Schema            `json:"additionalProperties,omitempty" yaml:"additionalProperties,omitempty"`
}

func Ref(name string) *Schema { return &Schema{Ref: "#/components/schemas/" + name} }

func ArrayOf(s *Schema) *Schema { return &Schema{Type: "array", Items: s} }

// Operation describes one route for the document.
type Operation struct {
	Method  string
	Path    string
	Summary string
	Tag     string
	Secured bool
	// Body is the JSON request body schema, if any.
	Body *Schema
	// FileField names the multipart file part, if the route takes an upload.
	FileField string
	Responses map[int]Response
}

type Response struct {
	Description string
	Schema      *Schema
}

type Document struct {
	OpenAPI    string                        `json:"openapi" yaml:"openapi"`
	Info       Info                          `json:"info" yaml:"info"`
	Paths      map[string]map[string]*PathOp `json:"paths" yaml:"paths"`
	Components Components                    `json:"components" yaml:"components"`
}

type Info struct {
	Title       string `json:"title" yaml:"title"`
	Version     string `json:"version" yaml:"version"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
}

type Components struct {
	Schemas         map[string]*Schema         `json:"schemas" yaml:"schemas"`
	SecuritySchemes map[string]*SecurityScheme `json:"securitySchemes" yaml:"securitySchemes"`
}

type SecurityScheme struct {
	Type        string `json:"type" yaml:"type"`
	Scheme      string `json:"scheme,omitempty" yaml:"scheme,omitempty"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
}

type PathOp struct {
	Summary     string                 `json:"summary,omitempty" yaml:"summary,omitempty"`
	OperationID string                 `json:"operationId" yaml:"operationId"`
	Tags        []string               `json:"tags,omitempty" yaml:"tags,omitempty"`
	Parameters  []Parameter            `json:"parameters,omitempty" yaml:"parameters,omitempty"`
	RequestBody *RequestBody           `json:"requestBody,omitempty" yaml:"requestBody,omitempty"`
	Responses   map[string]ResponseDoc `json:"responses" yaml:"responses"`
	Security    []map[string][]string  `json:"security" yaml:"security"`
}

type Parameter struct {
	Name     string  `json:"name" yaml:"name"`
	In       string  `json:"in" yaml:"in"`
	Required bool    `json:"required" yaml:"required"`
	Schema   *Schema `json:"schema" yaml:"schema"`
}

type RequestBody struct {
	Required bool                 `json:"required" yaml:"required"`
	Content  map[string]MediaType `json:"content" yaml:"content"`
}

type MediaType struct {
	Schema *Schema `json:"schema" yaml:"schema"`
}

type ResponseDoc struct {
	Description string               `json:"description" yaml:"description"`
	Content     map[string]MediaType `json:"content,omitempty" yaml:"content,omitempty"`
}

const securityName = "Bearer"

var pathParam = regexp.MustCompile(`\{([A-Za-z_][A-Za-z0-9_]*)(:[^}]*)?\}`)

// Build assembles the document. Paths use the mux template with regex constraints stripped.
func Build(title, version string, ops []Operation) *Document {
	doc := &Document{
		OpenAPI: "3.0.3",
		Info: Info{
			Title:       title,
			Version:     version,
			Description: "API documentation for the Android app rewards backend.",
		},
		Paths: make(map[string]map[string]*PathOp),
		Components: Components{
			Schemas: Schemas(),
			SecuritySchemes: map[string]*SecurityScheme{
				securityName: {Type: "http", Scheme: "bearer", Description: "Authorization: Bearer <token> (Token <token> is also accepted)"},
			},
		},
	}

	for _, op := range ops {
		path, params := openAPIPath(op.Path)
		method := strings.ToLower(op.Method)
		po := &PathOp{
			Summary:     op.Summary,
			OperationID: operationID(method, path),
			Responses:   make(map[string]ResponseDoc),
			Security:    []map[string][]string{},
		}
		if op.Tag != "" {
			po.Tags = []string{op.Tag}
		}
		if op.Secured {
			po.Security = []map[string][]string{{securityName: {}}}
		}
		for _, p := range params {
			po.Parameters = append(po.Parameters, Parameter{Name: p, In: "path", Required: true, Schema: &Schema{Type: "integer"}})
		}
		switch {
		case op.FileField != "":
			po.RequestBody = &RequestBody{Required: true, Content: map[string]MediaType{
				"multipart/form-data": {Schema: &Schema{
					Type:       "object",
					Properties: map[string]*Schema{op.FileField: {Type: "string", Format: "binary"}},
					Required:   []string{op.FileField},
				}},
			}}
		case op.Body != nil:
			po.RequestBody = &RequestBody{Required: true, Content: map[string]MediaType{"application/json": {Schema: op.Body}}}
		}
		for code, resp := range op.Responses {
			rd := ResponseDoc{Description: resp.Description}
			if resp.Schema != nil {
				rd.Content = map[string]MediaType{"application/json": {Schema: resp.Schema}}
			}
			po.Responses[strconv.Itoa(code)] = rd
		}
		if doc.Paths[path] == nil {
			doc.Paths[path] = make(map[string]*PathOp)
		}
		doc.Paths[path][method] = po
	}
	return doc
}

func openAPIPath(tpl string) (string, []string) {
	var params []string
	out := pathParam.ReplaceAllStringFunc(tpl, func(m string) string {
		name := pathParam.FindStringSubmatch(m)[1]
		params = append(params, name)
		return "{" + name + "}"
	})
	return out, params
}

func operationID(method, path string) string {
	parts := []string{}
	for _, seg := range strings.Split(path, "/") {
		seg = strings.Trim(seg, "{}")
		if seg != "" {
			parts = append(parts, seg)
		}
	}
	return strings.Join(parts, "_") + "_" + method
}

// SortedPaths returns the document paths in lexical order.
func (d *Document) SortedPaths() []string {
	out := make([]string, 0, len(d.Paths))
	for p := range d.Paths {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}
