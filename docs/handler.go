package docs

import (
	"encoding/json"
	"net/http"
	"sync"

	"appdownloader/utils"

	"gopkg.in/yaml.v3"
)

// Server renders one Document in every format. Encodings are computed once.
type Server struct {
	doc *Document

	once     sync.Once
	jsonBody []byte
	yamlBody []byte
	err      error
}

func NewServer(doc *Document) *Server {
	return &Server{doc: doc}
}

func (s *Server) encode() {
	s.once.Do(func() {
		if s.jsonBody, s.err = json.MarshalIndent(s.doc, "", "  "); s.err != nil {
			return
		}
		s.yamlBody, s.err = yaml.Marshal(s.doc)
	})
}

func (s *Server) JSON(w http.ResponseWriter, r *http.Request) {
	s.encode()
	if s.err != nil {
		utils.WriteError(w, r, utils.Internal(s.err))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(s.jsonBody)
}

func (s *Server) YAML(w http.ResponseWriter, r *http.Request) {
	s.encode()
	if s.err != nil {
		utils.WriteError(w, r, utils.Internal(s.err))
		return
	}
	w.Header().Set("Content-Type", "application/yaml")
	_, _ = w.Write(s.yamlBody)
}

const swaggerUIPage = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>Android App API</title>
<link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css">
</head>
<body>
<div id="swagger-ui"></div>
<script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js"></script>
<script>
window.ui = SwaggerUIBundle({url: "/swagger.json", dom_id: "#swagger-ui"});
</script>
</body>
</html>
`

const redocPage = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>Android App API</title>
</head>
<body>
<redoc spec-url="/swagger.json"></redoc>
<script src="https://cdn.redoc.ly/redoc/latest/bundles/redoc.standalone.js"></script>
</body>
</html>
`

func (s *Server) SwaggerUI(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(swaggerUIPage))
}

func (s *Server) Redoc(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(redocPage))
}
