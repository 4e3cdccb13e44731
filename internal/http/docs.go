package httpx

import (
	"fmt"
	"net/http"
	"strings"
)

// handleDocs serves an interactive API explorer for one tomain. The OpenAPI
// document comes live from the Shell's reflection endpoint, so the page always
// describes what is actually loaded, not what was last deployed.
func (r *Router) handleDocs(w http.ResponseWriter, req *http.Request, name string) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	doc, err := r.tomains.ReflectAPI(req.Context(), name)
	if err != nil {
		r.logger.Warn("docs reflection unavailable", "tomain", name, "error", err)
		writeHTML(w, http.StatusOK, docsErrorPage(name, "The execution host did not answer the reflection request."))
		return
	}
	friendly := name
	if idx := strings.LastIndex(name, "."); idx >= 0 && idx < len(name)-1 {
		friendly = name[idx+1:]
	}
	doc = strings.ReplaceAll(doc, `"Axiom Kernel API"`, fmt.Sprintf("%q", friendly+" API"))
	writeHTML(w, http.StatusOK, docsExplorerPage(friendly, doc))
}

func writeHTML(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}

func docsExplorerPage(title, doc string) string {
	return fmt.Sprintf(`<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="UTF-8">
  <title>%s - API Explorer</title>
  <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css">
  <style>
    html { box-sizing: border-box; overflow-y: scroll; }
    body { margin: 0; background: #0d1117; color: #c9d1d9; }
    .swagger-ui { filter: invert(88%%) hue-rotate(180deg); }
    .swagger-ui .topbar { display: none; }
  </style>
</head>
<body>
  <div id="swagger-ui"></div>
  <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js"></script>
  <script>
    window.onload = function() {
      window.ui = SwaggerUIBundle({
        spec: %s,
        dom_id: '#swagger-ui',
        deepLinking: true,
        presets: [SwaggerUIBundle.presets.apis],
      });
    };
  </script>
</body>
</html>`, title, doc)
}

func docsErrorPage(name, reason string) string {
	return fmt.Sprintf(`<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="UTF-8">
  <title>API Explorer - %s</title>
  <style>
    body { margin: 0; background: #0d1117; color: #c9d1d9; font-family: sans-serif;
           display: flex; align-items: center; justify-content: center; height: 100vh; text-align: center; }
    .container { max-width: 600px; padding: 40px; background: #161b22; border-radius: 12px; }
    h1 { color: #ff7b72; font-size: 24px; }
    p { color: #8b949e; line-height: 1.6; }
    .code-box { background: #0d1117; padding: 12px; border-radius: 6px; font-family: monospace; color: #79c0ff; }
  </style>
</head>
<body>
  <div class="container">
    <h1>Service is down</h1>
    <p>%s</p>
    <p>Check that the execution host is running a live slot for this package:</p>
    <div class="code-box">%s</div>
  </div>
</body>
</html>`, name, reason, name)
}
