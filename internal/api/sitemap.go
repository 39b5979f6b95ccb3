package api

import (
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"
)

// Endpoint represents an API endpoint with its documentation
type Endpoint struct {
	Path        string `json:"path"`
	Method      string `json:"method"`
	Description string `json:"description"`
}

var endpoints = []Endpoint{
	{Path: "/", Method: "GET", Description: "This sitemap - lists all available API endpoints"},
	{Path: "/health", Method: "GET", Description: "Health check endpoint"},
	{Path: "/api/automata", Method: "GET", Description: "Snapshots of every loaded automaton, in load order"},
	{Path: "/api/automata/{name}", Method: "GET", Description: "Snapshot of one automaton (404 when not loaded)"},
	{Path: "/api/automata/{name}/shutdown", Method: "POST", Description: "Tear down and unload an automaton"},
	{Path: "/api/automata/{name}/kill", Method: "POST", Description: "Unload an automaton without calling its teardown"},
	{Path: "/api/automata/{name}/restart", Method: "POST", Description: "Shut down and reload an automaton from its source"},
	{Path: "/api/conflicts", Method: "GET", Description: "Control tags claimed by more than one loaded automaton"},
	{Path: "/api/packages", Method: "GET", Description: "Package load history"},
	{Path: "/api/packages/load", Method: "POST", Description: "Load all configured packages, or {\"url\": ...} for one"},
	{Path: "/api/settings/urls", Method: "GET, PUT", Description: "Configured package URLs (JSON array)"},
	{Path: "/api/settings/blacklist", Method: "GET, PUT", Description: "Blacklisted automaton names (JSON array)"},
	{Path: "/ws", Method: "GET", Description: "Websocket stream of lifecycle events"},
}

// handleSitemap returns a list of all available API endpoints
func (s *Server) handleSitemap(w http.ResponseWriter, r *http.Request) {
	// Only handle requests to the root path
	if r.URL.Path != "/" {
		s.writeError(w, http.StatusNotFound, "not found")
		return
	}

	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	preferHTML := strings.Contains(r.Header.Get("Accept"), "text/html")

	if preferHTML {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, `<!DOCTYPE html>
<html>
<head>
    <title>Automata API</title>
    <style>
        body { font-family: monospace; margin: 40px; background: #1e1e1e; color: #d4d4d4; }
        h1 { color: #4ec9b0; }
        .endpoint { background: #2d2d2d; padding: 15px; margin: 10px 0; border-left: 3px solid #007acc; }
        .method { color: #4ec9b0; font-weight: bold; }
        .path { color: #ce9178; }
        .description { color: #9cdcfe; margin-top: 5px; }
    </style>
</head>
<body>
    <h1>Automata API</h1>
`)
		for _, ep := range endpoints {
			fmt.Fprintf(w, `    <div class="endpoint">
        <div><span class="method">%s</span> <span class="path">%s</span></div>
        <div class="description">%s</div>
    </div>
`, ep.Method, ep.Path, ep.Description)
		}
		fmt.Fprint(w, "</body>\n</html>\n")
	} else {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		fmt.Fprintf(w, "Automata API\n")
		fmt.Fprintf(w, "============\n\n")
		fmt.Fprintf(w, "Available endpoints:\n\n")
		for _, ep := range endpoints {
			fmt.Fprintf(w, "  %-10s %-32s %s\n", ep.Method, ep.Path, ep.Description)
		}
		fmt.Fprintf(w, "\nExamples:\n\n")
		fmt.Fprintf(w, "  curl http://localhost:8081/api/automata | jq\n")
		fmt.Fprintf(w, "  curl -X POST http://localhost:8081/api/automata/clock/restart\n")
	}

	s.logger.Debug("Sitemap request served",
		zap.String("remote_addr", r.RemoteAddr),
		zap.Bool("html_format", preferHTML))
}
