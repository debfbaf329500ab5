package api

import (
	"net/http"
	"strings"

	"github.com/platinummonkey/baselayer/pkg/httputil"
)

const provisioningMessage = "System provisioning"

const provisioningHTML = `<!DOCTYPE html>
<html>
<head><title>Provisioning</title></head>
<body><h1>System provisioning</h1><p>The system is starting up. Please retry shortly.</p></body>
</html>
`

// StatusPlaneHandler serves 503 on every route while the system
// provisions. The proxy routes traffic here until the real API processes
// bind their ports. API paths get the JSON error envelope; everything else
// gets a brief HTML page.
func StatusPlaneHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/api/") || r.URL.Path == "/api" {
			httputil.WriteServiceUnavailable(w, provisioningMessage)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(provisioningHTML))
	})
}
