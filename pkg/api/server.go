// Package api provides the core HTTP surface: principal-authenticated JSON
// handlers for socket-token issuance and API-token management, plus the
// provisioning status plane.
package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/baselayer/pkg/auth"
	"github.com/platinummonkey/baselayer/pkg/fanout"
	"github.com/platinummonkey/baselayer/pkg/httputil"
	"github.com/platinummonkey/baselayer/pkg/observability"
	"github.com/platinummonkey/baselayer/pkg/session"
)

// Server wires the core handlers together
type Server struct {
	mgr           *session.Manager
	authenticator *auth.Authenticator
	publisher     *fanout.Publisher
	secret        []byte
	logger        *observability.Logger
	metrics       *observability.Metrics
}

// NewServer creates the API server. The publisher may be nil; fan-out is
// best-effort and handlers skip it when the broker is not configured.
func NewServer(mgr *session.Manager, authenticator *auth.Authenticator, publisher *fanout.Publisher,
	secret []byte, logger *observability.Logger, metrics *observability.Metrics) *Server {
	return &Server{
		mgr:           mgr,
		authenticator: authenticator,
		publisher:     publisher,
		secret:        secret,
		logger:        logger,
		metrics:       metrics,
	}
}

// Router builds the HTTP routing table
func (s *Server) Router() http.Handler {
	router := mux.NewRouter()

	router.Path("/metrics").Handler(s.metrics.Handler())
	router.Path("/socket_auth_token").Methods(http.MethodGet).
		Handler(s.instrument("/socket_auth_token", s.authenticated(s.handleSocketAuthToken)))

	api := router.PathPrefix("/api").Subrouter()
	api.Path("/profile").Methods(http.MethodGet).
		Handler(s.instrument("/api/profile", s.authenticated(s.handleProfile)))
	api.Path("/tokens").Methods(http.MethodGet).
		Handler(s.instrument("/api/tokens", s.authenticated(s.handleListTokens)))
	api.Path("/tokens").Methods(http.MethodPost).
		Handler(s.instrument("/api/tokens", s.authenticated(s.handleCreateToken)))
	api.Path("/tokens/{id}").Methods(http.MethodDelete).
		Handler(s.instrument("/api/tokens/{id}", s.authenticated(s.handleRevokeToken)))

	var handler http.Handler = router
	handler = httputil.LoggingMiddleware(s.logger)(handler)
	handler = httputil.RecoveryMiddleware(s.logger)(handler)
	handler = httputil.RequestScopeMiddleware(s.logger)(handler)
	return handler
}

func (s *Server) instrument(path string, h http.Handler) http.Handler {
	return s.metrics.InstrumentHandler(path, h)
}
