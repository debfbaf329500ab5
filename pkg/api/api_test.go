package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/lib/pq"

	"github.com/platinummonkey/baselayer/pkg/access"
	"github.com/platinummonkey/baselayer/pkg/auth"
	"github.com/platinummonkey/baselayer/pkg/models"
	"github.com/platinummonkey/baselayer/pkg/observability"
	"github.com/platinummonkey/baselayer/pkg/session"
)

func testServer() *Server {
	return &Server{logger: observability.NewLogger(observability.ErrorLevel, io.Discard)}
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("response is not JSON: %v", err)
	}
	return body
}

func TestWriteDomainErrorMapping(t *testing.T) {
	cases := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"access violation", &session.AccessError{
			PrincipalKind: "User", PrincipalIdent: "tester",
			Mode: access.ModeRead, Entity: "token", PrimaryKey: "cafe",
		}, http.StatusUnauthorized},
		{"missing credentials", auth.ErrAuthMissing, http.StatusUnauthorized},
		{"invalid credentials", auth.ErrAuthInvalid, http.StatusUnauthorized},
		{"inactive account", auth.ErrAccountInactive, http.StatusForbidden},
		{"acl superset", &auth.ACLSubsetError{Excess: []string{"System admin"}}, http.StatusForbidden},
		{"missing row", models.ErrNotFound, http.StatusNotFound},
		{"integrity violation", &pq.Error{Code: "23505", Message: "duplicate key"}, http.StatusConflict},
		{"wrapped integrity violation", fmt.Errorf("failed to flush: %w",
			&pq.Error{Code: "23503", Message: "fk violation"}), http.StatusConflict},
		{"unknown", errors.New("boom"), http.StatusInternalServerError},
	}

	srv := testServer()
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			srv.writeDomainError(rec, tc.err)
			if rec.Code != tc.wantStatus {
				t.Errorf("got status %d, want %d", rec.Code, tc.wantStatus)
			}
			body := decodeEnvelope(t, rec)
			if body["status"] != "error" {
				t.Errorf("envelope status should be error, got %v", body["status"])
			}
		})
	}
}

func TestWriteDomainErrorMissingCredentialsMessage(t *testing.T) {
	rec := httptest.NewRecorder()
	testServer().writeDomainError(rec, auth.ErrAuthMissing)

	body := decodeEnvelope(t, rec)
	want := `Credentials malformed; expected form "Authorization: token abc123"`
	if body["message"] != want {
		t.Errorf("got message %q, want %q", body["message"], want)
	}
}

func TestStatusPlaneServesJSONForAPIPaths(t *testing.T) {
	handler := StatusPlaneHandler()

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/tokens", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("got status %d, want 503", rec.Code)
	}
	body := decodeEnvelope(t, rec)
	if body["message"] != "System provisioning" {
		t.Errorf("unexpected message %v", body["message"])
	}
}

func TestStatusPlaneServesHTMLElsewhere(t *testing.T) {
	handler := StatusPlaneHandler()

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/dashboard", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("got status %d, want 503", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.Contains(ct, "text/html") {
		t.Errorf("expected HTML content type, got %q", ct)
	}
	if !strings.Contains(rec.Body.String(), "System provisioning") {
		t.Errorf("page should explain the provisioning state")
	}
}

func TestPrincipalContextRoundTrip(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if got := PrincipalFromContext(req.Context()); got != nil {
		t.Errorf("expected nil principal on a bare context, got %v", got)
	}

	u := &models.User{ID: 42, Username: "tester"}
	ctx := withPrincipal(req.Context(), u)
	got := PrincipalFromContext(ctx)
	if got == nil || got.EffectiveUserID() != 42 {
		t.Errorf("principal did not round-trip: %v", got)
	}
}
