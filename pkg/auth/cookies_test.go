package auth

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestCookieIdentityRoundTrip(t *testing.T) {
	codec := NewCookieCodec([]byte("cookie-secret-0123456789abcdef01"))

	rec := httptest.NewRecorder()
	if err := codec.WriteIdentity(rec, Identity{UserID: 42, OAuthUID: "social-99"}); err != nil {
		t.Fatalf("failed to write identity: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	for _, c := range rec.Result().Cookies() {
		req.AddCookie(c)
	}

	identity, err := codec.ReadIdentity(req)
	if err != nil {
		t.Fatalf("failed to read identity: %v", err)
	}
	if identity.UserID != 42 || identity.OAuthUID != "social-99" {
		t.Errorf("identity mismatch: %+v", identity)
	}
}

func TestCookieIdentityMissing(t *testing.T) {
	codec := NewCookieCodec([]byte("cookie-secret-0123456789abcdef01"))
	req := httptest.NewRequest(http.MethodGet, "/", nil)

	if _, err := codec.ReadIdentity(req); !errors.Is(err, ErrAuthMissing) {
		t.Errorf("expected ErrAuthMissing, got %v", err)
	}
}

func TestCookieIdentityTampered(t *testing.T) {
	codec := NewCookieCodec([]byte("cookie-secret-0123456789abcdef01"))
	other := NewCookieCodec([]byte("different-secret-0123456789abcdef"))

	rec := httptest.NewRecorder()
	if err := other.WriteIdentity(rec, Identity{UserID: 42, OAuthUID: "social-99"}); err != nil {
		t.Fatalf("failed to write identity: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	for _, c := range rec.Result().Cookies() {
		req.AddCookie(c)
	}

	if _, err := codec.ReadIdentity(req); !errors.Is(err, ErrAuthInvalid) {
		t.Errorf("expected ErrAuthInvalid for foreign signature, got %v", err)
	}
}

func TestParseAuthorizationHeader(t *testing.T) {
	cases := []struct {
		header  string
		want    string
		wantErr bool
	}{
		{"token abc123", "abc123", false},
		{"Token abc123", "abc123", false},
		{"Bearer abc123", "", true},
		{"token", "", true},
		{"token ", "", true},
		{"", "", true},
	}
	for _, tc := range cases {
		got, err := parseAuthorizationHeader(tc.header)
		if tc.wantErr {
			if err == nil {
				t.Errorf("header %q: expected error", tc.header)
			}
			continue
		}
		if err != nil {
			t.Errorf("header %q: unexpected error %v", tc.header, err)
			continue
		}
		if got != tc.want {
			t.Errorf("header %q: got %q, want %q", tc.header, got, tc.want)
		}
	}
}
