// README: Tests for bearer auth, claim-to-role mapping and role gating.
package middleware_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"foodtrack/internal/http/middleware"
	"foodtrack/internal/infra"
	"foodtrack/internal/types"
)

type stubVerifier struct {
	token *infra.VerifiedToken
	err   error
}

func (s *stubVerifier) VerifyIDToken(context.Context, string) (*infra.VerifiedToken, error) {
	return s.token, s.err
}

func whoamiRouter(verifier infra.TokenVerifier, gate ...types.Role) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(middleware.Auth(verifier))
	handlers := []gin.HandlerFunc{}
	if len(gate) > 0 {
		handlers = append(handlers, middleware.RequireRole(gate...))
	}
	handlers = append(handlers, func(c *gin.Context) {
		who := middleware.Caller(c)
		c.JSON(http.StatusOK, gin.H{"uid": string(who.ID), "role": string(who.Role)})
	})
	r.GET("/whoami", handlers...)
	return r
}

type whoami struct {
	UID  string `json:"uid"`
	Role string `json:"role"`
}

func call(t *testing.T, r http.Handler, header string) (int, whoami) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	var out whoami
	if w.Code == http.StatusOK {
		if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
			t.Fatalf("decode body: %v", err)
		}
	}
	return w.Code, out
}

func TestAuthHeaderHandling(t *testing.T) {
	ok := &stubVerifier{token: &infra.VerifiedToken{UID: "c1", Claims: map[string]interface{}{"role": "client"}}}
	bad := &stubVerifier{err: errors.New("expired")}

	cases := []struct {
		name     string
		verifier infra.TokenVerifier
		header   string
		want     int
	}{
		{"missing header", ok, "", http.StatusUnauthorized},
		{"wrong scheme", ok, "Token abc", http.StatusUnauthorized},
		{"blank bearer", ok, "Bearer   ", http.StatusUnauthorized},
		{"verifier rejects", bad, "Bearer abc", http.StatusUnauthorized},
		{"valid", ok, "Bearer abc", http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			code, _ := call(t, whoamiRouter(tc.verifier), tc.header)
			if code != tc.want {
				t.Fatalf("status = %d, want %d", code, tc.want)
			}
		})
	}
}

func TestAuthRoleFromClaims(t *testing.T) {
	cases := []struct {
		claims map[string]interface{}
		want   types.Role
	}{
		{map[string]interface{}{"role": "driver"}, types.RoleDriver},
		{map[string]interface{}{"role": "admin"}, types.RoleAdmin},
		{map[string]interface{}{"role": "superuser"}, types.RoleClient},
		{map[string]interface{}{"role": 7}, types.RoleClient},
		{map[string]interface{}{}, types.RoleClient},
	}
	for _, tc := range cases {
		v := &stubVerifier{token: &infra.VerifiedToken{UID: "u1", Claims: tc.claims}}
		code, got := call(t, whoamiRouter(v), "Bearer t")
		if code != http.StatusOK || got.Role != string(tc.want) || got.UID != "u1" {
			t.Errorf("claims %v: got %d %+v, want role %s", tc.claims, code, got, tc.want)
		}
	}
}

func TestRequireRole(t *testing.T) {
	cases := []struct {
		role string
		want int
	}{
		{"admin", http.StatusOK},
		{"driver", http.StatusForbidden},
		{"", http.StatusForbidden},
	}
	for _, tc := range cases {
		claims := map[string]interface{}{}
		if tc.role != "" {
			claims["role"] = tc.role
		}
		v := &stubVerifier{token: &infra.VerifiedToken{UID: "u1", Claims: claims}}
		if code, _ := call(t, whoamiRouter(v, types.RoleAdmin), "Bearer t"); code != tc.want {
			t.Errorf("role %q: status = %d, want %d", tc.role, code, tc.want)
		}
	}
}

func TestAuthWithJWTManager(t *testing.T) {
	m, err := infra.NewJWTManager("test-secret", time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	tok, err := m.Issue("d7", types.RoleDriver)
	if err != nil {
		t.Fatal(err)
	}
	r := whoamiRouter(m, types.RoleDriver)

	code, got := call(t, r, "Bearer "+tok)
	if code != http.StatusOK || got.UID != "d7" || got.Role != "driver" {
		t.Fatalf("got %d %+v", code, got)
	}

	other, _ := infra.NewJWTManager("another-secret", time.Hour)
	forged, _ := other.Issue("d7", types.RoleDriver)
	if code, _ := call(t, r, "Bearer "+forged); code != http.StatusUnauthorized {
		t.Fatalf("forged token status = %d", code)
	}
}

func TestBearerToken(t *testing.T) {
	if tok, ok := middleware.BearerToken("Bearer  abc "); !ok || tok != "abc" {
		t.Fatalf("got %q %v", tok, ok)
	}
	if _, ok := middleware.BearerToken("bearer abc"); ok {
		t.Fatal("scheme is case sensitive")
	}
}
