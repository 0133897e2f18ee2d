package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestAuthMiddleware(t *testing.T) {
	auth := NewAuth("secret")
	h := auth.Middleware(okHandler())

	tests := []struct {
		name     string
		path     string
		cookie   string
		expected int
	}{
		{"no cookie", "/api/status", "", http.StatusUnauthorized},
		{"wrong cookie", "/api/status", "forged", http.StatusUnauthorized},
		{"valid cookie", "/api/status", auth.Token(), http.StatusOK},
		{"login is public", "/auth/login", "", http.StatusOK},
		{"metrics is public", "/metrics", "", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.cookie != "" {
				req.AddCookie(&http.Cookie{Name: CookieName, Value: tt.cookie})
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			if rec.Code != tt.expected {
				t.Errorf("status = %d, expected %d", rec.Code, tt.expected)
			}
		})
	}
}

func TestAuthMiddleware_Disabled(t *testing.T) {
	h := NewAuth("").Middleware(okHandler())
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/status", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, expected 200 without a password", rec.Code)
	}
}

func TestCheckPassword(t *testing.T) {
	auth := NewAuth("secret")
	if !auth.CheckPassword("secret") || auth.CheckPassword("Secret") {
		t.Error("CheckPassword mismatch")
	}
}
