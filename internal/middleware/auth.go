package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/google/uuid"
)

// CookieName holds the session token issued by the login endpoint.
const CookieName = "katzenschreck_session"

// Auth guards the status server with a single shared password. Sessions are
// valid for the lifetime of the process.
type Auth struct {
	password string
	token    string
}

// NewAuth creates an Auth. An empty password disables authentication.
func NewAuth(password string) *Auth {
	return &Auth{password: password, token: uuid.NewString()}
}

func (a *Auth) Enabled() bool {
	return a != nil && a.password != ""
}

// CheckPassword compares in constant time.
func (a *Auth) CheckPassword(password string) bool {
	return subtle.ConstantTimeCompare([]byte(password), []byte(a.password)) == 1
}

// Token is the cookie value of an authenticated session.
func (a *Auth) Token() string {
	return a.token
}

// Middleware rejects requests without a valid session cookie. The login
// endpoint and /metrics stay public.
func (a *Auth) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !a.Enabled() || r.URL.Path == "/auth/login" || r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}

		cookie, err := r.Cookie(CookieName)
		if err != nil || subtle.ConstantTimeCompare([]byte(cookie.Value), []byte(a.token)) != 1 {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}
