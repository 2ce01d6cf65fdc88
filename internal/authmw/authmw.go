// Package authmw provides HTTP middleware for bearer token authentication.
package authmw

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// QueryParam is the fallback query parameter for callers, typically uptime
// monitors, that can configure a webhook URL but not request headers.
const QueryParam = "token"

// BearerToken returns middleware that validates the Authorization header
// contains a Bearer token matching the expected value. When the header is
// absent the token may instead be passed as ?token=. Comparison uses
// constant-time equality.
func BearerToken(token string) func(http.Handler) http.Handler {
	expected := []byte(token)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got, ok := credential(r)
			if !ok {
				writeUnauthorized(w, `{"error":"missing or malformed authorization header"}`)
				return
			}

			if subtle.ConstantTimeCompare(got, expected) != 1 {
				writeUnauthorized(w, `{"error":"invalid token"}`)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// credential extracts the presented token. A present Authorization header
// always wins, even when malformed.
func credential(r *http.Request) ([]byte, bool) {
	if auth := r.Header.Get("Authorization"); auth != "" {
		if !strings.HasPrefix(auth, "Bearer ") {
			return nil, false
		}
		return []byte(auth[len("Bearer "):]), true
	}
	if q := r.URL.Query().Get(QueryParam); q != "" {
		return []byte(q), true
	}
	return nil, false
}

func writeUnauthorized(w http.ResponseWriter, body string) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="beacon"`)
	http.Error(w, body, http.StatusUnauthorized)
}
