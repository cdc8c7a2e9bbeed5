package monitor

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// TokenMiddleware restricts next to requests carrying "Authorization: Bearer
// <token>". An empty token lets every request through.
func TokenMiddleware(token func() string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		want := token()
		if want == "" {
			next(w, r)
			return
		}
		got, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || subtle.ConstantTimeCompare([]byte(got), []byte(want)) != 1 {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}
