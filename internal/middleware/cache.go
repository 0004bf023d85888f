package middleware

import "net/http"

// NoStore marks responses uncacheable. Attempt and invite state changes
// on every write, so intermediaries must never serve a stale view.
func NoStore(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-store, no-cache, must-revalidate, max-age=0")
		w.Header().Set("Pragma", "no-cache")
		next.ServeHTTP(w, r)
	})
}
