package i18n

import (
	"net/http"
)

// Middleware injects a printer matching the Accept-Language header.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p := NewPrinter(MatchLanguage(r.Header.Get("Accept-Language")))
		next.ServeHTTP(w, r.WithContext(WithPrinter(r.Context(), p)))
	})
}
