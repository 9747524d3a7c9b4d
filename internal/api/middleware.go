package api

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/crypto/bcrypt"
)

// accessLog logs each request and records it in the metrics registry under
// its route pattern.
func (s *Server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := s.clock.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		pattern := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			pattern = rctx.RoutePattern()
		}
		s.metrics.RecordAPIRequest(r.Method, pattern, status)
		s.logger.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", status,
			"bytes", ww.BytesWritten(),
			"duration", s.clock.Since(start),
			"client", clientIP(r),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

// requireToken checks the bearer token when one is configured. Failed
// attempts are rate limited per client.
func (s *Server) requireToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if len(s.tokenHash) == 0 {
			next.ServeHTTP(w, r)
			return
		}

		token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if ok && bcrypt.CompareHashAndPassword(s.tokenHash, []byte(token)) == nil {
			next.ServeHTTP(w, r)
			return
		}

		ip := clientIP(r)
		if !s.authLimiter.Allow(ip) {
			s.logger.Warn("authentication rate limit exceeded", "client", ip)
			WriteErrorCtx(w, r, http.StatusTooManyRequests, "too many failed attempts")
			return
		}
		s.logger.Audit("auth_failed", r.URL.Path, map[string]any{"client": ip})
		w.Header().Set("WWW-Authenticate", `Bearer realm="fwplan"`)
		WriteErrorCtx(w, r, http.StatusUnauthorized, "authentication required")
	})
}
