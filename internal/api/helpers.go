package api

import (
	"encoding/json"
	"net"
	"net/http"

	"grimm.is/fwplan/internal/i18n"
)

// clientIP returns the request's client address without the port. The RealIP
// middleware has already applied X-Forwarded-For and X-Real-IP.
func clientIP(r *http.Request) string {
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

// ErrorResponse represents a standard API error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// WriteError sends a JSON error response
func WriteError(w http.ResponseWriter, code int, message string, details ...string) {
	resp := ErrorResponse{Error: message}
	if len(details) > 0 {
		resp.Details = details[0]
	}
	WriteJSON(w, code, resp)
}

// WriteJSON sends a JSON response
func WriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// WriteErrorCtx sends a localized JSON error response
func WriteErrorCtx(w http.ResponseWriter, r *http.Request, code int, format string, args ...any) {
	p := i18n.GetPrinter(r.Context())
	WriteError(w, code, p.Sprintf(format, args...))
}
