package httpx

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// requireAdmin gates mutating routes behind the shared operator token.
func (r *Router) requireAdmin(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		if !r.verifyAdminToken(w, req) {
			return
		}
		next(w, req)
	}
}

// verifyAdminToken checks the X-Admin-Token header against the configured
// secret in constant time.
func (r *Router) verifyAdminToken(w http.ResponseWriter, req *http.Request) bool {
	expected := r.adminToken
	if expected == "" {
		r.logger.Error("admin token not configured", "path", req.URL.Path)
		writeError(w, http.StatusInternalServerError, "internal", "admin authentication misconfigured")
		return false
	}
	token := strings.TrimSpace(req.Header.Get("X-Admin-Token"))
	if len(token) != len(expected) || subtle.ConstantTimeCompare([]byte(token), []byte(expected)) != 1 {
		r.logger.Warn("admin token mismatch", "path", req.URL.Path)
		writeError(w, http.StatusUnauthorized, "unauthorized", "invalid admin token")
		return false
	}
	return true
}
