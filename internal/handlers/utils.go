package handlers

import (
	"net/http"
	"strings"

	"github.com/genzdict/battlegate/internal/auth"
)

// extractCookieToken extracts a named cookie value from "Cookie" header, or returns empty if not found.
func extractCookieToken(cookieHeader, cookieName string) string {
	parts := strings.Split(cookieHeader, cookieName+"=")
	if len(parts) < 2 {
		return ""
	}
	token := parts[1]
	if idx := strings.Index(token, ";"); idx != -1 {
		token = token[:idx]
	}
	return token
}

// callerIdentity resolves the authenticated caller from the auth_token
// cookie. Returns "" when the request carries no valid token.
func callerIdentity(r *http.Request) string {
	cookieHeader := r.Header.Get("Cookie")
	if !strings.Contains(cookieHeader, "auth_token=") {
		return ""
	}
	identity, err := auth.VerifyToken(extractCookieToken(cookieHeader, "auth_token"))
	if err != nil {
		return ""
	}
	return identity
}
