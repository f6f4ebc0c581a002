package httpapi

import (
	"net/http"
	"strings"

	"issuedesk.org/internal/auth"
)

const (
	accessCookie  = "access_token"
	refreshCookie = "refresh_token"

	// The refresh cookie only travels to its own endpoint; the browser
	// never attaches the long-lived credential anywhere else.
	refreshCookiePath = "/api/v1/auth/refresh"
)

var protectedPaths = []string{
	"/api/v1/auth/logout",
	"/api/v1/auth/me",
	"/api/v1/issues",
}
var protectedPrefixes = []string{
	"/api/v1/issues/",
}

// withAuth authenticates requests from the access token cookie. It is
// a pure signature check against the codec: no store lookup, so a
// stolen-but-unexpired access token stays valid until it expires.
// Every failure produces the same 401 body. Only the registered
// protected routes are gated; anything else falls through to the mux,
// so unknown paths stay 404.
func (a *API) withAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}
		if !isProtectedPath(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		c, err := r.Cookie(accessCookie)
		if err != nil || c.Value == "" {
			writeError(w, r, http.StatusUnauthorized, "unauthorized")
			return
		}
		subjectID, err := a.codec.VerifyAccess(c.Value)
		if err != nil {
			writeError(w, r, http.StatusUnauthorized, "unauthorized")
			return
		}

		ctx := auth.ContextWithSubject(r.Context(), subjectID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requireSubject pulls the authenticated user id set by withAuth.
func requireSubject(w http.ResponseWriter, r *http.Request) (string, bool) {
	subjectID, ok := auth.SubjectFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "unauthorized")
		return "", false
	}
	return subjectID, true
}

func isProtectedPath(path string) bool {
	for _, p := range protectedPaths {
		if path == p {
			return true
		}
	}
	for _, prefix := range protectedPrefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

// setAuthCookies installs both credential cookies after issuance or
// rotation.
func (a *API) setAuthCookies(w http.ResponseWriter, pair auth.TokenPair) {
	http.SetCookie(w, &http.Cookie{
		Name:     accessCookie,
		Value:    pair.AccessToken,
		Path:     "/",
		Expires:  pair.AccessExpiresAt,
		MaxAge:   int(a.accessTTL.Seconds()),
		HttpOnly: true,
		Secure:   a.cookieSecure,
		SameSite: a.cookieSameSite,
	})
	http.SetCookie(w, &http.Cookie{
		Name:     refreshCookie,
		Value:    pair.RefreshToken,
		Path:     refreshCookiePath,
		Expires:  pair.RefreshExpiresAt,
		MaxAge:   int(a.refreshTTL.Seconds()),
		HttpOnly: true,
		Secure:   a.cookieSecure,
		SameSite: a.cookieSameSite,
	})
}

// clearAuthCookies expires both cookies on the same paths they were
// set with.
func (a *API) clearAuthCookies(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     accessCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   a.cookieSecure,
		SameSite: a.cookieSameSite,
	})
	http.SetCookie(w, &http.Cookie{
		Name:     refreshCookie,
		Value:    "",
		Path:     refreshCookiePath,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   a.cookieSecure,
		SameSite: a.cookieSameSite,
	})
}
