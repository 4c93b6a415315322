package handler

import (
	"net/http"

	"pics-backend/internal/token"
)

const (
	accessCookieName  = "accessToken"
	refreshCookieName = "refreshToken"

	// The refresh token is only ever presented to the refresh endpoint,
	// so the browser is told to send it nowhere else.
	refreshCookiePath = "/api/auth/refresh"
)

type cookieWriter struct {
	secure bool
}

func newCookieWriter(secure bool) cookieWriter {
	return cookieWriter{secure: secure}
}

// setPair installs both session cookies in one response. Lifetimes track
// the token lifetimes so the browser drops a cookie at the same moment
// its token stops verifying.
func (c cookieWriter) setPair(w http.ResponseWriter, pair *token.Pair, tokens *token.Service) {
	http.SetCookie(w, &http.Cookie{
		Name:     accessCookieName,
		Value:    pair.AccessToken,
		Path:     "/",
		MaxAge:   int(tokens.AccessTTL().Seconds()),
		HttpOnly: true,
		Secure:   c.secure,
		SameSite: http.SameSiteLaxMode,
	})
	http.SetCookie(w, &http.Cookie{
		Name:     refreshCookieName,
		Value:    pair.RefreshToken,
		Path:     refreshCookiePath,
		MaxAge:   int(tokens.RefreshTTL().Seconds()),
		HttpOnly: true,
		Secure:   c.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// clearPair expires both session cookies. Called on logout and on any
// failed refresh, so a rejected refresh token cannot be replayed by the
// browser indefinitely.
func (c cookieWriter) clearPair(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     accessCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   c.secure,
		SameSite: http.SameSiteLaxMode,
	})
	http.SetCookie(w, &http.Cookie{
		Name:     refreshCookieName,
		Value:    "",
		Path:     refreshCookiePath,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   c.secure,
		SameSite: http.SameSiteLaxMode,
	})
}
