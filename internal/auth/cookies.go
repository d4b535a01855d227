package auth

import (
	"net/http"
	"time"
)

const (
	AccessTokenCookie  = "accessToken"
	RefreshTokenCookie = "refreshToken"
)

// CookieConfig controls how session cookies are written.
type CookieConfig struct {
	Secure bool
	Domain string
}

func (c CookieConfig) cookie(name, value string, ttl time.Duration) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Domain:   c.Domain,
		MaxAge:   int(ttl.Seconds()),
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: http.SameSiteLaxMode,
	}
}

// SetSessionCookies writes both tokens as HTTP-only cookies that live as long
// as the tokens themselves.
func (c CookieConfig) SetSessionCookies(w http.ResponseWriter, t *Tokens, accessTTL, refreshTTL time.Duration) {
	http.SetCookie(w, c.cookie(AccessTokenCookie, t.AccessToken, accessTTL))
	http.SetCookie(w, c.cookie(RefreshTokenCookie, t.RefreshToken, refreshTTL))
}

// ClearSessionCookies expires both session cookies.
func (c CookieConfig) ClearSessionCookies(w http.ResponseWriter) {
	for _, name := range []string{AccessTokenCookie, RefreshTokenCookie} {
		ck := c.cookie(name, "", 0)
		ck.MaxAge = -1
		ck.Expires = time.Unix(0, 0)
		http.SetCookie(w, ck)
	}
}
