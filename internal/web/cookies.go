package web

import (
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Cookie names shared with the OAuth flow.
const (
	stateCookie = "clientState"
	errorCookie = "ErrorDetail"
)

const (
	stateCookieTTL = 5 * time.Minute
	errorCookieTTL = 2 * time.Minute
)

// CookieSigner writes client-held values as signed, time-boxed cookies so
// they cannot be forged or replayed past their window.
type CookieSigner struct {
	secret []byte
}

func NewCookieSigner(secret string) *CookieSigner {
	return &CookieSigner{secret: []byte(secret)}
}

// Set signs value and stores it under name with the given lifetime.
func (cs *CookieSigner) Set(w http.ResponseWriter, name, value string, ttl time.Duration) error {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   value,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(cs.secret)
	if err != nil {
		return fmt.Errorf("sign %s cookie: %w", name, err)
	}

	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    signed,
		Path:     "/",
		MaxAge:   int(ttl.Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

// Read returns the value stored under name, or ok=false when the cookie is
// absent, tampered with, or past its window.
func (cs *CookieSigner) Read(r *http.Request, name string) (string, bool) {
	c, err := r.Cookie(name)
	if err != nil {
		return "", false
	}

	var claims jwt.RegisteredClaims
	tok, err := jwt.ParseWithClaims(c.Value, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return cs.secret, nil
	}, jwt.WithExpirationRequired())
	if err != nil || !tok.Valid {
		return "", false
	}
	return claims.Subject, true
}

// Clear drops the cookie.
func (cs *CookieSigner) Clear(w http.ResponseWriter, name string) {
	http.SetCookie(w, &http.Cookie{Name: name, Value: "", Path: "/", MaxAge: -1})
}
