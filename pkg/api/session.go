package api

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/marmos91/ntlmgate/pkg/config"
	"github.com/marmos91/ntlmgate/pkg/handshake"
)

// ErrNoSession is returned by Validate when the request carries no usable
// session.
var ErrNoSession = errors.New("no valid session")

// SessionClaims is the JWT payload of a session cookie.
//
// The subject carries the stable unique user identifier; the remaining
// claims mirror the identity produced by the handshake.
type SessionClaims struct {
	jwt.RegisteredClaims

	// Name is the short account name ("alice").
	Name string `json:"name"`

	// SID is the account's security identifier string.
	SID string `json:"sid"`

	// Domain is the account's domain. Omitted when empty.
	Domain string `json:"domain,omitempty"`

	// AuthMethod records how the session was established ("NTLM").
	AuthMethod string `json:"amr"`
}

// SessionManager is the sign-in collaborator of the handshake: it turns a
// verified identity into a signed session cookie and validates that cookie
// on later requests.
type SessionManager struct {
	secret     []byte
	cookieName string
	ttl        time.Duration
	secure     bool
}

// NewSessionManager creates a session manager from cfg.
//
// An empty secret gets a random per-process one, which invalidates all
// sessions on restart; run 'ntlmgate init' to persist a secret.
func NewSessionManager(cfg config.SessionConfig) *SessionManager {
	secret := []byte(cfg.Secret)
	if len(secret) == 0 {
		secret = make([]byte, 32)
		// crypto/rand.Read never fails on supported platforms
		_, _ = rand.Read(secret)
	}

	return &SessionManager{
		secret:     secret,
		cookieName: cfg.CookieName,
		ttl:        cfg.TTL,
		secure:     cfg.Secure,
	}
}

// SignIn establishes a session for a verified identity by setting a signed
// cookie on the response.
func (m *SessionManager) SignIn(w http.ResponseWriter, id handshake.Identity) error {
	now := time.Now()
	claims := SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "ntlmgate",
			Subject:   id.UniqueID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
		},
		Name:       id.Name,
		SID:        id.SID,
		Domain:     id.Domain,
		AuthMethod: id.AuthMethod,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return fmt.Errorf("failed to sign session token: %w", err)
	}

	http.SetCookie(w, &http.Cookie{
		Name:     m.cookieName,
		Value:    signed,
		Path:     "/",
		MaxAge:   int(m.ttl.Seconds()),
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	})

	return nil
}

// SignOut clears the session cookie.
func (m *SessionManager) SignOut(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     m.cookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// Validate checks the session cookie on a request and returns its claims.
// Returns ErrNoSession for missing, malformed, expired, or forged cookies.
func (m *SessionManager) Validate(r *http.Request) (*SessionClaims, error) {
	cookie, err := r.Cookie(m.cookieName)
	if err != nil || cookie.Value == "" {
		return nil, ErrNoSession
	}

	claims := &SessionClaims{}
	token, err := jwt.ParseWithClaims(cookie.Value, claims,
		func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
			}
			return m.secret, nil
		},
		jwt.WithExpirationRequired(),
	)
	if err != nil || !token.Valid {
		return nil, ErrNoSession
	}

	return claims, nil
}

// sessionContextKey is the context key for authenticated session claims.
type sessionContextKey struct{}

// Authenticate is middleware that validates the session cookie and, when
// valid, attaches the claims to the request context. Requests without a
// session pass through unauthenticated; handlers decide whether to reject.
func (m *SessionManager) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if claims, err := m.Validate(r); err == nil {
			r = r.WithContext(context.WithValue(r.Context(), sessionContextKey{}, claims))
		}
		next.ServeHTTP(w, r)
	})
}

// SessionFromContext returns the session claims attached by Authenticate.
func SessionFromContext(ctx context.Context) (*SessionClaims, bool) {
	claims, ok := ctx.Value(sessionContextKey{}).(*SessionClaims)
	return claims, ok
}
