// Package apikeys provides API key issuance, authentication and scope authorization middleware.
//
// This file contains the primary session check guarding key management.
// Key management requires a fresh interactive session; an API key can never
// manage API keys.
package apikeys

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

// Session is the authenticated primary (non API key) session of a user.
type Session struct {
	UserID    string
	ExpiresAt time.Time
}

// SessionAuthenticator resolves the primary session of a request.
// Implementations must reject API key credentials.
type SessionAuthenticator interface {
	AuthenticateSession(ctx context.Context, authorizationHeader string) (*Session, error)
}

// sessionClaims are the claims of a session token.
type sessionClaims struct {
	Type string `json:"typ"`
	jwt.RegisteredClaims
}

// JWTSessionAuthenticator verifies HS256 session tokens.
type JWTSessionAuthenticator struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

// NewJWTSessionAuthenticator creates a verifier and issuer for session tokens.
// A zero ttl selects DEFAULT_SESSION_TTL.
func NewJWTSessionAuthenticator(secret []byte, issuer string, ttl time.Duration) (*JWTSessionAuthenticator, error) {
	if len(secret) == 0 {
		return nil, ErrSecretRequired
	}
	if ttl <= 0 {
		ttl = DEFAULT_SESSION_TTL
	}
	if issuer == "" {
		issuer = PACKAGE_NAME
	}
	return &JWTSessionAuthenticator{
		secret: secret,
		issuer: issuer,
		ttl:    ttl,
		now:    time.Now,
	}, nil
}

// IssueSessionToken signs a session token for userID.
func (j *JWTSessionAuthenticator) IssueSessionToken(userID string) (string, error) {
	if err := ValidateUserID(userID); err != nil {
		return "", err
	}

	now := j.now()
	claims := &sessionClaims{
		Type: SESSION_TOKEN_TYPE,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    j.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(j.ttl)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(j.secret)
	if err != nil {
		return "", NewInternalError("session_sign", err)
	}
	return signed, nil
}

// AuthenticateSession verifies the bearer session token in authorizationHeader.
func (j *JWTSessionAuthenticator) AuthenticateSession(ctx context.Context, authorizationHeader string) (*Session, error) {
	token, _, ok := ParseBearerToken(authorizationHeader, 0)
	if !ok {
		return nil, ErrSessionRequired
	}

	claims := &sessionClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return j.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(j.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(j.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidSession, err)
	}
	if !parsed.Valid {
		return nil, ErrInvalidSession
	}
	if claims.Type != SESSION_TOKEN_TYPE || claims.Subject == "" {
		return nil, ErrInvalidSession
	}

	return &Session{
		UserID:    claims.Subject,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

// SessionGuard is the middleware stage requiring a primary session.
type SessionGuard struct {
	sessions SessionAuthenticator
	logger   *zap.Logger
}

// NewSessionGuard wraps a SessionAuthenticator.
func NewSessionGuard(sessions SessionAuthenticator, logger *zap.Logger) (*SessionGuard, error) {
	if sessions == nil {
		return nil, ErrSessionAuthRequired
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SessionGuard{
		sessions: sessions,
		logger:   logger.Named(CLASS_SESSION),
	}, nil
}

// RequirePrimarySession returns net/http middleware attaching the Session.
func (g *SessionGuard) RequirePrimarySession(next http.Handler) http.Handler {
	framework := &GorillaMuxFramework{}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !g.Handle(framework, w, r) {
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Handle verifies the session for any framework.
func (g *SessionGuard) Handle(framework HTTPFramework, w, r interface{}) bool {
	ctx := framework.GetRequestContext(r)
	session, err := g.sessions.AuthenticateSession(ctx, framework.GetRequestHeader(r, HEADER_AUTHORIZATION))
	if err != nil {
		g.logger.Debug(LOG_MSG_SESSION_REJECTED,
			zap.String(LOG_FIELD_PATH, framework.GetRequestPath(r)),
			zap.Error(err))
		// every session failure is answered the same way
		writeError(framework, w, ErrSessionRequired)
		return false
	}

	framework.SetRequestContext(r, WithSession(ctx, session))
	return true
}

// WithSession attaches a Session to ctx.
func WithSession(ctx context.Context, session *Session) context.Context {
	return context.WithValue(ctx, contextKeySession, session)
}

// SessionFromContext returns the Session attached by the session guard, or nil.
func SessionFromContext(ctx context.Context) *Session {
	if ctx == nil {
		return nil
	}
	session, _ := ctx.Value(contextKeySession).(*Session)
	return session
}
