// Package token issues and validates the short-lived JWT access tokens
// that ride alongside a server-side session.
package token

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	id "frametruth/pkg/domain"
	dErrors "frametruth/pkg/domain-errors"
)

// Claims are the access token claims. The session ID lets the server
// revoke a token before its expiry by dropping the session.
type Claims struct {
	UserID    string `json:"user_id"`
	SessionID string `json:"session_id"`
	jwt.RegisteredClaims
}

type Service struct {
	signingKey []byte
	issuer     string
	ttl        time.Duration
}

func New(signingKey, issuer string, ttl time.Duration) (*Service, error) {
	if len(signingKey) == 0 {
		return nil, errors.New("signing key is required")
	}
	return &Service{signingKey: []byte(signingKey), issuer: issuer, ttl: ttl}, nil
}

func (s *Service) Issue(userID id.UserID, sessionID id.SessionID, now time.Time) (string, error) {
	newToken := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		UserID:    userID.String(),
		SessionID: sessionID.String(),
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    s.issuer,
			ID:        uuid.NewString(),
		},
	})
	return newToken.SignedString(s.signingKey)
}

func (s *Service) Validate(tokenString string) (id.UserID, id.SessionID, error) {
	parsed, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenUnverifiable
		}
		return s.signingKey, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return id.UserID{}, id.SessionID{}, dErrors.New(dErrors.CodeUnauthorized, "token has expired")
		}
		return id.UserID{}, id.SessionID{}, dErrors.New(dErrors.CodeUnauthorized, "invalid token")
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return id.UserID{}, id.SessionID{}, dErrors.New(dErrors.CodeUnauthorized, "invalid token claims")
	}

	userID, err := id.ParseUserID(claims.UserID)
	if err != nil {
		return id.UserID{}, id.SessionID{}, dErrors.New(dErrors.CodeUnauthorized, "invalid token subject")
	}
	sessionID, err := id.ParseSessionID(claims.SessionID)
	if err != nil {
		return id.UserID{}, id.SessionID{}, dErrors.New(dErrors.CodeUnauthorized, "invalid token session")
	}
	return userID, sessionID, nil
}
