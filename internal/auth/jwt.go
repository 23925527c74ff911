package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/capiorg/backend-auth/internal/apperr"
	"github.com/capiorg/backend-auth/internal/metrics"
)

// TokenKind is carried in the "type" claim
type TokenKind string

const (
	KindAccess  TokenKind = "access_token"
	KindRefresh TokenKind = "refresh_token"
)

// Claims is the token payload: {type, iat, exp, sub, session}
type Claims struct {
	Type      TokenKind `json:"type"`
	SessionID string    `json:"session"`
	jwt.RegisteredClaims
}

// Subject is the decoded result of a verified token
type Subject struct {
	UserID    uuid.UUID
	SessionID uuid.UUID
	Kind      TokenKind
	ExpiresAt time.Time
}

// TokenService signs and verifies HMAC tokens
type TokenService struct {
	secret []byte
	method *jwt.SigningMethodHMAC
	now    func() time.Time
}

// NewTokenService creates a token service for one of HS256, HS384, HS512
func NewTokenService(secret, algorithm string) (*TokenService, error) {
	if secret == "" {
		return nil, errors.New("jwt secret is empty")
	}
	method, ok := jwt.GetSigningMethod(algorithm).(*jwt.SigningMethodHMAC)
	if !ok {
		return nil, fmt.Errorf("unsupported signing algorithm %q", algorithm)
	}
	return &TokenService{
		secret: []byte(secret),
		method: method,
		now:    time.Now,
	}, nil
}

// WithClock replaces the time source
func (s *TokenService) WithClock(now func() time.Time) *TokenService {
	s.now = now
	return s
}

// Issue signs a token of kind for user and session, valid for ttl
func (s *TokenService) Issue(userID, sessionID uuid.UUID, kind TokenKind, ttl time.Duration) (string, error) {
	now := s.now()
	claims := &Claims{
		Type:      kind,
		SessionID: sessionID.String(),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	token := jwt.NewWithClaims(s.method, claims)
	tokenString, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	metrics.TokensIssued.WithLabelValues(string(kind)).Inc()
	return tokenString, nil
}

// Verify parses raw, which may carry a "Bearer " prefix. Every failure is
// reported as apperr.ErrUnauthenticated.
func (s *TokenService) Verify(raw string) (Subject, error) {
	tokenString := StripBearer(raw)
	if tokenString == "" {
		return Subject{}, apperr.ErrUnauthenticated
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{s.method.Alg()}),
		jwt.WithTimeFunc(s.now),
	)
	claims := &Claims{}
	token, err := parser.ParseWithClaims(tokenString, claims, func(*jwt.Token) (interface{}, error) {
		return s.secret, nil
	})
	if err != nil || !token.Valid {
		return Subject{}, apperr.ErrUnauthenticated
	}

	// exp is mandatory here, the parser only checks it when present
	if claims.ExpiresAt == nil || !s.now().Before(claims.ExpiresAt.Time) {
		return Subject{}, apperr.ErrUnauthenticated
	}
	userID, err := uuid.Parse(claims.Subject)
	if err != nil || userID == uuid.Nil {
		return Subject{}, apperr.ErrUnauthenticated
	}
	sessionID, err := uuid.Parse(claims.SessionID)
	if err != nil || sessionID == uuid.Nil {
		return Subject{}, apperr.ErrUnauthenticated
	}
	if claims.Type != KindAccess && claims.Type != KindRefresh {
		return Subject{}, apperr.ErrUnauthenticated
	}

	return Subject{
		UserID:    userID,
		SessionID: sessionID,
		Kind:      claims.Type,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

// StripBearer removes an optional case-insensitive "bearer " scheme
func StripBearer(raw string) string {
	raw = strings.TrimSpace(raw)
	const prefix = "bearer "
	if len(raw) >= len(prefix) && strings.EqualFold(raw[:len(prefix)], prefix) {
		raw = strings.TrimSpace(raw[len(prefix):])
	}
	return raw
}
