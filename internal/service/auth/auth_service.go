package auth

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jonboulle/clockwork"

	"coopvote/internal/domain"
	"coopvote/pkg/errors"
	"coopvote/pkg/logger"
)

// Claims is the JWT payload accepted by the API. The subject is the member id.
type Claims struct {
	Email string `json:"email,omitempty"`
	Role  string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// Service validates HS256 member tokens
type Service struct {
	secret []byte
	issuer string
	clock  clockwork.Clock
	logger *logger.Logger
}

// NewService creates a new auth service. An empty issuer accepts any issuer.
func NewService(secret, issuer string, clock clockwork.Clock, log *logger.Logger) *Service {
	return &Service{
		secret: []byte(secret),
		issuer: issuer,
		clock:  clock,
		logger: log.Named("auth"),
	}
}

// ValidateToken validates a bearer JWT and returns its claims
func (s *Service) ValidateToken(ctx context.Context, tokenString string) (*domain.AuthClaims, error) {
	if len(s.secret) == 0 {
		s.logger.Error("JWT secret not configured")
		return nil, errors.NewAuthenticationError("JWT validation not configured")
	}
	if !isJWTToken(tokenString) {
		return nil, errors.NewAuthenticationError("Unrecognized token format")
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.clock.Now),
		jwt.WithExpirationRequired(),
	}
	if s.issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.issuer))
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	}, opts...)
	if err != nil {
		s.logger.WithError(err).Debug("Failed to parse/validate JWT token")
		if stderrors.Is(err, jwt.ErrTokenExpired) {
			return nil, errors.NewAuthenticationError("Token has expired")
		}
		return nil, errors.NewAuthenticationError("Invalid JWT token")
	}
	if !token.Valid {
		return nil, errors.NewAuthenticationError("Invalid JWT token")
	}

	if claims.Subject == "" {
		s.logger.Warn("No user identifier found in JWT token")
		return nil, errors.NewAuthenticationError("Invalid JWT token: no user identifier")
	}

	out := &domain.AuthClaims{
		UserID: claims.Subject,
		Email:  claims.Email,
		Role:   claims.Role,
	}
	if claims.ExpiresAt != nil {
		out.ExpiresAt = claims.ExpiresAt.Time
	}

	s.logger.WithField("user_id", out.UserID).Debug("JWT token validated successfully")
	return out, nil
}

// IssueToken signs a token for userID valid for ttl
func (s *Service) IssueToken(userID, email string, ttl time.Duration) (string, error) {
	now := s.clock.Now()
	claims := &Claims{
		Email: email,
		Role:  "member",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    s.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

// isJWTToken checks for the three dot-separated segments of a compact JWT
func isJWTToken(token string) bool {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return false
	}
	for _, p := range parts {
		if p == "" {
			return false
		}
	}
	return true
}
