package auth

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"safety-app/internal/domain"
	"safety-app/internal/navigation"
	"safety-app/pkg/errors"
	"safety-app/pkg/logger"
)

const issuer = "safety-app"

// Claims are the JWT claims of an admin token
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// Service issues and validates HS256 admin tokens
type Service struct {
	secret []byte
	ttl    time.Duration
	logger *logger.Logger
	now    func() time.Time
}

// NewService creates a new auth service. With an empty secret every
// validation fails.
func NewService(secret string, ttl time.Duration, logger *logger.Logger) *Service {
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	return &Service{
		secret: []byte(secret),
		ttl:    ttl,
		logger: logger.Component("auth"),
		now:    time.Now,
	}
}

// WithClock replaces the time source, for tests
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// IssueAdminToken signs an admin token for subject
func (s *Service) IssueAdminToken(subject string) (string, error) {
	if len(s.secret) == 0 {
		return "", errors.NewInternalError("Admin tokens are not configured", nil)
	}
	if strings.TrimSpace(subject) == "" {
		return "", errors.NewValidationError("Token subject is required", nil)
	}

	now := s.now()
	claims := Claims{
		Role: domain.RoleAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", errors.NewInternalError("Failed to sign admin token", err)
	}

	s.logger.WithField("subject", subject).Info("Admin token issued")
	return signed, nil
}

// ValidateAdminToken verifies signature, issuer, expiry and role
func (s *Service) ValidateAdminToken(ctx context.Context, tokenString string) (*domain.AdminClaims, error) {
	if len(s.secret) == 0 {
		s.logger.Error("ADMIN_JWT_SECRET not configured")
		return nil, errors.NewAuthenticationError("JWT validation not configured")
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil || !token.Valid {
		s.logger.WithError(err).Debug("Admin token rejected")
		return nil, errors.NewAuthenticationError("Invalid or expired token")
	}

	if claims.Role != domain.RoleAdmin {
		s.logger.WithField("role", claims.Role).Warn("Token without admin role")
		return nil, errors.NewAuthorizationError("Admin role required")
	}

	out := &domain.AdminClaims{
		Subject: claims.Subject,
		Role:    claims.Role,
	}
	if claims.IssuedAt != nil {
		out.IssuedAt = claims.IssuedAt.Time
	}
	if claims.ExpiresAt != nil {
		out.ExpiresAt = claims.ExpiresAt.Time
	}
	return out, nil
}

// RouteAuthorizer gates navigation routes on an admin token. token is
// read on every check so a session can log in and out.
func (s *Service) RouteAuthorizer(token func() string) navigation.Authorizer {
	return navigation.AuthorizerFunc(func(ctx context.Context, route domain.Route) bool {
		t := token()
		if t == "" {
			return false
		}
		if _, err := s.ValidateAdminToken(ctx, t); err != nil {
			s.logger.WithField("route", route.Path).Debug("Route authorization failed")
			return false
		}
		return true
	})
}
