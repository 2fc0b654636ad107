package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stemsi/exam-portal/internal/config"
	"github.com/stemsi/exam-portal/internal/model"
)

// Common auth errors.
var (
	ErrSessionAlreadyActive = errors.New("another session is already active, please contact admin to reset")
	ErrNoActiveSession      = errors.New("no active session")
	ErrSessionInvalidated   = errors.New("session invalidated")
)

// Claims extends JWT standard claims with portal-specific fields.
type Claims struct {
	jwt.RegisteredClaims
	UserID string     `json:"user_id"`
	Role   model.Role `json:"role"`
}

// User returns the identity carried by the claims.
func (c *Claims) User() model.User {
	return model.User{ID: c.UserID, Role: c.Role}
}

// AuthService handles JWT validation and single-device session tracking.
// Issuing credentials belongs to the external sign-in flow; GenerateToken
// exists for tooling and tests.
type AuthService struct {
	secret []byte
	expiry time.Duration
	rdb    redis.Cmdable
}

// NewAuthService creates a new AuthService.
func NewAuthService(cfg *config.Config, rdb redis.Cmdable) *AuthService {
	return &AuthService{
		secret: []byte(cfg.JWTSecret),
		expiry: cfg.JWTExpiry,
		rdb:    rdb,
	}
}

// SignToken creates a signed JWT without touching the session registry.
func (s *AuthService) SignToken(userID string, role model.Role, jti string, now time.Time) (string, error) {
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.expiry)),
		},
		UserID: userID,
		Role:   role,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// GenerateToken creates a JWT and registers the session in Redis.
// Returns ErrSessionAlreadyActive if the user is logged in elsewhere.
func (s *AuthService) GenerateToken(ctx context.Context, userID string, role model.Role) (string, error) {
	sessionKey := config.CacheKey.StudentSessionKey(userID)

	existing, err := s.rdb.Get(ctx, sessionKey).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return "", fmt.Errorf("check session: %w", err)
	}
	if existing != "" {
		return "", ErrSessionAlreadyActive
	}

	jti := uuid.New().String()
	signed, err := s.SignToken(userID, role, jti, time.Now())
	if err != nil {
		return "", err
	}

	if err := s.rdb.Set(ctx, sessionKey, jti, s.expiry).Err(); err != nil {
		return "", fmt.Errorf("store session: %w", err)
	}
	return signed, nil
}

// ValidateToken parses and validates a JWT, returning the claims.
func (s *AuthService) ValidateToken(tokenStr string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.UserID == "" {
		return nil, errors.New("invalid token claims")
	}
	return claims, nil
}

// ValidateSession checks that the token's JTI matches the active session in Redis.
func (s *AuthService) ValidateSession(ctx context.Context, userID, jti string) error {
	stored, err := s.rdb.Get(ctx, config.CacheKey.StudentSessionKey(userID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return ErrNoActiveSession
		}
		return fmt.Errorf("check session: %w", err)
	}
	if stored != jti {
		return ErrSessionInvalidated
	}
	return nil
}

// ResetSession removes a user's session from Redis, allowing a new login.
func (s *AuthService) ResetSession(ctx context.Context, userID string) error {
	return s.rdb.Del(ctx, config.CacheKey.StudentSessionKey(userID)).Err()
}

// Verify implements identity.Verifier: the token must be valid and still be
// the user's active session.
func (s *AuthService) Verify(ctx context.Context, token string) (model.User, error) {
	claims, err := s.ValidateToken(token)
	if err != nil {
		return model.User{}, err
	}
	if err := s.ValidateSession(ctx, claims.UserID, claims.ID); err != nil {
		return model.User{}, err
	}
	return claims.User(), nil
}
