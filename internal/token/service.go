// Package token issues and verifies the JWT pair that carries a session:
// a short-lived access token and a longer-lived refresh token, signed
// with two independent secrets so one cannot stand in for the other.
package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"pics-backend/internal/clock"
	"pics-backend/internal/config"
	"pics-backend/internal/models"
)

var (
	// ErrTokenInvalid covers every verification failure that is not an
	// expiry: bad signature, malformed token, wrong signing method.
	ErrTokenInvalid = errors.New("token invalid")

	// ErrTokenExpired means the token verified but its lifetime elapsed.
	ErrTokenExpired = errors.New("token expired")
)

// Claims is the payload carried by both token kinds. The jti keeps two
// tokens minted for the same identity within the same second distinct.
type Claims struct {
	Email string `json:"email"`
	Role  string `json:"role"`
	jwt.RegisteredClaims
}

// Pair is one session's worth of tokens, minted together.
type Pair struct {
	AccessToken  string
	RefreshToken string
}

type Service struct {
	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
	clock         clock.Clock
}

func NewService(cfg config.JWTConfig, clk clock.Clock) *Service {
	return &Service{
		accessSecret:  []byte(cfg.AccessSecret),
		refreshSecret: []byte(cfg.RefreshSecret),
		accessTTL:     cfg.AccessTTL,
		refreshTTL:    cfg.RefreshTTL,
		clock:         clk,
	}
}

// IssuePair mints a fresh access/refresh pair for user. The two tokens
// share identical identity claims and differ only in lifetime, secret,
// and jti.
func (s *Service) IssuePair(user models.UserPayload) (*Pair, error) {
	now := s.clock.Now()

	access, err := s.sign(user, now, s.accessTTL, s.accessSecret)
	if err != nil {
		return nil, fmt.Errorf("failed to sign access token: %w", err)
	}
	refresh, err := s.sign(user, now, s.refreshTTL, s.refreshSecret)
	if err != nil {
		return nil, fmt.Errorf("failed to sign refresh token: %w", err)
	}

	return &Pair{AccessToken: access, RefreshToken: refresh}, nil
}

func (s *Service) AccessTTL() time.Duration  { return s.accessTTL }
func (s *Service) RefreshTTL() time.Duration { return s.refreshTTL }

// VerifyAccess validates an access token and returns its claims.
func (s *Service) VerifyAccess(tokenString string) (*Claims, error) {
	return s.verify(tokenString, s.accessSecret)
}

// VerifyRefresh validates a refresh token and returns its claims.
func (s *Service) VerifyRefresh(tokenString string) (*Claims, error) {
	return s.verify(tokenString, s.refreshSecret)
}

func (s *Service) sign(user models.UserPayload, now time.Time, ttl time.Duration, secret []byte) (string, error) {
	claims := Claims{
		Email: user.Email,
		Role:  user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.Email,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

func (s *Service) verify(tokenString string, secret []byte) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tokenString, claims,
		func(t *jwt.Token) (interface{}, error) {
			return secret, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.clock.Now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}
	if !models.ValidRole(claims.Role) {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}
