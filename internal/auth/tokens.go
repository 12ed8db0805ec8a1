package auth

import (
	"errors"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrTokenMissing   = errors.New("token missing")
	ErrTokenExpired   = errors.New("token expired")
	ErrTokenMalformed = errors.New("token malformed")
)

// TokenService issues and verifies the signed access and refresh tokens used
// by both the REST layer and the websocket handshake. Verification is pure:
// no I/O, no clock state beyond the comparison against time.Now.
type TokenService struct {
	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
}

// NewTokenService builds a TokenService from the two signing secrets.
func NewTokenService(accessSecret, refreshSecret string, accessTTL, refreshTTL time.Duration) *TokenService {
	return &TokenService{
		accessSecret:  []byte(accessSecret),
		refreshSecret: []byte(refreshSecret),
		accessTTL:     accessTTL,
		refreshTTL:    refreshTTL,
	}
}

// IssueAccessToken signs a short-lived HS256 token carrying the user id.
func (s *TokenService) IssueAccessToken(userID int) (string, error) {
	return s.issue(userID, s.accessSecret, s.accessTTL)
}

// IssueRefreshToken signs a long-lived token against the refresh secret.
func (s *TokenService) IssueRefreshToken(userID int) (string, error) {
	return s.issue(userID, s.refreshSecret, s.refreshTTL)
}

func (s *TokenService) issue(userID int, secret []byte, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   strconv.Itoa(userID),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

// VerifyAccess validates an access token and returns the embedded user id.
func (s *TokenService) VerifyAccess(token string) (int, error) {
	return verify(token, s.accessSecret)
}

// VerifyRefresh validates a refresh token and returns the embedded user id.
func (s *TokenService) VerifyRefresh(token string) (int, error) {
	return verify(token, s.refreshSecret)
}

func verify(token string, secret []byte) (int, error) {
	if token == "" {
		return 0, ErrTokenMissing
	}

	parsed, err := jwt.Parse(token, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrTokenMalformed
		}
		return secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return 0, ErrTokenExpired
		}
		return 0, ErrTokenMalformed
	}
	if !parsed.Valid {
		return 0, ErrTokenMalformed
	}

	sub, err := parsed.Claims.GetSubject()
	if err != nil || sub == "" {
		return 0, ErrTokenMalformed
	}
	userID, err := strconv.Atoi(sub)
	if err != nil || userID <= 0 {
		return 0, ErrTokenMalformed
	}
	return userID, nil
}
