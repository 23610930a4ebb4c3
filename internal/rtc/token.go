package rtc

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// RoomGrant is the provider-side authorization embedded in a room token:
// which room the holder may join, as whom, and whether they may publish.
type RoomGrant struct {
	Room       string `json:"room"`
	Identity   string `json:"identity"`
	CanPublish bool   `json:"can_publish"`
}

type roomClaims struct {
	Grant RoomGrant `json:"grant"`
	jwt.RegisteredClaims
}

// TokenService mints short-lived HS256 room credentials for the real-time
// provider. The API key is the token issuer; the provider validates the
// signature with the shared API secret.
type TokenService struct {
	apiKey    string
	apiSecret []byte
	ttl       time.Duration
}

// NewTokenService creates a room token service.
func NewTokenService(apiKey, apiSecret string, ttlHours int) *TokenService {
	if ttlHours <= 0 {
		ttlHours = 6
	}
	return &TokenService{
		apiKey:    apiKey,
		apiSecret: []byte(apiSecret),
		ttl:       time.Duration(ttlHours) * time.Hour,
	}
}

// Mint generates a room credential for (room, identity).
// canPublish should be true for hosts and false for attendees.
func (s *TokenService) Mint(room, identity string, canPublish bool) (string, error) {
	if s.apiKey == "" || len(s.apiSecret) == 0 {
		return "", fmt.Errorf("rtc: api key and secret required")
	}
	if room == "" || identity == "" {
		return "", fmt.Errorf("rtc: room and identity required")
	}
	now := time.Now()
	claims := roomClaims{
		Grant: RoomGrant{Room: room, Identity: identity, CanPublish: canPublish},
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.apiKey,
			Subject:   identity,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.apiSecret)
}

// Verify parses a room credential and returns its grant. Used in tests and
// by tooling; the provider does the authoritative check in production.
func (s *TokenService) Verify(tokenString string) (*RoomGrant, error) {
	token, err := jwt.ParseWithClaims(tokenString, &roomClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("rtc: unexpected signing method %v", t.Header["alg"])
		}
		return s.apiSecret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("rtc: parse token: %w", err)
	}
	claims, ok := token.Claims.(*roomClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("rtc: invalid token")
	}
	return &claims.Grant, nil
}
