package middleware

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/ruralpay/ledger/internal/config"
	"github.com/ruralpay/ledger/internal/models"
)

// Claims are carried in every access token.
type Claims struct {
	AccountID int64       `json:"user_id"`
	Role      models.Role `json:"role"`
	jwt.RegisteredClaims
}

// TokenManager issues and verifies HS256 access tokens.
type TokenManager struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

func NewTokenManager(cfg config.JWTConfig) *TokenManager {
	return &TokenManager{
		secret: []byte(cfg.SecretKey),
		issuer: cfg.Issuer,
		ttl:    cfg.Expiry,
		now:    time.Now,
	}
}

// Generate issues a signed token for acc and returns it with its expiry.
func (t *TokenManager) Generate(acc models.Account) (string, time.Time, error) {
	now := t.now()
	expires := now.Add(t.ttl)
	claims := Claims{
		AccountID: acc.ID,
		Role:      acc.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    t.issuer,
			Subject:   fmt.Sprintf("%d", acc.ID),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expires, nil
}

// Parse verifies signature, issuer and expiry and returns the claims.
func (t *TokenManager) Parse(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return t.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(t.issuer),
		jwt.WithTimeFunc(t.now),
	)
	if err != nil {
		return nil, err
	}
	if !token.Valid || claims.AccountID <= 0 || claims.ID == "" {
		return nil, errors.New("invalid token claims")
	}
	return claims, nil
}

// TokenRevoker keeps a Redis blacklist of logged-out token IDs. With a nil
// client revocation is disabled and every token is treated as live.
type TokenRevoker struct {
	redis *redis.Client
}

func NewTokenRevoker(rdb *redis.Client) *TokenRevoker {
	return &TokenRevoker{redis: rdb}
}

func blacklistKey(tokenID string) string {
	return "blacklist:" + tokenID
}

// Revoke blacklists tokenID for ttl, the remaining lifetime of the token.
func (r *TokenRevoker) Revoke(ctx context.Context, tokenID string, ttl time.Duration) error {
	if r.redis == nil {
		log.Printf("[AUTH] redis unavailable, token %s not revoked", tokenID)
		return nil
	}
	if ttl <= 0 {
		return nil
	}
	return r.redis.Set(ctx, blacklistKey(tokenID), "1", ttl).Err()
}

func (r *TokenRevoker) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	if r.redis == nil {
		return false, nil
	}
	n, err := r.redis.Exists(ctx, blacklistKey(tokenID)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
