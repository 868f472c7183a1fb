// Package auth provides the JWT auth gate. Tokens are signed with HS256 and
// persisted through the storage port, so deleting a token's row revokes it
// even before it expires.
package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/iklobato/lightapi/domain/model"
	"github.com/iklobato/lightapi/domain/rest"
	"github.com/iklobato/lightapi/ports"
)

// Claims represents the JWT claims carried by issued tokens.
type Claims struct {
	UserID string `json:"user_id"`
	jwt.RegisteredClaims
}

// TokenDescriptor describes the resource holding issued tokens.
func TokenDescriptor() *model.Descriptor {
	return &model.Descriptor{
		Name: "tokens",
		Fields: []model.Field{
			{Name: "id", Type: model.Integer},
			{Name: "token", Type: model.Text, Unique: true},
			{Name: "user_id", Type: model.Text},
			{Name: "created_at", Type: model.Timestamp},
		},
		PrimaryKey: "id",
	}
}

// UserDescriptor describes the resource holding user accounts.
func UserDescriptor() *model.Descriptor {
	return &model.Descriptor{
		Name: "users",
		Fields: []model.Field{
			{Name: "id", Type: model.Integer},
			{Name: "username", Type: model.Text, Unique: true},
			{Name: "password_hash", Type: model.Text},
		},
		PrimaryKey: "id",
	}
}

// TokenService issues and validates JWT tokens. Thread-safe.
type TokenService struct {
	secret     []byte
	expiration time.Duration
	clock      ports.Clock
	store      ports.Storage
	tokens     *model.Descriptor
}

// NewTokenService creates a token service bound to a storage backend.
// If secret is empty, a random per-run secret is generated, so a restart
// invalidates all previously issued tokens.
func NewTokenService(ctx context.Context, secret string, expiration time.Duration, store ports.Storage, clk ports.Clock) (*TokenService, error) {
	var secretBytes []byte
	if secret == "" {
		secretBytes = make([]byte, 32)
		rand.Read(secretBytes)
	} else {
		secretBytes = []byte(secret)
	}
	if expiration == 0 {
		expiration = time.Hour
	}
	s := &TokenService{
		secret:     secretBytes,
		expiration: expiration,
		clock:      clk,
		store:      store,
		tokens:     TokenDescriptor(),
	}
	if err := store.Bind(ctx, s.tokens); err != nil {
		return nil, err
	}
	return s, nil
}

// Issue creates a signed token for userID and records it in the store.
func (s *TokenService) Issue(ctx context.Context, userID string) (string, time.Time, error) {
	now := s.clock.Now().UTC()
	expiresAt := now.Add(s.expiration)

	claims := Claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, err
	}

	_, err = s.store.Insert(ctx, s.tokens, model.Record{
		"token":      signed,
		"user_id":    userID,
		"created_at": now,
	})
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// Validate checks the signature and expiry, then requires the token to still
// exist in the store.
func (s *TokenService) Validate(ctx context.Context, tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(func() time.Time { return s.clock.Now() }))
	if err != nil {
		return nil, rest.ErrUnauthorized
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, rest.ErrUnauthorized
	}

	rec, err := s.find(ctx, tokenString)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, rest.ErrUnauthorized
	}
	return claims, nil
}

// Revoke deletes the token's row, invalidating it immediately.
func (s *TokenService) Revoke(ctx context.Context, tokenString string) error {
	rec, err := s.find(ctx, tokenString)
	if err != nil {
		return err
	}
	if rec == nil {
		return rest.ErrNotFound
	}
	_, err = s.store.Delete(ctx, s.tokens, rec["id"])
	return err
}

// Authenticate implements ports.Authenticator against the Authorization
// header (Bearer scheme).
func (s *TokenService) Authenticate(ctx context.Context, req rest.Request) (string, error) {
	raw := req.Headers["Authorization"]
	tokenString, ok := strings.CutPrefix(raw, "Bearer ")
	if !ok || tokenString == "" {
		return "", rest.ErrUnauthorized
	}
	claims, err := s.Validate(ctx, tokenString)
	if err != nil {
		return "", err
	}
	return claims.UserID, nil
}

// find scans the token table. The storage port only contracts key lookup and
// full retrieval, so revocation checks pay a linear scan.
func (s *TokenService) find(ctx context.Context, tokenString string) (model.Record, error) {
	recs, err := s.store.List(ctx, s.tokens)
	if err != nil {
		return nil, err
	}
	for _, rec := range recs {
		if rec["token"] == tokenString {
			return rec, nil
		}
	}
	return nil, nil
}

// GenerateSecret generates a random secret suitable for JWT signing.
func GenerateSecret() string {
	b := make([]byte, 32)
	rand.Read(b)
	return hex.EncodeToString(b)
}

// Ensure interface compliance.
var _ ports.Authenticator = (*TokenService)(nil)
