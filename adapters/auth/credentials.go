package auth

import (
	"context"
	"time"

	"github.com/iklobato/lightapi/domain/model"
	"github.com/iklobato/lightapi/domain/rest"
	"github.com/iklobato/lightapi/ports"
)

// Credentials manages user accounts (username + hashed password) over the
// storage port and exchanges valid logins for tokens.
type Credentials struct {
	store  ports.Storage
	hasher ports.Hasher
	tokens *TokenService
	users  *model.Descriptor
}

// NewCredentials creates the credentials helper and prepares the users
// resource in the backend.
func NewCredentials(ctx context.Context, store ports.Storage, h ports.Hasher, tokens *TokenService) (*Credentials, error) {
	c := &Credentials{
		store:  store,
		hasher: h,
		tokens: tokens,
		users:  UserDescriptor(),
	}
	if err := store.Bind(ctx, c.users); err != nil {
		return nil, err
	}
	return c, nil
}

// Register creates a user account. A taken username surfaces as a
// ConstraintViolation from the store.
func (c *Credentials) Register(ctx context.Context, username, password string) (model.Record, error) {
	if username == "" {
		return nil, rest.Validationf("username", "required field missing")
	}
	if password == "" {
		return nil, rest.Validationf("password", "required field missing")
	}
	hash, err := c.hasher.Hash(password)
	if err != nil {
		return nil, err
	}
	rec, err := c.store.Insert(ctx, c.users, model.Record{
		"username":      username,
		"password_hash": string(hash),
	})
	if err != nil {
		return nil, err
	}
	delete(rec, "password_hash")
	return rec, nil
}

// Login verifies the password and issues a token for the account.
func (c *Credentials) Login(ctx context.Context, username, password string) (string, time.Time, error) {
	recs, err := c.store.List(ctx, c.users)
	if err != nil {
		return "", time.Time{}, err
	}
	for _, rec := range recs {
		if rec["username"] != username {
			continue
		}
		hash, _ := rec["password_hash"].(string)
		if !c.hasher.Compare([]byte(hash), password) {
			break
		}
		return c.tokens.Issue(ctx, username)
	}
	return "", time.Time{}, rest.ErrUnauthorized
}
