package identity

import (
	"context"
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// Identity is the signed-in user as the sync core sees it. ID is an
// opaque stable key owned by the auth provider.
type Identity struct {
	ID    string
	Email string
}

// Source exposes the current signed-in identity. Session controllers
// take one explicitly instead of reading ambient auth state.
type Source interface {
	Current(ctx context.Context) (Identity, error)
}

// Static is a fixed identity, used by tests and dev mode.
type Static struct {
	Identity Identity
}

func (s Static) Current(context.Context) (Identity, error) {
	return s.Identity, nil
}

var ErrInvalidToken = errors.New("invalid token")

// TokenSource validates HS256 bearer tokens into identities. The
// harness uses it so remote clients can present the auth provider's
// token instead of a raw id.
type TokenSource struct {
	secret []byte
}

func NewTokenSource(secret string) *TokenSource {
	return &TokenSource{secret: []byte(secret)}
}

func (t *TokenSource) Parse(tokenStr string) (Identity, error) {
	token, err := jwt.Parse(tokenStr, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return t.secret, nil
	})
	if err != nil || !token.Valid {
		return Identity{}, ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return Identity{}, ErrInvalidToken
	}
	sub, _ := claims["sub"].(string)
	if sub == "" {
		return Identity{}, ErrInvalidToken
	}
	email, _ := claims["email"].(string)
	return Identity{ID: sub, Email: email}, nil
}

// Sign issues a token for id, the inverse of Parse. Dev mode uses it
// to hand browsers a token without a real auth provider.
func (t *TokenSource) Sign(id Identity) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":   id.ID,
		"email": id.Email,
	})
	return token.SignedString(t.secret)
}
