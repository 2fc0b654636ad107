// Package identity supplies the user an exam session acts for.
package identity

import (
	"context"
	"errors"
	"fmt"

	"github.com/stemsi/exam-portal/internal/model"
)

// ErrUnauthenticated means no identity could be confirmed.
var ErrUnauthenticated = errors.New("user is not authenticated")

// Provider returns the current user or ErrUnauthenticated.
type Provider interface {
	CurrentUser(ctx context.Context) (model.User, error)
}

// Verifier turns a bearer token into a confirmed user.
type Verifier interface {
	Verify(ctx context.Context, token string) (model.User, error)
}

// TokenProvider confirms the user behind a bearer token on every call, so a
// session reset by an administrator is noticed on the next check.
type TokenProvider struct {
	verifier Verifier
	token    string
}

// NewTokenProvider creates a TokenProvider for token.
func NewTokenProvider(verifier Verifier, token string) *TokenProvider {
	return &TokenProvider{verifier: verifier, token: token}
}

func (p *TokenProvider) CurrentUser(ctx context.Context) (model.User, error) {
	if p.token == "" {
		return model.User{}, ErrUnauthenticated
	}
	u, err := p.verifier.Verify(ctx, p.token)
	if err != nil {
		return model.User{}, fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}
	return u, nil
}

// Static always answers with the same user or error.
type Static struct {
	User model.User
	Err  error
}

func (s Static) CurrentUser(ctx context.Context) (model.User, error) {
	if s.Err != nil {
		return model.User{}, s.Err
	}
	if s.User.ID == "" {
		return model.User{}, ErrUnauthenticated
	}
	return s.User, nil
}
