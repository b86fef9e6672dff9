// Package credential keeps the user's bearer token in session storage and
// serves it to HTTP clients as an oauth2.TokenSource.
package credential

import (
	"context"
	"strings"

	"golang.org/x/oauth2"

	"registrar/internal/domain"
)

const DefaultKey = "registrar.credential"

type Keeper struct {
	storage domain.SessionStorage
	key     string
}

var _ oauth2.TokenSource = (*Keeper)(nil)

func NewKeeper(storage domain.SessionStorage, key string) *Keeper {
	if key == "" {
		key = DefaultKey
	}
	return &Keeper{storage: storage, key: key}
}

func (k *Keeper) Set(ctx context.Context, token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return domain.Validation("empty credential")
	}
	return k.storage.Set(ctx, k.key, token)
}

// Get returns the stored token, or ok=false when none is stored.
func (k *Keeper) Get(ctx context.Context) (string, bool, error) {
	return k.storage.Get(ctx, k.key)
}

func (k *Keeper) Forget(ctx context.Context) error {
	return k.storage.Delete(ctx, k.key)
}

// Token implements oauth2.TokenSource. A missing credential is an ErrAuth so
// callers re-prompt instead of treating it as a transport failure.
func (k *Keeper) Token() (*oauth2.Token, error) {
	token, ok, err := k.storage.Get(context.Background(), k.key)
	if err != nil {
		return nil, err
	}
	if !ok || token == "" {
		return nil, domain.NewError(domain.ErrAuth, nil, "no credential stored")
	}
	return &oauth2.Token{AccessToken: token, TokenType: "Bearer"}, nil
}
