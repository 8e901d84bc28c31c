package session

import (
	"context"

	"golang.org/x/oauth2"
)

type storeTokenSource struct {
	ctx   context.Context
	store *Store
}

// TokenSource exposes the session as an oauth2.TokenSource for Google API clients.
// A stale session is renewed when a token is requested.
func (s *Store) TokenSource(ctx context.Context) oauth2.TokenSource {
	return &storeTokenSource{ctx: ctx, store: s}
}

func (ts *storeTokenSource) Token() (*oauth2.Token, error) {
	access, expiry, err := ts.store.credential(ts.ctx)
	if err != nil {
		return nil, err
	}
	return &oauth2.Token{
		AccessToken: access,
		TokenType:   "Bearer",
		Expiry:      expiry,
	}, nil
}
