package providerfake

import (
	"context"
	"sync"

	"github.com/jrsteele09/korebog/session"
)

var (
	_ session.Renewer = (*FakeProvider)(nil)
	_ session.Revoker = (*FakeProvider)(nil)
)

// FakeProvider is a scripted identity provider.
type FakeProvider struct {
	lock sync.Mutex

	Grant     session.Grant
	RenewErr  error
	RevokeErr error

	// Block, when set, is waited on (or ctx) before Renew answers.
	Block chan struct{}

	Hints   []session.RenewHint
	Revoked []string
}

func NewFakeProvider(grant session.Grant) *FakeProvider {
	return &FakeProvider{Grant: grant}
}

func (p *FakeProvider) Renew(ctx context.Context, hint session.RenewHint) (session.Grant, error) {
	p.lock.Lock()
	p.Hints = append(p.Hints, hint)
	block := p.Block
	p.lock.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return session.Grant{}, ctx.Err()
		}
	}

	p.lock.Lock()
	defer p.lock.Unlock()
	if p.RenewErr != nil {
		return session.Grant{}, p.RenewErr
	}
	return p.Grant, nil
}

func (p *FakeProvider) Revoke(_ context.Context, token string) error {
	p.lock.Lock()
	defer p.lock.Unlock()
	p.Revoked = append(p.Revoked, token)
	return p.RevokeErr
}

// RenewCalls returns how many renewals were requested.
func (p *FakeProvider) RenewCalls() int {
	p.lock.Lock()
	defer p.lock.Unlock()
	return len(p.Hints)
}
