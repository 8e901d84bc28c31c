package identity

import (
	"sync"
	"time"

	"github.com/pkg/errors"
)

// FlowState is what a pending login must remember between the redirect and the callback.
type FlowState struct {
	CodeVerifier string
	Nonce        string
	LoginHint    string
	CreatedAt    time.Time
}

// FlowRepo stores pending login flows keyed by the OAuth state parameter.
type FlowRepo interface {
	Upsert(state string, flow *FlowState) error
	Get(state string) (*FlowState, error)
	Delete(state string) error
	// Purge drops flows created before cutoff and returns how many went.
	Purge(cutoff time.Time) int
}

// InMemoryFlowRepo is a thread-safe in-memory implementation of FlowRepo
type InMemoryFlowRepo struct {
	mu     sync.RWMutex
	states map[string]*FlowState
}

func NewInMemoryFlowRepo() *InMemoryFlowRepo {
	return &InMemoryFlowRepo{
		states: make(map[string]*FlowState),
	}
}

func (r *InMemoryFlowRepo) Upsert(state string, flow *FlowState) error {
	if state == "" {
		return errors.New("state cannot be empty")
	}
	if flow == nil {
		return errors.New("flow cannot be nil")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	copied := *flow
	r.states[state] = &copied
	return nil
}

func (r *InMemoryFlowRepo) Get(state string) (*FlowState, error) {
	if state == "" {
		return nil, errors.New("state cannot be empty")
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	flow, exists := r.states[state]
	if !exists {
		return nil, errors.New("state not found")
	}
	copied := *flow
	return &copied, nil
}

func (r *InMemoryFlowRepo) Delete(state string) error {
	if state == "" {
		return errors.New("state cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.states, state)
	return nil
}

func (r *InMemoryFlowRepo) Purge(cutoff time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for state, flow := range r.states {
		if flow.CreatedAt.Before(cutoff) {
			delete(r.states, state)
			n++
		}
	}
	return n
}
