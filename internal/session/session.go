package session

import (
	"context"
	"sync"

	"storefront/backend/internal/domain"
	"storefront/backend/internal/xid"
)

// Store keeps the cart state of each browser session. It gives no
// transactional guarantees: concurrent writers to the same session are last
// writer wins.
type Store interface {
	Load(ctx context.Context, sessionID string) (domain.SessionState, error)
	Save(ctx context.Context, sessionID string, state domain.SessionState) error
}

func NewID() string {
	return xid.New()
}

// Normalize fills defaults so callers never deal with nil carts.
func Normalize(state domain.SessionState) domain.SessionState {
	if state.Cart == nil {
		state.Cart = []domain.CartLine{}
	}
	return state
}

type Memory struct {
	mu       sync.RWMutex
	sessions map[string]domain.SessionState
}

func NewMemory() *Memory {
	return &Memory{sessions: make(map[string]domain.SessionState)}
}

func (m *Memory) Load(_ context.Context, sessionID string) (domain.SessionState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return Normalize(clone(m.sessions[sessionID])), nil
}

func (m *Memory) Save(_ context.Context, sessionID string, state domain.SessionState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[sessionID] = clone(state)
	return nil
}

func clone(state domain.SessionState) domain.SessionState {
	out := state
	if state.Cart != nil {
		out.Cart = append([]domain.CartLine(nil), state.Cart...)
	}
	if state.Address != nil {
		addr := *state.Address
		out.Address = &addr
	}
	return out
}
