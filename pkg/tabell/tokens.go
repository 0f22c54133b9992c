package tabell

import "sync"

// MemoryTokenSource keeps the token in memory only. Useful for tests
// and for callers that manage persistence themselves.
type MemoryTokenSource struct {
	mu    sync.Mutex
	token string
}

func NewMemoryTokenSource(token string) *MemoryTokenSource {
	return &MemoryTokenSource{token: token}
}

func (m *MemoryTokenSource) Token() (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.token, nil
}

func (m *MemoryTokenSource) SetToken(token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.token = token

	return nil
}

func (m *MemoryTokenSource) Clear() error {
	return m.SetToken("")
}
