package sessions

import (
	"sync"

	"github.com/haasonsaas/claudebridge/pkg/models"
)

// MemoryStore is a process-lifetime Store. Entries are never evicted and are
// lost on restart, which starts every thread with fresh context.
type MemoryStore struct {
	mu     sync.RWMutex
	tokens map[models.ThreadKey]string
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tokens: map[models.ThreadKey]string{},
	}
}

func (m *MemoryStore) Get(key models.ThreadKey) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	token, ok := m.tokens[key]
	return token, ok
}

func (m *MemoryStore) SetIfAbsent(key models.ThreadKey, token string) bool {
	if token == "" || key.IsZero() {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.tokens[key]; exists {
		return false
	}
	m.tokens[key] = token
	return true
}

func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.tokens)
}

var _ Store = (*MemoryStore)(nil)
