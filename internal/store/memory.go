package store

import (
	"context"
	"sync"
)

// Persisted session keys. Every backend stores exactly these two.
const (
	KeyToken = "token"
	KeyUser  = "user"
)

// Memory is a process-local session backend for tests and throwaway runs.
type Memory struct {
	mu    sync.Mutex
	token string
	user  []byte
	fail  error
}

// NewMemory returns an empty in-memory backend.
func NewMemory() *Memory {
	return &Memory{}
}

func (m *Memory) Write(_ context.Context, token string, user []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return m.fail
	}
	m.token = token
	m.user = append([]byte(nil), user...)
	return nil
}

func (m *Memory) Read(_ context.Context) (string, []byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return "", nil, m.fail
	}
	return m.token, append([]byte(nil), m.user...), nil
}

func (m *Memory) Delete(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return m.fail
	}
	m.token = ""
	m.user = nil
	return nil
}

// SetFail makes every following operation return err until reset with nil.
func (m *Memory) SetFail(err error) {
	m.mu.Lock()
	m.fail = err
	m.mu.Unlock()
}

func (m *Memory) Close() error { return nil }
