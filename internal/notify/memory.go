// Package notify implements alarm delivery backends.
package notify

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"studalarm/internal/alarm"
)

// Scheduled is a notification held by Memory.
type Scheduled struct {
	Handle  string        `json:"handle"`
	FireAt  time.Time     `json:"fireAt"`
	Payload alarm.Payload `json:"payload"`
}

// Memory keeps notifications in a map. Nothing is ever delivered; Fire
// simulates delivery. Used headless and in tests.
type Memory struct {
	mu      sync.Mutex
	granted bool
	asked   int
	pending map[string]Scheduled
}

func NewMemory(granted bool) *Memory {
	return &Memory{granted: granted, pending: make(map[string]Scheduled)}
}

func (m *Memory) RequestPermission(context.Context) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.asked++
	return m.granted, nil
}

func (m *Memory) ScheduleAt(_ context.Context, fireAt time.Time, p alarm.Payload) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	h := uuid.NewString()
	m.pending[h] = Scheduled{Handle: h, FireAt: fireAt, Payload: p}
	return h, nil
}

func (m *Memory) Cancel(_ context.Context, handle string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.pending, handle)
	return nil
}

func (m *Memory) ListPending(context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.pending))
	for h := range m.pending {
		out = append(out, h)
	}
	sort.Strings(out)
	return out, nil
}

// Fire removes a pending notification as if it had been delivered.
func (m *Memory) Fire(handle string) (Scheduled, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.pending[handle]
	delete(m.pending, handle)
	return s, ok
}

// Snapshot returns the pending notifications ordered by fire time.
func (m *Memory) Snapshot() []Scheduled {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Scheduled, 0, len(m.pending))
	for _, s := range m.pending {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FireAt.Before(out[j].FireAt) })
	return out
}

// PermissionRequests counts RequestPermission calls.
func (m *Memory) PermissionRequests() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.asked
}

// Close implements io.Closer for symmetry with Desktop.
func (m *Memory) Close() error { return nil }
