// Package store persists application state as JSON values under string
// keys, plus typed repositories on top of that contract.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
)

// Storage keys.
const (
	KeySettings      = "app_settings"
	KeySchedule      = "cached_schedule"
	KeyReminders     = "app_reminders"
	KeyCustomLessons = "custom_lessons"
	KeyAddresses     = "addresses"
	KeyTravelTimes   = "travel_times"
	KeyAlarm         = "scheduled_alarm"
	KeyWeather       = "last_weather"
)

var (
	ErrNotFound = errors.New("store: not found")
	ErrInvalid  = errors.New("store: invalid input")
)

// KV stores JSON-encodable values. Get decodes into dst and reports whether
// the key existed.
type KV interface {
	Get(ctx context.Context, key string, dst any) (bool, error)
	Set(ctx context.Context, key string, value any) error
	Remove(ctx context.Context, key string) error
	Close() error
}

// Memory is a process-local KV. Values are stored encoded so callers never
// share memory with the store.
type Memory struct {
	mu   sync.RWMutex
	data map[string][]byte
}

func NewMemory() *Memory {
	return &Memory{data: make(map[string][]byte)}
}

func (m *Memory) Get(ctx context.Context, key string, dst any) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	m.mu.RLock()
	b, ok := m.data[key]
	m.mu.RUnlock()
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(b, dst)
}

func (m *Memory) Set(ctx context.Context, key string, value any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.data[key] = b
	m.mu.Unlock()
	return nil
}

func (m *Memory) Remove(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	delete(m.data, key)
	m.mu.Unlock()
	return nil
}

func (m *Memory) Close() error { return nil }
