package store

import (
	"context"
	"fmt"
	"strings"

	"studalarm/internal/model"
)

// SettingsRepo loads user settings, filling gaps from defaults.
type SettingsRepo struct {
	kv       KV
	defaults model.Settings
}

func NewSettingsRepo(kv KV, defaults model.Settings) *SettingsRepo {
	return &SettingsRepo{kv: kv, defaults: defaults}
}

func (r *SettingsRepo) Defaults() model.Settings { return r.defaults }

// Load returns the stored settings. Missing or non-positive numbers and a
// blank group fall back to defaults.
func (r *SettingsRepo) Load(ctx context.Context) (model.Settings, error) {
	s := r.defaults
	var stored model.Settings
	found, err := r.kv.Get(ctx, KeySettings, &stored)
	if err != nil {
		return s, fmt.Errorf("load settings: %w", err)
	}
	if !found {
		return s, nil
	}
	if g := strings.TrimSpace(stored.GroupID); g != "" {
		s.GroupID = g
	}
	if stored.RoutineMinutes > 0 {
		s.RoutineMinutes = stored.RoutineMinutes
	}
	if stored.BufferMinutes >= 0 {
		s.BufferMinutes = stored.BufferMinutes
	}
	if stored.DefaultTravelMinutes > 0 {
		s.DefaultTravelMinutes = stored.DefaultTravelMinutes
	}
	s.HomeAddress = stored.HomeAddress
	s.TransportMode = stored.TransportMode
	s.City = stored.City
	return s, nil
}

type settingsInput struct {
	GroupID              string `validate:"max=32"`
	RoutineMinutes       int    `validate:"min=0,max=600"`
	BufferMinutes        int    `validate:"min=0,max=600"`
	DefaultTravelMinutes int    `validate:"min=0,max=600"`
	TransportMode        string `validate:"omitempty,oneof=public car walk bike"`
}

func (r *SettingsRepo) Save(ctx context.Context, s model.Settings) error {
	s.GroupID = strings.TrimSpace(s.GroupID)
	if err := check(settingsInput{
		GroupID:              s.GroupID,
		RoutineMinutes:       s.RoutineMinutes,
		BufferMinutes:        s.BufferMinutes,
		DefaultTravelMinutes: s.DefaultTravelMinutes,
		TransportMode:        s.TransportMode,
	}); err != nil {
		return err
	}
	if err := r.kv.Set(ctx, KeySettings, s); err != nil {
		return fmt.Errorf("save settings: %w", err)
	}
	return nil
}

// TravelTimes maps address or campus ids to travel minutes.
type TravelTimes struct {
	kv KV
}

func NewTravelTimes(kv KV) *TravelTimes {
	return &TravelTimes{kv: kv}
}

func (t *TravelTimes) All(ctx context.Context) (map[string]int, error) {
	m := map[string]int{}
	if _, err := t.kv.Get(ctx, KeyTravelTimes, &m); err != nil {
		return nil, fmt.Errorf("load travel times: %w", err)
	}
	if m == nil {
		m = map[string]int{}
	}
	return m, nil
}

// Get returns the minutes for id and whether an entry exists.
func (t *TravelTimes) Get(ctx context.Context, id string) (int, bool, error) {
	m, err := t.All(ctx)
	if err != nil {
		return 0, false, err
	}
	v, ok := m[id]
	return v, ok, nil
}

func (t *TravelTimes) Set(ctx context.Context, id string, minutes int) error {
	id = strings.TrimSpace(id)
	if id == "" || minutes < 0 || minutes > 600 {
		return fmt.Errorf("%w: travel time for %q must be 0..600 minutes", ErrInvalid, id)
	}
	m, err := t.All(ctx)
	if err != nil {
		return err
	}
	m[id] = minutes
	if err := t.kv.Set(ctx, KeyTravelTimes, m); err != nil {
		return fmt.Errorf("save travel times: %w", err)
	}
	return nil
}
