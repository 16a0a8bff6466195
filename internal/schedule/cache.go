package schedule

import (
	"context"
	"encoding/json"
	"time"

	"studalarm/internal/model"
)

// CacheKey is the storage key of the cached parsed schedule.
const CacheKey = "cached_schedule"

// Storage is the subset of the key-value store the cache needs. Get
// decodes the stored JSON into dst.
type Storage interface {
	Get(ctx context.Context, key string, dst any) (bool, error)
	Set(ctx context.Context, key string, value any) error
	Remove(ctx context.Context, key string) error
}

type cacheEnvelope struct {
	Schedule  Schedule `json:"schedule"`
	Timestamp int64    `json:"timestamp"` // unix milliseconds
}

// Cache stores the last parsed schedule with its fetch time.
type Cache struct {
	kv  Storage
	ttl time.Duration
	now func() time.Time
}

// NewCache creates a cache; ttl <= 0 means 24 hours.
func NewCache(kv Storage, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Cache{kv: kv, ttl: ttl, now: time.Now}
}

// Load returns the cached schedule and whether it is still fresh. Entries
// written in the legacy bare form are returned but always reported stale.
func (c *Cache) Load(ctx context.Context) (s Schedule, fresh bool, found bool, err error) {
	var blob json.RawMessage
	ok, err := c.kv.Get(ctx, CacheKey, &blob)
	if err != nil || !ok {
		return Schedule{}, false, false, err
	}

	var probe map[string]json.RawMessage
	if err := json.Unmarshal(blob, &probe); err != nil {
		// Unreadable entry: behave as a cache miss.
		return Schedule{}, false, false, nil
	}

	if _, hasSchedule := probe["schedule"]; hasSchedule {
		if _, hasTS := probe["timestamp"]; hasTS {
			var env cacheEnvelope
			if err := json.Unmarshal(blob, &env); err != nil {
				return Schedule{}, false, false, nil
			}
			env.Schedule.normalize()
			age := c.now().Sub(time.UnixMilli(env.Timestamp))
			return env.Schedule, age >= 0 && age < c.ttl, true, nil
		}
	}

	return legacySchedule(blob, probe), false, true, nil
}

// Save stores s stamped with the current time.
func (c *Cache) Save(ctx context.Context, s Schedule) error {
	s.normalize()
	return c.kv.Set(ctx, CacheKey, cacheEnvelope{Schedule: s, Timestamp: c.now().UnixMilli()})
}

// Clear drops the cached schedule, e.g. after a group change.
func (c *Cache) Clear(ctx context.Context) error {
	return c.kv.Remove(ctx, CacheKey)
}

// legacySchedule accepts either a bare Schedule object or the older
// weekday-keyed lesson map.
func legacySchedule(blob json.RawMessage, probe map[string]json.RawMessage) Schedule {
	if _, ok := probe["days"]; ok {
		var s Schedule
		if json.Unmarshal(blob, &s) == nil {
			s.normalize()
			return s
		}
	}
	out := Empty()
	for k, v := range probe {
		wd, _, ok := bucketFor(k)
		if !ok {
			continue
		}
		var ls []model.Lesson
		if json.Unmarshal(v, &ls) != nil {
			continue
		}
		out.Days[wd] = append(out.Days[wd], ls...)
	}
	return out
}

func (s *Schedule) normalize() {
	if s.Days == nil {
		s.Days = map[int][]model.Lesson{}
	}
	if s.SessionDates == nil {
		s.SessionDates = []string{}
	}
}
