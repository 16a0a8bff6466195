// Package app runs the refresh cycle: load the schedule, collect every
// event source, pick the nearest alarm and hand it to the scheduler.
package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"studalarm/internal/alarm"
	appLog "studalarm/internal/log"
	"studalarm/internal/model"
	"studalarm/internal/schedule"
	"studalarm/internal/store"
	"studalarm/internal/travel"
	"studalarm/internal/weather"
)

// ErrSuperseded is returned by a refresh whose result was discarded because
// a newer refresh started meanwhile.
var ErrSuperseded = errors.New("refresh superseded by a newer one")

// Fetcher is the schedule source.
type Fetcher interface {
	Fetch(ctx context.Context, group string) (schedule.Raw, error)
}

// Deps wires a Service.
type Deps struct {
	Fetcher     Fetcher
	KV          store.KV
	Cache       *schedule.Cache
	Settings    *store.SettingsRepo
	Reminders   *store.Reminders
	Lessons     *store.CustomLessons
	TravelTimes *store.TravelTimes
	Scheduler   *alarm.Scheduler
	Weather     weather.Provider

	Rules        travel.Rules
	Slots        schedule.SlotTable
	Excluded     []string
	HorizonWeeks int
	Location     *time.Location
	// Now overrides the clock, mainly for tests.
	Now func() time.Time
}

// Result is the published outcome of the latest refresh.
type Result struct {
	Status     alarm.Status     `json:"status"`
	Reason     string           `json:"reason,omitempty"`
	Candidate  *model.Candidate `json:"candidate,omitempty"`
	Breakdown  *alarm.Breakdown `json:"breakdown,omitempty"`
	Countdown  *alarm.Countdown `json:"countdown,omitempty"`
	Day        string           `json:"day,omitempty"`
	Handle     string           `json:"handle,omitempty"`
	Candidates int              `json:"candidates"`
	Source     string           `json:"scheduleSource,omitempty"`
	ComputedAt time.Time        `json:"computedAt"`
}

// Reasons reported with Idle/NoData/Failed results.
const (
	ReasonNoEvents   = "нет предстоящих занятий"
	ReasonInactive   = "будильник неактивен"
	ReasonNoSources  = "не указана группа и нет своих событий"
	ReasonFetchError = "не удалось загрузить расписание"
)

type Service struct {
	d   Deps
	gen atomic.Uint64

	mu   sync.RWMutex
	last Result
}

func NewService(d Deps) *Service {
	if d.Location == nil {
		d.Location = time.Local
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.Weather == nil {
		d.Weather = weather.NewMockProvider()
	}
	return &Service{d: d, last: Result{Status: alarm.StatusNoData}}
}

func (s *Service) now() time.Time { return s.d.Now().In(s.d.Location) }

// Last returns the most recently published result.
func (s *Service) Last() Result {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.last
}

func (s *Service) publish(gen uint64, r Result) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen.Load() != gen {
		return false
	}
	s.last = r
	return true
}

// snapshot is one consistent read of every input.
type snapshot struct {
	settings  model.Settings
	schedule  schedule.Schedule
	source    string
	custom    []model.CustomLesson
	reminders []model.Reminder
	resolver  *travel.Resolver
}

// Schedule returns the parsed schedule of the configured group, cache first.
func (s *Service) Schedule(ctx context.Context, force bool) (schedule.Schedule, string, error) {
	st, err := s.d.Settings.Load(ctx)
	if err != nil {
		return schedule.Schedule{}, "", err
	}
	return s.loadSchedule(ctx, st.GroupID, force)
}

func (s *Service) loadSchedule(ctx context.Context, group string, force bool) (schedule.Schedule, string, error) {
	group = strings.TrimSpace(group)
	if group == "" {
		return schedule.Empty(), "none", nil
	}

	if !force {
		cached, fresh, found, err := s.d.Cache.Load(ctx)
		if err != nil {
			appLog.Error("schedule cache read failed", err)
		}
		if found && fresh {
			return cached, "cache", nil
		}
	}

	raw, err := s.d.Fetcher.Fetch(ctx, group)
	if err != nil {
		return schedule.Schedule{}, "", err
	}
	parsed := schedule.Parse(raw, schedule.Options{
		Slots:    s.d.Slots,
		Excluded: s.d.Excluded,
		Now:      s.now(),
	})
	if err := s.d.Cache.Save(ctx, parsed); err != nil {
		appLog.Error("schedule cache write failed", err)
	}
	appLog.Info("schedule loaded", "group", group, "lessons", parsed.Len(), "session", parsed.IsSession)
	return parsed, "network", nil
}

// InvalidateSchedule drops the cached schedule, e.g. after a group change.
func (s *Service) InvalidateSchedule(ctx context.Context) error {
	return s.d.Cache.Clear(ctx)
}

func (s *Service) collect(ctx context.Context, force bool) (snapshot, error) {
	var snap snapshot
	var err error

	if snap.settings, err = s.d.Settings.Load(ctx); err != nil {
		return snap, err
	}
	if snap.schedule, snap.source, err = s.loadSchedule(ctx, snap.settings.GroupID, force); err != nil {
		return snap, err
	}
	if snap.custom, err = s.d.Lessons.List(ctx); err != nil {
		return snap, err
	}
	if snap.reminders, err = s.d.Reminders.List(ctx); err != nil {
		return snap, err
	}
	times, err := s.d.TravelTimes.All(ctx)
	if err != nil {
		return snap, err
	}
	snap.resolver = travel.NewResolver(s.d.Rules, times, snap.settings.DefaultTravelMinutes)
	return snap, nil
}

func (s *Service) aggregate(snap snapshot, now time.Time) []model.Candidate {
	return alarm.Aggregate(alarm.AggregateInput{
		Schedule:     snap.schedule,
		Custom:       snap.custom,
		Reminders:    snap.reminders,
		Settings:     snap.settings,
		Resolver:     snap.resolver,
		HorizonWeeks: s.d.HorizonWeeks,
	}, now)
}

// Upcoming returns every current candidate without touching the alarm.
func (s *Service) Upcoming(ctx context.Context) ([]model.Candidate, error) {
	snap, err := s.collect(ctx, false)
	if err != nil {
		return nil, err
	}
	return s.aggregate(snap, s.now()), nil
}

// Refresh recomputes the alarm from scratch. force bypasses the schedule
// cache. A refresh overtaken by a newer one returns ErrSuperseded and
// neither arms nor publishes.
func (s *Service) Refresh(ctx context.Context, force bool) (Result, error) {
	gen := s.gen.Add(1)
	s.mu.Lock()
	prev := s.last
	s.last = Result{Status: alarm.StatusComputing, Candidate: prev.Candidate, ComputedAt: prev.ComputedAt}
	s.mu.Unlock()

	now := s.now()
	res := Result{ComputedAt: now}

	snap, err := s.collect(ctx, force)
	if err != nil {
		res.Status = alarm.StatusFailed
		res.Reason = ReasonFetchError
		if !errors.Is(err, schedule.ErrFetchFailed) {
			res.Reason = err.Error()
		}
		// The previously armed alarm stays in place.
		if rec, perr := s.d.Scheduler.Pending(ctx); perr == nil && rec != nil {
			c := rec.Candidate
			res.Candidate = &c
			res.Handle = rec.Handle
		}
		if !s.publish(gen, res) {
			return Result{}, ErrSuperseded
		}
		appLog.Error("refresh failed", err)
		return res, fmt.Errorf("refresh: %w", err)
	}
	res.Source = snap.source

	if snap.schedule.Len() == 0 && len(snap.custom) == 0 && len(snap.reminders) == 0 {
		if s.gen.Load() != gen {
			return Result{}, ErrSuperseded
		}
		if err := s.d.Scheduler.Disarm(ctx); err != nil {
			appLog.Error("disarm failed", err)
		}
		res.Status = alarm.StatusNoData
		res.Reason = ReasonNoSources
		if strings.TrimSpace(snap.settings.GroupID) != "" {
			res.Reason = ReasonNoEvents
		}
		if !s.publish(gen, res) {
			return Result{}, ErrSuperseded
		}
		return res, nil
	}

	cands := s.aggregate(snap, now)
	res.Candidates = len(cands)

	if s.gen.Load() != gen {
		appLog.Debug("refresh superseded before arming", "gen", gen)
		return Result{}, ErrSuperseded
	}

	best, ok := alarm.SelectNearest(cands)
	if !ok {
		if err := s.d.Scheduler.Disarm(ctx); err != nil {
			appLog.Error("disarm failed", err)
		}
		res.Status = alarm.StatusIdle
		res.Reason = ReasonNoEvents
		if !s.publish(gen, res) {
			return Result{}, ErrSuperseded
		}
		return res, nil
	}

	bd := alarm.BreakdownFor(best, snap.settings)
	res.Candidate = &best
	res.Breakdown = &bd
	res.Countdown = alarm.TimeUntil(best.AlarmAt, now)
	res.Day = alarm.RelativeDay(best.AlarmAt, now)

	handle, err := s.d.Scheduler.Arm(ctx, best)
	switch {
	case errors.Is(err, alarm.ErrNoPermission), errors.Is(err, alarm.ErrPastTrigger):
		res.Status = alarm.StatusIdle
		res.Reason = ReasonInactive
		appLog.Warn("alarm not armed", "err", err)
	case err != nil:
		res.Status = alarm.StatusFailed
		res.Reason = err.Error()
		appLog.Error("arm failed", err)
	default:
		res.Status = alarm.StatusArmed
		res.Handle = handle
		s.logWeather(ctx, snap.settings.City)
	}

	if !s.publish(gen, res) {
		return Result{}, ErrSuperseded
	}
	return res, nil
}

func (s *Service) logWeather(ctx context.Context, city string) {
	if strings.TrimSpace(city) == "" {
		return
	}
	rep, tips, err := s.Weather(ctx)
	if err != nil {
		appLog.Debug("weather unavailable", "err", err)
		return
	}
	appLog.Info("morning weather", "city", rep.City, "temp", rep.Temperature, "tip", strings.Join(tips, "; "))
}

// Weather fetches the report for the user's city and remembers it.
func (s *Service) Weather(ctx context.Context) (weather.Report, []string, error) {
	st, err := s.d.Settings.Load(ctx)
	if err != nil {
		return weather.Report{}, nil, err
	}
	rep, err := s.d.Weather.Current(ctx, st.City)
	if err != nil {
		return weather.Report{}, nil, err
	}
	if s.d.KV != nil {
		if err := s.d.KV.Set(ctx, store.KeyWeather, rep); err != nil {
			appLog.Error("weather cache write failed", err)
		}
	}
	return rep, weather.Recommendations(rep), nil
}

// Pending returns the alarm the notifier still holds, if any.
func (s *Service) Pending(ctx context.Context) (*alarm.Armed, error) {
	return s.d.Scheduler.Pending(ctx)
}

// Location is the timezone all computations use.
func (s *Service) Location() *time.Location { return s.d.Location }

// Now is the service clock in Location.
func (s *Service) Now() time.Time { return s.now() }
