package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"studalarm/internal/alarm"
	"studalarm/internal/model"
	"studalarm/internal/notify"
	"studalarm/internal/schedule"
	"studalarm/internal/store"
	"studalarm/internal/travel"
)

var msk = time.FixedZone("MSK", 3*60*60)

// tomorrowGrid puts a single first-slot lesson on tomorrow's weekday so the
// alarm is always in the future relative to the wall clock.
func tomorrowGrid(now time.Time) string {
	wd := schedule.Weekday(now.AddDate(0, 0, 1))
	return fmt.Sprintf(`{"grid":{"%d":{"1":[{"sbj":"Матан","type":"лекция","location":"пр-123"}]}}}`, wd)
}

type fixture struct {
	svc      *Service
	notifier *notify.Memory
	kv       *store.Memory
	hits     *atomic.Int32
	fail     *atomic.Bool
}

func newFixture(t *testing.T, granted bool, group string, fetcher Fetcher) *fixture {
	t.Helper()

	now := time.Now().In(msk)
	hits := new(atomic.Int32)
	fail := new(atomic.Bool)

	if fetcher == nil {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			hits.Add(1)
			if fail.Load() {
				http.Error(w, "down", http.StatusBadGateway)
				return
			}
			_, _ = w.Write([]byte(tomorrowGrid(now)))
		}))
		t.Cleanup(srv.Close)
		fetcher = schedule.NewFetcher(schedule.FetcherConfig{BaseURL: srv.URL, Attempts: 2, Timeout: time.Second})
	}

	kv := store.NewMemory()
	n := notify.NewMemory(granted)
	tt := store.NewTravelTimes(kv)
	if err := tt.Set(context.Background(), "pr", 20); err != nil {
		t.Fatalf("TravelTimes.Set: %v", err)
	}

	svc := NewService(Deps{
		Fetcher: fetcher,
		KV:      kv,
		Cache:   schedule.NewCache(kv, time.Hour),
		Settings: store.NewSettingsRepo(kv, model.Settings{
			GroupID:              group,
			RoutineMinutes:       60,
			BufferMinutes:        10,
			DefaultTravelMinutes: 90,
		}),
		Reminders:   store.NewReminders(kv),
		Lessons:     store.NewCustomLessons(kv, schedule.DefaultSlots()),
		TravelTimes: tt,
		Scheduler:   alarm.NewScheduler(n, kv),
		Rules: travel.Rules{
			OnlineKeywords: []string{"zoom", "онлайн"},
			Campus:         []travel.CampusRule{{Pattern: "пр-", Campus: "pr", Match: travel.MatchPrefix}},
		},
		Slots:        schedule.DefaultSlots(),
		HorizonWeeks: 3,
		Location:     msk,
	})
	return &fixture{svc: svc, notifier: n, kv: kv, hits: hits, fail: fail}
}

func TestRefresh_ArmsNearestAndReusesCache(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t, true, "221-361", nil)

	res, err := f.svc.Refresh(ctx, false)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if res.Status != alarm.StatusArmed || res.Source != "network" {
		t.Fatalf("unexpected result: %+v", res)
	}
	c := res.Candidate
	if c == nil || c.Title != "Матан" || c.TravelMinutes != 20 || c.Campus != "pr" {
		t.Fatalf("unexpected candidate: %+v", c)
	}
	if c.AlarmAt.Hour() != 7 || c.AlarmAt.Minute() != 30 {
		t.Fatalf("alarm at %s, want 07:30", c.AlarmAt)
	}
	if res.Day != "Завтра" {
		t.Fatalf("relative day = %q", res.Day)
	}
	if res.Breakdown == nil || res.Breakdown.Total != 90 {
		t.Fatalf("unexpected breakdown: %+v", res.Breakdown)
	}
	if snap := f.notifier.Snapshot(); len(snap) != 1 || !snap[0].FireAt.Equal(c.AlarmAt) {
		t.Fatalf("unexpected pending notifications: %+v", snap)
	}

	again, err := f.svc.Refresh(ctx, false)
	if err != nil {
		t.Fatalf("second Refresh: %v", err)
	}
	if again.Source != "cache" || again.Handle != res.Handle {
		t.Fatalf("second refresh must reuse cache and handle: %+v", again)
	}
	if f.hits.Load() != 1 {
		t.Fatalf("expected one network request, got %d", f.hits.Load())
	}
	if got := f.svc.Last(); got.Status != alarm.StatusArmed || got.Handle != res.Handle {
		t.Fatalf("Last() = %+v", got)
	}
}

func TestRefresh_FetchFailureKeepsAlarm(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t, true, "221-361", nil)

	armed, err := f.svc.Refresh(ctx, false)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}

	f.fail.Store(true)
	res, err := f.svc.Refresh(ctx, true)
	if !errors.Is(err, schedule.ErrFetchFailed) {
		t.Fatalf("expected ErrFetchFailed, got %v", err)
	}
	if res.Status != alarm.StatusFailed || res.Reason != ReasonFetchError {
		t.Fatalf("unexpected result: %+v", res)
	}
	if res.Handle != armed.Handle {
		t.Fatalf("failed refresh must report the kept alarm, got %q want %q", res.Handle, armed.Handle)
	}
	pending, _ := f.notifier.ListPending(ctx)
	if len(pending) != 1 || pending[0] != armed.Handle {
		t.Fatalf("previous alarm must stay pending, got %v", pending)
	}
}

func TestRefresh_NoSources(t *testing.T) {
	t.Parallel()
	f := newFixture(t, true, "", nil)

	res, err := f.svc.Refresh(context.Background(), false)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if res.Status != alarm.StatusNoData || res.Reason != ReasonNoSources {
		t.Fatalf("unexpected result: %+v", res)
	}
	if f.hits.Load() != 0 {
		t.Fatalf("no group must mean no network request")
	}
}

func TestRefresh_PermissionDeniedIsIdle(t *testing.T) {
	t.Parallel()
	f := newFixture(t, false, "221-361", nil)

	res, err := f.svc.Refresh(context.Background(), false)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if res.Status != alarm.StatusIdle || res.Reason != ReasonInactive || res.Candidate == nil {
		t.Fatalf("unexpected result: %+v", res)
	}
	if len(f.notifier.Snapshot()) != 0 {
		t.Fatalf("nothing may be scheduled without permission")
	}
}

// gateFetcher blocks its first call until released.
type gateFetcher struct {
	body    string
	entered chan struct{}
	release chan struct{}
	once    sync.Once
	calls   atomic.Int32
}

func (g *gateFetcher) Fetch(ctx context.Context, _ string) (schedule.Raw, error) {
	if g.calls.Add(1) == 1 {
		g.once.Do(func() { close(g.entered) })
		select {
		case <-g.release:
		case <-ctx.Done():
			return schedule.Raw{}, ctx.Err()
		}
	}
	return schedule.DecodeRaw([]byte(g.body))
}

func TestRefresh_LastResultWins(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	g := &gateFetcher{
		body:    tomorrowGrid(time.Now().In(msk)),
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
	f := newFixture(t, true, "221-361", g)

	type outcome struct {
		res Result
		err error
	}
	first := make(chan outcome, 1)
	go func() {
		r, err := f.svc.Refresh(ctx, true)
		first <- outcome{r, err}
	}()
	<-g.entered

	second, err := f.svc.Refresh(ctx, true)
	if err != nil || second.Status != alarm.StatusArmed {
		t.Fatalf("second Refresh = %+v, %v", second, err)
	}
	close(g.release)

	got := <-first
	if !errors.Is(got.err, ErrSuperseded) {
		t.Fatalf("stale refresh must be discarded, got %+v, %v", got.res, got.err)
	}
	if last := f.svc.Last(); last.Handle != second.Handle || last.Status != alarm.StatusArmed {
		t.Fatalf("Last() = %+v, want the second result", last)
	}
	if n := len(f.notifier.Snapshot()); n != 1 {
		t.Fatalf("expected exactly one pending alarm, got %d", n)
	}
}

func TestWeather_RemembersReport(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t, true, "", nil)

	if _, _, err := f.svc.Weather(ctx); err == nil {
		t.Fatalf("expected an error without a city")
	}
	st := f.svc.d.Settings.Defaults()
	st.City = "Москва"
	if err := f.svc.d.Settings.Save(ctx, st); err != nil {
		t.Fatalf("Save: %v", err)
	}
	rep, tips, err := f.svc.Weather(ctx)
	if err != nil || rep.City != "Москва" || len(tips) == 0 {
		t.Fatalf("Weather = %+v, %v, %v", rep, tips, err)
	}
	var saved struct {
		City string `json:"cityName"`
	}
	if ok, err := f.kv.Get(ctx, store.KeyWeather, &saved); err != nil || !ok || saved.City != "Москва" {
		t.Fatalf("weather not remembered: %+v, %v, %v", saved, ok, err)
	}
}
