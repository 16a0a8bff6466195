package alarm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	appLog "studalarm/internal/log"
	"studalarm/internal/model"
)

// StoreKey is where the armed alarm is persisted.
const StoreKey = "scheduled_alarm"

// NotificationTitle is shown when the alarm fires.
const NotificationTitle = "пора вставать"

var (
	ErrNoPermission = errors.New("alarm: notification permission not granted")
	ErrPastTrigger  = errors.New("alarm: trigger time is not in the future")
)

// Payload is the notification content.
type Payload struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

// Notifier delivers a notification at a future moment. ScheduleAt returns
// an opaque handle that later appears in ListPending until it fires or is
// cancelled.
type Notifier interface {
	RequestPermission(ctx context.Context) (bool, error)
	ScheduleAt(ctx context.Context, fireAt time.Time, p Payload) (string, error)
	Cancel(ctx context.Context, handle string) error
	ListPending(ctx context.Context) ([]string, error)
}

// Store persists the armed alarm record.
type Store interface {
	Get(ctx context.Context, key string, dst any) (bool, error)
	Set(ctx context.Context, key string, value any) error
	Remove(ctx context.Context, key string) error
}

// Armed is the persisted record of the single active alarm.
type Armed struct {
	Handle      string          `json:"notificationId"`
	Candidate   model.Candidate `json:"alarmData"`
	ScheduledAt time.Time       `json:"scheduledAt"`
}

// Scheduler keeps at most one alarm armed with the notifier.
type Scheduler struct {
	mu        sync.Mutex
	notifier  Notifier
	store     Store
	now       func() time.Time
	initDone  bool
	permitted bool
}

func NewScheduler(n Notifier, st Store) *Scheduler {
	return &Scheduler{notifier: n, store: st, now: time.Now}
}

// Init asks the notifier for permission. Only the first call talks to the
// notifier.
func (s *Scheduler) Init(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.initLocked(ctx)
}

func (s *Scheduler) initLocked(ctx context.Context) error {
	if s.initDone {
		return nil
	}
	ok, err := s.notifier.RequestPermission(ctx)
	if err != nil {
		return fmt.Errorf("request notification permission: %w", err)
	}
	s.initDone = true
	s.permitted = ok
	if !ok {
		appLog.Warn("notification permission denied; alarms stay inactive")
	}
	return nil
}

// PayloadFor renders the notification for a candidate.
func PayloadFor(c model.Candidate) Payload {
	room := strings.TrimSpace(c.Room)
	if room == "" {
		room = model.UnknownRoom
	}
	return Payload{
		Title: NotificationTitle,
		Body:  fmt.Sprintf("%s\n%s • %s", c.Title, c.Time, room),
	}
}

// Arm replaces whatever alarm is active with one for c. Arming the alarm
// that is already pending is a no-op returning the existing handle.
func (s *Scheduler) Arm(ctx context.Context, c model.Candidate) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cur, ok, err := s.pendingLocked(ctx); err == nil && ok && cur.Candidate.Same(c) {
		return cur.Handle, nil
	}

	if err := s.disarmLocked(ctx); err != nil {
		return "", err
	}

	if !c.AlarmAt.After(s.now()) {
		return "", ErrPastTrigger
	}
	if err := s.initLocked(ctx); err != nil {
		return "", err
	}
	if !s.permitted {
		return "", ErrNoPermission
	}

	handle, err := s.notifier.ScheduleAt(ctx, c.AlarmAt, PayloadFor(c))
	if err != nil {
		return "", fmt.Errorf("schedule notification: %w", err)
	}

	rec := Armed{Handle: handle, Candidate: c, ScheduledAt: s.now()}
	if err := s.store.Set(ctx, StoreKey, rec); err != nil {
		// Without a record the alarm could never be cancelled.
		_ = s.notifier.Cancel(ctx, handle)
		return "", fmt.Errorf("persist alarm: %w", err)
	}

	appLog.Info("alarm armed",
		"handle", handle,
		"alarm_at", c.AlarmAt.Format(time.RFC3339),
		"event", c.Title,
		"event_at", c.EventAt.Format(time.RFC3339),
		"travel_min", c.TravelMinutes,
	)
	return handle, nil
}

// Disarm cancels and forgets the active alarm, if any.
func (s *Scheduler) Disarm(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.disarmLocked(ctx)
}

func (s *Scheduler) disarmLocked(ctx context.Context) error {
	var rec Armed
	found, err := s.store.Get(ctx, StoreKey, &rec)
	if err != nil {
		return fmt.Errorf("load alarm: %w", err)
	}
	if !found {
		return nil
	}
	if rec.Handle != "" {
		if err := s.notifier.Cancel(ctx, rec.Handle); err != nil {
			appLog.Error("cancel notification failed", err, "handle", rec.Handle)
		}
	}
	if err := s.store.Remove(ctx, StoreKey); err != nil {
		return fmt.Errorf("remove alarm: %w", err)
	}
	appLog.Info("alarm disarmed", "handle", rec.Handle)
	return nil
}

// Pending returns the stored alarm only while the notifier still holds it.
// A stale record (fired or cancelled elsewhere) is cleared.
func (s *Scheduler) Pending(ctx context.Context) (*Armed, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok, err := s.pendingLocked(ctx)
	if err != nil || !ok {
		return nil, err
	}
	return &rec, nil
}

func (s *Scheduler) pendingLocked(ctx context.Context) (Armed, bool, error) {
	var rec Armed
	found, err := s.store.Get(ctx, StoreKey, &rec)
	if err != nil {
		return Armed{}, false, fmt.Errorf("load alarm: %w", err)
	}
	if !found {
		return Armed{}, false, nil
	}

	handles, err := s.notifier.ListPending(ctx)
	if err != nil {
		return Armed{}, false, fmt.Errorf("list pending notifications: %w", err)
	}
	for _, h := range handles {
		if h == rec.Handle {
			return rec, true, nil
		}
	}

	appLog.Info("stored alarm no longer pending; clearing", "handle", rec.Handle)
	if err := s.store.Remove(ctx, StoreKey); err != nil {
		return Armed{}, false, fmt.Errorf("remove alarm: %w", err)
	}
	return Armed{}, false, nil
}
