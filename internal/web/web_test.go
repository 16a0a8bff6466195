package web

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"studalarm/internal/alarm"
	"studalarm/internal/app"
	"studalarm/internal/config"
	"studalarm/internal/model"
	"studalarm/internal/notify"
	"studalarm/internal/schedule"
	"studalarm/internal/store"
	"studalarm/internal/travel"
)

var msk = time.FixedZone("MSK", 3*60*60)

type testEnvelope struct {
	Data     json.RawMessage `json:"data"`
	Errors   []string        `json:"errors"`
	Metadata Metadata        `json:"metadata"`
}

func newTestServer(t *testing.T, auth *config.BasicAuthConfig) http.Handler {
	t.Helper()

	cfg := config.DefaultConfig()
	cfg.BasicAuth = auth

	kv := store.NewMemory()
	slots := schedule.DefaultSlots()
	settings := store.NewSettingsRepo(kv, model.Settings{RoutineMinutes: 60, BufferMinutes: 10, DefaultTravelMinutes: 90})
	reminders := store.NewReminders(kv)
	lessons := store.NewCustomLessons(kv, slots)
	times := store.NewTravelTimes(kv)

	svc := app.NewService(app.Deps{
		KV:          kv,
		Cache:       schedule.NewCache(kv, time.Hour),
		Settings:    settings,
		Reminders:   reminders,
		Lessons:     lessons,
		TravelTimes: times,
		Scheduler:   alarm.NewScheduler(notify.NewMemory(true), kv),
		Rules:       travel.RulesFromConfig(cfg),
		Slots:       slots,
		Location:    msk,
	})

	return NewServer(Deps{
		Config:      cfg,
		Service:     svc,
		Reminders:   reminders,
		Lessons:     lessons,
		Addresses:   store.NewAddresses(kv),
		Settings:    settings,
		TravelTimes: times,
		SyncRefresh: true,
	}).Handler()
}

func do(t *testing.T, h http.Handler, method, path string, body any) (*httptest.ResponseRecorder, testEnvelope) {
	t.Helper()

	var rd *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		rd = bytes.NewReader(b)
	} else {
		rd = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var env testEnvelope
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
			t.Fatalf("decode %s %s: %v\n%s", method, path, err, rec.Body.String())
		}
	}
	return rec, env
}

func TestBasicAuth_SkipsHealth(t *testing.T) {
	t.Parallel()
	h := newTestServer(t, &config.BasicAuthConfig{Username: "u", Password: "p"})

	rec, _ := do(t, h, http.MethodGet, "/health", nil)
	if rec.Code != http.StatusOK || rec.Body.String() != "OK" {
		t.Fatalf("/health = %d %q", rec.Code, rec.Body.String())
	}

	rec, env := do(t, h, http.MethodGet, "/api/alarm", nil)
	if rec.Code != http.StatusUnauthorized || len(env.Errors) == 0 {
		t.Fatalf("expected 401 with error envelope, got %d %+v", rec.Code, env)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/alarm", nil)
	req.SetBasicAuth("u", "p")
	ok := httptest.NewRecorder()
	h.ServeHTTP(ok, req)
	if ok.Code != http.StatusOK {
		t.Fatalf("authorized request = %d", ok.Code)
	}
}

func TestReminderArmsAlarm(t *testing.T) {
	t.Parallel()
	h := newTestServer(t, nil)

	tomorrow := time.Now().In(msk).AddDate(0, 0, 1)
	rec, env := do(t, h, http.MethodPost, "/api/reminders", store.ReminderInput{
		Title: "Консультация",
		Date:  tomorrow.Format(model.ReminderDateLayout),
		Time:  "12:00",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("POST /api/reminders = %d %v", rec.Code, env.Errors)
	}
	if env.Metadata.Version != APIVersion || env.Metadata.RequestID == "" {
		t.Fatalf("unexpected metadata: %+v", env.Metadata)
	}

	rec, env = do(t, h, http.MethodGet, "/api/alarm", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /api/alarm = %d", rec.Code)
	}
	var got alarmResponse
	if err := json.Unmarshal(env.Data, &got); err != nil {
		t.Fatalf("decode alarm: %v", err)
	}
	if got.Status != alarm.StatusArmed || got.Candidate == nil || got.Candidate.Title != "Консультация" {
		t.Fatalf("unexpected alarm: %+v", got)
	}
	at := got.Candidate.AlarmAt.In(msk)
	if at.Hour() != 9 || at.Minute() != 20 {
		t.Fatalf("alarm at %s, want 09:20", at)
	}
	if got.Pending == nil || got.Pending.Handle != got.Handle {
		t.Fatalf("pending record missing: %+v", got.Pending)
	}

	rec, _ = do(t, h, http.MethodGet, "/calendar.ics", nil)
	body := rec.Body.String()
	if rec.Code != http.StatusOK || !strings.Contains(body, "BEGIN:VEVENT") || !strings.Contains(body, "TRIGGER:-PT160M") {
		t.Fatalf("unexpected calendar feed (%d):\n%s", rec.Code, body)
	}
}

func TestValidationErrors(t *testing.T) {
	t.Parallel()
	h := newTestServer(t, nil)

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		want   int
	}{
		{name: "reminder_bad_date", method: http.MethodPost, path: "/api/reminders", body: store.ReminderInput{Title: "x", Date: "2025-03-10", Time: "12:00"}, want: http.StatusBadRequest},
		{name: "lesson_bad_day", method: http.MethodPost, path: "/api/lessons", body: store.LessonInput{Subject: "x", DayNumber: 9, LessonNumber: 1}, want: http.StatusBadRequest},
		{name: "travel_too_long", method: http.MethodPut, path: "/api/travel-times/pr", body: travelTimeBody{Minutes: 700}, want: http.StatusBadRequest},
		{name: "schedule_bad_day", method: http.MethodGet, path: "/api/schedule?day=9", want: http.StatusBadRequest},
		{name: "builtin_address", method: http.MethodDelete, path: "/api/addresses/bs", want: http.StatusNotFound},
		{name: "missing_reminder", method: http.MethodDelete, path: "/api/reminders/nope", want: http.StatusNotFound},
		{name: "weather_without_city", method: http.MethodGet, path: "/api/weather", want: http.StatusBadRequest},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec, env := do(t, h, tc.method, tc.path, tc.body)
			if rec.Code != tc.want {
				t.Fatalf("%s %s = %d, want %d (%v)", tc.method, tc.path, rec.Code, tc.want, env.Errors)
			}
			if len(env.Errors) == 0 {
				t.Fatalf("expected error messages in envelope")
			}
		})
	}
}

func TestSettingsRoundTrip(t *testing.T) {
	t.Parallel()
	h := newTestServer(t, nil)

	rec, env := do(t, h, http.MethodPut, "/api/settings", model.Settings{
		RoutineMinutes:       45,
		BufferMinutes:        0,
		DefaultTravelMinutes: 30,
		City:                 "Москва",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("PUT /api/settings = %d %v", rec.Code, env.Errors)
	}
	var st model.Settings
	if err := json.Unmarshal(env.Data, &st); err != nil {
		t.Fatalf("decode settings: %v", err)
	}
	if st.RoutineMinutes != 45 || st.BufferMinutes != 0 || st.DefaultTravelMinutes != 30 {
		t.Fatalf("unexpected settings: %+v", st)
	}

	rec, env = do(t, h, http.MethodGet, "/api/weather", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /api/weather = %d %v", rec.Code, env.Errors)
	}
}
