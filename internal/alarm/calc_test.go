package alarm

import (
	"testing"
	"time"

	"studalarm/internal/model"
)

func TestSelectNearest(t *testing.T) {
	t.Parallel()

	base := time.Date(2025, 3, 10, 7, 0, 0, 0, msk)
	cands := []model.Candidate{
		{EventID: "later", AlarmAt: base.Add(2 * time.Hour)},
		{EventID: "first-tie", AlarmAt: base},
		{EventID: "second-tie", AlarmAt: base},
	}

	got, ok := SelectNearest(cands)
	if !ok || got.EventID != "first-tie" {
		t.Fatalf("SelectNearest = %+v, %v", got, ok)
	}
	if _, ok := SelectNearest(nil); ok {
		t.Fatalf("no candidates must select nothing")
	}
}

func TestBreakdownFor(t *testing.T) {
	t.Parallel()

	b := BreakdownFor(model.Candidate{TravelMinutes: 45}, model.Settings{RoutineMinutes: 30, BufferMinutes: 15})
	if b != (Breakdown{Routine: 30, Travel: 45, Buffer: 15, Total: 90}) {
		t.Fatalf("unexpected breakdown: %+v", b)
	}
}

func TestTimeUntil(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 3, 9, 22, 0, 0, 0, msk)
	c := TimeUntil(now.Add(9*time.Hour+30*time.Minute+40*time.Second), now)
	if c == nil {
		t.Fatalf("expected countdown")
	}
	if c.Hours != 9 || c.Minutes != 30 || c.TotalMinutes != 570 || c.Formatted != "9ч 30мин" {
		t.Fatalf("unexpected countdown: %+v", c)
	}
	if TimeUntil(now.Add(-time.Second), now) != nil {
		t.Fatalf("passed alarm must yield nil")
	}
}

func TestRelativeDay(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 3, 9, 23, 30, 0, 0, msk) // Sunday
	tests := []struct {
		at   time.Time
		want string
	}{
		{at: time.Date(2025, 3, 9, 0, 5, 0, 0, msk), want: "Сегодня"},
		{at: time.Date(2025, 3, 10, 7, 30, 0, 0, msk), want: "Завтра"},
		{at: time.Date(2025, 3, 8, 12, 0, 0, 0, msk), want: "Вчера"},
		{at: time.Date(2025, 3, 12, 7, 30, 0, 0, msk), want: "Среда"},
		{at: time.Date(2025, 3, 10, 5, 0, 0, 0, time.UTC), want: "Завтра"},
	}
	for _, tc := range tests {
		if got := RelativeDay(tc.at, now); got != tc.want {
			t.Fatalf("RelativeDay(%s) = %q, want %q", tc.at, got, tc.want)
		}
	}
}
