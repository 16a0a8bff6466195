package schedule

import (
	"reflect"
	"testing"
	"time"

	"studalarm/internal/model"
)

var msk = time.FixedZone("MSK", 3*60*60)

const regularGrid = `{
  "grid": {
    "1": {
      "2": [{"sbj": "Программирование", "teacher": "Петрова А.С.", "type": "практика", "shortRooms": ["пр-301"]}],
      "1": [
        {"sbj": "Математический анализ", "teacher": "Иванов И.И.", "type": "лекция", "location": "<b>пр-123</b>"},
        {"sbj": "Параллельный поток", "auditories": [{"title": "<span>ав-4805</span>"}]}
      ]
    },
    "2": {
      "3": [{"sbj": "Физическая культура и спорт", "shortRooms": ["спортзал"]}],
      "4": [{"sbj": "Старый курс", "df": "2025-02-01", "dt": "2025-02-28"}],
      "5": [{"sbj": "Текущий курс", "df": "2025-02-01", "dt": "2025-03-05"}]
    },
    "3": "not-an-object",
    "9": {"1": [{"sbj": "вне недели"}]},
    "weird": {"1": [{"sbj": "мусор"}]}
  }
}`

func parseOpts() Options {
	return Options{
		Slots:    DefaultSlots(),
		Excluded: []string{"физическая культура"},
		Now:      time.Date(2025, 3, 5, 8, 0, 0, 0, msk),
	}
}

func TestParseJSON_RegularGrid(t *testing.T) {
	t.Parallel()

	s := ParseJSON([]byte(regularGrid), parseOpts())
	if s.IsSession {
		t.Fatalf("expected regular mode")
	}

	mon := s.ForDay(1)
	if len(mon) != 3 {
		t.Fatalf("expected 3 monday lessons, got %d", len(mon))
	}
	wantIDs := []string{"1-1-0", "1-1-1", "1-2-0"}
	wantRooms := []string{"пр-123", "ав-4805", "пр-301"}
	for i, l := range mon {
		if l.ID != wantIDs[i] {
			t.Fatalf("lesson %d id = %q, want %q", i, l.ID, wantIDs[i])
		}
		if l.Room != wantRooms[i] {
			t.Fatalf("lesson %d room = %q, want %q", i, l.Room, wantRooms[i])
		}
	}
	if mon[0].Time != "09:00-10:30" || mon[2].Time != "10:40-12:10" {
		t.Fatalf("unexpected slot times: %q %q", mon[0].Time, mon[2].Time)
	}
	if mon[1].Professor != model.UnknownProfessor || mon[1].Type != model.UnknownType {
		t.Fatalf("expected fallbacks for parallel lesson, got %+v", mon[1])
	}

	tue := s.ForDay(2)
	if len(tue) != 1 || tue[0].Subject != "Текущий курс" {
		t.Fatalf("expected only the in-window tuesday lesson, got %+v", tue)
	}

	if wed, ok := s.Days[3]; !ok || len(wed) != 0 {
		t.Fatalf("expected empty bucket for non-object day, got %v (present=%v)", wed, ok)
	}
	if _, ok := s.Days[9]; ok {
		t.Fatalf("out-of-range weekday key must be skipped")
	}
}

func TestParse_Idempotent(t *testing.T) {
	t.Parallel()

	raw, err := DecodeRaw([]byte(regularGrid))
	if err != nil {
		t.Fatalf("DecodeRaw: %v", err)
	}
	a := Parse(raw, parseOpts())
	b := Parse(raw, parseOpts())
	if !reflect.DeepEqual(a, b) {
		t.Fatalf("parse is not idempotent:\n%+v\n%+v", a, b)
	}
}

func TestParse_OrderingWithinBucket(t *testing.T) {
	t.Parallel()

	s := ParseJSON([]byte(`{"grid":{"4":{"7":[{"sbj":"c"}],"3":[{"sbj":"b"}],"1":[{"sbj":"a"}]}}}`), parseOpts())
	got := s.ForDay(4)
	for i := 1; i < len(got); i++ {
		if got[i-1].LessonNumber > got[i].LessonNumber {
			t.Fatalf("bucket not sorted by lesson number: %+v", got)
		}
	}
	if len(got) != 3 || got[0].Subject != "a" || got[2].Subject != "c" {
		t.Fatalf("unexpected order: %+v", got)
	}
}

func TestParse_ExclusionIsCaseInsensitive(t *testing.T) {
	t.Parallel()

	s := ParseJSON([]byte(`{"grid":{"5":{"1":[{"sbj":"ФИЗИЧЕСКАЯ КУЛЬТУРА"}],"2":[{"sbj":"История"}]}}}`), parseOpts())
	for _, l := range s.ForDay(5) {
		if l.Subject == "ФИЗИЧЕСКАЯ КУЛЬТУРА" {
			t.Fatalf("excluded subject leaked into output")
		}
	}
	if len(s.ForDay(5)) != 1 {
		t.Fatalf("expected 1 lesson, got %d", len(s.ForDay(5)))
	}
}

func TestParse_SessionGrid(t *testing.T) {
	t.Parallel()

	payload := `{"grid":{
	  "2025-03-17": {"2": [{"sbj": "Экзамен B", "location": "пк-212"}]},
	  "2025-03-10": {"2": [{"sbj": "Экзамен A"}], "1": [{"sbj": "Физическая культура"}]}
	}}`
	s := ParseJSON([]byte(payload), parseOpts())
	if !s.IsSession {
		t.Fatalf("date keys must switch on session mode")
	}
	if !reflect.DeepEqual(s.SessionDates, []string{"2025-03-10", "2025-03-17"}) {
		t.Fatalf("unexpected session dates: %v", s.SessionDates)
	}

	mon := s.ForDay(1)
	if len(mon) != 3 {
		t.Fatalf("exclusion must not apply in session mode; got %d lessons", len(mon))
	}
	wantIDs := []string{"2025-03-10-1-0", "2025-03-10-2-0", "2025-03-17-2-0"}
	for i, l := range mon {
		if l.ID != wantIDs[i] {
			t.Fatalf("lesson %d id = %q, want %q", i, l.ID, wantIDs[i])
		}
		if !l.IsSession || l.SessionDate == "" {
			t.Fatalf("lesson %d is not session-dated: %+v", i, l)
		}
	}

	now := time.Date(2025, 3, 5, 12, 0, 0, 0, msk)
	if d, ok := s.NextOccurrence(1, 2, now); !ok || d != "2025-03-10" {
		t.Fatalf("NextOccurrence = %q,%v want 2025-03-10", d, ok)
	}
	later := time.Date(2025, 3, 11, 12, 0, 0, 0, msk)
	if d, ok := s.NextOccurrence(1, 2, later); !ok || d != "2025-03-17" {
		t.Fatalf("NextOccurrence = %q,%v want 2025-03-17", d, ok)
	}
	if _, ok := s.NextOccurrence(1, 2, time.Date(2025, 4, 1, 0, 0, 0, 0, msk)); ok {
		t.Fatalf("expected no occurrence after the session ended")
	}

	onDate := s.ForDate(time.Date(2025, 3, 17, 0, 0, 0, 0, msk))
	if len(onDate) != 1 || onDate[0].Subject != "Экзамен B" {
		t.Fatalf("ForDate returned %+v", onDate)
	}
}

func TestParse_MalformedInput(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"not_json":   "not json",
		"array":      "[]",
		"grid_num":   `{"grid": 5}`,
		"no_grid":    `{"status": "error"}`,
		"bad_slots":  `{"grid": {"1": {"1": "x", "2": [null, 3, "s"]}}}`,
		"empty_grid": `{"grid": {}}`,
	}
	for name, payload := range cases {
		payload := payload
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			s := ParseJSON([]byte(payload), parseOpts())
			if s.Days == nil {
				t.Fatalf("Days must never be nil")
			}
			if s.Len() != 0 {
				t.Fatalf("expected no lessons, got %d", s.Len())
			}
		})
	}
}

func TestNextClass(t *testing.T) {
	t.Parallel()

	s := ParseJSON([]byte(`{"grid":{"1":{"1":[{"sbj":"Матан","location":"пр-123"}]},"3":{"4":[{"sbj":"Физика"}]}}}`), Options{})

	sunday := time.Date(2025, 3, 9, 20, 0, 0, 0, msk)
	got, ok := s.NextClass(sunday)
	if !ok {
		t.Fatalf("expected a next class")
	}
	want := time.Date(2025, 3, 10, 9, 0, 0, 0, msk)
	if !got.StartsAt.Equal(want) || got.DayOffset != 1 || got.Lesson.Subject != "Матан" {
		t.Fatalf("unexpected next class: %+v", got)
	}

	mondayNoon := time.Date(2025, 3, 10, 12, 0, 0, 0, msk)
	got, ok = s.NextClass(mondayNoon)
	if !ok || got.Lesson.Subject != "Физика" || got.DayOffset != 2 {
		t.Fatalf("expected wednesday physics, got %+v (ok=%v)", got, ok)
	}

	if _, ok := Empty().NextClass(sunday); ok {
		t.Fatalf("empty schedule must have no next class")
	}
}

func TestParseClock(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in     string
		h, m   int
		wantOK bool
	}{
		{in: "09:00-10:30", h: 9, m: 0, wantOK: true},
		{in: "19:30", h: 19, m: 30, wantOK: true},
		{in: "", wantOK: false},
		{in: "25:00", wantOK: false},
		{in: "ab:cd", wantOK: false},
	}
	for _, tc := range tests {
		h, m, ok := ParseClock(tc.in)
		if ok != tc.wantOK || (ok && (h != tc.h || m != tc.m)) {
			t.Fatalf("ParseClock(%q) = %d,%d,%v", tc.in, h, m, ok)
		}
	}
}
