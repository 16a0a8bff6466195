package schedule

import (
	"time"

	"studalarm/internal/model"
)

// ForDay returns a copy of the weekday bucket (1..7).
func (s Schedule) ForDay(weekday int) []model.Lesson {
	ls := s.Days[weekday]
	out := make([]model.Lesson, len(ls))
	copy(out, ls)
	return out
}

// ForDate returns the lessons that actually take place on day. Session
// lessons match only their literal date; regular lessons must have day
// inside their validity window.
func (s Schedule) ForDate(day time.Time) []model.Lesson {
	iso := day.Format(model.ISODateLayout)
	out := make([]model.Lesson, 0)
	for _, l := range s.Days[Weekday(day)] {
		if l.SessionDate != "" {
			if l.SessionDate == iso {
				out = append(out, l)
			}
			continue
		}
		if ActiveOn(l, day) {
			out = append(out, l)
		}
	}
	return out
}

// ActiveOn reports whether a regular lesson's validity window contains the
// calendar date of day.
func ActiveOn(l model.Lesson, day time.Time) bool {
	return withinWindow(l.DateFrom, l.DateTo, day)
}

// NextOccurrence returns the earliest session date not before now's date on
// which the given weekday bucket has a lesson in slot lessonNumber.
func (s Schedule) NextOccurrence(weekday, lessonNumber int, now time.Time) (string, bool) {
	today := now.Format(model.ISODateLayout)
	best := ""
	for _, l := range s.Days[weekday] {
		if l.LessonNumber != lessonNumber || l.SessionDate == "" || l.SessionDate < today {
			continue
		}
		if best == "" || l.SessionDate < best {
			best = l.SessionDate
		}
	}
	return best, best != ""
}

// Upcoming is a lesson resolved to a concrete start.
type Upcoming struct {
	Lesson    model.Lesson `json:"lesson"`
	StartsAt  time.Time    `json:"startsAt"`
	DayOffset int          `json:"dayOffset"`
}

// NextClass finds the first lesson starting after now, looking at most one
// week ahead.
func (s Schedule) NextClass(now time.Time) (Upcoming, bool) {
	y, m, d := now.Date()
	midnight := time.Date(y, m, d, 0, 0, 0, 0, now.Location())
	for offset := 0; offset <= 7; offset++ {
		day := midnight.AddDate(0, 0, offset)
		for _, l := range s.ForDate(day) {
			start, ok := StartOn(l, day)
			if !ok || !start.After(now) {
				continue
			}
			return Upcoming{Lesson: l, StartsAt: start, DayOffset: offset}, true
		}
	}
	return Upcoming{}, false
}
