package schedule

import (
	"strconv"
	"strings"
	"time"

	"studalarm/internal/model"
)

// SlotTable maps a lesson number to its "HH:MM-HH:MM" time range.
type SlotTable map[int]string

// DefaultSlots returns the university's fixed bell schedule.
func DefaultSlots() SlotTable {
	return SlotTable{
		1: "09:00-10:30",
		2: "10:40-12:10",
		3: "12:20-13:50",
		4: "14:30-16:00",
		5: "16:10-17:40",
		6: "17:50-19:20",
		7: "19:30-21:00",
	}
}

// Time returns the range for lesson number n, or "" if n is not in the table.
func (t SlotTable) Time(n int) string {
	if t == nil {
		return ""
	}
	return t[n]
}

// ParseClock parses "HH:MM" or the start of "HH:MM-HH:MM".
func ParseClock(s string) (hour, minute int, ok bool) {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '-'); i >= 0 {
		s = strings.TrimSpace(s[:i])
	}
	hs, ms, found := strings.Cut(s, ":")
	if !found {
		return 0, 0, false
	}
	h, err := strconv.Atoi(hs)
	if err != nil || h < 0 || h > 23 {
		return 0, 0, false
	}
	m, err := strconv.Atoi(ms)
	if err != nil || m < 0 || m > 59 {
		return 0, 0, false
	}
	return h, m, true
}

// StartOn returns the lesson's start on the calendar day of `day`, in day's
// location.
func StartOn(l model.Lesson, day time.Time) (time.Time, bool) {
	h, m, ok := ParseClock(l.Time)
	if !ok {
		return time.Time{}, false
	}
	y, mo, d := day.Date()
	return time.Date(y, mo, d, h, m, 0, 0, day.Location()), true
}

// Weekday converts time.Weekday to 1 (Monday) .. 7 (Sunday).
func Weekday(t time.Time) int {
	wd := int(t.Weekday())
	if wd == 0 {
		return 7
	}
	return wd
}
