package schedule

import (
	"encoding/json"
	"html"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	appLog "studalarm/internal/log"
	"studalarm/internal/model"
)

// Options carries the immutable inputs of Parse.
type Options struct {
	// Slots maps lesson numbers to time ranges. Nil means DefaultSlots.
	Slots SlotTable
	// Excluded subjects (case-insensitive substrings), regular mode only.
	Excluded []string
	// Now decides validity windows, regular mode only.
	Now time.Time
}

// Schedule is the normalized per-weekday lesson list.
//
// Days is keyed 1 (Monday) .. 7 (Sunday). In session mode, date-keyed
// lessons are folded into the bucket of their weekday and ordered by
// (SessionDate, LessonNumber).
type Schedule struct {
	Days         map[int][]model.Lesson `json:"days"`
	IsSession    bool                   `json:"isSession"`
	SessionDates []string               `json:"sessionDates"`
}

// Empty returns a schedule with no lessons.
func Empty() Schedule {
	return Schedule{Days: map[int][]model.Lesson{}, SessionDates: []string{}}
}

// Len reports the total number of lessons.
func (s Schedule) Len() int {
	n := 0
	for _, ls := range s.Days {
		n += len(ls)
	}
	return n
}

var (
	dateKeyRe = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
	htmlTagRe = regexp.MustCompile(`<[^>]*>`)
)

// isDateKey reports whether key is exactly YYYY-MM-DD and a real date.
func isDateKey(key string) bool {
	if !dateKeyRe.MatchString(key) {
		return false
	}
	_, err := time.Parse(model.ISODateLayout, key)
	return err == nil
}

func stripHTML(s string) string {
	return strings.TrimSpace(html.UnescapeString(htmlTagRe.ReplaceAllString(s, "")))
}

// ParseJSON decodes a payload and parses it. Any decode failure yields an
// empty schedule.
func ParseJSON(data []byte, opts Options) Schedule {
	raw, err := DecodeRaw(data)
	if err != nil {
		appLog.Debug("schedule payload rejected", "err", err)
		return Empty()
	}
	return Parse(raw, opts)
}

// Parse normalizes a raw grid. It never fails: malformed days, slots and
// lessons are skipped.
func Parse(raw Raw, opts Options) Schedule {
	out := Empty()
	if len(raw.Grid) == 0 {
		return out
	}
	slots := opts.Slots
	if slots == nil {
		slots = DefaultSlots()
	}

	keys := make([]string, 0, len(raw.Grid))
	for k := range raw.Grid {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	session := raw.IsSession
	for _, k := range keys {
		if isDateKey(k) {
			session = true
			break
		}
	}
	out.IsSession = session

	excluded := make([]string, 0, len(opts.Excluded))
	for _, e := range opts.Excluded {
		if e = strings.ToLower(strings.TrimSpace(e)); e != "" {
			excluded = append(excluded, e)
		}
	}

	dates := make(map[string]struct{})
	for _, key := range keys {
		weekday, sessionDate, ok := bucketFor(key)
		if !ok {
			appLog.Debug("schedule: skipping grid key", "key", key)
			continue
		}
		if _, exists := out.Days[weekday]; !exists {
			out.Days[weekday] = []model.Lesson{}
		}

		var day map[string]json.RawMessage
		if !isObject(raw.Grid[key]) || json.Unmarshal(raw.Grid[key], &day) != nil {
			continue
		}

		for _, slotKey := range sortedSlotKeys(day) {
			slotNum, _ := strconv.Atoi(slotKey)

			var entries []json.RawMessage
			if err := json.Unmarshal(day[slotKey], &entries); err != nil {
				continue
			}
			for idx, entry := range entries {
				var rl rawLesson
				if !isObject(entry) || json.Unmarshal(entry, &rl) != nil {
					continue
				}
				l := buildLesson(rl, key, slotNum, idx, slots)

				if !session {
					if isExcluded(l.Subject, excluded) {
						continue
					}
					if !withinWindow(l.DateFrom, l.DateTo, opts.Now) {
						continue
					}
				}
				if sessionDate != "" {
					l.IsSession = true
					l.SessionDate = sessionDate
					dates[sessionDate] = struct{}{}
				}
				out.Days[weekday] = append(out.Days[weekday], l)
			}
		}
	}

	for wd := range out.Days {
		ls := out.Days[wd]
		sort.SliceStable(ls, func(i, j int) bool {
			if ls[i].SessionDate != ls[j].SessionDate {
				return ls[i].SessionDate < ls[j].SessionDate
			}
			return ls[i].LessonNumber < ls[j].LessonNumber
		})
	}

	for d := range dates {
		out.SessionDates = append(out.SessionDates, d)
	}
	sort.Strings(out.SessionDates)

	return out
}

// bucketFor maps a grid key to its weekday bucket. Date keys also return
// the literal date.
func bucketFor(key string) (weekday int, date string, ok bool) {
	if isDateKey(key) {
		t, _ := time.Parse(model.ISODateLayout, key)
		return Weekday(t), key, true
	}
	n, err := strconv.Atoi(key)
	if err != nil || n < 1 || n > 7 {
		return 0, "", false
	}
	return n, "", true
}

func sortedSlotKeys(day map[string]json.RawMessage) []string {
	keys := make([]string, 0, len(day))
	for k := range day {
		if n, err := strconv.Atoi(k); err == nil && n > 0 {
			keys = append(keys, k)
		}
	}
	sort.Slice(keys, func(i, j int) bool {
		a, _ := strconv.Atoi(keys[i])
		b, _ := strconv.Atoi(keys[j])
		return a < b
	})
	return keys
}

func buildLesson(rl rawLesson, dayKey string, slot, idx int, slots SlotTable) model.Lesson {
	subject := firstNonBlank(rl.Subject, rl.SubjectAlt)
	if subject == "" {
		subject = model.UnknownSubject
	}
	typ := strings.TrimSpace(rl.Type)
	if typ == "" {
		typ = model.UnknownType
	}
	prof := strings.TrimSpace(rl.Teacher)
	if prof == "" {
		prof = model.UnknownProfessor
	}
	room := resolveRoom(rl)
	if room == "" {
		room = model.UnknownRoom
	}

	return model.Lesson{
		ID:           dayKey + "-" + strconv.Itoa(slot) + "-" + strconv.Itoa(idx),
		Time:         slots.Time(slot),
		Subject:      subject,
		Type:         typ,
		Room:         room,
		Professor:    prof,
		LessonNumber: slot,
		DateFrom:     strings.TrimSpace(rl.DateFrom),
		DateTo:       strings.TrimSpace(rl.DateTo),
	}
}

// resolveRoom picks location, then room, then the first short room, then
// the first auditory title.
func resolveRoom(rl rawLesson) string {
	if s := stripHTML(rl.Location); s != "" {
		return s
	}
	if s := stripHTML(rl.Room); s != "" {
		return s
	}
	if len(rl.ShortRooms) > 0 {
		if s := stripHTML(rl.ShortRooms[0]); s != "" {
			return s
		}
	}
	if len(rl.Auditories) > 0 {
		return stripHTML(rl.Auditories[0].Title)
	}
	return ""
}

func firstNonBlank(vals ...string) string {
	for _, v := range vals {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

func isExcluded(subject string, excluded []string) bool {
	s := strings.ToLower(subject)
	for _, e := range excluded {
		if strings.Contains(s, e) {
			return true
		}
	}
	return false
}

// withinWindow compares calendar dates; both bounds are inclusive and an
// unparsable bound is ignored.
func withinWindow(from, to string, now time.Time) bool {
	if now.IsZero() {
		return true
	}
	today := now.Format(model.ISODateLayout)
	if f, err := time.Parse(model.ISODateLayout, from); err == nil {
		if today < f.Format(model.ISODateLayout) {
			return false
		}
	}
	if t, err := time.Parse(model.ISODateLayout, to); err == nil {
		if today > t.Format(model.ISODateLayout) {
			return false
		}
	}
	return true
}
