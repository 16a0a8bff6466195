// Package ics renders upcoming events and their wake-up alarms as an
// iCalendar feed.
package ics

import (
	"fmt"
	"sort"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	"studalarm/internal/model"
	"studalarm/internal/schedule"
)

const productID = "-//studalarm//studalarm 1.0//RU"

// ExportConfig controls feed generation.
type ExportConfig struct {
	// Now stamps DTSTAMP. Zero means time.Now.
	Now time.Time
	// DefaultDuration applies when an event has no end in its time range.
	DefaultDuration time.Duration
	// ArmedEventID marks the event whose alarm is currently armed.
	ArmedEventID string
}

// Build creates a calendar with one VEVENT per candidate, each carrying a
// VALARM that fires at the candidate's alarm time.
func Build(cands []model.Candidate, cfg ExportConfig) *ical.Calendar {
	if cfg.Now.IsZero() {
		cfg.Now = time.Now()
	}
	if cfg.DefaultDuration <= 0 {
		cfg.DefaultDuration = 90 * time.Minute
	}

	sorted := append([]model.Candidate(nil), cands...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].EventAt.Before(sorted[j].EventAt)
	})

	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId(productID)

	for _, c := range sorted {
		ev := cal.AddEvent(uidFor(c))
		ev.SetDtStampTime(cfg.Now)
		ev.SetStartAt(c.EventAt)
		ev.SetEndAt(endOf(c, cfg.DefaultDuration))
		ev.SetSummary(c.Title)
		if c.Room != "" {
			ev.SetLocation(c.Room)
		}
		ev.SetDescription(describe(c, c.EventID == cfg.ArmedEventID))

		lead := c.EventAt.Sub(c.AlarmAt)
		if lead < 0 {
			lead = 0
		}
		a := ev.AddAlarm()
		a.SetAction(ical.ActionDisplay)
		a.SetTrigger(fmt.Sprintf("-PT%dM", int(lead/time.Minute)))
		a.SetProperty(ical.ComponentPropertyDescription, "пора вставать")
	}
	return cal
}

// Export serializes Build's calendar.
func Export(cands []model.Candidate, cfg ExportConfig) []byte {
	return []byte(Build(cands, cfg).Serialize())
}

func uidFor(c model.Candidate) string {
	return fmt.Sprintf("%s-%s-%s@studalarm", c.Source, c.EventID, c.EventAt.UTC().Format("20060102T1504"))
}

// endOf uses the end of an "HH:MM-HH:MM" range when present.
func endOf(c model.Candidate, def time.Duration) time.Time {
	if _, rest, ok := strings.Cut(c.Time, "-"); ok {
		if end, ok := schedule.StartOn(model.Lesson{Time: rest}, c.EventAt); ok && end.After(c.EventAt) {
			return end
		}
	}
	return c.EventAt.Add(def)
}

func describe(c model.Candidate, armed bool) string {
	var b strings.Builder
	if c.Kind != "" {
		b.WriteString(c.Kind)
		b.WriteString("\n")
	}
	if c.Online {
		b.WriteString("онлайн\n")
	} else {
		fmt.Fprintf(&b, "дорога: %d мин\n", c.TravelMinutes)
	}
	fmt.Fprintf(&b, "будильник: %s", c.AlarmAt.Format("02.01.2006 15:04"))
	if armed {
		b.WriteString(" (установлен)")
	}
	return b.String()
}
