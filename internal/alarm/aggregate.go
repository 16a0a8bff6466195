package alarm

import (
	"sort"
	"time"

	"github.com/teambition/rrule-go"

	appLog "studalarm/internal/log"
	"studalarm/internal/model"
	"studalarm/internal/schedule"
	"studalarm/internal/travel"
)

// DefaultHorizonWeeks caps the weekly forward search.
const DefaultHorizonWeeks = 3

// ReminderKind is the Kind of candidates built from reminders.
const ReminderKind = "напоминание"

// AggregateInput is everything the aggregator reads.
type AggregateInput struct {
	Schedule  schedule.Schedule
	Custom    []model.CustomLesson
	Reminders []model.Reminder
	Settings  model.Settings
	Resolver  *travel.Resolver
	// HorizonWeeks bounds how many extra weeks a recurring lesson is
	// projected when this week's alarm would already be past. Zero means
	// DefaultHorizonWeeks.
	HorizonWeeks int
}

// Aggregate turns every source into dated alarm candidates whose trigger is
// still ahead of now. Output order is unspecified.
func Aggregate(in AggregateInput, now time.Time) []model.Candidate {
	if in.Resolver == nil {
		in.Resolver = travel.NewResolver(travel.Rules{}, nil, in.Settings.DefaultTravelMinutes)
	}
	if in.HorizonWeeks <= 0 {
		in.HorizonWeeks = DefaultHorizonWeeks
	}

	out := make([]model.Candidate, 0)

	weekdays := make([]int, 0, len(in.Schedule.Days))
	for wd := range in.Schedule.Days {
		weekdays = append(weekdays, wd)
	}
	sort.Ints(weekdays)

	for _, wd := range weekdays {
		for _, l := range in.Schedule.Days[wd] {
			res := in.Resolver.Resolve(l.Room, "")
			src := model.SourceLesson
			var (
				c  model.Candidate
				ok bool
			)
			if l.SessionDate != "" {
				src = model.SourceSession
				c, ok = dated(l, l.SessionDate, res, in.Settings, now)
			} else {
				c, ok = recurring(l, wd, res, in.Settings, in.HorizonWeeks, now)
			}
			if !ok {
				continue
			}
			c.Source = src
			out = append(out, c)
		}
	}

	for _, cl := range in.Custom {
		res := in.Resolver.Resolve(cl.Room, cl.AddressID)
		c, ok := recurring(cl.Lesson, cl.DayNumber, res, in.Settings, in.HorizonWeeks, now)
		if !ok {
			continue
		}
		c.Source = model.SourceCustom
		out = append(out, c)
	}

	for _, r := range in.Reminders {
		at, ok := r.At(now.Location())
		if !ok || !at.After(now) {
			continue
		}
		res := in.Resolver.Resolve("", r.AddressID)
		alarmAt := at.Add(-in.Settings.Lead(res.Minutes))
		if !alarmAt.After(now) {
			continue
		}
		out = append(out, model.Candidate{
			Source:        model.SourceReminder,
			EventID:       r.ID,
			Title:         r.Title,
			Kind:          ReminderKind,
			Time:          r.Time,
			EventAt:       at,
			AlarmAt:       alarmAt,
			TravelMinutes: res.Minutes,
			Online:        res.Online,
			Campus:        res.Campus,
			AddressID:     res.AddressID,
		})
	}

	return out
}

// recurring projects a weekly lesson onto its first occurrence whose alarm
// is still ahead of now, looking at most horizon weeks past the first.
func recurring(l model.Lesson, weekday int, res travel.Resolution, s model.Settings, horizon int, now time.Time) (model.Candidate, bool) {
	if weekday < 1 || weekday > 7 {
		return model.Candidate{}, false
	}
	delta := ((weekday-schedule.Weekday(now))%7 + 7) % 7
	first, ok := schedule.StartOn(l, now.AddDate(0, 0, delta))
	if !ok {
		appLog.Debug("aggregate: skipping lesson with unparsable time", "id", l.ID, "time", l.Time)
		return model.Candidate{}, false
	}

	rule, err := rrule.NewRRule(rrule.ROption{
		Freq:    rrule.WEEKLY,
		Count:   horizon + 1,
		Dtstart: first,
	})
	if err != nil {
		appLog.Debug("aggregate: weekly rule rejected", "id", l.ID, "err", err)
		return model.Candidate{}, false
	}

	lead := s.Lead(res.Minutes)
	next := rule.Iterator()
	for {
		start, more := next()
		if !more {
			return model.Candidate{}, false
		}
		if !schedule.ActiveOn(l, start) {
			continue
		}
		if alarmAt := start.Add(-lead); alarmAt.After(now) {
			return candidateFor(l, res, start, alarmAt), true
		}
	}
}

// dated places a lesson on a literal ISO date.
func dated(l model.Lesson, date string, res travel.Resolution, s model.Settings, now time.Time) (model.Candidate, bool) {
	day, err := time.ParseInLocation(model.ISODateLayout, date, now.Location())
	if err != nil {
		return model.Candidate{}, false
	}
	start, ok := schedule.StartOn(l, day)
	if !ok {
		appLog.Debug("aggregate: skipping lesson with unparsable time", "id", l.ID, "time", l.Time)
		return model.Candidate{}, false
	}
	alarmAt := start.Add(-s.Lead(res.Minutes))
	if !alarmAt.After(now) {
		return model.Candidate{}, false
	}
	return candidateFor(l, res, start, alarmAt), true
}

func candidateFor(l model.Lesson, res travel.Resolution, start, alarmAt time.Time) model.Candidate {
	return model.Candidate{
		EventID:       l.ID,
		Title:         l.Subject,
		Kind:          l.Type,
		Room:          l.Room,
		Time:          l.Time,
		EventAt:       start,
		AlarmAt:       alarmAt,
		TravelMinutes: res.Minutes,
		Online:        res.Online,
		Campus:        res.Campus,
		AddressID:     res.AddressID,
	}
}
