package alarm

import (
	"fmt"
	"time"

	"studalarm/internal/model"
)

// SelectNearest returns the candidate with the earliest AlarmAt. Ties keep
// the earlier element.
func SelectNearest(cands []model.Candidate) (model.Candidate, bool) {
	if len(cands) == 0 {
		return model.Candidate{}, false
	}
	best := 0
	for i := 1; i < len(cands); i++ {
		if cands[i].AlarmAt.Before(cands[best].AlarmAt) {
			best = i
		}
	}
	return cands[best], true
}

// Breakdown explains how far ahead of the event the alarm fires.
type Breakdown struct {
	Routine int `json:"morningRoutine"`
	Travel  int `json:"travelTime"`
	Buffer  int `json:"extraTime"`
	Total   int `json:"total"`
}

func BreakdownFor(c model.Candidate, s model.Settings) Breakdown {
	return Breakdown{
		Routine: s.RoutineMinutes,
		Travel:  c.TravelMinutes,
		Buffer:  s.BufferMinutes,
		Total:   s.RoutineMinutes + c.TravelMinutes + s.BufferMinutes,
	}
}

// Countdown is the remaining time until an alarm.
type Countdown struct {
	Hours        int    `json:"hours"`
	Minutes      int    `json:"minutes"`
	TotalMinutes int    `json:"totalMinutes"`
	Formatted    string `json:"formatted"`
}

// TimeUntil returns nil once alarmAt has passed.
func TimeUntil(alarmAt, now time.Time) *Countdown {
	d := alarmAt.Sub(now)
	if d < 0 {
		return nil
	}
	total := int(d / time.Minute)
	h, m := total/60, total%60
	return &Countdown{
		Hours:        h,
		Minutes:      m,
		TotalMinutes: total,
		Formatted:    fmt.Sprintf("%dч %dмин", h, m),
	}
}

var weekdayNames = [...]string{"Воскресенье", "Понедельник", "Вторник", "Среда", "Четверг", "Пятница", "Суббота"}

// RelativeDay labels t relative to now's calendar day.
func RelativeDay(t, now time.Time) string {
	t = t.In(now.Location())
	ty, tm, td := t.Date()
	ny, nm, nd := now.Date()
	a := time.Date(ty, tm, td, 12, 0, 0, 0, time.UTC)
	b := time.Date(ny, nm, nd, 12, 0, 0, 0, time.UTC)
	switch int(a.Sub(b).Hours() / 24) {
	case 0:
		return "Сегодня"
	case 1:
		return "Завтра"
	case -1:
		return "Вчера"
	}
	return weekdayNames[t.Weekday()]
}

// Status is the state of the refresh cycle.
type Status string

const (
	StatusNoData    Status = "no_data"
	StatusComputing Status = "computing"
	StatusArmed     Status = "armed"
	StatusIdle      Status = "idle"
	StatusFailed    Status = "failed"
)
