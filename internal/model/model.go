package model

import (
	"strings"
	"time"
)

// Display fallbacks used when the university grid leaves a field blank.
const (
	UnknownSubject   = "неизвестный предмет"
	UnknownType      = "занятие"
	UnknownRoom      = "аудитория не указана"
	UnknownProfessor = "преподаватель не указан"
)

// Lesson is a single parsed class from the university grid.
//
// Regular lessons recur weekly on the bucket weekday. Session lessons
// (exam period) carry a literal SessionDate and never recur.
type Lesson struct {
	ID           string `json:"id"`
	Time         string `json:"time"` // "HH:MM-HH:MM"
	Subject      string `json:"subject"`
	Type         string `json:"type"`
	Room         string `json:"room"`
	Professor    string `json:"professor"`
	LessonNumber int    `json:"lessonNumber"`

	DateFrom string `json:"dateFrom,omitempty"` // YYYY-MM-DD
	DateTo   string `json:"dateTo,omitempty"`   // YYYY-MM-DD

	IsSession   bool   `json:"isSession"`
	SessionDate string `json:"sessionDate,omitempty"` // YYYY-MM-DD
}

// CustomLesson is a user-created weekly lesson. It never expires and is
// never session-dated.
type CustomLesson struct {
	Lesson
	DayNumber int       `json:"dayNumber"`
	AddressID string    `json:"addressId,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt,omitempty"`
}

// Reminder is a one-off user event.
type Reminder struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Date        string    `json:"date"` // DD.MM.YYYY
	Time        string    `json:"time"` // HH:MM
	AddressID   string    `json:"addressId,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt,omitempty"`
}

const (
	ReminderDateLayout = "02.01.2006"
	ReminderTimeLayout = "15:04"
	ISODateLayout      = "2006-01-02"
)

// At returns the reminder's moment in loc.
func (r Reminder) At(loc *time.Location) (time.Time, bool) {
	t, err := time.ParseInLocation(ReminderDateLayout+" "+ReminderTimeLayout, strings.TrimSpace(r.Date)+" "+strings.TrimSpace(r.Time), loc)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// IsPast reports whether the reminder moment is not after now. Reminders
// with an unparsable date are treated as past.
func (r Reminder) IsPast(now time.Time) bool {
	at, ok := r.At(now.Location())
	if !ok {
		return true
	}
	return !at.After(now)
}

type AddressType string

const (
	AddressCampus AddressType = "campus"
	AddressDorm   AddressType = "dorm"
	AddressCustom AddressType = "custom"
)

type Address struct {
	ID        string      `json:"id"`
	Name      string      `json:"name"`
	Code      string      `json:"code,omitempty"`
	Address   string      `json:"address"`
	Type      AddressType `json:"type"`
	CreatedAt *time.Time  `json:"createdAt,omitempty"`
}

// Settings are the user-tunable alarm inputs.
type Settings struct {
	GroupID              string `json:"groupId"`
	RoutineMinutes       int    `json:"morningRoutine"`
	BufferMinutes        int    `json:"extraTime"`
	DefaultTravelMinutes int    `json:"defaultTravelTime"`
	HomeAddress          string `json:"homeAddress,omitempty"`
	TransportMode        string `json:"transportMode,omitempty"`
	City                 string `json:"city,omitempty"`
}

// Lead is the total time between the alarm and the event for a given
// travel time.
func (s Settings) Lead(travelMinutes int) time.Duration {
	return time.Duration(s.RoutineMinutes+travelMinutes+s.BufferMinutes) * time.Minute
}

type Source string

const (
	SourceLesson   Source = "lesson"
	SourceSession  Source = "session"
	SourceCustom   Source = "custom"
	SourceReminder Source = "reminder"
)

// Candidate is a dated event annotated with its derived alarm trigger.
// AlarmAt is always EventAt minus routine, travel and buffer.
type Candidate struct {
	Source  Source `json:"source"`
	EventID string `json:"eventId"`
	Title   string `json:"title"`
	Kind    string `json:"kind,omitempty"`
	Room    string `json:"room,omitempty"`
	Time    string `json:"time,omitempty"`

	EventAt time.Time `json:"eventAt"`
	AlarmAt time.Time `json:"alarmAt"`

	TravelMinutes int    `json:"travelMinutes"`
	Online        bool   `json:"online"`
	Campus        string `json:"campus,omitempty"`
	AddressID     string `json:"addressId,omitempty"`
}

// Same reports whether two candidates describe the same trigger for the
// same event.
func (c Candidate) Same(o Candidate) bool {
	return c.Source == o.Source && c.EventID == o.EventID &&
		c.EventAt.Equal(o.EventAt) && c.AlarmAt.Equal(o.AlarmAt)
}
