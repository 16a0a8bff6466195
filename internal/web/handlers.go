package web

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"studalarm/internal/alarm"
	"studalarm/internal/app"
	"studalarm/internal/ics"
	"studalarm/internal/model"
	"studalarm/internal/store"
)

type alarmResponse struct {
	app.Result
	Pending *alarm.Armed `json:"pending,omitempty"`
}

func (s *Server) handleAlarm(c *gin.Context) {
	res := s.d.Service.Last()
	if res.Candidate != nil {
		now := s.d.Service.Now()
		res.Countdown = alarm.TimeUntil(res.Candidate.AlarmAt, now)
		res.Day = alarm.RelativeDay(res.Candidate.AlarmAt, now)
	}
	pending, err := s.d.Service.Pending(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, success(c, alarmResponse{Result: res, Pending: pending}))
}

func (s *Server) handleRefresh(c *gin.Context) {
	force := c.Query("force") == "1" || c.Query("force") == "true"
	res, err := s.d.Service.Refresh(c.Request.Context(), force)
	if errors.Is(err, app.ErrSuperseded) {
		c.JSON(http.StatusAccepted, success(c, s.d.Service.Last()))
		return
	}
	if err != nil {
		c.JSON(statusFor(err), envelope(c, res, []string{err.Error()}))
		return
	}
	c.JSON(http.StatusOK, success(c, res))
}

type scheduleResponse struct {
	Source       string                 `json:"source"`
	IsSession    bool                   `json:"isSession"`
	SessionDates []string               `json:"sessionDates,omitempty"`
	Days         map[int][]model.Lesson `json:"days,omitempty"`
	Lessons      []model.Lesson         `json:"lessons,omitempty"`
}

// handleSchedule returns the whole week, one weekday (?day=1..7) or one
// calendar date (?date=YYYY-MM-DD).
func (s *Server) handleSchedule(c *gin.Context) {
	sched, src, err := s.d.Service.Schedule(c.Request.Context(), false)
	if err != nil {
		s.fail(c, err)
		return
	}
	resp := scheduleResponse{Source: src, IsSession: sched.IsSession, SessionDates: sched.SessionDates}

	switch {
	case c.Query("day") != "":
		day, err := strconv.Atoi(c.Query("day"))
		if err != nil || day < 1 || day > 7 {
			c.JSON(http.StatusBadRequest, failure(c, "day must be 1..7"))
			return
		}
		resp.Lessons = sched.ForDay(day)
	case c.Query("date") != "":
		d, err := time.ParseInLocation(model.ISODateLayout, c.Query("date"), s.d.Service.Location())
		if err != nil {
			c.JSON(http.StatusBadRequest, failure(c, "date must be YYYY-MM-DD"))
			return
		}
		resp.Lessons = sched.ForDate(d)
	default:
		resp.Days = sched.Days
	}
	if resp.Days == nil && resp.Lessons == nil {
		resp.Lessons = []model.Lesson{}
	}
	c.JSON(http.StatusOK, success(c, resp))
}

func (s *Server) handleNextClass(c *gin.Context) {
	sched, _, err := s.d.Service.Schedule(c.Request.Context(), false)
	if err != nil {
		s.fail(c, err)
		return
	}
	next, ok := sched.NextClass(s.d.Service.Now())
	if !ok {
		c.JSON(http.StatusOK, success(c, nil))
		return
	}
	c.JSON(http.StatusOK, success(c, next))
}

func (s *Server) handleWeather(c *gin.Context) {
	rep, tips, err := s.d.Service.Weather(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, success(c, gin.H{"weather": rep, "recommendations": tips}))
}

func (s *Server) handleCalendar(c *gin.Context) {
	ctx := c.Request.Context()
	cands, err := s.d.Service.Upcoming(ctx)
	if err != nil {
		s.fail(c, err)
		return
	}
	cfg := ics.ExportConfig{Now: s.d.Service.Now()}
	if rec, err := s.d.Service.Pending(ctx); err == nil && rec != nil {
		cfg.ArmedEventID = rec.Candidate.EventID
	}
	c.Data(http.StatusOK, "text/calendar; charset=utf-8", ics.Export(cands, cfg))
}

func (s *Server) listReminders(c *gin.Context) {
	list, err := s.d.Reminders.List(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, success(c, list))
}

func (s *Server) addReminder(c *gin.Context) {
	var in store.ReminderInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, failure(c, err.Error()))
		return
	}
	r, err := s.d.Reminders.Add(c.Request.Context(), in)
	if err != nil {
		s.fail(c, err)
		return
	}
	s.afterChange(c.Request.Context())
	c.JSON(http.StatusCreated, success(c, r))
}

func (s *Server) updateReminder(c *gin.Context) {
	var in store.ReminderInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, failure(c, err.Error()))
		return
	}
	r, err := s.d.Reminders.Update(c.Request.Context(), c.Param("id"), in)
	if err != nil {
		s.fail(c, err)
		return
	}
	s.afterChange(c.Request.Context())
	c.JSON(http.StatusOK, success(c, r))
}

func (s *Server) deleteReminder(c *gin.Context) {
	if err := s.d.Reminders.Delete(c.Request.Context(), c.Param("id")); err != nil {
		s.fail(c, err)
		return
	}
	s.afterChange(c.Request.Context())
	c.JSON(http.StatusOK, success(c, nil))
}

func (s *Server) listLessons(c *gin.Context) {
	list, err := s.d.Lessons.List(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, success(c, list))
}

func (s *Server) addLesson(c *gin.Context) {
	var in store.LessonInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, failure(c, err.Error()))
		return
	}
	l, err := s.d.Lessons.Add(c.Request.Context(), in)
	if err != nil {
		s.fail(c, err)
		return
	}
	s.afterChange(c.Request.Context())
	c.JSON(http.StatusCreated, success(c, l))
}

func (s *Server) updateLesson(c *gin.Context) {
	var in store.LessonInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, failure(c, err.Error()))
		return
	}
	l, err := s.d.Lessons.Update(c.Request.Context(), c.Param("id"), in)
	if err != nil {
		s.fail(c, err)
		return
	}
	s.afterChange(c.Request.Context())
	c.JSON(http.StatusOK, success(c, l))
}

func (s *Server) deleteLesson(c *gin.Context) {
	if err := s.d.Lessons.Delete(c.Request.Context(), c.Param("id")); err != nil {
		s.fail(c, err)
		return
	}
	s.afterChange(c.Request.Context())
	c.JSON(http.StatusOK, success(c, nil))
}

func (s *Server) listAddresses(c *gin.Context) {
	book, err := s.d.Addresses.Book(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, success(c, book))
}

func (s *Server) addAddress(c *gin.Context) {
	var in store.AddressInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, failure(c, err.Error()))
		return
	}
	a, err := s.d.Addresses.Add(c.Request.Context(), in)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, success(c, a))
}

func (s *Server) deleteAddress(c *gin.Context) {
	if err := s.d.Addresses.Delete(c.Request.Context(), c.Param("id")); err != nil {
		s.fail(c, err)
		return
	}
	s.afterChange(c.Request.Context())
	c.JSON(http.StatusOK, success(c, nil))
}

func (s *Server) listTravelTimes(c *gin.Context) {
	times, err := s.d.TravelTimes.All(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, success(c, times))
}

type travelTimeBody struct {
	Minutes int `json:"minutes"`
}

func (s *Server) setTravelTime(c *gin.Context) {
	var body travelTimeBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, failure(c, err.Error()))
		return
	}
	id := c.Param("id")
	if err := s.d.TravelTimes.Set(c.Request.Context(), id, body.Minutes); err != nil {
		s.fail(c, err)
		return
	}
	s.afterChange(c.Request.Context())
	c.JSON(http.StatusOK, success(c, gin.H{"id": id, "minutes": body.Minutes}))
}

func (s *Server) getSettings(c *gin.Context) {
	st, err := s.d.Settings.Load(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, success(c, st))
}

func (s *Server) putSettings(c *gin.Context) {
	ctx := c.Request.Context()
	var in model.Settings
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, failure(c, err.Error()))
		return
	}
	prev, err := s.d.Settings.Load(ctx)
	if err != nil {
		s.fail(c, err)
		return
	}
	if err := s.d.Settings.Save(ctx, in); err != nil {
		s.fail(c, err)
		return
	}
	if strings.TrimSpace(in.GroupID) != prev.GroupID {
		if err := s.d.Service.InvalidateSchedule(ctx); err != nil {
			s.fail(c, err)
			return
		}
	}
	s.afterChange(ctx)

	st, err := s.d.Settings.Load(ctx)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, success(c, st))
}
