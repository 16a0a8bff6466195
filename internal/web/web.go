package web

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"studalarm/internal/app"
	"studalarm/internal/config"
	appLog "studalarm/internal/log"
	"studalarm/internal/schedule"
	"studalarm/internal/store"
	"studalarm/internal/weather"
)

// APIVersion is reported in every response envelope.
const APIVersion = "v1"

const requestIDKey = "requestId"

// Deps are the collaborators the HTTP layer talks to.
type Deps struct {
	Config      *config.Config
	Service     *app.Service
	Reminders   *store.Reminders
	Lessons     *store.CustomLessons
	Addresses   *store.Addresses
	Settings    *store.SettingsRepo
	TravelTimes *store.TravelTimes
	Debug       bool
	// SyncRefresh makes mutating endpoints wait for the follow-up refresh.
	SyncRefresh bool
}

// Server provides the JSON API for the alarm, its sources and settings.
type Server struct {
	d      Deps
	engine *gin.Engine
}

// NewServer constructs a new Server.
func NewServer(d Deps) *Server {
	s := &Server{d: d, engine: gin.New()}
	s.engine.Use(gin.Recovery(), requestLogger())
	if s.basicAuthEnabled() {
		appLog.Info("HTTP basic auth enabled", "listen", "http://"+d.Config.Listen)
		s.engine.Use(s.basicAuth())
	}
	s.registerRoutes()
	return s
}

// Handler returns the underlying http.Handler for this server.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// basicAuthEnabled reports whether HTTP Basic Auth is configured.
func (s *Server) basicAuthEnabled() bool {
	if s.d.Config == nil || s.d.Config.BasicAuth == nil {
		return false
	}
	// Blank credentials disable auth.
	return s.d.Config.BasicAuth.Username != "" && s.d.Config.BasicAuth.Password != ""
}

// basicAuth guards every route except /health.
func (s *Server) basicAuth() gin.HandlerFunc {
	username := s.d.Config.BasicAuth.Username
	password := s.d.Config.BasicAuth.Password

	return func(c *gin.Context) {
		if c.Request.URL.Path == "/health" {
			c.Next()
			return
		}
		u, p, ok := c.Request.BasicAuth()
		if !ok || !secureCompare(u, username) || !secureCompare(p, password) {
			c.Header("WWW-Authenticate", `Basic realm="studalarm", charset="UTF-8"`)
			c.AbortWithStatusJSON(http.StatusUnauthorized, failure(c, "unauthorized"))
			return
		}
		c.Next()
	}
}

// secureCompare compares two strings in constant time.
func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(requestIDKey, id)
		c.Header("X-Request-ID", id)

		start := time.Now()
		c.Next()
		appLog.Debug("http request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"took", time.Since(start).String(),
			"request_id", id,
		)
	}
}

// StartServer serves the API on cfg.Listen until ctx is cancelled.
func StartServer(ctx context.Context, d Deps) error {
	s := NewServer(d)
	srv := &http.Server{
		Addr:              d.Config.Listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	appLog.Info("starting HTTP server", "listen", "http://"+d.Config.Listen, "debug", d.Debug)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) registerRoutes() {
	r := s.engine
	r.GET("/health", s.handleHealth)
	r.GET("/calendar.ics", s.handleCalendar)

	api := r.Group("/api")
	{
		api.GET("/alarm", s.handleAlarm)
		api.POST("/refresh", s.handleRefresh)
		api.GET("/schedule", s.handleSchedule)
		api.GET("/next-class", s.handleNextClass)
		api.GET("/weather", s.handleWeather)

		api.GET("/reminders", s.listReminders)
		api.POST("/reminders", s.addReminder)
		api.PUT("/reminders/:id", s.updateReminder)
		api.DELETE("/reminders/:id", s.deleteReminder)

		api.GET("/lessons", s.listLessons)
		api.POST("/lessons", s.addLesson)
		api.PUT("/lessons/:id", s.updateLesson)
		api.DELETE("/lessons/:id", s.deleteLesson)

		api.GET("/addresses", s.listAddresses)
		api.POST("/addresses", s.addAddress)
		api.DELETE("/addresses/:id", s.deleteAddress)

		api.GET("/travel-times", s.listTravelTimes)
		api.PUT("/travel-times/:id", s.setTravelTime)

		api.GET("/settings", s.getSettings)
		api.PUT("/settings", s.putSettings)
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	c.String(http.StatusOK, "OK")
}

// Metadata accompanies every API response.
type Metadata struct {
	Timestamp time.Time `json:"timestamp"`
	Version   string    `json:"version"`
	RequestID string    `json:"requestId"`
}

// APIResponse is the uniform JSON envelope.
type APIResponse struct {
	Data     any      `json:"data"`
	Errors   []string `json:"errors"`
	Metadata Metadata `json:"metadata"`
}

func envelope(c *gin.Context, data any, errs []string) APIResponse {
	if errs == nil {
		errs = []string{}
	}
	return APIResponse{
		Data:   data,
		Errors: errs,
		Metadata: Metadata{
			Timestamp: time.Now(),
			Version:   APIVersion,
			RequestID: c.GetString(requestIDKey),
		},
	}
}

func success(c *gin.Context, data any) APIResponse { return envelope(c, data, nil) }

func failure(c *gin.Context, errs ...string) APIResponse { return envelope(c, nil, errs) }

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, store.ErrInvalid), errors.Is(err, weather.ErrNoCity), errors.Is(err, schedule.ErrEmptyGroup):
		return http.StatusBadRequest
	case errors.Is(err, schedule.ErrFetchFailed):
		return http.StatusBadGateway
	case errors.Is(err, app.ErrSuperseded):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) fail(c *gin.Context, err error) {
	code := statusFor(err)
	if code >= http.StatusInternalServerError {
		appLog.Error("api request failed", err, "path", c.FullPath())
	}
	c.JSON(code, failure(c, err.Error()))
}

// afterChange recomputes the alarm once an event source changed.
func (s *Server) afterChange(ctx context.Context) {
	run := func(ctx context.Context) {
		if _, err := s.d.Service.Refresh(ctx, false); err != nil && !errors.Is(err, app.ErrSuperseded) {
			appLog.Warn("refresh after change failed", "err", err)
		}
	}
	if s.d.SyncRefresh {
		run(ctx)
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		run(ctx)
	}()
}
