package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is the prefix of environment variables that override the file.
const EnvPrefix = "STUDALARM"

// SourceConfig describes the university schedule endpoint.
type SourceConfig struct {
	// BaseURL is the group schedule endpoint; group and session are passed
	// as query parameters.
	BaseURL string `yaml:"base_url" json:"base_url"`
	// Referer is sent with every request; the upstream rejects requests
	// without it.
	Referer string `yaml:"referer" json:"referer"`
	// Attempts bounds the primary/session-variant fetch sequence.
	Attempts int `yaml:"attempts" json:"attempts"`
	// TimeoutSeconds is the per-attempt HTTP timeout.
	TimeoutSeconds int `yaml:"timeout_seconds" json:"timeout_seconds"`
	// CacheTTLHours is how long a parsed schedule is reused before refetching.
	CacheTTLHours int `yaml:"cache_ttl_hours" json:"cache_ttl_hours"`
}

// AlarmConfig holds defaults for user settings that have not been saved yet.
type AlarmConfig struct {
	RoutineMinutes       int `yaml:"routine_minutes" json:"routine_minutes"`
	BufferMinutes        int `yaml:"buffer_minutes" json:"buffer_minutes"`
	DefaultTravelMinutes int `yaml:"default_travel_minutes" json:"default_travel_minutes"`
	// HorizonWeeks caps the weekly forward search for recurring lessons.
	HorizonWeeks int `yaml:"horizon_weeks" json:"horizon_weeks"`
}

// CampusRule maps room text to a campus id. Match is "prefix" or "contains".
type CampusRule struct {
	Match   string `yaml:"match" json:"match"`
	Pattern string `yaml:"pattern" json:"pattern"`
	Campus  string `yaml:"campus" json:"campus"`
}

// BasicAuthConfig holds HTTP Basic Auth credentials for the API.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address for the API.
	Listen string `yaml:"listen" json:"listen"`

	// Timezone is the IANA timezone all lesson times are interpreted in.
	Timezone string `yaml:"timezone" json:"timezone"`

	// RefreshCron is a cron spec (standard or descriptor, e.g. "@every 60s")
	// driving the periodic alarm refresh.
	RefreshCron string `yaml:"refresh" json:"refresh"`

	LogLevel string `yaml:"log_level" json:"log_level"`

	// DBPath is the sqlite file backing the key-value store.
	DBPath string `yaml:"db_path" json:"db_path"`

	// Notifier selects the alarm delivery backend: "desktop" or "memory".
	Notifier string `yaml:"notifier" json:"notifier"`

	// GroupID is the default study group until the user saves settings.
	GroupID string `yaml:"group_id" json:"group_id"`

	// Slots maps lesson numbers to "HH:MM-HH:MM" ranges.
	Slots map[int]string `yaml:"slots" json:"slots"`

	// ExcludedSubjects are case-insensitive substrings of subjects that
	// never appear in a regular (non-session) schedule.
	ExcludedSubjects []string `yaml:"excluded_subjects" json:"excluded_subjects"`

	// OnlineKeywords mark a room as remote delivery (zero travel time).
	OnlineKeywords []string `yaml:"online_keywords" json:"online_keywords"`

	// CampusRules are tried in order; first match wins.
	CampusRules []CampusRule `yaml:"campus_rules" json:"campus_rules"`

	Alarm  AlarmConfig  `yaml:"alarm" json:"alarm"`
	Source SourceConfig `yaml:"source" json:"source"`

	// BasicAuth, if non-nil, enables HTTP Basic Authentication on all endpoints
	// except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`
}

func defaultSlots() map[int]string {
	return map[int]string{
		1: "09:00-10:30",
		2: "10:40-12:10",
		3: "12:20-13:50",
		4: "14:30-16:00",
		5: "16:10-17:40",
		6: "17:50-19:20",
		7: "19:30-21:00",
	}
}

func defaultExcludedSubjects() []string {
	return []string{"физическая культура", "элективные дисциплины по физической"}
}

func defaultOnlineKeywords() []string {
	return []string{
		"online", "онлайн", "zoom", "teams", "webinar", "вебинар",
		"дистанц", "lms", "moodle", "skype", "discord", "meet.google", "телемост",
	}
}

func defaultCampusRules() []CampusRule {
	return []CampusRule{
		{Match: "prefix", Pattern: "пр-", Campus: "pr"},
		{Match: "prefix", Pattern: "пк-", Campus: "pk"},
		{Match: "prefix", Pattern: "ав-", Campus: "av"},
		{Match: "prefix", Pattern: "бс-", Campus: "bs"},
		{Match: "prefix", Pattern: "м-", Campus: "m"},
	}
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen:           "127.0.0.1:8080",
		Timezone:         "Europe/Moscow",
		RefreshCron:      "@every 60s",
		LogLevel:         "INFO",
		DBPath:           "/var/lib/studalarm/studalarm.db",
		Notifier:         "desktop",
		Slots:            defaultSlots(),
		ExcludedSubjects: defaultExcludedSubjects(),
		OnlineKeywords:   defaultOnlineKeywords(),
		CampusRules:      defaultCampusRules(),
		Alarm: AlarmConfig{
			RoutineMinutes:       60,
			BufferMinutes:        10,
			DefaultTravelMinutes: 90,
			HorizonWeeks:         3,
		},
		Source: SourceConfig{
			BaseURL:        "https://rasp.dmami.ru/site/group",
			Referer:        "https://rasp.dmami.ru/",
			Attempts:       2,
			TimeoutSeconds: 15,
			CacheTTLHours:  24,
		},
		BasicAuth: nil,
	}
}

// Normalize fills in missing/zero values with sensible defaults so that
// partially-filled configs (e.g., older versions) still behave correctly.
func (c *Config) Normalize() {
	def := DefaultConfig()

	if c.Listen == "" {
		c.Listen = def.Listen
	}
	if c.Timezone == "" {
		c.Timezone = def.Timezone
	}
	if c.RefreshCron == "" {
		c.RefreshCron = def.RefreshCron
	}
	if c.LogLevel == "" {
		c.LogLevel = def.LogLevel
	}
	if c.DBPath == "" {
		c.DBPath = def.DBPath
	}
	switch c.Notifier {
	case "desktop", "memory":
	default:
		c.Notifier = def.Notifier
	}
	if len(c.Slots) == 0 {
		c.Slots = def.Slots
	}
	// nil means "not configured"; an explicit empty list disables the filter.
	if c.ExcludedSubjects == nil {
		c.ExcludedSubjects = def.ExcludedSubjects
	}
	if c.OnlineKeywords == nil {
		c.OnlineKeywords = def.OnlineKeywords
	}
	if c.CampusRules == nil {
		c.CampusRules = def.CampusRules
	}
	for i := range c.CampusRules {
		if c.CampusRules[i].Match != "contains" {
			c.CampusRules[i].Match = "prefix"
		}
	}

	if c.Alarm.RoutineMinutes < 0 {
		c.Alarm.RoutineMinutes = 0
	}
	if c.Alarm.RoutineMinutes == 0 {
		c.Alarm.RoutineMinutes = def.Alarm.RoutineMinutes
	}
	if c.Alarm.BufferMinutes < 0 {
		c.Alarm.BufferMinutes = 0
	}
	if c.Alarm.DefaultTravelMinutes <= 0 {
		c.Alarm.DefaultTravelMinutes = def.Alarm.DefaultTravelMinutes
	}
	if c.Alarm.HorizonWeeks <= 0 {
		c.Alarm.HorizonWeeks = def.Alarm.HorizonWeeks
	}

	if c.Source.BaseURL == "" {
		c.Source.BaseURL = def.Source.BaseURL
	}
	if c.Source.Attempts <= 0 {
		c.Source.Attempts = def.Source.Attempts
	}
	if c.Source.TimeoutSeconds <= 0 {
		c.Source.TimeoutSeconds = def.Source.TimeoutSeconds
	}
	if c.Source.CacheTTLHours <= 0 {
		c.Source.CacheTTLHours = def.Source.CacheTTLHours
	}
}

// Location resolves Timezone, falling back to time.Local.
func (c *Config) Location() *time.Location {
	if c.Timezone == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

// SourceTimeout returns the per-attempt fetch timeout.
func (c *Config) SourceTimeout() time.Duration {
	return time.Duration(c.Source.TimeoutSeconds) * time.Second
}

// CacheTTL returns how long a cached schedule stays fresh.
func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.Source.CacheTTLHours) * time.Hour
}

// Load loads configuration from the given YAML path.
//
// Behavior:
//   - If the file does not exist:
//   - create parent directory if needed
//   - write a default config with 0600 perms
//   - If the file exists:
//   - read YAML and unmarshal into Config
//   - A dotenv file next to the config (studalarm.env) is loaded if present,
//     then STUDALARM_* environment variables override file values.
//   - normalize defaults
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	var cfg *Config
	data, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
		// First run: create default config file.
		cfg = DefaultConfig()
		if err := Save(path, cfg); err != nil {
			// Even if save fails, return cfg with error so caller can decide.
			applyEnv(cfg, envFilePath(path))
			cfg.Normalize()
			return cfg, err
		}
	} else {
		cfg = &Config{}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("decode config %s: %w", path, err)
		}
	}

	applyEnv(cfg, envFilePath(path))
	cfg.Normalize()

	return cfg, nil
}

func envFilePath(configPath string) string {
	if p := strings.TrimSpace(os.Getenv(EnvPrefix + "_ENV_FILE")); p != "" {
		return p
	}
	return filepath.Join(filepath.Dir(configPath), "studalarm.env")
}

// applyEnv overlays environment overrides onto cfg. Variables already set
// in the process environment win over the dotenv file.
func applyEnv(cfg *Config, envFile string) {
	if _, err := os.Stat(envFile); err == nil {
		_ = godotenv.Load(envFile)
	}

	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()

	for _, key := range []string{
		"listen", "timezone", "refresh", "log_level", "db_path", "notifier",
		"group_id", "source_url", "source_attempts", "source_timeout_seconds",
		"routine_minutes", "buffer_minutes", "default_travel_minutes",
	} {
		_ = v.BindEnv(key)
	}

	setString := func(key string, dst *string) {
		if s := strings.TrimSpace(v.GetString(key)); s != "" {
			*dst = s
		}
	}
	setInt := func(key string, dst *int) {
		if strings.TrimSpace(v.GetString(key)) != "" {
			*dst = v.GetInt(key)
		}
	}

	setString("listen", &cfg.Listen)
	setString("timezone", &cfg.Timezone)
	setString("refresh", &cfg.RefreshCron)
	setString("log_level", &cfg.LogLevel)
	setString("db_path", &cfg.DBPath)
	setString("notifier", &cfg.Notifier)
	setString("group_id", &cfg.GroupID)
	setString("source_url", &cfg.Source.BaseURL)
	setInt("source_attempts", &cfg.Source.Attempts)
	setInt("source_timeout_seconds", &cfg.Source.TimeoutSeconds)
	setInt("routine_minutes", &cfg.Alarm.RoutineMinutes)
	setInt("buffer_minutes", &cfg.Alarm.BufferMinutes)
	setInt("default_travel_minutes", &cfg.Alarm.DefaultTravelMinutes)
}

// Save writes the given configuration to the specified path.
//
// Implementation details:
//   - Ensures parent directory exists (0700).
//   - Marshals cfg to YAML.
//   - Writes atomically via a temp file + rename.
//   - Ensures final file permissions are 0600.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".studalarm-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}

	return os.Rename(tmpName, path)
}
