// Package travel decides how long it takes to reach a lesson or reminder.
package travel

import (
	"html"
	"regexp"
	"strings"

	"studalarm/internal/config"
)

// DefaultMinutes is used when nothing more specific is known.
const DefaultMinutes = 90

// MatchKind selects how a CampusRule pattern is applied.
type MatchKind string

const (
	MatchPrefix   MatchKind = "prefix"
	MatchContains MatchKind = "contains"
)

// CampusRule maps lowercased room text to a campus id.
type CampusRule struct {
	Pattern string
	Campus  string
	Match   MatchKind
}

func (r CampusRule) matches(room string) bool {
	p := strings.ToLower(r.Pattern)
	if p == "" {
		return false
	}
	if r.Match == MatchContains {
		return strings.Contains(room, p)
	}
	return strings.HasPrefix(room, p)
}

// Rules is immutable resolver configuration.
type Rules struct {
	OnlineKeywords []string
	Campus         []CampusRule
	DefaultMinutes int
}

// RulesFromConfig builds Rules from the config file.
func RulesFromConfig(cfg *config.Config) Rules {
	r := Rules{
		OnlineKeywords: append([]string(nil), cfg.OnlineKeywords...),
		DefaultMinutes: cfg.Alarm.DefaultTravelMinutes,
	}
	for _, cr := range cfg.CampusRules {
		r.Campus = append(r.Campus, CampusRule{Pattern: cr.Pattern, Campus: cr.Campus, Match: MatchKind(cr.Match)})
	}
	return r
}

// Resolution is the outcome of resolving one event location.
type Resolution struct {
	Minutes   int    `json:"minutes"`
	Online    bool   `json:"online"`
	Campus    string `json:"campus,omitempty"`
	AddressID string `json:"addressId,omitempty"`
}

// Resolver is a pure function of its rules and travel-time table.
type Resolver struct {
	rules Rules
	times map[string]int
}

// NewResolver copies rules and times; later changes to the inputs do not
// affect the resolver. defaultMinutes overrides rules.DefaultMinutes when
// positive.
func NewResolver(rules Rules, times map[string]int, defaultMinutes int) *Resolver {
	if defaultMinutes > 0 {
		rules.DefaultMinutes = defaultMinutes
	}
	if rules.DefaultMinutes <= 0 {
		rules.DefaultMinutes = DefaultMinutes
	}
	kw := make([]string, 0, len(rules.OnlineKeywords))
	for _, k := range rules.OnlineKeywords {
		if k = strings.ToLower(strings.TrimSpace(k)); k != "" {
			kw = append(kw, k)
		}
	}
	rules.OnlineKeywords = kw
	rules.Campus = append([]CampusRule(nil), rules.Campus...)

	t := make(map[string]int, len(times))
	for k, v := range times {
		t[k] = v
	}
	return &Resolver{rules: rules, times: t}
}

var tagRe = regexp.MustCompile(`<[^>]*>`)

func normalizeRoom(s string) string {
	s = html.UnescapeString(tagRe.ReplaceAllString(s, ""))
	return strings.ToLower(strings.TrimSpace(s))
}

// IsOnline reports whether room text denotes remote delivery.
func (r *Resolver) IsOnline(room string) bool {
	room = normalizeRoom(room)
	if room == "" {
		return false
	}
	for _, k := range r.rules.OnlineKeywords {
		if strings.Contains(room, k) {
			return true
		}
	}
	return false
}

// InferCampus returns the campus id of the first matching rule.
func (r *Resolver) InferCampus(room string) (string, bool) {
	room = normalizeRoom(room)
	if room == "" {
		return "", false
	}
	for _, rule := range r.rules.Campus {
		if rule.matches(room) {
			return rule.Campus, true
		}
	}
	return "", false
}

// Resolve picks the travel time for an event. Online room text wins, then
// an explicit address id (no inference), then campus inference, then the
// default.
func (r *Resolver) Resolve(room, addressID string) Resolution {
	if r.IsOnline(room) {
		return Resolution{Minutes: 0, Online: true, AddressID: addressID}
	}

	if addressID = strings.TrimSpace(addressID); addressID != "" {
		return Resolution{Minutes: r.lookup(addressID), AddressID: addressID}
	}

	if campus, ok := r.InferCampus(room); ok {
		return Resolution{Minutes: r.lookup(campus), Campus: campus}
	}

	return Resolution{Minutes: r.rules.DefaultMinutes}
}

func (r *Resolver) lookup(id string) int {
	if m, ok := r.times[id]; ok && m >= 0 {
		return m
	}
	return r.rules.DefaultMinutes
}
