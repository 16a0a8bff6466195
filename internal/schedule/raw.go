package schedule

import (
	"bytes"
	"encoding/json"
	"errors"
)

// Raw is the university grid as received over the wire. Day entries are kept
// undecoded so that one malformed day never spoils the rest.
type Raw struct {
	// Grid is keyed by weekday number ("1".."7") or ISO date ("2025-03-10").
	Grid      map[string]json.RawMessage
	IsSession bool
}

// rawLesson mirrors one lesson record inside a slot.
type rawLesson struct {
	Subject    string     `json:"sbj"`
	SubjectAlt string     `json:"subject"`
	Teacher    string     `json:"teacher"`
	Type       string     `json:"type"`
	Location   string     `json:"location"`
	Room       string     `json:"room"`
	ShortRooms []string   `json:"shortRooms"`
	Auditories []auditory `json:"auditories"`
	DateFrom   string     `json:"df"`
	DateTo     string     `json:"dt"`
}

// auditory is either a bare string or an object with a title.
type auditory struct {
	Title string
}

func (a *auditory) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		a.Title = s
		return nil
	}
	var obj struct {
		Title string `json:"title"`
	}
	if err := json.Unmarshal(b, &obj); err == nil {
		a.Title = obj.Title
	}
	// Unknown shapes decode to an empty title.
	return nil
}

var errNotObject = errors.New("schedule: payload is not a JSON object")

// DecodeRaw validates the outer shape of a schedule payload. A missing or
// non-object grid yields a Raw with a nil Grid, not an error; only a
// payload that is not a JSON object at all is rejected.
func DecodeRaw(data []byte) (Raw, error) {
	var top map[string]json.RawMessage
	if !isObject(data) {
		return Raw{}, errNotObject
	}
	if err := json.Unmarshal(data, &top); err != nil {
		return Raw{}, err
	}

	var raw Raw
	if g, ok := top["grid"]; ok && isObject(g) {
		_ = json.Unmarshal(g, &raw.Grid)
	}
	if s, ok := top["isSession"]; ok {
		_ = json.Unmarshal(s, &raw.IsSession)
	}
	return raw, nil
}

func isObject(b []byte) bool {
	b = bytes.TrimSpace(b)
	return len(b) > 0 && b[0] == '{'
}
