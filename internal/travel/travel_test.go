package travel

import (
	"testing"

	"studalarm/internal/config"
)

func testResolver(times map[string]int) *Resolver {
	return NewResolver(RulesFromConfig(config.DefaultConfig()), times, 0)
}

func TestResolve(t *testing.T) {
	t.Parallel()

	r := testResolver(map[string]int{"pr": 45, "av": 30, "dorm-3": 20})

	tests := []struct {
		name      string
		room      string
		addressID string
		want      Resolution
	}{
		{name: "campus_prefix", room: "пр-123", want: Resolution{Minutes: 45, Campus: "pr"}},
		{name: "campus_upper_html", room: "<b>АВ-4805</b>", want: Resolution{Minutes: 30, Campus: "av"}},
		{name: "campus_without_time", room: "пк-212", want: Resolution{Minutes: 90, Campus: "pk"}},
		{name: "zoom", room: "Zoom 123", want: Resolution{Minutes: 0, Online: true}},
		{name: "online_beats_address", room: "онлайн", addressID: "dorm-3", want: Resolution{Minutes: 0, Online: true, AddressID: "dorm-3"}},
		{name: "explicit_address", room: "пр-123", addressID: "dorm-3", want: Resolution{Minutes: 20, AddressID: "dorm-3"}},
		{name: "unknown_address", addressID: "nope", want: Resolution{Minutes: 90, AddressID: "nope"}},
		{name: "no_inference", room: "спортзал", want: Resolution{Minutes: 90}},
		{name: "empty", want: Resolution{Minutes: 90}},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := r.Resolve(tc.room, tc.addressID); got != tc.want {
				t.Fatalf("Resolve(%q, %q) = %+v, want %+v", tc.room, tc.addressID, got, tc.want)
			}
		})
	}
}

func TestResolver_ContainsRuleAndOrder(t *testing.T) {
	t.Parallel()

	rules := Rules{
		Campus: []CampusRule{
			{Pattern: "павла корчагина", Campus: "pk", Match: MatchContains},
			{Pattern: "пк", Campus: "wrong", Match: MatchContains},
		},
	}
	r := NewResolver(rules, map[string]int{"pk": 50}, 60)

	got := r.Resolve("ул. Павла Корчагина, пк-101", "")
	if got.Campus != "pk" || got.Minutes != 50 {
		t.Fatalf("first matching rule must win, got %+v", got)
	}
	if got := r.Resolve("", ""); got.Minutes != 60 {
		t.Fatalf("explicit default not applied, got %+v", got)
	}
}

func TestResolver_IsolatedFromInputs(t *testing.T) {
	t.Parallel()

	times := map[string]int{"pr": 45}
	r := testResolver(times)
	times["pr"] = 5

	if got := r.Resolve("пр-1", ""); got.Minutes != 45 {
		t.Fatalf("resolver must copy its lookup table, got %d", got.Minutes)
	}
}
