// Package weather supplies the morning weather card shown next to the alarm.
package weather

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrNoCity is returned when no city is configured.
var ErrNoCity = errors.New("не указан город")

// Report is a weather snapshot for one city.
type Report struct {
	City          string    `json:"cityName"`
	Temperature   float64   `json:"temperature"`
	FeelsLike     float64   `json:"feelsLike"`
	Condition     string    `json:"condition"`
	ConditionCode int       `json:"conditionCode"`
	Humidity      int       `json:"humidity"`
	Pressure      int       `json:"pressure"`
	WindSpeed     float64   `json:"windSpeed"`
	Cloudiness    int       `json:"cloudiness"`
	Rain          float64   `json:"rain"`
	Snow          float64   `json:"snow"`
	Sunrise       time.Time `json:"sunrise"`
	Sunset        time.Time `json:"sunset"`
	FetchedAt     time.Time `json:"fetchedAt"`
}

// Provider abstracts where weather comes from. Only the mock exists today;
// a real backend can be plugged in behind the same interface.
type Provider interface {
	Current(ctx context.Context, city string) (Report, error)
}

type mockProvider struct {
	now func() time.Time
}

// NewMockProvider returns a Provider with a fixed mild-weather report.
func NewMockProvider() Provider {
	return &mockProvider{now: time.Now}
}

func (m *mockProvider) Current(ctx context.Context, city string) (Report, error) {
	if err := ctx.Err(); err != nil {
		return Report{}, err
	}
	city = strings.TrimSpace(city)
	if city == "" {
		return Report{}, ErrNoCity
	}
	now := m.now()
	y, mo, d := now.Date()
	loc := now.Location()
	return Report{
		City:          city,
		Temperature:   15,
		FeelsLike:     13,
		Condition:     "Облачно с прояснениями",
		ConditionCode: 802,
		Humidity:      65,
		Pressure:      1013,
		WindSpeed:     5,
		Cloudiness:    40,
		Sunrise:       time.Date(y, mo, d, 6, 45, 0, 0, loc),
		Sunset:        time.Date(y, mo, d, 18, 10, 0, 0, loc),
		FetchedAt:     now,
	}, nil
}

// Recommendations turns a report into clothing advice.
func Recommendations(r Report) []string {
	out := make([]string, 0, 4)

	switch {
	case r.Temperature < 0:
		out = append(out, "Оденьтесь очень тепло — мороз")
	case r.Temperature < 10:
		sign := ""
		if r.Temperature > 0 {
			sign = "+"
		}
		out = append(out, fmt.Sprintf("Оденьтесь теплее — %s%g°C", sign, r.Temperature))
	case r.Temperature > 25:
		out = append(out, "Лёгкая одежда — будет жарко")
	}

	if r.Rain > 0 {
		out = append(out, "Возьмите зонт — ожидается дождь")
	}
	if r.Snow > 0 {
		out = append(out, "Будьте осторожны — снег на дорогах")
	}
	if r.WindSpeed > 10 {
		out = append(out, "Сильный ветер — оденьтесь теплее")
	}
	if r.Humidity > 80 {
		out = append(out, "Высокая влажность — возможна духота")
	}

	if len(out) == 0 {
		out = append(out, "Хорошая погода для прогулки")
	}
	return out
}
