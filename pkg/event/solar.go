package event

import (
	"time"

	"github.com/nathan-osman/go-sunrise"

	"github.com/mbrevik/sundial/pkg/logging"
)

// Solar tracks the position of the sun at a configured location and
// reports one of sunrise, morning, afternoon, sunset or night. With the
// daylight flag set it collapses to day/night.
type Solar struct {
	clock     Clock
	latitude  float64
	longitude float64
	elevation float64
	daylight  bool
}

func newSolar(cfg Config, clock Clock, daylight bool) *Solar {
	latitude, longitude := cfg.Latitude, cfg.Longitude
	if latitude < -90 || latitude > 90 || longitude < -180 || longitude > 180 {
		logger := logging.GetLogger("event")
		logger.Warn().
			Float64("latitude", latitude).
			Float64("longitude", longitude).
			Msg("Invalid coordinates, falling back to (0, 0)")
		latitude, longitude = 0, 0
	}

	return &Solar{
		clock:     clock,
		latitude:  latitude,
		longitude: longitude,
		elevation: cfg.Elevation,
		daylight:  daylight,
	}
}

func (s *Solar) Type() string {
	if s.daylight {
		return TypeDaylight
	}
	return TypeSolar
}

// sun describes the solar event boundaries for one day, in order
type sun struct {
	dawn    time.Time
	sunrise time.Time
	noon    time.Time
	sunset  time.Time
	dusk    time.Time
}

func (s sun) boundaries() []time.Time {
	return []time.Time{s.dawn, s.sunrise, s.noon, s.sunset, s.dusk}
}

// sunTimes computes the solar boundaries for the given date. Dawn and dusk
// are approximated as half an hour around sunrise and sunset. Close to the
// poles the sun may never cross the horizon; the original hardcoded
// reference day is used then.
func (s *Solar) sunTimes(date time.Time) sun {
	rise, set := sunrise.SunriseSunset(
		s.latitude, s.longitude,
		date.Year(), date.Month(), date.Day(),
	)

	if rise.IsZero() || set.IsZero() {
		year, month, day := date.Date()
		at := func(hour int) time.Time {
			return time.Date(year, month, day, hour, 0, 0, 0, date.Location())
		}
		return sun{
			dawn:    at(5),
			sunrise: at(6),
			noon:    at(12),
			sunset:  at(22),
			dusk:    at(23),
		}
	}

	return sun{
		dawn:    rise.Add(-30 * time.Minute),
		sunrise: rise,
		noon:    rise.Add(set.Sub(rise) / 2),
		sunset:  set,
		dusk:    set.Add(30 * time.Minute),
	}
}

func (s *Solar) Event() string {
	now := s.clock.Now()
	day := s.sunTimes(now)

	var event string
	switch {
	case now.Before(day.dawn):
		event = "night"
	case now.Before(day.sunrise):
		event = "sunrise"
	case now.Before(day.noon):
		event = "morning"
	case now.Before(day.sunset):
		event = "afternoon"
	case now.Before(day.dusk):
		event = "sunset"
	default:
		event = "night"
	}

	if s.daylight {
		if event == "night" {
			return "night"
		}
		return "day"
	}
	return event
}

func (s *Solar) NextChange() time.Time {
	now := s.clock.Now()

	for offset := 0; offset <= 1; offset++ {
		day := s.sunTimes(now.AddDate(0, 0, offset))
		for _, boundary := range day.boundaries() {
			if boundary.After(now) {
				return boundary
			}
		}
	}
	// Should be unreachable, but never return a time in the past
	return now.Add(24 * time.Hour)
}

func (s *Solar) knownEvents() []string {
	if s.daylight {
		return []string{"day", "night"}
	}
	return []string{"sunrise", "morning", "afternoon", "sunset", "night"}
}
