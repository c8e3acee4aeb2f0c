// Package event implements the listeners which map wall-clock time to a
// discrete event label per module. The scheduler polls listeners for the
// current label and for the instant of the next label change, so that the
// control loop can sleep instead of busy-polling.
package event

import (
	"time"

	"github.com/mbrevik/sundial/pkg/errors"
	"github.com/mbrevik/sundial/pkg/logging"
)

// Clock abstracts time.Now so listener transitions can be tested without
// waiting for them.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock returns a Clock backed by time.Now
func SystemClock() Clock { return systemClock{} }

// Config holds the union of listener options. Each listener type reads the
// fields it cares about and ignores the rest.
type Config struct {
	Type       string `yaml:"type"`
	ForceEvent string `yaml:"force_event"`

	// solar and daylight
	Latitude  float64 `yaml:"latitude"`
	Longitude float64 `yaml:"longitude"`
	Elevation float64 `yaml:"elevation"`

	// periodic
	Seconds int `yaml:"seconds"`
	Minutes int `yaml:"minutes"`
	Hours   int `yaml:"hours"`
	Days    int `yaml:"days"`

	// time_of_day intervals per weekday, formatted "HH:MM-HH:MM"
	Monday    *string `yaml:"monday"`
	Tuesday   *string `yaml:"tuesday"`
	Wednesday *string `yaml:"wednesday"`
	Thursday  *string `yaml:"thursday"`
	Friday    *string `yaml:"friday"`
	Saturday  *string `yaml:"saturday"`
	Sunday    *string `yaml:"sunday"`
}

// Listener maps the current time to a discrete event label
type Listener interface {
	// Type returns the listener type name from configuration
	Type() string

	// Event returns the current event label
	Event() string

	// NextChange returns the instant at which the label will next change
	NextChange() time.Time
}

// listener type names
const (
	TypeStatic    = "static"
	TypeWeekday   = "weekday"
	TypeTimeOfDay = "time_of_day"
	TypePeriodic  = "periodic"
	TypeSolar     = "solar"
	TypeDaylight  = "daylight"
)

// New constructs the listener described by cfg. An empty type means
// static. Unknown types are configuration errors.
func New(cfg Config, clock Clock) (Listener, error) {
	if clock == nil {
		clock = SystemClock()
	}

	var inner Listener
	switch cfg.Type {
	case "", TypeStatic:
		inner = &Static{}
	case TypeWeekday:
		inner = &Weekday{clock: clock}
	case TypeTimeOfDay:
		inner = newTimeOfDay(cfg, clock)
	case TypePeriodic:
		inner = newPeriodic(cfg, clock)
	case TypeSolar:
		inner = newSolar(cfg, clock, false)
	case TypeDaylight:
		inner = newSolar(cfg, clock, true)
	default:
		return nil, errors.Newf(errors.ErrListenerUnknown,
			"unknown event listener type %q", cfg.Type)
	}

	if cfg.ForceEvent != "" {
		return newForced(inner, cfg.ForceEvent), nil
	}
	return inner, nil
}

// forced pins the reported event label to a configured value while leaving
// change timing to the wrapped listener.
type forced struct {
	Listener
	event string
}

func newForced(inner Listener, event string) Listener {
	if known, ok := inner.(interface{ knownEvents() []string }); ok {
		valid := false
		for _, e := range known.knownEvents() {
			if e == event {
				valid = true
				break
			}
		}
		if !valid {
			logger := logging.GetLogger("event")
			logger.Warn().
				Str("listener", inner.Type()).
				Str("force_event", event).
				Msg("force_event is not a valid event for this listener type, using it anyway")
		}
	}
	return &forced{Listener: inner, event: event}
}

func (f *forced) Event() string { return f.event }

// Static is the default listener: a single label which never changes
type Static struct{}

func (*Static) Type() string  { return TypeStatic }
func (*Static) Event() string { return "static" }

// NextChange returns a timestamp a century away as an infinity stand-in
func (*Static) NextChange() time.Time {
	return time.Now().AddDate(100, 0, 0)
}

func (*Static) knownEvents() []string { return []string{"static"} }
