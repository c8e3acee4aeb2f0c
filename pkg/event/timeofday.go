package event

import (
	"fmt"
	"time"

	"github.com/mbrevik/sundial/pkg/logging"
)

// defaultWorkweek is used for weekdays with no configured interval
const defaultWorkweek = "09:00-17:00"

type interval struct {
	start int // minutes after midnight, inclusive
	end   int // minutes after midnight, inclusive
}

// TimeOfDay reports "on" within a per-weekday configured time interval and
// "off" outside it.
type TimeOfDay struct {
	clock     Clock
	intervals map[time.Weekday]interval
}

func newTimeOfDay(cfg Config, clock Clock) *TimeOfDay {
	logger := logging.GetLogger("event")

	configured := map[time.Weekday]*string{
		time.Monday:    cfg.Monday,
		time.Tuesday:   cfg.Tuesday,
		time.Wednesday: cfg.Wednesday,
		time.Thursday:  cfg.Thursday,
		time.Friday:    cfg.Friday,
		time.Saturday:  cfg.Saturday,
		time.Sunday:    cfg.Sunday,
	}

	intervals := make(map[time.Weekday]interval)
	for day, value := range configured {
		spec := defaultWorkweek
		switch day {
		case time.Saturday, time.Sunday:
			spec = ""
		}
		if value != nil {
			spec = *value
		}
		if spec == "" {
			continue
		}

		parsed, err := parseInterval(spec)
		if err != nil {
			logger.Warn().
				Str("weekday", day.String()).
				Str("interval", spec).
				Err(err).
				Msg("Ignoring malformed time_of_day interval")
			continue
		}
		intervals[day] = parsed
	}

	return &TimeOfDay{clock: clock, intervals: intervals}
}

func parseInterval(spec string) (interval, error) {
	var startH, startM, endH, endM int
	if _, err := fmt.Sscanf(spec, "%d:%d-%d:%d", &startH, &startM, &endH, &endM); err != nil {
		return interval{}, fmt.Errorf("expected HH:MM-HH:MM, got %q", spec)
	}
	iv := interval{start: startH*60 + startM, end: endH*60 + endM}
	if startH > 23 || startM > 59 || endH > 23 || endM > 59 || iv.end < iv.start {
		return interval{}, fmt.Errorf("interval %q out of range", spec)
	}
	return iv, nil
}

func (*TimeOfDay) Type() string { return TypeTimeOfDay }

func (t *TimeOfDay) Event() string {
	now := t.clock.Now()
	iv, ok := t.intervals[now.Weekday()]
	if !ok {
		return "off"
	}
	minute := now.Hour()*60 + now.Minute()
	if minute >= iv.start && minute <= iv.end {
		return "on"
	}
	return "off"
}

// NextChange scans the coming week for the earliest interval boundary
// after now. The off transition happens the minute after the interval end.
func (t *TimeOfDay) NextChange() time.Time {
	now := t.clock.Now()
	if len(t.intervals) == 0 {
		return now.AddDate(100, 0, 0)
	}

	var next time.Time
	for offset := 0; offset <= 7; offset++ {
		day := now.AddDate(0, 0, offset)
		iv, ok := t.intervals[day.Weekday()]
		if !ok {
			continue
		}
		year, month, dayOfMonth := day.Date()
		midnight := time.Date(year, month, dayOfMonth, 0, 0, 0, 0, now.Location())

		for _, boundary := range []time.Time{
			midnight.Add(time.Duration(iv.start) * time.Minute),
			midnight.Add(time.Duration(iv.end+1) * time.Minute),
		} {
			if boundary.After(now) && (next.IsZero() || boundary.Before(next)) {
				next = boundary
			}
		}
		if !next.IsZero() {
			return next
		}
	}
	return next
}

func (*TimeOfDay) knownEvents() []string { return []string{"on", "off"} }
