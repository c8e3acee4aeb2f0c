package event

import (
	"strings"
	"time"
)

var weekdayNames = []string{
	"monday",
	"tuesday",
	"wednesday",
	"thursday",
	"friday",
	"saturday",
	"sunday",
}

// Weekday reports the current day name as its event, changing at local
// midnight.
type Weekday struct {
	clock Clock
}

func (*Weekday) Type() string { return TypeWeekday }

func (w *Weekday) Event() string {
	return strings.ToLower(w.clock.Now().Weekday().String())
}

func (w *Weekday) NextChange() time.Time {
	return nextMidnight(w.clock.Now())
}

func (*Weekday) knownEvents() []string { return weekdayNames }

func nextMidnight(now time.Time) time.Time {
	year, month, day := now.Date()
	midnight := time.Date(year, month, day, 0, 0, 0, 0, now.Location())
	return midnight.AddDate(0, 0, 1)
}
