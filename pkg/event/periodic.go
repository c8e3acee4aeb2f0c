package event

import (
	"strconv"
	"time"
)

// Periodic reports a monotonically increasing tick count as its event. The
// interval is the sum of the configured seconds, minutes, hours and days;
// an all-zero configuration substitutes one hour.
type Periodic struct {
	clock    Clock
	interval time.Duration
	started  time.Time
}

func newPeriodic(cfg Config, clock Clock) *Periodic {
	interval := time.Duration(cfg.Seconds)*time.Second +
		time.Duration(cfg.Minutes)*time.Minute +
		time.Duration(cfg.Hours)*time.Hour +
		time.Duration(cfg.Days)*24*time.Hour

	if interval == 0 {
		interval = time.Hour
	}

	return &Periodic{
		clock:    clock,
		interval: interval,
		started:  clock.Now(),
	}
}

func (*Periodic) Type() string { return TypePeriodic }

// Interval returns the effective tick interval
func (p *Periodic) Interval() time.Duration { return p.interval }

func (p *Periodic) Event() string {
	ticks := p.clock.Now().Sub(p.started) / p.interval
	return strconv.Itoa(int(ticks))
}

func (p *Periodic) NextChange() time.Time {
	elapsed := p.clock.Now().Sub(p.started)
	ticks := elapsed / p.interval
	return p.started.Add((ticks + 1) * p.interval)
}
