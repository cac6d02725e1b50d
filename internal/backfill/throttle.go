package backfill

import (
	"context"
	"time"
)

const (
	MinRPM = 1
	MaxRPM = 600
	// Enrichment issues one lookup per item, so its budget is tighter
	MaxEnrichRPM = 120
)

// ClampRPM bounds a requests-per-minute budget; zero selects def
func ClampRPM(rpm, def int) int {
	if rpm <= 0 {
		rpm = def
	}
	if rpm < MinRPM {
		return MinRPM
	}
	if rpm > MaxRPM {
		return MaxRPM
	}
	return rpm
}

// ClampEnrichRPM bounds an enrichment budget to MinRPM..MaxEnrichRPM
func ClampEnrichRPM(rpm, def int) int {
	if n := ClampRPM(rpm, def); n < MaxEnrichRPM {
		return n
	}
	return MaxEnrichRPM
}

// SleepFunc pauses for d or until ctx is done
type SleepFunc func(ctx context.Context, d time.Duration) error

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Throttle spaces calls by a fixed 60000/rpm ms. The first call never waits.
type Throttle struct {
	interval time.Duration
	sleep    SleepFunc
	started  bool
}

// NewThrottle creates a fixed-interval throttle for rpm
func NewThrottle(rpm int, sleep SleepFunc) *Throttle {
	if sleep == nil {
		sleep = sleepCtx
	}
	var interval time.Duration
	if rpm > 0 {
		interval = time.Duration(60000/rpm) * time.Millisecond
	}
	return &Throttle{interval: interval, sleep: sleep}
}

// Interval is the delay inserted between calls
func (t *Throttle) Interval() time.Duration {
	return t.interval
}

// Wait blocks before every call except the first
func (t *Throttle) Wait(ctx context.Context) error {
	if !t.started {
		t.started = true
		return ctx.Err()
	}
	if t.interval <= 0 {
		return ctx.Err()
	}
	return t.sleep(ctx, t.interval)
}
