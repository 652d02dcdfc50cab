// internal/progress/progress.go
package progress

import (
	"math"
	"time"
)

/*
 * Progress estimation for long-running scans.
 *
 * Compute is a pure function of the clock readings and counters:
 *
 *   percent = round(current / total * 100)
 *   rate    = current / elapsed since start     (0 when nothing elapsed)
 *   eta     = round((total - current) / rate)   (omitted when rate is 0)
 *
 * Throttle wraps Compute and only produces an update once more than the
 * interval has passed since the last emission. The final 100% update is the
 * caller's job and bypasses throttling.
 */

// DefaultInterval is the minimum time between two emitted updates.
const DefaultInterval = 3 * time.Second

// Update is one progress report.
type Update struct {
	Activity string
	Current  int64
	Total    int64
	Percent  int
	ETA      time.Duration // whole seconds; valid only when HasETA
	HasETA   bool
}

// Compute derives percent and ETA. A zero total reports 100%.
func Compute(start, now time.Time, current, total int64) Update {
	u := Update{Current: current, Total: total, Percent: 100}
	if total > 0 {
		u.Percent = int(math.Round(float64(current) / float64(total) * 100))
	}

	elapsed := now.Sub(start).Seconds()
	if elapsed <= 0 || current <= 0 {
		return u
	}
	rate := float64(current) / elapsed
	remaining := total - current
	if remaining < 0 {
		remaining = 0
	}
	u.ETA = time.Duration(math.Round(float64(remaining)/rate)) * time.Second
	u.HasETA = true
	return u
}

// Throttle returns an update only when more than interval has passed since
// lastEmit.
func Throttle(start, lastEmit, now time.Time, current, total int64, interval time.Duration) (Update, bool) {
	if now.Sub(lastEmit) <= interval {
		return Update{}, false
	}
	return Compute(start, now, current, total), true
}

// Estimator tracks one phase of work: its start time, the last emission and
// the activity label. Not safe for concurrent use; the scanning goroutine
// owns it.
type Estimator struct {
	interval time.Duration
	now      func() time.Time

	activity string
	total    int64
	start    time.Time
	lastEmit time.Time
}

// NewEstimator creates an estimator. A non-positive interval means
// DefaultInterval; a nil clock means time.Now.
func NewEstimator(interval time.Duration, now func() time.Time) *Estimator {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if now == nil {
		now = time.Now
	}
	return &Estimator{interval: interval, now: now}
}

// Restart begins a new phase. The first Tick of the phase emits only after
// the interval has elapsed.
func (e *Estimator) Restart(total int64, activity string) {
	e.total = total
	e.activity = activity
	e.start = e.now()
	e.lastEmit = e.start
}

// Tick reports progress at current and returns an update when one is due.
func (e *Estimator) Tick(current int64) (Update, bool) {
	now := e.now()
	u, ok := Throttle(e.start, e.lastEmit, now, current, e.total, e.interval)
	if !ok {
		return Update{}, false
	}
	e.lastEmit = now
	u.Activity = e.activity
	return u, true
}

// Final returns the unthrottled 100% update that closes a phase.
func (e *Estimator) Final() Update {
	u := Compute(e.start, e.now(), e.total, e.total)
	u.Percent = 100
	u.Activity = e.activity
	return u
}

// Interval returns the throttle interval in use.
func (e *Estimator) Interval() time.Duration {
	return e.interval
}
