// Package timer implements advisory countdowns that can be paused and resumed.
package timer

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// State - lifecycle of a countdown.
type State int

const (
	StateIdle State = iota
	StateRunning
	StatePaused
	StateExpired
)

func (that State) String() string {
	switch that {
	case StateRunning:
		return "running"
	case StatePaused:
		return "paused"
	case StateExpired:
		return "expired"
	default:
		return "idle"
	}
}

// Countdown - a single-shot timer with start/pause/resume/stop transitions.
// onExpire runs on its own goroutine without any Countdown lock held.
type Countdown struct {
	mu sync.Mutex

	clock    clock.Clock
	duration time.Duration
	onExpire func()

	state     State
	remaining time.Duration
	startedAt time.Time
	timer     *clock.Timer
	// generation invalidates callbacks of timers that were stopped too late.
	generation uint64
}

func NewCountdown(clk clock.Clock, duration time.Duration, onExpire func()) *Countdown {
	return &Countdown{
		clock:     clk,
		duration:  duration,
		onExpire:  onExpire,
		remaining: duration,
	}
}

// Start - (re)starts from the full duration.
func (that *Countdown) Start() {
	that.mu.Lock()
	defer that.mu.Unlock()

	that.halt()
	that.remaining = that.duration
	that.run()
}

// Pause - freezes a running countdown.
func (that *Countdown) Pause() {
	that.mu.Lock()
	defer that.mu.Unlock()

	if that.state != StateRunning {
		return
	}

	that.remaining = that.left()
	that.halt()
	that.state = StatePaused
}

// Resume - continues a paused countdown from where it stopped.
func (that *Countdown) Resume() {
	that.mu.Lock()
	defer that.mu.Unlock()

	if that.state != StatePaused {
		return
	}

	that.run()
}

// Stop - cancels the countdown and resets it.
func (that *Countdown) Stop() {
	that.mu.Lock()
	defer that.mu.Unlock()

	that.halt()
	that.state = StateIdle
	that.remaining = that.duration
}

func (that *Countdown) State() State {
	that.mu.Lock()
	defer that.mu.Unlock()

	return that.state
}

// Remaining - time left before expiry.
func (that *Countdown) Remaining() time.Duration {
	that.mu.Lock()
	defer that.mu.Unlock()

	if that.state == StateRunning {
		return that.left()
	}

	return that.remaining
}

func (that *Countdown) run() {
	that.generation++
	generation := that.generation

	that.state = StateRunning
	that.startedAt = that.clock.Now()
	that.timer = that.clock.AfterFunc(that.remaining, func() {
		that.expire(generation)
	})
}

func (that *Countdown) halt() {
	if that.timer != nil {
		that.timer.Stop()
		that.timer = nil
	}
	that.generation++
}

func (that *Countdown) left() time.Duration {
	left := that.remaining - that.clock.Since(that.startedAt)
	if left < 0 {
		return 0
	}

	return left
}

func (that *Countdown) expire(generation uint64) {
	that.mu.Lock()
	if generation != that.generation || that.state != StateRunning {
		that.mu.Unlock()
		return
	}

	that.state = StateExpired
	that.remaining = 0
	that.timer = nil
	that.mu.Unlock()

	if that.onExpire != nil {
		that.onExpire()
	}
}
