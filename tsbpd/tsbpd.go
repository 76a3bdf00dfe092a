// Package tsbpd implements the Time-Stamp-Based Packet Delivery collaborator
// the receive buffer consults to turn a packet's 32-bit sender timestamp
// into a wall-clock play time, and to track clock drift between peers.
package tsbpd

import (
	"sync"
	"time"

	"github.com/go-srt/rcvbuf/internal"
)

// TSBPD is the narrow collaborator interface the receive buffer depends on.
// A test double that returns deterministic play times enables property
// testing of the buffer's time-gate behavior without a real clock.
type TSBPD interface {
	// Enabled reports whether TSBPD delivery is active. When false, the
	// buffer ignores play-time gating and the packet in-order flag is
	// honored instead.
	Enabled() bool
	// SetMode configures the playback base, wrap-handling, and target
	// latency.
	SetMode(base time.Time, wrap bool, delay time.Duration)
	// ApplyGroupTime aligns this stream's time base with a bonding-group
	// wide base, used when multiple links share one TSBPD clock.
	ApplyGroupTime(base time.Time, wrap bool, delay time.Duration)
	// ApplyGroupDrift folds a group-wide drift sample into this stream's
	// estimate.
	ApplyGroupDrift(drift time.Duration)
	// AddDriftSample feeds one clock-drift observation, typically derived
	// from an ACK round trip: usTimestamp is the packet timestamp that
	// triggered the ACK, tsPktArrival its local arrival time, and rtt the
	// measured round-trip time.
	AddDriftSample(usTimestamp uint32, tsPktArrival time.Time, rtt time.Duration)
	// UpdateTimeBase records a fresh packet timestamp as the latest one
	// processed. The receive buffer itself never calls it.
	UpdateTimeBase(usTimestamp uint32)
	// PktPlayTime converts a packet's 32-bit microsecond timestamp into
	// the wall-clock instant at which it should be delivered.
	PktPlayTime(usTimestamp uint32) time.Time
	// TimeBase returns the playback time base as adjusted for the given
	// timestamp's wrap period.
	TimeBase(usTimestamp uint32) time.Time
	// Drift returns the current accumulated clock-drift estimate.
	Drift() time.Duration
}

// driftEMACoeff smooths successive drift samples with the same
// single-pole exponential-moving-average shape the core uses for its
// payload-size running average (spec §9): newer samples dominate slowly so
// a single noisy RTT sample can't whipsaw the playback point.
const driftEMACoeff = 0.1

// Timebase is the concrete TSBPD implementation used outside of tests.
type Timebase struct {
	clock internal.Clock

	mu       sync.Mutex
	enabled  bool
	base     time.Time
	wrap     bool
	delay    time.Duration
	drift    time.Duration
	lastTS   uint32
	haveLast bool
}

// New creates a disabled Timebase. Call SetMode to enable TSBPD delivery.
// If clock is nil, a MonotonicClock is used.
func New(clock internal.Clock) *Timebase {
	if clock == nil {
		clock = internal.MonotonicClock{}
	}
	return &Timebase{clock: clock}
}

// Enabled reports whether SetMode has turned delivery on.
func (t *Timebase) Enabled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.enabled
}

// SetMode configures the time base, wrap handling, and target delay, and
// enables TSBPD delivery.
func (t *Timebase) SetMode(base time.Time, wrap bool, delay time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.base = base
	t.wrap = wrap
	t.delay = delay
	t.enabled = true
}

// ApplyGroupTime overrides the time base with a bonding-group-wide one.
func (t *Timebase) ApplyGroupTime(base time.Time, wrap bool, delay time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.base = base
	t.wrap = wrap
	t.delay = delay
}

// ApplyGroupDrift replaces the local drift estimate with a group-wide one.
func (t *Timebase) ApplyGroupDrift(drift time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.drift = drift
}

// AddDriftSample takes one clock-drift observation: the raw sample is
// tsPktArrival's deviation from the play time usTimestamp predicts, minus
// half of rtt. Until UpdateTimeBase has been called the sample replaces the
// estimate outright; after that it is folded into the running estimate via
// EMA with driftEMACoeff.
func (t *Timebase) AddDriftSample(usTimestamp uint32, tsPktArrival time.Time, rtt time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()

	predicted := t.playTimeLocked(usTimestamp)
	sample := tsPktArrival.Sub(predicted) - rtt/2
	if !t.haveLast {
		t.drift = sample
	} else {
		t.drift += time.Duration(float64(sample-t.drift) * driftEMACoeff)
	}
}

// UpdateTimeBase records a just-processed packet's timestamp. No wrap
// counter is kept; the recorded value only marks that a timestamp has been
// seen, which switches AddDriftSample from replacing to smoothing.
func (t *Timebase) UpdateTimeBase(usTimestamp uint32) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lastTS = usTimestamp
	t.haveLast = true
}

// PktPlayTime converts usTimestamp into the wall-clock delivery instant.
func (t *Timebase) PktPlayTime(usTimestamp uint32) time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.playTimeLocked(usTimestamp)
}

func (t *Timebase) playTimeLocked(usTimestamp uint32) time.Time {
	return t.base.Add(time.Duration(usTimestamp) * time.Microsecond).Add(t.delay).Add(t.drift)
}

// TimeBase returns the configured time base (wrap handling not modeled
// beyond what SetMode/ApplyGroupTime recorded; a full 32-bit wrap-period
// reconstruction belongs to the out-of-scope TSBPD clock subsystem this
// buffer only consumes).
func (t *Timebase) TimeBase(usTimestamp uint32) time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.base
}

// Drift returns the current accumulated drift estimate.
func (t *Timebase) Drift() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.drift
}
