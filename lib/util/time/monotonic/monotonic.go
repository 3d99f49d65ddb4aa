// Package monotonic provides monotonic-safe time handling for the
// communicator: an NTP-correctable clock, expiration deadlines for idle
// connections and rekey epochs, and the never-decreasing wire timestamps
// carried in handshake and rekey payloads.
package monotonic

import (
	"sync"
	"time"
)

// Clock provides monotonic-safe time operations. It uses time.Now()
// internally, which includes a monotonic clock reading in Go, so duration
// calculations are immune to wall clock jumps.
type Clock struct {
	// offset is added to time.Now() to account for NTP synchronization.
	// Protected by mu.
	offset time.Duration
	mu     sync.RWMutex

	// last wire timestamp handed out, in µs. Never decreases.
	last uint64
}

// NewClock creates a new monotonic Clock with zero offset.
func NewClock() *Clock {
	return &Clock{}
}

// Now returns the current time adjusted by any NTP offset. The returned
// time.Time retains Go's monotonic clock reading.
func (c *Clock) Now() time.Time {
	c.mu.RLock()
	offset := c.offset
	c.mu.RUnlock()
	return time.Now().Add(offset)
}

// Timestamp returns the current time as microseconds since the Unix epoch,
// guaranteed not to decrease across calls on this Clock even if the wall
// clock steps backwards. This is the value placed into signed handshake
// payloads, where the receiver enforces per-peer monotonicity.
func (c *Clock) Timestamp() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	us := uint64(time.Now().Add(c.offset).UnixMicro())
	if us <= c.last {
		us = c.last + 1
	}
	c.last = us
	return us
}

// SetOffset updates the NTP time offset. Called when the NTP sampler
// determines a new clock correction.
func (c *Clock) SetOffset(offset time.Duration) {
	c.mu.Lock()
	c.offset = offset
	c.mu.Unlock()
}

// Offset returns the current NTP time offset.
func (c *Clock) Offset() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.offset
}

// Deadline represents a point in time after which something has expired: an
// idle connection, a pending handshake, or the current rekey epoch. It
// captures the creation time via time.Now() (monotonic reading included) and
// checks expiration with time.Since(), so NTP clock jumps cannot cause
// premature or delayed expiration.
//
// Deadline is safe for concurrent use by multiple goroutines.
type Deadline struct {
	mu        sync.RWMutex
	createdAt time.Time
	lifetime  time.Duration
}

// NewDeadline creates a Deadline that expires after the given lifetime.
//
// Panics if lifetime is negative.
func NewDeadline(lifetime time.Duration) *Deadline {
	if lifetime < 0 {
		panic("monotonic: negative lifetime")
	}
	return &Deadline{
		createdAt: time.Now(),
		lifetime:  lifetime,
	}
}

// IsExpired returns true if the deadline has passed.
func (d *Deadline) IsExpired() bool {
	d.mu.RLock()
	createdAt, lifetime := d.createdAt, d.lifetime
	d.mu.RUnlock()
	return time.Since(createdAt) >= lifetime
}

// Remaining returns the time remaining until the deadline expires, or zero
// if already expired.
func (d *Deadline) Remaining() time.Duration {
	d.mu.RLock()
	createdAt, lifetime := d.createdAt, d.lifetime
	d.mu.RUnlock()
	remaining := lifetime - time.Since(createdAt)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Reset restarts the deadline from now with the given lifetime. Used when a
// connection sees traffic and its idle deadline is refreshed.
func (d *Deadline) Reset(lifetime time.Duration) {
	if lifetime < 0 {
		panic("monotonic: negative lifetime")
	}
	d.mu.Lock()
	d.createdAt = time.Now()
	d.lifetime = lifetime
	d.mu.Unlock()
}
