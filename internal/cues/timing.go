package cues

import (
	"fmt"
	"time"
)

// Timing holds the windows the scheduler evaluates each tick.
// All values are offsets before the segment transition.
type Timing struct {
	CountdownDuration   time.Duration // Length of the countdown chime
	CountdownLeadBuffer time.Duration // Slack before the chime starts
	VoiceBuffer         time.Duration // Gap between a voice cue ending and the transition, beyond the countdown
	VoiceWindow         time.Duration // Width of the voice cue window
	CountdownWindow     time.Duration // Width of the countdown window
	FailsafeLatest      time.Duration // Failsafe window upper bound
	FailsafeEarliest    time.Duration // Failsafe window lower bound
	ChainThreshold      time.Duration // A voice cue finishing with at most this much remaining chains the countdown
	Debounce            time.Duration // Ticks whose remaining time moved less than this are ignored
	ResetGrace          time.Duration // Delay after a segment change before old cues are torn down
	CountdownResource   string        // Resource passed to Player.Load for the countdown chime
}

// BuiltinCountdownResource asks the player to synthesize the countdown chime
const BuiltinCountdownResource = "countdown:builtin"

// DefaultTiming returns the standard treadmill cue timing
func DefaultTiming() Timing {
	return Timing{
		CountdownDuration:   3 * time.Second,
		CountdownLeadBuffer: 500 * time.Millisecond,
		VoiceBuffer:         500 * time.Millisecond,
		VoiceWindow:         1 * time.Second,
		CountdownWindow:     500 * time.Millisecond,
		FailsafeLatest:      1500 * time.Millisecond,
		FailsafeEarliest:    500 * time.Millisecond,
		ChainThreshold:      4 * time.Second,
		Debounce:            100 * time.Millisecond,
		ResetGrace:          2 * time.Second,
		CountdownResource:   BuiltinCountdownResource,
	}
}

// CountdownStart is the remaining time at which the countdown should begin
func (t Timing) CountdownStart() time.Duration {
	return t.CountdownDuration + t.CountdownLeadBuffer
}

// VoiceCueStart is the remaining time at which a voice cue of the given
// spoken length should begin so the countdown still fits after it.
func (t Timing) VoiceCueStart(spoken time.Duration) time.Duration {
	return spoken + t.CountdownDuration + t.VoiceBuffer
}

// Validate rejects timings whose windows are empty or inverted
func (t Timing) Validate() error {
	switch {
	case t.CountdownDuration <= 0:
		return fmt.Errorf("countdown duration must be positive, got %v", t.CountdownDuration)
	case t.CountdownLeadBuffer < 0 || t.VoiceBuffer < 0:
		return fmt.Errorf("buffers must not be negative")
	case t.VoiceWindow <= 0 || t.CountdownWindow <= 0:
		return fmt.Errorf("window widths must be positive")
	case t.FailsafeEarliest < 0 || t.FailsafeLatest <= t.FailsafeEarliest:
		return fmt.Errorf("failsafe window [%v, %v] is empty", t.FailsafeEarliest, t.FailsafeLatest)
	case t.Debounce < 0 || t.ResetGrace < 0:
		return fmt.Errorf("debounce and reset grace must not be negative")
	case t.CountdownResource == "":
		return fmt.Errorf("countdown resource is required")
	}
	return nil
}

func within(remaining, lo, hi time.Duration) bool {
	return remaining >= lo && remaining <= hi
}
