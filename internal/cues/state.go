package cues

import "time"

// State is the scheduler's playback state
type State int

const (
	StateIdle State = iota
	StatePlayingVoiceCue
	StatePlayingCountdown
)

func (s State) String() string {
	switch s {
	case StatePlayingVoiceCue:
		return "playing-voice-cue"
	case StatePlayingCountdown:
		return "playing-countdown"
	default:
		return "idle"
	}
}

// CueKind distinguishes the two sounds the scheduler plays
type CueKind int

const (
	CueVoice CueKind = iota
	CueCountdown
)

func (k CueKind) String() string {
	if k == CueCountdown {
		return "countdown"
	}
	return "voice cue"
}

// window names the timing window that triggered a cue
type window int

const (
	windowVoice window = iota
	windowCountdown
	windowFailsafe
	windowChained
)

func (w window) String() string {
	switch w {
	case windowVoice:
		return "voice window"
	case windowCountdown:
		return "countdown window"
	case windowFailsafe:
		return "failsafe window"
	default:
		return "chained after voice cue"
	}
}

// EventType classifies scheduler events
type EventType int

const (
	EventCueStarted EventType = iota
	EventCueFinished
	EventCueFailed
	EventCueCancelled
	EventTimingAnomaly
)

func (t EventType) String() string {
	switch t {
	case EventCueStarted:
		return "started"
	case EventCueFinished:
		return "finished"
	case EventCueFailed:
		return "failed"
	case EventCueCancelled:
		return "cancelled"
	default:
		return "timing-anomaly"
	}
}

// Event reports a cue lifecycle change to listeners (the session UI)
type Event struct {
	Type      EventType
	Cue       CueKind
	Segment   int           // Index of the segment whose end the cue announces
	Remaining time.Duration // Last observed time remaining in that segment
	Err       error         // Set for EventCueFailed
}

// Tick is one clock observation from the running workout
type Tick struct {
	Running          bool
	AudioCuesEnabled bool
	SegmentIndex     int
	Elapsed          time.Duration // Elapsed time in the current segment
}

// Snapshot is a read-only copy of the scheduler state for display and tests
type Snapshot struct {
	State             State
	CurrentSegment    int // -1 before the first tick
	VoiceFiredFor     int // -1 when no voice cue has fired
	CountdownFiredFor int // -1 when no countdown has fired
	LastRemaining     time.Duration
	Paused            bool
}
