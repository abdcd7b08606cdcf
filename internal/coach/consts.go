package coach

import (
	"time"

	"github.com/lowaak/treadmill-coach/internal/workout"
)

// UIMode represents the current UI mode/screen
type UIMode int

const (
	UIModeProgramSelection UIMode = iota // Program catalog and details
	UIModeSession                        // Live workout with cue activity
)

// UIModeInfo contains display information for a UI mode
type UIModeInfo struct {
	Mode        UIMode
	DisplayName string
	KeyBinding  rune // The number key to activate this mode (1-9)
}

// AllUIModes defines all available UI modes in order
var AllUIModes = []UIModeInfo{
	{Mode: UIModeProgramSelection, DisplayName: "Programs", KeyBinding: '1'},
	{Mode: UIModeSession, DisplayName: "Workout", KeyBinding: '2'},
}

// GetUIModeByKey returns the mode for a given key binding
func GetUIModeByKey(key rune) (UIMode, bool) {
	for _, info := range AllUIModes {
		if info.KeyBinding == key {
			return info.Mode, true
		}
	}
	return 0, false
}

// GetUIModeInfo returns the info for a given mode
func GetUIModeInfo(mode UIMode) (UIModeInfo, bool) {
	for _, info := range AllUIModes {
		if info.Mode == mode {
			return info, true
		}
	}
	return UIModeInfo{}, false
}

// SessionStatus represents the current status of a workout session
type SessionStatus int

const (
	SessionStatusIdle      SessionStatus = iota // No program loaded
	SessionStatusReady                          // Program loaded but not started
	SessionStatusRunning                        // Workout in progress
	SessionStatusPaused                         // Workout paused
	SessionStatusCompleted                      // Reached the end of the last segment
)

func (s SessionStatus) String() string {
	switch s {
	case SessionStatusReady:
		return "ready"
	case SessionStatusRunning:
		return "running"
	case SessionStatusPaused:
		return "paused"
	case SessionStatusCompleted:
		return "completed"
	default:
		return "idle"
	}
}

// SessionState holds the current state of a workout session
type SessionState struct {
	Status           SessionStatus
	Program          *workout.Program // The loaded program (nil if none)
	SegmentIdx       int              // Index of the current segment (0-based)
	ElapsedTime      time.Duration    // Total elapsed time in the workout
	RemainingTime    time.Duration    // Time remaining in the workout
	SegmentElapsed   time.Duration    // Elapsed time in the current segment
	SegmentRemaining time.Duration    // Time remaining in the current segment
	AudioCuesEnabled bool
}

// CurrentSegment returns the segment being run, if any
func (s SessionState) CurrentSegment() (workout.Segment, bool) {
	if s.Program == nil || s.SegmentIdx < 0 || s.SegmentIdx >= len(s.Program.Segments) {
		return workout.Segment{}, false
	}
	return s.Program.Segments[s.SegmentIdx], true
}

// DefaultTickInterval is how often the session clock feeds the cue scheduler
const DefaultTickInterval = 100 * time.Millisecond
