// Package workout describes treadmill programs: an ordered timeline of pace
// and incline segments, optionally carrying a pre-recorded voice cue that
// announces the segment.
package workout

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidProgram is returned when a program or timeline breaks an invariant
var ErrInvalidProgram = errors.New("invalid program")

// PaceType is the effort level of a segment
type PaceType string

const (
	PaceWalk    PaceType = "walk"
	PaceJog     PaceType = "jog"
	PaceRun     PaceType = "run"
	PaceSprint  PaceType = "sprint"
	PaceRecover PaceType = "recover"
)

// AllPaceTypes lists the known pace types in increasing effort
var AllPaceTypes = []PaceType{PaceRecover, PaceWalk, PaceJog, PaceRun, PaceSprint}

// Valid reports whether p is one of the known pace types
func (p PaceType) Valid() bool {
	for _, known := range AllPaceTypes {
		if p == known {
			return true
		}
	}
	return false
}

// VoiceCue references pre-rendered speech announcing a segment.
// SpokenDuration is measured offline when the audio is generated.
type VoiceCue struct {
	Resource       string
	SpokenDuration time.Duration
}

// Segment is one contiguous pace/incline interval
type Segment struct {
	Name     string        // Optional display label
	Pace     PaceType      // Effort for this interval
	Duration time.Duration // Always > 0 in a valid timeline
	Incline  float64       // Percent grade
	VoiceCue *VoiceCue     // Announcement played before this segment starts (nil if none)
}

// Label returns the display name, falling back to the pace type
func (s Segment) Label() string {
	if s.Name != "" {
		return s.Name
	}
	return string(s.Pace)
}

// Timeline is the ordered, immutable list of segments of a running workout
type Timeline []Segment

// Validate checks the timeline invariants
func (t Timeline) Validate() error {
	if len(t) == 0 {
		return fmt.Errorf("%w: timeline has no segments", ErrInvalidProgram)
	}
	for i, seg := range t {
		if seg.Duration <= 0 {
			return fmt.Errorf("%w: segment %d has non-positive duration %v", ErrInvalidProgram, i, seg.Duration)
		}
		if seg.Pace != "" && !seg.Pace.Valid() {
			return fmt.Errorf("%w: segment %d has unknown pace %q", ErrInvalidProgram, i, seg.Pace)
		}
		if seg.VoiceCue != nil {
			if seg.VoiceCue.Resource == "" {
				return fmt.Errorf("%w: segment %d voice cue has no resource", ErrInvalidProgram, i)
			}
			if seg.VoiceCue.SpokenDuration < 0 {
				return fmt.Errorf("%w: segment %d voice cue has negative duration", ErrInvalidProgram, i)
			}
		}
	}
	return nil
}

// Next returns the segment after index i; ok is false for the last segment
func (t Timeline) Next(i int) (Segment, bool) {
	if i < 0 || i+1 >= len(t) {
		return Segment{}, false
	}
	return t[i+1], true
}

// TotalDuration returns the sum of all segment durations
func (t Timeline) TotalDuration() time.Duration {
	var total time.Duration
	for _, seg := range t {
		total += seg.Duration
	}
	return total
}

// StartOf returns the offset from the workout start at which segment i begins
func (t Timeline) StartOf(i int) time.Duration {
	var start time.Duration
	for j := 0; j < i && j < len(t); j++ {
		start += t[j].Duration
	}
	return start
}

// Locate maps an elapsed workout time to (segment index, elapsed in segment).
// ok is false once elapsed reaches the end of the timeline.
func (t Timeline) Locate(elapsed time.Duration) (int, time.Duration, bool) {
	if elapsed < 0 {
		elapsed = 0
	}
	var start time.Duration
	for i, seg := range t {
		end := start + seg.Duration
		if elapsed < end {
			return i, elapsed - start, true
		}
		start = end
	}
	return len(t) - 1, 0, false
}

// VoiceCueCount returns how many segments carry a voice cue
func (t Timeline) VoiceCueCount() int {
	n := 0
	for _, seg := range t {
		if seg.VoiceCue != nil {
			n++
		}
	}
	return n
}

// Program is a named, curated workout
type Program struct {
	Name        string
	Description string
	Segments    Timeline
}

// TotalDuration returns the total duration of all segments in the program
func (p *Program) TotalDuration() time.Duration {
	return p.Segments.TotalDuration()
}

// Validate checks the program has a name and a valid timeline
func (p *Program) Validate() error {
	if p.Name == "" {
		return fmt.Errorf("%w: program has no name", ErrInvalidProgram)
	}
	if err := p.Segments.Validate(); err != nil {
		return fmt.Errorf("program %q: %w", p.Name, err)
	}
	return nil
}
