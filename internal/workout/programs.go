package workout

import "time"

// Incline presets in percent grade
const (
	InclineFlat      = 1.0
	InclineRolling   = 3.0
	InclineHill      = 6.0
	InclineSteepHill = 10.0
)

func seg(pace PaceType, d time.Duration, incline float64) Segment {
	return Segment{Pace: pace, Duration: d, Incline: incline}
}

// CuratedPrograms defines the built-in interval programs. Voice cues are
// attached by manifests from the cue generation job, not here.
var CuratedPrograms = []Program{
	{
		Name:        "20 Min Walk-Jog Starter",
		Description: "Alternating walk and jog intervals for new runners",
		Segments: Timeline{
			seg(PaceWalk, 4*time.Minute, InclineFlat), // Warmup
			seg(PaceJog, 1*time.Minute, InclineFlat),
			seg(PaceWalk, 2*time.Minute, InclineFlat),
			seg(PaceJog, 1*time.Minute, InclineFlat),
			seg(PaceWalk, 2*time.Minute, InclineFlat),
			seg(PaceJog, 1*time.Minute, InclineFlat),
			seg(PaceWalk, 2*time.Minute, InclineFlat),
			seg(PaceJog, 2*time.Minute, InclineFlat),
			seg(PaceWalk, 5*time.Minute, InclineFlat), // Cooldown
		},
	},
	{
		Name:        "30 Min Steady Run",
		Description: "Easy aerobic run with a gentle warmup and cooldown",
		Segments: Timeline{
			seg(PaceWalk, 5*time.Minute, InclineFlat),
			seg(PaceRun, 20*time.Minute, InclineFlat),
			seg(PaceWalk, 5*time.Minute, InclineFlat),
		},
	},
	{
		Name:        "Sprint Ladder",
		Description: "Short sprints with full recoveries",
		Segments: Timeline{
			seg(PaceJog, 5*time.Minute, InclineFlat), // Warmup
			seg(PaceSprint, 30*time.Second, InclineFlat),
			seg(PaceRecover, 90*time.Second, InclineFlat),
			seg(PaceSprint, 45*time.Second, InclineFlat),
			seg(PaceRecover, 90*time.Second, InclineFlat),
			seg(PaceSprint, 60*time.Second, InclineFlat),
			seg(PaceRecover, 2*time.Minute, InclineFlat),
			seg(PaceSprint, 45*time.Second, InclineFlat),
			seg(PaceRecover, 90*time.Second, InclineFlat),
			seg(PaceSprint, 30*time.Second, InclineFlat),
			seg(PaceWalk, 5*time.Minute, InclineFlat), // Cooldown
		},
	},
	{
		Name:        "Hill Repeats",
		Description: "Power hiking and running on steep grades",
		Segments: Timeline{
			seg(PaceWalk, 5*time.Minute, InclineFlat),
			// Repeat 1
			seg(PaceRun, 2*time.Minute, InclineHill),
			seg(PaceWalk, 2*time.Minute, InclineFlat),
			// Repeat 2
			seg(PaceRun, 2*time.Minute, InclineHill),
			seg(PaceWalk, 2*time.Minute, InclineFlat),
			// Repeat 3
			seg(PaceWalk, 3*time.Minute, InclineSteepHill),
			seg(PaceWalk, 2*time.Minute, InclineFlat),
			// Repeat 4
			seg(PaceRun, 2*time.Minute, InclineHill),
			seg(PaceWalk, 5*time.Minute, InclineFlat),
		},
	},
	{
		Name:        "Rolling Hills 40",
		Description: "Steady jog over changing grades",
		Segments: Timeline{
			seg(PaceWalk, 5*time.Minute, InclineFlat),
			seg(PaceJog, 5*time.Minute, InclineRolling),
			seg(PaceJog, 5*time.Minute, InclineHill),
			seg(PaceJog, 5*time.Minute, InclineRolling),
			seg(PaceRun, 5*time.Minute, InclineFlat),
			seg(PaceJog, 5*time.Minute, InclineHill),
			seg(PaceJog, 5*time.Minute, InclineRolling),
			seg(PaceWalk, 5*time.Minute, InclineFlat),
		},
	},
	{
		Name:        "Incline Walk 30",
		Description: "Low-impact climbing walk",
		Segments: Timeline{
			seg(PaceWalk, 5*time.Minute, InclineFlat),
			seg(PaceWalk, 20*time.Minute, InclineSteepHill),
			seg(PaceWalk, 5*time.Minute, InclineFlat),
		},
	},
}

// FindProgram returns the program with the given name from programs
func FindProgram(programs []Program, name string) (*Program, bool) {
	for i := range programs {
		if programs[i].Name == name {
			return &programs[i], true
		}
	}
	return nil, false
}
