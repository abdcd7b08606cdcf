package coach

import "github.com/lowaak/treadmill-coach/internal/workout"

// UIViewImpl defines the interface for framework-specific UI implementations
type UIViewImpl interface {
	// Initialize is called after construction to set up framework-specific widgets
	// controller is used to handle UI events
	Initialize(controller *UIController)

	// SetupKeyboardHandlers sets up keyboard event handlers
	SetupKeyboardHandlers(controller *UIController)

	// Run starts the UI framework and blocks until it exits
	Run() error

	// Stop stops the UI framework
	Stop()

	// Draw refreshes/redraws the UI
	Draw() error

	// --- Mode Management ---

	SetMode(mode UIMode)
	GetCurrentMode() UIMode

	// --- Log View (shared across modes) ---

	GetLogViewHeight() int
	ClearLogView()
	WriteLogLine(line string) error

	// --- Program Selection Mode ---

	// SetProgramList populates the program list
	SetProgramList(programs []workout.Program)

	// UpdateStats shows lifetime completion stats
	UpdateStats(stats workout.CompletionStats)

	// --- Session Mode ---

	// UpdateSessionState updates the live workout display
	UpdateSessionState(state SessionState)

	// UpdateCueActivity updates the cue status display
	UpdateCueActivity(activity CueActivity)
}
