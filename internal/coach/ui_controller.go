package coach

import (
	"log"
)

// UIController handles UI events and coordinates with the UIModel and Session
type UIController struct {
	model   *UIModel
	session *Session
	logger  *log.Logger
}

// NewUIController creates a new UIController with the given dependencies
func NewUIController(model *UIModel, session *Session, logger *log.Logger) *UIController {
	if model == nil {
		panic("UIController: model cannot be nil")
	}
	if session == nil {
		panic("UIController: session cannot be nil")
	}
	if logger == nil {
		panic("UIController: logger cannot be nil")
	}

	return &UIController{
		model:   model,
		session: session,
		logger:  logger,
	}
}

// OnEscapeKey handles when the Escape key is pressed
func (c *UIController) OnEscapeKey() {
	c.model.RequestCloseApplication()
}

// OnModeChange handles when the user requests a mode change
func (c *UIController) OnModeChange(mode UIMode) {
	if info, ok := GetUIModeInfo(mode); ok {
		c.logger.Printf("Switching to %s mode", info.DisplayName)
	}
	c.model.SetMode(mode)
}

// --- Program Selection Methods ---

// OnProgramSelected loads the program and switches to the workout screen
func (c *UIController) OnProgramSelected(index int) {
	programs := c.model.Programs()
	if index < 0 || index >= len(programs) {
		c.logger.Printf("Invalid program index: %d", index)
		return
	}

	program := &programs[index]
	c.logger.Printf("Program selected: %s", program.Name)
	c.session.SetProgram(program)
	if c.session.State().Program == program {
		c.OnModeChange(UIModeSession)
	}
}

// --- Session Methods ---

// ToggleSession starts, pauses, or resumes the workout based on current state
func (c *UIController) ToggleSession() {
	state := c.model.GetSessionState()
	switch state.Status {
	case SessionStatusReady, SessionStatusPaused, SessionStatusCompleted:
		c.session.Start()
	case SessionStatusRunning:
		c.session.Pause()
	default:
		c.logger.Printf("No program loaded - select one in Programs mode (press 1)")
	}
}

// StopSession stops the workout and resets to ready state
func (c *UIController) StopSession() {
	c.session.Stop()
}

// SkipSegment jumps to the next segment
func (c *UIController) SkipSegment() {
	c.session.SkipSegment()
}

// ToggleAudioCues turns voice cues and the countdown on or off
func (c *UIController) ToggleAudioCues() {
	c.session.SetAudioCuesEnabled(!c.session.AudioCuesEnabled())
}

// Shutdown stops the session and releases audio resources
func (c *UIController) Shutdown() {
	c.session.Shutdown()
}
