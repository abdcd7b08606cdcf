package coach

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/lowaak/treadmill-coach/internal/cues"
	"github.com/lowaak/treadmill-coach/internal/workout"
)

// Page names for tview.Pages
const (
	pageProgramSelection = "program_selection"
	pageSession          = "session"
)

// CursesUIViewImpl implements UIViewImpl using tview (curses-based terminal UI)
type CursesUIViewImpl struct {
	logger      *log.Logger
	app         *tview.Application
	currentMode UIMode

	pages    *tview.Pages
	logView  *tview.TextView
	mainFlex *tview.Flex // Main layout: mode content on left, logs on right

	// Program Selection mode components
	programSelectionFlex       *tview.Flex
	programSelectionTabWidgets []*tview.Box
	programList                *tview.List
	programDetailsPanel        *tview.TextView
	statsPanel                 *tview.TextView
	programs                   []workout.Program

	// Session mode components
	sessionFlex       *tview.Flex
	sessionTabWidgets []*tview.Box
	sessionPanel      *tview.TextView
	cuePanel          *tview.TextView
	cueActivity       CueActivity
	audioCuesEnabled  bool
}

func NewCursesUIView(logger *log.Logger, app *tview.Application) *CursesUIViewImpl {
	return &CursesUIViewImpl{
		logger:           logger,
		app:              app,
		currentMode:      UIModeProgramSelection,
		audioCuesEnabled: true,
	}
}

// Initialize sets up the tview widgets
func (ui *CursesUIViewImpl) Initialize(controller *UIController) {
	// Don't use SetChangedFunc with app.Draw() - it can hang during shutdown.
	// BaseUIView's listeners call Draw() after updating content.
	ui.logView = tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(false)
	ui.logView.SetBorder(true).SetTitle(" Logs ")

	ui.pages = tview.NewPages()

	ui.initProgramSelectionMode(controller)
	ui.initSessionMode()

	ui.pages.AddPage(pageProgramSelection, ui.programSelectionFlex, true, true)
	ui.pages.AddPage(pageSession, ui.sessionFlex, true, false)

	ui.mainFlex = tview.NewFlex().
		AddItem(ui.pages, 0, 3, true).
		AddItem(ui.logView, 0, 2, false)

	ui.setFocusForCurrentMode()
}

func (ui *CursesUIViewImpl) initProgramSelectionMode(controller *UIController) {
	ui.programList = tview.NewList().
		ShowSecondaryText(true).
		SetSelectedFunc(func(index int, mainText, secondaryText string, shortcut rune) {
			ui.logger.Printf("UI: Program selected: index=%d, name=%s", index, mainText)
			controller.OnProgramSelected(index)
		}).
		SetChangedFunc(func(index int, mainText, secondaryText string, shortcut rune) {
			ui.updateProgramDetailsDisplay(index)
		})
	ui.programList.SetBorder(true).SetTitle(" Programs ")

	ui.programDetailsPanel = tview.NewTextView().
		SetDynamicColors(true).
		SetTextAlign(tview.AlignLeft)
	ui.programDetailsPanel.SetBorder(true).SetTitle(" Program Details ")
	ui.updateProgramDetailsDisplay(-1)

	ui.statsPanel = tview.NewTextView().
		SetDynamicColors(true).
		SetTextAlign(tview.AlignLeft)
	ui.statsPanel.SetBorder(true).SetTitle(" Stats ")

	ui.programSelectionTabWidgets = append(ui.programSelectionTabWidgets, ui.programList.Box, ui.programDetailsPanel.Box)

	leftColumn := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(ui.programList, 0, 3, true).
		AddItem(ui.statsPanel, 7, 0, false)

	ui.programSelectionFlex = tview.NewFlex().
		SetDirection(tview.FlexColumn).
		AddItem(leftColumn, 0, 1, true).
		AddItem(ui.programDetailsPanel, 0, 1, false)
}

func (ui *CursesUIViewImpl) initSessionMode() {
	ui.sessionPanel = tview.NewTextView().
		SetDynamicColors(true).
		SetTextAlign(tview.AlignLeft)
	ui.sessionPanel.SetBorder(true).SetTitle(" Workout ")

	ui.cuePanel = tview.NewTextView().
		SetDynamicColors(true).
		SetTextAlign(tview.AlignLeft)
	ui.cuePanel.SetBorder(true).SetTitle(" Audio Cues ")

	ui.sessionTabWidgets = append(ui.sessionTabWidgets, ui.sessionPanel.Box, ui.cuePanel.Box)

	ui.sessionFlex = tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(ui.sessionPanel, 0, 3, true).
		AddItem(ui.cuePanel, 7, 0, false)
}

// SetProgramList populates the program selection list
func (ui *CursesUIViewImpl) SetProgramList(programs []workout.Program) {
	ui.programs = programs
	ui.programList.Clear()

	for _, program := range programs {
		secondary := formatDuration(program.TotalDuration())
		if n := program.Segments.VoiceCueCount(); n > 0 {
			secondary += fmt.Sprintf(" · %d voice cues", n)
		}
		ui.programList.AddItem(program.Name, secondary, 0, nil)
	}

	if len(programs) > 0 {
		ui.updateProgramDetailsDisplay(0)
	}
}

// formatDuration formats a duration for display
func formatDuration(d time.Duration) string {
	minutes := int(d.Minutes())
	if minutes >= 60 {
		hours := minutes / 60
		mins := minutes % 60
		if mins > 0 {
			return fmt.Sprintf("%dh %dm", hours, mins)
		}
		return fmt.Sprintf("%dh", hours)
	}
	if minutes == 0 {
		return fmt.Sprintf("%d sec", int(d.Seconds()))
	}
	return fmt.Sprintf("%d min", minutes)
}

// formatDurationMMSS formats a duration as MM:SS
func formatDurationMMSS(d time.Duration) string {
	totalSeconds := int(d.Seconds())
	minutes := totalSeconds / 60
	seconds := totalSeconds % 60
	return fmt.Sprintf("%02d:%02d", minutes, seconds)
}

func formatSegment(seg workout.Segment) string {
	text := fmt.Sprintf("%s, %s", seg.Label(), formatDuration(seg.Duration))
	if seg.Incline != 0 {
		text += fmt.Sprintf(" @ %.1f%%", seg.Incline)
	}
	return text
}

func (ui *CursesUIViewImpl) updateProgramDetailsDisplay(index int) {
	if ui.programDetailsPanel == nil {
		return
	}

	var b strings.Builder
	if index < 0 || index >= len(ui.programs) {
		b.WriteString("\n\n  [yellow]Programs[white]\n\n")
		b.WriteString("  Select a program from the list to view details.\n\n")
		b.WriteString("  [gray]Press Enter to load the selected program.[white]\n")
	} else {
		program := ui.programs[index]
		fmt.Fprintf(&b, "\n  [yellow]%s[white]\n", program.Name)
		if program.Description != "" {
			fmt.Fprintf(&b, "  [gray]%s[white]\n", program.Description)
		}
		fmt.Fprintf(&b, "\n  [gray]Duration:[white] %s\n", formatDuration(program.TotalDuration()))
		fmt.Fprintf(&b, "  [gray]Segments:[white] %d\n\n", len(program.Segments))

		b.WriteString("  [gray]Structure:[white]\n")
		for i, seg := range program.Segments {
			marker := " "
			if seg.VoiceCue != nil {
				marker = "♪"
			}
			fmt.Fprintf(&b, "   %s %d. %s\n", marker, i+1, formatSegment(seg))
		}
		b.WriteString("\n  [green]Press Enter to load this program[white]\n")
	}

	ui.programDetailsPanel.SetText(b.String())
}

// UpdateStats shows lifetime completion stats
func (ui *CursesUIViewImpl) UpdateStats(stats workout.CompletionStats) {
	var b strings.Builder
	fmt.Fprintf(&b, " [gray]Workouts completed:[white] %d\n", stats.WorkoutsCompleted)
	fmt.Fprintf(&b, " [gray]Total time:[white] %s\n", formatDuration(stats.TotalTime()))
	if !stats.LastCompletedAt.IsZero() {
		fmt.Fprintf(&b, " [gray]Last workout:[white] %s\n", stats.LastCompletedAt.Local().Format("Jan 2 15:04"))
	}
	ui.statsPanel.SetText(b.String())
}

// SetMode switches the UI to the specified mode
func (ui *CursesUIViewImpl) SetMode(mode UIMode) {
	if ui.currentMode == mode {
		return
	}

	ui.currentMode = mode

	switch mode {
	case UIModeProgramSelection:
		ui.pages.SwitchToPage(pageProgramSelection)
	case UIModeSession:
		ui.pages.SwitchToPage(pageSession)
	}

	ui.setFocusForCurrentMode()
}

// GetCurrentMode returns the currently active UI mode
func (ui *CursesUIViewImpl) GetCurrentMode() UIMode {
	return ui.currentMode
}

func (ui *CursesUIViewImpl) getTabWidgetsForCurrentMode() []*tview.Box {
	switch ui.currentMode {
	case UIModeProgramSelection:
		return ui.programSelectionTabWidgets
	case UIModeSession:
		return ui.sessionTabWidgets
	default:
		return nil
	}
}

func (ui *CursesUIViewImpl) setFocusForCurrentMode() {
	if widgets := ui.getTabWidgetsForCurrentMode(); len(widgets) > 0 {
		ui.app.SetFocus(widgets[0])
	}
}

// SetupKeyboardHandlers sets up keyboard event handlers
func (ui *CursesUIViewImpl) SetupKeyboardHandlers(controller *UIController) {
	ui.app.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		if event.Key() == tcell.KeyRune {
			if mode, ok := GetUIModeByKey(event.Rune()); ok {
				// Delegate to controller - it will update the model, which will notify us
				controller.OnModeChange(mode)
				return nil
			}
		}

		if event.Key() == tcell.KeyTab {
			widgets := ui.getTabWidgetsForCurrentMode()
			for idx, widget := range widgets {
				if widget.HasFocus() {
					ui.app.SetFocus(widgets[(idx+1)%len(widgets)])
					break
				}
			}
			return nil
		}

		if event.Key() == tcell.KeyEscape {
			controller.OnEscapeKey()
			return nil
		}

		if ui.currentMode == UIModeSession && event.Key() == tcell.KeyRune {
			switch event.Rune() {
			case ' ':
				controller.ToggleSession()
				return nil
			case 'x':
				controller.StopSession()
				return nil
			case 'n':
				controller.SkipSegment()
				return nil
			case 'a':
				controller.ToggleAudioCues()
				return nil
			}
		}

		return event
	})
}

// GetLogViewHeight returns the visible height of the log view
func (ui *CursesUIViewImpl) GetLogViewHeight() int {
	_, _, _, height := ui.logView.GetInnerRect()
	return height
}

// ClearLogView clears the log view
func (ui *CursesUIViewImpl) ClearLogView() {
	ui.logView.Clear()
}

// WriteLogLine writes a line to the log view
func (ui *CursesUIViewImpl) WriteLogLine(line string) error {
	_, err := fmt.Fprint(ui.logView, tview.Escape(line))
	return err
}

// Draw refreshes/redraws the UI
func (ui *CursesUIViewImpl) Draw() error {
	ui.app.Draw()
	return nil
}

// Run starts the UI and blocks until it exits
func (ui *CursesUIViewImpl) Run() error {
	// SetRoot must be called before setting focus, otherwise focus may be reset
	ui.app.SetRoot(ui.mainFlex, true)
	ui.setFocusForCurrentMode()
	return ui.app.Run()
}

// Stop stops the UI framework
func (ui *CursesUIViewImpl) Stop() {
	ui.app.Stop()
}

// UpdateSessionState updates the live workout display
func (ui *CursesUIViewImpl) UpdateSessionState(state SessionState) {
	ui.audioCuesEnabled = state.AudioCuesEnabled
	ui.sessionPanel.SetText(formatSessionDisplay(state))
	ui.cuePanel.SetText(ui.formatCueDisplay())
}

// UpdateCueActivity updates the cue status display
func (ui *CursesUIViewImpl) UpdateCueActivity(activity CueActivity) {
	ui.cueActivity = activity
	ui.cuePanel.SetText(ui.formatCueDisplay())
}

func (ui *CursesUIViewImpl) formatCueDisplay() string {
	var b strings.Builder
	if ui.audioCuesEnabled {
		b.WriteString("\n  [gray]Audio cues:[white] [green]on[white]")
	} else {
		b.WriteString("\n  [gray]Audio cues:[white] [red]off[white]")
	}

	switch ui.cueActivity.State {
	case cues.StatePlayingVoiceCue:
		b.WriteString("   [yellow]♪ announcing next segment[white]\n")
	case cues.StatePlayingCountdown:
		b.WriteString("   [yellow]● countdown[white]\n")
	default:
		b.WriteString("\n")
	}
	if ui.cueActivity.LastEvent != "" {
		fmt.Fprintf(&b, "  [gray]Last:[white] %s\n", tview.Escape(ui.cueActivity.LastEvent))
	}
	if ui.cueActivity.Failures > 0 {
		fmt.Fprintf(&b, "  [red]%d cue(s) could not be played[white]\n", ui.cueActivity.Failures)
	}
	return b.String()
}

func formatSessionDisplay(state SessionState) string {
	var b strings.Builder

	switch state.Status {
	case SessionStatusIdle:
		b.WriteString("\n  [gray]No program loaded[white]\n\n")
		b.WriteString("  Go to Programs (press 1) to load a workout.\n")
		return b.String()

	case SessionStatusReady:
		if state.Program != nil {
			fmt.Fprintf(&b, "\n  [yellow]%s[white]\n\n", state.Program.Name)
			fmt.Fprintf(&b, "  [gray]Duration:[white] %s\n\n", formatDuration(state.Program.TotalDuration()))
			b.WriteString("  [green]Ready to start[white]\n\n")
			b.WriteString("  [gray]Press[white] [yellow]Space[white] [gray]to start[white]\n")
		}
		return b.String()

	case SessionStatusCompleted:
		if state.Program != nil {
			fmt.Fprintf(&b, "\n  [yellow]%s[white]\n\n", state.Program.Name)
			fmt.Fprintf(&b, "  [green]Workout complete![white] %s\n\n", formatDurationMMSS(state.ElapsedTime))
			b.WriteString("  [gray]Press[white] [yellow]Space[white] [gray]to run it again[white]\n")
		}
		return b.String()
	}

	if state.Program == nil {
		return "\n  [gray]No workout data[white]\n"
	}
	paused := state.Status == SessionStatusPaused

	if paused {
		fmt.Fprintf(&b, "\n  [yellow]%s[white] [gray](PAUSED)[white]\n\n", state.Program.Name)
	} else {
		fmt.Fprintf(&b, "\n  [yellow]%s[white]\n\n", state.Program.Name)
	}

	fmt.Fprintf(&b, "  [gray]Elapsed:[white]   %s\n", formatDurationMMSS(state.ElapsedTime))
	fmt.Fprintf(&b, "  [gray]Remaining:[white] %s\n\n", formatDurationMMSS(state.RemainingTime))

	segments := state.Program.Segments
	if seg, ok := state.CurrentSegment(); ok {
		fmt.Fprintf(&b, "  [cyan]Segment[white] (%d/%d)  [yellow]%s[white]\n", state.SegmentIdx+1, len(segments), seg.Label())
		fmt.Fprintf(&b, "  [gray]Pace:[white] %s   [gray]Incline:[white] %.1f%%\n", seg.Pace, seg.Incline)
		fmt.Fprintf(&b, "  [gray]Segment time:[white] %s / %s   [gray]next in[white] [yellow]%s[white]\n",
			formatDurationMMSS(state.SegmentElapsed), formatDurationMMSS(seg.Duration), formatDurationMMSS(state.SegmentRemaining))

		if next, ok := segments.Next(state.SegmentIdx); ok {
			fmt.Fprintf(&b, "\n  [gray]Next:[white] %s\n", formatSegment(next))
		} else {
			b.WriteString("\n  [gray]Next:[white] [green]Finish![white]\n")
		}
	}

	b.WriteString("\n  [gray]─────────────────────────[white]\n")
	if paused {
		b.WriteString("  [yellow]Space[white] Resume  |  [yellow]X[white] Stop  |  [yellow]N[white] Skip  |  [yellow]A[white] Cues\n")
	} else {
		b.WriteString("  [yellow]Space[white] Pause  |  [yellow]X[white] Stop  |  [yellow]N[white] Skip  |  [yellow]A[white] Cues\n")
	}
	return b.String()
}
