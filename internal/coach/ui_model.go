package coach

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/lowaak/treadmill-coach/internal/cues"
	"github.com/lowaak/treadmill-coach/internal/events"
	"github.com/lowaak/treadmill-coach/internal/go_func_utils"
	"github.com/lowaak/treadmill-coach/internal/workout"
)

// UIState holds the current state of the UI that views need to render
type UIState struct {
	Mode UIMode
}

// CueActivity is the cue state shown next to the live workout
type CueActivity struct {
	State     cues.State
	LastEvent string // Human readable description of the latest cue event
	Failures  int    // Cues that could not be loaded or played this run
}

// cueEventSource is the scheduler's event feed
type cueEventSource interface {
	ListenToEvents(callback func(cues.Event)) func()
	State() cues.State
}

type UIModel struct {
	logEvent              *events.ChannelEvent[string]
	closeApplicationEvent *events.ChannelEvent[struct{}]
	uiStateEvent          *events.ChannelEvent[UIState]
	uiState               UIState
	sessionStateEvent     *events.ChannelEvent[SessionState]
	sessionState          SessionState
	cueActivityEvent      *events.ChannelEvent[CueActivity]
	cueActivity           CueActivity
	statsEvent            *events.ChannelEvent[workout.CompletionStats]
	stats                 *workout.StatsStore
	programs              []workout.Program
	logLines              []string
	logMu                 sync.RWMutex
	mu                    sync.RWMutex
	ctx                   context.Context
	cancel                context.CancelFunc
	wg                    sync.WaitGroup
	unregisterCues        func()
	logger                *log.Logger
}

const maxLogLines = 1000

// NewUIModel creates the model and starts mirroring session state and cue
// events into it.
func NewUIModel(session *Session, cueSource cueEventSource, stats *workout.StatsStore, programs []workout.Program, logger *log.Logger, uiLogChan <-chan string) *UIModel {
	if logger == nil {
		panic("UIModel: logger cannot be nil")
	}
	if session == nil {
		panic("UIModel: session cannot be nil")
	}
	if cueSource == nil {
		panic("UIModel: cueSource cannot be nil")
	}
	if stats == nil {
		panic("UIModel: stats cannot be nil")
	}
	if uiLogChan == nil {
		panic("UIModel: uiLogChan cannot be nil")
	}
	ctx, cancel := context.WithCancel(context.Background())
	model := &UIModel{
		logEvent:              events.NewChannelEvent[string](false),
		closeApplicationEvent: events.NewChannelEvent[struct{}](true),
		uiStateEvent:          events.NewChannelEvent[UIState](true),
		uiState:               UIState{Mode: UIModeProgramSelection},
		sessionStateEvent:     events.NewChannelEvent[SessionState](true),
		sessionState:          session.State(),
		cueActivityEvent:      events.NewChannelEvent[CueActivity](true),
		cueActivity:           CueActivity{State: cueSource.State()},
		statsEvent:            events.NewChannelEvent[workout.CompletionStats](true),
		stats:                 stats,
		programs:              programs,
		logLines:              make([]string, 0, maxLogLines),
		ctx:                   ctx,
		cancel:                cancel,
		logger:                logger,
	}

	// Listen to session clock changes
	model.wg.Add(1)
	go_func_utils.SafeGo(model.logger, func() { model.listenToSession(ctx, session) })

	// Scheduler events arrive on the caller's goroutine; only state copies are taken here
	model.unregisterCues = cueSource.ListenToEvents(func(ev cues.Event) {
		model.onCueEvent(ev, cueSource.State())
	})

	// Read from the UI log channel and populate logLines
	model.wg.Add(1)
	go_func_utils.SafeGo(model.logger, func() { model.readFromLogChannel(ctx, uiLogChan) })

	return model
}

// Shutdown stops all goroutines and waits for them to finish
func (m *UIModel) Shutdown() {
	m.logger.Println("UIModel: Shutting down")
	m.unregisterCues()
	m.cancel()
	m.wg.Wait()
	m.logger.Println("UIModel: Shutdown complete")
}

// ListenToLog registers a channel to receive log messages
// Returns a deregistration function that can be called to remove the listener
func (m *UIModel) ListenToLog(ch chan<- string) func() {
	return m.logEvent.Listen(ch)
}

// ListenToCloseApplication registers a channel to receive close application signals
// Returns a deregistration function that can be called to remove the listener
func (m *UIModel) ListenToCloseApplication(ch chan<- struct{}) func() {
	return m.closeApplicationEvent.Listen(ch)
}

// RequestCloseApplication signals that the application should close
func (m *UIModel) RequestCloseApplication() {
	m.closeApplicationEvent.Notify(struct{}{})
}

// ListenToUIState registers a channel to receive UI state changes
// Returns a deregistration function that can be called to remove the listener
func (m *UIModel) ListenToUIState(ch chan<- UIState) func() {
	return m.uiStateEvent.Listen(ch)
}

// GetUIState returns the current UI state
func (m *UIModel) GetUIState() UIState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.uiState
}

// SetMode updates the current UI mode and notifies listeners
func (m *UIModel) SetMode(mode UIMode) {
	m.mu.Lock()
	if m.uiState.Mode == mode {
		m.mu.Unlock()
		return
	}
	m.uiState.Mode = mode
	state := m.uiState
	m.mu.Unlock()

	m.uiStateEvent.Notify(state)
}

// Programs returns the program catalog
func (m *UIModel) Programs() []workout.Program {
	return m.programs
}

// ListenToSessionState registers a channel to receive session state updates
// Returns a deregistration function that can be called to remove the listener
func (m *UIModel) ListenToSessionState(ch chan<- SessionState) func() {
	return m.sessionStateEvent.Listen(ch)
}

// GetSessionState returns the latest session state
func (m *UIModel) GetSessionState() SessionState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sessionState
}

// ListenToCueActivity registers a channel to receive cue activity updates
// Returns a deregistration function that can be called to remove the listener
func (m *UIModel) ListenToCueActivity(ch chan<- CueActivity) func() {
	return m.cueActivityEvent.Listen(ch)
}

// GetCueActivity returns the latest cue activity
func (m *UIModel) GetCueActivity() CueActivity {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cueActivity
}

// ListenToStats registers a channel to receive completion stats updates
// Returns a deregistration function that can be called to remove the listener
func (m *UIModel) ListenToStats(ch chan<- workout.CompletionStats) func() {
	return m.statsEvent.Listen(ch)
}

// GetStats returns the stored completion stats
func (m *UIModel) GetStats() workout.CompletionStats {
	return m.stats.Get()
}

func (m *UIModel) onCueEvent(ev cues.Event, state cues.State) {
	m.mu.Lock()
	m.cueActivity.State = state
	m.cueActivity.LastEvent = describeCueEvent(ev)
	if ev.Type == cues.EventCueFailed {
		m.cueActivity.Failures++
	}
	activity := m.cueActivity
	m.mu.Unlock()

	m.cueActivityEvent.Notify(activity)
}

func describeCueEvent(ev cues.Event) string {
	switch ev.Type {
	case cues.EventTimingAnomaly:
		return fmt.Sprintf("clock jumped to %.1fs before segment %d ends", ev.Remaining.Seconds(), ev.Segment+1)
	case cues.EventCueFailed:
		return fmt.Sprintf("%s for segment %d failed: %v", ev.Cue, ev.Segment+2, ev.Err)
	default:
		return fmt.Sprintf("%s for segment %d %s at %.1fs", ev.Cue, ev.Segment+2, ev.Type, ev.Remaining.Seconds())
	}
}

// listenToSession mirrors session state and refreshes stats when a run completes
func (m *UIModel) listenToSession(ctx context.Context, session *Session) {
	defer m.wg.Done()

	stateChan := make(chan SessionState, 1)
	unregister := session.ListenToState(stateChan)
	defer unregister()

	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-stateChan:
			if !ok {
				return
			}

			// A full channel drops updates, so always mirror the latest state
			state := session.State()
			m.mu.Lock()
			completedNow := state.Status == SessionStatusCompleted && m.sessionState.Status != SessionStatusCompleted
			m.sessionState = state
			if state.Status == SessionStatusReady {
				m.cueActivity.Failures = 0
			}
			m.mu.Unlock()

			m.sessionStateEvent.Notify(state)
			if completedNow {
				m.statsEvent.Notify(m.stats.Get())
			}
		}
	}
}

// readFromLogChannel reads log lines from the channel and populates logLines
func (m *UIModel) readFromLogChannel(ctx context.Context, logChan <-chan string) {
	defer m.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-logChan:
			if !ok {
				// Channel closed
				return
			}

			// Store in log lines buffer (max 1000 lines)
			m.logMu.Lock()
			m.logLines = append(m.logLines, line)
			if len(m.logLines) > maxLogLines {
				m.logLines = m.logLines[len(m.logLines)-maxLogLines:]
			}
			m.logMu.Unlock()

			// Notify listeners for immediate display
			m.logEvent.Notify(line)
		}
	}
}

// GetLogTail returns the last n lines of logs
func (m *UIModel) GetLogTail(n int) []string {
	m.logMu.RLock()
	defer m.logMu.RUnlock()

	if n <= 0 {
		return []string{}
	}

	if n >= len(m.logLines) {
		result := make([]string, len(m.logLines))
		copy(result, m.logLines)
		return result
	}

	result := make([]string, n)
	copy(result, m.logLines[len(m.logLines)-n:])
	return result
}
