package coach

import (
	"log"
	"sync"
	"time"

	"github.com/lowaak/treadmill-coach/internal/cues"
	"github.com/lowaak/treadmill-coach/internal/events"
	"github.com/lowaak/treadmill-coach/internal/go_func_utils"
	"github.com/lowaak/treadmill-coach/internal/workout"
)

// CueScheduler is the part of cues.Scheduler the session drives
type CueScheduler interface {
	SetTimeline(timeline workout.Timeline)
	Tick(t cues.Tick)
	Pause()
	Resume()
	Stop()
	Close()
}

// CompletionRecorder stores finished workouts
type CompletionRecorder interface {
	RecordCompletion(programName string, duration time.Duration, at time.Time)
}

// sessionCommand represents commands sent to the session goroutine
type sessionCommand int

const (
	cmdStart sessionCommand = iota
	cmdPause
	cmdStop
)

// Session is the workout clock. It owns elapsed time, derives the current
// segment and feeds each observation to the cue scheduler.
type Session struct {
	scheduler    CueScheduler
	recorder     CompletionRecorder
	logger       *log.Logger
	tickInterval time.Duration
	now          func() time.Time

	stateEvent *events.ChannelEvent[SessionState]

	// Current session state (protected by mu)
	mu               sync.RWMutex
	program          *workout.Program
	status           SessionStatus
	elapsedTime      time.Duration
	audioCuesEnabled bool
	lastSegmentIdx   int

	// Goroutine management
	cmdChan      chan sessionCommand
	doneChan     chan struct{} // Closed to signal shutdown
	wg           sync.WaitGroup
	shutdownOnce sync.Once
}

// NewSession creates a Session and starts its clock goroutine
func NewSession(scheduler CueScheduler, recorder CompletionRecorder, tickInterval time.Duration, logger *log.Logger) *Session {
	if scheduler == nil {
		panic("Session: scheduler cannot be nil")
	}
	if recorder == nil {
		panic("Session: recorder cannot be nil")
	}
	if logger == nil {
		panic("Session: logger cannot be nil")
	}
	if tickInterval <= 0 {
		tickInterval = DefaultTickInterval
	}

	s := &Session{
		scheduler:        scheduler,
		recorder:         recorder,
		logger:           logger,
		tickInterval:     tickInterval,
		now:              time.Now,
		stateEvent:       events.NewChannelEvent[SessionState](true),
		status:           SessionStatusIdle,
		audioCuesEnabled: true,
		lastSegmentIdx:   -1,
		cmdChan:          make(chan sessionCommand, 1),
		doneChan:         make(chan struct{}),
	}

	s.wg.Add(1)
	go_func_utils.SafeGo(logger, func() { s.runLoop() })

	return s
}

// ListenToState registers a channel to receive session state updates
// Returns a deregistration function that can be called to remove the listener
func (s *Session) ListenToState(ch chan<- SessionState) func() {
	return s.stateEvent.Listen(ch)
}

// State returns the current session state
func (s *Session) State() SessionState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.buildState()
}

// SetProgram loads a program for execution
func (s *Session) SetProgram(program *workout.Program) {
	s.mu.Lock()

	// Can only set a program when not running or paused
	if s.status == SessionStatusRunning || s.status == SessionStatusPaused {
		s.mu.Unlock()
		s.logger.Printf("Session: Cannot change program while running or paused")
		return
	}

	s.program = program
	s.elapsedTime = 0
	s.lastSegmentIdx = -1

	var timeline workout.Timeline
	if program != nil {
		s.status = SessionStatusReady
		timeline = program.Segments
		s.logger.Printf("Session: Program '%s' loaded (duration: %v, %d voice cues)",
			program.Name, program.TotalDuration(), program.Segments.VoiceCueCount())
	} else {
		s.status = SessionStatusIdle
		s.logger.Printf("Session: Program cleared")
	}

	state := s.buildState()
	s.mu.Unlock()

	// External calls after releasing lock
	s.scheduler.SetTimeline(timeline)
	s.stateEvent.Notify(state)
}

// Start begins or resumes the workout
func (s *Session) Start() {
	s.mu.RLock()
	status := s.status
	program := s.program
	s.mu.RUnlock()

	if program == nil {
		s.logger.Printf("Session: No program loaded")
		return
	}

	switch status {
	case SessionStatusRunning:
		s.logger.Printf("Session: Workout already running")
		return
	case SessionStatusReady, SessionStatusPaused, SessionStatusCompleted:
	default:
		s.logger.Printf("Session: Cannot start workout in current state")
		return
	}

	s.logger.Printf("Session: Starting workout")
	s.cmdChan <- cmdStart
}

// Pause pauses the workout and any cue that is playing
func (s *Session) Pause() {
	s.mu.RLock()
	status := s.status
	s.mu.RUnlock()

	if status != SessionStatusRunning {
		s.logger.Printf("Session: Cannot pause - workout not running")
		return
	}

	s.logger.Printf("Session: Pausing workout")
	s.cmdChan <- cmdPause
}

// Stop stops the workout, silences cues and rewinds to the start
func (s *Session) Stop() {
	s.mu.RLock()
	status := s.status
	s.mu.RUnlock()

	if status == SessionStatusIdle {
		s.logger.Printf("Session: No workout to stop")
		return
	}

	s.logger.Printf("Session: Stopping workout")
	s.cmdChan <- cmdStop
}

// SkipSegment jumps to the start of the next segment. Skipping the last
// segment completes the workout.
func (s *Session) SkipSegment() {
	s.mu.Lock()
	if s.status != SessionStatusRunning && s.status != SessionStatusPaused {
		s.mu.Unlock()
		s.logger.Printf("Session: Cannot skip - workout not active")
		return
	}
	idx, _, _ := s.program.Segments.Locate(s.elapsedTime)
	target := s.program.Segments.StartOf(idx + 1)
	delta := target - s.elapsedTime
	paused := s.status == SessionStatusPaused
	s.mu.Unlock()

	s.logger.Printf("Session: Skipping to segment %d", idx+1)
	if paused {
		// cues held by the pause belong to the transition being skipped
		s.scheduler.Stop()
	}
	s.advance(delta, true)
}

// SetAudioCuesEnabled turns voice cues and the countdown on or off.
// Disabling silences any cue that is playing.
func (s *Session) SetAudioCuesEnabled(enabled bool) {
	s.mu.Lock()
	if s.audioCuesEnabled == enabled {
		s.mu.Unlock()
		return
	}
	s.audioCuesEnabled = enabled
	state := s.buildState()
	s.mu.Unlock()

	if !enabled {
		s.scheduler.Stop()
	}
	s.logger.Printf("Session: Audio cues enabled: %v", enabled)
	s.stateEvent.Notify(state)
}

// AudioCuesEnabled reports whether cues are currently enabled
func (s *Session) AudioCuesEnabled() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.audioCuesEnabled
}

// Shutdown stops the session goroutine and releases all cue resources
// Safe to call multiple times - only the first call has effect
func (s *Session) Shutdown() {
	s.shutdownOnce.Do(func() {
		s.logger.Printf("Session: Shutting down")
		close(s.doneChan) // Signal goroutine to exit
		s.wg.Wait()
		s.scheduler.Close()
		s.logger.Printf("Session: Shutdown complete")
	})
}

// --- Private Methods ---

// buildState computes the current session state from internal fields.
// MUST be called with mu held (at least read lock).
func (s *Session) buildState() SessionState {
	state := SessionState{
		Status:           s.status,
		Program:          s.program,
		AudioCuesEnabled: s.audioCuesEnabled,
	}

	if s.program == nil || s.status == SessionStatusIdle {
		return state
	}

	total := s.program.TotalDuration()
	state.ElapsedTime = s.elapsedTime
	state.RemainingTime = total - s.elapsedTime

	idx, inSeg, ok := s.program.Segments.Locate(s.elapsedTime)
	state.SegmentIdx = idx
	if ok {
		state.SegmentElapsed = inSeg
		state.SegmentRemaining = s.program.Segments[idx].Duration - inSeg
	} else if idx >= 0 {
		// Past the end - pin to the end of the last segment
		state.SegmentElapsed = s.program.Segments[idx].Duration
	}
	return state
}

// tickResult holds the result of advancing the clock
type tickResult struct {
	state     SessionState
	tick      cues.Tick
	skip      bool // status wasn't running, skip this tick
	completed bool // workout just completed
	program   string
	total     time.Duration
}

// handleTick advances elapsed time under lock and returns what actions to take.
func (s *Session) handleTick(delta time.Duration, force bool) tickResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status != SessionStatusRunning && !(force && s.status == SessionStatusPaused) {
		return tickResult{skip: true}
	}

	s.elapsedTime += delta

	total := s.program.TotalDuration()
	if s.elapsedTime >= total {
		s.elapsedTime = total
		s.status = SessionStatusCompleted
		return tickResult{
			state:     s.buildState(),
			completed: true,
			program:   s.program.Name,
			total:     total,
		}
	}

	state := s.buildState()
	if state.SegmentIdx != s.lastSegmentIdx {
		s.logger.Printf("Session: Moved to segment %d (%s)", state.SegmentIdx, s.program.Segments[state.SegmentIdx].Label())
		s.lastSegmentIdx = state.SegmentIdx
	}

	return tickResult{
		state: state,
		tick: cues.Tick{
			Running:          s.status == SessionStatusRunning,
			AudioCuesEnabled: s.audioCuesEnabled,
			SegmentIndex:     state.SegmentIdx,
			Elapsed:          state.SegmentElapsed,
		},
	}
}

// advance moves the clock forward and performs the resulting external calls.
// force lets a skip move a paused clock.
func (s *Session) advance(delta time.Duration, force bool) tickResult {
	result := s.handleTick(delta, force)
	if result.skip {
		return result
	}

	if result.completed {
		s.scheduler.Stop()
		s.recorder.RecordCompletion(result.program, result.total, s.now())
		s.stateEvent.Notify(result.state)
		s.logger.Printf("Session: Workout complete!")
		return result
	}

	s.scheduler.Tick(result.tick)
	s.stateEvent.Notify(result.state)
	return result
}

// runLoop is the main goroutine that manages the session clock.
func (s *Session) runLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.tickInterval)
	ticker.Stop() // Start stopped, will be started when the workout starts

	var lastTick time.Time

	for {
		select {
		case <-s.doneChan:
			ticker.Stop()
			s.logger.Printf("Session: Goroutine exiting")
			return

		case cmd := <-s.cmdChan:
			switch cmd {
			case cmdStart:
				resuming := false
				state := func() SessionState {
					s.mu.Lock()
					defer s.mu.Unlock()
					resuming = s.status == SessionStatusPaused
					if s.status == SessionStatusCompleted {
						s.elapsedTime = 0
						s.lastSegmentIdx = -1
					}
					s.status = SessionStatusRunning
					return s.buildState()
				}()

				if resuming {
					s.scheduler.Resume()
				}
				lastTick = s.now()
				ticker.Reset(s.tickInterval)
				s.stateEvent.Notify(state)
				s.logger.Printf("Session: Workout started")

			case cmdPause:
				ticker.Stop()
				state := func() SessionState {
					s.mu.Lock()
					defer s.mu.Unlock()
					s.status = SessionStatusPaused
					return s.buildState()
				}()

				s.scheduler.Pause()
				s.stateEvent.Notify(state)
				s.logger.Printf("Session: Workout paused")

			case cmdStop:
				ticker.Stop()
				state := func() SessionState {
					s.mu.Lock()
					defer s.mu.Unlock()
					s.status = SessionStatusReady
					s.elapsedTime = 0
					s.lastSegmentIdx = -1
					return s.buildState()
				}()

				s.scheduler.Stop()
				s.stateEvent.Notify(state)
				s.logger.Printf("Session: Workout stopped and reset")
			}

		case <-ticker.C:
			now := s.now()
			delta := now.Sub(lastTick)
			lastTick = now

			if result := s.advance(delta, false); result.completed {
				ticker.Stop()
			}
		}
	}
}
