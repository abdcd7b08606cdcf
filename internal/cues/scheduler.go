// Package cues decides when to play the spoken announcement and the
// countdown chime ahead of each treadmill segment transition.
package cues

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/lowaak/treadmill-coach/internal/events"
	"github.com/lowaak/treadmill-coach/internal/go_func_utils"
	"github.com/lowaak/treadmill-coach/internal/workout"
)

const noSegment = -1

// Stopper cancels a delayed callback
type Stopper interface {
	Stop() bool
}

// Option customizes a Scheduler
type Option func(*Scheduler)

// WithAsyncRunner replaces the goroutine used to load and start sounds
func WithAsyncRunner(run func(fn func())) Option {
	return func(s *Scheduler) { s.runAsync = run }
}

// WithAfterFunc replaces the timer used for the post-transition reset
func WithAfterFunc(after func(d time.Duration, fn func()) Stopper) Option {
	return func(s *Scheduler) { s.afterFunc = after }
}

// sound is a cue that has been requested. handle is valid once loaded.
type sound struct {
	kind    CueKind
	segment int
	window  window
	handle  Handle
	loaded  bool
}

type startRequest struct {
	snd        *sound
	resource   string
	generation uint64
	ctx        context.Context
}

// actions are computed under the lock and carried out after releasing it
type actions struct {
	start   []startRequest
	release []Handle // stop and unload
	unload  []Handle // already finished, unload only
	resume  []Handle
	events  []Event
}

// Scheduler evaluates clock ticks against segment boundaries and drives the
// Player. Ticks and player callbacks may arrive on different goroutines; all
// state is owned by the scheduler and guarded by mu.
type Scheduler struct {
	player Player
	timing Timing
	logger *log.Logger
	events *events.CallbackEvent[Event]

	runAsync  func(fn func())
	afterFunc func(d time.Duration, fn func()) Stopper

	mu       sync.Mutex
	timeline workout.Timeline

	voice     *sound
	countdown *sound

	// fired guards: the segment index whose transition already got the cue
	voiceFiredFor     int
	countdownFiredFor int
	// each window is attempted at most once per transition, even on failure
	attempted map[window]int

	currentSegment    int
	lastRemaining     time.Duration
	haveLastRemaining bool

	resetTimer Stopper
	paused     bool
	closed     bool

	// generation is bumped by Stop; loads from an older generation are discarded
	generation uint64
	ctx        context.Context
	cancel     context.CancelFunc
}

// NewScheduler creates a Scheduler driving player with the given timing
func NewScheduler(player Player, timing Timing, logger *log.Logger, opts ...Option) *Scheduler {
	if player == nil {
		panic("CueScheduler: player cannot be nil")
	}
	if logger == nil {
		panic("CueScheduler: logger cannot be nil")
	}
	if err := timing.Validate(); err != nil {
		panic("CueScheduler: invalid timing: " + err.Error())
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		player:            player,
		timing:            timing,
		logger:            logger,
		events:            events.NewCallbackEvent[Event](false),
		voiceFiredFor:     noSegment,
		countdownFiredFor: noSegment,
		attempted:         make(map[window]int),
		currentSegment:    noSegment,
		ctx:               ctx,
		cancel:            cancel,
	}
	s.runAsync = func(fn func()) { go_func_utils.SafeGo(logger, fn) }
	s.afterFunc = func(d time.Duration, fn func()) Stopper {
		return go_func_utils.SafeAfterFunc(logger, d, fn)
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ListenToEvents registers a callback for cue lifecycle events.
// Returns a deregistration function.
func (s *Scheduler) ListenToEvents(callback func(Event)) func() {
	return s.events.Listen(callback)
}

// Timing returns the timing the scheduler was built with
func (s *Scheduler) Timing() Timing {
	return s.timing
}

// SetTimeline stops any active cue and installs the timeline of a new run
func (s *Scheduler) SetTimeline(timeline workout.Timeline) {
	s.Stop()
	s.mu.Lock()
	s.timeline = timeline
	s.mu.Unlock()
	s.logger.Printf("CueScheduler: timeline set (%d segments, %d voice cues)", len(timeline), timeline.VoiceCueCount())
}

// State returns the current playback state
func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stateLocked()
}

// Snapshot returns a copy of the scheduler state
func (s *Scheduler) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		State:             s.stateLocked(),
		CurrentSegment:    s.currentSegment,
		VoiceFiredFor:     s.voiceFiredFor,
		CountdownFiredFor: s.countdownFiredFor,
		LastRemaining:     s.lastRemaining,
		Paused:            s.paused,
	}
}

func (s *Scheduler) stateLocked() State {
	switch {
	case s.countdown != nil:
		return StatePlayingCountdown
	case s.voice != nil:
		return StatePlayingVoiceCue
	default:
		return StateIdle
	}
}

// Tick evaluates one clock observation and issues at most one play command
func (s *Scheduler) Tick(t Tick) {
	s.mu.Lock()
	acts := s.evaluateLocked(t)
	s.mu.Unlock()
	s.apply(acts)
}

func (s *Scheduler) evaluateLocked(t Tick) actions {
	var acts actions
	if s.closed || !t.Running {
		return acts
	}
	if s.paused {
		// the clock is running again, so a pause without Resume is over
		s.paused = false
		acts.resume = s.loadedHandlesLocked()
		s.logger.Printf("CueScheduler: running tick while paused, resuming %d cue(s)", len(acts.resume))
	}
	if !t.AudioCuesEnabled {
		return acts
	}
	if t.SegmentIndex < 0 || t.SegmentIndex >= len(s.timeline) {
		return acts
	}

	idx := t.SegmentIndex
	if idx != s.currentSegment {
		s.segmentChangedLocked(idx)
	}

	next, ok := s.timeline.Next(idx)
	if !ok {
		// last segment has no transition to announce
		return acts
	}

	remaining := s.timeline[idx].Duration - t.Elapsed
	previous, hadPrevious := s.lastRemaining, s.haveLastRemaining
	if hadPrevious && absDuration(remaining-previous) < s.timing.Debounce {
		return acts
	}
	s.lastRemaining = remaining
	s.haveLastRemaining = true

	voiceStart := time.Duration(-1)
	if next.VoiceCue != nil {
		voiceStart = s.timing.VoiceCueStart(next.VoiceCue.SpokenDuration)
	}
	countdownStart := s.timing.CountdownStart()

	if hadPrevious {
		s.detectAnomalyLocked(idx, previous, remaining, voiceStart, &acts)
	}

	// 1. voice cue window
	if next.VoiceCue != nil &&
		within(remaining, voiceStart-s.timing.VoiceWindow, voiceStart) &&
		!s.countdownActiveFor(idx) &&
		s.voiceFiredFor != idx &&
		s.attemptable(windowVoice, idx) {
		s.dropStaleLocked(idx, &acts)
		s.beginLocked(CueVoice, idx, next.VoiceCue.Resource, windowVoice, &acts)
		return acts
	}

	// 2. countdown window; may overlap a voice cue that is still speaking
	if within(remaining, countdownStart-s.timing.CountdownWindow, countdownStart) &&
		!s.countdownActiveFor(idx) &&
		s.countdownFiredFor != idx &&
		s.attemptable(windowCountdown, idx) {
		s.dropStaleLocked(idx, &acts)
		s.beginLocked(CueCountdown, idx, s.timing.CountdownResource, windowCountdown, &acts)
		return acts
	}

	// 3. failsafe: the countdown must play even if the earlier windows were missed
	if within(remaining, s.timing.FailsafeEarliest, s.timing.FailsafeLatest) &&
		s.countdownFiredFor != idx &&
		s.attemptable(windowFailsafe, idx) {
		if s.voice != nil {
			s.dropLocked(s.voice, &acts)
		}
		if s.countdown != nil {
			s.dropLocked(s.countdown, &acts)
		}
		s.logger.Printf("CueScheduler: failsafe countdown for segment %d at %v remaining", idx, remaining)
		s.beginLocked(CueCountdown, idx, s.timing.CountdownResource, windowFailsafe, &acts)
		return acts
	}

	return acts
}

// detectAnomalyLocked reports ticks that jumped clean over a window
func (s *Scheduler) detectAnomalyLocked(idx int, previous, remaining, voiceStart time.Duration, acts *actions) {
	skipped := func(hi, lo time.Duration) bool {
		return previous > hi && remaining < lo
	}
	countdownStart := s.timing.CountdownStart()
	switch {
	case voiceStart >= 0 && s.voiceFiredFor != idx && skipped(voiceStart, voiceStart-s.timing.VoiceWindow):
		s.logger.Printf("CueScheduler: timing anomaly, remaining jumped %v -> %v over the voice window of segment %d", previous, remaining, idx)
	case s.countdownFiredFor != idx && skipped(countdownStart, countdownStart-s.timing.CountdownWindow):
		s.logger.Printf("CueScheduler: timing anomaly, remaining jumped %v -> %v over the countdown window of segment %d", previous, remaining, idx)
	default:
		return
	}
	acts.events = append(acts.events, Event{Type: EventTimingAnomaly, Cue: CueCountdown, Segment: idx, Remaining: remaining})
}

func (s *Scheduler) countdownActiveFor(idx int) bool {
	return s.countdown != nil && s.countdown.segment == idx
}

// dropStaleLocked releases sounds left over from an earlier transition
// that still hold a slot because the grace reset has not run yet.
func (s *Scheduler) dropStaleLocked(idx int, acts *actions) {
	if s.voice != nil && s.voice.segment != idx {
		s.dropLocked(s.voice, acts)
	}
	if s.countdown != nil && s.countdown.segment != idx {
		s.dropLocked(s.countdown, acts)
	}
}

func (s *Scheduler) attemptable(w window, idx int) bool {
	last, ok := s.attempted[w]
	return !ok || last != idx
}

// segmentChangedLocked lets sounds of the previous transition finish
// naturally, then clears them after the grace delay.
func (s *Scheduler) segmentChangedLocked(idx int) {
	previous := s.currentSegment
	s.currentSegment = idx
	// remaining time of the old segment says nothing about the new one
	s.lastRemaining = 0
	s.haveLastRemaining = false
	if previous == noSegment {
		return
	}
	s.logger.Printf("CueScheduler: segment %d -> %d", previous, idx)
	if s.resetTimer != nil {
		s.resetTimer.Stop()
	}
	generation := s.generation
	s.resetTimer = s.afterFunc(s.timing.ResetGrace, func() { s.graceReset(generation) })
}

func (s *Scheduler) graceReset(generation uint64) {
	s.mu.Lock()
	if s.closed || generation != s.generation {
		s.mu.Unlock()
		return
	}
	var acts actions
	current := s.currentSegment
	if s.voiceFiredFor != current {
		s.voiceFiredFor = noSegment
	}
	if s.countdownFiredFor != current {
		s.countdownFiredFor = noSegment
	}
	for w, idx := range s.attempted {
		if idx != current {
			delete(s.attempted, w)
		}
	}
	s.dropStaleLocked(current, &acts)
	s.resetTimer = nil
	s.mu.Unlock()

	s.apply(acts)
}

// beginLocked marks the cue fired and queues the asynchronous load+play.
// The slot is filled synchronously so a later tick cannot start a duplicate
// while the load is still in flight.
func (s *Scheduler) beginLocked(kind CueKind, idx int, resource string, w window, acts *actions) {
	snd := &sound{kind: kind, segment: idx, window: w}
	switch kind {
	case CueVoice:
		s.voice = snd
		s.voiceFiredFor = idx
	case CueCountdown:
		s.countdown = snd
		s.countdownFiredFor = idx
	}
	s.attempted[w] = idx
	s.logger.Printf("CueScheduler: starting %s for segment %d (%s, %v remaining)", kind, idx, w, s.lastRemaining)
	acts.start = append(acts.start, startRequest{
		snd:        snd,
		resource:   resource,
		generation: s.generation,
		ctx:        s.ctx,
	})
}

// dropLocked clears the slot holding snd, releasing its handle if loaded
func (s *Scheduler) dropLocked(snd *sound, acts *actions) {
	if s.voice == snd {
		s.voice = nil
	}
	if s.countdown == snd {
		s.countdown = nil
	}
	if snd.loaded {
		acts.release = append(acts.release, snd.handle)
	}
	acts.events = append(acts.events, Event{Type: EventCueCancelled, Cue: snd.kind, Segment: snd.segment, Remaining: s.lastRemaining})
}

func (s *Scheduler) slotHolds(snd *sound) bool {
	return s.voice == snd || s.countdown == snd
}

func (s *Scheduler) apply(acts actions) {
	for _, h := range acts.release {
		s.release(h)
	}
	for _, h := range acts.unload {
		if err := s.player.Unload(h); err != nil {
			s.logger.Printf("CueScheduler: unload failed: %v", err)
		}
	}
	for _, h := range acts.resume {
		if err := s.player.Resume(h); err != nil {
			s.logger.Printf("CueScheduler: resume failed: %v", err)
		}
	}
	for _, ev := range acts.events {
		s.events.Notify(ev)
	}
	for _, req := range acts.start {
		req := req
		s.runAsync(func() { s.load(req) })
	}
}

func (s *Scheduler) release(h Handle) {
	if err := s.player.Stop(h); err != nil {
		s.logger.Printf("CueScheduler: stop failed: %v", err)
	}
	if err := s.player.Unload(h); err != nil {
		s.logger.Printf("CueScheduler: unload failed: %v", err)
	}
}

// load runs off the tick path: load the resource, then start it if the
// request is still current.
func (s *Scheduler) load(req startRequest) {
	h, err := s.player.Load(req.ctx, req.resource)
	if err != nil {
		s.fail(req, fmt.Errorf("%s %q: %w", req.snd.kind, req.resource, err))
		return
	}

	s.mu.Lock()
	if req.generation != s.generation || !s.slotHolds(req.snd) {
		s.mu.Unlock()
		s.logger.Printf("CueScheduler: %s for segment %d no longer wanted, releasing", req.snd.kind, req.snd.segment)
		if err := s.player.Unload(h); err != nil {
			s.logger.Printf("CueScheduler: unload failed: %v", err)
		}
		return
	}
	snd := req.snd
	if err := s.player.Play(h, func() { s.finished(snd) }); err != nil {
		s.mu.Unlock()
		if uerr := s.player.Unload(h); uerr != nil {
			s.logger.Printf("CueScheduler: unload failed: %v", uerr)
		}
		s.fail(req, fmt.Errorf("%s %q: %w", snd.kind, req.resource, err))
		return
	}
	snd.handle = h
	snd.loaded = true
	if s.paused {
		if err := s.player.Pause(h); err != nil {
			s.logger.Printf("CueScheduler: pause failed: %v", err)
		}
	}
	ev := Event{Type: EventCueStarted, Cue: snd.kind, Segment: snd.segment, Remaining: s.lastRemaining}
	s.mu.Unlock()

	s.events.Notify(ev)
}

// fail clears the slot without leaving the cue marked fired, so a later
// window of the same transition may still play it.
func (s *Scheduler) fail(req startRequest, err error) {
	s.mu.Lock()
	if req.generation != s.generation || !s.slotHolds(req.snd) {
		s.mu.Unlock()
		return
	}
	snd := req.snd
	switch snd.kind {
	case CueVoice:
		s.voice = nil
		if s.voiceFiredFor == snd.segment {
			s.voiceFiredFor = noSegment
		}
	case CueCountdown:
		s.countdown = nil
		if s.countdownFiredFor == snd.segment {
			s.countdownFiredFor = noSegment
		}
	}
	ev := Event{Type: EventCueFailed, Cue: snd.kind, Segment: snd.segment, Remaining: s.lastRemaining, Err: err}
	s.mu.Unlock()

	s.logger.Printf("CueScheduler: %v", err)
	s.events.Notify(ev)
}

// finished handles the player's natural-completion callback
func (s *Scheduler) finished(snd *sound) {
	s.mu.Lock()
	if !s.slotHolds(snd) {
		s.mu.Unlock()
		return
	}
	var acts actions
	if s.voice == snd {
		s.voice = nil
	}
	if s.countdown == snd {
		s.countdown = nil
	}
	acts.unload = append(acts.unload, snd.handle)
	acts.events = append(acts.events, Event{Type: EventCueFinished, Cue: snd.kind, Segment: snd.segment, Remaining: s.lastRemaining})

	// a voice cue that ran close to the transition hands straight over to the countdown
	if snd.kind == CueVoice &&
		!s.closed &&
		snd.segment == s.currentSegment &&
		s.haveLastRemaining &&
		s.lastRemaining <= s.timing.ChainThreshold &&
		!s.countdownActiveFor(snd.segment) &&
		s.countdownFiredFor != snd.segment &&
		s.attemptable(windowChained, snd.segment) {
		s.dropStaleLocked(snd.segment, &acts)
		s.beginLocked(CueCountdown, snd.segment, s.timing.CountdownResource, windowChained, &acts)
	}
	s.mu.Unlock()

	s.apply(acts)
}

// Pause suspends any active cue in place
func (s *Scheduler) Pause() {
	s.mu.Lock()
	s.paused = true
	handles := s.loadedHandlesLocked()
	s.mu.Unlock()

	for _, h := range handles {
		if err := s.player.Pause(h); err != nil {
			s.logger.Printf("CueScheduler: pause failed: %v", err)
		}
	}
	if len(handles) > 0 {
		s.logger.Printf("CueScheduler: paused %d cue(s)", len(handles))
	}
}

// Resume continues cues suspended by Pause
func (s *Scheduler) Resume() {
	s.mu.Lock()
	s.paused = false
	handles := s.loadedHandlesLocked()
	s.mu.Unlock()

	for _, h := range handles {
		if err := s.player.Resume(h); err != nil {
			s.logger.Printf("CueScheduler: resume failed: %v", err)
		}
	}
}

func (s *Scheduler) loadedHandlesLocked() []Handle {
	var handles []Handle
	for _, snd := range []*sound{s.voice, s.countdown} {
		if snd != nil && snd.loaded {
			handles = append(handles, snd.handle)
		}
	}
	return handles
}

// Stop halts and releases all cues, aborts in-flight loads and clears every
// guard so the same transition can be announced again.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	acts := s.resetLocked()
	s.mu.Unlock()

	s.apply(acts)
}

// Close releases everything unconditionally; later ticks are ignored
func (s *Scheduler) Close() {
	s.mu.Lock()
	acts := s.resetLocked()
	s.closed = true
	s.cancel()
	s.mu.Unlock()

	s.apply(acts)
	s.logger.Printf("CueScheduler: closed")
}

func (s *Scheduler) resetLocked() actions {
	var acts actions
	if s.voice != nil {
		s.dropLocked(s.voice, &acts)
	}
	if s.countdown != nil {
		s.dropLocked(s.countdown, &acts)
	}
	if s.resetTimer != nil {
		s.resetTimer.Stop()
		s.resetTimer = nil
	}
	s.generation++
	s.cancel()
	if !s.closed {
		s.ctx, s.cancel = context.WithCancel(context.Background())
	}
	s.voiceFiredFor = noSegment
	s.countdownFiredFor = noSegment
	s.attempted = make(map[window]int)
	s.currentSegment = noSegment
	s.lastRemaining = 0
	s.haveLastRemaining = false
	s.paused = false
	return acts
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
