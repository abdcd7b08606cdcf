package cues

import (
	"errors"
	"io"
	"log"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lowaak/treadmill-coach/internal/workout"
)

const voiceRes = "cues/next-run.mp3"

func ms(n int) time.Duration { return time.Duration(n) * time.Millisecond }

type harness struct {
	t        *testing.T
	s        *Scheduler
	player   *fakePlayer
	timers   *manualTimers
	timeline workout.Timeline

	mu     sync.Mutex
	events []Event
}

func newHarness(t *testing.T, timeline workout.Timeline, opts ...Option) *harness {
	return newHarnessWithTiming(t, timeline, DefaultTiming(), opts...)
}

func newHarnessWithTiming(t *testing.T, timeline workout.Timeline, timing Timing, opts ...Option) *harness {
	h := &harness{
		t:        t,
		player:   newFakePlayer(),
		timers:   &manualTimers{},
		timeline: timeline,
	}
	all := append([]Option{WithAsyncRunner(syncRunner), WithAfterFunc(h.timers.afterFunc)}, opts...)
	h.s = NewScheduler(h.player, timing, log.New(io.Discard, "", 0), all...)
	h.s.ListenToEvents(func(ev Event) {
		h.mu.Lock()
		h.events = append(h.events, ev)
		h.mu.Unlock()
	})
	h.s.SetTimeline(timeline)
	return h
}

// tick reports the clock at the given time remaining in segment seg
func (h *harness) tick(seg int, remaining time.Duration) {
	h.s.Tick(Tick{
		Running:          true,
		AudioCuesEnabled: true,
		SegmentIndex:     seg,
		Elapsed:          h.timeline[seg].Duration - remaining,
	})
}

// sweep ticks from one remaining time down to another
func (h *harness) sweep(seg int, from, to, step time.Duration) {
	for r := from; r >= to; r -= step {
		h.tick(seg, r)
	}
}

func (h *harness) eventsOf(typ EventType, cue CueKind) []Event {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []Event
	for _, ev := range h.events {
		if ev.Type == typ && ev.Cue == cue {
			out = append(out, ev)
		}
	}
	return out
}

func plainTransition() workout.Timeline {
	return workout.Timeline{
		{Name: "Warm up", Pace: workout.PaceWalk, Duration: 120 * time.Second},
		{Name: "Run", Pace: workout.PaceRun, Duration: 60 * time.Second},
	}
}

func voicedTransition() workout.Timeline {
	return workout.Timeline{
		{Name: "Warm up", Pace: workout.PaceWalk, Duration: 120 * time.Second},
		{Name: "Run", Pace: workout.PaceRun, Duration: 60 * time.Second,
			VoiceCue: &workout.VoiceCue{Resource: voiceRes, SpokenDuration: 4 * time.Second}},
	}
}

func TestNewScheduler_Panics(t *testing.T) {
	logger := log.New(io.Discard, "", 0)
	assert.Panics(t, func() { NewScheduler(nil, DefaultTiming(), logger) })
	assert.Panics(t, func() { NewScheduler(newFakePlayer(), DefaultTiming(), nil) })

	bad := DefaultTiming()
	bad.FailsafeLatest = bad.FailsafeEarliest
	assert.Panics(t, func() { NewScheduler(newFakePlayer(), bad, logger) })
}

func TestTiming_Derived(t *testing.T) {
	timing := DefaultTiming()
	require.NoError(t, timing.Validate())
	assert.Equal(t, ms(3500), timing.CountdownStart())
	assert.Equal(t, ms(7500), timing.VoiceCueStart(4*time.Second))
	assert.Equal(t, ms(3500), timing.VoiceCueStart(0))
}

func TestTiming_Validate(t *testing.T) {
	cases := map[string]func(*Timing){
		"zero countdown":     func(t *Timing) { t.CountdownDuration = 0 },
		"negative buffer":    func(t *Timing) { t.VoiceBuffer = -time.Millisecond },
		"empty voice window": func(t *Timing) { t.VoiceWindow = 0 },
		"inverted failsafe":  func(t *Timing) { t.FailsafeEarliest = 2 * time.Second },
		"negative debounce":  func(t *Timing) { t.Debounce = -1 },
		"no resource":        func(t *Timing) { t.CountdownResource = "" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			timing := DefaultTiming()
			mutate(&timing)
			assert.Error(t, timing.Validate())
		})
	}
}

func TestScheduler_CountdownWithoutVoiceCue(t *testing.T) {
	h := newHarness(t, plainTransition())

	h.sweep(0, 10*time.Second, 0, ms(100))

	assert.Equal(t, 1, h.player.count("load", BuiltinCountdownResource))
	assert.Equal(t, 1, h.player.count("play", BuiltinCountdownResource))
	assert.Equal(t, 1, h.player.count("load", ""), "no voice cue should be loaded")

	started := h.eventsOf(EventCueStarted, CueCountdown)
	require.Len(t, started, 1)
	assert.Equal(t, ms(3500), started[0].Remaining)
	assert.Equal(t, 0, started[0].Segment)
	assert.Equal(t, StatePlayingCountdown, h.s.State())
	assert.Equal(t, 0, h.s.Snapshot().CountdownFiredFor)
}

func TestScheduler_VoiceCueStartsAtVoiceWindow(t *testing.T) {
	h := newHarness(t, voicedTransition())

	h.sweep(0, 10*time.Second, ms(6000), ms(250))

	started := h.eventsOf(EventCueStarted, CueVoice)
	require.Len(t, started, 1)
	assert.Equal(t, ms(7500), started[0].Remaining)
	assert.Equal(t, 1, h.player.count("load", voiceRes))
	assert.Equal(t, 0, h.player.count("load", BuiltinCountdownResource))
	assert.Equal(t, StatePlayingVoiceCue, h.s.State())
	assert.Equal(t, 0, h.s.Snapshot().VoiceFiredFor)

	// the countdown still starts on schedule while the voice cue is speaking
	h.sweep(0, ms(5750), ms(3000), ms(250))
	assert.Equal(t, 1, h.player.count("load", BuiltinCountdownResource))
	assert.Equal(t, StatePlayingCountdown, h.s.State())
	assert.Empty(t, h.player.ops(h.player.lastHandle(voiceRes))[1:], "voice cue is not interrupted")
}

func TestScheduler_VoiceCueCompletesBeforeCountdownSlot(t *testing.T) {
	timing := DefaultTiming()
	spoken := 4 * time.Second

	for _, step := range []int{90, 100, 150, 250, 333, 400, 700, 900} {
		for _, phase := range []int{0, 37, 71} {
			h := newHarness(t, voicedTransition())
			h.sweep(0, ms(12000+phase), 0, ms(step))

			started := h.eventsOf(EventCueStarted, CueVoice)
			require.Len(t, started, 1, "step %dms phase %dms", step, phase)
			at := started[0].Remaining
			assert.LessOrEqual(t, at, timing.VoiceCueStart(spoken))
			assert.GreaterOrEqual(t, at, timing.VoiceCueStart(spoken)-timing.VoiceWindow)
			assert.LessOrEqual(t, at-spoken, timing.CountdownDuration+timing.VoiceBuffer,
				"voice cue would end before the countdown slot")

			assert.Len(t, h.eventsOf(EventCueStarted, CueCountdown), 1, "step %dms phase %dms", step, phase)
		}
	}
}

func TestScheduler_ChainsCountdownWhenVoiceFinishesLate(t *testing.T) {
	h := newHarness(t, voicedTransition())

	h.sweep(0, 10*time.Second, ms(3800), ms(100))
	require.Equal(t, StatePlayingVoiceCue, h.s.State())
	require.Equal(t, 0, h.player.count("load", BuiltinCountdownResource))

	require.True(t, h.player.finish(voiceRes))

	assert.Equal(t, 1, h.player.count("load", BuiltinCountdownResource))
	assert.Equal(t, StatePlayingCountdown, h.s.State())
	assert.Len(t, h.eventsOf(EventCueFinished, CueVoice), 1)
	started := h.eventsOf(EventCueStarted, CueCountdown)
	require.Len(t, started, 1)
	assert.Equal(t, ms(3800), started[0].Remaining)
	assert.Equal(t, []string{"play", "unload"}, h.player.ops(h.player.lastHandle(voiceRes)))

	// the countdown window must not start it a second time
	h.sweep(0, ms(3700), 0, ms(100))
	assert.Equal(t, 1, h.player.count("load", BuiltinCountdownResource))
}

func TestScheduler_NoChainWhenVoiceFinishesEarly(t *testing.T) {
	h := newHarness(t, voicedTransition())

	h.sweep(0, 10*time.Second, ms(5000), ms(100))
	require.True(t, h.player.finish(voiceRes))

	assert.Equal(t, StateIdle, h.s.State())
	assert.Equal(t, 0, h.player.count("load", BuiltinCountdownResource))

	h.sweep(0, ms(4900), ms(3000), ms(100))
	started := h.eventsOf(EventCueStarted, CueCountdown)
	require.Len(t, started, 1)
	assert.Equal(t, ms(3500), started[0].Remaining)
}

func TestScheduler_StopMidCountdown(t *testing.T) {
	h := newHarness(t, plainTransition())

	h.sweep(0, 10*time.Second, ms(3200), ms(100))
	handle := h.player.lastHandle(BuiltinCountdownResource)
	require.NotZero(t, handle)

	h.s.Stop()

	assert.Equal(t, []string{"play", "stop", "unload"}, h.player.ops(handle))
	snap := h.s.Snapshot()
	assert.Equal(t, StateIdle, snap.State)
	assert.Equal(t, -1, snap.VoiceFiredFor)
	assert.Equal(t, -1, snap.CountdownFiredFor)
	assert.Equal(t, -1, snap.CurrentSegment)
	assert.Len(t, h.eventsOf(EventCueCancelled, CueCountdown), 1)

	// restarting the same segment announces the transition again
	h.sweep(0, 10*time.Second, ms(3000), ms(100))
	assert.Equal(t, 2, h.player.count("load", BuiltinCountdownResource))
	assert.Equal(t, StatePlayingCountdown, h.s.State())
}

func TestScheduler_CountdownExactlyOnceUnderJitter(t *testing.T) {
	h := newHarness(t, plainTransition())

	h.tick(0, 10*time.Second)
	for _, r := range []int{3500, 3300, 3450, 3100, 3400, 3000} {
		h.tick(0, ms(r))
	}
	require.True(t, h.player.finish(BuiltinCountdownResource))
	for _, r := range []int{3200, 2500, 1500, 1000, 500} {
		h.tick(0, ms(r))
	}

	assert.Equal(t, 1, h.player.count("load", BuiltinCountdownResource))
	assert.Len(t, h.eventsOf(EventCueFinished, CueCountdown), 1)
	assert.Equal(t, StateIdle, h.s.State())
}

func TestScheduler_FailsafeAfterSkippedWindow(t *testing.T) {
	h := newHarness(t, plainTransition())

	h.tick(0, 10*time.Second)
	h.tick(0, ms(1200))

	anomalies := h.eventsOf(EventTimingAnomaly, CueCountdown)
	require.Len(t, anomalies, 1)
	assert.Equal(t, ms(1200), anomalies[0].Remaining)

	started := h.eventsOf(EventCueStarted, CueCountdown)
	require.Len(t, started, 1)
	assert.Equal(t, ms(1200), started[0].Remaining)

	h.tick(0, ms(1000))
	h.tick(0, ms(500))
	assert.Equal(t, 1, h.player.count("load", BuiltinCountdownResource))
}

func TestScheduler_FailsafeStopsVoiceCue(t *testing.T) {
	h := newHarness(t, voicedTransition())

	h.tick(0, ms(8000))
	h.tick(0, ms(7500))
	voice := h.player.lastHandle(voiceRes)
	require.NotZero(t, voice)

	h.tick(0, ms(1000))

	assert.Equal(t, []string{"play", "stop", "unload"}, h.player.ops(voice))
	assert.Len(t, h.eventsOf(EventCueCancelled, CueVoice), 1)
	assert.Len(t, h.eventsOf(EventTimingAnomaly, CueCountdown), 1)
	assert.Equal(t, 1, h.player.count("play", BuiltinCountdownResource))
	assert.Equal(t, StatePlayingCountdown, h.s.State())
}

func TestScheduler_NoFailsafeBelowWindow(t *testing.T) {
	h := newHarness(t, plainTransition())

	h.tick(0, 10*time.Second)
	h.tick(0, ms(400))

	assert.Equal(t, 0, h.player.count("load", ""))
}

func TestScheduler_PendingLoadBlocksDuplicate(t *testing.T) {
	timing := DefaultTiming()
	timing.Debounce = 0
	runner := &deferredRunner{}
	h := newHarnessWithTiming(t, plainTransition(), timing, WithAsyncRunner(runner.run))

	h.tick(0, ms(3500))
	h.tick(0, ms(3490))

	assert.Equal(t, 1, runner.pending())
	assert.Equal(t, 0, h.player.count("load", ""))
	assert.Equal(t, StatePlayingCountdown, h.s.State())

	runner.drain()
	assert.Equal(t, 1, h.player.count("load", BuiltinCountdownResource))
	assert.Equal(t, 1, h.player.count("play", BuiltinCountdownResource))
}

func TestScheduler_DebounceSkipsCloseTicks(t *testing.T) {
	h := newHarness(t, plainTransition())

	h.tick(0, ms(3600))
	h.tick(0, ms(3550))
	assert.Equal(t, ms(3600), h.s.Snapshot().LastRemaining)
	assert.Equal(t, 0, h.player.count("load", ""))

	h.tick(0, ms(3500))
	assert.Equal(t, ms(3500), h.s.Snapshot().LastRemaining)
	assert.Equal(t, 1, h.player.count("load", BuiltinCountdownResource))
}

func TestScheduler_StopDiscardsPendingLoad(t *testing.T) {
	runner := &deferredRunner{}
	h := newHarness(t, plainTransition(), WithAsyncRunner(runner.run))

	h.tick(0, ms(3500))
	h.s.Stop()
	runner.drain()

	assert.Equal(t, 0, h.player.count("play", ""))
	assert.Empty(t, h.eventsOf(EventCueFailed, CueCountdown))
	assert.Equal(t, StateIdle, h.s.State())
}

func TestScheduler_LoadFailureLeavesFailsafe(t *testing.T) {
	h := newHarness(t, plainTransition())
	h.player.failLoad(BuiltinCountdownResource)

	h.sweep(0, ms(4000), ms(2000), ms(250))

	failed := h.eventsOf(EventCueFailed, CueCountdown)
	require.Len(t, failed, 1)
	assert.True(t, errors.Is(failed[0].Err, ErrResourceLoad))
	assert.Equal(t, 1, h.player.count("load", BuiltinCountdownResource), "a window is attempted once")
	assert.Equal(t, -1, h.s.Snapshot().CountdownFiredFor)
	assert.Equal(t, StateIdle, h.s.State())

	h.player.heal()
	h.sweep(0, ms(1500), ms(500), ms(250))

	assert.Equal(t, 2, h.player.count("load", BuiltinCountdownResource))
	assert.Equal(t, 1, h.player.count("play", BuiltinCountdownResource))
	assert.Equal(t, 0, h.s.Snapshot().CountdownFiredFor)
}

func TestScheduler_VoiceWindowAttemptedOnce(t *testing.T) {
	h := newHarness(t, voicedTransition())
	h.player.failLoad(voiceRes)

	h.sweep(0, 10*time.Second, ms(6000), ms(250))

	assert.Equal(t, 1, h.player.count("load", voiceRes))
	assert.Len(t, h.eventsOf(EventCueFailed, CueVoice), 1)
	assert.Equal(t, -1, h.s.Snapshot().VoiceFiredFor)

	h.sweep(0, ms(5750), ms(3000), ms(250))
	assert.Len(t, h.eventsOf(EventCueStarted, CueCountdown), 1)
}

func TestScheduler_PlayFailureUnloads(t *testing.T) {
	h := newHarness(t, plainTransition())
	h.player.failPlay(BuiltinCountdownResource)

	h.tick(0, ms(3500))

	handle := h.player.lastHandle(BuiltinCountdownResource)
	assert.Equal(t, []string{"play", "unload"}, h.player.ops(handle))
	failed := h.eventsOf(EventCueFailed, CueCountdown)
	require.Len(t, failed, 1)
	assert.True(t, errors.Is(failed[0].Err, ErrPlayback))
	assert.Equal(t, StateIdle, h.s.State())
}

func TestScheduler_GraceResetAfterSegmentChange(t *testing.T) {
	timeline := workout.Timeline{
		{Name: "Warm up", Pace: workout.PaceWalk, Duration: 20 * time.Second},
		{Name: "Run", Pace: workout.PaceRun, Duration: 60 * time.Second},
		{Name: "Cool down", Pace: workout.PaceWalk, Duration: 30 * time.Second},
	}
	h := newHarness(t, timeline)

	h.sweep(0, ms(4000), 0, ms(250))
	handle := h.player.lastHandle(BuiltinCountdownResource)
	require.Equal(t, []string{"play"}, h.player.ops(handle))

	h.tick(1, 60*time.Second)
	require.Equal(t, 1, h.timers.armed())
	assert.Equal(t, ms(2000), h.timers.timers[0].delay)
	assert.Equal(t, []string{"play"}, h.player.ops(handle), "old cue finishes naturally until the grace delay")
	assert.Equal(t, 1, h.s.Snapshot().CurrentSegment)

	require.Equal(t, 1, h.timers.fire())

	assert.Equal(t, []string{"play", "stop", "unload"}, h.player.ops(handle))
	snap := h.s.Snapshot()
	assert.Equal(t, StateIdle, snap.State)
	assert.Equal(t, -1, snap.CountdownFiredFor)
}

func TestScheduler_GraceResetKeepsNewTransition(t *testing.T) {
	timeline := workout.Timeline{
		{Name: "Warm up", Pace: workout.PaceWalk, Duration: 20 * time.Second},
		{Name: "Sprint", Pace: workout.PaceSprint, Duration: 5 * time.Second},
		{Name: "Cool down", Pace: workout.PaceWalk, Duration: 30 * time.Second},
	}
	h := newHarness(t, timeline)

	h.sweep(0, ms(4000), 0, ms(250))
	first := h.player.lastHandle(BuiltinCountdownResource)

	h.tick(1, ms(5000))
	h.tick(1, ms(3500))
	second := h.player.lastHandle(BuiltinCountdownResource)
	require.NotEqual(t, first, second)
	assert.Equal(t, []string{"play", "stop", "unload"}, h.player.ops(first))

	h.timers.fire()

	assert.Equal(t, []string{"play"}, h.player.ops(second))
	snap := h.s.Snapshot()
	assert.Equal(t, 1, snap.CountdownFiredFor)
	assert.Equal(t, StatePlayingCountdown, snap.State)
}

func TestScheduler_InactiveTicks(t *testing.T) {
	h := newHarness(t, plainTransition())

	for r := 10 * time.Second; r >= 0; r -= ms(100) {
		h.s.Tick(Tick{Running: true, AudioCuesEnabled: false, SegmentIndex: 0, Elapsed: 120*time.Second - r})
		h.s.Tick(Tick{Running: false, AudioCuesEnabled: true, SegmentIndex: 0, Elapsed: 120*time.Second - r})
	}
	h.s.Tick(Tick{Running: true, AudioCuesEnabled: true, SegmentIndex: 7, Elapsed: 0})
	h.s.Tick(Tick{Running: true, AudioCuesEnabled: true, SegmentIndex: -1, Elapsed: 0})

	// the last segment has no transition to announce
	h.sweep(1, 10*time.Second, 0, ms(100))

	assert.Equal(t, 0, h.player.count("load", ""))
	assert.Equal(t, StateIdle, h.s.State())
}

func TestScheduler_PauseResume(t *testing.T) {
	h := newHarness(t, plainTransition())

	h.tick(0, ms(3500))
	handle := h.player.lastHandle(BuiltinCountdownResource)

	h.s.Pause()
	assert.True(t, h.s.Snapshot().Paused)
	h.s.Resume()
	assert.False(t, h.s.Snapshot().Paused)

	assert.Equal(t, []string{"play", "pause", "resume"}, h.player.ops(handle))
	assert.Equal(t, StatePlayingCountdown, h.s.State())
}

func TestScheduler_LoadCompletingWhilePaused(t *testing.T) {
	runner := &deferredRunner{}
	h := newHarness(t, plainTransition(), WithAsyncRunner(runner.run))

	h.tick(0, ms(3500))
	h.s.Pause()
	runner.drain()

	handle := h.player.lastHandle(BuiltinCountdownResource)
	assert.Equal(t, []string{"play", "pause"}, h.player.ops(handle))
}

func TestScheduler_Close(t *testing.T) {
	h := newHarness(t, plainTransition())

	h.tick(0, ms(3500))
	handle := h.player.lastHandle(BuiltinCountdownResource)

	h.s.Close()
	assert.Equal(t, []string{"play", "stop", "unload"}, h.player.ops(handle))

	h.s.SetTimeline(plainTransition())
	h.sweep(0, 10*time.Second, 0, ms(100))
	assert.Equal(t, 1, h.player.count("load", ""))
}

func TestScheduler_SetTimelineReleasesActiveCue(t *testing.T) {
	h := newHarness(t, plainTransition())

	h.tick(0, ms(3500))
	handle := h.player.lastHandle(BuiltinCountdownResource)

	h.s.SetTimeline(voicedTransition())

	assert.Equal(t, []string{"play", "stop", "unload"}, h.player.ops(handle))
	assert.Equal(t, StateIdle, h.s.State())
}

func TestScheduler_FirstTickOfShortSegmentStartsCountdown(t *testing.T) {
	timeline := workout.Timeline{
		{Name: "Warm up", Pace: workout.PaceWalk, Duration: 120 * time.Second},
		{Name: "Surge", Pace: workout.PaceSprint, Duration: ms(3450)},
		{Name: "Run", Pace: workout.PaceRun, Duration: 60 * time.Second},
	}
	h := newHarness(t, timeline)

	h.tick(0, ms(3500))
	first := h.player.lastHandle(BuiltinCountdownResource)

	// remaining 3.45s is within the debounce distance of the old segment's 3.5s
	h.tick(1, ms(3450))

	snap := h.s.Snapshot()
	assert.Equal(t, 1, snap.CountdownFiredFor)
	assert.Equal(t, ms(3450), snap.LastRemaining)
	assert.Equal(t, 2, h.player.count("load", BuiltinCountdownResource))
	assert.Equal(t, []string{"play", "stop", "unload"}, h.player.ops(first))

	started := h.eventsOf(EventCueStarted, CueCountdown)
	require.Len(t, started, 2)
	assert.Equal(t, 1, started[1].Segment)
}

func TestScheduler_SegmentChangeIsNotATimingAnomaly(t *testing.T) {
	timeline := workout.Timeline{
		{Name: "Warm up", Pace: workout.PaceWalk, Duration: 120 * time.Second},
		{Name: "Surge", Pace: workout.PaceSprint, Duration: 2 * time.Second},
		{Name: "Run", Pace: workout.PaceRun, Duration: 60 * time.Second},
	}
	h := newHarness(t, timeline)

	h.tick(0, 10*time.Second)
	h.tick(1, 2*time.Second)

	assert.Empty(t, h.eventsOf(EventTimingAnomaly, CueCountdown))
}

func TestScheduler_RunningTickEndsPause(t *testing.T) {
	h := newHarness(t, plainTransition())

	h.tick(0, ms(3500))
	handle := h.player.lastHandle(BuiltinCountdownResource)
	h.s.Pause()

	h.tick(0, ms(3000))

	assert.False(t, h.s.Snapshot().Paused)
	assert.Equal(t, []string{"play", "pause", "resume"}, h.player.ops(handle))
}

func TestScheduler_CueStartedAfterStalePauseIsAudible(t *testing.T) {
	h := newHarness(t, plainTransition())

	h.s.Pause()
	h.tick(0, ms(3500))

	handle := h.player.lastHandle(BuiltinCountdownResource)
	assert.Equal(t, []string{"play"}, h.player.ops(handle))
	assert.False(t, h.s.Snapshot().Paused)
}
