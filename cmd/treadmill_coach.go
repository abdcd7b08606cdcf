package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gopxl/beep/v2"
	"github.com/rivo/tview"
	"github.com/spf13/pflag"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/lowaak/treadmill-coach/internal/audio"
	"github.com/lowaak/treadmill-coach/internal/coach"
	"github.com/lowaak/treadmill-coach/internal/config"
	"github.com/lowaak/treadmill-coach/internal/cues"
	"github.com/lowaak/treadmill-coach/internal/workout"
)

const speakerBuffer = 100 * time.Millisecond

// lineWriter forwards each log line, newline included, to the UI log pane.
// Lines are dropped when the pane falls behind so logging never blocks.
type lineWriter struct {
	ch chan<- string
}

func (w lineWriter) Write(p []byte) (int, error) {
	for _, line := range strings.Split(strings.TrimRight(string(p), "\n"), "\n") {
		select {
		case w.ch <- line + "\n":
		default:
		}
	}
	return len(p), nil
}

func main() {
	cfg, err := config.Load(os.Args[0], os.Args[1:])
	if errors.Is(err, pflag.ErrHelp) {
		return
	}
	must("load configuration", err)

	rotating := &lumberjack.Logger{
		Filename:   cfg.LogFile,
		MaxSize:    cfg.LogMaxSizeMB,
		MaxBackups: cfg.LogMaxBackups,
		MaxAge:     cfg.LogMaxAgeDays,
	}
	defer rotating.Close()

	uiLogChan := make(chan string, 256)
	var out io.Writer
	if cfg.Headless {
		out = io.MultiWriter(rotating, os.Stderr)
	} else {
		out = io.MultiWriter(rotating, lineWriter{ch: uiLogChan})
	}
	logger := log.New(out, "", log.Ltime|log.Lmicroseconds)

	programs := loadPrograms(cfg, logger)

	timing, err := cfg.Timing()
	must("build cue timing", err)

	sink := openSink(cfg, logger)
	defer sink.Close()

	player := audio.NewBeepPlayer(sink, timing.CountdownDuration, logger)
	scheduler := cues.NewScheduler(player, timing, logger)
	stats := workout.NewStatsStore(cfg.StatsFile, logger)
	session := coach.NewSession(scheduler, stats, cfg.TickInterval, logger)
	session.SetAudioCuesEnabled(cfg.AudioEnabled)

	if cfg.Headless {
		err := runHeadless(session, programs, cfg.Program, logger)
		session.Shutdown()
		must("run workout", err)
		return
	}

	app := tview.NewApplication()
	view := coach.NewCursesUIView(logger, app)
	model := coach.NewUIModel(session, scheduler, stats, programs, logger, uiLogChan)
	controller := coach.NewUIController(model, session, logger)
	base := coach.NewBaseUIView(coach.NewBaseUIViewArg{
		UIViewImpl:   view,
		UIModel:      model,
		UIController: controller,
		Logger:       logger,
	})

	if cfg.Program != "" {
		if idx := programIndex(programs, cfg.Program); idx >= 0 {
			controller.OnProgramSelected(idx)
		} else {
			logger.Printf("Unknown program %q", cfg.Program)
		}
	}

	runErr := base.Run()

	base.Shutdown()
	controller.Shutdown()
	model.Shutdown()
	if runErr != nil {
		panic(runErr)
	}
}

func loadPrograms(cfg *config.Config, logger *log.Logger) []workout.Program {
	programs := append([]workout.Program(nil), workout.CuratedPrograms...)
	if cfg.ProgramsDir == "" {
		return programs
	}
	loaded, errs := workout.LoadProgramDir(cfg.ProgramsDir)
	for _, err := range errs {
		logger.Printf("Skipping program file: %v", err)
	}
	logger.Printf("Loaded %d programs from %s", len(loaded), cfg.ProgramsDir)
	return append(programs, loaded...)
}

func programIndex(programs []workout.Program, name string) int {
	for i := range programs {
		if programs[i].Name == name {
			return i
		}
	}
	return -1
}

// openSink prefers the speaker and falls back to a silent sink so the
// workout clock keeps running on machines without an audio device.
func openSink(cfg *config.Config, logger *log.Logger) audio.Sink {
	sr := beep.SampleRate(cfg.SampleRate)
	sink, err := audio.NewSpeakerSink(sr, speakerBuffer)
	if err == nil {
		return sink
	}
	logger.Printf("Speaker unavailable, audio cues will be silent: %v", err)
	return audio.NewDiscardSink(sr, logger)
}

// runHeadless plays one program to completion or until interrupted
func runHeadless(session *coach.Session, programs []workout.Program, name string, logger *log.Logger) error {
	program, ok := workout.FindProgram(programs, name)
	if !ok {
		return fmt.Errorf("unknown program %q", name)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	stateChan := make(chan coach.SessionState, 1)
	unregister := session.ListenToState(stateChan)
	defer unregister()

	session.SetProgram(program)
	session.Start()
	logger.Printf("Running %s (%s)", program.Name, program.TotalDuration())

	lastIdx := -1
	for {
		select {
		case <-ctx.Done():
			logger.Printf("Interrupted, stopping workout")
			session.Stop()
			return nil
		case <-stateChan:
		}
		state := session.State()
		if state.Status == coach.SessionStatusCompleted {
			logger.Printf("Workout complete: %s", program.Name)
			return nil
		}
		if seg, ok := state.CurrentSegment(); ok && state.SegmentIdx != lastIdx {
			lastIdx = state.SegmentIdx
			logger.Printf("Segment %d/%d: %s", state.SegmentIdx+1, len(program.Segments), seg.Label())
		}
	}
}

func must(action string, err error) {
	if err != nil {
		panic("failed to " + action + ": " + err.Error())
	}
}
