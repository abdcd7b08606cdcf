package coach

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/lowaak/treadmill-coach/internal/go_func_utils"
	"github.com/lowaak/treadmill-coach/internal/workout"
)

const defaultLogResizePoll = 100 * time.Millisecond

// BaseUIView renders the UIModel through a framework-specific UIViewImpl.
// It seeds every panel once, then re-renders on model events until Shutdown.
type BaseUIView struct {
	view       UIViewImpl
	model      *UIModel
	controller *UIController
	logger     *log.Logger
	resizePoll time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewBaseUIViewArg holds the arguments for creating a new BaseUIView
type NewBaseUIViewArg struct {
	UIViewImpl   UIViewImpl
	UIModel      *UIModel
	UIController *UIController
	Logger       *log.Logger
	// LogResizePoll is how often the log pane height is checked (default 100ms)
	LogResizePoll time.Duration
}

// NewBaseUIView creates a new BaseUIView with the given implementation
func NewBaseUIView(args NewBaseUIViewArg) *BaseUIView {
	if args.Logger == nil {
		panic("BaseUIView: logger cannot be nil")
	}
	if args.UIViewImpl == nil {
		panic("BaseUIView: UIViewImpl cannot be nil")
	}
	if args.UIModel == nil {
		panic("BaseUIView: UIModel cannot be nil")
	}
	if args.UIController == nil {
		panic("BaseUIView: UIController cannot be nil")
	}
	poll := args.LogResizePoll
	if poll <= 0 {
		poll = defaultLogResizePoll
	}

	ctx, cancel := context.WithCancel(context.Background())
	base := &BaseUIView{
		view:       args.UIViewImpl,
		model:      args.UIModel,
		controller: args.UIController,
		logger:     args.Logger,
		resizePoll: poll,
		ctx:        ctx,
		cancel:     cancel,
	}

	base.view.Initialize(base.controller)
	base.view.SetupKeyboardHandlers(base.controller)
	base.seed()

	base.wg.Add(1)
	go_func_utils.SafeGo(base.logger, base.watchLogHeight)

	base.subscribe()
	return base
}

// seed renders every panel from the model's current values
func (base *BaseUIView) seed() {
	base.view.SetProgramList(base.model.Programs())
	base.view.UpdateStats(base.model.GetStats())
	base.view.UpdateSessionState(base.model.GetSessionState())
	base.view.UpdateCueActivity(base.model.GetCueActivity())
	base.view.SetMode(base.model.GetUIState().Mode)
	base.renderLogTail()
}

// listen runs apply for every value of a model event until Shutdown.
// When redraw is set the view is redrawn after each apply.
func listen[T any](base *BaseUIView, register func(chan<- T) func(), redraw bool, apply func(T)) {
	ch := make(chan T, 1)
	unregister := register(ch)
	base.wg.Add(1)
	go_func_utils.SafeGo(base.logger, func() {
		defer base.wg.Done()
		defer unregister()
		for {
			select {
			case <-base.ctx.Done():
				return
			case value, ok := <-ch:
				if !ok {
					return
				}
				apply(value)
				if redraw {
					base.draw()
				}
			}
		}
	})
}

func (base *BaseUIView) subscribe() {
	listen(base, base.model.ListenToLog, true, func(string) { base.renderLogTail() })
	listen(base, base.model.ListenToUIState, true, func(state UIState) {
		base.view.SetMode(state.Mode)
	})

	// Session and cue events are lossy; always render the model's latest copy
	listen(base, base.model.ListenToSessionState, true, func(SessionState) {
		base.view.UpdateSessionState(base.model.GetSessionState())
	})
	listen(base, base.model.ListenToCueActivity, true, func(CueActivity) {
		base.view.UpdateCueActivity(base.model.GetCueActivity())
	})
	listen(base, base.model.ListenToStats, true, func(stats workout.CompletionStats) {
		base.view.UpdateStats(stats)
	})

	listen(base, base.model.ListenToCloseApplication, false, func(struct{}) {
		base.logger.Println("BaseUIView: Close requested")
		base.view.Stop()
	})
}

func (base *BaseUIView) draw() {
	if err := base.view.Draw(); err != nil {
		base.logger.Printf("BaseUIView: Error drawing: %v", err)
	}
}

// renderLogTail fills the log pane with as many recent lines as fit
func (base *BaseUIView) renderLogTail() {
	height := base.view.GetLogViewHeight()
	if height <= 0 {
		return
	}
	base.view.ClearLogView()
	for _, line := range base.model.GetLogTail(height) {
		if err := base.view.WriteLogLine(line); err != nil {
			base.logger.Printf("BaseUIView: Error writing to log view: %v", err)
			return
		}
	}
}

// watchLogHeight re-renders the log pane when the terminal is resized
func (base *BaseUIView) watchLogHeight() {
	defer base.wg.Done()
	ticker := time.NewTicker(base.resizePoll)
	defer ticker.Stop()

	lastHeight := base.view.GetLogViewHeight()
	for {
		select {
		case <-base.ctx.Done():
			return
		case <-ticker.C:
			if height := base.view.GetLogViewHeight(); height > 0 && height != lastHeight {
				lastHeight = height
				base.renderLogTail()
				base.draw()
			}
		}
	}
}

// Shutdown stops all goroutines and waits for them to finish
func (base *BaseUIView) Shutdown() {
	base.logger.Println("BaseUIView: Shutting down")
	base.cancel()
	base.wg.Wait()
	base.logger.Println("BaseUIView: Shutdown complete")
}

// Run starts the UI and blocks until it exits
func (base *BaseUIView) Run() error {
	return base.view.Run()
}
