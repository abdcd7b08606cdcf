package cues

import (
	"context"
	"fmt"
	"sync"
	"time"
)

type playerCall struct {
	Op       string
	Handle   Handle
	Resource string
}

// fakePlayer records every call and lets tests finish sounds by hand
type fakePlayer struct {
	mu         sync.Mutex
	next       Handle
	calls      []playerCall
	resources  map[Handle]string
	onFinished map[Handle]func()
	loadErr    map[string]error
	playErr    map[string]error
}

func newFakePlayer() *fakePlayer {
	return &fakePlayer{
		resources:  make(map[Handle]string),
		onFinished: make(map[Handle]func()),
		loadErr:    make(map[string]error),
		playErr:    make(map[string]error),
	}
}

func (p *fakePlayer) failLoad(resource string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.loadErr[resource] = fmt.Errorf("%w: %s missing", ErrResourceLoad, resource)
}

func (p *fakePlayer) failPlay(resource string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.playErr[resource] = fmt.Errorf("%w: device busy", ErrPlayback)
}

func (p *fakePlayer) heal() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.loadErr = make(map[string]error)
	p.playErr = make(map[string]error)
}

func (p *fakePlayer) Load(ctx context.Context, resource string) (Handle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, playerCall{Op: "load", Resource: resource})
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if err := p.loadErr[resource]; err != nil {
		return 0, err
	}
	p.next++
	p.resources[p.next] = resource
	return p.next, nil
}

func (p *fakePlayer) Play(h Handle, onFinished func()) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	resource := p.resources[h]
	p.calls = append(p.calls, playerCall{Op: "play", Handle: h, Resource: resource})
	if err := p.playErr[resource]; err != nil {
		return err
	}
	p.onFinished[h] = onFinished
	return nil
}

func (p *fakePlayer) record(op string, h Handle) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, playerCall{Op: op, Handle: h, Resource: p.resources[h]})
	if op == "stop" || op == "unload" {
		delete(p.onFinished, h)
	}
	return nil
}

func (p *fakePlayer) Pause(h Handle) error  { return p.record("pause", h) }
func (p *fakePlayer) Resume(h Handle) error { return p.record("resume", h) }
func (p *fakePlayer) Stop(h Handle) error   { return p.record("stop", h) }
func (p *fakePlayer) Unload(h Handle) error { return p.record("unload", h) }

// finish simulates natural completion of the most recent play of resource
func (p *fakePlayer) finish(resource string) bool {
	p.mu.Lock()
	var cb func()
	var handle Handle
	for h, fn := range p.onFinished {
		if p.resources[h] == resource && h > handle {
			handle, cb = h, fn
		}
	}
	delete(p.onFinished, handle)
	p.mu.Unlock()

	if cb == nil {
		return false
	}
	cb()
	return true
}

func (p *fakePlayer) count(op, resource string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, c := range p.calls {
		if c.Op == op && (resource == "" || c.Resource == resource) {
			n++
		}
	}
	return n
}

func (p *fakePlayer) ops(h Handle) []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	var ops []string
	for _, c := range p.calls {
		if c.Handle == h && c.Op != "load" {
			ops = append(ops, c.Op)
		}
	}
	return ops
}

func (p *fakePlayer) lastHandle(resource string) Handle {
	p.mu.Lock()
	defer p.mu.Unlock()
	var last Handle
	for h, r := range p.resources {
		if r == resource && h > last {
			last = h
		}
	}
	return last
}

// deferredRunner queues async work until the test drains it
type deferredRunner struct {
	mu    sync.Mutex
	queue []func()
}

func (r *deferredRunner) run(fn func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.queue = append(r.queue, fn)
}

func (r *deferredRunner) pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.queue)
}

func (r *deferredRunner) drain() {
	for {
		r.mu.Lock()
		if len(r.queue) == 0 {
			r.mu.Unlock()
			return
		}
		fn := r.queue[0]
		r.queue = r.queue[1:]
		r.mu.Unlock()
		fn()
	}
}

// manualTimers captures delayed callbacks so tests can fire them on demand
type manualTimers struct {
	mu     sync.Mutex
	timers []*manualTimer
}

type manualTimer struct {
	delay   time.Duration
	fn      func()
	stopped bool
	fired   bool
}

func (t *manualTimer) Stop() bool {
	wasActive := !t.stopped && !t.fired
	t.stopped = true
	return wasActive
}

func (m *manualTimers) afterFunc(d time.Duration, fn func()) Stopper {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := &manualTimer{delay: d, fn: fn}
	m.timers = append(m.timers, t)
	return t
}

// fire runs every timer that is still armed
func (m *manualTimers) fire() int {
	m.mu.Lock()
	var armed []*manualTimer
	for _, t := range m.timers {
		if !t.stopped && !t.fired {
			t.fired = true
			armed = append(armed, t)
		}
	}
	m.mu.Unlock()

	for _, t := range armed {
		t.fn()
	}
	return len(armed)
}

func (m *manualTimers) armed() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, t := range m.timers {
		if !t.stopped && !t.fired {
			n++
		}
	}
	return n
}

func syncRunner(fn func()) { fn() }
