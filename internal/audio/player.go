// Package audio plays cue resources with beep. It implements the player
// capability the cue scheduler consumes.
package audio

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/mp3"
	"github.com/gopxl/beep/v2/wav"

	"github.com/lowaak/treadmill-coach/internal/cues"
	"github.com/lowaak/treadmill-coach/internal/go_func_utils"
)

const resampleQuality = 4

type loadedSound struct {
	resource string
	buffer   *beep.Buffer
	ctrl     *beep.Ctrl // nil until played
	stopped  atomic.Bool
}

// BeepPlayer decodes cue resources into memory and plays them through a Sink
type BeepPlayer struct {
	sink              Sink
	logger            *log.Logger
	countdownDuration time.Duration

	mu     sync.Mutex
	next   cues.Handle
	sounds map[cues.Handle]*loadedSound
}

// NewBeepPlayer creates a player. countdownDuration is the length of the
// synthesized chime served for cues.BuiltinCountdownResource.
func NewBeepPlayer(sink Sink, countdownDuration time.Duration, logger *log.Logger) *BeepPlayer {
	if sink == nil {
		panic("BeepPlayer: sink cannot be nil")
	}
	if logger == nil {
		panic("BeepPlayer: logger cannot be nil")
	}
	return &BeepPlayer{
		sink:              sink,
		logger:            logger,
		countdownDuration: countdownDuration,
		sounds:            make(map[cues.Handle]*loadedSound),
	}
}

func (p *BeepPlayer) Load(ctx context.Context, resource string) (cues.Handle, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	var (
		buf *beep.Buffer
		err error
	)
	if resource == cues.BuiltinCountdownResource {
		buf, err = synthesizeCountdown(p.sink.SampleRate(), p.countdownDuration)
	} else {
		buf, err = p.decodeFile(resource)
	}
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %v", cues.ErrResourceLoad, resource, err)
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.next++
	p.sounds[p.next] = &loadedSound{resource: resource, buffer: buf}
	p.logger.Printf("BeepPlayer: loaded %s (%v)", resource, p.sink.SampleRate().D(buf.Len()).Round(time.Millisecond))
	return p.next, nil
}

func (p *BeepPlayer) decodeFile(path string) (*beep.Buffer, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	var (
		streamer beep.StreamSeekCloser
		format   beep.Format
	)
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".wav":
		streamer, format, err = wav.Decode(f)
	case ".mp3":
		streamer, format, err = mp3.Decode(f)
	default:
		f.Close()
		return nil, fmt.Errorf("unsupported audio format %q", ext)
	}
	if err != nil {
		f.Close()
		return nil, err
	}
	defer streamer.Close()

	sr := p.sink.SampleRate()
	var source beep.Streamer = streamer
	if format.SampleRate != sr {
		source = beep.Resample(resampleQuality, format.SampleRate, sr, streamer)
	}
	buf := beep.NewBuffer(beep.Format{SampleRate: sr, NumChannels: 2, Precision: format.Precision})
	buf.Append(source)
	if err := streamer.Err(); err != nil {
		return nil, err
	}
	if buf.Len() == 0 {
		return nil, fmt.Errorf("no audio samples")
	}
	return buf, nil
}

func (p *BeepPlayer) lookup(h cues.Handle) (*loadedSound, error) {
	snd, ok := p.sounds[h]
	if !ok {
		return nil, fmt.Errorf("%w: unknown handle %d", cues.ErrPlayback, h)
	}
	return snd, nil
}

func (p *BeepPlayer) Play(h cues.Handle, onFinished func()) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	snd, err := p.lookup(h)
	if err != nil {
		return err
	}
	if snd.ctrl != nil {
		return fmt.Errorf("%w: %s already started", cues.ErrPlayback, snd.resource)
	}

	// runs on the sink's goroutine with the sink locked, so it must not take p.mu
	done := beep.Callback(func() {
		if !snd.stopped.Load() && onFinished != nil {
			go_func_utils.SafeGo(p.logger, onFinished)
		}
	})
	snd.ctrl = &beep.Ctrl{Streamer: beep.Seq(snd.buffer.Streamer(0, snd.buffer.Len()), done)}
	p.sink.Play(snd.ctrl)
	return nil
}

// setCtrl mutates a playing sound's control under the sink lock
func (p *BeepPlayer) setCtrl(h cues.Handle, apply func(*loadedSound)) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	snd, err := p.lookup(h)
	if err != nil {
		return err
	}
	if snd.ctrl == nil {
		return nil
	}
	p.sink.Lock()
	apply(snd)
	p.sink.Unlock()
	return nil
}

func (p *BeepPlayer) Pause(h cues.Handle) error {
	return p.setCtrl(h, func(snd *loadedSound) { snd.ctrl.Paused = true })
}

func (p *BeepPlayer) Resume(h cues.Handle) error {
	return p.setCtrl(h, func(snd *loadedSound) { snd.ctrl.Paused = false })
}

func (p *BeepPlayer) Stop(h cues.Handle) error {
	return p.setCtrl(h, func(snd *loadedSound) {
		snd.stopped.Store(true)
		snd.ctrl.Streamer = nil
	})
}

func (p *BeepPlayer) Unload(h cues.Handle) error {
	if err := p.Stop(h); err != nil {
		return err
	}
	p.mu.Lock()
	delete(p.sounds, h)
	p.mu.Unlock()
	return nil
}

// Loaded reports how many sounds are held in memory
func (p *BeepPlayer) Loaded() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.sounds)
}
