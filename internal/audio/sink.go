package audio

import (
	"log"
	"sync"
	"time"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/speaker"

	"github.com/lowaak/treadmill-coach/internal/go_func_utils"
)

// Sink is the output a BeepPlayer plays into. Lock/Unlock guard changes to
// streamers the sink is currently pulling from.
type Sink interface {
	SampleRate() beep.SampleRate
	Play(s beep.Streamer)
	Lock()
	Unlock()
	Close() error
}

// SpeakerSink plays through the default audio device
type SpeakerSink struct {
	sampleRate beep.SampleRate
}

// NewSpeakerSink initializes the speaker. bufferSize trades latency for
// robustness against scheduling hiccups.
func NewSpeakerSink(sampleRate beep.SampleRate, bufferSize time.Duration) (*SpeakerSink, error) {
	if err := speaker.Init(sampleRate, sampleRate.N(bufferSize)); err != nil {
		return nil, err
	}
	return &SpeakerSink{sampleRate: sampleRate}, nil
}

func (s *SpeakerSink) SampleRate() beep.SampleRate { return s.sampleRate }
func (s *SpeakerSink) Play(st beep.Streamer)       { speaker.Play(st) }
func (s *SpeakerSink) Lock()                       { speaker.Lock() }
func (s *SpeakerSink) Unlock()                     { speaker.Unlock() }

func (s *SpeakerSink) Close() error {
	speaker.Clear()
	speaker.Close()
	return nil
}

// DiscardSink consumes streamers in real time without producing sound.
// Used when no audio device is available so cue timing still behaves.
type DiscardSink struct {
	sampleRate beep.SampleRate
	logger     *log.Logger

	mu    sync.Mutex
	mixer beep.Mixer

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

const discardQuantum = 20 * time.Millisecond

func NewDiscardSink(sampleRate beep.SampleRate, logger *log.Logger) *DiscardSink {
	if logger == nil {
		panic("DiscardSink: logger cannot be nil")
	}
	s := &DiscardSink{
		sampleRate: sampleRate,
		logger:     logger,
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
	}
	go_func_utils.SafeGo(logger, s.run)
	return s
}

func (s *DiscardSink) run() {
	defer close(s.done)
	ticker := time.NewTicker(discardQuantum)
	defer ticker.Stop()
	samples := make([][2]float64, s.sampleRate.N(discardQuantum))
	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.mu.Lock()
			if s.mixer.Len() > 0 {
				s.mixer.Stream(samples)
			}
			s.mu.Unlock()
		}
	}
}

func (s *DiscardSink) SampleRate() beep.SampleRate { return s.sampleRate }

func (s *DiscardSink) Play(st beep.Streamer) {
	s.mu.Lock()
	s.mixer.Add(st)
	s.mu.Unlock()
}

func (s *DiscardSink) Lock()   { s.mu.Lock() }
func (s *DiscardSink) Unlock() { s.mu.Unlock() }

func (s *DiscardSink) Close() error {
	s.stopOnce.Do(func() { close(s.stop) })
	<-s.done
	s.mu.Lock()
	s.mixer.Clear()
	s.mu.Unlock()
	return nil
}
