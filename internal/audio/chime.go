package audio

import (
	"fmt"
	"time"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/effects"
	"github.com/gopxl/beep/v2/generators"
)

// pip is one tone of the countdown chime
type pip struct {
	freq   float64
	length time.Duration
}

// countdownPips mark the final seconds: two short pips and a longer, higher one
// on the transition itself.
var countdownPips = []pip{
	{freq: 880, length: 150 * time.Millisecond},
	{freq: 880, length: 150 * time.Millisecond},
	{freq: 1320, length: 450 * time.Millisecond},
}

const chimeGain = -0.6

// synthesizeCountdown renders the countdown chime spread evenly over total
func synthesizeCountdown(sr beep.SampleRate, total time.Duration) (*beep.Buffer, error) {
	if total <= 0 {
		return nil, fmt.Errorf("countdown length must be positive, got %v", total)
	}
	slot := total / time.Duration(len(countdownPips))

	parts := make([]beep.Streamer, 0, 2*len(countdownPips))
	for _, p := range countdownPips {
		length := p.length
		if length > slot {
			length = slot
		}
		tone, err := generators.SineTone(sr, p.freq)
		if err != nil {
			return nil, fmt.Errorf("tone %.0fHz: %w", p.freq, err)
		}
		parts = append(parts,
			&effects.Gain{Streamer: beep.Take(sr.N(length), tone), Gain: chimeGain},
			beep.Silence(sr.N(slot-length)),
		)
	}

	buf := beep.NewBuffer(beep.Format{SampleRate: sr, NumChannels: 2, Precision: 2})
	buf.Append(beep.Seq(parts...))
	return buf, nil
}
