package cues

import (
	"context"
	"errors"
)

var (
	// ErrResourceLoad marks a cue resource that is missing or cannot be decoded
	ErrResourceLoad = errors.New("cue resource load failed")
	// ErrPlayback marks a device or codec failure while playing a loaded cue
	ErrPlayback = errors.New("cue playback failed")
)

// Handle identifies a sound loaded by a Player
type Handle uint64

// Player is the audio capability the scheduler drives. Every call may fail;
// the scheduler degrades to "no cue played" rather than propagating errors.
type Player interface {
	// Load prepares resource for playback. It may block on I/O and should
	// give up when ctx is cancelled.
	Load(ctx context.Context, resource string) (Handle, error)

	// Play starts playback. onFinished is called once, from another
	// goroutine, when the sound ends naturally (not when it is stopped).
	// Play must not call onFinished before returning.
	Play(h Handle, onFinished func()) error

	// Pause suspends a playing sound in place
	Pause(h Handle) error

	// Resume continues a paused sound
	Resume(h Handle) error

	// Stop halts playback; onFinished will not be called afterwards
	Stop(h Handle) error

	// Unload releases the resources held for h
	Unload(h Handle) error
}
