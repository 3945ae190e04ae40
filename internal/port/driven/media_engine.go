package driven

import (
	"context"

	"github.com/alorle/gazibo/internal/playback"
)

// MediaEngine loads and plays one stream at a time.
// Every event it emits carries the token of the attempt that produced it;
// the caller is responsible for discarding events with a stale token.
type MediaEngine interface {
	// Attach starts loading url and reports progress through emit. It must not block
	// on network I/O; loading happens in the background until Teardown.
	Attach(ctx context.Context, token playback.Token, url string, emit func(playback.Event)) error

	// Reload restarts loading of the attached resource under a token.
	Reload(token playback.Token) error

	// RecoverMedia repairs a decode failure without reloading from scratch.
	RecoverMedia(token playback.Token) error

	// Teardown releases the current resource. It is safe to call when nothing is attached.
	Teardown()
}

// VideoSink is the single video output resource, e.g. an external player window.
// The fullscreen flag belongs to the sink and survives Close/Open cycles.
type VideoSink interface {
	// Open starts rendering url, replacing whatever was rendered before.
	Open(ctx context.Context, url string) error

	// SetFullscreen records the flag and applies it to an open output.
	SetFullscreen(on bool) error

	// Close stops rendering. It is safe to call when nothing is open.
	Close() error
}
