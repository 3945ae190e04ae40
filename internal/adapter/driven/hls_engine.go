package driven

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/alorle/gazibo/internal/playback"
	port "github.com/alorle/gazibo/internal/port/driven"
)

const (
	// probeBytes is how much of the first segment must arrive before playback counts as started.
	probeBytes = 64 * 1024

	// Consecutive failed live refreshes before the stream is declared lost.
	maxMissedRefreshes = 3

	defaultTargetDuration = 6 * time.Second
)

var (
	// ErrUnsupportedURL is reported for stream URLs the engine cannot load at all.
	ErrUnsupportedURL = errors.New("unsupported stream URL")

	// ErrNotAttached is returned by Reload and RecoverMedia when nothing is attached.
	ErrNotAttached = errors.New("no stream attached")
)

// HLSConfig holds the per-request load timeouts of the HLS engine.
type HLSConfig struct {
	ManifestTimeout time.Duration
	LevelTimeout    time.Duration
	SegmentTimeout  time.Duration
}

// DefaultHLSConfig returns the stock timeouts: 10s manifest, 10s level, 15s segment.
func DefaultHLSConfig() HLSConfig {
	return HLSConfig{
		ManifestTimeout: 10 * time.Second,
		LevelTimeout:    10 * time.Second,
		SegmentTimeout:  15 * time.Second,
	}
}

// loadError carries the playback classification of a loader failure.
type loadError struct {
	kind playback.ErrorKind
	err  error
}

func (e *loadError) Error() string { return e.err.Error() }
func (e *loadError) Unwrap() error { return e.err }

func networkError(err error) error { return &loadError{kind: playback.ErrorNetwork, err: err} }
func decodeError(err error) error  { return &loadError{kind: playback.ErrorDecode, err: err} }
func fatalError(err error) error   { return &loadError{kind: playback.ErrorFatal, err: err} }

// attachment is the stream currently bound to the engine.
type attachment struct {
	url       string
	parent    context.Context
	emit      func(playback.Event)
	recovered bool

	cancel context.CancelFunc
	done   chan struct{}
}

// HLSEngine implements the MediaEngine port for HTTP Live Streaming sources.
// It downloads the manifest, the variant playlist and the first segment, opens
// the video sink once data flows, and then follows live playlists to detect stalls.
type HLSEngine struct {
	config     HLSConfig
	httpClient *http.Client
	sink       port.VideoSink
	logger     *slog.Logger

	mu       sync.Mutex
	current  *attachment
	sinkOpen bool
}

// NewHLSEngine creates an engine that renders through sink.
func NewHLSEngine(config HLSConfig, sink port.VideoSink, logger *slog.Logger) *HLSEngine {
	return &HLSEngine{
		config:     config,
		httpClient: &http.Client{},
		sink:       sink,
		logger:     logger,
	}
}

// Attach replaces any current stream with url and starts loading it in the background.
func (e *HLSEngine) Attach(ctx context.Context, token playback.Token, rawURL string, emit func(playback.Event)) error {
	att := &attachment{url: rawURL, parent: ctx, emit: emit}

	e.mu.Lock()
	prev := e.current
	e.current = att
	e.mu.Unlock()

	stopLoader(prev)
	e.startLoader(att, token)
	return nil
}

// Reload restarts loading of the current stream from its manifest.
func (e *HLSEngine) Reload(token playback.Token) error {
	att, err := e.restart(false)
	if err != nil {
		return err
	}
	e.startLoader(att, token)
	return nil
}

// RecoverMedia reloads the current stream once more after a decode failure.
// A second decode failure on the same attachment is reported as fatal.
func (e *HLSEngine) RecoverMedia(token playback.Token) error {
	att, err := e.restart(true)
	if err != nil {
		return err
	}
	e.startLoader(att, token)
	return nil
}

func (e *HLSEngine) restart(recovering bool) (*attachment, error) {
	e.mu.Lock()
	att := e.current
	e.mu.Unlock()
	if att == nil {
		return nil, ErrNotAttached
	}

	stopLoader(att)
	if recovering {
		att.recovered = true
	}
	return att, nil
}

// Teardown stops loading and closes the sink.
func (e *HLSEngine) Teardown() {
	e.mu.Lock()
	att := e.current
	e.current = nil
	wasOpen := e.sinkOpen
	e.sinkOpen = false
	e.mu.Unlock()

	stopLoader(att)
	if wasOpen {
		if err := e.sink.Close(); err != nil {
			e.logger.Warn("failed to close video sink", "error", err)
		}
	}
}

func (e *HLSEngine) startLoader(att *attachment, token playback.Token) {
	ctx, cancel := context.WithCancel(att.parent)
	att.cancel = cancel
	att.done = make(chan struct{})
	go e.run(ctx, att, token, att.done)
}

func stopLoader(att *attachment) {
	if att == nil || att.cancel == nil {
		return
	}
	att.cancel()
	<-att.done
}

func (e *HLSEngine) run(ctx context.Context, att *attachment, token playback.Token, done chan struct{}) {
	defer close(done)

	err := e.load(ctx, att, token)
	if err == nil || ctx.Err() != nil {
		return
	}

	kind := playback.ErrorNetwork
	var le *loadError
	if errors.As(err, &le) {
		kind = le.kind
	}
	if kind == playback.ErrorDecode && att.recovered {
		kind = playback.ErrorFatal
	}

	e.logger.Warn("stream load failed", "url", att.url, "kind", kind.String(), "error", err)
	att.emit(playback.EngineFailed{Token: token, Kind: kind, Err: err})
}

// load drives one attempt. It returns nil when ctx is cancelled or a VOD stream
// has been fully started.
func (e *HLSEngine) load(ctx context.Context, att *attachment, token playback.Token) error {
	manifestURL, err := url.Parse(att.url)
	if err != nil || (manifestURL.Scheme != "http" && manifestURL.Scheme != "https") {
		return fatalError(fmt.Errorf("%w: %q", ErrUnsupportedURL, att.url))
	}

	playlist, err := e.fetchPlaylist(ctx, manifestURL, e.config.ManifestTimeout)
	if err != nil {
		return err
	}

	levelURL := manifestURL
	if playlist.isMaster() {
		levelURL = playlist.variants[0]
		playlist, err = e.fetchPlaylist(ctx, levelURL, e.config.LevelTimeout)
		if err != nil {
			return err
		}
		if playlist.isMaster() {
			return decodeError(fmt.Errorf("%w: nested master playlist", errMalformedPlaylist))
		}
	}

	// Live streams start near the edge, like players do.
	start := max(0, len(playlist.segments)-3)
	if err := e.fetchSegment(ctx, playlist.segments[start]); err != nil {
		return err
	}

	if err := e.openSink(ctx, att); err != nil {
		return fatalError(fmt.Errorf("failed to open video sink: %w", err))
	}
	if ctx.Err() != nil {
		return nil
	}
	att.emit(playback.EnginePlaying{Token: token})

	if playlist.endList {
		<-ctx.Done()
		return nil
	}
	return e.follow(ctx, att, token, levelURL, playlist)
}

// follow refreshes a live playlist every target duration. It emits
// EngineWaiting when no new segment appeared for three target durations or a
// refresh failed, and EnginePlaying once segments flow again.
func (e *HLSEngine) follow(ctx context.Context, att *attachment, token playback.Token, levelURL *url.URL, playlist *hlsPlaylist) error {
	interval := playlist.targetDuration
	if interval <= 0 {
		interval = defaultTargetDuration
	}
	stallAfter := 3 * interval

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	lastSeq := playlist.lastSequence()
	lastProgress := time.Now()
	waiting := false
	missed := 0

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		refreshed, err := e.fetchPlaylist(ctx, levelURL, e.config.LevelTimeout)
		if ctx.Err() != nil {
			return nil
		}
		if err != nil {
			missed++
			e.logger.Debug("live playlist refresh failed", "url", levelURL.String(), "missed", missed, "error", err)
			if missed >= maxMissedRefreshes {
				return err
			}
			if !waiting {
				waiting = true
				att.emit(playback.EngineWaiting{Token: token})
			}
			continue
		}
		missed = 0

		if seq := refreshed.lastSequence(); seq > lastSeq {
			lastSeq = seq
			lastProgress = time.Now()
			if waiting {
				waiting = false
				att.emit(playback.EnginePlaying{Token: token})
			}
			continue
		}

		if !waiting && time.Since(lastProgress) >= stallAfter {
			waiting = true
			att.emit(playback.EngineWaiting{Token: token})
		}
	}
}

func (e *HLSEngine) openSink(ctx context.Context, att *attachment) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.current != att || e.sinkOpen {
		return nil
	}
	if err := e.sink.Open(ctx, att.url); err != nil {
		return err
	}
	e.sinkOpen = true
	return nil
}

func (e *HLSEngine) fetchPlaylist(ctx context.Context, u *url.URL, timeout time.Duration) (*hlsPlaylist, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	resp, err := e.get(ctx, u)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	playlist, err := parseHLSPlaylist(resp.Body, resp.Request.URL)
	if err != nil {
		if errors.Is(err, errMalformedPlaylist) {
			return nil, decodeError(err)
		}
		return nil, networkError(err)
	}
	return playlist, nil
}

func (e *HLSEngine) fetchSegment(ctx context.Context, u *url.URL) error {
	ctx, cancel := context.WithTimeout(ctx, e.config.SegmentTimeout)
	defer cancel()

	resp, err := e.get(ctx, u)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if strings.HasPrefix(resp.Header.Get("Content-Type"), "text/html") {
		return decodeError(fmt.Errorf("segment %s is an HTML page", u))
	}
	n, err := io.CopyN(io.Discard, resp.Body, probeBytes)
	if err != nil && !errors.Is(err, io.EOF) {
		return networkError(fmt.Errorf("failed to read segment %s: %w", u, err))
	}
	if n == 0 {
		return decodeError(fmt.Errorf("segment %s is empty", u))
	}
	return nil
}

func (e *HLSEngine) get(ctx context.Context, u *url.URL) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fatalError(fmt.Errorf("failed to create request for %s: %w", u, err))
	}

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, networkError(fmt.Errorf("%w: %w", port.ErrNetwork, err))
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, networkError(fmt.Errorf("%w: HTTP %d for %s", port.ErrNotFound, resp.StatusCode, u))
	}
	return resp, nil
}

// Ensure HLSEngine implements the driven.MediaEngine interface
var _ port.MediaEngine = (*HLSEngine)(nil)
