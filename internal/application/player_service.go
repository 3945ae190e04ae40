package application

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/alorle/gazibo/internal/channel"
	"github.com/alorle/gazibo/internal/playback"
	"github.com/alorle/gazibo/internal/port/driven"
	"github.com/alorle/gazibo/metrics"
)

var (
	// ErrPlayerStopped is returned by commands issued after the player stopped.
	ErrPlayerStopped = errors.New("player is not running")

	// ErrNoSession is returned by commands that need an open playback session.
	ErrNoSession = errors.New("no open playback session")
)

// BrokenMarker records streams that failed to play.
type BrokenMarker interface {
	MarkBroken(ctx context.Context, url string) error
}

// Navigator picks and plays the channel after from. It runs outside the player
// loop and may call back into the player.
type Navigator func(ctx context.Context, from channel.Channel)

type playerCommand struct {
	event          playback.Event
	requireSession bool
	reply          chan error
}

// eventQueue is an unbounded FIFO of asynchronous events. post never blocks,
// so engine and timer callbacks cannot stall the loop that tears them down.
type eventQueue struct {
	mu      sync.Mutex
	pending []playback.Event
	signal  chan struct{}
}

func newEventQueue() *eventQueue {
	return &eventQueue{signal: make(chan struct{}, 1)}
}

func (q *eventQueue) post(ev playback.Event) {
	q.mu.Lock()
	q.pending = append(q.pending, ev)
	q.mu.Unlock()

	select {
	case q.signal <- struct{}{}:
	default:
	}
}

func (q *eventQueue) drain() []playback.Event {
	q.mu.Lock()
	defer q.mu.Unlock()
	evs := q.pending
	q.pending = nil
	return evs
}

// PlayerService owns the single playback slot. One goroutine applies commands
// and engine/timer events to the playback state machine in order and performs
// the resulting effects; every other method talks to it through channels or
// reads the last published snapshot.
type PlayerService struct {
	engine driven.MediaEngine
	sink   driven.VideoSink
	broken BrokenMarker
	status *StatusBroadcaster
	config playback.Config
	logger *slog.Logger

	commands chan playerCommand
	queue    *eventQueue
	stopped  chan struct{}
	done     chan struct{}
	cancel   context.CancelFunc

	navMu    sync.RWMutex
	navigate Navigator

	snapMu    sync.RWMutex
	published playback.Snapshot

	// Owned by the loop goroutine.
	state     playback.Snapshot
	settle    *time.Timer
	countdown chan struct{}
	workers   sync.WaitGroup
}

// NewPlayerService creates a player. status may be nil.
func NewPlayerService(
	engine driven.MediaEngine,
	sink driven.VideoSink,
	broken BrokenMarker,
	status *StatusBroadcaster,
	config playback.Config,
	logger *slog.Logger,
) *PlayerService {
	return &PlayerService{
		engine:   engine,
		sink:     sink,
		broken:   broken,
		status:   status,
		config:   config,
		logger:   logger,
		commands: make(chan playerCommand),
		queue:    newEventQueue(),
		stopped:  make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// SetNavigator installs the handler for auto-skip.
func (p *PlayerService) SetNavigator(nav Navigator) {
	p.navMu.Lock()
	defer p.navMu.Unlock()
	p.navigate = nav
}

// Start runs the player loop until ctx is done or Stop is called.
func (p *PlayerService) Start(ctx context.Context) {
	ctx, p.cancel = context.WithCancel(ctx)
	go p.loop(ctx)
}

// Stop ends the loop, cancels timers, tears the stream down and waits for
// background work to finish.
func (p *PlayerService) Stop() {
	if p.cancel == nil {
		return
	}
	p.cancel()
	<-p.done
}

// Play starts a new session for ch, superseding the current one.
func (p *PlayerService) Play(ctx context.Context, ch channel.Channel) error {
	if err := p.send(ctx, playback.PlayRequested{Channel: ch}, false); err != nil {
		return err
	}
	metrics.RecordSessionStarted()
	return nil
}

// Close ends the current session, if any.
func (p *PlayerService) Close(ctx context.Context) error {
	return p.send(ctx, playback.CloseRequested{}, false)
}

// Retry reloads the current channel from scratch within the same session.
func (p *PlayerService) Retry(ctx context.Context) error {
	return p.send(ctx, playback.RetryRequested{}, true)
}

// ToggleFullscreen switches the video output between windowed and fullscreen.
func (p *PlayerService) ToggleFullscreen(ctx context.Context) error {
	return p.send(ctx, playback.FullscreenToggled{}, true)
}

// Snapshot returns the state after the last applied transition.
func (p *PlayerService) Snapshot() playback.Snapshot {
	p.snapMu.RLock()
	defer p.snapMu.RUnlock()
	return p.published
}

// IsOpen reports whether a session currently holds the player.
func (p *PlayerService) IsOpen() bool {
	return p.Snapshot().IsOpen()
}

// CurrentChannel returns the channel of the open session.
func (p *PlayerService) CurrentChannel() (channel.Channel, bool) {
	return p.Snapshot().Current()
}

// send hands a command to the loop and waits until its transition is applied.
func (p *PlayerService) send(ctx context.Context, ev playback.Event, requireSession bool) error {
	cmd := playerCommand{event: ev, requireSession: requireSession, reply: make(chan error, 1)}

	select {
	case p.commands <- cmd:
	case <-p.stopped:
		return ErrPlayerStopped
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-cmd.reply:
		return err
	case <-p.stopped:
		return ErrPlayerStopped
	}
}

func (p *PlayerService) loop(ctx context.Context) {
	defer close(p.done)

	for {
		select {
		case <-ctx.Done():
			close(p.stopped)
			p.shutdown()
			return

		case cmd := <-p.commands:
			if cmd.requireSession && !p.state.IsOpen() {
				cmd.reply <- ErrNoSession
				continue
			}
			p.apply(ctx, cmd.event)
			cmd.reply <- nil

		case <-p.queue.signal:
			for _, ev := range p.queue.drain() {
				p.apply(ctx, ev)
			}
		}
	}
}

func (p *PlayerService) shutdown() {
	if p.settle != nil {
		p.settle.Stop()
	}
	p.stopCountdown()
	p.engine.Teardown()
	p.workers.Wait()
	p.logger.Info("player stopped")
}

func (p *PlayerService) apply(ctx context.Context, ev playback.Event) {
	next, effects := playback.Transition(p.state, ev, p.config)
	if next.State != p.state.State {
		p.logger.Debug("playback state changed",
			"from", p.state.State.String(),
			"to", next.State.String(),
			"session", next.Session,
		)
	}
	p.state = next

	p.snapMu.Lock()
	p.published = next
	p.snapMu.Unlock()

	for _, eff := range effects {
		p.execute(ctx, ev, eff)
	}
}

func (p *PlayerService) execute(ctx context.Context, cause playback.Event, eff playback.Effect) {
	switch e := eff.(type) {
	case playback.Teardown:
		p.engine.Teardown()

	case playback.ScheduleSettle:
		if p.settle != nil {
			p.settle.Stop()
		}
		token := e.Token
		p.settle = time.AfterFunc(e.Delay, func() {
			p.queue.post(playback.SettleElapsed{Token: token})
		})

	case playback.Attach:
		if err := p.engine.Attach(ctx, e.Token, e.URL, p.queue.post); err != nil {
			p.queue.post(playback.EngineFailed{Token: e.Token, Kind: playback.ErrorFatal, Err: err})
		}

	case playback.Reload:
		metrics.RecordPlaybackRetry()
		if err := p.engine.Reload(e.Token); err != nil {
			p.queue.post(playback.EngineFailed{Token: e.Token, Kind: playback.ErrorFatal, Err: err})
		}

	case playback.RecoverMedia:
		if err := p.engine.RecoverMedia(e.Token); err != nil {
			p.queue.post(playback.EngineFailed{Token: e.Token, Kind: playback.ErrorFatal, Err: err})
		}

	case playback.MarkBroken:
		if failed, ok := cause.(playback.EngineFailed); ok {
			metrics.RecordPlaybackError(failed.Kind.String())
		}
		if err := p.broken.MarkBroken(ctx, e.URL); err != nil {
			p.logger.Error("failed to mark stream broken", "url", e.URL, "error", err)
		}

	case playback.StartCountdown:
		p.startCountdown(e.Token, e.Interval)

	case playback.StopCountdown:
		p.stopCountdown()

	case playback.AdvanceNext:
		metrics.RecordAutoSkip()
		p.advance(ctx, e.From)

	case playback.Notify:
		if p.status != nil {
			p.status.Publish(StatusEvent{Notice: e.Notice, Snapshot: p.state})
		}

	case playback.SetFullscreen:
		if err := p.sink.SetFullscreen(e.On); err != nil {
			p.logger.Warn("failed to switch fullscreen", "on", e.On, "error", err)
		}
	}
}

// startCountdown replaces any running countdown, so at most one exists.
func (p *PlayerService) startCountdown(token playback.Token, interval time.Duration) {
	p.stopCountdown()

	stop := make(chan struct{})
	p.countdown = stop
	p.workers.Add(1)
	go func() {
		defer p.workers.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				p.queue.post(playback.CountdownTick{Token: token})
			case <-stop:
				return
			}
		}
	}()
}

func (p *PlayerService) stopCountdown() {
	if p.countdown != nil {
		close(p.countdown)
		p.countdown = nil
	}
}

func (p *PlayerService) advance(ctx context.Context, from channel.Channel) {
	p.navMu.RLock()
	nav := p.navigate
	p.navMu.RUnlock()

	if nav == nil {
		p.logger.Info("auto-skip requested but no navigator is installed", "from", from.URL())
		return
	}

	p.workers.Add(1)
	go func() {
		defer p.workers.Done()
		nav(ctx, from)
	}()
}
