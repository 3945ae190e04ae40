package application

import (
	"context"
	"errors"
	"slices"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/alorle/gazibo/internal/channel"
	"github.com/alorle/gazibo/internal/playback"
)

type attachCall struct {
	token playback.Token
	url   string
	emit  func(playback.Event)
}

// fakeEngine is a mock implementation of driven.MediaEngine for testing.
type fakeEngine struct {
	mu        sync.Mutex
	attachErr error
	attaches  []attachCall
	reloads   []playback.Token
	recovers  []playback.Token
	teardowns int
}

func (e *fakeEngine) Attach(_ context.Context, token playback.Token, url string, emit func(playback.Event)) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.attaches = append(e.attaches, attachCall{token: token, url: url, emit: emit})
	return e.attachErr
}

func (e *fakeEngine) Reload(token playback.Token) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.reloads = append(e.reloads, token)
	return nil
}

func (e *fakeEngine) RecoverMedia(token playback.Token) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.recovers = append(e.recovers, token)
	return nil
}

func (e *fakeEngine) Teardown() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.teardowns++
}

func (e *fakeEngine) attachCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.attaches)
}

func (e *fakeEngine) lastAttach() attachCall {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.attaches[len(e.attaches)-1]
}

func (e *fakeEngine) reloadCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.reloads)
}

func (e *fakeEngine) recoverCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.recovers)
}

// fakeSink is a mock implementation of driven.VideoSink for testing.
type fakeSink struct {
	mu         sync.Mutex
	fullscreen []bool
}

func (s *fakeSink) Open(context.Context, string) error { return nil }
func (s *fakeSink) Close() error                       { return nil }

func (s *fakeSink) SetFullscreen(on bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fullscreen = append(s.fullscreen, on)
	return nil
}

func (s *fakeSink) calls() []bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.fullscreen)
}

type fakeMarker struct {
	mu   sync.Mutex
	urls []string
}

func (m *fakeMarker) MarkBroken(_ context.Context, url string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.urls = append(m.urls, url)
	return nil
}

func (m *fakeMarker) marked() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.urls)
}

type playerFixture struct {
	player *PlayerService
	engine *fakeEngine
	sink   *fakeSink
	marker *fakeMarker
}

func testPlaybackConfig() playback.Config {
	return playback.Config{
		MaxRetries:    2,
		AutoSkipTicks: 2,
		TickInterval:  5 * time.Millisecond,
		SettleDelay:   time.Millisecond,
	}
}

// newPlayerFixture starts a player that is stopped, and checked for leaked
// goroutines, when the test ends.
func newPlayerFixture(t *testing.T, config playback.Config) *playerFixture {
	t.Helper()
	t.Cleanup(func() { goleak.VerifyNone(t) })

	f := &playerFixture{engine: &fakeEngine{}, sink: &fakeSink{}, marker: &fakeMarker{}}
	f.player = NewPlayerService(f.engine, f.sink, f.marker, NewStatusBroadcaster(newTestLogger()), config, newTestLogger())
	f.player.Start(context.Background())
	t.Cleanup(f.player.Stop)
	return f
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

func (f *playerFixture) waitState(t *testing.T, want playback.State) {
	t.Helper()
	waitFor(t, "state "+want.String(), func() bool { return f.player.Snapshot().State == want })
}

func (f *playerFixture) waitAttach(t *testing.T, n int) attachCall {
	t.Helper()
	waitFor(t, "attach", func() bool { return f.engine.attachCount() >= n })
	return f.engine.lastAttach()
}

func testChannel(name string) channel.Channel {
	return channel.ReconstructChannel("http://streams.example/"+name+".m3u8", name, channel.Attributes{Category: channel.CategoryNews})
}

func TestPlayerService_PlayReachesPlaying(t *testing.T) {
	f := newPlayerFixture(t, testPlaybackConfig())
	ctx := context.Background()
	ch := testChannel("one")

	if err := f.player.Play(ctx, ch); err != nil {
		t.Fatalf("Play() error = %v", err)
	}
	if !f.player.IsOpen() {
		t.Fatal("player not open after Play")
	}

	call := f.waitAttach(t, 1)
	if call.url != ch.URL() {
		t.Errorf("attached %q, want %q", call.url, ch.URL())
	}
	f.waitState(t, playback.StateLoading)

	call.emit(playback.EnginePlaying{Token: call.token})
	f.waitState(t, playback.StatePlaying)

	call.emit(playback.EngineWaiting{Token: call.token})
	f.waitState(t, playback.StateBuffering)

	call.emit(playback.EnginePlaying{Token: call.token})
	f.waitState(t, playback.StatePlaying)

	current, ok := f.player.CurrentChannel()
	if !ok || current.URL() != ch.URL() {
		t.Errorf("CurrentChannel() = %v, %v", current.URL(), ok)
	}
}

func TestPlayerService_SupersededSessionIsIgnored(t *testing.T) {
	f := newPlayerFixture(t, testPlaybackConfig())
	ctx := context.Background()

	if err := f.player.Play(ctx, testChannel("first")); err != nil {
		t.Fatal(err)
	}
	first := f.waitAttach(t, 1)

	second := testChannel("second")
	if err := f.player.Play(ctx, second); err != nil {
		t.Fatal(err)
	}
	latest := f.waitAttach(t, 2)
	if latest.url != second.URL() {
		t.Fatalf("second attach url = %q", latest.url)
	}
	f.waitState(t, playback.StateLoading)

	first.emit(playback.EngineFailed{Token: first.token, Kind: playback.ErrorFatal, Err: errors.New("gone")})
	first.emit(playback.EnginePlaying{Token: first.token})

	// An event for the current token is processed after the stale ones above.
	latest.emit(playback.EngineWaiting{Token: latest.token})
	time.Sleep(20 * time.Millisecond)

	snap := f.player.Snapshot()
	if snap.State != playback.StateLoading {
		t.Errorf("state = %s, want loading", snap.State)
	}
	if got := f.marker.marked(); len(got) != 0 {
		t.Errorf("stale failure marked %v broken", got)
	}
}

func TestPlayerService_FailureHandling(t *testing.T) {
	ctx := context.Background()

	t.Run("network retries then auto-skip", func(t *testing.T) {
		f := newPlayerFixture(t, testPlaybackConfig())
		var mu sync.Mutex
		var froms []string
		f.player.SetNavigator(func(_ context.Context, from channel.Channel) {
			mu.Lock()
			defer mu.Unlock()
			froms = append(froms, from.URL())
		})

		ch := testChannel("flaky")
		if err := f.player.Play(ctx, ch); err != nil {
			t.Fatal(err)
		}
		call := f.waitAttach(t, 1)

		for i := 1; i <= 2; i++ {
			call.emit(playback.EngineFailed{Token: call.token, Kind: playback.ErrorNetwork, Err: errors.New("timeout")})
			waitFor(t, "reload", func() bool { return f.engine.reloadCount() == i })
		}
		call.emit(playback.EngineFailed{Token: call.token, Kind: playback.ErrorNetwork, Err: errors.New("timeout")})

		waitFor(t, "navigator", func() bool {
			mu.Lock()
			defer mu.Unlock()
			return len(froms) > 0
		})
		// Further ticks must not advance twice.
		time.Sleep(30 * time.Millisecond)

		mu.Lock()
		defer mu.Unlock()
		if len(froms) != 1 || froms[0] != ch.URL() {
			t.Errorf("navigator calls = %v, want one from %q", froms, ch.URL())
		}
		if got := f.marker.marked(); !slices.Equal(got, []string{ch.URL()}) {
			t.Errorf("marked = %v", got)
		}
		if snap := f.player.Snapshot(); snap.State != playback.StateError || snap.Remaining != 0 {
			t.Errorf("snapshot = %s remaining %d", snap.State, snap.Remaining)
		}
	})

	t.Run("decode failure recovers in place", func(t *testing.T) {
		f := newPlayerFixture(t, testPlaybackConfig())
		if err := f.player.Play(ctx, testChannel("glitchy")); err != nil {
			t.Fatal(err)
		}
		call := f.waitAttach(t, 1)

		call.emit(playback.EngineFailed{Token: call.token, Kind: playback.ErrorDecode})
		waitFor(t, "recover", func() bool { return f.engine.recoverCount() == 1 })
		if f.engine.reloadCount() != 0 || len(f.marker.marked()) != 0 {
			t.Error("decode failure used the retry path")
		}
	})

	t.Run("attach error without auto-skip", func(t *testing.T) {
		config := testPlaybackConfig()
		config.AutoSkipTicks = 0
		f := newPlayerFixture(t, config)
		f.engine.attachErr = errors.New("unsupported")
		navigated := make(chan struct{}, 1)
		f.player.SetNavigator(func(context.Context, channel.Channel) { navigated <- struct{}{} })

		ch := testChannel("bad")
		if err := f.player.Play(ctx, ch); err != nil {
			t.Fatal(err)
		}
		f.waitState(t, playback.StateError)

		if snap := f.player.Snapshot(); snap.LastError != "unsupported" {
			t.Errorf("LastError = %q", snap.LastError)
		}
		if got := f.marker.marked(); !slices.Equal(got, []string{ch.URL()}) {
			t.Errorf("marked = %v", got)
		}
		select {
		case <-navigated:
			t.Error("navigator called with auto-skip disabled")
		case <-time.After(20 * time.Millisecond):
		}
	})

	t.Run("recovery during countdown", func(t *testing.T) {
		config := testPlaybackConfig()
		config.MaxRetries = 0
		config.TickInterval = time.Hour
		f := newPlayerFixture(t, config)

		if err := f.player.Play(ctx, testChannel("back")); err != nil {
			t.Fatal(err)
		}
		call := f.waitAttach(t, 1)
		call.emit(playback.EngineFailed{Token: call.token, Kind: playback.ErrorNetwork})
		f.waitState(t, playback.StateAutoSkipping)

		call.emit(playback.EnginePlaying{Token: call.token})
		f.waitState(t, playback.StatePlaying)
	})
}

func TestPlayerService_Commands(t *testing.T) {
	ctx := context.Background()

	t.Run("session commands need a session", func(t *testing.T) {
		f := newPlayerFixture(t, testPlaybackConfig())
		if err := f.player.Retry(ctx); !errors.Is(err, ErrNoSession) {
			t.Errorf("Retry() error = %v, want ErrNoSession", err)
		}
		if err := f.player.ToggleFullscreen(ctx); !errors.Is(err, ErrNoSession) {
			t.Errorf("ToggleFullscreen() error = %v, want ErrNoSession", err)
		}
		if err := f.player.Close(ctx); err != nil {
			t.Errorf("Close() without session error = %v", err)
		}
	})

	t.Run("retry starts a new attempt", func(t *testing.T) {
		f := newPlayerFixture(t, testPlaybackConfig())
		if err := f.player.Play(ctx, testChannel("one")); err != nil {
			t.Fatal(err)
		}
		first := f.waitAttach(t, 1)

		if err := f.player.Retry(ctx); err != nil {
			t.Fatalf("Retry() error = %v", err)
		}
		second := f.waitAttach(t, 2)
		if second.token.Session != first.token.Session || second.token.Request == first.token.Request {
			t.Errorf("retry tokens: first %+v, second %+v", first.token, second.token)
		}

		first.emit(playback.EnginePlaying{Token: first.token})
		second.emit(playback.EnginePlaying{Token: second.token})
		f.waitState(t, playback.StatePlaying)
	})

	t.Run("fullscreen and close", func(t *testing.T) {
		f := newPlayerFixture(t, testPlaybackConfig())
		if err := f.player.Play(ctx, testChannel("one")); err != nil {
			t.Fatal(err)
		}
		if err := f.player.ToggleFullscreen(ctx); err != nil {
			t.Fatalf("ToggleFullscreen() error = %v", err)
		}
		if !f.player.Snapshot().Fullscreen {
			t.Error("snapshot not fullscreen")
		}

		if err := f.player.Close(ctx); err != nil {
			t.Fatalf("Close() error = %v", err)
		}
		snap := f.player.Snapshot()
		if snap.State != playback.StateClosed || snap.IsOpen() || snap.Fullscreen {
			t.Errorf("snapshot after close = %+v", snap)
		}
		if got := f.sink.calls(); !slices.Equal(got, []bool{true, false}) {
			t.Errorf("fullscreen calls = %v, want [true false]", got)
		}
	})

	t.Run("commands after stop", func(t *testing.T) {
		f := newPlayerFixture(t, testPlaybackConfig())
		f.player.Stop()

		if err := f.player.Play(ctx, testChannel("late")); !errors.Is(err, ErrPlayerStopped) {
			t.Errorf("Play() after Stop error = %v, want ErrPlayerStopped", err)
		}
	})
}

func TestPlayerService_PublishesStatus(t *testing.T) {
	defer goleak.VerifyNone(t)

	status := NewStatusBroadcaster(newTestLogger())
	engine := &fakeEngine{}
	player := NewPlayerService(engine, &fakeSink{}, &fakeMarker{}, status, testPlaybackConfig(), newTestLogger())
	player.Start(context.Background())
	defer player.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	notices := make(chan playback.Notice, 16)
	done := make(chan error, 1)
	go func() {
		done <- status.Subscribe(ctx, func(ev StatusEvent) error {
			notices <- ev.Notice
			return nil
		})
	}()
	waitFor(t, "subscriber", func() bool { return status.SubscriberCount() == 1 })

	if err := player.Play(context.Background(), testChannel("one")); err != nil {
		t.Fatal(err)
	}

	want := []playback.Notice{playback.NoticeStarting, playback.NoticeLoading}
	for _, w := range want {
		select {
		case got := <-notices:
			if got != w {
				t.Errorf("notice = %s, want %s", got, w)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for %s", w)
		}
	}

	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Errorf("Subscribe() error = %v", err)
	}
}
