package application

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/alorle/gazibo/internal/playback"
)

func TestStatusBroadcaster(t *testing.T) {
	defer goleak.VerifyNone(t)

	t.Run("late subscriber receives the latest event first", func(t *testing.T) {
		b := NewStatusBroadcaster(newTestLogger())
		b.Publish(StatusEvent{Notice: playback.NoticeStarting})
		b.Publish(StatusEvent{Notice: playback.NoticePlaying})

		got := make(chan playback.Notice, 1)
		stop := errors.New("stop")
		err := b.Subscribe(context.Background(), func(ev StatusEvent) error {
			got <- ev.Notice
			return stop
		})
		if !errors.Is(err, stop) {
			t.Fatalf("Subscribe() error = %v, want callback error", err)
		}
		if n := <-got; n != playback.NoticePlaying {
			t.Errorf("first notice = %s, want playing", n)
		}
		if b.SubscriberCount() != 0 {
			t.Errorf("SubscriberCount() = %d after return", b.SubscriberCount())
		}
	})

	t.Run("fan out to every subscriber", func(t *testing.T) {
		b := NewStatusBroadcaster(newTestLogger())
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		const subscribers = 3
		received := make(chan playback.Notice, subscribers)
		done := make(chan error, subscribers)
		for range subscribers {
			go func() {
				done <- b.Subscribe(ctx, func(ev StatusEvent) error {
					received <- ev.Notice
					return nil
				})
			}()
		}
		waitFor(t, "subscribers", func() bool { return b.SubscriberCount() == subscribers })

		b.Publish(StatusEvent{Notice: playback.NoticeError})
		for range subscribers {
			select {
			case n := <-received:
				if n != playback.NoticeError {
					t.Errorf("notice = %s, want error", n)
				}
			case <-time.After(2 * time.Second):
				t.Fatal("subscriber did not receive event")
			}
		}

		b.Close()
		for range subscribers {
			if err := <-done; err != nil {
				t.Errorf("Subscribe() after Close error = %v", err)
			}
		}
		b.Publish(StatusEvent{Notice: playback.NoticeClosed})
	})

	t.Run("slow subscriber is dropped", func(t *testing.T) {
		b := NewStatusBroadcaster(newTestLogger())
		release := make(chan struct{})
		done := make(chan error, 1)
		go func() {
			done <- b.Subscribe(context.Background(), func(StatusEvent) error {
				<-release
				return nil
			})
		}()
		waitFor(t, "subscriber", func() bool { return b.SubscriberCount() == 1 })

		for range statusBufferSize + 2 {
			b.Publish(StatusEvent{Notice: playback.NoticeCountdown})
		}
		if b.SubscriberCount() != 0 {
			t.Errorf("SubscriberCount() = %d, want slow subscriber dropped", b.SubscriberCount())
		}

		close(release)
		select {
		case err := <-done:
			if err != nil {
				t.Errorf("Subscribe() error = %v", err)
			}
		case <-time.After(2 * time.Second):
			t.Fatal("dropped subscriber did not return")
		}
	})

	t.Run("subscribe after close returns immediately", func(t *testing.T) {
		b := NewStatusBroadcaster(newTestLogger())
		b.Close()
		if err := b.Subscribe(context.Background(), func(StatusEvent) error { return nil }); err != nil {
			t.Errorf("Subscribe() error = %v", err)
		}
	})
}
