package playback

import (
	"time"

	"github.com/alorle/gazibo/internal/channel"
)

// Effect is an instruction emitted by Transition for the runtime to perform.
type Effect interface {
	isEffect()
}

// Notice tells the display layer what changed.
type Notice int

const (
	NoticeStarting Notice = iota
	NoticeLoading
	NoticePlaying
	NoticeBuffering
	NoticeError
	NoticeCountdown
	NoticeClosed
	NoticeFullscreen
)

func (n Notice) String() string {
	switch n {
	case NoticeStarting:
		return "starting"
	case NoticeLoading:
		return "loading"
	case NoticePlaying:
		return "playing"
	case NoticeBuffering:
		return "buffering"
	case NoticeError:
		return "error"
	case NoticeCountdown:
		return "countdown"
	case NoticeClosed:
		return "closed"
	case NoticeFullscreen:
		return "fullscreen"
	default:
		return "unknown"
	}
}

type (
	// Teardown releases the media resource held by any previous attempt.
	Teardown struct{}
	// ScheduleSettle asks for SettleElapsed{Token} after Delay.
	ScheduleSettle struct {
		Token Token
		Delay time.Duration
	}
	// Attach starts loading URL on the media engine under Token.
	Attach struct {
		Token Token
		URL   string
	}
	// Reload restarts loading on the existing resource.
	Reload struct{ Token Token }
	// RecoverMedia repairs a decode failure on the existing resource.
	RecoverMedia struct{ Token Token }
	// MarkBroken records URL in the broken ledger.
	MarkBroken struct{ URL string }
	// StartCountdown asks for CountdownTick{Token} every Interval until stopped.
	StartCountdown struct {
		Token    Token
		Interval time.Duration
	}
	// StopCountdown cancels the active countdown, if any.
	StopCountdown struct{}
	// AdvanceNext asks the navigation layer to play the channel after From.
	AdvanceNext struct{ From channel.Channel }
	// Notify publishes the resulting snapshot to the display layer.
	Notify struct{ Notice Notice }
	// SetFullscreen switches the video sink between windowed and fullscreen.
	SetFullscreen struct{ On bool }
)

func (Teardown) isEffect()       {}
func (ScheduleSettle) isEffect() {}
func (Attach) isEffect()         {}
func (Reload) isEffect()         {}
func (RecoverMedia) isEffect()   {}
func (MarkBroken) isEffect()     {}
func (StartCountdown) isEffect() {}
func (StopCountdown) isEffect()  {}
func (AdvanceNext) isEffect()    {}
func (Notify) isEffect()         {}
func (SetFullscreen) isEffect()  {}
