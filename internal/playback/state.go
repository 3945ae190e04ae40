package playback

import (
	"time"

	"github.com/alorle/gazibo/internal/channel"
)

// State represents the lifecycle position of the current playback session.
type State int

const (
	StateIdle State = iota
	StateStarting
	StateLoading
	StatePlaying
	StateBuffering
	StateError
	StateAutoSkipping
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStarting:
		return "starting"
	case StateLoading:
		return "loading"
	case StatePlaying:
		return "playing"
	case StateBuffering:
		return "buffering"
	case StateError:
		return "error"
	case StateAutoSkipping:
		return "auto_skipping"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// ErrorKind classifies a media engine failure.
type ErrorKind int

const (
	// ErrorNetwork is a transport failure (manifest/segment fetch, not-ok status, timeout).
	// It is retried in place up to Config.MaxRetries times.
	ErrorNetwork ErrorKind = iota
	// ErrorDecode is a media format failure repaired in place without using the retry budget.
	ErrorDecode
	// ErrorFatal is any other unrecoverable failure.
	ErrorFatal
)

func (k ErrorKind) String() string {
	switch k {
	case ErrorNetwork:
		return "network"
	case ErrorDecode:
		return "decode"
	case ErrorFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Token identifies one load attempt of one session. Session changes on every play
// and close; Request changes on every play, close and retry. Asynchronous events
// carry the token they were issued under and are dropped when it is no longer current.
type Token struct {
	Session uint64
	Request uint64
}

// Config holds the tunables of the playback state machine.
type Config struct {
	// MaxRetries bounds in-place reloads after network failures within one attempt.
	MaxRetries int
	// AutoSkipTicks is the countdown length before advancing to the next channel.
	// Zero disables auto-skip: the session stays in StateError.
	AutoSkipTicks int
	// TickInterval is the countdown granularity.
	TickInterval time.Duration
	// SettleDelay lets the previous stream finish tearing down before attaching a new one.
	SettleDelay time.Duration
}

// DefaultConfig returns the stock tunables: 2 retries, 5 one-second ticks, 50ms settle.
func DefaultConfig() Config {
	return Config{
		MaxRetries:    2,
		AutoSkipTicks: 5,
		TickInterval:  time.Second,
		SettleDelay:   50 * time.Millisecond,
	}
}

// Snapshot is the complete state of the playback slot. It is a value; Transition
// returns a new one instead of mutating its input.
type Snapshot struct {
	Session    uint64
	Request    uint64
	Channel    *channel.Channel
	RetryCount int
	State      State
	Remaining  int
	Fullscreen bool
	LastError  string
}

// Token returns the token of the current load attempt.
func (s Snapshot) Token() Token {
	return Token{Session: s.Session, Request: s.Request}
}

// IsOpen reports whether a session currently holds the player.
func (s Snapshot) IsOpen() bool {
	return s.Channel != nil && s.State != StateIdle && s.State != StateClosed
}

// Current returns the channel of the current session, if any.
func (s Snapshot) Current() (channel.Channel, bool) {
	if !s.IsOpen() {
		return channel.Channel{}, false
	}
	return *s.Channel, true
}

func (s Snapshot) owns(t Token) bool {
	return s.IsOpen() && t == s.Token()
}
