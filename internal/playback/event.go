package playback

import "github.com/alorle/gazibo/internal/channel"

// Event is an input to Transition. Commands come from the caller; engine and timer
// events carry the Token they were issued under.
type Event interface {
	isEvent()
}

type (
	PlayRequested struct{ Channel channel.Channel }
	CloseRequested struct{}
	RetryRequested struct{}
	FullscreenToggled struct{}

	SettleElapsed struct{ Token Token }
	CountdownTick struct{ Token Token }

	EnginePlaying struct{ Token Token }
	EngineWaiting struct{ Token Token }
	EngineFailed  struct {
		Token Token
		Kind  ErrorKind
		Err   error
	}
)

func (PlayRequested) isEvent()     {}
func (CloseRequested) isEvent()    {}
func (RetryRequested) isEvent()    {}
func (FullscreenToggled) isEvent() {}
func (SettleElapsed) isEvent()     {}
func (CountdownTick) isEvent()     {}
func (EnginePlaying) isEvent()     {}
func (EngineWaiting) isEvent()     {}
func (EngineFailed) isEvent()      {}
