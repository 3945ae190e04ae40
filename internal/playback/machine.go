package playback

// Transition computes the next snapshot and the effects the runtime must perform
// for ev. It is pure: the same inputs always yield the same outputs.
//
// Token-tagged events whose token differs from the current one are no-ops; this is
// what keeps a superseded stream from affecting the session that replaced it.
func Transition(s Snapshot, ev Event, cfg Config) (Snapshot, []Effect) {
	switch e := ev.(type) {
	case PlayRequested:
		return play(s, e, cfg)
	case CloseRequested:
		return closeSession(s)
	case RetryRequested:
		return retry(s)
	case FullscreenToggled:
		if !s.IsOpen() {
			return s, nil
		}
		s.Fullscreen = !s.Fullscreen
		return s, []Effect{SetFullscreen{On: s.Fullscreen}, Notify{Notice: NoticeFullscreen}}

	case SettleElapsed:
		if !s.owns(e.Token) || s.State != StateStarting {
			return s, nil
		}
		s.State = StateLoading
		return s, []Effect{Attach{Token: s.Token(), URL: s.Channel.URL()}, Notify{Notice: NoticeLoading}}

	case EnginePlaying:
		if !s.owns(e.Token) {
			return s, nil
		}
		return playing(s)

	case EngineWaiting:
		if !s.owns(e.Token) || s.State != StatePlaying {
			return s, nil
		}
		s.State = StateBuffering
		return s, []Effect{Notify{Notice: NoticeBuffering}}

	case EngineFailed:
		if !s.owns(e.Token) {
			return s, nil
		}
		return failed(s, e, cfg)

	case CountdownTick:
		if !s.owns(e.Token) || s.State != StateAutoSkipping || s.Remaining <= 0 {
			return s, nil
		}
		s.Remaining--
		if s.Remaining > 0 {
			return s, []Effect{Notify{Notice: NoticeCountdown}}
		}
		s.State = StateError
		return s, []Effect{StopCountdown{}, Notify{Notice: NoticeCountdown}, AdvanceNext{From: *s.Channel}}
	}

	return s, nil
}

func play(s Snapshot, e PlayRequested, cfg Config) (Snapshot, []Effect) {
	ch := e.Channel
	next := Snapshot{
		Session:    s.Session + 1,
		Request:    s.Request + 1,
		Channel:    &ch,
		State:      StateStarting,
		Fullscreen: s.Fullscreen,
	}
	return next, []Effect{
		StopCountdown{},
		Teardown{},
		Notify{Notice: NoticeStarting},
		ScheduleSettle{Token: next.Token(), Delay: cfg.SettleDelay},
	}
}

func closeSession(s Snapshot) (Snapshot, []Effect) {
	next := Snapshot{
		Session: s.Session + 1,
		Request: s.Request + 1,
		State:   StateClosed,
	}
	effects := []Effect{StopCountdown{}, Teardown{}}
	if s.Fullscreen {
		effects = append(effects, SetFullscreen{On: false})
	}
	return next, append(effects, Notify{Notice: NoticeClosed})
}

func retry(s Snapshot) (Snapshot, []Effect) {
	if !s.IsOpen() {
		return s, nil
	}
	s.Request++
	s.RetryCount = 0
	s.Remaining = 0
	s.LastError = ""
	s.State = StateLoading
	return s, []Effect{
		StopCountdown{},
		Teardown{},
		Attach{Token: s.Token(), URL: s.Channel.URL()},
		Notify{Notice: NoticeLoading},
	}
}

func playing(s Snapshot) (Snapshot, []Effect) {
	switch s.State {
	case StateLoading, StateBuffering, StateStarting:
		s.State = StatePlaying
		return s, []Effect{Notify{Notice: NoticePlaying}}
	case StateAutoSkipping:
		// Recovered before the countdown expired.
		s.State = StatePlaying
		s.Remaining = 0
		s.LastError = ""
		return s, []Effect{StopCountdown{}, Notify{Notice: NoticePlaying}}
	case StateError:
		s.State = StatePlaying
		s.LastError = ""
		return s, []Effect{Notify{Notice: NoticePlaying}}
	}
	return s, nil
}

func failed(s Snapshot, e EngineFailed, cfg Config) (Snapshot, []Effect) {
	switch s.State {
	case StateLoading, StatePlaying, StateBuffering:
	default:
		// Already failed or not yet attached.
		return s, nil
	}

	if e.Err != nil {
		s.LastError = e.Err.Error()
	}

	switch e.Kind {
	case ErrorNetwork:
		if s.RetryCount < cfg.MaxRetries {
			s.RetryCount++
			s.State = StateLoading
			return s, []Effect{Reload{Token: s.Token()}, Notify{Notice: NoticeLoading}}
		}
		return enterError(s, cfg)
	case ErrorDecode:
		return s, []Effect{RecoverMedia{Token: s.Token()}}
	default:
		return enterError(s, cfg)
	}
}

func enterError(s Snapshot, cfg Config) (Snapshot, []Effect) {
	s.State = StateError
	effects := []Effect{MarkBroken{URL: s.Channel.URL()}}
	if cfg.AutoSkipTicks > 0 {
		s.State = StateAutoSkipping
		s.Remaining = cfg.AutoSkipTicks
		effects = append(effects, StartCountdown{Token: s.Token(), Interval: cfg.TickInterval})
	}
	return s, append(effects, Notify{Notice: NoticeError})
}
