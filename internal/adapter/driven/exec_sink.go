package driven

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"

	port "github.com/alorle/gazibo/internal/port/driven"
)

// fullscreenFlags lists the fullscreen switch of known players, keyed by
// lower-cased executable name without extension.
var fullscreenFlags = map[string]string{
	"mpv":       "--fs",
	"celluloid": "--mpv-fs",
	"vlc":       "--fullscreen",
	"cvlc":      "--fullscreen",
	"ffplay":    "-fs",
	"mplayer":   "-fs",
}

type playerProcess struct {
	cmd  *exec.Cmd
	done chan struct{}
}

// ExecSink implements the VideoSink port by running an external player process
// with the stream URL as its last argument. Toggling fullscreen while a stream is
// open restarts the player with the flag added or removed.
type ExecSink struct {
	command        string
	args           []string
	fullscreenFlag string
	logger         *slog.Logger

	mu         sync.Mutex
	fullscreen bool
	url        string
	proc       *playerProcess
}

// NewExecSink creates a sink launching command with args. The fullscreen flag is
// detected from the command name; unknown players cannot switch to fullscreen.
func NewExecSink(command string, args []string, logger *slog.Logger) *ExecSink {
	base := strings.ToLower(filepath.Base(command))
	base = strings.TrimSuffix(base, filepath.Ext(base))

	flag, ok := fullscreenFlags[base]
	if !ok {
		logger.Warn("unknown player, fullscreen toggling disabled", "command", command)
	}

	return &ExecSink{
		command:        command,
		args:           append([]string(nil), args...),
		fullscreenFlag: flag,
		logger:         logger,
	}
}

// Open stops any running player and starts a new one for url.
func (s *ExecSink) Open(_ context.Context, url string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stop()
	s.url = url
	return s.start()
}

// SetFullscreen records the flag and restarts an open player to apply it.
func (s *ExecSink) SetFullscreen(on bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.fullscreen == on {
		return nil
	}
	s.fullscreen = on
	if s.proc == nil || s.fullscreenFlag == "" {
		return nil
	}
	s.stop()
	return s.start()
}

// Close stops the player if one is running.
func (s *ExecSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stop()
	s.url = ""
	return nil
}

// Running reports whether a player process is alive.
func (s *ExecSink) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.proc == nil {
		return false
	}
	select {
	case <-s.proc.done:
		return false
	default:
		return true
	}
}

func (s *ExecSink) commandLine() []string {
	args := append([]string(nil), s.args...)
	if s.fullscreen && s.fullscreenFlag != "" {
		args = append(args, s.fullscreenFlag)
	}
	return append(args, s.url)
}

func (s *ExecSink) start() error {
	args := s.commandLine()
	cmd := exec.Command(s.command, args...)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start player %s: %w", s.command, err)
	}

	proc := &playerProcess{cmd: cmd, done: make(chan struct{})}
	go func() {
		err := cmd.Wait()
		s.logger.Debug("player exited", "command", s.command, "error", err)
		close(proc.done)
	}()
	s.proc = proc

	s.logger.Info("launched player", "command", s.command, "args", args)
	return nil
}

func (s *ExecSink) stop() {
	if s.proc == nil {
		return
	}
	_ = s.proc.cmd.Process.Kill()
	<-s.proc.done
	s.proc = nil
}

// NoopSink is the VideoSink used when no player command is configured. Streams
// are still loaded and health-checked, but nothing is rendered.
type NoopSink struct {
	logger *slog.Logger

	mu         sync.Mutex
	url        string
	fullscreen bool
}

func NewNoopSink(logger *slog.Logger) *NoopSink {
	return &NoopSink{logger: logger}
}

func (s *NoopSink) Open(_ context.Context, url string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.url = url
	s.logger.Debug("video sink opened", "url", url, "fullscreen", s.fullscreen)
	return nil
}

func (s *NoopSink) SetFullscreen(on bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fullscreen = on
	return nil
}

func (s *NoopSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.url = ""
	return nil
}

// Ensure both sinks implement the driven.VideoSink interface
var (
	_ port.VideoSink = (*ExecSink)(nil)
	_ port.VideoSink = (*NoopSink)(nil)
)
