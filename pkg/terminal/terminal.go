package terminal

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/aisu-run/aisu-core/pkg/apperr"
	"github.com/aisu-run/aisu-core/pkg/log"
	"github.com/aisu-run/aisu-core/pkg/metrics"
	"github.com/aisu-run/aisu-core/pkg/runtime"
	"github.com/aisu-run/aisu-core/pkg/types"
)

const (
	// screenUser is the unprivileged in-container account the shell
	// runs as
	screenUser = "aisu"

	// screenrcPath is where the multiplexer config is written inside
	// the container
	screenrcPath = "/tmp/.aisu_screenrc"
)

// screenrc disables the escape key (the browser owns all key input),
// keeps sessions alive on detach, and matches the PTY to a 256-color
// terminal.
const screenrc = `escape ""
vbell off
autodetach on
startup_message off
defscrollback 10000
term xterm-256color
`

// Session binds a duplex exec to a detached in-container multiplexer
// session. The attached exec is ephemeral; the multiplexer survives
// transport disconnects, so the shell state is preserved across
// reconnects.
type Session struct {
	id         string
	userID     string
	screenName string

	rt     runtime.Runtime
	stream runtime.Stream
	logger zerolog.Logger

	closeOnce sync.Once
	closeErr  error
}

// NewSession spawns (or re-enters) a detached multiplexer session in
// the user's container and attaches a TTY exec to it.
func NewSession(ctx context.Context, rt runtime.Runtime, userID string) (*Session, error) {
	id := uuid.New().String()
	s := &Session{
		id:         id,
		userID:     userID,
		screenName: "term_" + id[:8],
		rt:         rt,
		logger:     log.WithSessionID(id),
	}
	containerName := types.ContainerName(userID)

	// the config travels over stdin, never interpolated into a shell
	result, err := rt.Exec(ctx, containerName, runtime.ExecOptions{
		Cmd:   []string{"tee", screenrcPath},
		User:  screenUser,
		Input: []byte(screenrc),
	})
	if err != nil {
		return nil, apperr.Wrap(apperr.Unavailable, "Container is not reachable", err)
	}
	if result.ExitCode != 0 {
		return nil, apperr.New(apperr.Internal, "Failed to write terminal configuration")
	}

	result, err = rt.Exec(ctx, containerName, runtime.ExecOptions{
		Cmd:  []string{"screen", "-c", screenrcPath, "-dmS", s.screenName},
		User: screenUser,
	})
	if err != nil {
		return nil, apperr.Wrap(apperr.Unavailable, "Container is not reachable", err)
	}
	if result.ExitCode != 0 {
		s.logger.Error().
			Int("exit_code", result.ExitCode).
			Bytes("stderr", result.Stderr).
			Msg("Failed to spawn multiplexer session")
		return nil, apperr.New(apperr.Internal, "Failed to start terminal session")
	}

	stream, err := rt.ExecStream(ctx, containerName, runtime.ExecOptions{
		Cmd:   []string{"screen", "-c", screenrcPath, "-r", s.screenName},
		User:  screenUser,
		Env:   []string{"TERM=xterm-256color"},
		TTY:   true,
		Stdin: true,
	})
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "Failed to attach terminal session", err)
	}
	s.stream = stream

	metrics.TerminalSessionsTotal.Inc()
	metrics.TerminalSessionsActive.Inc()
	s.logger.Info().Str("user_id", userID).Str("screen", s.screenName).Msg("Terminal session started")
	return s, nil
}

// ID returns the session identifier sent to the client
func (s *Session) ID() string {
	return s.id
}

// Read reads container output. Returns io.EOF after the exec closes.
func (s *Session) Read(p []byte) (int, error) {
	return s.stream.Read(p)
}

// Write sends user input to the shell
func (s *Session) Write(p []byte) (int, error) {
	return s.stream.Write(p)
}

// Resize adjusts the attached exec's PTY; the multiplexer adapts on
// its own.
func (s *Session) Resize(ctx context.Context, rows, cols uint) error {
	return s.stream.Resize(ctx, rows, cols)
}

// Close detaches from the multiplexer by closing the exec socket. The
// multiplexer session keeps running so a later attach finds the shell
// where it was left. Idempotent.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.stream.Close()
		metrics.TerminalSessionsActive.Dec()
		s.logger.Info().Str("screen", s.screenName).Msg("Terminal session detached")
	})
	return s.closeErr
}

// KillMultiplexer terminates the in-container multiplexer session.
// Called only when the user deliberately closes their terminal, never
// on transport disconnect.
func (s *Session) KillMultiplexer(ctx context.Context) error {
	result, err := s.rt.Exec(ctx, types.ContainerName(s.userID), runtime.ExecOptions{
		Cmd:  []string{"screen", "-S", s.screenName, "-X", "quit"},
		User: screenUser,
	})
	if err != nil {
		return apperr.Wrap(apperr.Unavailable, "Container is not reachable", err)
	}
	if result.ExitCode != 0 {
		return apperr.New(apperr.Internal, "Failed to terminate multiplexer session")
	}
	return nil
}
