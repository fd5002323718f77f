package terminal

import (
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aisu-run/aisu-core/pkg/runtime"
)

const testUser = "11111111-2222-3333-4444-555555555555"

// fakeStream is an in-memory duplex exec
type fakeStream struct {
	reads   io.Reader
	written []byte
	rows    uint
	cols    uint
	closed  int
}

func (f *fakeStream) Read(p []byte) (int, error) {
	if f.reads == nil {
		return 0, io.EOF
	}
	return f.reads.Read(p)
}

func (f *fakeStream) Write(p []byte) (int, error) {
	f.written = append(f.written, p...)
	return len(p), nil
}

func (f *fakeStream) Resize(_ context.Context, rows, cols uint) error {
	f.rows, f.cols = rows, cols
	return nil
}

func (f *fakeStream) Close() error {
	f.closed++
	return nil
}

type fakeRuntime struct {
	runtime.Runtime

	execs   []runtime.ExecOptions
	streams []runtime.ExecOptions
	stream  *fakeStream

	spawnExit int
}

func (f *fakeRuntime) Exec(_ context.Context, _ string, opts runtime.ExecOptions) (*runtime.ExecResult, error) {
	f.execs = append(f.execs, opts)
	if len(opts.Cmd) > 0 && opts.Cmd[0] == "screen" && contains(opts.Cmd, "-dmS") {
		return &runtime.ExecResult{ExitCode: f.spawnExit}, nil
	}
	return &runtime.ExecResult{}, nil
}

func (f *fakeRuntime) ExecStream(_ context.Context, _ string, opts runtime.ExecOptions) (runtime.Stream, error) {
	f.streams = append(f.streams, opts)
	return f.stream, nil
}

func contains(args []string, want string) bool {
	for _, a := range args {
		if a == want {
			return true
		}
	}
	return false
}

func newTestSession(t *testing.T) (*Session, *fakeRuntime) {
	t.Helper()
	rt := &fakeRuntime{stream: &fakeStream{}}
	s, err := NewSession(context.Background(), rt, testUser)
	require.NoError(t, err)
	return s, rt
}

func TestNewSessionSpawnsDetachedMultiplexer(t *testing.T) {
	s, rt := newTestSession(t)

	require.Len(t, rt.execs, 2)

	// config is delivered over stdin
	assert.Equal(t, []string{"tee", screenrcPath}, rt.execs[0].Cmd)
	assert.Equal(t, []byte(screenrc), rt.execs[0].Input)
	assert.Equal(t, "aisu", rt.execs[0].User)

	screenName := "term_" + s.ID()[:8]
	assert.Equal(t, []string{"screen", "-c", screenrcPath, "-dmS", screenName}, rt.execs[1].Cmd)

	require.Len(t, rt.streams, 1)
	attach := rt.streams[0]
	assert.Equal(t, []string{"screen", "-c", screenrcPath, "-r", screenName}, attach.Cmd)
	assert.True(t, attach.TTY)
	assert.True(t, attach.Stdin)
	assert.Contains(t, attach.Env, "TERM=xterm-256color")
}

func TestNewSessionFatalOnSpawnFailure(t *testing.T) {
	rt := &fakeRuntime{stream: &fakeStream{}, spawnExit: 1}

	_, err := NewSession(context.Background(), rt, testUser)
	assert.Error(t, err)
	assert.Empty(t, rt.streams)
}

func TestWriteAndResizePassThrough(t *testing.T) {
	s, rt := newTestSession(t)

	_, err := s.Write([]byte("ls -la\n"))
	require.NoError(t, err)
	assert.Equal(t, []byte("ls -la\n"), rt.stream.written)

	require.NoError(t, s.Resize(context.Background(), 40, 120))
	assert.Equal(t, uint(40), rt.stream.rows)
	assert.Equal(t, uint(120), rt.stream.cols)
}

func TestClosePreservesMultiplexer(t *testing.T) {
	s, rt := newTestSession(t)

	require.NoError(t, s.Close())
	require.NoError(t, s.Close()) // idempotent

	assert.Equal(t, 1, rt.stream.closed)

	// no quit command was issued
	for _, exec := range rt.execs {
		assert.False(t, contains(exec.Cmd, "quit"))
	}
}

func TestKillMultiplexer(t *testing.T) {
	s, rt := newTestSession(t)

	require.NoError(t, s.KillMultiplexer(context.Background()))

	last := rt.execs[len(rt.execs)-1]
	assert.Equal(t, []string{"screen", "-S", "term_" + s.ID()[:8], "-X", "quit"}, last.Cmd)
}
