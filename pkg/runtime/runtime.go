package runtime

import (
	"context"
	"errors"
	"io"
	"time"
)

var (
	// ErrNotFound is returned when the engine has no container by that name
	ErrNotFound = errors.New("container not found")

	// ErrConflict is returned when a container name is already taken.
	// Callers may treat it as success-after-inspect since names are
	// deterministic per user.
	ErrConflict = errors.New("container name already in use")
)

// ContainerSpec describes everything passed to the engine on create
type ContainerSpec struct {
	Image    string
	Name     string
	Hostname string
	Network  string
	// Binds maps host paths to container paths
	Binds map[string]string

	CPUQuota    int64 // µs per period
	CPUPeriod   int64 // µs
	MemoryBytes int64
	PidsLimit   int64

	Env     map[string]string
	Labels  map[string]string
	Runtime string // engine runtime name, e.g. a secure-container runtime
}

// ContainerState is the subset of inspect output the control plane reads
type ContainerState struct {
	ID        string
	Status    string // engine status: created, running, exited, ...
	Running   bool
	IPAddress string
}

// ExecOptions configures a command run inside a container
type ExecOptions struct {
	Cmd   []string
	User  string
	Env   []string
	TTY   bool
	Stdin bool

	// Input, when set, is written to the process stdin and the write
	// side is closed. Only honored by unary Exec.
	Input []byte
}

// ExecResult is the outcome of a unary exec
type ExecResult struct {
	Stdout   []byte
	Stderr   []byte
	ExitCode int
}

// Stream is a duplex byte channel attached to an in-container process.
// Used only by the terminal.
type Stream interface {
	io.ReadWriteCloser

	// Resize adjusts the PTY of the attached process
	Resize(ctx context.Context, rows, cols uint) error
}

// Runtime is the capability boundary over the container engine. It is
// the only component permitted to talk to the engine; everything else
// is written against this interface so tests can substitute a fake.
type Runtime interface {
	// Create creates a named container. ErrConflict means the name
	// exists already.
	Create(ctx context.Context, spec *ContainerSpec) (id string, err error)

	Start(ctx context.Context, name string) error
	Stop(ctx context.Context, name string, grace time.Duration) error
	Remove(ctx context.Context, name string) error
	Inspect(ctx context.Context, name string) (*ContainerState, error)

	// Logs returns the last tail lines of container output
	Logs(ctx context.Context, name string, tail int) (string, error)

	// Exec runs argv to completion inside the container
	Exec(ctx context.Context, name string, opts ExecOptions) (*ExecResult, error)

	// ExecStream opens a duplex channel to a process inside the
	// container, with PTY resize when opts.TTY is set
	ExecStream(ctx context.Context, name string, opts ExecOptions) (Stream, error)

	// Ping verifies the engine is reachable
	Ping(ctx context.Context) error
}
