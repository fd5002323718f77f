package runtime

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	"github.com/docker/docker/errdefs"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/rs/zerolog"

	"github.com/aisu-run/aisu-core/pkg/log"
)

// DockerRuntime implements Runtime against the Docker Engine API
type DockerRuntime struct {
	cli    *client.Client
	logger zerolog.Logger
}

// NewDockerRuntime connects to the engine. An empty host uses the
// environment defaults (DOCKER_HOST or the local socket).
func NewDockerRuntime(host string) (*DockerRuntime, error) {
	opts := []client.Opt{client.FromEnv, client.WithAPIVersionNegotiation()}
	if host != "" {
		opts = append(opts, client.WithHost(host))
	}

	cli, err := client.NewClientWithOpts(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create docker client: %w", err)
	}
	return &DockerRuntime{cli: cli, logger: log.WithComponent("runtime")}, nil
}

// Close releases the underlying HTTP client
func (r *DockerRuntime) Close() error {
	return r.cli.Close()
}

func (r *DockerRuntime) Ping(ctx context.Context) error {
	if _, err := r.cli.Ping(ctx); err != nil {
		return fmt.Errorf("docker engine unreachable: %w", err)
	}
	return nil
}

// buildCreateConfig translates a ContainerSpec into engine config objects
func buildCreateConfig(spec *ContainerSpec) (*container.Config, *container.HostConfig, *network.NetworkingConfig) {
	env := make([]string, 0, len(spec.Env))
	for k, v := range spec.Env {
		env = append(env, k+"="+v)
	}

	binds := make([]string, 0, len(spec.Binds))
	for host, cont := range spec.Binds {
		binds = append(binds, host+":"+cont)
	}

	cfg := &container.Config{
		Image:    spec.Image,
		Hostname: spec.Hostname,
		Env:      env,
		Labels:   spec.Labels,
	}

	var pidsLimit *int64
	if spec.PidsLimit > 0 {
		limit := spec.PidsLimit
		pidsLimit = &limit
	}

	hostCfg := &container.HostConfig{
		Binds:   binds,
		Runtime: spec.Runtime,
		Resources: container.Resources{
			CPUQuota:  spec.CPUQuota,
			CPUPeriod: spec.CPUPeriod,
			Memory:    spec.MemoryBytes,
			PidsLimit: pidsLimit,
		},
		RestartPolicy: container.RestartPolicy{Name: container.RestartPolicyUnlessStopped},
	}

	var netCfg *network.NetworkingConfig
	if spec.Network != "" {
		hostCfg.NetworkMode = container.NetworkMode(spec.Network)
		netCfg = &network.NetworkingConfig{
			EndpointsConfig: map[string]*network.EndpointSettings{
				spec.Network: {},
			},
		}
	}

	return cfg, hostCfg, netCfg
}

func (r *DockerRuntime) Create(ctx context.Context, spec *ContainerSpec) (string, error) {
	cfg, hostCfg, netCfg := buildCreateConfig(spec)

	resp, err := r.cli.ContainerCreate(ctx, cfg, hostCfg, netCfg, nil, spec.Name)
	if err != nil {
		if errdefs.IsConflict(err) {
			return "", fmt.Errorf("container %s: %w", spec.Name, ErrConflict)
		}
		return "", fmt.Errorf("failed to create container %s: %w", spec.Name, err)
	}

	if err := r.cli.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		return resp.ID, fmt.Errorf("failed to start container %s: %w", spec.Name, err)
	}

	r.logger.Info().
		Str("container", spec.Name).
		Str("id", resp.ID).
		Msg("Container created")
	return resp.ID, nil
}

func (r *DockerRuntime) Start(ctx context.Context, name string) error {
	if err := r.cli.ContainerStart(ctx, name, container.StartOptions{}); err != nil {
		if errdefs.IsNotFound(err) {
			return fmt.Errorf("container %s: %w", name, ErrNotFound)
		}
		return fmt.Errorf("failed to start container %s: %w", name, err)
	}
	return nil
}

func (r *DockerRuntime) Stop(ctx context.Context, name string, grace time.Duration) error {
	seconds := int(grace.Seconds())
	err := r.cli.ContainerStop(ctx, name, container.StopOptions{Timeout: &seconds})
	if err != nil {
		if errdefs.IsNotFound(err) {
			return fmt.Errorf("container %s: %w", name, ErrNotFound)
		}
		return fmt.Errorf("failed to stop container %s: %w", name, err)
	}
	return nil
}

func (r *DockerRuntime) Remove(ctx context.Context, name string) error {
	err := r.cli.ContainerRemove(ctx, name, container.RemoveOptions{Force: true})
	if err != nil {
		if errdefs.IsNotFound(err) {
			return fmt.Errorf("container %s: %w", name, ErrNotFound)
		}
		return fmt.Errorf("failed to remove container %s: %w", name, err)
	}
	return nil
}

func (r *DockerRuntime) Inspect(ctx context.Context, name string) (*ContainerState, error) {
	info, err := r.cli.ContainerInspect(ctx, name)
	if err != nil {
		if errdefs.IsNotFound(err) {
			return nil, fmt.Errorf("container %s: %w", name, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to inspect container %s: %w", name, err)
	}

	state := &ContainerState{ID: info.ID}
	if info.State != nil {
		state.Status = info.State.Status
		state.Running = info.State.Running
	}
	if info.NetworkSettings != nil {
		// prefer a user-defined network address, fall back to the default
		for _, endpoint := range info.NetworkSettings.Networks {
			if endpoint.IPAddress != "" {
				state.IPAddress = endpoint.IPAddress
				break
			}
		}
		if state.IPAddress == "" {
			state.IPAddress = info.NetworkSettings.IPAddress
		}
	}
	return state, nil
}

func (r *DockerRuntime) Logs(ctx context.Context, name string, tail int) (string, error) {
	rc, err := r.cli.ContainerLogs(ctx, name, container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
		Tail:       strconv.Itoa(tail),
	})
	if err != nil {
		return "", fmt.Errorf("failed to read logs for %s: %w", name, err)
	}
	defer rc.Close()

	var stdout, stderr bytes.Buffer
	if _, err := stdcopy.StdCopy(&stdout, &stderr, rc); err != nil {
		return "", fmt.Errorf("failed to demux logs for %s: %w", name, err)
	}
	out := stdout.String()
	if out == "" {
		out = stderr.String()
	}
	return out, nil
}

func (r *DockerRuntime) Exec(ctx context.Context, name string, opts ExecOptions) (*ExecResult, error) {
	created, err := r.cli.ContainerExecCreate(ctx, name, container.ExecOptions{
		Cmd:          opts.Cmd,
		User:         opts.User,
		Env:          opts.Env,
		AttachStdin:  len(opts.Input) > 0,
		AttachStdout: true,
		AttachStderr: true,
	})
	if err != nil {
		if errdefs.IsNotFound(err) {
			return nil, fmt.Errorf("container %s: %w", name, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to create exec in %s: %w", name, err)
	}

	attach, err := r.cli.ContainerExecAttach(ctx, created.ID, container.ExecAttachOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to attach exec in %s: %w", name, err)
	}
	defer attach.Close()

	if len(opts.Input) > 0 {
		if _, err := attach.Conn.Write(opts.Input); err != nil {
			return nil, fmt.Errorf("failed to write exec stdin in %s: %w", name, err)
		}
		if err := attach.CloseWrite(); err != nil {
			return nil, fmt.Errorf("failed to close exec stdin in %s: %w", name, err)
		}
	}

	var stdout, stderr bytes.Buffer
	if _, err := stdcopy.StdCopy(&stdout, &stderr, attach.Reader); err != nil {
		return nil, fmt.Errorf("failed to read exec output from %s: %w", name, err)
	}

	inspect, err := r.cli.ContainerExecInspect(ctx, created.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to inspect exec in %s: %w", name, err)
	}

	return &ExecResult{
		Stdout:   stdout.Bytes(),
		Stderr:   stderr.Bytes(),
		ExitCode: inspect.ExitCode,
	}, nil
}

func (r *DockerRuntime) ExecStream(ctx context.Context, name string, opts ExecOptions) (Stream, error) {
	created, err := r.cli.ContainerExecCreate(ctx, name, container.ExecOptions{
		Cmd:          opts.Cmd,
		User:         opts.User,
		Env:          opts.Env,
		Tty:          opts.TTY,
		AttachStdin:  opts.Stdin,
		AttachStdout: true,
		AttachStderr: true,
	})
	if err != nil {
		if errdefs.IsNotFound(err) {
			return nil, fmt.Errorf("container %s: %w", name, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to create exec in %s: %w", name, err)
	}

	attach, err := r.cli.ContainerExecAttach(ctx, created.ID, container.ExecAttachOptions{Tty: opts.TTY})
	if err != nil {
		return nil, fmt.Errorf("failed to attach exec in %s: %w", name, err)
	}

	return &dockerStream{cli: r.cli, execID: created.ID, resp: attach}, nil
}

// dockerStream wraps a hijacked exec connection as a Stream
type dockerStream struct {
	cli    *client.Client
	execID string
	resp   types.HijackedResponse
}

func (s *dockerStream) Read(p []byte) (int, error) {
	return s.resp.Reader.Read(p)
}

func (s *dockerStream) Write(p []byte) (int, error) {
	return s.resp.Conn.Write(p)
}

func (s *dockerStream) Resize(ctx context.Context, rows, cols uint) error {
	err := s.cli.ContainerExecResize(ctx, s.execID, container.ResizeOptions{
		Height: rows,
		Width:  cols,
	})
	if err != nil {
		return fmt.Errorf("failed to resize exec pty: %w", err)
	}
	return nil
}

func (s *dockerStream) Close() error {
	s.resp.Close()
	return nil
}

var _ io.ReadWriteCloser = (*dockerStream)(nil)
