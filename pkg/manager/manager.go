package manager

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	units "github.com/docker/go-units"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/aisu-run/aisu-core/pkg/apperr"
	"github.com/aisu-run/aisu-core/pkg/config"
	"github.com/aisu-run/aisu-core/pkg/events"
	"github.com/aisu-run/aisu-core/pkg/log"
	"github.com/aisu-run/aisu-core/pkg/metrics"
	"github.com/aisu-run/aisu-core/pkg/runtime"
	"github.com/aisu-run/aisu-core/pkg/storage"
	"github.com/aisu-run/aisu-core/pkg/types"
)

// homeDirs are created inside the container home on first provision.
// The desktop shell expects exactly this set at the VFS root.
var homeDirs = []string{
	"Desktop", "Documents", "Downloads", "Pictures", "Music", "Videos", ".Trash",
}

// hostDirs are created under the per-user host data directory, which is
// bind-mounted into the container.
var hostDirs = []string{
	"Desktop", "Documents", "Downloads", "Pictures", "Music", "Videos", ".aisu", ".trash",
}

// containerHome is the unprivileged account's home inside the image
const containerHome = "/home/aisu"

// containerUser is the unprivileged account everything runs as
const containerUser = "aisu"

// StartResult is the outcome of a Start call
type StartResult struct {
	Record *types.ContainerRecord
	// Provisioned is set when this call created (or re-created) the
	// container rather than starting an existing one
	Provisioned bool
	Message     string
}

// Manager owns the per-user container lifecycle state machine
type Manager struct {
	store  storage.Store
	rt     runtime.Runtime
	broker *events.Broker
	cfg    config.ContainerConfig
	logger zerolog.Logger
}

// NewManager creates a container lifecycle manager
func NewManager(store storage.Store, rt runtime.Runtime, broker *events.Broker, cfg config.ContainerConfig) *Manager {
	return &Manager{
		store:  store,
		rt:     rt,
		broker: broker,
		cfg:    cfg,
		logger: log.WithComponent("manager"),
	}
}

// ramLimitBytes computes the memory cap: cpu cores times the configured
// RAM-per-CPU string ("1g" and friends).
func (m *Manager) ramLimitBytes(cpu int) (int64, error) {
	perCPU, err := units.RAMInBytes(m.cfg.RAMPerCPU)
	if err != nil {
		return 0, fmt.Errorf("invalid ram_per_cpu %q: %w", m.cfg.RAMPerCPU, err)
	}
	return int64(cpu) * perCPU, nil
}

func (m *Manager) hostDataDir(userID string) string {
	return filepath.Join(m.cfg.UserDataBasePath, userID)
}

func (m *Manager) ensureHostDirs(userID string) error {
	base := m.hostDataDir(userID)
	for _, dir := range hostDirs {
		if err := os.MkdirAll(filepath.Join(base, dir), 0755); err != nil {
			return fmt.Errorf("failed to create user data dir: %w", err)
		}
	}
	return nil
}

func (m *Manager) ensureHomeDirs(ctx context.Context, containerName string) {
	args := []string{"mkdir", "-p"}
	for _, dir := range homeDirs {
		args = append(args, containerHome+"/"+dir)
	}
	result, err := m.rt.Exec(ctx, containerName, runtime.ExecOptions{
		Cmd:  args,
		User: containerUser,
	})
	if err != nil || result.ExitCode != 0 {
		// the image normally ships these; a miss only degrades the
		// first desktop render
		m.logger.Warn().Err(err).Str("container", containerName).Msg("Failed to create home directories")
	}
}

func (m *Manager) recordEvent(userID string, eventType types.ContainerEventType, details string) {
	event := &types.ContainerEvent{
		ID:        uuid.New().String(),
		UserID:    userID,
		EventType: eventType,
		Details:   details,
		CreatedAt: time.Now().UTC(),
	}
	if err := m.store.AppendContainerEvent(event); err != nil {
		m.logger.Error().Err(err).Str("user_id", userID).Msg("Failed to append container event")
	}

	m.broker.Publish(&events.Event{
		ID:      event.ID,
		Type:    events.EventType("container." + string(eventType)),
		UserID:  userID,
		Message: details,
	})
}

func (m *Manager) buildSpec(user *types.User, ramBytes int64) *runtime.ContainerSpec {
	return &runtime.ContainerSpec{
		Image:    m.cfg.Image,
		Name:     types.ContainerName(user.ID),
		Hostname: types.ContainerHostname(user.ID),
		Network:  m.cfg.Network,
		Binds: map[string]string{
			m.hostDataDir(user.ID): containerHome + "/data",
		},
		CPUQuota:    int64(user.CPU) * m.cfg.CPUPeriodUS,
		CPUPeriod:   m.cfg.CPUPeriodUS,
		MemoryBytes: ramBytes,
		PidsLimit:   m.cfg.PidsLimit,
		Labels: map[string]string{
			"aisu.user_id": user.ID,
			"aisu.managed": "true",
		},
		Runtime: m.cfg.Runtime,
	}
}

// Provision creates the host directory layout, the container record,
// and the container itself. Every transition is persisted before the
// next engine call so concurrent requests converge on a legal state.
func (m *Manager) Provision(ctx context.Context, user *types.User) (*types.ContainerRecord, error) {
	if !m.cfg.Enabled {
		return nil, apperr.New(apperr.Unavailable, "Container support is disabled")
	}

	logger := m.logger.With().Str("user_id", user.ID).Logger()

	if err := m.ensureHostDirs(user.ID); err != nil {
		return nil, err
	}

	ramBytes, err := m.ramLimitBytes(user.CPU)
	if err != nil {
		return nil, err
	}

	name := types.ContainerName(user.ID)
	now := time.Now().UTC()
	record := &types.ContainerRecord{
		UserID:        user.ID,
		ContainerName: name,
		Status:        types.ContainerStatusCreating,
		CPULimit:      user.CPU,
		RAMLimitBytes: ramBytes,
		DiskLimitMB:   user.DiskMB,
		NetworkRate:   m.cfg.NetworkRate,
		CreatedAt:     now,
	}
	if err := m.store.UpsertContainer(record); err != nil {
		return nil, fmt.Errorf("failed to persist container record: %w", err)
	}
	m.recordEvent(user.ID, types.EventCreating, "")

	id, err := m.rt.Create(ctx, m.buildSpec(user, ramBytes))
	if err != nil && !errors.Is(err, runtime.ErrConflict) {
		record.Status = types.ContainerStatusError
		if uerr := m.store.UpsertContainer(record); uerr != nil {
			logger.Error().Err(uerr).Msg("Failed to persist error status")
		}
		m.recordEvent(user.ID, types.EventError, err.Error())
		metrics.ContainerProvisionsTotal.WithLabelValues("error").Inc()
		return nil, apperr.Wrap(apperr.Internal, "Failed to provision container", err)
	}
	// a name conflict means another request won the race; adopt the
	// existing container via inspect

	state, err := m.rt.Inspect(ctx, name)
	if err != nil {
		record.Status = types.ContainerStatusError
		if uerr := m.store.UpsertContainer(record); uerr != nil {
			logger.Error().Err(uerr).Msg("Failed to persist error status")
		}
		m.recordEvent(user.ID, types.EventError, err.Error())
		metrics.ContainerProvisionsTotal.WithLabelValues("error").Inc()
		return nil, apperr.Wrap(apperr.Internal, "Failed to provision container", err)
	}
	if id == "" {
		id = state.ID
	}

	if !state.Running {
		// adopted a container another request created but had not
		// started yet
		if err := m.rt.Start(ctx, name); err != nil {
			record.Status = types.ContainerStatusError
			if uerr := m.store.UpsertContainer(record); uerr != nil {
				logger.Error().Err(uerr).Msg("Failed to persist error status")
			}
			m.recordEvent(user.ID, types.EventError, err.Error())
			metrics.ContainerProvisionsTotal.WithLabelValues("error").Inc()
			return nil, apperr.Wrap(apperr.Internal, "Failed to provision container", err)
		}
		if refreshed, err := m.rt.Inspect(ctx, name); err == nil {
			state = refreshed
		}
	}

	m.ensureHomeDirs(ctx, name)

	started := time.Now().UTC()
	record.ContainerID = id
	record.IPAddress = state.IPAddress
	record.Status = types.ContainerStatusRunning
	record.StartedAt = &started
	if err := m.store.UpsertContainer(record); err != nil {
		return nil, fmt.Errorf("failed to persist container record: %w", err)
	}
	m.recordEvent(user.ID, types.EventCreated, "")
	metrics.ContainerProvisionsTotal.WithLabelValues("created").Inc()

	logger.Info().Str("container", name).Str("ip", state.IPAddress).Msg("Container provisioned")
	return record, nil
}

// Start ensures the user's container is running, provisioning it when
// it never existed or the engine lost it.
func (m *Manager) Start(ctx context.Context, user *types.User) (*StartResult, error) {
	if !m.cfg.Enabled {
		return nil, apperr.New(apperr.Unavailable, "Container support is disabled")
	}

	record, err := m.store.GetContainerByUser(user.ID)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("failed to load container record: %w", err)
		}
		record, err = m.Provision(ctx, user)
		if err != nil {
			return nil, err
		}
		return &StartResult{Record: record, Provisioned: true, Message: "provisioned"}, nil
	}

	name := record.ContainerName
	state, err := m.rt.Inspect(ctx, name)
	if err != nil {
		if errors.Is(err, runtime.ErrNotFound) {
			// engine lost the container; re-provision from scratch
			record, err = m.Provision(ctx, user)
			if err != nil {
				return nil, err
			}
			return &StartResult{Record: record, Provisioned: true, Message: "re-provisioned"}, nil
		}
		m.failRecord(record, err)
		return nil, apperr.Wrap(apperr.Unavailable, "Failed to start container", err)
	}

	if state.Running {
		if record.Status != types.ContainerStatusRunning {
			record.Status = types.ContainerStatusRunning
			record.IPAddress = state.IPAddress
			if err := m.store.UpsertContainer(record); err != nil {
				return nil, fmt.Errorf("failed to persist container record: %w", err)
			}
		}
		return &StartResult{Record: record, Message: "already running"}, nil
	}

	if err := m.rt.Start(ctx, name); err != nil {
		m.failRecord(record, err)
		return nil, apperr.Wrap(apperr.Internal, "Failed to start container", err)
	}

	state, err = m.rt.Inspect(ctx, name)
	if err != nil {
		m.failRecord(record, err)
		return nil, apperr.Wrap(apperr.Internal, "Failed to start container", err)
	}

	started := time.Now().UTC()
	record.Status = types.ContainerStatusRunning
	record.IPAddress = state.IPAddress
	record.StartedAt = &started
	if err := m.store.UpsertContainer(record); err != nil {
		return nil, fmt.Errorf("failed to persist container record: %w", err)
	}
	m.recordEvent(user.ID, types.EventStarted, "")

	m.logger.Info().Str("user_id", user.ID).Str("container", name).Msg("Container started")
	return &StartResult{Record: record, Message: "started"}, nil
}

func (m *Manager) failRecord(record *types.ContainerRecord, cause error) {
	record.Status = types.ContainerStatusError
	if err := m.store.UpsertContainer(record); err != nil {
		m.logger.Error().Err(err).Str("user_id", record.UserID).Msg("Failed to persist error status")
	}
	m.recordEvent(record.UserID, types.EventError, cause.Error())
}

// Stop stops the user's container with a SIGTERM grace period. Stopping
// a container that is absent or already stopped succeeds.
func (m *Manager) Stop(ctx context.Context, userID string, grace time.Duration) (*types.ContainerRecord, error) {
	record, err := m.store.GetContainerByUser(userID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, apperr.New(apperr.NotFound, "Container is not provisioned")
		}
		return nil, fmt.Errorf("failed to load container record: %w", err)
	}

	if err := m.rt.Stop(ctx, record.ContainerName, grace); err != nil && !errors.Is(err, runtime.ErrNotFound) {
		m.failRecord(record, err)
		return nil, apperr.Wrap(apperr.Internal, "Failed to stop container", err)
	}

	record.Status = types.ContainerStatusStopped
	if err := m.store.UpsertContainer(record); err != nil {
		return nil, fmt.Errorf("failed to persist container record: %w", err)
	}
	m.recordEvent(userID, types.EventStopped, "")

	m.logger.Info().Str("user_id", userID).Msg("Container stopped")
	return record, nil
}

// Restart is stop followed by start
func (m *Manager) Restart(ctx context.Context, user *types.User) (*StartResult, error) {
	if _, err := m.Stop(ctx, user.ID, 10*time.Second); err != nil && !apperr.Is(err, apperr.NotFound) {
		return nil, err
	}
	return m.Start(ctx, user)
}

// LiveStatus reconciles the persisted status with the engine's view and
// returns the authoritative value. Inspect failures (other than
// not-found) report unreachable without touching the record.
func (m *Manager) LiveStatus(ctx context.Context, userID string) (types.ContainerStatus, *types.ContainerRecord, error) {
	record, err := m.store.GetContainerByUser(userID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return "", nil, apperr.New(apperr.NotFound, "Container is not provisioned")
		}
		return "", nil, fmt.Errorf("failed to load container record: %w", err)
	}

	state, err := m.rt.Inspect(ctx, record.ContainerName)
	if err != nil {
		if errors.Is(err, runtime.ErrNotFound) {
			if record.Status != types.ContainerStatusRemoved {
				record.Status = types.ContainerStatusRemoved
				if uerr := m.store.UpsertContainer(record); uerr != nil {
					return "", nil, fmt.Errorf("failed to persist container record: %w", uerr)
				}
			}
			return types.ContainerStatusRemoved, record, nil
		}
		return types.ContainerStatusUnreachable, record, nil
	}

	live := statusFromEngine(state.Status)
	if live != record.Status {
		record.Status = live
		record.IPAddress = state.IPAddress
		if err := m.store.UpsertContainer(record); err != nil {
			return "", nil, fmt.Errorf("failed to persist container record: %w", err)
		}
	}
	return live, record, nil
}

// WaitRunning polls the engine until the container reports running or
// the timeout elapses. Used after (re)provisioning before attaching a
// terminal.
func (m *Manager) WaitRunning(ctx context.Context, userID string, timeout time.Duration) error {
	name := types.ContainerName(userID)
	deadline := time.Now().Add(timeout)

	for {
		state, err := m.rt.Inspect(ctx, name)
		if err == nil && state.Running {
			return nil
		}
		if time.Now().After(deadline) {
			return apperr.New(apperr.Unavailable, "Container did not become ready")
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(250 * time.Millisecond):
		}
	}
}

// Events returns the user's audit trail in chronological order
func (m *Manager) Events(userID string) ([]*types.ContainerEvent, error) {
	return m.store.ListContainerEvents(userID)
}

// Watch subscribes to live lifecycle events for one user. Events for
// other users are filtered out. The cancel func releases the
// subscription; the channel closes once it is called.
func (m *Manager) Watch(userID string) (<-chan *events.Event, func()) {
	sub := m.broker.Subscribe()
	out := make(chan *events.Event, cap(sub))

	go func() {
		defer close(out)
		for event := range sub {
			if event.UserID != userID {
				continue
			}
			select {
			case out <- event:
			default:
				// slow consumer, drop rather than stall the broker
			}
		}
	}()

	var once sync.Once
	cancel := func() {
		once.Do(func() { m.broker.Unsubscribe(sub) })
	}
	return out, cancel
}

// statusFromEngine maps an engine status string onto the persisted set
func statusFromEngine(status string) types.ContainerStatus {
	switch status {
	case "running":
		return types.ContainerStatusRunning
	case "created", "exited", "paused", "dead":
		return types.ContainerStatusStopped
	case "removing":
		return types.ContainerStatusRemoved
	default:
		return types.ContainerStatusStopped
	}
}
