package manager

import (
	"context"
	"time"

	"github.com/aisu-run/aisu-core/pkg/metrics"
	"github.com/aisu-run/aisu-core/pkg/types"
)

// collectInterval is how often the container gauge is refreshed
const collectInterval = 15 * time.Second

// StartMetricsCollector refreshes the container status gauge from the
// persisted records until the context is cancelled.
func (m *Manager) StartMetricsCollector(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(collectInterval)
		defer ticker.Stop()

		m.collectMetrics()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.collectMetrics()
			}
		}
	}()
}

func (m *Manager) collectMetrics() {
	records, err := m.store.ListContainers()
	if err != nil {
		m.logger.Error().Err(err).Msg("Failed to list containers for metrics")
		return
	}

	counts := map[types.ContainerStatus]int{
		types.ContainerStatusCreating: 0,
		types.ContainerStatusRunning:  0,
		types.ContainerStatusStopped:  0,
		types.ContainerStatusError:    0,
		types.ContainerStatusRemoved:  0,
	}
	for _, record := range records {
		counts[record.Status]++
	}

	for status, count := range counts {
		metrics.ContainersTotal.WithLabelValues(string(status)).Set(float64(count))
	}
}
