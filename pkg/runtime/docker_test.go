package runtime

import (
	"testing"

	"github.com/docker/docker/api/types/container"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildCreateConfig(t *testing.T) {
	spec := &ContainerSpec{
		Image:    "aisu-user:latest",
		Name:     "aisu_u1",
		Hostname: "aisu-u1",
		Network:  "aisu-net",
		Binds:    map[string]string{"/data/users/u1": "/home/aisu/data"},
		CPUQuota: 200000, CPUPeriod: 100000,
		MemoryBytes: 2 << 30,
		PidsLimit:   64,
		Labels:      map[string]string{"aisu.managed": "true"},
		Runtime:     "sysbox-runc",
	}

	cfg, hostCfg, netCfg := buildCreateConfig(spec)

	assert.Equal(t, "aisu-user:latest", cfg.Image)
	assert.Equal(t, "aisu-u1", cfg.Hostname)
	assert.Equal(t, "true", cfg.Labels["aisu.managed"])

	assert.Equal(t, []string{"/data/users/u1:/home/aisu/data"}, hostCfg.Binds)
	assert.Equal(t, int64(200000), hostCfg.Resources.CPUQuota)
	assert.Equal(t, int64(100000), hostCfg.Resources.CPUPeriod)
	assert.Equal(t, int64(2<<30), hostCfg.Resources.Memory)
	require.NotNil(t, hostCfg.Resources.PidsLimit)
	assert.Equal(t, int64(64), *hostCfg.Resources.PidsLimit)
	assert.Equal(t, "sysbox-runc", hostCfg.Runtime)
	assert.Equal(t, container.NetworkMode("aisu-net"), hostCfg.NetworkMode)

	require.NotNil(t, netCfg)
	assert.Contains(t, netCfg.EndpointsConfig, "aisu-net")
}

func TestBuildCreateConfigNoLimits(t *testing.T) {
	cfg, hostCfg, netCfg := buildCreateConfig(&ContainerSpec{Image: "img", Name: "n"})

	assert.Equal(t, "img", cfg.Image)
	assert.Nil(t, hostCfg.Resources.PidsLimit, "zero pids cap must mean unlimited, not zero")
	assert.Nil(t, netCfg)
}
