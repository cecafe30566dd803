package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/cuemby/colony/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, 9, cfg.Fleet.Size)
	assert.Equal(t, "t2.micro", cfg.Fleet.InstanceType)
	assert.Equal(t, "WorkerProgram.jar", cfg.Fleet.WorkerKey)
	assert.Equal(t, "us-east-1", cfg.AWS.ComputeRegion)
	assert.Equal(t, "us-west-2", cfg.AWS.StorageRegion)
	assert.EqualValues(t, 10, cfg.Queues.WaitSeconds)
	assert.NoError(t, cfg.Validate())
}

func TestLoadMissingFile(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default().Fleet, cfg.Fleet)
}

func TestLoadOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := `
fleet:
  size: 3
  instanceType: t3.small
  watchInterval: 1m
storage:
  bucket: my-bucket
queues:
  waitSeconds: 5
  channels:
    - direction: manager-workers
      name: Jobs.fifo
log:
  level: debug
  json: true
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 3, cfg.Fleet.Size)
	assert.Equal(t, "t3.small", cfg.Fleet.InstanceType)
	assert.Equal(t, Duration(time.Minute), cfg.Fleet.WatchInterval)
	// Untouched fields keep their defaults
	assert.Equal(t, "ami-00e95a9222311e8ed", cfg.Fleet.ImageID)
	assert.Equal(t, "my-bucket", cfg.Storage.Bucket)
	assert.EqualValues(t, 5, cfg.Queues.WaitSeconds)
	assert.True(t, cfg.Log.JSON)

	topology, err := cfg.Topology()
	require.NoError(t, err)
	for _, desc := range topology {
		if desc.Direction == types.DirectionManagerToWorkers {
			assert.Equal(t, "Jobs.fifo", desc.Name)
			assert.Equal(t, "ManagerToWorkersGroup", desc.GroupID)
		}
	}
}

func TestLoadInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("fleet: [unclosed"), 0644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadRejectsZeroWait(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("queues:\n  waitSeconds: 0\n"), 0644))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "queues.waitSeconds")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{name: "zero fleet", mutate: func(c *Config) { c.Fleet.Size = 0 }},
		{name: "no image", mutate: func(c *Config) { c.Fleet.ImageID = "" }},
		{name: "no worker key", mutate: func(c *Config) { c.Fleet.WorkerKey = "" }},
		{name: "no bucket", mutate: func(c *Config) { c.Storage.Bucket = "" }},
		{name: "wait too long", mutate: func(c *Config) { c.Queues.WaitSeconds = 21 }},
		{name: "zero wait", mutate: func(c *Config) { c.Queues.WaitSeconds = 0 }},
		{name: "unknown direction", mutate: func(c *Config) {
			c.Queues.Channels = []ChannelConfig{{Direction: "sideways"}}
		}},
		{name: "non fifo name", mutate: func(c *Config) {
			c.Queues.Channels = []ChannelConfig{{Direction: "manager-local", Name: "Plain"}}
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg := Default()
	cfg.Fleet.Size = 4

	require.NoError(t, Save(cfg, path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 4, loaded.Fleet.Size)
	assert.Equal(t, Duration(30*time.Second), loaded.Fleet.WatchInterval)
}
