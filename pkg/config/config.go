package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cuemby/colony/pkg/types"
	"gopkg.in/yaml.v3"
)

// Config is the complete colony configuration
type Config struct {
	AWS     AWSConfig     `yaml:"aws"`
	Fleet   FleetConfig   `yaml:"fleet"`
	Storage StorageConfig `yaml:"storage"`
	Queues  QueuesConfig  `yaml:"queues"`
	Log     LogConfig     `yaml:"log"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// AWSConfig selects regions for the external services.
// Compute runs in its own region; the object store and queues share one.
type AWSConfig struct {
	ComputeRegion string `yaml:"computeRegion"`
	StorageRegion string `yaml:"storageRegion"`
	Endpoint      string `yaml:"endpoint,omitempty"` // Override for local emulators
}

// FleetConfig sizes the worker pool and describes how workers are launched
type FleetConfig struct {
	Size            int      `yaml:"size"`
	ImageID         string   `yaml:"imageID"`
	InstanceType    string   `yaml:"instanceType"`
	InstanceProfile string   `yaml:"instanceProfile"`
	WorkerKey       string   `yaml:"workerKey"`
	WorkDir         string   `yaml:"workDir"`
	LaunchCommand   string   `yaml:"launchCommand"`
	LogFile         string   `yaml:"logFile"`
	WatchInterval   Duration `yaml:"watchInterval"`
}

// Duration is a time.Duration written as "30s" in YAML
type Duration time.Duration

func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	parsed, err := time.ParseDuration(node.Value)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", node.Value, err)
	}
	*d = Duration(parsed)
	return nil
}

// StorageConfig locates the shared bucket and the local state directories
type StorageConfig struct {
	Bucket   string `yaml:"bucket"`
	FilesDir string `yaml:"filesDir"`
	DataDir  string `yaml:"dataDir"`
}

// QueuesConfig tunes the relay channels. Times are in seconds.
type QueuesConfig struct {
	WaitSeconds       int32           `yaml:"waitSeconds"`
	VisibilityTimeout int32           `yaml:"visibilityTimeout"`
	Channels          []ChannelConfig `yaml:"channels,omitempty"`
}

// ChannelConfig overrides the queue name or group id of one direction
type ChannelConfig struct {
	Direction string `yaml:"direction"`
	Name      string `yaml:"name,omitempty"`
	GroupID   string `yaml:"groupID,omitempty"`
}

// LogConfig controls log level and format
type LogConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// MetricsConfig sets where fleet watch serves metrics and health
type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

// Default returns the configuration used when no file is present
func Default() Config {
	return Config{
		AWS: AWSConfig{
			ComputeRegion: "us-east-1",
			StorageRegion: "us-west-2",
		},
		Fleet: FleetConfig{
			Size:            types.DefaultFleetSize,
			ImageID:         "ami-00e95a9222311e8ed",
			InstanceType:    "t2.micro",
			InstanceProfile: "LabInstanceProfile",
			WorkerKey:       "WorkerProgram.jar",
			WorkDir:         "/home/ec2-user/app",
			LaunchCommand:   "java -jar",
			LogFile:         "app.log",
			WatchInterval:   Duration(30 * time.Second),
		},
		Storage: StorageConfig{
			Bucket:   "colony-fleet-artifacts",
			FilesDir: filepath.Join(BaseDir(), "files"),
			DataDir:  BaseDir(),
		},
		Queues: QueuesConfig{
			WaitSeconds:       10,
			VisibilityTimeout: 30,
		},
		Log: LogConfig{
			Level: "info",
		},
		Metrics: MetricsConfig{
			Addr: "127.0.0.1:9464",
		},
	}
}

// BaseDir is ~/.colony
func BaseDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".colony")
}

// ConfigPath is the config file read when no --config is given
func ConfigPath() string {
	return filepath.Join(BaseDir(), "config.yaml")
}

// Load reads the config at path, or the default path when empty.
// A missing file yields the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		path = ConfigPath()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("reading config: %w", err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Save writes cfg as YAML to path, or the default path when empty
func Save(cfg Config, path string) error {
	if path == "" {
		path = ConfigPath()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Validate checks the values the control plane cannot run without
func (c Config) Validate() error {
	if c.Fleet.Size <= 0 {
		return fmt.Errorf("fleet.size must be positive, got %d", c.Fleet.Size)
	}
	if c.Fleet.ImageID == "" || c.Fleet.InstanceType == "" {
		return fmt.Errorf("fleet.imageID and fleet.instanceType are required")
	}
	if c.Fleet.WorkerKey == "" {
		return fmt.Errorf("fleet.workerKey is required")
	}
	if c.Storage.Bucket == "" {
		return fmt.Errorf("storage.bucket is required")
	}
	// queue.Config treats a zero wait as unset
	if c.Queues.WaitSeconds < 1 || c.Queues.WaitSeconds > 20 {
		return fmt.Errorf("queues.waitSeconds must be within 1..20, got %d (use queue receive --wait 0 to short-poll)", c.Queues.WaitSeconds)
	}
	if _, err := c.Topology(); err != nil {
		return err
	}
	return nil
}

// Topology returns the default channel table with configured overrides applied
func (c Config) Topology() ([]types.QueueDescriptor, error) {
	topology := types.DefaultTopology()
	for _, ch := range c.Queues.Channels {
		dir, err := types.ParseDirection(ch.Direction)
		if err != nil {
			return nil, fmt.Errorf("queues.channels: %w", err)
		}
		if ch.Name != "" && !strings.HasSuffix(ch.Name, ".fifo") {
			return nil, fmt.Errorf("queues.channels: %s queue %q must end in .fifo", dir, ch.Name)
		}
		for i := range topology {
			if topology[i].Direction != dir {
				continue
			}
			if ch.Name != "" {
				topology[i].Name = ch.Name
			}
			if ch.GroupID != "" {
				topology[i].GroupID = ch.GroupID
			}
		}
	}
	return topology, nil
}
