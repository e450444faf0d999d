// Package config loads the bridge configuration from YAML.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/pixil98/go-errors"
	"gopkg.in/yaml.v3"

	"simbridge.ai/internal/bridge/assembler"
	"simbridge.ai/internal/bridge/executor"
	"simbridge.ai/internal/bridge/interpreter"
	"simbridge.ai/internal/bridge/layout"
	"simbridge.ai/internal/sim"
)

type Config struct {
	Listen            string `yaml:"listen"`
	TickMS            int    `yaml:"tick_ms"`
	BroadcastInterval int    `yaml:"broadcast_interval"`
	QueueSize         int    `yaml:"queue_size"`
	SendBuffer        int    `yaml:"send_buffer"`

	// Scene is the demo scene fixture served when no live client is attached.
	Scene string `yaml:"scene"`
	// Layout optionally overrides the built-in UI layout table.
	Layout string `yaml:"layout,omitempty"`

	Snapshot SnapshotConfig `yaml:"snapshot"`
	Search   SearchConfig   `yaml:"search"`
	Record   RecordConfig   `yaml:"record"`
	Archive  ArchiveConfig  `yaml:"archive"`
	Index    IndexConfig    `yaml:"index"`
	NATS     NATSConfig     `yaml:"nats"`
	Log      LogConfig      `yaml:"log"`
}

type CategoryConfig struct {
	Include     bool `yaml:"include"`
	MaxDistance int  `yaml:"max_distance"`
}

type SnapshotConfig struct {
	NPCs        CategoryConfig `yaml:"npcs"`
	Players     CategoryConfig `yaml:"players"`
	Objects     CategoryConfig `yaml:"objects"`
	GroundItems CategoryConfig `yaml:"ground_items"`
}

type SearchConfig struct {
	ClimbRadius int `yaml:"climb_radius"`
	DoorRadius  int `yaml:"door_radius"`
}

type RecordConfig struct {
	Enabled bool   `yaml:"enabled"`
	Dir     string `yaml:"dir"`
}

// ArchiveConfig uploads finished recording files to an S3-compatible bucket.
// Credentials may be left empty here and supplied through
// SIMBRIDGE_ARCHIVE_ACCESS_KEY_ID / SIMBRIDGE_ARCHIVE_SECRET_ACCESS_KEY.
type ArchiveConfig struct {
	Enabled         bool   `yaml:"enabled"`
	Endpoint        string `yaml:"endpoint"`
	Bucket          string `yaml:"bucket"`
	Region          string `yaml:"region,omitempty"`
	Prefix          string `yaml:"prefix,omitempty"`
	Workers         int    `yaml:"workers"`
	AccessKeyID     string `yaml:"access_key_id,omitempty"`
	SecretAccessKey string `yaml:"secret_access_key,omitempty"`
}

type IndexConfig struct {
	// Backend is one of sqlite, remote or none.
	Backend   string `yaml:"backend"`
	Path      string `yaml:"path"`
	Endpoint  string `yaml:"endpoint,omitempty"`
	Token     string `yaml:"token,omitempty"`
	BatchSize int    `yaml:"batch_size,omitempty"`
	FlushMS   int    `yaml:"flush_ms,omitempty"`
}

type NATSConfig struct {
	Enabled        bool   `yaml:"enabled"`
	URL            string `yaml:"url"`
	Embedded       bool   `yaml:"embedded"`
	EmbeddedPort   int    `yaml:"embedded_port"`
	StateSubject   string `yaml:"state_subject"`
	CommandSubject string `yaml:"command_subject"`
	AcceptCommands bool   `yaml:"accept_commands"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

func Defaults() Config {
	asm := assembler.DefaultConfig()
	it := interpreter.DefaultConfig()
	ex := executor.DefaultConfig()
	return Config{
		Listen:            ":8080",
		TickMS:            600,
		BroadcastInterval: ex.Interval,
		QueueSize:         ex.QueueSize,
		SendBuffer:        64,
		Scene:             "configs/scene.yaml",
		Snapshot: SnapshotConfig{
			NPCs:        CategoryConfig(asm.NPCs),
			Players:     CategoryConfig(asm.Players),
			Objects:     CategoryConfig(asm.Objects),
			GroundItems: CategoryConfig(asm.GroundItems),
		},
		Search:  SearchConfig{ClimbRadius: it.ClimbRadius, DoorRadius: it.DoorRadius},
		Record:  RecordConfig{Enabled: true, Dir: "data/recordings"},
		Archive: ArchiveConfig{Workers: 2},
		Index:   IndexConfig{Backend: "sqlite", Path: "data/index/bridge.sqlite"},
		NATS: NATSConfig{
			URL:            "nats://127.0.0.1:4222",
			EmbeddedPort:   4222,
			StateSubject:   "simbridge.state",
			CommandSubject: "simbridge.commands",
		},
		Log: LogConfig{Level: "info", Format: "text"},
	}
}

// Load reads path over the defaults. An empty path yields the defaults.
func Load(path string) (Config, error) {
	cfg := Defaults()
	if strings.TrimSpace(path) == "" {
		cfg.Normalize()
		return cfg, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	return Parse(b)
}

func Parse(b []byte) (Config, error) {
	cfg := Defaults()
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return cfg, fmt.Errorf("bridge config: %w", err)
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("bridge config: %w", err)
	}
	return cfg, nil
}

func (c *Config) Normalize() {
	c.Index.Backend = strings.ToLower(strings.TrimSpace(c.Index.Backend))
	if c.Index.Backend == "" {
		c.Index.Backend = "sqlite"
	}
	c.Log.Level = strings.ToLower(strings.TrimSpace(c.Log.Level))
	c.Log.Format = strings.ToLower(strings.TrimSpace(c.Log.Format))
}

func (c Config) Validate() error {
	el := errors.NewErrorList()
	if c.Listen == "" {
		el.Add(fmt.Errorf("listen is required"))
	}
	if c.TickMS <= 0 {
		el.Add(fmt.Errorf("tick_ms must be positive, got %d", c.TickMS))
	}
	if c.BroadcastInterval <= 0 {
		el.Add(fmt.Errorf("broadcast_interval must be positive, got %d", c.BroadcastInterval))
	}
	if c.QueueSize <= 0 {
		el.Add(fmt.Errorf("queue_size must be positive, got %d", c.QueueSize))
	}
	if c.SendBuffer <= 0 {
		el.Add(fmt.Errorf("send_buffer must be positive, got %d", c.SendBuffer))
	}
	for name, cat := range map[string]CategoryConfig{
		"npcs":         c.Snapshot.NPCs,
		"players":      c.Snapshot.Players,
		"objects":      c.Snapshot.Objects,
		"ground_items": c.Snapshot.GroundItems,
	} {
		if cat.MaxDistance < 0 || cat.MaxDistance > sim.SceneSize {
			el.Add(fmt.Errorf("snapshot.%s.max_distance must be within 0..%d", name, sim.SceneSize))
		}
	}
	if c.Search.ClimbRadius <= 0 || c.Search.DoorRadius <= 0 {
		el.Add(fmt.Errorf("search radii must be positive"))
	}
	if c.Record.Enabled && c.Record.Dir == "" {
		el.Add(fmt.Errorf("record.dir is required when recording is enabled"))
	}
	if c.Archive.Enabled {
		if !c.Record.Enabled {
			el.Add(fmt.Errorf("archive requires record.enabled"))
		}
		if c.Archive.Endpoint == "" || c.Archive.Bucket == "" {
			el.Add(fmt.Errorf("archive.endpoint and archive.bucket are required when archiving is enabled"))
		}
	}
	switch c.Index.Backend {
	case "none", "off", "disabled":
	case "sqlite":
		if c.Index.Path == "" {
			el.Add(fmt.Errorf("index.path is required for the sqlite backend"))
		}
	case "remote":
		if c.Index.Endpoint == "" {
			el.Add(fmt.Errorf("index.endpoint is required for the remote backend"))
		}
	default:
		el.Add(fmt.Errorf("unsupported index.backend %q", c.Index.Backend))
	}
	if c.NATS.Enabled && !c.NATS.Embedded && c.NATS.URL == "" {
		el.Add(fmt.Errorf("nats.url is required unless nats.embedded is set"))
	}
	switch c.Log.Format {
	case "", "text", "json":
	default:
		el.Add(fmt.Errorf("unsupported log.format %q", c.Log.Format))
	}
	return el.Err()
}

func (c Config) TickInterval() time.Duration {
	return time.Duration(c.TickMS) * time.Millisecond
}

func (c Config) AssemblerConfig() assembler.Config {
	return assembler.Config{
		NPCs:        assembler.Category(c.Snapshot.NPCs),
		Players:     assembler.Category(c.Snapshot.Players),
		Objects:     assembler.Category(c.Snapshot.Objects),
		GroundItems: assembler.Category(c.Snapshot.GroundItems),
	}
}

func (c Config) InterpreterConfig() interpreter.Config {
	return interpreter.Config{ClimbRadius: c.Search.ClimbRadius, DoorRadius: c.Search.DoorRadius}
}

func (c Config) ExecutorConfig() executor.Config {
	return executor.Config{Interval: c.BroadcastInterval, QueueSize: c.QueueSize}
}

// LoadLayout returns the layout table, reading overrides from c.Layout
// when set.
func (c Config) LoadLayout() (layout.Layout, error) {
	l := layout.Default()
	if c.Layout == "" {
		return l, nil
	}
	b, err := os.ReadFile(c.Layout)
	if err != nil {
		return l, err
	}
	if err := yaml.Unmarshal(b, &l); err != nil {
		return l, fmt.Errorf("layout %s: %w", c.Layout, err)
	}
	if err := l.Validate(); err != nil {
		return l, fmt.Errorf("layout %s: %w", c.Layout, err)
	}
	return l, nil
}
