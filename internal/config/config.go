// Package config loads run configuration: embedded defaults overlaid with an
// optional YAML file.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"flapevo/internal/scape"
)

//go:embed defaults.yaml
var defaultsYAML []byte

type Config struct {
	Screen      ScreenConfig      `yaml:"screen"`
	World       WorldConfig       `yaml:"world"`
	Bird        BirdConfig        `yaml:"bird"`
	Spawn       SpawnConfig       `yaml:"spawn"`
	FastDeath   FastDeathConfig   `yaml:"fast_death"`
	Training    TrainingConfig    `yaml:"training"`
	Persistence PersistenceConfig `yaml:"persistence"`
	Output      OutputConfig      `yaml:"output"`
	View        ViewConfig        `yaml:"view"`
	Log         LogConfig         `yaml:"log"`
}

type ScreenConfig struct {
	Width  float64 `yaml:"width"`
	Height float64 `yaml:"height"`
	FPS    int     `yaml:"fps"` // 0 runs unthrottled
}

type WorldConfig struct {
	GroundY      float64 `yaml:"ground_y"`
	PipeWidth    float64 `yaml:"pipe_width"`
	PipeHeight   float64 `yaml:"pipe_height"`
	PipeGap      float64 `yaml:"pipe_gap"`
	PipeVelocity float64 `yaml:"pipe_velocity"`
	PipeMinY     int     `yaml:"pipe_min_y"`
	PipeMaxY     int     `yaml:"pipe_max_y"`
	FirstPipeX   float64 `yaml:"first_pipe_x"`
	NextPipeX    float64 `yaml:"next_pipe_x"`
	BaseWidth    float64 `yaml:"base_width"`
	BaseVelocity float64 `yaml:"base_velocity"`
}

type BirdConfig struct {
	Width         float64 `yaml:"width"`
	Height        float64 `yaml:"height"`
	StartY        float64 `yaml:"start_y"`
	JumpVelocity  float64 `yaml:"jump_velocity"`
	Gravity       float64 `yaml:"gravity"`
	MaxFall       float64 `yaml:"max_fall"`
	MaxRotation   float64 `yaml:"max_rotation"`
	RotVelocity   float64 `yaml:"rot_velocity"`
	TiltClearance float64 `yaml:"tilt_clearance"`
}

type SpawnConfig struct {
	DefaultX     float64 `yaml:"default_x"`
	Margin       float64 `yaml:"margin"`
	MinClearance float64 `yaml:"min_clearance"`
	EdgeInset    float64 `yaml:"edge_inset"`
}

type FastDeathConfig struct {
	Threshold time.Duration `yaml:"threshold"`
	Strikes   int           `yaml:"strikes"`
}

type TrainingConfig struct {
	PopulationSize     int            `yaml:"population_size"`
	MaxGenerations     int            `yaml:"max_generations"`
	EliteCount         int            `yaml:"elite_count"`
	SurvivalPercentage float64        `yaml:"survival_percentage"`
	FitnessGoal        float64        `yaml:"fitness_goal"` // 0 disables
	Seed               int64          `yaml:"seed"`         // 0 picks a time-based seed
	Selection          string         `yaml:"selection"`
	InjectBest         bool           `yaml:"inject_best"`
	Mutation           MutationConfig `yaml:"mutation"`
}

type MutationConfig struct {
	PerturbWeight float64 `yaml:"perturb_weight"`
	PerturbBias   float64 `yaml:"perturb_bias"`
	AddSynapse    float64 `yaml:"add_synapse"`
	AddNeuron     float64 `yaml:"add_neuron"`
	MaxDelta      float64 `yaml:"max_delta"`
}

type PersistenceConfig struct {
	Backend            string `yaml:"backend"` // file, sqlite or memory
	DataDir            string `yaml:"data_dir"`
	SQLitePath         string `yaml:"sqlite_path,omitempty"`
	FlushBestOnImprove bool   `yaml:"flush_best_on_improve"`
}

type OutputConfig struct {
	Dir string `yaml:"dir"`
}

type ViewConfig struct {
	Mode string `yaml:"mode"` // headless or terminal
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // auto, text or json
}

// Load parses the embedded defaults and then overlays path when it is set.
// Fields missing from the file keep their default values.
func Load(path string) (*Config, error) {
	cfg, err := Default()
	if err != nil {
		return nil, err
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func Default() (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(defaultsYAML, cfg); err != nil {
		return nil, fmt.Errorf("parsing embedded defaults: %w", err)
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	var errs []error
	if c.Screen.Width <= 0 || c.Screen.Height <= 0 {
		errs = append(errs, fmt.Errorf("screen size must be positive"))
	}
	if c.Screen.FPS < 0 {
		errs = append(errs, fmt.Errorf("screen.fps must be >= 0"))
	}
	if c.World.PipeMaxY <= c.World.PipeMinY {
		errs = append(errs, fmt.Errorf("world.pipe_max_y must exceed pipe_min_y"))
	}
	if c.FastDeath.Threshold <= 0 {
		errs = append(errs, fmt.Errorf("fast_death.threshold must be positive"))
	}
	if c.FastDeath.Strikes <= 0 {
		errs = append(errs, fmt.Errorf("fast_death.strikes must be positive"))
	}
	if c.Training.PopulationSize <= 0 {
		errs = append(errs, fmt.Errorf("training.population_size must be positive"))
	}
	if c.Training.MaxGenerations <= 0 {
		errs = append(errs, fmt.Errorf("training.max_generations must be positive"))
	}
	if c.Training.EliteCount <= 0 || c.Training.EliteCount > c.Training.PopulationSize {
		errs = append(errs, fmt.Errorf("training.elite_count must be in [1, population_size]"))
	}
	switch c.Persistence.Backend {
	case "file", "sqlite", "memory":
	default:
		errs = append(errs, fmt.Errorf("unsupported persistence.backend %q", c.Persistence.Backend))
	}
	if c.Persistence.Backend != "memory" && c.Persistence.DataDir == "" && c.Persistence.SQLitePath == "" {
		errs = append(errs, fmt.Errorf("persistence.data_dir is required"))
	}
	switch c.View.Mode {
	case "headless", "terminal":
	default:
		errs = append(errs, fmt.Errorf("unsupported view.mode %q", c.View.Mode))
	}
	return errors.Join(errs...)
}

// StoragePath is the path handed to the storage backend factory.
func (c *Config) StoragePath() string {
	if c.Persistence.Backend == "sqlite" && c.Persistence.SQLitePath != "" {
		return c.Persistence.SQLitePath
	}
	return c.Persistence.DataDir
}

func (c *Config) Geometry() scape.Geometry {
	return scape.Geometry{
		ScreenWidth:   c.Screen.Width,
		ScreenHeight:  c.Screen.Height,
		GroundY:       c.World.GroundY,
		PipeWidth:     c.World.PipeWidth,
		PipeHeight:    c.World.PipeHeight,
		PipeGap:       c.World.PipeGap,
		PipeVelocity:  c.World.PipeVelocity,
		PipeMinY:      c.World.PipeMinY,
		PipeMaxY:      c.World.PipeMaxY,
		FirstPipeX:    c.World.FirstPipeX,
		NextPipeX:     c.World.NextPipeX,
		BaseWidth:     c.World.BaseWidth,
		BaseVelocity:  c.World.BaseVelocity,
		BirdWidth:     c.Bird.Width,
		BirdHeight:    c.Bird.Height,
		BirdStartY:    c.Bird.StartY,
		JumpVelocity:  c.Bird.JumpVelocity,
		Gravity:       c.Bird.Gravity,
		MaxFall:       c.Bird.MaxFall,
		MaxRotation:   c.Bird.MaxRotation,
		RotVelocity:   c.Bird.RotVelocity,
		TiltClearance: c.Bird.TiltClearance,
	}
}

func (c *Config) SpawnResolver() scape.SafeSpawnResolver {
	return scape.SafeSpawnResolver{
		DefaultX:     c.Spawn.DefaultX,
		Margin:       c.Spawn.Margin,
		MinClearance: c.Spawn.MinClearance,
		ScreenWidth:  c.Screen.Width,
		EdgeInset:    c.Spawn.EdgeInset,
	}
}

func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}
