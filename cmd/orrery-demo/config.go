package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/spf13/viper"

	"github.com/cwbudde/algo-orrery/orrery"
	"github.com/cwbudde/algo-orrery/preset"
)

// defaultConfig is written verbatim on first run so the file documents
// itself.
const defaultConfig = `# orrery-demo configuration

# Render and device sample rate in Hz.
sample_rate: 44100

# Master volume (0.0 to 1.0, snapped to 0.1 steps).
master_volume: 1.0

# Geometry mode: hierarchical (moons voiced relative to their planet)
# or true-scale (absolute heliocentric distances).
mode: "hierarchical"

# Cue complexity: simple, moderate, or complex.
complexity: "moderate"

# Optional voicing preset, JSON or YAML (see orrery-fit).
# preset: "assets/presets/fitted.json"

# Focus an object to amplify its moons and dim everything else.
# focus: "jupiter"

# Pause between cues during a sweep, in milliseconds.
sweep_gap_ms: 120

# Play the space-weather warning tones after each sweep.
play_warnings: false

# Scene roster. Positions are heliocentric AU; moons name their parent
# and sit close to it.
roster:
  - id: "sun"
    class: "star"
    x: 0.0
  - id: "mercury"
    class: "planet"
    x: 0.39
  - id: "venus"
    class: "planet"
    x: 0.72
  - id: "earth"
    class: "planet"
    x: 1.0
  - id: "luna"
    class: "moon"
    x: 1.0026
    parent: "earth"
  - id: "mars"
    class: "planet"
    x: 1.52
  - id: "ceres"
    class: "asteroid"
    x: 2.77
  - id: "jupiter"
    class: "planet"
    x: 5.2
  - id: "io"
    class: "moon"
    x: 5.2028
    parent: "jupiter"
  - id: "europa"
    class: "moon"
    x: 5.2045
    parent: "jupiter"
  - id: "saturn"
    class: "planet"
    x: 9.54
  - id: "titan"
    class: "moon"
    x: 9.5482
    parent: "saturn"
  - id: "uranus"
    class: "planet"
    x: 19.19
  - id: "neptune"
    class: "planet"
    x: 30.07
  - id: "pluto"
    class: "dwarf-planet"
    x: 39.48
  - id: "halley"
    class: "comet"
    x: 17.8
  - id: "voyager-1"
    class: "spacecraft"
    x: 45.0
`

type rosterEntry struct {
	ID     string  `mapstructure:"id"`
	Class  string  `mapstructure:"class"`
	X      float64 `mapstructure:"x"`
	Y      float64 `mapstructure:"y"`
	Z      float64 `mapstructure:"z"`
	Parent string  `mapstructure:"parent"`
}

type demoConfig struct {
	SampleRate   int           `mapstructure:"sample_rate"`
	MasterVolume float64       `mapstructure:"master_volume"`
	Mode         string        `mapstructure:"mode"`
	Complexity   string        `mapstructure:"complexity"`
	Preset       string        `mapstructure:"preset"`
	Focus        string        `mapstructure:"focus"`
	SweepGapMs   int           `mapstructure:"sweep_gap_ms"`
	PlayWarnings bool          `mapstructure:"play_warnings"`
	Roster       []rosterEntry `mapstructure:"roster"`
}

// ensureConfigFile writes the default configuration when path does not exist
// yet.
func ensureConfigFile(path string) error {
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return fmt.Errorf("unable to create config directory: %w", err)
			}
		}

		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("unable to create config file: %w", err)
		}
		defer func() { _ = f.Close() }()

		if _, err := f.WriteString(defaultConfig); err != nil {
			return fmt.Errorf("unable to write config file: %w", err)
		}
	} else if err != nil {
		return fmt.Errorf("unable to stat config file: %w", err)
	}
	return nil
}

func loadConfig(path string) (demoConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("orrery")
	v.AutomaticEnv()

	v.SetDefault("sample_rate", 44100)
	v.SetDefault("master_volume", 1.0)
	v.SetDefault("mode", "hierarchical")
	v.SetDefault("complexity", "moderate")
	v.SetDefault("sweep_gap_ms", 120)
	v.SetDefault("play_warnings", false)

	if err := v.ReadInConfig(); err != nil {
		return demoConfig{}, fmt.Errorf("read config: %w", err)
	}

	var cfg demoConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return demoConfig{}, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return demoConfig{}, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// validate rejects a config before it can take down a running sweep. The
// enum and roster checks run through the same parsers the sweep uses.
func (c demoConfig) validate() error {
	if c.SampleRate <= 0 {
		return fmt.Errorf("sample_rate must be positive, got %d", c.SampleRate)
	}
	if c.MasterVolume < 0 || c.MasterVolume > 1 {
		return fmt.Errorf("master_volume must be in [0,1], got %g", c.MasterVolume)
	}
	if c.SweepGapMs < 0 {
		return fmt.Errorf("sweep_gap_ms must not be negative, got %d", c.SweepGapMs)
	}
	if len(c.Roster) == 0 {
		return errors.New("roster must not be empty")
	}
	if _, err := c.policy(); err != nil {
		return err
	}
	if _, err := c.objects(); err != nil {
		return err
	}
	return nil
}

// engineParams resolves the voicing for this config, loading the preset when
// one is named.
func (c demoConfig) engineParams() (orrery.Params, error) {
	params := orrery.NewDefaultParams()
	if c.Preset != "" {
		loaded, err := preset.Load(c.Preset)
		if err != nil {
			return params, fmt.Errorf("preset: %w", err)
		}
		params = loaded
	}
	params.SampleRate = c.SampleRate
	return params, nil
}

// policy builds the sweep's presentation policy, including the cluster focus
// when one is configured.
func (c demoConfig) policy() (orrery.Policy, error) {
	mode, err := orrery.ParseAudioMode(c.Mode)
	if err != nil {
		return orrery.Policy{}, err
	}
	complexity, err := orrery.ParseComplexity(c.Complexity)
	if err != nil {
		return orrery.Policy{}, err
	}

	policy := orrery.Policy{
		Mode:         mode,
		Complexity:   complexity,
		MasterVolume: orrery.QuantizeMasterVolume(c.MasterVolume),
	}

	if c.Focus != "" {
		found := false
		var children []string
		for _, entry := range c.Roster {
			if entry.ID == c.Focus {
				found = true
			}
			if entry.Parent == c.Focus {
				children = append(children, entry.ID)
			}
		}
		if !found {
			return orrery.Policy{}, fmt.Errorf("focus %q is not in the roster", c.Focus)
		}
		policy.Cluster = orrery.NewClusterState(c.Focus, children)
	}
	return policy, nil
}

// objects converts the roster into engine inputs, resolving parent IDs into
// position snapshots.
func (c demoConfig) objects() ([]orrery.RosterObject, error) {
	positions := make(map[string]orrery.Vec3, len(c.Roster))
	for _, entry := range c.Roster {
		if entry.ID == "" {
			return nil, errors.New("roster entry with empty id")
		}
		if _, dup := positions[entry.ID]; dup {
			return nil, fmt.Errorf("duplicate roster id %q", entry.ID)
		}
		positions[entry.ID] = orrery.Vec3{X: entry.X, Y: entry.Y, Z: entry.Z}
	}

	objects := make([]orrery.RosterObject, 0, len(c.Roster))
	for _, entry := range c.Roster {
		class, err := orrery.ParseObjectClass(entry.Class)
		if err != nil {
			return nil, fmt.Errorf("roster entry %q: %w", entry.ID, err)
		}

		obj := orrery.RosterObject{
			ID:       entry.ID,
			Class:    class,
			Position: positions[entry.ID],
		}
		if entry.Parent != "" {
			if entry.Parent == entry.ID {
				return nil, fmt.Errorf("roster entry %q is its own parent", entry.ID)
			}
			pv, ok := positions[entry.Parent]
			if !ok {
				return nil, fmt.Errorf("roster entry %q names unknown parent %q", entry.ID, entry.Parent)
			}
			obj.Parent = &pv
		}
		objects = append(objects, obj)
	}
	return objects, nil
}
