// Package config provides configuration loading and access for the cloth simulation.
package config

import (
	_ "embed"
	"fmt"
	"os"
	"runtime"

	"gonum.org/v1/gonum/spatial/r3"
	"gopkg.in/yaml.v3"

	"github.com/pthm-cable/drape/constraints"
	"github.com/pthm-cable/drape/weightmap"
)

//go:embed defaults.yaml
var defaultsYAML []byte

// Config holds all simulation configuration parameters.
type Config struct {
	Solver         SolverConfig         `yaml:"solver"`
	Cloth          ClothConfig          `yaml:"cloth"`
	Forces         ForcesConfig         `yaml:"forces"`
	Springs        SpringsConfig        `yaml:"springs"`
	Bending        BendingConfig        `yaml:"bending"`
	BendingSprings BendingSpringsConfig `yaml:"bending_springs"`
	Embedded       EmbeddedConfig       `yaml:"embedded"`
	Volume         VolumeConfig         `yaml:"volume"`
	Pins           PinsConfig           `yaml:"pins"`
	Telemetry      TelemetryConfig      `yaml:"telemetry"`

	// Derived values computed after loading
	Derived DerivedConfig `yaml:"-"`
}

// SolverConfig holds time stepping and parallelism parameters.
type SolverConfig struct {
	DT                      float64 `yaml:"dt"`         // seconds per frame
	Substeps                int     `yaml:"substeps"`   // substeps per frame
	Iterations              int     `yaml:"iterations"` // constraint iterations per substep
	Workers                 int     `yaml:"workers"`    // 0 = GOMAXPROCS, 1 = inline
	MinBatchSize            int     `yaml:"min_batch_size"`
	ParallelConstraintCount int     `yaml:"parallel_constraint_count"`
	SoftMaxStiffness        float64 `yaml:"soft_max_stiffness"`
	Vectorized              bool    `yaml:"vectorized"` // blas64 integration path
}

// ClothConfig describes the cloth panel built at startup.
type ClothConfig struct {
	Cols      int     `yaml:"cols"`
	Rows      int     `yaml:"rows"`
	Spacing   float64 `yaml:"spacing"`   // metres between grid vertices
	Mass      float64 `yaml:"mass"`      // total mass per layer (kg)
	Layers    int     `yaml:"layers"`    // 1 or 2
	Thickness float64 `yaml:"thickness"` // layer separation (m)
	Height    float64 `yaml:"height"`    // Y of the top row
}

// ForcesConfig holds external force parameters.
type ForcesConfig struct {
	Gravity             [3]float64 `yaml:"gravity"`
	Wind                [3]float64 `yaml:"wind"`
	Turbulence          float64    `yaml:"turbulence"`           // relative gust strength
	TurbulenceScale     float64    `yaml:"turbulence_scale"`     // spatial frequency (1/m)
	TurbulenceFrequency float64    `yaml:"turbulence_frequency"` // temporal frequency (Hz)
	Drag                float64    `yaml:"drag"`                 // aerodynamic drag coefficient
	Lift                float64    `yaml:"lift"`                 // aerodynamic lift coefficient
	Damping             float64    `yaml:"damping"`              // linear velocity damping (1/s)
	Seed                int64      `yaml:"seed"`
}

// SpringsConfig holds stretch spring parameters.
type SpringsConfig struct {
	Model                string          `yaml:"model"` // pbd, xpbd or axial
	Stiffness            weightmap.Range `yaml:"stiffness"`
	CompressionStiffness weightmap.Range `yaml:"compression_stiffness"`
	DampingRatio         weightmap.Range `yaml:"damping_ratio"`
	Scale                weightmap.Range `yaml:"scale"`
}

// BendingConfig holds dihedral bending parameters.
type BendingConfig struct {
	Model             string          `yaml:"model"` // none, pbd, xpbd or aniso
	Stiffness         weightmap.Range `yaml:"stiffness"`
	WeftStiffness     weightmap.Range `yaml:"weft_stiffness"`
	BiasStiffness     weightmap.Range `yaml:"bias_stiffness"`
	BucklingStiffness weightmap.Range `yaml:"buckling_stiffness"`
	BucklingRatio     float64         `yaml:"buckling_ratio"`
	DampingRatio      weightmap.Range `yaml:"damping_ratio"`
	RestAngle         RestAngleConfig `yaml:"rest_angle"`
}

// RestAngleConfig selects how bending rest angles are derived.
type RestAngleConfig struct {
	Mode     string          `yaml:"mode"` // pose, explicit or flatness
	Angle    weightmap.Range `yaml:"angle"`
	Flatness weightmap.Range `yaml:"flatness"`
}

// BendingSpringsConfig holds PBD springs across bending elements.
type BendingSpringsConfig struct {
	Enabled   bool            `yaml:"enabled"`
	Stiffness weightmap.Range `yaml:"stiffness"`
}

// EmbeddedConfig holds the springs tying the two cloth layers together.
type EmbeddedConfig struct {
	Enabled              bool            `yaml:"enabled"`
	Stiffness            weightmap.Range `yaml:"stiffness"`
	CompressionStiffness weightmap.Range `yaml:"compression_stiffness"`
	DampingRatio         weightmap.Range `yaml:"damping_ratio"`
}

// VolumeConfig holds the one-sided thickness volume parameters.
type VolumeConfig struct {
	Enabled       bool            `yaml:"enabled"`
	Stiffness     weightmap.Range `yaml:"stiffness"`
	Scale         weightmap.Range `yaml:"scale"`
	MaxIterations int             `yaml:"max_iterations"`
}

// PinsConfig describes the kinematic pins and their animation.
type PinsConfig struct {
	Mode      string     `yaml:"mode"`      // top, corners or none
	Amplitude [3]float64 `yaml:"amplitude"` // sinusoidal offset (m)
	Frequency float64    `yaml:"frequency"` // Hz
}

// TelemetryConfig holds telemetry parameters.
type TelemetryConfig struct {
	StatsEvery          int  `yaml:"stats_every"` // frames between stats samples
	PerfCollectorWindow int  `yaml:"perf_collector_window"`
	BookmarkHistory     int  `yaml:"bookmark_history"`     // samples in the bookmark rolling window
	SnapshotOnBookmark  bool `yaml:"snapshot_on_bookmark"` // save particle state on every bookmark
}

// DerivedConfig holds values computed from other config values.
type DerivedConfig struct {
	SubstepDT     float64
	Workers       int
	Gravity       r3.Vec
	Wind          r3.Vec
	PinAmplitude  r3.Vec
	RestAngleMode constraints.RestAngleMode
}

// Global config instance
var global *Config

// Init loads configuration from the given path (or defaults if empty).
// Must be called before Cfg().
func Init(path string) error {
	cfg, err := Load(path)
	if err != nil {
		return err
	}
	global = cfg
	return nil
}

// MustInit is like Init but panics on error.
func MustInit(path string) {
	if err := Init(path); err != nil {
		panic(fmt.Sprintf("config: failed to initialize: %v", err))
	}
}

// Cfg returns the global configuration. Panics if Init was not called.
func Cfg() *Config {
	if global == nil {
		panic("config: Cfg() called before Init()")
	}
	return global
}

// Default returns the embedded defaults.
func Default() *Config {
	cfg, err := Load("")
	if err != nil {
		panic(fmt.Sprintf("config: invalid embedded defaults: %v", err))
	}
	return cfg
}

// Load loads configuration from a YAML file, merging with embedded defaults.
// If path is empty, only embedded defaults are used.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(defaultsYAML, cfg); err != nil {
		return nil, fmt.Errorf("parsing embedded defaults: %w", err)
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		// Only overwrites fields present in the file
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	cfg.computeDerived()

	return cfg, nil
}

func (c *Config) validate() error {
	switch {
	case c.Solver.DT <= 0:
		return fmt.Errorf("solver.dt must be positive, got %g", c.Solver.DT)
	case c.Solver.Substeps < 1:
		return fmt.Errorf("solver.substeps must be at least 1, got %d", c.Solver.Substeps)
	case c.Solver.Iterations < 1:
		return fmt.Errorf("solver.iterations must be at least 1, got %d", c.Solver.Iterations)
	case c.Cloth.Cols < 2 || c.Cloth.Rows < 2:
		return fmt.Errorf("cloth must be at least 2x2, got %dx%d", c.Cloth.Cols, c.Cloth.Rows)
	case c.Cloth.Layers < 1 || c.Cloth.Layers > 2:
		return fmt.Errorf("cloth.layers must be 1 or 2, got %d", c.Cloth.Layers)
	}
	if err := oneOf("springs.model", c.Springs.Model, "pbd", "xpbd", "axial"); err != nil {
		return err
	}
	if err := oneOf("bending.model", c.Bending.Model, "none", "pbd", "xpbd", "aniso"); err != nil {
		return err
	}
	if err := oneOf("bending.rest_angle.mode", c.Bending.RestAngle.Mode, "pose", "explicit", "flatness"); err != nil {
		return err
	}
	return oneOf("pins.mode", c.Pins.Mode, "top", "corners", "none")
}

func oneOf(field, value string, allowed ...string) error {
	for _, a := range allowed {
		if value == a {
			return nil
		}
	}
	return fmt.Errorf("%s: unknown value %q (want one of %v)", field, value, allowed)
}

// computeDerived calculates values derived from loaded config.
func (c *Config) computeDerived() {
	c.Derived.SubstepDT = c.Solver.DT / float64(c.Solver.Substeps)

	c.Derived.Workers = c.Solver.Workers
	if c.Derived.Workers <= 0 {
		c.Derived.Workers = runtime.GOMAXPROCS(0)
	}

	c.Derived.Gravity = vec(c.Forces.Gravity)
	c.Derived.Wind = vec(c.Forces.Wind)
	c.Derived.PinAmplitude = vec(c.Pins.Amplitude)

	switch c.Bending.RestAngle.Mode {
	case "explicit":
		c.Derived.RestAngleMode = constraints.RestAngleExplicit
	case "flatness":
		c.Derived.RestAngleMode = constraints.RestAngleFlatness
	default:
		c.Derived.RestAngleMode = constraints.RestAngleFromPose
	}
}

func vec(v [3]float64) r3.Vec {
	return r3.Vec{X: v[0], Y: v[1], Z: v[2]}
}

// SpringProperties returns the stretch spring tunables.
func (c *Config) SpringProperties() constraints.Properties {
	return constraints.Properties{
		Stiffness:            c.Springs.Stiffness,
		CompressionStiffness: c.Springs.CompressionStiffness,
		DampingRatio:         c.Springs.DampingRatio,
		Scale:                c.Springs.Scale,
	}
}

// BendingProperties returns the dihedral bending tunables.
func (c *Config) BendingProperties() constraints.Properties {
	b := c.Bending
	return constraints.Properties{
		Stiffness:         b.Stiffness,
		WeftStiffness:     b.WeftStiffness,
		BiasStiffness:     b.BiasStiffness,
		BucklingStiffness: b.BucklingStiffness,
		BucklingRatio:     b.BucklingRatio,
		DampingRatio:      b.DampingRatio,
		RestAngle: constraints.RestAngle{
			Mode:     c.Derived.RestAngleMode,
			Angle:    b.RestAngle.Angle,
			Flatness: b.RestAngle.Flatness,
		},
	}
}

// BendingSpringProperties returns the tunables of the springs across
// bending elements.
func (c *Config) BendingSpringProperties() constraints.Properties {
	return constraints.Properties{Stiffness: c.BendingSprings.Stiffness}
}

// EmbeddedProperties returns the layer tie tunables.
func (c *Config) EmbeddedProperties() constraints.Properties {
	return constraints.Properties{
		Stiffness:            c.Embedded.Stiffness,
		CompressionStiffness: c.Embedded.CompressionStiffness,
		DampingRatio:         c.Embedded.DampingRatio,
	}
}

// VolumeProperties returns the thickness volume tunables.
func (c *Config) VolumeProperties() constraints.Properties {
	return constraints.Properties{
		Stiffness:     c.Volume.Stiffness,
		Scale:         c.Volume.Scale,
		MaxIterations: c.Volume.MaxIterations,
	}
}

// ConstraintOptions returns the construction options for the constraint
// containers. The caller supplies the pool.
func (c *Config) ConstraintOptions() constraints.Options {
	opts := constraints.DefaultOptions
	if c.Solver.ParallelConstraintCount > 0 {
		opts.ParallelConstraintCount = c.Solver.ParallelConstraintCount
	}
	if c.Solver.SoftMaxStiffness > 0 {
		opts.SoftMaxStiffness = c.Solver.SoftMaxStiffness
	}
	return opts
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}
