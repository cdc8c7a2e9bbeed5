// Package model defines shared configuration structures used to initialize the RoboFlock system.
// It includes global settings, flock parameters, robot definitions and the monitor/coordinator endpoints.
package model

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config represents the root structure loaded from configs/config.yml.
type Config struct {
	Global      GlobalConfig      `yaml:"global"`
	Flock       FlockConfig       `yaml:"flock"`
	Robots      []RobotConfig     `yaml:"robots"`
	Monitor     MonitorConfig     `yaml:"monitor"`
	Coordinator CoordinatorConfig `yaml:"coordinator"`
}

// GlobalConfig defines shared defaults across the system.
type GlobalConfig struct {
	LogLevel   string `yaml:"log_level"`   // debug/info/warn/error
	WireFormat string `yaml:"wire_format"` // telemetry wire format (csv/json)
}

// Point is a fixed 2-D location in the shared world frame.
type Point struct {
	X float64 `yaml:"x" json:"x"`
	Y float64 `yaml:"y" json:"y"`
}

// Placement is the hard-coded initial pose of one robot slot.
type Placement struct {
	X       float64 `yaml:"x"`
	Y       float64 `yaml:"y"`
	Heading float64 `yaml:"heading"`
}

// WeightsConfig holds the cold-start rule weights.
type WeightsConfig struct {
	Cohesion            float64 `yaml:"cohesion_weight"`
	Separation          float64 `yaml:"separation_weight"`
	SeparationThreshold float64 `yaml:"separation_threshold"`
	Alignment           float64 `yaml:"alignment_weight"`
	Migration           float64 `yaml:"migration_weight"`
	Iterations          int     `yaml:"iterations"`
}

// FlockConfig describes the flock shared by every robot process.
type FlockConfig struct {
	Size            int               `yaml:"size"`
	TickMs          int               `yaml:"tick_ms"`
	MigrationTarget Point             `yaml:"migration_target"`
	MigrationMode   string            `yaml:"migration_mode"` // target/wander
	Alignment       string            `yaml:"alignment"`      // off/match_velocity
	Weights         WeightsConfig     `yaml:"weights"`
	Placements      map[int]Placement `yaml:"placements"`
	PingFormat      string            `yaml:"ping_format"` // framed/legacy
	AxleLength      float64           `yaml:"axle_length"`
	WheelRadius     float64           `yaml:"wheel_radius"`
	Ku              float64           `yaml:"ku"`
	Kw              float64           `yaml:"kw"`
	MaxSpeed        int               `yaml:"max_speed"`

	// seeded is set when the target and weights were pre-filled before
	// decoding a file; their zero values are then explicit.
	seeded bool
}

// DefaultMigrationTarget is the arena goal the flock migrates to.
var DefaultMigrationTarget = Point{X: 3, Y: 0}

// DefaultWeights returns the cold-start rule weights of the arena.
func DefaultWeights() WeightsConfig {
	return WeightsConfig{
		Cohesion:            0.06,
		Separation:          0.002,
		SeparationThreshold: 0.15,
		Alignment:           0.1,
		Migration:           0.01,
		Iterations:          1000,
	}
}

// RobotConfig defines configuration for a single robot process.
type RobotConfig struct {
	Name         string `yaml:"name"` // e.g. epuck3
	BaseDev      string `yaml:"base_device"`
	BaseBaud     int    `yaml:"base_baud"`
	RadioDev     string `yaml:"radio_device"`
	RadioBaud    int    `yaml:"radio_baud"`
	Odometry     string `yaml:"odometry"` // encoders/localizer
	TelemetryURL string `yaml:"telemetry_url"`
	// AccelCalibration is the number of standing-still accelerometer samples
	// averaged into the bias at start; 0 skips calibration.
	AccelCalibration int `yaml:"accel_calibration"`
}

// MonitorConfig defines the telemetry monitor endpoint.
type MonitorConfig struct {
	Addr   string `yaml:"addr"`
	DBPath string `yaml:"db_path"`
	Token  string `yaml:"token"` // bearer token guarding weight pushes; empty disables the check
}

// CoordinatorConfig defines the LoRa link used to push weight updates.
type CoordinatorConfig struct {
	RadioDev  string `yaml:"radio_device"`
	RadioBaud int    `yaml:"radio_baud"`
	DevAddr   string `yaml:"dev_addr"` // 8 hex chars
	AppSKey   string `yaml:"app_skey"` // 32 hex chars
	NwkSKey   string `yaml:"nwk_skey"` // 32 hex chars
	FPort     uint8  `yaml:"fport"`
}

// DefaultPlacements returns the staggered start line of the e-puck arena:
// x = -2.9, heading 0, y = 0, 0.1, -0.1, 0.2, -0.2, ... by robot id.
func DefaultPlacements(size int) map[int]Placement {
	out := make(map[int]Placement, size)
	for id := 0; id < size; id++ {
		y := 0.1 * float64((id+1)/2)
		if id%2 == 0 && id > 0 {
			y = -y
		}
		out[id] = Placement{X: -2.9, Y: y}
	}
	return out
}

// LoadConfig reads and validates the YAML configuration at path.
func LoadConfig(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	return ParseConfig(b)
}

// ParseConfig decodes YAML bytes, fills defaults and validates the result.
func ParseConfig(b []byte) (*Config, error) {
	// keys missing from the file keep these, explicit zeros overwrite them
	cfg := Config{Flock: FlockConfig{
		MigrationTarget: DefaultMigrationTarget,
		Weights:         DefaultWeights(),
		seeded:          true,
	}}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ApplyDefaults fills every zero value with the arena defaults.
func (c *Config) ApplyDefaults() {
	if c.Global.LogLevel == "" {
		c.Global.LogLevel = "info"
	}
	if c.Global.WireFormat == "" {
		c.Global.WireFormat = "json"
	}
	c.Flock.ApplyDefaults()
	for i := range c.Robots {
		r := &c.Robots[i]
		if r.BaseBaud == 0 {
			r.BaseBaud = 115200
		}
		if r.RadioBaud == 0 {
			r.RadioBaud = 9600
		}
		if r.Odometry == "" {
			r.Odometry = "localizer"
		}
	}
	if c.Coordinator.RadioBaud == 0 {
		c.Coordinator.RadioBaud = 9600
	}
	if c.Coordinator.FPort == 0 {
		c.Coordinator.FPort = 10
	}
}

// ApplyDefaults fills the flock section with the arena defaults.
func (f *FlockConfig) ApplyDefaults() {
	if f.Size == 0 {
		f.Size = 5
	}
	if f.TickMs == 0 {
		f.TickMs = 64
	}
	if !f.seeded && f.MigrationTarget == (Point{}) {
		f.MigrationTarget = DefaultMigrationTarget
	}
	if f.MigrationMode == "" {
		f.MigrationMode = "target"
	}
	if f.Alignment == "" {
		f.Alignment = "off"
	}
	if !f.seeded && f.Weights == (WeightsConfig{}) {
		f.Weights = DefaultWeights()
	}
	if len(f.Placements) == 0 && f.Size > 0 {
		f.Placements = DefaultPlacements(f.Size)
	}
	if f.PingFormat == "" {
		f.PingFormat = "framed"
	}
	if f.AxleLength == 0 {
		f.AxleLength = 0.052
	}
	if f.WheelRadius == 0 {
		f.WheelRadius = 0.0205
	}
	if f.Ku == 0 {
		f.Ku = 0.2
	}
	if f.Kw == 0 {
		f.Kw = 0.5
	}
	if f.MaxSpeed == 0 {
		f.MaxSpeed = 800
	}
}

// Validate rejects configurations the controller cannot run with.
func (c *Config) Validate() error {
	if err := c.Flock.Validate(); err != nil {
		return err
	}
	seen := make(map[string]bool, len(c.Robots))
	for _, r := range c.Robots {
		if r.Name == "" {
			return errors.New("robot without name")
		}
		if seen[r.Name] {
			return fmt.Errorf("duplicate robot name %q", r.Name)
		}
		seen[r.Name] = true
		if r.Odometry != "encoders" && r.Odometry != "localizer" {
			return fmt.Errorf("robot %s: invalid odometry %q", r.Name, r.Odometry)
		}
	}
	switch c.Global.WireFormat {
	case "csv", "json":
	default:
		return fmt.Errorf("invalid wire_format %q", c.Global.WireFormat)
	}
	return nil
}

// Validate rejects impossible flock parameters.
func (f *FlockConfig) Validate() error {
	if f.Size < 1 {
		return fmt.Errorf("flock size must be >= 1, got %d", f.Size)
	}
	if f.TickMs <= 0 {
		return fmt.Errorf("tick_ms must be > 0, got %d", f.TickMs)
	}
	if f.AxleLength <= 0 || f.WheelRadius <= 0 {
		return errors.New("axle_length and wheel_radius must be > 0")
	}
	if f.MaxSpeed <= 0 {
		return errors.New("max_speed must be > 0")
	}
	switch f.MigrationMode {
	case "target", "wander":
	default:
		return fmt.Errorf("invalid migration_mode %q", f.MigrationMode)
	}
	switch f.Alignment {
	case "off", "match_velocity":
	default:
		return fmt.Errorf("invalid alignment %q", f.Alignment)
	}
	switch f.PingFormat {
	case "framed", "legacy":
	default:
		return fmt.Errorf("invalid ping_format %q", f.PingFormat)
	}
	for id := range f.Placements {
		if id < 0 || id >= f.Size {
			return fmt.Errorf("placement for robot %s outside flock of %d", strconv.Itoa(id), f.Size)
		}
	}
	return nil
}
