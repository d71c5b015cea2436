package config

import (
	"errors"
	"os"
	"strings"
	"time"

	pkgerrors "github.com/pkg/errors"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/Grigorij-Dudnik/RoboCrew/robot"
	"github.com/Grigorij-Dudnik/RoboCrew/scs"
)

// EnvPrefix prefixes every environment override, e.g. SCS_BUS_PORT.
const EnvPrefix = "SCS"

// BusConfig selects the serial port and bus timing.
type BusConfig struct {
	Port           string        `mapstructure:"port" yaml:"port"`
	BaudRate       int           `mapstructure:"baudRate" yaml:"baudRate"`
	Protocol       string        `mapstructure:"protocol" yaml:"protocol"`
	LatencyTimer   time.Duration `mapstructure:"latencyTimer" yaml:"latencyTimer"`
	ResponseMargin int           `mapstructure:"responseMargin" yaml:"responseMargin"`
	MinCommandGap  time.Duration `mapstructure:"minCommandGap" yaml:"minCommandGap"`
	PollInterval   time.Duration `mapstructure:"pollInterval" yaml:"pollInterval"`
}

// LumberjackConfig configures the rolling log file.
type LumberjackConfig struct {
	Filename   string `mapstructure:"filename" yaml:"filename"`
	MaxSizeMB  int    `mapstructure:"maxSize" yaml:"maxSize"`
	MaxBackups int    `mapstructure:"maxBackups" yaml:"maxBackups"`
	MaxAgeDays int    `mapstructure:"maxAge" yaml:"maxAge"`
	Compress   bool   `mapstructure:"compress" yaml:"compress"`
}

// LoggingConfig sets the log level and outputs.
type LoggingConfig struct {
	Level  string           `mapstructure:"level" yaml:"level"`
	Format string           `mapstructure:"format" yaml:"format"`
	File   LumberjackConfig `mapstructure:"file" yaml:"file"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enable bool   `mapstructure:"enable" yaml:"enable"`
	Addr   string `mapstructure:"addr" yaml:"addr"`
	Path   string `mapstructure:"path" yaml:"path"`
}

// Config is the top-level configuration.
type Config struct {
	Bus     BusConfig         `mapstructure:"bus" yaml:"bus"`
	Logging LoggingConfig     `mapstructure:"logging" yaml:"logging"`
	Metrics MetricsConfig     `mapstructure:"metrics" yaml:"metrics"`
	Wheels  robot.WheelConfig `mapstructure:"wheels" yaml:"wheels"`
	Head    robot.HeadConfig  `mapstructure:"head" yaml:"head"`
}

// Load reads configuration from a YAML/TOML/JSON file and SCS_* environment
// variables. When path is empty SCS_CONFIG is used, then scsctl.yaml in the
// working directory or ./configs. A missing default file is not an error.
func Load(path string) (*Config, error) {
	v := viper.New()

	if path == "" {
		path = os.Getenv(EnvPrefix + "_CONFIG")
	}

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.SetConfigName("scsctl")
		v.SetConfigType("yaml")
	}

	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, pkgerrors.Wrap(err, "read config")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, pkgerrors.Wrap(err, "unmarshal config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("bus.port", "/dev/ttyACM0")
	v.SetDefault("bus.baudRate", scs.DefaultBaudRate)
	v.SetDefault("bus.protocol", scs.ProtocolSTS.String())
	v.SetDefault("bus.latencyTimer", scs.DefaultLatencyTimer.String())
	v.SetDefault("bus.responseMargin", scs.DefaultResponseMargin)
	v.SetDefault("bus.minCommandGap", "0s")
	v.SetDefault("bus.pollInterval", scs.DefaultPollInterval.String())

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
	v.SetDefault("logging.file.filename", "")
	v.SetDefault("logging.file.maxSize", 10)
	v.SetDefault("logging.file.maxBackups", 3)
	v.SetDefault("logging.file.maxAge", 7)
	v.SetDefault("logging.file.compress", false)

	v.SetDefault("metrics.enable", false)
	v.SetDefault("metrics.addr", ":9101")
	v.SetDefault("metrics.path", "/metrics")

	wheels := robot.DefaultWheelConfig()
	v.SetDefault("wheels.speed", wheels.Speed)
	v.SetDefault("wheels.linearSpeed", wheels.LinearSpeed)
	v.SetDefault("wheels.angularSpeed", wheels.AngularSpeed)
	specs := make([]map[string]any, 0, len(wheels.Wheels))
	for _, w := range wheels.Wheels {
		specs = append(specs, map[string]any{
			"id":   w.ID,
			"role": string(w.Role),
			"calibration": map[string]any{
				"up":    w.Calibration.Up,
				"down":  w.Calibration.Down,
				"left":  w.Calibration.Left,
				"right": w.Calibration.Right,
			},
		})
	}
	v.SetDefault("wheels.wheels", specs)

	head := robot.DefaultHeadConfig()
	for key, cal := range map[string]robot.MotorCalibration{"yaw": head.Yaw, "pitch": head.Pitch} {
		v.SetDefault("head."+key+".id", cal.ID)
		v.SetDefault("head."+key+".drive_mode", cal.DriveMode)
		v.SetDefault("head."+key+".homing_offset", cal.HomingOffset)
		v.SetDefault("head."+key+".range_min", cal.RangeMin)
		v.SetDefault("head."+key+".range_max", cal.RangeMax)
		v.SetDefault("head."+key+".norm_mode", int(cal.NormMode))
	}
}

// Validate checks values the library types would otherwise reject later.
func (c *Config) Validate() error {
	if _, err := scs.ParseProtocol(c.Bus.Protocol); err != nil {
		return pkgerrors.Wrap(err, "bus.protocol")
	}
	if c.Bus.BaudRate <= 0 {
		return pkgerrors.Errorf("bus.baudRate must be positive, got %d", c.Bus.BaudRate)
	}
	if err := c.Wheels.Validate(); err != nil {
		return pkgerrors.Wrap(err, "wheels")
	}
	return nil
}

// BusConfig converts the bus section into library configuration. Logger,
// Metrics and Opener are left for the caller.
func (c *Config) BusConfig() (scs.BusConfig, error) {
	protocol, err := scs.ParseProtocol(c.Bus.Protocol)
	if err != nil {
		return scs.BusConfig{}, pkgerrors.Wrap(err, "bus.protocol")
	}
	return scs.BusConfig{
		BaudRate:       c.Bus.BaudRate,
		Protocol:       protocol,
		LatencyTimer:   c.Bus.LatencyTimer,
		ResponseMargin: c.Bus.ResponseMargin,
		MinCommandGap:  c.Bus.MinCommandGap,
		PollInterval:   c.Bus.PollInterval,
	}, nil
}

// WheelConfig returns the wheel base layout.
func (c *Config) WheelConfig() robot.WheelConfig {
	return c.Wheels
}

// YAML renders the effective configuration.
func (c *Config) YAML() ([]byte, error) {
	out, err := yaml.Marshal(c)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "marshal config")
	}
	return out, nil
}
