package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"mixer-line/internal/controller"
	"mixer-line/internal/models"

	"github.com/spf13/viper"
)

type Config struct {
	Preset  string        `mapstructure:"preset"`
	Mission MissionConfig `mapstructure:"mission"`
	Limits  LimitsConfig  `mapstructure:"limits"`
	MQTT    MQTTConfig    `mapstructure:"mqtt"`
	Server  ServerConfig  `mapstructure:"server"`
	Log     LogConfig     `mapstructure:"log"`
}

type MissionConfig struct {
	Duration       float64       `mapstructure:"duration"`
	TankCapacity   float64       `mapstructure:"tank_capacity"`
	OutputFlow     float64       `mapstructure:"output_flow"`
	Reservoirs     []float64     `mapstructure:"reservoirs"`
	ReplenishPause time.Duration `mapstructure:"replenish_pause"`
	TickInterval   time.Duration `mapstructure:"tick_interval"`
	AutoStart      bool          `mapstructure:"auto_start"`
}

// LimitsConfig bounds the values accepted from operators at runtime.
type LimitsConfig struct {
	MissionDurationMin   float64 `mapstructure:"mission_duration_min"`
	MissionDurationMax   float64 `mapstructure:"mission_duration_max"`
	OutputFlowMin        float64 `mapstructure:"output_flow_min"`
	OutputFlowMax        float64 `mapstructure:"output_flow_max"`
	OutputFlowAdjustable bool    `mapstructure:"output_flow_adjustable"`
}

type MQTTConfig struct {
	Broker   string `mapstructure:"broker"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	ClientID string `mapstructure:"client_id"`
	Topics   Topics `mapstructure:"topics"`
}

type Topics struct {
	Telemetry string `mapstructure:"telemetry"`
	Commands  string `mapstructure:"commands"`
}

type ServerConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Port    int    `mapstructure:"port"`
	Host    string `mapstructure:"host"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

const (
	PresetStandard = "standard"
	PresetCompact  = "compact"
)

// presets seed the mission and limits sections. The compact line runs a
// short mission with a fixed output flow.
var presets = map[string]map[string]interface{}{
	PresetStandard: {
		"mission.duration":              1050.0,
		"mission.output_flow":           50.0,
		"limits.mission_duration_min":   300.0,
		"limits.mission_duration_max":   3600.0,
		"limits.output_flow_min":        10.0,
		"limits.output_flow_max":        100.0,
		"limits.output_flow_adjustable": true,
	},
	PresetCompact: {
		"mission.duration":              100.0,
		"mission.output_flow":           20.0,
		"limits.mission_duration_min":   10.0,
		"limits.mission_duration_max":   200.0,
		"limits.output_flow_min":        20.0,
		"limits.output_flow_max":        20.0,
		"limits.output_flow_adjustable": false,
	},
}

// Presets lists the known preset names.
func Presets() []string {
	return []string{PresetStandard, PresetCompact}
}

// Load reads configuration from configFile, or from config.yaml in the
// usual locations when configFile is empty.
func Load(configFile string) (*Config, error) {
	v := viper.New()

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	v.SetDefault("preset", PresetStandard)
	v.SetDefault("mission.tank_capacity", 3000.0)
	v.SetDefault("mission.reservoirs", []float64{2000, 2000, 2000})
	v.SetDefault("mission.replenish_pause", "2s")
	v.SetDefault("mission.tick_interval", "1s")
	v.SetDefault("mission.auto_start", false)
	v.SetDefault("mqtt.client_id", "mixer-line")
	v.SetDefault("mqtt.topics.telemetry", "mixer/telemetry")
	v.SetDefault("mqtt.topics.commands", "mixer/commands")
	v.SetDefault("server.enabled", false)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("log.level", "info")

	v.SetEnvPrefix("mixer")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	preset := v.GetString("preset")
	defaults, ok := presets[preset]
	if !ok {
		return nil, fmt.Errorf("unknown preset %q (want one of %s)", preset, strings.Join(Presets(), ", "))
	}
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if config.MQTT.Broker == "" {
		config.MQTT.Broker = os.Getenv("MQTT_BROKER")
	}
	if config.MQTT.Username == "" {
		config.MQTT.Username = os.Getenv("MQTT_USERNAME")
	}
	if config.MQTT.Password == "" {
		config.MQTT.Password = os.Getenv("MQTT_PASSWORD")
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

func (c *Config) Validate() error {
	var errs []error

	if len(c.Mission.Reservoirs) != models.ReservoirCount {
		errs = append(errs, fmt.Errorf("mission.reservoirs must list %d quantities, got %d",
			models.ReservoirCount, len(c.Mission.Reservoirs)))
	} else if _, err := c.ControllerConfig(); err != nil {
		errs = append(errs, err)
	}
	if c.Mission.TickInterval <= 0 {
		errs = append(errs, fmt.Errorf("mission.tick_interval must be > 0, got %s", c.Mission.TickInterval))
	}
	if c.Limits.MissionDurationMin <= 0 || c.Limits.MissionDurationMin > c.Limits.MissionDurationMax {
		errs = append(errs, fmt.Errorf("limits: invalid mission duration range [%g, %g]",
			c.Limits.MissionDurationMin, c.Limits.MissionDurationMax))
	}
	if c.Limits.OutputFlowMin <= 0 || c.Limits.OutputFlowMin > c.Limits.OutputFlowMax {
		errs = append(errs, fmt.Errorf("limits: invalid output flow range [%g, %g]",
			c.Limits.OutputFlowMin, c.Limits.OutputFlowMax))
	}
	if c.Server.Enabled && (c.Server.Port <= 0 || c.Server.Port > 65535) {
		errs = append(errs, fmt.Errorf("server.port out of range: %d", c.Server.Port))
	}

	return errors.Join(errs...)
}

// ControllerConfig converts the mission section into controller parameters.
func (c *Config) ControllerConfig() (controller.Config, error) {
	if len(c.Mission.Reservoirs) != models.ReservoirCount {
		return controller.Config{}, fmt.Errorf("mission.reservoirs must list %d quantities, got %d",
			models.ReservoirCount, len(c.Mission.Reservoirs))
	}

	cc := controller.Config{
		MissionDuration: c.Mission.Duration,
		TankCapacity:    c.Mission.TankCapacity,
		OutputFlow:      c.Mission.OutputFlow,
		ReplenishPause:  c.Mission.ReplenishPause,
	}
	copy(cc.Reservoirs[:], c.Mission.Reservoirs)

	if err := cc.Validate(); err != nil {
		return controller.Config{}, err
	}
	return cc, nil
}
