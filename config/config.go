// Package config loads and watches the daemon configuration file. The
// recognized options mirror the core's Options surface plus the daemon-only
// concerns: telemetry link, flight log location, sound assets and the
// optional ground link.
package config

import (
	"fmt"
	"strconv"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"github.com/fdm225/mahRe2/battery"
)

const DefaultConfigFile = "/etc/mahre2/mahre2.yaml"

type Serial struct {
	Port string `mapstructure:"port"`
	Baud int    `mapstructure:"baud"`
	// Sensors maps telemetry frame ids (decimal strings in the file) to
	// sensor names.
	Sensors map[string]string `mapstructure:"sensors"`
}

type Battery struct {
	VoltageSensor     string  `mapstructure:"voltage-sensor"`
	CurrentSensor     string  `mapstructure:"current-sensor"`
	ConsumptionSensor string  `mapstructure:"consumption-sensor"`
	ThrottleChannel   string  `mapstructure:"throttle-channel"`
	ResetSwitch       string  `mapstructure:"reset-switch"`
	ReservePercent    int     `mapstructure:"reserve-percent"`
	FullCellVolts     float64 `mapstructure:"full-cell-volts"`
	CellDeltaVolts    float64 `mapstructure:"cell-delta-volts"`
	Announce          bool    `mapstructure:"announce"`
	MaxZeroAlerts     int     `mapstructure:"max-zero-alerts"`
	FlightMode        string  `mapstructure:"flight-mode"`
	BatteryID         string  `mapstructure:"battery-id"`
}

// Pack is the configured battery for one flight mode.
type Pack struct {
	CapacitymAh int `mapstructure:"capacity-mah"`
	CellCount   int `mapstructure:"cell-count"`
}

type Sound struct {
	Dir    string `mapstructure:"dir"`
	Player string `mapstructure:"player"`
}

type MQTT struct {
	Broker   string `mapstructure:"broker"`
	Topic    string `mapstructure:"topic"`
	ClientID string `mapstructure:"client-id"`
}

type Config struct {
	TickIntervalMS int             `mapstructure:"tick-interval-ms"`
	Serial         Serial          `mapstructure:"serial"`
	Battery        Battery         `mapstructure:"battery"`
	Packs          map[string]Pack `mapstructure:"packs"`
	Sound          Sound           `mapstructure:"sound"`
	FlightLog      string          `mapstructure:"flight-log"`
	MQTT           MQTT            `mapstructure:"mqtt"`
}

func setDefaults(v *viper.Viper) {
	def := battery.DefaultOptions()
	v.SetDefault("tick-interval-ms", 1000)
	v.SetDefault("serial.baud", 57600)
	v.SetDefault("battery.voltage-sensor", def.VoltageSensor)
	v.SetDefault("battery.current-sensor", def.CurrentSensor)
	v.SetDefault("battery.reserve-percent", def.ReservePercent)
	v.SetDefault("battery.full-cell-volts", def.FullCellVolts)
	v.SetDefault("battery.cell-delta-volts", def.CellDeltaVolts)
	v.SetDefault("battery.announce", def.Announce)
	v.SetDefault("battery.max-zero-alerts", def.MaxZeroAlerts)
	v.SetDefault("battery.flight-mode", def.FlightMode)
	v.SetDefault("battery.battery-id", def.BatteryID)
	v.SetDefault("sound.player", "aplay")
	v.SetDefault("mqtt.topic", "mahre2/sessions")
	v.SetDefault("mqtt.client-id", "mahre2")
	v.SetDefault("flight-log", "/var/lib/mahre2/flightlog.db")
}

// Load reads the file at path. A missing file is not an error; defaults
// apply and a watch still picks the file up if it appears later.
func Load(path string) (*Config, *viper.Viper, error) {
	v := viper.New()
	v.SetConfigFile(path)
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			// viper wraps fs errors differently depending on the path form;
			// only a parse failure is fatal here.
			if _, ok := err.(viper.ConfigParseError); ok {
				return nil, nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}

	cfg, err := unmarshal(v)
	if err != nil {
		return nil, nil, err
	}
	return cfg, v, nil
}

func unmarshal(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if cfg.Battery.ReservePercent < 0 || cfg.Battery.ReservePercent > 100 {
		return nil, fmt.Errorf("reserve-percent %d outside [0,100]", cfg.Battery.ReservePercent)
	}
	return &cfg, nil
}

// Watch re-unmarshals on file changes and hands the result to onChange.
// A config that fails validation is logged and skipped; the daemon keeps
// running on the previous one.
func Watch(v *viper.Viper, log *logrus.Logger, onChange func(*Config)) {
	v.OnConfigChange(func(fsnotify.Event) {
		cfg, err := unmarshal(v)
		if err != nil {
			log.Errorf("config reload rejected: %v", err)
			return
		}
		log.Info("configuration reloaded")
		onChange(cfg)
	})
	v.WatchConfig()
}

// Options converts the battery section to the core's option set.
func (c *Config) Options() battery.Options {
	b := c.Battery
	return battery.Options{
		VoltageSensor:     b.VoltageSensor,
		CurrentSensor:     b.CurrentSensor,
		ConsumptionSensor: b.ConsumptionSensor,
		ThrottleChannel:   b.ThrottleChannel,
		ResetSwitch:       b.ResetSwitch,
		ReservePercent:    b.ReservePercent,
		FullCellVolts:     b.FullCellVolts,
		CellDeltaVolts:    b.CellDeltaVolts,
		Announce:          b.Announce,
		MaxZeroAlerts:     b.MaxZeroAlerts,
		FlightMode:        b.FlightMode,
		BatteryID:         b.BatteryID,
	}
}

// SensorIDs parses the serial sensor map's decimal id keys.
func (c *Config) SensorIDs() (map[byte]string, error) {
	ids := make(map[byte]string, len(c.Serial.Sensors))
	for key, name := range c.Serial.Sensors {
		id, err := strconv.ParseUint(key, 10, 8)
		if err != nil {
			return nil, fmt.Errorf("bad sensor id %q: %w", key, err)
		}
		ids[byte(id)] = name
	}
	return ids, nil
}

// ModelStore is the battery.Model backed by the packs table, selected by
// the configured flight mode. Safe for concurrent update on config reload.
type ModelStore struct {
	mu    sync.Mutex
	packs map[string]Pack
	mode  string
}

func NewModelStore(cfg *Config) *ModelStore {
	m := &ModelStore{}
	m.Update(cfg)
	return m
}

func (m *ModelStore) Update(cfg *Config) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.packs = cfg.Packs
	m.mode = cfg.Battery.FlightMode
}

// BatteryConfig returns the pack for the current flight mode, or zeros when
// no pack is configured (the estimator then falls back to the voltage
// method).
func (m *ModelStore) BatteryConfig() (int, int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	pack, ok := m.packs[m.mode]
	if !ok {
		return 0, 0
	}
	return pack.CapacitymAh, pack.CellCount
}
