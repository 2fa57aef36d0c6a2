// Package config aggregates the tunables for every collector and
// analyzer component into a single root Config, plus an optional YAML
// overlay for operators who don't want to hardcode paths/timeouts.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/srg/bluefusion/pkg/autoconnect"
	"github.com/srg/bluefusion/pkg/firmware"
	"github.com/srg/bluefusion/pkg/security"
	"github.com/srg/bluefusion/pkg/sniffer"
)

// Config holds application configuration
type Config struct {
	LogLevel      logrus.Level  `json:"log_level"`
	ScanTimeout   time.Duration `json:"scan_timeout"`
	DeviceTimeout time.Duration `json:"device_timeout"`
	OutputFormat  string        `json:"output_format"`

	Sniffer     SnifferConfig      `json:"sniffer"`
	Firmware    FirmwareConfig     `json:"firmware"`
	BondPath    string             `json:"bond_path"`
	AutoConnect autoconnect.Config `json:"auto_connect"`
	Monitor     MonitorConfig      `json:"monitor"`
}

// SnifferConfig holds the serial sniffer dongle's connection tunables.
type SnifferConfig struct {
	Port     string `json:"port"`
	BaudRate int    `json:"baud_rate"`
}

// FirmwareConfig holds the RTL8723D firmware loader's bring-up tunables.
type FirmwareConfig struct {
	UARTDevice string `json:"uart_device"`
	BaudRate   int    `json:"baud_rate"`
}

// MonitorConfig holds the unified monitor's loop periods.
type MonitorConfig struct {
	BLEScanInterval     time.Duration `json:"ble_scan_interval"`
	ClassicScanInterval time.Duration `json:"classic_scan_interval"`
	HFPPollInterval     time.Duration `json:"hfp_poll_interval"`
}

// DefaultConfig returns default configuration values
func DefaultConfig() *Config {
	return &Config{
		LogLevel:      logrus.InfoLevel,
		ScanTimeout:   10 * time.Second,
		DeviceTimeout: 30 * time.Second,
		OutputFormat:  "table", // table, json, csv

		Sniffer: SnifferConfig{
			BaudRate: 115200,
		},
		Firmware: FirmwareConfig{
			UARTDevice: "/dev/ttyS5",
			BaudRate:   115200,
		},
		BondPath:    security.DefaultBondPath(),
		AutoConnect: autoconnect.DefaultConfig(),
		Monitor: MonitorConfig{
			BLEScanInterval:     30 * time.Second,
			ClassicScanInterval: 60 * time.Second,
			HFPPollInterval:     5 * time.Second,
		},
	}
}

// NewLogger creates a configured logger instance
func (c *Config) NewLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(c.LogLevel)

	// Use structured logging format
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	})

	return logger
}

// SnifferOptions translates SnifferConfig into sniffer.Options, carrying
// the framing defaults sniffer.DefaultOptions already supplies.
func (c *Config) SnifferOptions(logger *logrus.Logger) sniffer.Options {
	opts := sniffer.DefaultOptions()
	opts.Logger = logger
	if c.Sniffer.Port != "" {
		opts.Port = c.Sniffer.Port
	}
	if c.Sniffer.BaudRate != 0 {
		opts.BaudRate = c.Sniffer.BaudRate
	}
	return opts
}

// FirmwareOptions translates FirmwareConfig into firmware.Options.
func (c *Config) FirmwareOptions(logger *logrus.Logger) firmware.Options {
	opts := firmware.DefaultOptions()
	opts.Logger = logger
	if c.Firmware.UARTDevice != "" {
		opts.UARTDevice = c.Firmware.UARTDevice
	}
	if c.Firmware.BaudRate != 0 {
		opts.BaudRate = c.Firmware.BaudRate
	}
	return opts
}

// overlay is the YAML-facing shape of Config. Durations are plain strings
// ("30s", "1m") parsed with time.ParseDuration, since yaml.v3 has no
// built-in time.Duration support. Every field left empty/zero in the
// overlay file leaves the programmatic default untouched.
type overlay struct {
	LogLevel      string `yaml:"log_level"`
	ScanTimeout   string `yaml:"scan_timeout"`
	DeviceTimeout string `yaml:"device_timeout"`
	OutputFormat  string `yaml:"output_format"`

	Sniffer struct {
		Port     string `yaml:"port"`
		BaudRate int    `yaml:"baud_rate"`
	} `yaml:"sniffer"`

	Firmware struct {
		UARTDevice string `yaml:"uart_device"`
		BaudRate   int    `yaml:"baud_rate"`
	} `yaml:"firmware"`

	BondPath string `yaml:"bond_path"`

	AutoConnect struct {
		MaxRetries          int    `yaml:"max_retries"`
		InitialRetryDelay   string `yaml:"initial_retry_delay"`
		MaxRetryDelay       string `yaml:"max_retry_delay"`
		ConnectionTimeout   string `yaml:"connection_timeout"`
		HealthCheckInterval string `yaml:"health_check_interval"`
	} `yaml:"auto_connect"`

	Monitor struct {
		BLEScanInterval     string `yaml:"ble_scan_interval"`
		ClassicScanInterval string `yaml:"classic_scan_interval"`
		HFPPollInterval     string `yaml:"hfp_poll_interval"`
	} `yaml:"monitor"`
}

// LoadFromFile reads a YAML overlay at path and applies it on top of
// DefaultConfig. A missing file is not an error; it just yields the
// defaults unmodified.
func LoadFromFile(path string) (*Config, error) {
	cfg := DefaultConfig()

	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	var ov overlay
	if err := yaml.Unmarshal(raw, &ov); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	if ov.LogLevel != "" {
		lvl, err := logrus.ParseLevel(ov.LogLevel)
		if err != nil {
			return nil, fmt.Errorf("log_level: %w", err)
		}
		cfg.LogLevel = lvl
	}
	if err := applyDuration(&cfg.ScanTimeout, ov.ScanTimeout, "scan_timeout"); err != nil {
		return nil, err
	}
	if err := applyDuration(&cfg.DeviceTimeout, ov.DeviceTimeout, "device_timeout"); err != nil {
		return nil, err
	}
	if ov.OutputFormat != "" {
		cfg.OutputFormat = ov.OutputFormat
	}

	if ov.Sniffer.Port != "" {
		cfg.Sniffer.Port = ov.Sniffer.Port
	}
	if ov.Sniffer.BaudRate != 0 {
		cfg.Sniffer.BaudRate = ov.Sniffer.BaudRate
	}

	if ov.Firmware.UARTDevice != "" {
		cfg.Firmware.UARTDevice = ov.Firmware.UARTDevice
	}
	if ov.Firmware.BaudRate != 0 {
		cfg.Firmware.BaudRate = ov.Firmware.BaudRate
	}

	if ov.BondPath != "" {
		cfg.BondPath = ov.BondPath
	}

	if ov.AutoConnect.MaxRetries != 0 {
		cfg.AutoConnect.MaxRetries = ov.AutoConnect.MaxRetries
	}
	if err := applyDuration(&cfg.AutoConnect.InitialRetryDelay, ov.AutoConnect.InitialRetryDelay, "auto_connect.initial_retry_delay"); err != nil {
		return nil, err
	}
	if err := applyDuration(&cfg.AutoConnect.MaxRetryDelay, ov.AutoConnect.MaxRetryDelay, "auto_connect.max_retry_delay"); err != nil {
		return nil, err
	}
	if err := applyDuration(&cfg.AutoConnect.ConnectionTimeout, ov.AutoConnect.ConnectionTimeout, "auto_connect.connection_timeout"); err != nil {
		return nil, err
	}
	if err := applyDuration(&cfg.AutoConnect.HealthCheckInterval, ov.AutoConnect.HealthCheckInterval, "auto_connect.health_check_interval"); err != nil {
		return nil, err
	}

	if err := applyDuration(&cfg.Monitor.BLEScanInterval, ov.Monitor.BLEScanInterval, "monitor.ble_scan_interval"); err != nil {
		return nil, err
	}
	if err := applyDuration(&cfg.Monitor.ClassicScanInterval, ov.Monitor.ClassicScanInterval, "monitor.classic_scan_interval"); err != nil {
		return nil, err
	}
	if err := applyDuration(&cfg.Monitor.HFPPollInterval, ov.Monitor.HFPPollInterval, "monitor.hfp_poll_interval"); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyDuration parses s (if non-empty) and writes it into *dst,
// returning a field-labelled error on a malformed duration string.
func applyDuration(dst *time.Duration, s, field string) error {
	if s == "" {
		return nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("%s: %w", field, err)
	}
	*dst = d
	return nil
}
