package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.NotNil(t, cfg)
	assert.Equal(t, logrus.InfoLevel, cfg.LogLevel)
	assert.Equal(t, 10*time.Second, cfg.ScanTimeout)
	assert.Equal(t, 30*time.Second, cfg.DeviceTimeout)
	assert.Equal(t, "table", cfg.OutputFormat)
}

func TestConfig_NewLogger(t *testing.T) {
	tests := []struct {
		name     string
		logLevel logrus.Level
	}{
		{
			name:     "creates logger with debug level",
			logLevel: logrus.DebugLevel,
		},
		{
			name:     "creates logger with info level",
			logLevel: logrus.InfoLevel,
		},
		{
			name:     "creates logger with warn level",
			logLevel: logrus.WarnLevel,
		},
		{
			name:     "creates logger with error level",
			logLevel: logrus.ErrorLevel,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{
				LogLevel: tt.logLevel,
			}

			logger := cfg.NewLogger()

			assert.NotNil(t, logger)
			assert.Equal(t, tt.logLevel, logger.GetLevel())

			// Verify formatter is set correctly
			formatter, ok := logger.Formatter.(*logrus.TextFormatter)
			assert.True(t, ok)
			assert.True(t, formatter.FullTimestamp)
			assert.Equal(t, time.RFC3339, formatter.TimestampFormat)
		})
	}
}

func TestConfig_CustomValues(t *testing.T) {
	cfg := &Config{
		LogLevel:      logrus.DebugLevel,
		ScanTimeout:   5 * time.Second,
		DeviceTimeout: 60 * time.Second,
		OutputFormat:  "json",
	}

	assert.Equal(t, logrus.DebugLevel, cfg.LogLevel)
	assert.Equal(t, 5*time.Second, cfg.ScanTimeout)
	assert.Equal(t, 60*time.Second, cfg.DeviceTimeout)
	assert.Equal(t, "json", cfg.OutputFormat)

	logger := cfg.NewLogger()
	assert.Equal(t, logrus.DebugLevel, logger.GetLevel())
}

func TestConfig_Validation(t *testing.T) {
	tests := []struct {
		name         string
		outputFormat string
		valid        bool
	}{
		{
			name:         "table format is valid",
			outputFormat: "table",
			valid:        true,
		},
		{
			name:         "json format is valid",
			outputFormat: "json",
			valid:        true,
		},
		{
			name:         "csv format is valid",
			outputFormat: "csv",
			valid:        true,
		},
		{
			name:         "unknown format",
			outputFormat: "xml",
			valid:        false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{
				OutputFormat: tt.outputFormat,
			}

			// Test that we can identify valid formats
			validFormats := []string{"table", "json", "csv"}
			isValid := false
			for _, format := range validFormats {
				if cfg.OutputFormat == format {
					isValid = true
					break
				}
			}

			assert.Equal(t, tt.valid, isValid)
		})
	}
}

func TestConfig_ZeroValues(t *testing.T) {
	cfg := &Config{}

	// Test that zero values don't cause panics
	logger := cfg.NewLogger()
	assert.NotNil(t, logger)

	// Zero log level should default to PanicLevel (0)
	assert.Equal(t, logrus.PanicLevel, logger.GetLevel())

	// Zero timeout values
	assert.Equal(t, time.Duration(0), cfg.ScanTimeout)
	assert.Equal(t, time.Duration(0), cfg.DeviceTimeout)

	// Empty output format
	assert.Equal(t, "", cfg.OutputFormat)
}

func TestDefaultConfig_WiresComponentDefaults(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, 115200, cfg.Sniffer.BaudRate)
	assert.Equal(t, "/dev/ttyS5", cfg.Firmware.UARTDevice)
	assert.NotEmpty(t, cfg.BondPath)
	assert.Equal(t, 5, cfg.AutoConnect.MaxRetries)
	assert.Equal(t, 30*time.Second, cfg.Monitor.BLEScanInterval)
	assert.Equal(t, 60*time.Second, cfg.Monitor.ClassicScanInterval)
	assert.Equal(t, 5*time.Second, cfg.Monitor.HFPPollInterval)
}

func TestSnifferOptionsOverridesOnlyNonZeroFields(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Sniffer.Port = "/dev/ttyUSB3"

	opts := cfg.SnifferOptions(logrus.StandardLogger())
	assert.Equal(t, "/dev/ttyUSB3", opts.Port)
	assert.Equal(t, 115200, opts.BaudRate) // cfg.Sniffer.BaudRate default, same as sniffer.DefaultOptions
}

func TestFirmwareOptionsOverridesOnlyNonZeroFields(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Firmware.BaudRate = 1500000

	opts := cfg.FirmwareOptions(logrus.StandardLogger())
	assert.Equal(t, "/dev/ttyS5", opts.UARTDevice)
	assert.Equal(t, 1500000, opts.BaudRate)
}

func TestLoadFromFileMissingReturnsDefaults(t *testing.T) {
	cfg, err := LoadFromFile(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().OutputFormat, cfg.OutputFormat)
}

func TestLoadFromFileAppliesOverlay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	contents := `
log_level: debug
output_format: json
scan_timeout: 15s
sniffer:
  port: /dev/ttyUSB1
  baud_rate: 230400
auto_connect:
  max_retries: 10
  initial_retry_delay: 2s
monitor:
  ble_scan_interval: 45s
`
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, logrus.DebugLevel, cfg.LogLevel)
	assert.Equal(t, "json", cfg.OutputFormat)
	assert.Equal(t, 15*time.Second, cfg.ScanTimeout)
	assert.Equal(t, "/dev/ttyUSB1", cfg.Sniffer.Port)
	assert.Equal(t, 230400, cfg.Sniffer.BaudRate)
	assert.Equal(t, 10, cfg.AutoConnect.MaxRetries)
	assert.Equal(t, 2*time.Second, cfg.AutoConnect.InitialRetryDelay)
	assert.Equal(t, 45*time.Second, cfg.Monitor.BLEScanInterval)
	// Untouched fields keep their defaults.
	assert.Equal(t, 30*time.Second, cfg.DeviceTimeout)
}

func TestLoadFromFileRejectsBadDuration(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("scan_timeout: not-a-duration\n"), 0o600))

	_, err := LoadFromFile(path)
	assert.Error(t, err)
}

func BenchmarkDefaultConfig(b *testing.B) {
	for i := 0; i < b.N; i++ {
		_ = DefaultConfig()
	}
}

func BenchmarkConfig_NewLogger(b *testing.B) {
	cfg := DefaultConfig()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = cfg.NewLogger()
	}
}
