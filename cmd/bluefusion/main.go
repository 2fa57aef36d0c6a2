package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"unicode"

	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// formatVersion adds a 'v' prefix if version starts with a digit.
func formatVersion(ver string) string {
	if len(ver) > 0 && unicode.IsDigit(rune(ver[0])) {
		return "v" + ver
	}
	return ver
}

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "bluefusion",
	Short: "Dual-mode BLE + classic Bluetooth/HFP monitoring toolkit",
	Long: `bluefusion is a command-line toolkit for bringing up, scanning and
diagnosing dual-mode Bluetooth radios:

- Scan and discover nearby BLE devices
- Inspect the GATT services a device exposes
- Load RTL8723D firmware over the bring-up UART
- Run the unified BLE + classic/HFP monitor
- Exercise the HFP connect/SCO/disconnect flow against a known device

Ideal for bring-up bench work and Bluetooth stack diagnostics.`,
	Version: formatVersion(version),
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		fmt.Fprintf(os.Stderr, "ERROR: %s\n", FormatUserError(err))
		os.Exit(1)
	}
}

func init() {
	// Silence Cobra's "Error:" prefix - main() prints clean errors.
	rootCmd.SilenceErrors = true

	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(inspectCmd)
	rootCmd.AddCommand(monitorCmd)
	rootCmd.AddCommand(firmwareCmd)
	rootCmd.AddCommand(hfpTestCmd)

	rootCmd.PersistentFlags().String("log-level", "", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("config", "", "Path to a YAML config overlay")

	rootCmd.Flags().BoolP("version", "v", false, "Show version information")
}
