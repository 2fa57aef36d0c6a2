package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/srg/bluefusion/pkg/firmware"
)

var firmwareCmd = &cobra.Command{
	Use:   "firmware-load <patch-file> <config-file>",
	Short: "Load RTL8723D firmware over the bring-up UART",
	Long: `Drives the H5 bring-up sequence against the RTL8723D: resets the
controller, reads its local version, uploads the patch and config
blobs, and optionally switches the UART to a higher post-patch baud
rate.`,
	Args: cobra.ExactArgs(2),
	RunE: runFirmwareLoad,
}

var firmwarePostPatchBaud int

func init() {
	firmwareCmd.Flags().IntVar(&firmwarePostPatchBaud, "post-patch-baud", 0, "Baud rate to switch to after patching (0 to leave unchanged)")
}

func runFirmwareLoad(cmd *cobra.Command, args []string) error {
	fwPath, cfgPath := args[0], args[1]

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger := cfg.NewLogger()

	fwBytes, err := os.ReadFile(fwPath)
	if err != nil {
		return fmt.Errorf("read firmware file: %w", err)
	}
	cfgBytes, err := os.ReadFile(cfgPath)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}

	loader, err := firmware.NewLoader(cfg.FirmwareOptions(logger))
	if err != nil {
		return fmt.Errorf("open bring-up UART: %w", err)
	}
	defer loader.Close()

	if err := loader.SetupDevice(fwBytes, cfgBytes, firmwarePostPatchBaud); err != nil {
		return fmt.Errorf("firmware bring-up: %w", err)
	}

	fmt.Println("firmware load complete")
	return nil
}
