package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	monitorpkg "github.com/srg/bluefusion/pkg/monitor"
)

var hfpTestCmd = &cobra.Command{
	Use:   "hfp-test <device-address>",
	Short: "Exercise the HFP connect / SCO setup / disconnect flow",
	Long: `Registers the given address as an HFP-capable classic device and
runs the four-step diagnostic flow against it: HFP connect, SCO setup,
a five-second audio quality sample, then disconnect. Prints a
structured per-step report, including the failure analyzer's output
for any step that does not succeed.`,
	Args: cobra.ExactArgs(1),
	RunE: runHFPTest,
}

var hfpTestTimeout time.Duration

func init() {
	hfpTestCmd.Flags().DurationVar(&hfpTestTimeout, "timeout", 30*time.Second, "Overall timeout for the test flow")
}

func runHFPTest(cmd *cobra.Command, args []string) error {
	address := args[0]

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger := cfg.NewLogger()

	m := monitorpkg.New(cfg, logger)
	m.AddClassicDevice(address, "hfp-test target", []string{"HFP"})

	ctx, cancel := context.WithTimeout(context.Background(), hfpTestTimeout)
	defer cancel()

	report := m.TestHFPConnection(ctx, address)

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		return err
	}

	if !report.Success {
		fmt.Fprintln(os.Stderr, "hfp-test: flow did not complete successfully")
		os.Exit(1)
	}
	return nil
}
