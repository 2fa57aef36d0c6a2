package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	monitorpkg "github.com/srg/bluefusion/pkg/monitor"
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Run the unified BLE + classic/HFP monitor",
	Long: `Starts the unified monitor: a continuous BLE advertisement scan
feeding the protocol inspector and pattern analyzer, a classic/HFP
connection-health loop, and the auto-connect manager for any devices
already recorded in its state file. Prints the combined status
periodically until interrupted.`,
	RunE: runMonitor,
}

var monitorStatusInterval time.Duration

func init() {
	monitorCmd.Flags().DurationVar(&monitorStatusInterval, "status-interval", 10*time.Second, "How often to print the combined status")
}

func runMonitor(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger := cfg.NewLogger()

	m := monitorpkg.New(cfg, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Fprintln(os.Stderr, "\nmonitor stopping")
		cancel()
	}()

	m.Start(ctx)
	defer m.Stop()

	ticker := time.NewTicker(monitorStatusInterval)
	defer ticker.Stop()

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := enc.Encode(m.GetCombinedStatus()); err != nil {
				return err
			}
		}
	}
}
