package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/srg/bluefusion/pkg/blesource"
	"github.com/srg/bluefusion/pkg/packet"
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Scan for nearby BLE devices",
	Long: `Scan for and display Bluetooth Low Energy devices in the vicinity.

Discovered devices are displayed with their address, advertised local
name, RSSI and manufacturer data size, sorted strongest-signal first.`,
	RunE: runScan,
}

var (
	scanDuration time.Duration
	scanFormat   string
	scanNoDup    bool
)

func init() {
	scanCmd.Flags().DurationVarP(&scanDuration, "duration", "d", 10*time.Second, "Scan duration (0 for indefinite, Ctrl+C to stop)")
	scanCmd.Flags().StringVarP(&scanFormat, "format", "f", "table", "Output format (table, json, csv)")
	scanCmd.Flags().BoolVar(&scanNoDup, "no-duplicates", false, "Suppress repeat advertisements from the same address")
}

type scannedDevice struct {
	Address   string    `json:"address"`
	LocalName string    `json:"local_name"`
	RSSI      int8      `json:"rssi"`
	DataLen   int       `json:"data_len"`
	LastSeen  time.Time `json:"last_seen"`
}

func runScan(cmd *cobra.Command, args []string) error {
	switch scanFormat {
	case "table", "json", "csv":
	default:
		return fmt.Errorf("invalid format %q: must be one of table, json, csv", scanFormat)
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger := cfg.NewLogger()

	source, err := blesource.New(blesource.Options{Logger: logger})
	if err != nil {
		return fmt.Errorf("open BLE adapter: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if scanDuration > 0 {
		ctx, cancel = context.WithTimeout(ctx, scanDuration)
		defer cancel()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Fprintln(os.Stderr, "\nscan interrupted")
		cancel()
	}()

	out := make(chan packet.Packet, 64)
	devices := map[string]*scannedDevice{}

	done := make(chan error, 1)
	go func() { done <- source.Scan(ctx, !scanNoDup, out) }()

loop:
	for {
		select {
		case p := <-out:
			recordScannedDevice(devices, p)
		case err := <-done:
			if err != nil {
				return fmt.Errorf("scan: %w", err)
			}
			break loop
		}
	}

	return displayDevices(devices, scanFormat)
}

func recordScannedDevice(devices map[string]*scannedDevice, p packet.Packet) {
	addr := p.Address.String()
	dev, ok := devices[addr]
	if !ok {
		dev = &scannedDevice{Address: addr}
		devices[addr] = dev
	}
	if name, ok := p.Metadata["local_name"].(string); ok && name != "" {
		dev.LocalName = name
	}
	dev.RSSI = p.RSSI
	dev.DataLen = len(p.Payload)
	dev.LastSeen = p.WallClock
}

func displayDevices(devices map[string]*scannedDevice, format string) error {
	list := make([]*scannedDevice, 0, len(devices))
	for _, d := range devices {
		list = append(list, d)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].RSSI > list[j].RSSI })

	if len(list) == 0 {
		fmt.Println("no devices discovered")
		return nil
	}

	switch format {
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(list)
	case "csv":
		fmt.Println("Address,LocalName,RSSI,DataLen,LastSeen")
		for _, d := range list {
			fmt.Printf("%s,%s,%d,%d,%s\n", d.Address, d.LocalName, d.RSSI, d.DataLen, d.LastSeen.Format(time.RFC3339))
		}
		return nil
	default:
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ADDRESS\tNAME\tRSSI\tDATA\tLAST SEEN")
		fmt.Fprintln(w, strings.Repeat("-", 60))
		for _, d := range list {
			fmt.Fprintf(w, "%s\t%s\t%d dBm\t%d bytes\t%s ago\n",
				d.Address, d.LocalName, d.RSSI, d.DataLen, time.Since(d.LastSeen).Truncate(time.Second))
		}
		return w.Flush()
	}
}
