package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/vesselenergy/tinybms-gateway/pkg/bms"
	"github.com/vesselenergy/tinybms-gateway/pkg/config"
	"github.com/vesselenergy/tinybms-gateway/pkg/serial"
)

// NewSelftestCommand builds the "selftest" subcommand: open the serial
// link, run one poll cycle, and print the decoded snapshot, without
// touching the CAN side at all. Useful for verifying wiring to the TinyBMS
// module before bringing up the full gateway.
func NewSelftestCommand(flags *globalFlags) *cobra.Command {
	command := &cobra.Command{
		Use:   "selftest",
		Short: "Exercise the serial link and print one decoded snapshot",
		RunE: func(command *cobra.Command, args []string) error {
			logger := newLogger(flags)

			cfg, err := config.Load(flags.ConfigName, logger)
			if err != nil {
				return fmt.Errorf("loading configuration: %w", err)
			}

			transport, err := serial.Open(serial.Config{
				Device:          cfg.Serial.Device,
				BaudRate:        cfg.Serial.BaudRate,
				ResponseTimeout: cfg.Serial.ResponseTimeout,
			}, logger)
			if err != nil {
				return fmt.Errorf("opening serial link: %w", err)
			}
			defer transport.Close()

			client := bms.NewClient(transport, nil, logger)

			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			snap, err := client.PollCycle(ctx, bms.LiveData{}, 0, cfg.Serial.RetryCount, cfg.Serial.RetryBackoff)
			if err != nil {
				return fmt.Errorf("poll cycle failed: %w", err)
			}

			fmt.Printf("pack voltage:      %.2f V\n", snap.PackV)
			fmt.Printf("pack current:      %.2f A\n", snap.PackI)
			fmt.Printf("state of charge:   %.1f %%\n", snap.SOCPercent)
			fmt.Printf("state of health:   %.1f %%\n", snap.SOHPercent)
			fmt.Printf("min/max cell (mV): %d / %d\n", snap.MinCellMV, snap.MaxCellMV)
			fmt.Printf("temperatures (C):  %.1f %.1f %.1f\n", snap.TempC[0], snap.TempC[1], snap.TempC[2])
			fmt.Printf("online status:     0x%02X\n", snap.OnlineStatus)
			return nil
		},
	}
	return command
}
