package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	gateway "github.com/vesselenergy/tinybms-gateway"
	"github.com/vesselenergy/tinybms-gateway/pkg/canbus"
	_ "github.com/vesselenergy/tinybms-gateway/pkg/canbus/socketcan"
	_ "github.com/vesselenergy/tinybms-gateway/pkg/canbus/virtual"
	"github.com/vesselenergy/tinybms-gateway/pkg/config"
	"github.com/vesselenergy/tinybms-gateway/pkg/serial"
)

// NewRunCommand builds the "run" subcommand: load configuration, construct
// the serial transport and CAN bus, wire a Gateway, and run until an
// interrupt or terminate signal arrives. Grounded on the teacher's
// cmd/canopen/main.go ordering ("construct the bus, then construct the
// node, then enter the run loop"), replacing its flag-driven state machine
// with signal.NotifyContext-driven cancellation.
func NewRunCommand(flags *globalFlags) *cobra.Command {
	command := &cobra.Command{
		Use:   "run",
		Short: "Start the gateway and run until interrupted",
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

			bus, err := canbus.NewBus(cfg.CAN.Interface, cfg.CAN.Channel)
			if err != nil {
				return fmt.Errorf("constructing can bus: %w", err)
			}

			gw := gateway.New(cfg, gateway.Dependencies{Transport: transport, Bus: bus}, logger)

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if err := gw.Start(ctx); err != nil {
				return fmt.Errorf("starting gateway: %w", err)
			}

			<-ctx.Done()
			logger.Info("shutdown signal received")
			return gw.Shutdown()
		},
	}
	return command
}
