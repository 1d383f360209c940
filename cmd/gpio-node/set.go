package main

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/sweeney/gpio-node/internal/config"
	"github.com/sweeney/gpio-node/internal/gpio"
	"github.com/sweeney/gpio-node/internal/logic"
)

func newSetCmd(f *rootFlags) *cobra.Command {
	var hold time.Duration
	cmd := &cobra.Command{
		Use:   "set <output> <on|off>",
		Short: "Drive one configured output and hold it",
		Long: "Drive one configured output by name. The level is held for --hold, " +
			"or until SIGINT/SIGTERM when --hold is 0. Closing the GPIO backend releases the pin.",
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			on, err := parseOnOff(args[1])
			if err != nil {
				return err
			}
			cfg, err := f.load()
			if err != nil {
				return err
			}
			spec, ok := findOutput(cfg, args[0])
			if !ok {
				return fmt.Errorf("output %q: %w", args[0], logic.ErrNotFound)
			}
			pins, err := gpio.Open(cfg.GPIO.Backend, cfg.GPIO.Chip)
			if err != nil {
				return fmt.Errorf("init gpio: %w", err)
			}
			defer pins.Close()

			if err := driveOutput(pins, spec, on); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s (pin %d) %s\n", spec.Name, spec.Pin, onOffWord(on))

			if hold > 0 {
				time.Sleep(hold)
				return nil
			}
			sig := make(chan os.Signal, 1)
			signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
			<-sig
			return nil
		},
	}
	cmd.Flags().DurationVar(&hold, "hold", 0, "how long to hold the level (0 = until interrupted)")
	return cmd
}

// findOutput looks name up across relay outputs and switch outputs.
func findOutput(cfg config.Config, name string) (logic.OutputSpec, bool) {
	for _, d := range cfg.Devices {
		for _, o := range d.Outputs {
			if o.Name == name {
				return logic.OutputSpec{Name: o.Name, Pin: o.Pin, ActiveLow: o.ActiveLow, Default: o.Default}, true
			}
		}
		if d.Output != nil && d.Output.Name == name {
			return logic.OutputSpec{Name: d.Output.Name, Pin: d.Output.Pin, ActiveLow: d.Output.ActiveLow, Default: d.Default}, true
		}
	}
	return logic.OutputSpec{}, false
}

// driveOutput initialises spec at its default and then drives it to on.
func driveOutput(pins logic.PinWriter, spec logic.OutputSpec, on bool) error {
	d, err := logic.NewDispatcher(pins, []logic.OutputSpec{spec})
	if err != nil {
		return err
	}
	if err := d.Init(); err != nil {
		return err
	}
	return d.SetOutput(spec.Name, on)
}

func parseOnOff(s string) (bool, error) {
	switch strings.ToLower(s) {
	case "on", "true", "1", "high":
		return true, nil
	case "off", "false", "0", "low":
		return false, nil
	}
	return false, fmt.Errorf("invalid state %q (want on or off)", s)
}

func onOffWord(on bool) string {
	if on {
		return "on"
	}
	return "off"
}
