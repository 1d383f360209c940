package main

import (
	"fmt"
	"io"
	"sort"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/sweeney/gpio-node/internal/config"
	"github.com/sweeney/gpio-node/internal/gpio"
)

// inputPin is one configured button input.
type inputPin struct {
	owner     string
	pin       int
	activeLow bool
}

func newStateCmd(f *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "state",
		Short: "Read every configured button input once and print it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := f.load()
			if err != nil {
				return err
			}
			pins, err := gpio.Open(cfg.GPIO.Backend, cfg.GPIO.Chip)
			if err != nil {
				return fmt.Errorf("init gpio: %w", err)
			}
			defer pins.Close()
			return printInputs(cmd.OutOrStdout(), pins, inputPins(cfg))
		},
	}
}

func inputPins(cfg config.Config) []inputPin {
	var out []inputPin
	for _, d := range cfg.Devices {
		if d.Button != nil {
			out = append(out, inputPin{owner: d.Name, pin: d.Button.Pin, activeLow: d.Button.IsActiveLow()})
		}
	}
	if cfg.Reset != nil {
		out = append(out, inputPin{owner: "reset", pin: cfg.Reset.Pin, activeLow: cfg.Reset.IsActiveLow()})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].pin < out[j].pin })
	return out
}

// printInputs configures each input, reads its level and prints a row.
// Pins shared by several owners are configured once.
func printInputs(w io.Writer, pins gpio.LevelReader, inputs []inputPin) error {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Owner", "Pin", "Level", "Pressed"})
	table.SetAutoFormatHeaders(false)

	configured := make(map[int]bool)
	for _, in := range inputs {
		if !configured[in.pin] {
			if err := pins.ConfigureInput(in.pin, in.activeLow); err != nil {
				return fmt.Errorf("%s: configure pin %d: %w", in.owner, in.pin, err)
			}
			configured[in.pin] = true
		}
		level, err := pins.ReadLevel(in.pin)
		if err != nil {
			return fmt.Errorf("%s: read pin %d: %w", in.owner, in.pin, err)
		}
		table.Append([]string{in.owner, strconv.Itoa(in.pin), levelName(level), onOff(level != in.activeLow)})
	}
	table.Render()
	return nil
}

func levelName(high bool) string {
	if high {
		return "high"
	}
	return "low"
}
