package main

import (
	"io"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/sweeney/gpio-node/internal/config"
)

func newOutputsCmd(f *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "outputs",
		Short: "List configured devices, outputs and buttons",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := f.load()
			if err != nil {
				return err
			}
			writeOutputsTable(cmd.OutOrStdout(), cfg)
			return nil
		},
	}
}

func writeOutputsTable(w io.Writer, cfg config.Config) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Device", "Type", "Name", "Pin", "Active Low", "Default"})
	table.SetAutoFormatHeaders(false)

	for _, d := range cfg.Devices {
		switch d.Type {
		case config.TypeRelay:
			for _, o := range d.Outputs {
				table.Append([]string{d.Name, d.Type, o.Name, strconv.Itoa(o.Pin), onOff(o.ActiveLow), onOff(o.Default)})
			}
		default:
			if d.Output != nil {
				table.Append([]string{d.Name, d.Type, d.Output.Name, strconv.Itoa(d.Output.Pin), onOff(d.Output.ActiveLow), onOff(d.Default)})
			} else {
				table.Append([]string{d.Name, d.Type, d.Param, "-", "-", onOff(d.Default)})
			}
			if d.Button != nil {
				table.Append([]string{d.Name, "button", d.Param, strconv.Itoa(d.Button.Pin), onOff(d.Button.IsActiveLow()), "-"})
			}
		}
	}
	if cfg.Reset != nil {
		table.Append([]string{"-", "reset", "reset", strconv.Itoa(cfg.Reset.Pin), onOff(cfg.Reset.IsActiveLow()), "-"})
	}
	table.Render()
}

func onOff(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
