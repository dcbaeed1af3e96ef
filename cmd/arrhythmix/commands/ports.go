package commands

import (
	"fmt"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/banshee-data/arrhythmix/internal/source"
)

var green = color.New(color.FgGreen)

func newPortsCommand() *cobra.Command {
	var identifier string
	cmd := &cobra.Command{
		Use:   "ports",
		Short: "List serial ports and mark the ECG device",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return listPorts(cmd, source.ListPorts, identifier)
		},
	}
	cmd.Flags().StringVar(&identifier, "identifier", source.DefaultIdentifier, "USB product, serial number or port name of the ECG device")
	return cmd
}

func listPorts(cmd *cobra.Command, lister source.PortLister, identifier string) error {
	ports, err := lister()
	if err != nil {
		return fmt.Errorf("failed to list serial ports: %w", err)
	}
	out := cmd.OutOrStdout()
	if len(ports) == 0 {
		fmt.Fprintln(out, "No serial ports found")
		return nil
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "\tPORT\tUSB\tVID:PID\tSERIAL\tPRODUCT")
	for _, p := range ports {
		mark := ""
		if p.Matches(identifier) {
			mark = green.Sprint("*")
		}
		vidpid := "-"
		if p.IsUSB {
			vidpid = p.VID + ":" + p.PID
		}
		fmt.Fprintf(tw, "%s\t%s\t%t\t%s\t%s\t%s\n", mark, p.Name, p.IsUSB, vidpid, p.SerialNumber, p.Product)
	}
	return tw.Flush()
}
