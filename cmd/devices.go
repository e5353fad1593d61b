package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/smazurov/framelink/internal/capture"
)

// CreateDevicesCmd creates the devices command.
func CreateDevicesCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "devices",
		Short: "List cameras",
		Long:  `Lists test patterns and V4L2 capture devices with their frame sizes and control ranges.`,
		Args:  cobra.NoArgs,
		RunE: func(c *cobra.Command, _ []string) error {
			provider, err := NewProvider(nil)
			if err != nil {
				return err
			}
			devices, err := provider.Devices(c.Context())
			if err != nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(devices)
			}
			return printDevices(os.Stdout, devices)
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON")
	return cmd
}

func printDevices(w io.Writer, devices []capture.Device) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tSIZES\tZOOM\tEXPOSURE\tFOCUS\tFLASH")
	for _, d := range devices {
		sizes := make([]string, len(d.Sizes))
		for i, s := range d.Sizes {
			sizes[i] = s.String()
		}
		caps := d.Capabilities
		focus := "fixed"
		if caps.ManualFocus() {
			focus = "manual"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t1-%.1f\t%d..%d\t%s\t%t\n",
			d.ID, d.Name, strings.Join(sizes, ","), caps.MaxZoom, caps.ExposureMin, caps.ExposureMax, focus, caps.FlashAvailable)
	}
	return tw.Flush()
}
