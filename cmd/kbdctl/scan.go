package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/eightkbd/kbdctl/urb"
)

var (
	flagScanLoad  string
	flagScanSave  string
	flagScanCount int
)

var scanCmd = &cobra.Command{
	Use:   "scan <pcapng-file>",
	Short: "Decode usbmon HID traffic captured into a pcapng file",
	Long: `scan rebuilds USB protocol state from a usbmon capture and prints one
interpreted line per URB, collapsing repeating traffic patterns.

A state snapshot may be saved after a scan and loaded before another,
so a capture that starts mid-session still decodes: the snapshot holds
the control transfers that established the device's descriptors.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := urb.NewContext()

		if flagScanLoad != "" {
			f, err := os.Open(flagScanLoad)
			if err != nil {
				return err
			}
			state, err := urb.ReadState(f)
			f.Close()
			if err != nil {
				return err
			}
			if err := ctx.SetState(state); err != nil {
				return err
			}
			fmt.Println("State loaded")
		}

		capture, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer capture.Close()

		emit := func(line string) { fmt.Println(line) }
		var dedup *urb.Dedup
		if !flagVerbose {
			dedup = urb.NewDedup(emit)
			emit = dedup.Add
		}
		if err := urb.ScanCapture(ctx, capture, flagScanCount, emit); err != nil {
			return err
		}
		if dedup != nil {
			dedup.Flush()
		}

		if flagScanSave != "" {
			f, err := os.Create(flagScanSave)
			if err != nil {
				return err
			}
			defer f.Close()
			if err := urb.WriteState(f, ctx.GetState()); err != nil {
				return err
			}
			fmt.Println("State saved")
		}
		return nil
	},
}

func init() {
	scanCmd.Flags().StringVar(&flagScanLoad, "load", "", "state snapshot to replay before scanning")
	scanCmd.Flags().StringVar(&flagScanSave, "save", "", "file to save the resulting state snapshot to")
	scanCmd.Flags().IntVar(&flagScanCount, "count", -1, "stop after this many packets (-1 for all)")
}
