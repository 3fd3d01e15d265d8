package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/eightkbd/kbdctl/hidraw"
	"github.com/eightkbd/kbdctl/internal/diag"
	"github.com/eightkbd/kbdctl/kbd"
	"github.com/eightkbd/kbdctl/keys"
)

var (
	flagTest    bool
	flagForce   bool
	flagVerbose bool
	flagNoCache bool

	flagVendor    uint16
	flagProduct   uint16
	flagInterface int
)

var rootCmd = &cobra.Command{
	Use:   "kbdctl",
	Short: "Configure the 8-key programmable pad over raw HID",
	Long: `kbdctl reads and writes the profile an 8-key programmable pad
(2dc8:5200) stores in flash: its name, key mappings, and macros.
It can also decode usbmon captures of the device's USB traffic.`,
	SilenceUsage:  true,
	SilenceErrors: false,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		diag.SetVerbose(flagVerbose)
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.BoolVar(&flagTest, "test", false,
		"go through the motions but don't update the device (the profile is still read)")
	pf.BoolVar(&flagForce, "force", false,
		"don't read the profile first; apply every change even when redundant")
	pf.BoolVarP(&flagVerbose, "verbose", "v", false,
		"log every packet exchanged")
	pf.BoolVar(&flagNoCache, "no-cache", false,
		"ignore the on-disk report descriptor cache")
	pf.Uint16Var(&flagVendor, "vendor", kbd.VendorID, "USB vendor id")
	pf.Uint16Var(&flagProduct, "product", kbd.ProductID, "USB product id")
	pf.IntVar(&flagInterface, "interface", kbd.InterfaceNum, "USB interface number")

	rootCmd.AddCommand(listInCodesCmd, listOutCodesCmd, getProfileCmd,
		setNameCmd, setKeyCmd, setMacroCmd, setAllDefaultCmd, scanCmd)
}

// withKeyboard opens the device, builds the protocol engine, runs fn's
// edits, and submits them honoring the test/force flags.
func withKeyboard(fn func(k *kbd.Keyboard) error) error {
	dev, err := hidraw.Open(flagVendor, flagProduct, flagInterface, flagNoCache)
	if err != nil {
		return err
	}
	defer dev.Close()

	k, err := kbd.NewKeyboard(dev, !flagForce)
	if err != nil {
		return err
	}
	if err := fn(k); err != nil {
		return err
	}
	if flagTest {
		fmt.Println(k.New)
		diag.Logger.Info().Msg("test mode: these packets would be sent")
	}
	return k.Submit(flagTest)
}

var listInCodesCmd = &cobra.Command{
	Use:   "list-in-codes",
	Short: "List the key codes mappings can be set on, with their names",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		for _, line := range kbd.ListInCodes() {
			fmt.Println(line)
		}
	},
}

var listOutCodesCmd = &cobra.Command{
	Use:   "list-out-codes",
	Short: "List the key codes a key may be assigned to, with their names",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		for _, line := range kbd.ListOutCodes() {
			fmt.Println(line)
		}
	},
}

var getProfileCmd = &cobra.Command{
	Use:   "get-profile",
	Short: "Read and print the profile stored on the device",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		dev, err := hidraw.Open(flagVendor, flagProduct, flagInterface, flagNoCache)
		if err != nil {
			return err
		}
		defer dev.Close()

		k, err := kbd.NewKeyboard(dev, true)
		if err != nil {
			return err
		}
		fmt.Println(k.Current)
		return nil
	},
}

var setNameCmd = &cobra.Command{
	Use:   "set-name <name>",
	Short: "Set the profile name (an empty name disables the profile button)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withKeyboard(func(k *kbd.Keyboard) error {
			return k.SetName(args[0])
		})
	},
}

var setKeyCmd = &cobra.Command{
	Use:   "set-key <in-key> [<mod-key>+]<out-key>",
	Short: "Map a key, optionally with a modifier held alongside",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		fromKey, err := keys.DeviceKeyFromName(args[0])
		if err != nil {
			return err
		}
		modKey, toKey, err := parseTarget(args[1])
		if err != nil {
			return err
		}
		return withKeyboard(func(k *kbd.Keyboard) error {
			return k.SetKey(fromKey, toKey, modKey)
		})
	},
}

// parseTarget splits an optional "mod+key" form. A trailing '+' is part
// of a key name ("kp+"), not a separator.
func parseTarget(arg string) (modKey, toKey uint8, err error) {
	split := strings.IndexByte(arg, '+')
	if split >= 0 && split != len(arg)-1 {
		modKey, err = keys.ModifierCodeFromName(arg[:split])
		if err != nil {
			return 0, 0, err
		}
		toKey, err = keys.HUTCodeFromName(arg[split+1:])
		return modKey, toKey, err
	}
	toKey, err = keys.HUTCodeFromName(arg)
	return 0, toKey, err
}

var setMacroCmd = &cobra.Command{
	Use:   "set-macro <in-key> <name> <repeats> [down|up <key> <delay-ms>]... [end]",
	Short: "Set a macro on a key (repeats 0 deletes it)",
	Args:  cobra.MinimumNArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		fromKey, err := keys.DeviceKeyFromName(args[0])
		if err != nil {
			return err
		}
		name := args[1]
		var repeats uint16
		if _, err := fmt.Sscanf(args[2], "%d", &repeats); err != nil {
			return fmt.Errorf("repeats must be an integer 0 to 65535: %w", err)
		}
		events, err := parseMacroEvents(args[3:])
		if err != nil {
			return err
		}
		return withKeyboard(func(k *kbd.Keyboard) error {
			return k.SetMacro(fromKey, name, repeats, events)
		})
	},
}

// parseMacroEvents consumes (action, key, delay) triples, stopping at
// an "end" marker.
func parseMacroEvents(args []string) ([]kbd.Event, error) {
	var events []kbd.Event
	for i := 0; i < len(args); i += 3 {
		if args[i] == "end" {
			break
		}
		if i+2 >= len(args) {
			return nil, fmt.Errorf("incomplete macro event: want <down|up> <key> <delay-ms>")
		}
		code, err := keys.HUTCodeFromName(args[i+1])
		if err != nil {
			return nil, err
		}
		if !keys.IsAssignable(code, false) {
			return nil, fmt.Errorf("key code %d is unassignable", code)
		}
		var delay uint16
		if _, err := fmt.Sscanf(args[i+2], "%d", &delay); err != nil {
			return nil, fmt.Errorf("delay must be 0 to 65535: %w", err)
		}
		isMod := keys.IsModifier(code, false)
		switch strings.ToLower(args[i]) {
		case "down":
			if isMod {
				events = append(events, kbd.Event{Action: kbd.EventModPress, Arg: uint16(code)})
			} else {
				events = append(events, kbd.Event{Action: kbd.EventPress, Arg: uint16(code)})
			}
		case "up":
			if isMod {
				events = append(events, kbd.Event{Action: kbd.EventModRelease, Arg: uint16(code)})
			} else {
				events = append(events, kbd.Event{Action: kbd.EventRelease, Arg: uint16(code)})
			}
		default:
			return nil, fmt.Errorf("invalid event type %q", args[i])
		}
		if delay != 0 {
			events = append(events, kbd.Event{Action: kbd.EventDelay, Arg: delay})
		}
	}
	return events, nil
}

var setAllDefaultCmd = &cobra.Command{
	Use:   "set-all-default",
	Short: "Restore every key to its default mapping and drop all macros",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withKeyboard(func(k *kbd.Keyboard) error {
			k.SetAllDefault()
			return nil
		})
	},
}
