// Command cbcentral scans for, inspects and talks to Bluetooth Low Energy
// peripherals from the command line.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "cbcentral",
		Short: "Bluetooth Low Energy central tool",
		Long: `Bluetooth Low Energy (BLE) central tool that can:

- Report the state of the Bluetooth radio
- Scan for nearby peripherals
- Inspect GATT services, characteristics and descriptors
- Read, write and subscribe to characteristics
- Open a terminal on a Nordic UART Service peripheral`,
		Version: version,
		// main prints errors itself.
		SilenceErrors: true,
	}

	root.PersistentFlags().StringP("config", "c", "", "YAML configuration file")
	root.PersistentFlags().String("log-level", "", "Log level (debug, info, warn, error)")
	root.PersistentFlags().StringP("format", "f", "", "Output format (table, json)")

	root.AddCommand(
		newStateCmd(),
		newScanCmd(),
		newInspectCmd(),
		newReadCmd(),
		newWriteCmd(),
		newSubscribeCmd(),
		newConsoleCmd(),
	)
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		// Ctrl+C is a normal exit.
		if errors.Is(err, context.Canceled) {
			return
		}
		fmt.Fprintf(os.Stderr, "%s %s\n", badColor.Sprint("ERROR:"), formatUserError(err))
		os.Exit(1)
	}
}
