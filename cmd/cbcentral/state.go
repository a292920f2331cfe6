package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/cbcentral/bluetooth"
)

func newStateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "state",
		Short: "Show the state of the Bluetooth radio",
		Args:  cobra.NoArgs,
		RunE:  runState,
	}
	cmd.Flags().Duration("wait", 2*time.Second, "How long to wait for the radio to power on")
	return cmd
}

func runState(cmd *cobra.Command, args []string) error {
	s, err := openSession(cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	wait, _ := cmd.Flags().GetDuration("wait")
	ctx, cancel := context.WithTimeout(cmd.Context(), wait)
	defer cancel()
	// The state is printed whatever it is, only a closed manager is fatal.
	if err := s.client.WaitPoweredOn(ctx); errors.Is(err, bluetooth.ErrClosed) {
		return err
	}

	state := s.client.State()
	out := cmd.OutOrStdout()
	if s.cfg.OutputFormat == "json" {
		return json.NewEncoder(out).Encode(map[string]string{"state": state.String()})
	}
	c := badColor
	switch state {
	case bluetooth.StatePoweredOn:
		c = goodColor
	case bluetooth.StatePoweredOff, bluetooth.StateResetting, bluetooth.StateUnknown:
		c = warnColor
	}
	fmt.Fprintf(out, "Bluetooth radio: %s\n", c.Sprint(state))
	return nil
}
