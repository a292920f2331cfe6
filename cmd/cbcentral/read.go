package main

import (
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func newReadCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "read <peripheral-id> <characteristic-uuid>",
		Short: "Read a characteristic",
		Args:  cobra.ExactArgs(2),
		RunE:  runRead,
	}
	cmd.Flags().String("service", "", "Only search this service for the characteristic")
	cmd.Flags().Bool("text", false, "Print the value as text")
	return cmd
}

func runRead(cmd *cobra.Command, args []string) error {
	uuid, services, err := target(cmd, args[1])
	if err != nil {
		return err
	}
	asText, _ := cmd.Flags().GetBool("text")

	s, err := openSession(cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	ctx, cancel := signalContext(cmd)
	defer cancel()
	p, disconnect, err := s.connect(ctx, args[0])
	if err != nil {
		return err
	}
	defer disconnect()

	ch, err := s.characteristic(ctx, p, uuid, services...)
	if err != nil {
		return err
	}
	value, err := s.client.Read(ctx, ch)
	if err != nil {
		return fmt.Errorf("read %s: %w", uuid.ShortString(), err)
	}

	out := cmd.OutOrStdout()
	switch {
	case s.cfg.OutputFormat == "json":
		return json.NewEncoder(out).Encode(map[string]string{
			"characteristic": uuid.String(),
			"value":          hex.EncodeToString(value),
		})
	case asText:
		fmt.Fprintln(out, string(value))
	default:
		fmt.Fprintln(out, formatValue(value))
	}
	return nil
}
