package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newWriteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "write <peripheral-id> <characteristic-uuid> <value>",
		Short: "Write a characteristic",
		Long: `Writes a value to a characteristic. The value is given in hex (for
example 01ff, 0x01ff or "01 ff") unless --text is set.

Writes without response longer than the peripheral accepts are split in
chunks spaced write_chunk_delay apart.`,
		Args: cobra.ExactArgs(3),
		RunE: runWrite,
	}
	cmd.Flags().String("service", "", "Only search this service for the characteristic")
	cmd.Flags().Bool("text", false, "Send the value as text")
	cmd.Flags().Bool("without-response", false, "Write without response")
	return cmd
}

func runWrite(cmd *cobra.Command, args []string) error {
	uuid, services, err := target(cmd, args[1])
	if err != nil {
		return err
	}
	asText, _ := cmd.Flags().GetBool("text")
	withoutResponse, _ := cmd.Flags().GetBool("without-response")
	value, err := parseValue(args[2], asText)
	if err != nil {
		return err
	}

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

	out := cmd.OutOrStdout()
	if withoutResponse {
		chunks, err := s.client.WriteWithoutResponse(ctx, ch, value)
		if err != nil {
			return fmt.Errorf("write %s: %w", uuid.ShortString(), err)
		}
		fmt.Fprintf(out, "Wrote %d byte(s) without response in %d chunk(s)\n", len(value), chunks)
		return nil
	}
	if err := s.client.Write(ctx, ch, value); err != nil {
		return fmt.Errorf("write %s: %w", uuid.ShortString(), err)
	}
	fmt.Fprintf(out, "Wrote %d byte(s)\n", len(value))
	return nil
}
