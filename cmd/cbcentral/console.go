package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/cbcentral/bluetooth"
	"github.com/cbcentral/bluetooth/rawterm"
)

func newConsoleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "console <peripheral-id>",
		Short: "Open a terminal on a Nordic UART Service peripheral",
		Long: `Connects to a peripheral exposing the Nordic UART Service. Every line
typed is sent to its RX characteristic and everything it sends on its TX
characteristic is printed. Ctrl+C or Ctrl+D quits.`,
		Args: cobra.ExactArgs(1),
		RunE: runConsole,
	}
}

// openTerminal puts stdin in raw mode, unless the command reads from
// somewhere else.
func openTerminal(cmd *cobra.Command) (*rawterm.Terminal, error) {
	if cmd.InOrStdin() != os.Stdin {
		return rawterm.New(cmd.InOrStdin(), cmd.OutOrStdout()), nil
	}
	return rawterm.Open()
}

func runConsole(cmd *cobra.Command, args []string) error {
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
	lost := s.watchDisconnect(p)

	rx, err := s.characteristic(ctx, p, bluetooth.CharacteristicUUIDUARTRX, bluetooth.ServiceUUIDNordicUART)
	if err != nil {
		return err
	}
	tx, err := s.characteristic(ctx, p, bluetooth.CharacteristicUUIDUARTTX, bluetooth.ServiceUUIDNordicUART)
	if err != nil {
		return err
	}

	term, err := openTerminal(cmd)
	if err != nil {
		return err
	}
	defer term.Restore()

	if err := s.client.Subscribe(ctx, tx, func(value []byte) { term.Write(value) }); err != nil {
		return fmt.Errorf("subscribe to UART TX: %w", err)
	}
	fmt.Fprintf(term, "Connected to %s. Lines typed are sent to the peripheral, Ctrl+C quits.\n", p.ID())

	lines := make(chan []byte)
	readErr := make(chan error, 1)
	done := make(chan struct{})
	defer close(done)
	go func() {
		for {
			line, err := term.ReadLine()
			if err != nil {
				readErr <- err
				return
			}
			select {
			case lines <- append(line, '\n'):
			case <-done:
				return
			}
		}
	}()

	withoutResponse := rx.Properties().Has(bluetooth.PropertyWriteWithoutResponse)
	for {
		select {
		case line := <-lines:
			if withoutResponse {
				_, err = s.client.WriteWithoutResponse(ctx, rx, line)
			} else {
				err = s.client.Write(ctx, rx, line)
			}
			if err != nil {
				return fmt.Errorf("send to UART RX: %w", err)
			}
		case err := <-readErr:
			if errors.Is(err, rawterm.ErrInterrupt) || errors.Is(err, io.EOF) {
				return nil
			}
			return err
		case <-lost:
			return errConnectionLost
		case <-ctx.Done():
			return nil
		}
	}
}
