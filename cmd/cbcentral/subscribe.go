package main

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/cbcentral/bluetooth"
)

// errConnectionLost is returned when the peripheral disconnects while a
// command still uses it.
var errConnectionLost = errors.New("connection lost")

func newSubscribeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "subscribe <peripheral-id> <characteristic-uuid>",
		Short: "Print the notifications of a characteristic",
		Long: `Enables notifications (or indications) of a characteristic and prints
every value received until Ctrl+C, --count values or --duration.`,
		Args: cobra.ExactArgs(2),
		RunE: runSubscribe,
	}
	cmd.Flags().String("service", "", "Only search this service for the characteristic")
	cmd.Flags().Bool("text", false, "Print values as text")
	cmd.Flags().Int("count", 0, "Stop after this many values (0 for no limit)")
	cmd.Flags().Duration("duration", 0, "Stop after this long (0 for no limit)")
	return cmd
}

// watchDisconnect returns a channel closed when p disconnects.
func (s *session) watchDisconnect(p *bluetooth.Peripheral) <-chan struct{} {
	lost := make(chan struct{})
	var once sync.Once
	s.client.SetConnectHandler(func(other *bluetooth.Peripheral, connected bool) {
		if other == p && !connected {
			once.Do(func() { close(lost) })
		}
	})
	return lost
}

func runSubscribe(cmd *cobra.Command, args []string) error {
	uuid, services, err := target(cmd, args[1])
	if err != nil {
		return err
	}
	asText, _ := cmd.Flags().GetBool("text")
	count, _ := cmd.Flags().GetInt("count")
	duration, _ := cmd.Flags().GetDuration("duration")

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

	ch, err := s.characteristic(ctx, p, uuid, services...)
	if err != nil {
		return err
	}
	if !ch.Properties().Has(bluetooth.PropertyNotify) && !ch.Properties().Has(bluetooth.PropertyIndicate) {
		return fmt.Errorf("characteristic %s does not notify (%s)", uuid.ShortString(), ch.Properties())
	}

	values := make(chan []byte, 64)
	err = s.client.Subscribe(ctx, ch, func(value []byte) {
		select {
		case values <- value:
		case <-ctx.Done():
		}
	})
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", uuid.ShortString(), err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), disconnectTimeout)
		defer cancel()
		if err := s.client.Unsubscribe(ctx, ch); err != nil {
			s.logger.WithError(err).Debug("unsubscribe")
		}
	}()

	var deadline <-chan time.Time
	if duration > 0 {
		timer := time.NewTimer(duration)
		defer timer.Stop()
		deadline = timer.C
	}

	out := cmd.OutOrStdout()
	enc := json.NewEncoder(out)
	for received := 0; count == 0 || received < count; received++ {
		var value []byte
		select {
		case value = <-values:
		case <-lost:
			return errConnectionLost
		case <-deadline:
			return nil
		case <-ctx.Done():
			return nil
		}

		now := time.Now()
		switch {
		case s.cfg.OutputFormat == "json":
			if err := enc.Encode(map[string]string{
				"time":  now.Format(time.RFC3339Nano),
				"value": hex.EncodeToString(value),
			}); err != nil {
				return err
			}
		case asText:
			fmt.Fprintf(out, "%s %s\n", now.Format("15:04:05.000"), value)
		default:
			fmt.Fprintf(out, "%s %s\n", now.Format("15:04:05.000"), formatValue(value))
		}
	}
	return nil
}
