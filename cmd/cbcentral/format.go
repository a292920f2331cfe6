package main

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/fatih/color"

	"github.com/cbcentral/bluetooth"
)

var (
	headerColor = color.New(color.Bold)
	nameColor   = color.New(color.FgHiCyan)
	uuidColor   = color.New(color.FgHiMagenta)
	goodColor   = color.New(color.FgHiGreen)
	warnColor   = color.New(color.FgHiYellow)
	badColor    = color.New(color.FgHiRed)
)

func rssiColor(rssi int) *color.Color {
	switch {
	case rssi >= -60:
		return goodColor
	case rssi >= -80:
		return warnColor
	default:
		return badColor
	}
}

// parseValue decodes a value given on the command line: hex digits,
// optionally prefixed with 0x and separated by spaces or colons, or the
// text itself when asText is set.
func parseValue(s string, asText bool) ([]byte, error) {
	if asText {
		return []byte(s), nil
	}
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	s = strings.NewReplacer(" ", "", ":", "").Replace(s)
	value, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid hex value: %w", err)
	}
	return value, nil
}

// formatValue renders value as hex followed by its printable characters.
func formatValue(value []byte) string {
	if len(value) == 0 {
		return "(empty)"
	}
	text := make([]byte, len(value))
	for i, b := range value {
		if b >= 0x20 && b < 0x7f {
			text[i] = b
		} else {
			text[i] = '.'
		}
	}
	return fmt.Sprintf("% x  |%s|", value, text)
}

func parseUUIDs(list []string) ([]bluetooth.UUID, error) {
	uuids := make([]bluetooth.UUID, 0, len(list))
	for _, s := range list {
		u, err := bluetooth.ParseUUID(s)
		if err != nil {
			return nil, fmt.Errorf("invalid UUID %q: %w", s, err)
		}
		uuids = append(uuids, u)
	}
	return uuids, nil
}

// formatUserError turns the errors users commonly hit into a hint.
func formatUserError(err error) string {
	var btErr *bluetooth.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return err.Error() + " (is the peripheral in range and advertising?)"
	case errors.Is(err, errPeripheralNotFound):
		return err.Error() + " (run `cbcentral scan` to list nearby peripherals)"
	case errors.Is(err, bluetooth.ErrNotConnected), errors.Is(err, bluetooth.ErrPeripheralDisconnected):
		return "connection lost: " + err.Error()
	case errors.As(err, &btErr) && btErr.Kind == bluetooth.ErrorKindAtt:
		return fmt.Sprintf("peripheral refused the request: %s (ATT %s)", err, btErr.Att)
	}
	return err.Error()
}
