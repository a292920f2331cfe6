package main

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cbcentral/bluetooth"
)

func TestParseValue(t *testing.T) {
	tests := []struct {
		in     string
		asText bool
		want   []byte
	}{
		{"01ff", false, []byte{0x01, 0xff}},
		{"0x01FF", false, []byte{0x01, 0xff}},
		{"01 02:03", false, []byte{1, 2, 3}},
		{"", false, []byte{}},
		{"hi there", true, []byte("hi there")},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseValue(tt.in, tt.asText)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := parseValue("123", false)
	assert.Error(t, err)
}

func TestFormatValue(t *testing.T) {
	assert.Equal(t, "(empty)", formatValue(nil))
	assert.Equal(t, "68 69 00  |hi.|", formatValue([]byte{'h', 'i', 0}))
}

func TestParseUUIDs(t *testing.T) {
	uuids, err := parseUUIDs([]string{"180d", bluetooth.ServiceUUIDNordicUART.String()})
	require.NoError(t, err)
	assert.Equal(t, []bluetooth.UUID{bluetooth.ServiceUUIDHeartRate, bluetooth.ServiceUUIDNordicUART}, uuids)

	_, err = parseUUIDs([]string{"18"})
	assert.Error(t, err)
}

func TestFormatUserError(t *testing.T) {
	err := fmt.Errorf("read 2a19: %w", bluetooth.NewError(bluetooth.AttErrorDomain, 2, "Reading is not permitted."))
	assert.Equal(t, "peripheral refused the request: read 2a19: Reading is not permitted. (ATT ReadNotPermitted)", formatUserError(err))

	err = fmt.Errorf("connect: %w", context.DeadlineExceeded)
	assert.Contains(t, formatUserError(err), "in range")

	assert.Equal(t, "boom", formatUserError(fmt.Errorf("boom")))
}
