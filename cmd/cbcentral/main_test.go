package main

import (
	"bytes"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cbcentral/bluetooth"
	"github.com/cbcentral/bluetooth/internal/fakedriver"
)

var (
	uartID  = "c0ffee00-0000-4000-8000-000000000001"
	otherID = "c0ffee00-0000-4000-8000-000000000002"
)

func TestMain(m *testing.M) {
	color.NoColor = true
	os.Exit(m.Run())
}

func mustUUID(t *testing.T, s string) bluetooth.UUID {
	t.Helper()
	u, err := bluetooth.ParseUUID(s)
	require.NoError(t, err)
	return u
}

// uartFixture is a powered on radio that knows a UART peripheral.
type uartFixture struct {
	drv *fakedriver.Driver
	dev *fakedriver.Peripheral
	rx  *fakedriver.Characteristic
	tx  *fakedriver.Characteristic
}

func newUARTFixture(t *testing.T) *uartFixture {
	t.Helper()
	f := &uartFixture{drv: fakedriver.New(bluetooth.StatePoweredOn)}
	f.dev = f.drv.AddPeripheral(mustUUID(t, uartID), "uart")
	f.dev.SetAdvertisement(bluetooth.AdvertisementData{
		LocalName:    "uart",
		ServiceUUIDs: []bluetooth.UUID{bluetooth.ServiceUUIDNordicUART},
	}, -48)
	svc := f.dev.AddService(bluetooth.ServiceUUIDNordicUART, true)
	f.rx = svc.AddCharacteristic(bluetooth.CharacteristicUUIDUARTRX,
		bluetooth.PropertyWrite|bluetooth.PropertyWriteWithoutResponse, nil)
	f.tx = svc.AddCharacteristic(bluetooth.CharacteristicUUIDUARTTX,
		bluetooth.PropertyRead|bluetooth.PropertyNotify, []byte("hello"))
	f.tx.AddDescriptor(bluetooth.DescriptorUUIDClientCharacteristicConfiguration, []byte{0, 0})

	driverFactory = f.drv.Factory()
	t.Cleanup(func() { driverFactory = nil })
	return f
}

func run(t *testing.T, in io.Reader, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	if in != nil {
		cmd.SetIn(in)
	}
	cmd.SetArgs(append(args, "--log-level", "error"))
	err := cmd.Execute()
	return out.String(), err
}

func TestState(t *testing.T) {
	newUARTFixture(t)
	out, err := run(t, nil, "state")
	require.NoError(t, err)
	assert.Equal(t, "Bluetooth radio: PoweredOn\n", out)
}

func TestStateJSON(t *testing.T) {
	f := newUARTFixture(t)
	f.drv.SetState(bluetooth.StatePoweredOff)
	out, err := run(t, nil, "state", "--wait", "50ms", "-f", "json")
	require.NoError(t, err)
	assert.JSONEq(t, `{"state":"PoweredOff"}`, out)
}

func TestScanJSON(t *testing.T) {
	newUARTFixture(t)
	out, err := run(t, nil, "scan", "-d", "100ms", "-f", "json")
	require.NoError(t, err)

	var entries []scanEntry
	require.NoError(t, json.Unmarshal([]byte(out), &entries))
	require.Len(t, entries, 1)
	assert.Equal(t, uartID, entries[0].ID)
	assert.Equal(t, "uart", entries[0].Name)
	assert.Equal(t, -48, entries[0].RSSI)
	assert.Equal(t, []string{bluetooth.ServiceUUIDNordicUART.String()}, entries[0].Services)
	assert.Equal(t, 1, entries[0].Seen)
}

func TestScanTableFiltersByName(t *testing.T) {
	f := newUARTFixture(t)
	other := f.drv.AddPeripheral(mustUUID(t, otherID), "")
	other.SetAdvertisement(bluetooth.AdvertisementData{LocalName: "thermometer"}, -70)

	out, err := run(t, nil, "scan", "-d", "100ms")
	require.NoError(t, err)
	assert.Contains(t, out, "uart")
	assert.Contains(t, out, "thermometer")
	assert.Contains(t, out, "2 peripheral(s) found.")
	assert.Less(t, strings.Index(out, "uart"), strings.Index(out, "thermometer"), "stronger signal first")

	out, err = run(t, nil, "scan", "-d", "100ms", "--name", "THERMO")
	require.NoError(t, err)
	assert.NotContains(t, out, uartID)
	assert.Contains(t, out, "1 peripheral(s) found.")
}

func TestInspect(t *testing.T) {
	newUARTFixture(t)
	out, err := run(t, nil, "inspect", uartID)
	require.NoError(t, err)
	assert.Contains(t, out, `Peripheral `+uartID+` "uart" RSSI -48`)
	assert.Contains(t, out, "max write length: 512 with response, 20 without")
	assert.Contains(t, out, "Service "+bluetooth.ServiceUUIDNordicUART.String()+" (primary)")
	assert.Contains(t, out, "Characteristic "+bluetooth.CharacteristicUUIDUARTTX.String()+" [Read | Notify]")
	assert.Contains(t, out, "value: 68 65 6c 6c 6f  |hello|")
	assert.Contains(t, out, "Descriptor 00002902-0000-1000-8000-00805f9b34fb: 00 00  |..|")
}

func TestInspectJSONWithoutReads(t *testing.T) {
	newUARTFixture(t)
	out, err := run(t, nil, "inspect", uartID, "--no-read", "-f", "json")
	require.NoError(t, err)

	var res inspectResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	require.Len(t, res.Services, 1)
	require.Len(t, res.Services[0].Characteristics, 2)
	for _, ch := range res.Services[0].Characteristics {
		assert.Nil(t, ch.Value)
	}
	assert.Equal(t, bluetooth.MaxWriteLen{WithResponse: 512, WithoutResponse: 20}, res.MaxWriteLen)
}

func TestReadAndWrite(t *testing.T) {
	f := newUARTFixture(t)

	out, err := run(t, nil, "read", uartID, bluetooth.CharacteristicUUIDUARTTX.String(), "--text")
	require.NoError(t, err)
	assert.Equal(t, "hello\n", out)

	out, err = run(t, nil, "write", uartID, bluetooth.CharacteristicUUIDUARTRX.String(), "0x01:02")
	require.NoError(t, err)
	assert.Equal(t, "Wrote 2 byte(s)\n", out)
	assert.Equal(t, []fakedriver.Write{{Value: []byte{1, 2}, Kind: bluetooth.WithResponse}}, f.rx.Writes())
}

func TestWriteWithoutResponseInChunks(t *testing.T) {
	f := newUARTFixture(t)
	f.dev.SetMaxWriteLen(bluetooth.MaxWriteLen{WithResponse: 512, WithoutResponse: 4})

	out, err := run(t, nil, "write", uartID, bluetooth.CharacteristicUUIDUARTRX.String(),
		"--text", "--without-response", "0123456789")
	require.NoError(t, err)
	assert.Equal(t, "Wrote 10 byte(s) without response in 3 chunk(s)\n", out)
	require.Eventually(t, func() bool { return len(f.rx.Writes()) == 3 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []byte("89"), f.rx.Writes()[2].Value)
}

func TestReadUnknownCharacteristic(t *testing.T) {
	newUARTFixture(t)
	_, err := run(t, nil, "read", uartID, "2a19")
	assert.ErrorIs(t, err, errCharacteristicNotFound)
}

func TestUnknownPeripheralIsScannedFor(t *testing.T) {
	newUARTFixture(t)
	cfg := filepath.Join(t.TempDir(), "cbcentral.yaml")
	require.NoError(t, os.WriteFile(cfg, []byte("scan_timeout: 100ms\n"), 0o600))

	_, err := run(t, nil, "read", otherID, "2a19", "--config", cfg)
	assert.ErrorIs(t, err, errPeripheralNotFound)
	assert.Contains(t, formatUserError(err), "cbcentral scan")
}

func TestSubscribe(t *testing.T) {
	f := newUARTFixture(t)
	go func() {
		for !f.tx.Notifying() {
			time.Sleep(5 * time.Millisecond)
		}
		f.dev.Notify(f.tx, []byte("a"))
		f.dev.Notify(f.tx, []byte("b"))
	}()

	out, err := run(t, nil, "subscribe", uartID, bluetooth.CharacteristicUUIDUARTTX.String(), "--count", "2", "--text")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasSuffix(lines[0], " a"))
	assert.True(t, strings.HasSuffix(lines[1], " b"))
}

func TestSubscribeNotNotifying(t *testing.T) {
	newUARTFixture(t)
	_, err := run(t, nil, "subscribe", uartID, bluetooth.CharacteristicUUIDUARTRX.String())
	assert.ErrorContains(t, err, "does not notify")
}

func TestConsoleSendsLines(t *testing.T) {
	f := newUARTFixture(t)
	out, err := run(t, strings.NewReader("hi\r"), "console", uartID)
	require.NoError(t, err)
	assert.Contains(t, out, "Connected to "+uartID)
	require.Eventually(t, func() bool { return len(f.rx.Writes()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, fakedriver.Write{Value: []byte("hi\n"), Kind: bluetooth.WithoutResponse}, f.rx.Writes()[0])
}

func TestInvalidArguments(t *testing.T) {
	newUARTFixture(t)
	_, err := run(t, nil, "read", "not-a-uuid", "2a19")
	assert.ErrorContains(t, err, "invalid peripheral identifier")

	_, err = run(t, nil, "write", uartID, "2a19", "zz")
	assert.ErrorContains(t, err, "invalid hex value")

	_, err = run(t, nil, "scan", "-f", "xml")
	assert.ErrorContains(t, err, "output_format")
}
