package bluetooth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCentralManagerOptionsDefaults(t *testing.T) {
	var nilOpts *CentralManagerOptions
	o := nilOpts.withDefaults()
	assert.Equal(t, "cbcentral", o.QueueLabel)
	assert.Equal(t, 0, o.EventBufferSize)
	assert.NotNil(t, o.Logger)

	o = (&CentralManagerOptions{QueueLabel: "custom", EventBufferSize: -3}).withDefaults()
	assert.Equal(t, "custom", o.QueueLabel)
	assert.Equal(t, 0, o.EventBufferSize, "negative buffer sizes MUST be clamped")
}

func TestScanOptionsClone(t *testing.T) {
	services := []UUID{ServiceUUIDHeartRate}
	o := ScanOptions{Services: services}.clone()
	services[0] = ServiceUUIDBattery
	assert.Equal(t, []UUID{ServiceUUIDHeartRate}, o.Services)
	assert.Nil(t, ScanOptions{Services: []UUID{}}.clone().Services)
}

func TestConnectOptionsStartDelaySeconds(t *testing.T) {
	assert.Equal(t, 0, ConnectOptions{}.StartDelaySeconds())
	assert.Equal(t, 0, ConnectOptions{StartDelay: -time.Second}.StartDelaySeconds())
	assert.Equal(t, 2, ConnectOptions{StartDelay: 2500 * time.Millisecond}.StartDelaySeconds())
}
