//go:build linux

package bluetooth

import (
	"errors"
	"fmt"
	"testing"

	"github.com/godbus/dbus/v5"
	"github.com/stretchr/testify/assert"
)

func TestErrorFromDBus(t *testing.T) {
	bluez := func(name string) error {
		return dbus.Error{Name: name, Body: []interface{}{"from bluez"}}
	}

	assert.Nil(t, errorFromDBus(nil, opOther))
	assert.True(t, errors.Is(errorFromDBus(bluez("org.bluez.Error.NotConnected"), opRead), ErrNotConnected))
	assert.True(t, errors.Is(errorFromDBus(bluez("org.bluez.Error.NotPermitted"), opRead), ErrAttReadNotPermitted))
	assert.True(t, errors.Is(errorFromDBus(bluez("org.bluez.Error.NotPermitted"), opWrite), ErrAttWriteNotPermitted))
	assert.True(t, errors.Is(errorFromDBus(bluez("org.bluez.Error.Failed"), opConnect), ErrConnectionFailed))

	known := NewError(ErrorDomain, 6, "")
	assert.Same(t, known, errorFromDBus(known, opOther))
}

func TestErrorFromDBusAfterClose(t *testing.T) {
	err := errorFromDBus(fmt.Errorf("waiting for services: %w", ErrClosed), opOther)

	var e *Error
	assert.True(t, errors.As(err, &e), "every delegate error MUST be an *Error")
	assert.True(t, errors.Is(err, ErrOperationCancelled))
}
