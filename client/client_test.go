package client

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/cbcentral/bluetooth"
	"github.com/cbcentral/bluetooth/internal/fakedriver"
)

var sensorID = bluetooth.NewUUID([16]byte{0xc0, 0xff, 0xee, 0, 0, 0, 0x40, 0, 0x80, 0, 0, 0, 0, 0, 0, 1})

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	return logger
}

func newClient(t *testing.T, drv *fakedriver.Driver, opts Options) *Client {
	t.Helper()
	opts.Logger = quietLogger()
	c, err := Open(&bluetooth.CentralManagerOptions{Driver: drv.Factory()}, &opts)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

type ClientSuite struct {
	suite.Suite

	drv   *fakedriver.Driver
	dev   *fakedriver.Peripheral
	uart  *fakedriver.Service
	rx    *fakedriver.Characteristic
	tx    *fakedriver.Characteristic
	cccd  *fakedriver.Descriptor
	c     *Client
	ctx   context.Context
	p     *bluetooth.Peripheral
	txChr bluetooth.Characteristic
	rxChr bluetooth.Characteristic
}

func TestClientSuite(t *testing.T) {
	suite.Run(t, new(ClientSuite))
}

func (s *ClientSuite) SetupTest() {
	s.drv = fakedriver.New(bluetooth.StatePoweredOn)
	s.dev = s.drv.AddPeripheral(sensorID, "uart")
	s.dev.SetAdvertisement(bluetooth.AdvertisementData{
		LocalName:    "uart",
		ServiceUUIDs: []bluetooth.UUID{bluetooth.ServiceUUIDNordicUART},
	}, -48)
	s.uart = s.dev.AddService(bluetooth.ServiceUUIDNordicUART, true)
	s.rx = s.uart.AddCharacteristic(bluetooth.CharacteristicUUIDUARTRX,
		bluetooth.PropertyWrite|bluetooth.PropertyWriteWithoutResponse, nil)
	s.tx = s.uart.AddCharacteristic(bluetooth.CharacteristicUUIDUARTTX,
		bluetooth.PropertyNotify|bluetooth.PropertyRead, []byte("hello"))
	s.cccd = s.tx.AddDescriptor(bluetooth.DescriptorUUIDClientCharacteristicConfiguration, []byte{0, 0})

	s.c = newClient(s.T(), s.drv, Options{Timeout: time.Second})
	var cancel context.CancelFunc
	s.ctx, cancel = context.WithTimeout(context.Background(), 5*time.Second)
	s.T().Cleanup(cancel)
	s.Require().NoError(s.c.WaitPoweredOn(s.ctx))

	peripherals, err := s.c.RetrievePeripherals(s.ctx, []bluetooth.UUID{sensorID})
	s.Require().NoError(err)
	s.Require().Len(peripherals, 1)
	s.p = peripherals[0]
}

// connectAndDiscover connects and discovers the UART characteristics.
func (s *ClientSuite) connectAndDiscover() {
	s.Require().NoError(s.c.Connect(s.ctx, s.p, bluetooth.ConnectOptions{}))

	services, err := s.c.DiscoverServices(s.ctx, s.p, bluetooth.ServiceUUIDNordicUART)
	s.Require().NoError(err)
	s.Require().Len(services, 1)

	chars, err := s.c.DiscoverCharacteristics(s.ctx, services[0])
	s.Require().NoError(err)
	s.Require().Len(chars, 2)
	s.rxChr, s.txChr = chars[0], chars[1]
	s.Equal(bluetooth.CharacteristicUUIDUARTTX, s.txChr.UUID())
}

func (s *ClientSuite) TestScanStopsFromCallback() {
	var found []*bluetooth.Peripheral
	err := s.c.Scan(s.ctx, bluetooth.ScanOptions{}, func(ev bluetooth.PeripheralDiscovered) {
		found = append(found, ev.Peripheral)
		s.NoError(s.c.StopScan())
	})
	s.NoError(err)
	s.Equal([]*bluetooth.Peripheral{s.p}, found)
	s.Eventually(func() bool { return !s.drv.Scanning() }, time.Second, 5*time.Millisecond)
	s.ErrorIs(s.c.StopScan(), errNotScanning)
}

func (s *ClientSuite) TestScanEndsWithContext() {
	ctx, cancel := context.WithTimeout(s.ctx, 50*time.Millisecond)
	defer cancel()
	err := s.c.Scan(ctx, bluetooth.ScanOptions{Services: []bluetooth.UUID{bluetooth.ServiceUUIDHeartRate}}, func(bluetooth.PeripheralDiscovered) {
		s.Fail("no peripheral advertises the heart rate service")
	})
	s.ErrorIs(err, context.DeadlineExceeded)
	s.Eventually(func() bool {
		calls := s.drv.Calls()
		return calls[len(calls)-1] == "stopScan"
	}, time.Second, 5*time.Millisecond)
	s.Equal([]string{"retrievePeripherals", "scan", "stopScan"}, s.drv.Calls())
}

func (s *ClientSuite) TestGattOperations() {
	s.connectAndDiscover()

	value, err := s.c.Read(s.ctx, s.txChr)
	s.Require().NoError(err)
	s.Equal([]byte("hello"), value)

	s.Require().NoError(s.c.Write(s.ctx, s.rxChr, []byte("ping")))
	s.Equal([]fakedriver.Write{{Value: []byte("ping"), Kind: bluetooth.WithResponse}}, s.rx.Writes())

	descs, err := s.c.DiscoverDescriptors(s.ctx, s.txChr)
	s.Require().NoError(err)
	s.Require().Len(descs, 1)
	s.Require().NoError(s.c.WriteDescriptor(s.ctx, descs[0], []byte{1, 0}))
	dv, err := s.c.ReadDescriptor(s.ctx, descs[0])
	s.Require().NoError(err)
	s.Equal([]byte{1, 0}, dv)

	rssi, err := s.c.ReadRSSI(s.ctx, s.p)
	s.Require().NoError(err)
	s.Equal(-48, rssi)

	mwl, err := s.c.MaxWriteLen(s.ctx, s.p)
	s.Require().NoError(err)
	s.Equal(bluetooth.MaxWriteLen{WithResponse: 512, WithoutResponse: 20}, mwl)

	connected, err := s.c.RetrieveConnectedPeripherals(s.ctx, nil)
	s.Require().NoError(err)
	s.Equal([]*bluetooth.Peripheral{s.p}, connected)
}

func (s *ClientSuite) TestIncludedServices() {
	dis := s.dev.AddService(bluetooth.ServiceUUIDDeviceInformation, false)
	s.uart.Include(dis)
	s.Require().NoError(s.c.Connect(s.ctx, s.p, bluetooth.ConnectOptions{}))

	services, err := s.c.DiscoverServices(s.ctx, s.p)
	s.Require().NoError(err)
	s.Require().Len(services, 2)

	included, err := s.c.DiscoverIncludedServices(s.ctx, services[0])
	s.Require().NoError(err)
	s.Require().Len(included, 1)
	s.Equal(bluetooth.ServiceUUIDDeviceInformation, included[0].UUID())
}

func (s *ClientSuite) TestWriteWithoutResponseIsChunked() {
	s.connectAndDiscover()

	value := bytes.Repeat([]byte("0123456789"), 4)
	value = append(value, "abcde"...)
	chunks, err := s.c.WriteWithoutResponse(s.ctx, s.rxChr, value)
	s.Require().NoError(err)
	s.Equal(3, chunks)

	s.Eventually(func() bool { return len(s.rx.Writes()) == 3 }, time.Second, 5*time.Millisecond)
	writes := s.rx.Writes()
	s.Require().Len(writes, 3)
	s.Equal(value[:20], writes[0].Value)
	s.Equal(value[20:40], writes[1].Value)
	s.Equal([]byte("abcde"), writes[2].Value)
	for _, w := range writes {
		s.Equal(bluetooth.WithoutResponse, w.Kind)
	}
}

func (s *ClientSuite) TestSubscribeDeliversNotificationsInOrder() {
	s.connectAndDiscover()

	var mu sync.Mutex
	var got [][]byte
	s.Require().NoError(s.c.Subscribe(s.ctx, s.txChr, func(value []byte) {
		mu.Lock()
		got = append(got, value)
		mu.Unlock()
	}))
	s.True(s.tx.Notifying())

	for i := byte(0); i < 10; i++ {
		s.dev.Notify(s.tx, []byte{i})
	}
	s.Eventually(func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 10
	}, time.Second, 5*time.Millisecond)
	for i, v := range got {
		s.Equal([]byte{byte(i)}, v, "notifications MUST keep their order")
	}

	s.Require().NoError(s.c.Unsubscribe(s.ctx, s.txChr))
	s.False(s.tx.Notifying())
	_, ok := s.c.subscription(s.txChr)
	s.False(ok)
}

// addBatteries gives the peripheral two battery services, each with its own
// battery level characteristic, and returns the discovered handles.
func (s *ClientSuite) addBatteries() ([2]*fakedriver.Characteristic, [2]bluetooth.Characteristic) {
	var fakes [2]*fakedriver.Characteristic
	for i := range fakes {
		svc := s.dev.AddService(bluetooth.ServiceUUIDBattery, true)
		fakes[i] = svc.AddCharacteristic(bluetooth.CharacteristicUUIDBatteryLevel,
			bluetooth.PropertyRead|bluetooth.PropertyNotify, []byte{100})
	}
	s.Require().NoError(s.c.Connect(s.ctx, s.p, bluetooth.ConnectOptions{}))

	services, err := s.c.DiscoverServices(s.ctx, s.p, bluetooth.ServiceUUIDBattery)
	s.Require().NoError(err)
	s.Require().Len(services, 2)

	var chars [2]bluetooth.Characteristic
	for i, svc := range services {
		found, err := s.c.DiscoverCharacteristics(s.ctx, svc)
		s.Require().NoError(err)
		s.Require().Len(found, 1)
		chars[i] = found[0]
	}
	s.Require().NotEqual(chars[0], chars[1])
	s.Require().Equal(chars[0].UUID(), chars[1].UUID())
	return fakes, chars
}

func (s *ClientSuite) TestSubscribeToCharacteristicsSharingUUID() {
	fakes, chars := s.addBatteries()

	got := [2]chan []byte{make(chan []byte, 4), make(chan []byte, 4)}
	for i := range chars {
		ch := got[i]
		s.Require().NoError(s.c.Subscribe(s.ctx, chars[i], func(value []byte) { ch <- value }))
	}

	s.dev.Notify(fakes[0], []byte{11})
	s.dev.Notify(fakes[1], []byte{22})
	for i, want := range [][]byte{{11}, {22}} {
		select {
		case v := <-got[i]:
			s.Equal(want, v)
		case <-time.After(time.Second):
			s.Failf("notification lost", "battery %d got nothing", i)
		}
	}
}

func (s *ClientSuite) TestUnsubscribeKeepsCharacteristicSharingUUID() {
	fakes, chars := s.addBatteries()

	first := make(chan []byte, 4)
	second := make(chan []byte, 4)
	s.Require().NoError(s.c.Subscribe(s.ctx, chars[0], func(value []byte) { first <- value }))
	s.Require().NoError(s.c.Subscribe(s.ctx, chars[1], func(value []byte) { second <- value }))

	s.Require().NoError(s.c.Unsubscribe(s.ctx, chars[0]))
	s.False(fakes[0].Notifying())
	s.True(fakes[1].Notifying())
	_, ok := s.c.subscription(chars[0])
	s.False(ok)

	s.dev.Notify(fakes[1], []byte{42})
	select {
	case v := <-second:
		s.Equal([]byte{42}, v)
	case <-time.After(time.Second):
		s.Fail("remaining subscription lost its notification")
	}
	s.Empty(first)
}

func (s *ClientSuite) TestReadAfterSubscribeIsAnsweredOnce() {
	s.connectAndDiscover()

	notified := make(chan []byte, 4)
	s.Require().NoError(s.c.Subscribe(s.ctx, s.txChr, func(value []byte) { notified <- value }))

	value, err := s.c.Read(s.ctx, s.txChr)
	s.Require().NoError(err)
	s.Equal([]byte("hello"), value)

	s.dev.Notify(s.tx, []byte("n"))
	select {
	case v := <-notified:
		s.Equal([]byte("n"), v)
	case <-time.After(time.Second):
		s.Fail("notification not delivered")
	}
}

func (s *ClientSuite) TestOperationError() {
	s.connectAndDiscover()
	s.dev.SetError(fakedriver.OpWriteCharacteristic, bluetooth.NewError(bluetooth.AttErrorDomain, 3, "Writing is not permitted."))

	err := s.c.Write(s.ctx, s.rxChr, []byte{1})
	s.True(errors.Is(err, bluetooth.ErrAttWriteNotPermitted))

	s.dev.SetError(fakedriver.OpSetNotify, bluetooth.NewError(bluetooth.ErrorDomain, 13, ""))
	err = s.c.Subscribe(s.ctx, s.txChr, func([]byte) {})
	s.True(errors.Is(err, bluetooth.ErrOperationNotSupported))
	_, ok := s.c.subscription(s.txChr)
	s.False(ok, "a failed subscription MUST be removed")
}

func (s *ClientSuite) TestOperationTimeout() {
	s.connectAndDiscover()
	s.dev.SetSilent(fakedriver.OpReadCharacteristic, true)

	ctx, cancel := context.WithTimeout(s.ctx, 50*time.Millisecond)
	defer cancel()
	_, err := s.c.Read(ctx, s.txChr)
	s.ErrorIs(err, context.DeadlineExceeded)

	s.c.mu.Lock()
	pending := len(s.c.waiters)
	s.c.mu.Unlock()
	s.Zero(pending, "an abandoned operation MUST not leave a waiter behind")
}

func (s *ClientSuite) TestDisconnectFailsPendingOperations() {
	s.connectAndDiscover()
	s.dev.SetSilent(fakedriver.OpReadCharacteristic, true)

	var events []bool
	var mu sync.Mutex
	s.c.SetConnectHandler(func(p *bluetooth.Peripheral, connected bool) {
		mu.Lock()
		events = append(events, connected)
		mu.Unlock()
	})

	errCh := make(chan error, 1)
	go func() {
		_, err := s.c.Read(s.ctx, s.txChr)
		errCh <- err
	}()
	s.Eventually(func() bool {
		calls := s.drv.Calls()
		return calls[len(calls)-1] == string(fakedriver.OpReadCharacteristic)
	}, time.Second, 5*time.Millisecond)

	s.dev.Disconnect(bluetooth.NewError(bluetooth.ErrorDomain, 7, "The specified device has disconnected from us."))
	select {
	case err := <-errCh:
		s.True(errors.Is(err, bluetooth.ErrPeripheralDisconnected), "got %v", err)
	case <-time.After(time.Second):
		s.Fail("pending read not failed by the disconnection")
	}

	s.Eventually(func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(events) == 1 && !events[0]
	}, time.Second, 5*time.Millisecond)
}

func (s *ClientSuite) TestDisconnect() {
	s.connectAndDiscover()
	s.Require().NoError(s.c.Disconnect(s.ctx, s.p))
	s.False(s.dev.IsConnected())
}

func (s *ClientSuite) TestConnectTimeoutCancelsAttempt() {
	s.dev.SetSilent(fakedriver.OpConnect, true)
	ctx, cancel := context.WithTimeout(s.ctx, 50*time.Millisecond)
	defer cancel()

	err := s.c.Connect(ctx, s.p, bluetooth.ConnectOptions{})
	s.ErrorIs(err, context.DeadlineExceeded)
	s.Eventually(func() bool {
		calls := s.drv.Calls()
		return calls[len(calls)-1] == "cancelConnect"
	}, time.Second, 5*time.Millisecond)
}

func (s *ClientSuite) TestConnectFailure() {
	s.dev.SetError(fakedriver.OpConnect, bluetooth.NewError(bluetooth.ErrorDomain, 10, ""))
	err := s.c.Connect(s.ctx, s.p, bluetooth.ConnectOptions{})
	s.True(errors.Is(err, bluetooth.ErrConnectionFailed))
}

func (s *ClientSuite) TestInvalidHandles() {
	_, err := s.c.Read(s.ctx, bluetooth.Characteristic{})
	s.ErrorIs(err, errInvalidHandle)
	_, err = s.c.DiscoverCharacteristics(s.ctx, bluetooth.Service{})
	s.ErrorIs(err, errInvalidHandle)
	s.ErrorIs(s.c.WriteDescriptor(s.ctx, bluetooth.Descriptor{}, nil), errInvalidHandle)
}

func (s *ClientSuite) TestCloseFailsPendingOperations() {
	s.connectAndDiscover()
	s.dev.SetSilent(fakedriver.OpReadCharacteristic, true)

	errCh := make(chan error, 1)
	go func() {
		_, err := s.c.Read(s.ctx, s.txChr)
		errCh <- err
	}()
	s.Eventually(func() bool {
		s.c.mu.Lock()
		defer s.c.mu.Unlock()
		return len(s.c.waiters) == 1
	}, time.Second, 5*time.Millisecond)

	s.NoError(s.c.Close())
	select {
	case err := <-errCh:
		s.ErrorIs(err, bluetooth.ErrClosed)
	case <-time.After(time.Second):
		s.Fail("pending read not failed by Close")
	}
	s.ErrorIs(s.c.WaitPoweredOn(s.ctx), bluetooth.ErrClosed)
	_, err := s.c.ReadRSSI(s.ctx, s.p)
	s.ErrorIs(err, bluetooth.ErrClosed)
}

func TestWaitPoweredOn(t *testing.T) {
	drv := fakedriver.New(bluetooth.StatePoweredOff)
	c := newClient(t, drv, Options{})

	var states []bluetooth.ManagerState
	var mu sync.Mutex
	c.SetStateChangeHandler(func(state bluetooth.ManagerState) {
		mu.Lock()
		states = append(states, state)
		mu.Unlock()
	})

	done := make(chan error, 1)
	go func() { done <- c.WaitPoweredOn(context.Background()) }()
	require.Eventually(t, func() bool { return c.State() == bluetooth.StatePoweredOff }, time.Second, 5*time.Millisecond)

	drv.SetState(bluetooth.StatePoweredOn)
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("WaitPoweredOn did not return")
	}
	mu.Lock()
	defer mu.Unlock()
	assert.Contains(t, states, bluetooth.StatePoweredOn)
}

func TestCloseFromStateHandler(t *testing.T) {
	drv := fakedriver.New(bluetooth.StatePoweredOn)
	c := newClient(t, drv, Options{})
	require.NoError(t, c.WaitPoweredOn(context.Background()))

	closed := make(chan error, 1)
	c.SetStateChangeHandler(func(state bluetooth.ManagerState) {
		if state == bluetooth.StatePoweredOff {
			closed <- c.Close()
		}
	})
	drv.SetState(bluetooth.StatePoweredOff)

	select {
	case err := <-closed:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Close from the state handler did not return")
	}
	assert.ErrorIs(t, c.WaitPoweredOn(context.Background()), bluetooth.ErrClosed)
	select {
	case <-c.loopDone:
	case <-time.After(time.Second):
		t.Fatal("event goroutine did not stop")
	}
}

func TestWaitPoweredOnUnsupported(t *testing.T) {
	drv := fakedriver.New(bluetooth.StateUnsupported)
	c := newClient(t, drv, Options{})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	err := c.WaitPoweredOn(ctx)
	assert.ErrorIs(t, err, errRadioUnusable)
}

func TestSplit(t *testing.T) {
	assert.Equal(t, [][]byte{{}}, split([]byte{}, 20))
	assert.Equal(t, [][]byte{{1, 2}, {3}}, split([]byte{1, 2, 3}, 2))
	assert.Equal(t, [][]byte{{1, 2, 3}}, split([]byte{1, 2, 3}, 0))
}

func TestOptionsDefaults(t *testing.T) {
	var o *Options
	opts := o.withDefaults()
	assert.Equal(t, 10*time.Second, opts.Timeout)
	assert.Equal(t, 30*time.Second, opts.ConnectTimeout)
	assert.Equal(t, 10*time.Millisecond, opts.WriteChunkDelay)
	assert.Equal(t, 64, opts.NotificationBuffer)
	assert.NotNil(t, opts.Logger)
}
