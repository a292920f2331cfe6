//go:build darwin

package macbt

import (
	"sync/atomic"

	"github.com/sirupsen/logrus"
	"github.com/tinygo-org/cbgo"
)

// PDelegate handles peripheral callbacks from CoreBluetooth. A single
// PDelegate serves every peripheral of a central manager.
type PDelegate struct {
	next   cbgo.PeripheralDelegate
	log    *logrus.Entry
	closed atomic.Bool
}

var _ cbgo.PeripheralDelegate = (*PDelegate)(nil)

// NewPDelegate returns a delegate forwarding to next.
func NewPDelegate(next cbgo.PeripheralDelegate, logger *logrus.Logger) *PDelegate {
	return &PDelegate{
		next: next,
		log:  logger.WithField("delegate", "peripheral"),
	}
}

// Attach makes d the delegate of prph. Attaching twice is harmless.
func (d *PDelegate) Attach(prph cbgo.Peripheral) {
	prph.SetDelegate(d)
}

// Close drops every later callback.
func (d *PDelegate) Close() {
	d.closed.Store(true)
}

func (d *PDelegate) entry(prph cbgo.Peripheral, err error) *logrus.Entry {
	e := d.log.WithField("peripheral", prph.Identifier().String())
	if err != nil {
		e = e.WithError(err)
	}
	return e
}

func (d *PDelegate) DidDiscoverServices(prph cbgo.Peripheral, err error) {
	if d.closed.Load() {
		return
	}
	d.entry(prph, err).Debug("didDiscoverServices")
	d.next.DidDiscoverServices(prph, err)
}

func (d *PDelegate) DidDiscoverIncludedServices(prph cbgo.Peripheral, svc cbgo.Service, err error) {
	if d.closed.Load() {
		return
	}
	d.entry(prph, err).Debug("didDiscoverIncludedServices")
	d.next.DidDiscoverIncludedServices(prph, svc, err)
}

func (d *PDelegate) DidDiscoverCharacteristics(prph cbgo.Peripheral, svc cbgo.Service, err error) {
	if d.closed.Load() {
		return
	}
	d.entry(prph, err).Debug("didDiscoverCharacteristics")
	d.next.DidDiscoverCharacteristics(prph, svc, err)
}

func (d *PDelegate) DidDiscoverDescriptors(prph cbgo.Peripheral, chr cbgo.Characteristic, err error) {
	if d.closed.Load() {
		return
	}
	d.entry(prph, err).Debug("didDiscoverDescriptors")
	d.next.DidDiscoverDescriptors(prph, chr, err)
}

func (d *PDelegate) DidUpdateValueForCharacteristic(prph cbgo.Peripheral, chr cbgo.Characteristic, err error) {
	if d.closed.Load() {
		return
	}
	d.entry(prph, err).Trace("didUpdateValueForCharacteristic")
	d.next.DidUpdateValueForCharacteristic(prph, chr, err)
}

func (d *PDelegate) DidUpdateValueForDescriptor(prph cbgo.Peripheral, dsc cbgo.Descriptor, err error) {
	if d.closed.Load() {
		return
	}
	d.entry(prph, err).Debug("didUpdateValueForDescriptor")
	d.next.DidUpdateValueForDescriptor(prph, dsc, err)
}

func (d *PDelegate) DidWriteValueForCharacteristic(prph cbgo.Peripheral, chr cbgo.Characteristic, err error) {
	if d.closed.Load() {
		return
	}
	d.entry(prph, err).Trace("didWriteValueForCharacteristic")
	d.next.DidWriteValueForCharacteristic(prph, chr, err)
}

func (d *PDelegate) DidWriteValueForDescriptor(prph cbgo.Peripheral, dsc cbgo.Descriptor, err error) {
	if d.closed.Load() {
		return
	}
	d.entry(prph, err).Debug("didWriteValueForDescriptor")
	d.next.DidWriteValueForDescriptor(prph, dsc, err)
}

func (d *PDelegate) IsReadyToSendWriteWithoutResponse(prph cbgo.Peripheral) {
	if d.closed.Load() {
		return
	}
	d.entry(prph, nil).Trace("isReadyToSendWriteWithoutResponse")
	d.next.IsReadyToSendWriteWithoutResponse(prph)
}

func (d *PDelegate) DidUpdateNotificationState(prph cbgo.Peripheral, chr cbgo.Characteristic, err error) {
	if d.closed.Load() {
		return
	}
	d.entry(prph, err).Debug("didUpdateNotificationState")
	d.next.DidUpdateNotificationState(prph, chr, err)
}

func (d *PDelegate) DidReadRSSI(prph cbgo.Peripheral, rssi int, err error) {
	if d.closed.Load() {
		return
	}
	d.entry(prph, err).Debug("didReadRSSI")
	d.next.DidReadRSSI(prph, rssi, err)
}

func (d *PDelegate) DidUpdateName(prph cbgo.Peripheral) {
	if d.closed.Load() {
		return
	}
	d.entry(prph, nil).Debug("didUpdateName")
	d.next.DidUpdateName(prph)
}

func (d *PDelegate) DidModifyServices(prph cbgo.Peripheral, invSvcs []cbgo.Service) {
	if d.closed.Load() {
		return
	}
	d.entry(prph, nil).WithField("invalidated", len(invSvcs)).Debug("didModifyServices")
	d.next.DidModifyServices(prph, invSvcs)
}
