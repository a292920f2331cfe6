//go:build darwin

package macbt

import (
	"sync/atomic"

	"github.com/sirupsen/logrus"
	"github.com/tinygo-org/cbgo"
)

// CMDelegate handles central manager callbacks from CoreBluetooth.
type CMDelegate struct {
	next   cbgo.CentralManagerDelegate
	log    *logrus.Entry
	closed atomic.Bool
}

var _ cbgo.CentralManagerDelegate = (*CMDelegate)(nil)

// NewCMDelegate returns a delegate forwarding to next.
func NewCMDelegate(next cbgo.CentralManagerDelegate, logger *logrus.Logger) *CMDelegate {
	return &CMDelegate{
		next: next,
		log:  logger.WithField("delegate", "central"),
	}
}

// Close drops every later callback. CoreBluetooth may still have callbacks
// in flight when the manager is released.
func (d *CMDelegate) Close() {
	d.closed.Store(true)
}

func (d *CMDelegate) CentralManagerDidUpdateState(cmgr cbgo.CentralManager) {
	if d.closed.Load() {
		return
	}
	d.log.WithField("state", int(cmgr.State())).Debug("didUpdateState")
	d.next.CentralManagerDidUpdateState(cmgr)
}

func (d *CMDelegate) CentralManagerWillRestoreState(cmgr cbgo.CentralManager, opts cbgo.CentralManagerRestoreOpts) {
	// State restoration is never requested, see ManagerOpts.RestoreIdentifier.
	d.log.Debug("willRestoreState ignored")
}

func (d *CMDelegate) DidDiscoverPeripheral(cmgr cbgo.CentralManager, prph cbgo.Peripheral,
	advFields cbgo.AdvFields, rssi int) {
	if d.closed.Load() {
		return
	}
	d.log.WithFields(logrus.Fields{"peripheral": prph.Identifier().String(), "rssi": rssi}).Trace("didDiscoverPeripheral")
	d.next.DidDiscoverPeripheral(cmgr, prph, advFields, rssi)
}

func (d *CMDelegate) DidConnectPeripheral(cmgr cbgo.CentralManager, prph cbgo.Peripheral) {
	if d.closed.Load() {
		return
	}
	d.log.WithField("peripheral", prph.Identifier().String()).Debug("didConnectPeripheral")
	d.next.DidConnectPeripheral(cmgr, prph)
}

func (d *CMDelegate) DidFailToConnectPeripheral(cmgr cbgo.CentralManager, prph cbgo.Peripheral, err error) {
	if d.closed.Load() {
		return
	}
	d.log.WithField("peripheral", prph.Identifier().String()).WithError(err).Debug("didFailToConnectPeripheral")
	d.next.DidFailToConnectPeripheral(cmgr, prph, err)
}

func (d *CMDelegate) DidDisconnectPeripheral(cmgr cbgo.CentralManager, prph cbgo.Peripheral, err error) {
	if d.closed.Load() {
		return
	}
	d.log.WithField("peripheral", prph.Identifier().String()).WithError(err).Debug("didDisconnectPeripheral")
	d.next.DidDisconnectPeripheral(cmgr, prph, err)
}
