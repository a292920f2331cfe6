//go:build darwin

package bluetooth

import (
	"encoding/binary"

	"github.com/cbcentral/bluetooth/macbt"
	"github.com/sirupsen/logrus"
	"github.com/tinygo-org/cbgo"
)

var platformDriver DriverFactory = newDarwinDriver

// darwinDriver drives CoreBluetooth through cbgo. It receives the cbgo
// delegate callbacks (through the macbt delegates) and forwards them to the
// manager's DriverDelegate with cbgo types wrapped.
type darwinDriver struct {
	cm       cbgo.CentralManager
	cmd      *macbt.CMDelegate
	pd       *macbt.PDelegate
	delegate DriverDelegate
	logger   *logrus.Logger
}

func newDarwinDriver(delegate DriverDelegate, opts CentralManagerOptions) (Driver, error) {
	d := &darwinDriver{
		delegate: delegate,
		logger:   opts.Logger,
	}
	d.cmd = macbt.NewCMDelegate(d, opts.Logger)
	d.pd = macbt.NewPDelegate(d, opts.Logger)
	d.cm = cbgo.NewCentralManager(&cbgo.ManagerOpts{
		ShowPowerAlert: opts.ShowPowerAlert,
	})
	d.cm.SetDelegate(d.cmd)
	return d, nil
}

func (d *darwinDriver) State() ManagerState {
	return ManagerStateFromCode(int(d.cm.State()))
}

func (d *darwinDriver) Scan(opts ScanOptions) {
	d.cm.Scan(uuidsToCB(opts.Services), &cbgo.CentralManagerScanOpts{
		AllowDuplicates:       opts.AllowDuplicates,
		SolicitedServiceUUIDs: uuidsToCB(opts.SolicitedServices),
	})
}

func (d *darwinDriver) StopScan() {
	d.cm.StopScan()
}

func (d *darwinDriver) Connect(p DriverPeripheral, opts ConnectOptions) {
	prph := p.(darwinPeripheral).prph
	d.pd.Attach(prph)
	d.cm.Connect(prph, &cbgo.CentralManagerConnectOpts{
		NotifyOnConnection:    opts.NotifyOnConnection,
		NotifyOnDisconnection: opts.NotifyOnDisconnection,
		NotifyOnNotification:  opts.NotifyOnNotification,
		StartDelay:            opts.StartDelaySeconds(),
	})
}

func (d *darwinDriver) CancelConnect(p DriverPeripheral) {
	d.cm.CancelConnect(p.(darwinPeripheral).prph)
}

func (d *darwinDriver) RetrievePeripherals(ids []UUID) []DriverPeripheral {
	return d.wrapPeripherals(d.cm.RetrievePeripheralsWithIdentifiers(uuidsToCB(ids)))
}

func (d *darwinDriver) RetrieveConnectedPeripherals(services []UUID) []DriverPeripheral {
	return d.wrapPeripherals(d.cm.RetrieveConnectedPeripheralsWithServices(uuidsToCB(services)))
}

func (d *darwinDriver) Close() error {
	d.cmd.Close()
	d.pd.Close()
	d.cm.StopScan()
	d.cm.SetDelegate(nil)
	return nil
}

func (d *darwinDriver) wrapPeripherals(prphs []cbgo.Peripheral) []DriverPeripheral {
	wrapped := make([]DriverPeripheral, 0, len(prphs))
	for _, prph := range prphs {
		wrapped = append(wrapped, d.peripheral(prph))
	}
	return wrapped
}

// peripheral wraps prph and makes sure its callbacks reach us.
func (d *darwinDriver) peripheral(prph cbgo.Peripheral) darwinPeripheral {
	d.pd.Attach(prph)
	return darwinPeripheral{prph: prph}
}

// cbgo.CentralManagerDelegate

func (d *darwinDriver) CentralManagerDidUpdateState(cmgr cbgo.CentralManager) {
	d.delegate.DidUpdateState(ManagerStateFromCode(int(cmgr.State())))
}

func (d *darwinDriver) CentralManagerWillRestoreState(cmgr cbgo.CentralManager, opts cbgo.CentralManagerRestoreOpts) {
}

func (d *darwinDriver) DidDiscoverPeripheral(cmgr cbgo.CentralManager, prph cbgo.Peripheral, advFields cbgo.AdvFields, rssi int) {
	d.delegate.DidDiscoverPeripheral(d.peripheral(prph), advertisementFromCB(advFields), rssi)
}

func (d *darwinDriver) DidConnectPeripheral(cmgr cbgo.CentralManager, prph cbgo.Peripheral) {
	d.delegate.DidConnectPeripheral(d.peripheral(prph))
}

func (d *darwinDriver) DidFailToConnectPeripheral(cmgr cbgo.CentralManager, prph cbgo.Peripheral, err error) {
	d.delegate.DidFailToConnectPeripheral(d.peripheral(prph), errorFromCB(err))
}

func (d *darwinDriver) DidDisconnectPeripheral(cmgr cbgo.CentralManager, prph cbgo.Peripheral, err error) {
	d.delegate.DidDisconnectPeripheral(d.peripheral(prph), errorFromCB(err))
}

// cbgo.PeripheralDelegate

func (d *darwinDriver) DidDiscoverServices(prph cbgo.Peripheral, err error) {
	d.delegate.DidDiscoverServices(darwinPeripheral{prph}, errorFromCB(err))
}

func (d *darwinDriver) DidDiscoverIncludedServices(prph cbgo.Peripheral, svc cbgo.Service, err error) {
	d.delegate.DidDiscoverIncludedServices(darwinPeripheral{prph}, darwinService{svc}, errorFromCB(err))
}

func (d *darwinDriver) DidDiscoverCharacteristics(prph cbgo.Peripheral, svc cbgo.Service, err error) {
	d.delegate.DidDiscoverCharacteristics(darwinPeripheral{prph}, darwinService{svc}, errorFromCB(err))
}

func (d *darwinDriver) DidDiscoverDescriptors(prph cbgo.Peripheral, chr cbgo.Characteristic, err error) {
	d.delegate.DidDiscoverDescriptors(darwinPeripheral{prph}, darwinCharacteristic{chr}, errorFromCB(err))
}

func (d *darwinDriver) DidUpdateValueForCharacteristic(prph cbgo.Peripheral, chr cbgo.Characteristic, err error) {
	d.delegate.DidUpdateValueForCharacteristic(darwinPeripheral{prph}, darwinCharacteristic{chr}, attErrorFromCB(err))
}

func (d *darwinDriver) DidUpdateValueForDescriptor(prph cbgo.Peripheral, dsc cbgo.Descriptor, err error) {
	d.delegate.DidUpdateValueForDescriptor(darwinPeripheral{prph}, darwinDescriptor{dsc}, attErrorFromCB(err))
}

func (d *darwinDriver) DidWriteValueForCharacteristic(prph cbgo.Peripheral, chr cbgo.Characteristic, err error) {
	d.delegate.DidWriteValueForCharacteristic(darwinPeripheral{prph}, darwinCharacteristic{chr}, attErrorFromCB(err))
}

func (d *darwinDriver) DidWriteValueForDescriptor(prph cbgo.Peripheral, dsc cbgo.Descriptor, err error) {
	d.delegate.DidWriteValueForDescriptor(darwinPeripheral{prph}, darwinDescriptor{dsc}, attErrorFromCB(err))
}

func (d *darwinDriver) IsReadyToSendWriteWithoutResponse(prph cbgo.Peripheral) {
	d.delegate.IsReadyToSendWriteWithoutResponse(darwinPeripheral{prph})
}

func (d *darwinDriver) DidUpdateNotificationState(prph cbgo.Peripheral, chr cbgo.Characteristic, err error) {
	d.delegate.DidUpdateNotificationState(darwinPeripheral{prph}, darwinCharacteristic{chr}, errorFromCB(err))
}

func (d *darwinDriver) DidReadRSSI(prph cbgo.Peripheral, rssi int, err error) {
	d.delegate.DidReadRSSI(darwinPeripheral{prph}, rssi, errorFromCB(err))
}

func (d *darwinDriver) DidUpdateName(prph cbgo.Peripheral) {
	d.delegate.DidUpdateName(darwinPeripheral{prph})
}

func (d *darwinDriver) DidModifyServices(prph cbgo.Peripheral, invSvcs []cbgo.Service) {
	invalidated := make([]DriverService, 0, len(invSvcs))
	for _, svc := range invSvcs {
		invalidated = append(invalidated, darwinService{svc})
	}
	d.delegate.DidModifyServices(darwinPeripheral{prph}, invalidated)
}

// darwinPeripheral and the attribute wrappers below are plain values around
// the native object pointer, so two wrappers of the same object compare
// equal.
type darwinPeripheral struct {
	prph cbgo.Peripheral
}

func (p darwinPeripheral) Identifier() UUID {
	return uuidFromCB(p.prph.Identifier())
}

func (p darwinPeripheral) Name() string {
	return p.prph.Name()
}

func (p darwinPeripheral) Services() []DriverService {
	svcs := p.prph.Services()
	services := make([]DriverService, 0, len(svcs))
	for _, svc := range svcs {
		services = append(services, darwinService{svc})
	}
	return services
}

func (p darwinPeripheral) DiscoverServices(uuids []UUID) {
	p.prph.DiscoverServices(uuidsToCB(uuids))
}

func (p darwinPeripheral) DiscoverIncludedServices(s DriverService, uuids []UUID) {
	p.prph.DiscoverIncludedServices(uuidsToCB(uuids), s.(darwinService).svc)
}

func (p darwinPeripheral) DiscoverCharacteristics(s DriverService, uuids []UUID) {
	p.prph.DiscoverCharacteristics(uuidsToCB(uuids), s.(darwinService).svc)
}

func (p darwinPeripheral) DiscoverDescriptors(c DriverCharacteristic) {
	p.prph.DiscoverDescriptors(c.(darwinCharacteristic).chr)
}

func (p darwinPeripheral) ReadCharacteristic(c DriverCharacteristic) {
	p.prph.ReadCharacteristic(c.(darwinCharacteristic).chr)
}

func (p darwinPeripheral) WriteCharacteristic(c DriverCharacteristic, value []byte, kind WriteKind) {
	p.prph.WriteCharacteristic(value, c.(darwinCharacteristic).chr, kind == WithResponse)
}

func (p darwinPeripheral) ReadDescriptor(d DriverDescriptor) {
	p.prph.ReadDescriptor(d.(darwinDescriptor).dsc)
}

func (p darwinPeripheral) WriteDescriptor(d DriverDescriptor, value []byte) {
	p.prph.WriteDescriptor(value, d.(darwinDescriptor).dsc)
}

func (p darwinPeripheral) SetNotify(c DriverCharacteristic, enabled bool) {
	p.prph.SetNotify(enabled, c.(darwinCharacteristic).chr)
}

func (p darwinPeripheral) ReadRSSI() {
	p.prph.ReadRSSI()
}

func (p darwinPeripheral) MaximumWriteValueLength(kind WriteKind) int {
	return p.prph.MaximumWriteValueLength(kind == WithResponse)
}

type darwinService struct {
	svc cbgo.Service
}

func (s darwinService) UUID() UUID {
	return uuidFromCB(s.svc.UUID())
}

func (s darwinService) IsPrimary() bool {
	return s.svc.IsPrimary()
}

func (s darwinService) Characteristics() []DriverCharacteristic {
	chrs := s.svc.Characteristics()
	chars := make([]DriverCharacteristic, 0, len(chrs))
	for _, chr := range chrs {
		chars = append(chars, darwinCharacteristic{chr})
	}
	return chars
}

func (s darwinService) IncludedServices() []DriverService {
	svcs := s.svc.IncludedServices()
	services := make([]DriverService, 0, len(svcs))
	for _, svc := range svcs {
		services = append(services, darwinService{svc})
	}
	return services
}

type darwinCharacteristic struct {
	chr cbgo.Characteristic
}

func (c darwinCharacteristic) UUID() UUID {
	return uuidFromCB(c.chr.UUID())
}

func (c darwinCharacteristic) Properties() CharacteristicProperties {
	return CharacteristicPropertiesFromBits(uint32(c.chr.Properties()))
}

func (c darwinCharacteristic) Value() []byte {
	return c.chr.Value()
}

func (c darwinCharacteristic) Descriptors() []DriverDescriptor {
	dscs := c.chr.Descriptors()
	descs := make([]DriverDescriptor, 0, len(dscs))
	for _, dsc := range dscs {
		descs = append(descs, darwinDescriptor{dsc})
	}
	return descs
}

type darwinDescriptor struct {
	dsc cbgo.Descriptor
}

func (d darwinDescriptor) UUID() UUID {
	return uuidFromCB(d.dsc.UUID())
}

func (d darwinDescriptor) Value() []byte {
	return d.dsc.Value()
}

// uuidFromCB converts a cbgo UUID, which stores its bytes in little endian
// order.
func uuidFromCB(u cbgo.UUID) UUID {
	switch len(u) {
	case 2:
		return New16BitUUID(binary.LittleEndian.Uint16(u))
	case 4:
		return New32BitUUID(binary.LittleEndian.Uint32(u))
	case 16:
		var b [16]byte
		for i := range b {
			b[i] = u[15-i]
		}
		return NewUUID(b)
	default:
		return UUID{}
	}
}

func uuidToCB(u UUID) cbgo.UUID {
	if u.Is16Bit() {
		return cbgo.UUID16(u.Get16Bit())
	}
	b := u.Bytes()
	le := make(cbgo.UUID, 16)
	for i := range b {
		le[i] = b[15-i]
	}
	return le
}

func uuidsToCB(uuids []UUID) []cbgo.UUID {
	if len(uuids) == 0 {
		return nil
	}
	cbuuids := make([]cbgo.UUID, 0, len(uuids))
	for _, u := range uuids {
		cbuuids = append(cbuuids, uuidToCB(u))
	}
	return cbuuids
}

func advertisementFromCB(f cbgo.AdvFields) AdvertisementData {
	adv := AdvertisementData{
		LocalName:        f.LocalName,
		ManufacturerData: cloneBytes(f.ManufacturerData),
	}
	if f.Connectable != nil {
		connectable := *f.Connectable
		adv.Connectable = &connectable
	}
	if f.TxPowerLevel != nil {
		txPower := *f.TxPowerLevel
		adv.TxPowerLevel = &txPower
	}
	for _, u := range f.ServiceUUIDs {
		adv.ServiceUUIDs = append(adv.ServiceUUIDs, uuidFromCB(u))
	}
	if len(f.ServiceData) > 0 {
		adv.ServiceData = NewServiceData()
		for _, sd := range f.ServiceData {
			adv.ServiceData.Set(uuidFromCB(sd.UUID), sd.Data)
		}
	}
	return adv
}

// errorFromCB converts an NSError handed out by cbgo. cbgo keeps the code
// but not the error domain, so CBErrorDomain is assumed.
func errorFromCB(err error) error {
	return errorFromNative(err, ErrorDomain)
}

// attErrorFromCB converts the error of a value or write callback. Those
// callbacks report the peripheral's ATT error codes.
func attErrorFromCB(err error) error {
	return errorFromNative(err, AttErrorDomain)
}
