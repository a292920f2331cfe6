package bluetooth

// delegate turns native callbacks into events. Each callback copies what it
// needs out of the native objects on the calling thread, then posts the
// event to the manager's queue.
type delegate struct {
	m *CentralManager
}

var _ DriverDelegate = (*delegate)(nil)

func (d *delegate) DidUpdateState(state ManagerState) {
	d.m.state.Store(int32(state))
	d.m.post(ManagerStateChanged{NewState: state})
}

func (d *delegate) DidDiscoverPeripheral(native DriverPeripheral, adv AdvertisementData, rssi int) {
	d.m.post(PeripheralDiscovered{
		Peripheral:        d.m.peripheral(native),
		AdvertisementData: adv,
		RSSI:              rssi,
	})
}

func (d *delegate) DidConnectPeripheral(native DriverPeripheral) {
	d.m.post(PeripheralConnected{Peripheral: d.m.peripheral(native)})
}

func (d *delegate) DidFailToConnectPeripheral(native DriverPeripheral, err error) {
	d.m.post(PeripheralConnectFailed{Peripheral: d.m.peripheral(native), Err: err})
}

func (d *delegate) DidDisconnectPeripheral(native DriverPeripheral, err error) {
	d.m.post(PeripheralDisconnected{Peripheral: d.m.peripheral(native), Err: err})
}

func (d *delegate) DidDiscoverServices(native DriverPeripheral, err error) {
	p := d.m.peripheral(native)
	ev := ServicesDiscovered{Peripheral: p, Err: err}
	if err == nil {
		ev.Services = p.services(native.Services())
	}
	d.m.post(ev)
}

func (d *delegate) DidDiscoverIncludedServices(native DriverPeripheral, s DriverService, err error) {
	p := d.m.peripheral(native)
	ev := IncludedServicesDiscovered{
		Peripheral: p,
		Service:    Service{peripheral: p, native: s},
		Err:        err,
	}
	if err == nil {
		ev.IncludedServices = p.services(s.IncludedServices())
	}
	d.m.post(ev)
}

func (d *delegate) DidDiscoverCharacteristics(native DriverPeripheral, s DriverService, err error) {
	p := d.m.peripheral(native)
	ev := CharacteristicsDiscovered{
		Peripheral: p,
		Service:    Service{peripheral: p, native: s},
		Err:        err,
	}
	if err == nil {
		ev.Characteristics = p.characteristics(s.Characteristics())
	}
	d.m.post(ev)
}

func (d *delegate) DidDiscoverDescriptors(native DriverPeripheral, c DriverCharacteristic, err error) {
	p := d.m.peripheral(native)
	ev := DescriptorsDiscovered{
		Peripheral:     p,
		Characteristic: Characteristic{peripheral: p, native: c},
		Err:            err,
	}
	if err == nil {
		ev.Descriptors = p.descriptors(c.Descriptors())
	}
	d.m.post(ev)
}

func (d *delegate) DidUpdateValueForCharacteristic(native DriverPeripheral, c DriverCharacteristic, err error) {
	p := d.m.peripheral(native)
	ev := CharacteristicValue{
		Peripheral:     p,
		Characteristic: Characteristic{peripheral: p, native: c},
		Err:            err,
	}
	if err == nil {
		ev.Value = cloneBytes(c.Value())
		if ev.Value == nil {
			ev.Value = []byte{}
		}
	}
	d.m.post(ev)
}

func (d *delegate) DidUpdateValueForDescriptor(native DriverPeripheral, desc DriverDescriptor, err error) {
	p := d.m.peripheral(native)
	ev := DescriptorValue{
		Peripheral: p,
		Descriptor: Descriptor{peripheral: p, native: desc},
		Err:        err,
	}
	if err == nil {
		ev.Value = cloneBytes(desc.Value())
		if ev.Value == nil {
			ev.Value = []byte{}
		}
	}
	d.m.post(ev)
}

func (d *delegate) DidWriteValueForCharacteristic(native DriverPeripheral, c DriverCharacteristic, err error) {
	p := d.m.peripheral(native)
	d.m.post(WriteCharacteristicResult{
		Peripheral:     p,
		Characteristic: Characteristic{peripheral: p, native: c},
		Err:            err,
	})
}

func (d *delegate) DidWriteValueForDescriptor(native DriverPeripheral, desc DriverDescriptor, err error) {
	p := d.m.peripheral(native)
	d.m.post(WriteDescriptorResult{
		Peripheral: p,
		Descriptor: Descriptor{peripheral: p, native: desc},
		Err:        err,
	})
}

func (d *delegate) DidUpdateNotificationState(native DriverPeripheral, c DriverCharacteristic, err error) {
	p := d.m.peripheral(native)
	d.m.post(SubscriptionChanged{
		Peripheral:     p,
		Characteristic: Characteristic{peripheral: p, native: c},
		Err:            err,
	})
}

func (d *delegate) DidReadRSSI(native DriverPeripheral, rssi int, err error) {
	ev := ReadRSSIResult{Peripheral: d.m.peripheral(native), Err: err}
	if err == nil {
		ev.RSSI = rssi
	}
	d.m.post(ev)
}

func (d *delegate) DidUpdateName(native DriverPeripheral) {
	d.m.post(PeripheralNameChanged{
		Peripheral: d.m.peripheral(native),
		NewName:    native.Name(),
	})
}

func (d *delegate) DidModifyServices(native DriverPeripheral, invalidated []DriverService) {
	p := d.m.peripheral(native)
	d.m.post(ServicesChanged{
		Peripheral:          p,
		Services:            p.services(native.Services()),
		InvalidatedServices: p.services(invalidated),
	})
}

func (d *delegate) IsReadyToSendWriteWithoutResponse(native DriverPeripheral) {
	d.m.post(PeripheralReadyToWriteWithoutResponse{Peripheral: d.m.peripheral(native)})
}
