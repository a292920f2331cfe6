package bluetooth

// The Driver interfaces are the boundary to the native Bluetooth framework.
// They follow the framework's own object model: a manager, peripherals, and
// the attribute objects hanging off them. Results come back asynchronously
// through the DriverDelegate, which reads the payload (service lists, values)
// from the objects it is handed.
//
// All Driver and DriverPeripheral methods are called from the manager's
// serial dispatch queue. Delegate methods may be called from any thread but
// never concurrently for the same manager.

// DriverFactory creates the driver for a new CentralManager. The delegate
// must be used for every callback of the driver.
type DriverFactory func(delegate DriverDelegate, opts CentralManagerOptions) (Driver, error)

// Driver is the native central manager.
type Driver interface {
	State() ManagerState
	Scan(opts ScanOptions)
	StopScan()
	Connect(p DriverPeripheral, opts ConnectOptions)
	CancelConnect(p DriverPeripheral)
	RetrievePeripherals(ids []UUID) []DriverPeripheral
	RetrieveConnectedPeripherals(services []UUID) []DriverPeripheral
	// Close releases the native manager. No callbacks are made afterwards.
	Close() error
}

// DriverPeripheral is a native peripheral object. Values implementing it
// must be comparable; the same object is expected for the same peripheral.
type DriverPeripheral interface {
	Identifier() UUID
	Name() string
	// Services returns the services discovered so far.
	Services() []DriverService
	DiscoverServices(uuids []UUID)
	DiscoverIncludedServices(s DriverService, uuids []UUID)
	DiscoverCharacteristics(s DriverService, uuids []UUID)
	DiscoverDescriptors(c DriverCharacteristic)
	ReadCharacteristic(c DriverCharacteristic)
	WriteCharacteristic(c DriverCharacteristic, value []byte, kind WriteKind)
	ReadDescriptor(d DriverDescriptor)
	WriteDescriptor(d DriverDescriptor, value []byte)
	SetNotify(c DriverCharacteristic, enabled bool)
	ReadRSSI()
	MaximumWriteValueLength(kind WriteKind) int
}

// DriverService is a native service object. Like DriverPeripheral, values
// must be comparable.
type DriverService interface {
	UUID() UUID
	IsPrimary() bool
	Characteristics() []DriverCharacteristic
	IncludedServices() []DriverService
}

// DriverCharacteristic is a native characteristic object.
type DriverCharacteristic interface {
	UUID() UUID
	Properties() CharacteristicProperties
	Value() []byte
	Descriptors() []DriverDescriptor
}

// DriverDescriptor is a native descriptor object.
type DriverDescriptor interface {
	UUID() UUID
	Value() []byte
}

// DriverDelegate receives the native callbacks. Errors passed in are
// either nil or *Error.
type DriverDelegate interface {
	DidUpdateState(state ManagerState)
	DidDiscoverPeripheral(p DriverPeripheral, adv AdvertisementData, rssi int)
	DidConnectPeripheral(p DriverPeripheral)
	DidFailToConnectPeripheral(p DriverPeripheral, err error)
	DidDisconnectPeripheral(p DriverPeripheral, err error)

	DidDiscoverServices(p DriverPeripheral, err error)
	DidDiscoverIncludedServices(p DriverPeripheral, s DriverService, err error)
	DidDiscoverCharacteristics(p DriverPeripheral, s DriverService, err error)
	DidDiscoverDescriptors(p DriverPeripheral, c DriverCharacteristic, err error)
	DidUpdateValueForCharacteristic(p DriverPeripheral, c DriverCharacteristic, err error)
	DidUpdateValueForDescriptor(p DriverPeripheral, d DriverDescriptor, err error)
	DidWriteValueForCharacteristic(p DriverPeripheral, c DriverCharacteristic, err error)
	DidWriteValueForDescriptor(p DriverPeripheral, d DriverDescriptor, err error)
	DidUpdateNotificationState(p DriverPeripheral, c DriverCharacteristic, err error)
	DidReadRSSI(p DriverPeripheral, rssi int, err error)
	DidUpdateName(p DriverPeripheral)
	DidModifyServices(p DriverPeripheral, invalidated []DriverService)
	IsReadyToSendWriteWithoutResponse(p DriverPeripheral)
}
