package bluetooth

// Tag is an arbitrary caller value attached to a request whose result comes
// back as an event, so the caller can correlate the two. A nil Tag means
// the request was untagged.
type Tag = any

// Event is delivered on the channel returned by CentralManager.Events. The
// concrete types are listed below; use a type switch to handle them.
//
// On failure the Err field of an event holds a *Error and the payload
// fields are empty.
type Event interface {
	isEvent()
}

type (
	// ManagerStateChanged is sent when the radio changes state. The first
	// event of every manager is of this type.
	ManagerStateChanged struct {
		NewState ManagerState
	}

	PeripheralDiscovered struct {
		Peripheral        *Peripheral
		AdvertisementData AdvertisementData
		RSSI              int
	}

	PeripheralConnected struct {
		Peripheral *Peripheral
	}

	PeripheralConnectFailed struct {
		Peripheral *Peripheral
		Err        error
	}

	// PeripheralDisconnected is sent after a connection is lost or
	// cancelled. Err is nil when the disconnection was requested with
	// CancelConnect.
	PeripheralDisconnected struct {
		Peripheral *Peripheral
		Err        error
	}

	// PeripheralReadyToWriteWithoutResponse is sent when the peripheral's
	// transmit queue has room again after WriteCharacteristic with
	// WithoutResponse was throttled.
	PeripheralReadyToWriteWithoutResponse struct {
		Peripheral *Peripheral
	}

	// PeripheralNameChanged is sent when the peripheral's GAP name changes.
	// NewName is empty when the peripheral no longer has a name.
	PeripheralNameChanged struct {
		Peripheral *Peripheral
		NewName    string
	}

	ServicesDiscovered struct {
		Peripheral *Peripheral
		Services   []Service
		Err        error
	}

	IncludedServicesDiscovered struct {
		Peripheral       *Peripheral
		Service          Service
		IncludedServices []Service
		Err              error
	}

	// ServicesChanged is sent when the peripheral modified its GATT
	// database. Services holds the services still valid.
	ServicesChanged struct {
		Peripheral          *Peripheral
		Services            []Service
		InvalidatedServices []Service
	}

	CharacteristicsDiscovered struct {
		Peripheral      *Peripheral
		Service         Service
		Characteristics []Characteristic
		Err             error
	}

	// CharacteristicValue is sent after ReadCharacteristic and for every
	// notification or indication of a subscribed characteristic.
	CharacteristicValue struct {
		Peripheral     *Peripheral
		Characteristic Characteristic
		Value          []byte
		Err            error
	}

	WriteCharacteristicResult struct {
		Peripheral     *Peripheral
		Characteristic Characteristic
		Err            error
	}

	// SubscriptionChanged is sent after Subscribe and Unsubscribe.
	SubscriptionChanged struct {
		Peripheral     *Peripheral
		Characteristic Characteristic
		Err            error
	}

	DescriptorsDiscovered struct {
		Peripheral     *Peripheral
		Characteristic Characteristic
		Descriptors    []Descriptor
		Err            error
	}

	DescriptorValue struct {
		Peripheral *Peripheral
		Descriptor Descriptor
		Value      []byte
		Err        error
	}

	WriteDescriptorResult struct {
		Peripheral *Peripheral
		Descriptor Descriptor
		Err        error
	}

	ReadRSSIResult struct {
		Peripheral *Peripheral
		RSSI       int
		Err        error
	}

	MaxWriteLenResult struct {
		Peripheral  *Peripheral
		MaxWriteLen MaxWriteLen
		Tag         Tag
	}

	// PeripheralsResult answers CentralManager.RetrievePeripherals.
	PeripheralsResult struct {
		Peripherals []*Peripheral
		Tag         Tag
	}

	// ConnectedPeripheralsResult answers
	// CentralManager.RetrieveConnectedPeripherals.
	ConnectedPeripheralsResult struct {
		Peripherals []*Peripheral
		Tag         Tag
	}
)

func (ManagerStateChanged) isEvent()                   {}
func (PeripheralDiscovered) isEvent()                  {}
func (PeripheralConnected) isEvent()                   {}
func (PeripheralConnectFailed) isEvent()               {}
func (PeripheralDisconnected) isEvent()                {}
func (PeripheralReadyToWriteWithoutResponse) isEvent() {}
func (PeripheralNameChanged) isEvent()                 {}
func (ServicesDiscovered) isEvent()                    {}
func (IncludedServicesDiscovered) isEvent()            {}
func (ServicesChanged) isEvent()                       {}
func (CharacteristicsDiscovered) isEvent()             {}
func (CharacteristicValue) isEvent()                   {}
func (WriteCharacteristicResult) isEvent()             {}
func (SubscriptionChanged) isEvent()                   {}
func (DescriptorsDiscovered) isEvent()                 {}
func (DescriptorValue) isEvent()                       {}
func (WriteDescriptorResult) isEvent()                 {}
func (ReadRSSIResult) isEvent()                        {}
func (MaxWriteLenResult) isEvent()                     {}
func (PeripheralsResult) isEvent()                     {}
func (ConnectedPeripheralsResult) isEvent()            {}
