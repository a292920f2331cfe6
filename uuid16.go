package bluetooth

// Well-known UUIDs used by the examples and the cbcentral tool. See
// https://www.bluetooth.com/specifications/assigned-numbers/ for the full
// list of assigned numbers.

var (
	ServiceUUIDGenericAccess     = New16BitUUID(0x1800)
	ServiceUUIDGenericAttribute  = New16BitUUID(0x1801)
	ServiceUUIDDeviceInformation = New16BitUUID(0x180A)
	ServiceUUIDHeartRate         = New16BitUUID(0x180D)
	ServiceUUIDBattery           = New16BitUUID(0x180F)

	CharacteristicUUIDDeviceName             = New16BitUUID(0x2A00)
	CharacteristicUUIDBatteryLevel           = New16BitUUID(0x2A19)
	CharacteristicUUIDManufacturerNameString = New16BitUUID(0x2A29)
	CharacteristicUUIDHeartRateMeasurement   = New16BitUUID(0x2A37)

	DescriptorUUIDClientCharacteristicConfiguration = New16BitUUID(0x2902)
)

// Nordic UART Service, a de-facto standard for serial-like transfers.
var (
	ServiceUUIDNordicUART    = mustParseUUID("6e400001-b5a3-f393-e0a9-e50e24dcca9e")
	CharacteristicUUIDUARTRX = mustParseUUID("6e400002-b5a3-f393-e0a9-e50e24dcca9e")
	CharacteristicUUIDUARTTX = mustParseUUID("6e400003-b5a3-f393-e0a9-e50e24dcca9e")
)

func mustParseUUID(s string) UUID {
	uuid, err := ParseUUID(s)
	if err != nil {
		panic("bluetooth: invalid UUID literal " + s)
	}
	return uuid
}
