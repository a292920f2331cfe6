package bluetooth

// Descriptor is a handle to a remote characteristic descriptor. The zero
// value is not a valid handle.
type Descriptor struct {
	peripheral *Peripheral
	native     DriverDescriptor
}

func (d Descriptor) UUID() UUID {
	if d.native == nil {
		return UUID{}
	}
	return d.native.UUID()
}

func (d Descriptor) Peripheral() *Peripheral {
	return d.peripheral
}

// IsValid reports whether d refers to a descriptor.
func (d Descriptor) IsValid() bool {
	return d.peripheral != nil && d.native != nil
}

func (d Descriptor) String() string {
	if !d.IsValid() {
		return "Descriptor(nil)"
	}
	return "Descriptor(" + d.UUID().ShortString() + ")"
}
