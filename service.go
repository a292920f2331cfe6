package bluetooth

// Service is a handle to a remote GATT service. Handles are comparable; two
// handles are equal when they refer to the same native object. The zero
// value is not a valid handle.
type Service struct {
	peripheral *Peripheral
	native     DriverService
}

// UUID returns the service type, or the zero UUID for an invalid handle.
func (s Service) UUID() UUID {
	if s.native == nil {
		return UUID{}
	}
	return s.native.UUID()
}

// IsPrimary reports whether this is a primary service.
func (s Service) IsPrimary() bool {
	return s.native != nil && s.native.IsPrimary()
}

// Peripheral returns the peripheral this service belongs to.
func (s Service) Peripheral() *Peripheral {
	return s.peripheral
}

// IsValid reports whether s refers to a service.
func (s Service) IsValid() bool {
	return s.peripheral != nil && s.native != nil
}

func (s Service) String() string {
	if !s.IsValid() {
		return "Service(nil)"
	}
	return "Service(" + s.UUID().ShortString() + ")"
}
