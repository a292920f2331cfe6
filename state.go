package bluetooth

// ManagerState is the state of the local Bluetooth radio as reported by the
// native framework. The numeric values match the framework's state codes.
type ManagerState int

const (
	StateUnknown ManagerState = iota
	StateResetting
	StateUnsupported
	StateUnauthorized
	StatePoweredOff
	StatePoweredOn
)

// ManagerStateFromCode converts a native state code. Codes the framework may
// add in the future map to StateUnknown.
func ManagerStateFromCode(code int) ManagerState {
	if code < int(StateUnknown) || code > int(StatePoweredOn) {
		return StateUnknown
	}
	return ManagerState(code)
}

func (s ManagerState) String() string {
	switch s {
	case StateResetting:
		return "Resetting"
	case StateUnsupported:
		return "Unsupported"
	case StateUnauthorized:
		return "Unauthorized"
	case StatePoweredOff:
		return "PoweredOff"
	case StatePoweredOn:
		return "PoweredOn"
	default:
		return "Unknown"
	}
}
