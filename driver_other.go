//go:build !darwin && !linux

package bluetooth

var platformDriver DriverFactory = func(DriverDelegate, CentralManagerOptions) (Driver, error) {
	return nil, ErrUnsupportedPlatform
}
