// Package bluetooth exposes the Bluetooth Low Energy central role of the
// operating system's Bluetooth framework (CoreBluetooth on macOS, BlueZ on
// Linux) through ordinary Go calls and an event channel.
//
// Commands such as Scan, Connect or ReadCharacteristic return immediately.
// They are executed in order on a serial dispatch queue owned by the
// CentralManager, and everything the framework reports back is delivered as
// an Event on CentralManager.Events, on that same queue. Package client builds
// blocking, context-aware calls on top of this stream.
package bluetooth // import "github.com/cbcentral/bluetooth"
