// Package macbt implements the CoreBluetooth delegate protocols on top of
// cbgo. CoreBluetooth communicates events asynchronously via callbacks on
// its own dispatch queue; the delegates here log each callback and forward
// it to the driver that translates it into events, until they are closed.
package macbt
