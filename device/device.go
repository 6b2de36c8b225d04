package device

import (
	"errors"
	"net"
)

var (
  ErrInvalidData = errors.New("invalid data")
  ErrUnsupported = errors.New("unsupported by device")
)

type Flags uint8

const (
  // Manufacturer data is only sent in scan responses.
  FlagRequiresBleActiveScan Flags = 1 << iota
  // The device pushes notifications and needs its connection kept open between polls.
  FlagRequiresPersistentConnection
)

type Device interface {
  Name() string
  Addr() net.HardwareAddr
  Flags() Flags
  String() string
}
