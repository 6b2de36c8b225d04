package ember

import (
  "context"
  "net"

  "github.com/robertof/go-embermug-bridge/ble"
)

// Conn is the part of a GATT client connection the mug talks through. ble.Client satisfies it.
type Conn interface {
  DiscoverProfile(force bool) (*ble.Profile, error)
  ReadCharacteristic(c *ble.Characteristic) ([]byte, error)
  WriteCharacteristic(c *ble.Characteristic, value []byte, noRsp bool) error
  Subscribe(c *ble.Characteristic, ind bool, h ble.NotificationHandler) error
  Unsubscribe(c *ble.Characteristic, ind bool) error
  CancelConnection() error
  Disconnected() <-chan struct{}
}

type Dialer interface {
  Dial(ctx context.Context, addr net.HardwareAddr) (Conn, error)
}

type DialerFunc func(ctx context.Context, addr net.HardwareAddr) (Conn, error)

func (f DialerFunc) Dial(ctx context.Context, addr net.HardwareAddr) (Conn, error) {
  return f(ctx, addr)
}

// Dial mugs through a BLE handle, sharing its connection pool.
func HandleDialer(h *ble.Handle) Dialer {
  return DialerFunc(func(ctx context.Context, addr net.HardwareAddr) (Conn, error) {
    client, err := h.Connect(ctx, addr)

    if err != nil {
      return nil, err
    }

    return client, nil
  })
}
