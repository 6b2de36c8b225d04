package embertest

import (
  goble "github.com/go-ble/ble"
)

// Advertisement is a canned scan result.
type Advertisement struct {
  Name string
  Manufacturer []byte
  ServiceUUIDs []goble.UUID
  Address goble.Addr
}

// Advertisement as sent by an Ember mug with the given local name.
func MugAdvertisement(name string) Advertisement {
  return Advertisement{
    Name: name,
    Manufacturer: []byte{0xc1, 0x03, 0x01, 0x02},
  }
}

func (a Advertisement) LocalName() string {
  return a.Name
}

func (a Advertisement) ManufacturerData() []byte {
  return a.Manufacturer
}

func (a Advertisement) ServiceData() []goble.ServiceData {
  return nil
}

func (a Advertisement) Services() []goble.UUID {
  return a.ServiceUUIDs
}

func (a Advertisement) OverflowService() []goble.UUID {
  return nil
}

func (a Advertisement) TxPowerLevel() int {
  return 0
}

func (a Advertisement) Connectable() bool {
  return true
}

func (a Advertisement) SolicitedService() []goble.UUID {
  return nil
}

func (a Advertisement) RSSI() int {
  return -60
}

func (a Advertisement) Addr() goble.Addr {
  return a.Address
}
