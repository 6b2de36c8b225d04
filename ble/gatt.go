package ble

import (
  "encoding/binary"
  "fmt"

  "github.com/go-ble/ble"
)

// Find the characteristics with the given UUIDs inside a discovered profile, keyed by
// UUID.String(). Only characteristics belonging to the service identified by svc are returned,
// unless svc is nil.
func FindCharacteristics(p *ble.Profile, svc ble.UUID, uuids []ble.UUID) map[string]*ble.Characteristic {
  found := make(map[string]*ble.Characteristic, len(uuids))

  if p == nil {
    return found
  }

  for _, s := range p.Services {
    if svc != nil && !s.UUID.Equal(svc) {
      continue
    }

    for _, char := range s.Characteristics {
      for _, want := range uuids {
        if char.UUID.Equal(want) {
          found[want.String()] = char
        }
      }
    }
  }

  return found
}

// Extract the company identifier and payload of an advertisement's manufacturer specific data.
func ManufacturerData(a ble.Advertisement) (id uint16, payload []byte, err error) {
  data := a.ManufacturerData()

  if len(data) < 2 {
    return 0, nil, fmt.Errorf("manufacturer data too short (%d bytes)", len(data))
  }

  return binary.LittleEndian.Uint16(data), data[2:], nil
}

// Describe the characteristic properties as the usual lowercase words ("read", "notify", ...).
func PropertyNames(p ble.Property) (names []string) {
  props := []struct {
    prop ble.Property
    name string
  }{
    {ble.CharBroadcast, "broadcast"},
    {ble.CharRead, "read"},
    {ble.CharWriteNR, "write-without-response"},
    {ble.CharWrite, "write"},
    {ble.CharNotify, "notify"},
    {ble.CharIndicate, "indicate"},
    {ble.CharSignedWrite, "authenticated-signed-writes"},
    {ble.CharExtended, "extended-properties"},
  }

  for _, entry := range props {
    if p & entry.prop != 0 {
      names = append(names, entry.name)
    }
  }

  return names
}
