package ember

import (
  "fmt"

  "github.com/go-ble/ble"
  bridgeble "github.com/robertof/go-embermug-bridge/ble"
)

type CharacteristicInfo struct {
  Properties []string `json:"properties"`
  Value *string `json:"value"`
  Descriptors []string `json:"descriptors,omitempty"`
}

type ServiceInfo struct {
  Characteristics map[string]CharacteristicInfo `json:"characteristics"`
}

// Walk the full GATT profile of the mug, reading every readable value. Read errors end up in
// the value so that one locked characteristic doesn't hide the rest.
func (m *Mug) DiscoverServices() (map[string]ServiceInfo, error) {
  m.connMu.Lock()
  conn := m.conn
  m.connMu.Unlock()

  if conn == nil {
    return nil, ErrNotConnected
  }

  profile, err := conn.DiscoverProfile(true)

  if err != nil {
    return nil, fmt.Errorf("cannot discover profile for device: %w", err)
  }

  out := make(map[string]ServiceInfo, len(profile.Services))

  for _, svc := range profile.Services {
    info := ServiceInfo{Characteristics: make(map[string]CharacteristicInfo)}

    for _, char := range svc.Characteristics {
      charInfo := CharacteristicInfo{
        Properties: bridgeble.PropertyNames(char.Property),
      }

      if char.Property & ble.CharRead != 0 {
        charInfo.Value = describeRead(conn.ReadCharacteristic(char))
      }

      for _, desc := range char.Descriptors {
        charInfo.Descriptors = append(charInfo.Descriptors, desc.UUID.String())
      }

      info.Characteristics[char.UUID.String()] = charInfo
    }

    out[svc.UUID.String()] = info
  }

  return out, nil
}

func describeRead(data []byte, err error) *string {
  var s string

  if err != nil {
    s = "error: " + err.Error()
  } else {
    s = fmt.Sprintf("%x", data)
  }

  return &s
}
