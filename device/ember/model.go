package ember

import (
  "strings"

  "github.com/robertof/go-embermug-bridge/ble"
)

type DeviceType string

const (
  DeviceTypeUnknown DeviceType = "unknown"
  DeviceTypeMug DeviceType = "mug"
  DeviceTypeCup DeviceType = "cup"
  DeviceTypeTumbler DeviceType = "tumbler"
  DeviceTypeTravelMug DeviceType = "travel_mug"
)

type ModelInfo struct {
  Type DeviceType
  Name string
}

var modelNames = []struct {
  match string
  info ModelInfo
}{
  // longest match first, "Ember Travel Mug" also contains "mug".
  {"travel", ModelInfo{DeviceTypeTravelMug, "Ember Travel Mug 2"}},
  {"tumbler", ModelInfo{DeviceTypeTumbler, "Ember Tumbler"}},
  {"cup", ModelInfo{DeviceTypeCup, "Ember Cup"}},
  {"mug", ModelInfo{DeviceTypeMug, "Ember Mug 2"}},
}

// Guess the model from the advertised local name ("Ember Ceramic Mug", "Ember Cup", ...).
func ModelFromName(localName string) ModelInfo {
  name := strings.ToLower(localName)

  for _, entry := range modelNames {
    if strings.Contains(name, entry.match) {
      return entry.info
    }
  }

  return ModelInfo{Type: DeviceTypeUnknown, Name: "Ember Device"}
}

// Whether the advertisement comes from an Ember device.
func IsEmberAdvertisement(a ble.Advertisement) bool {
  if id, _, err := ble.ManufacturerData(a); err == nil && id == ManufacturerID {
    return true
  }

  for _, svc := range a.Services() {
    if svc.Equal(UUIDService) {
      return true
    }
  }

  return strings.HasPrefix(strings.ToLower(a.LocalName()), "ember")
}

func ModelFromAdvertisement(a ble.Advertisement) ModelInfo {
  return ModelFromName(a.LocalName())
}

func (m ModelInfo) String() string {
  return m.Name
}

// Whether the model exposes the attribute at all.
func (m ModelInfo) HasAttribute(attr Attr) bool {
  switch attr {
  case AttrVolumeLevel:
    return m.Type == DeviceTypeTravelMug
  case AttrLEDColour:
    return m.Type != DeviceTypeTravelMug
  case AttrName:
    return m.Type == DeviceTypeMug || m.Type == DeviceTypeTravelMug || m.Type == DeviceTypeUnknown
  }

  return true
}

// Attributes refreshed by a full update for this model.
func (m ModelInfo) Attributes() (attrs []Attr) {
  for _, attr := range updateOrder {
    if m.HasAttribute(attr) {
      attrs = append(attrs, attr)
    }
  }

  return attrs
}
