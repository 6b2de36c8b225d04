package ember

import (
  "github.com/robertof/go-embermug-bridge/ble"
)

// Ember's Bluetooth SIG company identifier, found in the manufacturer data of advertisements.
const ManufacturerID = 0x03c1

func emberUUID(short string) ble.UUID {
  return ble.MustParseUUID("fc54" + short + "-236c-4c94-8fa9-944a3e5353fa")
}

var (
  UUIDService = emberUUID("3622")

  UUIDName = emberUUID("0001")
  UUIDCurrentTemperature = emberUUID("0002")
  UUIDTargetTemperature = emberUUID("0003")
  UUIDTemperatureUnit = emberUUID("0004")
  UUIDLiquidLevel = emberUUID("0005")
  UUIDTimeDateZone = emberUUID("0006")
  UUIDBattery = emberUUID("0007")
  UUIDLiquidState = emberUUID("0008")
  UUIDVolumeLevel = emberUUID("0009")
  UUIDFirmware = emberUUID("000c")
  UUIDMugID = emberUUID("000d")
  UUIDDSK = emberUUID("000e")
  UUIDUDSK = emberUUID("000f")
  UUIDPushEvent = emberUUID("0012")
  UUIDLEDColour = emberUUID("0014")
)

var allUUIDs = []ble.UUID{
  UUIDName,
  UUIDCurrentTemperature,
  UUIDTargetTemperature,
  UUIDTemperatureUnit,
  UUIDLiquidLevel,
  UUIDTimeDateZone,
  UUIDBattery,
  UUIDLiquidState,
  UUIDVolumeLevel,
  UUIDFirmware,
  UUIDMugID,
  UUIDDSK,
  UUIDUDSK,
  UUIDPushEvent,
  UUIDLEDColour,
}

// Every characteristic of the Ember service the bridge knows about.
func CharacteristicUUIDs() []ble.UUID {
  return append([]ble.UUID(nil), allUUIDs...)
}
