package ember

import (
  "fmt"
  "net"

  "github.com/robertof/go-embermug-bridge/device"
  "github.com/rs/zerolog/log"
)

type Factory struct{}

func (f *Factory) FromSpec(spec device.DeviceSpec) (device.Device, error) {
  hwAddr, err := net.ParseMAC(spec.Addr())
  if err != nil {
    return nil, fmt.Errorf("invalid addr: %w", err)
  }

  d := NewDevice(spec.Name(), hwAddr)

  if d.debug, err = spec.Bool("debug", false); err != nil {
    return nil, err
  }

  if raw, ok := spec["presets"]; ok {
    unit := Celsius

    if rawUnit, ok := spec["presets_unit"]; ok {
      if unit, err = ParseTemperatureUnit(rawUnit); err != nil {
        return nil, fmt.Errorf("invalid presets_unit: %w", err)
      }
    }

    if d.presets, err = ParsePresets(raw, unit); err != nil {
      return nil, err
    }
  }

  log.Debug().
    Stringer("Device", d).
    Strs("Presets", d.presets.Labels()).
    Bool("Debug", d.debug).
    Msg("ember: configured device")

  return d, nil
}

func (f *Factory) Help() string {
  return `Supported parameters:
addr (string, required): MAC address of this Ember device
name (string): Name of this Ember device. Defaults to ember-<addr>
presets (string): Temperature presets in the form 'Label:temp;Label:temp'. Defaults to Latte:52;Coffee:55;Tea:60
presets_unit (string): Unit of the presets, C or F. Defaults to C
debug (bool): Include the discovered GATT profile in diagnostics`
}
