package ember

import (
  "fmt"
  "net"
  "sort"
  "strconv"
  "strings"

  "github.com/robertof/go-embermug-bridge/device"
  "github.com/robertof/go-embermug-bridge/utils"
)

type Preset struct {
  Label string
  Temp float64
}

// Temperature presets, in Unit.
type Presets struct {
  Unit TemperatureUnit
  Entries []Preset
}

var DefaultPresets = Presets{
  Unit: Celsius,
  Entries: []Preset{
    {"Latte", 52},
    {"Coffee", 55},
    {"Tea", 60},
  },
}

// Parse presets in the form `Label:temp;Label:temp`.
func ParsePresets(s string, unit TemperatureUnit) (Presets, error) {
  p := Presets{Unit: unit}

  for _, entry := range strings.Split(s, ";") {
    entry = strings.TrimSpace(entry)

    if entry == "" {
      continue
    }

    label, temp, ok := strings.Cut(entry, ":")

    if !ok {
      return p, fmt.Errorf("invalid preset %q: want label:temperature", entry)
    }

    v, err := strconv.ParseFloat(strings.TrimSpace(temp), 64)

    if err != nil || v <= 0 {
      return p, fmt.Errorf("invalid temperature for preset %q", entry)
    }

    p.Entries = append(p.Entries, Preset{Label: strings.TrimSpace(label), Temp: v})
  }

  sort.SliceStable(p.Entries, func(i, j int) bool {
    return p.Entries[i].Temp < p.Entries[j].Temp
  })

  return p, nil
}

func (p Presets) Labels() (labels []string) {
  for _, entry := range p.Entries {
    labels = append(labels, entry.Label)
  }

  return labels
}

// Temperature of the preset converted to unit.
func (p Presets) Get(label string, unit TemperatureUnit) (float64, bool) {
  for _, entry := range p.Entries {
    if entry.Label != label {
      continue
    }

    return convertUnit(entry.Temp, p.Unit, unit), true
  }

  return 0, false
}

// Label of the preset matching temp (in unit), if any.
func (p Presets) Match(temp float64, unit TemperatureUnit) (string, bool) {
  for _, entry := range p.Entries {
    if round2(convertUnit(entry.Temp, p.Unit, unit)) == round2(temp) {
      return entry.Label, true
    }
  }

  return "", false
}

func convertUnit(v float64, from, to TemperatureUnit) float64 {
  switch {
  case from == to:
    return v
  case to == Fahrenheit:
    return CelsiusToFahrenheit(v)
  default:
    return FahrenheitToCelsius(v)
  }
}

type Device struct {
  name string
  addr net.HardwareAddr
  debug bool
  presets Presets
}

func NewDevice(name string, addr net.HardwareAddr) *Device {
  if name == "" {
    name = "ember-" + utils.AddrSlug(addr)
  }

  return &Device{
    name: name,
    addr: addr,
    presets: DefaultPresets,
  }
}

func (d *Device) Name() string {
  return d.name
}

func (d *Device) Addr() net.HardwareAddr {
  return d.addr
}

// Stable identifier derived from the address.
func (d *Device) ID() string {
  return "ember_" + utils.AddrSlug(d.addr)
}

func (d *Device) Debug() bool {
  return d.debug
}

func (d *Device) Presets() Presets {
  return d.presets
}

func (d *Device) Flags() device.Flags {
  return device.FlagRequiresBleActiveScan | device.FlagRequiresPersistentConnection
}

func (d *Device) String() string {
  return fmt.Sprintf("ember[name=%q, addr=%v]", d.name, d.addr.String())
}
