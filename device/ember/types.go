package ember

import (
  "fmt"
  "strconv"
  "strings"
)

type LiquidState uint8

const (
  LiquidStateUnknown LiquidState = iota
  LiquidStateEmpty
  LiquidStateFilling
  LiquidStateColdNoTempControl
  LiquidStateCooling
  LiquidStateHeating
  LiquidStateTargetTemperature
  LiquidStateWarmNoTempControl
)

var liquidStateLabels = map[LiquidState]string{
  LiquidStateUnknown: "Unknown",
  LiquidStateEmpty: "Empty",
  LiquidStateFilling: "Filling",
  LiquidStateColdNoTempControl: "Cold (No control)",
  LiquidStateCooling: "Cooling",
  LiquidStateHeating: "Heating",
  LiquidStateTargetTemperature: "Perfect",
  LiquidStateWarmNoTempControl: "Warm (No control)",
}

// Human readable label. Codes outside the table are rendered as their number.
func (s LiquidState) String() string {
  if label, ok := liquidStateLabels[s]; ok {
    return label
  }

  return strconv.Itoa(int(s))
}

type TemperatureUnit uint8

const (
  Celsius TemperatureUnit = iota
  Fahrenheit
)

func (u TemperatureUnit) String() string {
  if u == Fahrenheit {
    return "°F"
  }

  return "°C"
}

func ParseTemperatureUnit(s string) (TemperatureUnit, error) {
  switch strings.ToLower(strings.TrimSpace(s)) {
  case "°c", "c", "celsius":
    return Celsius, nil
  case "°f", "f", "fahrenheit":
    return Fahrenheit, nil
  }

  return Celsius, fmt.Errorf("unknown temperature unit %q", s)
}

// Only available on the travel mug.
type VolumeLevel uint8

const (
  VolumeLow VolumeLevel = iota
  VolumeMedium
  VolumeHigh
)

var VolumeLevels = []VolumeLevel{VolumeLow, VolumeMedium, VolumeHigh}

func (v VolumeLevel) String() string {
  switch v {
  case VolumeLow:
    return "low"
  case VolumeMedium:
    return "medium"
  case VolumeHigh:
    return "high"
  default:
    return strconv.Itoa(int(v))
  }
}

func ParseVolumeLevel(s string) (VolumeLevel, error) {
  for _, v := range VolumeLevels {
    if strings.EqualFold(strings.TrimSpace(s), v.String()) {
      return v, nil
    }
  }

  return VolumeLow, fmt.Errorf("unknown volume level %q", s)
}

type Colour struct {
  R, G, B, A uint8
}

func (c Colour) Bytes() []byte {
  return []byte{c.R, c.G, c.B, c.A}
}

func (c Colour) Hex() string {
  return fmt.Sprintf("#%02x%02x%02x%02x", c.R, c.G, c.B, c.A)
}

// The mug uses the alpha channel as LED brightness.
func (c Colour) Brightness() uint8 {
  return c.A
}

func (c Colour) String() string {
  return c.Hex()
}

type Battery struct {
  Percent float64
  OnChargingBase bool
}

func (b Battery) String() string {
  return fmt.Sprintf("%.0f%% (on base: %v)", b.Percent, b.OnChargingBase)
}

type Firmware struct {
  Version uint16
  Hardware uint16
  Bootloader uint16
}

func (f Firmware) String() string {
  return fmt.Sprintf("version=%d hardware=%d bootloader=%d", f.Version, f.Hardware, f.Bootloader)
}

type MugMeta struct {
  MugID string
  SerialNumber string
}
