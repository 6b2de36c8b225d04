package ember

import (
  "fmt"
  "reflect"
)

// Attr names a piece of mug state that can be read (and sometimes written) over GATT.
type Attr string

const (
  AttrName Attr = "name"
  AttrMeta Attr = "meta"
  AttrFirmware Attr = "firmware"
  AttrLEDColour Attr = "led_colour"
  AttrCurrentTemp Attr = "current_temp"
  AttrTargetTemp Attr = "target_temp"
  AttrTemperatureUnit Attr = "temperature_unit"
  AttrBattery Attr = "battery"
  AttrLiquidLevel Attr = "liquid_level"
  AttrLiquidState Attr = "liquid_state"
  AttrVolumeLevel Attr = "volume_level"
  AttrDSK Attr = "dsk"
  AttrUDSK Attr = "udsk"
)

// Order of a full refresh. The unit goes first so temperatures are converted with the unit
// the mug currently displays.
var updateOrder = []Attr{
  AttrTemperatureUnit,
  AttrLEDColour,
  AttrCurrentTemp,
  AttrTargetTemp,
  AttrBattery,
  AttrLiquidLevel,
  AttrLiquidState,
  AttrVolumeLevel,
  AttrName,
  AttrUDSK,
  AttrDSK,
}

var initialAttrs = []Attr{
  AttrName,
  AttrMeta,
  AttrFirmware,
}

// Change records a single attribute whose decoded value differs from the previous one.
type Change struct {
  Attr Attr
  Old any
  New any
}

func (c Change) String() string {
  return fmt.Sprintf("%s: %v -> %v", c.Attr, fmtValue(c.Old), fmtValue(c.New))
}

func fmtValue(v any) string {
  rv := reflect.ValueOf(v)

  if !rv.IsValid() || (rv.Kind() == reflect.Pointer && rv.IsNil()) {
    return "<nil>"
  }

  if rv.Kind() == reflect.Pointer {
    return fmt.Sprintf("%v", rv.Elem().Interface())
  }

  return fmt.Sprintf("%v", v)
}

// Data is the last successfully decoded state of a mug. Temperatures are expressed in the unit
// the mug is configured with. Pointer fields are nil until first read and are replaced, never
// mutated, so copies of Data are safe to share.
type Data struct {
  Model ModelInfo

  Name string
  Meta *MugMeta
  Firmware *Firmware
  LEDColour Colour
  CurrentTemp float64
  TargetTemp float64
  TemperatureUnit TemperatureUnit
  Battery *Battery
  LiquidLevel int
  LiquidState LiquidState
  VolumeLevel *VolumeLevel
  DSK string
  UDSK string
}

func (d Data) UseMetric() bool {
  return d.TemperatureUnit == Celsius
}

func (d Data) toCelsius(v float64) float64 {
  if d.UseMetric() || v == 0 {
    return v
  }

  return FahrenheitToCelsius(v)
}

func (d Data) CurrentTempCelsius() float64 {
  return d.toCelsius(d.CurrentTemp)
}

func (d Data) TargetTempCelsius() float64 {
  return d.toCelsius(d.TargetTemp)
}

func (d Data) LiquidLevelPercent() float64 {
  level := d.LiquidLevel

  if level > MaxLiquidLevel {
    level = MaxLiquidLevel
  }

  return round2(float64(level) / MaxLiquidLevel * 100)
}

func (d Data) HasLiquid() bool {
  return d.LiquidLevel > 0
}

// A zero target temperature means the heater is off.
func (d Data) TemperatureControlOn() bool {
  return d.TargetTemp != 0
}

// Low battery is reported earlier while heating since the mug drains a lot faster.
func (d Data) LowBattery() bool {
  if d.Battery == nil {
    return false
  }

  if d.Battery.Percent > 25 {
    return false
  }

  if d.LiquidState == LiquidStateHeating || d.LiquidState == LiquidStateTargetTemperature {
    return true
  }

  return d.Battery.Percent < 15
}

func (d Data) String() string {
  return fmt.Sprintf(
    "Data[Name=%q,Model=%v,Current=%.2f%v,Target=%.2f%v,Battery=%v,Level=%d,State=%v,LED=%v]",
    d.Name, d.Model.Type, d.CurrentTemp, d.TemperatureUnit, d.TargetTemp, d.TemperatureUnit,
    fmtValue(d.Battery), d.LiquidLevel, d.LiquidState, d.LEDColour)
}

func (d *Data) get(attr Attr) any {
  switch attr {
  case AttrName:
    return d.Name
  case AttrMeta:
    return d.Meta
  case AttrFirmware:
    return d.Firmware
  case AttrLEDColour:
    return d.LEDColour
  case AttrCurrentTemp:
    return d.CurrentTemp
  case AttrTargetTemp:
    return d.TargetTemp
  case AttrTemperatureUnit:
    return d.TemperatureUnit
  case AttrBattery:
    return d.Battery
  case AttrLiquidLevel:
    return d.LiquidLevel
  case AttrLiquidState:
    return d.LiquidState
  case AttrVolumeLevel:
    return d.VolumeLevel
  case AttrDSK:
    return d.DSK
  case AttrUDSK:
    return d.UDSK
  }

  panic("unknown mug attribute: " + string(attr))
}

func (d *Data) set(attr Attr, v any) {
  switch attr {
  case AttrName:
    d.Name = v.(string)
  case AttrMeta:
    d.Meta = v.(*MugMeta)
  case AttrFirmware:
    d.Firmware = v.(*Firmware)
  case AttrLEDColour:
    d.LEDColour = v.(Colour)
  case AttrCurrentTemp:
    d.CurrentTemp = v.(float64)
  case AttrTargetTemp:
    d.TargetTemp = v.(float64)
  case AttrTemperatureUnit:
    d.TemperatureUnit = v.(TemperatureUnit)
  case AttrBattery:
    d.Battery = v.(*Battery)
  case AttrLiquidLevel:
    d.LiquidLevel = v.(int)
  case AttrLiquidState:
    d.LiquidState = v.(LiquidState)
  case AttrVolumeLevel:
    d.VolumeLevel = v.(*VolumeLevel)
  case AttrDSK:
    d.DSK = v.(string)
  case AttrUDSK:
    d.UDSK = v.(string)
  default:
    panic("unknown mug attribute: " + string(attr))
  }
}

// Store v under attr and report whether it differs from the previous value.
func (d *Data) update(attr Attr, v any) (Change, bool) {
  old := d.get(attr)

  if reflect.DeepEqual(old, v) {
    return Change{}, false
  }

  d.set(attr, v)

  return Change{Attr: attr, Old: old, New: v}, true
}
