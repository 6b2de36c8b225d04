package mqtt

import (
  "strconv"
  "time"

  "github.com/robertof/go-embermug-bridge/coordinator"
  "github.com/robertof/go-embermug-bridge/device/ember"
)

const (
  stateOn = "ON"
  stateOff = "OFF"
)

func onOff(b bool) string {
  if b {
    return stateOn
  }

  return stateOff
}

type State struct {
  Name string `json:"name"`
  Model string `json:"model"`
  // temperatures are in Celsius
  CurrentTemp float64 `json:"current_temp"`
  TargetTemp float64 `json:"target_temp"`
  TemperatureUnit string `json:"temperature_unit"`
  TemperatureControl string `json:"temperature_control"`
  Preset string `json:"preset"`
  Battery *float64 `json:"battery"`
  OnChargingBase string `json:"on_charging_base"`
  LowBattery string `json:"low_battery"`
  LiquidLevel float64 `json:"liquid_level"`
  LiquidState string `json:"liquid_state"`
  VolumeLevel string `json:"volume_level,omitempty"`
  LEDColour string `json:"led_colour,omitempty"`
  Firmware string `json:"firmware,omitempty"`
  SerialNumber string `json:"serial_number,omitempty"`
  Writable bool `json:"writable"`
  UpdatedAt string `json:"updated_at,omitempty"`
}

func NewState(s coordinator.Snapshot) State {
  data := s.Data

  state := State{
    Name: data.Name,
    Model: data.Model.Name,
    CurrentTemp: data.CurrentTempCelsius(),
    TargetTemp: s.TargetTemp,
    TemperatureUnit: data.TemperatureUnit.String(),
    TemperatureControl: onOff(data.TemperatureControlOn()),
    Preset: s.Preset,
    OnChargingBase: stateOff,
    LowBattery: onOff(data.LowBattery()),
    LiquidLevel: data.LiquidLevelPercent(),
    LiquidState: data.LiquidState.String(),
    Writable: s.Writable,
  }

  if !data.UseMetric() && state.TargetTemp != 0 {
    state.TargetTemp = ember.FahrenheitToCelsius(state.TargetTemp)
  }

  if data.Battery != nil {
    percent := data.Battery.Percent
    state.Battery = &percent
    state.OnChargingBase = onOff(data.Battery.OnChargingBase)
  }

  if data.VolumeLevel != nil {
    state.VolumeLevel = data.VolumeLevel.String()
  }

  if data.Model.HasAttribute(ember.AttrLEDColour) {
    state.LEDColour = data.LEDColour.Hex()
  }

  if data.Firmware != nil {
    state.Firmware = strconv.Itoa(int(data.Firmware.Version))
  }

  if data.Meta != nil {
    state.SerialNumber = data.Meta.SerialNumber
  }

  if !s.UpdatedAt.IsZero() {
    state.UpdatedAt = s.UpdatedAt.UTC().Format(time.RFC3339)
  }

  return state
}

type LightColour struct {
  R uint8 `json:"r"`
  G uint8 `json:"g"`
  B uint8 `json:"b"`
}

// Home Assistant JSON schema light state and command.
type LightState struct {
  State string `json:"state"`
  ColorMode string `json:"color_mode,omitempty"`
  Brightness *uint8 `json:"brightness,omitempty"`
  Color *LightColour `json:"color,omitempty"`
}

// The LED can't be switched off: brightness 0 is reported as off.
func NewLightState(c ember.Colour) LightState {
  brightness := c.Brightness()

  return LightState{
    State: onOff(brightness > 0),
    ColorMode: "rgb",
    Brightness: &brightness,
    Color: &LightColour{R: c.R, G: c.G, B: c.B},
  }
}

// Apply a light command on top of the current colour.
func (l LightState) Apply(current ember.Colour) ember.Colour {
  next := current

  if l.Color != nil {
    next.R, next.G, next.B = l.Color.R, l.Color.G, l.Color.B
  }

  if l.Brightness != nil {
    next.A = *l.Brightness
  }

  switch l.State {
  case stateOff:
    next.A = 0
  case stateOn:
    if next.A == 0 {
      next.A = 255
    }
  }

  return next
}
