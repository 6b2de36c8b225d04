package coordinator

import (
  "context"
  "errors"
  "fmt"

  "github.com/robertof/go-embermug-bridge/device/ember"
  "github.com/rs/zerolog/log"
)

// Accepted target temperatures. Fahrenheit targets are converted before being checked.
const (
  MinTempCelsius = 50.0
  MaxTempCelsius = 63.0
)

var (
  ErrInvalidTemperature = errors.New("invalid target temperature")
  ErrUnknownPreset = errors.New("unknown preset")
)

func TempRange(unit ember.TemperatureUnit) (min, max float64) {
  if unit != ember.Celsius {
    return ember.CelsiusToFahrenheit(MinTempCelsius), ember.CelsiusToFahrenheit(MaxTempCelsius)
  }

  return MinTempCelsius, MaxTempCelsius
}

func (c *Coordinator) ensureWritable() error {
  if !c.mug.CanWrite() {
    return fmt.Errorf("%w: unable to write to %v", ErrNotWritable, c.mug.Model().Type)
  }

  return nil
}

// Run a write on the mug, then publish the new state. Fails right away while the mug is
// disconnected instead of waiting for the coordinator to reconnect.
func (c *Coordinator) command(ctx context.Context, name string, f func() error) error {
  if err := c.ensureWritable(); err != nil {
    return err
  }

  if !c.mug.Connected() {
    return fmt.Errorf("%w: %v is unavailable", ember.ErrNotConnected, c.mug)
  }

  if err := c.lockOp(ctx); err != nil {
    return err
  }

  err := f()
  c.unlockOp()

  if err != nil {
    log.Warn().Stringer("Device", c.mug).Str("Command", name).Err(err).Msg("Mug command failed")

    if errors.Is(err, ember.ErrNotWritable) {
      return fmt.Errorf("%w: %w", ErrNotWritable, err)
    }

    return err
  }

  log.Info().Stringer("Device", c.mug).Str("Command", name).Msg("Mug command applied")

  c.touch()
  c.updateListeners()

  return nil
}

// Set the LED colour. The alpha channel is the LED brightness.
func (c *Coordinator) SetLEDColour(ctx context.Context, colour ember.Colour) error {
  return c.command(ctx, "set_led_colour", func() error {
    return c.mug.SetLEDColour(colour)
  })
}

// Set the target temperature, in the unit the mug currently uses. The range is checked in
// Celsius, so its Fahrenheit bounds are the converted [MinTempCelsius, MaxTempCelsius].
func (c *Coordinator) SetTargetTemp(ctx context.Context, temp float64) error {
  data := c.mug.Data()
  celsius := temp

  if !data.UseMetric() {
    celsius = ember.FahrenheitToCelsius(temp)
  }

  if temp <= 0 || celsius < MinTempCelsius || celsius > MaxTempCelsius {
    min, max := TempRange(data.TemperatureUnit)

    return fmt.Errorf(
      "%w: %.2f%v is outside [%.2f, %.2f]", ErrInvalidTemperature, temp, data.TemperatureUnit, min, max,
    )
  }

  return c.setTargetTemp(ctx, "set_target_temp", temp)
}

// Set any positive target temperature the mug can encode, in the unit the mug currently uses.
// Unlike SetTargetTemp there is no range check.
func (c *Coordinator) SetTargetTempUnchecked(ctx context.Context, temp float64) error {
  if temp <= 0 {
    return fmt.Errorf("%w: %.2f%v is not positive", ErrInvalidTemperature, temp, c.mug.Data().TemperatureUnit)
  }

  return c.setTargetTemp(ctx, "set_target_temp", temp)
}

func (c *Coordinator) setTargetTemp(ctx context.Context, name string, temp float64) error {
  err := c.command(ctx, name, func() error {
    return c.mug.SetTargetTemp(temp)
  })

  if err != nil {
    return err
  }

  c.saveBackup(ctx, c.mug.Data().TargetTempCelsius())

  return nil
}

func (c *Coordinator) SetMugName(ctx context.Context, name string) error {
  if err := ember.ValidateName(name); err != nil {
    return err
  }

  return c.command(ctx, "set_mug_name", func() error {
    return c.mug.SetName(name)
  })
}

func (c *Coordinator) SetTemperatureUnit(ctx context.Context, unit ember.TemperatureUnit) error {
  return c.command(ctx, "set_temperature_unit", func() error {
    return c.mug.SetTemperatureUnit(unit)
  })
}

func (c *Coordinator) SetVolumeLevel(ctx context.Context, level ember.VolumeLevel) error {
  return c.command(ctx, "set_volume_level", func() error {
    return c.mug.SetVolumeLevel(level)
  })
}

// Turning temperature control off writes 0 and then backs up the previous target. Turning it
// on restores the backup. Both are no-ops when already in the requested state.
func (c *Coordinator) SetTemperatureControl(ctx context.Context, on bool) error {
  data := c.mug.Data()

  if !on {
    if data.TargetTemp == 0 {
      return nil
    }

    previous := data.TargetTempCelsius()

    err := c.command(ctx, "temperature_control_off", func() error {
      return c.mug.SetTargetTemp(0)
    })

    if err != nil {
      return err
    }

    c.saveBackup(ctx, previous)

    return nil
  }

  if data.TargetTemp != 0 {
    return nil
  }

  target := c.TargetTemp()

  if target == 0 {
    log.Warn().Stringer("Device", c.mug).Msg("No target temperature to restore, not turning temperature control on")
    return nil
  }

  return c.setTargetTemp(ctx, "temperature_control_on", target)
}

// Set the target temperature to the one of the preset labelled label.
func (c *Coordinator) SelectPreset(ctx context.Context, label string) error {
  temp, ok := c.mug.Device().Presets().Get(label, c.mug.Data().TemperatureUnit)

  if !ok {
    return fmt.Errorf("%w: %q", ErrUnknownPreset, label)
  }

  return c.setTargetTemp(ctx, "select_preset", temp)
}

type Diagnostics struct {
  Info ember.Data `json:"info"`
  State string `json:"state"`
  Address string `json:"address"`
  Available bool `json:"available"`
  Services map[string]ember.ServiceInfo `json:"services,omitempty"`
}

// Current state, plus the discovered GATT profile for devices configured with debug.
func (c *Coordinator) Diagnostics() Diagnostics {
  data := c.mug.Data()

  d := Diagnostics{
    Info: data,
    State: data.LiquidState.String(),
    Address: c.mug.Device().Addr().String(),
    Available: c.Available(),
  }

  if !c.mug.Device().Debug() {
    return d
  }

  if err := c.lockOp(context.Background()); err != nil {
    return d
  }

  services, err := c.mug.DiscoverServices()
  c.unlockOp()

  if err != nil {
    log.Error().Stringer("Device", c.mug).Err(err).Msg("Failed to discover services for diagnostics")
    return d
  }

  d.Services = services

  return d
}
