package mqtt

import (
  "context"
  "encoding/json"
  "errors"
  "fmt"
  "strconv"
  "strings"
  "time"

  "github.com/robertof/go-embermug-bridge/coordinator"
  "github.com/robertof/go-embermug-bridge/device/ember"
  "github.com/rs/zerolog/log"
)

const commandTimeout = 30 * time.Second

var (
  ErrUnknownMug = errors.New("unknown mug")
  ErrUnknownCommand = errors.New("unknown command")
  ErrInvalidPayload = errors.New("invalid payload")
)

type setLEDColourRequest struct {
  RGBColor []uint8 `json:"rgb_color"`
}

type setTargetTempRequest struct {
  TargetTemp *float64 `json:"target_temp"`
}

type setMugNameRequest struct {
  MugName string `json:"mug_name"`
}

func (b *Bridge) handleCommand(topic string, payload []byte) error {
  id, command, ok := b.topics.ParseCommand(topic)

  if !ok {
    return fmt.Errorf("%w: %s", ErrUnknownCommand, topic)
  }

  c, ok := b.group.Get(id)

  if !ok {
    return fmt.Errorf("%w: %s", ErrUnknownMug, id)
  }

  log.Debug().
    Stringer("Device", c).
    Str("Command", command).
    Bytes("Payload", payload).
    Msg("Received MQTT command")

  ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
  defer cancel()

  return b.dispatch(ctx, c, command, strings.TrimSpace(string(payload)))
}

func (b *Bridge) dispatch(ctx context.Context, c *coordinator.Coordinator, command, payload string) error {
  switch command {
  case CommandTargetTemp:
    temp, err := strconv.ParseFloat(payload, 64)

    if err != nil {
      return fmt.Errorf("%w: target temperature %q", ErrInvalidPayload, payload)
    }

    return setTargetTempCelsius(ctx, c, temp)

  case CommandTemperatureUnit:
    unit, err := ember.ParseTemperatureUnit(payload)

    if err != nil {
      return fmt.Errorf("%w: %w", ErrInvalidPayload, err)
    }

    return c.SetTemperatureUnit(ctx, unit)

  case CommandPreset:
    return c.SelectPreset(ctx, payload)

  case CommandVolumeLevel:
    level, err := ember.ParseVolumeLevel(payload)

    if err != nil {
      return fmt.Errorf("%w: %w", ErrInvalidPayload, err)
    }

    return c.SetVolumeLevel(ctx, level)

  case CommandTemperatureControl:
    switch strings.ToUpper(payload) {
    case stateOn:
      return c.SetTemperatureControl(ctx, true)
    case stateOff:
      return c.SetTemperatureControl(ctx, false)
    }

    return fmt.Errorf("%w: temperature control %q", ErrInvalidPayload, payload)

  case CommandName, ServiceSetMugName:
    name := payload
    var req setMugNameRequest

    if json.Unmarshal([]byte(payload), &req) == nil && req.MugName != "" {
      name = req.MugName
    }

    return c.SetMugName(ctx, name)

  case CommandLED:
    var req LightState

    if err := json.Unmarshal([]byte(payload), &req); err != nil {
      return fmt.Errorf("%w: light command: %v", ErrInvalidPayload, err)
    }

    return c.SetLEDColour(ctx, req.Apply(c.Snapshot().Data.LEDColour))

  case ServiceSetLEDColour:
    var req setLEDColourRequest

    if err := json.Unmarshal([]byte(payload), &req); err != nil || len(req.RGBColor) != 3 {
      return fmt.Errorf("%w: want {\"rgb_color\": [r, g, b]}", ErrInvalidPayload)
    }

    return c.SetLEDColour(ctx, ember.Colour{R: req.RGBColor[0], G: req.RGBColor[1], B: req.RGBColor[2], A: 255})

  case ServiceSetTargetTemp:
    // unlike the number entity, the service takes the temperature in the mug unit and any
    // positive value the mug can encode
    var req setTargetTempRequest

    if err := json.Unmarshal([]byte(payload), &req); err == nil && req.TargetTemp != nil {
      return c.SetTargetTempUnchecked(ctx, *req.TargetTemp)
    }

    temp, err := strconv.ParseFloat(payload, 64)

    if err != nil {
      return fmt.Errorf("%w: target temperature %q", ErrInvalidPayload, payload)
    }

    return c.SetTargetTempUnchecked(ctx, temp)
  }

  return fmt.Errorf("%w: %s", ErrUnknownCommand, command)
}

func setTargetTempCelsius(ctx context.Context, c *coordinator.Coordinator, celsius float64) error {
  if c.Snapshot().Data.UseMetric() {
    return c.SetTargetTemp(ctx, celsius)
  }

  return c.SetTargetTemp(ctx, ember.CelsiusToFahrenheit(celsius))
}
