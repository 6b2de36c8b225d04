package ember

import (
  "encoding/base64"
  "encoding/binary"
  "math"
  "regexp"
  "time"
  "unicode/utf8"

  "github.com/pkg/errors"
  "github.com/robertof/go-embermug-bridge/device"
)

const (
  // Temperatures travel as hundredths of a degree Celsius.
  temperatureScale = 100

  // Liquid level reported by a full mug.
  MaxLiquidLevel = 30

  MaxNameLength = 16
)

// Names the mug accepts.
const NamePattern = `^[A-Za-z0-9,.\[\]#()!"';:|\-_+<>%= ]{1,16}$`

var nameRegexp = regexp.MustCompile(NamePattern)

func round2(v float64) float64 {
  return math.Round(v * 100) / 100
}

func CelsiusToFahrenheit(c float64) float64 {
  return round2(c * 9 / 5 + 32)
}

func FahrenheitToCelsius(f float64) float64 {
  return round2((f - 32) * 5 / 9)
}

func needBytes(data []byte, n int, what string) error {
  if len(data) < n {
    return errors.Wrapf(device.ErrInvalidData, "%s: want at least %d bytes, got %d (%x)",
      what, n, len(data), data)
  }

  return nil
}

// Decode a temperature in Celsius.
func DecodeTemperature(data []byte) (float64, error) {
  if err := needBytes(data, 2, "temperature"); err != nil {
    return 0, err
  }

  raw := binary.LittleEndian.Uint16(data)

  return round2(float64(raw) / temperatureScale), nil
}

// Encode a temperature in Celsius. 0 disables temperature control.
func EncodeTemperature(celsius float64) ([]byte, error) {
  raw := math.Round(celsius * temperatureScale)

  if math.IsNaN(raw) || raw < 0 || raw > math.MaxUint16 {
    return nil, errors.Wrapf(device.ErrInvalidData, "temperature %v out of range", celsius)
  }

  return binary.LittleEndian.AppendUint16(nil, uint16(raw)), nil
}

func DecodeBattery(data []byte) (b Battery, err error) {
  if err := needBytes(data, 2, "battery"); err != nil {
    return b, err
  }

  b.Percent = float64(data[0])
  b.OnChargingBase = data[1] == 1

  return b, nil
}

func DecodeColour(data []byte) (c Colour, err error) {
  if err := needBytes(data, 4, "led colour"); err != nil {
    return c, err
  }

  return Colour{R: data[0], G: data[1], B: data[2], A: data[3]}, nil
}

func DecodeLiquidLevel(data []byte) (int, error) {
  if err := needBytes(data, 1, "liquid level"); err != nil {
    return 0, err
  }

  return int(data[0]), nil
}

func DecodeLiquidState(data []byte) (LiquidState, error) {
  if err := needBytes(data, 1, "liquid state"); err != nil {
    return LiquidStateUnknown, err
  }

  return LiquidState(data[0]), nil
}

func DecodeTemperatureUnit(data []byte) (TemperatureUnit, error) {
  if err := needBytes(data, 1, "temperature unit"); err != nil {
    return Celsius, err
  }

  switch data[0] {
  case 0:
    return Celsius, nil
  case 1:
    return Fahrenheit, nil
  }

  return Celsius, errors.Wrapf(device.ErrInvalidData, "unknown temperature unit %d", data[0])
}

func DecodeVolumeLevel(data []byte) (VolumeLevel, error) {
  if err := needBytes(data, 1, "volume level"); err != nil {
    return VolumeLow, err
  }

  if data[0] > uint8(VolumeHigh) {
    return VolumeLow, errors.Wrapf(device.ErrInvalidData, "unknown volume level %d", data[0])
  }

  return VolumeLevel(data[0]), nil
}

func DecodeFirmware(data []byte) (f Firmware, err error) {
  if err := needBytes(data, 6, "firmware"); err != nil {
    return f, err
  }

  bo := binary.LittleEndian

  f.Version = bo.Uint16(data)
  f.Hardware = bo.Uint16(data[2:])
  f.Bootloader = bo.Uint16(data[4:])

  return f, nil
}

// The mug ID characteristic carries a 6 byte identifier, one separator byte, then the ASCII
// serial number.
func DecodeMugMeta(data []byte) (m MugMeta, err error) {
  if err := needBytes(data, 7, "mug id"); err != nil {
    return m, err
  }

  m.MugID = base64.StdEncoding.EncodeToString(data[:6])
  m.SerialNumber = string(data[7:])

  return m, nil
}

func DecodeName(data []byte) (string, error) {
  if !utf8.Valid(data) {
    return "", errors.Wrapf(device.ErrInvalidData, "name is not valid UTF-8: %x", data)
  }

  return string(data), nil
}

func ValidateName(name string) error {
  if !nameRegexp.MatchString(name) {
    return errors.Wrapf(device.ErrInvalidData,
      "invalid name %q: 1-%d letters, digits, spaces or ,.[]#()!\"';:|-_+<>%%=", name, MaxNameLength)
  }

  return nil
}

func EncodeName(name string) ([]byte, error) {
  if err := ValidateName(name); err != nil {
    return nil, err
  }

  return []byte(name), nil
}

// DSK and UDSK are opaque tokens, kept base64 encoded.
func DecodeKey(data []byte) string {
  return base64.StdEncoding.EncodeToString(data)
}

func EncodeKey(key string) ([]byte, error) {
  data, err := base64.StdEncoding.DecodeString(key)

  if err != nil {
    return nil, errors.Wrapf(device.ErrInvalidData, "key is not valid base64: %v", err)
  }

  return data, nil
}

// Unix timestamp (uint32 LE) followed by the zone offset in whole hours.
func EncodeTime(t time.Time) []byte {
  _, offset := t.Zone()

  out := binary.LittleEndian.AppendUint32(nil, uint32(t.Unix()))

  return append(out, byte(int8(offset / 3600)))
}
