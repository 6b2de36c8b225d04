package ember_test

import (
  "errors"
  "reflect"
  "strings"
  "testing"
  "time"

  "github.com/robertof/go-embermug-bridge/device"
  "github.com/robertof/go-embermug-bridge/device/ember"
)

func TestDecodeTemperature(t *testing.T) {
  tests := []struct {
    data []byte
    want float64
  }{
    {[]byte{0x7c, 0x15}, 55},
    {[]byte{0x4a, 0x15}, 54.5},
    {[]byte{0x00, 0x00}, 0},
    {[]byte{0x99, 0x18, 0xff}, 62.97},
  }

  for _, tt := range tests {
    got, err := ember.DecodeTemperature(tt.data)

    if err != nil {
      t.Fatalf("DecodeTemperature(%x) got error: %v", tt.data, err)
    }

    if got != tt.want {
      t.Fatalf("DecodeTemperature(%x): got %v, wanted %v", tt.data, got, tt.want)
    }
  }
}

func TestDecodeTemperature_Short(t *testing.T) {
  _, err := ember.DecodeTemperature([]byte{0x01})

  if !errors.Is(err, device.ErrInvalidData) {
    t.Fatalf("DecodeTemperature(01): got %v, wanted ErrInvalidData", err)
  }
}

func TestEncodeTemperature_RoundTrip(t *testing.T) {
  for _, temp := range []float64{0, 50, 55.5, 56.78, 62.99, 63} {
    data, err := ember.EncodeTemperature(temp)

    if err != nil {
      t.Fatalf("EncodeTemperature(%v) got error: %v", temp, err)
    }

    got, err := ember.DecodeTemperature(data)

    if err != nil {
      t.Fatalf("DecodeTemperature(%x) got error: %v", data, err)
    }

    if diff := got - temp; diff > 0.01 || diff < -0.01 {
      t.Fatalf("round trip of %v: got %v", temp, got)
    }
  }
}

func TestEncodeTemperature_OutOfRange(t *testing.T) {
  for _, temp := range []float64{-1, 1000} {
    if _, err := ember.EncodeTemperature(temp); !errors.Is(err, device.ErrInvalidData) {
      t.Fatalf("EncodeTemperature(%v): got %v, wanted ErrInvalidData", temp, err)
    }
  }
}

func TestTemperatureConversion(t *testing.T) {
  if got := ember.CelsiusToFahrenheit(55); got != 131 {
    t.Fatalf("CelsiusToFahrenheit(55): got %v, wanted 131", got)
  }

  if got := ember.FahrenheitToCelsius(131); got != 55 {
    t.Fatalf("FahrenheitToCelsius(131): got %v, wanted 55", got)
  }

  if got := ember.FahrenheitToCelsius(120); got != 48.89 {
    t.Fatalf("FahrenheitToCelsius(120): got %v, wanted 48.89", got)
  }
}

func TestDecodeBattery(t *testing.T) {
  tests := []struct {
    data []byte
    want ember.Battery
  }{
    {[]byte{0x55, 0x01}, ember.Battery{Percent: 85, OnChargingBase: true}},
    {[]byte{0x0a, 0x00}, ember.Battery{Percent: 10, OnChargingBase: false}},
    {[]byte{0x64, 0x02}, ember.Battery{Percent: 100, OnChargingBase: false}},
  }

  for _, tt := range tests {
    got, err := ember.DecodeBattery(tt.data)

    if err != nil {
      t.Fatalf("DecodeBattery(%x) got error: %v", tt.data, err)
    }

    if !reflect.DeepEqual(got, tt.want) {
      t.Fatalf("DecodeBattery(%x): got %+#v, wanted %+#v", tt.data, got, tt.want)
    }
  }
}

func TestDecodeColour(t *testing.T) {
  got, err := ember.DecodeColour([]byte{0xff, 0x80, 0x00, 0xc0})

  if err != nil {
    t.Fatalf("DecodeColour got error: %v", err)
  }

  want := ember.Colour{R: 0xff, G: 0x80, B: 0x00, A: 0xc0}

  if got != want {
    t.Fatalf("DecodeColour: got %v, wanted %v", got, want)
  }

  if got.Hex() != "#ff8000c0" || got.Brightness() != 0xc0 {
    t.Fatalf("Colour %v: unexpected hex %q or brightness %d", got, got.Hex(), got.Brightness())
  }

  if !reflect.DeepEqual(got.Bytes(), []byte{0xff, 0x80, 0x00, 0xc0}) {
    t.Fatalf("Colour.Bytes(): got %x", got.Bytes())
  }
}

func TestDecodeLiquid(t *testing.T) {
  level, err := ember.DecodeLiquidLevel([]byte{0x1e})

  if err != nil || level != 30 {
    t.Fatalf("DecodeLiquidLevel(1e): got %v, %v", level, err)
  }

  state, err := ember.DecodeLiquidState([]byte{0x06})

  if err != nil || state != ember.LiquidStateTargetTemperature {
    t.Fatalf("DecodeLiquidState(06): got %v, %v", state, err)
  }

  if state.String() != "Perfect" {
    t.Fatalf("LiquidState(6).String(): got %q", state.String())
  }

  if got := ember.LiquidState(42).String(); got != "42" {
    t.Fatalf("LiquidState(42).String(): got %q, wanted 42", got)
  }

  if _, err := ember.DecodeLiquidState(nil); !errors.Is(err, device.ErrInvalidData) {
    t.Fatalf("DecodeLiquidState(nil): got %v, wanted ErrInvalidData", err)
  }
}

func TestDecodeTemperatureUnit(t *testing.T) {
  if got, err := ember.DecodeTemperatureUnit([]byte{0x01}); err != nil || got != ember.Fahrenheit {
    t.Fatalf("DecodeTemperatureUnit(01): got %v, %v", got, err)
  }

  if _, err := ember.DecodeTemperatureUnit([]byte{0x07}); !errors.Is(err, device.ErrInvalidData) {
    t.Fatalf("DecodeTemperatureUnit(07): got %v, wanted ErrInvalidData", err)
  }
}

func TestDecodeFirmware(t *testing.T) {
  got, err := ember.DecodeFirmware([]byte{0x99, 0x01, 0xe8, 0x03, 0x00, 0x01})

  if err != nil {
    t.Fatalf("DecodeFirmware got error: %v", err)
  }

  want := ember.Firmware{Version: 409, Hardware: 1000, Bootloader: 256}

  if got != want {
    t.Fatalf("DecodeFirmware: got %+#v, wanted %+#v", got, want)
  }
}

func TestDecodeMugMeta(t *testing.T) {
  data := []byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x00, 'D', 'C', '2', '3', '4', '5'}
  got, err := ember.DecodeMugMeta(data)

  if err != nil {
    t.Fatalf("DecodeMugMeta(%x) got error: %v", data, err)
  }

  want := ember.MugMeta{MugID: "AQIDBAUG", SerialNumber: "DC2345"}

  if got != want {
    t.Fatalf("DecodeMugMeta(%x): got %+#v, wanted %+#v", data, got, want)
  }
}

func TestValidateName(t *testing.T) {
  valid := []string{"Office mug", "Mug #2 (tea)", "a", strings.Repeat("x", ember.MaxNameLength)}
  invalid := []string{"", strings.Repeat("x", ember.MaxNameLength + 1), "caffè", "tab\there"}

  for _, name := range valid {
    if err := ember.ValidateName(name); err != nil {
      t.Fatalf("ValidateName(%q) got error: %v", name, err)
    }
  }

  for _, name := range invalid {
    if err := ember.ValidateName(name); !errors.Is(err, device.ErrInvalidData) {
      t.Fatalf("ValidateName(%q): got %v, wanted ErrInvalidData", name, err)
    }
  }
}

func TestKeys(t *testing.T) {
  data, err := ember.EncodeKey(ember.DecodeKey([]byte{0xde, 0xad, 0xbe, 0xef}))

  if err != nil || !reflect.DeepEqual(data, []byte{0xde, 0xad, 0xbe, 0xef}) {
    t.Fatalf("key round trip: got %x, %v", data, err)
  }

  if _, err := ember.EncodeKey("not base64!"); !errors.Is(err, device.ErrInvalidData) {
    t.Fatalf("EncodeKey: got %v, wanted ErrInvalidData", err)
  }
}

func TestEncodeTime(t *testing.T) {
  zone := time.FixedZone("CEST", 2 * 3600)
  ts := time.Date(2023, 6, 1, 12, 0, 0, 0, zone)

  got := ember.EncodeTime(ts)
  // 1685613600 = 0x64786c20
  want := []byte{0x20, 0x6c, 0x78, 0x64, 0x02}

  if !reflect.DeepEqual(got, want) {
    t.Fatalf("EncodeTime(%v): got %x, wanted %x", ts, got, want)
  }
}
