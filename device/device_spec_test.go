package device_test

import (
  "reflect"
  "testing"

  "github.com/robertof/go-embermug-bridge/device"
)

func TestNewDeviceSpec(t *testing.T) {
  got := device.NewDeviceSpec(" addr = C9:0F:59:D6:33:F9 ,Name=Office mug,broken,, debug=yes")

  want := device.DeviceSpec{
    "addr":  "C9:0F:59:D6:33:F9",
    "name":  "Office mug",
    "debug": "yes",
  }

  if !reflect.DeepEqual(got, want) {
    t.Fatalf("NewDeviceSpec: got %#v, wanted %#v", got, want)
  }

  if got.Addr() != "C9:0F:59:D6:33:F9" || got.Name() != "Office mug" {
    t.Fatalf("unexpected accessors: addr=%q name=%q", got.Addr(), got.Name())
  }
}

func TestDeviceSpecBool(t *testing.T) {
  spec := device.DeviceSpec{"a": "yes", "b": "false", "c": "maybe"}

  cases := []struct {
    key  string
    def  bool
    want bool
    err  bool
  }{
    {"a", false, true, false},
    {"b", true, false, false},
    {"missing", true, true, false},
    {"c", false, false, true},
  }

  for _, c := range cases {
    got, err := spec.Bool(c.key, c.def)

    if (err != nil) != c.err {
      t.Fatalf("Bool(%q): unexpected error state: %v", c.key, err)
    }

    if got != c.want {
      t.Fatalf("Bool(%q): got %v, wanted %v", c.key, got, c.want)
    }
  }
}
