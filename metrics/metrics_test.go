package metrics_test

import (
  "net"
  "testing"
  "time"

  "github.com/prometheus/client_golang/prometheus"
  dto "github.com/prometheus/client_model/go"
  "github.com/robertof/go-embermug-bridge/coordinator"
  "github.com/robertof/go-embermug-bridge/device/ember"
  "github.com/robertof/go-embermug-bridge/metrics"
  "github.com/stretchr/testify/assert"
  "github.com/stretchr/testify/require"
)

func gather(t *testing.T, snapshots ...coordinator.Snapshot) map[string]*dto.MetricFamily {
  t.Helper()

  registry := prometheus.NewRegistry()
  metrics.RegisterCollector(func() []coordinator.Snapshot {
    return snapshots
  }, registry)

  families, err := registry.Gather()
  require.NoError(t, err)

  out := make(map[string]*dto.MetricFamily, len(families))

  for _, f := range families {
    out[f.GetName()] = f
  }

  return out
}

func value(t *testing.T, families map[string]*dto.MetricFamily, name string) float64 {
  t.Helper()

  f, ok := families[name]
  require.True(t, ok, "metric %s not exported", name)
  require.Len(t, f.GetMetric(), 1)

  return f.GetMetric()[0].GetGauge().GetValue()
}

func TestCollector(t *testing.T) {
  addr, _ := net.ParseMAC("c8:2b:96:0a:11:22")
  updated := time.Date(2023, 6, 1, 12, 0, 0, 0, time.UTC)

  snapshot := coordinator.Snapshot{
    Device: ember.NewDevice("kitchen", addr),
    Data: ember.Data{
      Model: ember.ModelFromName("Ember Ceramic Mug"),
      Firmware: &ember.Firmware{Version: 409, Hardware: 1000, Bootloader: 256},
      LEDColour: ember.Colour{R: 0xff, A: 0xff},
      CurrentTemp: 130.1,
      TargetTemp: 0,
      TemperatureUnit: ember.Fahrenheit,
      Battery: &ember.Battery{Percent: 20, OnChargingBase: false},
      LiquidLevel: 15,
      LiquidState: ember.LiquidStateHeating,
    },
    Available: true,
    Writable: true,
    TargetTemp: 131,
    UpdatedAt: updated,
  }

  families := gather(t, snapshot)

  assert.Equal(t, 1.0, value(t, families, "embermug_available"))
  assert.Equal(t, 54.5, value(t, families, "embermug_current_temperature_celsius"))
  assert.Equal(t, 55.0, value(t, families, "embermug_target_temperature_celsius"))
  assert.Equal(t, 0.0, value(t, families, "embermug_temperature_control_enabled"))
  assert.Equal(t, 0.2, value(t, families, "embermug_battery_ratio"))
  assert.Equal(t, 0.0, value(t, families, "embermug_on_charging_base"))
  assert.Equal(t, 1.0, value(t, families, "embermug_low_battery"))
  assert.Equal(t, 0.5, value(t, families, "embermug_liquid_level_ratio"))
  assert.Equal(t, 5.0, value(t, families, "embermug_liquid_state_info"))
  assert.Equal(t, 1.0, value(t, families, "embermug_led_colour_info"))
  assert.Equal(t, 1.0, value(t, families, "embermug_firmware_info"))

  m := families["embermug_current_temperature_celsius"].GetMetric()[0]
  assert.Equal(t, updated.UnixMilli(), m.GetTimestampMs())

  labels := map[string]string{}

  for _, l := range families["embermug_firmware_info"].GetMetric()[0].GetLabel() {
    labels[l.GetName()] = l.GetValue()
  }

  assert.Equal(t, map[string]string{
    "name": "kitchen",
    "address": "c8:2b:96:0a:11:22",
    "version": "409",
    "hardware": "1000",
    "bootloader": "256",
    "model": "Ember Mug 2",
  }, labels)
}

func TestCollector_NotYetUpdated(t *testing.T) {
  addr, _ := net.ParseMAC("c8:2b:96:0a:11:22")

  families := gather(t, coordinator.Snapshot{Device: ember.NewDevice("", addr)})

  assert.Equal(t, 0.0, value(t, families, "embermug_available"))
  assert.NotContains(t, families, "embermug_current_temperature_celsius")
}
