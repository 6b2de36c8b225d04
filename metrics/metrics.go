package metrics

import (
  "strconv"

  "github.com/prometheus/client_golang/prometheus"
  "github.com/robertof/go-embermug-bridge/coordinator"
  "github.com/robertof/go-embermug-bridge/device/ember"
)

func newDesc(name, help string, extraLabels ...string) *prometheus.Desc {
  labels := append([]string{"name", "address"}, extraLabels...)

  return prometheus.NewDesc("embermug_" + name, help, labels, nil)
}

var (
  descAvailable = newDesc("available", "Whether the mug is connected and responding.")

  descCurrentTemperature = newDesc(
    "current_temperature_celsius",
    "Temperature of the drink in Celsius.",
  )

  descTargetTemperature = newDesc(
    "target_temperature_celsius",
    "Target temperature in Celsius, the backed up one while temperature control is off.",
  )

  descTemperatureControl = newDesc(
    "temperature_control_enabled",
    "Whether the mug is actively heating towards the target temperature.",
  )

  descBattery = newDesc("battery_ratio", "Battery percentage reported by the mug.")

  descOnChargingBase = newDesc("on_charging_base", "Whether the mug sits on its charging base.")

  descLowBattery = newDesc("low_battery", "Whether the battery is low given the current usage.")

  descLiquidLevel = newDesc("liquid_level_ratio", "Liquid level reported by the mug.")

  descLiquidState = newDesc(
    "liquid_state_info",
    "Liquid state code reported by the mug. 0 = unknown, 1 = empty, 2 = filling, " +
    "3 = cold (no control), 4 = cooling, 5 = heating, 6 = perfect, 7 = warm (no control).",
    "state",
  )

  descLEDColour = newDesc("led_colour_info", "LED colour of the mug, value is the brightness ratio.", "colour")

  descWritable = newDesc("writable", "Whether the mug accepts writes.")

  descFirmware = newDesc(
    "firmware_info",
    "Firmware information of the mug.",
    "version", "hardware", "bootloader", "model",
  )

  descLastUpdate = newDesc(
    "last_update_timestamp_seconds",
    "Time of the last successful update from the mug.",
  )
)

type CollectFunc func() []coordinator.Snapshot

type collector struct {
  CollectFunc
}

func (c *collector) Describe(ch chan<- *prometheus.Desc) {
  prometheus.DescribeByCollect(c, ch)
}

func boolToFloat(b bool) float64 {
  if b {
    return 1
  }

  return 0
}

func (c *collector) Collect(ch chan<- prometheus.Metric) {
  for _, s := range c.CollectFunc() {
    name, addr := s.Device.Name(), s.Device.Addr().String()
    data := s.Data

    gauge := func(desc *prometheus.Desc, v float64, extra ...string) prometheus.Metric {
      return prometheus.MustNewConstMetric(
        desc,
        prometheus.GaugeValue,
        v,
        append([]string{name, addr}, extra...)...,
      )
    }

    ch <- gauge(descAvailable, boolToFloat(s.Available))

    if s.UpdatedAt.IsZero() {
      // nothing read yet
      continue
    }

    // stamp readings with the time they were taken so that stale values are not reported as new.
    stamped := func(m prometheus.Metric) {
      ch <- prometheus.NewMetricWithTimestamp(s.UpdatedAt, m)
    }

    stamped(gauge(descCurrentTemperature, data.CurrentTempCelsius()))

    target := s.TargetTemp

    if !data.UseMetric() && target != 0 {
      target = ember.FahrenheitToCelsius(target)
    }

    stamped(gauge(descTargetTemperature, target))
    stamped(gauge(descTemperatureControl, boolToFloat(data.TemperatureControlOn())))
    stamped(gauge(descLiquidLevel, data.LiquidLevelPercent() / 100))
    stamped(gauge(descLiquidState, float64(data.LiquidState), data.LiquidState.String()))
    stamped(gauge(descWritable, boolToFloat(s.Writable)))
    stamped(gauge(descLastUpdate, float64(s.UpdatedAt.Unix())))

    if data.Battery != nil {
      stamped(gauge(descBattery, data.Battery.Percent / 100))
      stamped(gauge(descOnChargingBase, boolToFloat(data.Battery.OnChargingBase)))
      stamped(gauge(descLowBattery, boolToFloat(data.LowBattery())))
    }

    if data.Model.HasAttribute(ember.AttrLEDColour) {
      stamped(gauge(descLEDColour, float64(data.LEDColour.Brightness()) / 255, data.LEDColour.Hex()))
    }

    if fw := data.Firmware; fw != nil {
      stamped(gauge(
        descFirmware,
        1,
        strconv.Itoa(int(fw.Version)),
        strconv.Itoa(int(fw.Hardware)),
        strconv.Itoa(int(fw.Bootloader)),
        data.Model.Name,
      ))
    }
  }
}

func RegisterCollector(f CollectFunc, reg prometheus.Registerer) {
  c := &collector{f}

  reg.MustRegister(c)
}
