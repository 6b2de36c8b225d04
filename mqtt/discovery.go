package mqtt

import (
  "encoding/json"
  "strconv"

  "github.com/robertof/go-embermug-bridge/coordinator"
  "github.com/robertof/go-embermug-bridge/device/ember"
)

const (
  manufacturer = "Ember"
  suggestedArea = "Kitchen"

  entityCategoryConfig = "config"
  entityCategoryDiagnostic = "diagnostic"
)

// Commands accepted on <base>/<id>/<command>/set.
const (
  CommandTargetTemp = "target_temp"
  CommandTemperatureUnit = "temperature_unit"
  CommandPreset = "temperature_preset"
  CommandVolumeLevel = "volume_level"
  CommandTemperatureControl = "temperature_control"
  CommandName = "mug_name"
  CommandLED = "led"

  ServiceSetLEDColour = "set_led_colour"
  ServiceSetTargetTemp = "set_target_temp"
  ServiceSetMugName = "set_mug_name"
)

type Message struct {
  Topic string
  Payload []byte
}

type deviceInfo struct {
  Identifiers []string `json:"identifiers"`
  Connections [][2]string `json:"connections"`
  Name string `json:"name"`
  Model string `json:"model"`
  SerialNumber string `json:"serial_number,omitempty"`
  HWVersion string `json:"hw_version,omitempty"`
  SWVersion string `json:"sw_version,omitempty"`
  Manufacturer string `json:"manufacturer"`
  SuggestedArea string `json:"suggested_area"`
}

type availability struct {
  Topic string `json:"topic"`
}

// Fields shared by every discovered entity, the component specific ones are added on top.
type entity map[string]any

func newDeviceInfo(s coordinator.Snapshot) deviceInfo {
  name := s.Device.Name()

  if s.Data.Name != "" && s.Data.Name != "Ember Device" {
    name = s.Data.Name
  }

  info := deviceInfo{
    Identifiers: []string{s.Device.ID()},
    Connections: [][2]string{{"bluetooth", s.Device.Addr().String()}},
    Name: name,
    Model: s.Data.Model.Name,
    Manufacturer: manufacturer,
    SuggestedArea: suggestedArea,
  }

  if s.Data.Meta != nil {
    info.SerialNumber = s.Data.Meta.SerialNumber
  }

  if fw := s.Data.Firmware; fw != nil {
    info.HWVersion = strconv.Itoa(int(fw.Hardware))
    info.SWVersion = strconv.Itoa(int(fw.Version))
  }

  return info
}

type discoveryBuilder struct {
  topics Topics
  id string
  device deviceInfo
  out []Message
}

func (b *discoveryBuilder) add(component, object, name string, e entity) {
  e["name"] = name
  e["unique_id"] = b.id + "_" + object
  e["object_id"] = b.id + "_" + object
  e["device"] = b.device
  e["availability"] = []availability{
    {Topic: b.topics.BridgeStatus()},
    {Topic: b.topics.Availability(b.id)},
  }
  e["availability_mode"] = "all"

  if _, ok := e["state_topic"]; !ok {
    e["state_topic"] = b.topics.State(b.id)
  }

  payload, err := json.Marshal(e)

  if err != nil {
    panic("failed to marshal discovery payload: " + err.Error())
  }

  b.out = append(b.out, Message{Topic: b.topics.Discovery(component, b.id, object), Payload: payload})
}

func (b *discoveryBuilder) command(command string) string {
  return b.topics.Command(b.id, command)
}

// Home Assistant discovery messages for every entity the mug model supports. Temperatures are
// always exposed in Celsius.
func DiscoveryMessages(topics Topics, s coordinator.Snapshot) []Message {
  b := &discoveryBuilder{
    topics: topics,
    id: s.Device.ID(),
    device: newDeviceInfo(s),
  }

  model := s.Data.Model

  b.add("sensor", "current_temp", "Current temperature", entity{
    "device_class": "temperature",
    "state_class": "measurement",
    "unit_of_measurement": "°C",
    "suggested_display_precision": 1,
    "value_template": "{{ value_json.current_temp }}",
  })

  b.add("sensor", "target_temp", "Target temperature", entity{
    "device_class": "temperature",
    "unit_of_measurement": "°C",
    "value_template": "{{ value_json.target_temp }}",
  })

  b.add("sensor", "battery", "Battery", entity{
    "device_class": "battery",
    "state_class": "measurement",
    "unit_of_measurement": "%",
    "value_template": "{{ value_json.battery }}",
  })

  b.add("sensor", "liquid_level", "Liquid level", entity{
    "icon": "mdi:cup-water",
    "state_class": "measurement",
    "unit_of_measurement": "%",
    "value_template": "{{ value_json.liquid_level }}",
  })

  b.add("sensor", "liquid_state", "State", entity{
    "icon": "mdi:coffee",
    "value_template": "{{ value_json.liquid_state }}",
  })

  b.add("sensor", "firmware", "Firmware", entity{
    "entity_category": entityCategoryDiagnostic,
    "icon": "mdi:chip",
    "value_template": "{{ value_json.firmware }}",
  })

  b.add("binary_sensor", "battery_charging", "Charging", entity{
    "device_class": "battery_charging",
    "value_template": "{{ value_json.on_charging_base }}",
  })

  b.add("binary_sensor", "low_battery", "Low battery", entity{
    "device_class": "battery",
    "value_template": "{{ value_json.low_battery }}",
  })

  if model.HasAttribute(ember.AttrLEDColour) {
    b.add("light", "led", "LED", entity{
      "schema": "json",
      "state_topic": topics.LightState(b.id),
      "command_topic": b.command(CommandLED),
      "brightness": true,
      "supported_color_modes": []string{"rgb"},
      "icon": "mdi:palette",
    })
  }

  b.add("number", "target_temp_control", "Target temperature", entity{
    "device_class": "temperature",
    "entity_category": entityCategoryConfig,
    "unit_of_measurement": "°C",
    "min": coordinator.MinTempCelsius,
    "max": coordinator.MaxTempCelsius,
    "step": 0.1,
    "mode": "box",
    "command_topic": b.command(CommandTargetTemp),
    "value_template": "{{ value_json.target_temp }}",
  })

  b.add("select", "temperature_unit", "Temperature unit", entity{
    "entity_category": entityCategoryConfig,
    "options": []string{ember.Celsius.String(), ember.Fahrenheit.String()},
    "command_topic": b.command(CommandTemperatureUnit),
    "value_template": "{{ value_json.temperature_unit }}",
  })

  if labels := s.Device.Presets().Labels(); len(labels) > 0 {
    b.add("select", "temperature_preset", "Temperature preset", entity{
      "entity_category": entityCategoryConfig,
      "icon": "mdi:format-list-bulleted",
      "options": labels,
      "command_topic": b.command(CommandPreset),
      "value_template": "{{ value_json.preset }}",
    })
  }

  if model.HasAttribute(ember.AttrVolumeLevel) {
    levels := make([]string, 0, len(ember.VolumeLevels))

    for _, v := range ember.VolumeLevels {
      levels = append(levels, v.String())
    }

    b.add("select", "volume_level", "Volume level", entity{
      "entity_category": entityCategoryConfig,
      "options": levels,
      "command_topic": b.command(CommandVolumeLevel),
      "value_template": "{{ value_json.volume_level }}",
    })
  }

  b.add("switch", "temperature_control", "Temperature control", entity{
    "entity_category": entityCategoryConfig,
    "icon": "mdi:sun-snowflake",
    "command_topic": b.command(CommandTemperatureControl),
    "value_template": "{{ value_json.temperature_control }}",
  })

  if model.HasAttribute(ember.AttrName) {
    b.add("text", "mug_name", "Name", entity{
      "entity_category": entityCategoryConfig,
      "min": 1,
      "max": ember.MaxNameLength,
      "pattern": ember.NamePattern,
      "command_topic": b.command(CommandName),
      "value_template": "{{ value_json.name }}",
    })
  }

  return b.out
}
