package mqtt_test

import (
  "testing"

  "github.com/robertof/go-embermug-bridge/mqtt"
)

func TestTopics(t *testing.T) {
  topics := mqtt.Topics{Base: "embermug", DiscoveryPrefix: "homeassistant"}

  cases := map[string]string{
    topics.BridgeStatus(): "embermug/bridge/status",
    topics.State("ember_a"): "embermug/ember_a/state",
    topics.Availability("ember_a"): "embermug/ember_a/availability",
    topics.LightState("ember_a"): "embermug/ember_a/led/state",
    topics.Command("ember_a", "target_temp"): "embermug/ember_a/target_temp/set",
    topics.AllCommands(): "embermug/+/+/set",
    topics.Discovery("sensor", "ember_a", "battery"): "homeassistant/sensor/ember_a/battery/config",
    topics.HomeAssistantStatus(): "homeassistant/status",
  }

  for got, want := range cases {
    if got != want {
      t.Errorf("got topic %q, want %q", got, want)
    }
  }
}

func TestTopics_ParseCommand(t *testing.T) {
  topics := mqtt.Topics{Base: "home/embermug"}

  cases := []struct {
    topic string
    id string
    command string
    ok bool
  }{
    {"home/embermug/ember_a/target_temp/set", "ember_a", "target_temp", true},
    {"home/embermug/ember_a/led/set", "ember_a", "led", true},
    {"home/embermug/ember_a/led/state", "", "", false},
    {"home/embermug/ember_a/set", "", "", false},
    {"home/embermug//led/set", "", "", false},
    {"embermug/ember_a/led/set", "", "", false},
    {"home/embermug/ember_a/led/set/extra", "", "", false},
  }

  for _, c := range cases {
    id, command, ok := topics.ParseCommand(c.topic)

    if id != c.id || command != c.command || ok != c.ok {
      t.Errorf(
        "ParseCommand(%q) = (%q, %q, %v), want (%q, %q, %v)",
        c.topic, id, command, ok, c.id, c.command, c.ok)
    }
  }
}
