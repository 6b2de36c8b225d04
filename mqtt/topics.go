package mqtt

import (
  "strings"
)

const (
  DefaultBaseTopic = "embermug"
  DefaultDiscoveryPrefix = "homeassistant"

  topicSeparator = "/"
  commandSuffix = "set"
)

// Topics builds the topics used by the bridge:
//
//   <base>/bridge/status                     online/offline, retained, last will
//   <base>/<id>/state                        JSON state, retained
//   <base>/<id>/availability                 online/offline, retained
//   <base>/<id>/led/state                    JSON light state, retained
//   <base>/<id>/<command>/set                commands
//   <prefix>/<component>/<id>/<object>/config  discovery, retained
type Topics struct {
  Base string
  DiscoveryPrefix string
}

func join(parts ...string) string {
  return strings.Join(parts, topicSeparator)
}

func (t Topics) BridgeStatus() string {
  return join(t.Base, "bridge", "status")
}

func (t Topics) State(id string) string {
  return join(t.Base, id, "state")
}

func (t Topics) Availability(id string) string {
  return join(t.Base, id, "availability")
}

func (t Topics) LightState(id string) string {
  return join(t.Base, id, "led", "state")
}

func (t Topics) Command(id, command string) string {
  return join(t.Base, id, command, commandSuffix)
}

// Matches every command of every mug.
func (t Topics) AllCommands() string {
  return join(t.Base, "+", "+", commandSuffix)
}

// Split a command topic into mug ID and command.
func (t Topics) ParseCommand(topic string) (id, command string, ok bool) {
  rest, found := strings.CutPrefix(topic, t.Base + topicSeparator)

  if !found {
    return "", "", false
  }

  parts := strings.Split(rest, topicSeparator)

  if len(parts) != 3 || parts[2] != commandSuffix || parts[0] == "" || parts[1] == "" {
    return "", "", false
  }

  return parts[0], parts[1], true
}

func (t Topics) Discovery(component, id, object string) string {
  return join(t.DiscoveryPrefix, component, id, object, "config")
}

// Home Assistant announces itself here after (re)starting.
func (t Topics) HomeAssistantStatus() string {
  return join(t.DiscoveryPrefix, "status")
}
