package mqtt_test

import (
  "context"
  "encoding/json"
  "strings"
  "sync"
  "testing"
  "time"

  "github.com/robertof/go-embermug-bridge/coordinator"
  "github.com/robertof/go-embermug-bridge/device"
  "github.com/robertof/go-embermug-bridge/device/ember"
  "github.com/robertof/go-embermug-bridge/device/ember/embertest"
  "github.com/robertof/go-embermug-bridge/mqtt"
  "github.com/stretchr/testify/assert"
  "github.com/stretchr/testify/require"
)

const mugID = "ember_c82b960a1122"

type fakePublisher struct {
  mu sync.Mutex
  retained map[string][]byte
  published []mqtt.Message
  handlers map[string]mqtt.MessageHandler
}

func newFakePublisher() *fakePublisher {
  return &fakePublisher{
    retained: make(map[string][]byte),
    handlers: make(map[string]mqtt.MessageHandler),
  }
}

func (p *fakePublisher) Publish(topic string, payload []byte, retained bool) error {
  p.mu.Lock()
  defer p.mu.Unlock()

  p.published = append(p.published, mqtt.Message{Topic: topic, Payload: payload})

  if retained {
    p.retained[topic] = payload
  }

  return nil
}

func (p *fakePublisher) Subscribe(topic string, handler mqtt.MessageHandler) error {
  p.mu.Lock()
  defer p.mu.Unlock()

  p.handlers[topic] = handler

  return nil
}

func (p *fakePublisher) get(topic string) (string, bool) {
  p.mu.Lock()
  defer p.mu.Unlock()

  payload, ok := p.retained[topic]
  return string(payload), ok
}

func (p *fakePublisher) countPrefix(prefix string) (n int) {
  p.mu.Lock()
  defer p.mu.Unlock()

  for _, msg := range p.published {
    if strings.HasPrefix(msg.Topic, prefix) {
      n += 1
    }
  }

  return n
}

func (p *fakePublisher) reset() {
  p.mu.Lock()
  defer p.mu.Unlock()

  p.published = nil
}

func topicMatches(filter, topic string) bool {
  filterParts := strings.Split(filter, "/")
  topicParts := strings.Split(topic, "/")

  if len(filterParts) != len(topicParts) {
    return false
  }

  for i, part := range filterParts {
    if part != "+" && part != topicParts[i] {
      return false
    }
  }

  return true
}

// Deliver a message to the handler subscribed to a matching filter.
func (p *fakePublisher) deliver(t *testing.T, topic, payload string) error {
  t.Helper()

  p.mu.Lock()
  var handler mqtt.MessageHandler

  for filter, h := range p.handlers {
    if topicMatches(filter, topic) {
      handler = h
    }
  }
  p.mu.Unlock()

  require.NotNil(t, handler, "nothing subscribed to %s", topic)

  return handler(topic, []byte(payload))
}

type bridgeFixture struct {
  bridge *mqtt.Bridge
  pub *fakePublisher
  p *embertest.Peripheral
  c *coordinator.Coordinator
}

func newBridgeFixture(t *testing.T) *bridgeFixture {
  t.Helper()

  dev, err := (&ember.Factory{}).FromSpec(device.NewDeviceSpec("addr=c8:2b:96:0a:11:22"))
  require.NoError(t, err)

  p := embertest.NewPeripheral()
  mug := ember.NewMug(dev.(*ember.Device), &embertest.Dialer{Peripheral: p}, ember.ConnectOptions{
    MaxAttempts: 1,
    Backoff: time.Millisecond,
  })
  mug.SetModel(ember.ModelFromName("Ember Ceramic Mug"))

  t.Cleanup(func() {
    mug.Disconnect()
  })

  ctx := context.Background()
  require.NoError(t, mug.Connect(ctx))
  _, err = mug.UpdateAll(ctx)
  require.NoError(t, err)

  c := coordinator.New(mug, nil, coordinator.Options{})
  require.NoError(t, c.Refresh(ctx))

  pub := newFakePublisher()
  bridge := mqtt.NewBridge(pub, testTopics, coordinator.NewGroup(c))

  return &bridgeFixture{bridge: bridge, pub: pub, p: p, c: c}
}

func (f *bridgeFixture) state(t *testing.T) mqtt.State {
  t.Helper()

  payload, ok := f.pub.get("embermug/" + mugID + "/state")
  require.True(t, ok, "state not published")

  var state mqtt.State
  require.NoError(t, json.Unmarshal([]byte(payload), &state))

  return state
}

func TestBridge_Start(t *testing.T) {
  f := newBridgeFixture(t)
  require.NoError(t, f.bridge.Start())

  availability, _ := f.pub.get("embermug/" + mugID + "/availability")
  assert.Equal(t, "online", availability)

  state := f.state(t)
  assert.Equal(t, "Office mug", state.Name)
  assert.Equal(t, 54.5, state.CurrentTemp)
  assert.Equal(t, 55.0, state.TargetTemp)
  assert.Equal(t, "Coffee", state.Preset)
  assert.Equal(t, "ON", state.OnChargingBase)

  light, ok := f.pub.get("embermug/" + mugID + "/led/state")
  require.True(t, ok)
  assert.JSONEq(t, `{"state":"ON","color_mode":"rgb","brightness":255,"color":{"r":255,"g":0,"b":0}}`, light)

  assert.Equal(t, 14, f.pub.countPrefix("homeassistant/"))
}

func TestBridge_Commands(t *testing.T) {
  f := newBridgeFixture(t)
  require.NoError(t, f.bridge.Start())

  command := func(cmd string) string {
    return "embermug/" + mugID + "/" + cmd + "/set"
  }

  require.NoError(t, f.pub.deliver(t, command(mqtt.CommandTargetTemp), "58"))
  assert.Equal(t, []byte{0xa8, 0x16}, f.p.LastWrite(ember.UUIDTargetTemperature))
  assert.Equal(t, 58.0, f.state(t).TargetTemp)

  require.NoError(t, f.pub.deliver(t, command(mqtt.CommandTemperatureControl), "OFF"))
  assert.Equal(t, []byte{0, 0}, f.p.LastWrite(ember.UUIDTargetTemperature))
  assert.Equal(t, "OFF", f.state(t).TemperatureControl)
  assert.Equal(t, 58.0, f.state(t).TargetTemp)

  require.NoError(t, f.pub.deliver(t, command(mqtt.CommandTemperatureControl), "ON"))
  assert.Equal(t, []byte{0xa8, 0x16}, f.p.LastWrite(ember.UUIDTargetTemperature))

  require.NoError(t, f.pub.deliver(t, command(mqtt.CommandPreset), "Tea"))
  assert.Equal(t, []byte{0x70, 0x17}, f.p.LastWrite(ember.UUIDTargetTemperature))

  require.NoError(t, f.pub.deliver(t, command(mqtt.CommandLED), `{"state":"ON","brightness":10}`))
  assert.Equal(t, []byte{0xff, 0, 0, 10}, f.p.LastWrite(ember.UUIDLEDColour))

  require.NoError(t, f.pub.deliver(t, command(mqtt.ServiceSetLEDColour), `{"rgb_color":[0,255,0]}`))
  assert.Equal(t, []byte{0, 0xff, 0, 0xff}, f.p.LastWrite(ember.UUIDLEDColour))

  require.NoError(t, f.pub.deliver(t, command(mqtt.ServiceSetMugName), `{"mug_name":"Desk"}`))
  assert.Equal(t, []byte("Desk"), f.p.LastWrite(ember.UUIDName))

  require.NoError(t, f.pub.deliver(t, command(mqtt.CommandName), "Kitchen"))
  assert.Equal(t, []byte("Kitchen"), f.p.LastWrite(ember.UUIDName))

  require.NoError(t, f.pub.deliver(t, command(mqtt.ServiceSetTargetTemp), `{"target_temp":56}`))
  assert.Equal(t, []byte{0xe0, 0x15}, f.p.LastWrite(ember.UUIDTargetTemperature))

  require.NoError(t, f.pub.deliver(t, command(mqtt.CommandTemperatureUnit), "°F"))
  assert.Equal(t, []byte{1}, f.p.LastWrite(ember.UUIDTemperatureUnit))

  // Celsius on MQTT, converted to the unit of the mug.
  require.NoError(t, f.pub.deliver(t, command(mqtt.CommandTargetTemp), "60"))
  assert.Equal(t, []byte{0x70, 0x17}, f.p.LastWrite(ember.UUIDTargetTemperature))
}

func TestBridge_TargetTempBoundsOnFahrenheitMug(t *testing.T) {
  f := newBridgeFixture(t)
  require.NoError(t, f.bridge.Start())

  topic := "embermug/" + mugID + "/" + mqtt.CommandTargetTemp + "/set"

  require.NoError(t, f.pub.deliver(t, "embermug/" + mugID + "/" + mqtt.CommandTemperatureUnit + "/set", "°F"))

  // both ends of the advertised Celsius range are accepted once converted
  require.NoError(t, f.pub.deliver(t, topic, "63"))
  assert.Equal(t, []byte{0x9c, 0x18}, f.p.LastWrite(ember.UUIDTargetTemperature))

  require.NoError(t, f.pub.deliver(t, topic, "50"))
  assert.Equal(t, []byte{0x88, 0x13}, f.p.LastWrite(ember.UUIDTargetTemperature))

  require.NoError(t, f.pub.deliver(t, topic, "62.8"))
  assert.Equal(t, []byte{0x88, 0x18}, f.p.LastWrite(ember.UUIDTargetTemperature))

  assert.ErrorIs(t, f.pub.deliver(t, topic, "63.1"), coordinator.ErrInvalidTemperature)
  assert.ErrorIs(t, f.pub.deliver(t, topic, "49.9"), coordinator.ErrInvalidTemperature)
}

func TestBridge_ServiceSetTargetTempOutsideRange(t *testing.T) {
  f := newBridgeFixture(t)
  require.NoError(t, f.bridge.Start())

  topic := "embermug/" + mugID + "/" + mqtt.ServiceSetTargetTemp + "/set"

  require.NoError(t, f.pub.deliver(t, topic, `{"target_temp":45}`))
  assert.Equal(t, []byte{0x94, 0x11}, f.p.LastWrite(ember.UUIDTargetTemperature))
  assert.Equal(t, 45.0, f.state(t).TargetTemp)

  require.NoError(t, f.pub.deliver(t, topic, "70"))
  assert.Equal(t, []byte{0x58, 0x1b}, f.p.LastWrite(ember.UUIDTargetTemperature))

  assert.ErrorIs(t, f.pub.deliver(t, topic, `{"target_temp":0}`), coordinator.ErrInvalidTemperature)
  assert.ErrorIs(t, f.pub.deliver(t, topic, "-3"), coordinator.ErrInvalidTemperature)
}

func TestBridge_CommandErrors(t *testing.T) {
  f := newBridgeFixture(t)
  require.NoError(t, f.bridge.Start())

  err := f.pub.deliver(t, "embermug/ember_000000000000/target_temp/set", "58")
  assert.ErrorIs(t, err, mqtt.ErrUnknownMug)

  err = f.pub.deliver(t, "embermug/" + mugID + "/self_destruct/set", "now")
  assert.ErrorIs(t, err, mqtt.ErrUnknownCommand)

  err = f.pub.deliver(t, "embermug/" + mugID + "/target_temp/set", "hot")
  assert.ErrorIs(t, err, mqtt.ErrInvalidPayload)

  err = f.pub.deliver(t, "embermug/" + mugID + "/target_temp/set", "80")
  assert.ErrorIs(t, err, coordinator.ErrInvalidTemperature)

  err = f.pub.deliver(t, "embermug/" + mugID + "/temperature_control/set", "maybe")
  assert.ErrorIs(t, err, mqtt.ErrInvalidPayload)

  err = f.pub.deliver(t, "embermug/" + mugID + "/temperature_preset/set", "Soup")
  assert.ErrorIs(t, err, coordinator.ErrUnknownPreset)

  err = f.pub.deliver(t, "embermug/" + mugID + "/volume_level/set", "loud")
  assert.ErrorIs(t, err, mqtt.ErrInvalidPayload)

  err = f.pub.deliver(t, "embermug/" + mugID + "/set_led_colour/set", `{"rgb_color":[1,2]}`)
  assert.ErrorIs(t, err, mqtt.ErrInvalidPayload)

  assert.Empty(t, f.p.Writes())
}

func TestBridge_HomeAssistantOnline(t *testing.T) {
  f := newBridgeFixture(t)
  require.NoError(t, f.bridge.Start())

  // unchanged device info is not announced twice
  f.pub.reset()
  require.NoError(t, f.c.Refresh(context.Background()))
  assert.Zero(t, f.pub.countPrefix("homeassistant/"))

  require.NoError(t, f.pub.deliver(t, "homeassistant/status", "offline"))
  assert.Zero(t, f.pub.countPrefix("homeassistant/"))

  require.NoError(t, f.pub.deliver(t, "homeassistant/status", "online"))
  assert.Equal(t, 14, f.pub.countPrefix("homeassistant/"))
}

func TestBridge_Run(t *testing.T) {
  f := newBridgeFixture(t)

  ctx, cancel := context.WithCancel(context.Background())
  done := make(chan error, 1)

  go func() {
    done <- f.bridge.Run(ctx)
  }()

  require.Eventually(t, func() bool {
    availability, _ := f.pub.get("embermug/" + mugID + "/availability")
    return availability == "online"
  }, time.Second, time.Millisecond)

  cancel()

  select {
  case err := <-done:
    require.NoError(t, err)
  case <-time.After(time.Second):
    t.Fatal("bridge did not stop")
  }

  availability, _ := f.pub.get("embermug/" + mugID + "/availability")
  assert.Equal(t, "offline", availability)
}
