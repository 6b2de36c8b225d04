package mqtt

import (
  "context"
  "encoding/json"
  "fmt"
  "sync"

  "github.com/robertof/go-embermug-bridge/coordinator"
  "github.com/robertof/go-embermug-bridge/device/ember"
  "github.com/rs/zerolog/log"
)

type Publisher interface {
  Publish(topic string, payload []byte, retained bool) error
  Subscribe(topic string, handler MessageHandler) error
}

// Bridge mirrors coordinator snapshots to MQTT and dispatches commands back.
type Bridge struct {
  pub Publisher
  topics Topics
  group *coordinator.Group

  mu sync.Mutex
  // per mug, the device info discovery was last published with
  announced map[string]string
  removeListeners []func()
}

func NewBridge(pub Publisher, topics Topics, group *coordinator.Group) *Bridge {
  return &Bridge{
    pub: pub,
    topics: topics,
    group: group,
    announced: make(map[string]string),
  }
}

// Subscribe to commands, start mirroring the coordinators and publish their current state.
func (b *Bridge) Start() error {
  if err := b.pub.Subscribe(b.topics.AllCommands(), b.handleCommand); err != nil {
    return err
  }

  if err := b.pub.Subscribe(b.topics.HomeAssistantStatus(), b.handleHomeAssistantStatus); err != nil {
    return err
  }

  b.mu.Lock()
  for _, c := range b.group.All() {
    b.removeListeners = append(b.removeListeners, c.AddListener(b.publishSnapshot))
  }
  b.mu.Unlock()

  b.Republish()

  return nil
}

// Run the bridge until ctx is cancelled, then mark every mug offline.
func (b *Bridge) Run(ctx context.Context) error {
  if err := b.Start(); err != nil {
    return fmt.Errorf("failed to start MQTT bridge: %w", err)
  }

  log.Info().Str("BaseTopic", b.topics.Base).Msg("MQTT bridge started")

  <-ctx.Done()

  b.mu.Lock()
  for _, remove := range b.removeListeners {
    remove()
  }
  b.removeListeners = nil
  b.mu.Unlock()

  for _, c := range b.group.All() {
    b.publish(b.topics.Availability(c.Device().ID()), []byte(PayloadOffline), true)
  }

  return nil
}

// Publish discovery and state of every mug again, e.g. after reconnecting to the broker.
func (b *Bridge) Republish() {
  b.mu.Lock()
  b.announced = make(map[string]string)
  b.mu.Unlock()

  for _, s := range b.group.Snapshots() {
    b.publishSnapshot(s)
  }
}

func (b *Bridge) handleHomeAssistantStatus(topic string, payload []byte) error {
  if string(payload) != PayloadOnline {
    return nil
  }

  log.Info().Msg("Home Assistant came online, publishing discovery")
  b.Republish()

  return nil
}

func (b *Bridge) publish(topic string, payload []byte, retained bool) {
  if err := b.pub.Publish(topic, payload, retained); err != nil {
    log.Warn().Str("Topic", topic).Err(err).Msg("Failed to publish to MQTT")
    return
  }

  log.Trace().Str("Topic", topic).Bytes("Payload", payload).Msg("Published to MQTT")
}

func (b *Bridge) publishJSON(topic string, v any) {
  payload, err := json.Marshal(v)

  if err != nil {
    log.Error().Str("Topic", topic).Err(err).Msg("Failed to encode MQTT payload")
    return
  }

  b.publish(topic, payload, true)
}

// Discovery only needs to be published again when something in it changes.
func (b *Bridge) announce(s coordinator.Snapshot) {
  id := s.Device.ID()
  info, _ := json.Marshal(newDeviceInfo(s))
  fingerprint := string(info) + s.Data.Model.Name

  b.mu.Lock()
  unchanged := b.announced[id] == fingerprint
  b.announced[id] = fingerprint
  b.mu.Unlock()

  if unchanged {
    return
  }

  log.Debug().Str("ID", id).Str("Model", s.Data.Model.Name).Msg("Publishing Home Assistant discovery")

  for _, msg := range DiscoveryMessages(b.topics, s) {
    b.publish(msg.Topic, msg.Payload, true)
  }
}

func (b *Bridge) publishSnapshot(s coordinator.Snapshot) {
  id := s.Device.ID()

  b.announce(s)

  availability := PayloadOffline

  if s.Available {
    availability = PayloadOnline
  }

  b.publish(b.topics.Availability(id), []byte(availability), true)

  if s.UpdatedAt.IsZero() {
    return
  }

  b.publishJSON(b.topics.State(id), NewState(s))

  if s.Data.Model.HasAttribute(ember.AttrLEDColour) {
    b.publishJSON(b.topics.LightState(id), NewLightState(s.Data.LEDColour))
  }
}
