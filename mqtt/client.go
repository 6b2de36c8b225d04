// Package mqtt publishes mug state to an MQTT broker with Home Assistant discovery, and turns
// command topics into coordinator calls.
package mqtt

import (
  "errors"
  "fmt"
  "sync"
  "time"

  pahomqtt "github.com/eclipse/paho.mqtt.golang"
  "github.com/rs/zerolog/log"
)

const (
  defaultConnectTimeout = 10 * time.Second
  defaultPublishTimeout = 5 * time.Second
  defaultDisconnectQuiesce = 1000 // ms
  defaultKeepAlive = 60 * time.Second
  defaultMaxReconnectInterval = 2 * time.Minute

  PayloadOnline = "online"
  PayloadOffline = "offline"
)

var (
  ErrNotConnected = errors.New("mqtt: client not connected")
  ErrConnectionFailed = errors.New("mqtt: connection failed")
  ErrPublishFailed = errors.New("mqtt: publish failed")
  ErrSubscribeFailed = errors.New("mqtt: subscribe failed")
)

type Config struct {
  // e.g. tcp://localhost:1883
  Broker string `yaml:"broker"`
  ClientID string `yaml:"client_id"`
  Username string `yaml:"username"`
  Password string `yaml:"password"`
  QoS byte `yaml:"qos"`
  BaseTopic string `yaml:"base_topic"`
  DiscoveryPrefix string `yaml:"discovery_prefix"`
}

func (c Config) WithDefaults() Config {
  if c.ClientID == "" {
    c.ClientID = "embermug-bridge"
  }

  if c.BaseTopic == "" {
    c.BaseTopic = DefaultBaseTopic
  }

  if c.DiscoveryPrefix == "" {
    c.DiscoveryPrefix = DefaultDiscoveryPrefix
  }

  if c.QoS > 2 {
    c.QoS = 1
  }

  return c
}

// MessageHandler gets every message received on a subscribed topic. Errors are logged.
type MessageHandler func(topic string, payload []byte) error

type subscription struct {
  topic string
  handler MessageHandler
}

// Client wraps a paho client: it announces the bridge status with a retained message and a
// last will, and restores subscriptions after reconnecting.
type Client struct {
  client pahomqtt.Client
  cfg Config
  topics Topics

  subMu sync.Mutex
  subscriptions map[string]subscription

  onConnectMu sync.Mutex
  onConnect []func()
}

func buildClientOptions(cfg Config, topics Topics) *pahomqtt.ClientOptions {
  opts := pahomqtt.NewClientOptions()

  opts.AddBroker(cfg.Broker)
  opts.SetClientID(cfg.ClientID)

  if cfg.Username != "" {
    opts.SetUsername(cfg.Username)
    opts.SetPassword(cfg.Password)
  }

  opts.SetCleanSession(true)
  opts.SetAutoReconnect(true)
  opts.SetConnectRetry(true)
  opts.SetMaxReconnectInterval(defaultMaxReconnectInterval)
  opts.SetConnectTimeout(defaultConnectTimeout)
  opts.SetKeepAlive(defaultKeepAlive)

  opts.SetWill(topics.BridgeStatus(), PayloadOffline, cfg.QoS, true)

  return opts
}

func Connect(cfg Config) (*Client, error) {
  cfg = cfg.WithDefaults()

  c := &Client{
    cfg: cfg,
    topics: Topics{Base: cfg.BaseTopic, DiscoveryPrefix: cfg.DiscoveryPrefix},
    subscriptions: make(map[string]subscription),
  }

  opts := buildClientOptions(cfg, c.topics)

  opts.SetOnConnectHandler(func(pahomqtt.Client) {
    c.handleConnect()
  })

  opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
    log.Warn().Err(err).Str("Broker", cfg.Broker).Msg("Lost connection to MQTT broker")
  })

  opts.SetReconnectingHandler(func(pahomqtt.Client, *pahomqtt.ClientOptions) {
    log.Debug().Str("Broker", cfg.Broker).Msg("Reconnecting to MQTT broker")
  })

  c.client = pahomqtt.NewClient(opts)
  token := c.client.Connect()

  if !token.WaitTimeout(defaultConnectTimeout) {
    return nil, fmt.Errorf("%w: timeout after %v", ErrConnectionFailed, defaultConnectTimeout)
  }

  if err := token.Error(); err != nil {
    return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
  }

  return c, nil
}

func (c *Client) Topics() Topics {
  return c.topics
}

// Register f to run after every (re)connection.
func (c *Client) OnConnect(f func()) {
  c.onConnectMu.Lock()
  defer c.onConnectMu.Unlock()

  c.onConnect = append(c.onConnect, f)
}

func (c *Client) handleConnect() {
  log.Info().Str("Broker", c.cfg.Broker).Str("ClientID", c.cfg.ClientID).Msg("Connected to MQTT broker")

  c.subMu.Lock()
  for _, sub := range c.subscriptions {
    c.client.Subscribe(sub.topic, c.cfg.QoS, c.wrapHandler(sub.handler))
  }
  c.subMu.Unlock()

  c.client.Publish(c.topics.BridgeStatus(), c.cfg.QoS, true, PayloadOnline)

  c.onConnectMu.Lock()
  callbacks := append([]func(){}, c.onConnect...)
  c.onConnectMu.Unlock()

  for _, f := range callbacks {
    go f()
  }
}

func (c *Client) IsConnected() bool {
  return c.client.IsConnected()
}

func (c *Client) Publish(topic string, payload []byte, retained bool) error {
  if !c.IsConnected() {
    return ErrNotConnected
  }

  token := c.client.Publish(topic, c.cfg.QoS, retained, payload)

  return waitToken(token, ErrPublishFailed, topic)
}

func waitToken(token pahomqtt.Token, failure error, topic string) error {
  if !token.WaitTimeout(defaultPublishTimeout) {
    return fmt.Errorf("%w: %s: timeout after %v", failure, topic, defaultPublishTimeout)
  }

  if err := token.Error(); err != nil {
    return fmt.Errorf("%w: %s: %w", failure, topic, err)
  }

  return nil
}

func (c *Client) Subscribe(topic string, handler MessageHandler) error {
  if !c.IsConnected() {
    return ErrNotConnected
  }

  c.subMu.Lock()
  c.subscriptions[topic] = subscription{topic: topic, handler: handler}
  c.subMu.Unlock()

  token := c.client.Subscribe(topic, c.cfg.QoS, c.wrapHandler(handler))

  if err := waitToken(token, ErrSubscribeFailed, topic); err != nil {
    c.forget(topic)
    return err
  }

  log.Debug().Str("Topic", topic).Msg("Subscribed to MQTT topic")

  return nil
}

func (c *Client) forget(topic string) {
  c.subMu.Lock()
  defer c.subMu.Unlock()

  delete(c.subscriptions, topic)
}

// Publish the offline status and disconnect. The client disconnects even when the status could
// not be published, and the publish error is returned.
func (c *Client) Close() error {
  var err error

  if c.IsConnected() {
    token := c.client.Publish(c.topics.BridgeStatus(), c.cfg.QoS, true, PayloadOffline)
    err = waitToken(token, ErrPublishFailed, c.topics.BridgeStatus())
  }

  c.client.Disconnect(defaultDisconnectQuiesce)

  return err
}

func (c *Client) wrapHandler(handler MessageHandler) pahomqtt.MessageHandler {
  return func(_ pahomqtt.Client, msg pahomqtt.Message) {
    defer func() {
      if r := recover(); r != nil {
        log.Error().Str("Topic", msg.Topic()).Interface("Panic", r).Msg("MQTT handler panicked")
      }
    }()

    if err := handler(msg.Topic(), msg.Payload()); err != nil {
      log.Warn().Str("Topic", msg.Topic()).Err(err).Msg("MQTT handler failed")
    }
  }
}
