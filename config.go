package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/robertof/go-embermug-bridge/ble"
	"github.com/robertof/go-embermug-bridge/coordinator"
	"github.com/robertof/go-embermug-bridge/device"
	"github.com/robertof/go-embermug-bridge/device/ember"
	"github.com/robertof/go-embermug-bridge/mqtt"
	"gopkg.in/yaml.v3"
)

type config struct {
  Debug, Trace bool
  ConfigFile string
  BindAddress string
  EnableMetamonitoring bool
  DiscoverDevices bool
  DiscoveryTimeout time.Duration
  BluetoothDeviceId int
  BluetoothConnParams ble.ConnParams
  ConnectAttempts int
  ConnectBackoff time.Duration
  DetectTimeout time.Duration
  Interval, RetryCooldown time.Duration
  StorePath string
  MQTT mqtt.Config
  Devices []device.Device
}

// Optional YAML configuration. Anything set on the command line wins.
//
//   bind: localhost:9103
//   store: /var/lib/embermug/bridge.db
//   interval: 15s
//   retry_cooldown: 2m
//   mqtt:
//     broker: tcp://localhost:1883
//     username: embermug
//   devices:
//     - kind: ember
//       addr: c8:2b:96:0a:11:22
//       presets: Latte:52;Coffee:55;Tea:60
type fileConfig struct {
  Bind string `yaml:"bind"`
  Store string `yaml:"store"`
  Interval time.Duration `yaml:"interval"`
  RetryCooldown time.Duration `yaml:"retry_cooldown"`
  BluetoothDevice *int `yaml:"bluetooth_device"`
  MQTT fileMQTTConfig `yaml:"mqtt"`
  Devices []map[string]string `yaml:"devices"`
}

// Same keys as mqtt.Config. QoS is a pointer so that an explicit 0 overrides the flag default.
type fileMQTTConfig struct {
  Broker string `yaml:"broker"`
  ClientID string `yaml:"client_id"`
  Username string `yaml:"username"`
  Password string `yaml:"password"`
  QoS *byte `yaml:"qos"`
  BaseTopic string `yaml:"base_topic"`
  DiscoveryPrefix string `yaml:"discovery_prefix"`
}

type boundDeviceList struct {
  device.Factory
  name string
  list *[]device.Device
}

var deviceFactories = device.Factories{
  "ember": &ember.Factory{},
}

func (d *boundDeviceList) String() string {
  return ""
}

func (d *boundDeviceList) Set(v string) error {
  ds := device.NewDeviceSpec(v)

  device, err := d.FromSpec(ds)
  if err != nil {
    return fmt.Errorf("failed to create device: %w", err)
  }

  *d.list = append(*d.list, device)

  return nil
}

func loadConfigFile(path string) (*fileConfig, error) {
  f, err := os.Open(path)

  if err != nil {
    return nil, fmt.Errorf("failed to open config file: %w", err)
  }

  defer f.Close()

  var fc fileConfig
  dec := yaml.NewDecoder(f)
  dec.KnownFields(true)

  if err := dec.Decode(&fc); err != nil {
    return nil, fmt.Errorf("failed to parse config file %q: %w", path, err)
  }

  return &fc, nil
}

// Fill in whatever the command line left unset.
func (cfg *config) merge(fc *fileConfig, setFlags map[string]bool) error {
  if fc.Bind != "" && !setFlags["bind"] {
    cfg.BindAddress = fc.Bind
  }

  if fc.Store != "" && !setFlags["store"] {
    cfg.StorePath = fc.Store
  }

  if fc.Interval > 0 && !setFlags["interval"] {
    cfg.Interval = fc.Interval
  }

  if fc.RetryCooldown > 0 && !setFlags["retry-cooldown"] {
    cfg.RetryCooldown = fc.RetryCooldown
  }

  if fc.BluetoothDevice != nil && !setFlags["bluetooth-device"] {
    cfg.BluetoothDeviceId = *fc.BluetoothDevice
  }

  mergeString := func(dst *string, src, flagName string) {
    if src != "" && !setFlags[flagName] {
      *dst = src
    }
  }

  mergeString(&cfg.MQTT.Broker, fc.MQTT.Broker, "mqtt-broker")
  mergeString(&cfg.MQTT.ClientID, fc.MQTT.ClientID, "mqtt-client-id")
  mergeString(&cfg.MQTT.Username, fc.MQTT.Username, "mqtt-username")
  mergeString(&cfg.MQTT.Password, fc.MQTT.Password, "mqtt-password")
  mergeString(&cfg.MQTT.BaseTopic, fc.MQTT.BaseTopic, "mqtt-base-topic")
  mergeString(&cfg.MQTT.DiscoveryPrefix, fc.MQTT.DiscoveryPrefix, "mqtt-discovery-prefix")

  if fc.MQTT.QoS != nil {
    if *fc.MQTT.QoS > 2 {
      return fmt.Errorf("invalid mqtt.qos %d: must be 0, 1 or 2", *fc.MQTT.QoS)
    }

    if !setFlags["mqtt-qos"] {
      cfg.MQTT.QoS = *fc.MQTT.QoS
    }
  }

  for i, entry := range fc.Devices {
    spec := device.DeviceSpec{}
    kind := "ember"

    for k, v := range entry {
      if k == "kind" {
        kind = v
        continue
      }

      spec[strings.ToLower(k)] = v
    }

    dev, err := deviceFactories.FromSpec(kind, spec)

    if err != nil {
      return fmt.Errorf("devices[%d]: %w", i, err)
    }

    cfg.Devices = append(cfg.Devices, dev)
  }

  return nil
}

func parseArgs(fs *flag.FlagSet, args []string) (config, error) {
  var cfg config
  var qos uint

  cfg.BluetoothConnParams = ble.ConnParamsDefault

  fs.StringVar(&cfg.ConfigFile, "config", "", "Optional YAML configuration file")
  fs.StringVar(&cfg.BindAddress, "bind", "localhost:9103", "Where the metrics and diagnostics server will bind to")
  fs.IntVar(&cfg.BluetoothDeviceId, "bluetooth-device", 0, "Bluetooth (HCI) device ID")
  fs.Var(&cfg.BluetoothConnParams, "bluetooth-connection-params",
    "Bluetooth connection parameters (one of 'default', 'power-saving' or 'responsive')")
  fs.BoolVar(&cfg.DiscoverDevices, "discover", false, "Discover nearby Ember devices and quit")
  fs.DurationVar(&cfg.DiscoveryTimeout, "discover-timeout", 10 * time.Second, "How long discovery scans for")
  fs.BoolVar(&cfg.EnableMetamonitoring, "metamonitoring", true, "Enable metamonitoring metrics")
  fs.IntVar(&cfg.ConnectAttempts, "connect-attempts", ember.DefaultConnectAttempts,
    "Connection attempts before giving up until the retry cooldown expires")
  fs.DurationVar(&cfg.ConnectBackoff, "connect-backoff", ember.DefaultConnectBackoff,
    "Delay between connection attempts")
  fs.DurationVar(&cfg.DetectTimeout, "detect-timeout", 15 * time.Second,
    "How long to scan for advertisements to detect mug models on start")
  fs.DurationVar(&cfg.Interval, "interval", coordinator.DefaultInterval, "How frequently mugs are polled")
  fs.DurationVar(&cfg.RetryCooldown, "retry-cooldown", coordinator.DefaultRetryCooldown,
    "How long to wait before reconnecting to a mug that could not be reached")
  fs.StringVar(&cfg.StorePath, "store", "embermug.db",
    "SQLite database keeping the target temperature backups. Empty keeps them in memory")
  fs.StringVar(&cfg.MQTT.Broker, "mqtt-broker", "", "MQTT broker URL, e.g. tcp://localhost:1883. Empty disables MQTT")
  fs.StringVar(&cfg.MQTT.ClientID, "mqtt-client-id", "", "MQTT client ID")
  fs.StringVar(&cfg.MQTT.Username, "mqtt-username", "", "MQTT username")
  fs.StringVar(&cfg.MQTT.Password, "mqtt-password", os.Getenv("MQTT_PASSWORD"), "MQTT password (or $MQTT_PASSWORD)")
  fs.UintVar(&qos, "mqtt-qos", 1, "MQTT QoS for publishes and subscriptions")
  fs.StringVar(&cfg.MQTT.BaseTopic, "mqtt-base-topic", mqtt.DefaultBaseTopic, "MQTT base topic")
  fs.StringVar(&cfg.MQTT.DiscoveryPrefix, "mqtt-discovery-prefix", mqtt.DefaultDiscoveryPrefix,
    "Home Assistant discovery prefix")
  fs.BoolVar(&cfg.Debug, "debug", false, "Enable debug logs")
  fs.BoolVar(&cfg.Trace, "trace", false, "Enable trace logs")

  for _, deviceName := range deviceFactories.Kinds() {
    deviceFactory := deviceFactories[deviceName]

    boundList := boundDeviceList{
      name:    deviceName,
      Factory: deviceFactory,
      list:    &cfg.Devices,
    }

    help := "Device spec for this device in the form of `key=value,key=value`."

    if docs, ok := deviceFactory.(device.FactoryDocs); ok {
      help += "\n" + docs.Help()
    }

    fs.Var(&boundList, deviceName, help)
  }

  if err := fs.Parse(args); err != nil {
    return cfg, err
  }

  if qos > 2 {
    return cfg, fmt.Errorf("invalid -mqtt-qos %d: must be 0, 1 or 2", qos)
  }

  cfg.MQTT.QoS = byte(qos)

  if cfg.ConfigFile != "" {
    setFlags := make(map[string]bool)

    fs.Visit(func(f *flag.Flag) {
      setFlags[f.Name] = true
    })

    fc, err := loadConfigFile(cfg.ConfigFile)

    if err != nil {
      return cfg, err
    }

    if err := cfg.merge(fc, setFlags); err != nil {
      return cfg, err
    }
  }

  if !cfg.DiscoverDevices && len(cfg.Devices) == 0 {
    return cfg, errors.New("at least one device is required")
  }

  return cfg, nil
}

func ParseArgs() config {
  cfg, err := parseArgs(flag.CommandLine, os.Args[1:])

  if err != nil {
    fmt.Fprintf(os.Stderr, "Error: %v\n", err)
    flag.Usage()
    os.Exit(1)
  }

  return cfg
}
