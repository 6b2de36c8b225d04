package main

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robertof/go-embermug-bridge/ble"
	"github.com/robertof/go-embermug-bridge/coordinator"
	"github.com/robertof/go-embermug-bridge/device"
	"github.com/robertof/go-embermug-bridge/device/ember"
	"github.com/robertof/go-embermug-bridge/metrics"
	"github.com/robertof/go-embermug-bridge/mqtt"
	"github.com/robertof/go-embermug-bridge/store"
	"github.com/robertof/go-embermug-bridge/utils"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 5 * time.Second

func main() {
  zerolog.DurationFieldUnit = time.Second
  zerolog.TimeFieldFormat = time.RFC3339Nano

  log.Logger = log.Output(zerolog.ConsoleWriter{
    Out: os.Stderr,
    TimeFormat: "15:04:05.000",
  })

  cfg := ParseArgs()

  if cfg.Trace || os.Getenv("TRACE") != "" {
      zerolog.SetGlobalLevel(zerolog.TraceLevel)
  } else if cfg.Debug || os.Getenv("DEBUG") != "" {
      zerolog.SetGlobalLevel(zerolog.DebugLevel)
  } else {
      zerolog.SetGlobalLevel(zerolog.InfoLevel)
  }

  if cfg.DiscoverDevices {
    doDeviceDiscovery(cfg)
    return
  }

  log.Info().
    Str("BindAddr", cfg.BindAddress).
    Array("Devices", utils.ToZeroLogArray(cfg.Devices)).
    Int("BluetoothDeviceID", cfg.BluetoothDeviceId).
    Str("Store", cfg.StorePath).
    Str("MQTTBroker", cfg.MQTT.Broker).
    Msg("Starting with the specified configuration")

  ctx := ble.WrapContextWithSigHandler(context.WithCancel(context.Background()))

  bleHandle := initBle(cfg)
  defer bleHandle.Stop()

  mugs := initMugs(cfg, bleHandle)
  detectModels(ctx, cfg, bleHandle, mugs)

  var persistent coordinator.Store

  if cfg.StorePath != "" {
    st, err := store.Open(cfg.StorePath)

    if err != nil {
      log.Fatal().Err(err).Str("Path", cfg.StorePath).Msg("Failed to open persistent store")
    }

    defer st.Close()
    persistent = st
  } else {
    log.Warn().Msg("No store configured, target temperature backups won't survive restarts")
  }

  coordinators := make([]*coordinator.Coordinator, 0, len(mugs))

  for _, mug := range mugs {
    coordinators = append(coordinators, coordinator.New(mug, persistent, coordinator.Options{
      Interval: cfg.Interval,
      RetryCooldown: cfg.RetryCooldown,
    }))
  }

  group := coordinator.NewGroup(coordinators...)

  registry := prometheus.NewRegistry()
  metrics.RegisterCollector(group.Snapshots, registry)

  if cfg.EnableMetamonitoring {
    ble.RegisterMetrics(registry)
    registry.MustRegister(
      collectors.NewGoCollector(),
      collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
    )
  }

  eg, ctx := errgroup.WithContext(ctx)

  eg.Go(func() error {
    return group.Run(ctx)
  })

  if cfg.MQTT.Broker != "" {
    client, err := mqtt.Connect(cfg.MQTT)

    if err != nil {
      log.Fatal().Err(err).Str("Broker", cfg.MQTT.Broker).Msg("Unable to connect to the MQTT broker")
    }

    defer func() {
      if err := client.Close(); err != nil {
        log.Warn().Err(err).Msg("Failed to announce the bridge going offline")
      }
    }()

    bridge := mqtt.NewBridge(client, client.Topics(), group)
    client.OnConnect(bridge.Republish)

    eg.Go(func() error {
      return bridge.Run(ctx)
    })
  }

  eg.Go(func() error {
    return serveHTTP(ctx, cfg.BindAddress, registry, group)
  })

  if err := eg.Wait(); err != nil {
    log.Fatal().Err(err).Msg("Bridge stopped with an error")
  }

  log.Info().Msg("Bye")
}

func initBle(cfg config) *ble.Handle {
  var bleFlags ble.Flags = ble.FlagEnableDeviceAllowList
  deviceAddresses := make([]net.HardwareAddr, len(cfg.Devices))

  for i, dev := range cfg.Devices {
    deviceAddresses[i] = dev.Addr()

    if dev.Flags() & device.FlagRequiresBleActiveScan == device.FlagRequiresBleActiveScan {
      bleFlags |= ble.FlagScanTypeActive
    }

    if dev.Flags() & device.FlagRequiresPersistentConnection == device.FlagRequiresPersistentConnection {
      bleFlags |= ble.FlagPersistConnections
    }
  }

  bleHandle, err := ble.InitWithConnParams(cfg.BluetoothDeviceId, cfg.BluetoothConnParams, bleFlags)

  if err != nil {
    log.Fatal().Err(err).Msg("Failed to initialize Bluetooth device")
  }

  err = bleHandle.SetAllowListedAddresses(deviceAddresses)

  if err != nil {
    log.Error().Err(err).Msg("Failed to set device allow list")
  }

  return bleHandle
}

func initMugs(cfg config, bleHandle *ble.Handle) []*ember.Mug {
  dialer := ember.HandleDialer(bleHandle)
  mugs := make([]*ember.Mug, 0, len(cfg.Devices))

  for _, dev := range cfg.Devices {
    emberDev, ok := dev.(*ember.Device)

    if !ok {
      log.Fatal().Stringer("Device", dev).Msg("Unsupported device type")
    }

    mugs = append(mugs, ember.NewMug(emberDev, dialer, ember.ConnectOptions{
      MaxAttempts: cfg.ConnectAttempts,
      Backoff: cfg.ConnectBackoff,
    }))
  }

  return mugs
}

func detectModels(ctx context.Context, cfg config, scanner coordinator.Scanner, mugs []*ember.Mug) {
  log.Info().
    Dur("Timeout", cfg.DetectTimeout).
    Msg("Scanning for the configured mugs to detect their model")

  ctx, cancel := context.WithTimeout(ctx, cfg.DetectTimeout)
  defer cancel()

  if err := coordinator.DetectModels(ctx, scanner, mugs); err != nil && !errors.Is(err, context.Canceled) {
    log.Error().Err(err).Msg("Failed to scan for mugs, models are unknown")
  }

  for _, mug := range mugs {
    log.Info().
      Stringer("Device", mug).
      Str("Model", mug.Model().Name).
      Bool("Writable", mug.CanWrite()).
      Msg("Configured mug")
  }
}

func diagnosticsHandler(group *coordinator.Group) http.HandlerFunc {
  return func(w http.ResponseWriter, r *http.Request) {
    out := make(map[string]coordinator.Diagnostics)

    for _, c := range group.All() {
      if id := r.URL.Query().Get("id"); id != "" && id != c.Device().ID() {
        continue
      }

      out[c.Device().ID()] = c.Diagnostics()
    }

    w.Header().Set("Content-Type", "application/json")

    enc := json.NewEncoder(w)
    enc.SetIndent("", "  ")

    if err := enc.Encode(out); err != nil {
      log.Warn().Err(err).Msg("Failed to write diagnostics")
    }
  }
}

func serveHTTP(ctx context.Context, addr string, registry *prometheus.Registry, group *coordinator.Group) error {
  mux := http.NewServeMux()
  mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
  mux.Handle("/diagnostics", diagnosticsHandler(group))

  srv := &http.Server{Addr: addr, Handler: mux}

  go func() {
    <-ctx.Done()

    shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
    defer cancel()

    if err := srv.Shutdown(shutdownCtx); err != nil {
      log.Warn().Err(err).Msg("Failed to shut down HTTP server")
    }
  }()

  log.Info().
      Str("ListenAddress", addr).
      Msg("Starting metrics and diagnostics server")

  if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
    return err
  }

  return nil
}
