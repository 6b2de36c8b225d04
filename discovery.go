package main

import (
	"context"
	"errors"
	"sort"

	"github.com/rs/zerolog/log"
	"golang.org/x/exp/maps"

	"github.com/robertof/go-embermug-bridge/ble"
	"github.com/robertof/go-embermug-bridge/device/ember"
)

type discoveredDevice struct {
  name string
  model ember.ModelInfo
  connectable bool
  services map[string]bool
  manufacturerData []byte
}

func (d *discoveredDevice) merge(a ble.Advertisement) {
  if d.name == "" {
    d.name = a.LocalName()
    d.model = ember.ModelFromAdvertisement(a)
  }

  d.connectable = d.connectable || a.Connectable()

  if md := a.ManufacturerData(); len(md) > 0 {
    d.manufacturerData = md
  }

  for _, uuid := range a.Services() {
    d.services[uuid.String()] = true
  }
}

func doDeviceDiscovery(cfg config) {
  log.Info().
    Dur("Timeout", cfg.DiscoveryTimeout).
    Msg("Starting in device discovery mode - scanning for Ember devices...")

  handle, err := ble.Init(cfg.BluetoothDeviceId, ble.FlagScanTypeActive)

  if err != nil {
    log.Fatal().Err(err).Msg("Failed to initialize Bluetooth device")
  }

  defer handle.Stop()

  ctx := ble.WrapContextWithSigHandler(
    context.WithTimeout(
      context.Background(),
      cfg.DiscoveryTimeout,
    ),
  )

  devices := make(map[string]*discoveredDevice)

  err = handle.ScanAll(ctx, ble.ScanOptions{
    FilterAdvertisement: ember.IsEmberAdvertisement,
    AllowDuplicates: true,
  }, func(a ble.Advertisement) {
    addr := a.Addr().String()
    info, ok := devices[addr]

    if !ok {
      info = &discoveredDevice{services: make(map[string]bool)}
      devices[addr] = info
    }

    info.merge(a)

    log.Debug().
      Str("Addr", addr).
      Str("Name", a.LocalName()).
      Bool("Connectable", a.Connectable()).
      Int("RSSI", a.RSSI()).
      Hex("ManufacturerData", a.ManufacturerData()).
      Msg("Received Ember advertisement")
  })

  if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
    log.Fatal().Err(err).Msg("Failed to initiate scan")
  }

  log.Info().Int("Found", len(devices)).Msg("Finished device discovery")

  addrs := maps.Keys(devices)
  sort.Strings(addrs)

  for _, addr := range addrs {
    data := devices[addr]
    services := maps.Keys(data.services)
    sort.Strings(services)

    log.Info().
      Str("Addr", addr).
      Str("Name", data.name).
      Stringer("Model", data.model).
      Bool("Connectable", data.connectable).
      Strs("Services", services).
      Hex("ManufacturerData", data.manufacturerData).
      Str("Spec", "-ember addr=" + addr).
      Msg("Found Ember device")
  }
}
