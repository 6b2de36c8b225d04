package coordinator

import (
  "context"
  "errors"
  "net"
  "strings"
  "sync"

  "github.com/robertof/go-embermug-bridge/ble"
  "github.com/robertof/go-embermug-bridge/device/ember"
  "github.com/rs/zerolog/log"
)

type Scanner interface {
  ScanAddresses(ctx context.Context, addresses []net.HardwareAddr, onAdvertisement func(ble.Advertisement) bool) error
}

// Scan for the mugs' advertisements and set each model from the advertised name. Mugs that
// don't advertise before ctx expires keep the unknown model. Only fails when the scan itself
// fails.
func DetectModels(ctx context.Context, scanner Scanner, mugs []*ember.Mug) error {
  // handlers run concurrently for different addresses
  var mu sync.Mutex
  numLeft := len(mugs)
  addresses := make([]net.HardwareAddr, 0, len(mugs))
  mugMap := make(map[string]*ember.Mug, len(mugs))

  for _, mug := range mugs {
    addresses = append(addresses, mug.Device().Addr())
    mugMap[strings.ToLower(mug.Device().Addr().String())] = mug
  }

  if numLeft == 0 {
    return nil
  }

  err := scanner.ScanAddresses(ctx, addresses, func(a ble.Advertisement) bool {
    mug := mugMap[strings.ToLower(a.Addr().String())]

    if mug == nil {
      log.Warn().
        Str("Address", a.Addr().String()).
        Str("LocalName", a.LocalName()).
        Hex("ManufacturerData", a.ManufacturerData()).
        Msg("Received advertisement from unknown device!")

      return false
    }

    if !ember.IsEmberAdvertisement(a) {
      log.Warn().
        Stringer("Device", mug).
        Str("LocalName", a.LocalName()).
        Msg("Configured device does not look like an Ember mug")
    }

    if a.LocalName() == "" {
      // scan responses carry the name, wait for one
      return false
    }

    model := ember.ModelFromAdvertisement(a)

    log.Debug().
      Stringer("Device", mug).
      Str("LocalName", a.LocalName()).
      Str("Model", model.Name).
      Msg("Detected mug model")

    mug.SetModel(model)

    mu.Lock()
    numLeft -= 1
    mu.Unlock()

    return true
  })

  // swallow deadline exceeded errors if we got results for all mugs
  if errors.Is(err, context.DeadlineExceeded) {
    mu.Lock()
    defer mu.Unlock()

    if numLeft > 0 {
      log.Warn().Int("Missing", numLeft).Msg("Not all mugs advertised while detecting models")
    }

    return nil
  }

  return err
}
