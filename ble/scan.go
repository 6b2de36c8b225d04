package ble

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/go-ble/ble"
	"github.com/rs/zerolog/log"
)

type ScanOptions struct {
  // Drop advertisements for which this returns false. nil accepts everything.
  FilterAdvertisement func(Advertisement) bool
  // Report every advertisement rather than only the first one per address.
  AllowDuplicates bool
}

func WrapContextWithSigHandler(ctx context.Context, cancel func()) context.Context {
  return ble.WithSigHandler(ctx, cancel)
}

// Perform an active or passive scan and pass every accepted advertisement to onDevice.
func (h *Handle) ScanAll(ctx context.Context, opts ScanOptions, onDevice func(Advertisement)) error {
  handler := func(a Advertisement) {
    if opts.FilterAdvertisement != nil && !opts.FilterAdvertisement(a) {
      return
    }

    onDevice(a)
  }

  if err := h.dev.Scan(ctx, opts.AllowDuplicates, handler); err != nil {
    return fmt.Errorf("failed to initiate scan: %w", err)
  }

  return nil
}

// Perform an active or passive scan for the specified addresses and pass it to
// an handler that determines whether to accept it - ending scanning for that address -
// or rejecting it.
func (h *Handle) ScanAddresses(
  parentCtx context.Context,
  addresses []net.HardwareAddr,
  onAdvertisement func(Advertisement) bool,
) error {
  if len(addresses) == 0 {
    return nil
  }

  addrMap := make(map[string]chan Advertisement)

  ctx, cancel := context.WithCancel(parentCtx)
  defer cancel()

  done := make(chan string)

  for _, addr := range addresses {
    addrStr := strings.ToLower(addr.String())
    ch := make(chan ble.Advertisement, 10)
    addrMap[addrStr] = ch

    // one goroutine per address keeps the handler calls for a device serialized.
    go func() {
      for {
        select {
        case next := <-ch:
          if onAdvertisement(next) {
            select {
            case done <- addrStr:
            case <-ctx.Done():
            }
            return
          }
        case <-ctx.Done():
          return
        }
      }
    }()
  }

  callback := func(a Advertisement) {
    // the BLE lib could send an advertisement even after `Scan()` returns.
    if ctx.Err() != nil {
      return
    }

    ch, ok := addrMap[strings.ToLower(a.Addr().String())]

    if !ok {
      return
    }

    log.Trace().
      Str("Addr", a.Addr().String()).
      Str("LocalName", a.LocalName()).
      Hex("ManufacturerData", a.ManufacturerData()).
      Msg("ble: received advertisement, enqueueing")

    // never block the HCI event loop on a slow handler, drop instead.
    select {
    case ch <- a:
    default:
      log.Trace().Str("Addr", a.Addr().String()).Msg("ble: advertisement queue full, dropping")
    }
  }

  go func() {
    left := len(addresses)

    for {
      select {
      case <-done:
        left -= 1

        if left == 0 {
          cancel()
          return
        }
      case <-ctx.Done():
        return
      }
    }
  }()

  err := h.dev.Scan(ctx, true, callback)

  // swallow cancellations we caused ourselves.
  if errors.Is(err, context.Canceled) && parentCtx.Err() == nil {
    err = nil
  }

  return err
}
