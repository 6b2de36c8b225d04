package coordinator

import (
  "context"
  "errors"
  "fmt"
  "time"

  "github.com/robertof/go-embermug-bridge/device/ember"
  "github.com/rs/zerolog/log"
)

// Connect and fetch the initial state, retrying every RetryCooldown until it works. Returns
// only when connected or when ctx is cancelled.
func (c *Coordinator) setup(ctx context.Context) error {
  for {
    err := c.connectAndUpdate(ctx)

    if err == nil {
      c.setAvailable(true, nil)
      c.updateListeners()

      return nil
    }

    if ctx.Err() != nil {
      return ctx.Err()
    }

    if c.setAvailable(false, err) {
      c.updateListeners()
    }

    if errors.Is(err, ember.ErrConnectionFailed) {
      log.Warn().
        Stringer("Device", c.mug).
        Dur("RetryIn", c.opts.RetryCooldown).
        Msg("Mug not ready, is it out of range or asleep?")
    } else {
      log.Error().
        Stringer("Device", c.mug).
        Err(err).
        Dur("RetryIn", c.opts.RetryCooldown).
        Msg("Failed to set up mug")
    }

    select {
    case <-ctx.Done():
      return ctx.Err()
    case <-time.After(c.opts.RetryCooldown):
    }
  }
}

// Connect holds no lock: commands sent meanwhile see a disconnected mug and fail right away.
func (c *Coordinator) connectAndUpdate(ctx context.Context) error {
  if err := c.mug.Connect(ctx); err != nil {
    return err
  }

  if err := c.lockOp(ctx); err != nil {
    c.dropConnection("Failed to drop connection after cancellation")
    return err
  }

  defer c.unlockOp()

  if _, err := c.mug.UpdateInitial(ctx); err != nil {
    c.dropConnection("Failed to drop connection after failed initial update")
    return fmt.Errorf("%w: initial update: %w", ErrUpdateFailed, err)
  }

  if _, err := c.mug.UpdateAll(ctx); err != nil {
    c.dropConnection("Failed to drop connection after failed update")
    return fmt.Errorf("%w: %w", ErrUpdateFailed, err)
  }

  c.touch()

  log.Debug().
    Stringer("Device", c.mug).
    Stringer("Data", c.mug.Data()).
    Msg("Initial update complete")

  return nil
}

func (c *Coordinator) dropConnection(msg string) {
  if err := c.mug.Disconnect(); err != nil {
    log.Debug().Stringer("Device", c.mug).Err(err).Msg(msg)
  }
}

func (c *Coordinator) loadBackup(ctx context.Context) {
  if c.store == nil {
    return
  }

  backup, err := c.store.TargetTempBackup(ctx, c.mug.Device().Addr())

  if err != nil {
    log.Warn().Stringer("Device", c.mug).Err(err).Msg("Failed to load target temperature backup")
    return
  }

  c.mu.Lock()
  c.targetBackup = backup
  c.mu.Unlock()
}

// Remember the target temperature (Celsius) to restore when temperature control is turned back
// on. Persisting is best effort: the in-memory copy is always updated.
func (c *Coordinator) saveBackup(ctx context.Context, celsius float64) {
  c.mu.Lock()
  c.targetBackup = &celsius
  c.mu.Unlock()

  if c.store == nil {
    return
  }

  if err := c.store.SetTargetTempBackup(ctx, c.mug.Device().Addr(), &celsius); err != nil {
    log.Warn().Stringer("Device", c.mug).Err(err).Msg("Failed to persist target temperature backup")
  }
}
