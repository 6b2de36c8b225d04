// Package coordinator keeps one Ember mug connected and its state fresh, and exposes the
// commands other parts of the bridge (MQTT, HTTP) can send to it.
package coordinator

import (
  "context"
  "errors"
  "fmt"
  "net"
  "sync"
  "sync/atomic"
  "time"

  "github.com/robertof/go-embermug-bridge/device/ember"
  "github.com/rs/zerolog/log"
)

const (
  DefaultInterval = 15 * time.Second
  DefaultRetryCooldown = 2 * time.Minute
)

var (
  ErrNotWritable = errors.New("mug is not writable")
  ErrUpdateFailed = errors.New("update failed")
)

type Options struct {
  // Time between polls. Polls alternate between queued-only and full refreshes.
  Interval time.Duration
  // Wait before trying again after Connect gave up.
  RetryCooldown time.Duration
}

// Store persists the target temperature to restore when temperature control is turned back on.
// Temperatures are in Celsius.
type Store interface {
  TargetTempBackup(ctx context.Context, addr net.HardwareAddr) (*float64, error)
  SetTargetTempBackup(ctx context.Context, addr net.HardwareAddr, temp *float64) error
}

type Snapshot struct {
  Device *ember.Device
  Data ember.Data
  Available bool
  Writable bool
  // Target temperature in the mug unit, falling back to the backup while temperature control
  // is off.
  TargetTemp float64
  // Label of the preset matching TargetTemp, empty if none does.
  Preset string
  UpdatedAt time.Time
}

type Listener func(Snapshot)

type Coordinator struct {
  opts Options
  mug *ember.Mug
  store Store

  mu sync.Mutex
  available bool
  updatedAt time.Time
  targetBackup *float64
  lastRefreshWasFull bool

  listenerMu sync.Mutex
  listeners map[int]Listener
  nextListener int

  // serializes refreshes and commands on the mug, see lockOp
  opLock chan struct{}

  started atomic.Bool
}

// A nil store keeps the target temperature backup in memory only.
func New(mug *ember.Mug, store Store, opts Options) *Coordinator {
  if opts.Interval <= 0 {
    opts.Interval = DefaultInterval
  }

  if opts.RetryCooldown <= 0 {
    opts.RetryCooldown = DefaultRetryCooldown
  }

  return &Coordinator{
    opts: opts,
    mug: mug,
    store: store,
    listeners: make(map[int]Listener),
    opLock: make(chan struct{}, 1),
    // the first poll is a partial one, setup already did a full refresh.
    lastRefreshWasFull: true,
  }
}

func (c *Coordinator) Mug() *ember.Mug {
  return c.mug
}

func (c *Coordinator) Device() *ember.Device {
  return c.mug.Device()
}

func (c *Coordinator) String() string {
  return c.mug.String()
}

func (c *Coordinator) Available() bool {
  c.mu.Lock()
  defer c.mu.Unlock()

  return c.available
}

// Returns whether availability changed.
func (c *Coordinator) setAvailable(available bool, reason error) bool {
  c.mu.Lock()
  changed := c.available != available
  c.available = available
  c.mu.Unlock()

  if !changed {
    return false
  }

  if available {
    log.Info().Stringer("Device", c.mug).Msg("Mug is available")
  } else {
    log.Warn().Stringer("Device", c.mug).Err(reason).Msg("Mug is not available")
  }

  return true
}

// Target temperature in the unit the mug uses. While temperature control is off, the
// backed up target is reported instead so it can be shown and restored.
func (c *Coordinator) TargetTemp() float64 {
  data := c.mug.Data()

  c.mu.Lock()
  backup := c.targetBackup
  c.mu.Unlock()

  if data.TargetTemp == 0 && backup != nil && *backup != 0 {
    if data.UseMetric() {
      return *backup
    }

    return ember.CelsiusToFahrenheit(*backup)
  }

  return data.TargetTemp
}

func (c *Coordinator) Snapshot() Snapshot {
  data := c.mug.Data()
  target := c.TargetTemp()

  c.mu.Lock()
  defer c.mu.Unlock()

  s := Snapshot{
    Device: c.mug.Device(),
    Data: data,
    Available: c.available,
    Writable: c.mug.CanWrite(),
    TargetTemp: target,
    UpdatedAt: c.updatedAt,
  }

  if target != 0 {
    s.Preset, _ = c.mug.Device().Presets().Match(target, data.TemperatureUnit)
  }

  return s
}

// Register a listener called with a fresh snapshot whenever data or availability changes.
// Returns a function removing it.
func (c *Coordinator) AddListener(l Listener) (remove func()) {
  c.listenerMu.Lock()
  defer c.listenerMu.Unlock()

  id := c.nextListener
  c.nextListener += 1
  c.listeners[id] = l

  return func() {
    c.listenerMu.Lock()
    defer c.listenerMu.Unlock()

    delete(c.listeners, id)
  }
}

func (c *Coordinator) updateListeners() {
  snapshot := c.Snapshot()

  c.listenerMu.Lock()
  listeners := make([]Listener, 0, len(c.listeners))

  for _, l := range c.listeners {
    listeners = append(listeners, l)
  }

  c.listenerMu.Unlock()

  for _, l := range listeners {
    l(snapshot)
  }
}

// Wait for exclusive access to the mug, or until ctx is done.
func (c *Coordinator) lockOp(ctx context.Context) error {
  select {
  case c.opLock <- struct{}{}:
    return nil
  case <-ctx.Done():
    return ctx.Err()
  }
}

func (c *Coordinator) unlockOp() {
  <-c.opLock
}

func (c *Coordinator) touch() {
  c.mu.Lock()
  c.updatedAt = time.Now()
  c.mu.Unlock()
}

// Run the coordinator until ctx is cancelled: connect, poll every Interval, refresh on push
// events and reconnect when the mug goes away.
func (c *Coordinator) Run(ctx context.Context) error {
  if !c.started.CompareAndSwap(false, true) {
    panic("attempted to call coordinator.Run() twice")
  }

  log.Info().
    Stringer("Device", c.mug).
    Dur("Interval", c.opts.Interval).
    Dur("RetryCooldown", c.opts.RetryCooldown).
    Msg("Starting mug coordinator")

  c.loadBackup(ctx)

  unregister := c.mug.RegisterCallback(c.handleMugCallback)
  defer unregister()

  defer func() {
    if err := c.mug.Disconnect(); err != nil {
      log.Debug().Stringer("Device", c.mug).Err(err).Msg("Failed to disconnect on shutdown")
    }

    log.Info().Stringer("Device", c.mug).Msg("Mug coordinator is shutting down")
  }()

  for {
    if err := c.setup(ctx); err != nil {
      // only returns on cancellation
      return nil
    }

    c.poll(ctx)

    if ctx.Err() != nil {
      return nil
    }
  }
}

func (c *Coordinator) poll(ctx context.Context) {
  ticker := time.NewTicker(c.opts.Interval)
  defer ticker.Stop()

  for {
    var err error

    select {
    case <-ctx.Done():
      return
    case <-ticker.C:
      log.Trace().Stringer("Device", c.mug).Msg("Coordinator tick: refreshing...")
      err = c.Refresh(ctx)
    case <-c.mug.Notifications():
      log.Trace().Stringer("Device", c.mug).Msg("Push event received: refreshing queued attributes")
      err = c.refresh(ctx, false)
    }

    if err != nil {
      if ctx.Err() != nil {
        return
      }

      // drop the connection, setup will reconnect.
      c.dropConnection("Failed to drop connection")

      return
    }
  }
}

// Poll the mug once. Every other call is a full refresh, the rest only re-read attributes
// flagged by push events.
func (c *Coordinator) Refresh(ctx context.Context) error {
  c.mu.Lock()
  full := !c.lastRefreshWasFull
  c.mu.Unlock()

  if err := c.refresh(ctx, full); err != nil {
    return err
  }

  c.mu.Lock()
  c.lastRefreshWasFull = full
  c.mu.Unlock()

  return nil
}

func (c *Coordinator) refresh(ctx context.Context, full bool) error {
  if err := c.lockOp(ctx); err != nil {
    return err
  }

  var changes []ember.Change
  var err error

  if full {
    changes, err = c.mug.UpdateAll(ctx)
  } else {
    changes, err = c.mug.UpdateQueued(ctx)
  }

  c.unlockOp()

  kind := "Partial"

  if full {
    kind = "Full"
  }

  if err != nil {
    if ctx.Err() != nil {
      return ctx.Err()
    }

    if c.setAvailable(false, err) {
      c.updateListeners()
    }

    return fmt.Errorf("%w: %w", ErrUpdateFailed, err)
  }

  c.touch()

  log.Debug().
    Stringer("Device", c.mug).
    Str("Kind", kind).
    Int("Changes", len(changes)).
    Msg("Mug refreshed")

  if availabilityChanged := c.setAvailable(true, nil); availabilityChanged || len(changes) > 0 {
    c.updateListeners()
  }

  return nil
}

func (c *Coordinator) handleMugCallback(ember.Data) {
  log.Trace().Stringer("Device", c.mug).Msg("Mug state changed by push event")

  c.touch()
  c.updateListeners()
}
