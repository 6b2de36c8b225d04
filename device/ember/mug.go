package ember

import (
  "context"
  "errors"
  "fmt"
  "sync"
  "time"

  "github.com/robertof/go-embermug-bridge/ble"
  "github.com/robertof/go-embermug-bridge/device"
  "github.com/robertof/go-embermug-bridge/utils"
  "github.com/rs/zerolog/log"
)

const (
  DefaultConnectAttempts = 10
  DefaultConnectBackoff = 30 * time.Second
)

var (
  ErrConnectionFailed = errors.New("connection failed")
  ErrNotConnected = errors.New("not connected")
  ErrNotWritable = errors.New("device is not writable")
)

var attrUUIDs = map[Attr]ble.UUID{
  AttrName: UUIDName,
  AttrMeta: UUIDMugID,
  AttrFirmware: UUIDFirmware,
  AttrLEDColour: UUIDLEDColour,
  AttrCurrentTemp: UUIDCurrentTemperature,
  AttrTargetTemp: UUIDTargetTemperature,
  AttrTemperatureUnit: UUIDTemperatureUnit,
  AttrBattery: UUIDBattery,
  AttrLiquidLevel: UUIDLiquidLevel,
  AttrLiquidState: UUIDLiquidState,
  AttrVolumeLevel: UUIDVolumeLevel,
  AttrDSK: UUIDDSK,
  AttrUDSK: UUIDUDSK,
}

type ConnectOptions struct {
  // Dial attempts before Connect gives up with ErrConnectionFailed.
  MaxAttempts int
  // Fixed wait between attempts.
  Backoff time.Duration
}

// Mug is the GATT client for a single Ember device. Its state is updated by explicit refreshes
// and by push events, and may be read concurrently with both.
type Mug struct {
  dev *Device
  dialer Dialer
  opts ConnectOptions

  connMu sync.Mutex
  conn Conn
  chars map[string]*ble.Characteristic

  mu sync.RWMutex
  data Data
  writable bool

  events eventQueue
  notify chan struct{}

  cbMu sync.Mutex
  callbacks map[int]func(Data)
  nextCallback int
}

func NewMug(dev *Device, dialer Dialer, opts ConnectOptions) *Mug {
  if opts.MaxAttempts <= 0 {
    opts.MaxAttempts = DefaultConnectAttempts
  }

  if opts.Backoff <= 0 {
    opts.Backoff = DefaultConnectBackoff
  }

  return &Mug{
    dev: dev,
    dialer: dialer,
    opts: opts,
    writable: true,
    notify: make(chan struct{}, 1),
    callbacks: make(map[int]func(Data)),
    data: Data{
      Model: ModelInfo{Type: DeviceTypeUnknown, Name: "Ember Device"},
    },
  }
}

func (m *Mug) Device() *Device {
  return m.dev
}

func (m *Mug) String() string {
  return m.dev.String()
}

// Snapshot of the current state.
func (m *Mug) Data() Data {
  m.mu.RLock()
  defer m.mu.RUnlock()

  return m.data
}

func (m *Mug) Model() ModelInfo {
  m.mu.RLock()
  defer m.mu.RUnlock()

  return m.data.Model
}

func (m *Mug) SetModel(info ModelInfo) {
  m.mu.Lock()
  defer m.mu.Unlock()

  m.data.Model = info
}

// False once the mug refused a write for lack of permission (no pairing or UDSK).
func (m *Mug) CanWrite() bool {
  m.mu.RLock()
  defer m.mu.RUnlock()

  return m.writable
}

func (m *Mug) Connected() bool {
  m.connMu.Lock()
  defer m.connMu.Unlock()

  return m.conn != nil
}

// Signalled when push events queued attributes for a refresh.
func (m *Mug) Notifications() <-chan struct{} {
  return m.notify
}

// Register a callback run after push events changed the state. Returns a function removing it.
func (m *Mug) RegisterCallback(f func(Data)) (unregister func()) {
  m.cbMu.Lock()
  defer m.cbMu.Unlock()

  id := m.nextCallback
  m.nextCallback += 1
  m.callbacks[id] = f

  return func() {
    m.cbMu.Lock()
    defer m.cbMu.Unlock()

    delete(m.callbacks, id)
  }
}

func (m *Mug) runCallbacks(d Data) {
  m.cbMu.Lock()
  callbacks := make([]func(Data), 0, len(m.callbacks))

  for _, f := range m.callbacks {
    callbacks = append(callbacks, f)
  }

  m.cbMu.Unlock()

  for _, f := range callbacks {
    f(d)
  }
}

// Connect to the mug, trying up to MaxAttempts times with a fixed backoff, then subscribe to
// push events. A failed subscription is only logged. No-op when already connected.
func (m *Mug) Connect(ctx context.Context) error {
  if m.Connected() {
    return nil
  }

  var lastErr error

  for attempt := 1; attempt <= m.opts.MaxAttempts; attempt += 1 {
    err := m.connectOnce(ctx)

    if err == nil {
      log.Info().Stringer("Device", m.dev).Int("Attempt", attempt).Msg("Connected to mug")
      return nil
    }

    lastErr = err

    if ctx.Err() != nil {
      return ctx.Err()
    }

    log.Warn().
      Stringer("Device", m.dev).
      Err(err).
      Int("Attempt", attempt).
      Int("MaxAttempts", m.opts.MaxAttempts).
      Dur("Backoff", m.opts.Backoff).
      Msg("Failed to connect to mug")

    if attempt == m.opts.MaxAttempts {
      break
    }

    select {
    case <-ctx.Done():
      return ctx.Err()
    case <-time.After(m.opts.Backoff):
    }
  }

  return fmt.Errorf("%w: %v after %d attempts: %w", ErrConnectionFailed, m.dev, m.opts.MaxAttempts, lastErr)
}

func (m *Mug) connectOnce(ctx context.Context) error {
  conn, err := m.dialer.Dial(ctx, m.dev.Addr())

  if err != nil {
    return fmt.Errorf("failed to connect to device: %w", err)
  }

  profile, err := conn.DiscoverProfile(false)

  if err != nil {
    conn.CancelConnection()
    return fmt.Errorf("cannot discover profile for device: %w", err)
  }

  chars := ble.FindCharacteristics(profile, UUIDService, allUUIDs)

  if chars[UUIDCurrentTemperature.String()] == nil {
    conn.CancelConnection()
    return fmt.Errorf("%w: no Ember service found", device.ErrUnsupported)
  }

  log.Debug().
    Stringer("Device", m.dev).
    Int("Characteristics", len(chars)).
    Msg("Resolved mug characteristics")

  m.connMu.Lock()
  m.conn, m.chars = conn, chars
  m.connMu.Unlock()

  if push := chars[UUIDPushEvent.String()]; push == nil {
    log.Warn().Stringer("Device", m.dev).Msg("Mug has no push event characteristic, relying on polling")
  } else if err := conn.Subscribe(push, false, m.handlePushEvent); err != nil {
    log.Warn().Stringer("Device", m.dev).Err(err).Msg("Failed to subscribe to push events")
  }

  go m.watch(conn)

  return nil
}

func (m *Mug) watch(conn Conn) {
  <-conn.Disconnected()

  m.connMu.Lock()
  defer m.connMu.Unlock()

  if m.conn == conn {
    log.Info().Stringer("Device", m.dev).Msg("Mug disconnected")
    m.conn, m.chars = nil, nil
  }
}

// Unsubscribe from push events (best effort) and drop the connection.
func (m *Mug) Disconnect() error {
  m.connMu.Lock()
  conn, chars := m.conn, m.chars
  m.conn, m.chars = nil, nil
  m.connMu.Unlock()

  if conn == nil {
    return nil
  }

  if push := chars[UUIDPushEvent.String()]; push != nil {
    if err := conn.Unsubscribe(push, false); err != nil {
      log.Debug().Stringer("Device", m.dev).Err(err).Msg("Failed to unsubscribe from push events")
    }
  }

  if err := conn.CancelConnection(); err != nil {
    return fmt.Errorf("failed to disconnect from %v: %w", m.dev, err)
  }

  return nil
}

func (m *Mug) characteristic(uuid ble.UUID) (Conn, *ble.Characteristic, error) {
  m.connMu.Lock()
  defer m.connMu.Unlock()

  if m.conn == nil {
    return nil, nil, ErrNotConnected
  }

  char := m.chars[uuid.String()]

  if char == nil {
    return nil, nil, fmt.Errorf("%w: characteristic %v not found", device.ErrUnsupported, uuid)
  }

  return m.conn, char, nil
}

func (m *Mug) read(uuid ble.UUID) ([]byte, error) {
  conn, char, err := m.characteristic(uuid)

  if err != nil {
    return nil, err
  }

  data, err := conn.ReadCharacteristic(char)

  if err != nil {
    return nil, fmt.Errorf("failed to read characteristic '%v': %w", uuid, err)
  }

  log.Trace().Stringer("Device", m.dev).Stringer("UUID", uuid).Hex("Data", data).Msg("Read characteristic")

  return data, nil
}

func (m *Mug) write(uuid ble.UUID, value []byte) error {
  conn, char, err := m.characteristic(uuid)

  if err != nil {
    return err
  }

  log.Debug().Stringer("Device", m.dev).Stringer("UUID", uuid).Hex("Data", value).Msg("Writing characteristic")

  if err := conn.WriteCharacteristic(char, value, false); err != nil {
    if utils.ErrorIsAnyOf(err, ble.ErrWriteNotPerm, ble.ErrInsufficientAuthentication) {
      m.mu.Lock()
      m.writable = false
      m.mu.Unlock()

      return fmt.Errorf("%w: writing '%v': %w", ErrNotWritable, uuid, err)
    }

    return fmt.Errorf("failed to write characteristic '%v': %w", uuid, err)
  }

  return nil
}

func (m *Mug) fetchTemperature(uuid ble.UUID) (float64, error) {
  data, err := m.read(uuid)

  if err != nil {
    return 0, err
  }

  temp, err := DecodeTemperature(data)

  if err != nil {
    return 0, err
  }

  if !m.Data().UseMetric() {
    temp = CelsiusToFahrenheit(temp)
  }

  return temp, nil
}

func (m *Mug) fetch(attr Attr) (any, error) {
  switch attr {
  case AttrCurrentTemp, AttrTargetTemp:
    return m.fetchTemperature(attrUUIDs[attr])
  }

  uuid, ok := attrUUIDs[attr]

  if !ok {
    return nil, fmt.Errorf("%w: attribute %q", device.ErrUnsupported, attr)
  }

  data, err := m.read(uuid)

  if err != nil {
    return nil, err
  }

  switch attr {
  case AttrName:
    return DecodeName(data)
  case AttrMeta:
    meta, err := DecodeMugMeta(data)
    return &meta, err
  case AttrFirmware:
    fw, err := DecodeFirmware(data)
    return &fw, err
  case AttrLEDColour:
    return DecodeColour(data)
  case AttrTemperatureUnit:
    return DecodeTemperatureUnit(data)
  case AttrBattery:
    battery, err := DecodeBattery(data)
    return &battery, err
  case AttrLiquidLevel:
    return DecodeLiquidLevel(data)
  case AttrLiquidState:
    return DecodeLiquidState(data)
  case AttrVolumeLevel:
    level, err := DecodeVolumeLevel(data)
    return &level, err
  case AttrDSK, AttrUDSK:
    return DecodeKey(data), nil
  }

  return nil, fmt.Errorf("%w: attribute %q", device.ErrUnsupported, attr)
}

func (m *Mug) apply(attr Attr, v any) (Change, bool) {
  m.mu.Lock()
  defer m.mu.Unlock()

  if attr == AttrTemperatureUnit {
    m.convertTemperatures(v.(TemperatureUnit))
  }

  return m.data.update(attr, v)
}

// Keep the stored temperatures in the unit the mug displays.
func (m *Mug) convertTemperatures(unit TemperatureUnit) {
  if unit == m.data.TemperatureUnit {
    return
  }

  convert := CelsiusToFahrenheit

  if unit == Celsius {
    convert = FahrenheitToCelsius
  }

  if m.data.CurrentTemp != 0 {
    m.data.CurrentTemp = convert(m.data.CurrentTemp)
  }

  if m.data.TargetTemp != 0 {
    m.data.TargetTemp = convert(m.data.TargetTemp)
  }
}

func (m *Mug) refresh(ctx context.Context, attrs []Attr) (changes []Change, err error) {
  for _, attr := range attrs {
    if err := ctx.Err(); err != nil {
      return changes, err
    }

    v, err := m.fetch(attr)

    if err != nil {
      // some firmwares lack or lock optional characteristics; that's not a failed poll.
      if utils.ErrorIsAnyOf(err, device.ErrUnsupported, ble.ErrReadNotPerm) {
        log.Debug().Stringer("Device", m.dev).Str("Attr", string(attr)).Err(err).Msg("Skipping attribute")
        continue
      }

      return changes, fmt.Errorf("failed to update %s: %w", attr, err)
    }

    if change, ok := m.apply(attr, v); ok {
      log.Debug().Stringer("Device", m.dev).Stringer("Change", change).Msg("Mug attribute changed")
      changes = append(changes, change)
    }
  }

  return changes, nil
}

// Read the attributes that never change while connected and sync the mug clock.
func (m *Mug) UpdateInitial(ctx context.Context) ([]Change, error) {
  changes, err := m.refresh(ctx, initialAttrs)

  if err != nil {
    return changes, err
  }

  if err := m.SetTime(time.Now()); err != nil {
    log.Debug().Stringer("Device", m.dev).Err(err).Msg("Failed to set mug time")
  }

  return changes, nil
}

// Re-read every attribute the model supports. Pending push events are superseded.
func (m *Mug) UpdateAll(ctx context.Context) ([]Change, error) {
  m.events.drain()

  return m.refresh(ctx, m.Model().Attributes())
}

// Re-read only the attributes push events flagged since the last update. Fails when not
// connected even if nothing is queued.
func (m *Mug) UpdateQueued(ctx context.Context) ([]Change, error) {
  if !m.Connected() {
    return nil, ErrNotConnected
  }

  model := m.Model()

  var attrs []Attr

  for _, attr := range m.events.drain() {
    if model.HasAttribute(attr) {
      attrs = append(attrs, attr)
    }
  }

  if len(attrs) == 0 {
    return nil, nil
  }

  log.Debug().
    Stringer("Device", m.dev).
    Array("Attrs", utils.ToZeroLogStrArray(attrs)).
    Msg("Updating queued attributes")

  return m.refresh(ctx, attrs)
}

func (m *Mug) PendingUpdates() int {
  return m.events.pending()
}

func (m *Mug) handlePushEvent(req []byte) {
  if len(req) == 0 {
    return
  }

  ble.CountNotification(m.dev.Addr())
  event := PushEvent(req[0])

  if !m.events.push(event) {
    log.Trace().Stringer("Device", m.dev).Stringer("Event", event).Msg("Skipping repeated push event")
    return
  }

  if !event.Known() {
    log.Warn().Stringer("Device", m.dev).Uint8("EventID", req[0]).Msg("Unknown push event received")
    return
  }

  log.Debug().Stringer("Device", m.dev).Stringer("Event", event).Msg("Push event received from mug")

  if event == EventCharging || event == EventNotCharging {
    m.mu.Lock()

    battery := Battery{}

    if m.data.Battery != nil {
      battery = *m.data.Battery
    }

    battery.OnChargingBase = event == EventCharging
    _, changed := m.data.update(AttrBattery, &battery)
    snapshot := m.data

    m.mu.Unlock()

    if changed {
      m.runCallbacks(snapshot)
    }
  }

  if len(eventRefreshes[event]) > 0 {
    select {
    case m.notify <- struct{}{}:
    default:
    }
  }
}

func (m *Mug) writeAttr(attr Attr, payload []byte, v any) error {
  if !m.Model().HasAttribute(attr) {
    return fmt.Errorf("%w: %v has no %s", device.ErrUnsupported, m.Model(), attr)
  }

  if err := m.write(attrUUIDs[attr], payload); err != nil {
    return err
  }

  m.apply(attr, v)

  return nil
}

func (m *Mug) SetLEDColour(c Colour) error {
  return m.writeAttr(AttrLEDColour, c.Bytes(), c)
}

// Set the target temperature, expressed in the unit the mug currently uses. 0 turns the
// temperature control off.
func (m *Mug) SetTargetTemp(temp float64) error {
  celsius := temp

  if !m.Data().UseMetric() && temp != 0 {
    celsius = FahrenheitToCelsius(temp)
  }

  payload, err := EncodeTemperature(celsius)

  if err != nil {
    return err
  }

  return m.writeAttr(AttrTargetTemp, payload, round2(temp))
}

func (m *Mug) SetTemperatureUnit(unit TemperatureUnit) error {
  return m.writeAttr(AttrTemperatureUnit, []byte{byte(unit)}, unit)
}

func (m *Mug) SetVolumeLevel(level VolumeLevel) error {
  return m.writeAttr(AttrVolumeLevel, []byte{byte(level)}, &level)
}

func (m *Mug) SetName(name string) error {
  payload, err := EncodeName(name)

  if err != nil {
    return err
  }

  return m.writeAttr(AttrName, payload, name)
}

func (m *Mug) SetUDSK(key string) error {
  payload, err := EncodeKey(key)

  if err != nil {
    return err
  }

  return m.writeAttr(AttrUDSK, payload, key)
}

func (m *Mug) SetTime(t time.Time) error {
  return m.write(UUIDTimeDateZone, EncodeTime(t))
}
