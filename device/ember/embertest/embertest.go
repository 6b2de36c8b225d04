// Package embertest provides an in-memory Ember peripheral implementing the GATT calls used by
// the ember package, for tests that can't rely on Bluetooth hardware.
package embertest

import (
  "context"
  "errors"
  "net"
  "sync"

  goble "github.com/go-ble/ble"
  "github.com/robertof/go-embermug-bridge/ble"
  "github.com/robertof/go-embermug-bridge/device/ember"
)

var ErrDialFailed = errors.New("embertest: dial failed")

type Write struct {
  UUID string
  Value []byte
}

// Peripheral holds characteristic values shared by every connection made to it. Writes update
// the stored values so that later reads observe them, like on a real mug.
type Peripheral struct {
  mu sync.Mutex

  profile *ble.Profile
  values map[string][]byte
  readErrs map[string]error
  writeErrs map[string]error
  writes []Write
  conns []*Conn
}

// Default characteristic values: a mug at 54.5°C heating towards 55°C, 85% battery on its
// base, full, red LED.
func DefaultValues() map[string][]byte {
  return map[string][]byte{
    ember.UUIDName.String(): []byte("Office mug"),
    ember.UUIDCurrentTemperature.String(): {0x4a, 0x15},
    ember.UUIDTargetTemperature.String(): {0x7c, 0x15},
    ember.UUIDTemperatureUnit.String(): {0x00},
    ember.UUIDLiquidLevel.String(): {0x1e},
    ember.UUIDBattery.String(): {0x55, 0x01},
    ember.UUIDLiquidState.String(): {0x05},
    ember.UUIDVolumeLevel.String(): {0x01},
    ember.UUIDFirmware.String(): {0x99, 0x01, 0xe8, 0x03, 0x00, 0x01},
    ember.UUIDMugID.String(): {0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x00, 'D', 'C', '2', '3', '4', '5'},
    ember.UUIDDSK.String(): {0xde, 0xad, 0xbe, 0xef},
    ember.UUIDUDSK.String(): {0xca, 0xfe},
    ember.UUIDLEDColour.String(): {0xff, 0x00, 0x00, 0xff},
  }
}

func NewProfile() *ble.Profile {
  svc := &goble.Service{UUID: ember.UUIDService}

  for _, uuid := range ember.CharacteristicUUIDs() {
    prop := goble.CharRead | goble.CharWrite

    if uuid.Equal(ember.UUIDPushEvent) {
      prop = goble.CharNotify
    }

    svc.Characteristics = append(svc.Characteristics, &goble.Characteristic{
      UUID: uuid,
      Property: prop,
    })
  }

  return &goble.Profile{Services: []*goble.Service{svc}}
}

func NewPeripheral() *Peripheral {
  return &Peripheral{
    profile: NewProfile(),
    values: DefaultValues(),
    readErrs: make(map[string]error),
    writeErrs: make(map[string]error),
  }
}

func (p *Peripheral) Set(uuid ble.UUID, data []byte) {
  p.mu.Lock()
  defer p.mu.Unlock()

  p.values[uuid.String()] = data
}

func (p *Peripheral) Value(uuid ble.UUID) []byte {
  p.mu.Lock()
  defer p.mu.Unlock()

  return p.values[uuid.String()]
}

// Make reads of uuid fail with err. A nil err clears the failure.
func (p *Peripheral) FailReads(uuid ble.UUID, err error) {
  p.mu.Lock()
  defer p.mu.Unlock()

  p.readErrs[uuid.String()] = err
}

func (p *Peripheral) FailWrites(uuid ble.UUID, err error) {
  p.mu.Lock()
  defer p.mu.Unlock()

  p.writeErrs[uuid.String()] = err
}

func (p *Peripheral) Writes() []Write {
  p.mu.Lock()
  defer p.mu.Unlock()

  return append([]Write(nil), p.writes...)
}

// Last write to uuid, nil if none.
func (p *Peripheral) LastWrite(uuid ble.UUID) []byte {
  p.mu.Lock()
  defer p.mu.Unlock()

  for i := len(p.writes) - 1; i >= 0; i -= 1 {
    if p.writes[i].UUID == uuid.String() {
      return p.writes[i].Value
    }
  }

  return nil
}

func (p *Peripheral) Connect() *Conn {
  p.mu.Lock()
  defer p.mu.Unlock()

  c := &Conn{
    p: p,
    handlers: make(map[string]ble.NotificationHandler),
    disconnected: make(chan struct{}),
  }

  p.conns = append(p.conns, c)

  return c
}

// Most recent connection, nil if never connected.
func (p *Peripheral) Conn() *Conn {
  p.mu.Lock()
  defer p.mu.Unlock()

  if len(p.conns) == 0 {
    return nil
  }

  return p.conns[len(p.conns) - 1]
}

// Send a push event through the most recent connection.
func (p *Peripheral) Push(event ember.PushEvent) {
  if c := p.Conn(); c != nil {
    c.Notify(ember.UUIDPushEvent, []byte{byte(event)})
  }
}

type Conn struct {
  p *Peripheral

  mu sync.Mutex
  handlers map[string]ble.NotificationHandler
  unsubscribed []string
  SubscribeErr error

  disconnected chan struct{}
  once sync.Once
}

func (c *Conn) DiscoverProfile(force bool) (*ble.Profile, error) {
  return c.p.profile, nil
}

func (c *Conn) ReadCharacteristic(char *ble.Characteristic) ([]byte, error) {
  c.p.mu.Lock()
  defer c.p.mu.Unlock()

  key := char.UUID.String()

  if err := c.p.readErrs[key]; err != nil {
    return nil, err
  }

  v, ok := c.p.values[key]

  if !ok {
    return nil, ble.ErrReadNotPerm
  }

  return append([]byte(nil), v...), nil
}

func (c *Conn) WriteCharacteristic(char *ble.Characteristic, value []byte, noRsp bool) error {
  c.p.mu.Lock()
  defer c.p.mu.Unlock()

  key := char.UUID.String()

  if err := c.p.writeErrs[key]; err != nil {
    return err
  }

  v := append([]byte(nil), value...)
  c.p.writes = append(c.p.writes, Write{UUID: key, Value: v})
  c.p.values[key] = v

  return nil
}

func (c *Conn) Subscribe(char *ble.Characteristic, ind bool, h ble.NotificationHandler) error {
  c.mu.Lock()
  defer c.mu.Unlock()

  if c.SubscribeErr != nil {
    return c.SubscribeErr
  }

  c.handlers[char.UUID.String()] = h

  return nil
}

func (c *Conn) Unsubscribe(char *ble.Characteristic, ind bool) error {
  c.mu.Lock()
  defer c.mu.Unlock()

  delete(c.handlers, char.UUID.String())
  c.unsubscribed = append(c.unsubscribed, char.UUID.String())

  return nil
}

func (c *Conn) Subscribed(uuid ble.UUID) bool {
  c.mu.Lock()
  defer c.mu.Unlock()

  _, ok := c.handlers[uuid.String()]
  return ok
}

func (c *Conn) Unsubscribed() []string {
  c.mu.Lock()
  defer c.mu.Unlock()

  return append([]string(nil), c.unsubscribed...)
}

// Deliver a notification synchronously. No-op when nothing is subscribed to uuid.
func (c *Conn) Notify(uuid ble.UUID, data []byte) {
  c.mu.Lock()
  h := c.handlers[uuid.String()]
  c.mu.Unlock()

  if h != nil {
    h(data)
  }
}

func (c *Conn) CancelConnection() error {
  c.once.Do(func() {
    close(c.disconnected)
  })

  return nil
}

func (c *Conn) Disconnected() <-chan struct{} {
  return c.disconnected
}

// Simulate the mug going out of range.
func (c *Conn) Drop() {
  c.CancelConnection()
}

// Dialer connects to Peripheral, failing the first FailFirst attempts.
type Dialer struct {
  Peripheral *Peripheral
  FailFirst int

  mu sync.Mutex
  attempts int
}

func (d *Dialer) Dial(ctx context.Context, addr net.HardwareAddr) (ember.Conn, error) {
  d.mu.Lock()
  d.attempts += 1
  attempt := d.attempts
  d.mu.Unlock()

  if err := ctx.Err(); err != nil {
    return nil, err
  }

  if attempt <= d.FailFirst {
    return nil, ErrDialFailed
  }

  return d.Peripheral.Connect(), nil
}

func (d *Dialer) Attempts() int {
  d.mu.Lock()
  defer d.mu.Unlock()

  return d.attempts
}

// Let later Dial calls succeed.
func (d *Dialer) Recover() {
  d.mu.Lock()
  defer d.mu.Unlock()

  d.FailFirst = 0
}
