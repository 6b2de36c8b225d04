package coordinator_test

import (
  "context"
  "errors"
  "testing"
  "time"

  "github.com/robertof/go-embermug-bridge/ble"
  "github.com/robertof/go-embermug-bridge/coordinator"
  "github.com/robertof/go-embermug-bridge/device"
  "github.com/robertof/go-embermug-bridge/device/ember"
  "github.com/stretchr/testify/assert"
  "github.com/stretchr/testify/require"
)

func TestSetTargetTemp(t *testing.T) {
  f := connectedFixture(t)
  ctx := context.Background()

  for _, temp := range []float64{0, -5, 40, 49.99, 63.01, 131} {
    require.ErrorIs(t, f.c.SetTargetTemp(ctx, temp), coordinator.ErrInvalidTemperature, "temp %v", temp)
  }

  assert.Empty(t, f.p.Writes())

  var snapshots []coordinator.Snapshot
  f.c.AddListener(func(s coordinator.Snapshot) {
    snapshots = append(snapshots, s)
  })

  require.NoError(t, f.c.SetTargetTemp(ctx, 58))
  assert.Equal(t, []byte{0xa8, 0x16}, f.p.LastWrite(ember.UUIDTargetTemperature))
  require.Len(t, snapshots, 1)
  assert.Equal(t, 58.0, snapshots[0].TargetTemp)
  assert.Empty(t, snapshots[0].Preset)

  backup, ok := f.store.get(f.c.Device().Addr())
  require.True(t, ok)
  assert.Equal(t, 58.0, backup)
}

func TestSetTargetTemp_Fahrenheit(t *testing.T) {
  f := connectedFixture(t)
  ctx := context.Background()

  f.p.Set(ember.UUIDTemperatureUnit, []byte{0x01})
  _, err := f.c.Mug().UpdateAll(ctx)
  require.NoError(t, err)

  require.ErrorIs(t, f.c.SetTargetTemp(ctx, 60), coordinator.ErrInvalidTemperature)
  require.NoError(t, f.c.SetTargetTemp(ctx, 140))
  assert.Equal(t, []byte{0x70, 0x17}, f.p.LastWrite(ember.UUIDTargetTemperature))

  // backups are kept in Celsius
  backup, _ := f.store.get(f.c.Device().Addr())
  assert.Equal(t, 60.0, backup)
}

func TestSetTargetTemp_FahrenheitBounds(t *testing.T) {
  f := connectedFixture(t)
  ctx := context.Background()

  require.NoError(t, f.c.SetTemperatureUnit(ctx, ember.Fahrenheit))

  min, max := coordinator.TempRange(ember.Fahrenheit)
  assert.Equal(t, 122.0, min)
  assert.Equal(t, 145.4, max)

  require.NoError(t, f.c.SetTargetTemp(ctx, 145.4))
  assert.Equal(t, []byte{0x9c, 0x18}, f.p.LastWrite(ember.UUIDTargetTemperature))

  require.NoError(t, f.c.SetTargetTemp(ctx, 122))
  assert.Equal(t, []byte{0x88, 0x13}, f.p.LastWrite(ember.UUIDTargetTemperature))

  for _, temp := range []float64{120, 121.9, 145.5} {
    require.ErrorIs(t, f.c.SetTargetTemp(ctx, temp), coordinator.ErrInvalidTemperature, "temp %v", temp)
  }
}

func TestSetTargetTempUnchecked(t *testing.T) {
  f := connectedFixture(t)
  ctx := context.Background()

  for _, temp := range []float64{0, -5} {
    require.ErrorIs(t, f.c.SetTargetTempUnchecked(ctx, temp), coordinator.ErrInvalidTemperature, "temp %v", temp)
  }

  require.ErrorIs(t, f.c.SetTargetTempUnchecked(ctx, 700), device.ErrInvalidData)
  assert.Empty(t, f.p.Writes())

  require.NoError(t, f.c.SetTargetTempUnchecked(ctx, 45))
  assert.Equal(t, []byte{0x94, 0x11}, f.p.LastWrite(ember.UUIDTargetTemperature))
  assert.Equal(t, 45.0, f.c.Snapshot().TargetTemp)

  backup, ok := f.store.get(f.c.Device().Addr())
  require.True(t, ok)
  assert.Equal(t, 45.0, backup)
}

func TestSetTemperatureControl(t *testing.T) {
  f := connectedFixture(t)
  ctx := context.Background()

  require.NoError(t, f.c.SetTemperatureControl(ctx, true))
  assert.Empty(t, f.p.Writes())

  require.NoError(t, f.c.SetTemperatureControl(ctx, false))
  assert.Equal(t, []byte{0x00, 0x00}, f.p.LastWrite(ember.UUIDTargetTemperature))
  assert.False(t, f.c.Snapshot().Data.TemperatureControlOn())
  assert.Equal(t, 55.0, f.c.TargetTemp())

  backup, ok := f.store.get(f.c.Device().Addr())
  require.True(t, ok)
  assert.Equal(t, 55.0, backup)

  require.NoError(t, f.c.SetTemperatureControl(ctx, true))
  assert.Equal(t, []byte{0x7c, 0x15}, f.p.LastWrite(ember.UUIDTargetTemperature))
  assert.Equal(t, 55.0, f.c.Snapshot().Data.TargetTemp)
}

func TestSetTemperatureControl_FailedWriteKeepsBackup(t *testing.T) {
  f := connectedFixture(t)
  ctx := context.Background()

  f.p.FailWrites(ember.UUIDTargetTemperature, errors.New("write failed"))

  require.Error(t, f.c.SetTemperatureControl(ctx, false))
  assert.True(t, f.c.Snapshot().Data.TemperatureControlOn())

  _, ok := f.store.get(f.c.Device().Addr())
  assert.False(t, ok)

  f.p.FailWrites(ember.UUIDTargetTemperature, nil)

  require.NoError(t, f.c.SetTemperatureControl(ctx, false))

  backup, ok := f.store.get(f.c.Device().Addr())
  require.True(t, ok)
  assert.Equal(t, 55.0, backup)
}

func TestTargetTempBackupRestoredOnStart(t *testing.T) {
  f := newFixture(t, "addr=c8:2b:96:0a:11:22", 0)
  f.p.Set(ember.UUIDTargetTemperature, []byte{0x00, 0x00})

  backup := 57.0
  require.NoError(t, f.store.SetTargetTempBackup(context.Background(), f.c.Device().Addr(), &backup))

  stop := runFixture(t, f)
  defer stop()

  require.Eventually(t, f.c.Available, time.Second, 5 * time.Millisecond)
  assert.Equal(t, 57.0, f.c.TargetTemp())
  assert.Equal(t, 0.0, f.c.Snapshot().Data.TargetTemp)
}

func TestSelectPreset(t *testing.T) {
  f := connectedFixture(t)
  ctx := context.Background()

  require.NoError(t, f.c.SelectPreset(ctx, "Tea"))
  assert.Equal(t, []byte{0x70, 0x17}, f.p.LastWrite(ember.UUIDTargetTemperature))
  assert.Equal(t, "Tea", f.c.Snapshot().Preset)

  require.ErrorIs(t, f.c.SelectPreset(ctx, "Hot chocolate"), coordinator.ErrUnknownPreset)
}

func TestCommands(t *testing.T) {
  f := connectedFixture(t)
  ctx := context.Background()

  require.NoError(t, f.c.SetLEDColour(ctx, ember.Colour{R: 1, G: 2, B: 3, A: 255}))
  assert.Equal(t, []byte{1, 2, 3, 255}, f.p.LastWrite(ember.UUIDLEDColour))

  require.NoError(t, f.c.SetMugName(ctx, "Desk mug"))
  assert.Equal(t, "Desk mug", f.c.Snapshot().Data.Name)
  require.ErrorIs(t, f.c.SetMugName(ctx, "no\nnewlines"), device.ErrInvalidData)

  require.NoError(t, f.c.SetTemperatureUnit(ctx, ember.Fahrenheit))
  assert.Equal(t, []byte{0x01}, f.p.LastWrite(ember.UUIDTemperatureUnit))
  assert.Equal(t, 131.0, f.c.Snapshot().Data.TargetTemp)

  require.ErrorIs(t, f.c.SetVolumeLevel(ctx, ember.VolumeHigh), device.ErrUnsupported)
}

func TestCommands_NotWritable(t *testing.T) {
  f := connectedFixture(t)
  ctx := context.Background()

  f.p.FailWrites(ember.UUIDLEDColour, ble.ErrWriteNotPerm)

  require.ErrorIs(t, f.c.SetLEDColour(ctx, ember.Colour{A: 255}), coordinator.ErrNotWritable)
  assert.False(t, f.c.Snapshot().Writable)

  require.ErrorIs(t, f.c.SetMugName(ctx, "Desk"), coordinator.ErrNotWritable)
  assert.Nil(t, f.p.LastWrite(ember.UUIDName))
}

func TestCommands_FailFastWhileDisconnected(t *testing.T) {
  // the mug never answers and Connect sits in its backoff between attempts
  f := newFixtureWithBackoff(t, "addr=c8:2b:96:0a:11:22", 1000, time.Hour)
  stop := runFixture(t, f)
  defer stop()

  require.Eventually(t, func() bool {
    return f.dialer.Attempts() >= 1
  }, time.Second, 5 * time.Millisecond)

  ctx, cancel := context.WithTimeout(context.Background(), time.Second)
  defer cancel()

  start := time.Now()

  require.ErrorIs(t, f.c.SetLEDColour(ctx, ember.Colour{A: 255}), ember.ErrNotConnected)
  require.ErrorIs(t, f.c.SetTargetTemp(ctx, 58), ember.ErrNotConnected)
  require.ErrorIs(t, f.c.SetMugName(ctx, "Desk"), ember.ErrNotConnected)

  assert.Less(t, time.Since(start), 100 * time.Millisecond)
  assert.Empty(t, f.p.Writes())
}

func TestDiagnostics(t *testing.T) {
  f := connectedFixture(t)

  d := f.c.Diagnostics()
  assert.Equal(t, "c8:2b:96:0a:11:22", d.Address)
  assert.Equal(t, "Heating", d.State)
  assert.Nil(t, d.Services)

  debug := newFixture(t, "addr=c8:2b:96:0a:11:22,debug=true", 0)
  require.NoError(t, debug.c.Mug().Connect(context.Background()))

  d = debug.c.Diagnostics()
  require.Contains(t, d.Services, ember.UUIDService.String())

  name := d.Services[ember.UUIDService.String()].Characteristics[ember.UUIDName.String()]
  require.NotNil(t, name.Value)
  assert.Equal(t, "4f6666696365206d7567", *name.Value)
  assert.Contains(t, name.Properties, "read")
}
