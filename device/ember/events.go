package ember

import (
  "strconv"
  "sync"

  "golang.org/x/exp/slices"
)

// PushEvent is the single byte the mug notifies on the push event characteristic whenever some
// of its state changed.
type PushEvent uint8

const (
  EventRefreshBattery PushEvent = 1
  EventCharging PushEvent = 2
  EventNotCharging PushEvent = 3
  EventRefreshTargetTemp PushEvent = 4
  EventRefreshDrinkTemp PushEvent = 5
  EventAuthInfoNotFound PushEvent = 6
  EventRefreshLiquidLevel PushEvent = 7
  EventRefreshLiquidState PushEvent = 8
  EventBatteryVoltageState PushEvent = 9
)

var eventNames = map[PushEvent]string{
  EventRefreshBattery: "refresh battery",
  EventCharging: "charging",
  EventNotCharging: "not charging",
  EventRefreshTargetTemp: "refresh target temperature",
  EventRefreshDrinkTemp: "refresh drink temperature",
  EventAuthInfoNotFound: "auth info not found",
  EventRefreshLiquidLevel: "refresh liquid level",
  EventRefreshLiquidState: "refresh liquid state",
  EventBatteryVoltageState: "battery voltage state changed",
}

var eventRefreshes = map[PushEvent][]Attr{
  EventRefreshBattery: {AttrBattery},
  EventCharging: {AttrBattery},
  EventNotCharging: {AttrBattery},
  EventRefreshTargetTemp: {AttrTargetTemp},
  EventRefreshDrinkTemp: {AttrCurrentTemp},
  EventAuthInfoNotFound: nil,
  EventRefreshLiquidLevel: {AttrLiquidLevel},
  EventRefreshLiquidState: {AttrLiquidState},
  EventBatteryVoltageState: {AttrBattery},
}

func (e PushEvent) Known() bool {
  _, ok := eventNames[e]
  return ok
}

func (e PushEvent) String() string {
  if name, ok := eventNames[e]; ok {
    return name
  }

  return "unknown(" + strconv.Itoa(int(e)) + ")"
}

// Attributes that need to be re-read after the event. Empty for unknown codes.
func (e PushEvent) Refreshes() []Attr {
  return slices.Clone(eventRefreshes[e])
}

// eventQueue collects the attributes invalidated by push events until the next poll drains
// them. The mug repeats the same code while a value keeps changing (e.g. the drink cooling
// down), so consecutive identical codes are collapsed until the queue is drained.
type eventQueue struct {
  mu sync.Mutex

  latest PushEvent
  hasLatest bool
  queued map[Attr]struct{}
}

// Record an event. Returns false when the event was a duplicate and was dropped.
func (q *eventQueue) push(e PushEvent) bool {
  q.mu.Lock()
  defer q.mu.Unlock()

  if q.hasLatest && q.latest == e {
    return false
  }

  q.latest, q.hasLatest = e, true

  if q.queued == nil {
    q.queued = make(map[Attr]struct{})
  }

  for _, attr := range eventRefreshes[e] {
    q.queued[attr] = struct{}{}
  }

  return true
}

// Take every queued attribute, in refresh order.
func (q *eventQueue) drain() (attrs []Attr) {
  q.mu.Lock()
  defer q.mu.Unlock()

  for _, attr := range updateOrder {
    if _, ok := q.queued[attr]; ok {
      attrs = append(attrs, attr)
    }
  }

  q.queued = nil
  q.hasLatest = false

  return attrs
}

func (q *eventQueue) pending() int {
  q.mu.Lock()
  defer q.mu.Unlock()

  return len(q.queued)
}
