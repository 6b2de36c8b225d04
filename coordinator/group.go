package coordinator

import (
  "context"
  "sort"

  "github.com/robertof/go-embermug-bridge/utils"
  "github.com/rs/zerolog/log"
  "golang.org/x/exp/maps"
  "golang.org/x/sync/errgroup"
)

// Group runs the coordinators of every configured mug.
type Group struct {
  coordinators map[string]*Coordinator
}

func NewGroup(coordinators ...*Coordinator) *Group {
  g := &Group{coordinators: make(map[string]*Coordinator, len(coordinators))}

  for _, c := range coordinators {
    g.coordinators[c.Device().ID()] = c
  }

  return g
}

// Coordinator by device ID.
func (g *Group) Get(id string) (*Coordinator, bool) {
  c, ok := g.coordinators[id]
  return c, ok
}

// Coordinators sorted by device ID.
func (g *Group) All() []*Coordinator {
  ids := maps.Keys(g.coordinators)
  sort.Strings(ids)

  out := make([]*Coordinator, 0, len(ids))

  for _, id := range ids {
    out = append(out, g.coordinators[id])
  }

  return out
}

func (g *Group) Snapshots() []Snapshot {
  all := g.All()
  out := make([]Snapshot, 0, len(all))

  for _, c := range all {
    out = append(out, c.Snapshot())
  }

  return out
}

// Run every coordinator until ctx is cancelled.
func (g *Group) Run(ctx context.Context) error {
  var eg errgroup.Group

  log.Debug().
    Array("Devices", utils.ToZeroLogArray(g.All())).
    Msg("Starting coordinators")

  for _, c := range g.All() {
    c := c

    eg.Go(func() error {
      return c.Run(ctx)
    })
  }

  return eg.Wait()
}
