package device

import (
	"fmt"
	"sort"
)

type Factory interface {
	FromSpec(spec DeviceSpec) (Device, error)
}

type FactoryDocs interface {
	Help() string
}

// Factories maps a device kind, used both as CLI flag and as `kind` in the config file, to
// the factory building it.
type Factories map[string]Factory

func (f Factories) Kinds() []string {
	kinds := make([]string, 0, len(f))

	for kind := range f {
		kinds = append(kinds, kind)
	}

	sort.Strings(kinds)

	return kinds
}

func (f Factories) FromSpec(kind string, spec DeviceSpec) (Device, error) {
	factory, ok := f[kind]

	if !ok {
		return nil, fmt.Errorf("unknown device kind %q (supported: %v)", kind, f.Kinds())
	}

	dev, err := factory.FromSpec(spec)

	if err != nil {
		return nil, fmt.Errorf("failed to create %s device: %w", kind, err)
	}

	return dev, nil
}
