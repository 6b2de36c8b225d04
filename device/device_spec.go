package device

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
)

type DeviceSpec map[string]string

const (
  DeviceSpecFieldName = "name"
  DeviceSpecFieldAddress = "addr"
)

func NewDeviceSpec(s string) DeviceSpec {
  spec := DeviceSpec{}
  entries := strings.Split(s, ",")

  for _, entry := range entries {
    if strings.TrimSpace(entry) == "" {
      continue
    }

    parts := strings.SplitN(entry, "=", 2)

    if len(parts) != 2 {
      log.Warn().Str("Entry", entry).Msg("Skipping invalid device spec entry")
      continue
    }

    spec[strings.ToLower(strings.TrimSpace(parts[0]))] = strings.TrimSpace(parts[1])
  }

  return spec
}

func (ds DeviceSpec) Name() string {
  return ds[DeviceSpecFieldName]
}

func (ds DeviceSpec) Addr() string {
  return ds[DeviceSpecFieldAddress]
}

// Boolean field; missing keys return def. Accepts yes/no on top of strconv.ParseBool.
func (ds DeviceSpec) Bool(key string, def bool) (bool, error) {
  v, ok := ds[key]

  if !ok || v == "" {
    return def, nil
  }

  switch strings.ToLower(v) {
  case "yes", "y", "on":
    return true, nil
  case "no", "n", "off":
    return false, nil
  }

  b, err := strconv.ParseBool(v)

  if err != nil {
    return def, fmt.Errorf("invalid boolean for %q: %w", key, err)
  }

  return b, nil
}
