package utils

import (
  "errors"
  "net"
  "strings"
)

func ErrorIsAnyOf(err error, targets ...error) bool {
  for _, target := range targets {
    if errors.Is(err, target) {
      return true
    }
  }

  return false
}

// props to: https://stackoverflow.com/a/28058324
func Reverse[S ~[]E, E any](s S) S {
  out := make(S, len(s))
  copy(out, s)

  for i, j := 0, len(s)-1; i < j; i, j = i+1, j-1 {
    out[i], out[j] = out[j], out[i]
  }

  return out
}

// Lowercase hex digits of a MAC address without separators, e.g. "c90f59d633f9".
func AddrSlug(addr net.HardwareAddr) string {
  return strings.ToLower(strings.ReplaceAll(addr.String(), ":", ""))
}
