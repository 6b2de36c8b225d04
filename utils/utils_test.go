package utils_test

import (
  "errors"
  "fmt"
  "net"
  "reflect"
  "testing"

  "github.com/robertof/go-embermug-bridge/utils"
)

func TestReverse(t *testing.T) {
  in := []byte{1, 2, 3, 4, 5, 6}
  got := utils.Reverse(in)

  if want := []byte{6, 5, 4, 3, 2, 1}; !reflect.DeepEqual(got, want) {
    t.Fatalf("Reverse(%v): got %v, wanted %v", in, got, want)
  }

  if in[0] != 1 {
    t.Fatalf("Reverse modified its input: %v", in)
  }
}

func TestErrorIsAnyOf(t *testing.T) {
  errA, errB, errC := errors.New("a"), errors.New("b"), errors.New("c")
  wrapped := fmt.Errorf("context: %w", errB)

  if !utils.ErrorIsAnyOf(wrapped, errA, errB) {
    t.Fatalf("ErrorIsAnyOf(%v) did not match wrapped error", wrapped)
  }

  if utils.ErrorIsAnyOf(wrapped, errA, errC) {
    t.Fatalf("ErrorIsAnyOf(%v) matched unrelated errors", wrapped)
  }
}

func TestAddrSlug(t *testing.T) {
  addr, err := net.ParseMAC("C9:0F:59:D6:33:F9")

  if err != nil {
    t.Fatal(err)
  }

  if got := utils.AddrSlug(addr); got != "c90f59d633f9" {
    t.Fatalf("AddrSlug(%v): got %q", addr, got)
  }
}
