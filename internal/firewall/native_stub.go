//go:build !linux
// +build !linux

package firewall

import "fmt"

// NativeBackend is only available on Linux.
type NativeBackend struct{ Backend }

// NewNativeBackend always fails off Linux.
func NewNativeBackend(spec ChainSpec) (*NativeBackend, error) {
	return nil, fmt.Errorf("netlink backend requires linux")
}
