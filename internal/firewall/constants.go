//go:build linux
// +build linux

package firewall

import "golang.org/x/sys/unix"

// Protocol constants for rule generation
const (
	ProtoIPv4 = unix.NFPROTO_IPV4
	ProtoIPv6 = unix.NFPROTO_IPV6
)

const (
	// IP Header Constants
	IPv6AddrLen = 16
	IPv4AddrLen = 4

	// Source address offsets (RFC 791, RFC 8200)
	IPv4SrcOffset = 12
	IPv6SrcOffset = 8
)
