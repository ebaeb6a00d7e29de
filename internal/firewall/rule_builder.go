//go:build linux
// +build linux

package firewall

import (
	"fmt"
	"net"
	"net/netip"

	"github.com/google/nftables"
	"github.com/google/nftables/expr"
	"golang.org/x/sys/unix"
)

// tableFamily maps a family name onto its nftables value.
func tableFamily(family string) (nftables.TableFamily, error) {
	switch family {
	case FamilyINet:
		return nftables.TableFamilyINet, nil
	case FamilyIPv4:
		return nftables.TableFamilyIPv4, nil
	case FamilyIPv6:
		return nftables.TableFamilyIPv6, nil
	default:
		return 0, fmt.Errorf("unsupported family %q", family)
	}
}

// buildSourceMatch builds expressions matching the packet source against src.
func buildSourceMatch(src netip.Prefix) []expr.Any {
	var exprs []expr.Any

	addr := src.Addr()
	isIPv6 := addr.Is6()

	// Check the protocol first so an inet table never compares an IPv4
	// address against bytes of an IPv6 header or the reverse.
	proto := byte(ProtoIPv4)
	offset := uint32(IPv4SrcOffset)
	lenBytes := uint32(IPv4AddrLen)
	totalBits := 32
	if isIPv6 {
		proto = byte(ProtoIPv6)
		offset = IPv6SrcOffset
		lenBytes = IPv6AddrLen
		totalBits = 128
	}

	exprs = append(exprs, &expr.Meta{Key: expr.MetaKeyNFPROTO, Register: 1})
	exprs = append(exprs, &expr.Cmp{
		Op:       expr.CmpOpEq,
		Register: 1,
		Data:     []byte{proto},
	})

	// Load source address from packet
	exprs = append(exprs, &expr.Payload{
		DestRegister: 1,
		Base:         expr.PayloadBaseNetworkHeader,
		Offset:       offset,
		Len:          lenBytes,
	})

	// Apply netmask if not a full host match
	if src.Bits() < totalBits {
		exprs = append(exprs, &expr.Bitwise{
			SourceRegister: 1,
			DestRegister:   1,
			Len:            lenBytes,
			Mask:           net.CIDRMask(src.Bits(), totalBits),
			Xor:            make([]byte, lenBytes),
		})
	}

	exprs = append(exprs, &expr.Cmp{
		Op:       expr.CmpOpEq,
		Register: 1,
		Data:     src.Masked().Addr().AsSlice(),
	})

	return exprs
}

// buildVerdict builds the terminal statement for action.
func buildVerdict(action Action, family nftables.TableFamily, isIPv6 bool) []expr.Any {
	switch action {
	case ActionAccept:
		return []expr.Any{&expr.Verdict{Kind: expr.VerdictAccept}}
	case ActionReject:
		switch {
		case family == nftables.TableFamilyINet:
			return []expr.Any{&expr.Reject{
				Type: unix.NFT_REJECT_ICMPX_UNREACH,
				Code: unix.NFT_REJECT_ICMPX_ADMIN_PROHIBITED,
			}}
		case isIPv6:
			// ICMPv6 destination unreachable, administratively prohibited
			return []expr.Any{&expr.Reject{Type: unix.NFT_REJECT_ICMP_UNREACH, Code: 1}}
		default:
			// ICMP destination unreachable, communication administratively prohibited
			return []expr.Any{&expr.Reject{Type: unix.NFT_REJECT_ICMP_UNREACH, Code: 13}}
		}
	default:
		return []expr.Any{&expr.Verdict{Kind: expr.VerdictDrop}}
	}
}

// buildRuleExprs assembles the full expression list for r.
func buildRuleExprs(r Rule, family nftables.TableFamily) []expr.Any {
	exprs := buildSourceMatch(r.Source)
	if r.Counter {
		exprs = append(exprs, &expr.Counter{})
	}
	return append(exprs, buildVerdict(r.Action, family, r.Source.Addr().Is6())...)
}

// buildJump builds the hook rule body.
func buildJump(chain string) []expr.Any {
	return []expr.Any{&expr.Verdict{Kind: expr.VerdictJump, Chain: chain}}
}

// isJumpTo reports whether rule jumps to chain.
func isJumpTo(rule *nftables.Rule, chain string) bool {
	for _, e := range rule.Exprs {
		if v, ok := e.(*expr.Verdict); ok && v.Kind == expr.VerdictJump && v.Chain == chain {
			return true
		}
	}
	return false
}
