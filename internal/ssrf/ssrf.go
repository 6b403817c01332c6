// Package ssrf keeps outbound provider requests away from internal
// networks.
package ssrf

import (
	"errors"
	"fmt"
	"net"
	"syscall"
)

// ErrBlockedAddress is returned when a connection targets a blocked IP.
var ErrBlockedAddress = errors.New("blocked address")

// cgnatRange is 100.64.0.0/10, which net.IP.IsPrivate does not cover.
var cgnatRange = mustParseCIDR("100.64.0.0/10")

func mustParseCIDR(s string) *net.IPNet {
	_, n, err := net.ParseCIDR(s)
	if err != nil {
		panic(err)
	}
	return n
}

// IsBlockedIP reports whether ip is loopback, private, link-local,
// unspecified, multicast or CGNAT.
func IsBlockedIP(ip net.IP) bool {
	return ip.IsLoopback() ||
		ip.IsPrivate() ||
		ip.IsLinkLocalUnicast() ||
		ip.IsLinkLocalMulticast() ||
		ip.IsUnspecified() ||
		ip.IsMulticast() ||
		cgnatRange.Contains(ip)
}

// DialControl is a net.Dialer Control hook. It runs after name resolution,
// so a provider hostname that resolves to an internal address is refused
// at connect time.
func DialControl(network, address string, _ syscall.RawConn) error {
	host, _, err := net.SplitHostPort(address)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrBlockedAddress, address)
	}
	ip := net.ParseIP(host)
	if ip == nil || IsBlockedIP(ip) {
		return fmt.Errorf("%w: %s", ErrBlockedAddress, host)
	}
	return nil
}
