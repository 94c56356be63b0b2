package server

import (
	"errors"
	"net"
)

// interfaceAddrs is replaced in tests.
var interfaceAddrs = net.InterfaceAddrs

// ErrNoPublicAddr is returned when no non-loopback address is bound or available.
var ErrNoPublicAddr = errors.New("no non-loopback address")

// NonLoopback returns the address the socket is reachable on from outside the
// host. A wildcard bind is resolved to the first non-loopback interface
// address, preferring IPv4.
func NonLoopback(local net.Addr) (*net.UDPAddr, error) {
	udp, ok := local.(*net.UDPAddr)
	if !ok {
		resolved, err := net.ResolveUDPAddr("udp", local.String())
		if err != nil {
			return nil, err
		}
		udp = resolved
	}

	if udp.IP != nil && !udp.IP.IsUnspecified() {
		if udp.IP.IsLoopback() {
			return nil, ErrNoPublicAddr
		}
		return udp, nil
	}

	addrs, err := interfaceAddrs()
	if err != nil {
		return nil, err
	}

	var v6 net.IP
	for _, a := range addrs {
		ipNet, ok := a.(*net.IPNet)
		if !ok || ipNet.IP.IsLoopback() || ipNet.IP.IsLinkLocalUnicast() {
			continue
		}
		if ip4 := ipNet.IP.To4(); ip4 != nil {
			return &net.UDPAddr{IP: ip4, Port: udp.Port}, nil
		}
		if v6 == nil {
			v6 = ipNet.IP
		}
	}
	if v6 != nil {
		return &net.UDPAddr{IP: v6, Port: udp.Port}, nil
	}

	return nil, ErrNoPublicAddr
}
