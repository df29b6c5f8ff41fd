package server

import (
	"net"
)

// AdmissionPolicy decides from the peer address whether a connection may
// become a link. Rejected connections are closed before any link exists.
type AdmissionPolicy func(remote net.Addr) bool

// AllowAll admits every peer.
func AllowAll(net.Addr) bool { return true }

// LoopbackOnly admits peers on a loopback address and unix socket peers.
func LoopbackOnly(remote net.Addr) bool {
	if _, ok := remote.(*net.UnixAddr); ok {
		return true
	}
	ip := hostIP(remote)
	return ip != nil && ip.IsLoopback()
}

// LocalOnly additionally admits peers using any address of this host.
func LocalOnly(remote net.Addr) bool {
	if LoopbackOnly(remote) {
		return true
	}
	ip := hostIP(remote)
	if ip == nil {
		return false
	}
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return false
	}
	for _, a := range addrs {
		if n, ok := a.(*net.IPNet); ok && n.IP.Equal(ip) {
			return true
		}
	}
	return false
}

func hostIP(addr net.Addr) net.IP {
	switch a := addr.(type) {
	case nil:
		return nil
	case *net.TCPAddr:
		return a.IP
	case *net.UDPAddr:
		return a.IP
	case *net.IPAddr:
		return a.IP
	}
	host, _, err := net.SplitHostPort(addr.String())
	if err != nil {
		host = addr.String()
	}
	return net.ParseIP(host)
}
