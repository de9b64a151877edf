package server

import (
	"net"
	"strconv"
)

// listenAddrs lists the addresses clients can dial. A wildcard bind is
// expanded to each non-loopback IPv4 interface address, falling back to
// loopback when there is none.
func listenAddrs(bound net.Addr) []string {
	tcp, ok := bound.(*net.TCPAddr)
	if !ok {
		return []string{bound.String()}
	}
	if !tcp.IP.IsUnspecified() {
		return []string{tcp.String()}
	}
	port := strconv.Itoa(tcp.Port)
	addrs := make([]string, 0)
	ifaces, err := net.InterfaceAddrs()
	if err == nil {
		for _, addr := range ifaces {
			ipnet, ok := addr.(*net.IPNet)
			if !ok || ipnet.IP == nil || ipnet.IP.IsLoopback() {
				continue
			}
			if ip4 := ipnet.IP.To4(); ip4 != nil {
				addrs = append(addrs, net.JoinHostPort(ip4.String(), port))
			}
		}
	}
	if len(addrs) == 0 {
		addrs = append(addrs, net.JoinHostPort("127.0.0.1", port))
	}
	return addrs
}
