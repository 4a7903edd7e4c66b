//go:build unix

package udp

import (
	"syscall"

	"golang.org/x/sys/unix"
)

// dualStackControl force IPV6_V6ONLY à 0 pour recevoir aussi l'IPv4.
func dualStackControl(network, address string, c syscall.RawConn) error {
	var serr error
	err := c.Control(func(fd uintptr) {
		serr = unix.SetsockoptInt(int(fd), unix.IPPROTO_IPV6, unix.IPV6_V6ONLY, 0)
	})
	if err != nil {
		return err
	}
	return serr
}
