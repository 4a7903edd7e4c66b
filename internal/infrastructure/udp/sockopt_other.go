//go:build !unix

package udp

import "syscall"

// Ailleurs on garde le réglage par défaut du système.
func dualStackControl(network, address string, c syscall.RawConn) error {
	return nil
}
