//go:build unix

package transport

import (
	"syscall"

	"golang.org/x/sys/unix"
)

// controlListener marks the listening socket reusable so a restart can
// rebind while old connections sit in TIME_WAIT.
func controlListener(network, address string, rc syscall.RawConn) error {
	var serr error
	err := rc.Control(func(fd uintptr) {
		serr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
	})
	if err != nil {
		return err
	}
	return serr
}
