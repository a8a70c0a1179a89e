//go:build !unix

package transport

import "syscall"

func controlListener(network, address string, rc syscall.RawConn) error {
	return nil
}
