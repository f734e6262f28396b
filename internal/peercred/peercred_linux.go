//go:build linux

package peercred

import (
	"fmt"
	"net"

	"golang.org/x/sys/unix"
)

// peerCredentials reads SO_PEERCRED off the socket's underlying file
// descriptor. This is kernel-backed attestation: the peer cannot forge
// it, and it reflects the process that called connect(2), not
// anything transmitted over the wire.
func peerCredentials(conn *net.UnixConn) (uid, gid uint32, err error) {
	raw, err := conn.SyscallConn()
	if err != nil {
		return 0, 0, fmt.Errorf("obtaining raw connection: %w", err)
	}

	var ucred *unix.Ucred
	var sockErr error
	controlErr := raw.Control(func(fd uintptr) {
		ucred, sockErr = unix.GetsockoptUcred(int(fd), unix.SOL_SOCKET, unix.SO_PEERCRED)
	})
	if controlErr != nil {
		return 0, 0, fmt.Errorf("control: %w", controlErr)
	}
	if sockErr != nil {
		return 0, 0, fmt.Errorf("getsockopt SO_PEERCRED: %w", sockErr)
	}

	return ucred.Uid, ucred.Gid, nil
}
