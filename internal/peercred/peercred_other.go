//go:build !linux

package peercred

import (
	"errors"
	"net"
)

// peerCredentials is unimplemented off Linux: SO_PEERCRED is a Linux
// extension and the platforms with an equivalent (LOCAL_PEERCRED on
// BSD/Darwin) need a different getsockopt shape. The proxy is only
// deployed on Linux; this stub keeps the package buildable elsewhere
// and fails closed rather than silently skipping authorization.
func peerCredentials(conn *net.UnixConn) (uid, gid uint32, err error) {
	return 0, 0, errors.New("peercred: SO_PEERCRED is not supported on this platform")
}
