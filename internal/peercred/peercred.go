// Package peercred resolves the local user and POSIX group membership
// of the process on the other end of an accepted UNIX-domain socket,
// using the kernel's peer-credential mechanism. It never trusts
// anything the peer says about itself; only SO_PEERCRED and the local
// user/group databases are consulted.
package peercred

import (
	"fmt"
	"net"
	"os/user"
)

// Identity is the peer's resolved user name and its full group set
// (primary group plus every group listing the user as a member).
type Identity struct {
	User   string
	Groups map[string]struct{}
}

// HasGroup reports whether the identity belongs to the named group.
func (id Identity) HasGroup(name string) bool {
	_, ok := id.Groups[name]
	return ok
}

// Intersects reports whether the identity belongs to any of the named
// groups.
func (id Identity) Intersects(names map[string]struct{}) bool {
	for name := range names {
		if id.HasGroup(name) {
			return true
		}
	}
	return false
}

// Resolve obtains the peer's UID and primary GID from the kernel via
// SO_PEERCRED (see peercred_linux.go), then resolves the UID to a user
// name and enumerates every group the user belongs to, including its
// primary group.
func Resolve(conn *net.UnixConn) (Identity, error) {
	uid, gid, err := peerCredentials(conn)
	if err != nil {
		return Identity{}, fmt.Errorf("peercred: reading kernel credentials: %w", err)
	}

	u, err := user.LookupId(fmt.Sprint(uid))
	if err != nil {
		return Identity{}, fmt.Errorf("peercred: resolving uid %d: %w", uid, err)
	}

	groups := make(map[string]struct{})

	if primary, err := user.LookupGroupId(fmt.Sprint(gid)); err == nil {
		groups[primary.Name] = struct{}{}
	} else {
		return Identity{}, fmt.Errorf("peercred: resolving primary gid %d: %w", gid, err)
	}

	gids, err := u.GroupIds()
	if err != nil {
		return Identity{}, fmt.Errorf("peercred: enumerating groups for %s: %w", u.Username, err)
	}
	for _, gidStr := range gids {
		g, err := user.LookupGroupId(gidStr)
		if err != nil {
			continue
		}
		groups[g.Name] = struct{}{}
	}

	return Identity{User: u.Username, Groups: groups}, nil
}
