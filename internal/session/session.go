// Package session implements the per-connection proxy: one accepted
// client socket, one dedicated upstream agent socket, shuttling framed
// messages between them while applying the authorization filter to
// every client-originated message.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/nethesis/keyholder/internal/filter"
	"github.com/nethesis/keyholder/internal/keyholderlog"
	"github.com/nethesis/keyholder/internal/peercred"
	"github.com/nethesis/keyholder/internal/policy"
	"github.com/nethesis/keyholder/internal/wire"
)

// Session owns one client connection and its dedicated upstream agent
// connection for as long as both remain open. Sessions share no
// mutable state; the only object they share is the read-only Policy.
type Session struct {
	client     net.Conn
	agent      net.Conn
	peer       peercred.Identity
	peerGroups map[policy.GroupName]struct{}
	policy     *policy.Policy

	// closing is set by whichever direction's pump exits first, right
	// before it force-closes both sockets to unblock the other
	// direction's pending read. The other pump checks it to tell a
	// deliberate teardown apart from a genuine I/O or framing error.
	closing atomic.Bool

	// clientWriteMu serializes writes to client: pumpAgentToClient
	// forwards agent replies and pumpClientToAgent writes synthesized
	// failure frames, both onto the same socket from different
	// goroutines. wire.WriteMessage assumes a single writer per stream.
	clientWriteMu sync.Mutex
}

// New dials the upstream agent and returns a Session ready to Run. The
// caller retains ownership of client until New returns; on error the
// caller must close client itself.
func New(client net.Conn, connectAddr string, peer peercred.Identity, pol *policy.Policy) (*Session, error) {
	agentConn, err := net.Dial("unix", connectAddr)
	if err != nil {
		return nil, fmt.Errorf("session: connecting to upstream agent: %w", err)
	}

	groups := make(map[policy.GroupName]struct{}, len(peer.Groups))
	for g := range peer.Groups {
		groups[policy.GroupName(g)] = struct{}{}
	}

	return &Session{client: client, agent: agentConn, peer: peer, peerGroups: groups, policy: pol}, nil
}

// Run shuttles messages between the client and the upstream agent
// until either side closes, errors, or a protocol violation is
// detected. It always returns after closing both sockets.
func (s *Session) Run() error {
	eg, _ := errgroup.WithContext(context.Background())

	eg.Go(func() error {
		err := s.pumpClientToAgent()
		s.teardown()
		return err
	})
	eg.Go(func() error {
		err := s.pumpAgentToClient()
		s.teardown()
		return err
	})

	return eg.Wait()
}

// teardown marks the session as closing and force-closes both
// sockets, unblocking whichever pump is still waiting on a read.
func (s *Session) teardown() {
	s.closing.Store(true)
	s.agent.Close()
	s.client.Close()
}

// pumpClientToAgent reads one client frame at a time, applies the
// authorization filter, and either forwards the frame verbatim to the
// agent or answers the client with a synthesized failure frame. A
// framing error on the client terminates the session without
// forwarding anything for the offending message.
func (s *Session) pumpClientToAgent() error {
	for {
		msg, err := wire.ReadMessage(s.client)
		if err != nil {
			if errors.Is(err, io.EOF) || s.closing.Load() {
				return nil
			}
			keyholderlog.Warn("session: client framing error", "user", s.peer.User, "error", err)
			return err
		}

		if filter.Decide(msg, s.peerGroups, s.policy) {
			if err := wire.WriteMessage(s.agent, msg.Code, msg.Body); err != nil {
				if s.closing.Load() {
					return nil
				}
				keyholderlog.Warn("session: writing to agent", "user", s.peer.User, "error", err)
				return err
			}
			continue
		}

		keyholderlog.Info("session: rejected client request", "user", s.peer.User, "code", msg.Code)
		if err := s.writeToClient(wire.AgentFailure, nil); err != nil {
			if s.closing.Load() {
				return nil
			}
			keyholderlog.Warn("session: writing failure to client", "user", s.peer.User, "error", err)
			return err
		}
	}
}

// pumpAgentToClient reads one agent frame at a time and forwards it
// verbatim to the client. Any framing error or I/O error on the agent
// side terminates the session.
func (s *Session) pumpAgentToClient() error {
	for {
		msg, err := wire.ReadMessage(s.agent)
		if err != nil {
			if errors.Is(err, io.EOF) || s.closing.Load() {
				return nil
			}
			keyholderlog.Warn("session: agent framing error", "user", s.peer.User, "error", err)
			return err
		}

		if err := s.writeToClient(msg.Code, msg.Body); err != nil {
			if s.closing.Load() {
				return nil
			}
			keyholderlog.Warn("session: writing to client", "user", s.peer.User, "error", err)
			return err
		}
	}
}

// writeToClient serializes writes to the client socket: it is called
// from both pump goroutines (forwarded agent replies and synthesized
// failure frames), and net.Conn gives no atomicity guarantee across
// concurrent Write calls from different goroutines.
func (s *Session) writeToClient(code byte, body []byte) error {
	s.clientWriteMu.Lock()
	defer s.clientWriteMu.Unlock()
	return wire.WriteMessage(s.client, code, body)
}
