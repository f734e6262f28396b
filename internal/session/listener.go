package session

import (
	"errors"
	"fmt"
	"net"
	"os"
	"sync"

	"github.com/nethesis/keyholder/internal/keyholderlog"
	"github.com/nethesis/keyholder/internal/peercred"
	"github.com/nethesis/keyholder/internal/policy"
)

// Listener accepts client connections on the bind socket and spawns
// one Session per accepted connection. It is otherwise trivial: it
// never inspects protocol bytes itself.
type Listener struct {
	bindAddr    string
	connectAddr string
	policy      *policy.Policy

	listener *net.UnixListener

	wg        sync.WaitGroup
	closeOnce sync.Once
	done      chan struct{}
}

// Listen binds the UNIX-domain socket at bindAddr, removing any stale
// socket file left over from a previous run.
func Listen(bindAddr, connectAddr string, pol *policy.Policy) (*Listener, error) {
	if err := os.Remove(bindAddr); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("session: removing stale socket %s: %w", bindAddr, err)
	}

	ln, err := net.Listen("unix", bindAddr)
	if err != nil {
		return nil, fmt.Errorf("session: binding %s: %w", bindAddr, err)
	}

	return &Listener{
		bindAddr:    bindAddr,
		connectAddr: connectAddr,
		policy:      pol,
		listener:    ln.(*net.UnixListener),
		done:        make(chan struct{}),
	}, nil
}

// Serve accepts connections until Close is called. No Accept error
// ever stops the loop; it is logged and accepting resumes. Each
// accepted connection runs a Session concurrently with all others; an
// error in one session never affects another. Panics are not
// recovered: a panic in any session goroutine ends the process.
func (l *Listener) Serve() error {
	for {
		conn, err := l.listener.Accept()
		if err != nil {
			select {
			case <-l.done:
				return nil
			default:
				keyholderlog.Warn("session: accept error", "error", err)
				continue
			}
		}

		l.wg.Add(1)
		go func() {
			defer l.wg.Done()
			l.handle(conn.(*net.UnixConn))
		}()
	}
}

// handle resolves the peer's identity, opens the upstream connection,
// and runs the session to completion. Any failure here is logged and
// closes the client with no data written beyond what was already
// accepted, per the fail-closed error model.
func (l *Listener) handle(client *net.UnixConn) {
	peer, err := peercred.Resolve(client)
	if err != nil {
		keyholderlog.Error("session: resolving peer credentials", "error", err)
		client.Close()
		return
	}

	sess, err := New(client, l.connectAddr, peer, l.policy)
	if err != nil {
		keyholderlog.Error("session: connecting upstream", "user", peer.User, "error", err)
		client.Close()
		return
	}

	keyholderlog.Info("session: started", "user", peer.User)
	if err := sess.Run(); err != nil {
		keyholderlog.Warn("session: ended with error", "user", peer.User, "error", err)
		return
	}
	keyholderlog.Info("session: ended", "user", peer.User)
}

// Close stops accepting new connections and waits for in-flight
// sessions to finish, then removes the bind socket file.
func (l *Listener) Close() error {
	l.closeOnce.Do(func() {
		close(l.done)
		l.listener.Close()
	})
	l.wg.Wait()
	os.Remove(l.bindAddr)
	return nil
}
