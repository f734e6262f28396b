package session

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nethesis/keyholder/internal/fingerprint"
	"github.com/nethesis/keyholder/internal/peercred"
	"github.com/nethesis/keyholder/internal/policy"
	"github.com/nethesis/keyholder/internal/wire"
)

// startFakeAgent listens on a temp UNIX socket and returns the path
// plus the accepted connection once a client dials in, for tests to
// drive the upstream side directly.
func startFakeAgent(t *testing.T) (addr string, accepted <-chan net.Conn) {
	t.Helper()
	sockPath := t.TempDir() + "/agent.sock"
	ln, err := net.Listen("unix", sockPath)
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	ch := make(chan net.Conn, 1)
	go func() {
		conn, err := ln.Accept()
		if err == nil {
			ch <- conn
		}
	}()
	return sockPath, ch
}

func newTestSession(t *testing.T, agentAddr string, peer peercred.Identity, pol *policy.Policy) (client net.Conn, sessionDone <-chan error) {
	t.Helper()
	clientSide, serverSide := net.Pipe()

	sess, err := New(serverSide, agentAddr, peer, pol)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- sess.Run() }()
	t.Cleanup(func() { clientSide.Close() })

	return clientSide, done
}

func TestSessionForwardsListIdentitiesAndRelaysReply(t *testing.T) {
	agentAddr, accepted := startFakeAgent(t)
	peer := peercred.Identity{User: "alice", Groups: map[string]struct{}{"admins": {}}}
	pol := policy.NewForTest(nil)

	client, _ := newTestSession(t, agentAddr, peer, pol)
	agentConn := <-accepted
	defer agentConn.Close()

	require.NoError(t, wire.WriteMessage(client, wire.Agent2CRequestIdentities, nil))

	msg, err := wire.ReadMessage(agentConn)
	require.NoError(t, err)
	assert.Equal(t, byte(wire.Agent2CRequestIdentities), msg.Code)
	assert.Empty(t, msg.Body)

	require.NoError(t, wire.WriteMessage(agentConn, 12, []byte("identities-reply")))

	reply, err := wire.ReadMessage(client)
	require.NoError(t, err)
	assert.Equal(t, byte(12), reply.Code)
	assert.Equal(t, "identities-reply", string(reply.Body))
}

func TestSessionRejectsUnauthorizedSignWithoutForwarding(t *testing.T) {
	agentAddr, accepted := startFakeAgent(t)
	peer := peercred.Identity{User: "bob", Groups: map[string]struct{}{"users": {}}}
	pol := policy.NewForTest(nil) // empty policy: nothing is authorized

	client, _ := newTestSession(t, agentAddr, peer, pol)
	agentConn := <-accepted
	defer agentConn.Close()

	keyBlob := []byte("keyA-blob")
	body := wire.EncodeSignRequest(wire.SignRequest{KeyBlob: keyBlob, Data: []byte("challenge")})
	require.NoError(t, wire.WriteMessage(client, wire.Agent2CSignRequest, body))

	reply, err := wire.ReadMessage(client)
	require.NoError(t, err)
	assert.Equal(t, byte(wire.AgentFailure), reply.Code)
	assert.Empty(t, reply.Body)

	agentConn.SetReadDeadline(time.Now().Add(50 * time.Millisecond))
	buf := make([]byte, 1)
	_, err = agentConn.Read(buf)
	assert.Error(t, err, "agent should not have received any bytes for a rejected request")
}

func TestSessionForwardsAuthorizedSign(t *testing.T) {
	agentAddr, accepted := startFakeAgent(t)
	keyBlob := []byte("keyA-blob")
	md5fp := fingerprint.MD5(keyBlob)

	pol := policy.NewForTest(map[policy.Fingerprint]map[policy.GroupName]struct{}{
		policy.Fingerprint(md5fp): {"admins": {}},
	})
	peer := peercred.Identity{User: "alice", Groups: map[string]struct{}{"admins": {}}}

	client, _ := newTestSession(t, agentAddr, peer, pol)
	agentConn := <-accepted
	defer agentConn.Close()

	body := wire.EncodeSignRequest(wire.SignRequest{KeyBlob: keyBlob, Data: []byte("challenge")})
	require.NoError(t, wire.WriteMessage(client, wire.Agent2CSignRequest, body))

	msg, err := wire.ReadMessage(agentConn)
	require.NoError(t, err, "agent should have received the forwarded sign request")
	assert.Equal(t, byte(wire.Agent2CSignRequest), msg.Code)
	assert.Equal(t, body, msg.Body)

	require.NoError(t, wire.WriteMessage(agentConn, 14, []byte("signature")))
	reply, err := wire.ReadMessage(client)
	require.NoError(t, err)
	assert.Equal(t, byte(14), reply.Code)
	assert.Equal(t, "signature", string(reply.Body))
}

func TestSessionUnknownCodeRejectsAndContinues(t *testing.T) {
	agentAddr, accepted := startFakeAgent(t)
	peer := peercred.Identity{User: "alice", Groups: map[string]struct{}{"admins": {}}}
	pol := policy.NewForTest(nil)

	client, _ := newTestSession(t, agentAddr, peer, pol)
	agentConn := <-accepted
	defer agentConn.Close()

	require.NoError(t, wire.WriteMessage(client, 99, nil))
	reply, err := wire.ReadMessage(client)
	require.NoError(t, err)
	assert.Equal(t, byte(wire.AgentFailure), reply.Code)

	// Session continues: a subsequent well-formed request still works.
	require.NoError(t, wire.WriteMessage(client, wire.Agent2CRequestIdentities, nil))
	_, err = wire.ReadMessage(agentConn)
	assert.NoError(t, err, "agent should still receive subsequent requests")
}

func TestSessionEndsOnClientClose(t *testing.T) {
	agentAddr, accepted := startFakeAgent(t)
	peer := peercred.Identity{User: "alice", Groups: map[string]struct{}{"admins": {}}}
	pol := policy.NewForTest(nil)

	client, done := newTestSession(t, agentAddr, peer, pol)
	agentConn := <-accepted
	defer agentConn.Close()

	client.Close()

	select {
	case err := <-done:
		assert.NoError(t, err, "Run() should return nil on clean client close")
	case <-time.After(2 * time.Second):
		t.Fatal("session did not end after client closed")
	}
}
