// Package filter implements the proxy's authorization decision: a
// pure function from a parsed client message and the peer's group set
// to forward-or-reject. It never performs I/O and never mutates its
// inputs.
package filter

import (
	"github.com/nethesis/keyholder/internal/fingerprint"
	"github.com/nethesis/keyholder/internal/policy"
	"github.com/nethesis/keyholder/internal/wire"
)

// Decide reports whether the client message identified by msg should
// be forwarded to the upstream agent verbatim. A false result means
// the session must answer with a synthesized SSH_AGENT_FAILURE frame
// and forward nothing for this message.
//
//   - list-identities with an empty body: forward.
//   - list-identities with a non-empty body: reject (trailing bytes).
//   - sign-request that decodes cleanly with valid flags, whose key
//     blob's MD5 or SHA-256 fingerprint is authorized for one of
//     peerGroups: forward.
//   - sign-request that fails to decode, has invalid flags, or names
//     an unauthorized key: reject.
//   - any other message code: reject.
func Decide(msg wire.Message, peerGroups map[policy.GroupName]struct{}, pol *policy.Policy) bool {
	switch msg.Code {
	case wire.AgentCRequestRSAIdentities, wire.Agent2CRequestIdentities:
		return len(msg.Body) == 0

	case wire.Agent2CSignRequest:
		req, err := wire.DecodeSignRequest(msg.Body)
		if err != nil {
			return false
		}
		fps := fingerprint.Both(req.KeyBlob)
		return pol.Authorized([]policy.Fingerprint{
			policy.Fingerprint(fps[0]),
			policy.Fingerprint(fps[1]),
		}, peerGroups)

	default:
		return false
	}
}
