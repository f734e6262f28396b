// Package wire frames and parses SSH agent protocol messages on a byte
// stream: a 4-byte big-endian length, one type byte, and length-1 bytes
// of body. It never interprets a message body except to decode a
// sign-request's length-prefixed fields.
package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// Message codes the proxy recognizes on the wire. Unlisted codes are
// still framed and decoded (Code, Body) but are not otherwise special.
const (
	AgentCRequestRSAIdentities = 1  // SSH_AGENTC_REQUEST_RSA_IDENTITIES (legacy list)
	AgentFailure               = 5  // SSH_AGENT_FAILURE
	Agent2CRequestIdentities   = 11 // SSH2_AGENTC_REQUEST_IDENTITIES (list)
	Agent2CSignRequest         = 13 // SSH2_AGENTC_SIGN_REQUEST
)

// Sign-request flag bits (SSH2_AGENTC_SIGN_REQUEST flags field).
const (
	SignFlagOldSignature = 1 << 0 // SSH_AGENT_OLD_SIGNATURE
	SignFlagRSASHA2_256  = 1 << 1 // SSH_AGENT_RSA_SHA2_256
	SignFlagRSASHA2_512  = 1 << 2 // SSH_AGENT_RSA_SHA2_512
)

// ErrFraming reports a malformed frame: a zero-length frame, a short
// read caused by stream close mid-frame, or trailing bytes where none
// are permitted.
var ErrFraming = errors.New("wire: framing error")

// Message is one framed agent-protocol payload.
type Message struct {
	Code byte
	Body []byte
}

// ReadMessage reads exactly one framed message from r. It returns
// io.EOF only when the stream closed before any header byte arrived;
// any other short read is reported as ErrFraming, since a frame that
// began must complete or the session is unrecoverable.
func ReadMessage(r io.Reader) (Message, error) {
	var header [5]byte
	n, err := io.ReadFull(r, header[:])
	if err != nil {
		if n == 0 && errors.Is(err, io.EOF) {
			return Message{}, io.EOF
		}
		return Message{}, fmt.Errorf("%w: reading header: %v", ErrFraming, err)
	}

	length := binary.BigEndian.Uint32(header[:4])
	if length == 0 {
		return Message{}, fmt.Errorf("%w: zero-length frame", ErrFraming)
	}

	body := make([]byte, length-1)
	if len(body) > 0 {
		if _, err := io.ReadFull(r, body); err != nil {
			return Message{}, fmt.Errorf("%w: reading body: %v", ErrFraming, err)
		}
	}

	return Message{Code: header[4], Body: body}, nil
}

// WriteMessage writes one framed message to w. Callers are responsible
// for serializing writers that share a single downstream socket; a
// call to WriteMessage never interleaves its own header and body.
func WriteMessage(w io.Writer, code byte, body []byte) error {
	frame := make([]byte, 5+len(body))
	binary.BigEndian.PutUint32(frame[:4], uint32(len(body)+1))
	frame[4] = code
	copy(frame[5:], body)

	_, err := w.Write(frame)
	if err != nil {
		return fmt.Errorf("wire: writing frame: %w", err)
	}
	return nil
}

// WriteFailure writes the proxy's synthesized SSH_AGENT_FAILURE reply:
// a single frame with an empty body.
func WriteFailure(w io.Writer) error {
	return WriteMessage(w, AgentFailure, nil)
}

// SignRequest is the decoded body of an SSH2_AGENTC_SIGN_REQUEST message.
type SignRequest struct {
	KeyBlob []byte
	Data    []byte
	Flags   uint32
}

// ErrBadFlags reports a sign-request flags word outside the set the
// protocol defines.
var ErrBadFlags = errors.New("wire: unrecognized sign-request flags")

// DecodeSignRequest parses a sign-request body: two length-prefixed
// byte fields followed by a big-endian u32 flags word, with no bytes
// permitted after the flags. It reports ErrFraming for truncated or
// over-long fields, and ErrBadFlags for a flags value the protocol
// does not define.
func DecodeSignRequest(body []byte) (SignRequest, error) {
	keyBlob, rest, err := readLengthPrefixed(body)
	if err != nil {
		return SignRequest{}, err
	}
	data, rest, err := readLengthPrefixed(rest)
	if err != nil {
		return SignRequest{}, err
	}
	if len(rest) != 4 {
		return SignRequest{}, fmt.Errorf("%w: sign request: expected 4 flag bytes, got %d", ErrFraming, len(rest))
	}
	flags := binary.BigEndian.Uint32(rest)

	switch flags {
	case 0, SignFlagOldSignature, SignFlagRSASHA2_256, SignFlagRSASHA2_512:
	default:
		return SignRequest{}, fmt.Errorf("%w: flags=%d", ErrBadFlags, flags)
	}

	return SignRequest{KeyBlob: keyBlob, Data: data, Flags: flags}, nil
}

// EncodeSignRequest is the inverse of DecodeSignRequest, used by tests
// to build well-formed sign-request bodies.
func EncodeSignRequest(req SignRequest) []byte {
	body := make([]byte, 0, 4+len(req.KeyBlob)+4+len(req.Data)+4)
	body = appendLengthPrefixed(body, req.KeyBlob)
	body = appendLengthPrefixed(body, req.Data)
	flags := make([]byte, 4)
	binary.BigEndian.PutUint32(flags, req.Flags)
	return append(body, flags...)
}

func readLengthPrefixed(b []byte) (field, rest []byte, err error) {
	if len(b) < 4 {
		return nil, nil, fmt.Errorf("%w: length prefix truncated", ErrFraming)
	}
	length := binary.BigEndian.Uint32(b[:4])
	b = b[4:]
	if uint64(length) > uint64(len(b)) {
		return nil, nil, fmt.Errorf("%w: field length %d exceeds remaining body", ErrFraming, length)
	}
	return b[:length], b[length:], nil
}

func appendLengthPrefixed(dst, field []byte) []byte {
	length := make([]byte, 4)
	binary.BigEndian.PutUint32(length, uint32(len(field)))
	dst = append(dst, length...)
	return append(dst, field...)
}
