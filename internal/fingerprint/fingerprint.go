// Package fingerprint computes the two canonical textual identifiers
// for an SSH public-key blob that the rest of the proxy matches
// against policy: MD5 and SHA-256 form.
package fingerprint

import (
	"crypto/md5"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
)

// MD5 returns the colonless lowercase-hex MD5 digest of the raw SSH
// public-key blob, e.g. "aabbccdd...".
func MD5(keyBlob []byte) string {
	sum := md5.Sum(keyBlob)
	return hex.EncodeToString(sum[:])
}

// SHA256 returns the "SHA256<base64>" form: the literal prefix
// (no separator) followed by the unpadded standard base64 encoding of
// the SHA-256 digest of the raw SSH public-key blob.
func SHA256(keyBlob []byte) string {
	sum := sha256.Sum256(keyBlob)
	return "SHA256" + base64.RawStdEncoding.EncodeToString(sum[:])
}

// Both returns both canonical forms for keyBlob, in the order MD5,
// SHA-256, matching the order the sign-path filter looks them up in.
func Both(keyBlob []byte) [2]string {
	return [2]string{MD5(keyBlob), SHA256(keyBlob)}
}
