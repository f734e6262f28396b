// Package policy builds and holds the immutable mapping from a public
// key's fingerprint to the set of POSIX groups permitted to sign with
// that key. A Policy is constructed once at startup from a directory
// of YAML group files and a directory of agent-held public keys, and
// is then shared read-only by every proxy session.
package policy

// GroupName identifies a POSIX group referenced by a policy file.
type GroupName string

// KeyName is the opaque short name for a key, derived from the
// basename of a public-key file. It exists only to bridge policy
// files (which reference names) to the fingerprint index; nothing
// outside the loader ever sees a KeyName.
type KeyName string

// Fingerprint is a canonical textual identifier for a public key, in
// either MD5 or SHA-256 form. Both forms may key the same Policy
// entry.
type Fingerprint string

// Policy is the immutable Fingerprint -> set<GroupName> mapping. The
// zero value is an empty policy that authorizes nothing; construct a
// populated one with Load.
type Policy struct {
	groups map[Fingerprint]map[GroupName]struct{}
}

// Groups returns the set of groups permitted to sign with fp. The
// returned map must not be mutated by the caller; it is shared across
// every session.
func (p *Policy) Groups(fp Fingerprint) map[GroupName]struct{} {
	return p.groups[fp]
}

// Authorized reports whether any of the given fingerprints is
// permitted for at least one of the caller's groups.
func (p *Policy) Authorized(fingerprints []Fingerprint, callerGroups map[GroupName]struct{}) bool {
	for _, fp := range fingerprints {
		allowed := p.groups[fp]
		if allowed == nil {
			continue
		}
		for g := range callerGroups {
			if _, ok := allowed[g]; ok {
				return true
			}
		}
	}
	return false
}

// FingerprintCount returns the number of distinct fingerprints indexed
// by the policy, for diagnostics and tests.
func (p *Policy) FingerprintCount() int {
	return len(p.groups)
}

// NewForTest builds a Policy directly from an index, bypassing Load.
// Exported for use by other packages' tests that need a Policy
// without writing YAML and public-key fixtures to disk.
func NewForTest(groups map[Fingerprint]map[GroupName]struct{}) *Policy {
	return &Policy{groups: groups}
}
