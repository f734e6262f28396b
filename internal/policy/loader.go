package policy

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/crypto/ssh"
	"gopkg.in/yaml.v3"

	"github.com/nethesis/keyholder/internal/fingerprint"
	"github.com/nethesis/keyholder/internal/keyholderlog"
)

// Load builds a Policy from a directory of YAML group files
// (authDir/*.yml, authDir/*.yaml, each a GroupName -> []KeyName
// mapping) and a directory of agent-held public keys (keysDir/*.pub).
// Loader ordering across files never affects the result: file merge is
// a union over sets, keyed by name.
func Load(authDir, keysDir string) (*Policy, error) {
	keyFingerprints, err := loadKeyFingerprints(keysDir)
	if err != nil {
		return nil, fmt.Errorf("policy: loading public keys from %s: %w", keysDir, err)
	}

	groupKeys, err := loadGroupFiles(authDir)
	if err != nil {
		return nil, fmt.Errorf("policy: loading policy files from %s: %w", authDir, err)
	}

	index := make(map[Fingerprint]map[GroupName]struct{})
	for group, keyNames := range groupKeys {
		for keyName := range keyNames {
			fps, ok := keyFingerprints[keyName]
			if !ok {
				keyholderlog.Warn("policy: ignoring unknown key", "group", group, "key", keyName)
				continue
			}
			for _, fp := range fps {
				if index[fp] == nil {
					index[fp] = make(map[GroupName]struct{})
				}
				index[fp][group] = struct{}{}
			}
		}
	}

	return &Policy{groups: index}, nil
}

// loadKeyFingerprints reads every *.pub file in dir and returns, for
// each file's basename (without extension), both the MD5- and
// SHA-256-form fingerprints of the key blob it contains. Both forms
// are indexed so that the dual-matching on the sign path (spec: MD5 OR
// SHA-256) is meaningful regardless of which form a client presents.
func loadKeyFingerprints(dir string) (map[KeyName][]Fingerprint, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	result := make(map[KeyName][]Fingerprint)
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".pub" {
			continue
		}

		path := filepath.Join(dir, entry.Name())
		raw, err := os.ReadFile(path)
		if err != nil {
			keyholderlog.Warn("policy: skipping unreadable public key", "path", path, "error", err)
			continue
		}

		pubKey, _, _, _, err := ssh.ParseAuthorizedKey(raw)
		if err != nil {
			keyholderlog.Warn("policy: skipping unparseable public key", "path", path, "error", err)
			continue
		}

		blob := pubKey.Marshal()
		name := KeyName(strings.TrimSuffix(entry.Name(), ".pub"))
		result[name] = []Fingerprint{
			Fingerprint(fingerprint.MD5(blob)),
			Fingerprint(fingerprint.SHA256(blob)),
		}
	}
	return result, nil
}

// groupFile is the on-disk shape of one policy YAML file: a mapping
// from group name to the list of key names it authorizes.
type groupFile map[GroupName][]KeyName

// loadGroupFiles reads every *.yml/*.yaml file in dir and merges them
// into GroupName -> set<KeyName>. A key listed under the same group in
// two files is idempotent; a key listed under different groups
// contributes each group.
func loadGroupFiles(dir string) (map[GroupName]map[KeyName]struct{}, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	merged := make(map[GroupName]map[KeyName]struct{})
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := filepath.Ext(entry.Name())
		if ext != ".yml" && ext != ".yaml" {
			continue
		}

		path := filepath.Join(dir, entry.Name())
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", path, err)
		}

		var file groupFile
		if err := yaml.Unmarshal(raw, &file); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}

		for group, keys := range file {
			if merged[group] == nil {
				merged[group] = make(map[KeyName]struct{})
			}
			for _, key := range keys {
				merged[group][key] = struct{}{}
			}
		}
	}
	return merged, nil
}
