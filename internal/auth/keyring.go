package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

const keySaltBytes = 16

// Keyring holds the API-key catalogue in memory. Keys are stored as salted
// digests, never in the clear. Safe for concurrent use.
type Keyring struct {
	mu      sync.RWMutex
	entries []*keyringEntry
}

type keyringEntry struct {
	hashedKey string
	principal *Principal
}

// NewKeyring initialises the keyring with the provided credentials.
func NewKeyring(credentials []Credential) (*Keyring, error) {
	ring := &Keyring{}
	for _, credential := range credentials {
		if err := ring.Add(credential); err != nil {
			return nil, err
		}
	}
	return ring, nil
}

// Add registers one credential. The same name may appear once; a later
// credential with a known name replaces the earlier entry.
func (k *Keyring) Add(credential Credential) error {
	name := strings.TrimSpace(credential.Name)
	if name == "" {
		return errors.New("credential name cannot be empty")
	}
	if !common.IsHexAddress(credential.Address) {
		return fmt.Errorf("credential %s: invalid address %q", name, credential.Address)
	}
	hashed, err := hashKey(credential.Key)
	if err != nil {
		return fmt.Errorf("credential %s: %w", name, err)
	}
	principal := &Principal{
		Name:         name,
		Address:      common.HexToAddress(credential.Address),
		Roles:        dedupeStrings(credential.Roles),
		Capabilities: dedupeStrings(credential.Capabilities),
		Disabled:     credential.Disabled,
	}
	principal.normalise()

	k.mu.Lock()
	defer k.mu.Unlock()
	for i, entry := range k.entries {
		if entry.principal.Name == name {
			k.entries[i] = &keyringEntry{hashedKey: hashed, principal: principal}
			return nil
		}
	}
	k.entries = append(k.entries, &keyringEntry{hashedKey: hashed, principal: principal})
	return nil
}

// Resolve looks up the principal for a presented API key.
func (k *Keyring) Resolve(key string) (*Principal, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, ErrMissingKey
	}
	k.mu.RLock()
	defer k.mu.RUnlock()
	for _, entry := range k.entries {
		if verifyKey(entry.hashedKey, key) {
			if entry.principal.Disabled {
				return nil, ErrKeyRevoked
			}
			return entry.principal.Clone(), nil
		}
	}
	return nil, ErrInvalidKey
}

// hashKey derives the salted digest stored in place of the raw key.
func hashKey(key string) (string, error) {
	if strings.TrimSpace(key) == "" {
		return "", errors.New("api key cannot be empty")
	}
	salt := make([]byte, keySaltBytes)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}
	digest := sha256.Sum256(append(salt, []byte(key)...))
	encodedSalt := base64.RawStdEncoding.EncodeToString(salt)
	encodedDigest := base64.RawStdEncoding.EncodeToString(digest[:])
	return encodedSalt + ":" + encodedDigest, nil
}

// verifyKey checks a presented key against a stored salted digest.
func verifyKey(hashed, key string) bool {
	if hashed == "" {
		return false
	}
	parts := strings.SplitN(hashed, ":", 2)
	if len(parts) != 2 {
		return false
	}
	salt, err := base64.RawStdEncoding.DecodeString(parts[0])
	if err != nil {
		return false
	}
	expected, err := base64.RawStdEncoding.DecodeString(parts[1])
	if err != nil {
		return false
	}
	digest := sha256.Sum256(append(salt, []byte(key)...))
	return subtle.ConstantTimeCompare(expected, digest[:]) == 1
}

func dedupeStrings(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	for _, value := range values {
		value = strings.TrimSpace(value)
		if value == "" {
			continue
		}
		seen[strings.ToLower(value)] = struct{}{}
	}
	result := make([]string, 0, len(seen))
	for key := range seen {
		result = append(result, key)
	}
	sort.Strings(result)
	return result
}
