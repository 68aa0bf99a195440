package auth

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// Common errors returned by the authentication subsystem.
var (
	ErrDisabled         = errors.New("authentication disabled")
	ErrMissingKey       = errors.New("missing api key")
	ErrInvalidKey       = errors.New("invalid api key")
	ErrPermissionDenied = errors.New("permission denied")
	ErrKeyRevoked       = errors.New("api key is disabled")
)

// Well-known capabilities checked by the HTTP layer. A principal holding
// CapabilityAdmin implicitly passes every check.
const (
	CapabilityRead     = "vault:read"
	CapabilitySubmit   = "vault:submit"
	CapabilityConfirm  = "vault:confirm"
	CapabilityExecute  = "vault:execute"
	CapabilityAdmin    = "vault:admin"
	CapabilityRecovery = "vault:recovery"
	CapabilityAutopay  = "vault:autopay"
)

// Principal captures the identity resolved from an API key and passed to
// request handlers via context. Address is the on-chain identity used as
// the acting owner for wallet operations.
type Principal struct {
	Name         string
	Address      common.Address
	Roles        []string
	Capabilities []string
	Disabled     bool

	capabilitySet map[string]struct{}
}

// normalise prepares the lookup set for capability checks.
func (p *Principal) normalise() {
	if p == nil {
		return
	}
	if p.capabilitySet == nil {
		p.capabilitySet = make(map[string]struct{}, len(p.Capabilities))
		for _, capability := range p.Capabilities {
			p.capabilitySet[strings.ToLower(strings.TrimSpace(capability))] = struct{}{}
		}
	}
}

// HasCapability reports whether the principal holds the given capability.
func (p *Principal) HasCapability(capability string) bool {
	if p == nil {
		return false
	}
	p.normalise()
	if _, ok := p.capabilitySet[CapabilityAdmin]; ok {
		return true
	}
	_, ok := p.capabilitySet[strings.ToLower(strings.TrimSpace(capability))]
	return ok
}

// Authorize ensures the principal holds every required capability.
func (p *Principal) Authorize(capabilities ...string) error {
	if p == nil {
		return ErrInvalidKey
	}
	if p.Disabled {
		return ErrKeyRevoked
	}
	for _, capability := range capabilities {
		if capability == "" {
			continue
		}
		if !p.HasCapability(capability) {
			return fmt.Errorf("%w: missing %s", ErrPermissionDenied, capability)
		}
	}
	return nil
}

// Clone creates a copy of the principal safe for embedding in contexts.
func (p *Principal) Clone() *Principal {
	if p == nil {
		return nil
	}
	clone := &Principal{
		Name:         p.Name,
		Address:      p.Address,
		Roles:        append([]string(nil), p.Roles...),
		Capabilities: append([]string(nil), p.Capabilities...),
		Disabled:     p.Disabled,
	}
	clone.normalise()
	return clone
}

// Credential seeds the keyring with one API key and its principal.
type Credential struct {
	Name         string   `json:"name"`
	Key          string   `json:"key"`
	Address      string   `json:"address"`
	Roles        []string `json:"roles"`
	Capabilities []string `json:"capabilities"`
	Disabled     bool     `json:"disabled"`
}

// Config configures the authentication service.
type Config struct {
	Mode        Mode
	Credentials []Credential
}

// Mode enumerates the supported authentication providers.
type Mode string

const (
	ModeDisabled Mode = "disabled"
	ModeKeyring  Mode = "keyring"
)
