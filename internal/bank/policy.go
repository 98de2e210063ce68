// Package bank implements one bank service instance: local approval policy,
// transaction signing, the autonomous validator, and the bank HTTP API.
package bank

import (
	"sync"

	"github.com/AdotAyush/cedefi-banking/internal/models"
)

// DefaultAmountLimit is the approval ceiling applied when none is configured.
const DefaultAmountLimit = 1_000_000

// Policy is the bank's mutable local policy. Each bank owns its own copy;
// there is no shared or process-global policy state. All access goes through
// the mutex so the settings endpoint can change it at runtime.
type Policy struct {
	mu           sync.RWMutex
	amountLimit  float64
	trustedNodes map[string]struct{}
	security     models.SecurityPolicy
}

// NewPolicy builds a policy from the configured trusted node keys.
func NewPolicy(amountLimit float64, trustedNodes []string, security models.SecurityPolicy) *Policy {
	if amountLimit <= 0 {
		amountLimit = DefaultAmountLimit
	}
	p := &Policy{
		amountLimit:  amountLimit,
		trustedNodes: make(map[string]struct{}, len(trustedNodes)),
		security:     security,
	}
	for _, n := range trustedNodes {
		p.trustedNodes[n] = struct{}{}
	}
	return p
}

// AmountLimit returns the current approval ceiling.
func (p *Policy) AmountLimit() float64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.amountLimit
}

// Security returns the current vote-quorum policy.
func (p *Policy) Security() models.SecurityPolicy {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.security
}

// Trusted reports whether a voter id belongs to the trusted set.
func (p *Policy) Trusted(voter string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	_, ok := p.trustedNodes[voter]
	return ok
}

// TrustedNodes returns the trusted set as a sorted-insensitive slice copy.
func (p *Policy) TrustedNodes() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]string, 0, len(p.trustedNodes))
	for n := range p.trustedNodes {
		out = append(out, n)
	}
	return out
}

// Settings is the wire shape of the policy for the settings endpoint. Each
// field is optional; an omitted field leaves that part of the policy alone.
type Settings struct {
	TrustedNodes   []string               `json:"trustedNodes,omitempty"`
	SecurityPolicy *models.SecurityPolicy `json:"securityPolicy,omitempty"`
	AmountLimit    float64                `json:"amountLimit,omitempty"`
}

// Snapshot returns the current settings.
func (p *Policy) Snapshot() Settings {
	p.mu.RLock()
	defer p.mu.RUnlock()
	nodes := make([]string, 0, len(p.trustedNodes))
	for n := range p.trustedNodes {
		nodes = append(nodes, n)
	}
	sec := p.security
	return Settings{TrustedNodes: nodes, SecurityPolicy: &sec, AmountLimit: p.amountLimit}
}

// Update applies the provided settings. A nil trusted list leaves the set
// unchanged, a zero amount limit leaves the ceiling unchanged, and a nil
// security policy leaves the quorum rules unchanged.
func (p *Policy) Update(s Settings) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if s.TrustedNodes != nil {
		p.trustedNodes = make(map[string]struct{}, len(s.TrustedNodes))
		for _, n := range s.TrustedNodes {
			p.trustedNodes[n] = struct{}{}
		}
	}
	if s.AmountLimit > 0 {
		p.amountLimit = s.AmountLimit
	}
	if s.SecurityPolicy != nil {
		p.security = *s.SecurityPolicy
	}
}
