// Package identity holds the reusable client-identity descriptors
// consulted when constructing fetch profiles.
package identity

import (
	"fmt"
	"sync/atomic"
)

// Pool is a read-only list of identity descriptors (user-agent strings).
// It is loaded once at startup and shared by every acquisition batch.
type Pool struct {
	identities []string
	next       atomic.Uint64
}

// NewPool creates a pool from the provided descriptors.
func NewPool(identities []string) (*Pool, error) {
	if len(identities) == 0 {
		return nil, fmt.Errorf("identity pool requires at least one descriptor")
	}
	ids := make([]string, len(identities))
	copy(ids, identities)
	return &Pool{identities: ids}, nil
}

// Next returns identities in round-robin order. Safe for concurrent use.
func (p *Pool) Next() string {
	n := p.next.Add(1) - 1
	return p.identities[n%uint64(len(p.identities))]
}

// Len returns the number of descriptors.
func (p *Pool) Len() int {
	return len(p.identities)
}

// All returns a copy of the descriptor list.
func (p *Pool) All() []string {
	ids := make([]string, len(p.identities))
	copy(ids, p.identities)
	return ids
}
