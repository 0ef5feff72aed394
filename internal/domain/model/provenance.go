package model

import "sort"

// Provenance is the set of providers that contributed to a merged record.
// Stored sorted and duplicate-free so merged records compare byte-identical
// after repeated integration of the same inputs.
type Provenance []string

// Has reports whether the provider already contributed.
func (p Provenance) Has(provider string) bool {
	i := sort.SearchStrings(p, provider)
	return i < len(p) && p[i] == provider
}

// Add returns the provenance with the provider included. Adding an existing
// provider is a no-op, keeping integration idempotent.
func (p Provenance) Add(provider string) Provenance {
	if p.Has(provider) {
		return p
	}
	i := sort.SearchStrings(p, provider)
	out := make(Provenance, 0, len(p)+1)
	out = append(out, p[:i]...)
	out = append(out, provider)
	out = append(out, p[i:]...)
	return out
}

// Clone returns an independent copy.
func (p Provenance) Clone() Provenance {
	if p == nil {
		return nil
	}
	out := make(Provenance, len(p))
	copy(out, p)
	return out
}
