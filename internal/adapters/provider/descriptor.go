// Package provider implements rate-limited, retrying access to external
// soccer data providers behind a normalized request descriptor.
package provider

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
)

// Descriptor identifies one provider request: endpoint plus parameters.
// Two descriptors with the same provider, endpoint and parameter set are
// the same request regardless of parameter order.
type Descriptor struct {
	Provider string
	Endpoint string
	Params   map[string]string
}

// Digest returns a stable hex digest of the normalized descriptor, used as
// the cache key.
func (d Descriptor) Digest() string {
	h := sha256.New()
	h.Write([]byte(d.Provider))
	h.Write([]byte{0})
	h.Write([]byte(d.Endpoint))
	keys := make([]string, 0, len(d.Params))
	for k := range d.Params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		h.Write([]byte{0})
		h.Write([]byte(k))
		h.Write([]byte{'='})
		h.Write([]byte(d.Params[k]))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// String renders the descriptor for logs.
func (d Descriptor) String() string {
	var b strings.Builder
	b.WriteString(d.Provider)
	b.WriteString("/")
	b.WriteString(d.Endpoint)
	keys := make([]string, 0, len(d.Params))
	for k := range d.Params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for i, k := range keys {
		if i == 0 {
			b.WriteString("?")
		} else {
			b.WriteString("&")
		}
		b.WriteString(k)
		b.WriteString("=")
		b.WriteString(d.Params[k])
	}
	return b.String()
}
