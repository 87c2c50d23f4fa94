package fragment

import (
	"strings"
	"sync"

	"github.com/pkg/errors"
)

// Opener resolves a fragment URI to a Fragment. Schemes other than
// "disk:" are delegated to whatever loader registers them — spec.md §6
// calls this "the loader registry".
type Opener func(uri string) (Fragment, error)

// Registry maps a URI scheme ("disk", "s3", ...) to its Opener.
type Registry struct {
	mu      sync.RWMutex
	openers map[string]Opener
}

// NewRegistry returns a Registry pre-populated with the "disk" scheme.
func NewRegistry() *Registry {
	r := &Registry{openers: make(map[string]Opener)}
	r.Register("disk", func(uri string) (Fragment, error) {
		return OpenDiskFragment(strings.TrimPrefix(uri, "disk:"))
	})
	return r
}

// Register installs an Opener for scheme, overwriting any existing one.
func (r *Registry) Register(scheme string, open Opener) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.openers[scheme] = open
}

// Open resolves uri via its scheme's registered Opener.
func (r *Registry) Open(uri string) (Fragment, error) {
	scheme, _, ok := strings.Cut(uri, ":")
	if !ok {
		return nil, errors.Errorf("fragment uri %q has no scheme", uri)
	}
	r.mu.RLock()
	open, ok := r.openers[scheme]
	r.mu.RUnlock()
	if !ok {
		return nil, errors.Errorf("fragment uri %q: no loader registered for scheme %q", uri, scheme)
	}
	return open(uri)
}
