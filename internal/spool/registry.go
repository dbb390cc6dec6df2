package spool

import (
	"sort"
	"sync"

	"github.com/aatumaykin/jobspool/internal/job"
)

// registry is the set of namespaces a store has seen.
type registry struct {
	mu    sync.RWMutex
	names map[string]struct{}
}

func newRegistry() *registry {
	return &registry{
		names: map[string]struct{}{job.DefaultNamespace: {}},
	}
}

// add registers ns and reports whether it was new.
func (r *registry) add(ns string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.names[ns]; ok {
		return false
	}
	r.names[ns] = struct{}{}
	return true
}

func (r *registry) list() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.names))
	for ns := range r.names {
		out = append(out, ns)
	}
	sort.Strings(out)
	return out
}
