package rpctest

import (
	"cmp"
	"slices"
	"sync"
	"testing"

	pmap "github.com/marmos91/vxi11/internal/protocol/portmap"
	oncrpc "github.com/marmos91/vxi11/internal/protocol/rpc"
)

// registryKey identifies a registration: (program, version, protocol).
type registryKey struct {
	prog uint32
	vers uint32
	prot uint32
}

// Registry is a thread-safe in-memory port mapper registry.
type Registry struct {
	mu       sync.RWMutex
	mappings map[registryKey]pmap.Mapping
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{mappings: make(map[registryKey]pmap.Mapping)}
}

// Set adds or replaces a mapping. Any port value is accepted, including
// ones no real port mapper would hold, so that clients can be tested
// against them.
func (r *Registry) Set(prog, vers, prot, port uint32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.mappings[registryKey{prog, vers, prot}] = pmap.Mapping{Prog: prog, Vers: vers, Prot: prot, Port: port}
}

// Unset removes a mapping. Returns true if it existed.
func (r *Registry) Unset(prog, vers, prot uint32) bool {
	key := registryKey{prog, vers, prot}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.mappings[key]; !ok {
		return false
	}
	delete(r.mappings, key)
	return true
}

// Getport returns the registered port, or 0 if the tuple is unknown.
func (r *Registry) Getport(prog, vers, prot uint32) uint32 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.mappings[registryKey{prog, vers, prot}].Port
}

// Dump returns all mappings sorted by (prog, vers, prot).
func (r *Registry) Dump() []*pmap.Mapping {
	r.mu.RLock()
	result := make([]*pmap.Mapping, 0, len(r.mappings))
	for _, m := range r.mappings {
		entry := m
		result = append(result, &entry)
	}
	r.mu.RUnlock()

	slices.SortFunc(result, func(a, b *pmap.Mapping) int {
		if c := cmp.Compare(a.Prog, b.Prog); c != 0 {
			return c
		}
		if c := cmp.Compare(a.Vers, b.Vers); c != 0 {
			return c
		}
		return cmp.Compare(a.Prot, b.Prot)
	})
	return result
}

// Program returns the port mapper program (NULL, GETPORT, DUMP) backed by
// this registry.
func (r *Registry) Program() *Program {
	return &Program{
		Number:  pmap.Program,
		Version: pmap.Version,
		Procedures: map[uint32]*Procedure{
			pmap.ProcNull: {
				Name:    "NULL",
				Handler: func([]byte) ([]byte, error) { return nil, nil },
			},
			pmap.ProcGetport: {
				Name: "GETPORT",
				Handler: func(args []byte) ([]byte, error) {
					m, err := pmap.DecodeMapping(args)
					if err != nil {
						return nil, &AcceptError{Stat: oncrpc.RPCGarbageArgs}
					}
					return pmap.EncodeGetportResponse(r.Getport(m.Prog, m.Vers, m.Prot)), nil
				},
			},
			pmap.ProcDump: {
				Name: "DUMP",
				Handler: func([]byte) ([]byte, error) {
					return pmap.EncodeDumpResponse(r.Dump()), nil
				},
			},
		},
	}
}

// StartPortmapper starts a port mapper backed by a fresh registry.
func StartPortmapper(tb testing.TB) (*Server, *Registry) {
	tb.Helper()
	reg := NewRegistry()
	return Start(tb, reg.Program()), reg
}
