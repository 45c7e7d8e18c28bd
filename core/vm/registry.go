package vm

import (
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// Registry keeps the Go-native contracts known to the host, keyed by the
// address their code lives at. Accounts delegating to one of these addresses
// through an EIP-7702 designator run the same contract against their own
// state.
type Registry struct {
	contracts sync.Map // map[common.Address]Contract
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register installs c at addr, replacing any previous contract.
func (r *Registry) Register(addr common.Address, c Contract) {
	r.contracts.Store(addr, c)
}

// Unregister removes the contract installed at addr.
func (r *Registry) Unregister(addr common.Address) {
	r.contracts.Delete(addr)
}

// Lookup returns the contract installed at addr.
func (r *Registry) Lookup(addr common.Address) (Contract, bool) {
	if r == nil {
		return nil, false
	}
	if v, ok := r.contracts.Load(addr); ok {
		return v.(Contract), true
	}
	return nil, false
}

// Len returns the number of installed contracts.
func (r *Registry) Len() int {
	n := 0
	r.contracts.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}
