package vm

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// CallMetadata records one value-bearing call performed by the dispatcher. The
// processor exposes the list for a message so that tooling can show where the
// swept value went, including calls made by routed targets.
type CallMetadata struct {
	Depth int
	From  common.Address
	To    common.Address
	Value *uint256.Int
	Input []byte
	Code  common.Address // address whose contract ran, zero for plain accounts
	Err   error
}

// Delegated reports whether the call was resolved through an EIP-7702
// delegation designator.
func (c CallMetadata) Delegated() bool {
	return c.Code != (common.Address{}) && c.Code != c.To
}
