package sweep

import (
	"github.com/clydemeng/sweeper/core/vm"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
)

// Namespace identifiers for the storage the engine owns inside a delegating
// account. A delegating account may have run other delegated code before, so
// the engine never assumes it owns low storage slots.
const (
	accountStateNamespace = "sweeper.delegated-sweep.v1.account-state"
	reentrancyNamespace   = "sweeper.delegated-sweep.v1.reentrancy-lock"
)

var (
	accountStateSlot = NamespaceSlot(accountStateNamespace)
	reentrancySlot   = NamespaceSlot(reentrancyNamespace)
)

// NamespaceSlot derives a storage root for the namespace id following the
// ERC-7201 formula: keccak256(keccak256(id) - 1) & ^0xff.
func NamespaceSlot(id string) common.Hash {
	inner := new(uint256.Int).SetBytes(crypto.Keccak256([]byte(id)))
	inner.SubUint64(inner, 1)
	word := inner.Bytes32()
	slot := crypto.Keccak256Hash(word[:])
	slot[31] = 0
	return slot
}

// AccountState is the persistent per-account state owned by the engine.
type AccountState struct {
	Nonce uint64
}

// NonceLedger reads and advances the replay counter of a single account.
type NonceLedger struct {
	state   vm.StateDB
	account common.Address
}

func newNonceLedger(state vm.StateDB, account common.Address) *NonceLedger {
	return &NonceLedger{state: state, account: account}
}

// Load returns the account state currently stored.
func (l *NonceLedger) Load() AccountState {
	word := l.state.GetState(l.account, accountStateSlot)
	return AccountState{Nonce: new(uint256.Int).SetBytes(word[:]).Uint64()}
}

// Read returns the current nonce.
func (l *NonceLedger) Read() uint64 {
	return l.Load().Nonce
}

// advance increments the nonce by one. It is only called on the success path,
// before any value leaves the account.
func (l *NonceLedger) advance() uint64 {
	next := l.Read() + 1
	l.state.SetState(l.account, accountStateSlot, common.Hash(new(uint256.Int).SetUint64(next).Bytes32()))
	return next
}

// Nonce returns the current sweep nonce of an account.
func Nonce(state vm.StateDB, account common.Address) uint64 {
	return newNonceLedger(state, account).Read()
}
