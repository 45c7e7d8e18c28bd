package sweep

import (
	"fmt"

	"github.com/clydemeng/sweeper/core/vm"
	"github.com/ethereum/go-ethereum/common"
)

var lockedWord = common.Hash{31: 1}

// reentrancyGuard is a single-active-invocation lock kept in transient storage
// of the executing account. It only lives for the duration of a message.
type reentrancyGuard struct {
	state   vm.StateDB
	account common.Address
}

func (g reentrancyGuard) locked() bool {
	return g.state.GetTransientState(g.account, reentrancySlot) == lockedWord
}

func (g reentrancyGuard) lock() {
	g.state.SetTransientState(g.account, reentrancySlot, lockedWord)
}

func (g reentrancyGuard) unlock() {
	g.state.SetTransientState(g.account, reentrancySlot, common.Hash{})
}

// checkZeroBalance enforces the sweep postcondition: nothing may remain in
// the account once fee and route have been paid out.
func checkZeroBalance(state vm.StateDB, account common.Address) error {
	if bal := state.GetBalance(account); !bal.IsZero() {
		return fmt.Errorf("%w: %s wei left", ErrNonZeroRemainder, bal)
	}
	return nil
}
