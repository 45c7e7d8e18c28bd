package core

import (
	"fmt"

	"github.com/clydemeng/sweeper/core/vm"
	"github.com/clydemeng/sweeper/tracing"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/state"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/log"
	"github.com/holiman/uint256"
)

// ExecutionResult is the outcome of one applied message. Err is the call
// error, if any; the call's state changes have been reverted in that case but
// the gas is still paid.
type ExecutionResult struct {
	UsedGas uint64
	Err     error
	Trace   []vm.CallMetadata
}

// Failed reports whether the call was reverted.
func (r *ExecutionResult) Failed() bool { return r.Err != nil }

// ApplyMessage executes one message against the given state. The returned
// error is non-nil only for messages that cannot be included at all (bad
// nonce, insufficient funds, intrinsic gas above the limit); such messages
// leave the state untouched.
func (p *StateProcessor) ApplyMessage(msg *Message, block vm.BlockContext, statedb *vm.StateAdapter, gp *GasPool) (*ExecutionResult, error) {
	if msg.To == nil {
		return nil, ErrMissingRecipient
	}
	inner := statedb.Inner()

	// 1. Pre-checks.
	stNonce := inner.GetNonce(msg.From)
	switch {
	case msg.Nonce < stNonce:
		return nil, fmt.Errorf("%w: address %v, tx: %d state: %d", ErrNonceTooLow, msg.From.Hex(), msg.Nonce, stNonce)
	case msg.Nonce > stNonce:
		return nil, fmt.Errorf("%w: address %v, tx: %d state: %d", ErrNonceTooHigh, msg.From.Hex(), msg.Nonce, stNonce)
	case stNonce+1 < stNonce:
		return nil, fmt.Errorf("%w: address %v, nonce: %d", ErrNonceMax, msg.From.Hex(), stNonce)
	}
	if code := inner.GetCode(msg.From); len(code) > 0 {
		if _, delegated := types.ParseDelegation(code); !delegated {
			return nil, fmt.Errorf("%w: address %v", ErrSenderNoEOA, msg.From.Hex())
		}
	}
	if len(msg.AuthList) > 0 && !vm.DelegationActive(p.config, block.Number, block.Time) {
		return nil, ErrSetCodeNotActive
	}
	gas, err := IntrinsicGas(msg.Data, msg.AuthList)
	if err != nil {
		return nil, err
	}
	if msg.GasLimit < gas {
		return nil, fmt.Errorf("%w: have %d, want %d", ErrIntrinsicGas, msg.GasLimit, gas)
	}

	// 2. Buy gas.
	price := u256(msg.GasPrice)
	gasCost, overflow := new(uint256.Int).MulOverflow(uint256.NewInt(msg.GasLimit), price)
	if overflow {
		return nil, fmt.Errorf("%w: address %v", ErrInsufficientFunds, msg.From.Hex())
	}
	need, overflow := new(uint256.Int).AddOverflow(gasCost, u256(msg.Value))
	if have := statedb.GetBalance(msg.From); overflow || have.Lt(need) {
		return nil, fmt.Errorf("%w: address %v have %v want %v", ErrInsufficientFunds, msg.From.Hex(), have, need)
	}
	if err := gp.SubGas(msg.GasLimit); err != nil {
		return nil, err
	}
	statedb.SubBalance(msg.From, gasCost, tracing.BalanceChangeGasBuy)
	inner.SetNonce(msg.From, stNonce+1, tracing.NonceChangeMessage.Geth())

	// 3. Authorizations. Invalid entries are skipped, not fatal.
	for i := range msg.AuthList {
		authority, err := p.applyAuthorization(inner, &msg.AuthList[i])
		if err != nil {
			log.Debug("Skipped authorization", "index", i, "authority", authority, "err", err)
			continue
		}
		log.Debug("Applied authorization", "authority", authority, "delegate", msg.AuthList[i].Address)
	}

	// 4. Dispatch.
	meter := vm.NewGasMeter(gas)
	env := vm.NewDispatcher(block, vm.TxContext{Origin: msg.From, GasPrice: price}, statedb, meter, p.registry)
	snapshot := statedb.Snapshot()
	callErr := env.Call(msg.From, *msg.To, msg.Value, msg.Data)

	used := meter.GasUsed()
	if used > msg.GasLimit {
		statedb.RevertToSnapshot(snapshot)
		callErr = fmt.Errorf("%w: used %d, limit %d", ErrOutOfGas, used, msg.GasLimit)
		used = msg.GasLimit
	}

	// 5. Return leftover gas and pay the coinbase.
	remaining := msg.GasLimit - used
	statedb.AddBalance(msg.From, new(uint256.Int).Mul(uint256.NewInt(remaining), price), tracing.BalanceChangeGasRefund)
	gp.AddGas(remaining)
	statedb.AddBalance(block.Coinbase, new(uint256.Int).Mul(uint256.NewInt(used), price), tracing.BalanceChangeGasReward)

	return &ExecutionResult{UsedGas: used, Err: callErr, Trace: env.Trace()}, nil
}

// applyAuthorization validates one EIP-7702 authorization and installs the
// delegation designator on the authority. A zero delegate clears it.
func (p *StateProcessor) applyAuthorization(statedb *state.StateDB, auth *types.SetCodeAuthorization) (common.Address, error) {
	if !auth.ChainID.IsZero() && auth.ChainID.CmpBig(p.config.ChainID) != 0 {
		return common.Address{}, fmt.Errorf("%w: chain id %v", ErrAuthorizationInvalid, auth.ChainID.Dec())
	}
	if auth.Nonce+1 < auth.Nonce {
		return common.Address{}, fmt.Errorf("%w: nonce overflow", ErrAuthorizationInvalid)
	}
	authority, err := auth.Authority()
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: %v", ErrAuthorizationInvalid, err)
	}
	if code := statedb.GetCode(authority); len(code) > 0 {
		if _, ok := types.ParseDelegation(code); !ok {
			return authority, fmt.Errorf("%w: authority has code", ErrAuthorizationInvalid)
		}
	}
	if have := statedb.GetNonce(authority); have != auth.Nonce {
		return authority, fmt.Errorf("%w: nonce %d, authority nonce %d", ErrAuthorizationInvalid, auth.Nonce, have)
	}
	statedb.SetNonce(authority, auth.Nonce+1, tracing.NonceChangeAuthorization.Geth())
	if auth.Address == (common.Address{}) {
		statedb.SetCode(authority, nil)
		return authority, nil
	}
	statedb.SetCode(authority, types.AddressToDelegation(auth.Address))
	return authority, nil
}
