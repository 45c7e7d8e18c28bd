package vm

import (
	"errors"
	"math/big"

	"github.com/clydemeng/sweeper/tracing"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/params"
	"github.com/holiman/uint256"
)

var (
	ErrDepth               = errors.New("max call depth exceeded")
	ErrInsufficientBalance = errors.New("insufficient balance for transfer")
)

// Contract is Go-native code that runs when an account holding it (directly,
// or through an EIP-7702 delegation) receives a call. Returning an error
// reverts every effect of the call, including the attached value.
type Contract interface {
	Run(call *Call) error
}

// ContractFunc adapts a plain function to the Contract interface.
type ContractFunc func(call *Call) error

func (f ContractFunc) Run(call *Call) error { return f(call) }

// BlockContext carries the block-level environment visible to contracts.
type BlockContext struct {
	Number   uint64
	Time     uint64
	ChainID  *big.Int
	Coinbase common.Address
}

// TxContext carries the message-level environment visible to contracts.
type TxContext struct {
	Origin   common.Address
	GasPrice *uint256.Int
}

// Call describes one invocation of a contract.
type Call struct {
	Caller  common.Address // immediate sender of the call
	Address common.Address // account the code executes as
	Code    common.Address // address the code was resolved from
	Value   *uint256.Int
	Input   []byte
	Depth   int

	Env *Dispatcher
}

// Dispatcher moves value between accounts and runs the contracts attached to
// the receiving side. One dispatcher serves exactly one message.
type Dispatcher struct {
	Block BlockContext
	Tx    TxContext
	State StateDB
	Gas   *GasMeter

	registry *Registry
	depth    int
	trace    []CallMetadata
}

// NewDispatcher creates a dispatcher for a single message.
func NewDispatcher(block BlockContext, tx TxContext, statedb StateDB, gas *GasMeter, registry *Registry) *Dispatcher {
	if gas == nil {
		gas = NewGasMeter(0)
	}
	if tx.GasPrice == nil {
		tx.GasPrice = new(uint256.Int)
	}
	return &Dispatcher{
		Block:    block,
		Tx:       tx,
		State:    statedb,
		Gas:      gas,
		registry: registry,
	}
}

// Resolve returns the contract that runs when addr is called, following an
// EIP-7702 delegation designator if the account carries one.
func (d *Dispatcher) Resolve(addr common.Address) (Contract, common.Address, bool) {
	codeAddr := addr
	if target, ok := types.ParseDelegation(d.State.GetCode(addr)); ok {
		codeAddr = target
	}
	c, ok := d.registry.Lookup(codeAddr)
	return c, codeAddr, ok
}

// Call transfers value from -> to and runs the contract resolved for to, if any.
// On error all effects of the call are reverted.
func (d *Dispatcher) Call(from, to common.Address, value *uint256.Int, input []byte) error {
	return d.CallWithReason(from, to, value, input, tracing.BalanceChangeCallValue)
}

// CallWithReason is Call with an explicit balance-change reason for the
// attached value.
func (d *Dispatcher) CallWithReason(from, to common.Address, value *uint256.Int, input []byte, reason tracing.BalanceChangeReason) error {
	if value == nil {
		value = new(uint256.Int)
	}
	if d.depth > int(params.CallCreateDepth) {
		return ErrDepth
	}
	gas := CallGas
	if !value.IsZero() {
		gas += CallValueGas
	}
	d.Gas.Charge(gas)

	if !value.IsZero() && d.State.GetBalance(from).Lt(value) {
		return ErrInsufficientBalance
	}
	snapshot := d.State.Snapshot()

	if !value.IsZero() {
		d.State.SubBalance(from, value, reason)
		d.State.AddBalance(to, value, reason)
	}
	meta := CallMetadata{
		Depth: d.depth,
		From:  from,
		To:    to,
		Value: new(uint256.Int).Set(value),
		Input: common.CopyBytes(input),
	}
	var err error
	if contract, codeAddr, ok := d.Resolve(to); ok {
		meta.Code = codeAddr
		d.depth++
		err = contract.Run(&Call{
			Caller:  from,
			Address: to,
			Code:    codeAddr,
			Value:   value,
			Input:   input,
			Depth:   d.depth,
			Env:     d,
		})
		d.depth--
	}
	meta.Err = err
	d.trace = append(d.trace, meta)

	if err != nil {
		d.State.RevertToSnapshot(snapshot)
		log.Debug("Call reverted", "from", from, "to", to, "value", value, "depth", d.depth, "err", err)
		return err
	}
	return nil
}

// Transfer moves value without running code on the receiving side. It is used
// for host-level accounting such as gas purchase.
func (d *Dispatcher) Transfer(from, to common.Address, value *uint256.Int, reason tracing.BalanceChangeReason) error {
	if value == nil || value.IsZero() {
		return nil
	}
	if d.State.GetBalance(from).Lt(value) {
		return ErrInsufficientBalance
	}
	d.State.SubBalance(from, value, reason)
	d.State.AddBalance(to, value, reason)
	return nil
}

// Trace returns the calls performed so far, in completion order.
func (d *Dispatcher) Trace() []CallMetadata {
	return append([]CallMetadata(nil), d.trace...)
}
