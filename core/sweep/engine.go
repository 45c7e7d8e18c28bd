package sweep

import (
	"fmt"
	"math"
	"math/big"

	"github.com/clydemeng/sweeper/core/vm"
	mapset "github.com/deckarep/golang-set/v2"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
)

const domainCacheSize = 256

// Engine validates and executes sweep intents on behalf of accounts that
// delegate to it. An Engine holds only its immutable configuration; all
// per-account state lives in the account's own storage.
type Engine struct {
	cfg      Config
	sponsors mapset.Set[common.Address]
	domains  *domainCache
}

// NewEngine creates an engine for the given configuration.
func NewEngine(cfg Config) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg = cfg.copy()
	sponsors, err := newSponsorSet(cfg.Sponsors)
	if err != nil {
		return nil, err
	}
	return &Engine{
		cfg:      cfg,
		sponsors: sponsors,
		domains:  newDomainCache(cfg.Name, cfg.Version, domainCacheSize),
	}, nil
}

// Run implements vm.Contract. Calls without input are plain value receipts;
// everything else must be an encoded SweepCall.
func (e *Engine) Run(call *vm.Call) error {
	if len(call.Input) == 0 {
		return nil
	}
	sc, err := DecodeCall(call.Input)
	if err != nil {
		markRejected(err)
		return err
	}
	_, err = e.Sweep(call.Env, call.Caller, call.Address, &sc.Intent, sc.Signature, sc.Payload)
	return err
}

// Sweep executes one signed intent against account, submitted by caller. On
// success the account balance is exactly zero, the nonce has advanced by one
// and a Swept log has been emitted. On failure every effect is reverted and
// the returned error unwraps to one of the error classes.
func (e *Engine) Sweep(env *vm.Dispatcher, caller, account common.Address, in *SweepIntent, sig, payload []byte) (*Receipt, error) {
	entryGas := env.Gas.GasUsed()
	guard := reentrancyGuard{state: env.State, account: account}
	env.Gas.Charge(vm.TransientGas)
	if guard.locked() {
		markRejected(ErrReentrantCall)
		log.Debug("Rejected reentrant sweep", "account", account, "caller", caller)
		return nil, ErrReentrantCall
	}
	snapshot := env.State.Snapshot()
	guard.lock()

	receipt, err := e.sweep(env, entryGas, caller, account, in, sig, payload)
	if err != nil {
		env.State.RevertToSnapshot(snapshot)
		markRejected(err)
		log.Debug("Rejected sweep", "account", account, "caller", caller, "nonce", in.Nonce, "class", className(Classify(err)), "err", err)
		return nil, err
	}
	env.Gas.Charge(vm.TransientGas)
	guard.unlock()

	markExecuted(receipt)
	log.Info("Swept account", "account", account, "mode", receipt.Mode, "recipient", receipt.Recipient,
		"nonce", receipt.Nonce, "fee", receipt.Fee, "surplus", receipt.Surplus, "routed", receipt.Routed)
	return receipt, nil
}

// sweep runs the checks and effects of one invocation. entryGas is the meter
// reading when the engine was entered; gas spent before that point (intrinsic
// cost, the outer call) is covered by the intent's overhead units.
func (e *Engine) sweep(env *vm.Dispatcher, entryGas uint64, caller, account common.Address, in *SweepIntent, sig, payload []byte) (*Receipt, error) {
	if !e.sponsors.Contains(caller) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSponsor, caller)
	}
	if err := e.checkDeadline(env.Block.Time, in.Deadline); err != nil {
		return nil, err
	}
	if err := in.ValidateShape(); err != nil {
		return nil, err
	}
	if in.User != account {
		return nil, fmt.Errorf("%w: user %s, account %s", ErrUserMismatch, in.User, account)
	}

	// Authenticate.
	env.Gas.Charge(vm.Keccak256Gas(15*32) + vm.Keccak256Gas(66) + vm.EcrecoverGas)
	digest := TypedDataHash(e.domains.separator(env.Block.ChainID, account), in.StructHash())
	signer, err := RecoverSigner(digest, sig)
	if err != nil {
		return nil, err
	}
	if signer != in.User {
		return nil, fmt.Errorf("%w: recovered %s", ErrSignerMismatch, signer)
	}

	// Replay protection.
	ledger := newNonceLedger(env.State, account)
	env.Gas.Charge(vm.ColdSloadGas)
	if have := ledger.Read(); in.Nonce != have {
		return nil, fmt.Errorf("%w: intent %d, account %d", ErrNonceMismatch, in.Nonce, have)
	}

	// Bounds and route commitment, before any value moves.
	if err := e.cfg.Bounds.Check(in); err != nil {
		return nil, err
	}
	env.Gas.Charge(vm.Keccak256Gas(len(payload)))
	if err := checkRoute(in, payload); err != nil {
		return nil, err
	}
	measured := env.Gas.GasUsed() - entryGas
	q, err := quote(in, env.State.GetBalance(account), measured, env.Tx.GasPrice)
	if err != nil {
		return nil, err
	}
	if in.Mode == ModeDirectTransfer && q.Remainder.Lt(u256(in.MinReceive)) {
		return nil, fmt.Errorf("%w: %s < %s", ErrBelowMinReceive, q.Remainder, u256(in.MinReceive))
	}

	// Effects, then interactions.
	env.Gas.Charge(vm.SstoreGas)
	ledger.advance()

	if err := paySponsor(env, account, caller, q); err != nil {
		return nil, err
	}
	if err := route(env, account, in, payload, q.Remainder); err != nil {
		return nil, err
	}
	if err := checkZeroBalance(env.State, account); err != nil {
		return nil, err
	}

	receipt := &Receipt{
		Mode:               in.Mode,
		Account:            account,
		Sponsor:            caller,
		Recipient:          in.Recipient(),
		DestinationChainID: in.DestinationChainID,
		Nonce:              in.Nonce,
		Digest:             digest,
		Balance:            q.Balance,
		Fee:                q.Fee,
		Surplus:            q.Surplus,
		Routed:             q.Remainder,
		MeasuredGas:        measured,
	}
	l, err := sweptLog(receipt, env.Block.Number)
	if err != nil {
		return nil, fmt.Errorf("%w: encode Swept: %v", ErrInvariant, err)
	}
	env.Gas.Charge(vm.LogGas(len(l.Topics), len(l.Data)))
	env.State.AddLog(l)
	return receipt, nil
}

// checkDeadline accepts an intent while now <= deadline + DeadlineSkew.
func (e *Engine) checkDeadline(now, deadline uint64) error {
	limit := deadline
	if e.cfg.DeadlineSkew > math.MaxUint64-deadline {
		limit = math.MaxUint64
	} else {
		limit += e.cfg.DeadlineSkew
	}
	if now > limit {
		return fmt.Errorf("%w: deadline %d, now %d", ErrExpired, deadline, now)
	}
	return nil
}

// Nonce returns the current sweep nonce of account.
func (e *Engine) Nonce(state vm.StateDB, account common.Address) uint64 {
	return Nonce(state, account)
}

// DomainSeparator returns the EIP-712 domain separator for account on the
// given chain.
func (e *Engine) DomainSeparator(chainID *big.Int, account common.Address) common.Hash {
	return e.domains.separator(chainID, account)
}

// Digest returns the digest a user signs for the intent on the given chain.
func (e *Engine) Digest(chainID *big.Int, account common.Address, in *SweepIntent) common.Hash {
	return TypedDataHash(e.DomainSeparator(chainID, account), in.StructHash())
}

// IsSponsor reports whether addr may submit sweeps.
func (e *Engine) IsSponsor(addr common.Address) bool {
	return e.sponsors.Contains(addr)
}

// Sponsors returns the sponsor set in configuration order.
func (e *Engine) Sponsors() []common.Address {
	return append([]common.Address(nil), e.cfg.Sponsors...)
}

// Bounds returns the deployed fee bounds.
func (e *Engine) Bounds() FeeBounds {
	cpy := e.cfg.copy()
	return cpy.Bounds
}

// Config returns a copy of the engine configuration.
func (e *Engine) Config() Config {
	return e.cfg.copy()
}
