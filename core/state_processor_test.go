package core

import (
	"crypto/ecdsa"
	"math/big"
	"os"
	"testing"

	"github.com/clydemeng/sweeper/core/sweep"
	"github.com/clydemeng/sweeper/core/vm"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/state"
	"github.com/ethereum/go-ethereum/core/tracing"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/params"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"
)

func init() {
	// Attach a human-readable terminal handler so we can see logs during tests.
	log.SetDefault(log.NewLogger(log.NewTerminalHandlerWithLevel(os.Stderr, log.LevelWarn, true)))
}

var (
	engineAddr = common.HexToAddress("0x00000000000000000000000000000000005eeb00")
	destAddr   = common.HexToAddress("0xd000000000000000000000000000000000000001")
	coinbase   = common.HexToAddress("0xc014ba5e00000000000000000000000000000000")

	oneEther = uint256.NewInt(1_000_000_000_000_000_000)
	gwei     = uint256.NewInt(1_000_000_000)
	maxFee   = uint256.NewInt(1_000_000_000_000_000) // 0.001 ether
)

type testChain struct {
	t          *testing.T
	processor  *StateProcessor
	db         state.Database
	statedb    *state.StateDB
	engine     *sweep.Engine
	header     *types.Header
	sponsorKey *ecdsa.PrivateKey
	sponsor    common.Address
	userKey    *ecdsa.PrivateKey
	user       common.Address
}

func newTestChain(t *testing.T, config *params.ChainConfig) *testChain {
	t.Helper()

	// 1. Keys and an in-memory state with funded sponsor and user.
	sponsorKey, _ := crypto.HexToECDSA("8a1f9a8f95be41cd7ccb6168179afb4504aefe388d1e14474d32c45c72ce7b7a")
	userKey, _ := crypto.HexToECDSA("b71c71a67e1177ad4e901695e1b4b9ee17ae16c6668d313eac2f96dbcda3f291")
	sponsor := crypto.PubkeyToAddress(sponsorKey.PublicKey)
	user := crypto.PubkeyToAddress(userKey.PublicKey)

	db := state.NewDatabaseForTesting()
	statedb, err := state.New(types.EmptyRootHash, db)
	if err != nil {
		t.Fatalf("failed to create state: %v", err)
	}
	statedb.AddBalance(sponsor, oneEther, tracing.BalanceChangeUnspecified)
	statedb.AddBalance(user, new(uint256.Int).Div(oneEther, uint256.NewInt(10)), tracing.BalanceChangeUnspecified)

	// 2. Deploy the engine.
	cfg := sweep.DefaultConfig
	cfg.Sponsors = []common.Address{sponsor}
	engine, err := sweep.NewEngine(cfg)
	if err != nil {
		t.Fatalf("failed to create engine: %v", err)
	}
	processor := NewStateProcessor(config)
	processor.Deploy(engineAddr, engine)

	return &testChain{
		t:          t,
		processor:  processor,
		db:         db,
		statedb:    statedb,
		engine:     engine,
		header:     &types.Header{Number: big.NewInt(1), Time: 1_700_000_000, GasLimit: 30_000_000, Coinbase: coinbase},
		sponsorKey: sponsorKey,
		sponsor:    sponsor,
		userKey:    userKey,
		user:       user,
	}
}

func (c *testChain) authorize(delegate common.Address, nonce uint64) types.SetCodeAuthorization {
	c.t.Helper()
	auth, err := types.SignSetCode(c.userKey, types.SetCodeAuthorization{
		ChainID: *uint256.MustFromBig(c.processor.Config().ChainID),
		Address: delegate,
		Nonce:   nonce,
	})
	require.NoError(c.t, err)
	return auth
}

func (c *testChain) intent(nonce uint64) *sweep.SweepIntent {
	return &sweep.SweepIntent{
		Mode:                sweep.ModeDirectTransfer,
		User:                c.user,
		Destination:         destAddr,
		DestinationChainID:  c.processor.Config().ChainID.Uint64(),
		RouteHash:           sweep.EmptyRouteHash,
		MinReceive:          new(uint256.Int),
		MaxTotalFeeWei:      maxFee,
		OverheadGasUnits:    50_000,
		ReimbGasPriceCapWei: new(uint256.Int).Mul(gwei, uint256.NewInt(2)),
		ExtraFeeWei:         new(uint256.Int),
		Deadline:            c.header.Time + 60,
		Nonce:               nonce,
	}
}

func (c *testChain) sweepMsg(nonce uint64, in *sweep.SweepIntent, gasLimit uint64, auths ...types.SetCodeAuthorization) *Message {
	c.t.Helper()
	cfg := c.engine.Config()
	sig, err := sweep.SignIntent(&cfg, c.processor.Config().ChainID, c.user, in, c.userKey)
	require.NoError(c.t, err)
	data, err := sweep.EncodeCall(in, sig, nil)
	require.NoError(c.t, err)
	return &Message{
		From:     c.sponsor,
		To:       &c.user,
		Nonce:    nonce,
		Data:     data,
		GasLimit: gasLimit,
		GasPrice: gwei,
		AuthList: auths,
	}
}

func gasCost(gas uint64) *uint256.Int {
	return new(uint256.Int).Mul(uint256.NewInt(gas), gwei)
}

// TestProcessDelegatedSweep runs the full flow: the user authorizes the
// engine, the sponsor submits the signed intent in the same message and pays
// for gas, and the account ends empty.
func TestProcessDelegatedSweep(t *testing.T) {
	c := newTestChain(t, params.MergedTestChainConfig)
	start := c.statedb.GetBalance(c.user).Clone()

	msg := c.sweepMsg(0, c.intent(0), 500_000, c.authorize(engineAddr, 0))
	res, err := c.processor.Process(c.header, c.statedb, []*Message{msg})
	require.NoError(t, err)
	require.Len(t, res.Receipts, 1)

	receipt := res.Receipts[0]
	require.Equal(t, types.ReceiptStatusSuccessful, receipt.Status)
	require.Equal(t, uint8(types.SetCodeTxType), receipt.Type)
	require.Equal(t, msg.Hash(), receipt.TxHash)
	require.Equal(t, res.GasUsed, receipt.GasUsed)

	// Delegation installed, authority nonce bumped, sweep nonce advanced.
	target, ok := types.ParseDelegation(c.statedb.GetCode(c.user))
	require.True(t, ok)
	require.Equal(t, engineAddr, target)
	require.Equal(t, uint64(1), c.statedb.GetNonce(c.user))
	require.Equal(t, uint64(1), c.statedb.GetNonce(c.sponsor))

	// Balances: the user account is empty, the destination received the
	// balance minus the fee reserve, the sponsor recovered the reserve.
	require.True(t, c.statedb.GetBalance(c.user).IsZero())
	require.Equal(t, new(uint256.Int).Sub(start, maxFee), c.statedb.GetBalance(destAddr))
	spent := gasCost(receipt.GasUsed)
	wantSponsor := new(uint256.Int).Sub(oneEther, spent)
	wantSponsor.Add(wantSponsor, maxFee)
	require.Equal(t, wantSponsor, c.statedb.GetBalance(c.sponsor))
	require.Equal(t, spent, c.statedb.GetBalance(coinbase))

	// Receipt event.
	require.Len(t, receipt.Logs, 1)
	require.Equal(t, msg.Hash(), receipt.Logs[0].TxHash)
	swept, err := sweep.ParseSweptLog(receipt.Logs[0])
	require.NoError(t, err)
	require.Equal(t, c.user, swept.Account)
	require.Equal(t, c.sponsor, swept.Sponsor)
	require.False(t, swept.Fee.Gt(maxFee))
	require.True(t, receipt.Bloom.Test(sweep.SweptTopic[:]))
	require.Equal(t, uint64(1), sweep.Nonce(vm.NewStateDB(c.statedb), c.user))
}

// TestProcessMeasuredGasExcludesIntrinsic checks that the reimbursement only
// counts gas spent inside the engine; the intrinsic cost and the outer call are
// left to the intent's overhead units.
func TestProcessMeasuredGasExcludesIntrinsic(t *testing.T) {
	c := newTestChain(t, params.MergedTestChainConfig)

	in := c.intent(0)
	msg := c.sweepMsg(0, in, 500_000, c.authorize(engineAddr, 0))
	intrinsic, err := IntrinsicGas(msg.Data, msg.AuthList)
	require.NoError(t, err)

	res, err := c.processor.Process(c.header, c.statedb, []*Message{msg})
	require.NoError(t, err)
	receipt := res.Receipts[0]
	require.Equal(t, types.ReceiptStatusSuccessful, receipt.Status)
	swept, err := sweep.ParseSweptLog(receipt.Logs[0])
	require.NoError(t, err)

	// Gas price 1 gwei is under the 2 gwei cap, extra and protocol fees are zero.
	units := new(uint256.Int).Div(swept.Fee, gwei).Uint64()
	require.True(t, new(uint256.Int).Mod(swept.Fee, gwei).IsZero())
	measured := units - in.OverheadGasUnits
	require.NotZero(t, measured)
	require.LessOrEqual(t, intrinsic+vm.CallGas+measured, receipt.GasUsed)
	require.Less(t, measured, intrinsic)
}

func TestProcessTwoSweeps(t *testing.T) {
	c := newTestChain(t, params.MergedTestChainConfig)

	first := c.sweepMsg(0, c.intent(0), 500_000, c.authorize(engineAddr, 0))
	topUp := &Message{From: c.sponsor, To: &c.user, Nonce: 1, Value: uint256.NewInt(5_000_000_000_000_000), GasLimit: 100_000, GasPrice: gwei}
	second := c.sweepMsg(2, c.intent(1), 500_000)

	res, err := c.processor.Process(c.header, c.statedb, []*Message{first, topUp, second})
	require.NoError(t, err)
	require.Len(t, res.Receipts, 3)
	for i, r := range res.Receipts {
		require.Equal(t, types.ReceiptStatusSuccessful, r.Status, "message %d", i)
		require.Equal(t, uint(i), r.TransactionIndex)
	}
	require.Equal(t, res.GasUsed, res.Receipts[2].CumulativeGasUsed)
	require.Len(t, res.Logs, 2)
	require.Equal(t, uint(0), res.Logs[0].Index)
	require.Equal(t, uint(1), res.Logs[1].Index)
	require.True(t, c.statedb.GetBalance(c.user).IsZero())
	require.Equal(t, uint64(2), sweep.Nonce(vm.NewStateDB(c.statedb), c.user))
}

// TestProcessTransientStorageCleared checks that EIP-1153 storage written by
// one message is not visible to the next one in the same block.
func TestProcessTransientStorageCleared(t *testing.T) {
	c := newTestChain(t, params.MergedTestChainConfig)

	var (
		scratch = common.HexToAddress("0x5c7a7c4000000000000000000000000000000000")
		slot    = common.HexToHash("0x01")
		seen    []common.Hash
	)
	c.processor.Deploy(scratch, vm.ContractFunc(func(call *vm.Call) error {
		seen = append(seen, call.Env.State.GetTransientState(call.Address, slot))
		if len(call.Input) > 0 {
			call.Env.State.SetTransientState(call.Address, slot, common.BytesToHash(call.Input))
		}
		return nil
	}))
	write := &Message{From: c.sponsor, To: &scratch, Nonce: 0, Data: []byte{0xaa}, GasLimit: 100_000, GasPrice: gwei}
	read := &Message{From: c.sponsor, To: &scratch, Nonce: 1, GasLimit: 100_000, GasPrice: gwei}

	res, err := c.processor.Process(c.header, c.statedb, []*Message{write, read})
	require.NoError(t, err)
	for i, r := range res.Receipts {
		require.Equal(t, types.ReceiptStatusSuccessful, r.Status, "message %d", i)
	}
	require.Equal(t, []common.Hash{{}, {}}, seen)
}

// TestProcessCommit flushes the block to the trie and checks that the
// delegation and the advanced sweep nonce survive a reload.
func TestProcessCommit(t *testing.T) {
	c := newTestChain(t, params.MergedTestChainConfig)

	msg := c.sweepMsg(0, c.intent(0), 500_000, c.authorize(engineAddr, 0))
	_, err := c.processor.Process(c.header, c.statedb, []*Message{msg})
	require.NoError(t, err)

	root, err := c.statedb.Commit(c.header.Number.Uint64(), true, false)
	require.NoError(t, err)
	reloaded, err := state.New(root, c.db)
	require.NoError(t, err)

	target, ok := types.ParseDelegation(reloaded.GetCode(c.user))
	require.True(t, ok)
	require.Equal(t, engineAddr, target)
	require.Equal(t, uint64(1), sweep.Nonce(vm.NewStateDB(reloaded), c.user))
	require.True(t, reloaded.GetBalance(c.user).IsZero())
	require.Equal(t, c.statedb.GetBalance(destAddr), reloaded.GetBalance(destAddr))
}

func TestProcessOutOfGas(t *testing.T) {
	c := newTestChain(t, params.MergedTestChainConfig)
	start := c.statedb.GetBalance(c.user).Clone()

	msg := c.sweepMsg(0, c.intent(0), 0, c.authorize(engineAddr, 0))
	intrinsic, err := IntrinsicGas(msg.Data, msg.AuthList)
	require.NoError(t, err)
	msg.GasLimit = intrinsic + 1_000

	res, err := c.processor.Process(c.header, c.statedb, []*Message{msg})
	require.NoError(t, err)
	receipt := res.Receipts[0]
	require.Equal(t, types.ReceiptStatusFailed, receipt.Status)
	require.Equal(t, msg.GasLimit, receipt.GasUsed)
	require.Empty(t, receipt.Logs)

	// The sweep was reverted; the authorization stays.
	require.Equal(t, start, c.statedb.GetBalance(c.user))
	require.True(t, c.statedb.GetBalance(destAddr).IsZero())
	require.Equal(t, uint64(1), c.statedb.GetNonce(c.user))
	require.Zero(t, sweep.Nonce(vm.NewStateDB(c.statedb), c.user))
	require.Equal(t, new(uint256.Int).Sub(oneEther, gasCost(msg.GasLimit)), c.statedb.GetBalance(c.sponsor))
}

func TestProcessRejectedSweep(t *testing.T) {
	c := newTestChain(t, params.MergedTestChainConfig)
	start := c.statedb.GetBalance(c.user).Clone()

	in := c.intent(0)
	msg := c.sweepMsg(0, in, 500_000, c.authorize(engineAddr, 0))
	// Tamper with the intent after signing.
	decoded, err := sweep.DecodeCall(msg.Data)
	require.NoError(t, err)
	decoded.Intent.Destination = coinbase
	msg.Data, err = sweep.EncodeCall(&decoded.Intent, decoded.Signature, decoded.Payload)
	require.NoError(t, err)

	res, err := c.processor.Process(c.header, c.statedb, []*Message{msg})
	require.NoError(t, err)
	require.Equal(t, types.ReceiptStatusFailed, res.Receipts[0].Status)
	require.Equal(t, start, c.statedb.GetBalance(c.user))
	require.Zero(t, sweep.Nonce(vm.NewStateDB(c.statedb), c.user))
	require.Equal(t, gasCost(res.GasUsed), c.statedb.GetBalance(coinbase))
}

func TestProcessInvalidAuthorizationSkipped(t *testing.T) {
	c := newTestChain(t, params.MergedTestChainConfig)
	start := c.statedb.GetBalance(c.user).Clone()

	auth := c.authorize(engineAddr, 0)
	auth.ChainID = *uint256.NewInt(999)

	msg := c.sweepMsg(0, c.intent(0), 500_000, auth)
	res, err := c.processor.Process(c.header, c.statedb, []*Message{msg})
	require.NoError(t, err)

	// Without delegation the call lands on a plain account and moves nothing.
	require.Equal(t, types.ReceiptStatusSuccessful, res.Receipts[0].Status)
	require.Empty(t, c.statedb.GetCode(c.user))
	require.Zero(t, c.statedb.GetNonce(c.user))
	require.Equal(t, start, c.statedb.GetBalance(c.user))
	require.Empty(t, res.Logs)
}

func TestProcessClearDelegation(t *testing.T) {
	c := newTestChain(t, params.MergedTestChainConfig)
	c.statedb.SetCode(c.user, types.AddressToDelegation(engineAddr))
	c.statedb.SetNonce(c.user, 3, tracing.NonceChangeUnspecified)

	msg := &Message{From: c.sponsor, To: &destAddr, GasLimit: 100_000, GasPrice: gwei, AuthList: []types.SetCodeAuthorization{c.authorize(common.Address{}, 3)}}
	_, err := c.processor.Process(c.header, c.statedb, []*Message{msg})
	require.NoError(t, err)
	require.Empty(t, c.statedb.GetCode(c.user))
	require.Equal(t, uint64(4), c.statedb.GetNonce(c.user))
}

func TestProcessInvalidMessages(t *testing.T) {
	prePrague := *params.MergedTestChainConfig
	prePrague.PragueTime = nil

	tests := []struct {
		name   string
		config *params.ChainConfig
		msg    func(c *testChain) *Message
		err    error
	}{
		{"nonce-too-low", params.MergedTestChainConfig, func(c *testChain) *Message {
			c.statedb.SetNonce(c.sponsor, 1, tracing.NonceChangeUnspecified)
			return c.sweepMsg(0, c.intent(0), 500_000)
		}, ErrNonceTooLow},
		{"nonce-too-high", params.MergedTestChainConfig, func(c *testChain) *Message {
			return c.sweepMsg(1, c.intent(0), 500_000)
		}, ErrNonceTooHigh},
		{"intrinsic-gas", params.MergedTestChainConfig, func(c *testChain) *Message {
			return c.sweepMsg(0, c.intent(0), params.TxGas)
		}, ErrIntrinsicGas},
		{"insufficient-funds", params.MergedTestChainConfig, func(c *testChain) *Message {
			msg := c.sweepMsg(0, c.intent(0), 500_000)
			msg.Value = oneEther
			return msg
		}, ErrInsufficientFunds},
		{"no-recipient", params.MergedTestChainConfig, func(c *testChain) *Message {
			msg := c.sweepMsg(0, c.intent(0), 500_000)
			msg.To = nil
			return msg
		}, ErrMissingRecipient},
		{"block-gas-limit", params.MergedTestChainConfig, func(c *testChain) *Message {
			return c.sweepMsg(0, c.intent(0), 31_000_000)
		}, ErrGasLimitReached},
		{"set-code-before-prague", &prePrague, func(c *testChain) *Message {
			return c.sweepMsg(0, c.intent(0), 500_000, c.authorize(engineAddr, 0))
		}, ErrSetCodeNotActive},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestChain(t, tt.config)
			before := c.statedb.GetBalance(c.sponsor).Clone()
			_, err := c.processor.Process(c.header, c.statedb, []*Message{tt.msg(c)})
			require.ErrorIs(t, err, tt.err)
			require.Equal(t, before, c.statedb.GetBalance(c.sponsor))
		})
	}
}

func TestIntrinsicGas(t *testing.T) {
	gas, err := IntrinsicGas(nil, nil)
	require.NoError(t, err)
	require.Equal(t, params.TxGas, gas)

	gas, err = IntrinsicGas([]byte{0, 1, 2}, make([]types.SetCodeAuthorization, 2))
	require.NoError(t, err)
	require.Equal(t, params.TxGas+params.TxDataZeroGas+2*params.TxDataNonZeroGasEIP2028+2*params.CallNewAccountGas, gas)
}

func TestGasPool(t *testing.T) {
	gp := new(GasPool).AddGas(100)
	require.NoError(t, gp.SubGas(60))
	require.ErrorIs(t, gp.SubGas(41), ErrGasLimitReached)
	require.Equal(t, uint64(40), gp.Gas())
	require.Equal(t, "40", gp.String())
}
