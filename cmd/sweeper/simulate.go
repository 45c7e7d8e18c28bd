package main

import (
	"crypto/ecdsa"
	"fmt"
	"math/big"

	"github.com/clydemeng/sweeper/core"
	"github.com/clydemeng/sweeper/core/sweep"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/state"
	"github.com/ethereum/go-ethereum/core/tracing"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/params"
	"github.com/holiman/uint256"
	"github.com/urfave/cli/v2"
)

const simulateGasLimit = 1_000_000

// simulationSponsor submits the sweep when the configuration names no sponsor.
var simulationSponsor = common.HexToAddress("0x5905000000000000000000000000000000000001")

var simulateCommand = &cli.Command{
	Name:  "simulate",
	Usage: "Execute an intent against an in-memory chain",
	Flags: []cli.Flag{intentFlag, keyFlag, payloadFlag, balanceFlag, timeFlag},
	Description: `
The simulator funds the intent user, delegates the account to the engine with
an EIP-7702 authorization and submits the signed sweep from the first
configured sponsor in the same message.`,
	Action: simulate,
}

type simulation struct {
	Receipt    *types.Receipt
	Swept      *sweep.Receipt
	Err        error
	Sponsor    common.Address
	SponsorNet *big.Int
	Recipient  *uint256.Int
	Account    *uint256.Int
}

func simulate(ctx *cli.Context) error {
	cfg, err := makeConfig(ctx)
	if err != nil {
		return err
	}
	in, err := readIntent(ctx.String(intentFlag.Name))
	if err != nil {
		return err
	}
	key, err := parseKey(ctx.String(keyFlag.Name))
	if err != nil {
		return err
	}
	balance, err := parseAmount("balance", ctx.String(balanceFlag.Name))
	if err != nil {
		return err
	}
	var payload []byte
	if s := ctx.String(payloadFlag.Name); s != "" {
		if payload, err = hexutil.Decode(s); err != nil {
			return fmt.Errorf("invalid payload: %w", err)
		}
	}
	now := in.Deadline
	if ctx.IsSet(timeFlag.Name) {
		now = ctx.Uint64(timeFlag.Name)
	}
	sim, err := runSimulation(&cfg, in, payload, balance, now, key)
	if err != nil {
		return err
	}

	table := newTable(ctx.App.Writer, "Field", "Value")
	status := "success"
	if sim.Receipt.Status != types.ReceiptStatusSuccessful {
		status = fmt.Sprintf("failed: %v", sim.Err)
	}
	table.Append([]string{"Status", status})
	table.Append([]string{"Gas used", fmt.Sprint(sim.Receipt.GasUsed)})
	if sim.Swept != nil {
		table.Append([]string{"Recipient", sim.Swept.Recipient.Hex()})
		table.Append([]string{"Fee", sim.Swept.Fee.Dec()})
		table.Append([]string{"Surplus", sim.Swept.Surplus.Dec()})
		table.Append([]string{"Routed", sim.Swept.Routed.Dec()})
	}
	table.Append([]string{"Sponsor", sim.Sponsor.Hex()})
	table.Append([]string{"Sponsor net", sim.SponsorNet.String()})
	table.Append([]string{"Account balance", sim.Account.Dec()})
	table.Append([]string{"Recipient balance", sim.Recipient.Dec()})
	table.Render()
	return nil
}

// runSimulation executes one delegated sweep on a fresh in-memory state.
func runSimulation(cfg *sweeperConfig, in *sweep.SweepIntent, payload []byte, balance *uint256.Int, now uint64, key *ecdsa.PrivateKey) (*simulation, error) {
	if user := crypto.PubkeyToAddress(key.PublicKey); user != in.User {
		return nil, fmt.Errorf("key belongs to %s, intent user is %s", user.Hex(), in.User.Hex())
	}
	engineCfg, err := cfg.Engine.engineConfig()
	if err != nil {
		return nil, err
	}
	if len(engineCfg.Sponsors) == 0 {
		engineCfg.Sponsors = []common.Address{simulationSponsor}
		log.Info("No sponsor configured, using simulation sponsor", "address", simulationSponsor)
	}
	sponsor := engineCfg.Sponsors[0]
	engine, err := sweep.NewEngine(engineCfg)
	if err != nil {
		return nil, err
	}

	chainConfig := *params.MergedTestChainConfig
	chainConfig.ChainID = new(big.Int).SetUint64(cfg.Chain.ChainID)
	processor := core.NewStateProcessor(&chainConfig)
	processor.Deploy(cfg.Engine.Address, engine)

	statedb, err := state.New(types.EmptyRootHash, state.NewDatabaseForTesting())
	if err != nil {
		return nil, err
	}
	gasPrice, err := toU256("GasPrice", cfg.Chain.GasPrice)
	if err != nil {
		return nil, err
	}
	funding := new(uint256.Int).Mul(uint256.NewInt(simulateGasLimit), gasPrice)
	statedb.AddBalance(sponsor, funding, tracing.BalanceChangeUnspecified)
	statedb.AddBalance(in.User, balance, tracing.BalanceChangeUnspecified)

	auth, err := types.SignSetCode(key, types.SetCodeAuthorization{
		ChainID: *uint256.MustFromBig(chainConfig.ChainID),
		Address: cfg.Engine.Address,
		Nonce:   statedb.GetNonce(in.User),
	})
	if err != nil {
		return nil, err
	}
	sig, err := sweep.SignIntent(&engineCfg, chainConfig.ChainID, in.User, in, key)
	if err != nil {
		return nil, err
	}
	data, err := sweep.EncodeCall(in, sig, payload)
	if err != nil {
		return nil, err
	}
	msg := &core.Message{
		From:     sponsor,
		To:       &in.User,
		Data:     data,
		GasLimit: simulateGasLimit,
		GasPrice: gasPrice,
		AuthList: []types.SetCodeAuthorization{auth},
	}
	header := &types.Header{
		Number:   big.NewInt(1),
		Time:     now,
		GasLimit: cfg.Chain.GasLimit,
		Coinbase: cfg.Chain.Coinbase,
	}
	res, err := processor.Process(header, statedb, []*core.Message{msg})
	if err != nil {
		return nil, err
	}

	sim := &simulation{
		Receipt: res.Receipts[0],
		Sponsor: sponsor,
		Account: statedb.GetBalance(in.User).Clone(),
	}
	sim.SponsorNet = new(big.Int).Sub(statedb.GetBalance(sponsor).ToBig(), funding.ToBig())
	for _, call := range res.Traces[0] {
		if call.Depth == 0 {
			sim.Err = call.Err
		}
	}
	for _, l := range sim.Receipt.Logs {
		if swept, err := sweep.ParseSweptLog(l); err == nil {
			sim.Swept = swept
		}
	}
	sim.Recipient = statedb.GetBalance(in.Recipient()).Clone()
	return sim, nil
}
