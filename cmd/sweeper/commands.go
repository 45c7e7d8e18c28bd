package main

import (
	"crypto/ecdsa"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"os"
	"strconv"
	"strings"

	"github.com/clydemeng/sweeper/core/sweep"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/olekukonko/tablewriter"
	"github.com/urfave/cli/v2"
)

var (
	digestCommand = &cli.Command{
		Name:   "digest",
		Usage:  "Compute the EIP-712 digest of an intent",
		Flags:  []cli.Flag{intentFlag},
		Action: digest,
		Description: `
The digest is bound to the engine domain, the chain id and the executing
account, which is the intent user.`,
	}
	signCommand = &cli.Command{
		Name:   "sign",
		Usage:  "Sign an intent and encode the sweep call",
		Flags:  []cli.Flag{intentFlag, keyFlag, payloadFlag},
		Action: sign,
	}
	boundsCommand = &cli.Command{
		Name:   "bounds",
		Usage:  "Validate the engine configuration and print its fee bounds",
		Action: bounds,
	}
	dumpConfigCommand = &cli.Command{
		Name:   "dumpconfig",
		Usage:  "Export the effective configuration as TOML",
		Action: dumpConfig,
	}
)

func digest(ctx *cli.Context) error {
	cfg, err := makeConfig(ctx)
	if err != nil {
		return err
	}
	in, err := readIntent(ctx.String(intentFlag.Name))
	if err != nil {
		return err
	}
	chainID := new(big.Int).SetUint64(cfg.Chain.ChainID)
	domain := sweep.DomainSeparator(cfg.Engine.Name, cfg.Engine.Version, chainID, in.User)

	table := newTable(ctx.App.Writer, "Field", "Value")
	table.Append([]string{"Account", in.User.Hex()})
	table.Append([]string{"Chain ID", strconv.FormatUint(cfg.Chain.ChainID, 10)})
	table.Append([]string{"Domain separator", domain.Hex()})
	table.Append([]string{"Struct hash", in.StructHash().Hex()})
	table.Append([]string{"Digest", sweep.TypedDataHash(domain, in.StructHash()).Hex()})
	table.Render()
	return nil
}

func sign(ctx *cli.Context) error {
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
	var payload []byte
	if s := ctx.String(payloadFlag.Name); s != "" {
		if payload, err = hexutil.Decode(s); err != nil {
			return fmt.Errorf("invalid payload: %w", err)
		}
	}
	if signer := crypto.PubkeyToAddress(key.PublicKey); signer != in.User {
		return fmt.Errorf("key belongs to %s, intent user is %s", signer.Hex(), in.User.Hex())
	}
	engineCfg, err := cfg.Engine.engineConfig()
	if err != nil {
		return err
	}
	sig, err := sweep.SignIntent(&engineCfg, new(big.Int).SetUint64(cfg.Chain.ChainID), in.User, in, key)
	if err != nil {
		return err
	}
	compact, err := sweep.CompactSignature(sig)
	if err != nil {
		return err
	}
	calldata, err := sweep.EncodeCall(in, sig, payload)
	if err != nil {
		return err
	}
	table := newTable(ctx.App.Writer, "Field", "Value")
	table.Append([]string{"Signature", hexutil.Encode(sig)})
	table.Append([]string{"Compact", hexutil.Encode(compact)})
	table.Append([]string{"Calldata", hexutil.Encode(calldata)})
	table.Render()
	return nil
}

func bounds(ctx *cli.Context) error {
	cfg, err := makeConfig(ctx)
	if err != nil {
		return err
	}
	engineCfg, err := cfg.Engine.engineConfig()
	if err != nil {
		return err
	}
	engine, err := sweep.NewEngine(engineCfg)
	if err != nil {
		return err
	}
	b := engine.Bounds()

	table := newTable(ctx.App.Writer, "Bound", "Value")
	table.Append([]string{"Overhead gas units", fmt.Sprintf("[%d, %d]", b.MinOverheadGasUnits, b.MaxOverheadGasUnits)})
	table.Append([]string{"Protocol fee gas units", fmt.Sprintf("<= %d", b.MaxProtocolFeeGasUnits)})
	table.Append([]string{"Extra fee (wei)", "<= " + b.MaxExtraFeeWei.Dec()})
	table.Append([]string{"Gas price cap (wei)", "<= " + b.MaxReimbGasPriceCapWei.Dec()})
	table.Append([]string{"Deadline skew (s)", strconv.FormatUint(engineCfg.DeadlineSkew, 10)})
	for i, s := range engine.Sponsors() {
		table.Append([]string{fmt.Sprintf("Sponsor %d", i), s.Hex()})
	}
	table.Render()
	return nil
}

func dumpConfig(ctx *cli.Context) error {
	cfg, err := makeConfig(ctx)
	if err != nil {
		return err
	}
	out, err := tomlSettings.Marshal(&cfg)
	if err != nil {
		return err
	}
	_, err = ctx.App.Writer.Write(out)
	return err
}

func newTable(w io.Writer, header ...string) *tablewriter.Table {
	table := tablewriter.NewWriter(w)
	table.SetHeader(header)
	table.SetAutoWrapText(false)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	return table
}

func readIntent(file string) (*sweep.SweepIntent, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, err
	}
	in := new(sweep.SweepIntent)
	if err := json.Unmarshal(data, in); err != nil {
		return nil, fmt.Errorf("invalid intent %s: %w", file, err)
	}
	return in, nil
}

func parseKey(s string) (*ecdsa.PrivateKey, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(s, "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid key: %w", err)
	}
	return key, nil
}
