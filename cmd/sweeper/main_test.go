package main

import (
	"bytes"
	"encoding/json"
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/clydemeng/sweeper/core/sweep"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"
)

const (
	userKeyHex = "b71c71a67e1177ad4e901695e1b4b9ee17ae16c6668d313eac2f96dbcda3f291"
	testConfig = `
[Engine]
Address = "0x00000000000000000000000000000000005eeb00"
Name = "DelegatedSweep"
Version = "1"
Sponsors = ["0x5905000000000000000000000000000000000002"]
DeadlineSkew = 30
MinOverheadGasUnits = 21000
MaxOverheadGasUnits = 200000
MaxProtocolFeeGasUnits = 100000
MaxExtraFeeWei = "1000000000000000"
MaxReimbGasPriceCapWei = "0xe8d4a51000"

[Chain]
ChainID = 97
Coinbase = "0xc014ba5e00000000000000000000000000000000"
GasLimit = 30000000
GasPrice = "1000000000"
`
)

var (
	testSponsor = common.HexToAddress("0x5905000000000000000000000000000000000002")
	testDest    = common.HexToAddress("0xd000000000000000000000000000000000000001")
)

func testIntent(t *testing.T) *sweep.SweepIntent {
	t.Helper()
	key, err := crypto.HexToECDSA(userKeyHex)
	require.NoError(t, err)
	return &sweep.SweepIntent{
		Mode:                sweep.ModeDirectTransfer,
		User:                crypto.PubkeyToAddress(key.PublicKey),
		Destination:         testDest,
		DestinationChainID:  97,
		RouteHash:           sweep.EmptyRouteHash,
		MinReceive:          new(uint256.Int),
		MaxTotalFeeWei:      uint256.NewInt(1_000_000_000_000_000),
		OverheadGasUnits:    50_000,
		ExtraFeeWei:         new(uint256.Int),
		ReimbGasPriceCapWei: uint256.NewInt(2_000_000_000),
		Deadline:            1_700_000_000,
	}
}

func writeFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, data, 0o600))
	return path
}

func writeIntent(t *testing.T, in *sweep.SweepIntent) string {
	t.Helper()
	data, err := json.Marshal(in)
	require.NoError(t, err)
	return writeFile(t, "intent.json", data)
}

func runApp(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	app := newApp()
	app.Writer = &out
	app.ErrWriter = &errOut
	err := app.Run(append([]string{"sweeper", "--verbosity", "0"}, args...))
	return out.String(), err
}

func TestLoadConfig(t *testing.T) {
	cfg := defaultConfig()
	require.NoError(t, loadConfig(writeFile(t, "sweeper.toml", []byte(testConfig)), &cfg))
	require.Equal(t, uint64(97), cfg.Chain.ChainID)
	require.Equal(t, []common.Address{testSponsor}, cfg.Engine.Sponsors)

	engineCfg, err := cfg.Engine.engineConfig()
	require.NoError(t, err)
	require.NoError(t, engineCfg.Validate())
	require.Equal(t, uint64(30), engineCfg.DeadlineSkew)
	require.Equal(t, sweep.DefaultConfig.Bounds.MaxExtraFeeWei, engineCfg.Bounds.MaxExtraFeeWei)
	require.Equal(t, sweep.DefaultConfig.Bounds.MaxReimbGasPriceCapWei, engineCfg.Bounds.MaxReimbGasPriceCapWei)
}

func TestLoadConfigUnknownField(t *testing.T) {
	cfg := defaultConfig()
	err := loadConfig(writeFile(t, "bad.toml", []byte("[Engine]\nSponsor = \"0x01\"\n")), &cfg)
	require.Error(t, err)
	require.Contains(t, err.Error(), "Sponsor")
}

func TestDumpConfigRoundTrip(t *testing.T) {
	out, err := runApp(t, "--config", writeFile(t, "sweeper.toml", []byte(testConfig)), "dumpconfig")
	require.NoError(t, err)

	cfg := defaultConfig()
	require.NoError(t, loadConfig(writeFile(t, "dump.toml", []byte(out)), &cfg))
	require.Equal(t, uint64(97), cfg.Chain.ChainID)
	require.Equal(t, []common.Address{testSponsor}, cfg.Engine.Sponsors)
}

func TestBoundsCommand(t *testing.T) {
	out, err := runApp(t, "--config", writeFile(t, "sweeper.toml", []byte(testConfig)), "bounds")
	require.NoError(t, err)
	require.Contains(t, out, "[21000, 200000]")
	require.Contains(t, out, testSponsor.Hex())

	// The defaults carry no sponsor and cannot be deployed.
	_, err = runApp(t, "bounds")
	require.Error(t, err)
}

func TestDigestCommand(t *testing.T) {
	in := testIntent(t)
	out, err := runApp(t, "--chainid", "97", "digest", "--intent", writeIntent(t, in))
	require.NoError(t, err)

	cfg := sweep.DefaultConfig
	want := sweep.Digest(cfg.Name, cfg.Version, big.NewInt(97), in.User, in)
	require.Contains(t, out, want.Hex())
}

func TestSignCommand(t *testing.T) {
	in := testIntent(t)
	out, err := runApp(t, "--config", writeFile(t, "sweeper.toml", []byte(testConfig)), "sign", "--intent", writeIntent(t, in), "--key", "0x"+userKeyHex)
	require.NoError(t, err)

	var calldata string
	for _, field := range strings.Fields(out) {
		if strings.HasPrefix(field, "0x") && len(field) > 200 {
			calldata = field
		}
	}
	require.NotEmpty(t, calldata)
	call, err := sweep.DecodeCall(common.FromHex(calldata))
	require.NoError(t, err)
	require.Equal(t, in.User, call.Intent.User)
	require.Len(t, call.Signature, 65)

	// Keys other than the intent user are refused.
	_, err = runApp(t, "sign", "--intent", writeIntent(t, in), "--key", "8a1f9a8f95be41cd7ccb6168179afb4504aefe388d1e14474d32c45c72ce7b7a")
	require.ErrorContains(t, err, "intent user")
}

func TestRunSimulation(t *testing.T) {
	cfg := defaultConfig()
	require.NoError(t, loadConfig(writeFile(t, "sweeper.toml", []byte(testConfig)), &cfg))
	key, err := parseKey(userKeyHex)
	require.NoError(t, err)
	in := testIntent(t)
	balance := uint256.NewInt(100_000_000_000_000_000)

	sim, err := runSimulation(&cfg, in, nil, balance, in.Deadline, key)
	require.NoError(t, err)
	require.Equal(t, types.ReceiptStatusSuccessful, sim.Receipt.Status)
	require.NoError(t, sim.Err)
	require.NotNil(t, sim.Swept)
	require.Equal(t, testSponsor, sim.Sponsor)
	require.True(t, sim.Account.IsZero())
	require.Equal(t, new(uint256.Int).Sub(balance, in.MaxTotalFeeWei), sim.Recipient)
	require.Equal(t, sim.Swept.Routed, sim.Recipient)

	// Past the deadline plus skew the sweep reverts and nothing moves.
	sim, err = runSimulation(&cfg, in, nil, balance, in.Deadline+31, key)
	require.NoError(t, err)
	require.Equal(t, types.ReceiptStatusFailed, sim.Receipt.Status)
	require.ErrorIs(t, sim.Err, sweep.ErrTiming)
	require.Equal(t, balance, sim.Account)
	require.True(t, sim.Recipient.IsZero())
	require.Equal(t, -1, sim.SponsorNet.Sign())
}

func TestSimulateCommand(t *testing.T) {
	in := testIntent(t)
	out, err := runApp(t, "--chainid", "97", "simulate", "--intent", writeIntent(t, in), "--key", userKeyHex, "--balance", "0x16345785d8a0000")
	require.NoError(t, err)
	require.Contains(t, out, "success")
	require.Contains(t, out, "99000000000000000")
}
