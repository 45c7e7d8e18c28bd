package main

import (
	"bufio"
	"errors"
	"fmt"
	"math/big"
	"os"
	"reflect"
	"unicode"

	"github.com/clydemeng/sweeper/core/sweep"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/holiman/uint256"
	"github.com/naoina/toml"
	"github.com/urfave/cli/v2"
)

// These settings ensure that TOML keys use the same names as Go struct fields.
var tomlSettings = toml.Config{
	NormFieldName: func(rt reflect.Type, key string) string {
		return key
	},
	FieldToKey: func(rt reflect.Type, field string) string {
		return field
	},
	MissingField: func(rt reflect.Type, field string) error {
		var link string
		if unicode.IsUpper(rune(rt.Name()[0])) && rt.PkgPath() != "main" {
			link = fmt.Sprintf(", see https://godoc.org/%s#%s for available fields", rt.PkgPath(), rt.Name())
		}
		return fmt.Errorf("field '%s' is not defined in %s%s", field, rt.String(), link)
	},
}

// EngineConfig describes one engine deployment.
type EngineConfig struct {
	Address      common.Address
	Name         string
	Version      string
	Sponsors     []common.Address
	DeadlineSkew uint64

	MinOverheadGasUnits    uint64
	MaxOverheadGasUnits    uint64
	MaxProtocolFeeGasUnits uint64
	MaxExtraFeeWei         *math.HexOrDecimal256
	MaxReimbGasPriceCapWei *math.HexOrDecimal256
}

// ChainConfig describes the chain the simulator runs against.
type ChainConfig struct {
	ChainID  uint64
	Coinbase common.Address
	GasLimit uint64
	GasPrice *math.HexOrDecimal256
}

type sweeperConfig struct {
	Engine EngineConfig
	Chain  ChainConfig
}

var defaultEngineAddress = common.HexToAddress("0x00000000000000000000000000000000005eeb00")

func defaultConfig() sweeperConfig {
	d := sweep.DefaultConfig
	return sweeperConfig{
		Engine: EngineConfig{
			Address:                defaultEngineAddress,
			Name:                   d.Name,
			Version:                d.Version,
			DeadlineSkew:           d.DeadlineSkew,
			MinOverheadGasUnits:    d.Bounds.MinOverheadGasUnits,
			MaxOverheadGasUnits:    d.Bounds.MaxOverheadGasUnits,
			MaxProtocolFeeGasUnits: d.Bounds.MaxProtocolFeeGasUnits,
			MaxExtraFeeWei:         (*math.HexOrDecimal256)(d.Bounds.MaxExtraFeeWei.ToBig()),
			MaxReimbGasPriceCapWei: (*math.HexOrDecimal256)(d.Bounds.MaxReimbGasPriceCapWei.ToBig()),
		},
		Chain: ChainConfig{
			ChainID:  56,
			GasLimit: 30_000_000,
			GasPrice: (*math.HexOrDecimal256)(big.NewInt(1_000_000_000)),
		},
	}
}

func loadConfig(file string, cfg *sweeperConfig) error {
	f, err := os.Open(file)
	if err != nil {
		return err
	}
	defer f.Close()

	err = tomlSettings.NewDecoder(bufio.NewReader(f)).Decode(cfg)
	// Add file name to errors that have a line number.
	if _, ok := err.(*toml.LineError); ok {
		err = errors.New(file + ", " + err.Error())
	}
	return err
}

// makeConfig loads the configuration file, if any, on top of the defaults and
// applies command line overrides.
func makeConfig(ctx *cli.Context) (sweeperConfig, error) {
	cfg := defaultConfig()
	if file := ctx.String(configFileFlag.Name); file != "" {
		if err := loadConfig(file, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to load config: %w", err)
		}
	}
	if ctx.IsSet(chainIDFlag.Name) {
		cfg.Chain.ChainID = ctx.Uint64(chainIDFlag.Name)
	}
	if ctx.IsSet(engineFlag.Name) {
		addr, err := parseAddress(ctx.String(engineFlag.Name))
		if err != nil {
			return cfg, err
		}
		cfg.Engine.Address = addr
	}
	return cfg, nil
}

// engineConfig converts the file representation into an engine Config.
func (c *EngineConfig) engineConfig() (sweep.Config, error) {
	extra, err := toU256("MaxExtraFeeWei", c.MaxExtraFeeWei)
	if err != nil {
		return sweep.Config{}, err
	}
	capWei, err := toU256("MaxReimbGasPriceCapWei", c.MaxReimbGasPriceCapWei)
	if err != nil {
		return sweep.Config{}, err
	}
	cfg := sweep.Config{
		Name:         c.Name,
		Version:      c.Version,
		Sponsors:     c.Sponsors,
		DeadlineSkew: c.DeadlineSkew,
		Bounds: sweep.FeeBounds{
			MinOverheadGasUnits:    c.MinOverheadGasUnits,
			MaxOverheadGasUnits:    c.MaxOverheadGasUnits,
			MaxProtocolFeeGasUnits: c.MaxProtocolFeeGasUnits,
			MaxExtraFeeWei:         extra,
			MaxReimbGasPriceCapWei: capWei,
		},
	}
	return cfg, nil
}

func toU256(field string, v *math.HexOrDecimal256) (*uint256.Int, error) {
	if v == nil {
		return nil, fmt.Errorf("%s is not set", field)
	}
	b := (*big.Int)(v)
	if b.Sign() < 0 {
		return nil, fmt.Errorf("%s is negative", field)
	}
	u, overflow := uint256.FromBig(b)
	if overflow {
		return nil, fmt.Errorf("%s exceeds 256 bits", field)
	}
	return u, nil
}

func parseAddress(s string) (common.Address, error) {
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("invalid address %q", s)
	}
	return common.HexToAddress(s), nil
}

func parseAmount(field, s string) (*uint256.Int, error) {
	v, ok := math.ParseBig256(s)
	if !ok {
		return nil, fmt.Errorf("invalid %s %q", field, s)
	}
	return toU256(field, (*math.HexOrDecimal256)(v))
}
