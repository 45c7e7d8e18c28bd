package vm

import (
	"math/big"

	"github.com/ethereum/go-ethereum/params"
)

// DelegationActive reports whether EIP-7702 delegated execution is enabled at
// the given block. Accounts can only run sweep logic once Prague is live.
func DelegationActive(cfg *params.ChainConfig, num uint64, ts uint64) bool {
	if cfg == nil {
		return false
	}
	return cfg.IsPrague(new(big.Int).SetUint64(num), ts)
}

// ForkName returns the name of the latest fork active at the given block, for
// logging.
func ForkName(cfg *params.ChainConfig, num uint64, ts uint64) string {
	bn := new(big.Int).SetUint64(num)
	switch {
	case cfg.IsOsaka(bn, ts):
		return "osaka"
	case cfg.IsPrague(bn, ts):
		return "prague"
	case cfg.IsCancun(bn, ts):
		return "cancun"
	case cfg.IsShanghai(bn, ts):
		return "shanghai"
	case cfg.IsLondon(bn):
		return "london"
	case cfg.IsBerlin(bn):
		return "berlin"
	case cfg.IsIstanbul(bn):
		return "istanbul"
	case cfg.IsByzantium(bn):
		return "byzantium"
	case cfg.IsHomestead(bn):
		return "homestead"
	default:
		return "frontier"
	}
}
