package sweep

import (
	"github.com/ethereum/go-ethereum/metrics"
	"github.com/holiman/uint256"
)

var (
	executedCounter = metrics.NewRegisteredCounter("sweep/executed", nil)
	feeMeter        = metrics.NewRegisteredMeter("sweep/fee", nil)
	surplusMeter    = metrics.NewRegisteredMeter("sweep/surplus", nil)
	routedMeter     = metrics.NewRegisteredMeter("sweep/routed", nil)

	rejectedCounters = map[error]counter{
		ErrAuthorization: metrics.NewRegisteredCounter("sweep/rejected/authorization", nil),
		ErrReplay:        metrics.NewRegisteredCounter("sweep/rejected/replay", nil),
		ErrTiming:        metrics.NewRegisteredCounter("sweep/rejected/timing", nil),
		ErrBounds:        metrics.NewRegisteredCounter("sweep/rejected/bounds", nil),
		ErrEffect:        metrics.NewRegisteredCounter("sweep/rejected/effect", nil),
		ErrInvariant:     metrics.NewRegisteredCounter("sweep/rejected/invariant", nil),
	}
	rejectedOther = metrics.NewRegisteredCounter("sweep/rejected/other", nil)
)

type counter interface{ Inc(int64) }

func markExecuted(r *Receipt) {
	executedCounter.Inc(1)
	feeMeter.Mark(gweiOf(r.Fee))
	surplusMeter.Mark(gweiOf(r.Surplus))
	routedMeter.Mark(gweiOf(r.Routed))
}

func markRejected(err error) {
	if c, ok := rejectedCounters[Classify(err)]; ok {
		c.Inc(1)
		return
	}
	rejectedOther.Inc(1)
}

var gwei = uint256.NewInt(1_000_000_000)

// gweiOf converts a wei amount to gwei for meters, which only hold int64.
func gweiOf(v *uint256.Int) int64 {
	g := new(uint256.Int).Div(u256(v), gwei)
	if !g.IsUint64() || g.Uint64() > 1<<62 {
		return 1 << 62
	}
	return int64(g.Uint64())
}
