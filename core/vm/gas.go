package vm

import (
	"math"

	"github.com/ethereum/go-ethereum/params"
)

// GasMeter accumulates the gas consumed by one message. It never fails on its
// own; the processor compares the total against the message gas limit once the
// call has returned.
type GasMeter struct {
	used uint64
}

// NewGasMeter returns a meter that starts at the given intrinsic cost.
func NewGasMeter(intrinsic uint64) *GasMeter {
	return &GasMeter{used: intrinsic}
}

// Charge adds gas to the meter, saturating at the uint64 maximum.
func (m *GasMeter) Charge(gas uint64) {
	if m.used > math.MaxUint64-gas {
		m.used = math.MaxUint64
		return
	}
	m.used += gas
}

// GasUsed returns the gas consumed so far.
func (m *GasMeter) GasUsed() uint64 { return m.used }

// Gas costs charged by the dispatcher and the sweep engine. They follow the
// Berlin/Cancun schedule for the equivalent EVM operations.
const (
	// CallGas is the cost of a CALL to a cold account.
	CallGas = params.ColdAccountAccessCostEIP2929
	// CallValueGas is the surcharge for a CALL carrying value.
	CallValueGas = params.CallValueTransferGas
	// ColdSloadGas is the cost of the first read of a storage slot.
	ColdSloadGas = params.ColdSloadCostEIP2929
	// SstoreGas is the cost of updating a non-zero storage slot.
	SstoreGas = params.SstoreResetGasEIP2200
	// TransientGas is the cost of a TLOAD or TSTORE.
	TransientGas = params.WarmStorageReadCostEIP2929
	// EcrecoverGas is the cost of the ecrecover precompile.
	EcrecoverGas = params.EcrecoverGas
)

// Keccak256Gas returns the cost of hashing size bytes.
func Keccak256Gas(size int) uint64 {
	words := (uint64(size) + 31) / 32
	return params.Keccak256Gas + words*params.Keccak256WordGas
}

// LogGas returns the cost of emitting a log with the given topics and data size.
func LogGas(topics int, size int) uint64 {
	return params.LogGas + uint64(topics)*params.LogTopicGas + uint64(size)*params.LogDataGas
}

// CalldataGas returns the EIP-2028 cost of the given calldata.
func CalldataGas(data []byte) uint64 {
	var gas uint64
	for _, b := range data {
		if b == 0 {
			gas += params.TxDataZeroGas
		} else {
			gas += params.TxDataNonZeroGasEIP2028
		}
	}
	return gas
}
