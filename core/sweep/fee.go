package sweep

import (
	"errors"
	"fmt"

	"github.com/holiman/uint256"
)

// FeeBounds are the deployment-fixed limits every intent's fee-shaping fields
// must respect. Values outside the bounds are rejected, never clamped.
type FeeBounds struct {
	MinOverheadGasUnits    uint64
	MaxOverheadGasUnits    uint64
	MaxProtocolFeeGasUnits uint64
	MaxExtraFeeWei         *uint256.Int
	MaxReimbGasPriceCapWei *uint256.Int
}

// Validate checks that the bounds are internally consistent.
func (b FeeBounds) Validate() error {
	if b.MinOverheadGasUnits > b.MaxOverheadGasUnits {
		return fmt.Errorf("overhead gas floor %d above ceiling %d", b.MinOverheadGasUnits, b.MaxOverheadGasUnits)
	}
	if b.MaxExtraFeeWei == nil || b.MaxReimbGasPriceCapWei == nil {
		return errors.New("fee ceilings must be set")
	}
	return nil
}

// Check verifies the four fee-shaping fields of an intent.
func (b FeeBounds) Check(in *SweepIntent) error {
	if in.OverheadGasUnits < b.MinOverheadGasUnits || in.OverheadGasUnits > b.MaxOverheadGasUnits {
		return fmt.Errorf("%w: %d not in [%d, %d]", ErrOverheadGasBounds, in.OverheadGasUnits, b.MinOverheadGasUnits, b.MaxOverheadGasUnits)
	}
	if in.ProtocolFeeGasUnits > b.MaxProtocolFeeGasUnits {
		return fmt.Errorf("%w: %d > %d", ErrProtocolFeeGasBounds, in.ProtocolFeeGasUnits, b.MaxProtocolFeeGasUnits)
	}
	if extra := u256(in.ExtraFeeWei); extra.Gt(u256(b.MaxExtraFeeWei)) {
		return fmt.Errorf("%w: %s > %s", ErrExtraFeeBounds, extra, u256(b.MaxExtraFeeWei))
	}
	if capWei := u256(in.ReimbGasPriceCapWei); capWei.Gt(u256(b.MaxReimbGasPriceCapWei)) {
		return fmt.Errorf("%w: %s > %s", ErrGasPriceCapBounds, capWei, u256(b.MaxReimbGasPriceCapWei))
	}
	return nil
}

// Reimbursement computes
//
//	(measuredGas + overheadGasUnits + protocolFeeGasUnits) * min(gasPrice, reimbGasPriceCapWei) + extraFeeWei
func Reimbursement(in *SweepIntent, measuredGas uint64, gasPrice *uint256.Int) (*uint256.Int, error) {
	units := new(uint256.Int).SetUint64(measuredGas)
	units.Add(units, new(uint256.Int).SetUint64(in.OverheadGasUnits))
	units.Add(units, new(uint256.Int).SetUint64(in.ProtocolFeeGasUnits))

	price := new(uint256.Int).Set(u256(gasPrice))
	if capWei := u256(in.ReimbGasPriceCapWei); price.Gt(capWei) {
		price.Set(capWei)
	}
	fee, overflow := new(uint256.Int).MulOverflow(units, price)
	if overflow {
		return nil, ErrFeeOverflow
	}
	if _, overflow = fee.AddOverflow(fee, u256(in.ExtraFeeWei)); overflow {
		return nil, ErrFeeOverflow
	}
	return fee, nil
}

// Quote is the split of an account balance between sponsor and recipient.
type Quote struct {
	Balance   *uint256.Int
	Fee       *uint256.Int // computed reimbursement
	Reserve   *uint256.Int // min(maxTotalFeeWei, balance); all of it goes to the sponsor
	Surplus   *uint256.Int // Reserve - Fee
	Remainder *uint256.Int // Balance - Reserve, sent to the recipient
}

// quote splits balance for the given intent. The recipient always receives
// balance minus the reserved fee ceiling, independent of the gas actually
// measured; the unspent part of the reserve goes back to the sponsor.
func quote(in *SweepIntent, balance *uint256.Int, measuredGas uint64, gasPrice *uint256.Int) (*Quote, error) {
	fee, err := Reimbursement(in, measuredGas, gasPrice)
	if err != nil {
		return nil, err
	}
	maxFee := u256(in.MaxTotalFeeWei)
	if fee.Gt(maxFee) {
		return nil, fmt.Errorf("%w: %s > %s", ErrFeeExceedsCap, fee, maxFee)
	}
	reserve := new(uint256.Int).Set(maxFee)
	if reserve.Gt(balance) {
		reserve.Set(balance)
	}
	if fee.Gt(reserve) {
		return nil, fmt.Errorf("%w: %s > %s", ErrFeeExceedsBalance, fee, balance)
	}
	remainder := new(uint256.Int).Sub(balance, reserve)
	if remainder.IsZero() {
		return nil, ErrNothingToRoute
	}
	return &Quote{
		Balance:   new(uint256.Int).Set(balance),
		Fee:       fee,
		Reserve:   reserve,
		Surplus:   new(uint256.Int).Sub(reserve, fee),
		Remainder: remainder,
	}, nil
}
