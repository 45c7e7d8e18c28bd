package sweep

import (
	"fmt"

	"github.com/clydemeng/sweeper/core/vm"
	"github.com/clydemeng/sweeper/tracing"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
)

// checkRoute binds the supplied payload to the intent before any value moves.
func checkRoute(in *SweepIntent, payload []byte) error {
	switch in.Mode {
	case ModeDirectTransfer:
		if len(payload) != 0 {
			return fmt.Errorf("%w: %d bytes", ErrUnexpectedPayload, len(payload))
		}
	case ModeRoutedCall:
		if have := crypto.Keccak256Hash(payload); have != in.RouteHash {
			return fmt.Errorf("%w: have %x, want %x", ErrRouteHashMismatch, have, in.RouteHash)
		}
	default:
		return ErrInvalidMode
	}
	return nil
}

// paySponsor sends the computed fee, then the unspent reserve, to the sponsor.
func paySponsor(env *vm.Dispatcher, account, sponsor common.Address, q *Quote) error {
	if err := env.CallWithReason(account, sponsor, q.Fee, nil, tracing.BalanceChangeSponsorFee); err != nil {
		return fmt.Errorf("%w: %v", ErrSponsorPaymentFailed, err)
	}
	if q.Surplus.IsZero() {
		return nil
	}
	if err := env.CallWithReason(account, sponsor, q.Surplus, nil, tracing.BalanceChangeFeeSurplus); err != nil {
		return fmt.Errorf("%w: %v", ErrSponsorPaymentFailed, err)
	}
	return nil
}

// route moves the remainder according to the intent mode. minReceive is not
// re-checked for routed calls: delivery happens beyond this account and is
// the call target's responsibility.
func route(env *vm.Dispatcher, account common.Address, in *SweepIntent, payload []byte, amount *uint256.Int) error {
	switch in.Mode {
	case ModeDirectTransfer:
		if err := env.CallWithReason(account, in.Destination, amount, nil, tracing.BalanceChangeDirectTransfer); err != nil {
			return fmt.Errorf("%w: %v", ErrTransferFailed, err)
		}
	case ModeRoutedCall:
		if err := env.CallWithReason(account, in.CallTarget, amount, payload, tracing.BalanceChangeRoutedCall); err != nil {
			return fmt.Errorf("%w: %v", ErrRoutedCallFailed, err)
		}
	default:
		return ErrInvalidMode
	}
	return nil
}
