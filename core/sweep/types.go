package sweep

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
)

// EmptyRouteHash is the commitment carried by direct transfers: the keccak256
// hash of empty data.
var EmptyRouteHash = crypto.Keccak256Hash(nil)

// Mode selects how the swept remainder leaves the account.
type Mode uint8

const (
	// ModeDirectTransfer sends the remainder straight to the destination.
	ModeDirectTransfer Mode = iota
	// ModeRoutedCall forwards the remainder together with a committed payload
	// to an external call target.
	ModeRoutedCall
)

func (m Mode) String() string {
	switch m {
	case ModeDirectTransfer:
		return "direct"
	case ModeRoutedCall:
		return "routed"
	}
	return fmt.Sprintf("mode(%d)", uint8(m))
}

// MarshalText implements encoding.TextMarshaler.
func (m Mode) MarshalText() ([]byte, error) {
	if m != ModeDirectTransfer && m != ModeRoutedCall {
		return nil, fmt.Errorf("unknown mode %d", uint8(m))
	}
	return []byte(m.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *Mode) UnmarshalText(input []byte) error {
	switch string(input) {
	case "direct", "0":
		*m = ModeDirectTransfer
	case "routed", "1":
		*m = ModeRoutedCall
	default:
		return fmt.Errorf("unknown mode %q", input)
	}
	return nil
}

// SweepIntent is the user-signed instruction describing one sweep. It is
// built off-chain, consumed by at most one successful invocation and never
// stored by the engine.
type SweepIntent struct {
	Mode               Mode
	User               common.Address
	Destination        common.Address
	DestinationChainID uint64
	CallTarget         common.Address
	RouteHash          common.Hash
	MinReceive         *uint256.Int

	// Fee shaping. MaxTotalFeeWei is the hard cap the user approved.
	MaxTotalFeeWei      *uint256.Int
	OverheadGasUnits    uint64
	ProtocolFeeGasUnits uint64
	ExtraFeeWei         *uint256.Int
	ReimbGasPriceCapWei *uint256.Int

	Deadline uint64
	Nonce    uint64
}

// Copy returns a deep copy of the intent.
func (in *SweepIntent) Copy() *SweepIntent {
	cpy := *in
	cpy.MinReceive = copyU256(in.MinReceive)
	cpy.MaxTotalFeeWei = copyU256(in.MaxTotalFeeWei)
	cpy.ExtraFeeWei = copyU256(in.ExtraFeeWei)
	cpy.ReimbGasPriceCapWei = copyU256(in.ReimbGasPriceCapWei)
	return &cpy
}

// Recipient returns the address the remainder is sent to: the destination for
// direct transfers, the call target for routed calls.
func (in *SweepIntent) Recipient() common.Address {
	if in.Mode == ModeRoutedCall {
		return in.CallTarget
	}
	return in.Destination
}

// ValidateShape checks the mode-dependent field constraints.
func (in *SweepIntent) ValidateShape() error {
	switch in.Mode {
	case ModeDirectTransfer:
		if in.CallTarget != (common.Address{}) || in.RouteHash != EmptyRouteHash {
			return ErrDirectTransferFields
		}
		if in.Destination == (common.Address{}) {
			return ErrZeroDestination
		}
	case ModeRoutedCall:
		if in.CallTarget == (common.Address{}) || in.RouteHash == EmptyRouteHash || in.RouteHash == (common.Hash{}) {
			return ErrRoutedCallFields
		}
	default:
		return fmt.Errorf("%w: %d", ErrInvalidMode, uint8(in.Mode))
	}
	return nil
}

// Receipt summarises a successful sweep.
type Receipt struct {
	Mode               Mode
	Account            common.Address
	Sponsor            common.Address
	Recipient          common.Address
	DestinationChainID uint64
	Nonce              uint64
	Digest             common.Hash

	Balance *uint256.Int // balance at quote time
	Fee     *uint256.Int // computed reimbursement
	Surplus *uint256.Int // unspent fee reserve returned to the sponsor
	Routed  *uint256.Int // value sent to the recipient

	MeasuredGas uint64
}

// SponsorPaid returns the total value received by the sponsor.
func (r *Receipt) SponsorPaid() *uint256.Int {
	return new(uint256.Int).Add(r.Fee, r.Surplus)
}

func copyU256(v *uint256.Int) *uint256.Int {
	if v == nil {
		return nil
	}
	return new(uint256.Int).Set(v)
}

// u256 returns v, or zero if v is nil.
func u256(v *uint256.Int) *uint256.Int {
	if v == nil {
		return new(uint256.Int)
	}
	return v
}
