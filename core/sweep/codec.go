package sweep

import (
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/holiman/uint256"
)

// SweepCall is the input of a sweep invocation: the signed intent, its
// signature and, for routed calls, the payload committed to by RouteHash.
type SweepCall struct {
	Intent    SweepIntent
	Signature []byte
	Payload   []byte
}

// EncodeCall encodes a sweep invocation as call input.
func EncodeCall(in *SweepIntent, sig, payload []byte) ([]byte, error) {
	return rlp.EncodeToBytes(&SweepCall{Intent: *in, Signature: sig, Payload: payload})
}

// DecodeCall decodes call input produced by EncodeCall.
func DecodeCall(input []byte) (*SweepCall, error) {
	call := new(SweepCall)
	if err := rlp.DecodeBytes(input, call); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedCall, err)
	}
	return call, nil
}

type intentJSON struct {
	Mode                Mode                  `json:"mode"`
	User                common.Address        `json:"user"`
	Destination         common.Address        `json:"destination"`
	DestinationChainID  math.HexOrDecimal64   `json:"destinationChainId"`
	CallTarget          common.Address        `json:"callTarget"`
	RouteHash           *common.Hash          `json:"routeHash,omitempty"`
	MinReceive          *math.HexOrDecimal256 `json:"minReceive"`
	MaxTotalFeeWei      *math.HexOrDecimal256 `json:"maxTotalFeeWei"`
	OverheadGasUnits    math.HexOrDecimal64   `json:"overheadGasUnits"`
	ProtocolFeeGasUnits math.HexOrDecimal64   `json:"protocolFeeGasUnits"`
	ExtraFeeWei         *math.HexOrDecimal256 `json:"extraFeeWei"`
	ReimbGasPriceCapWei *math.HexOrDecimal256 `json:"reimbGasPriceCapWei"`
	Deadline            math.HexOrDecimal64   `json:"deadline"`
	Nonce               math.HexOrDecimal64   `json:"nonce"`
}

// MarshalJSON implements json.Marshaler. Numbers are written as hex
// quantities; decimal strings are accepted when decoding.
func (in SweepIntent) MarshalJSON() ([]byte, error) {
	routeHash := in.RouteHash
	enc := intentJSON{
		Mode:                in.Mode,
		User:                in.User,
		Destination:         in.Destination,
		DestinationChainID:  math.HexOrDecimal64(in.DestinationChainID),
		CallTarget:          in.CallTarget,
		RouteHash:           &routeHash,
		MinReceive:          toHexOrDecimal(in.MinReceive),
		MaxTotalFeeWei:      toHexOrDecimal(in.MaxTotalFeeWei),
		OverheadGasUnits:    math.HexOrDecimal64(in.OverheadGasUnits),
		ProtocolFeeGasUnits: math.HexOrDecimal64(in.ProtocolFeeGasUnits),
		ExtraFeeWei:         toHexOrDecimal(in.ExtraFeeWei),
		ReimbGasPriceCapWei: toHexOrDecimal(in.ReimbGasPriceCapWei),
		Deadline:            math.HexOrDecimal64(in.Deadline),
		Nonce:               math.HexOrDecimal64(in.Nonce),
	}
	return json.Marshal(&enc)
}

// UnmarshalJSON implements json.Unmarshaler. A missing routeHash defaults to
// the empty-data commitment used by direct transfers.
func (in *SweepIntent) UnmarshalJSON(input []byte) error {
	var dec intentJSON
	if err := json.Unmarshal(input, &dec); err != nil {
		return err
	}
	out := SweepIntent{
		Mode:                dec.Mode,
		User:                dec.User,
		Destination:         dec.Destination,
		DestinationChainID:  uint64(dec.DestinationChainID),
		CallTarget:          dec.CallTarget,
		RouteHash:           EmptyRouteHash,
		OverheadGasUnits:    uint64(dec.OverheadGasUnits),
		ProtocolFeeGasUnits: uint64(dec.ProtocolFeeGasUnits),
		Deadline:            uint64(dec.Deadline),
		Nonce:               uint64(dec.Nonce),
	}
	if dec.RouteHash != nil {
		out.RouteHash = *dec.RouteHash
	}
	var err error
	if out.MinReceive, err = fromHexOrDecimal("minReceive", dec.MinReceive); err != nil {
		return err
	}
	if out.MaxTotalFeeWei, err = fromHexOrDecimal("maxTotalFeeWei", dec.MaxTotalFeeWei); err != nil {
		return err
	}
	if out.ExtraFeeWei, err = fromHexOrDecimal("extraFeeWei", dec.ExtraFeeWei); err != nil {
		return err
	}
	if out.ReimbGasPriceCapWei, err = fromHexOrDecimal("reimbGasPriceCapWei", dec.ReimbGasPriceCapWei); err != nil {
		return err
	}
	*in = out
	return nil
}

func toHexOrDecimal(v *uint256.Int) *math.HexOrDecimal256 {
	return (*math.HexOrDecimal256)(u256(v).ToBig())
}

func fromHexOrDecimal(field string, v *math.HexOrDecimal256) (*uint256.Int, error) {
	if v == nil {
		return new(uint256.Int), nil
	}
	n, overflow := uint256.FromBig((*big.Int)(v))
	if overflow || (*big.Int)(v).Sign() < 0 {
		return nil, fmt.Errorf("field %s out of range", field)
	}
	return n, nil
}
