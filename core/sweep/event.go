package sweep

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
)

// SweptEventSignature is the canonical signature of the receipt event. The
// first three parameters (user, recipient, sponsor) are indexed.
const SweptEventSignature = "Swept(address,address,address,uint8,uint256,uint256,uint256,uint256,uint256,bytes32)"

// SweptTopic is topic[0] of every receipt event.
var SweptTopic = crypto.Keccak256Hash([]byte(SweptEventSignature))

var sweptData = abi.Arguments{
	{Name: "mode", Type: mustType("uint8")},
	{Name: "destinationChainId", Type: mustType("uint256")},
	{Name: "fee", Type: mustType("uint256")},
	{Name: "surplus", Type: mustType("uint256")},
	{Name: "routed", Type: mustType("uint256")},
	{Name: "nonce", Type: mustType("uint256")},
	{Name: "digest", Type: mustType("bytes32")},
}

func mustType(t string) abi.Type {
	typ, err := abi.NewType(t, "", nil)
	if err != nil {
		panic(err)
	}
	return typ
}

// sweptLog builds the receipt event for a successful sweep.
func sweptLog(r *Receipt, blockNumber uint64) (*types.Log, error) {
	data, err := sweptData.Pack(
		uint8(r.Mode),
		new(big.Int).SetUint64(r.DestinationChainID),
		r.Fee.ToBig(),
		r.Surplus.ToBig(),
		r.Routed.ToBig(),
		new(big.Int).SetUint64(r.Nonce),
		[32]byte(r.Digest),
	)
	if err != nil {
		return nil, err
	}
	return &types.Log{
		Address: r.Account,
		Topics: []common.Hash{
			SweptTopic,
			common.BytesToHash(r.Account.Bytes()),
			common.BytesToHash(r.Recipient.Bytes()),
			common.BytesToHash(r.Sponsor.Bytes()),
		},
		Data:        data,
		BlockNumber: blockNumber,
	}, nil
}

var errNotSwept = errors.New("not a Swept log")

// ParseSweptLog decodes a receipt event back into a Receipt. Balance and
// MeasuredGas are not part of the event and stay unset.
func ParseSweptLog(l *types.Log) (*Receipt, error) {
	if len(l.Topics) != 4 || l.Topics[0] != SweptTopic {
		return nil, errNotSwept
	}
	values, err := sweptData.Unpack(l.Data)
	if err != nil {
		return nil, fmt.Errorf("unpack Swept: %w", err)
	}
	if len(values) != len(sweptData) {
		return nil, fmt.Errorf("unpack Swept: %d values", len(values))
	}
	mode, ok := values[0].(uint8)
	if !ok {
		return nil, fmt.Errorf("unpack Swept: mode has type %T", values[0])
	}
	digest, ok := values[6].([32]byte)
	if !ok {
		return nil, fmt.Errorf("unpack Swept: digest has type %T", values[6])
	}
	bigs := make([]*big.Int, 0, 5)
	for _, v := range values[1:6] {
		b, ok := v.(*big.Int)
		if !ok {
			return nil, fmt.Errorf("unpack Swept: unexpected %T", v)
		}
		bigs = append(bigs, b)
	}
	return &Receipt{
		Mode:               Mode(mode),
		Account:            common.BytesToAddress(l.Topics[1].Bytes()),
		Recipient:          common.BytesToAddress(l.Topics[2].Bytes()),
		Sponsor:            common.BytesToAddress(l.Topics[3].Bytes()),
		DestinationChainID: bigs[0].Uint64(),
		Fee:                uint256.MustFromBig(bigs[1]),
		Surplus:            uint256.MustFromBig(bigs[2]),
		Routed:             uint256.MustFromBig(bigs[3]),
		Nonce:              bigs[4].Uint64(),
		Digest:             common.Hash(digest),
	}, nil
}
