package core

import (
	"errors"
	"math"

	"github.com/clydemeng/sweeper/core/vm"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/params"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/holiman/uint256"
)

var (
	ErrNonceTooLow          = errors.New("nonce too low")
	ErrNonceTooHigh         = errors.New("nonce too high")
	ErrNonceMax             = errors.New("nonce has max value")
	ErrIntrinsicGas         = errors.New("intrinsic gas too low")
	ErrInsufficientFunds    = errors.New("insufficient funds for gas * price + value")
	ErrGasLimitReached      = errors.New("gas limit reached")
	ErrGasUintOverflow      = errors.New("gas uint64 overflow")
	ErrMissingRecipient     = errors.New("message has no recipient")
	ErrSenderNoEOA          = errors.New("sender not an eoa")
	ErrSetCodeNotActive     = errors.New("set code authorizations before prague")
	ErrOutOfGas             = errors.New("out of gas")
	ErrAuthorizationInvalid = errors.New("invalid authorization")
)

// Message is a sponsor-submitted call, the processor's equivalent of a signed
// transaction. AuthList carries EIP-7702 authorizations applied before the
// call is dispatched.
type Message struct {
	From     common.Address
	To       *common.Address
	Nonce    uint64
	Value    *uint256.Int
	Data     []byte
	GasLimit uint64
	GasPrice *uint256.Int
	AuthList []types.SetCodeAuthorization
}

// Hash identifies the message in receipts and logs.
func (m *Message) Hash() common.Hash {
	var to common.Address
	if m.To != nil {
		to = *m.To
	}
	return rlpHash([]interface{}{
		m.From, to, m.Nonce, u256(m.Value), m.Data, m.GasLimit, u256(m.GasPrice), m.AuthList,
	})
}

// Type returns the receipt type matching the message shape.
func (m *Message) Type() uint8 {
	if len(m.AuthList) > 0 {
		return types.SetCodeTxType
	}
	return types.DynamicFeeTxType
}

// IntrinsicGas computes the gas charged before the call runs: the base
// transaction cost, EIP-2028 calldata cost and the EIP-7702 per-authorization
// cost.
func IntrinsicGas(data []byte, authList []types.SetCodeAuthorization) (uint64, error) {
	gas := params.TxGas
	dataGas := vm.CalldataGas(data)
	if math.MaxUint64-gas < dataGas {
		return 0, ErrGasUintOverflow
	}
	gas += dataGas

	auths := uint64(len(authList))
	if auths > 0 {
		if (math.MaxUint64-gas)/params.CallNewAccountGas < auths {
			return 0, ErrGasUintOverflow
		}
		gas += auths * params.CallNewAccountGas
	}
	return gas, nil
}

func rlpHash(x interface{}) common.Hash {
	enc, err := rlp.EncodeToBytes(x)
	if err != nil {
		panic(err)
	}
	return crypto.Keccak256Hash(enc)
}

func u256(v *uint256.Int) *uint256.Int {
	if v == nil {
		return new(uint256.Int)
	}
	return v
}
