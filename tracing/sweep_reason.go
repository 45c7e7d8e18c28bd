package tracing

import gethtracing "github.com/ethereum/go-ethereum/core/tracing"

// BalanceChangeReason is a description of the reason why a balance was changed
// while a sweep was executing.
type BalanceChangeReason int

const (
	BalanceChangeUnspecified BalanceChangeReason = iota
	BalanceChangeCallValue                       // value attached to a dispatched call
	BalanceChangeSponsorFee                      // reimbursement paid to the sponsor
	BalanceChangeFeeSurplus                      // unspent fee reserve returned to the sponsor
	BalanceChangeDirectTransfer                  // remainder moved to the destination
	BalanceChangeRoutedCall                      // remainder forwarded to a call target
	BalanceChangeGasBuy                          // execution gas charged to the sponsor
	BalanceChangeGasReward                       // execution gas credited to the coinbase
	BalanceChangeGasRefund                       // unused gas returned to the sponsor
)

// Geth maps the reason onto the closest go-ethereum tracing reason so that
// hooked state observers see a familiar value.
func (r BalanceChangeReason) Geth() gethtracing.BalanceChangeReason {
	switch r {
	case BalanceChangeGasBuy:
		return gethtracing.BalanceDecreaseGasBuy
	case BalanceChangeGasReward:
		return gethtracing.BalanceIncreaseRewardTransactionFee
	case BalanceChangeGasRefund:
		return gethtracing.BalanceIncreaseGasReturn
	case BalanceChangeUnspecified:
		return gethtracing.BalanceChangeUnspecified
	}
	return gethtracing.BalanceChangeTransfer
}

// String returns a human-readable string for the reason.
func (r BalanceChangeReason) String() string {
	switch r {
	case BalanceChangeUnspecified:
		return "unspecified"
	case BalanceChangeCallValue:
		return "call_value"
	case BalanceChangeSponsorFee:
		return "sponsor_fee"
	case BalanceChangeFeeSurplus:
		return "fee_surplus"
	case BalanceChangeDirectTransfer:
		return "direct_transfer"
	case BalanceChangeRoutedCall:
		return "routed_call"
	case BalanceChangeGasBuy:
		return "gas_buy"
	case BalanceChangeGasReward:
		return "gas_reward"
	case BalanceChangeGasRefund:
		return "gas_refund"
	}
	return "unknown"
}

// NonceChangeReason is a description of the reason why an account nonce was
// changed by the message processor.
type NonceChangeReason int

const (
	NonceChangeUnspecified   NonceChangeReason = iota
	NonceChangeAuthorization                   // EIP-7702 authorization applied
	NonceChangeMessage                         // sender nonce bumped by a processed message
)

// Geth maps the reason onto the go-ethereum tracing reason.
func (r NonceChangeReason) Geth() gethtracing.NonceChangeReason {
	switch r {
	case NonceChangeAuthorization:
		return gethtracing.NonceChangeAuthorization
	case NonceChangeMessage:
		return gethtracing.NonceChangeEoACall
	}
	return gethtracing.NonceChangeUnspecified
}

// String returns a human-readable string for the reason.
func (r NonceChangeReason) String() string {
	switch r {
	case NonceChangeUnspecified:
		return "unspecified"
	case NonceChangeAuthorization:
		return "authorization"
	case NonceChangeMessage:
		return "message"
	}
	return "unknown"
}
