package sweep

import "errors"

// Error classes. Every error returned by the engine unwraps to exactly one of
// these, so callers can discriminate with errors.Is(err, sweep.ErrReplay).
var (
	ErrAuthorization = errors.New("authorization error")
	ErrReplay        = errors.New("replay error")
	ErrTiming        = errors.New("timing error")
	ErrBounds        = errors.New("bounds error")
	ErrEffect        = errors.New("effect error")
	ErrInvariant     = errors.New("invariant error")
)

var classes = []error{ErrAuthorization, ErrReplay, ErrTiming, ErrBounds, ErrEffect, ErrInvariant}

// Error is a specific engine failure tagged with its class.
type Error struct {
	class error
	msg   string
}

func newError(class error, msg string) *Error {
	return &Error{class: class, msg: msg}
}

func (e *Error) Error() string { return e.msg }

// Unwrap exposes the class sentinel.
func (e *Error) Unwrap() error { return e.class }

// Class returns the class sentinel of the error.
func (e *Error) Class() error { return e.class }

var (
	ErrUnknownSponsor         = newError(ErrAuthorization, "sweep: caller is not a sponsor")
	ErrUserMismatch           = newError(ErrAuthorization, "sweep: intent user is not the executing account")
	ErrSignerMismatch         = newError(ErrAuthorization, "sweep: signer is not the intent user")
	ErrSignatureLength        = newError(ErrAuthorization, "sweep: invalid signature length")
	ErrSignatureZeroValue     = newError(ErrAuthorization, "sweep: signature r or s is zero")
	ErrSignatureHighS         = newError(ErrAuthorization, "sweep: signature s is not in the lower half order")
	ErrSignatureRecoveryID    = newError(ErrAuthorization, "sweep: invalid signature recovery id")
	ErrSignatureUnrecoverable = newError(ErrAuthorization, "sweep: signer could not be recovered")

	ErrNonceMismatch = newError(ErrReplay, "sweep: nonce mismatch")

	ErrExpired = newError(ErrTiming, "sweep: intent deadline passed")

	ErrInvalidMode          = newError(ErrBounds, "sweep: unknown mode")
	ErrDirectTransferFields = newError(ErrBounds, "sweep: direct transfer requires null call target and empty route hash")
	ErrRoutedCallFields     = newError(ErrBounds, "sweep: routed call requires call target and route commitment")
	ErrZeroDestination      = newError(ErrBounds, "sweep: destination is the zero address")
	ErrOverheadGasBounds    = newError(ErrBounds, "sweep: overhead gas units out of bounds")
	ErrProtocolFeeGasBounds = newError(ErrBounds, "sweep: protocol fee gas units out of bounds")
	ErrExtraFeeBounds       = newError(ErrBounds, "sweep: extra fee out of bounds")
	ErrGasPriceCapBounds    = newError(ErrBounds, "sweep: reimbursement gas price cap out of bounds")
	ErrFeeOverflow          = newError(ErrBounds, "sweep: reimbursement overflows")
	ErrFeeExceedsCap        = newError(ErrBounds, "sweep: reimbursement exceeds max total fee")
	ErrFeeExceedsBalance    = newError(ErrBounds, "sweep: reimbursement exceeds balance")
	ErrNothingToRoute       = newError(ErrBounds, "sweep: no value left after fee reserve")
	ErrBelowMinReceive      = newError(ErrBounds, "sweep: remainder below minimum receive")
	ErrRouteHashMismatch    = newError(ErrBounds, "sweep: route payload does not match commitment")
	ErrUnexpectedPayload    = newError(ErrBounds, "sweep: direct transfer carries a route payload")
	ErrMalformedCall        = newError(ErrBounds, "sweep: malformed call input")

	ErrSponsorPaymentFailed = newError(ErrEffect, "sweep: sponsor payment failed")
	ErrTransferFailed       = newError(ErrEffect, "sweep: transfer to destination failed")
	ErrRoutedCallFailed     = newError(ErrEffect, "sweep: routed call failed")

	ErrNonZeroRemainder = newError(ErrInvariant, "sweep: balance not zero after execution")
	ErrReentrantCall    = newError(ErrInvariant, "sweep: reentrant call")
)

// Classify returns the class sentinel of err, or nil if err did not originate
// in the engine.
func Classify(err error) error {
	for _, class := range classes {
		if errors.Is(err, class) {
			return class
		}
	}
	return nil
}

// className returns a short label for a class, used in metrics and logs.
func className(class error) string {
	switch class {
	case ErrAuthorization:
		return "authorization"
	case ErrReplay:
		return "replay"
	case ErrTiming:
		return "timing"
	case ErrBounds:
		return "bounds"
	case ErrEffect:
		return "effect"
	case ErrInvariant:
		return "invariant"
	}
	return "unknown"
}
