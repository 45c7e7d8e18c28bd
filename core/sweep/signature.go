package sweep

import (
	"crypto/ecdsa"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

var (
	secp256k1N     = crypto.S256().Params().N
	secp256k1HalfN = new(big.Int).Rsh(secp256k1N, 1)
)

// NormalizeSignature validates a 64-byte (EIP-2098 compact) or 65-byte
// signature and returns it in the 65-byte [R || S || V] form expected by
// crypto.SigToPub, with V in {0, 1}.
//
// Both r and s must be non-zero and s must be in the lower half of the curve
// order; the high-S mirror of a valid signature is rejected.
func NormalizeSignature(sig []byte) ([]byte, error) {
	var (
		r, s = new(big.Int), new(big.Int)
		v    byte
	)
	switch len(sig) {
	case crypto.SignatureLength:
		r.SetBytes(sig[:32])
		s.SetBytes(sig[32:64])
		v = sig[64]
		if v >= 27 {
			v -= 27
		}
	case crypto.SignatureLength - 1:
		// Compact form: the top bit of the second word carries y-parity.
		vs := common.CopyBytes(sig[32:64])
		v = vs[0] >> 7
		vs[0] &= 0x7f
		r.SetBytes(sig[:32])
		s.SetBytes(vs)
	default:
		return nil, fmt.Errorf("%w: %d", ErrSignatureLength, len(sig))
	}
	if r.Sign() == 0 || s.Sign() == 0 {
		return nil, ErrSignatureZeroValue
	}
	if s.Cmp(secp256k1HalfN) > 0 {
		return nil, ErrSignatureHighS
	}
	if v > 1 {
		return nil, fmt.Errorf("%w: %d", ErrSignatureRecoveryID, v)
	}
	if !crypto.ValidateSignatureValues(v, r, s, true) {
		return nil, ErrSignatureUnrecoverable
	}
	out := make([]byte, crypto.SignatureLength)
	r.FillBytes(out[:32])
	s.FillBytes(out[32:64])
	out[64] = v
	return out, nil
}

// RecoverSigner recovers the address that produced sig over digest.
func RecoverSigner(digest common.Hash, sig []byte) (common.Address, error) {
	norm, err := NormalizeSignature(sig)
	if err != nil {
		return common.Address{}, err
	}
	pub, err := crypto.SigToPub(digest[:], norm)
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: %v", ErrSignatureUnrecoverable, err)
	}
	signer := crypto.PubkeyToAddress(*pub)
	if signer == (common.Address{}) {
		return common.Address{}, ErrSignatureUnrecoverable
	}
	return signer, nil
}

// Sign signs a digest and returns a 65-byte signature with V in {27, 28}, the
// encoding produced by most wallets.
func Sign(digest common.Hash, key *ecdsa.PrivateKey) ([]byte, error) {
	sig, err := crypto.Sign(digest[:], key)
	if err != nil {
		return nil, err
	}
	sig[64] += 27
	return sig, nil
}

// SignIntent signs the intent for the given chain and executing account.
func SignIntent(cfg *Config, chainID *big.Int, account common.Address, in *SweepIntent, key *ecdsa.PrivateKey) ([]byte, error) {
	return Sign(Digest(cfg.Name, cfg.Version, chainID, account, in), key)
}

// CompactSignature converts a 65-byte signature into its 64-byte EIP-2098
// form.
func CompactSignature(sig []byte) ([]byte, error) {
	norm, err := NormalizeSignature(sig)
	if err != nil {
		return nil, err
	}
	out := common.CopyBytes(norm[:64])
	if norm[64] == 1 {
		out[32] |= 0x80
	}
	return out, nil
}

// MirrorSignature returns the high-S twin of a signature: (r, N-s) with the
// recovery id flipped. It recovers to the same signer but is not canonical.
func MirrorSignature(sig []byte) []byte {
	if len(sig) != crypto.SignatureLength {
		return nil
	}
	s := new(big.Int).SetBytes(sig[32:64])
	s.Sub(secp256k1N, s)

	out := common.CopyBytes(sig)
	s.FillBytes(out[32:64])
	switch out[64] {
	case 0, 27:
		out[64]++
	case 1, 28:
		out[64]--
	}
	return out
}
