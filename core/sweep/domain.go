package sweep

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/lru"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
)

const (
	domainType = "EIP712Domain(string name,string version,uint256 chainId,address verifyingContract)"
	intentType = "SweepIntent(uint8 mode,address user,address destination,uint256 destinationChainId," +
		"address callTarget,bytes32 routeHash,uint256 minReceive,uint256 maxTotalFeeWei," +
		"uint256 overheadGasUnits,uint256 protocolFeeGasUnits,uint256 extraFeeWei," +
		"uint256 reimbGasPriceCapWei,uint256 deadline,uint256 nonce)"
)

var (
	domainTypeHash = crypto.Keccak256Hash([]byte(domainType))
	intentTypeHash = crypto.Keccak256Hash([]byte(intentType))
)

// DomainSeparator computes the EIP-712 domain separator. The verifying contract
// is the executing account itself, so a signature for one account can never
// be replayed against another one.
func DomainSeparator(name, version string, chainID *big.Int, account common.Address) common.Hash {
	if chainID == nil {
		chainID = new(big.Int)
	}
	buf := make([]byte, 0, 5*32)
	buf = append(buf, domainTypeHash[:]...)
	buf = append(buf, crypto.Keccak256([]byte(name))...)
	buf = append(buf, crypto.Keccak256([]byte(version))...)
	buf = append(buf, common.BigToHash(chainID).Bytes()...)
	buf = appendAddressWord(buf, account)
	return crypto.Keccak256Hash(buf)
}

// StructHash computes the EIP-712 hashStruct of the intent.
func (in *SweepIntent) StructHash() common.Hash {
	buf := make([]byte, 0, 15*32)
	buf = append(buf, intentTypeHash[:]...)
	buf = appendUint64Word(buf, uint64(in.Mode))
	buf = appendAddressWord(buf, in.User)
	buf = appendAddressWord(buf, in.Destination)
	buf = appendUint64Word(buf, in.DestinationChainID)
	buf = appendAddressWord(buf, in.CallTarget)
	buf = append(buf, in.RouteHash[:]...)
	buf = appendU256Word(buf, in.MinReceive)
	buf = appendU256Word(buf, in.MaxTotalFeeWei)
	buf = appendUint64Word(buf, in.OverheadGasUnits)
	buf = appendUint64Word(buf, in.ProtocolFeeGasUnits)
	buf = appendU256Word(buf, in.ExtraFeeWei)
	buf = appendU256Word(buf, in.ReimbGasPriceCapWei)
	buf = appendUint64Word(buf, in.Deadline)
	buf = appendUint64Word(buf, in.Nonce)
	return crypto.Keccak256Hash(buf)
}

// TypedDataHash combines a domain separator and a struct hash into the digest
// that is actually signed.
func TypedDataHash(domain, structHash common.Hash) common.Hash {
	return crypto.Keccak256Hash([]byte{0x19, 0x01}, domain[:], structHash[:])
}

// Digest returns the signing digest of the intent for the given domain.
func Digest(name, version string, chainID *big.Int, account common.Address, in *SweepIntent) common.Hash {
	return TypedDataHash(DomainSeparator(name, version, chainID, account), in.StructHash())
}

type domainKey struct {
	chainID uint64
	account common.Address
}

// domainCache memoises domain separators per (chain id, account). The chain id
// is part of the key, so a chain identity change after a fork never reuses a
// separator computed for the old chain.
type domainCache struct {
	name, version string
	cache         *lru.Cache[domainKey, common.Hash]
}

func newDomainCache(name, version string, size int) *domainCache {
	return &domainCache{
		name:    name,
		version: version,
		cache:   lru.NewCache[domainKey, common.Hash](size),
	}
}

func (d *domainCache) separator(chainID *big.Int, account common.Address) common.Hash {
	if chainID == nil || !chainID.IsUint64() {
		return DomainSeparator(d.name, d.version, chainID, account)
	}
	key := domainKey{chainID: chainID.Uint64(), account: account}
	if sep, ok := d.cache.Get(key); ok {
		return sep
	}
	sep := DomainSeparator(d.name, d.version, chainID, account)
	d.cache.Add(key, sep)
	return sep
}

func appendUint64Word(buf []byte, v uint64) []byte {
	return appendU256Word(buf, new(uint256.Int).SetUint64(v))
}

func appendU256Word(buf []byte, v *uint256.Int) []byte {
	word := u256(v).Bytes32()
	return append(buf, word[:]...)
}

func appendAddressWord(buf []byte, addr common.Address) []byte {
	return append(buf, common.LeftPadBytes(addr.Bytes(), 32)...)
}
