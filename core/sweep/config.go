package sweep

import (
	"errors"
	"fmt"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Config is the write-once configuration of one engine deployment. Changing
// any field, including the sponsor set, requires a new deployment.
type Config struct {
	// EIP-712 domain name and version.
	Name    string
	Version string

	// Sponsors are the only callers allowed to submit sweeps.
	Sponsors []common.Address

	Bounds FeeBounds

	// DeadlineSkew is the clock tolerance, in seconds, applied to intent
	// deadlines: an intent is accepted while now <= deadline + DeadlineSkew.
	DeadlineSkew uint64
}

// DefaultConfig contains the default domain and fee bounds. Sponsors must be
// filled in before use.
var DefaultConfig = Config{
	Name:    "DelegatedSweep",
	Version: "1",
	Bounds: FeeBounds{
		MinOverheadGasUnits:    21_000,
		MaxOverheadGasUnits:    200_000,
		MaxProtocolFeeGasUnits: 100_000,
		MaxExtraFeeWei:         uint256.NewInt(1_000_000_000_000_000), // 0.001 ether
		MaxReimbGasPriceCapWei: uint256.NewInt(1_000_000_000_000),     // 1000 gwei
	},
}

var (
	errNoSponsors    = errors.New("sponsor set is empty")
	errZeroSponsor   = errors.New("sponsor set contains the zero address")
	errDupSponsor    = errors.New("sponsor set contains duplicates")
	errMissingDomain = errors.New("domain name and version are required")
)

// Validate checks the sponsor set and fee bounds.
func (c *Config) Validate() error {
	if c.Name == "" || c.Version == "" {
		return errMissingDomain
	}
	if _, err := newSponsorSet(c.Sponsors); err != nil {
		return err
	}
	if err := c.Bounds.Validate(); err != nil {
		return fmt.Errorf("invalid fee bounds: %w", err)
	}
	return nil
}

// copy returns a deep copy so the engine never aliases caller-owned slices.
func (c *Config) copy() Config {
	cpy := *c
	cpy.Sponsors = append([]common.Address(nil), c.Sponsors...)
	cpy.Bounds.MaxExtraFeeWei = copyU256(c.Bounds.MaxExtraFeeWei)
	cpy.Bounds.MaxReimbGasPriceCapWei = copyU256(c.Bounds.MaxReimbGasPriceCapWei)
	return cpy
}

func newSponsorSet(sponsors []common.Address) (mapset.Set[common.Address], error) {
	if len(sponsors) == 0 {
		return nil, errNoSponsors
	}
	set := mapset.NewThreadUnsafeSet[common.Address]()
	for _, s := range sponsors {
		if s == (common.Address{}) {
			return nil, errZeroSponsor
		}
		if !set.Add(s) {
			return nil, fmt.Errorf("%w: %s", errDupSponsor, s)
		}
	}
	return set, nil
}
