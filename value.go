package batchtx

import (
	"math/big"

	"github.com/holiman/uint256"
)

// cloneValue copies a value, mapping nil to zero.
func cloneValue(v *uint256.Int) *uint256.Int {
	if v == nil {
		return new(uint256.Int)
	}
	return v.Clone()
}

// toBig converts a value for ABI packing and transaction building.
func toBig(v *uint256.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v.ToBig()
}

// bigOrZero returns b, or zero when b is nil.
func bigOrZero(b *big.Int) *big.Int {
	if b == nil {
		return new(big.Int)
	}
	return b
}

// ValueFromBig converts a non-negative *big.Int to a call value.
// It returns false if b is negative or wider than 256 bits.
func ValueFromBig(b *big.Int) (*uint256.Int, bool) {
	if b == nil {
		return new(uint256.Int), true
	}
	if b.Sign() < 0 {
		return nil, false
	}
	v, overflow := uint256.FromBig(b)
	if overflow {
		return nil, false
	}
	return v, true
}

// MustValue is like ValueFromBig but panics on an out-of-range input.
// Use only with constant values.
func MustValue(b *big.Int) *uint256.Int {
	v, ok := ValueFromBig(b)
	if !ok {
		panic("batchtx: value out of uint256 range")
	}
	return v
}

// Ether returns n whole units of the native asset (n * 1e18 wei).
func Ether(n uint64) *uint256.Int {
	return new(uint256.Int).Mul(uint256.NewInt(n), uint256.NewInt(1e18))
}

// Wei returns n wei.
func Wei(n uint64) *uint256.Int {
	return uint256.NewInt(n)
}
