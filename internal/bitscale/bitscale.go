// Package bitscale implements the shared logarithmic-magnitude primitive.
// Every component that scales a 256-bit magnitude (auction bids, reputation
// deltas, entropy scores, dust thresholds) goes through this package so the
// compression is identical everywhere.
package bitscale

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Bits is the scaling denominator: one full 256-bit word.
const Bits = 256

// Msb returns the index of the most-significant set bit of x, an O(1)
// approximation of log2(x). Zero has no set bit and maps to index 0.
func Msb(x *uint256.Int) uint {
	if x.IsZero() {
		return 0
	}
	return uint(x.BitLen() - 1)
}

// Scale compresses a magnitude logarithmically: value * msb(value) / 256.
// The multiply runs with a 512-bit intermediate, and since msb < 256 the
// result always fits back into 256 bits.
func Scale(value *uint256.Int) *uint256.Int {
	pos := Msb(value)
	if pos == 0 {
		return new(uint256.Int)
	}
	res, _ := new(uint256.Int).MulDivOverflow(
		value,
		uint256.NewInt(uint64(pos)),
		uint256.NewInt(Bits),
	)
	return res
}

// ScaleDelta applies the same compression to a signed reputation delta,
// preserving sign.
func ScaleDelta(delta int64) int64 {
	if delta == 0 {
		return 0
	}
	mag := uint64(delta)
	if delta < 0 {
		mag = uint64(-delta)
	}
	scaled := int64(Scale(uint256.NewInt(mag)).Uint64())
	if delta < 0 {
		return -scaled
	}
	return scaled
}

// Entropy scores a 32-byte digest by the index of its highest set bit. A
// digest with few significant bits is predictable and should be rejected by
// callers enforcing a minimum.
func Entropy(h common.Hash) uint {
	return Msb(new(uint256.Int).SetBytes(h[:]))
}
