package bitscale

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

func TestMsb(t *testing.T) {
	max := new(uint256.Int).Sub(new(uint256.Int), uint256.NewInt(1)) // 2^256 - 1

	tests := []struct {
		name string
		in   *uint256.Int
		want uint
	}{
		{"zero", uint256.NewInt(0), 0},
		{"one", uint256.NewInt(1), 0},
		{"two", uint256.NewInt(2), 1},
		{"three", uint256.NewInt(3), 1},
		{"byte boundary", uint256.NewInt(255), 7},
		{"power of two", uint256.NewInt(256), 8},
		{"top bit", new(uint256.Int).Lsh(uint256.NewInt(1), 255), 255},
		{"all bits", max, 255},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Msb(tt.in); got != tt.want {
				t.Errorf("Msb(%s) = %d, want %d", tt.in, got, tt.want)
			}
		})
	}
}

func TestScale(t *testing.T) {
	tests := []struct {
		name string
		in   *uint256.Int
		want *uint256.Int
	}{
		{"zero", uint256.NewInt(0), uint256.NewInt(0)},
		{"one scales to zero", uint256.NewInt(1), uint256.NewInt(0)},
		// 1024 has msb index 10: 1024*10/256 = 40.
		{"kib", uint256.NewInt(1024), uint256.NewInt(40)},
		// 100 has msb index 6: 100*6/256 = 2 (integer division).
		{"hundred", uint256.NewInt(100), uint256.NewInt(2)},
		// 1<<20 has msb index 20: (1<<20)*20/256 = 81920.
		{"mib", uint256.NewInt(1 << 20), uint256.NewInt(81920)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Scale(tt.in); !got.Eq(tt.want) {
				t.Errorf("Scale(%s) = %s, want %s", tt.in, got, tt.want)
			}
		})
	}
}

// Scale must not overflow even when value*msb exceeds 256 bits: the top bit
// set scales to value*255/256, which is strictly less than value.
func TestScaleTopBitNoOverflow(t *testing.T) {
	top := new(uint256.Int).Lsh(uint256.NewInt(1), 255)

	want, _ := new(uint256.Int).MulDivOverflow(top, uint256.NewInt(255), uint256.NewInt(256))
	got := Scale(top)
	if !got.Eq(want) {
		t.Fatalf("Scale(2^255) = %s, want %s", got, want)
	}
	if got.Cmp(top) >= 0 {
		t.Fatalf("scaled value %s not less than input %s", got, top)
	}
}

func TestScaleDelta(t *testing.T) {
	tests := []struct {
		name string
		in   int64
		want int64
	}{
		{"zero", 0, 0},
		{"small positive compresses away", 1, 0},
		{"positive", 1024, 40},
		{"negative", -1024, -40},
		{"large positive", 1 << 20, 81920},
		{"large negative", -(1 << 20), -81920},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ScaleDelta(tt.in); got != tt.want {
				t.Errorf("ScaleDelta(%d) = %d, want %d", tt.in, got, tt.want)
			}
		})
	}
}

func TestEntropy(t *testing.T) {
	var low common.Hash
	low[31] = 0x01 // value 1, msb index 0
	if got := Entropy(low); got != 0 {
		t.Errorf("Entropy(1) = %d, want 0", got)
	}

	var high common.Hash
	high[0] = 0x80 // top bit set
	if got := Entropy(high); got != 255 {
		t.Errorf("Entropy(top bit) = %d, want 255", got)
	}

	var mid common.Hash
	mid[16] = 0x01 // bit index 120
	if got := Entropy(mid); got != 120 {
		t.Errorf("Entropy(mid) = %d, want 119", got)
	}
}
