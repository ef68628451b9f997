package batchtx

import (
	"math/big"
	"testing"

	"github.com/holiman/uint256"
)

func TestValueFromBig(t *testing.T) {
	tooWide := new(big.Int).Lsh(big.NewInt(1), 256)

	tests := []struct {
		name string
		in   *big.Int
		want *uint256.Int
		ok   bool
	}{
		{"nil is zero", nil, new(uint256.Int), true},
		{"zero", big.NewInt(0), new(uint256.Int), true},
		{"small", big.NewInt(42), uint256.NewInt(42), true},
		{"max uint256", new(big.Int).Sub(tooWide, big.NewInt(1)), new(uint256.Int).SetAllOne(), true},
		{"negative", big.NewInt(-1), nil, false},
		{"overflow", tooWide, nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ValueFromBig(tt.in)
			if ok != tt.ok {
				t.Fatalf("Expected ok=%v, got %v", tt.ok, ok)
			}
			if tt.ok && !got.Eq(tt.want) {
				t.Errorf("Expected %s, got %s", tt.want, got)
			}
		})
	}
}

func TestMustValue(t *testing.T) {
	if MustValue(big.NewInt(7)).Uint64() != 7 {
		t.Error("Expected 7")
	}

	defer func() {
		if r := recover(); r == nil {
			t.Error("Expected panic for negative value")
		}
	}()
	MustValue(big.NewInt(-7))
}

func TestUnits(t *testing.T) {
	want, _ := uint256.FromDecimal("2000000000000000000")
	if !Ether(2).Eq(want) {
		t.Errorf("Expected 2e18, got %s", Ether(2))
	}
	if Wei(3).Uint64() != 3 {
		t.Errorf("Expected 3 wei, got %s", Wei(3))
	}
}

func TestValueHelpers(t *testing.T) {
	if toBig(nil).Sign() != 0 {
		t.Error("Expected toBig(nil) to be zero")
	}
	if bigOrZero(nil).Sign() != 0 {
		t.Error("Expected bigOrZero(nil) to be zero")
	}
	v := uint256.NewInt(1)
	c := cloneValue(v)
	c.SetUint64(2)
	if v.Uint64() != 1 {
		t.Error("Expected cloneValue to copy")
	}
}
