package batchtx

import "math/big"

// ApplyGasBuffer inflates a gas estimate by percent, rounding down.
// A zero estimate stays zero. The result saturates at the maximum uint64.
func ApplyGasBuffer(estimate, percent uint64) uint64 {
	if estimate == 0 {
		return 0
	}
	buffered := new(big.Int).SetUint64(estimate)
	buffered.Mul(buffered, new(big.Int).SetUint64(100+percent))
	buffered.Div(buffered, big.NewInt(100))
	if !buffered.IsUint64() {
		return ^uint64(0)
	}
	return buffered.Uint64()
}

// feeCapFromBaseFee returns the default max fee: twice the base fee plus the tip,
// which survives several consecutive full blocks.
func feeCapFromBaseFee(baseFee, tip *big.Int) *big.Int {
	feeCap := new(big.Int).Mul(bigOrZero(baseFee), big.NewInt(2))
	return feeCap.Add(feeCap, bigOrZero(tip))
}
