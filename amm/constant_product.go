package amm

import "github.com/shopspring/decimal"

// constantProductOutput prices a swap on the x*y=k curve with the fee
// taken from the input side:
//
//	out = reserveOut - reserveIn*reserveOut / (reserveIn + in*(1-fee))
//
// Output is strictly below reserveOut and strictly increasing in the
// input for any positive input against positive reserves.
func constantProductOutput(amountIn, reserveIn, reserveOut, fee decimal.Decimal) (SwapResult, error) {
	amountInWithFee := amountIn.Mul(one.Sub(fee))
	newReserveIn := reserveIn.Add(amountInWithFee)
	if newReserveIn.Abs().GreaterThan(maxMagnitude) {
		return SwapResult{}, ErrNumericOverflow
	}
	amountOut := reserveOut.Sub(reserveIn.Mul(reserveOut).Div(newReserveIn))

	// Impact is the shortfall of the realized price against spot:
	// 1 - (out/in) / (reserveOut/reserveIn).
	realized := amountOut.Div(amountIn)
	spot := reserveOut.Div(reserveIn)
	impact := one.Sub(realized.Div(spot))

	return SwapResult{AmountOut: amountOut, PriceImpact: impact}, nil
}
