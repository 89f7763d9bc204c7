package amm

import "github.com/shopspring/decimal"

const (
	// maxNewtonIterations caps both Newton solves (invariant D and the
	// post-swap reserve y).
	maxNewtonIterations = 255
)

var (
	two  = decimal.NewFromInt(2)
	four = decimal.NewFromInt(4)

	// relTolerance is the relative convergence tolerance for the
	// Newton iterations (1e-6).
	relTolerance = decimal.New(1, -6)
)

// stableSwapOutput prices a swap on the two-coin Curve invariant
//
//	A*n^n*S + D = A*n^n*D + D^(n+1) / (n^n * x * y)    (n = 2)
//
// with the amplification factor A. The invariant D is solved by
// Newton-Raphson, then the post-swap output reserve y is solved from
// the fee-adjusted input. Both solves share the iteration budget and
// tolerance; running out of budget fails with ErrConvergenceFailure.
func stableSwapOutput(amountIn, reserveIn, reserveOut, fee, ampFactor decimal.Decimal) (SwapResult, error) {
	if ampFactor.Sign() <= 0 {
		return SwapResult{}, ErrInvalidPoolState
	}

	d, err := solveInvariant(reserveIn, reserveOut, ampFactor)
	if err != nil {
		return SwapResult{}, err
	}

	amountInWithFee := amountIn.Mul(one.Sub(fee))
	newReserveIn := reserveIn.Add(amountInWithFee)
	y, err := solveOutputReserve(newReserveIn, d, ampFactor)
	if err != nil {
		return SwapResult{}, err
	}

	amountOut := reserveOut.Sub(y)
	if amountOut.Sign() < 0 {
		amountOut = decimal.Zero
	}

	// Near-parity assets: impact is the deviation of the realized
	// exchange rate from 1:1.
	impact := amountOut.Div(amountIn).Sub(one).Abs()

	return SwapResult{AmountOut: amountOut, PriceImpact: impact}, nil
}

// solveInvariant finds D for reserves (x, y) and amplification A.
func solveInvariant(x, y, amp decimal.Decimal) (decimal.Decimal, error) {
	s := x.Add(y)
	if s.Sign() == 0 {
		return decimal.Zero, nil
	}
	ann := amp.Mul(four) // A * n^n, n = 2

	d := s
	for i := 0; i < maxNewtonIterations; i++ {
		if d.Abs().GreaterThan(maxMagnitude) {
			return decimal.Zero, ErrNumericOverflow
		}
		// dP = D^3 / (4*x*y)
		dP := d.Mul(d).Mul(d).Div(four.Mul(x).Mul(y))
		prev := d
		// D = (Ann*S + 2*dP) * D / ((Ann-1)*D + 3*dP)
		num := ann.Mul(s).Add(two.Mul(dP)).Mul(d)
		den := ann.Sub(one).Mul(d).Add(decimal.NewFromInt(3).Mul(dP))
		if den.Sign() == 0 {
			return decimal.Zero, ErrConvergenceFailure
		}
		d = num.Div(den)
		if converged(d, prev) {
			return d, nil
		}
	}
	return decimal.Zero, ErrConvergenceFailure
}

// solveOutputReserve finds the output-side reserve y satisfying the
// invariant after the input side moved to x.
func solveOutputReserve(x, d, amp decimal.Decimal) (decimal.Decimal, error) {
	ann := amp.Mul(four)
	// y^2 + y*(x + D/Ann - D) = D^3 / (4*x*Ann)
	c := d.Mul(d).Mul(d).Div(four.Mul(x).Mul(ann))
	b := x.Add(d.Div(ann))

	y := d
	for i := 0; i < maxNewtonIterations; i++ {
		if y.Abs().GreaterThan(maxMagnitude) {
			return decimal.Zero, ErrNumericOverflow
		}
		prev := y
		den := two.Mul(y).Add(b).Sub(d)
		if den.Sign() == 0 {
			return decimal.Zero, ErrConvergenceFailure
		}
		y = y.Mul(y).Add(c).Div(den)
		if converged(y, prev) {
			return y, nil
		}
	}
	return decimal.Zero, ErrConvergenceFailure
}

func converged(cur, prev decimal.Decimal) bool {
	diff := cur.Sub(prev).Abs()
	scale := cur.Abs()
	if scale.LessThan(one) {
		scale = one
	}
	return diff.LessThanOrEqual(scale.Mul(relTolerance))
}
