package position

// -----------------------------------------------------------------------------
// Pure inventory arithmetic. Quantities are signed: positive long, negative
// short. Realized PnL is recognized on the reducing part of a fill only.
// -----------------------------------------------------------------------------

// ApplyFill folds one fill into a signed position and returns the new
// quantity, the new average price and the realized PnL delta. A fill that
// crosses through flat re-opens the remainder at the fill price.
func ApplyFill(qty, avgPx float64, buy bool, fillQty, fillPx, multiplier float64) (float64, float64, float64) {
	if fillQty <= 0 {
		return qty, avgPx, 0
	}
	if multiplier <= 0 {
		multiplier = 1
	}

	signed := fillQty
	if !buy {
		signed = -fillQty
	}

	// Extending (or opening) keeps direction and blends the average.
	if qty == 0 || (qty > 0) == (signed > 0) {
		abs := qty
		if abs < 0 {
			abs = -abs
		}
		newAvg := (avgPx*abs + fillPx*fillQty) / (abs + fillQty)
		return qty + signed, newAvg, 0
	}

	// Reducing: realize on the closed part.
	closed := fillQty
	if qty > 0 && qty < closed {
		closed = qty
	} else if qty < 0 && -qty < closed {
		closed = -qty
	}

	var realized float64
	if qty > 0 {
		realized = (fillPx - avgPx) * closed * multiplier
	} else {
		realized = (avgPx - fillPx) * closed * multiplier
	}

	remaining := qty + signed
	switch {
	case remaining == 0:
		return 0, 0, realized
	case (remaining > 0) != (qty > 0):
		// Flipped through flat: the excess opens at the fill price.
		return remaining, fillPx, realized
	default:
		return remaining, avgPx, realized
	}
}

// -----------------------------------------------------------------------------

// Unrealized marks a signed position against a price. The signed quantity
// makes the same expression work for longs and shorts.
func Unrealized(qty, avgPx, markPx, multiplier float64) float64 {
	if qty == 0 || markPx <= 0 {
		return 0
	}
	if multiplier <= 0 {
		multiplier = 1
	}
	return qty * (markPx - avgPx) * multiplier
}
