package currency

import (
	"github.com/juju/errors"
)

// OptimalInsert searches payer's holdings for the combination of nominals that
// covers price with the least overpay, ties broken by fewest coins and bills.
// Returns the picked counts without modifying the source group.
//
// Search is exhaustive over the per-nominal count ranges. Nominal cardinality
// is fixed and small so the bounded depth-first walk is cheap: a branch that
// already covers the price gains nothing from more money and is cut, and per
// nominal at most ceil(short/value) units are ever useful.
func OptimalInsert(from *NominalGroup, price Amount) (*NominalGroup, error) {
	if from.Total() < price {
		return nil, errors.Annotatef(ErrNominalCount, "OptimalInsert(price=%s) have=%s",
			price.Format(), from.Total().Format())
	}

	nominals := from.Nominals()
	pick := make([]uint, len(nominals))
	var best *NominalGroup
	bestCount := uint(0)

	var walk func(idx int, sum Amount)
	walk = func(idx int, sum Amount) {
		if sum >= price {
			count := uint(0)
			for _, c := range pick {
				count += c
			}
			if best == nil || sum < best.Total() || (sum == best.Total() && count < bestCount) {
				best = &NominalGroup{values: make(map[Nominal]uint, len(nominals))}
				for i, n := range nominals {
					if pick[i] > 0 {
						best.values[n] = pick[i]
					}
				}
				bestCount = count
			}
			return
		}
		if idx == len(nominals) {
			return
		}
		n := nominals[idx]
		short := price - sum
		max := uint((short + Amount(n) - 1) / Amount(n))
		if avail := from.values[n]; max > avail {
			max = avail
		}
		for c := uint(0); c <= max; c++ {
			pick[idx] = c
			walk(idx+1, sum+Amount(n)*Amount(c))
		}
		pick[idx] = 0
	}
	walk(0, 0)

	if best == nil {
		// total was checked above, the full pick always covers price
		return nil, errors.Annotatef(ErrNominalCount, "OptimalInsert(price=%s)", price.Format())
	}
	return best, nil
}
