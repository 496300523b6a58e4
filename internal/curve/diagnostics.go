package curve

import (
	"time"

	"pulp-price-forecast/internal/timeseries"
)

// ConstraintResidual reports how closely a built curve reproduces one
// input contract's block average.
type ConstraintResidual struct {
	Contract     ContractBlock
	RealizedMean float64
	Target       float64
	Error        float64
	Covered      bool // false when the contract range fell outside the curve
}

// Residuals recomputes, for each input contract, the realized mean of the
// curve over the contract's range against its target price. Used to
// validate constraint satisfaction after a build.
func Residuals(c timeseries.Series, spotDate time.Time, contracts []ContractBlock) []ConstraintResidual {
	out := make([]ConstraintResidual, 0, len(contracts))
	for _, contract := range contracts {
		res := ConstraintResidual{Contract: contract, Target: contract.Price}

		sum, count := 0.0, 0
		for d := timeseries.Day(contract.Start); !d.After(timeseries.Day(contract.End)); d = d.AddDate(0, 0, 1) {
			if v, ok := c.At(d); ok {
				sum += v
				count++
			}
		}
		if count > 0 {
			res.Covered = true
			res.RealizedMean = sum / float64(count)
			res.Error = res.RealizedMean - contract.Price
		}
		out = append(out, res)
	}
	return out
}
