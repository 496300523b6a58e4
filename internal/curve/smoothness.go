package curve

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/mat"

	"pulp-price-forecast/internal/timeseries"
)

// maxActiveSetIterations bounds the bound-constraint activation loop.
const maxActiveSetIterations = 2000

// constraintTolerance is the acceptable residual on block-average
// constraints after solving.
const constraintTolerance = 1e-6

// SmoothnessBuilder produces a maximum-smoothness daily curve: it
// minimises the sum of squared discrete second differences subject to the
// spot anchor, exact block-average constraints per contract, and the
// price envelope. This is the authoritative strategy; block averages are
// satisfied exactly rather than approximated.
type SmoothnessBuilder struct {
	bounds Bounds
	logger zerolog.Logger
}

// NewSmoothnessBuilder constructs the exact curve builder.
func NewSmoothnessBuilder(bounds Bounds, logger zerolog.Logger) *SmoothnessBuilder {
	return &SmoothnessBuilder{
		bounds: bounds,
		logger: logger.With().Str("component", "curve_smoothness").Logger(),
	}
}

// Build solves the constrained optimization. It is deterministic: the same
// inputs always yield the same curve. Returns ErrNoConvergence when the
// constraint system cannot be satisfied within budget.
func (b *SmoothnessBuilder) Build(spotDate time.Time, spotPrice float64, contracts []ContractBlock) (timeseries.Series, error) {
	blocks, days := prepare(spotDate, spotPrice, b.bounds, contracts, b.logger)
	if days == 0 {
		return timeseries.Series{}, nil
	}

	b.logger.Info().
		Time("spot_date", spotDate).
		Float64("spot_price", spotPrice).
		Int("days", days).
		Int("contracts", len(blocks)).
		Msg("building curve")

	values, err := b.solve(days, spotPrice, blocks)
	if err != nil {
		return timeseries.Series{}, err
	}

	result, err := timeseries.New(timeseries.DailyAxis(spotDate, days), values)
	if err != nil {
		return timeseries.Series{}, err
	}
	checkDailyMoves(result, b.bounds, b.logger)
	return result, nil
}

// solve minimises x'Qx (Q from the second-difference operator) subject to
// A x = b via the KKT system, then runs a primal active-set loop that pins
// out-of-envelope days to the violated bound and re-solves.
func (b *SmoothnessBuilder) solve(n int, spotPrice float64, blocks []block) ([]float64, error) {
	q := secondDifferenceGram(n)

	// Base equality rows: spot anchor plus one block-average row per
	// contract.
	rows := make([][]float64, 0, len(blocks)+1)
	rhs := make([]float64, 0, len(blocks)+1)

	anchor := make([]float64, n)
	anchor[0] = 1
	rows = append(rows, anchor)
	rhs = append(rhs, spotPrice)

	for _, blk := range blocks {
		row := make([]float64, n)
		width := float64(blk.endIdx - blk.startIdx + 1)
		for i := blk.startIdx; i <= blk.endIdx; i++ {
			row[i] = 1 / width
		}
		rows = append(rows, row)
		rhs = append(rhs, blk.price)
	}

	pinned := make(map[int]float64)
	for iter := 0; iter < maxActiveSetIterations; iter++ {
		x, err := solveKKT(q, rows, rhs, pinned, n)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrNoConvergence, err)
		}

		violated := false
		for i, v := range x {
			if _, ok := pinned[i]; ok {
				continue
			}
			if v < b.bounds.MinPrice-constraintTolerance {
				pinned[i] = b.bounds.MinPrice
				violated = true
			} else if v > b.bounds.MaxPrice+constraintTolerance {
				pinned[i] = b.bounds.MaxPrice
				violated = true
			}
		}
		if violated {
			continue
		}

		if err := verifyConstraints(x, blocks, spotPrice); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrNoConvergence, err)
		}
		for i := range x {
			x[i] = clip(x[i], b.bounds.MinPrice, b.bounds.MaxPrice)
		}
		if len(pinned) > 0 {
			b.logger.Debug().Int("pinned_days", len(pinned)).Msg("bound constraints active")
		}
		return x, nil
	}
	return nil, fmt.Errorf("%w: active-set iteration cap reached", ErrNoConvergence)
}

// secondDifferenceGram returns Q = D'D where D is the (n-2)xn discrete
// second-difference operator.
func secondDifferenceGram(n int) *mat.SymDense {
	q := mat.NewSymDense(n, nil)
	for t := 1; t < n-1; t++ {
		// Row of D: (1, -2, 1) at columns t-1, t, t+1.
		idx := [3]int{t - 1, t, t + 1}
		coef := [3]float64{1, -2, 1}
		for a := 0; a < 3; a++ {
			for c := a; c < 3; c++ {
				q.SetSym(idx[a], idx[c], q.At(idx[a], idx[c])+coef[a]*coef[c])
			}
		}
	}
	return q
}

// solveKKT assembles and solves the symmetric saddle-point system
// [2Q A'; A 0][x; lambda] = [0; rhs], with pinned days appended as extra
// equality rows.
func solveKKT(q *mat.SymDense, rows [][]float64, rhs []float64, pinned map[int]float64, n int) ([]float64, error) {
	m := len(rows) + len(pinned)
	size := n + m

	k := mat.NewDense(size, size, nil)
	target := mat.NewVecDense(size, nil)

	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			k.Set(i, j, 2*q.At(i, j))
		}
	}

	writeRow := func(rowIdx int, row []float64, value float64) {
		for j, v := range row {
			k.Set(n+rowIdx, j, v)
			k.Set(j, n+rowIdx, v)
		}
		target.SetVec(n+rowIdx, value)
	}

	for i, row := range rows {
		writeRow(i, row, rhs[i])
	}
	next := len(rows)
	for i := 0; i < n; i++ {
		bound, ok := pinned[i]
		if !ok {
			continue
		}
		row := make([]float64, n)
		row[i] = 1
		writeRow(next, row, bound)
		next++
	}

	var solution mat.VecDense
	if err := solution.SolveVec(k, target); err != nil {
		return nil, fmt.Errorf("kkt system singular: %v", err)
	}

	x := make([]float64, n)
	for i := 0; i < n; i++ {
		x[i] = solution.AtVec(i)
	}
	return x, nil
}

func verifyConstraints(x []float64, blocks []block, spotPrice float64) error {
	if diff := x[0] - spotPrice; diff > constraintTolerance || diff < -constraintTolerance {
		return fmt.Errorf("spot anchor residual %g", diff)
	}
	for _, blk := range blocks {
		sum := 0.0
		for i := blk.startIdx; i <= blk.endIdx; i++ {
			sum += x[i]
		}
		mean := sum / float64(blk.endIdx-blk.startIdx+1)
		if diff := mean - blk.price; diff > constraintTolerance || diff < -constraintTolerance {
			return fmt.Errorf("block average residual %g for contract starting day %d", diff, blk.startIdx)
		}
	}
	return nil
}
