package accuracy

import (
	"errors"
	"time"

	"pulp-price-forecast/internal/timeseries"
)

// ErrAlreadyRealized reports a second realization attempt on a record.
var ErrAlreadyRealized = errors.New("accuracy: record already realized")

// Record is one stored prediction awaiting its realized price. Created at
// forecast time with the actual fields nil; Realize fills them exactly
// once; records are never deleted. The tracker is the only writer of the
// actual fields.
type Record struct {
	PredictionDate time.Time
	TargetDate     time.Time
	Product        string
	PredictedPrice float64

	ActualPrice *float64
	Error       *float64 // predicted - actual
	ErrorPct    *float64 // error / actual * 100

	ModelVersion string
	HorizonDays  int

	FuturesWeight       float64
	StatisticalWeight   float64
	MeanReversionWeight float64
}

// NewRecord creates a pending record. HorizonDays is derived from the two
// dates and is never negative.
func NewRecord(predictionDate, targetDate time.Time, product string, predicted float64, modelVersion string) Record {
	prediction := timeseries.Day(predictionDate)
	target := timeseries.Day(targetDate)
	horizon := int(target.Sub(prediction).Hours() / 24)
	if horizon < 0 {
		horizon = 0
	}
	return Record{
		PredictionDate: prediction,
		TargetDate:     target,
		Product:        product,
		PredictedPrice: predicted,
		ModelVersion:   modelVersion,
		HorizonDays:    horizon,
	}
}

// Pending reports whether the record still awaits a realized price.
func (r *Record) Pending() bool { return r.ActualPrice == nil }

// Realize fills the actual price and derived errors. A second call fails
// with ErrAlreadyRealized; the first write is final.
func (r *Record) Realize(actual float64) error {
	if !r.Pending() {
		return ErrAlreadyRealized
	}
	err := r.PredictedPrice - actual
	r.ActualPrice = &actual
	r.Error = &err
	if actual != 0 {
		pct := err / actual * 100
		r.ErrorPct = &pct
	}
	return nil
}
