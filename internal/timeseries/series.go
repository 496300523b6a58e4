package timeseries

import (
	"fmt"
	"math"
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"
)

// Point is a single dated observation.
type Point struct {
	Date  time.Time
	Value float64
}

// Series is a daily date-indexed price series. Dates ascend strictly and
// are normalised to midnight UTC.
type Series struct {
	dates  []time.Time
	values []float64
}

// Day strips the clock from a timestamp, pinning it to midnight UTC.
func Day(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// DailyAxis builds a contiguous axis of n days starting at start.
func DailyAxis(start time.Time, n int) []time.Time {
	axis := make([]time.Time, 0, n)
	d := Day(start)
	for i := 0; i < n; i++ {
		axis = append(axis, d.AddDate(0, 0, i))
	}
	return axis
}

// New constructs a Series from parallel date/value slices. Input order is
// not assumed; duplicate dates keep the last value seen.
func New(dates []time.Time, values []float64) (Series, error) {
	if len(dates) != len(values) {
		return Series{}, fmt.Errorf("timeseries: %d dates but %d values", len(dates), len(values))
	}

	points := make([]Point, len(dates))
	for i := range dates {
		points[i] = Point{Date: Day(dates[i]), Value: values[i]}
	}
	sort.SliceStable(points, func(i, j int) bool { return points[i].Date.Before(points[j].Date) })

	s := Series{
		dates:  make([]time.Time, 0, len(points)),
		values: make([]float64, 0, len(points)),
	}
	for _, p := range points {
		if n := len(s.dates); n > 0 && s.dates[n-1].Equal(p.Date) {
			s.values[n-1] = p.Value
			continue
		}
		s.dates = append(s.dates, p.Date)
		s.values = append(s.values, p.Value)
	}
	return s, nil
}

// Constant builds a flat series over the given axis.
func Constant(axis []time.Time, value float64) Series {
	dates := make([]time.Time, len(axis))
	values := make([]float64, len(axis))
	for i, d := range axis {
		dates[i] = Day(d)
		values[i] = value
	}
	return Series{dates: dates, values: values}
}

// Len reports the number of observations.
func (s Series) Len() int { return len(s.dates) }

// IsEmpty reports whether the series holds no observations.
func (s Series) IsEmpty() bool { return len(s.dates) == 0 }

// Dates returns a copy of the date index.
func (s Series) Dates() []time.Time {
	out := make([]time.Time, len(s.dates))
	copy(out, s.dates)
	return out
}

// Values returns a copy of the observation values.
func (s Series) Values() []float64 {
	out := make([]float64, len(s.values))
	copy(out, s.values)
	return out
}

// At looks up the value on a given day.
func (s Series) At(date time.Time) (float64, bool) {
	d := Day(date)
	idx := sort.Search(len(s.dates), func(i int) bool { return !s.dates[i].Before(d) })
	if idx < len(s.dates) && s.dates[idx].Equal(d) {
		return s.values[idx], true
	}
	return 0, false
}

// First returns the earliest observation.
func (s Series) First() (Point, bool) {
	if s.IsEmpty() {
		return Point{}, false
	}
	return Point{Date: s.dates[0], Value: s.values[0]}, true
}

// Last returns the latest observation.
func (s Series) Last() (Point, bool) {
	if s.IsEmpty() {
		return Point{}, false
	}
	n := len(s.dates) - 1
	return Point{Date: s.dates[n], Value: s.values[n]}, true
}

// Tail returns the last n observations (or the whole series if shorter).
func (s Series) Tail(n int) Series {
	if n >= s.Len() {
		return s
	}
	start := s.Len() - n
	return Series{dates: s.dates[start:], values: s.values[start:]}
}

// ResampleDaily fills calendar gaps by carrying the previous value forward,
// producing one observation per day between the first and last dates.
func (s Series) ResampleDaily() Series {
	if s.Len() < 2 {
		return s
	}
	days := int(s.dates[len(s.dates)-1].Sub(s.dates[0]).Hours()/24) + 1
	dates := make([]time.Time, 0, days)
	values := make([]float64, 0, days)

	src := 0
	for i := 0; i < days; i++ {
		d := s.dates[0].AddDate(0, 0, i)
		for src+1 < len(s.dates) && !s.dates[src+1].After(d) {
			src++
		}
		dates = append(dates, d)
		values = append(values, s.values[src])
	}
	return Series{dates: dates, values: values}
}

// Reindex projects the series onto a target axis: exact matches keep their
// value, gaps are forward-filled, leading gaps back-filled, and anything
// still unset takes the fallback value.
func (s Series) Reindex(axis []time.Time, fallback float64) Series {
	values := make([]float64, len(axis))
	dates := make([]time.Time, len(axis))
	present := make([]bool, len(axis))

	for i, d := range axis {
		dates[i] = Day(d)
		if v, ok := s.At(d); ok {
			values[i] = v
			present[i] = true
		}
	}

	// Forward fill.
	for i := 1; i < len(values); i++ {
		if !present[i] && present[i-1] {
			values[i] = values[i-1]
			present[i] = true
		}
	}
	// Backward fill.
	for i := len(values) - 2; i >= 0; i-- {
		if !present[i] && present[i+1] {
			values[i] = values[i+1]
			present[i] = true
		}
	}
	for i := range values {
		if !present[i] {
			values[i] = fallback
		}
	}
	return Series{dates: dates, values: values}
}

// Diff returns first differences; the result is one observation shorter.
func (s Series) Diff() Series {
	if s.Len() < 2 {
		return Series{}
	}
	dates := make([]time.Time, s.Len()-1)
	values := make([]float64, s.Len()-1)
	for i := 1; i < s.Len(); i++ {
		dates[i-1] = s.dates[i]
		values[i-1] = s.values[i] - s.values[i-1]
	}
	return Series{dates: dates, values: values}
}

// PctReturns returns day-over-day fractional returns, skipping zero
// denominators.
func (s Series) PctReturns() []float64 {
	out := make([]float64, 0, s.Len())
	for i := 1; i < s.Len(); i++ {
		if s.values[i-1] == 0 {
			continue
		}
		out = append(out, s.values[i]/s.values[i-1]-1)
	}
	return out
}

// Mean returns the arithmetic mean of the values, NaN when empty.
func (s Series) Mean() float64 {
	if s.IsEmpty() {
		return math.NaN()
	}
	return stat.Mean(s.values, nil)
}

// Std returns the sample standard deviation, NaN with fewer than two points.
func (s Series) Std() float64 {
	if s.Len() < 2 {
		return math.NaN()
	}
	return stat.StdDev(s.values, nil)
}
