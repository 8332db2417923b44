package engine

import (
	"context"
	"log/slog"
	"math"
	"time"

	"github.com/roach88/stoats/internal/ir"
	"github.com/roach88/stoats/internal/loader"
)

// RestHRName is the statistic written by RestHR.
const RestHRName = "Rest HR"

// Histogram range and noise floor for rest heart rate detection.
const (
	PeakBinLow   = 30   // bpm, inclusive
	PeakBinHigh  = 90   // bpm, exclusive
	PeakFraction = 0.01 // a peak must hold more than this share of all samples
)

// RestHR finds the lowest heart rate held for a meaningful time in each
// interval: the first histogram peak above the noise floor.
type RestHR struct {
	Input Input
}

// NewRestHR reads heart rate from any owner.
func NewRestHR() RestHR {
	return RestHR{Input: Input{Name: "Heart Rate"}}
}

// Inputs implements IntervalFunc.
func (r RestHR) Inputs() []Input {
	return []Input{r.Input}
}

// Calculate implements IntervalFunc.
func (r RestHR) Calculate(ctx context.Context, interval ir.Interval, data Series) ([]loader.Entry, error) {
	points := data[ir.CanonicalName(r.Input.Name)]
	values := make([]float64, 0, len(points))
	for _, p := range points {
		if v, ok := p.Value.AsFloat(); ok {
			values = append(values, v)
		}
	}
	if len(values) == 0 {
		return nil, NewMissingInputError(interval.Owner, interval.Start, "no heart rate data")
	}

	hist := Histogram(values)
	bin, ok := SelectPeak(hist, len(values), func(bin, count int) {
		slog.Warn("skipping rest HR peak with too few measurements",
			"interval", interval.Start.Format(time.DateOnly),
			"rest_hr", PeakBinLow+bin,
			"count", count,
			"samples", len(values),
		)
	})
	if !ok {
		return nil, NewMissingInputError(interval.Owner, interval.Start, "no histogram peak above noise floor")
	}

	restHR := PeakBinLow + bin
	slog.Debug("rest HR found",
		"interval", interval.Start.Format(time.DateOnly),
		"rest_hr", restHR,
		"count", hist[bin],
	)

	return []loader.Entry{{
		Name:        RestHRName,
		Units:       "bpm",
		Summary:     "[min],[avg]",
		Description: "The rest heart rate.",
		Value:       ir.IntValue(int64(restHR)),
		Time:        interval.Start,
	}}, nil
}

// Histogram counts values into unit bins over [PeakBinLow, PeakBinHigh).
// Values outside the range and NaNs are ignored.
func Histogram(values []float64) []int {
	hist := make([]int, PeakBinHigh-PeakBinLow)
	for _, v := range values {
		if math.IsNaN(v) || v < PeakBinLow || v >= PeakBinHigh {
			continue
		}
		hist[int(math.Floor(v))-PeakBinLow]++
	}
	return hist
}

// FindPeaks returns the indices of local maxima in hist, in order.
//
// A peak is strictly higher than both neighbours. A flat top counts once,
// at its middle (rounded down). The first and last bins are never peaks.
func FindPeaks(hist []int) []int {
	var peaks []int
	i := 1
	for i < len(hist)-1 {
		if hist[i-1] >= hist[i] {
			i++
			continue
		}
		// Rising edge into i; walk across any plateau.
		j := i
		for j+1 < len(hist)-1 && hist[j+1] == hist[i] {
			j++
		}
		if j+1 < len(hist) && hist[j+1] < hist[i] {
			peaks = append(peaks, (i+j)/2)
		}
		i = j + 1
	}
	return peaks
}

// SelectPeak returns the first peak whose count exceeds PeakFraction of
// total. skipped, when non-nil, is called for each lower peak passed over.
func SelectPeak(hist []int, total int, skipped func(bin, count int)) (int, bool) {
	floor := float64(total) * PeakFraction
	for _, peak := range FindPeaks(hist) {
		if float64(hist[peak]) > floor {
			return peak, true
		}
		if skipped != nil {
			skipped(peak, hist[peak])
		}
	}
	return 0, false
}
