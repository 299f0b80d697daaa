package calibration

import (
	"io"
	"math"

	"github.com/aybabtme/uniplot/histogram"
	"github.com/montanaflynn/stats"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// ReprojectionStats summarizes the pixel distance between projected and observed points.
type ReprojectionStats struct {
	Count  int     `json:"count"`
	Mean   float64 `json:"mean_px"`
	Median float64 `json:"median_px"`
	P95    float64 `json:"p95_px"`
	Max    float64 `json:"max_px"`
	RMS    float64 `json:"rms_px"`
}

// ReprojectionErrors returns the pixel distance of every observation, in residual order.
func (p *Problem) ReprojectionErrors(x mat.Vector) ([]float64, error) {
	r, err := p.Residual(x)
	if err != nil {
		return nil, err
	}
	errs := make([]float64, r.Len()/2)
	for i := range errs {
		errs[i] = math.Hypot(r.AtVec(2*i), r.AtVec(2*i+1))
	}
	return errs, nil
}

// ReprojectionStats summarizes ReprojectionErrors at x.
func (p *Problem) ReprojectionStats(x mat.Vector) (ReprojectionStats, error) {
	errs, err := p.ReprojectionErrors(x)
	if err != nil {
		return ReprojectionStats{}, err
	}
	return NewReprojectionStats(errs)
}

// NewReprojectionStats summarizes a list of pixel errors.
func NewReprojectionStats(errs []float64) (ReprojectionStats, error) {
	data := stats.Float64Data(errs)
	if data.Len() == 0 {
		return ReprojectionStats{}, errors.New("no reprojection errors to summarize")
	}
	mean, err := data.Mean()
	if err != nil {
		return ReprojectionStats{}, err
	}
	median, err := data.Median()
	if err != nil {
		return ReprojectionStats{}, err
	}
	p95, err := data.PercentileNearestRank(95)
	if err != nil {
		return ReprojectionStats{}, err
	}
	maxErr, err := data.Max()
	if err != nil {
		return ReprojectionStats{}, err
	}
	squares := make(stats.Float64Data, len(errs))
	for i, e := range errs {
		squares[i] = e * e
	}
	meanSquare, err := squares.Mean()
	if err != nil {
		return ReprojectionStats{}, err
	}
	return ReprojectionStats{
		Count:  data.Len(),
		Mean:   mean,
		Median: median,
		P95:    p95,
		Max:    maxErr,
		RMS:    math.Sqrt(meanSquare),
	}, nil
}

// histogramWidth is the length in characters of the longest histogram bar.
const histogramWidth = 40

// WriteHistogram draws the distribution of pixel errors over bins buckets as text.
func WriteHistogram(w io.Writer, errs []float64, bins int) error {
	if len(errs) == 0 {
		return errors.New("no reprojection errors to draw")
	}
	if bins < 1 {
		return errors.Errorf("histogram needs at least one bin, got %d", bins)
	}
	return histogram.Fprint(w, histogram.Hist(bins, errs), histogram.Linear(histogramWidth))
}
