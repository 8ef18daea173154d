package luxdb

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// RollupBucket aggregates the estimates falling in one time bucket.
type RollupBucket struct {
	BucketUnix float64 `json:"bucket_unix"`
	Count      int64   `json:"count"`
	MeanLux    float64 `json:"mean_lux"`
	StddevLux  float64 `json:"stddev_lux"`
	MinLux     float64 `json:"min_lux"`
	MaxLux     float64 `json:"max_lux"`
	P50Lux     float64 `json:"p50_lux"`
	P95Lux     float64 `json:"p95_lux"`
}

// RollupResult carries bucketed metrics and, when a histogram bucket
// size was requested, a histogram of estimate levels keyed by bucket
// floor. Float map keys do not survive encoding/json; use
// HistogramBins for the wire shape.
type RollupResult struct {
	Metrics   []RollupBucket    `json:"metrics"`
	Histogram map[float64]int64 `json:"-"`
}

// HistogramBin is one level-histogram bucket in wire form.
type HistogramBin struct {
	BucketLux float64 `json:"bucket_lux"`
	Count     int64   `json:"count"`
}

// HistogramBins returns the histogram as bins ordered by bucket floor.
func (r *RollupResult) HistogramBins() []HistogramBin {
	if len(r.Histogram) == 0 {
		return nil
	}
	keys := make([]float64, 0, len(r.Histogram))
	for k := range r.Histogram {
		keys = append(keys, k)
	}
	sort.Float64s(keys)
	bins := make([]HistogramBin, 0, len(keys))
	for _, k := range keys {
		bins = append(bins, HistogramBin{BucketLux: k, Count: r.Histogram[k]})
	}
	return bins
}

// EstimateRollupRange aggregates stored estimates written within
// [startUnix, endUnix] into buckets of groupByNSec seconds. Buckets
// with no estimates are omitted. When bucketLux is positive a level
// histogram is also built; estimates at or above histMaxLux collapse
// into the histMaxLux bucket so outliers do not stretch the axis.
func (db *DB) EstimateRollupRange(startUnix, endUnix float64, groupByNSec int64, bucketLux, histMaxLux float64) (*RollupResult, error) {
	if groupByNSec <= 0 {
		return nil, fmt.Errorf("group interval must be positive, got %d", groupByNSec)
	}

	rows, err := db.Query(`
		SELECT write_unix, estimate_lux
		FROM lux_estimates
		WHERE write_unix >= ? AND write_unix <= ?
		ORDER BY write_unix ASC`, startUnix, endUnix)
	if err != nil {
		return nil, fmt.Errorf("failed to query estimates for rollup: %w", err)
	}
	defer rows.Close()

	buckets := map[int64][]float64{}
	var order []int64
	histogram := map[float64]int64{}

	for rows.Next() {
		var writeUnix, lux float64
		if err := rows.Scan(&writeUnix, &lux); err != nil {
			return nil, fmt.Errorf("failed to scan estimate: %w", err)
		}

		b := int64(math.Floor((writeUnix - startUnix) / float64(groupByNSec)))
		if _, ok := buckets[b]; !ok {
			order = append(order, b)
		}
		buckets[b] = append(buckets[b], lux)

		if bucketLux > 0 {
			level := math.Floor(lux/bucketLux) * bucketLux
			if histMaxLux > 0 && lux >= histMaxLux {
				level = histMaxLux
			}
			histogram[level]++
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read estimates for rollup: %w", err)
	}

	// Rows arrive time-ordered so first-seen order is already
	// ascending; sort anyway so the contract does not hang on it.
	sort.Slice(order, func(i, j int) bool { return order[i] < order[j] })

	metrics := make([]RollupBucket, 0, len(order))
	for _, b := range order {
		values := buckets[b]
		sort.Float64s(values)

		rb := RollupBucket{
			BucketUnix: startUnix + float64(b*groupByNSec),
			Count:      int64(len(values)),
			MeanLux:    stat.Mean(values, nil),
			MinLux:     values[0],
			MaxLux:     values[len(values)-1],
			P50Lux:     stat.Quantile(0.5, stat.Empirical, values, nil),
			P95Lux:     stat.Quantile(0.95, stat.Empirical, values, nil),
		}
		// StdDev is NaN for a single observation; report 0 instead so
		// the result stays JSON-encodable.
		if len(values) > 1 {
			rb.StddevLux = stat.StdDev(values, nil)
		}
		metrics = append(metrics, rb)
	}

	result := &RollupResult{Metrics: metrics}
	if bucketLux > 0 {
		result.Histogram = histogram
	}
	return result, nil
}
