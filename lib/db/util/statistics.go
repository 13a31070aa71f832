// Package util
//
// This file provides statistical helpers used to analyze database
// characteristics, in particular the distribution of keys across shards
// and the distribution of value sizes within the keyspace.
//
// 1. Distribution Statistics:
//   - Stats summarizes a series of measurements (mean, min, max, standard deviation)
//   - DistributionStats additionally scores how evenly the series is distributed,
//     which is used to judge the quality of the shard hash function
//
// 2. Size Histogram:
//   - SizeHistogram tracks value sizes in exponentially growing buckets
//     (16 B, 64 B, 256 B, ... 4 GB) so that percentile estimates stay cheap
//     regardless of keyspace size
//
// 3. Concurrency Considerations:
//   - Stats and DistributionStats are immutable snapshots and safe to share
//   - SizeHistogram is guarded by an internal mutex, sampling goroutines may
//     call AddSample concurrently
package util

import (
	"math"
	"sync"
)

// --------------------------------------------------------------------------
// Basic series statistics
// --------------------------------------------------------------------------

// Stats summarizes a series of integer measurements.
type Stats struct {
	StdDeviation float64 `json:"stdDeviation"` // Standard deviation of the series
	Min          float64 `json:"min"`          // Smallest value in the series
	Max          float64 `json:"max"`          // Largest value in the series
	Mean         float64 `json:"mean"`         // Arithmetic mean of the series
	MinMaxRatio  float64 `json:"minMaxRatio"`  // Min/Max, 1.0 for a perfectly level series
}

// NewStats computes summary statistics for the given series.
// An empty series yields the zero value.
func NewStats(series []int) Stats {
	if len(series) == 0 {
		return Stats{}
	}

	var (
		minVal = math.MaxFloat64
		maxVal = 0.0
		sum    = 0.0
	)

	for _, v := range series {
		f := float64(v)
		sum += f
		minVal = math.Min(minVal, f)
		maxVal = math.Max(maxVal, f)
	}
	mean := sum / float64(len(series))

	// population standard deviation
	variance := 0.0
	for _, v := range series {
		d := float64(v) - mean
		variance += d * d
	}
	variance /= float64(len(series))

	ratio := 0.0
	if maxVal > 0 {
		ratio = minVal / maxVal
	}

	return Stats{
		StdDeviation: math.Sqrt(variance),
		Min:          minVal,
		Max:          maxVal,
		Mean:         mean,
		MinMaxRatio:  ratio,
	}
}

// --------------------------------------------------------------------------
// Distribution quality
// --------------------------------------------------------------------------

// DistributionStats extends Stats with a quality score for how evenly
// the series is distributed. A score of 1.0 means perfectly even.
type DistributionStats struct {
	Stats
	DistributionQuality float64 `json:"distributionQuality"` // 0.0 (degenerate) to 1.0 (perfectly even)
}

// NewDistributionStats computes distribution statistics for the given series.
// The quality score combines the coefficient of variation with the min/max
// ratio, each weighted equally.
func NewDistributionStats(series []int) DistributionStats {
	stats := NewStats(series)

	quality := 0.0
	if stats.Mean > 0 {
		cv := stats.StdDeviation / stats.Mean
		quality = (1.0-math.Min(1.0, cv))*0.5 + stats.MinMaxRatio*0.5
	}

	return DistributionStats{
		Stats:               stats,
		DistributionQuality: quality,
	}
}

// --------------------------------------------------------------------------
// Size histogram
// --------------------------------------------------------------------------

// SizeHistogram tracks the distribution of value sizes in exponentially
// growing buckets. Bucket i covers sizes up to boundaries[i] bytes, the
// last bucket collects everything larger than the final boundary.
type SizeHistogram struct {
	mu         sync.RWMutex
	boundaries []int   // Upper bounds in bytes, exponentially growing
	buckets    []int64 // Sample count per bucket, one more than boundaries
	count      int64   // Total number of samples
	sum        int64   // Total bytes across all samples
}

// NewSizeHistogram creates a histogram with bucket boundaries at powers
// of four from 16 B up to 4 GB.
func NewSizeHistogram() *SizeHistogram {
	var boundaries []int
	for b := 16; b <= 4*1024*1024*1024; b *= 4 {
		boundaries = append(boundaries, b)
	}

	return &SizeHistogram{
		boundaries: boundaries,
		buckets:    make([]int64, len(boundaries)+1),
	}
}

// AddSample records a value of the given size in bytes.
//
// Thread-safe: This method is safe for concurrent use.
func (h *SizeHistogram) AddSample(size int) {
	h.mu.Lock()
	defer h.mu.Unlock()

	idx := len(h.boundaries)
	for i, b := range h.boundaries {
		if size <= b {
			idx = i
			break
		}
	}

	h.buckets[idx]++
	h.count++
	h.sum += int64(size)
}

// Count returns the number of recorded samples.
//
// Thread-safe: This method is safe for concurrent use.
func (h *SizeHistogram) Count() int64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.count
}

// AverageSize returns the mean sample size in bytes, 0 if no samples
// have been recorded.
//
// Thread-safe: This method is safe for concurrent use.
func (h *SizeHistogram) AverageSize() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.count == 0 {
		return 0
	}
	return int(h.sum / h.count)
}

// MedianEstimate returns an estimate of the median sample size.
// The estimate is the upper boundary of the bucket containing the
// 50th percentile.
//
// Thread-safe: This method is safe for concurrent use.
func (h *SizeHistogram) MedianEstimate() int {
	return h.PercentileEstimate(50)
}

// PercentileEstimate returns an estimate for the given percentile (0-100).
// The estimate is the upper boundary of the bucket containing the
// requested percentile, so it is an upper bound rather than an exact value.
//
// Thread-safe: This method is safe for concurrent use.
func (h *SizeHistogram) PercentileEstimate(percentile int) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.count == 0 {
		return 0
	}

	target := (h.count*int64(percentile) + 99) / 100
	var seen int64
	for i, c := range h.buckets {
		seen += c
		if seen >= target {
			if i < len(h.boundaries) {
				return h.boundaries[i]
			}
			// beyond the last boundary, report the largest known bound
			return h.boundaries[len(h.boundaries)-1]
		}
	}
	return h.boundaries[len(h.boundaries)-1]
}

// SizeDistribution returns for each bucket its upper boundary in bytes and
// the fraction of samples it holds. The final entry has a boundary of -1
// and collects all samples larger than the last boundary.
//
// Thread-safe: This method is safe for concurrent use.
func (h *SizeHistogram) SizeDistribution() []BucketShare {
	h.mu.RLock()
	defer h.mu.RUnlock()

	shares := make([]BucketShare, len(h.buckets))
	for i, c := range h.buckets {
		boundary := -1
		if i < len(h.boundaries) {
			boundary = h.boundaries[i]
		}
		share := 0.0
		if h.count > 0 {
			share = float64(c) / float64(h.count)
		}
		shares[i] = BucketShare{UpTo: boundary, Share: share}
	}
	return shares
}

// BucketShare describes one histogram bucket: the upper size boundary in
// bytes (-1 for the overflow bucket) and the fraction of samples in it.
type BucketShare struct {
	UpTo  int     `json:"upTo"`
	Share float64 `json:"share"`
}
