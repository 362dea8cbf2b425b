// Package util
//
// This file implements a size histogram for tracking the distribution of frame
// sizes. Buckets grow exponentially from 16 bytes to 16 MiB, the largest
// string a frame may carry by default, so percentiles can be estimated
// without keeping samples.
package util

import (
	"math"
	"sync/atomic"
)

// sizeBoundaries are the upper bounds of the histogram buckets. The last
// bucket holds every larger sample.
var sizeBoundaries = [...]int{
	16, 64, 256, 1024, 4096, // bytes to 4KB
	16384, 65536, 262144, 1048576, // 16KB to 1MB
	4194304, 16777216, // 4MB to 16MB
}

// SizeHistogram tracks the distribution of data sizes.
//
// Thread-safe: all methods use atomic counters and may be called concurrently.
type SizeHistogram struct {
	buckets [len(sizeBoundaries) + 1]atomic.Int64
	count   atomic.Int64
}

// NewSizeHistogram creates an empty histogram
func NewSizeHistogram() *SizeHistogram {
	return &SizeHistogram{}
}

// AddSample adds a size sample to the histogram
func (h *SizeHistogram) AddSample(size int) {
	bucketIndex := len(sizeBoundaries)
	for i, boundary := range sizeBoundaries {
		if size <= boundary {
			bucketIndex = i
			break
		}
	}

	h.buckets[bucketIndex].Add(1)
	h.count.Add(1)
}

// MedianEstimate estimates the median size
func (h *SizeHistogram) MedianEstimate() int {
	return h.GetPercentileEstimate(50)
}

// GetPercentileEstimate returns an estimate for the given percentile (0-100).
// The estimate is the middle of the bucket the percentile falls into.
func (h *SizeHistogram) GetPercentileEstimate(percentile int) int {
	count := h.count.Load()
	if count == 0 || percentile < 0 || percentile > 100 {
		return 0
	}

	targetCount := max(int64(math.Ceil(float64(count)*float64(percentile)/100.0)), 1)
	cumulativeCount := int64(0)

	for i := range h.buckets {
		cumulativeCount += h.buckets[i].Load()
		if cumulativeCount >= targetCount {
			return bucketEstimate(i)
		}
	}

	// samples added while iterating
	return bucketEstimate(len(sizeBoundaries))
}

func bucketEstimate(i int) int {
	switch {
	case i == 0:
		return sizeBoundaries[0] / 2
	case i < len(sizeBoundaries):
		return (sizeBoundaries[i-1] + sizeBoundaries[i]) / 2
	default:
		return sizeBoundaries[len(sizeBoundaries)-1] * 2
	}
}
