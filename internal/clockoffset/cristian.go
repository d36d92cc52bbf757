// Package clockoffset implements Cristián's algorithm as an optional,
// advisory time-discipline helper for pkg/hlc.Clock. Nothing in the HLC
// generation contract depends on it; a node that never calls it still
// gets correct monotonic HLCs from wall-clock time alone (spec.md §4.1).
package clockoffset

import (
	"context"
	"errors"
	"sort"
	"time"
)

// Sampler performs a single round trip to a time authority, returning the
// server's reported time and the measured round-trip duration.
type Sampler interface {
	Sample(ctx context.Context) (serverTime time.Time, rtt time.Duration, err error)
}

// Estimate runs Cristián's algorithm: take n independent samples, compute
// offset = serverTime + rtt/2 - receiptTime for each, and return the
// median. The median is more robust to one slow/asymmetric sample than
// the mean.
func Estimate(ctx context.Context, sampler Sampler, n int) (time.Duration, error) {
	if n <= 0 {
		return 0, errors.New("clockoffset: sample count must be positive")
	}

	offsets := make([]time.Duration, 0, n)
	for i := 0; i < n; i++ {
		serverTime, rtt, err := sampler.Sample(ctx)
		if err != nil {
			continue
		}
		receipt := time.Now()
		offset := serverTime.Add(rtt / 2).Sub(receipt)
		offsets = append(offsets, offset)

		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		default:
		}
	}

	if len(offsets) == 0 {
		return 0, errors.New("clockoffset: all samples failed")
	}

	sort.Slice(offsets, func(i, j int) bool { return offsets[i] < offsets[j] })
	return offsets[len(offsets)/2], nil
}
