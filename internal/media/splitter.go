// Package media handles source-file plumbing around the orchestration
// engine: slicing a long recording into bounded segments, content
// digests for uploaded artifacts, and the advisory duration estimate.
package media

import (
	"context"
	"fmt"
)

// Range is one segment's time window within the source file, in seconds.
// A split's ranges are a contiguous, non-overlapping partition of
// [0, duration), ordered by start.
type Range struct {
	Start float64
	End   float64
}

// Chunk pairs a time range with the sliced audio file on disk.
type Chunk struct {
	Range
	Path string
}

// Splitter slices a source file into per-segment audio chunks. The
// orchestration engine treats splitting as an external collaborator.
type Splitter interface {
	Split(ctx context.Context, sourcePath string, ranges []Range, outDir string) ([]Chunk, error)
}

// PartitionDuration divides [0, duration) into contiguous windows of at
// most segmentLen seconds. The final window absorbs the remainder when
// it is shorter than segmentLen.
func PartitionDuration(duration, segmentLen float64) ([]Range, error) {
	if duration <= 0 {
		return nil, fmt.Errorf("duration must be positive, got %v", duration)
	}
	if segmentLen <= 0 {
		return nil, fmt.Errorf("segment length must be positive, got %v", segmentLen)
	}

	var ranges []Range
	for start := 0.0; start < duration; start += segmentLen {
		end := start + segmentLen
		if end > duration {
			end = duration
		}
		ranges = append(ranges, Range{Start: start, End: end})
	}
	return ranges, nil
}

// EstimateDuration guesses a file's play time from its size assuming a
// constant bitrate. The result is advisory, for progress display only;
// segment boundaries always come from the splitter's actual output,
// never from this estimate.
func EstimateDuration(sizeBytes int64, bitrateKbps int) float64 {
	if sizeBytes <= 0 || bitrateKbps <= 0 {
		return 0
	}
	return float64(sizeBytes*8) / float64(bitrateKbps*1000)
}
