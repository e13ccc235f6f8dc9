package segmentation

import (
	"sort"

	"github.com/rs/zerolog/log"
)

// FilterAndMerge turns raw service detections into the clean segment set the
// rest of the pipeline consumes:
//
//  1. drop detections below minConfidence,
//  2. drop zero- or negative-length detections,
//  3. sort ascending by start time,
//  4. merge consecutive same-type segments whose gap is at most mergeGap
//     seconds, taking the union of the time range and the max confidence.
//
// Detectors are noisy on rapid cuts; merging keeps the segment set small so
// downstream analysis cost stays proportional to real scene changes.
func FilterAndMerge(raw []RawDetection, minConfidence, mergeGap float64) []Segment {
	segments := make([]Segment, 0, len(raw))
	for _, d := range raw {
		if d.Confidence < minConfidence {
			continue
		}
		start := float64(d.StartMillis) / 1000.0
		end := float64(d.EndMillis) / 1000.0
		if end <= start {
			continue
		}
		conf := d.Confidence
		if conf > 100 {
			conf = 100
		}
		segments = append(segments, Segment{
			StartTime:  start,
			EndTime:    end,
			Confidence: conf,
			Type:       d.Type,
		})
	}

	sort.SliceStable(segments, func(i, j int) bool {
		return segments[i].StartTime < segments[j].StartTime
	})

	// Merge per type so an interleaved segment of another type cannot leave
	// two close same-type segments unmerged.
	byType := make(map[SegmentType][]Segment)
	for _, seg := range segments {
		byType[seg.Type] = append(byType[seg.Type], seg)
	}

	merged := make([]Segment, 0, len(segments))
	for _, segs := range byType {
		merged = append(merged, mergeAdjacent(segs, mergeGap)...)
	}
	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].StartTime < merged[j].StartTime
	})

	log.Debug().
		Int("rawDetections", len(raw)).
		Int("filtered", len(segments)).
		Int("merged", len(merged)).
		Float64("minConfidence", minConfidence).
		Float64("mergeGap", mergeGap).
		Msg("Detections filtered and merged")

	return merged
}

// mergeAdjacent collapses a sorted run of same-type segments whose gaps are
// at or below mergeGap into single segments.
func mergeAdjacent(segs []Segment, mergeGap float64) []Segment {
	out := make([]Segment, 0, len(segs))
	for _, seg := range segs {
		if len(out) > 0 {
			last := &out[len(out)-1]
			if seg.StartTime-last.EndTime <= mergeGap {
				if seg.EndTime > last.EndTime {
					last.EndTime = seg.EndTime
				}
				if seg.Confidence > last.Confidence {
					last.Confidence = seg.Confidence
				}
				continue
			}
		}
		out = append(out, seg)
	}
	return out
}
