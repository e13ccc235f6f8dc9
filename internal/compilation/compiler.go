// Package compilation merges per-clip scene analyses into a single narration
// transcript, in plain form for speech synthesis and in timestamped form for
// review.
package compilation

import (
	"fmt"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/fpang/video-narrator/internal/analysis"
	"github.com/fpang/video-narrator/internal/faults"
)

// Merge tuning. Scenes closer than mergeGapSeconds that describe related
// content collapse into one narration beat so the listener is not read two
// near-identical descriptions back to back.
const (
	mergeGapSeconds   = 2.0
	minSharedWords    = 2
	minContextWordLen = 4
)

// Metadata summarizes a compiled transcript.
type Metadata struct {
	TotalScenes       int     `json:"totalScenes"`
	TotalDuration     float64 `json:"totalDuration"`
	AverageConfidence float64 `json:"averageConfidence"`
	WordCount         int     `json:"wordCount"`
}

// Transcript is the compiled narration.
type Transcript struct {
	// CleanText is the narration as it will be spoken, with connective
	// phrases between scenes.
	CleanText string `json:"cleanText"`
	// TimestampedText annotates each scene with its source time range.
	TimestampedText string `json:"timestampedText"`

	Metadata Metadata `json:"metadata"`
}

// scene is one narration beat after merging.
type scene struct {
	startTime   float64
	endTime     float64
	confidence  float64
	sentences   []string
	elements    map[string]bool
	actions     map[string]bool
	contextText string
}

// Compile orders the analyses by start time, merges adjacent related scenes,
// and renders both transcript forms. An empty input is an error: a job with
// no usable analyses has nothing to narrate.
func Compile(analyses []analysis.SegmentAnalysis) (*Transcript, error) {
	if len(analyses) == 0 {
		return nil, faults.New(faults.CodeNoAnalyses, "no scene analyses to compile")
	}

	sorted := make([]analysis.SegmentAnalysis, len(analyses))
	copy(sorted, analyses)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].StartTime < sorted[j].StartTime })

	scenes := mergeScenes(sorted)

	transcript := &Transcript{
		CleanText:       renderClean(scenes),
		TimestampedText: renderTimestamped(scenes),
	}
	transcript.Metadata = buildMetadata(sorted, scenes)

	log.Debug().
		Int("analyses", len(analyses)).
		Int("scenes", len(scenes)).
		Int("words", transcript.Metadata.WordCount).
		Msg("Transcript compiled")
	return transcript, nil
}

func newScene(a analysis.SegmentAnalysis) *scene {
	s := &scene{
		startTime:   a.StartTime,
		endTime:     a.EndTime,
		confidence:  a.Confidence,
		contextText: a.Context,
		elements:    map[string]bool{},
		actions:     map[string]bool{},
	}
	for _, e := range a.VisualElements {
		s.elements[strings.ToLower(strings.TrimSpace(e))] = true
	}
	for _, act := range a.Actions {
		s.actions[strings.ToLower(strings.TrimSpace(act))] = true
	}
	s.addSentences(a.Description)
	return s
}

// addSentences splits a description into sentences and appends the ones the
// scene does not already contain. Merged scenes often repeat themselves; the
// dedup keeps the narration from stuttering.
func (s *scene) addSentences(description string) {
	for _, sentence := range splitSentences(description) {
		dup := false
		for _, existing := range s.sentences {
			if strings.EqualFold(existing, sentence) {
				dup = true
				break
			}
		}
		if !dup {
			s.sentences = append(s.sentences, sentence)
		}
	}
}

func (s *scene) absorb(a analysis.SegmentAnalysis) {
	if a.EndTime > s.endTime {
		s.endTime = a.EndTime
	}
	if a.Confidence > s.confidence {
		s.confidence = a.Confidence
	}
	for _, e := range a.VisualElements {
		s.elements[strings.ToLower(strings.TrimSpace(e))] = true
	}
	for _, act := range a.Actions {
		s.actions[strings.ToLower(strings.TrimSpace(act))] = true
	}
	s.addSentences(a.Description)
}

func mergeScenes(sorted []analysis.SegmentAnalysis) []*scene {
	var scenes []*scene
	for _, a := range sorted {
		if len(scenes) > 0 {
			last := scenes[len(scenes)-1]
			if a.StartTime-last.endTime <= mergeGapSeconds && related(last, a) {
				last.absorb(a)
				continue
			}
		}
		scenes = append(scenes, newScene(a))
	}
	return scenes
}

// related reports whether an analysis continues the previous scene: it must
// share at least one visual element or action, or at least two meaningful
// context words.
func related(s *scene, a analysis.SegmentAnalysis) bool {
	for _, e := range a.VisualElements {
		if s.elements[strings.ToLower(strings.TrimSpace(e))] {
			return true
		}
	}
	for _, act := range a.Actions {
		if s.actions[strings.ToLower(strings.TrimSpace(act))] {
			return true
		}
	}

	shared := 0
	sceneWords := contextWords(s.contextText)
	for w := range contextWords(a.Context) {
		if sceneWords[w] {
			shared++
			if shared >= minSharedWords {
				return true
			}
		}
	}
	return false
}

var stopwords = map[string]bool{
	"with": true, "that": true, "this": true, "from": true, "into": true,
	"over": true, "under": true, "near": true, "then": true, "while": true,
	"there": true, "their": true, "some": true, "during": true,
}

func contextWords(text string) map[string]bool {
	words := map[string]bool{}
	for _, w := range strings.Fields(strings.ToLower(text)) {
		w = strings.Trim(w, ".,;:!?\"'()")
		if len(w) >= minContextWordLen && !stopwords[w] {
			words[w] = true
		}
	}
	return words
}

// Connectives rotate through the middle scenes; the first scene opens
// unprefixed, the scene nearest the midpoint gets "Midway through," and the
// last gets "Finally,".
var rotatingConnectives = []string{
	"Next,",
	"Then,",
	"After that,",
	"Following this,",
}

func connective(index, total int) string {
	switch {
	case index == 0:
		return ""
	case total > 2 && index == total/2:
		return "Midway through,"
	case index == total-1:
		return "Finally,"
	default:
		return rotatingConnectives[(index-1)%len(rotatingConnectives)]
	}
}

func renderClean(scenes []*scene) string {
	var sb strings.Builder
	for i, s := range scenes {
		if i > 0 {
			sb.WriteString(" ")
		}
		if c := connective(i, len(scenes)); c != "" {
			sb.WriteString(c)
			sb.WriteString(" ")
			sb.WriteString(lowerFirst(joinSentences(s.sentences)))
		} else {
			sb.WriteString(joinSentences(s.sentences))
		}
	}
	return sb.String()
}

func renderTimestamped(scenes []*scene) string {
	var sb strings.Builder
	for i, s := range scenes {
		if i > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString(fmt.Sprintf("[%s - %s] %s",
			formatTimestamp(s.startTime), formatTimestamp(s.endTime), joinSentences(s.sentences)))
	}
	return sb.String()
}

// formatTimestamp renders seconds as MM:SS.cc.
func formatTimestamp(seconds float64) string {
	minutes := int(seconds) / 60
	rem := seconds - float64(minutes*60)
	return fmt.Sprintf("%02d:%05.2f", minutes, rem)
}

func joinSentences(sentences []string) string {
	return strings.Join(sentences, " ")
}

func splitSentences(text string) []string {
	var sentences []string
	start := 0
	for i, r := range text {
		if r == '.' || r == '!' || r == '?' {
			s := strings.TrimSpace(text[start : i+1])
			if s != "" {
				sentences = append(sentences, s)
			}
			start = i + 1
		}
	}
	if tail := strings.TrimSpace(text[start:]); tail != "" {
		sentences = append(sentences, tail)
	}
	return sentences
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	runes := []rune(s)
	runes[0] = []rune(strings.ToLower(string(runes[0])))[0]
	return string(runes)
}

func buildMetadata(analyses []analysis.SegmentAnalysis, scenes []*scene) Metadata {
	var totalConfidence float64
	for _, a := range analyses {
		totalConfidence += a.Confidence
	}

	// Narrated time and word count come from the scene descriptions alone;
	// gaps between scenes and connective phrases are not counted.
	var totalDuration float64
	var wordCount int
	for _, s := range scenes {
		totalDuration += s.endTime - s.startTime
		for _, sentence := range s.sentences {
			wordCount += len(strings.Fields(sentence))
		}
	}

	return Metadata{
		TotalScenes:       len(scenes),
		TotalDuration:     totalDuration,
		AverageConfidence: totalConfidence / float64(len(analyses)),
		WordCount:         wordCount,
	}
}
