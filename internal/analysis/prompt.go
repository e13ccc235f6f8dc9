package analysis

import (
	"fmt"
	"strings"

	"github.com/fpang/video-narrator/internal/extraction"
)

// BuildClipPrompt creates the per-clip user prompt. The system instruction
// carries the output contract; this prompt anchors the clip in the timeline
// of the full video so descriptions can reference continuity.
func BuildClipPrompt(clip extraction.ExtractedClip, clipIndex, totalClips int) string {
	var sb strings.Builder

	sb.WriteString("## Clip Context\n\n")
	sb.WriteString(fmt.Sprintf("This is clip %d of %d from the source video.\n", clipIndex+1, totalClips))
	sb.WriteString(fmt.Sprintf("It covers %.2fs to %.2fs of the original timeline (%.2fs long).\n\n",
		clip.StartTime, clip.EndTime, clip.Duration))

	sb.WriteString("## Task\n\n")
	sb.WriteString("Describe this clip for a blind or low-vision listener.\n")
	sb.WriteString("Respond with the single JSON object specified in your instructions. ")
	sb.WriteString("Do not add markdown fences or any text outside the JSON.\n")

	return sb.String()
}
