package segment

import (
	"strings"

	"github.com/choraleia/threadwriter/pkg/models"
)

// Segmenter buffers streamed markdown and releases segments once the blocks
// they belong to are complete. A block is complete after a blank line or a
// closing code fence. It is not safe for concurrent use.
type Segmenter struct {
	pending strings.Builder
}

// NewSegmenter returns an empty segmenter.
func NewSegmenter() *Segmenter {
	return &Segmenter{}
}

// Write adds a delta and returns the segments of every block it completed.
func (s *Segmenter) Write(delta string) []models.StreamSegment {
	if delta == "" {
		return nil
	}
	s.pending.WriteString(delta)
	buf := s.pending.String()
	cut := safeCut(buf)
	if cut == 0 {
		return nil
	}
	s.pending.Reset()
	s.pending.WriteString(buf[cut:])
	return Parse(buf[:cut])
}

// Flush returns the segments of whatever is still buffered.
func (s *Segmenter) Flush() []models.StreamSegment {
	buf := s.pending.String()
	s.pending.Reset()
	return Parse(buf)
}

// Pending returns the buffered text not yet released.
func (s *Segmenter) Pending() string { return s.pending.String() }

// safeCut returns the offset after the last complete block in buf, or 0.
func safeCut(buf string) int {
	cut := 0
	inFence := false
	fence := ""
	offset := 0
	for {
		nl := strings.IndexByte(buf[offset:], '\n')
		if nl < 0 {
			return cut
		}
		line := buf[offset : offset+nl]
		offset += nl + 1

		trimmed := strings.TrimSpace(line)
		switch {
		case inFence:
			if strings.HasPrefix(trimmed, fence) && strings.Trim(trimmed, fence[:1]) == "" {
				inFence = false
				cut = offset
			}
		case strings.HasPrefix(trimmed, "```"), strings.HasPrefix(trimmed, "~~~"):
			inFence = true
			fence = trimmed[:3]
		case trimmed == "":
			cut = offset
		}
	}
}
