package thread

import (
	"fmt"
	"strings"

	"github.com/choraleia/threadwriter/pkg/doc"
	"github.com/choraleia/threadwriter/pkg/models"
)

// MarkCode is the mark applied to inline code spans.
const MarkCode = "code"

// IsBlockSegment reports whether a segment opens a new block.
func IsBlockSegment(seg models.StreamSegment) bool {
	if !seg.IsBlockDefining {
		return false
	}
	switch seg.Type {
	case models.SegmentHeader, models.SegmentParagraph, models.SegmentCodeBlock:
		return true
	}
	return false
}

// InsertSegment appends one streamed chunk to the response described by
// match, which must have been resolved against tr.Doc(). Block chunks are
// added as the response's last child; inline chunks extend its last
// textblock, opening one when there is none to extend. A newline chunk
// starts an empty paragraph.
func InsertSegment(tr *doc.Transaction, match ResponseMatch, seg models.StreamSegment) error {
	if !match.Found {
		return ErrResponseNotFound
	}
	n := tr.Doc().NodeAt(match.Pos)
	if n == nil || n.Kind() != doc.KindResponse || match.Pos+n.NodeSize() != match.EndOfNodePos {
		return fmt.Errorf("%w: no response at %d", doc.ErrNoNodeAtPosition, match.Pos)
	}
	match.Node = n
	if IsBlockSegment(seg) {
		return insertBlock(tr, match, seg)
	}
	return insertInline(tr, match, seg)
}

func insertBlock(tr *doc.Transaction, match ResponseMatch, seg models.StreamSegment) error {
	pos := match.EndOfNodePos - 1
	switch seg.Type {
	case models.SegmentHeader:
		heading := doc.Heading(seg.Level, doc.Text(seg.Segment, seg.Styles...))
		if match.Empty() {
			return tr.Insert(pos, heading)
		}
		return tr.Insert(pos, doc.Paragraph(), heading)
	case models.SegmentCodeBlock:
		return tr.Insert(pos, doc.CodeBlock(seg.Segment))
	default:
		return tr.Insert(pos, doc.Paragraph(inlineNodes(seg.Segment, seg.Styles)...))
	}
}

func insertInline(tr *doc.Transaction, match ResponseMatch, seg models.StreamSegment) error {
	blockEnd := match.EndOfNodePos - 1
	leafEnd := match.EndOfNodePos - 2
	last := match.Node.LastChild()

	if seg.Type == models.SegmentCodeBlock {
		if last != nil && last.Kind() == doc.KindCodeBlock {
			return tr.InsertText(leafEnd, seg.Segment)
		}
		return tr.Insert(blockEnd, doc.CodeBlock(seg.Segment))
	}
	if seg.Type == models.SegmentNewline || seg.Segment == "\n" {
		return tr.Insert(blockEnd, doc.Paragraph())
	}
	if seg.Segment == "" {
		return nil
	}

	marks := seg.Styles
	if seg.Type == models.SegmentCode {
		marks = append(append([]string(nil), marks...), MarkCode)
	}
	nodes := inlineNodes(seg.Segment, marks)
	if last != nil && (last.Kind() == doc.KindParagraph || last.Kind() == doc.KindHeading) {
		return tr.Insert(leafEnd, nodes...)
	}
	return tr.Insert(blockEnd, doc.Paragraph(nodes...))
}

// inlineNodes turns text into text runs separated by hard breaks.
func inlineNodes(text string, marks []string) []*doc.Node {
	lines := strings.Split(text, "\n")
	nodes := make([]*doc.Node, 0, len(lines)*2)
	for i, line := range lines {
		if i > 0 {
			nodes = append(nodes, doc.HardBreak())
		}
		nodes = append(nodes, doc.Text(line, marks...))
	}
	return nodes
}
