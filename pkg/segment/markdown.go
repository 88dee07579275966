// Package segment turns model output written in markdown into the stream
// segments a thread response is built from.
package segment

import (
	"fmt"
	"strings"
	"sync"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	extast "github.com/yuin/goldmark/extension/ast"
	"github.com/yuin/goldmark/text"

	"github.com/choraleia/threadwriter/pkg/models"
)

// Inline styles carried on segments.
const (
	StyleBold   = "bold"
	StyleItalic = "italic"
	StyleStrike = "strike"
	StyleLink   = "link"
)

var (
	parserInstance goldmark.Markdown
	parserOnce     sync.Once
)

func getParser() goldmark.Markdown {
	parserOnce.Do(func() {
		parserInstance = goldmark.New(goldmark.WithExtensions(extension.GFM))
	})
	return parserInstance
}

// Parse converts a complete markdown fragment into segments. Every block
// yields one block-defining segment carrying its first inline run; further
// runs of the same block follow as inline segments.
func Parse(markdown string) []models.StreamSegment {
	if strings.TrimSpace(markdown) == "" {
		return nil
	}
	source := []byte(markdown)
	document := getParser().Parser().Parse(text.NewReader(source))

	w := &walker{source: source}
	_ = ast.Walk(document, w.walk)
	return w.out
}

type run struct {
	text   string
	styles []string
	code   bool
}

type walker struct {
	source []byte
	out    []models.StreamSegment

	// inline runs of the block being collected
	runs   []run
	prefix string

	boldCount   int
	italicCount int
	strikeCount int
	linkCount   int

	lists []listState
}

type listState struct {
	ordered bool
	counter int
}

func (w *walker) styles() []string {
	var s []string
	if w.boldCount > 0 {
		s = append(s, StyleBold)
	}
	if w.italicCount > 0 {
		s = append(s, StyleItalic)
	}
	if w.strikeCount > 0 {
		s = append(s, StyleStrike)
	}
	if w.linkCount > 0 {
		s = append(s, StyleLink)
	}
	return s
}

func (w *walker) addText(t string, code bool) {
	if t == "" {
		return
	}
	styles := w.styles()
	if n := len(w.runs); n > 0 {
		last := &w.runs[n-1]
		if last.code == code && sameStyles(last.styles, styles) {
			last.text += t
			return
		}
	}
	w.runs = append(w.runs, run{text: t, styles: styles, code: code})
}

// flushBlock emits the collected runs as one block of the given type.
func (w *walker) flushBlock(typ string, level int) {
	runs := w.runs
	w.runs = nil
	if w.prefix != "" {
		if len(runs) > 0 && !runs[0].code && len(runs[0].styles) == 0 {
			runs[0].text = w.prefix + runs[0].text
		} else {
			runs = append([]run{{text: w.prefix}}, runs...)
		}
		w.prefix = ""
	}
	first := models.StreamSegment{Type: typ, Level: level, IsBlockDefining: true}
	if len(runs) > 0 && !runs[0].code {
		first.Segment = runs[0].text
		first.Styles = runs[0].styles
		runs = runs[1:]
	}
	w.out = append(w.out, first)
	for _, r := range runs {
		seg := models.StreamSegment{Segment: r.text, Styles: r.styles, Type: models.SegmentText}
		if r.code {
			seg.Type = models.SegmentCode
		}
		w.out = append(w.out, seg)
	}
}

func (w *walker) lines(n ast.Node) string {
	var b strings.Builder
	lines := n.Lines()
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		b.Write(seg.Value(w.source))
	}
	return strings.TrimRight(b.String(), "\n")
}

func (w *walker) walk(node ast.Node, entering bool) (ast.WalkStatus, error) {
	switch node.Kind() {
	case ast.KindDocument, ast.KindBlockquote:

	case ast.KindParagraph, ast.KindTextBlock:
		if entering {
			w.runs = nil
		} else {
			w.flushBlock(models.SegmentParagraph, 0)
		}

	case ast.KindHeading:
		if entering {
			w.runs = nil
		} else {
			w.flushBlock(models.SegmentHeader, node.(*ast.Heading).Level)
		}

	case ast.KindFencedCodeBlock, ast.KindCodeBlock:
		if entering {
			w.out = append(w.out, models.StreamSegment{
				Segment:         w.lines(node),
				Type:            models.SegmentCodeBlock,
				IsBlockDefining: true,
			})
			return ast.WalkSkipChildren, nil
		}

	case ast.KindHTMLBlock:
		if entering {
			w.runs = []run{{text: w.lines(node)}}
			w.flushBlock(models.SegmentParagraph, 0)
			return ast.WalkSkipChildren, nil
		}

	case ast.KindThematicBreak:
		if entering {
			w.flushBlock(models.SegmentParagraph, 0)
		}

	case ast.KindList:
		if entering {
			list := node.(*ast.List)
			w.lists = append(w.lists, listState{ordered: list.IsOrdered(), counter: list.Start})
		} else if len(w.lists) > 0 {
			w.lists = w.lists[:len(w.lists)-1]
		}

	case ast.KindListItem:
		if entering && len(w.lists) > 0 {
			top := &w.lists[len(w.lists)-1]
			indent := strings.Repeat("  ", len(w.lists)-1)
			if top.ordered {
				w.prefix = fmt.Sprintf("%s%d. ", indent, top.counter)
				top.counter++
			} else {
				w.prefix = indent + "- "
			}
		}

	case ast.KindText:
		if entering {
			t := node.(*ast.Text)
			w.addText(string(t.Segment.Value(w.source)), false)
			switch {
			case t.HardLineBreak():
				w.addText("\n", false)
			case t.SoftLineBreak():
				w.addText(" ", false)
			}
		}

	case ast.KindString:
		if entering {
			w.addText(string(node.(*ast.String).Value), false)
		}

	case ast.KindCodeSpan:
		if entering {
			var b strings.Builder
			for c := node.FirstChild(); c != nil; c = c.NextSibling() {
				if t, ok := c.(*ast.Text); ok {
					b.Write(t.Segment.Value(w.source))
				}
			}
			w.addText(b.String(), true)
			return ast.WalkSkipChildren, nil
		}

	case ast.KindEmphasis:
		delta := 1
		if !entering {
			delta = -1
		}
		if node.(*ast.Emphasis).Level >= 2 {
			w.boldCount += delta
		} else {
			w.italicCount += delta
		}

	case ast.KindLink:
		if entering {
			w.linkCount++
		} else {
			w.linkCount--
		}

	case ast.KindAutoLink:
		if entering {
			w.linkCount++
			w.addText(string(node.(*ast.AutoLink).URL(w.source)), false)
			w.linkCount--
		}

	case ast.KindImage:
		if entering {
			img := node.(*ast.Image)
			w.addText(string(img.Destination), false)
			return ast.WalkSkipChildren, nil
		}

	case ast.KindRawHTML:
		if entering {
			raw := node.(*ast.RawHTML)
			for i := 0; i < raw.Segments.Len(); i++ {
				seg := raw.Segments.At(i)
				w.addText(string(seg.Value(w.source)), false)
			}
		}

	case extast.KindStrikethrough:
		if entering {
			w.strikeCount++
		} else {
			w.strikeCount--
		}

	case extast.KindTable:
		if entering {
			w.table(node)
			return ast.WalkSkipChildren, nil
		}

	case extast.KindTaskCheckBox:
		if entering {
			if node.(*extast.TaskCheckBox).IsChecked {
				w.addText("[x] ", false)
			} else {
				w.addText("[ ] ", false)
			}
		}
	}
	return ast.WalkContinue, nil
}

// table emits one paragraph per row with cells separated by pipes.
func (w *walker) table(node ast.Node) {
	for row := node.FirstChild(); row != nil; row = row.NextSibling() {
		var cells []string
		for cell := row.FirstChild(); cell != nil; cell = cell.NextSibling() {
			cells = append(cells, strings.TrimSpace(w.plain(cell)))
		}
		w.runs = []run{{text: strings.Join(cells, " | ")}}
		w.flushBlock(models.SegmentParagraph, 0)
	}
}

func (w *walker) plain(node ast.Node) string {
	var b strings.Builder
	_ = ast.Walk(node, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch t := n.(type) {
		case *ast.Text:
			b.Write(t.Segment.Value(w.source))
		case *ast.String:
			b.Write(t.Value)
		}
		return ast.WalkContinue, nil
	})
	return b.String()
}

func sameStyles(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
