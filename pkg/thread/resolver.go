// Package thread implements the document-side logic of AI chat threads:
// locating threads and their open response, extracting conversation content
// and inserting streamed chunks.
package thread

import (
	"errors"

	"github.com/choraleia/threadwriter/pkg/doc"
	"github.com/choraleia/threadwriter/pkg/models"
)

var (
	ErrThreadNotFound   = errors.New("thread not found")
	ErrResponseNotFound = errors.New("response node not found")
)

// ThreadMatch is a thread node and the position directly before it.
type ThreadMatch struct {
	Node *doc.Node
	Pos  int
}

// ID returns the thread's threadId attribute.
func (m ThreadMatch) ID() string { return m.Node.AttrString(models.AttrThreadID) }

// End is the position directly before the thread's closing boundary.
func (m ThreadMatch) End() int { return m.Pos + m.Node.NodeSize() - 1 }

// InsertionPoint is where new conversational content goes in a thread.
type InsertionPoint struct {
	Pos      int
	ThreadID string
}

// ResponseMatch describes the open response of a thread. EndOfNodePos is the
// position directly after the response node.
type ResponseMatch struct {
	Found        bool
	Node         *doc.Node
	Pos          int
	EndOfNodePos int
	ChildCount   int
	ThreadID     string
}

// Empty reports whether the matched response has no content yet.
func (m ResponseMatch) Empty() bool {
	return m.Node == nil || m.Node.ContentSize() == 0
}

// FindThread returns the thread with threadID, or the first thread in the
// document when threadID is empty.
func FindThread(d *doc.Node, threadID string) (ThreadMatch, bool) {
	var match ThreadMatch
	found := false
	d.Descendants(func(n *doc.Node, pos int, _ *doc.Node, _ int) bool {
		if found {
			return false
		}
		if n.Kind() != doc.KindThread {
			return !n.IsTextblock() && !n.IsLeaf()
		}
		if threadID == "" || n.AttrString(models.AttrThreadID) == threadID {
			match = ThreadMatch{Node: n, Pos: pos}
			found = true
		}
		return false
	})
	return match, found
}

// Threads returns every thread in document order.
func Threads(d *doc.Node) []ThreadMatch {
	var out []ThreadMatch
	d.Descendants(func(n *doc.Node, pos int, _ *doc.Node, _ int) bool {
		if n.Kind() == doc.KindThread {
			out = append(out, ThreadMatch{Node: n, Pos: pos})
			return false
		}
		return !n.IsTextblock() && !n.IsLeaf()
	})
	return out
}

// ThreadIDs lists the ids of all threads in the document.
func ThreadIDs(d *doc.Node) []string {
	threads := Threads(d)
	ids := make([]string, 0, len(threads))
	for _, t := range threads {
		if id := t.ID(); id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}

// HasThread reports whether the document contains a thread with threadID.
func HasThread(d *doc.Node, threadID string) bool {
	if threadID == "" {
		return false
	}
	_, ok := FindThread(d, threadID)
	return ok
}

// ResolveThread finds the thread for a position. A position directly before
// a thread node selects that thread; otherwise the innermost thread
// containing the position is used.
func ResolveThread(d *doc.Node, at int) (ThreadMatch, bool) {
	if n := d.NodeAt(at); n != nil && n.Kind() == doc.KindThread {
		return ThreadMatch{Node: n, Pos: at}, true
	}
	rp, err := d.Resolve(at)
	if err != nil {
		return ThreadMatch{}, false
	}
	for depth := rp.Depth(); depth > 0; depth-- {
		if n := rp.Node(depth); n.Kind() == doc.KindThread {
			return ThreadMatch{Node: n, Pos: rp.Before(depth)}, true
		}
	}
	return ThreadMatch{}, false
}

// FindThreadInsertionPoint returns where new content goes in the thread:
// directly before its composer when requireComposer is set and one exists,
// else directly before the thread's closing boundary.
func FindThreadInsertionPoint(d *doc.Node, threadID string, requireComposer bool) (InsertionPoint, bool) {
	t, ok := FindThread(d, threadID)
	if !ok {
		return InsertionPoint{}, false
	}
	point := InsertionPoint{Pos: t.End(), ThreadID: t.ID()}
	if requireComposer {
		if pos, ok := composerPos(t); ok {
			point.Pos = pos
		}
	}
	return point, true
}

func composerPos(t ThreadMatch) (int, bool) {
	pos := t.Pos + 1
	found, at := false, 0
	for _, c := range t.Node.Children() {
		if c.Kind() == doc.KindComposer {
			found, at = true, pos
		}
		pos += c.NodeSize()
	}
	return at, found
}

func responseScore(n *doc.Node) int {
	switch {
	case n.AttrBool(models.AttrReceivingAnimation):
		return 2
	case n.AttrBool(models.AttrInitialRenderAnimation):
		return 1
	default:
		return 0
	}
}

// FindResponseNode picks the open response of a thread. Receiving responses
// win over initial-render ones, which win over settled ones; among equals the
// one ending last wins.
func FindResponseNode(d *doc.Node, threadID string) ResponseMatch {
	t, ok := FindThread(d, threadID)
	if !ok {
		return ResponseMatch{}
	}
	best := ResponseMatch{ThreadID: t.ID()}
	bestScore := -1
	for _, r := range responses(t) {
		score := responseScore(r.Node)
		if score > bestScore || (score == bestScore && r.EndOfNodePos > best.EndOfNodePos) {
			best = r
			bestScore = score
		}
	}
	return best
}

// InitialRenderResponses returns the responses of the thread still flagged
// for their initial render.
func InitialRenderResponses(d *doc.Node, threadID string) []ResponseMatch {
	t, ok := FindThread(d, threadID)
	if !ok {
		return nil
	}
	var out []ResponseMatch
	for _, r := range responses(t) {
		if r.Node.AttrBool(models.AttrInitialRenderAnimation) || r.Node.AttrBool(models.AttrReceivingAnimation) {
			out = append(out, r)
		}
	}
	return out
}

func responses(t ThreadMatch) []ResponseMatch {
	var out []ResponseMatch
	base := t.Pos + 1
	t.Node.Descendants(func(n *doc.Node, pos int, _ *doc.Node, _ int) bool {
		if n.Kind() != doc.KindResponse {
			return !n.IsTextblock() && !n.IsLeaf()
		}
		abs := base + pos
		out = append(out, ResponseMatch{
			Found:        true,
			Node:         n,
			Pos:          abs,
			EndOfNodePos: abs + n.NodeSize(),
			ChildCount:   n.ChildCount(),
			ThreadID:     t.ID(),
		})
		return false
	})
	return out
}
