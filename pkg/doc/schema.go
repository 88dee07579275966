package doc

// ContentAllows reports whether a node of kind child may appear directly
// inside a node of kind parent. Other nodes accept anything so documents from
// older schema generations still load.
func ContentAllows(parent, child Kind) bool {
	switch parent {
	case KindDoc:
		return isBlockKind(child) || child == KindThread
	case KindThread:
		switch child {
		case KindUserMessage, KindResponse, KindComposer:
			return true
		}
		return isBlockKind(child)
	case KindResponse, KindUserMessage, KindComposer:
		return isBlockKind(child)
	case KindParagraph, KindHeading:
		return child == KindText || child == KindHardBreak
	case KindCodeBlock:
		return child == KindText
	case KindOther:
		return true
	default:
		return false
	}
}

func isBlockKind(k Kind) bool {
	switch k {
	case KindParagraph, KindHeading, KindCodeBlock, KindImage, KindOther:
		return true
	default:
		return false
	}
}

// Doc builds a document root.
func Doc(content ...*Node) *Node { return NewNode(KindDoc, nil, content...) }

// Thread builds a thread container.
func Thread(attrs Attrs, content ...*Node) *Node { return NewNode(KindThread, attrs, content...) }

// Response builds an AI response container.
func Response(attrs Attrs, content ...*Node) *Node { return NewNode(KindResponse, attrs, content...) }

// UserMessage builds a submitted user message container.
func UserMessage(attrs Attrs, content ...*Node) *Node {
	return NewNode(KindUserMessage, attrs, content...)
}

// Composer builds the editable input area of a thread.
func Composer(content ...*Node) *Node { return NewNode(KindComposer, nil, content...) }

func Paragraph(content ...*Node) *Node { return NewNode(KindParagraph, nil, content...) }

func Heading(level int, content ...*Node) *Node {
	if level < 1 {
		level = 1
	}
	if level > 6 {
		level = 6
	}
	return NewNode(KindHeading, Attrs{"level": level}, content...)
}

// CodeBlock builds a code block holding text verbatim.
func CodeBlock(text string) *Node { return NewNode(KindCodeBlock, nil, NewText(text)) }

func Text(text string, marks ...string) *Node { return NewText(text, marks...) }

func HardBreak() *Node { return NewNode(KindHardBreak, nil) }

func Image(attrs Attrs) *Node { return NewNode(KindImage, attrs) }
