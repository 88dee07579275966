package doc

import (
	"encoding/json"
	"fmt"
)

type nodeJSON struct {
	Type    string         `json:"type"`
	Attrs   map[string]any `json:"attrs,omitempty"`
	Content []*Node        `json:"content,omitempty"`
	Text    string         `json:"text,omitempty"`
	Marks   []markJSON     `json:"marks,omitempty"`
}

type markJSON struct {
	Type string `json:"type"`
}

func (n *Node) MarshalJSON() ([]byte, error) {
	out := nodeJSON{Type: n.typeName, Text: n.text}
	if len(n.attrs) > 0 {
		out.Attrs = n.attrs
	}
	if len(n.content) > 0 {
		out.Content = n.content
	}
	for _, m := range n.marks {
		out.Marks = append(out.Marks, markJSON{Type: m})
	}
	return json.Marshal(out)
}

func (n *Node) UnmarshalJSON(b []byte) error {
	var in nodeJSON
	if err := json.Unmarshal(b, &in); err != nil {
		return err
	}
	if in.Type == "" {
		return fmt.Errorf("doc: node without type")
	}
	if in.Type == TypeText {
		if in.Text == "" {
			return fmt.Errorf("doc: empty text node")
		}
		marks := make([]string, 0, len(in.Marks))
		for _, m := range in.Marks {
			marks = append(marks, m.Type)
		}
		*n = *NewText(in.Text, marks...)
		return nil
	}
	for _, c := range in.Content {
		if c == nil {
			return fmt.Errorf("doc: null child in %s", in.Type)
		}
	}
	*n = *NewOther(in.Type, in.Attrs, in.Content...)
	return nil
}

// Parse decodes a serialized document. The root must be a doc node.
func Parse(b []byte) (*Node, error) {
	var n Node
	if err := json.Unmarshal(b, &n); err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}
	if n.Kind() != KindDoc {
		return nil, fmt.Errorf("parse document: root is %q, want %q", n.Type(), TypeDoc)
	}
	return &n, nil
}
