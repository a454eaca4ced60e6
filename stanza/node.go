// Copyright 2016 Sam Whited.
// Use of this source code is governed by the BSD 2-clause license that can be
// found in the LICENSE file.

package stanza

import "encoding/xml"

// Node is a single element in a stanza's XML tree: a name (resolved to its
// namespace at parse time, per spec.md §3), an ordered attribute list, any
// text content, and child nodes.
type Node struct {
	Name     xml.Name
	Attr     []xml.Attr
	Text     string
	Children []*Node
}

// NewNode returns a Node with the given name and no attributes or children.
func NewNode(space, local string) *Node {
	return &Node{Name: xml.Name{Space: space, Local: local}}
}

// WithText sets n's text content and returns n for chaining.
func (n *Node) WithText(text string) *Node {
	n.Text = text
	return n
}

// WithAttr appends an attribute and returns n for chaining.
func (n *Node) WithAttr(local, value string) *Node {
	n.Attr = append(n.Attr, xml.Attr{Name: xml.Name{Local: local}, Value: value})
	return n
}

// WithChild appends a child node and returns n for chaining.
func (n *Node) WithChild(child *Node) *Node {
	n.Children = append(n.Children, child)
	return n
}

// SetAttr sets the value of the attribute named local, replacing it if
// already present or appending it otherwise.
func (n *Node) SetAttr(local, value string) {
	for i, a := range n.Attr {
		if a.Name.Local == local {
			n.Attr[i].Value = value
			return
		}
	}
	n.Attr = append(n.Attr, xml.Attr{Name: xml.Name{Local: local}, Value: value})
}

// GetAttr returns the value of the first attribute named local, and whether it
// was present.
func (n *Node) GetAttr(local string) (string, bool) {
	for _, a := range n.Attr {
		if a.Name.Local == local {
			return a.Value, true
		}
	}
	return "", false
}

// Child returns the first child with the given namespace and local name. An
// empty namespace matches any namespace.
func (n *Node) Child(space, local string) *Node {
	for _, c := range n.Children {
		if c.Name.Local == local && (space == "" || c.Name.Space == space) {
			return c
		}
	}
	return nil
}

// ChildByName returns the first child whose (localname, namespace) equals
// name.
func (n *Node) ChildByName(name xml.Name) *Node {
	for _, c := range n.Children {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// Decode builds a Node tree from d, rooted at start. d is expected to have
// already produced start (i.e. this mirrors xml.Decoder.DecodeElement, but
// builds a generic tree instead of populating a struct). Namespace
// resolution is performed by the standard library decoder: by the time a
// child xml.StartElement reaches this function its Name.Space has already
// been resolved against any xmlns declarations in scope.
func Decode(d *xml.Decoder, start xml.StartElement) (*Node, error) {
	n := &Node{Name: start.Name, Attr: filterXMLNS(start.Attr)}
	for {
		tok, err := d.Token()
		if err != nil {
			return nil, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			child, err := Decode(d, t)
			if err != nil {
				return nil, err
			}
			n.Children = append(n.Children, child)
		case xml.CharData:
			n.Text += string(t)
		case xml.EndElement:
			return n, nil
		}
	}
}

// filterXMLNS drops xmlns and xmlns:* declaration attributes; they are
// already reflected in Name.Space for this element and its children, and
// carrying them forward would make every namespaced element look
// superficially different under the superset pattern match (spec.md §4.6).
func filterXMLNS(attr []xml.Attr) []xml.Attr {
	out := make([]xml.Attr, 0, len(attr))
	for _, a := range attr {
		if a.Name.Local == "xmlns" || a.Name.Space == "xmlns" {
			continue
		}
		out = append(out, a)
	}
	return out
}

// Encode writes n and its children to e as a well-formed XML subtree.
func (n *Node) Encode(e *xml.Encoder) error {
	start := xml.StartElement{Name: n.Name, Attr: n.Attr}
	if err := e.EncodeToken(start); err != nil {
		return err
	}
	if n.Text != "" {
		if err := e.EncodeToken(xml.CharData(n.Text)); err != nil {
			return err
		}
	}
	for _, c := range n.Children {
		if err := c.Encode(e); err != nil {
			return err
		}
	}
	return e.EncodeToken(start.End())
}

// Matches implements the "superset" relation used by porter handler
// patterns (spec.md §4.6, §9): n matches pattern iff for every element in
// pattern there is a child in n with the same (localname, namespace) whose
// attributes are all present and equal on n's side, and whose text (if the
// pattern specifies any) equals n's text, recursively. Extra children or
// attributes on n are permitted. Sibling order is never significant. A
// pattern element with an empty namespace matches an element of n with any
// namespace (the local name still must match) — patterns are typically
// built with NewNode("", ...) without regard for the namespace the wire
// form will resolve to, the same convention Child uses for lookups.
func (n *Node) Matches(pattern *Node) bool {
	if pattern == nil {
		return true
	}
	if n == nil {
		return false
	}
	if n.Name.Local != pattern.Name.Local {
		return false
	}
	if pattern.Name.Space != "" && n.Name.Space != pattern.Name.Space {
		return false
	}
	for _, pa := range pattern.Attr {
		got, ok := n.GetAttr(pa.Name.Local)
		if !ok || got != pa.Value {
			return false
		}
	}
	if pattern.Text != "" && pattern.Text != n.Text {
		return false
	}
	for _, pc := range pattern.Children {
		if !matchesAnyChild(n.Children, pc) {
			return false
		}
	}
	return true
}

func matchesAnyChild(children []*Node, pattern *Node) bool {
	for _, c := range children {
		if c.Matches(pattern) {
			return true
		}
	}
	return false
}
