package automation

import (
	"encoding/json"
	"fmt"
)

// Node is an inspectable accessibility node
type Node interface {
	ID() string
	ResourceID() string
	Text() string
	ContentDescription() string
	ClassName() string
	Clickable() bool
	Visible() bool
	Scrollable() bool
	Parent() Node
	Children() []Node
}

// TreeNode is a snapshot of an accessibility node as sent by the handset
type TreeNode struct {
	NodeID      string      `json:"id"`
	Resource    string      `json:"resourceId,omitempty"`
	Label       string      `json:"text,omitempty"`
	Description string      `json:"contentDescription,omitempty"`
	Class       string      `json:"className,omitempty"`
	IsClickable bool        `json:"clickable,omitempty"`
	IsVisible   bool        `json:"visible"`
	IsScroll    bool        `json:"scrollable,omitempty"`
	Kids        []*TreeNode `json:"children,omitempty"`

	parent *TreeNode
}

// ParseTree decodes a JSON snapshot and links parents
func ParseTree(data []byte) (*TreeNode, error) {
	var root TreeNode
	if err := json.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("failed to parse UI tree: %w", err)
	}
	root.Link()
	return &root, nil
}

// Link sets parent pointers below n
func (n *TreeNode) Link() {
	for _, c := range n.Kids {
		c.parent = n
		c.Link()
	}
}

func (n *TreeNode) ID() string                 { return n.NodeID }
func (n *TreeNode) ResourceID() string         { return n.Resource }
func (n *TreeNode) Text() string               { return n.Label }
func (n *TreeNode) ContentDescription() string { return n.Description }
func (n *TreeNode) ClassName() string          { return n.Class }
func (n *TreeNode) Clickable() bool            { return n.IsClickable }
func (n *TreeNode) Visible() bool              { return n.IsVisible }
func (n *TreeNode) Scrollable() bool           { return n.IsScroll }

func (n *TreeNode) Parent() Node {
	if n.parent == nil {
		return nil
	}
	return n.parent
}

func (n *TreeNode) Children() []Node {
	out := make([]Node, len(n.Kids))
	for i, c := range n.Kids {
		out[i] = c
	}
	return out
}
