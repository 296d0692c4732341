package automation

import "strings"

type matcher func(Node) bool

// Resolve finds the node for sel. The precedence chain is resource id,
// exact text, text contains, exact description, description contains, class
// name, then (if enabled) the first clickable visible node. Only that last
// tier looks at visibility. Alternates are
// tried in order when the primary finds nothing.
func Resolve(root Node, sel NodeSelector) Node {
	if root == nil {
		return nil
	}
	if n := resolvePrimary(root, sel); n != nil {
		return n
	}
	for _, alt := range sel.AlternateSelectors {
		if n := Resolve(root, alt); n != nil {
			return n
		}
	}
	return nil
}

func resolvePrimary(root Node, sel NodeSelector) Node {
	for _, m := range chain(sel) {
		if n := find(root, m); n != nil {
			return n
		}
	}
	return nil
}

func chain(sel NodeSelector) []matcher {
	var ms []matcher
	if sel.ResourceID != "" {
		ms = append(ms, func(n Node) bool { return n.ResourceID() == sel.ResourceID })
	}
	if sel.Text != "" {
		ms = append(ms, func(n Node) bool { return equalFold(n.Text(), sel.Text) })
	}
	if sel.TextContains != "" {
		ms = append(ms, func(n Node) bool { return containsFold(n.Text(), sel.TextContains) })
	}
	if sel.ContentDescription != "" {
		ms = append(ms, func(n Node) bool { return equalFold(n.ContentDescription(), sel.ContentDescription) })
	}
	if sel.DescriptionContains != "" {
		ms = append(ms, func(n Node) bool { return containsFold(n.ContentDescription(), sel.DescriptionContains) })
	}
	if sel.ClassName != "" {
		ms = append(ms, func(n Node) bool { return n.ClassName() == sel.ClassName })
	}
	if sel.UseFirstClickable {
		ms = append(ms, firstClickable)
	}
	return ms
}

func firstClickable(n Node) bool {
	return n.Visible() && n.Clickable()
}

// find walks depth first, pre-order, and returns the first match
func find(n Node, m matcher) Node {
	if m(n) {
		return n
	}
	for _, c := range n.Children() {
		if hit := find(c, m); hit != nil {
			return hit
		}
	}
	return nil
}

// ClickTarget returns n or its nearest clickable ancestor. When nothing up
// the chain is clickable, n itself is returned.
func ClickTarget(n Node) Node {
	for cur := n; cur != nil; cur = cur.Parent() {
		if cur.Clickable() {
			return cur
		}
	}
	return n
}

// ScrollTarget returns n or its nearest scrollable ancestor, or nil
func ScrollTarget(n Node) Node {
	for cur := n; cur != nil; cur = cur.Parent() {
		if cur.Scrollable() {
			return cur
		}
	}
	return nil
}

// FirstScrollable returns the first visible scrollable node
func FirstScrollable(root Node) Node {
	if root == nil {
		return nil
	}
	return find(root, func(n Node) bool { return n.Visible() && n.Scrollable() })
}

func equalFold(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}

func containsFold(s, sub string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(sub))
}
