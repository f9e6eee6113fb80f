package tree

// FindOrCreateChildNode performs a linear lookup of id among parent's
// children and appends a new node if absent, preserving discovery order
// (spec §4.3). Linear scan is deliberate — node fan-out in this model
// tops out in the hundreds (resource instances of one multi-resource),
// never enough to justify an index, and it keeps insertion order trivial
// to reason about.
func FindOrCreateChildNode(parent *Node, id int32, variant Variant, def Definition, create bool) *Node {
	if c := parent.Child(id); c != nil {
		return c
	}
	if !create {
		return nil
	}
	child := NewNode(variant, id, def)
	parent.children = append(parent.children, child)
	return child
}

// AddChild appends child to parent's child list. Used by codec decoders
// that already know they're building a fresh node, skipping the lookup
// FindOrCreateChildNode does.
func AddChild(parent, child *Node) {
	parent.children = append(parent.children, child)
}

// CopyRecursive deep-copies n and its descendants. Payload bytes are
// copied; definition pointers are shared (borrowed), never duplicated —
// spec §4.3.
func CopyRecursive(n *Node) *Node {
	if n == nil {
		return nil
	}
	cp := &Node{
		Variant: n.Variant,
		ID:      n.ID,
		Def:     n.Def,
		Create:  n.Create,
		Replace: n.Replace,
	}
	if n.Payload != nil {
		cp.Payload = append([]byte(nil), n.Payload...)
	}
	if len(n.children) > 0 {
		cp.children = make([]*Node, len(n.children))
		for i, c := range n.children {
			cp.children[i] = CopyRecursive(c)
		}
	}
	return cp
}

// CompareRecursive compares two trees structurally: variant, id, payload
// bytes, same definition pointer (identity, not deep equality — the
// registry hands out one Definition per id and every node referencing it
// shares that pointer), child counts, and recursive equality of children
// in order (spec §4.3).
func CompareRecursive(a, b *Node) bool {
	if a == nil || b == nil {
		return a == b
	}
	if a.Variant != b.Variant || a.ID != b.ID || a.Def != b.Def {
		return false
	}
	if !bytesEqual(a.Payload, b.Payload) {
		return false
	}
	if len(a.children) != len(b.children) {
		return false
	}
	for i := range a.children {
		if !CompareRecursive(a.children[i], b.children[i]) {
			return false
		}
	}
	return true
}

func bytesEqual(a, b []byte) bool {
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

// DeleteRecursive traverses n post-order, detaching every descendant so
// the tree doesn't outlive its single root (spec §3 "tree node
// ownership"). In Go this amounts to dropping the child slices so the GC
// can reclaim them; it exists as a named operation so that releasing a
// tree is an explicit step, matching the original's manual free() walk.
func DeleteRecursive(n *Node) {
	if n == nil {
		return
	}
	for _, c := range n.children {
		DeleteRecursive(c)
	}
	n.children = nil
	n.Payload = nil
}
