package tree

// Variant is the LwM2M tree-node kind (spec §3, §4.3): Object,
// ObjectInstance, Resource, or ResourceInstance. The original C source
// tags a single struct with an enum; here it's a real sum type discriminated
// by Variant, per spec §9's design note ("replace tag+union with a sum
// type").
type Variant int

const (
	Object Variant = iota
	ObjectInstance
	Resource
	ResourceInstance
)

func (v Variant) String() string {
	switch v {
	case Object:
		return "Object"
	case ObjectInstance:
		return "ObjectInstance"
	case Resource:
		return "Resource"
	case ResourceInstance:
		return "ResourceInstance"
	default:
		return "Unknown"
	}
}

// Definition is the subset of definition-registry metadata a tree node
// needs to carry without the tree package importing the definition
// package back (which would cycle): only the definition's numeric ID.
// The definition package's concrete types implement DefID directly;
// callers type-assert Def back to them when they need more. The pointer
// is borrowed, never freed through the
// tree (spec §3 "tree node ownership", §9 "cross-tree references").
type Definition interface {
	DefID() int32
}

// Node is the single polymorphic tree-node type used as the canonical
// intermediate form for every operation: CoAP request/response bodies,
// IPC Get/Set payloads, and codec encode/decode all walk a Node tree
// rather than a variant-specific struct (spec §3, §4.3).
type Node struct {
	Variant Variant
	ID      int32 // -1 = unspecified
	Def     Definition
	Payload []byte // set only on ResourceInstance leaves
	Create  bool
	Replace bool

	children []*Node
}

// NewNode constructs a detached node; callers attach it via
// FindOrCreateChildNode or AddChild.
func NewNode(variant Variant, id int32, def Definition) *Node {
	return &Node{Variant: variant, ID: id, Def: def}
}

// Children returns this node's children in discovery order. Callers must
// not retain the slice across a FindOrCreateChildNode or DeleteRecursive
// call on the same node.
func (n *Node) Children() []*Node { return n.children }

// Child returns the first child with the given id, or nil.
func (n *Node) Child(id int32) *Node {
	for _, c := range n.children {
		if c.ID == id {
			return c
		}
	}
	return nil
}
