package definition

import "github.com/connectivityfoundry/lwm2mcore/tree"

// zero-value immutables shared by every caller of AllocateSensibleDefault
// (spec §4.1) -- they're never mutated, only read, so one instance per
// type suffices.
var (
	zeroString     = []byte("")
	zeroInteger    = []byte{0}
	zeroFloat      = []byte{0, 0, 0, 0}
	zeroBoolean    = []byte{0}
	zeroOpaque     = []byte{}
	zeroTime       = []byte{0}
	zeroObjectLink = []byte{0, 0, 0, 0}
)

// AllocateSensibleDefault returns a well-defined zero value for resDef's
// type: "" for String, 0/0.0/false for numerics, empty opaque, epoch-0
// Time, ObjectLink{0,0} (spec §4.1).
func AllocateSensibleDefault(resDef *ResourceDefinition) *tree.Node {
	n := tree.NewNode(tree.ResourceInstance, 0, resDef)
	switch resDef.Type {
	case TypeString:
		n.Payload = zeroString
	case TypeInteger:
		n.Payload = zeroInteger
	case TypeFloat:
		n.Payload = zeroFloat
	case TypeBoolean:
		n.Payload = zeroBoolean
	case TypeOpaque:
		n.Payload = zeroOpaque
	case TypeTime:
		n.Payload = zeroTime
	case TypeObjectLink:
		n.Payload = zeroObjectLink
	default:
		n.Payload = zeroOpaque
	}
	return n
}
