package tlv

import (
	"github.com/connectivityfoundry/lwm2mcore/cmn/errors"
	"github.com/connectivityfoundry/lwm2mcore/definition"
	"github.com/connectivityfoundry/lwm2mcore/tree"
)

// Encode walks root (variant tree.Object) and produces its TLV byte
// encoding (spec §4.4 "serialization walk"). Object-Instance frames are
// emitted only when root has more than one instance child; a single
// instance is written unwrapped, the reader taking the instance id from
// the request path instead.
func Encode(root *tree.Node) ([]byte, error) {
	if root.Variant != tree.Object {
		return nil, errors.NewResult(errors.BadRequest, errors.New("tlv: encode root must be an Object node"))
	}
	instances := root.Children()
	multiInstance := len(instances) > 1

	var out []byte
	for _, inst := range instances {
		body, err := encodeInstanceBody(inst)
		if err != nil {
			return nil, err
		}
		if multiInstance {
			out = append(out, encodeFrame(kindObjectInstance, inst.ID, body)...)
		} else {
			out = append(out, body...)
		}
	}
	return out, nil
}

func encodeInstanceBody(inst *tree.Node) ([]byte, error) {
	var out []byte
	for _, res := range inst.Children() {
		resDef, _ := res.Def.(*definition.ResourceDefinition)
		children := res.Children()
		multi := resDef != nil && resDef.Multi()
		if !multi && len(children) == 1 {
			out = append(out, encodeFrame(kindResource, res.ID, children[0].Payload)...)
			continue
		}
		var riBytes []byte
		for _, ri := range children {
			riBytes = append(riBytes, encodeFrame(kindResourceInstance, ri.ID, ri.Payload)...)
		}
		out = append(out, encodeFrame(kindMultiResource, res.ID, riBytes)...)
	}
	return out, nil
}

// Decode parses data into a tree rooted at objDef's Object node
// (spec §4.4 "deserialization"). targetInstanceID is the instance
// addressed by the request path, or -1 if the path didn't specify one
// (e.g. a whole-object GET). When data encodes exactly one unwrapped
// Object-Instance (no Object-Instance frame at all -- a single-instance
// write), the produced instance node takes targetInstanceID (defaulting
// to 0 if also unspecified). A single Object-Instance frame whose id
// disagrees with an explicit targetInstanceID is BadRequest per spec
// §4.4.
func Decode(data []byte, objDef *definition.ObjectDefinition, targetInstanceID int32) (*tree.Node, error) {
	frames, err := parseFrames(data)
	if err != nil {
		return nil, err
	}

	root := tree.NewNode(tree.Object, int32(objDef.ID), objDef)

	if len(frames) > 0 && frames[0].kind == kindObjectInstance {
		for _, f := range frames {
			if f.kind != kindObjectInstance {
				return nil, errors.NewResult(errors.BadRequest,
					errors.New("tlv: mixed frame kinds at object-instance level"))
			}
			if len(frames) == 1 && targetInstanceID >= 0 && f.id != targetInstanceID {
				return nil, errors.NewResult(errors.BadRequest,
					errors.New("tlv: object-instance id does not match request path"))
			}
			instNode := tree.NewNode(tree.ObjectInstance, f.id, objDef)
			if err := decodeResourceFrames(instNode, f.value, objDef); err != nil {
				return nil, err
			}
			tree.AddChild(root, instNode)
		}
		return root, nil
	}

	instID := targetInstanceID
	if instID < 0 {
		instID = 0
	}
	instNode := tree.NewNode(tree.ObjectInstance, instID, objDef)
	if err := decodeResourceFramesParsed(instNode, frames, objDef); err != nil {
		return nil, err
	}
	tree.AddChild(root, instNode)
	return root, nil
}

func decodeResourceFrames(instNode *tree.Node, body []byte, objDef *definition.ObjectDefinition) error {
	frames, err := parseFrames(body)
	if err != nil {
		return err
	}
	return decodeResourceFramesParsed(instNode, frames, objDef)
}

func decodeResourceFramesParsed(instNode *tree.Node, frames []frame, objDef *definition.ObjectDefinition) error {
	for _, f := range frames {
		resDef, ok := objDef.LookupResource(uint16(f.id))
		if !ok {
			return errors.NewResult(errors.NotFound, errors.New("tlv: undefined resource id"))
		}
		resNode := tree.NewNode(tree.Resource, f.id, resDef)
		switch f.kind {
		case kindResource:
			ri := tree.NewNode(tree.ResourceInstance, 0, resDef)
			ri.Payload = append([]byte(nil), f.value...)
			tree.AddChild(resNode, ri)
		case kindMultiResource:
			subFrames, err := parseFrames(f.value)
			if err != nil {
				return err
			}
			for _, sf := range subFrames {
				if sf.kind != kindResourceInstance {
					return errors.NewResult(errors.BadRequest,
						errors.New("tlv: multi-resource frame contains a non-resource-instance child"))
				}
				ri := tree.NewNode(tree.ResourceInstance, sf.id, resDef)
				ri.Payload = append([]byte(nil), sf.value...)
				tree.AddChild(resNode, ri)
			}
		default:
			return errors.NewResult(errors.BadRequest,
				errors.New("tlv: unexpected frame kind at resource level"))
		}
		tree.AddChild(instNode, resNode)
	}
	return nil
}
