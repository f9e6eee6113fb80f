// Package codec dispatches a tree.Node encode/decode to the TLV,
// plain-text, or JSON codec by CoAP Content-Format (spec §4.5
// "Content-format negotiation"): GET without an Accept option uses TLV;
// with Accept the dispatcher picks the matching codec or fails
// NotAcceptable.
/*
 * Copyright (c) 2024, Connectivity Foundry. All rights reserved.
 */
package codec

import (
	"github.com/connectivityfoundry/lwm2mcore/cmn/apc"
	"github.com/connectivityfoundry/lwm2mcore/cmn/errors"
	"github.com/connectivityfoundry/lwm2mcore/codec/json"
	"github.com/connectivityfoundry/lwm2mcore/codec/text"
	"github.com/connectivityfoundry/lwm2mcore/codec/tlv"
	"github.com/connectivityfoundry/lwm2mcore/definition"
	"github.com/connectivityfoundry/lwm2mcore/tree"
)

// EncodeObject serializes root (variant tree.Object) using the codec
// named by contentFormat.
func EncodeObject(contentFormat int, root *tree.Node) ([]byte, error) {
	switch contentFormat {
	case apc.FormatTLV, apc.FormatOctetStream:
		return tlv.Encode(root)
	case apc.FormatJSON:
		if len(root.Children()) != 1 {
			return nil, errors.NewResult(errors.BadRequest,
				errors.New("codec: json encode requires exactly one object instance"))
		}
		return json.Encode(root.Children()[0], "")
	default:
		return nil, errors.NewResult(errors.BadRequest,
			errors.New("codec: unsupported content-format for object encode"))
	}
}

// DecodeObject parses data into a tree rooted at objDef's Object node
// using the codec named by contentFormat.
func DecodeObject(contentFormat int, data []byte, objDef *definition.ObjectDefinition, targetInstanceID int32) (*tree.Node, error) {
	switch contentFormat {
	case apc.FormatTLV, apc.FormatOctetStream:
		return tlv.Decode(data, objDef, targetInstanceID)
	case apc.FormatJSON:
		root := tree.NewNode(tree.Object, int32(objDef.ID), objDef)
		instID := targetInstanceID
		if instID < 0 {
			instID = 0
		}
		inst := tree.NewNode(tree.ObjectInstance, instID, objDef)
		if err := json.Decode(data, inst, objDef); err != nil {
			return nil, err
		}
		tree.AddChild(root, inst)
		return root, nil
	default:
		return nil, errors.NewResult(errors.BadRequest,
			errors.New("codec: unsupported content-format for object decode"))
	}
}

// EncodeLeaf and DecodeLeaf handle a single resource-instance value using
// the plain-text codec (spec §4.5 -- text is used only for single
// resource-instance reads/writes).
func EncodeLeaf(resType definition.ResourceType, payload []byte) ([]byte, error) {
	return text.Encode(resType, payload)
}

func DecodeLeaf(resType definition.ResourceType, raw []byte) ([]byte, error) {
	return text.Decode(resType, raw)
}

// Negotiate maps a CoAP Accept option value to a supported
// Content-Format, or NotAcceptable if none match (spec §4.5, §6).
func Negotiate(accept int, hasAccept bool) (int, error) {
	if !hasAccept {
		return apc.FormatTLV, nil
	}
	switch accept {
	case apc.FormatTLV, apc.FormatJSON, apc.FormatTextPlain, apc.FormatOctetStream:
		return accept, nil
	default:
		return 0, errors.NewResult(errors.Unsupported, errors.New("codec: no codec for requested content-format"))
	}
}
