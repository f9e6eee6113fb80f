// Package json implements the OMA "application/vnd.oma.lwm2m+json" codec
// (spec §4.5): a flat array of resource-instance records sharing
// tree-walking logic with the TLV codec -- only the frame layer differs.
// Uses jsoniter (github.com/json-iterator/go) for marshal/unmarshal, in
// its encoding/json-compatible configuration.
/*
 * Copyright (c) 2024, Connectivity Foundry. All rights reserved.
 */
package json

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"

	jsoniter "github.com/json-iterator/go"

	"github.com/connectivityfoundry/lwm2mcore/cmn/errors"
	"github.com/connectivityfoundry/lwm2mcore/codec/value"
	"github.com/connectivityfoundry/lwm2mcore/definition"
	"github.com/connectivityfoundry/lwm2mcore/tree"
)

var api = jsoniter.ConfigCompatibleWithStandardLibrary

// record is one resource-instance entry in the "e" array (spec §4.5).
type record struct {
	Name        string   `json:"n"`
	Value       *float64 `json:"v,omitempty"`
	StringValue *string  `json:"sv,omitempty"`
	BoolValue   *bool    `json:"bv,omitempty"`
	LinkValue   *string  `json:"ov,omitempty"`
}

type document struct {
	BaseName string   `json:"bn,omitempty"`
	BaseTime int64    `json:"bt"`
	Entries  []record `json:"e"`
}

// Encode renders inst (variant tree.ObjectInstance) as a JSON document
// with base name basePath. bt is always 0 on output (spec §9's resolved
// open question).
func Encode(inst *tree.Node, basePath string) ([]byte, error) {
	doc := document{BaseName: basePath, BaseTime: 0}
	for _, res := range inst.Children() {
		resDef, _ := res.Def.(*definition.ResourceDefinition)
		children := res.Children()
		multi := resDef != nil && resDef.Multi()
		if !multi && len(children) == 1 {
			rec, err := toRecord(strconv.Itoa(int(res.ID)), resDef, children[0].Payload)
			if err != nil {
				return nil, err
			}
			doc.Entries = append(doc.Entries, rec)
			continue
		}
		for _, ri := range children {
			name := fmt.Sprintf("%d/%d", res.ID, ri.ID)
			rec, err := toRecord(name, resDef, ri.Payload)
			if err != nil {
				return nil, err
			}
			doc.Entries = append(doc.Entries, rec)
		}
	}
	return api.Marshal(doc)
}

func toRecord(name string, resDef *definition.ResourceDefinition, payload []byte) (record, error) {
	rec := record{Name: name}
	typ := definition.TypeOpaque
	if resDef != nil {
		typ = resDef.Type
	}
	switch typ {
	case definition.TypeInteger, definition.TypeTime:
		f := float64(value.DecodeInteger(payload))
		rec.Value = &f
	case definition.TypeFloat:
		f := value.DecodeFloat(payload)
		rec.Value = &f
	case definition.TypeBoolean:
		b := value.DecodeBoolean(payload)
		rec.BoolValue = &b
	case definition.TypeString:
		s := string(payload)
		rec.StringValue = &s
	case definition.TypeObjectLink:
		l := value.DecodeObjectLink(payload)
		s := fmt.Sprintf("%d:%d", l.ObjectID, l.InstanceID)
		rec.LinkValue = &s
	case definition.TypeOpaque:
		s := base64.StdEncoding.EncodeToString(payload)
		rec.StringValue = &s
	default:
		return record{}, errors.NewResult(errors.Unsupported, errors.New("json: unsupported resource type"))
	}
	return rec, nil
}

// Decode parses data into instNode's children (spec §4.5), consulting
// objDef for each record's resource type. Any bt value is accepted
// (spec §9) and discarded.
func Decode(data []byte, instNode *tree.Node, objDef *definition.ObjectDefinition) error {
	var doc document
	if err := api.Unmarshal(data, &doc); err != nil {
		return errors.NewResult(errors.BadRequest, errors.Wrap(err, "json: decode"))
	}
	for _, rec := range doc.Entries {
		resID, riID, err := splitName(rec.Name)
		if err != nil {
			return err
		}
		resDef, ok := objDef.LookupResource(uint16(resID))
		if !ok {
			return errors.NewResult(errors.NotFound, errors.New("json: undefined resource id"))
		}
		payload, err := fromRecord(rec, resDef.Type)
		if err != nil {
			return err
		}
		resNode := tree.FindOrCreateChildNode(instNode, int32(resID), tree.Resource, resDef, true)
		ri := tree.FindOrCreateChildNode(resNode, int32(riID), tree.ResourceInstance, resDef, true)
		ri.Payload = payload
	}
	return nil
}

func splitName(name string) (resID, riID int, err error) {
	parts := strings.SplitN(name, "/", 2)
	resID, err = strconv.Atoi(parts[0])
	if err != nil {
		return 0, 0, errors.NewResult(errors.BadRequest, errors.Wrap(err, "json: malformed record name"))
	}
	if len(parts) == 2 {
		riID, err = strconv.Atoi(parts[1])
		if err != nil {
			return 0, 0, errors.NewResult(errors.BadRequest, errors.Wrap(err, "json: malformed record name"))
		}
	}
	return resID, riID, nil
}

func fromRecord(rec record, typ definition.ResourceType) ([]byte, error) {
	switch typ {
	case definition.TypeInteger, definition.TypeTime:
		if rec.Value == nil {
			return nil, errors.NewResult(errors.BadRequest, errors.New("json: missing numeric value"))
		}
		return value.EncodeInteger(int64(*rec.Value)), nil
	case definition.TypeFloat:
		if rec.Value == nil {
			return nil, errors.NewResult(errors.BadRequest, errors.New("json: missing numeric value"))
		}
		return value.EncodeFloat(*rec.Value), nil
	case definition.TypeBoolean:
		if rec.BoolValue == nil {
			return nil, errors.NewResult(errors.BadRequest, errors.New("json: missing boolean value"))
		}
		return value.EncodeBoolean(*rec.BoolValue), nil
	case definition.TypeString:
		if rec.StringValue == nil {
			return nil, errors.NewResult(errors.BadRequest, errors.New("json: missing string value"))
		}
		return []byte(*rec.StringValue), nil
	case definition.TypeOpaque:
		if rec.StringValue == nil {
			return nil, errors.NewResult(errors.BadRequest, errors.New("json: missing opaque value"))
		}
		b, err := base64.StdEncoding.DecodeString(*rec.StringValue)
		if err != nil {
			return nil, errors.NewResult(errors.BadRequest, err)
		}
		return b, nil
	case definition.TypeObjectLink:
		if rec.LinkValue == nil {
			return nil, errors.NewResult(errors.BadRequest, errors.New("json: missing object link value"))
		}
		parts := strings.SplitN(*rec.LinkValue, ":", 2)
		if len(parts) != 2 {
			return nil, errors.NewResult(errors.BadRequest, errors.New("json: malformed object link"))
		}
		oid, err1 := strconv.ParseUint(parts[0], 10, 16)
		iid, err2 := strconv.ParseUint(parts[1], 10, 16)
		if err1 != nil || err2 != nil {
			return nil, errors.NewResult(errors.BadRequest, errors.New("json: malformed object link"))
		}
		return value.EncodeObjectLink(definition.ObjectLink{ObjectID: uint16(oid), InstanceID: uint16(iid)}), nil
	default:
		return nil, errors.NewResult(errors.Unsupported, errors.New("json: unsupported resource type"))
	}
}
