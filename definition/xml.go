package definition

// XML definition-file surface (spec §6). The teacher's own S3
// compatibility layer (ais/prxs3.go) reaches for the standard library's
// encoding/xml rather than a third-party DOM library, and the LwM2M XML
// tree parser is explicitly out of scope (spec §1: "treated as an opaque
// DOM producer/consumer") -- so the same choice applies here: this file
// is the one opaque boundary where encoding/xml's struct tags stand in
// for that external DOM producer.

import (
	"encoding/xml"
	"io"

	"github.com/connectivityfoundry/lwm2mcore/cmn/errors"
)

type xmlPropertyDefinition struct {
	PropertyID          uint16 `xml:"PropertyID"`
	SerialisationName   string `xml:"SerialisationName"`
	DataType            string `xml:"DataType"`
	IsCollection        bool   `xml:"IsCollection"`
	IsMandatory         bool   `xml:"IsMandatory"`
	Access              string `xml:"Access"`
	DefaultValue        string `xml:"DefaultValue,omitempty"`
	DefaultValueArray   []string `xml:"DefaultValueArray>Value,omitempty"`
}

type xmlObjectDefinition struct {
	ObjectID          uint16                  `xml:"ObjectID"`
	SerialisationName string                  `xml:"SerialisationName"`
	Singleton         bool                    `xml:"Singleton"`
	IsMandatory       bool                    `xml:"IsMandatory"`
	Properties        []xmlPropertyDefinition `xml:"Properties>PropertyDefinition"`
}

type xmlDefinitions struct {
	XMLName xml.Name               `xml:"LWM2MDefinitions"`
	Objects []xmlObjectDefinition  `xml:"ObjectDefinition"`
}

// LoadXML parses a repeated <ObjectDefinition> document (spec §6) and
// registers every object/resource it describes into reg.
func LoadXML(reg *Registry, r io.Reader) error {
	var doc xmlDefinitions
	if err := xml.NewDecoder(r).Decode(&doc); err != nil {
		return errors.Wrap(err, "decode definition-file XML")
	}
	for _, xo := range doc.Objects {
		minInst := 0
		if xo.IsMandatory {
			minInst = 1
		}
		maxInst := 1
		if !xo.Singleton {
			maxInst = 1 << 16 // unbounded in practice; store enforces per-create checks
		}
		obj := NewObjectDefinition(xo.ObjectID, xo.SerialisationName, minInst, maxInst, xo.Singleton)
		for _, xp := range xo.Properties {
			res := &ResourceDefinition{
				ID:        xp.PropertyID,
				Name:      xp.SerialisationName,
				Type:      ParseResourceType(xp.DataType),
				Operation: ParseOperations(xp.Access),
			}
			if xp.IsMandatory {
				res.MinInstances = 1
			}
			res.MaxInstances = 1
			if xp.IsCollection {
				res.MaxInstances = 1 << 16
			}
			if xp.DefaultValue != "" || len(xp.DefaultValueArray) > 0 {
				res.DefaultValue = AllocateSensibleDefault(res)
			}
			if err := obj.RegisterResource(res); err != nil && errors.AsResult(err) != errors.AlreadyRegistered {
				return err
			}
		}
		if err := reg.RegisterObject(obj); err != nil && errors.AsResult(err) != errors.AlreadyRegistered {
			return err
		}
	}
	return nil
}
