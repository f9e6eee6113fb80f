// Package text implements the plain-text codec (spec §4.5): used only
// for single resource-instance reads/writes, one value per request.
/*
 * Copyright (c) 2024, Connectivity Foundry. All rights reserved.
 */
package text

import (
	"encoding/base64"
	"strconv"
	"strings"

	"github.com/connectivityfoundry/lwm2mcore/codec/value"
	"github.com/connectivityfoundry/lwm2mcore/cmn/errors"
	"github.com/connectivityfoundry/lwm2mcore/definition"
)

// Encode renders payload (already in canonical wire-width form) as the
// plain-text representation of typ (spec §4.5).
func Encode(typ definition.ResourceType, payload []byte) ([]byte, error) {
	switch typ {
	case definition.TypeString:
		return payload, nil
	case definition.TypeInteger, definition.TypeTime:
		return []byte(strconv.FormatInt(value.DecodeInteger(payload), 10)), nil
	case definition.TypeFloat:
		return []byte(strconv.FormatFloat(value.DecodeFloat(payload), 'g', -1, 64)), nil
	case definition.TypeBoolean:
		if value.DecodeBoolean(payload) {
			return []byte("true"), nil
		}
		return []byte("false"), nil
	case definition.TypeOpaque:
		enc := base64.StdEncoding.EncodeToString(payload)
		return []byte(enc), nil
	case definition.TypeObjectLink:
		link := value.DecodeObjectLink(payload)
		return []byte(strconv.Itoa(int(link.ObjectID)) + ":" + strconv.Itoa(int(link.InstanceID))), nil
	default:
		return nil, errors.NewResult(errors.Unsupported, errors.New("text: unsupported resource type"))
	}
}

// Decode parses text (lenient on surrounding whitespace, spec §4.5) into
// canonical wire-width bytes for typ.
func Decode(typ definition.ResourceType, text []byte) ([]byte, error) {
	s := strings.TrimSpace(string(text))
	switch typ {
	case definition.TypeString:
		return []byte(s), nil
	case definition.TypeInteger, definition.TypeTime:
		v, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, errors.NewResult(errors.BadRequest, err)
		}
		return value.EncodeInteger(v), nil
	case definition.TypeFloat:
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, errors.NewResult(errors.BadRequest, err)
		}
		return value.EncodeFloat(v), nil
	case definition.TypeBoolean:
		switch s {
		case "true", "1":
			return value.EncodeBoolean(true), nil
		case "false", "0":
			return value.EncodeBoolean(false), nil
		default:
			return nil, errors.NewResult(errors.BadRequest, errors.New("text: invalid boolean literal"))
		}
	case definition.TypeOpaque:
		b, err := base64.StdEncoding.DecodeString(s)
		if err != nil {
			return nil, errors.NewResult(errors.BadRequest, err)
		}
		return b, nil
	case definition.TypeObjectLink:
		parts := strings.SplitN(s, ":", 2)
		if len(parts) != 2 {
			return nil, errors.NewResult(errors.BadRequest, errors.New("text: malformed object link, want oid:iid"))
		}
		oid, err1 := strconv.ParseUint(parts[0], 10, 16)
		iid, err2 := strconv.ParseUint(parts[1], 10, 16)
		if err1 != nil || err2 != nil {
			return nil, errors.NewResult(errors.BadRequest, errors.New("text: malformed object link"))
		}
		return value.EncodeObjectLink(definition.ObjectLink{ObjectID: uint16(oid), InstanceID: uint16(iid)}), nil
	default:
		return nil, errors.NewResult(errors.Unsupported, errors.New("text: unsupported resource type"))
	}
}
