// Package value converts between typed LwM2M resource values (int64,
// float64, bool, string, []byte, definition.ObjectLink) and the canonical
// wire-width byte form every tree.Node payload is stored in -- the same
// bytes a TLV value frame carries verbatim (spec §4.4, §9). The TLV codec
// therefore never touches these conversions itself; it only copies
// payload bytes in and out of frames. The text and JSON codecs, which
// work with human-typed values, go through this package on every
// resource they touch.
/*
 * Copyright (c) 2024, Connectivity Foundry. All rights reserved.
 */
package value

import (
	"github.com/connectivityfoundry/lwm2mcore/cmn/cos"
	"github.com/connectivityfoundry/lwm2mcore/definition"
)

// EncodeInteger returns v in its narrowest two's-complement width (spec
// §4.4). Time uses the same encoding (epoch seconds).
func EncodeInteger(v int64) []byte {
	w := cos.IntWidth(v)
	out := make([]byte, w)
	cos.PutIntWidth(out, v, w)
	return out
}

// DecodeInteger sign-extends b (any width, canonical or not) to int64.
func DecodeInteger(b []byte) int64 { return cos.GetIntWidth(b) }

// EncodeFloat returns v as binary32 if it round-trips losslessly,
// otherwise binary64 (spec §4.4).
func EncodeFloat(v float64) []byte {
	if cos.FitsFloat32(v) {
		out := make([]byte, 4)
		putU32(out, cos.Float32Bits(float32(v)))
		return out
	}
	out := make([]byte, 8)
	putU64(out, cos.Float64Bits(v))
	return out
}

// DecodeFloat reads a binary32 or binary64 payload per its length.
func DecodeFloat(b []byte) float64 {
	switch len(b) {
	case 4:
		return float64(cos.BitsFloat32(getU32(b)))
	case 8:
		return cos.BitsFloat64(getU64(b))
	default:
		return 0
	}
}

func EncodeBoolean(v bool) []byte { return []byte{byte(cos.Btoi(v))} }
func DecodeBoolean(b []byte) bool {
	if len(b) == 0 {
		return false
	}
	return cos.Itob(int64(b[0]))
}

// EncodeObjectLink packs ObjectID:u16 || InstanceID:u16, fixed 4 bytes
// (spec §4.4).
func EncodeObjectLink(l definition.ObjectLink) []byte {
	out := make([]byte, 4)
	putU16(out[0:2], l.ObjectID)
	putU16(out[2:4], l.InstanceID)
	return out
}

func DecodeObjectLink(b []byte) definition.ObjectLink {
	if len(b) < 4 {
		return definition.ObjectLink{}
	}
	return definition.ObjectLink{ObjectID: getU16(b[0:2]), InstanceID: getU16(b[2:4])}
}

func putU16(out []byte, v uint16) { out[0] = byte(v >> 8); out[1] = byte(v) }
func getU16(in []byte) uint16     { return uint16(in[0])<<8 | uint16(in[1]) }

func putU32(out []byte, v uint32) {
	out[0], out[1], out[2], out[3] = byte(v>>24), byte(v>>16), byte(v>>8), byte(v)
}
func getU32(in []byte) uint32 {
	return uint32(in[0])<<24 | uint32(in[1])<<16 | uint32(in[2])<<8 | uint32(in[3])
}

func putU64(out []byte, v uint64) {
	for i := 0; i < 8; i++ {
		out[i] = byte(v >> uint(56-8*i))
	}
}
func getU64(in []byte) uint64 {
	var v uint64
	for i := 0; i < 8; i++ {
		v = v<<8 | uint64(in[i])
	}
	return v
}
