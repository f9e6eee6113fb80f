// Package cos ("common OS"-ish) collects small byte, string, and numeric
// helpers shared by the codec, store, and ipc packages — the teacher keeps
// an equivalent grab-bag under `cmn/cos` rather than scattering one-off
// helpers across every package that needs them.
/*
 * Copyright (c) 2024, Connectivity Foundry. All rights reserved.
 */
package cos

import (
	"encoding/binary"
	"math"
	"strings"
)

// JoinWords joins non-empty path segments with "/", matching the
// teacher's cos.JoinWords convention used to build RESTful URL paths.
func JoinWords(words ...string) string {
	kept := words[:0]
	for _, w := range words {
		if w != "" {
			kept = append(kept, w)
		}
	}
	return strings.Join(kept, "/")
}

// IntWidth returns the narrowest width in {1,2,4,8} that losslessly
// represents v in two's complement — the TLV codec's integer-encoding
// invariant (spec §3, §8).
func IntWidth(v int64) int {
	switch {
	case v >= -128 && v <= 127:
		return 1
	case v >= -32768 && v <= 32767:
		return 2
	case v >= -2147483648 && v <= 2147483647:
		return 4
	default:
		return 8
	}
}

// PutIntWidth big-endian-encodes v into the low `width` bytes of out,
// two's-complement, matching the TLV wire contract chosen in spec §9.
func PutIntWidth(out []byte, v int64, width int) {
	switch width {
	case 1:
		out[0] = byte(v)
	case 2:
		binary.BigEndian.PutUint16(out, uint16(v))
	case 4:
		binary.BigEndian.PutUint32(out, uint32(v))
	case 8:
		binary.BigEndian.PutUint64(out, uint64(v))
	}
}

// GetIntWidth decodes a two's-complement big-endian integer of the given
// width, sign-extending to int64.
func GetIntWidth(in []byte) int64 {
	switch len(in) {
	case 1:
		return int64(int8(in[0]))
	case 2:
		return int64(int16(binary.BigEndian.Uint16(in)))
	case 4:
		return int64(int32(binary.BigEndian.Uint32(in)))
	case 8:
		return int64(binary.BigEndian.Uint64(in))
	default:
		// non-canonical width (e.g. 3, 5, 6, 7 bytes): sign-extend manually.
		var v int64
		neg := in[0]&0x80 != 0
		if neg {
			v = -1
		}
		for _, b := range in {
			v = (v << 8) | int64(b)&0xff
		}
		return v
	}
}

// FitsFloat32 reports whether v round-trips losslessly through binary32 —
// the TLV/JSON float-width invariant (spec §3, §8).
func FitsFloat32(v float64) bool {
	return float64(float32(v)) == v
}

// MinWidth3Bit reports whether a TLV length fits the 3-bit inline
// length encoding (0..7).
func MinWidth3Bit(length int) bool { return length >= 0 && length <= 7 }

// Btoi/Itob are the boolean<->byte helpers the TLV and plain-text codecs
// both need and otherwise would each reimplement.
func Btoi(b bool) int64 {
	if b {
		return 1
	}
	return 0
}

func Itob(v int64) bool { return v != 0 }

// Float32Bits / Float64Bits round out the IEEE-754 conversions the TLV
// codec needs beyond what encoding/binary exposes directly.
func Float32Bits(v float32) uint32 { return math.Float32bits(v) }
func Float64Bits(v float64) uint64 { return math.Float64bits(v) }
func BitsFloat32(b uint32) float32 { return math.Float32frombits(b) }
func BitsFloat64(b uint64) float64 { return math.Float64frombits(b) }
