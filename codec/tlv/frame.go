package tlv

import (
	"encoding/binary"

	"github.com/connectivityfoundry/lwm2mcore/cmn/errors"
)

// kind is the frame's bits 7-6 (spec §4.4).
type kind byte

const (
	kindObjectInstance   kind = 0b00
	kindResourceInstance kind = 0b01
	kindMultiResource    kind = 0b10
	kindResource         kind = 0b11
)

type frame struct {
	kind  kind
	id    int32
	value []byte
}

// encodeFrame emits the narrowest header that fits id and len(value)
// (spec §4.4).
func encodeFrame(k kind, id int32, value []byte) []byte {
	header := byte(k) << 6
	idSize := 1
	if id > 0xFF {
		header |= 0x20
		idSize = 2
	}

	var lenBytes []byte
	n := len(value)
	switch {
	case n <= 7:
		header |= byte(n)
	case n <= 0xFF:
		header |= 0x08
		lenBytes = []byte{byte(n)}
	case n <= 0xFFFF:
		header |= 0x10
		lenBytes = make([]byte, 2)
		binary.BigEndian.PutUint16(lenBytes, uint16(n))
	default:
		header |= 0x18
		lenBytes = []byte{byte(n >> 16), byte(n >> 8), byte(n)}
	}

	out := make([]byte, 0, 1+idSize+len(lenBytes)+n)
	out = append(out, header)
	if idSize == 1 {
		out = append(out, byte(id))
	} else {
		idb := make([]byte, 2)
		binary.BigEndian.PutUint16(idb, uint16(id))
		out = append(out, idb...)
	}
	out = append(out, lenBytes...)
	out = append(out, value...)
	return out
}

// parseFrames consumes every frame in buf in order (spec §4.4
// deserialization).
func parseFrames(buf []byte) ([]frame, error) {
	var frames []frame
	for off := 0; off < len(buf); {
		f, consumed, err := parseFrame(buf[off:])
		if err != nil {
			return nil, err
		}
		frames = append(frames, f)
		off += consumed
	}
	return frames, nil
}

func parseFrame(buf []byte) (frame, int, error) {
	if len(buf) < 1 {
		return frame{}, 0, errors.NewResult(errors.BadRequest, errors.New("tlv: truncated header"))
	}
	b0 := buf[0]
	k := kind((b0 >> 6) & 0x3)
	idSize := 1
	if b0&0x20 != 0 {
		idSize = 2
	}
	lengthType := (b0 >> 3) & 0x3
	inlineLen := int(b0 & 0x7)

	pos := 1
	if len(buf) < pos+idSize {
		return frame{}, 0, errors.NewResult(errors.BadRequest, errors.New("tlv: truncated identifier"))
	}
	var id int32
	if idSize == 1 {
		id = int32(buf[pos])
	} else {
		id = int32(binary.BigEndian.Uint16(buf[pos : pos+2]))
	}
	pos += idSize

	var length int
	switch lengthType {
	case 0b00:
		length = inlineLen
	case 0b01:
		if len(buf) < pos+1 {
			return frame{}, 0, errors.NewResult(errors.BadRequest, errors.New("tlv: truncated length byte"))
		}
		length = int(buf[pos])
		pos++
	case 0b10:
		if len(buf) < pos+2 {
			return frame{}, 0, errors.NewResult(errors.BadRequest, errors.New("tlv: truncated length"))
		}
		length = int(binary.BigEndian.Uint16(buf[pos : pos+2]))
		pos += 2
	default:
		if len(buf) < pos+3 {
			return frame{}, 0, errors.NewResult(errors.BadRequest, errors.New("tlv: truncated length"))
		}
		length = int(buf[pos])<<16 | int(buf[pos+1])<<8 | int(buf[pos+2])
		pos += 3
	}

	if length < 0 || len(buf) < pos+length {
		return frame{}, 0, errors.NewResult(errors.BadRequest, errors.New("tlv: out-of-range length"))
	}
	value := buf[pos : pos+length]
	pos += length
	return frame{kind: k, id: id, value: value}, pos, nil
}
