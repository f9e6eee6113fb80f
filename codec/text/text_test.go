package text

import (
	"testing"

	"github.com/connectivityfoundry/lwm2mcore/codec/value"
	"github.com/connectivityfoundry/lwm2mcore/definition"
)

func TestIntegerRoundTrip(t *testing.T) {
	wire := value.EncodeInteger(-42)
	txt, err := Encode(definition.TypeInteger, wire)
	if err != nil || string(txt) != "-42" {
		t.Fatalf("Encode = %q, %v", txt, err)
	}
	back, err := Decode(definition.TypeInteger, []byte("  -42  "))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if value.DecodeInteger(back) != -42 {
		t.Fatalf("round trip mismatch: got %v", back)
	}
}

func TestBooleanLiterals(t *testing.T) {
	for _, s := range []string{"true", "1"} {
		b, err := Decode(definition.TypeBoolean, []byte(s))
		if err != nil || !value.DecodeBoolean(b) {
			t.Fatalf("Decode(%q) should be true, got %v, %v", s, b, err)
		}
	}
	if _, err := Decode(definition.TypeBoolean, []byte("maybe")); err == nil {
		t.Fatalf("expected error for invalid boolean literal")
	}
}

func TestObjectLinkRoundTrip(t *testing.T) {
	link := definition.ObjectLink{ObjectID: 3, InstanceID: 7}
	wire := value.EncodeObjectLink(link)
	txt, err := Encode(definition.TypeObjectLink, wire)
	if err != nil || string(txt) != "3:7" {
		t.Fatalf("Encode = %q, %v", txt, err)
	}
	back, err := Decode(definition.TypeObjectLink, txt)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got := value.DecodeObjectLink(back); got != link {
		t.Fatalf("round trip mismatch: got %+v", got)
	}
}

func TestOpaqueBase64RoundTrip(t *testing.T) {
	raw := []byte{0xDE, 0xAD, 0xBE, 0xEF}
	txt, err := Encode(definition.TypeOpaque, raw)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	back, err := Decode(definition.TypeOpaque, txt)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(back) != len(raw) {
		t.Fatalf("round trip length mismatch")
	}
	for i := range raw {
		if back[i] != raw[i] {
			t.Fatalf("round trip byte mismatch at %d", i)
		}
	}
}
