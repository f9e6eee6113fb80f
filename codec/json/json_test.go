package json

import (
	"strings"
	"testing"

	"github.com/connectivityfoundry/lwm2mcore/codec/value"
	"github.com/connectivityfoundry/lwm2mcore/definition"
	"github.com/connectivityfoundry/lwm2mcore/tree"
)

func deviceDef() *definition.ObjectDefinition {
	obj := definition.NewObjectDefinition(3, "Device", 1, 1, true)
	obj.RegisterResource(&definition.ResourceDefinition{ID: 0, Name: "Manufacturer", Type: definition.TypeString, MaxInstances: 1})
	obj.RegisterResource(&definition.ResourceDefinition{ID: 1, Name: "ErrorCode", Type: definition.TypeInteger, MaxInstances: 16})
	return obj
}

func TestEncodeAlwaysEmitsBaseTimeZero(t *testing.T) {
	obj := deviceDef()
	inst := tree.NewNode(tree.ObjectInstance, 0, obj)
	manuDef, _ := obj.LookupResource(0)
	manu := tree.NewNode(tree.Resource, 0, manuDef)
	ri := tree.NewNode(tree.ResourceInstance, 0, manuDef)
	ri.Payload = []byte("ACME")
	tree.AddChild(manu, ri)
	tree.AddChild(inst, manu)

	out, err := Encode(inst, "/3/0")
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if !strings.Contains(string(out), `"bt":0`) {
		t.Fatalf("expected bt:0 in output, got %s", out)
	}
}

func TestDecodeMultiResourceRecords(t *testing.T) {
	obj := deviceDef()
	doc := `{"bn":"/3/0","bt":5,"e":[{"n":"1/0","v":0},{"n":"1/1","v":-1}]}`
	instNode := tree.NewNode(tree.ObjectInstance, 0, obj)
	if err := Decode([]byte(doc), instNode, obj); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	errRes := instNode.Child(1)
	if errRes == nil {
		t.Fatalf("resource 1 not populated")
	}
	if len(errRes.Children()) != 2 {
		t.Fatalf("want 2 resource instances, got %d", len(errRes.Children()))
	}
	neg := errRes.Child(1)
	if value.DecodeInteger(neg.Payload) != -1 {
		t.Fatalf("resource instance 1 should decode to -1")
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	obj := deviceDef()
	manuDef, _ := obj.LookupResource(0)
	inst := tree.NewNode(tree.ObjectInstance, 0, obj)
	manu := tree.NewNode(tree.Resource, 0, manuDef)
	ri := tree.NewNode(tree.ResourceInstance, 0, manuDef)
	ri.Payload = []byte("ACME")
	tree.AddChild(manu, ri)
	tree.AddChild(inst, manu)

	out, err := Encode(inst, "/3/0")
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	decoded := tree.NewNode(tree.ObjectInstance, 0, obj)
	if err := Decode(out, decoded, obj); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	got := decoded.Child(0).Child(0).Payload
	if string(got) != "ACME" {
		t.Fatalf("round trip mismatch: got %q", got)
	}
}
