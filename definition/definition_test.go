package definition

import (
	"strings"
	"testing"

	"github.com/connectivityfoundry/lwm2mcore/cmn/errors"
)

func TestRegisterObjectDuplicateSameScalarsIsAlreadyRegistered(t *testing.T) {
	reg := NewRegistry()
	obj1 := NewObjectDefinition(3, "Device", 1, 1, true)
	obj2 := NewObjectDefinition(3, "Device", 1, 1, true)
	if err := reg.RegisterObject(obj1); err != nil {
		t.Fatalf("first register: %v", err)
	}
	err := reg.RegisterObject(obj2)
	if err == nil {
		t.Fatalf("expected AlreadyRegistered error on exact-scalar re-register")
	}
	if errors.AsResult(err) != errors.AlreadyRegistered {
		t.Fatalf("expected AlreadyRegistered result, got %v", errors.AsResult(err))
	}
}

func TestRegisterObjectDuplicateMismatchRejected(t *testing.T) {
	reg := NewRegistry()
	obj1 := NewObjectDefinition(3, "Device", 1, 1, true)
	obj2 := NewObjectDefinition(3, "Device", 0, 1, true)
	if err := reg.RegisterObject(obj1); err != nil {
		t.Fatalf("first register: %v", err)
	}
	err := reg.RegisterObject(obj2)
	if err == nil {
		t.Fatalf("expected MismatchedDefinition error")
	}
	if errors.AsResult(err) != errors.MismatchedDefinition {
		t.Fatalf("expected MismatchedDefinition result, got %v", errors.AsResult(err))
	}
}

func TestExecutableResourceMustBeNoneAndSingle(t *testing.T) {
	obj := NewObjectDefinition(3, "Device", 1, 1, true)
	bad := &ResourceDefinition{ID: 4, Type: TypeString, Operation: OpExecute, MaxInstances: 1}
	if err := obj.RegisterResource(bad); err == nil {
		t.Fatalf("expected error for executable resource with non-None type")
	}
	multi := &ResourceDefinition{ID: 5, Type: TypeNone, Operation: OpExecute, MaxInstances: 2}
	if err := obj.RegisterResource(multi); err == nil {
		t.Fatalf("expected error for executable resource with cardinality > 1")
	}
	good := &ResourceDefinition{ID: 6, Type: TypeNone, Operation: OpExecute, MaxInstances: 1}
	if err := obj.RegisterResource(good); err != nil {
		t.Fatalf("valid executable resource rejected: %v", err)
	}
}

func TestGetNextObjectIsRegistrationOrder(t *testing.T) {
	reg := NewRegistry()
	for _, id := range []uint16{5, 3, 9} {
		reg.RegisterObject(NewObjectDefinition(id, "x", 0, 1, true))
	}
	var order []int32
	id := int32(-1)
	for {
		id = reg.GetNextObject(id)
		if id < 0 {
			break
		}
		order = append(order, id)
	}
	want := []int32{5, 3, 9}
	if len(order) != len(want) {
		t.Fatalf("order = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order = %v, want %v", order, want)
		}
	}
}

func TestAllocateSensibleDefaults(t *testing.T) {
	cases := []struct {
		typ  ResourceType
		want int
	}{
		{TypeString, 0},
		{TypeInteger, 1},
		{TypeFloat, 4},
		{TypeBoolean, 1},
		{TypeOpaque, 0},
		{TypeTime, 1},
		{TypeObjectLink, 4},
	}
	for _, c := range cases {
		res := &ResourceDefinition{ID: 1, Type: c.typ, MaxInstances: 1}
		n := AllocateSensibleDefault(res)
		if len(n.Payload) != c.want {
			t.Fatalf("%v: default payload len = %d, want %d", c.typ, len(n.Payload), c.want)
		}
	}
}

func TestLoadXMLRegistersObjectsAndResources(t *testing.T) {
	doc := `<LWM2MDefinitions>
  <ObjectDefinition>
    <ObjectID>3</ObjectID>
    <SerialisationName>Device</SerialisationName>
    <Singleton>True</Singleton>
    <IsMandatory>True</IsMandatory>
    <Properties>
      <PropertyDefinition>
        <PropertyID>0</PropertyID>
        <SerialisationName>Manufacturer</SerialisationName>
        <DataType>String</DataType>
        <IsCollection>False</IsCollection>
        <IsMandatory>True</IsMandatory>
        <Access>Read</Access>
      </PropertyDefinition>
    </Properties>
  </ObjectDefinition>
</LWM2MDefinitions>`
	reg := NewRegistry()
	if err := LoadXML(reg, strings.NewReader(doc)); err != nil {
		t.Fatalf("LoadXML: %v", err)
	}
	obj, ok := reg.LookupObject(3)
	if !ok {
		t.Fatalf("object 3 not registered")
	}
	res, ok := obj.LookupResource(0)
	if !ok {
		t.Fatalf("resource 0 not registered")
	}
	if res.Type != TypeString || res.Name != "Manufacturer" {
		t.Fatalf("resource 0 = %+v, unexpected", res)
	}
}
