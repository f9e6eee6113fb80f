package coap

import (
	"testing"

	"github.com/connectivityfoundry/lwm2mcore/attr"
	"github.com/connectivityfoundry/lwm2mcore/cmn/apc"
	"github.com/connectivityfoundry/lwm2mcore/codec/tlv"
	"github.com/connectivityfoundry/lwm2mcore/codec/value"
	"github.com/connectivityfoundry/lwm2mcore/definition"
	"github.com/connectivityfoundry/lwm2mcore/observe"
	"github.com/connectivityfoundry/lwm2mcore/store"
	"github.com/connectivityfoundry/lwm2mcore/tree"
)

func newTestDispatcher(t *testing.T) (*Dispatcher, *definition.ObjectDefinition) {
	t.Helper()
	reg := definition.NewRegistry()
	obj := definition.NewObjectDefinition(3, "Device", 1, 1, true)
	obj.RegisterResource(&definition.ResourceDefinition{ID: 0, Name: "Manufacturer", Type: definition.TypeString, MaxInstances: 1, Operation: definition.OpRead})
	obj.RegisterResource(&definition.ResourceDefinition{ID: 9, Name: "BatteryLevel", Type: definition.TypeInteger, MaxInstances: 1, Operation: definition.OpRead, MinInstances: 1})
	obj.RegisterResource(&definition.ResourceDefinition{ID: 5, Name: "Label", Type: definition.TypeString, MaxInstances: 1, Operation: definition.OpReadWrite})
	if err := reg.RegisterObject(obj); err != nil {
		t.Fatalf("register object: %v", err)
	}
	st := store.New()
	st.CreateObjectInstance(3, 0, 1)
	st.CreateResource(3, 0, 0)
	st.SetResourceInstanceValue(3, 0, 0, 0, []byte("ACME"), 0, 4, 4)
	st.CreateResource(3, 0, 9)
	st.SetResourceInstanceValue(3, 0, 9, 0, value.EncodeInteger(90), 0, 1, 1)

	attrs := attr.New()
	obs := observe.New(attrs)
	return New(reg, st, attrs, obs), obj
}

func TestDispatchGetContent(t *testing.T) {
	d, _ := newTestDispatcher(t)
	resp := d.Dispatch(Request{Type: apc.MethodGET, Path: "/3/0/0"})
	if resp.Code != apc.Content {
		t.Fatalf("expected 2.05 Content, got %v", resp.Code)
	}
	if string(resp.Body) != "ACME" {
		t.Fatalf("expected text-plain body ACME, got %q", resp.Body)
	}
}

func TestDispatchGetUnknownObjectIsNotFound(t *testing.T) {
	d, _ := newTestDispatcher(t)
	resp := d.Dispatch(Request{Type: apc.MethodGET, Path: "/99/0/0"})
	if resp.Code != apc.NotFound {
		t.Fatalf("expected 4.04 NotFound, got %v", resp.Code)
	}
}

func TestDispatchPutOnReadOnlyResourceIsMethodNotAllowed(t *testing.T) {
	d, _ := newTestDispatcher(t)
	resp := d.Dispatch(Request{Type: apc.MethodPUT, Path: "/3/0/0", ContentType: apc.FormatTLV})
	if resp.Code != apc.MethodNotAllowed {
		t.Fatalf("expected 4.05 MethodNotAllowed, got %v", resp.Code)
	}
}

func TestDispatchDeleteCascadesObserverRemoval(t *testing.T) {
	d, obj := newTestDispatcher(t)
	_ = obj
	d.Observe.Install(3, 0, 9, 0, observe.Peer{Addr: "p"}, apc.FormatTLV, nil, value.EncodeInteger(90))

	resp := d.Dispatch(Request{Type: apc.MethodDELETE, Path: "/3/0"})
	if resp.Code != apc.Deleted {
		t.Fatalf("expected 2.02 Deleted, got %v", resp.Code)
	}
	if d.Store.Exists(3, 0, -1, -1) {
		t.Fatalf("instance should be gone after delete")
	}
	d.Observe.MarkChanged(3, 0, 9, 0, value.EncodeInteger(91), func([]byte) (float64, bool) { return 0, false })
	emitted := 0
	d.Observe.Emit(1<<40, func(*observe.Observer, []byte) error { emitted++; return nil })
	if emitted != 0 {
		t.Fatalf("observer on /3/0/9/0 should be removed with /3/0, but it emitted %d notification(s)", emitted)
	}
}

func TestDispatchGetMalformedPathIsBadRequest(t *testing.T) {
	d, _ := newTestDispatcher(t)
	resp := d.Dispatch(Request{Type: apc.MethodGET, Path: "/x/y"})
	if resp.Code != apc.BadRequest {
		t.Fatalf("expected 4.00 BadRequest, got %v", resp.Code)
	}
}

func TestDispatchObserveInstallsAndCancelRemoves(t *testing.T) {
	d, _ := newTestDispatcher(t)
	resp := d.Dispatch(Request{Type: apc.MethodObserve, Path: "/3/0/9", Peer: "peer1"})
	if resp.Code != apc.Content {
		t.Fatalf("observe GET should still answer 2.05 Content, got %v", resp.Code)
	}
	nonNumeric := func([]byte) (float64, bool) { return 0, false }
	emitted := 0
	count := func(*observe.Observer, []byte) error { emitted++; return nil }
	d.Observe.MarkChanged(3, 0, 9, -1, value.EncodeInteger(91), nonNumeric)
	d.Observe.Emit(1<<40, count)
	if emitted != 1 {
		t.Fatalf("installed observer should emit once after a change, got %d", emitted)
	}
	resp = d.Dispatch(Request{Type: apc.MethodCancelObserve, Path: "/3/0/9", Peer: "peer1"})
	if resp.Code != apc.Content {
		t.Fatalf("cancel-observe GET should still answer 2.05 Content, got %v", resp.Code)
	}
	d.Observe.MarkChanged(3, 0, 9, -1, value.EncodeInteger(92), nonNumeric)
	d.Observe.Emit(1<<41, count)
	if emitted != 1 {
		t.Fatalf("cancelled observer should not emit, got %d notification(s) in total", emitted)
	}
}

func TestBuildTreeReflectsStoreContents(t *testing.T) {
	d, objDef := newTestDispatcher(t)
	root, err := d.buildTree(objDef, 3, -1, -1, -1)
	if err != nil {
		t.Fatalf("buildTree: %v", err)
	}
	if root.Variant != tree.Object || len(root.Children()) != 1 {
		t.Fatalf("expected exactly one instance under object 3")
	}
	inst := root.Children()[0]
	if len(inst.Children()) != 2 {
		t.Fatalf("expected 2 resources under instance 0, got %d", len(inst.Children()))
	}
}

func TestPutReplacesResourceValueAndEncodesTLV(t *testing.T) {
	d, objDef := newTestDispatcher(t)
	instObj := tree.NewNode(tree.Object, 3, objDef)
	inst := tree.NewNode(tree.ObjectInstance, 0, objDef)
	labelDef, _ := objDef.LookupResource(5)
	label := tree.NewNode(tree.Resource, 5, labelDef)
	labelRI := tree.NewNode(tree.ResourceInstance, 0, labelDef)
	labelRI.Payload = []byte("NEWCO")
	tree.AddChild(label, labelRI)
	tree.AddChild(inst, label)

	battDef, _ := objDef.LookupResource(9)
	batt := tree.NewNode(tree.Resource, 9, battDef)
	battRI := tree.NewNode(tree.ResourceInstance, 0, battDef)
	battRI.Payload = value.EncodeInteger(42)
	tree.AddChild(batt, battRI)
	tree.AddChild(inst, batt)
	tree.AddChild(instObj, inst)

	body, err := tlv.Encode(instObj)
	if err != nil {
		t.Fatalf("encode body: %v", err)
	}

	resp := d.Dispatch(Request{Type: apc.MethodPUT, Path: "/3/0", ContentType: apc.FormatTLV, Body: body})
	if resp.Code != apc.MethodNotAllowed {
		t.Fatalf("expected 4.05 MethodNotAllowed for the read-only resource 9 in the body, got %v", resp.Code)
	}
	buf, _, err := d.Store.GetResourceInstanceValue(3, 0, 5, 0)
	if err != nil || string(buf) != "NEWCO" {
		t.Fatalf("store not updated: got %q, err %v", buf, err)
	}
}
