package store

import (
	"testing"

	"github.com/connectivityfoundry/lwm2mcore/cmn/errors"
)

func TestCreateObjectInstanceAssignsSmallestFreeID(t *testing.T) {
	s := New()
	id0, err := s.CreateObjectInstance(3, -1, 2)
	if err != nil || id0 != 0 {
		t.Fatalf("first instance = (%d, %v), want (0, nil)", id0, err)
	}
	id1, err := s.CreateObjectInstance(3, -1, 2)
	if err != nil || id1 != 1 {
		t.Fatalf("second instance = (%d, %v), want (1, nil)", id1, err)
	}
	if _, err := s.CreateObjectInstance(3, -1, 2); errors.AsResult(err) != errors.MethodNotAllowed {
		t.Fatalf("expected MethodNotAllowed past maxInstances, got %v", err)
	}
}

func TestCreateObjectInstanceExplicitIDCollision(t *testing.T) {
	s := New()
	if _, err := s.CreateObjectInstance(3, 5, 4); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := s.CreateObjectInstance(3, 5, 4); errors.AsResult(err) != errors.AlreadyCreated {
		t.Fatalf("expected AlreadyCreated, got %v", err)
	}
}

func TestSetResourceInstanceValuePartialWriteAndResize(t *testing.T) {
	s := New()
	s.CreateObjectInstance(3, 0, 1)
	s.CreateResource(3, 0, 0)

	changed, err := s.SetResourceInstanceValue(3, 0, 0, 0, []byte("hello"), 0, 5, 5)
	if err != nil || !changed {
		t.Fatalf("initial write: changed=%v err=%v", changed, err)
	}
	buf, n, err := s.GetResourceInstanceValue(3, 0, 0, 0)
	if err != nil || n != 5 || string(buf) != "hello" {
		t.Fatalf("got %q (%d), err %v", buf, n, err)
	}

	// Overwriting with identical bytes at same size: unchanged.
	changed, err = s.SetResourceInstanceValue(3, 0, 0, 0, []byte("hello"), 0, 5, 5)
	if err != nil || changed {
		t.Fatalf("identical rewrite should report changed=false, got %v, err %v", changed, err)
	}

	// Partial overwrite of a sub-range plus resize to a larger total length
	// zero-fills the new tail.
	changed, err = s.SetResourceInstanceValue(3, 0, 0, 0, []byte("J"), 0, 1, 8)
	if err != nil || !changed {
		t.Fatalf("resize+partial write: changed=%v err=%v", changed, err)
	}
	buf, n, err = s.GetResourceInstanceValue(3, 0, 0, 0)
	if err != nil || n != 8 {
		t.Fatalf("got len %d, err %v", n, err)
	}
	want := []byte{'J', 'e', 'l', 'l', 'o', 0, 0, 0}
	for i, b := range want {
		if buf[i] != b {
			t.Fatalf("buf = %v, want %v", buf, want)
		}
	}
}

func TestExistsAtEveryDepth(t *testing.T) {
	s := New()
	s.CreateObjectInstance(3, 0, 1)
	s.CreateResource(3, 0, 0)
	s.SetResourceInstanceValue(3, 0, 0, 0, []byte{1}, 0, 1, 1)

	if !s.Exists(3, -1, -1, -1) {
		t.Fatalf("object should exist")
	}
	if !s.Exists(3, 0, -1, -1) {
		t.Fatalf("instance should exist")
	}
	if !s.Exists(3, 0, 0, -1) {
		t.Fatalf("resource should exist")
	}
	if !s.Exists(3, 0, 0, 0) {
		t.Fatalf("resource instance should exist")
	}
	if s.Exists(3, 0, 0, 1) {
		t.Fatalf("resource instance 1 should not exist")
	}
	if s.Exists(9, -1, -1, -1) {
		t.Fatalf("object 9 should not exist")
	}
}

func TestGetNextTraversalOrder(t *testing.T) {
	s := New()
	s.CreateObjectInstance(3, 5, 10)
	s.CreateObjectInstance(3, 2, 10)
	s.CreateObjectInstance(3, 7, 10)

	var order []int32
	id := int32(-1)
	for {
		id = s.GetNextObjectInstanceID(3, id)
		if id < 0 {
			break
		}
		order = append(order, id)
	}
	want := []int32{5, 2, 7}
	if len(order) != len(want) {
		t.Fatalf("order = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order = %v, want %v", order, want)
		}
	}
}

func TestDeleteCascadingForms(t *testing.T) {
	s := New()
	s.CreateObjectInstance(3, 0, 5)
	s.CreateObjectInstance(3, 1, 5)
	s.CreateResource(3, 0, 0)
	s.CreateResource(3, 1, 0)

	if err := s.Delete(3, 0, 0); err != nil {
		t.Fatalf("delete resource: %v", err)
	}
	if s.Exists(3, 0, 0, -1) {
		t.Fatalf("resource should be gone")
	}
	if !s.Exists(3, 0, -1, -1) {
		t.Fatalf("instance 0 should survive resource delete")
	}

	if err := s.Delete(3, 1, -1); err != nil {
		t.Fatalf("delete instance: %v", err)
	}
	if s.Exists(3, 1, -1, -1) {
		t.Fatalf("instance 1 should be gone")
	}

	if err := s.Delete(3, -1, -1); err != nil {
		t.Fatalf("delete all instances: %v", err)
	}
	if s.Exists(3, 0, -1, -1) {
		t.Fatalf("instance 0 should be gone after full delete")
	}
	if !s.Exists(3, -1, -1, -1) {
		t.Fatalf("object should remain registered after instance wipe")
	}
}

func TestGetResourceInstanceValueMissingReturnsNotFound(t *testing.T) {
	s := New()
	s.CreateObjectInstance(3, 0, 1)
	s.CreateResource(3, 0, 0)
	if _, _, err := s.GetResourceInstanceValue(3, 0, 0, 0); errors.AsResult(err) != errors.NotFound {
		t.Fatalf("expected NotFound, got %v", err)
	}
}
