// Package store implements the Object Store (spec §4.2): the live,
// memory-resident instances of defined objects -- object -> instance ->
// resource -> resource-instance, each resource-instance holding an opaque
// byte buffer.
/*
 * Copyright (c) 2024, Connectivity Foundry. All rights reserved.
 */
package store

import (
	"github.com/connectivityfoundry/lwm2mcore/cmn/errors"
	"github.com/connectivityfoundry/lwm2mcore/tree"
)

type resourceInstance struct {
	buf []byte
}

type resourceEntry struct {
	instances *tree.OrderedMap[int32, *resourceInstance]
}

type objectInstanceEntry struct {
	resources *tree.OrderedMap[int32, *resourceEntry]
}

type objectEntry struct {
	instances *tree.OrderedMap[int32, *objectInstanceEntry]
}

// Store is the Object Store (spec §4.2). It is mutated only from the
// single event loop (spec §5) and needs no internal lock.
type Store struct {
	objects *tree.OrderedMap[int32, *objectEntry]
}

func New() *Store {
	return &Store{objects: tree.NewOrderedMap[int32, *objectEntry]()}
}

// CreateObject registers an empty object in the store (no instances
// yet). Re-creating an already-present object is a no-op.
func (s *Store) CreateObject(obj int32) {
	if s.objects.Has(obj) {
		return
	}
	s.objects.Set(obj, &objectEntry{instances: tree.NewOrderedMap[int32, *objectInstanceEntry]()})
}

// CreateObjectInstance creates an instance of obj. If instanceID is -1
// the store assigns the smallest non-colliding non-negative id (spec
// §3). Creating beyond maxInstances fails with MethodNotAllowed (spec
// §3).
func (s *Store) CreateObjectInstance(obj, instanceID int32, maxInstances int) (int32, error) {
	s.CreateObject(obj)
	oe, _ := s.objects.Get(obj)

	if oe.instances.Len() >= maxInstances {
		return -1, errors.NewResult(errors.MethodNotAllowed, nil)
	}

	if instanceID < 0 {
		instanceID = smallestFreeID(oe.instances)
	} else if oe.instances.Has(instanceID) {
		return -1, errors.NewResult(errors.AlreadyCreated, nil)
	}

	oe.instances.Set(instanceID, &objectInstanceEntry{resources: tree.NewOrderedMap[int32, *resourceEntry]()})
	return instanceID, nil
}

// smallestFreeID finds the smallest non-negative id not already present,
// scanning the (small, insertion-ordered) existing id set.
func smallestFreeID[V any](m *tree.OrderedMap[int32, V]) int32 {
	used := make(map[int32]bool, m.Len())
	for _, k := range m.Keys() {
		used[k] = true
	}
	var id int32
	for used[id] {
		id++
	}
	return id
}

// CreateResource creates an empty (no instances) resource slot under
// (obj, inst). Re-creating an existing resource is a no-op.
func (s *Store) CreateResource(obj, inst, res int32) error {
	oie, err := s.getInstance(obj, inst)
	if err != nil {
		return err
	}
	if oie.resources.Has(res) {
		return nil
	}
	oie.resources.Set(res, &resourceEntry{instances: tree.NewOrderedMap[int32, *resourceInstance]()})
	return nil
}

// SetResourceInstanceValue writes src into [srcOffset, srcOffset+srcLen)
// of the resource-instance's buffer, resizing (zero-filling) the buffer
// first if totalLen differs from its current size (spec §4.2's
// partial-buffer-write contract). changed is true iff any byte actually
// differs from what was there before.
func (s *Store) SetResourceInstanceValue(obj, inst, res, rInst int32, src []byte, srcOffset, srcLen, totalLen int) (changed bool, err error) {
	re, err := s.getResource(obj, inst, res)
	if err != nil {
		return false, err
	}
	ri, ok := re.instances.Get(rInst)
	if !ok {
		ri = &resourceInstance{}
		re.instances.Set(rInst, ri)
	}

	if len(ri.buf) != totalLen {
		resized := make([]byte, totalLen)
		copy(resized, ri.buf)
		ri.buf = resized
		changed = true
	}
	if srcLen == 0 {
		return changed, nil
	}
	for i := 0; i < srcLen; i++ {
		if ri.buf[srcOffset+i] != src[i] {
			changed = true
		}
		ri.buf[srcOffset+i] = src[i]
	}
	return changed, nil
}

// GetResourceInstanceValue returns the resource-instance's current
// buffer and its length.
func (s *Store) GetResourceInstanceValue(obj, inst, res, rInst int32) (buf []byte, length int, err error) {
	re, err := s.getResource(obj, inst, res)
	if err != nil {
		return nil, 0, err
	}
	ri, ok := re.instances.Get(rInst)
	if !ok {
		return nil, 0, errors.NewResult(errors.NotFound, nil)
	}
	return ri.buf, len(ri.buf), nil
}

// Exists reports whether the fully-specified (obj, inst, res, rInst)
// path is present. Any of inst/res/rInst may be -1 to ask about a
// shallower level (-1 rInst asks only about the resource's existence,
// etc).
func (s *Store) Exists(obj, inst, res, rInst int32) bool {
	oe, ok := s.objects.Get(obj)
	if !ok {
		return false
	}
	if inst < 0 {
		return true
	}
	oie, ok := oe.instances.Get(inst)
	if !ok {
		return false
	}
	if res < 0 {
		return true
	}
	re, ok := oie.resources.Get(res)
	if !ok {
		return false
	}
	if rInst < 0 {
		return true
	}
	_, ok = re.instances.Get(rInst)
	return ok
}

// GetNextObjectInstanceID returns the instance id of obj following i in
// registration order, or -1 at exhaustion (spec §4.2).
func (s *Store) GetNextObjectInstanceID(obj, i int32) int32 {
	oe, ok := s.objects.Get(obj)
	if !ok {
		return -1
	}
	return nextOf(oe.instances, i)
}

func (s *Store) GetNextResourceID(obj, inst, r int32) int32 {
	oie, err := s.getInstance(obj, inst)
	if err != nil {
		return -1
	}
	return nextOf(oie.resources, r)
}

func (s *Store) GetNextResourceInstanceID(obj, inst, res, ri int32) int32 {
	re, err := s.getResource(obj, inst, res)
	if err != nil {
		return -1
	}
	return nextOf(re.instances, ri)
}

func nextOf[V any](m *tree.OrderedMap[int32, V], cur int32) int32 {
	if cur < 0 {
		first, ok := m.First()
		if !ok {
			return -1
		}
		return first
	}
	next, ok := m.Next(cur)
	if !ok {
		return -1
	}
	return next
}

// Delete removes nodes from the store (spec §4.2):
//   - Delete(o,-1,-1): all instances of o, keeping the object registered.
//   - Delete(o,i,-1): instance i and all its resources.
//   - Delete(o,i,r): resource r of instance i (all its resource-instances).
func (s *Store) Delete(obj, inst, res int32) error {
	oe, ok := s.objects.Get(obj)
	if !ok {
		return errors.NewResult(errors.NotFound, nil)
	}
	if inst < 0 {
		oe.instances = tree.NewOrderedMap[int32, *objectInstanceEntry]()
		return nil
	}
	oie, ok := oe.instances.Get(inst)
	if !ok {
		return errors.NewResult(errors.NotFound, nil)
	}
	if res < 0 {
		oe.instances.Delete(inst)
		return nil
	}
	if !oie.resources.Has(res) {
		return errors.NewResult(errors.NotFound, nil)
	}
	oie.resources.Delete(res)
	return nil
}

// Walk visits every (obj, inst, res, rInst) leaf currently populated, in
// registration order, handing fn a read-only view of its buffer. Used by
// the snapshot persistence layer (store.SaveSnapshot) to dump the whole
// store without exposing its internal aggregates.
func (s *Store) Walk(fn func(obj, inst, res, rInst int32, buf []byte)) {
	for _, obj := range s.objects.Keys() {
		oe, _ := s.objects.Get(obj)
		for _, inst := range oe.instances.Keys() {
			oie, _ := oe.instances.Get(inst)
			for _, res := range oie.resources.Keys() {
				re, _ := oie.resources.Get(res)
				for _, rInst := range re.instances.Keys() {
					ri, _ := re.instances.Get(rInst)
					fn(obj, inst, res, rInst, ri.buf)
				}
			}
		}
	}
}

func (s *Store) getInstance(obj, inst int32) (*objectInstanceEntry, error) {
	oe, ok := s.objects.Get(obj)
	if !ok {
		return nil, errors.NewResult(errors.NotFound, nil)
	}
	oie, ok := oe.instances.Get(inst)
	if !ok {
		return nil, errors.NewResult(errors.NotFound, nil)
	}
	return oie, nil
}

func (s *Store) getResource(obj, inst, res int32) (*resourceEntry, error) {
	oie, err := s.getInstance(obj, inst)
	if err != nil {
		return nil, err
	}
	re, ok := oie.resources.Get(res)
	if !ok {
		return nil, errors.NewResult(errors.NotFound, nil)
	}
	return re, nil
}
