// Package definition implements the Definition Registry (spec §4.1): the
// catalog of object/resource type metadata that the object store, codecs,
// and CoAP dispatcher all consult to know what a given (object, resource)
// id means.
/*
 * Copyright (c) 2024, Connectivity Foundry. All rights reserved.
 */
package definition

import (
	"fmt"

	"github.com/connectivityfoundry/lwm2mcore/cmn/errors"
	"github.com/connectivityfoundry/lwm2mcore/tree"
)

// ResourceType enumerates the LwM2M value types (spec §3).
type ResourceType int

const (
	TypeNone ResourceType = iota
	TypeString
	TypeInteger
	TypeFloat
	TypeBoolean
	TypeOpaque
	TypeTime
	TypeObjectLink
	TypeInvalid
)

func (t ResourceType) String() string {
	switch t {
	case TypeNone:
		return "None"
	case TypeString:
		return "String"
	case TypeInteger:
		return "Integer"
	case TypeFloat:
		return "Float"
	case TypeBoolean:
		return "Boolean"
	case TypeOpaque:
		return "Opaque"
	case TypeTime:
		return "Time"
	case TypeObjectLink:
		return "ObjectLink"
	default:
		return "Invalid"
	}
}

// ParseResourceType maps the definition-file data-type strings (spec §6)
// to a ResourceType.
func ParseResourceType(s string) ResourceType {
	switch s {
	case "String":
		return TypeString
	case "Integer":
		return TypeInteger
	case "Float":
		return TypeFloat
	case "Boolean":
		return TypeBoolean
	case "Opaque":
		return TypeOpaque
	case "Time":
		return TypeTime
	case "ObjectLink":
		return TypeObjectLink
	case "None":
		return TypeNone
	default:
		return TypeInvalid
	}
}

// Operations is the LwM2M access bitmask (spec §3).
type Operations int

const (
	OpNone Operations = 0
	OpRead Operations = 1 << iota
	OpWrite
	OpExecute
)

const OpReadWrite = OpRead | OpWrite

func ParseOperations(s string) Operations {
	switch s {
	case "Read":
		return OpRead
	case "Write":
		return OpWrite
	case "ReadWrite":
		return OpReadWrite
	case "Execute":
		return OpExecute
	default:
		return OpNone
	}
}

func (o Operations) CanRead() bool    { return o&OpRead != 0 }
func (o Operations) CanWrite() bool   { return o&OpWrite != 0 }
func (o Operations) CanExecute() bool { return o&OpExecute != 0 }

// ObjectLink is the (objectID, objectInstanceID) pair value type.
type ObjectLink struct {
	ObjectID   uint16
	InstanceID uint16
}

// ExecuteHandler is invoked by the CoAP dispatcher on POST of an
// executable resource (spec §4.9's per-resource execute handler
// registry). The registry stores these verbatim and never invokes them
// itself (spec §4.1).
type ExecuteHandler func(objID, instID, resID int32, args []byte) error

// ResourceDefinition describes one resource slot within an object (spec
// §3).
type ResourceDefinition struct {
	ID            uint16
	Name          string
	Type          ResourceType
	MinInstances  int
	MaxInstances  int
	Operation     Operations
	DefaultValue  *tree.Node // nil if the resource has no default
	ExecuteHandler ExecuteHandler
}

func (d *ResourceDefinition) DefID() int32 { return int32(d.ID) }

func (d *ResourceDefinition) Multi() bool      { return d.MaxInstances > 1 }
func (d *ResourceDefinition) Mandatory() bool  { return d.MinInstances > 0 }

// Validate enforces spec §3: executable resources must be TypeNone and
// single-instance.
func (d *ResourceDefinition) Validate() error {
	if d.Operation.CanExecute() && (d.Type != TypeNone || d.Multi()) {
		return errors.New(fmt.Sprintf(
			"resource %d: executable resources must have type=None and cardinality=single", d.ID))
	}
	return nil
}

func (d *ResourceDefinition) equalScalars(o *ResourceDefinition) bool {
	return d.ID == o.ID && d.Name == o.Name && d.Type == o.Type &&
		d.MinInstances == o.MinInstances && d.MaxInstances == o.MaxInstances &&
		d.Operation == o.Operation
}

// ObjectDefinition describes one object type (spec §3).
type ObjectDefinition struct {
	ID           uint16
	Name         string
	MinInstances int
	MaxInstances int
	Singleton    bool
	resources    *tree.OrderedMap[uint16, *ResourceDefinition]
}

func (d *ObjectDefinition) DefID() int32 { return int32(d.ID) }

func NewObjectDefinition(id uint16, name string, minInstances, maxInstances int, singleton bool) *ObjectDefinition {
	return &ObjectDefinition{
		ID: id, Name: name, MinInstances: minInstances, MaxInstances: maxInstances,
		Singleton: singleton,
		resources: tree.NewOrderedMap[uint16, *ResourceDefinition](),
	}
}

// RegisterResource adds res to the object, rejecting a redefinition of an
// existing id -- AlreadyRegistered on an exact scalar match,
// MismatchedDefinition otherwise -- the same way
// Definition_AddObjectType rejects a duplicate id (spec §4.1: duplicate
// registration is never silent success).
func (d *ObjectDefinition) RegisterResource(res *ResourceDefinition) error {
	if err := res.Validate(); err != nil {
		return err
	}
	if existing, ok := d.resources.Get(res.ID); ok {
		if existing.equalScalars(res) {
			return errors.NewResult(errors.AlreadyRegistered, nil)
		}
		return errors.NewResult(errors.MismatchedDefinition, nil)
	}
	d.resources.Set(res.ID, res)
	return nil
}

func (d *ObjectDefinition) LookupResource(id uint16) (*ResourceDefinition, bool) {
	return d.resources.Get(id)
}

func (d *ObjectDefinition) GetNextResource(id int32) int32 {
	if id < 0 {
		first, ok := d.resources.First()
		if !ok {
			return -1
		}
		return int32(first)
	}
	next, ok := d.resources.Next(uint16(id))
	if !ok {
		return -1
	}
	return int32(next)
}

func (d *ObjectDefinition) Resources() []*ResourceDefinition { return d.resources.Values() }

func (d *ObjectDefinition) equalScalars(o *ObjectDefinition) bool {
	return d.ID == o.ID && d.Name == o.Name && d.MinInstances == o.MinInstances &&
		d.MaxInstances == o.MaxInstances && d.Singleton == o.Singleton
}

// CopyObject deep-copies an object definition including its resource
// catalog (spec §4.1 CopyObject) -- used when a server-side definition
// snapshot must outlive registry mutation (e.g. an IPC Connect response).
func CopyObject(def *ObjectDefinition) *ObjectDefinition {
	cp := NewObjectDefinition(def.ID, def.Name, def.MinInstances, def.MaxInstances, def.Singleton)
	for _, r := range def.Resources() {
		rc := *r
		cp.resources.Set(r.ID, &rc)
	}
	return cp
}

// Registry is the Definition Registry (spec §4.1): an ordered set of
// ObjectDefinition keyed by id. It is effectively read-mostly after
// startup (spec §5) and requires no lock of its own in the single-
// threaded event loop; callers that share it across goroutines (e.g. an
// IPC handler answering Connect from outside the tick) must serialize
// through the event loop the way every other core mutation does.
type Registry struct {
	objects *tree.OrderedMap[uint16, *ObjectDefinition]
}

func NewRegistry() *Registry {
	return &Registry{objects: tree.NewOrderedMap[uint16, *ObjectDefinition]()}
}

// RegisterObject adds obj to the registry -- AlreadyRegistered on an
// exact scalar match against an existing definition with the same id,
// MismatchedDefinition otherwise (spec §4.1; ground truth
// Definition_AddObjectType never treats a duplicate id as silent
// success).
func (r *Registry) RegisterObject(obj *ObjectDefinition) error {
	if existing, ok := r.objects.Get(obj.ID); ok {
		if existing.equalScalars(obj) {
			return errors.NewResult(errors.AlreadyRegistered, nil)
		}
		return errors.NewResult(errors.MismatchedDefinition, nil)
	}
	r.objects.Set(obj.ID, obj)
	return nil
}

// RegisterResource is a convenience wrapper that looks objID up and
// forwards to ObjectDefinition.RegisterResource, returning NotFound if
// the object itself was never registered.
func (r *Registry) RegisterResource(objID uint16, res *ResourceDefinition) error {
	obj, ok := r.objects.Get(objID)
	if !ok {
		return errors.NewResult(errors.NotFound, nil)
	}
	return obj.RegisterResource(res)
}

func (r *Registry) LookupObject(id uint16) (*ObjectDefinition, bool) {
	return r.objects.Get(id)
}

func (r *Registry) LookupResource(objID, resID uint16) (*ResourceDefinition, bool) {
	obj, ok := r.objects.Get(objID)
	if !ok {
		return nil, false
	}
	return obj.LookupResource(resID)
}

// GetNextObject returns the object id following id in registration
// order, or -1 at exhaustion (spec §4.1).
func (r *Registry) GetNextObject(id int32) int32 {
	if id < 0 {
		first, ok := r.objects.First()
		if !ok {
			return -1
		}
		return int32(first)
	}
	next, ok := r.objects.Next(uint16(id))
	if !ok {
		return -1
	}
	return int32(next)
}

// GetNextResource delegates to the named object's own traversal.
func (r *Registry) GetNextResource(objID uint16, resID int32) int32 {
	obj, ok := r.objects.Get(objID)
	if !ok {
		return -1
	}
	return obj.GetNextResource(resID)
}

func (r *Registry) Objects() []*ObjectDefinition { return r.objects.Values() }
