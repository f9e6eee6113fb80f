// Package coap implements the CoAP dispatcher (spec §4.6): the
// request/response state machine that sits between the wire and the
// object store, definition registry, and observation engine.
/*
 * Copyright (c) 2024, Connectivity Foundry. All rights reserved.
 */
package coap

import (
	"strconv"
	"strings"

	"github.com/connectivityfoundry/lwm2mcore/attr"
	"github.com/connectivityfoundry/lwm2mcore/cmn/apc"
	"github.com/connectivityfoundry/lwm2mcore/cmn/cos"
	"github.com/connectivityfoundry/lwm2mcore/cmn/errors"
	"github.com/connectivityfoundry/lwm2mcore/cmn/nlog"
	"github.com/connectivityfoundry/lwm2mcore/cmn/stats"
	"github.com/connectivityfoundry/lwm2mcore/codec"
	"github.com/connectivityfoundry/lwm2mcore/codec/value"
	"github.com/connectivityfoundry/lwm2mcore/definition"
	"github.com/connectivityfoundry/lwm2mcore/observe"
	"github.com/connectivityfoundry/lwm2mcore/store"
	"github.com/connectivityfoundry/lwm2mcore/tree"
)

// Origin distinguishes the requester side for the permission check (spec
// §4.6 step 3).
type Origin int

const (
	OriginClient Origin = iota
	OriginServer
)

// Request mirrors spec §4.6's CoapRequest.
type Request struct {
	Type        apc.Method
	Origin      Origin
	Peer        string
	Path        string
	Token       []byte
	ContentType int
	Accept      int
	HasAccept   bool
	Body        []byte
}

// Response mirrors spec §4.6's CoapResponse.
type Response struct {
	Code         apc.Code
	ContentType  int
	LocationPath string
	Body         []byte
}

// RequestHandler is the seam the IPC router calls through, rather than
// holding a concrete *Dispatcher -- the same narrow interface-guard
// convention the teacher uses for its xaction/renewable contracts. The
// event loop in package core holds the concrete *Dispatcher.
type RequestHandler interface {
	Dispatch(req Request) Response
}

// Dispatcher wires the registry, store, attribute store and observation
// engine behind the single Dispatch entry point the event loop calls per
// datagram (spec §5).
type Dispatcher struct {
	Registry *definition.Registry
	Store    *store.Store
	Attrs    *attr.Store
	Observe  *observe.Registry
}

var _ RequestHandler = (*Dispatcher)(nil)

func New(reg *definition.Registry, st *store.Store, attrs *attr.Store, obs *observe.Registry) *Dispatcher {
	return &Dispatcher{Registry: reg, Store: st, Attrs: attrs, Observe: obs}
}

// Dispatch runs the state machine of spec §4.6 steps 1-8.
func (d *Dispatcher) Dispatch(req Request) Response {
	obj, inst, res, rInst, err := parsePath(req.Path)
	if err != nil {
		stats.CoapRequestsHandled.WithLabelValues(methodName(req.Type), codeName(apc.BadRequest)).Inc()
		return Response{Code: apc.BadRequest}
	}

	objDef, ok := d.Registry.LookupObject(uint16(obj))
	if !ok {
		return d.result(req, apc.NotFound)
	}
	var resDef *definition.ResourceDefinition
	if res >= 0 {
		resDef, ok = objDef.LookupResource(uint16(res))
		if !ok {
			return d.result(req, apc.NotFound)
		}
		if !permitted(req.Type, resDef.Operation) {
			return d.result(req, apc.MethodNotAllowed)
		}
	}

	switch req.Type {
	case apc.MethodGET, apc.MethodObserve, apc.MethodCancelObserve:
		return d.handleGet(req, objDef, obj, inst, res, rInst)
	case apc.MethodPUT:
		return d.handleWrite(req, objDef, obj, inst, res, true)
	case apc.MethodPOST:
		return d.handlePost(req, objDef, obj, inst, res)
	case apc.MethodDELETE:
		return d.handleDelete(obj, inst, res)
	default:
		return d.result(req, apc.BadRequest)
	}
}

func (d *Dispatcher) result(req Request, code apc.Code) Response {
	stats.CoapRequestsHandled.WithLabelValues(methodName(req.Type), codeName(code)).Inc()
	return Response{Code: code}
}

// permitted enforces the resource operation bitmask per method (spec
// §4.6 step 3). Origin-specific client/server restrictions belong to the
// IPC session router, which knows which side issued the request; the
// CoAP dispatcher enforces only the resource's own Read/Write/Execute
// bitmask.
func permitted(method apc.Method, ops definition.Operations) bool {
	switch method {
	case apc.MethodGET, apc.MethodObserve, apc.MethodCancelObserve:
		return ops.CanRead()
	case apc.MethodPUT:
		return ops.CanWrite()
	case apc.MethodPOST:
		return ops.CanWrite() || ops.CanExecute()
	case apc.MethodDELETE:
		return true
	default:
		return false
	}
}

func (d *Dispatcher) handleGet(req Request, objDef *definition.ObjectDefinition, obj, inst, res, rInst int32) Response {
	format, err := codec.Negotiate(req.Accept, req.HasAccept)
	if err != nil {
		return d.result(req, apc.NotAcceptable)
	}

	root, err := d.buildTree(objDef, obj, inst, res, rInst)
	if err != nil {
		return d.result(req, resultToCode(errors.AsResult(err)))
	}

	var body []byte
	leafRInst := rInst
	isLeaf := res >= 0 && inst >= 0
	if isLeaf && leafRInst < 0 {
		if resDef, ok := objDef.LookupResource(uint16(res)); ok && !resDef.Multi() {
			leafRInst = 0
		} else {
			isLeaf = leafRInst >= 0
		}
	}
	if isLeaf {
		resDef, _ := objDef.LookupResource(uint16(res))
		payload, _, _ := d.Store.GetResourceInstanceValue(obj, inst, res, leafRInst)
		body, err = codec.EncodeLeaf(resDef.Type, payload)
	} else {
		body, err = codec.EncodeObject(format, root)
	}
	if err != nil {
		return d.result(req, apc.InternalError)
	}

	if req.Type == apc.MethodObserve {
		payload, _, _ := d.Store.GetResourceInstanceValue(obj, inst, res, leafRInst)
		d.Observe.Install(obj, inst, res, rInst, observe.Peer{Addr: req.Peer}, format, req.Token, payload)
	} else if req.Type == apc.MethodCancelObserve {
		d.Observe.Cancel(obj, inst, res, rInst)
	}

	stats.CoapRequestsHandled.WithLabelValues(methodName(req.Type), codeName(apc.Content)).Inc()
	return Response{Code: apc.Content, ContentType: format, Body: body}
}

// buildTree walks the store below (obj, inst, res, rInst), bounded by
// whichever path segments are present (spec §4.6 step 4).
func (d *Dispatcher) buildTree(objDef *definition.ObjectDefinition, obj, inst, res, rInst int32) (*tree.Node, error) {
	root := tree.NewNode(tree.Object, obj, objDef)
	instances := instanceIDs(d.Store, obj, inst)
	for _, iid := range instances {
		instNode := tree.NewNode(tree.ObjectInstance, iid, objDef)
		resources := resourceIDs(objDef, d.Store, obj, iid, res)
		for _, rid := range resources {
			resDef, _ := objDef.LookupResource(uint16(rid))
			resNode := tree.NewNode(tree.Resource, rid, resDef)
			for _, riid := range resourceInstanceIDs(d.Store, obj, iid, rid, rInst) {
				payload, _, err := d.Store.GetResourceInstanceValue(obj, iid, rid, riid)
				if err != nil {
					continue
				}
				ri := tree.NewNode(tree.ResourceInstance, riid, resDef)
				ri.Payload = payload
				tree.AddChild(resNode, ri)
			}
			if len(resNode.Children()) > 0 {
				tree.AddChild(instNode, resNode)
			}
		}
		tree.AddChild(root, instNode)
	}
	return root, nil
}

func instanceIDs(st *store.Store, obj, fixed int32) []int32 {
	if fixed >= 0 {
		if st.Exists(obj, fixed, -1, -1) {
			return []int32{fixed}
		}
		return nil
	}
	var out []int32
	id := int32(-1)
	for {
		id = st.GetNextObjectInstanceID(obj, id)
		if id < 0 {
			break
		}
		out = append(out, id)
	}
	return out
}

func resourceIDs(objDef *definition.ObjectDefinition, st *store.Store, obj, inst, fixed int32) []int32 {
	if fixed >= 0 {
		if st.Exists(obj, inst, fixed, -1) {
			return []int32{fixed}
		}
		return nil
	}
	var out []int32
	id := int32(-1)
	for {
		id = st.GetNextResourceID(obj, inst, id)
		if id < 0 {
			break
		}
		out = append(out, id)
	}
	return out
}

func resourceInstanceIDs(st *store.Store, obj, inst, res, fixed int32) []int32 {
	if fixed >= 0 {
		if st.Exists(obj, inst, res, fixed) {
			return []int32{fixed}
		}
		return nil
	}
	var out []int32
	id := int32(-1)
	for {
		id = st.GetNextResourceInstanceID(obj, inst, res, id)
		if id < 0 {
			break
		}
		out = append(out, id)
	}
	return out
}

// handleWrite implements PUT (spec §4.6 step 5). A text/plain body
// addressed to a single resource is decoded as one leaf and written to
// resource instance 0; any other body goes through codec.DecodeObject.
// An instance-level replace first checks that every mandatory resource
// is present and writes nothing if one is missing. Each leaf is then
// written on its own: non-writable resources are skipped and raise the
// aggregate code to 4.05, while the other leaves are still committed.
func (d *Dispatcher) handleWrite(req Request, objDef *definition.ObjectDefinition, obj, inst, res int32, replace bool) Response {
	var decoded *tree.Node
	var err error
	if resDef, ok := objDef.LookupResource(uint16(res)); ok && res >= 0 && inst >= 0 && req.ContentType == apc.FormatTextPlain {
		ri := tree.NewNode(tree.ResourceInstance, 0, resDef)
		ri.Payload, err = codec.DecodeLeaf(resDef.Type, req.Body)
		resNode, instNode := tree.NewNode(tree.Resource, res, resDef), tree.NewNode(tree.ObjectInstance, inst, objDef)
		decoded = tree.NewNode(tree.Object, obj, objDef)
		tree.AddChild(resNode, ri)
		tree.AddChild(instNode, resNode)
		tree.AddChild(decoded, instNode)
	} else {
		decoded, err = codec.DecodeObject(req.ContentType, req.Body, objDef, inst)
	}
	if err != nil {
		return d.result(req, apc.BadRequest)
	}
	if replace && inst >= 0 && res < 0 {
		if missing := missingMandatoryResources(objDef, decoded); missing {
			return d.result(req, apc.BadRequest)
		}
	}

	worst := apc.Changed
	for _, instNode := range decoded.Children() {
		d.Store.CreateObjectInstance(obj, instNode.ID, objDef.MaxInstances)
		for _, resNode := range instNode.Children() {
			resDef, _ := resNode.Def.(*definition.ResourceDefinition)
			if resDef == nil {
				continue
			}
			if !resDef.Operation.CanWrite() {
				if apc.MethodNotAllowed > worst {
					worst = apc.MethodNotAllowed
				}
				continue
			}
			d.Store.CreateResource(obj, instNode.ID, resNode.ID)
			for _, ri := range resNode.Children() {
				changed, werr := d.Store.SetResourceInstanceValue(obj, instNode.ID, resNode.ID, ri.ID,
					ri.Payload, 0, len(ri.Payload), len(ri.Payload))
				if werr != nil {
					if apc.InternalError > worst {
						worst = apc.InternalError
					}
					continue
				}
				if changed {
					d.notify(obj, instNode.ID, resNode.ID, ri.ID, resDef, ri.Payload)
				}
			}
		}
	}
	return d.result(req, worst)
}

func missingMandatoryResources(objDef *definition.ObjectDefinition, decoded *tree.Node) bool {
	for _, instNode := range decoded.Children() {
		present := make(map[int32]bool)
		for _, r := range instNode.Children() {
			present[r.ID] = true
		}
		for _, resDef := range objDef.Resources() {
			if resDef.Mandatory() && !present[int32(resDef.ID)] {
				return true
			}
		}
	}
	return false
}

func (d *Dispatcher) notify(obj, inst, res, rInst int32, resDef *definition.ResourceDefinition, newValue []byte) {
	numeric := func(payload []byte) (float64, bool) {
		switch resDef.Type {
		case definition.TypeInteger, definition.TypeTime:
			return float64(value.DecodeInteger(payload)), true
		case definition.TypeFloat:
			return value.DecodeFloat(payload), true
		default:
			return 0, false
		}
	}
	d.Observe.MarkChanged(obj, inst, res, rInst, newValue, numeric)
}

// handlePost implements spec §4.6 step 6: object-level POST creates an
// instance; otherwise it is a partial write.
func (d *Dispatcher) handlePost(req Request, objDef *definition.ObjectDefinition, obj, inst, res int32) Response {
	if inst < 0 {
		id, err := d.Store.CreateObjectInstance(obj, -1, objDef.MaxInstances)
		if err != nil {
			return d.result(req, resultToCode(errors.AsResult(err)))
		}
		decoded, derr := codec.DecodeObject(req.ContentType, req.Body, objDef, id)
		if derr == nil {
			for _, instNode := range decoded.Children() {
				for _, resNode := range instNode.Children() {
					d.Store.CreateResource(obj, id, resNode.ID)
					for _, ri := range resNode.Children() {
						d.Store.SetResourceInstanceValue(obj, id, resNode.ID, ri.ID, ri.Payload, 0, len(ri.Payload), len(ri.Payload))
					}
				}
			}
		}
		stats.CoapRequestsHandled.WithLabelValues(methodName(req.Type), codeName(apc.Created)).Inc()
		return Response{Code: apc.Created, LocationPath: cos.JoinWords(strconv.Itoa(int(obj)), strconv.Itoa(int(id)))}
	}

	if res >= 0 {
		resDef, ok := objDef.LookupResource(uint16(res))
		if !ok {
			return d.result(req, apc.NotFound)
		}
		if resDef.Operation.CanExecute() {
			if resDef.ExecuteHandler != nil {
				if err := resDef.ExecuteHandler(obj, inst, res, req.Body); err != nil {
					nlog.Errorf("coap: execute handler for %d/%d/%d failed: %v", obj, inst, res, err)
					return d.result(req, apc.InternalError)
				}
			}
			return d.result(req, apc.Changed)
		}
	}
	return d.handleWrite(req, objDef, obj, inst, res, false)
}

func (d *Dispatcher) handleDelete(obj, inst, res int32) Response {
	if err := d.Store.Delete(obj, inst, res); err != nil {
		return Response{Code: resultToCode(errors.AsResult(err))}
	}
	d.Observe.DeletePrefix(obj, inst, res)
	d.Attrs.DeletePrefix(obj, inst, res)
	stats.CoapRequestsHandled.WithLabelValues(methodName(apc.MethodDELETE), codeName(apc.Deleted)).Inc()
	return Response{Code: apc.Deleted}
}

// ParsePath exposes parsePath for callers outside this package (the IPC
// router parses the same "/obj/inst/res/rInst" shape out of Get/Set/
// Delete payloads and should not duplicate the rules).
func ParsePath(path string) (obj, inst, res, rInst int32, err error) {
	return parsePath(path)
}

// parsePath splits a "/obj/inst/res/rInst" path into its four id
// components, -1 for any absent suffix (spec §4.6 step 1, §6).
func parsePath(path string) (obj, inst, res, rInst int32, err error) {
	obj, inst, res, rInst = -1, -1, -1, -1
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return obj, inst, res, rInst, errors.NewResult(errors.BadRequest, errors.New("coap: empty path"))
	}
	parts := strings.Split(trimmed, "/")
	if len(parts) > 4 {
		return obj, inst, res, rInst, errors.NewResult(errors.BadRequest, errors.New("coap: path too deep"))
	}
	ids := make([]int32, len(parts))
	for i, p := range parts {
		v, convErr := strconv.ParseInt(p, 10, 32)
		if convErr != nil || v < 0 {
			return obj, inst, res, rInst, errors.NewResult(errors.BadRequest, errors.New("coap: malformed path segment"))
		}
		ids[i] = int32(v)
	}
	switch len(ids) {
	case 1:
		obj = ids[0]
	case 2:
		obj, inst = ids[0], ids[1]
	case 3:
		obj, inst, res = ids[0], ids[1], ids[2]
	case 4:
		obj, inst, res, rInst = ids[0], ids[1], ids[2], ids[3]
	}
	return obj, inst, res, rInst, nil
}

// resultToCode maps a protocol Result to the closest CoAP response code
// (spec §7's mapping function, narrowed to the CoAP-facing subset).
func resultToCode(r errors.Result) apc.Code {
	switch r {
	case errors.NotFound:
		return apc.NotFound
	case errors.BadRequest:
		return apc.BadRequest
	case errors.MethodNotAllowed:
		return apc.MethodNotAllowed
	case errors.Unauthorized:
		return apc.Unauthorized
	case errors.Forbidden:
		return apc.Forbidden
	case errors.AlreadyCreated:
		return apc.BadRequest
	default:
		return apc.InternalError
	}
}

func methodName(m apc.Method) string {
	switch m {
	case apc.MethodGET:
		return "GET"
	case apc.MethodObserve:
		return "OBSERVE"
	case apc.MethodCancelObserve:
		return "CANCEL_OBSERVE"
	case apc.MethodPOST:
		return "POST"
	case apc.MethodPUT:
		return "PUT"
	case apc.MethodDELETE:
		return "DELETE"
	default:
		return "UNKNOWN"
	}
}

func codeName(c apc.Code) string {
	switch c {
	case apc.Created:
		return "2.01"
	case apc.Deleted:
		return "2.02"
	case apc.Changed:
		return "2.04"
	case apc.Content:
		return "2.05"
	case apc.BadRequest:
		return "4.00"
	case apc.Unauthorized:
		return "4.01"
	case apc.Forbidden:
		return "4.03"
	case apc.NotFound:
		return "4.04"
	case apc.MethodNotAllowed:
		return "4.05"
	case apc.NotAcceptable:
		return "4.06"
	case apc.InternalError:
		return "5.00"
	case apc.Timeout:
		return "5.04"
	default:
		return "5.00"
	}
}
