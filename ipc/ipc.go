// Package ipc implements the IPC Session Router (component J, spec
// §4.9). It owns per-application sessions and a dispatch table keyed by
// request subtype; every subtype that touches the object model is
// forwarded to the already-built CoAP dispatcher (component H) rather
// than re-implemented here, the same way the spec describes control
// flow for a request: "application -> XML envelope -> IPC router (J) ->
// typed handler -> (H or direct store/definition mutation) -> XML
// response".
/*
 * Copyright (c) 2024, Connectivity Foundry. All rights reserved.
 */
package ipc

import (
	"encoding/base64"
	"encoding/xml"
	"strconv"
	"strings"

	"github.com/teris-io/shortid"

	"github.com/connectivityfoundry/lwm2mcore/attr"
	"github.com/connectivityfoundry/lwm2mcore/cmn/apc"
	"github.com/connectivityfoundry/lwm2mcore/cmn/errors"
	"github.com/connectivityfoundry/lwm2mcore/cmn/stats"
	"github.com/connectivityfoundry/lwm2mcore/coap"
	"github.com/connectivityfoundry/lwm2mcore/definition"
	"github.com/connectivityfoundry/lwm2mcore/observe"
	"github.com/connectivityfoundry/lwm2mcore/store"
)

// sessionIDMultiplier is the spec's SessionID construction formula (spec
// §4.9: "pid * 7487 + monotonically-increasing counter").
const sessionIDMultiplier = 7487

// Session is one IPC client's router-side state (spec §4.9): a request
// channel (always present once Connect succeeds) and a notify channel
// that only becomes usable after EstablishNotify.
type Session struct {
	ID         int32
	Peer       string
	NotifyAddr string
	HasNotify  bool
}

type handlerFunc func(sess *Session, content string) (respContent, code string)

// Router dispatches XML request envelopes to typed handlers (spec
// §4.9). It holds no socket of its own: Dispatch takes and returns raw
// bytes, leaving datagram I/O to the event loop in package core.
type Router struct {
	reg   *definition.Registry
	store *store.Store
	attrs *attr.Store
	obs   *observe.Registry
	disp  coap.RequestHandler

	pid     int32
	counter int32

	sessions map[int32]*Session
	clients  map[string]string // clientID -> peer, populated by ClientRegister
	handlers map[string]handlerFunc
}

// NewRouter builds a router bound to the core components a Connect'd
// application drives. pid seeds the SessionID formula; tests pass a
// fixed value so SessionID assignment stays deterministic.
func NewRouter(pid int32, reg *definition.Registry, st *store.Store, attrs *attr.Store, obs *observe.Registry, disp coap.RequestHandler) *Router {
	r := &Router{
		reg:      reg,
		store:    st,
		attrs:    attrs,
		obs:      obs,
		disp:     disp,
		pid:      pid,
		sessions: make(map[int32]*Session),
		clients:  make(map[string]string),
	}
	r.handlers = map[string]handlerFunc{
		apc.SubtypeEstablishNotify:  r.handleEstablishNotify,
		apc.SubtypeDisconnect:       r.handleDisconnect,
		apc.SubtypeDefine:           r.handleDefine,
		apc.SubtypeGet:              r.handleGet,
		apc.SubtypeSet:              r.handleSet,
		apc.SubtypeDelete:           r.handleDelete,
		apc.SubtypeSubscribe:        r.handleSubscribe,
		apc.SubtypeCancelSubscribe:  r.handleCancelSubscribe,
		apc.SubtypeListClients:      r.handleListClients,
		apc.SubtypeClientRegister:   r.handleClientRegister,
		apc.SubtypeClientDeregister: r.handleClientDeregister,
		apc.SubtypeClientUpdate:     r.handleClientUpdate,
	}
	for _, subtype := range []string{
		apc.SubtypeWrite, apc.SubtypeRead, apc.SubtypeObserve,
		apc.SubtypeExecute, apc.SubtypeWriteAttributes, apc.SubtypeDiscover,
	} {
		st := subtype
		r.handlers[st] = func(sess *Session, content string) (string, string) {
			return r.handleServerOp(st, sess, content)
		}
	}
	return r
}

func (r *Router) nextSessionID() int32 {
	r.counter++
	return r.pid*sessionIDMultiplier + r.counter
}

// SessionIDForPeer reports the SessionID of the (at most one) connected
// session whose Connect originated from peer -- the event loop uses this
// to route an observer's deferred notification (spec §4.7 emission pass)
// to the IPC notify channel instead of a raw network datagram when the
// observing party is a local application rather than a remote peer.
func (r *Router) SessionIDForPeer(peer string) (int32, bool) {
	for _, sess := range r.sessions {
		if sess.Peer == peer {
			return sess.ID, true
		}
	}
	return 0, false
}

// Dispatch decodes one request envelope, runs its handler, and encodes
// the response envelope (spec §4.9).
func (r *Router) Dispatch(raw []byte, fromPeer string) []byte {
	var req RequestEnvelope
	if err := xml.Unmarshal(raw, &req); err != nil {
		return r.encodeResponse("Unknown", 0, errors.PathInvalid.String(), "")
	}
	stats.IPCRequestsHandled.WithLabelValues(req.Type).Inc()

	if req.Type == apc.SubtypeConnect {
		sess := &Session{ID: r.nextSessionID(), Peer: fromPeer}
		r.sessions[sess.ID] = sess
		content, code := r.handleConnect(sess)
		return r.encodeResponse(req.Type, sess.ID, code, content)
	}

	sess, ok := r.sessions[req.SessionID]
	if !ok {
		return r.encodeResponse(req.Type, req.SessionID, errors.PathInvalid.String(), "")
	}

	handler, ok := r.handlers[req.Type]
	if !ok {
		return r.encodeResponse(req.Type, req.SessionID, errors.IPCError.String(), "")
	}
	content, code := handler(sess, req.Content)
	return r.encodeResponse(req.Type, sess.ID, code, content)
}

func (r *Router) encodeResponse(subtype string, sessionID int32, code, content string) []byte {
	resp := ResponseEnvelope{Type: subtype, Code: code, SessionID: sessionID, Content: content}
	out, err := xml.Marshal(resp)
	if err != nil {
		return nil
	}
	return out
}

func marshal(v any) string {
	out, err := xml.Marshal(v)
	if err != nil {
		return ""
	}
	return string(out)
}

func resultContentXML(elementName string, apiErr errors.ApiError) string {
	return marshal(resultContent{XMLName: xml.Name{Local: elementName}, Result: Result{Error: apiErr.String()}})
}

// handleConnect returns the current object-model definitions snapshot
// (spec §4.9 "Connect | Create session, return object-model definitions
// snapshot"); session creation itself happens in Dispatch since it must
// occur before a SessionID exists to hand the handler.
func (r *Router) handleConnect(sess *Session) (string, string) {
	objs := r.reg.Objects()
	ids := make([]int32, 0, len(objs))
	for _, o := range objs {
		ids = append(ids, o.DefID())
	}
	snap := definitionsSnapshot{XMLName: xml.Name{Local: "Definitions"}, Objects: ids}
	return marshal(snap), errors.ApiSuccess.String()
}

func (r *Router) handleEstablishNotify(sess *Session, content string) (string, string) {
	var req establishNotifyContent
	if err := xml.Unmarshal([]byte(content), &req); err != nil || req.NotifyAddr == "" {
		return resultContentXML("EstablishNotifyResult", errors.PathInvalid), errors.PathInvalid.String()
	}
	sess.NotifyAddr = req.NotifyAddr
	sess.HasNotify = true
	return resultContentXML("EstablishNotifyResult", errors.ApiSuccess), errors.ApiSuccess.String()
}

// handleDisconnect frees sess's SessionID; any later message naming it
// is rejected in Dispatch the same way an unrecognized one would be
// (spec §4.9 "the same SessionID is invalid thereafter").
func (r *Router) handleDisconnect(sess *Session, content string) (string, string) {
	delete(r.sessions, sess.ID)
	return resultContentXML("DisconnectResult", errors.ApiSuccess), errors.ApiSuccess.String()
}

// handleDefine registers object/resource definitions out of a raw
// LWM2MDefinitions document, reusing definition.LoadXML verbatim (spec
// §4.9 "Define | Register object/resource definitions from XML").
func (r *Router) handleDefine(sess *Session, content string) (string, string) {
	if err := definition.LoadXML(r.reg, strings.NewReader(content)); err != nil {
		return resultContentXML("DefineResult", errors.CannotCreate), errors.CannotCreate.String()
	}
	return resultContentXML("DefineResult", errors.ApiSuccess), errors.ApiSuccess.String()
}

func codeToApiError(c apc.Code) errors.ApiError {
	switch c {
	case apc.Created, apc.Deleted, apc.Changed, apc.Content:
		return errors.ApiSuccess
	case apc.NotFound:
		return errors.PathNotFound
	case apc.BadRequest, apc.MethodNotAllowed, apc.NotAcceptable:
		return errors.PathInvalid
	case apc.InternalError, apc.Timeout:
		return errors.ApiInternal
	default:
		return errors.ApiUnspecified
	}
}

// handleGet reads a sub-tree out of the local store by forwarding to the
// CoAP dispatcher as a local (non-wire) GET (spec §4.9 "Get | Read a
// sub-tree from the store and return encoded").
func (r *Router) handleGet(sess *Session, content string) (string, string) {
	var req pathRequestContent
	if err := xml.Unmarshal([]byte(content), &req); err != nil {
		return marshal(getResultContent{XMLName: xml.Name{Local: "GetResult"}, Result: Result{Error: errors.PathInvalid.String()}}), errors.PathInvalid.String()
	}
	accept := 0
	if req.ContentType != nil {
		accept = *req.ContentType
	}
	resp := r.disp.Dispatch(coap.Request{
		Type: apc.MethodGET, Origin: coap.OriginClient, Peer: sess.Peer,
		Path: req.Path, Accept: accept, HasAccept: req.ContentType != nil,
	})
	apiErr := codeToApiError(resp.Code)
	result := getResultContent{
		XMLName:     xml.Name{Local: "GetResult"},
		Result:      Result{Error: apiErr.String()},
		ContentType: resp.ContentType,
	}
	if apiErr == errors.ApiSuccess {
		result.Data = base64.StdEncoding.EncodeToString(resp.Body)
	}
	return marshal(result), apiErr.String()
}

// handleSet writes a sub-tree, PUT-replacing by default or POST-creating
// when Create is set (spec §4.9 "Set | Write a sub-tree; supports
// per-leaf Create flag and per-resource Replace/Partial").
func (r *Router) handleSet(sess *Session, content string) (string, string) {
	var req pathRequestContent
	if err := xml.Unmarshal([]byte(content), &req); err != nil {
		return resultContentXML("SetResult", errors.PathInvalid), errors.PathInvalid.String()
	}
	body, err := base64.StdEncoding.DecodeString(req.Data)
	if err != nil {
		return resultContentXML("SetResult", errors.PathInvalid), errors.PathInvalid.String()
	}
	method := apc.MethodPUT
	if req.Create {
		method = apc.MethodPOST
	}
	ct := 0
	if req.ContentType != nil {
		ct = *req.ContentType
	}
	resp := r.disp.Dispatch(coap.Request{
		Type: method, Origin: coap.OriginClient, Peer: sess.Peer,
		Path: req.Path, ContentType: ct, Body: body,
	})
	apiErr := codeToApiError(resp.Code)
	return resultContentXML("SetResult", apiErr), apiErr.String()
}

// handleDelete removes an object instance or resource (spec §4.9
// "Delete | Remove a node").
func (r *Router) handleDelete(sess *Session, content string) (string, string) {
	var req pathRequestContent
	if err := xml.Unmarshal([]byte(content), &req); err != nil {
		return resultContentXML("DeleteResult", errors.PathInvalid), errors.PathInvalid.String()
	}
	resp := r.disp.Dispatch(coap.Request{Type: apc.MethodDELETE, Origin: coap.OriginClient, Peer: sess.Peer, Path: req.Path})
	apiErr := codeToApiError(resp.Code)
	return resultContentXML("DeleteResult", apiErr), apiErr.String()
}

func parseAttrPath(path string) (obj, inst, res int32, err error) {
	obj, inst, res, _, err = coap.ParsePath(path)
	return obj, inst, res, err
}

// handleSubscribe installs a local change/execute subscription and
// applies any attributes carried alongside it (spec §4.9 "Subscribe /
// CancelSubscribe | Change- or Execute-subscription for the local
// side").
func (r *Router) handleSubscribe(sess *Session, content string) (string, string) {
	var req subscribeContent
	if err := xml.Unmarshal([]byte(content), &req); err != nil {
		return resultContentXML("SubscribeResult", errors.PathInvalid), errors.PathInvalid.String()
	}
	obj, inst, res, err := parseAttrPath(req.Path)
	if err != nil {
		return resultContentXML("SubscribeResult", errors.PathInvalid), errors.PathInvalid.String()
	}
	if req.PMin != nil {
		r.attrs.SetAttribute(obj, inst, res, apc.AttrPMin, float64(*req.PMin))
	}
	if req.PMax != nil {
		r.attrs.SetAttribute(obj, inst, res, apc.AttrPMax, float64(*req.PMax))
	}
	if req.GT != nil {
		r.attrs.SetAttribute(obj, inst, res, apc.AttrGT, *req.GT)
	}
	if req.LT != nil {
		r.attrs.SetAttribute(obj, inst, res, apc.AttrLT, *req.LT)
	}
	if req.STP != nil {
		r.attrs.SetAttribute(obj, inst, res, apc.AttrSTP, *req.STP)
	}

	_, _, _, rInst, _ := coap.ParsePath(req.Path)
	initial, _, _ := r.store.GetResourceInstanceValue(obj, inst, res, rInst)
	token, _ := shortid.Generate()
	r.obs.Install(obj, inst, res, rInst, observe.Peer{Addr: sess.Peer}, apc.FormatTextPlain, []byte(token), initial)
	return resultContentXML("SubscribeResult", errors.ApiSuccess), errors.ApiSuccess.String()
}

func (r *Router) handleCancelSubscribe(sess *Session, content string) (string, string) {
	var req cancelSubscribeContent
	if err := xml.Unmarshal([]byte(content), &req); err != nil {
		return resultContentXML("CancelSubscribeResult", errors.PathInvalid), errors.PathInvalid.String()
	}
	obj, inst, res, rInst, err := coap.ParsePath(req.Path)
	if err != nil {
		return resultContentXML("CancelSubscribeResult", errors.PathInvalid), errors.PathInvalid.String()
	}
	r.obs.Cancel(obj, inst, res, rInst)
	return resultContentXML("CancelSubscribeResult", errors.ApiSuccess), errors.ApiSuccess.String()
}

// handleServerOp forwards Write/Read/Observe/Execute/WriteAttributes/
// Discover to a registered client (spec §4.9); the client's peer address
// must already be known via ClientRegister.
func (r *Router) handleServerOp(subtype string, sess *Session, content string) (string, string) {
	var req serverOpContent
	if err := xml.Unmarshal([]byte(content), &req); err != nil {
		return resultContentXML(subtype+"Result", errors.PathInvalid), errors.PathInvalid.String()
	}
	peer, ok := r.clients[req.ClientID]
	if !ok {
		return marshal(serverOpResultContent{XMLName: xml.Name{Local: subtype + "Result"}, Result: Result{Error: errors.PathNotFound.String()}}), errors.PathNotFound.String()
	}

	switch subtype {
	case apc.SubtypeDiscover:
		obj, _, _, _, err := coap.ParsePath(req.Path)
		if err != nil {
			return resultContentXML(subtype+"Result", errors.PathInvalid), errors.PathInvalid.String()
		}
		objDef, ok := r.reg.LookupObject(uint16(obj))
		if !ok {
			return resultContentXML(subtype+"Result", errors.PathNotFound), errors.PathNotFound.String()
		}
		ids := make([]string, 0, len(objDef.Resources()))
		for _, rd := range objDef.Resources() {
			ids = append(ids, strconv.Itoa(int(rd.ID)))
		}
		result := serverOpResultContent{
			XMLName: xml.Name{Local: subtype + "Result"}, Result: Result{Error: errors.ApiSuccess.String()},
			ContentType: apc.FormatTextPlain, Data: base64.StdEncoding.EncodeToString([]byte(strings.Join(ids, ","))),
		}
		return marshal(result), errors.ApiSuccess.String()

	case apc.SubtypeWriteAttributes:
		obj, inst, res, err := parseAttrPath(req.Path)
		if err != nil {
			return resultContentXML(subtype+"Result", errors.PathInvalid), errors.PathInvalid.String()
		}
		applyAttributeQuery(r.attrs, obj, inst, res, req.Data)
		return resultContentXML(subtype+"Result", errors.ApiSuccess), errors.ApiSuccess.String()

	case apc.SubtypeRead:
		resp := r.disp.Dispatch(coap.Request{Type: apc.MethodGET, Origin: coap.OriginServer, Peer: peer, Path: req.Path})
		return serverOpResponse(subtype, resp)

	case apc.SubtypeWrite:
		body, _ := base64.StdEncoding.DecodeString(req.Data)
		resp := r.disp.Dispatch(coap.Request{Type: apc.MethodPUT, Origin: coap.OriginServer, Peer: peer, Path: req.Path, ContentType: req.ContentType, Body: body})
		return serverOpResponse(subtype, resp)

	case apc.SubtypeExecute:
		body, _ := base64.StdEncoding.DecodeString(req.Data)
		resp := r.disp.Dispatch(coap.Request{Type: apc.MethodPOST, Origin: coap.OriginServer, Peer: peer, Path: req.Path, Body: body})
		return serverOpResponse(subtype, resp)

	case apc.SubtypeObserve:
		token, _ := shortid.Generate()
		resp := r.disp.Dispatch(coap.Request{Type: apc.MethodObserve, Origin: coap.OriginServer, Peer: peer, Path: req.Path, Token: []byte(token)})
		respContent, code := serverOpResponse(subtype, resp)
		return respContent, code
	}
	return resultContentXML(subtype+"Result", errors.IPCError), errors.IPCError.String()
}

func serverOpResponse(subtype string, resp coap.Response) (string, string) {
	apiErr := codeToApiError(resp.Code)
	result := serverOpResultContent{XMLName: xml.Name{Local: subtype + "Result"}, Result: Result{Error: apiErr.String()}, ContentType: resp.ContentType}
	if apiErr == errors.ApiSuccess && len(resp.Body) > 0 {
		result.Data = base64.StdEncoding.EncodeToString(resp.Body)
	}
	return marshal(result), apiErr.String()
}

// applyAttributeQuery applies a "name=value&name=value" attribute list
// the way a WriteAttributes CoAP query string would (spec §4.9, §6).
func applyAttributeQuery(attrs *attr.Store, obj, inst, res int32, query string) {
	for _, pair := range strings.Split(query, "&") {
		if pair == "" {
			continue
		}
		kv := strings.SplitN(pair, "=", 2)
		if len(kv) != 2 {
			continue
		}
		if kv[0] == apc.AttrCancel {
			attrs.Cancel(obj, inst, res)
			continue
		}
		v, err := strconv.ParseFloat(kv[1], 64)
		if err != nil {
			continue
		}
		attrs.SetAttribute(obj, inst, res, kv[0], v)
	}
}

// handleListClients enumerates registered clients (spec §4.9
// "ListClients | Enumerate registered clients").
func (r *Router) handleListClients(sess *Session, content string) (string, string) {
	clients := make([]clientContent, 0, len(r.clients))
	for id, peer := range r.clients {
		clients = append(clients, clientContent{ClientID: id, Peer: peer})
	}
	result := listClientsResultContent{XMLName: xml.Name{Local: "ListClientsResult"}, Result: Result{Error: errors.ApiSuccess.String()}, Clients: clients}
	return marshal(result), errors.ApiSuccess.String()
}

func (r *Router) handleClientRegister(sess *Session, content string) (string, string) {
	var req clientContent
	if err := xml.Unmarshal([]byte(content), &req); err != nil || req.ClientID == "" {
		return resultContentXML("ClientRegisterResult", errors.PathInvalid), errors.PathInvalid.String()
	}
	r.clients[req.ClientID] = req.Peer
	return resultContentXML("ClientRegisterResult", errors.ApiSuccess), errors.ApiSuccess.String()
}

func (r *Router) handleClientDeregister(sess *Session, content string) (string, string) {
	var req clientContent
	if err := xml.Unmarshal([]byte(content), &req); err != nil {
		return resultContentXML("ClientDeregisterResult", errors.PathInvalid), errors.PathInvalid.String()
	}
	delete(r.clients, req.ClientID)
	return resultContentXML("ClientDeregisterResult", errors.ApiSuccess), errors.ApiSuccess.String()
}

func (r *Router) handleClientUpdate(sess *Session, content string) (string, string) {
	var req clientContent
	if err := xml.Unmarshal([]byte(content), &req); err != nil || req.ClientID == "" {
		return resultContentXML("ClientUpdateResult", errors.PathInvalid), errors.PathInvalid.String()
	}
	if _, ok := r.clients[req.ClientID]; !ok {
		return resultContentXML("ClientUpdateResult", errors.PathNotFound), errors.PathNotFound.String()
	}
	r.clients[req.ClientID] = req.Peer
	return resultContentXML("ClientUpdateResult", errors.ApiSuccess), errors.ApiSuccess.String()
}

// NotifyObserve builds a Notification envelope for one observer's
// emitted value, delivered on sess's notify channel (spec §4.9 "an
// independent Notify channel carries observation results ... back to
// the application"). The event loop's observe.EmitFunc (core.Core's
// emitOne) calls it for observers whose peer is a connected IPC session.
func (r *Router) NotifyObserve(sess *Session, path string, o *observe.Observer, payload []byte) []byte {
	content := observeNotificationContent{
		XMLName:     xml.Name{Local: "ObserveNotification"},
		Path:        path,
		Token:       string(o.Token),
		Sequence:    0,
		ContentType: o.ContentType,
		Data:        base64.StdEncoding.EncodeToString(payload),
	}
	notif := NotificationEnvelope{Type: apc.SubtypeObserve, SessionID: sess.ID, Content: marshal(content)}
	out, err := xml.Marshal(notif)
	if err != nil {
		return nil
	}
	return out
}
