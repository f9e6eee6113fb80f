// Package apc ("API constants") collects every wire-visible string and
// numeric constant in one place, the same convention the teacher uses for
// its own `cmn/api_const.go`: RESTful path words, header names, and enum
// values all live here instead of being scattered through the packages
// that use them.
/*
 * Copyright (c) 2024, Connectivity Foundry. All rights reserved.
 */
package apc

// CoAP methods (spec §4.6, §6).
type Method int

const (
	MethodGET Method = iota
	MethodObserve
	MethodCancelObserve
	MethodPOST
	MethodPUT
	MethodDELETE
)

// CoAP response codes (spec §6) as the standard CoAP "c.dd" numbering:
// class in the high 3 bits, detail in the low 5.
type Code int

const (
	Created      Code = 0x41 // 2.01
	Deleted      Code = 0x42 // 2.02
	Changed      Code = 0x44 // 2.04
	Content      Code = 0x45 // 2.05
	BadRequest   Code = 0x80 // 4.00
	Unauthorized Code = 0x81 // 4.01
	Forbidden    Code = 0x83 // 4.03
	NotFound     Code = 0x84 // 4.04
	MethodNotAllowed Code = 0x85 // 4.05
	NotAcceptable    Code = 0x86 // 4.06
	InternalError    Code = 0xA0 // 5.00
	Timeout          Code = 0xA4 // 5.04
)

// Content-Format numbers (spec §6).
const (
	FormatTextPlain  = 0
	FormatOctetStream = 42
	FormatTLV        = 11542
	FormatJSON       = 11543
)

// Default listen addresses / ports (spec §6, §9 open question — overridable
// via cmn/config).
const (
	DefaultCoapPort     = 5683
	DefaultCoapDTLSPort = 5684
	DefaultIPCClientAddr = "127.0.0.1:12345"
	DefaultIPCServerAddr = "127.0.0.1:54321"
	MaxIPCDatagram       = 65536
)

// DTLS session cache default capacity (spec §4.8).
const DefaultMaxDTLSSessions = 3

// IPC message types and subtypes (spec §4.9, §6).
const (
	MsgRequest      = "Request"
	MsgResponse     = "Response"
	MsgNotification = "Notification"
)

const (
	SubtypeConnect           = "Connect"
	SubtypeEstablishNotify   = "EstablishNotify"
	SubtypeDisconnect        = "Disconnect"
	SubtypeDefine            = "Define"
	SubtypeGet               = "Get"
	SubtypeSet               = "Set"
	SubtypeDelete            = "Delete"
	SubtypeSubscribe         = "Subscribe"
	SubtypeCancelSubscribe   = "CancelSubscribe"
	SubtypeWrite             = "Write"
	SubtypeRead              = "Read"
	SubtypeObserve           = "Observe"
	SubtypeExecute           = "Execute"
	SubtypeWriteAttributes   = "WriteAttributes"
	SubtypeDiscover          = "Discover"
	SubtypeListClients       = "ListClients"
	SubtypeClientRegister    = "ClientRegister"
	SubtypeClientDeregister  = "ClientDeregister"
	SubtypeClientUpdate      = "ClientUpdate"
)

// Notification attribute names (spec §4.7).
const (
	AttrPMin   = "pmin"
	AttrPMax   = "pmax"
	AttrGT     = "gt"
	AttrLT     = "lt"
	AttrSTP    = "stp"
	AttrCancel = "cancel"
)
