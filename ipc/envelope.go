// Package ipc implements the IPC Session Router (component J, spec
// §4.9): the local XML-over-UDP channel applications use to define
// objects, read/write/observe resource values, and drive server-side
// client management. The envelope shape mirrors the teacher's XML
// boundary convention in definition/xml.go (encoding/xml struct tags,
// no DOM library) rather than inventing a second serialization
// approach for the same local-IPC surface.
/*
 * Copyright (c) 2024, Connectivity Foundry. All rights reserved.
 */
package ipc

import "encoding/xml"

// RequestEnvelope is the wire shape of an application-issued command
// (spec §4.9: "<Request><Type>T</Type><SessionID>…</SessionID>
// <Content>…</Content></Request>"). Content holds the subtype's own XML
// document as the element's character data, escaped on the wire and
// restored verbatim on unmarshal.
type RequestEnvelope struct {
	XMLName   xml.Name `xml:"Request"`
	Type      string   `xml:"Type"`
	SessionID int32    `xml:"SessionID"`
	Content   string   `xml:"Content"`
}

// ResponseEnvelope mirrors RequestEnvelope with a result Code.
type ResponseEnvelope struct {
	XMLName   xml.Name `xml:"Response"`
	Type      string   `xml:"Type"`
	Code      string   `xml:"Code"`
	SessionID int32    `xml:"SessionID"`
	Content   string   `xml:"Content"`
}

// NotificationEnvelope carries observation results and server-push
// events on the notify channel (spec §4.9).
type NotificationEnvelope struct {
	XMLName   xml.Name `xml:"Notification"`
	Type      string   `xml:"Type"`
	SessionID int32    `xml:"SessionID"`
	Content   string   `xml:"Content"`
}

// Result is the per-leaf outcome every response content embeds (spec
// §4.9: "a per-leaf <Result><Error>…</Error>[<LWM2MError>…</LWM2MError>]
// </Result> so that partial successes can be described precisely").
type Result struct {
	Error      string `xml:"Error"`
	LWM2MError string `xml:"LWM2MError,omitempty"`
}

// The content structs below leave XMLName untagged: on unmarshal, an
// untagged xml.Name field records whatever root element was present
// without requiring it to match, so one shape serves several subtypes;
// on marshal, callers set XMLName.Local explicitly to pick the wire name
// for that subtype's response (e.g. "DefineResult", "SetResult").

type definitionsSnapshot struct {
	XMLName xml.Name
	Objects []int32 `xml:"Object"`
}

// pathRequestContent covers Get/Set/Delete requests; fields irrelevant
// to a given subtype are simply left zero. ContentType is a pointer
// (matching subscribeContent's PMin/PMax/GT/LT/STP convention below) so a
// Get can distinguish "no Accept requested" from "Accept explicitly set
// to text/plain", since apc.FormatTextPlain is itself 0 -- an int field
// with xml:",omitempty" cannot round-trip that distinction, since
// omitempty drops a zero value on marshal and leaves an absent element
// indistinguishable from an explicit zero on unmarshal.
type pathRequestContent struct {
	XMLName     xml.Name
	Path        string `xml:"Path"`
	ContentType *int   `xml:"ContentType,omitempty"`
	Create      bool   `xml:"Create,omitempty"`
	Data        string `xml:"Data,omitempty"`
}

type getResultContent struct {
	XMLName     xml.Name
	Result      Result `xml:"Result"`
	ContentType int    `xml:"ContentType,omitempty"`
	Data        string `xml:"Data,omitempty"`
}

// resultContent is the bare per-leaf Result wrapper used by every
// subtype whose response carries nothing beyond success/failure
// (Define, Set, Delete, Subscribe, CancelSubscribe, Disconnect, the
// client-registry notifications).
type resultContent struct {
	XMLName xml.Name
	Result  Result `xml:"Result"`
}

type establishNotifyContent struct {
	XMLName    xml.Name
	NotifyAddr string `xml:"NotifyAddr"`
}

type subscribeContent struct {
	XMLName xml.Name
	Path    string   `xml:"Path"`
	PMin    *int64   `xml:"PMin,omitempty"`
	PMax    *int64   `xml:"PMax,omitempty"`
	GT      *float64 `xml:"GT,omitempty"`
	LT      *float64 `xml:"LT,omitempty"`
	STP     *float64 `xml:"STP,omitempty"`
}

type cancelSubscribeContent struct {
	XMLName xml.Name
	Path    string `xml:"Path"`
}

// serverOpContent covers the Write/Read/Observe/Execute/WriteAttributes/
// Discover subtypes, each targeting a registered client by ID (spec
// §4.9 "Server-side operations targeting a registered client").
type serverOpContent struct {
	XMLName     xml.Name
	ClientID    string `xml:"ClientID"`
	Path        string `xml:"Path"`
	ContentType int    `xml:"ContentType,omitempty"`
	Data        string `xml:"Data,omitempty"`
}

type serverOpResultContent struct {
	XMLName     xml.Name
	Result      Result `xml:"Result"`
	ContentType int    `xml:"ContentType,omitempty"`
	Data        string `xml:"Data,omitempty"`
	Token       string `xml:"Token,omitempty"`
}

type clientContent struct {
	XMLName  xml.Name
	ClientID string `xml:"ClientID"`
	Peer     string `xml:"Peer,omitempty"`
}

type listClientsResultContent struct {
	XMLName xml.Name
	Result  Result          `xml:"Result"`
	Clients []clientContent `xml:"Client"`
}

// observeNotificationContent is the Notification-channel payload the
// router emits when the observation engine (component G) reports a
// change for a subscription owned by this IPC client.
type observeNotificationContent struct {
	XMLName     xml.Name
	Path        string `xml:"Path"`
	Token       string `xml:"Token"`
	Sequence    uint32 `xml:"Sequence"`
	ContentType int    `xml:"ContentType,omitempty"`
	Data        string `xml:"Data,omitempty"`
}
