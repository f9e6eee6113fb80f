// Package core wires the ten components behind one shared event loop
// (SPEC_FULL.md §5: "a single Core.Tick(now time.Time) method so the two
// cmd/ binaries share one event loop implementation parameterized only
// by role"). Neither cmd/lwm2mclient nor cmd/lwm2mserver owns protocol
// logic of its own -- both just configure a Core and call Tick in a
// loop.
/*
 * Copyright (c) 2024, Connectivity Foundry. All rights reserved.
 */
package core

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
	"golang.org/x/sys/unix"

	"github.com/connectivityfoundry/lwm2mcore/attr"
	"github.com/connectivityfoundry/lwm2mcore/cmn/apc"
	"github.com/connectivityfoundry/lwm2mcore/cmn/config"
	"github.com/connectivityfoundry/lwm2mcore/cmn/nlog"
	"github.com/connectivityfoundry/lwm2mcore/coap"
	"github.com/connectivityfoundry/lwm2mcore/definition"
	"github.com/connectivityfoundry/lwm2mcore/dtls"
	"github.com/connectivityfoundry/lwm2mcore/ipc"
	"github.com/connectivityfoundry/lwm2mcore/observe"
	"github.com/connectivityfoundry/lwm2mcore/store"
)

// Role distinguishes which LwM2M side a Core plays; it selects the DTLS
// role the Core takes in handshakes (see dtlsRole) -- the tick logic
// itself is identical either way (SPEC_FULL.md §5).
type Role int

const (
	RoleClient Role = iota
	RoleServer
)

func (r Role) String() string {
	if r == RoleServer {
		return "server"
	}
	return "client"
}

// dtlsRole maps the LwM2M-level Role to the DTLS-level Role: a Client
// daemon exposes resources and answers the handshake a remote Server
// initiates (dtls.RoleServer); a Server daemon is the one reaching out
// (dtls.RoleClient).
func (r Role) dtlsRole() dtls.Role {
	if r == RoleServer {
		return dtls.RoleClient
	}
	return dtls.RoleServer
}

const maxDatagram = apc.MaxIPCDatagram

// Core is the shared runtime: the ten components plus the four UDP
// sockets the event loop drains once per Tick.
type Core struct {
	Role   Role
	Cfg    *config.Config
	Reg    *definition.Registry
	Store  *store.Store
	Attrs  *attr.Store
	Obs    *observe.Registry
	Disp   *coap.Dispatcher
	DTLS   *dtls.Cache
	IPC    *ipc.Router

	coapConn      *net.UDPConn
	dtlsConn      *net.UDPConn
	ipcReqConn    *net.UDPConn
	ipcNotifyConn *net.UDPConn

	inFlight map[string]*semaphore.Weighted
}

// New builds a Core's in-memory components. Bind must be called
// separately to open the UDP sockets, since the DTLS cache's SendFunc
// needs the DTLS socket to already exist.
func New(cfg *config.Config, role Role) *Core {
	reg := definition.NewRegistry()
	st := store.New()
	attrs := attr.New()
	obs := observe.New(attrs)
	disp := coap.New(reg, st, attrs, obs)
	r := ipc.NewRouter(int32(os.Getpid()), reg, st, attrs, obs, disp)

	return &Core{
		Role:     role,
		Cfg:      cfg,
		Reg:      reg,
		Store:    st,
		Attrs:    attrs,
		Obs:      obs,
		Disp:     disp,
		IPC:      r,
		inFlight: make(map[string]*semaphore.Weighted),
	}
}

// reuseAddrControl sets SO_REUSEADDR and a generous receive buffer on
// every socket this process binds, the same ambient socket hygiene
// original_source/core/src/common/network_abstraction_posix.c applies
// in C before handing the fd to the rest of the stack.
func reuseAddrControl(_, _ string, c syscall.RawConn) error {
	var sockErr error
	err := c.Control(func(fd uintptr) {
		if err := unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
			sockErr = err
			return
		}
		sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_RCVBUF, 1<<20)
	})
	if err != nil {
		return err
	}
	return sockErr
}

func listenUDP(addr string) (*net.UDPConn, error) {
	lc := net.ListenConfig{Control: reuseAddrControl}
	pc, err := lc.ListenPacket(context.Background(), "udp", addr)
	if err != nil {
		return nil, err
	}
	return pc.(*net.UDPConn), nil
}

// Bind opens the four UDP sockets named in cmn/config (plain CoAP, DTLS
// CoAP, IPC request, IPC notify) and wires the DTLS cache's SendFunc to
// the just-opened DTLS socket.
func (c *Core) Bind() error {
	var err error
	if c.coapConn, err = listenUDP(c.Cfg.Net.CoapAddr); err != nil {
		return fmt.Errorf("core: bind coap socket: %w", err)
	}
	if c.dtlsConn, err = listenUDP(c.Cfg.Net.CoapDTLSAddr); err != nil {
		return fmt.Errorf("core: bind dtls socket: %w", err)
	}
	if c.ipcReqConn, err = listenUDP(c.Cfg.Net.IPCReqAddr); err != nil {
		return fmt.Errorf("core: bind ipc request socket: %w", err)
	}
	if c.ipcNotifyConn, err = listenUDP(c.Cfg.Net.IPCNotifAddr); err != nil {
		return fmt.Errorf("core: bind ipc notify socket: %w", err)
	}

	cred, err := pskCredential(c.Cfg)
	if err != nil {
		return err
	}
	c.DTLS = dtls.NewCache(c.Cfg.DTLS.MaxSessions, cred, c.sendDTLSHandshake)
	return nil
}

func pskCredential(cfg *config.Config) (dtls.Credential, error) {
	key, err := hex.DecodeString(cfg.DTLS.PSKKey)
	if err != nil {
		return dtls.Credential{}, fmt.Errorf("core: decode psk_key: %w", err)
	}
	return dtls.Credential{Identity: []byte(cfg.DTLS.PSKIdentity), Key: key}, nil
}

// Close releases the four sockets; cmd/ binaries call this from their
// signal-triggered shutdown path.
func (c *Core) Close() {
	for _, conn := range []*net.UDPConn{c.coapConn, c.dtlsConn, c.ipcReqConn, c.ipcNotifyConn} {
		if conn != nil {
			_ = conn.Close()
		}
	}
}

// LoadDefinitionFiles parses every path into the registry. Disk reads
// run concurrently (golang.org/x/sync/errgroup, the same pattern the
// teacher's corpus uses for concurrent file-tree work); registration
// itself stays on the calling goroutine since definition.Registry is
// documented single-writer (spec §4.1 "effectively read-mostly after
// startup").
func (c *Core) LoadDefinitionFiles(paths []string) error {
	bufs := make([][]byte, len(paths))
	var eg errgroup.Group
	for i, p := range paths {
		i, p := i, p
		eg.Go(func() error {
			b, err := os.ReadFile(p)
			if err != nil {
				return fmt.Errorf("core: read %s: %w", p, err)
			}
			bufs[i] = b
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return err
	}
	for i, p := range paths {
		if err := definition.LoadXML(c.Reg, bytes.NewReader(bufs[i])); err != nil {
			return fmt.Errorf("core: load %s: %w", p, err)
		}
	}
	return nil
}

// SeedMandatoryDefaults instantiates every singleton mandatory object at
// instance 0 and fills its mandatory non-executable resources with
// definition.AllocateSensibleDefault's zero values (spec §4.1), the way
// a freshly-started LwM2M Client populates its object model before the
// first Server contact. Server daemons don't call this -- their store
// only ever holds what Define/Set create.
func (c *Core) SeedMandatoryDefaults() error {
	for _, objDef := range c.Reg.Objects() {
		if !objDef.Singleton || objDef.MinInstances == 0 {
			continue
		}
		if _, err := c.Store.CreateObjectInstance(int32(objDef.ID), 0, objDef.MaxInstances); err != nil {
			return fmt.Errorf("core: seed object %d: %w", objDef.ID, err)
		}
		for _, resDef := range objDef.Resources() {
			if !resDef.Mandatory() || resDef.Operation.CanExecute() {
				continue
			}
			if err := c.Store.CreateResource(int32(objDef.ID), 0, int32(resDef.ID)); err != nil {
				return fmt.Errorf("core: seed resource %d/0/%d: %w", objDef.ID, resDef.ID, err)
			}
			def := definition.AllocateSensibleDefault(resDef)
			if _, err := c.Store.SetResourceInstanceValue(int32(objDef.ID), 0, int32(resDef.ID), 0, def.Payload, 0, len(def.Payload), len(def.Payload)); err != nil {
				return fmt.Errorf("core: seed value %d/0/%d: %w", objDef.ID, resDef.ID, err)
			}
		}
	}
	return nil
}

// Tick drains every socket once and runs the observation emission pass
// (SPEC_FULL.md §5). It never blocks: each socket read uses a zero
// deadline so the loop returns as soon as no datagram is waiting.
func (c *Core) Tick(now time.Time) {
	c.drainCoAP()
	c.drainDTLS()
	c.drainIPC()
	c.emitNotifications(now)
}

func setNonBlocking(conn *net.UDPConn) {
	_ = conn.SetReadDeadline(time.Now())
}

func isTimeout(err error) bool {
	ne, ok := err.(net.Error)
	return ok && ne.Timeout()
}

func (c *Core) drainCoAP() {
	buf := make([]byte, maxDatagram)
	for {
		setNonBlocking(c.coapConn)
		n, addr, err := c.coapConn.ReadFromUDP(buf)
		if err != nil {
			if !isTimeout(err) {
				nlog.Errorf("core: coap read: %v", err)
			}
			return
		}
		req, ok := decodeRequestDatagram(buf[:n])
		if !ok {
			continue
		}
		req.Origin = coap.OriginServer
		req.Peer = addr.String()
		resp := c.Disp.Dispatch(req)
		out := encodeResponseDatagram(resp)
		if _, err := c.coapConn.WriteToUDP(out, addr); err != nil {
			nlog.Errorf("core: coap write to %v: %v", addr, err)
		}
	}
}

const (
	dtlsKindHandshakeHello = 0
	dtlsKindHandshakeAck   = 1
	dtlsKindRecord         = 2
)

// sendDTLSHandshake is the dtls.Cache's SendFunc: it tags cookie bytes
// as a handshake datagram and writes them to peer over the DTLS socket.
func (c *Core) sendDTLSHandshake(peer string, payload []byte) error {
	addr, err := net.ResolveUDPAddr("udp", peer)
	if err != nil {
		return err
	}
	out := append([]byte{dtlsKindHandshakeHello}, payload...)
	_, err = c.dtlsConn.WriteToUDP(out, addr)
	return err
}

func (c *Core) drainDTLS() {
	buf := make([]byte, maxDatagram)
	for {
		setNonBlocking(c.dtlsConn)
		n, addr, err := c.dtlsConn.ReadFromUDP(buf)
		if err != nil {
			if !isTimeout(err) {
				nlog.Errorf("core: dtls read: %v", err)
			}
			return
		}
		if n < 1 {
			continue
		}
		peer := addr.String()
		kind, payload := buf[0], append([]byte(nil), buf[1:n]...)

		switch kind {
		case dtlsKindHandshakeHello:
			if _, ok := c.DTLS.Get(peer); !ok {
				if err := c.DTLS.StartHandshake(peer, c.Role.dtlsRole()); err != nil {
					nlog.Errorf("core: dtls start handshake with %v: %v", addr, err)
				}
				continue
			}
			ack := append([]byte{dtlsKindHandshakeAck}, payload...)
			if _, err := c.dtlsConn.WriteToUDP(ack, addr); err != nil {
				nlog.Errorf("core: dtls write ack to %v: %v", addr, err)
			}
		case dtlsKindHandshakeAck:
			if err := c.DTLS.CompleteHandshake(peer); err != nil {
				nlog.Errorf("core: dtls complete handshake with %v: %v", addr, err)
			}
		case dtlsKindRecord:
			plain, err := c.DTLS.Decrypt(peer, payload)
			if err != nil {
				nlog.Errorf("core: dtls decrypt from %v: %v", addr, err)
				continue
			}
			req, ok := decodeRequestDatagram(plain)
			if !ok {
				continue
			}
			req.Origin = coap.OriginServer
			req.Peer = peer
			resp := c.Disp.Dispatch(req)
			sealed, err := c.DTLS.Encrypt(peer, encodeResponseDatagram(resp))
			if err != nil {
				nlog.Errorf("core: dtls encrypt response to %v: %v", addr, err)
				continue
			}
			out := append([]byte{dtlsKindRecord}, sealed...)
			if _, err := c.dtlsConn.WriteToUDP(out, addr); err != nil {
				nlog.Errorf("core: dtls write to %v: %v", addr, err)
			}
		}
	}
}

func (c *Core) drainIPC() {
	buf := make([]byte, maxDatagram)
	for {
		setNonBlocking(c.ipcReqConn)
		n, addr, err := c.ipcReqConn.ReadFromUDP(buf)
		if err != nil {
			if !isTimeout(err) {
				nlog.Errorf("core: ipc read: %v", err)
			}
			return
		}
		raw := append([]byte(nil), buf[:n]...)
		out := c.IPC.Dispatch(raw, addr.String())
		if out == nil {
			continue
		}
		if _, err := c.ipcReqConn.WriteToUDP(out, addr); err != nil {
			nlog.Errorf("core: ipc write to %v: %v", addr, err)
		}
	}
}

// peerSemaphore returns (creating if needed) the capacity-1 weighted
// semaphore bounding in-flight notification sends to peer: at most one
// send per peer at a time, shared by all of that peer's observers
// (SPEC_FULL.md §4.7).
func (c *Core) peerSemaphore(peer string) *semaphore.Weighted {
	sem, ok := c.inFlight[peer]
	if !ok {
		sem = semaphore.NewWeighted(1)
		c.inFlight[peer] = sem
	}
	return sem
}

func (c *Core) emitNotifications(now time.Time) {
	c.Obs.Emit(now.UnixMilli(), c.emitOne)
}

// emitOne is the observe.EmitFunc the deferred emission pass invokes for
// every observer due this tick. It re-reads the current value through
// the CoAP dispatcher (reusing the same GET path coap.Dispatcher.handleGet
// already implements, rather than re-encoding from the store directly),
// then routes the notification to the IPC notify socket or the raw
// network socket depending on who installed the observer.
func (c *Core) emitOne(o *observe.Observer, _ []byte) error {
	path := formatPath(o.Obj, o.Inst, o.Res, -1)
	resp := c.Disp.Dispatch(coap.Request{
		Type: apc.MethodGET, Origin: coap.OriginServer, Peer: o.Peer.Addr,
		Path: path, Accept: o.ContentType, HasAccept: true, Token: o.Token,
	})

	sem := c.peerSemaphore(o.Peer.Addr)
	if !sem.TryAcquire(1) {
		return fmt.Errorf("core: notification to %s already in flight", o.Peer.Addr)
	}

	if sid, ok := c.IPC.SessionIDForPeer(o.Peer.Addr); ok {
		notif := c.IPC.NotifyObserve(&ipc.Session{ID: sid, Peer: o.Peer.Addr}, path, o, resp.Body)
		go func() {
			defer sem.Release(1)
			c.sendIPCNotify(o.Peer.Addr, notif)
		}()
		return nil
	}

	datagram := encodeNotificationDatagram(o, resp)
	go func() {
		defer sem.Release(1)
		c.sendNetworkNotification(o.Peer.Addr, datagram)
	}()
	return nil
}

func (c *Core) sendIPCNotify(peer string, payload []byte) {
	if payload == nil {
		return
	}
	addr, err := net.ResolveUDPAddr("udp", peer)
	if err != nil {
		nlog.Errorf("core: resolve ipc notify peer %s: %v", peer, err)
		return
	}
	if _, err := c.ipcNotifyConn.WriteToUDP(payload, addr); err != nil {
		nlog.Errorf("core: ipc notify write to %v: %v", addr, err)
	}
}

// sendNetworkNotification prefers the peer's established DTLS session
// when one exists, falling back to the plain CoAP socket otherwise.
func (c *Core) sendNetworkNotification(peer string, payload []byte) {
	addr, err := net.ResolveUDPAddr("udp", peer)
	if err != nil {
		nlog.Errorf("core: resolve notify peer %s: %v", peer, err)
		return
	}
	if s, ok := c.DTLS.Get(peer); ok && s.State == dtls.StateEstablished {
		sealed, err := c.DTLS.Encrypt(peer, payload)
		if err != nil {
			nlog.Errorf("core: dtls encrypt notification to %v: %v", addr, err)
			return
		}
		out := append([]byte{dtlsKindRecord}, sealed...)
		if _, err := c.dtlsConn.WriteToUDP(out, addr); err != nil {
			nlog.Errorf("core: dtls notify write to %v: %v", addr, err)
		}
		return
	}
	if _, err := c.coapConn.WriteToUDP(payload, addr); err != nil {
		nlog.Errorf("core: coap notify write to %v: %v", addr, err)
	}
}

func formatPath(obj, inst, res, rInst int32) string {
	if rInst >= 0 {
		return "/" + strconv.Itoa(int(obj)) + "/" + strconv.Itoa(int(inst)) + "/" + strconv.Itoa(int(res)) + "/" + strconv.Itoa(int(rInst))
	}
	if res >= 0 {
		return "/" + strconv.Itoa(int(obj)) + "/" + strconv.Itoa(int(inst)) + "/" + strconv.Itoa(int(res))
	}
	if inst >= 0 {
		return "/" + strconv.Itoa(int(obj)) + "/" + strconv.Itoa(int(inst))
	}
	return "/" + strconv.Itoa(int(obj))
}

// Wire framing for the plain/DTLS-plaintext CoAP datagrams. Real CoAP
// header/option framing (RFC 7252) is explicitly out of scope (spec §1:
// "no re-specification of LwM2M or CoAP on the wire beyond what the core
// directly decides") -- this is the minimal self-consistent envelope the
// core itself decides on, carrying exactly coap.Request/coap.Response's
// fields and nothing else.
const (
	datagramKindRequest      = 0
	datagramKindResponse     = 1
	datagramKindNotification = 2
)

func encodeRequestDatagram(req coap.Request) []byte {
	var buf bytes.Buffer
	buf.WriteByte(datagramKindRequest)
	buf.WriteByte(byte(req.Type))
	writeUint16(&buf, uint16(req.ContentType))
	writeUint16(&buf, uint16(req.Accept))
	if req.HasAccept {
		buf.WriteByte(1)
	} else {
		buf.WriteByte(0)
	}
	buf.WriteByte(byte(len(req.Token)))
	buf.Write(req.Token)
	writeUint16(&buf, uint16(len(req.Path)))
	buf.WriteString(req.Path)
	buf.Write(req.Body)
	return buf.Bytes()
}

func decodeRequestDatagram(raw []byte) (coap.Request, bool) {
	if len(raw) < 7 || raw[0] != datagramKindRequest {
		return coap.Request{}, false
	}
	r := bytes.NewReader(raw[1:])
	methodByte, _ := r.ReadByte()
	contentType, ok := readUint16(r)
	if !ok {
		return coap.Request{}, false
	}
	accept, ok := readUint16(r)
	if !ok {
		return coap.Request{}, false
	}
	hasAcceptByte, err := r.ReadByte()
	if err != nil {
		return coap.Request{}, false
	}
	tokenLen, err := r.ReadByte()
	if err != nil {
		return coap.Request{}, false
	}
	token := make([]byte, tokenLen)
	if _, err := io.ReadFull(r, token); err != nil {
		return coap.Request{}, false
	}
	pathLen, ok := readUint16(r)
	if !ok {
		return coap.Request{}, false
	}
	pathBytes := make([]byte, pathLen)
	if _, err := io.ReadFull(r, pathBytes); err != nil {
		return coap.Request{}, false
	}
	body := make([]byte, r.Len())
	_, _ = io.ReadFull(r, body)

	return coap.Request{
		Type:        apc.Method(methodByte),
		ContentType: int(contentType),
		Accept:      int(accept),
		HasAccept:   hasAcceptByte == 1,
		Token:       token,
		Path:        string(pathBytes),
		Body:        body,
	}, true
}

func encodeResponseDatagram(resp coap.Response) []byte {
	var buf bytes.Buffer
	buf.WriteByte(datagramKindResponse)
	buf.WriteByte(byte(resp.Code))
	writeUint16(&buf, uint16(resp.ContentType))
	writeUint16(&buf, uint16(len(resp.LocationPath)))
	buf.WriteString(resp.LocationPath)
	buf.Write(resp.Body)
	return buf.Bytes()
}

func encodeNotificationDatagram(o *observe.Observer, resp coap.Response) []byte {
	path := formatPath(o.Obj, o.Inst, o.Res, -1)
	var buf bytes.Buffer
	buf.WriteByte(datagramKindNotification)
	writeUint16(&buf, uint16(resp.ContentType))
	buf.WriteByte(byte(len(o.Token)))
	buf.Write(o.Token)
	writeUint16(&buf, uint16(len(path)))
	buf.WriteString(path)
	buf.Write(resp.Body)
	return buf.Bytes()
}

func writeUint16(buf *bytes.Buffer, v uint16) {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], v)
	buf.Write(b[:])
}

func readUint16(r *bytes.Reader) (uint16, bool) {
	var b [2]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, false
	}
	return binary.BigEndian.Uint16(b[:]), true
}
