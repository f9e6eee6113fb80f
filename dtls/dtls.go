// Package dtls implements the DTLS Session Cache (component I, spec
// §4.8): a fixed-capacity table of per-peer sessions that carries each
// session through New -> Handshaking -> Established, then exposes
// symmetric Encrypt/Decrypt once established. The actual record-layer
// transform is built from golang.org/x/crypto/hkdf (key derivation) and
// golang.org/x/crypto/chacha20poly1305 (AEAD) -- the teacher's own stack
// has no full DTLS handshake library in its dependency surface, so the
// handshake state machine here is this module's own, grounded on the
// cache/eviction shape of store.Store (component D) rather than on any
// one teacher file; see DESIGN.md.
/*
 * Copyright (c) 2024, Connectivity Foundry. All rights reserved.
 */
package dtls

import (
	"crypto/sha256"
	"encoding/binary"
	"io"

	"github.com/google/uuid"
	cuckoo "github.com/seiflotfy/cuckoofilter"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"

	"github.com/connectivityfoundry/lwm2mcore/cmn/apc"
	"github.com/connectivityfoundry/lwm2mcore/cmn/errors"
	"github.com/connectivityfoundry/lwm2mcore/cmn/stats"
)

// replayWindowSize bounds the cuckoo filter backing each session's
// sequence-number replay check; it need only outlive one notification
// burst, not the session's whole lifetime.
const replayWindowSize = 1024

// State is a session's position in the New -> Handshaking -> Established
// machine (spec §4.8).
type State int

const (
	StateNew State = iota
	StateHandshaking
	StateEstablished
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "New"
	case StateHandshaking:
		return "Handshaking"
	case StateEstablished:
		return "Established"
	default:
		return "Unknown"
	}
}

// Role distinguishes which side of the handshake a session plays, since
// key derivation assigns the two traffic directions differently for
// client and server (spec §4.8 "each side encrypts outbound with its own
// derived key").
type Role int

const (
	RoleClient Role = iota
	RoleServer
)

// Credential is the process-global PSK material applied to every session
// a Cache establishes (spec §4.8 "PSK/certificate credential routing").
// Certificate-based credentials are out of scope for this module (spec
// Non-goals) but the field names are kept distinct so a certificate path
// can be added without reshaping the struct.
type Credential struct {
	Identity []byte
	Key      []byte
}

// SendFunc is the pluggable network callback a Cache uses to deliver
// handshake bytes to a peer (spec §4.8 "NetworkSend(dst, bytes, ctx)").
type SendFunc func(peer string, payload []byte) error

// Session is one cached DTLS association (spec §4.8).
type Session struct {
	Peer  string
	Role  Role
	State State

	cookie  []byte
	sendKey [32]byte
	recvKey [32]byte
	sendSeq uint64
	seen    *cuckoo.Filter
}

// BeginHandshake transitions New -> Handshaking and mints a fresh cookie
// (spec §4.8), returned so the caller can hand it to SendFunc.
func (s *Session) BeginHandshake() []byte {
	s.State = StateHandshaking
	s.cookie = []byte(uuid.New().String())
	return s.cookie
}

// deriveKeys expands the shared PSK into per-direction traffic keys via
// HKDF-SHA256, salted with the handshake cookie and bound to the peer
// address so two peers sharing one PSK never collide on key material.
func deriveKeys(cred Credential, peer string, cookie []byte, role Role) (sendKey, recvKey [32]byte) {
	h := hkdf.New(sha256.New, cred.Key, cookie, []byte("lwm2m-dtls:"+peer))
	var km [64]byte
	_, _ = io.ReadFull(h, km[:])
	clientKey, serverKey := km[:32], km[32:]
	if role == RoleClient {
		copy(sendKey[:], clientKey)
		copy(recvKey[:], serverKey)
	} else {
		copy(sendKey[:], serverKey)
		copy(recvKey[:], clientKey)
	}
	return sendKey, recvKey
}

// CompleteHandshake transitions Handshaking -> Established, deriving the
// session's traffic keys from cred (spec §4.8).
func (s *Session) CompleteHandshake(cred Credential) error {
	if s.State != StateHandshaking {
		return errors.NewResult(errors.BadRequest, errors.New("dtls: handshake not in progress"))
	}
	s.sendKey, s.recvKey = deriveKeys(cred, s.Peer, s.cookie, s.Role)
	s.sendSeq = 0
	s.seen = cuckoo.NewFilter(replayWindowSize)
	s.State = StateEstablished
	return nil
}

// Teardown resets a session back to New on transport or cryptographic
// error (spec §4.8 "teardown-and-retry on error"); the cache keeps the
// entry rather than evicting it, so the next handshake reuses the slot.
func (s *Session) Teardown() {
	s.State = StateNew
	s.cookie = nil
	s.sendSeq = 0
	s.seen = nil
	stats.DTLSHandshakeFailures.Inc()
}

// Encrypt seals plaintext under the session's send key, prefixing the
// record with its 8-byte sequence number (spec §4.8 record framing is
// left to the transport; only the AEAD record itself is specified here).
func (s *Session) Encrypt(plaintext []byte) ([]byte, error) {
	if s.State != StateEstablished {
		return nil, errors.NewResult(errors.BadRequest, errors.New("dtls: session not established"))
	}
	aead, err := chacha20poly1305.New(s.sendKey[:])
	if err != nil {
		return nil, errors.NewResult(errors.InternalError, err)
	}
	nonce := make([]byte, aead.NonceSize())
	binary.BigEndian.PutUint64(nonce[4:], s.sendSeq)

	out := make([]byte, 8, 8+len(plaintext)+aead.Overhead())
	binary.BigEndian.PutUint64(out, s.sendSeq)
	out = aead.Seal(out, nonce, plaintext, nil)
	s.sendSeq++
	return out, nil
}

// Decrypt opens a record sealed by the peer's Encrypt, rejecting replayed
// sequence numbers (spec §4.8 "replay detection").
func (s *Session) Decrypt(ciphertext []byte) ([]byte, error) {
	if s.State != StateEstablished {
		return nil, errors.NewResult(errors.BadRequest, errors.New("dtls: session not established"))
	}
	if len(ciphertext) < 8 {
		return nil, errors.NewResult(errors.BadRequest, errors.New("dtls: record too short"))
	}
	seqBytes := ciphertext[:8]
	if s.seen.Lookup(seqBytes) {
		return nil, errors.NewResult(errors.BadRequest, errors.New("dtls: replayed record"))
	}
	seq := binary.BigEndian.Uint64(seqBytes)

	aead, err := chacha20poly1305.New(s.recvKey[:])
	if err != nil {
		return nil, errors.NewResult(errors.InternalError, err)
	}
	nonce := make([]byte, aead.NonceSize())
	binary.BigEndian.PutUint64(nonce[4:], seq)

	plain, err := aead.Open(nil, nonce, ciphertext[8:], nil)
	if err != nil {
		return nil, errors.NewResult(errors.Unauthorized, err)
	}
	s.seen.InsertUnique(append([]byte(nil), seqBytes...))
	return plain, nil
}

// Cache is the fixed-capacity session table (spec §4.8, default capacity
// apc.DefaultMaxDTLSSessions): oldest-session eviction when a new peer
// arrives at capacity, the same bounded-table shape store.Store uses for
// its id allocators but keyed on peer address instead of an integer id.
type Cache struct {
	capacity int
	cred     Credential
	send     SendFunc
	sessions map[string]*Session
	order    []string
}

// NewCache builds an empty cache with the given capacity (<=0 selects
// apc.DefaultMaxDTLSSessions), PSK credential, and network callback.
func NewCache(capacity int, cred Credential, send SendFunc) *Cache {
	if capacity <= 0 {
		capacity = apc.DefaultMaxDTLSSessions
	}
	return &Cache{
		capacity: capacity,
		cred:     cred,
		send:     send,
		sessions: make(map[string]*Session, capacity),
	}
}

// Get returns the session cached for peer, if any.
func (c *Cache) Get(peer string) (*Session, bool) {
	s, ok := c.sessions[peer]
	return s, ok
}

// getOrCreate returns the existing session for peer, or allocates a new
// State-New one, evicting the oldest entry first if the cache is full.
func (c *Cache) getOrCreate(peer string, role Role) *Session {
	if s, ok := c.sessions[peer]; ok {
		return s
	}
	if len(c.sessions) >= c.capacity {
		c.evictOldest()
	}
	s := &Session{Peer: peer, Role: role, State: StateNew}
	c.sessions[peer] = s
	c.order = append(c.order, peer)
	stats.DTLSSessionsActive.Inc()
	return s
}

func (c *Cache) evictOldest() {
	if len(c.order) == 0 {
		return
	}
	oldest := c.order[0]
	c.order = c.order[1:]
	if _, ok := c.sessions[oldest]; ok {
		delete(c.sessions, oldest)
		stats.DTLSSessionsActive.Dec()
	}
}

// Remove drops peer's session outright.
func (c *Cache) Remove(peer string) {
	if _, ok := c.sessions[peer]; !ok {
		return
	}
	delete(c.sessions, peer)
	for i, p := range c.order {
		if p == peer {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
	stats.DTLSSessionsActive.Dec()
}

// StartHandshake allocates (or reuses) peer's session, transitions it to
// Handshaking, and delivers the cookie via SendFunc.
func (c *Cache) StartHandshake(peer string, role Role) error {
	s := c.getOrCreate(peer, role)
	cookie := s.BeginHandshake()
	if c.send == nil {
		return nil
	}
	if err := c.send(peer, cookie); err != nil {
		s.Teardown()
		return errors.NewResult(errors.InternalError, err)
	}
	return nil
}

// CompleteHandshake finalizes peer's session once the transport layer has
// verified the peer's side of the exchange.
func (c *Cache) CompleteHandshake(peer string) error {
	s, ok := c.sessions[peer]
	if !ok {
		return errors.NewResult(errors.NotFound, errors.New("dtls: no session for peer"))
	}
	if err := s.CompleteHandshake(c.cred); err != nil {
		return err
	}
	return nil
}

// Encrypt seals plaintext for peer's established session.
func (c *Cache) Encrypt(peer string, plaintext []byte) ([]byte, error) {
	s, ok := c.sessions[peer]
	if !ok {
		return nil, errors.NewResult(errors.NotFound, errors.New("dtls: no session for peer"))
	}
	return s.Encrypt(plaintext)
}

// Decrypt opens a record from peer, tearing the session down (forcing a
// fresh handshake on next contact) if the open fails.
func (c *Cache) Decrypt(peer string, ciphertext []byte) ([]byte, error) {
	s, ok := c.sessions[peer]
	if !ok {
		return nil, errors.NewResult(errors.NotFound, errors.New("dtls: no session for peer"))
	}
	plain, err := s.Decrypt(ciphertext)
	if err != nil {
		s.Teardown()
		return nil, err
	}
	return plain, nil
}
