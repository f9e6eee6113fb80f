package dtls

import "testing"

func sharedCred() Credential {
	return Credential{Identity: []byte("client-id"), Key: []byte("shared-psk-secret")}
}

// handshake builds a client/server session pair that share the same
// cookie and peer label, the way a real exchange would after the cookie
// round trip -- exercised directly since BeginHandshake mints a random
// cookie per call.
func handshake(t *testing.T, peer string) (client, server *Session) {
	t.Helper()
	cred := sharedCred()
	client = &Session{Peer: peer, Role: RoleClient, State: StateNew}
	cookie := client.BeginHandshake()
	if client.State != StateHandshaking {
		t.Fatalf("expected client state Handshaking, got %v", client.State)
	}

	server = &Session{Peer: peer, Role: RoleServer, State: StateNew}
	server.cookie = cookie
	server.State = StateHandshaking

	if err := client.CompleteHandshake(cred); err != nil {
		t.Fatalf("client handshake: %v", err)
	}
	if err := server.CompleteHandshake(cred); err != nil {
		t.Fatalf("server handshake: %v", err)
	}
	return client, server
}

func TestHandshakeDerivesComplementaryKeys(t *testing.T) {
	client, server := handshake(t, "peer1")
	if client.sendKey != server.recvKey {
		t.Fatalf("client sendKey must equal server recvKey")
	}
	if server.sendKey != client.recvKey {
		t.Fatalf("server sendKey must equal client recvKey")
	}
}

func TestEncryptDecryptRoundTripBothDirections(t *testing.T) {
	client, server := handshake(t, "peer1")

	record, err := client.Encrypt([]byte("hello server"))
	if err != nil {
		t.Fatalf("client encrypt: %v", err)
	}
	plain, err := server.Decrypt(record)
	if err != nil {
		t.Fatalf("server decrypt: %v", err)
	}
	if string(plain) != "hello server" {
		t.Fatalf("expected round-tripped plaintext, got %q", plain)
	}

	record, err = server.Encrypt([]byte("hello client"))
	if err != nil {
		t.Fatalf("server encrypt: %v", err)
	}
	plain, err = client.Decrypt(record)
	if err != nil {
		t.Fatalf("client decrypt: %v", err)
	}
	if string(plain) != "hello client" {
		t.Fatalf("expected round-tripped plaintext, got %q", plain)
	}
}

func TestDecryptRejectsReplayedRecord(t *testing.T) {
	client, server := handshake(t, "peer1")
	record, err := client.Encrypt([]byte("once"))
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	if _, err := server.Decrypt(record); err != nil {
		t.Fatalf("first decrypt should succeed: %v", err)
	}
	if _, err := server.Decrypt(record); err == nil {
		t.Fatalf("replayed record should be rejected")
	}
}

func TestEncryptBeforeHandshakeIsRejected(t *testing.T) {
	s := &Session{Peer: "peer1", Role: RoleClient, State: StateNew}
	if _, err := s.Encrypt([]byte("x")); err == nil {
		t.Fatalf("expected error encrypting before handshake completes")
	}
}

func TestCacheEvictsOldestSessionAtCapacity(t *testing.T) {
	c := NewCache(2, sharedCred(), nil)
	c.getOrCreate("a", RoleServer)
	c.getOrCreate("b", RoleServer)
	c.getOrCreate("c", RoleServer)

	if _, ok := c.Get("a"); ok {
		t.Fatalf("expected oldest session 'a' to be evicted")
	}
	if _, ok := c.Get("b"); !ok {
		t.Fatalf("expected 'b' to remain cached")
	}
	if _, ok := c.Get("c"); !ok {
		t.Fatalf("expected 'c' to remain cached")
	}
}

func TestCacheStartAndCompleteHandshake(t *testing.T) {
	var sent []byte
	c := NewCache(0, sharedCred(), func(peer string, payload []byte) error {
		sent = payload
		return nil
	})
	if err := c.StartHandshake("peer1", RoleServer); err != nil {
		t.Fatalf("start handshake: %v", err)
	}
	if len(sent) == 0 {
		t.Fatalf("expected cookie delivered via SendFunc")
	}
	s, ok := c.Get("peer1")
	if !ok || s.State != StateHandshaking {
		t.Fatalf("expected session in Handshaking state, got %+v", s)
	}
	// Completing against the cache's own cookie derives a usable session;
	// round-trip correctness is covered by the direct Session-pair tests.
	if err := c.CompleteHandshake("peer1"); err != nil {
		t.Fatalf("complete handshake: %v", err)
	}
	s, _ = c.Get("peer1")
	if s.State != StateEstablished {
		t.Fatalf("expected Established after CompleteHandshake, got %v", s.State)
	}
}

func TestDecryptTearsDownSessionOnBadRecord(t *testing.T) {
	client, server := handshake(t, "peer1")
	record, err := client.Encrypt([]byte("data"))
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	record[len(record)-1] ^= 0xFF // corrupt the AEAD tag

	c := &Cache{sessions: map[string]*Session{"peer1": server}, capacity: 1}
	if _, err := c.Decrypt("peer1", record); err == nil {
		t.Fatalf("expected decrypt failure on corrupted record")
	}
	if server.State != StateNew {
		t.Fatalf("expected session torn down to State New, got %v", server.State)
	}
}
