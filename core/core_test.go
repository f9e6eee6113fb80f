package core

import (
	"net"
	"testing"
	"time"

	"github.com/connectivityfoundry/lwm2mcore/cmn/apc"
	"github.com/connectivityfoundry/lwm2mcore/cmn/config"
	"github.com/connectivityfoundry/lwm2mcore/coap"
	"github.com/connectivityfoundry/lwm2mcore/definition"
)

func TestFormatPath(t *testing.T) {
	cases := []struct {
		obj, inst, res, rInst int32
		want                  string
	}{
		{3, -1, -1, -1, "/3"},
		{3, 0, -1, -1, "/3/0"},
		{3, 0, 5, -1, "/3/0/5"},
		{3, 0, 5, 1, "/3/0/5/1"},
	}
	for _, c := range cases {
		if got := formatPath(c.obj, c.inst, c.res, c.rInst); got != c.want {
			t.Errorf("formatPath(%d,%d,%d,%d) = %q, want %q", c.obj, c.inst, c.res, c.rInst, got, c.want)
		}
	}
}

func TestEncodeDecodeRequestDatagramRoundTrip(t *testing.T) {
	req := coap.Request{
		Type:        apc.MethodPUT,
		ContentType: apc.FormatTextPlain,
		Accept:      apc.FormatTLV,
		HasAccept:   true,
		Token:       []byte("tok1"),
		Path:        "/3/0/5",
		Body:        []byte("hello"),
	}
	raw := encodeRequestDatagram(req)
	got, ok := decodeRequestDatagram(raw)
	if !ok {
		t.Fatalf("decodeRequestDatagram failed on its own encoding")
	}
	if got.Type != req.Type || got.ContentType != req.ContentType || got.Accept != req.Accept ||
		got.HasAccept != req.HasAccept || string(got.Token) != string(req.Token) ||
		got.Path != req.Path || string(got.Body) != string(req.Body) {
		t.Fatalf("round trip mismatch: got %+v, want %+v", got, req)
	}
}

func TestDecodeRequestDatagramRejectsWrongKind(t *testing.T) {
	if _, ok := decodeRequestDatagram([]byte{datagramKindResponse, 0, 0, 0, 0, 0, 0}); ok {
		t.Fatalf("expected decode to reject a non-request datagram")
	}
}

func TestSeedMandatoryDefaultsPopulatesStore(t *testing.T) {
	cfg := &config.Config{}
	c := New(cfg, RoleClient)

	obj := definition.NewObjectDefinition(3, "Device", 1, 1, true)
	obj.RegisterResource(&definition.ResourceDefinition{ID: 0, Name: "Manufacturer", Type: definition.TypeString, MinInstances: 1, MaxInstances: 1, Operation: definition.OpRead})
	obj.RegisterResource(&definition.ResourceDefinition{ID: 1, Name: "Reboot", Type: definition.TypeNone, MinInstances: 1, MaxInstances: 1, Operation: definition.OpExecute})
	if err := c.Reg.RegisterObject(obj); err != nil {
		t.Fatalf("register object: %v", err)
	}

	if err := c.SeedMandatoryDefaults(); err != nil {
		t.Fatalf("seed mandatory defaults: %v", err)
	}

	buf, _, err := c.Store.GetResourceInstanceValue(3, 0, 0, 0)
	if err != nil {
		t.Fatalf("expected seeded Manufacturer value, got error %v", err)
	}
	if string(buf) != "" {
		t.Fatalf("expected empty-string default, got %q", buf)
	}
	if c.Store.Exists(3, 0, 1, -1) {
		t.Fatalf("expected executable resource 1 not to be seeded")
	}
}

func TestTickDispatchesCoapRequestOverLoopback(t *testing.T) {
	cfg := &config.Config{}
	cfg.Net.CoapAddr = "127.0.0.1:0"
	cfg.Net.CoapDTLSAddr = "127.0.0.1:0"
	cfg.Net.IPCReqAddr = "127.0.0.1:0"
	cfg.Net.IPCNotifAddr = "127.0.0.1:0"
	cfg.DTLS.MaxSessions = 3

	c := New(cfg, RoleClient)
	if err := c.Bind(); err != nil {
		t.Fatalf("bind: %v", err)
	}
	defer c.Close()

	obj := definition.NewObjectDefinition(3, "Device", 1, 1, true)
	obj.RegisterResource(&definition.ResourceDefinition{ID: 0, Name: "Manufacturer", Type: definition.TypeString, MinInstances: 1, MaxInstances: 1, Operation: definition.OpRead})
	if err := c.Reg.RegisterObject(obj); err != nil {
		t.Fatalf("register object: %v", err)
	}
	if err := c.SeedMandatoryDefaults(); err != nil {
		t.Fatalf("seed: %v", err)
	}
	c.Store.SetResourceInstanceValue(3, 0, 0, 0, []byte("ACME"), 0, 4, 4)

	peerConn, err := net.DialUDP("udp", nil, c.coapConn.LocalAddr().(*net.UDPAddr))
	if err != nil {
		t.Fatalf("dial loopback: %v", err)
	}
	defer peerConn.Close()

	req := coap.Request{Type: apc.MethodGET, Path: "/3/0/0", Accept: apc.FormatTextPlain, HasAccept: true}
	if _, err := peerConn.Write(encodeRequestDatagram(req)); err != nil {
		t.Fatalf("write request: %v", err)
	}

	c.Tick(time.Now())

	_ = peerConn.SetReadDeadline(time.Now().Add(time.Second))
	buf := make([]byte, maxDatagram)
	n, err := peerConn.Read(buf)
	if err != nil {
		t.Fatalf("read response: %v", err)
	}
	if buf[0] != datagramKindResponse {
		t.Fatalf("expected a response datagram, got kind %d", buf[0])
	}
	if apc.Code(buf[1]) != apc.Content {
		t.Fatalf("expected Content response, got code %#x", buf[1])
	}
	_ = n
}
