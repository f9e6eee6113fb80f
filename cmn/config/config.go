// Package config is the runtime's single process-wide configuration
// object, the ambient concern the distilled spec leaves implicit. It
// mirrors the teacher's own `cmn.GCO` ("global config owner") pattern: one
// atomically-swappable struct, loaded once from YAML at startup, read via
// Get() from anywhere without a lock.
/*
 * Copyright (c) 2024, Connectivity Foundry. All rights reserved.
 */
package config

import (
	"os"
	"sync/atomic"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/connectivityfoundry/lwm2mcore/cmn/apc"
)

type (
	Net struct {
		CoapAddr     string `yaml:"coap_addr"`
		CoapDTLSAddr string `yaml:"coap_dtls_addr"`
		IPCReqAddr   string `yaml:"ipc_request_addr"`
		IPCNotifAddr string `yaml:"ipc_notify_addr"`
	}

	DTLS struct {
		MaxSessions int           `yaml:"max_sessions"`
		PSKIdentity string        `yaml:"psk_identity"`
		PSKKey      string        `yaml:"psk_key"` // hex-encoded
		CertFile    string        `yaml:"cert_file"`
		KeyFile     string        `yaml:"key_file"`
		Handshake   time.Duration `yaml:"handshake_timeout"`
	}

	Timers struct {
		TickInterval   time.Duration `yaml:"tick_interval"`
		Retransmission time.Duration `yaml:"retransmission_timeout"`
	}

	Config struct {
		Net      Net    `yaml:"net"`
		DTLS     DTLS   `yaml:"dtls"`
		Timers   Timers `yaml:"timers"`
		LogLevel string `yaml:"log_level"`
	}
)

func defaultConfig() *Config {
	return &Config{
		Net: Net{
			CoapAddr:     "0.0.0.0:" + itoa(apc.DefaultCoapPort),
			CoapDTLSAddr: "0.0.0.0:" + itoa(apc.DefaultCoapDTLSPort),
			IPCReqAddr:   apc.DefaultIPCClientAddr,
			IPCNotifAddr: apc.DefaultIPCServerAddr,
		},
		DTLS: DTLS{
			MaxSessions: apc.DefaultMaxDTLSSessions,
			Handshake:   10 * time.Second,
		},
		Timers: Timers{
			TickInterval:   100 * time.Millisecond,
			Retransmission: 2 * time.Second,
		},
		LogLevel: "info",
	}
}

func itoa(v int) string {
	if v == 0 {
		return "0"
	}
	neg := v < 0
	if neg {
		v = -v
	}
	var buf [20]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = byte('0' + v%10)
		v /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

// gco is the global config owner: an atomically-swappable pointer so
// readers on the hot path never take a lock, matching the teacher's GCO.
var gco atomic.Pointer[Config]

func init() {
	gco.Store(defaultConfig())
}

// GCO exposes Get/Put the way the teacher's cmn.GCO does.
var GCO gcoHandle

type gcoHandle struct{}

func (gcoHandle) Get() *Config   { return gco.Load() }
func (gcoHandle) Put(c *Config)  { gco.Store(c) }

// Load reads a YAML config file over the defaults and installs it as the
// process-wide config, returning the result for callers that don't want
// to go through GCO.Get() again immediately.
func Load(path string) (*Config, error) {
	c := defaultConfig()
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(b, c); err != nil {
			return nil, err
		}
	}
	GCO.Put(c)
	return c, nil
}
