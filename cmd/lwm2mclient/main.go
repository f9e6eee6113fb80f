// Command lwm2mclient runs the LwM2M Client (device) role daemon: it
// loads its object-model definitions, seeds every mandatory singleton
// object with sensible defaults, binds the same four sockets
// lwm2mserver does, and drives core.Core's tick loop until
// SIGINT/SIGTERM.
/*
 * Copyright (c) 2024, Connectivity Foundry. All rights reserved.
 */
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/connectivityfoundry/lwm2mcore/cmn/config"
	"github.com/connectivityfoundry/lwm2mcore/cmn/nlog"
	"github.com/connectivityfoundry/lwm2mcore/core"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file (cmn/config.Config); defaults used when empty")
	defsFlag := flag.String("defs", "", "comma-separated LWM2MDefinitions XML files to load at startup")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		nlog.Errorf("lwm2mclient: load config: %v", err)
		os.Exit(1)
	}
	nlog.SetLevel(cfg.LogLevel)

	c := core.New(cfg, core.RoleClient)
	if err := c.Bind(); err != nil {
		nlog.Errorf("lwm2mclient: bind: %v", err)
		os.Exit(1)
	}
	defer c.Close()

	if *defsFlag != "" {
		if err := c.LoadDefinitionFiles(splitNonEmpty(*defsFlag, ",")); err != nil {
			nlog.Errorf("lwm2mclient: load definitions: %v", err)
			os.Exit(1)
		}
	}
	if err := c.SeedMandatoryDefaults(); err != nil {
		nlog.Errorf("lwm2mclient: seed defaults: %v", err)
		os.Exit(1)
	}

	nlog.Infof("lwm2mclient: listening coap=%s dtls=%s ipc_req=%s ipc_notify=%s",
		cfg.Net.CoapAddr, cfg.Net.CoapDTLSAddr, cfg.Net.IPCReqAddr, cfg.Net.IPCNotifAddr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ticker := time.NewTicker(cfg.Timers.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			nlog.Infoln("lwm2mclient: shutting down")
			return
		case now := <-ticker.C:
			c.Tick(now)
		}
	}
}

func splitNonEmpty(s, sep string) []string {
	var out []string
	for _, part := range strings.Split(s, sep) {
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
