// Package nlog is the runtime's logging facade: every other package logs
// through here rather than importing logrus directly, so the wire-level
// packages stay agnostic of which structured logger backs them.
/*
 * Copyright (c) 2024, Connectivity Foundry. All rights reserved.
 */
package nlog

import (
	"os"

	"github.com/sirupsen/logrus"
)

var log = logrus.New()

func init() {
	log.SetOutput(os.Stderr)
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	log.SetLevel(logrus.InfoLevel)
}

// SetLevel accepts the same strings cmn/config reads out of the YAML
// config file: "debug", "info", "warn", "error".
func SetLevel(level string) {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	log.SetLevel(lvl)
}

func Infof(format string, args ...any)    { log.Infof(format, args...) }
func Infoln(args ...any)                  { log.Infoln(args...) }
func Warningf(format string, args ...any) { log.Warnf(format, args...) }
func Errorf(format string, args ...any)   { log.Errorf(format, args...) }
func Errorln(args ...any)                 { log.Errorln(args...) }
func Debugf(format string, args ...any)   { log.Debugf(format, args...) }

// Fields opens a structured, key/value scoped line — used on the hot paths
// (dispatcher, observers) where callers want peer/path/code attached
// without building the format string by hand.
func Fields(kv ...any) *logrus.Entry {
	fields := make(logrus.Fields, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		if k, ok := kv[i].(string); ok {
			fields[k] = kv[i+1]
		}
	}
	return log.WithFields(fields)
}
