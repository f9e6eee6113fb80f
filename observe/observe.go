// Package observe implements the Observation registry and notification
// engine (spec §4.7): per-observer state, MarkChanged attribute
// evaluation, and the deferred emission pass the event loop drives once
// per tick.
/*
 * Copyright (c) 2024, Connectivity Foundry. All rights reserved.
 */
package observe

import (
	"github.com/connectivityfoundry/lwm2mcore/attr"
	"github.com/connectivityfoundry/lwm2mcore/cmn/nlog"
	"github.com/connectivityfoundry/lwm2mcore/cmn/stats"
)

// Peer identifies the notification destination; the CoAP dispatcher and
// DTLS cache both key on this shape already so observers reuse it rather
// than inventing a parallel address type.
type Peer struct {
	Addr string
}

// Observer is the per-subscription state (spec §4.7).
type Observer struct {
	Peer          Peer
	Obj, Inst, Res int32
	ContentType   int
	Token         []byte

	sequence     uint32
	lastEmitTick int64
	changed      bool
	oldValue     []byte
}

// EmitFunc delivers one notification; the dispatcher supplies the
// concrete CoAP/DTLS sender (spec §4.7 "invoke the callback with (peer,
// sequence, token, path, contentType, opaque-context)").
type EmitFunc func(o *Observer, opaque []byte) error

// Registry holds every live observer, keyed by its full path (spec
// §4.7).
type Registry struct {
	attrs     *attr.Store
	observers map[[4]int32]*Observer
}

func New(attrs *attr.Store) *Registry {
	return &Registry{attrs: attrs, observers: make(map[[4]int32]*Observer)}
}

func pathKey(obj, inst, res, rInst int32) [4]int32 {
	return [4]int32{obj, inst, res, rInst}
}

// Install registers (or replaces) an observer for a path (spec §4.6 "GET
// with Observe=0").
func (r *Registry) Install(obj, inst, res, rInst int32, peer Peer, contentType int, token []byte, initial []byte) *Observer {
	k := pathKey(obj, inst, res, rInst)
	o := &Observer{Peer: peer, Obj: obj, Inst: inst, Res: res, ContentType: contentType, Token: token, oldValue: initial}
	r.observers[k] = o
	stats.ObserversActive.Inc()
	return o
}

// Cancel removes the observer at exactly this path (spec §4.6 "Observe=1
// cancels").
func (r *Registry) Cancel(obj, inst, res, rInst int32) {
	k := pathKey(obj, inst, res, rInst)
	if _, ok := r.observers[k]; ok {
		delete(r.observers, k)
		stats.ObserversActive.Dec()
	}
}

// DeletePrefix removes every observer whose path is at or below (obj,
// inst, res) (spec §4.7 "deletion of any path prefix ... removes the
// observer").
func (r *Registry) DeletePrefix(obj, inst, res int32) {
	for k := range r.observers {
		if matchesPrefix(k, obj, inst, res) {
			delete(r.observers, k)
			stats.ObserversActive.Dec()
		}
	}
}

func matchesPrefix(k [4]int32, obj, inst, res int32) bool {
	if k[0] != obj {
		return false
	}
	if inst < 0 {
		return true
	}
	if k[1] != inst {
		return false
	}
	if res < 0 {
		return true
	}
	return k[2] == res
}

// numeric attempts to interpret payload as a number for gt/lt/stp
// comparisons, reporting ok=false for non-numeric values (strings,
// opaque, object links) -- spec §4.7 "For non-numeric resources only the
// value-inequality check applies".
type Numeric func(payload []byte) (float64, bool)

// MarkChanged evaluates the write at (obj, inst, res, rInst) against the
// observer's resolved attributes and its recorded value (spec §4.7). A
// write that qualifies marks the observer changed and becomes the
// recorded value; a write that does not qualify leaves the recorded
// value as it was, so gt/lt/stp always compare against the last value
// that qualified for notification.
func (r *Registry) MarkChanged(obj, inst, res, rInst int32, newValue []byte, numeric Numeric) {
	k := pathKey(obj, inst, res, rInst)
	o, ok := r.observers[k]
	if !ok {
		return
	}
	set := r.attrs.Resolve(obj, inst, res)
	if set.Cancel {
		return
	}

	changed := !bytesEqual(o.oldValue, newValue)
	if changed {
		if nv, ok1 := numeric(newValue); ok1 {
			if ov, ok2 := numeric(o.oldValue); ok2 {
				changed = evaluateNumericPredicates(set, ov, nv)
			}
		}
	}
	if changed {
		o.changed = true
		o.oldValue = append([]byte(nil), newValue...)
	}
}

// evaluateNumericPredicates applies gt/lt/stp: changed iff every
// configured predicate passes (spec §4.7).
func evaluateNumericPredicates(set attr.Set, old, cur float64) bool {
	if set.GT != nil && !crossesThreshold(old, cur, *set.GT, true) {
		return false
	}
	if set.LT != nil && !crossesThreshold(old, cur, *set.LT, false) {
		return false
	}
	if set.STP != nil {
		delta := cur - old
		if delta < 0 {
			delta = -delta
		}
		if delta < *set.STP {
			return false
		}
	}
	return true
}

// crossesThreshold reports whether old and cur lie on opposite sides of
// threshold for a gt (above=true) or lt (above=false) predicate (spec
// §4.7 "a change emits only if old and new lie on opposite sides").
func crossesThreshold(old, cur, threshold float64, above bool) bool {
	if above {
		return (old <= threshold) != (cur <= threshold)
	}
	return (old >= threshold) != (cur >= threshold)
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Emit runs one emission pass over every observer (spec §4.7 "deferred
// emitter pulls events out of the registry on a periodic tick"). nowMs
// is the current tick time in milliseconds; emit delivers the
// notification and is only invoked for observers whose predicates
// currently qualify.
func (r *Registry) Emit(nowMs int64, emit EmitFunc) {
	for _, o := range r.observers {
		set := r.attrs.Resolve(o.Obj, o.Inst, o.Res)
		pmin := int64(0)
		if set.PMin != nil {
			pmin = *set.PMin * 1000
		}
		due := o.changed && (nowMs-o.lastEmitTick >= pmin)
		if !due && set.PMax != nil && *set.PMax >= 0 {
			due = nowMs-o.lastEmitTick >= *set.PMax*1000
		}
		if !due {
			continue
		}
		o.sequence++
		if err := emit(o, o.oldValue); err != nil {
			nlog.Errorf("observe: emit failed for %v: %v", o.Peer, err)
			stats.NotificationsSuppressed.Inc()
			continue
		}
		stats.NotificationsEmitted.Inc()
		o.changed = false
		o.lastEmitTick = nowMs
	}
}
