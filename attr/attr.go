// Package attr implements the notification attribute store (spec §4.7):
// pmin/pmax/gt/lt/stp/cancel values set at object, instance, or resource
// level, inherited downward with the most specific set value winning.
/*
 * Copyright (c) 2024, Connectivity Foundry. All rights reserved.
 */
package attr

import "github.com/connectivityfoundry/lwm2mcore/cmn/apc"

// Set is the resolved attribute predicates in effect for one path (spec
// §4.7). A nil pointer field means "not set at or above this path".
type Set struct {
	PMin   *int64
	PMax   *int64
	GT     *float64
	LT     *float64
	STP    *float64
	Cancel bool
}

// level holds the attributes explicitly set at exactly one path
// component (object, instance, or resource).
type level struct {
	pmin, pmax     *int64
	gt, lt, stp    *float64
	cancel         bool
}

func newLevel() *level { return &level{} }

// Store holds attribute levels keyed by (obj, inst, res); inst/res of -1
// address the object- or instance-level row respectively (spec §4.7).
type Store struct {
	levels map[[3]int32]*level
}

func New() *Store {
	return &Store{levels: make(map[[3]int32]*level)}
}

func key(obj, inst, res int32) [3]int32 { return [3]int32{obj, inst, res} }

func (s *Store) entry(obj, inst, res int32, create bool) *level {
	k := key(obj, inst, res)
	l, ok := s.levels[k]
	if !ok {
		if !create {
			return nil
		}
		l = newLevel()
		s.levels[k] = l
	}
	return l
}

// SetAttribute applies a single named attribute at (obj, inst, res)
// (spec §4.7, §4.9 WriteAttributes). inst/res may be -1 for an object-
// or instance-level setting.
func (s *Store) SetAttribute(obj, inst, res int32, name string, value float64) {
	l := s.entry(obj, inst, res, true)
	switch name {
	case apc.AttrPMin:
		v := int64(value)
		l.pmin = &v
	case apc.AttrPMax:
		v := int64(value)
		l.pmax = &v
	case apc.AttrGT:
		v := value
		l.gt = &v
	case apc.AttrLT:
		v := value
		l.lt = &v
	case apc.AttrSTP:
		v := value
		l.stp = &v
	}
}

// Cancel marks (obj, inst, res) as explicitly canceled (spec §4.7 "cancel:
// synonym for explicit cancellation").
func (s *Store) Cancel(obj, inst, res int32) {
	s.entry(obj, inst, res, true).cancel = true
}

// Resolve inherits resource -> instance -> object, most specific set
// value winning (spec §4.7).
func (s *Store) Resolve(obj, inst, res int32) Set {
	var out Set
	for _, l := range []*level{
		s.entry(obj, -1, -1, false),
		s.entry(obj, inst, -1, false),
		s.entry(obj, inst, res, false),
	} {
		if l == nil {
			continue
		}
		if l.pmin != nil {
			out.PMin = l.pmin
		}
		if l.pmax != nil {
			out.PMax = l.pmax
		}
		if l.gt != nil {
			out.GT = l.gt
		}
		if l.lt != nil {
			out.LT = l.lt
		}
		if l.stp != nil {
			out.STP = l.stp
		}
		if l.cancel {
			out.Cancel = true
		}
	}
	return out
}

// DeletePrefix drops every level at or below (obj, inst, res) -- called
// when the corresponding store path is deleted (spec §4.7 "Deletion of
// any path prefix that covers an observer path removes the observer").
func (s *Store) DeletePrefix(obj, inst, res int32) {
	for k := range s.levels {
		if matchesPrefix(k, obj, inst, res) {
			delete(s.levels, k)
		}
	}
}

func matchesPrefix(k [3]int32, obj, inst, res int32) bool {
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
