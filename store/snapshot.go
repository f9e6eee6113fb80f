// Snapshot persistence for the Object Store, backed by tidwall/buntdb --
// an embedded, B-tree-indexed key/value store. The store itself stays a
// pure in-memory aggregate (spec §5: mutated only from the event loop,
// no locks); SaveSnapshot/LoadSnapshot give cmd/lwm2mserver and
// cmd/lwm2mclient a way to survive a process restart without reshaping
// Store's hot-path API around a database.
/*
 * Copyright (c) 2024, Connectivity Foundry. All rights reserved.
 */
package store

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"

	"github.com/tidwall/buntdb"

	"github.com/connectivityfoundry/lwm2mcore/cmn/errors"
)

// snapshotKey encodes a leaf path as a colon-separated buntdb key that
// LoadSnapshot splits back into its four IDs.
func snapshotKey(obj, inst, res, rInst int32) string {
	return fmt.Sprintf("%d:%d:%d:%d", obj, inst, res, rInst)
}

// SaveSnapshot dumps every populated leaf into db as base64-encoded
// values, replacing whatever snapshot was there before.
func SaveSnapshot(db *buntdb.DB, s *Store) error {
	return db.Update(func(tx *buntdb.Tx) error {
		if err := tx.DeleteAll(); err != nil && err != buntdb.ErrTxNotWritable {
			return errors.Wrap(err, "store: clear snapshot")
		}
		var saveErr error
		s.Walk(func(obj, inst, res, rInst int32, buf []byte) {
			if saveErr != nil {
				return
			}
			key := snapshotKey(obj, inst, res, rInst)
			if _, _, err := tx.Set(key, base64.StdEncoding.EncodeToString(buf), nil); err != nil {
				saveErr = errors.Wrap(err, "store: write snapshot key "+key)
			}
		})
		return saveErr
	})
}

// LoadSnapshot repopulates s from db, creating each object/instance/
// resource slot it encounters on the way to the leaf value. Objects and
// resources not already known to reg's caller are still created: the
// snapshot is the source of truth for what existed at last save.
func LoadSnapshot(db *buntdb.DB, s *Store, maxInstancesFor func(obj int32) int) error {
	return db.View(func(tx *buntdb.Tx) error {
		return tx.AscendKeys("*", func(key, value string) bool {
			parts := strings.Split(key, ":")
			if len(parts) != 4 {
				return true
			}
			ids := make([]int32, 4)
			for i, p := range parts {
				v, err := strconv.ParseInt(p, 10, 32)
				if err != nil {
					return true
				}
				ids[i] = int32(v)
			}
			obj, inst, res, rInst := ids[0], ids[1], ids[2], ids[3]

			buf, err := base64.StdEncoding.DecodeString(value)
			if err != nil {
				return true
			}
			if !s.Exists(obj, inst, -1, -1) {
				max := 1
				if maxInstancesFor != nil {
					max = maxInstancesFor(obj)
				}
				if _, cerr := s.CreateObjectInstance(obj, inst, max); cerr != nil {
					return true
				}
			}
			if !s.Exists(obj, inst, res, -1) {
				if cerr := s.CreateResource(obj, inst, res); cerr != nil {
					return true
				}
			}
			_, _ = s.SetResourceInstanceValue(obj, inst, res, rInst, buf, 0, len(buf), len(buf))
			return true
		})
	})
}
