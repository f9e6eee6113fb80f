package store

import (
	"testing"

	"github.com/tidwall/buntdb"
)

func TestSaveAndLoadSnapshotRoundTrips(t *testing.T) {
	db, err := buntdb.Open(":memory:")
	if err != nil {
		t.Fatalf("open buntdb: %v", err)
	}
	defer db.Close()

	s := New()
	s.CreateObjectInstance(3, 0, 1)
	s.CreateResource(3, 0, 0)
	s.SetResourceInstanceValue(3, 0, 0, 0, []byte("ACME"), 0, 4, 4)

	if err := SaveSnapshot(db, s); err != nil {
		t.Fatalf("save snapshot: %v", err)
	}

	restored := New()
	if err := LoadSnapshot(db, restored, func(obj int32) int { return 1 }); err != nil {
		t.Fatalf("load snapshot: %v", err)
	}
	buf, _, err := restored.GetResourceInstanceValue(3, 0, 0, 0)
	if err != nil || string(buf) != "ACME" {
		t.Fatalf("expected restored value ACME, got %q err %v", buf, err)
	}
}
