package attr

import "testing"

func TestResolveMostSpecificWins(t *testing.T) {
	s := New()
	s.SetAttribute(3, -1, -1, "pmin", 10)
	s.SetAttribute(3, 0, -1, "pmin", 5)
	s.SetAttribute(3, 0, 9, "pmax", 60)

	r := s.Resolve(3, 0, 9)
	if r.PMin == nil || *r.PMin != 5 {
		t.Fatalf("expected instance-level pmin=5 to win, got %v", r.PMin)
	}
	if r.PMax == nil || *r.PMax != 60 {
		t.Fatalf("expected resource-level pmax=60, got %v", r.PMax)
	}
}

func TestResolveInheritsFromObjectWhenUnset(t *testing.T) {
	s := New()
	s.SetAttribute(3, -1, -1, "pmin", 10)
	r := s.Resolve(3, 0, 9)
	if r.PMin == nil || *r.PMin != 10 {
		t.Fatalf("expected inherited object-level pmin=10, got %v", r.PMin)
	}
}

func TestDeletePrefixRemovesDescendants(t *testing.T) {
	s := New()
	s.SetAttribute(3, 0, -1, "pmin", 5)
	s.SetAttribute(3, 0, 9, "pmax", 60)
	s.DeletePrefix(3, 0, -1)

	r := s.Resolve(3, 0, 9)
	if r.PMin != nil || r.PMax != nil {
		t.Fatalf("expected attributes cleared after DeletePrefix, got %+v", r)
	}
}

func TestCancelSetsFlag(t *testing.T) {
	s := New()
	s.Cancel(3, 0, 9)
	r := s.Resolve(3, 0, 9)
	if !r.Cancel {
		t.Fatalf("expected Cancel=true")
	}
}
