package device

import (
	"errors"
	"testing"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	r := NewRegistry()
	r.SetCoordinator(NewConnection(CoordinatorName, "SERVERD", nil))
	for _, c := range []*Connection{
		NewConnection("ccd0", "CCD", nil),
		NewConnection("dome", "DOME", nil),
		NewConnection("ccd1", "CCD", nil),
	} {
		if err := r.Add(c); err != nil {
			t.Fatalf("Add(%s) error = %v", c.Name(), err)
		}
	}
	return r
}

func names(conns []*Connection) []string {
	out := make([]string, len(conns))
	for i, c := range conns {
		out[i] = c.Name()
	}
	return out
}

func equal(a, b []string) bool {
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

func TestRegistry_Lookup(t *testing.T) {
	r := newTestRegistry(t)

	if r.Count() != 3 {
		t.Errorf("Count() = %d, want 3", r.Count())
	}
	if got := names(r.Devices()); !equal(got, []string{"ccd0", "dome", "ccd1"}) {
		t.Errorf("Devices() = %v", got)
	}
	if got := names(r.All()); !equal(got, []string{"centrald", "ccd0", "dome", "ccd1"}) {
		t.Errorf("All() = %v", got)
	}
	if got := names(r.ByType("CCD")); !equal(got, []string{"ccd0", "ccd1"}) {
		t.Errorf("ByType(CCD) = %v", got)
	}
	if got := r.ByType("MOUNT"); len(got) != 0 {
		t.Errorf("ByType(MOUNT) = %v, want empty", names(got))
	}

	c, err := r.Get("dome")
	if err != nil || c.Type() != "DOME" {
		t.Errorf("Get(dome) = %v, %v", c, err)
	}
	c, err = r.Get(CoordinatorName)
	if err != nil || c.Type() != "SERVERD" {
		t.Errorf("Get(centrald) = %v, %v", c, err)
	}
	if _, err := r.Get("nope"); !errors.Is(err, ErrConnectionNotFound) {
		t.Errorf("Get(nope) error = %v, want ErrConnectionNotFound", err)
	}
}

func TestRegistry_AddDuplicate(t *testing.T) {
	r := newTestRegistry(t)

	if err := r.Add(NewConnection("ccd0", "CCD", nil)); !errors.Is(err, ErrConnectionExists) {
		t.Errorf("Add(duplicate) error = %v, want ErrConnectionExists", err)
	}
	if err := r.Add(NewConnection(CoordinatorName, "CCD", nil)); !errors.Is(err, ErrConnectionExists) {
		t.Errorf("Add(coordinator name) error = %v, want ErrConnectionExists", err)
	}
	if err := r.Add(NewConnection("", "CCD", nil)); err == nil {
		t.Error("Add(empty name) expected error")
	}
}

func TestRegistry_Remove(t *testing.T) {
	r := newTestRegistry(t)

	c, err := r.Remove("dome")
	if err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	if !c.Closed() {
		t.Error("removed connection should be closed")
	}
	if got := names(r.Devices()); !equal(got, []string{"ccd0", "ccd1"}) {
		t.Errorf("Devices() after remove = %v", got)
	}
	if _, err := r.Remove("dome"); !errors.Is(err, ErrConnectionNotFound) {
		t.Errorf("second Remove() error = %v, want ErrConnectionNotFound", err)
	}

	// A device may reconnect under the same name.
	if err := r.Add(NewConnection("dome", "DOME", nil)); err != nil {
		t.Errorf("re-Add() error = %v", err)
	}
}

func TestRegistry_Coordinator(t *testing.T) {
	r := NewRegistry()
	if _, err := r.Coordinator(); !errors.Is(err, ErrConnectionNotFound) {
		t.Errorf("Coordinator() error = %v, want ErrConnectionNotFound", err)
	}

	first := NewConnection(CoordinatorName, "SERVERD", nil)
	r.SetCoordinator(first)
	r.SetCoordinator(NewConnection(CoordinatorName, "SERVERD", nil))
	if !first.Closed() {
		t.Error("replaced coordinator should be closed")
	}

	if _, err := r.Remove(CoordinatorName); err != nil {
		t.Fatalf("Remove(coordinator) error = %v", err)
	}
	if _, err := r.Coordinator(); !errors.Is(err, ErrConnectionNotFound) {
		t.Errorf("Coordinator() after remove error = %v", err)
	}
	if r.Count() != 0 {
		t.Errorf("Count() = %d, want 0", r.Count())
	}
}
