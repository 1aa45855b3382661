package param

import "testing"

func TestStoreDefaults(t *testing.T) {
	s := NewStore()
	if got := s.Uint64("pts.l1d$.num_sets", 64); got != 64 {
		t.Fatalf("Uint64 default: got %d, want 64", got)
	}
	if got := s.Bool("pts.l1d$.use_prefetch", true); got != true {
		t.Fatalf("Bool default: got %v, want true", got)
	}
	if got := s.String("pts.mc.policy"); got != "" {
		t.Fatalf("String default: got %q, want empty", got)
	}
}

func TestStoreOverride(t *testing.T) {
	s := NewStore()
	s.SetUint64("pts.l1d$.num_sets", 128)
	s.SetBool("pts.l1d$.use_prefetch", false)
	s.SetString("pts.mc.policy", "closed")

	if got := s.Uint64("pts.l1d$.num_sets", 64); got != 128 {
		t.Fatalf("Uint64 override: got %d, want 128", got)
	}
	if got := s.Bool("pts.l1d$.use_prefetch", true); got != false {
		t.Fatalf("Bool override: got %v, want false", got)
	}
	if got := s.String("pts.mc.policy"); got != "closed" {
		t.Fatalf("String override: got %q, want closed", got)
	}
	if !s.HasUint64("pts.l1d$.num_sets") {
		t.Fatalf("HasUint64: expected true")
	}
	if s.HasUint64("pts.l1d$.nonexistent") {
		t.Fatalf("HasUint64: expected false for unset key")
	}
}

func TestPrefixedView(t *testing.T) {
	s := NewStore()
	s.SetUint64("pts.l2$.num_sets", 256)
	p := WithPrefix(s, "pts.l2$.")
	if got := p.Uint64("num_sets", 0); got != 256 {
		t.Fatalf("Prefixed.Uint64: got %d, want 256", got)
	}
	if got := p.Uint64("num_ways", 8); got != 8 {
		t.Fatalf("Prefixed.Uint64 default: got %d, want 8", got)
	}
}
