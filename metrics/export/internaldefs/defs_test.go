package internaldefs

import (
	"strings"
	"testing"
)

func TestCounterDefsAreComplete(t *testing.T) {
	seen := make(map[string]bool, len(CounterDefs))
	for _, def := range CounterDefs {
		if !strings.HasPrefix(def.Name, Namespace+"_") || !strings.HasSuffix(def.Name, "_total") {
			t.Fatalf("unexpected counter name %q", def.Name)
		}
		if def.Help == "" {
			t.Fatalf("counter %q has no help text", def.Name)
		}
		if seen[def.Name] {
			t.Fatalf("duplicate counter %q", def.Name)
		}
		seen[def.Name] = true
	}
	if !seen["goidentity_login_success_total"] || !seen["goidentity_refresh_reuse_detected_total"] {
		t.Fatal("expected login and reuse counters")
	}
}

func TestCumulativeBuckets(t *testing.T) {
	got := CumulativeBuckets(NormalizeBuckets([]uint64{1, 0, 2}))
	want := [BucketCount]uint64{1, 1, 3, 3, 3, 3, 3, 3}
	if got != want {
		t.Fatalf("got %v want %v", got, want)
	}
}
