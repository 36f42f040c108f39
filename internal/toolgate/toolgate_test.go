package toolgate

import (
	"reflect"
	"testing"
)

func catalogue() []Tool {
	return []Tool{
		{Name: "read_file"},                                        // no annotation: open to all
		{Name: "run_shell", Roles: []string{"developer", "tester"}}, // allow-list
		{Name: "deploy", Roles: []string{}},                        // explicit disable
		{Name: "git_commit", Roles: []string{"developer"}},
	}
}

func TestFilter(t *testing.T) {
	cases := []struct {
		role string
		want []string
	}{
		{"developer", []string{"read_file", "run_shell", "git_commit"}},
		{"tester", []string{"read_file", "run_shell"}},
		{"reviewer", []string{"read_file"}},
		{"", []string{"read_file"}},
	}
	for _, tc := range cases {
		got := Names(tc.role, catalogue())
		if !reflect.DeepEqual(got, tc.want) {
			t.Fatalf("Names(%q)=%v want %v", tc.role, got, tc.want)
		}
	}
}

func TestFilter_EmptyAnnotationDisables(t *testing.T) {
	for _, role := range []string{"developer", "tester", "admin"} {
		if Allowed(Tool{Name: "deploy", Roles: []string{}}, role) {
			t.Fatalf("empty allow-list must disable tool for %q", role)
		}
	}
}

func TestFilter_Idempotent(t *testing.T) {
	first := Filter("tester", catalogue())
	for i := 0; i < 10; i++ {
		if got := Filter("tester", catalogue()); !reflect.DeepEqual(got, first) {
			t.Fatalf("call %d returned %v, first returned %v", i, got, first)
		}
	}
}

func TestFilter_DoesNotMutateCatalogue(t *testing.T) {
	cat := catalogue()
	snapshot := make([]Tool, len(cat))
	copy(snapshot, cat)
	_ = Filter("developer", cat)
	if !reflect.DeepEqual(cat, snapshot) {
		t.Fatal("catalogue mutated by Filter")
	}
}
