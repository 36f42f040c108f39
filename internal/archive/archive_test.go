package archive

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

type doc struct {
	Goal    string `json:"goal" msgpack:"goal"`
	Success bool   `json:"success" msgpack:"success"`
}

func newStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	return s
}

func TestPutGetJSON_RoundTrip(t *testing.T) {
	s := newStore(t)
	in := doc{Goal: "ship it", Success: true}
	if err := s.PutJSON("goals/g1/result.json", in); err != nil {
		t.Fatalf("PutJSON: %v", err)
	}
	var out doc
	if err := s.GetJSON("goals/g1/result.json", &out); err != nil {
		t.Fatalf("GetJSON: %v", err)
	}
	if !reflect.DeepEqual(in, out) {
		t.Fatalf("round trip: %+v != %+v", out, in)
	}
}

func TestPutGetSnapshot_RoundTrip(t *testing.T) {
	s := newStore(t)
	in := doc{Goal: "ship it"}
	if err := s.PutSnapshot("goals/g1/result.msgpack", in); err != nil {
		t.Fatalf("PutSnapshot: %v", err)
	}
	var out doc
	if err := s.GetSnapshot("goals/g1/result.msgpack", &out); err != nil {
		t.Fatalf("GetSnapshot: %v", err)
	}
	if out.Goal != "ship it" {
		t.Fatalf("out=%+v", out)
	}
}

func TestGet_DetectsTampering(t *testing.T) {
	s := newStore(t)
	if err := s.PutJSON("a/b.json", doc{Goal: "x"}); err != nil {
		t.Fatalf("PutJSON: %v", err)
	}
	abs := filepath.Join(s.Root(), "a", "b.json")
	if err := os.WriteFile(abs, []byte(`{"goal":"tampered"}`), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	var out doc
	err := s.GetJSON("a/b.json", &out)
	if !errors.Is(err, ErrCorrupt) {
		t.Fatalf("err=%v want ErrCorrupt", err)
	}
}

func TestList_Glob(t *testing.T) {
	s := newStore(t)
	for _, p := range []string{
		"goals/g1/result.json",
		"goals/g2/result.json",
		"goals/g2/design.json",
		"incidents/i1/result.json",
	} {
		if err := s.PutJSON(p, doc{}); err != nil {
			t.Fatalf("PutJSON %s: %v", p, err)
		}
	}
	got, err := s.List("goals/**/result.json")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	want := []string{"goals/g1/result.json", "goals/g2/result.json"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("List=%v want %v", got, want)
	}
	if _, err := s.List("["); err == nil {
		t.Fatal("expected error for invalid pattern")
	}
}

func TestResolve_RejectsEscapes(t *testing.T) {
	s := newStore(t)
	for _, p := range []string{"", "../evil", "/abs/path", "a/../../evil"} {
		if err := s.PutJSON(p, doc{}); err == nil {
			t.Fatalf("PutJSON(%q): expected error", p)
		}
	}
}
