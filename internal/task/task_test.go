package task

import (
	"strings"
	"testing"
)

func TestParseStatus(t *testing.T) {
	cases := []struct {
		in      string
		want    Status
		wantErr bool
	}{
		{"pending", StatusPending, false},
		{"IN_PROGRESS", StatusInProgress, false},
		{"in-progress", StatusInProgress, false},
		{"done", StatusCompleted, false},
		{"failure", StatusFailed, false},
		{"blocked", StatusBlocked, false},
		{"", "", true},
		{"bogus", "", true},
	}
	for _, tc := range cases {
		got, err := ParseStatus(tc.in)
		if tc.wantErr {
			if err == nil {
				t.Fatalf("ParseStatus(%q): expected error", tc.in)
			}
			continue
		}
		if err != nil {
			t.Fatalf("ParseStatus(%q): %v", tc.in, err)
		}
		if got != tc.want {
			t.Fatalf("ParseStatus(%q)=%q want %q", tc.in, got, tc.want)
		}
	}
}

func TestParsePriority_DefaultsToMedium(t *testing.T) {
	p, err := ParsePriority("")
	if err != nil {
		t.Fatalf("ParsePriority: %v", err)
	}
	if p != PriorityMedium {
		t.Fatalf("priority=%q want medium", p)
	}
}

func TestNew_Defaults(t *testing.T) {
	tk := New(Spec{Title: "build", Description: "build the thing"})
	if tk.ID == "" {
		t.Fatal("expected generated id")
	}
	if tk.Status != StatusPending {
		t.Fatalf("status=%q want pending", tk.Status)
	}
	if tk.MaxAttempts != 3 {
		t.Fatalf("max attempts=%d want 3", tk.MaxAttempts)
	}
	if tk.Priority != PriorityMedium {
		t.Fatalf("priority=%q want medium", tk.Priority)
	}
	if tk.Context == nil {
		t.Fatal("context bag must be non-nil")
	}
}

func TestLifecycle_CompleteIsAbsorbing(t *testing.T) {
	tk := New(Spec{Title: "t"})
	if err := tk.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := tk.Complete(Result{Output: "ok"}); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if !tk.Terminal() {
		t.Fatal("completed task must be terminal")
	}
	if err := tk.Fail("late failure"); err == nil {
		t.Fatal("expected error leaving completed")
	}
	if err := tk.Retry(""); err == nil {
		t.Fatal("expected error retrying completed task")
	}
	if tk.Status != StatusCompleted {
		t.Fatalf("status=%q want completed", tk.Status)
	}
}

func TestLifecycle_RetryUntilExhausted(t *testing.T) {
	tk := New(Spec{Title: "t", MaxAttempts: 3})
	for i := 1; i <= 3; i++ {
		if err := tk.Start(); err != nil {
			t.Fatalf("Start attempt %d: %v", i, err)
		}
		if tk.Attempts != i {
			t.Fatalf("attempts=%d want %d", tk.Attempts, i)
		}
		if err := tk.Fail("boom"); err != nil {
			t.Fatalf("Fail attempt %d: %v", i, err)
		}
		if i < 3 {
			if tk.Terminal() {
				t.Fatalf("task terminal after %d of 3 attempts", i)
			}
			if err := tk.Retry("try harder"); err != nil {
				t.Fatalf("Retry attempt %d: %v", i, err)
			}
		}
	}
	if !tk.Terminal() {
		t.Fatal("task must be terminal after maxAttempts failures")
	}
	if err := tk.Retry(""); err == nil {
		t.Fatal("expected retry to be rejected once attempts are exhausted")
	}
	if err := tk.Start(); err == nil {
		t.Fatal("expected start to be rejected once attempts are exhausted")
	}
	if tk.Attempts != tk.MaxAttempts {
		t.Fatalf("attempts=%d must equal maxAttempts=%d", tk.Attempts, tk.MaxAttempts)
	}
}

func TestRetry_AppendsFeedback(t *testing.T) {
	tk := New(Spec{Title: "t", MaxAttempts: 3})
	_ = tk.Start()
	_ = tk.Fail("first")
	if err := tk.Retry("check the config path"); err != nil {
		t.Fatalf("Retry: %v", err)
	}
	_ = tk.Start()
	_ = tk.Fail("second")
	if err := tk.Retry("look at the logs"); err != nil {
		t.Fatalf("Retry: %v", err)
	}
	fb, ok := tk.Context["feedback"].([]string)
	if !ok {
		t.Fatalf("feedback missing from context: %#v", tk.Context)
	}
	if len(fb) != 2 || fb[0] != "check the config path" || fb[1] != "look at the logs" {
		t.Fatalf("feedback=%v", fb)
	}
}

func TestBlock_RecordsReason(t *testing.T) {
	tk := New(Spec{Title: "t"})
	_ = tk.Start()
	if err := tk.Block("waiting on credentials"); err != nil {
		t.Fatalf("Block: %v", err)
	}
	if tk.Status != StatusBlocked {
		t.Fatalf("status=%q want blocked", tk.Status)
	}
	if !strings.Contains(tk.LastError(), "credentials") {
		t.Fatalf("last error=%q", tk.LastError())
	}
}
