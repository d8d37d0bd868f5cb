package ratelimit

import (
	"testing"
	"time"
)

func TestAdmit_WindowCap(t *testing.T) {
	l := New(3)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return base }

	for i := 0; i < 3; i++ {
		if !l.Admit() {
			t.Fatalf("Admit() call %d = false, want true", i+1)
		}
	}
	if l.Admit() {
		t.Error("Admit() over cap = true, want false")
	}

	// Rejections must not consume slots once the window resets.
	base = base.Add(61 * time.Second)
	if !l.Admit() {
		t.Error("Admit() after window reset = false, want true")
	}
}

func TestAdmit_Disabled(t *testing.T) {
	l := New(0)
	for i := 0; i < 100; i++ {
		if !l.Admit() {
			t.Fatal("Admit() with max=0 = false, want true")
		}
	}
}

func TestAdmit_ResetMidWindow(t *testing.T) {
	l := New(2)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return base }

	l.Admit()
	l.Admit()
	if l.Admit() {
		t.Error("third Admit() in window = true, want false")
	}

	// 30s later: still the same window.
	base = base.Add(30 * time.Second)
	if l.Admit() {
		t.Error("Admit() mid-window = true, want false")
	}

	// Past the deadline: fresh window.
	base = base.Add(31 * time.Second)
	if !l.Admit() {
		t.Error("Admit() in fresh window = false, want true")
	}
}

func TestAdmit_Concurrent(t *testing.T) {
	l := New(50)

	results := make(chan bool, 200)
	for i := 0; i < 200; i++ {
		go func() { results <- l.Admit() }()
	}

	admitted := 0
	for i := 0; i < 200; i++ {
		if <-results {
			admitted++
		}
	}
	if admitted != 50 {
		t.Errorf("admitted = %d, want exactly 50", admitted)
	}
}
