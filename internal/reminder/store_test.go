package reminder

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func testStore(t *testing.T, maxPerUser int) *Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "reminders_test.db")
	s, err := NewStore(dbPath, maxPerUser)
	if err != nil {
		t.Fatalf("NewStore(%q): %v", dbPath, err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestValidateDueTime(t *testing.T) {
	valid := []string{
		"2030-01-01T00:00:00Z",
		"2026-12-31T23:59:59Z",
	}
	for _, s := range valid {
		if err := ValidateDueTime(s); err != nil {
			t.Errorf("ValidateDueTime(%q) = %v, want nil", s, err)
		}
	}

	invalid := []string{
		"",
		"2030-01-01 00:00:00",
		"2030-01-01T00:00:00",        // no Z
		"2030-01-01T00:00:00+00:00",  // offset instead of Z
		"2030-01-01T00:00:00.000Z",   // fractional seconds
		"2030-13-01T00:00:00Z",       // bad month
		"2030-01-32T00:00:00Z",       // bad day
		"tomorrow",
	}
	for _, s := range invalid {
		if err := ValidateDueTime(s); !errors.Is(err, ErrInvalidDueTime) {
			t.Errorf("ValidateDueTime(%q) = %v, want ErrInvalidDueTime", s, err)
		}
	}
}

func TestAdd_And_View(t *testing.T) {
	s := testStore(t, 0)
	ctx := context.Background()

	id1, err := s.Add(ctx, 100, 200, "call mom", "2030-01-01T00:00:00Z")
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	id2, err := s.Add(ctx, 100, 200, "water plants", "2030-01-02T00:00:00Z")
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if id2 <= id1 {
		t.Errorf("ids not increasing: %d then %d", id1, id2)
	}

	got, err := s.View(ctx, 100)
	if err != nil {
		t.Fatalf("View: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len(View) = %d, want 2", len(got))
	}
	if got[0].Text != "call mom" || got[1].Text != "water plants" {
		t.Errorf("view order wrong: %q, %q", got[0].Text, got[1].Text)
	}
	if got[0].Status != StatusPending {
		t.Errorf("status = %q, want pending", got[0].Status)
	}

	// Another user sees nothing.
	other, err := s.View(ctx, 999)
	if err != nil {
		t.Fatalf("View other: %v", err)
	}
	if len(other) != 0 {
		t.Errorf("other user sees %d reminders", len(other))
	}
}

func TestAdd_InvalidDueTime_NoRow(t *testing.T) {
	s := testStore(t, 0)
	ctx := context.Background()

	_, err := s.Add(ctx, 100, 200, "x", "next tuesday")
	if !errors.Is(err, ErrInvalidDueTime) {
		t.Fatalf("Add = %v, want ErrInvalidDueTime", err)
	}

	got, _ := s.View(ctx, 100)
	if len(got) != 0 {
		t.Errorf("invalid add persisted %d rows", len(got))
	}
}

func TestAdd_QuotaEnforced(t *testing.T) {
	s := testStore(t, 2)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if _, err := s.Add(ctx, 100, 200, "r", "2030-01-01T00:00:00Z"); err != nil {
			t.Fatalf("Add %d: %v", i, err)
		}
	}

	_, err := s.Add(ctx, 100, 200, "over", "2030-01-01T00:00:00Z")
	var quotaErr *QuotaError
	if !errors.As(err, &quotaErr) {
		t.Fatalf("Add over quota = %v, want *QuotaError", err)
	}
	if quotaErr.Limit != 2 {
		t.Errorf("quota limit = %d, want 2", quotaErr.Limit)
	}

	got, _ := s.View(ctx, 100)
	if len(got) != 2 {
		t.Errorf("rows after quota rejection = %d, want 2", len(got))
	}

	// Quota counts pending rows only: a delivered reminder frees a slot.
	if err := s.SetStatus(ctx, got[0].ID, StatusSent); err != nil {
		t.Fatalf("SetStatus: %v", err)
	}
	if _, err := s.Add(ctx, 100, 200, "fits now", "2030-01-01T00:00:00Z"); err != nil {
		t.Errorf("Add after slot freed = %v, want nil", err)
	}
}

func TestDelete_Ownership(t *testing.T) {
	s := testStore(t, 0)
	ctx := context.Background()

	id, err := s.Add(ctx, 100, 200, "mine", "2030-01-01T00:00:00Z")
	if err != nil {
		t.Fatalf("Add: %v", err)
	}

	if err := s.Delete(ctx, 999, id); !errors.Is(err, ErrNotFound) {
		t.Errorf("Delete by other user = %v, want ErrNotFound", err)
	}
	if got, _ := s.View(ctx, 100); len(got) != 1 {
		t.Fatalf("foreign delete removed the row")
	}

	if err := s.Delete(ctx, 100, id); err != nil {
		t.Errorf("Delete by owner = %v", err)
	}
	if err := s.Delete(ctx, 100, id); !errors.Is(err, ErrNotFound) {
		t.Errorf("second Delete = %v, want ErrNotFound", err)
	}
}

func TestEdit(t *testing.T) {
	s := testStore(t, 0)
	ctx := context.Background()

	id, err := s.Add(ctx, 100, 200, "old text", "2030-01-01T00:00:00Z")
	if err != nil {
		t.Fatalf("Add: %v", err)
	}

	newDue := "2031-06-15T12:00:00Z"
	if err := s.Edit(ctx, 100, id, &newDue, nil); err != nil {
		t.Fatalf("Edit due: %v", err)
	}

	got, err := s.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.DueTime != newDue {
		t.Errorf("DueTime = %q, want %q", got.DueTime, newDue)
	}
	if got.Text != "old text" {
		t.Errorf("Text changed to %q, want unchanged", got.Text)
	}

	newText := "new text"
	if err := s.Edit(ctx, 100, id, nil, &newText); err != nil {
		t.Fatalf("Edit text: %v", err)
	}
	got, _ = s.Get(ctx, id)
	if got.Text != "new text" || got.DueTime != newDue {
		t.Errorf("after text edit: %+v", got)
	}

	// Bad due time is rejected without touching the row.
	bad := "whenever"
	if err := s.Edit(ctx, 100, id, &bad, nil); !errors.Is(err, ErrInvalidDueTime) {
		t.Errorf("Edit bad due = %v, want ErrInvalidDueTime", err)
	}

	// Ownership.
	if err := s.Edit(ctx, 999, id, nil, &newText); !errors.Is(err, ErrNotFound) {
		t.Errorf("Edit by other user = %v, want ErrNotFound", err)
	}

	// Delivered reminders are no longer editable.
	if err := s.SetStatus(ctx, id, StatusSent); err != nil {
		t.Fatalf("SetStatus: %v", err)
	}
	if err := s.Edit(ctx, 100, id, nil, &newText); !errors.Is(err, ErrNotFound) {
		t.Errorf("Edit after sent = %v, want ErrNotFound", err)
	}
}

func TestDue_FiltersByTimeAndStatus(t *testing.T) {
	s := testStore(t, 0)
	ctx := context.Background()

	past, err := s.Add(ctx, 1, 10, "past", "2020-01-01T00:00:00Z")
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if _, err := s.Add(ctx, 1, 10, "future", "2099-01-01T00:00:00Z"); err != nil {
		t.Fatalf("Add: %v", err)
	}

	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	due, err := s.Due(ctx, now)
	if err != nil {
		t.Fatalf("Due: %v", err)
	}
	if len(due) != 1 || due[0].ID != past {
		t.Fatalf("Due = %v, want just the past reminder", due)
	}

	// Once terminal, the row leaves the due set.
	if err := s.SetStatus(ctx, past, StatusFailedUnknown); err != nil {
		t.Fatalf("SetStatus: %v", err)
	}
	due, _ = s.Due(ctx, now)
	if len(due) != 0 {
		t.Errorf("Due after terminal status = %v, want empty", due)
	}
}

func TestSetStatus_TerminalIsMonotone(t *testing.T) {
	s := testStore(t, 0)
	ctx := context.Background()

	id, _ := s.Add(ctx, 1, 10, "x", "2020-01-01T00:00:00Z")
	if err := s.SetStatus(ctx, id, StatusSent); err != nil {
		t.Fatalf("SetStatus: %v", err)
	}

	// A second transition attempt must not overwrite the terminal state.
	if err := s.SetStatus(ctx, id, StatusFailedUnknown); err != nil {
		t.Fatalf("SetStatus again: %v", err)
	}
	got, _ := s.Get(ctx, id)
	if got.Status != StatusSent {
		t.Errorf("status = %q, want sent (terminal states are final)", got.Status)
	}
}

func TestUnavailableStore(t *testing.T) {
	s := Unavailable()
	ctx := context.Background()

	if s.Enabled() {
		t.Error("Unavailable().Enabled() = true")
	}
	if _, err := s.Add(ctx, 1, 1, "x", "2030-01-01T00:00:00Z"); !errors.Is(err, ErrUnavailable) {
		t.Errorf("Add = %v, want ErrUnavailable", err)
	}
	if _, err := s.View(ctx, 1); !errors.Is(err, ErrUnavailable) {
		t.Errorf("View = %v, want ErrUnavailable", err)
	}
	if err := s.Delete(ctx, 1, 1); !errors.Is(err, ErrUnavailable) {
		t.Errorf("Delete = %v, want ErrUnavailable", err)
	}
	if err := s.Edit(ctx, 1, 1, nil, ptr("x")); !errors.Is(err, ErrUnavailable) {
		t.Errorf("Edit = %v, want ErrUnavailable", err)
	}
}

func ptr(s string) *string { return &s }
