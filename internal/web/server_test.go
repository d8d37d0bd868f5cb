package web

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/tmadden/marvin/internal/reminder"
	"github.com/tmadden/marvin/internal/session"
	"github.com/tmadden/marvin/internal/usage"
)

func testServer(t *testing.T) (*Server, *usage.Ledger, *reminder.Store) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	ledger, err := usage.NewLedger(filepath.Join(t.TempDir(), "usage.db"),
		true, usage.Limits{}, usage.ActionProceed, logger)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { ledger.Close() })

	store, err := reminder.NewStore(filepath.Join(t.TempDir(), "reminders.db"), 0)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })

	sessions := session.NewStore(time.Hour, 4, 0)
	return NewServer(logger, ledger, store, sessions), ledger, store
}

func getJSON(t *testing.T, h http.Handler, url string, wantStatus int) map[string]any {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, url, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != wantStatus {
		t.Fatalf("GET %s: status %d, want %d (body %s)", url, rec.Code, wantStatus, rec.Body)
	}
	var out map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("GET %s: bad JSON: %v", url, err)
	}
	return out
}

func TestHealthz(t *testing.T) {
	s, _, _ := testServer(t)
	out := getJSON(t, s.Routes(), "/healthz", http.StatusOK)
	if out["status"] != "ok" {
		t.Fatalf("body = %v", out)
	}
}

func TestGetUsage(t *testing.T) {
	s, ledger, _ := testServer(t)
	if err := ledger.Record(context.Background(), usage.TierPremium, 120); err != nil {
		t.Fatal(err)
	}

	out := getJSON(t, s.Routes(), "/api/usage", http.StatusOK)
	if out["premium_tokens"] != float64(120) || out["mini_tokens"] != float64(0) {
		t.Fatalf("body = %v", out)
	}
}

func TestGetUsageDisabledLedger(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s := NewServer(logger, usage.Disabled(logger), reminder.Unavailable(), session.NewStore(0, 0, 0))

	out := getJSON(t, s.Routes(), "/api/usage", http.StatusOK)
	if out["enabled"] != false {
		t.Fatalf("body = %v", out)
	}
}

func TestGetReminders(t *testing.T) {
	s, _, store := testServer(t)
	if _, err := store.Add(context.Background(), 7, 70, "stretch", "2027-05-01T08:00:00Z"); err != nil {
		t.Fatal(err)
	}

	out := getJSON(t, s.Routes(), "/api/reminders?user_id=7", http.StatusOK)
	items, ok := out["reminders"].([]any)
	if !ok || len(items) != 1 {
		t.Fatalf("body = %v", out)
	}
	first := items[0].(map[string]any)
	if first["text"] != "stretch" || first["status"] != "pending" {
		t.Fatalf("item = %v", first)
	}

	// Another user's view is empty, not an error.
	out = getJSON(t, s.Routes(), "/api/reminders?user_id=8", http.StatusOK)
	if items := out["reminders"].([]any); len(items) != 0 {
		t.Fatalf("cross-user body = %v", out)
	}
}

func TestGetRemindersRequiresUserID(t *testing.T) {
	s, _, _ := testServer(t)
	getJSON(t, s.Routes(), "/api/reminders", http.StatusBadRequest)
}

func TestGetRemindersUnavailable(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s := NewServer(logger, usage.Disabled(logger), reminder.Unavailable(), session.NewStore(0, 0, 0))
	getJSON(t, s.Routes(), "/api/reminders?user_id=1", http.StatusServiceUnavailable)
}
