package tools

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestExecuteUnknownTool(t *testing.T) {
	reg := NewRegistry(discardLogger())
	if _, err := reg.Execute(context.Background(), "nope", "{}"); err == nil {
		t.Fatal("expected error for unknown tool")
	}
}

func TestExecuteMissingRequiredArg(t *testing.T) {
	reg := NewRegistry(discardLogger())
	reg.Register(Tool{
		Name: "echo",
		Parameters: map[string]any{
			"type":     "object",
			"required": []string{"text"},
		},
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			return stringArg(args, "text"), nil
		},
	})

	_, err := reg.Execute(context.Background(), "echo", `{}`)
	if err == nil || !strings.Contains(err.Error(), "text") {
		t.Fatalf("expected missing-argument error naming text, got %v", err)
	}

	out, err := reg.Execute(context.Background(), "echo", `{"text":"hi"}`)
	if err != nil {
		t.Fatal(err)
	}
	if out != "hi" {
		t.Fatalf("out = %q, want hi", out)
	}
}

func TestExecuteBadArgumentsJSON(t *testing.T) {
	reg := NewRegistry(discardLogger())
	reg.Register(Tool{
		Name: "noop",
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			return "", nil
		},
	})
	if _, err := reg.Execute(context.Background(), "noop", `{broken`); err == nil {
		t.Fatal("expected JSON error")
	}
}

func TestListShape(t *testing.T) {
	reg := NewRegistry(discardLogger())
	RegisterCalculate(reg)
	RegisterCurrentTime(reg, nil)

	defs := reg.List()
	if len(defs) != 2 {
		t.Fatalf("len = %d, want 2", len(defs))
	}
	// Sorted by name: calculate before current_time.
	for i, want := range []string{"calculate", "current_time"} {
		if defs[i]["type"] != "function" {
			t.Fatalf("defs[%d] type = %v", i, defs[i]["type"])
		}
		fn, ok := defs[i]["function"].(map[string]any)
		if !ok {
			t.Fatalf("defs[%d] has no function object", i)
		}
		if fn["name"] != want {
			t.Fatalf("defs[%d] name = %v, want %s", i, fn["name"], want)
		}
	}
}

func TestCalculate(t *testing.T) {
	reg := NewRegistry(discardLogger())
	RegisterCalculate(reg)

	cases := []struct {
		expr string
		want string
	}{
		{"2+2*3", "8"},
		{"(2+2)*3", "12"},
		{"10/4", "2.5"},
		{"-3 + 5", "2"},
		{"7 % 3", "1"},
		{"2*(3+(4-1))", "12"},
	}
	for _, tc := range cases {
		out, err := reg.Execute(context.Background(), "calculate",
			`{"expression":"`+tc.expr+`"}`)
		if err != nil {
			t.Fatalf("%s: %v", tc.expr, err)
		}
		if out != tc.want {
			t.Errorf("%s = %s, want %s", tc.expr, out, tc.want)
		}
	}
}

func TestCalculateErrors(t *testing.T) {
	reg := NewRegistry(discardLogger())
	RegisterCalculate(reg)

	for _, expr := range []string{"1/0", "2+", "(1+2", "abc", ""} {
		if _, err := reg.Execute(context.Background(), "calculate",
			`{"expression":"`+expr+`"}`); err == nil {
			t.Errorf("%q: expected error", expr)
		}
	}
}

func TestCurrentTime(t *testing.T) {
	fixed := time.Date(2026, 3, 14, 15, 9, 26, 0, time.UTC)
	reg := NewRegistry(discardLogger())
	RegisterCurrentTime(reg, func() time.Time { return fixed })

	out, err := reg.Execute(context.Background(), "current_time", `{}`)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "14 March 2026") || !strings.Contains(out, "15:09:26") {
		t.Fatalf("unexpected output %q", out)
	}

	if _, err := reg.Execute(context.Background(), "current_time",
		`{"timezone":"Not/AZone"}`); err == nil {
		t.Fatal("expected error for bad timezone")
	}
}

func TestCallerContext(t *testing.T) {
	ctx := WithCaller(context.Background(), Caller{UserID: 7, ChatID: 9})
	c, ok := CallerFromContext(ctx)
	if !ok || c.UserID != 7 || c.ChatID != 9 {
		t.Fatalf("got %+v ok=%v", c, ok)
	}
	if _, ok := CallerFromContext(context.Background()); ok {
		t.Fatal("expected no caller on empty context")
	}
}

func TestIntArg(t *testing.T) {
	if n, ok := intArg(map[string]any{"id": float64(42)}, "id"); !ok || n != 42 {
		t.Fatalf("float64: got %d ok=%v", n, ok)
	}
	if n, ok := intArg(map[string]any{"id": "42"}, "id"); !ok || n != 42 {
		t.Fatalf("string: got %d ok=%v", n, ok)
	}
	if _, ok := intArg(map[string]any{}, "id"); ok {
		t.Fatal("absent key should not parse")
	}
}

func TestExecuteRecoversPanic(t *testing.T) {
	reg := NewRegistry(discardLogger())
	reg.Register(Tool{
		Name: "bad",
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			panic("handler bug")
		},
	})

	_, err := reg.Execute(context.Background(), "bad", `{}`)
	if err == nil || !strings.Contains(err.Error(), "handler bug") {
		t.Fatalf("err = %v, want recovered panic", err)
	}
}

func TestErrUnavailableWrapping(t *testing.T) {
	reg := NewRegistry(discardLogger())
	RegisterTranslate(reg, "", discardLogger())

	_, err := reg.Execute(context.Background(), "translate",
		`{"text":"hello","target":"de"}`)
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("err = %v, want ErrUnavailable", err)
	}
}
