package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/tmadden/marvin/internal/reminder"
)

// RegisterReminders adds the manage_reminder tool backed by store.
func RegisterReminders(reg *Registry, store *reminder.Store) {
	reg.Register(Tool{
		Name: "manage_reminder",
		Description: "Create, list, delete, or edit the user's reminders. " +
			"Times must be UTC in the exact format YYYY-MM-DDTHH:MM:SSZ.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"action": map[string]any{
					"type": "string",
					"enum": []string{"add", "list", "delete", "edit"},
				},
				"text": map[string]any{
					"type":        "string",
					"description": "Reminder text. Required for add, optional for edit.",
				},
				"due_time_utc": map[string]any{
					"type":        "string",
					"description": "Due time, UTC, format YYYY-MM-DDTHH:MM:SSZ. Required for add, optional for edit.",
				},
				"reminder_id": map[string]any{
					"type":        "integer",
					"description": "Reminder id. Required for delete and edit.",
				},
			},
			"required": []string{"action"},
		},
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			return handleReminder(ctx, store, args)
		},
	})
}

func handleReminder(ctx context.Context, store *reminder.Store, args map[string]any) (string, error) {
	caller, ok := CallerFromContext(ctx)
	if !ok {
		return "", errors.New("no caller identity in context")
	}

	switch action := stringArg(args, "action"); action {
	case "add":
		return addReminder(ctx, store, caller, args)
	case "list":
		return listReminders(ctx, store, caller)
	case "delete":
		id, ok := intArg(args, "reminder_id")
		if !ok {
			return "Missing reminder_id for delete.", nil
		}
		err := store.Delete(ctx, caller.UserID, id)
		switch {
		case errors.Is(err, reminder.ErrNotFound):
			return fmt.Sprintf("Reminder %d was not found.", id), nil
		case err != nil:
			return "", reminderErr(err)
		}
		return fmt.Sprintf("Reminder %d deleted.", id), nil
	case "edit":
		return editReminder(ctx, store, caller, args)
	default:
		return fmt.Sprintf("Unknown action %q; use add, list, delete or edit.", action), nil
	}
}

func addReminder(ctx context.Context, store *reminder.Store, caller Caller, args map[string]any) (string, error) {
	text := strings.TrimSpace(stringArg(args, "text"))
	due := stringArg(args, "due_time_utc")
	if text == "" {
		return "Missing reminder text.", nil
	}
	id, err := store.Add(ctx, caller.UserID, caller.ChatID, text, due)
	var quota *reminder.QuotaError
	switch {
	case errors.Is(err, reminder.ErrInvalidDueTime):
		return fmt.Sprintf("Invalid due time %q; use UTC format YYYY-MM-DDTHH:MM:SSZ, e.g. 2026-09-01T09:00:00Z.", due), nil
	case errors.As(err, &quota):
		return fmt.Sprintf("Reminder limit reached: at most %d pending reminders per user.", quota.Limit), nil
	case err != nil:
		return "", reminderErr(err)
	}
	return fmt.Sprintf("Reminder %d set for %s: %s", id, due, text), nil
}

func listReminders(ctx context.Context, store *reminder.Store, caller Caller) (string, error) {
	rs, err := store.View(ctx, caller.UserID)
	if err != nil {
		return "", reminderErr(err)
	}
	if len(rs) == 0 {
		return "No pending reminders.", nil
	}
	var b strings.Builder
	for _, r := range rs {
		fmt.Fprintf(&b, "#%d due %s: %s\n", r.ID, r.DueTime, r.Text)
	}
	return strings.TrimRight(b.String(), "\n"), nil
}

func editReminder(ctx context.Context, store *reminder.Store, caller Caller, args map[string]any) (string, error) {
	id, ok := intArg(args, "reminder_id")
	if !ok {
		return "Missing reminder_id for edit.", nil
	}
	var newText, newDue *string
	if text := stringArg(args, "text"); text != "" {
		newText = &text
	}
	if due := stringArg(args, "due_time_utc"); due != "" {
		newDue = &due
	}
	if newText == nil && newDue == nil {
		return "Nothing to change; give a new text or due_time_utc.", nil
	}
	err := store.Edit(ctx, caller.UserID, id, newDue, newText)
	switch {
	case errors.Is(err, reminder.ErrInvalidDueTime):
		return fmt.Sprintf("Invalid due time %q; use UTC format YYYY-MM-DDTHH:MM:SSZ.", stringArg(args, "due_time_utc")), nil
	case errors.Is(err, reminder.ErrNotFound):
		return fmt.Sprintf("Reminder %d was not found among your pending reminders.", id), nil
	case err != nil:
		return "", reminderErr(err)
	}
	return fmt.Sprintf("Reminder %d updated.", id), nil
}

func reminderErr(err error) error {
	if errors.Is(err, reminder.ErrUnavailable) {
		return fmt.Errorf("%w: reminder storage is unavailable", ErrUnavailable)
	}
	return err
}

// intArg reads an integer argument; JSON numbers arrive as float64,
// but accept strings and json.Number too since models are sloppy.
func intArg(args map[string]any, key string) (int64, bool) {
	switch v := args[key].(type) {
	case float64:
		return int64(v), true
	case int64:
		return v, true
	case json.Number:
		n, err := v.Int64()
		return n, err == nil
	case string:
		var n int64
		_, err := fmt.Sscanf(v, "%d", &n)
		return n, err == nil
	default:
		return 0, false
	}
}
