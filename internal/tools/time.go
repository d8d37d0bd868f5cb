package tools

import (
	"context"
	"fmt"
	"time"
)

// RegisterCurrentTime adds the current_time tool. now is injectable for
// tests; pass nil to use the wall clock.
func RegisterCurrentTime(reg *Registry, now func() time.Time) {
	if now == nil {
		now = time.Now
	}
	reg.Register(Tool{
		Name:        "current_time",
		Description: "Get the current date and time, optionally in a named IANA timezone.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"timezone": map[string]any{
					"type":        "string",
					"description": "IANA timezone name such as \"Europe/Berlin\". Defaults to UTC.",
				},
			},
		},
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			loc := time.UTC
			if tz := stringArg(args, "timezone"); tz != "" {
				var err error
				loc, err = time.LoadLocation(tz)
				if err != nil {
					return "", fmt.Errorf("unknown timezone %q", tz)
				}
			}
			return now().In(loc).Format("Monday, 2 January 2006 15:04:05 MST"), nil
		},
	})
}
