package notification

import (
	"fmt"
	"strings"

	"github.com/pmezard/go-difflib/difflib"
)

// Event identifies what a notification reports.
type Event string

const (
	EventStarted        Event = "started"
	EventRulesUpdated   Event = "rules-updated"
	EventStopped        Event = "stopped"
	EventTeardownFailed Event = "teardown-failed"
	EventApplyFailed    Event = "apply-failed"
)

// Started reports that the daemon is up with count rules installed.
func Started(count int) Notification {
	return Notification{
		Event:   EventStarted,
		Title:   "started",
		Message: fmt.Sprintf("Blocklist daemon started with %d rules installed.", count),
		Level:   LevelInfo,
		Data:    map[string]any{"rules": count},
	}
}

// Stopped reports a clean shutdown.
func Stopped() Notification {
	return Notification{
		Event:   EventStopped,
		Title:   "stopped",
		Message: "Blocklist daemon stopped and its chain was removed.",
		Level:   LevelInfo,
	}
}

// TeardownFailed reports that the chain could not be removed on exit.
func TeardownFailed(err error) Notification {
	return Notification{
		Event:   EventTeardownFailed,
		Title:   "could not remove chain",
		Message: fmt.Sprintf("The blocklist chain could not be removed during shutdown and may still be active.\n\nError: %v", err),
		Level:   LevelCritical,
	}
}

// ApplyFailed reports a failed rule rebuild; the chain may be partial.
func ApplyFailed(updateID string, err error) Notification {
	return Notification{
		Event:   EventApplyFailed,
		Title:   "rule update failed",
		Message: fmt.Sprintf("Rebuilding the blocklist chain failed; it may hold a partial list until the next update.\n\nUpdate: %s\nError: %v", updateID, err),
		Level:   LevelWarning,
		Data:    map[string]any{"update_id": updateID},
	}
}

// RulesUpdated reports a successful rebuild. When previous is non-nil the
// message includes a unified diff against it.
func RulesUpdated(updateID string, entries, previous []string) Notification {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Blocklist rules updated: %d entries.\n", len(entries))
	fmt.Fprintf(&sb, "Update: %s\n", updateID)

	if previous != nil {
		diff := EntryDiff(previous, entries)
		if diff == "" {
			sb.WriteString("\nNo change from the previous list.\n")
		} else {
			sb.WriteString("\nChanges:\n")
			sb.WriteString(diff)
		}
	}

	sb.WriteString("\nCurrent list:\n")
	for _, e := range entries {
		sb.WriteString(e)
		sb.WriteByte('\n')
	}

	return Notification{
		Event:   EventRulesUpdated,
		Title:   fmt.Sprintf("rules updated (%d)", len(entries)),
		Message: sb.String(),
		Level:   LevelInfo,
		Data: map[string]any{
			"update_id": updateID,
			"count":     len(entries),
		},
	}
}

// EntryDiff renders a unified diff between two entry lists. It is empty when
// the lists are equal.
func EntryDiff(previous, current []string) string {
	diff := difflib.UnifiedDiff{
		A:        lines(previous),
		B:        lines(current),
		FromFile: "previous",
		ToFile:   "current",
		Context:  0,
	}
	text, err := difflib.GetUnifiedDiffString(diff)
	if err != nil {
		return ""
	}
	return text
}

func lines(entries []string) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e + "\n"
	}
	return out
}
