package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/abelbrown/callsight/internal/events"
)

// debugPanelChrome is the number of terminal lines consumed by DebugPanel's
// border (top + bottom = 2) and vertical padding (top + bottom = 2).
// Must be updated if DebugPanel style changes.
const debugPanelChrome = 4

// debugOverlay renders the events panel showing run stats and recent
// events. Pure function with no side effects. Returns empty string if
// ring is nil.
func debugOverlay(ring *events.RingBuffer, width, height int) string {
	if ring == nil {
		return ""
	}

	stats := ring.Stats()
	recent := ring.Last(20)

	var lines []string
	lines = append(lines, DebugHeaderStyle.Render("Run Stats"))
	lines = append(lines, fmt.Sprintf("  Runs:     %d started, %d complete, %d errors",
		stats[events.KindRunStart], stats[events.KindRunComplete], stats[events.KindRunError]))
	lines = append(lines, fmt.Sprintf("  Reviews:  %d complete, %d errors",
		stats[events.KindReviewComplete], stats[events.KindReviewError]))
	lines = append(lines, fmt.Sprintf("  Requests: %d client, %d served",
		stats[events.KindHTTPRequest], stats[events.KindServeRequest]))
	lines = append(lines, fmt.Sprintf("  History:  %d writes, %d errors",
		stats[events.KindHistoryWrite], stats[events.KindStoreError]))
	lines = append(lines, fmt.Sprintf("  Buffer:   %d / %d events", ring.Len(), ring.Cap()))
	lines = append(lines, "")

	lines = append(lines, DebugHeaderStyle.Render("Recent Events"))
	for _, e := range recent {
		age := time.Since(e.Time)
		line := fmt.Sprintf("  %6s  %-16s", formatEventAge(age), string(e.Kind))
		if e.Msg != "" {
			line += "  " + truncateRunes(e.Msg, 40)
		}
		if e.Err != "" {
			line += "  ERR:" + truncateRunes(e.Err, 30)
		}
		if e.RunID != "" {
			rid := e.RunID
			if len(rid) > 8 {
				rid = rid[:8]
			}
			line += fmt.Sprintf("  run:%s", rid)
		}
		lines = append(lines, line)
	}

	maxHeight := height - debugPanelChrome
	if maxHeight < 1 {
		maxHeight = 1
	}
	if len(lines) > maxHeight {
		lines = lines[:maxHeight]
	}

	panelWidth := 76
	if panelWidth > width-4 {
		panelWidth = width - 4
	}
	if panelWidth < 20 {
		panelWidth = 20
	}

	content := strings.Join(lines, "\n")
	return DebugPanel.Width(panelWidth).Render(content)
}

// formatEventAge formats a duration as a compact human string.
// Handles negative durations from clock skew by clamping to "0ms".
func formatEventAge(d time.Duration) string {
	if d < 0 {
		return "0ms"
	}
	switch {
	case d < time.Second:
		return fmt.Sprintf("%dms", d.Milliseconds())
	case d < time.Minute:
		return fmt.Sprintf("%.1fs", d.Seconds())
	default:
		return fmt.Sprintf("%.0fm", d.Minutes())
	}
}

func truncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	if n <= 3 {
		return string(runes[:n])
	}
	return string(runes[:n-3]) + "..."
}

// debugStatusBar renders the status bar for the events overlay.
func debugStatusBar(width int) string {
	keys := StatusBarKey.Render("e") + StatusBarText.Render(":close")
	return StatusBar.Width(width).Render("  [EVENTS]  " + keys)
}
