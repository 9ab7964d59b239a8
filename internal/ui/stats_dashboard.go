package ui

import (
	"fmt"
	"time"

	"github.com/polyinsider/insiderscan/internal/metrics"
	"github.com/rivo/tview"
)

// StatsDashboardView displays run status and suspicion statistics.
type StatsDashboardView struct {
	textView *tview.TextView
}

// NewStatsDashboardView creates a new stats dashboard view.
func NewStatsDashboardView() *StatsDashboardView {
	textView := tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(false)

	textView.SetTitle(" Stats Dashboard ").SetBorder(true)

	return &StatsDashboardView{
		textView: textView,
	}
}

// Widget returns the tview primitive.
func (v *StatsDashboardView) Widget() tview.Primitive {
	return v.textView
}

// Update refreshes the stats display.
func (v *StatsDashboardView) Update(snapshot metrics.RunSnapshot, lastErr string) {
	v.textView.Clear()
	fmt.Fprint(v.textView, statsText(snapshot, lastErr))
}

func statsText(snapshot metrics.RunSnapshot, lastErr string) string {
	status := "[green]idle[-]"
	if snapshot.Running {
		status = "[yellow]analyzing...[-]"
	} else if lastErr != "" {
		status = "[red]last run failed[-]"
	}

	stats := snapshot.Stats

	return fmt.Sprintf(`[yellow]Pipeline[-]
Status: %s
Uptime: %s
Runs: %d (last %s, took %s)
Analyzed: %d last / %d total
Write Failures: %d

[yellow]Suspicion[-]
Suspicious: %d
High Severity: [red]%d[-]
Average Score: %s
Last 24h: %d
Unique Traders: %d

[gray]r: run analysis   q: quit[-]
`,
		status,
		formatDuration(snapshot.Uptime),
		snapshot.Runs,
		formatTimeAgo(snapshot.LastRun),
		snapshot.LastDuration.Round(time.Millisecond),
		snapshot.LastAnalyzed,
		snapshot.TotalAnalyzed,
		snapshot.WriteFailures,
		stats.TotalSuspicious,
		stats.HighSeverity,
		stats.FormattedMeanScore(),
		stats.Recent24h,
		stats.UniqueTraders,
	)
}

// formatDuration formats a duration in human-readable form.
func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%.0fs", d.Seconds())
	}
	if d < time.Hour {
		return fmt.Sprintf("%.0fm", d.Minutes())
	}
	hours := int(d.Hours())
	minutes := int(d.Minutes()) % 60
	return fmt.Sprintf("%dh %dm", hours, minutes)
}

// formatTimeAgo formats a time as "X ago".
func formatTimeAgo(t time.Time) string {
	if t.IsZero() {
		return "never"
	}

	elapsed := time.Since(t)

	if elapsed < time.Minute {
		return fmt.Sprintf("%.0fs ago", elapsed.Seconds())
	}
	if elapsed < time.Hour {
		return fmt.Sprintf("%.0fm ago", elapsed.Minutes())
	}
	if elapsed < 24*time.Hour {
		return fmt.Sprintf("%.0fh ago", elapsed.Hours())
	}
	return fmt.Sprintf("%.0fd ago", elapsed.Hours()/24)
}
