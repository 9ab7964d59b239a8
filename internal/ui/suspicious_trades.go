package ui

import (
	"fmt"

	"github.com/gdamore/tcell/v2"
	"github.com/polyinsider/insiderscan/internal/metrics"
	"github.com/polyinsider/insiderscan/internal/store"
	"github.com/rivo/tview"
)

var suspiciousHeaders = []string{"Time", "Market", "Outcome", "Price", "Value", "Score", "Trader"}

// SuspiciousTradesView lists the flagged trades of the latest run, highest score first.
type SuspiciousTradesView struct {
	table    *tview.Table
	analyses []store.Analysis
	onSelect func(store.Analysis)
	maxRows  int
}

// NewSuspiciousTradesView creates a new suspicious trades view.
func NewSuspiciousTradesView() *SuspiciousTradesView {
	table := tview.NewTable().
		SetBorders(false).
		SetFixed(1, 0).
		SetSelectable(true, false)

	table.SetTitle(" Suspicious Trades ").SetBorder(true)

	v := &SuspiciousTradesView{
		table:   table,
		maxRows: 100,
	}
	v.setHeader()

	table.SetSelectionChangedFunc(func(row, _ int) {
		v.selected(row)
	})

	return v
}

// Widget returns the tview primitive.
func (v *SuspiciousTradesView) Widget() tview.Primitive {
	return v.table
}

// OnSelect registers a callback for the highlighted row.
func (v *SuspiciousTradesView) OnSelect(fn func(store.Analysis)) {
	v.onSelect = fn
}

// Update replaces the rows with the latest run's analyses.
func (v *SuspiciousTradesView) Update(snapshot metrics.RunSnapshot) {
	analyses := snapshot.Latest
	if len(analyses) > v.maxRows {
		analyses = analyses[:v.maxRows]
	}
	if sameAnalyses(v.analyses, analyses) {
		return
	}
	v.analyses = analyses

	row, _ := v.table.GetSelection()
	v.table.Clear()
	v.setHeader()

	if len(analyses) == 0 {
		v.table.SetCell(1, 0, tview.NewTableCell("No suspicious trades yet...").
			SetSelectable(false).
			SetExpansion(1))
		v.table.SetTitle(" Suspicious Trades (0) ")
		return
	}

	for i, a := range analyses {
		cells := []string{
			a.Trade.Timestamp.Local().Format("01-02 15:04"),
			truncateText(a.Market.Question, 40),
			a.Trade.Outcome,
			a.Trade.Price.StringFixed(3),
			"$" + a.Trade.Value().StringFixed(0),
			fmt.Sprintf("%.1f", a.SuspicionScore),
			truncateAddress(a.Trade.MakerAddress),
		}

		for col, text := range cells {
			cell := tview.NewTableCell(text).SetAlign(tview.AlignLeft)
			if col == 5 {
				cell.SetTextColor(scoreColor(a.SuspicionScore))
			}
			v.table.SetCell(i+1, col, cell)
		}
	}

	v.table.SetTitle(fmt.Sprintf(" Suspicious Trades (%d) ", len(analyses)))

	if row < 1 || row > len(analyses) {
		row = 1
	}
	v.table.Select(row, 0)
	v.selected(row)
}

func (v *SuspiciousTradesView) setHeader() {
	for col, header := range suspiciousHeaders {
		cell := tview.NewTableCell(header).
			SetTextColor(tview.Styles.SecondaryTextColor).
			SetAlign(tview.AlignLeft).
			SetSelectable(false)
		v.table.SetCell(0, col, cell)
	}
}

func (v *SuspiciousTradesView) selected(row int) {
	if v.onSelect == nil || row < 1 || row > len(v.analyses) {
		return
	}
	v.onSelect(v.analyses[row-1])
}

// sameAnalyses avoids resetting the table (and the selection) on every tick.
func sameAnalyses(a, b []store.Analysis) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Trade.ID != b[i].Trade.ID ||
			!a[i].Trade.Timestamp.Equal(b[i].Trade.Timestamp) ||
			a[i].SuspicionScore != b[i].SuspicionScore {
			return false
		}
	}
	return true
}

// scoreColor maps a score onto the alert palette.
func scoreColor(score float64) tcell.Color {
	switch {
	case score >= store.HighSeverityScore:
		return tcell.ColorRed
	case score >= 70:
		return tcell.ColorOrange
	default:
		return tcell.ColorYellow
	}
}

// truncateText shortens text to n runes.
func truncateText(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}

// truncateAddress truncates a wallet address for display.
func truncateAddress(addr string) string {
	if addr == "" {
		return "unknown"
	}
	if len(addr) <= 12 {
		return addr
	}
	return addr[:6] + "..." + addr[len(addr)-4:]
}
