package ui

import (
	"fmt"

	"github.com/polyinsider/insiderscan/internal/metrics"
	"github.com/rivo/tview"
)

var traderHeaders = []string{"Trader", "Max Score", "Trades", "Markets"}

// TopTradersView ranks the wallets behind the latest flagged trades.
type TopTradersView struct {
	table *tview.Table
}

// NewTopTradersView creates a new top traders view.
func NewTopTradersView() *TopTradersView {
	table := tview.NewTable().
		SetBorders(false).
		SetFixed(1, 0)

	table.SetTitle(" Top Traders ").SetBorder(true)

	v := &TopTradersView{table: table}
	v.setHeader()
	return v
}

// Widget returns the tview primitive.
func (v *TopTradersView) Widget() tview.Primitive {
	return v.table
}

// Update refreshes the top traders display.
func (v *TopTradersView) Update(snapshot metrics.RunSnapshot) {
	v.table.Clear()
	v.setHeader()

	traders := snapshot.TopTraders
	limit := min(len(traders), 10)

	if limit == 0 {
		cell := tview.NewTableCell("No data yet...").
			SetAlign(tview.AlignCenter).
			SetExpansion(1)
		v.table.SetCell(1, 0, cell)
		return
	}

	for i, trader := range traders[:limit] {
		row := i + 1

		v.table.SetCell(row, 0, tview.NewTableCell(truncateAddress(trader.Address)).
			SetAlign(tview.AlignLeft))

		v.table.SetCell(row, 1, tview.NewTableCell(fmt.Sprintf("%.1f", trader.MaxScore)).
			SetAlign(tview.AlignRight).
			SetTextColor(scoreColor(trader.MaxScore)))

		v.table.SetCell(row, 2, tview.NewTableCell(fmt.Sprintf("%d", trader.Trades)).
			SetAlign(tview.AlignRight))

		v.table.SetCell(row, 3, tview.NewTableCell(fmt.Sprintf("%d", trader.Markets)).
			SetAlign(tview.AlignRight))
	}
}

func (v *TopTradersView) setHeader() {
	for col, header := range traderHeaders {
		cell := tview.NewTableCell(header).
			SetTextColor(tview.Styles.SecondaryTextColor).
			SetAlign(tview.AlignLeft).
			SetSelectable(false)
		v.table.SetCell(0, col, cell)
	}
}
