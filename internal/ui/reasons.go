package ui

import (
	"fmt"

	"github.com/gdamore/tcell/v2"
	"github.com/polyinsider/insiderscan/internal/store"
	"github.com/rivo/tview"
)

// ReasonsView explains why the selected trade was flagged.
type ReasonsView struct {
	list *tview.List
}

// NewReasonsView creates a new reasons view.
func NewReasonsView() *ReasonsView {
	list := tview.NewList().
		ShowSecondaryText(true)

	list.SetTitle(" 🚨 Why Flagged ").SetBorder(true)
	list.SetMainTextColor(tcell.ColorWhite)
	list.AddItem("Select a trade to see its reasons", "", 0, nil)

	return &ReasonsView{list: list}
}

// Widget returns the tview primitive.
func (v *ReasonsView) Widget() tview.Primitive {
	return v.list
}

// Show lists the reasons of one analysis.
func (v *ReasonsView) Show(a store.Analysis) {
	v.list.Clear()

	header, detail := describe(a)
	v.list.AddItem(header, detail, 0, nil)

	for _, reason := range a.Reasons {
		v.list.AddItem("  • "+reason, "", 0, nil)
	}

	v.list.SetTitle(fmt.Sprintf(" 🚨 Why Flagged (%d) ", len(a.Reasons)))
}

// describe formats the headline and context line of an analysis.
func describe(a store.Analysis) (string, string) {
	icon := "🟡"
	if a.SuspicionScore >= store.HighSeverityScore {
		icon = "🔴"
	}

	main := fmt.Sprintf("%s %.1f  %s", icon, a.SuspicionScore, truncateText(a.Market.Question, 60))

	secondary := fmt.Sprintf("Wallet: %s | %s %s @ %s | $%s",
		truncateAddress(a.Trade.MakerAddress),
		a.Trade.Side,
		a.Trade.Outcome,
		a.Trade.Price.StringFixed(3),
		a.Trade.Value().StringFixed(2),
	)
	if !a.Market.EndDate.IsZero() {
		secondary += " | ends " + a.Market.EndDate.Local().Format("01-02 15:04")
	}

	return main, secondary
}
