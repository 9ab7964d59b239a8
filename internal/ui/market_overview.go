package ui

import (
	"cmp"
	"fmt"
	"slices"

	"github.com/gdamore/tcell/v2"
	"github.com/polyinsider/insiderscan/internal/metrics"
	"github.com/rivo/tview"
)

var marketHeaders = []string{"Market", "Fetched", "Flagged", "Top", "Updated"}

// MarketOverviewView displays the markets scanned by recent runs.
type MarketOverviewView struct {
	table *tview.Table
}

// NewMarketOverviewView creates a new market overview view.
func NewMarketOverviewView() *MarketOverviewView {
	table := tview.NewTable().
		SetBorders(false).
		SetFixed(1, 0)

	table.SetTitle(" Markets Scanned ").SetBorder(true)

	v := &MarketOverviewView{table: table}
	v.setHeader()
	return v
}

// Widget returns the tview primitive.
func (v *MarketOverviewView) Widget() tview.Primitive {
	return v.table
}

// Update refreshes the view with new tracker data.
func (v *MarketOverviewView) Update(snapshot metrics.RunSnapshot) {
	v.table.Clear()
	v.setHeader()

	markets := sortedMarkets(snapshot.Markets)

	limit := min(len(markets), 10)
	for i, market := range markets[:limit] {
		row := i + 1

		fetched := fmt.Sprintf("%d", market.TradesFetched)
		fetchedColor := tcell.ColorWhite
		if market.FetchFailed {
			fetched = "failed"
			fetchedColor = tcell.ColorRed
		}

		top := "-"
		if market.Suspicious > 0 {
			top = fmt.Sprintf("%.1f", market.TopScore)
		}

		question := market.Question
		if question == "" {
			question = market.MarketID
		}

		cells := []*tview.TableCell{
			tview.NewTableCell(truncateText(question, 30)),
			tview.NewTableCell(fetched).SetTextColor(fetchedColor),
			tview.NewTableCell(fmt.Sprintf("%d", market.Suspicious)),
			tview.NewTableCell(top).SetTextColor(scoreColor(market.TopScore)),
			tview.NewTableCell(formatTimeAgo(market.LastUpdate)),
		}
		for col, cell := range cells {
			v.table.SetCell(row, col, cell.SetAlign(tview.AlignLeft).SetExpansion(1))
		}
	}

	v.table.SetTitle(fmt.Sprintf(" Markets Scanned (%d) ", len(snapshot.Markets)))
}

func (v *MarketOverviewView) setHeader() {
	for col, header := range marketHeaders {
		cell := tview.NewTableCell(header).
			SetTextColor(tview.Styles.SecondaryTextColor).
			SetAlign(tview.AlignLeft).
			SetSelectable(false).
			SetExpansion(1)
		v.table.SetCell(0, col, cell)
	}
}

// sortedMarkets orders markets by flagged count, then top score, then trades fetched.
func sortedMarkets(in map[string]*metrics.MarketActivity) []*metrics.MarketActivity {
	markets := make([]*metrics.MarketActivity, 0, len(in))
	for _, activity := range in {
		markets = append(markets, activity)
	}

	slices.SortFunc(markets, func(a, b *metrics.MarketActivity) int {
		if c := cmp.Compare(b.Suspicious, a.Suspicious); c != 0 {
			return c
		}
		if c := cmp.Compare(b.TopScore, a.TopScore); c != 0 {
			return c
		}
		if c := cmp.Compare(b.TradesFetched, a.TradesFetched); c != 0 {
			return c
		}
		return cmp.Compare(a.MarketID, b.MarketID)
	})

	return markets
}
