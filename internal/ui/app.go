// Package ui provides terminal user interface components.
package ui

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/polyinsider/insiderscan/internal/metrics"
	"github.com/polyinsider/insiderscan/internal/pipeline"
	"github.com/rivo/tview"
)

// Runner triggers an analysis run.
type Runner interface {
	Analyze(ctx context.Context, batchSize int) (pipeline.Report, error)
}

// App is the main TUI application.
type App struct {
	app    *tview.Application
	layout *tview.Flex

	// Views
	marketOverview   *MarketOverviewView
	reasons          *ReasonsView
	suspiciousTrades *SuspiciousTradesView
	statsDashboard   *StatsDashboardView
	topTraders       *TopTradersView

	// Data sources
	runner    Runner
	tracker   *metrics.RunTracker
	batchSize int
	refresh   time.Duration

	// State
	running atomic.Bool
	lastErr atomic.Pointer[string]
	ctx     context.Context
	cancel  context.CancelFunc
}

// NewApp creates a new TUI application.
func NewApp(runner Runner, tracker *metrics.RunTracker, batchSize int, refresh time.Duration) *App {
	ctx, cancel := context.WithCancel(context.Background())
	if refresh <= 0 {
		refresh = 500 * time.Millisecond
	}

	app := &App{
		app:       tview.NewApplication(),
		runner:    runner,
		tracker:   tracker,
		batchSize: batchSize,
		refresh:   refresh,
		ctx:       ctx,
		cancel:    cancel,
	}

	// Initialize views
	app.marketOverview = NewMarketOverviewView()
	app.reasons = NewReasonsView()
	app.suspiciousTrades = NewSuspiciousTradesView()
	app.statsDashboard = NewStatsDashboardView()
	app.topTraders = NewTopTradersView()

	app.suspiciousTrades.OnSelect(app.reasons.Show)

	app.setupLayout()
	app.setupKeyboard()

	return app
}

// setupLayout creates the 5-panel layout.
func (a *App) setupLayout() {
	// Top row: Stats (left) | Reasons for the selected trade (right)
	topRow := tview.NewFlex().
		AddItem(a.statsDashboard.Widget(), 0, 1, false).
		AddItem(a.reasons.Widget(), 0, 2, false)

	// Middle row: Suspicious trades (full width)
	middleRow := a.suspiciousTrades.Widget()

	// Bottom row: Markets scanned (left) | Top traders (right)
	bottomRow := tview.NewFlex().
		AddItem(a.marketOverview.Widget(), 0, 1, false).
		AddItem(a.topTraders.Widget(), 0, 1, false)

	a.layout = tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(topRow, 0, 2, false).
		AddItem(middleRow, 0, 3, true).
		AddItem(bottomRow, 0, 2, false)

	a.app.SetRoot(a.layout, true).SetFocus(a.suspiciousTrades.Widget())
}

// setupKeyboard configures keyboard shortcuts.
func (a *App) setupKeyboard() {
	a.app.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		switch event.Key() {
		case tcell.KeyCtrlC:
			a.Stop()
			return nil
		case tcell.KeyRune:
			switch event.Rune() {
			case 'q', 'Q':
				a.Stop()
				return nil
			case 'r', 'R':
				a.TriggerRun()
				return nil
			}
		}
		return event
	})
}

// Run starts the TUI application (blocking). An analysis run is started
// immediately so the panels have data.
func (a *App) Run() error {
	go a.updateLoop()
	a.TriggerRun()

	if err := a.app.Run(); err != nil {
		return fmt.Errorf("app run failed: %w", err)
	}

	return nil
}

// Stop gracefully stops the application.
func (a *App) Stop() {
	a.cancel()
	a.app.Stop()
}

// TriggerRun starts an analysis run in the background unless one is in flight.
func (a *App) TriggerRun() bool {
	if !a.running.CompareAndSwap(false, true) {
		return false
	}

	go func() {
		defer a.running.Store(false)

		if _, err := a.runner.Analyze(a.ctx, a.batchSize); err != nil {
			msg := err.Error()
			a.lastErr.Store(&msg)
			slog.Warn("tui_run_failed", "error", err)
			return
		}
		a.lastErr.Store(nil)
		a.app.QueueUpdateDraw(a.redraw)
	}()

	return true
}

// updateLoop periodically refreshes views with tracker data.
func (a *App) updateLoop() {
	ticker := time.NewTicker(a.refresh)
	defer ticker.Stop()

	for {
		select {
		case <-a.ctx.Done():
			return
		case <-ticker.C:
			a.app.QueueUpdateDraw(a.redraw)
		}
	}
}

// redraw pushes the latest snapshot into every view. Must run on the UI goroutine.
func (a *App) redraw() {
	snapshot := a.tracker.Snapshot()

	var lastErr string
	if p := a.lastErr.Load(); p != nil {
		lastErr = *p
	}

	a.statsDashboard.Update(snapshot, lastErr)
	a.suspiciousTrades.Update(snapshot)
	a.marketOverview.Update(snapshot)
	a.topTraders.Update(snapshot)
}
