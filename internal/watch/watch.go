// Package watch renders a live terminal dashboard over the engine's
// health and metrics.
package watch

import (
	"fmt"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/adhound/adhound/internal/engine"
	"github.com/adhound/adhound/internal/health"
	"github.com/adhound/adhound/internal/metrics"
	"github.com/adhound/adhound/internal/utils"
)

// DefaultRefresh is how often the table is redrawn from the engine.
const DefaultRefresh = 2 * time.Second

// Dashboard is a full-screen table of all workers, one row per
// (user, source) pair. q or Escape quits.
type Dashboard struct {
	engine  *engine.Engine
	refresh time.Duration
	app     *tview.Application
	table   *tview.Table
}

func New(e *engine.Engine, refresh time.Duration) *Dashboard {
	if refresh <= 0 {
		refresh = DefaultRefresh
	}
	return &Dashboard{
		engine:  e,
		refresh: refresh,
		app:     tview.NewApplication(),
		table:   tview.NewTable().SetBorders(true),
	}
}

// Run blocks until the user quits.
func (d *Dashboard) Run() error {
	d.render()
	d.table.SetFixed(1, 0)
	d.table.SetDoneFunc(func(key tcell.Key) {
		if key == tcell.KeyEscape {
			d.app.Stop()
		}
	})
	d.app.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		if event.Key() == tcell.KeyEscape || event.Rune() == 'q' {
			d.app.Stop()
			return nil
		}
		return event
	})

	done := make(chan struct{})
	defer close(done)
	go func() {
		ticker := time.NewTicker(d.refresh)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				d.app.QueueUpdateDraw(d.render)
			case <-done:
				return
			}
		}
	}()

	return d.app.SetRoot(d.table, true).SetFocus(d.table).Run()
}

var columns = []string{"user", "source", "status", "errors", "grade 1h", "runs 1h", "new 1h", "last error"}

func (d *Dashboard) render() {
	d.table.Clear()
	for c, name := range columns {
		d.table.SetCell(0, c, tview.NewTableCell(name).
			SetTextColor(tcell.ColorBlue).
			SetAlign(tview.AlignCenter))
	}

	workers := d.engine.Workers()
	users := map[string]map[string]engine.SourceHealth{}
	for _, w := range workers {
		if _, ok := users[w.User]; !ok {
			users[w.User] = d.engine.Health(w.User)
		}
	}

	r := 1
	for _, w := range workers {
		hs := users[w.User][w.Source]
		summary := d.engine.Summary(w.Source, metrics.WindowHour)
		cells := []string{
			w.User,
			w.Source,
			string(hs.Status),
			fmt.Sprintf("%d", hs.ErrorCount),
			string(d.engine.Grade(w.Source, metrics.WindowHour)),
			fmt.Sprintf("%d", summary.TotalRuns),
			fmt.Sprintf("%d", summary.TotalListings),
			utils.ShortenString(hs.LastError, 40),
		}
		color := statusColor(hs.Status)
		for c, text := range cells {
			d.table.SetCell(r, c, tview.NewTableCell(text).
				SetTextColor(color).
				SetAlign(tview.AlignCenter))
		}
		r++
	}
}

func statusColor(s health.Status) tcell.Color {
	switch s {
	case health.StatusHealthy:
		return tcell.ColorGreen
	case health.StatusDegraded:
		return tcell.ColorYellow
	case health.StatusUnhealthy:
		return tcell.ColorOrange
	case health.StatusStopped:
		return tcell.ColorRed
	default:
		return tcell.ColorWhite
	}
}
