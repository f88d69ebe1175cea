package tray

import (
	"log"
	"sync/atomic"

	"github.com/getlantern/systray"

	"region-snip/src/messages"
)

// Tray mirrors the control window's actions in the system tray. Menu clicks
// post messages into the event loop, same as the window buttons; the tray
// never touches loop state itself.
type Tray struct {
	tooltip string
	post    func(messages.Message)
	ready   atomic.Bool
}

// New creates the tray. Call Run from its own goroutine; systray owns the
// thread for the process lifetime.
func New(tooltip string, post func(messages.Message)) *Tray {
	return &Tray{tooltip: tooltip, post: post}
}

// Run starts the systray loop and blocks until Quit.
func (t *Tray) Run() {
	systray.Run(t.onReady, t.onExit)
}

// Quit stops the systray loop.
func (t *Tray) Quit() {
	if t.ready.Load() {
		systray.Quit()
	}
}

// UpdateTooltip changes the tray tooltip (e.g. while a save is in flight).
// Ignored until the tray is ready.
func (t *Tray) UpdateTooltip(tooltip string) {
	if t.ready.Load() {
		systray.SetTooltip(tooltip)
	}
}

func (t *Tray) onReady() {
	systray.SetIcon(IconICO)
	systray.SetTitle("Region Snip")
	systray.SetTooltip(t.tooltip)

	mNew := systray.AddMenuItem("New Region", "Select a new screen region")
	mShot := systray.AddMenuItem("Take Screenshot", "Capture the selected region")
	mReuse := systray.AddMenuItem("Reuse Last Region", "Select using the last captured geometry")
	systray.AddSeparator()
	mQuit := systray.AddMenuItem("Quit", "Quit the application")

	t.ready.Store(true)
	log.Printf("tray: ready")

	go func() {
		for {
			select {
			case <-mNew.ClickedCh:
				t.post(messages.NewRegion{})
			case <-mShot.ClickedCh:
				t.post(messages.TakeScreenshot{})
			case <-mReuse.ClickedCh:
				t.post(messages.ReuseLastRegion{})
			case <-mQuit.ClickedCh:
				t.post(messages.Quit{})
				return
			}
		}
	}()
}

func (t *Tray) onExit() {
	t.ready.Store(false)
}
