package gui

import (
	"fmt"
	"log"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/storage"
	"fyne.io/fyne/v2/widget"

	"region-snip/src/messages"
	"region-snip/src/region"
)

// Window is the small always-visible control panel. Its button callbacks run
// on the fyne UI goroutine and only ever post messages into the event loop;
// the loop drives all label updates back through the fyne thread.
type Window struct {
	win    fyne.Window
	last   *widget.Label
	status *widget.Label
	post   func(messages.Message)

	newBtn   *widget.Button
	shotBtn  *widget.Button
	reuseBtn *widget.Button
	closeBtn *widget.Button
}

// New builds the control window. post must be non-blocking (the loop channel
// is buffered); hotkeyCombo is only used for button captions and hints.
func New(a fyne.App, hotkeyCombo string, post func(messages.Message)) *Window {
	w := &Window{
		win:    a.NewWindow("Region Snip"),
		last:   widget.NewLabel("Last region: none"),
		status: widget.NewLabel(fmt.Sprintf("Ready - press %s to select a region", hotkeyCombo)),
		post:   post,
	}

	w.newBtn = widget.NewButton(fmt.Sprintf("New Region (%s)", hotkeyCombo), func() {
		w.post(messages.NewRegion{})
	})
	w.shotBtn = widget.NewButton("Take Screenshot (Space)", func() {
		w.post(messages.TakeScreenshot{})
	})
	w.reuseBtn = widget.NewButton("Reuse Last Region", func() {
		w.post(messages.ReuseLastRegion{})
	})
	w.closeBtn = widget.NewButton("Close Region (Esc)", func() {
		w.post(messages.CloseRegion{})
	})

	w.win.SetContent(container.NewVBox(
		w.last,
		w.newBtn,
		w.shotBtn,
		w.reuseBtn,
		w.closeBtn,
		w.status,
	))
	w.win.Resize(fyne.NewSize(280, 0))
	w.win.SetCloseIntercept(func() {
		w.post(messages.Quit{})
	})

	return w
}

// Show makes the control window visible.
func (w *Window) Show() { w.win.Show() }

// Close destroys the control window.
func (w *Window) Close() { fyne.Do(w.win.Close) }

// SetStatus updates the status line. Safe to call from the event loop.
func (w *Window) SetStatus(text string) {
	fyne.DoAndWait(func() { w.status.SetText(text) })
}

// SetLastRegion updates the last-region dimension readout.
func (w *Window) SetLastRegion(r *region.Rect) {
	text := "Last region: none"
	if r != nil {
		text = fmt.Sprintf("Last region: %dx%d", r.Width, r.Height)
	}
	fyne.DoAndWait(func() { w.last.SetText(text) })
}

// PromptSave opens the native save dialog and posts the outcome back into
// the event loop. A cancelled dialog posts a nil writer; that is a normal
// abort, not an error.
func (w *Window) PromptSave(suggested string) {
	fyne.Do(func() {
		d := dialog.NewFileSave(func(wc fyne.URIWriteCloser, err error) {
			msg := messages.SaveTargetChosen{Err: err}
			if err == nil && wc != nil {
				msg.Writer = wc
				msg.Name = wc.URI().Path()
			}
			w.post(msg)
		}, w.win)
		d.SetFileName(suggested)
		d.SetFilter(storage.NewExtensionFileFilter([]string{".png"}))
		d.Show()
	})
}

// ShowError surfaces a failure to the user without disturbing anything else.
func (w *Window) ShowError(context string, err error) {
	log.Printf("gui: %s: %v", context, err)
	fyne.Do(func() {
		dialog.ShowError(fmt.Errorf("%s: %w", context, err), w.win)
	})
}
