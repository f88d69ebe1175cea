package eventloop

import (
	"context"
	"fmt"
	"image"
	"log"

	"region-snip/src/config"
	"region-snip/src/hotkey"
	"region-snip/src/messages"
	"region-snip/src/overlay"
	"region-snip/src/region"
	"region-snip/src/screenshot"
	"region-snip/src/singleinstance"
	"region-snip/src/worker"
)

// UI is the narrow surface the loop needs from the control window.
type UI interface {
	SetStatus(text string)
	SetLastRegion(r *region.Rect)
	PromptSave(suggested string)
	ShowError(context string, err error)
}

// Notifier receives tooltip updates (the tray, when present).
type Notifier interface {
	UpdateTooltip(tooltip string)
}

// Loop is the single-threaded coordinator. It is the sole owner of the Last
// Region and of the busy/selection flags; every producer (buttons, tray,
// hotkey, save dialog, workers, delegation server) posts messages into it.
type Loop struct {
	selector overlay.Selector
	ui       UI
	tray     Notifier
	pool     *worker.Pool
	srv      singleinstance.Server

	// capture and bounds are swappable for tests; they default to the real
	// screen grab and the current virtual-screen union.
	capture func(region.Rect) (*image.RGBA, error)
	bounds  func() (image.Rectangle, error)

	actions  chan messages.Message
	hotkeyCh chan struct{}

	hotkeyName  string
	nudgeStep   int
	saveName    string
	baseTooltip string

	lastRegion *region.Rect
	selecting  bool
	restart    *overlay.Options // pending re-open after a forced cancel
	pendingImg *image.RGBA      // confirmed pixels awaiting a save target
	resumeRect *region.Rect     // confirmed geometry to restore if the save aborts
	saving     bool

	onQuit func()
}

// New creates the event loop. ui must be non-nil; tray may be nil.
func New(cfg *config.Config, sel overlay.Selector, ui UI, tray Notifier) *Loop {
	l := &Loop{
		selector:    sel,
		ui:          ui,
		tray:        tray,
		pool:        worker.New(1),
		capture:     screenshot.CaptureRegion,
		bounds:      screenshot.VirtualBounds,
		actions:     make(chan messages.Message, 16),
		hotkeyCh:    make(chan struct{}, 4),
		hotkeyName:  cfg.Hotkey,
		nudgeStep:   cfg.NudgeStep,
		saveName:    cfg.DefaultSaveName,
		baseTooltip: fmt.Sprintf("Region Snip - press %s to capture", cfg.Hotkey),
	}
	return l
}

// Post delivers a message into the loop without blocking the caller; a full
// queue drops the message (repeated clicks are idempotent anyway).
func (l *Loop) Post(m messages.Message) {
	select {
	case l.actions <- m:
	default:
		log.Printf("eventloop: dropping %s, queue full", m.Type())
	}
}

// PostHotkey is the hotkey callback target. Coalesces bursts.
func (l *Loop) PostHotkey() {
	select {
	case l.hotkeyCh <- struct{}{}:
	default:
	}
}

// SetServer attaches the single-instance delegation server; its SELECT
// requests behave like hotkey presses.
func (l *Loop) SetServer(srv singleinstance.Server) { l.srv = srv }

// OnQuit registers the shutdown callback invoked for a Quit message.
func (l *Loop) OnQuit(f func()) { l.onQuit = f }

// StartHotkey registers the global hotkey and routes presses into the loop.
// A registration failure disables the hotkey; the in-window buttons keep
// working (degraded, reported once by the caller).
func (l *Loop) StartHotkey(combo string) error {
	if combo == "" {
		return nil
	}
	return hotkey.Listen(combo, l.PostHotkey)
}

// LastRegion returns the most recently confirmed rectangle, or nil.
func (l *Loop) LastRegion() *region.Rect { return l.lastRegion }

// Run processes messages until ctx is cancelled. It blocks.
func (l *Loop) Run(ctx context.Context) error {
	defer l.pool.Close()
	defer func() {
		// Unblock an open overlay on shutdown.
		if l.selector.Active() {
			l.selector.Cancel()
		}
	}()

	if l.srv != nil {
		if err := l.srv.Start(ctx); err != nil {
			return err
		}
		defer l.srv.Close()
		go l.acceptDelegations(ctx)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.hotkeyCh:
			l.handleNewRegion(nil)
		case m := <-l.actions:
			l.dispatch(ctx, m)
		}
	}
}

func (l *Loop) acceptDelegations(ctx context.Context) {
	for {
		conn, err := l.srv.Next(ctx)
		if err != nil {
			return
		}
		_ = conn.Ack()
		_ = conn.Close()
		l.PostHotkey()
	}
}

// dispatch maps each message type to its handler; this table is the only
// place loop state changes are triggered from.
func (l *Loop) dispatch(ctx context.Context, m messages.Message) {
	switch msg := m.(type) {
	case messages.NewRegion:
		l.handleNewRegion(nil)
	case messages.ReuseLastRegion:
		l.handleReuseLast()
	case messages.TakeScreenshot:
		l.handleTakeScreenshot()
	case messages.CloseRegion:
		l.handleCloseRegion()
	case messages.SelectionDone:
		l.handleSelectionDone(ctx, msg)
	case messages.SaveTargetChosen:
		l.handleSaveChosen(msg)
	case messages.WriteDone:
		l.handleWriteDone(msg)
	case messages.Quit:
		if l.onQuit != nil {
			l.onQuit()
		}
	default:
		log.Printf("eventloop: unhandled message %s", m.Type())
	}
}

func (l *Loop) handleNewRegion(initial *region.Rect) {
	if l.saving {
		l.ui.SetStatus("Busy saving, please retry")
		return
	}
	if l.selecting {
		// Reset the open overlay: cancel it and re-open once it reports back.
		l.restart = &overlay.Options{Initial: initial, NudgeStep: l.nudgeStep}
		l.selector.Cancel()
		return
	}
	l.startSelection(overlay.Options{Initial: initial, NudgeStep: l.nudgeStep})
}

func (l *Loop) handleReuseLast() {
	if l.lastRegion == nil {
		l.ui.SetStatus("No previous region to reuse")
		return
	}
	last := *l.lastRegion
	// The display layout may have changed since the capture; stale geometry
	// that no longer touches any screen is refused instead of clamped into
	// an arbitrary corner.
	if vb, err := l.bounds(); err == nil && !last.Bounds().Overlaps(vb) {
		l.ui.SetStatus("Last region is outside the current displays")
		return
	}
	l.handleNewRegion(&last)
}

// handleCloseRegion dismisses an open overlay from the control window, same
// as pressing Escape on the overlay itself.
func (l *Loop) handleCloseRegion() {
	if l.selecting {
		l.selector.Cancel()
		return
	}
	l.ui.SetStatus("No region selection open")
}

func (l *Loop) handleTakeScreenshot() {
	switch {
	case l.selecting:
		// Confirm the positioned rectangle; the overlay reports back via
		// SelectionDone.
		l.selector.Confirm()
	default:
		l.ui.SetStatus("Please select a region first!")
	}
}

func (l *Loop) startSelection(opts overlay.Options) {
	l.selecting = true
	if opts.Initial != nil {
		l.ui.SetStatus(fmt.Sprintf("Region set (%dx%d). Drag or use arrow keys to position, Space to capture",
			opts.Initial.Width, opts.Initial.Height))
	} else {
		l.ui.SetStatus("Draw a region by clicking and dragging")
	}
	go func() {
		r, cancelled, err := l.selector.Select(context.Background(), opts)
		l.Post(messages.SelectionDone{Region: r, Cancelled: cancelled, Err: err})
	}()
}

func (l *Loop) handleSelectionDone(ctx context.Context, msg messages.SelectionDone) {
	l.selecting = false

	if restart := l.restart; restart != nil {
		l.restart = nil
		if ctx.Err() == nil {
			l.startSelection(*restart)
		}
		return
	}

	if msg.Err != nil {
		log.Printf("eventloop: selection failed: %v", msg.Err)
		l.ui.ShowError("Region selection failed", msg.Err)
		l.ui.SetStatus(fmt.Sprintf("Ready - press %s to select a region", l.hotkeyName))
		return
	}
	if msg.Cancelled {
		// Escape discards the session; the Last Region stays untouched.
		l.ui.SetStatus(fmt.Sprintf("Region closed. Press %s to select a new region", l.hotkeyName))
		return
	}

	l.confirmCapture(msg.Region)
}

// confirmCapture grabs the pixels for a confirmed rectangle and opens the
// save dialog. The Last Region updates here, at confirmation time: the user
// confirmed this geometry, so Reuse works even if the write later fails.
// The confirmed geometry is also remembered so the selection survives an
// aborted save; only Escape and a completed write discard it.
func (l *Loop) confirmCapture(r region.Rect) {
	resume := r
	l.resumeRect = &resume

	img, err := l.capture(r)
	if err != nil {
		l.ui.ShowError("Failed to capture screen", err)
		l.resumeSelection()
		return
	}

	last := r
	l.lastRegion = &last
	l.ui.SetLastRegion(l.lastRegion)

	l.pendingImg = img
	l.saving = true
	l.setBusy(true)
	l.ui.PromptSave(l.saveName)
}

// resumeSelection re-opens the overlay pre-positioned with the confirmed
// rectangle after a dialog cancel, dialog error, capture failure or failed
// write, so the user's region is not lost.
func (l *Loop) resumeSelection() {
	r := l.resumeRect
	l.resumeRect = nil
	if r == nil || l.selecting {
		return
	}
	l.startSelection(overlay.Options{Initial: r, NudgeStep: l.nudgeStep})
}

func (l *Loop) handleSaveChosen(msg messages.SaveTargetChosen) {
	img := l.pendingImg
	l.pendingImg = nil

	if msg.Err != nil {
		if msg.Writer != nil {
			_ = msg.Writer.Close()
		}
		l.finishSave()
		l.ui.ShowError("Save dialog failed", msg.Err)
		l.resumeSelection()
		return
	}
	if msg.Writer == nil || img == nil {
		if msg.Writer != nil {
			_ = msg.Writer.Close()
		}
		// Dialog cancelled: a normal abort, nothing written. The overlay
		// re-opens with the confirmed rectangle still in place.
		l.finishSave()
		l.ui.SetStatus("Save cancelled")
		l.resumeSelection()
		return
	}

	submitted := l.pool.Submit(img, msg.Writer, msg.Name, func(name string, err error) {
		l.Post(messages.WriteDone{Name: name, Err: err})
	})
	if !submitted {
		_ = msg.Writer.Close()
		l.finishSave()
		l.ui.SetStatus("Busy saving, please retry")
		l.resumeSelection()
	}
}

func (l *Loop) handleWriteDone(msg messages.WriteDone) {
	l.finishSave()
	if msg.Err != nil {
		l.ui.ShowError("Failed to save screenshot", msg.Err)
		l.resumeSelection()
		return
	}
	l.resumeRect = nil
	l.ui.SetStatus(fmt.Sprintf("Saved: %s", msg.Name))
}

func (l *Loop) finishSave() {
	l.saving = false
	l.setBusy(false)
}

func (l *Loop) setBusy(b bool) {
	if l.tray == nil {
		return
	}
	if b {
		l.tray.UpdateTooltip("Region Snip: saving...")
	} else {
		l.tray.UpdateTooltip(l.baseTooltip)
	}
}
