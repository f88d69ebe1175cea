package eventloop

import (
	"context"
	"errors"
	"image"
	"sync"
	"testing"
	"time"

	"region-snip/src/config"
	"region-snip/src/messages"
	"region-snip/src/overlay"
	"region-snip/src/region"
)

type fakeUI struct {
	mu         sync.Mutex
	statuses   []string
	lastRegion *region.Rect
	prompts    []string
	errors     []error
}

func (u *fakeUI) SetStatus(text string) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.statuses = append(u.statuses, text)
}

func (u *fakeUI) SetLastRegion(r *region.Rect) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.lastRegion = r
}

func (u *fakeUI) PromptSave(suggested string) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.prompts = append(u.prompts, suggested)
}

func (u *fakeUI) ShowError(context string, err error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.errors = append(u.errors, err)
}

func (u *fakeUI) lastStatus() string {
	u.mu.Lock()
	defer u.mu.Unlock()
	if len(u.statuses) == 0 {
		return ""
	}
	return u.statuses[len(u.statuses)-1]
}

func (u *fakeUI) sawStatus(text string) bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	for _, s := range u.statuses {
		if s == text {
			return true
		}
	}
	return false
}

type fakeSelector struct {
	mu        sync.Mutex
	result    region.Rect
	cancelled bool
	err       error
	opts      []overlay.Options
	confirmed int
	cancels   int
}

func (s *fakeSelector) Select(ctx context.Context, opts overlay.Options) (region.Rect, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.opts = append(s.opts, opts)
	return s.result, s.cancelled, s.err
}

func (s *fakeSelector) Confirm() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.confirmed++
}

func (s *fakeSelector) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancels++
}

func (s *fakeSelector) Active() bool { return false }

func (s *fakeSelector) openedWith(t *testing.T) []overlay.Options {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]overlay.Options(nil), s.opts...)
}

type memWriter struct {
	mu     sync.Mutex
	data   []byte
	closed bool
}

func (w *memWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.data = append(w.data, p...)
	return len(p), nil
}

func (w *memWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	return nil
}

func (w *memWriter) isClosed() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closed
}

type failingWriter struct{}

func (w *failingWriter) Write(p []byte) (int, error) { return 0, errors.New("disk full") }
func (w *failingWriter) Close() error                { return nil }

func newTestLoop() (*Loop, *fakeUI, *fakeSelector) {
	ui := &fakeUI{}
	sel := &fakeSelector{}
	cfg := &config.Config{Hotkey: "Ctrl+D", NudgeStep: 1, DefaultSaveName: "region.png"}
	l := New(cfg, sel, ui, nil)
	l.capture = func(r region.Rect) (*image.RGBA, error) {
		return image.NewRGBA(image.Rect(0, 0, r.Width, r.Height)), nil
	}
	l.bounds = func() (image.Rectangle, error) {
		return image.Rect(0, 0, 1920, 1080), nil
	}
	return l, ui, sel
}

// nextMessage drains the loop's queue the way Run would, with a timeout.
func nextMessage(t *testing.T, l *Loop) messages.Message {
	t.Helper()
	select {
	case m := <-l.actions:
		return m
	case <-time.After(5 * time.Second):
		t.Fatal("Timed out waiting for a loop message")
		return nil
	}
}

func TestConfirmedSelectionUpdatesLastRegionAndPrompts(t *testing.T) {
	l, ui, _ := newTestLoop()
	r := region.Rect{X: 100, Y: 100, Width: 200, Height: 150}

	l.selecting = true
	l.handleSelectionDone(context.Background(), messages.SelectionDone{Region: r})

	if l.lastRegion == nil || *l.lastRegion != r {
		t.Fatalf("Expected last region %v, got %v", r, l.lastRegion)
	}
	if ui.lastRegion == nil || *ui.lastRegion != r {
		t.Errorf("Expected UI readout %v, got %v", r, ui.lastRegion)
	}
	if len(ui.prompts) != 1 || ui.prompts[0] != "region.png" {
		t.Errorf("Expected one save prompt with the default name, got %v", ui.prompts)
	}
	if !l.saving {
		t.Error("Expected loop to be busy until the save completes")
	}
}

func TestCancelledSelectionLeavesLastRegionUnchanged(t *testing.T) {
	l, ui, _ := newTestLoop()
	last := region.Rect{X: 1, Y: 2, Width: 30, Height: 40}
	l.lastRegion = &last

	l.selecting = true
	l.handleSelectionDone(context.Background(), messages.SelectionDone{Cancelled: true})

	if l.lastRegion == nil || *l.lastRegion != last {
		t.Errorf("Escape must leave the last region untouched, got %v", l.lastRegion)
	}
	if len(ui.prompts) != 0 {
		t.Error("Cancelled selection must not open a save dialog")
	}
}

func TestDialogCancelKeepsSelectionOpen(t *testing.T) {
	l, ui, sel := newTestLoop()
	r := region.Rect{X: 100, Y: 100, Width: 200, Height: 150}

	l.selecting = true
	l.handleSelectionDone(context.Background(), messages.SelectionDone{Region: r})
	l.handleSaveChosen(messages.SaveTargetChosen{Writer: nil})

	if l.saving {
		t.Error("Expected busy flag cleared after dialog cancel")
	}
	if !ui.sawStatus("Save cancelled") {
		t.Error("Expected cancel status")
	}
	if l.lastRegion == nil || *l.lastRegion != r {
		t.Errorf("Dialog cancel must keep the confirmed geometry, got %v", l.lastRegion)
	}

	// The overlay re-opens pre-positioned so nothing was written and the
	// selection is still there to adjust or re-capture.
	if _, ok := nextMessage(t, l).(messages.SelectionDone); !ok {
		t.Fatal("Expected the re-opened overlay to report back")
	}
	opened := sel.openedWith(t)
	if len(opened) != 1 || opened[0].Initial == nil || *opened[0].Initial != r {
		t.Fatalf("Expected overlay re-opened pre-positioned with %v, got %+v", r, opened)
	}
	if !l.selecting {
		t.Error("Expected the selection to be open again after dialog cancel")
	}
}

func TestSuccessfulSaveReportsPath(t *testing.T) {
	l, ui, sel := newTestLoop()
	defer l.pool.Close()
	r := region.Rect{X: 0, Y: 0, Width: 16, Height: 12}

	l.selecting = true
	l.handleSelectionDone(context.Background(), messages.SelectionDone{Region: r})

	dst := &memWriter{}
	l.handleSaveChosen(messages.SaveTargetChosen{Writer: dst, Name: "/tmp/out.png"})

	m := nextMessage(t, l)
	done, ok := m.(messages.WriteDone)
	if !ok {
		t.Fatalf("Expected WriteDone, got %T", m)
	}
	if done.Err != nil {
		t.Fatalf("Save failed: %v", done.Err)
	}
	l.handleWriteDone(done)

	if got := ui.lastStatus(); got != "Saved: /tmp/out.png" {
		t.Errorf("Expected saved status, got %q", got)
	}
	dst.mu.Lock()
	gotBytes := len(dst.data)
	gotClosed := dst.closed
	dst.mu.Unlock()
	if gotBytes == 0 || !gotClosed {
		t.Error("Expected PNG bytes written and the writer closed")
	}
	// A completed write ends the selection; the overlay must not re-open.
	if opened := sel.openedWith(t); len(opened) != 0 {
		t.Errorf("Expected no overlay re-open after a successful save, got %d", len(opened))
	}
}

func TestWriteFailureKeepsLastRegionAndSelection(t *testing.T) {
	l, ui, sel := newTestLoop()
	defer l.pool.Close()
	r := region.Rect{X: 0, Y: 0, Width: 16, Height: 12}

	l.selecting = true
	l.handleSelectionDone(context.Background(), messages.SelectionDone{Region: r})
	l.handleSaveChosen(messages.SaveTargetChosen{Writer: &failingWriter{}, Name: "/tmp/out.png"})

	m := nextMessage(t, l)
	done := m.(messages.WriteDone)
	if done.Err == nil {
		t.Fatal("Expected write error")
	}
	l.handleWriteDone(done)

	if len(ui.errors) == 0 {
		t.Error("Write failure must be surfaced to the user")
	}
	if l.lastRegion == nil || *l.lastRegion != r {
		t.Errorf("Last region must keep the attempted geometry after a failed write, got %v", l.lastRegion)
	}
	if l.saving {
		t.Error("Expected busy flag cleared after the failed save")
	}

	if _, ok := nextMessage(t, l).(messages.SelectionDone); !ok {
		t.Fatal("Expected the re-opened overlay to report back")
	}
	opened := sel.openedWith(t)
	if len(opened) != 1 || opened[0].Initial == nil || *opened[0].Initial != r {
		t.Fatalf("Expected overlay re-opened pre-positioned with %v after failed write, got %+v", r, opened)
	}
}

func TestDialogErrorClosesWriter(t *testing.T) {
	l, ui, _ := newTestLoop()
	r := region.Rect{X: 0, Y: 0, Width: 8, Height: 8}

	l.selecting = true
	l.handleSelectionDone(context.Background(), messages.SelectionDone{Region: r})

	dst := &memWriter{}
	l.handleSaveChosen(messages.SaveTargetChosen{Writer: dst, Err: errors.New("dialog exploded")})

	if !dst.isClosed() {
		t.Error("A writer delivered alongside a dialog error must be closed")
	}
	if len(ui.errors) == 0 {
		t.Error("Dialog failure must be surfaced to the user")
	}
	if l.saving {
		t.Error("Expected busy flag cleared after a dialog error")
	}
}

func TestStaleSaveTargetClosesWriter(t *testing.T) {
	l, _, _ := newTestLoop()

	// No pending image: the writer must still be released.
	dst := &memWriter{}
	l.handleSaveChosen(messages.SaveTargetChosen{Writer: dst, Name: "/tmp/out.png"})

	if !dst.isClosed() {
		t.Error("A save target with no pending image must be closed, not leaked")
	}
}

func TestTakeScreenshotWithoutSelection(t *testing.T) {
	l, ui, sel := newTestLoop()

	l.handleTakeScreenshot()

	if got := ui.lastStatus(); got != "Please select a region first!" {
		t.Errorf("Expected hint status, got %q", got)
	}
	if sel.confirmed != 0 {
		t.Error("Confirm must not be requested without an open selection")
	}
}

func TestTakeScreenshotConfirmsOpenSelection(t *testing.T) {
	l, _, sel := newTestLoop()

	l.selecting = true
	l.handleTakeScreenshot()

	if sel.confirmed != 1 {
		t.Errorf("Expected one confirm request, got %d", sel.confirmed)
	}
}

func TestCloseRegionCancelsOpenSelection(t *testing.T) {
	l, _, sel := newTestLoop()

	l.selecting = true
	l.handleCloseRegion()

	if sel.cancels != 1 {
		t.Errorf("Expected one cancel request, got %d", sel.cancels)
	}
}

func TestCloseRegionWithoutSelection(t *testing.T) {
	l, ui, sel := newTestLoop()

	l.handleCloseRegion()

	if got := ui.lastStatus(); got != "No region selection open" {
		t.Errorf("Expected hint status, got %q", got)
	}
	if sel.cancels != 0 {
		t.Error("Cancel must not be requested without an open selection")
	}
}

func TestReuseLastRegionStartsPrePositioned(t *testing.T) {
	l, _, sel := newTestLoop()
	last := region.Rect{X: 100, Y: 100, Width: 200, Height: 150}
	l.lastRegion = &last
	sel.result = last

	l.handleReuseLast()

	// The selection goroutine reports back through the loop queue.
	m := nextMessage(t, l)
	done, ok := m.(messages.SelectionDone)
	if !ok {
		t.Fatalf("Expected SelectionDone, got %T", m)
	}
	if done.Region != last {
		t.Errorf("Expected reused geometry %v, got %v", last, done.Region)
	}

	opened := sel.openedWith(t)
	if len(opened) != 1 || opened[0].Initial == nil || *opened[0].Initial != last {
		t.Errorf("Expected selector opened pre-positioned with %v, got %+v", last, opened)
	}
}

func TestReuseWithoutHistory(t *testing.T) {
	l, ui, sel := newTestLoop()

	l.handleReuseLast()

	if got := ui.lastStatus(); got != "No previous region to reuse" {
		t.Errorf("Expected hint status, got %q", got)
	}
	if opened := sel.openedWith(t); len(opened) != 0 {
		t.Error("Selector must not open without a last region")
	}
}

func TestReuseRefusesOffscreenRegion(t *testing.T) {
	l, ui, sel := newTestLoop()
	last := region.Rect{X: 5000, Y: 5000, Width: 200, Height: 150}
	l.lastRegion = &last

	l.handleReuseLast()

	if got := ui.lastStatus(); got != "Last region is outside the current displays" {
		t.Errorf("Expected refusal status, got %q", got)
	}
	if opened := sel.openedWith(t); len(opened) != 0 {
		t.Error("Selector must not open with geometry off every display")
	}
	if l.lastRegion == nil || *l.lastRegion != last {
		t.Error("Refusing a reuse must not clear the stored geometry")
	}
}

func TestNewRegionWhileSavingIsRefused(t *testing.T) {
	l, ui, sel := newTestLoop()
	l.saving = true

	l.handleNewRegion(nil)

	if got := ui.lastStatus(); got != "Busy saving, please retry" {
		t.Errorf("Expected busy status, got %q", got)
	}
	if opened := sel.openedWith(t); len(opened) != 0 {
		t.Error("Selector must not open while a save is in flight")
	}
}

func TestNewRegionWhileSelectingRestartsOverlay(t *testing.T) {
	l, _, sel := newTestLoop()

	l.selecting = true
	l.handleNewRegion(nil)

	if sel.cancels != 1 {
		t.Fatalf("Expected the open overlay to be cancelled, got %d cancels", sel.cancels)
	}
	if l.restart == nil {
		t.Fatal("Expected a pending restart")
	}

	// The cancelled overlay reports back; the loop re-opens it.
	l.handleSelectionDone(context.Background(), messages.SelectionDone{Cancelled: true})
	m := nextMessage(t, l)
	if _, ok := m.(messages.SelectionDone); !ok {
		t.Fatalf("Expected SelectionDone from the restarted overlay, got %T", m)
	}
	if opened := sel.openedWith(t); len(opened) != 1 {
		t.Errorf("Expected the overlay re-opened once, got %d opens", len(opened))
	}
}

func TestCaptureFailureReopensSelection(t *testing.T) {
	l, ui, sel := newTestLoop()
	l.capture = func(region.Rect) (*image.RGBA, error) {
		return nil, errors.New("no display")
	}
	r := region.Rect{X: 0, Y: 0, Width: 5, Height: 5}

	l.selecting = true
	l.handleSelectionDone(context.Background(), messages.SelectionDone{Region: r})

	if len(ui.errors) == 0 {
		t.Error("Capture failure must be surfaced to the user")
	}
	if l.lastRegion != nil {
		t.Errorf("Failed capture must not record a last region, got %v", l.lastRegion)
	}
	if l.saving {
		t.Error("Expected no pending save after a failed capture")
	}

	// The confirmed geometry is not lost; the overlay re-opens with it.
	if _, ok := nextMessage(t, l).(messages.SelectionDone); !ok {
		t.Fatal("Expected the re-opened overlay to report back")
	}
	opened := sel.openedWith(t)
	if len(opened) != 1 || opened[0].Initial == nil || *opened[0].Initial != r {
		t.Fatalf("Expected overlay re-opened pre-positioned with %v, got %+v", r, opened)
	}
}

func TestHotkeyPostCoalesces(t *testing.T) {
	l, _, _ := newTestLoop()
	for i := 0; i < 10; i++ {
		l.PostHotkey()
	}
	if got := len(l.hotkeyCh); got > cap(l.hotkeyCh) {
		t.Fatalf("hotkey channel overflow: %d", got)
	}
	if len(l.hotkeyCh) == 0 {
		t.Fatal("Expected at least one queued hotkey event")
	}
}
