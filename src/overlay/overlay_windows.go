//go:build windows

package overlay

import (
	"context"
	"fmt"
	"image"
	"log"
	"runtime"
	"sync"
	"syscall"
	"time"
	"unsafe"

	"github.com/lxn/win"

	"region-snip/src/region"
)

// Custom messages posted by Confirm/Cancel so that all session mutation
// stays on the overlay's message-loop thread.
const (
	wmAppConfirm = win.WM_APP + 1
	wmAppCancel  = win.WM_APP + 2
)

const overlayAlpha = 96 // out of 255; keeps the desktop visible underneath

var (
	user32DLL                    = syscall.NewLazyDLL("user32.dll")
	procAllowSetForegroundWindow = user32DLL.NewProc("AllowSetForegroundWindow")
	procSetLayeredWindowAttrs    = user32DLL.NewProc("SetLayeredWindowAttributes")

	gdi32DLL      = syscall.NewLazyDLL("gdi32.dll")
	procCreatePen = gdi32DLL.NewProc("CreatePen")
	procRectangle = gdi32DLL.NewProc("Rectangle")
)

// overlayState is the per-selection window state. Only one selection runs at
// a time (the event loop enforces busy); the window procedure reaches it
// through the package-level current pointer.
type overlayState struct {
	session  *region.Session
	hwnd     win.HWND
	virtualX int32
	virtualY int32
	outcome  chan outcome
	crossCur win.HCURSOR
}

type outcome struct {
	rect      region.Rect
	cancelled bool
}

var (
	currentMu sync.Mutex
	current   *overlayState
)

type windowsSelector struct{}

func newPlatformSelector() Selector { return &windowsSelector{} }

func (s *windowsSelector) Active() bool {
	currentMu.Lock()
	defer currentMu.Unlock()
	return current != nil
}

// Confirm asks the open overlay to finalize its rectangle, as if the user
// pressed Space. No-op when no selection is active.
func (s *windowsSelector) Confirm() { postToOverlay(wmAppConfirm) }

// Cancel closes the open overlay without capturing, as if the user pressed
// Escape. No-op when no selection is active.
func (s *windowsSelector) Cancel() { postToOverlay(wmAppCancel) }

func postToOverlay(msg uint32) {
	currentMu.Lock()
	hwnd := win.HWND(0)
	if current != nil {
		hwnd = current.hwnd
	}
	currentMu.Unlock()
	if hwnd != 0 {
		win.PostMessage(hwnd, msg, 0, 0)
	}
}

// Select opens a full-virtual-screen translucent overlay and pumps its
// message loop until the selection is confirmed or cancelled. It must not be
// called while another selection is active.
func (s *windowsSelector) Select(ctx context.Context, opts Options) (region.Rect, bool, error) {
	// The window and its message pump must live on one OS thread.
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	vx := win.GetSystemMetrics(win.SM_XVIRTUALSCREEN)
	vy := win.GetSystemMetrics(win.SM_YVIRTUALSCREEN)
	vw := win.GetSystemMetrics(win.SM_CXVIRTUALSCREEN)
	vh := win.GetSystemMetrics(win.SM_CYVIRTUALSCREEN)
	log.Printf("overlay: virtual screen x=%d y=%d w=%d h=%d", vx, vy, vw, vh)

	// The session works in overlay-local coordinates; the virtual-screen
	// offset is added back when the rectangle is reported.
	var initial *region.Rect
	if opts.Initial != nil {
		local := *opts.Initial
		local.X -= int(vx)
		local.Y -= int(vy)
		initial = &local
	}
	st := &overlayState{
		session:  region.NewSession(image.Rect(0, 0, int(vw), int(vh)), opts.NudgeStep, initial),
		virtualX: vx,
		virtualY: vy,
		outcome:  make(chan outcome, 1),
		crossCur: win.LoadCursor(0, win.MAKEINTRESOURCE(win.IDC_CROSS)),
	}

	currentMu.Lock()
	if current != nil {
		currentMu.Unlock()
		return region.Rect{}, false, fmt.Errorf("selection already in progress")
	}
	current = st
	currentMu.Unlock()
	defer func() {
		currentMu.Lock()
		current = nil
		currentMu.Unlock()
	}()

	classNameStr := fmt.Sprintf("RegionSnipOverlay_%d", time.Now().UnixNano())
	className := syscall.StringToUTF16Ptr(classNameStr)
	wndClass := win.WNDCLASSEX{
		CbSize:        uint32(unsafe.Sizeof(win.WNDCLASSEX{})),
		Style:         win.CS_HREDRAW | win.CS_VREDRAW,
		LpfnWndProc:   syscall.NewCallback(overlayWndProc),
		HInstance:     win.GetModuleHandle(nil),
		HCursor:       st.crossCur,
		HbrBackground: win.HBRUSH(win.GetStockObject(win.BLACK_BRUSH)),
		LpszClassName: className,
	}
	if win.RegisterClassEx(&wndClass) == 0 {
		return region.Rect{}, false, fmt.Errorf("failed to register overlay window class")
	}
	defer win.UnregisterClass(className)

	st.hwnd = win.CreateWindowEx(
		win.WS_EX_TOPMOST|win.WS_EX_LAYERED,
		className,
		syscall.StringToUTF16Ptr("Select Region - drag to draw, arrows to nudge, SPACE captures, ESC cancels"),
		win.WS_POPUP|win.WS_VISIBLE,
		vx, vy, vw, vh,
		0, 0, win.GetModuleHandle(nil), nil,
	)
	if st.hwnd == 0 {
		return region.Rect{}, false, fmt.Errorf("failed to create overlay window")
	}

	// LWA_ALPHA = 0x2: whole-window translucency, like the original overlay.
	procSetLayeredWindowAttrs.Call(uintptr(st.hwnd), 0, uintptr(overlayAlpha), 0x2)

	win.ShowWindow(st.hwnd, win.SW_SHOW)
	procAllowSetForegroundWindow.Call(uintptr(syscall.Getpid()))
	win.SetForegroundWindow(st.hwnd)
	win.BringWindowToTop(st.hwnd)
	win.SetFocus(st.hwnd)
	win.UpdateWindow(st.hwnd)

	var msg win.MSG
	for {
		// Let an external ctx cancellation tear the overlay down too.
		select {
		case <-ctx.Done():
			win.DestroyWindow(st.hwnd)
			return region.Rect{}, false, ctx.Err()
		case out := <-st.outcome:
			win.DestroyWindow(st.hwnd)
			if out.cancelled {
				return region.Rect{}, true, nil
			}
			out.rect.X += int(vx)
			out.rect.Y += int(vy)
			log.Printf("overlay: selection completed: %v", out.rect)
			return out.rect, false, nil
		default:
		}

		ret := win.GetMessage(&msg, 0, 0, 0)
		if ret == 0 || ret == -1 { // WM_QUIT or error
			win.DestroyWindow(st.hwnd)
			return region.Rect{}, true, nil
		}
		win.TranslateMessage(&msg)
		win.DispatchMessage(&msg)
	}
}

func overlayWndProc(hwnd win.HWND, msg uint32, wParam, lParam uintptr) uintptr {
	currentMu.Lock()
	st := current
	currentMu.Unlock()
	if st == nil {
		return win.DefWindowProc(hwnd, msg, wParam, lParam)
	}

	switch msg {
	case win.WM_LBUTTONDOWN:
		p := pointFromLParam(lParam)
		win.SetCapture(hwnd)
		st.session.StartDrag(p)
		log.Printf("overlay: pointer down at %v, state=%v", p, st.session.State())
		repaint(hwnd)
		return 0

	case win.WM_MOUSEMOVE:
		state := st.session.State()
		if state == region.StateDrawing || state == region.StateMoving {
			st.session.UpdateDrag(pointFromLParam(lParam))
			repaint(hwnd)
		}
		return 0

	case win.WM_LBUTTONUP:
		state := st.session.State()
		if state == region.StateDrawing || state == region.StateMoving {
			win.ReleaseCapture()
			st.session.EndDrag(pointFromLParam(lParam))
			log.Printf("overlay: pointer up, rect=%v", st.session.Rect())
			repaint(hwnd)
		}
		return 0

	case win.WM_KEYDOWN:
		switch wParam {
		case win.VK_ESCAPE:
			st.finish(outcome{cancelled: true})
		case win.VK_SPACE:
			st.confirm()
		case win.VK_LEFT:
			st.session.Nudge(region.Left)
			repaint(hwnd)
		case win.VK_RIGHT:
			st.session.Nudge(region.Right)
			repaint(hwnd)
		case win.VK_UP:
			st.session.Nudge(region.Up)
			repaint(hwnd)
		case win.VK_DOWN:
			st.session.Nudge(region.Down)
			repaint(hwnd)
		}
		return 0

	case wmAppConfirm:
		st.confirm()
		return 0

	case wmAppCancel:
		st.finish(outcome{cancelled: true})
		return 0

	case win.WM_PAINT:
		var ps win.PAINTSTRUCT
		hdc := win.BeginPaint(hwnd, &ps)
		drawHints(hdc, st.session.State())
		if st.session.State() != region.StateIdle {
			drawRegion(hdc, st.session.Rect())
		}
		win.EndPaint(hwnd, &ps)
		return 0

	case win.WM_SETCURSOR:
		if st.crossCur != 0 {
			win.SetCursor(st.crossCur)
		}
		return 1

	case win.WM_NCHITTEST:
		// Force all points to be client area so the window receives mouse events.
		return uintptr(win.HTCLIENT)

	case win.WM_DESTROY:
		return 0
	}

	return win.DefWindowProc(hwnd, msg, wParam, lParam)
}

func (st *overlayState) finish(out outcome) {
	select {
	case st.outcome <- out:
	default:
	}
	// Wake the message loop so Select notices the outcome.
	win.PostMessage(st.hwnd, win.WM_NULL, 0, 0)
}

// confirm finalizes the session; an empty selection is refused silently and
// the overlay stays open for further adjustment.
func (st *overlayState) confirm() {
	r, err := st.session.Finalize()
	if err != nil {
		log.Printf("overlay: capture refused: %v", err)
		return
	}
	st.finish(outcome{rect: r})
}

func pointFromLParam(lParam uintptr) image.Point {
	x := int(int16(win.LOWORD(uint32(lParam))))
	y := int(int16(win.HIWORD(uint32(lParam))))
	return image.Pt(x, y)
}

func repaint(hwnd win.HWND) {
	win.InvalidateRect(hwnd, nil, true)
	win.UpdateWindow(hwnd)
}

func drawRegion(hdc win.HDC, r region.Rect) {
	// PS_SOLID pen, width 3, blue (COLORREF is 0x00BBGGRR).
	pen, _, _ := procCreatePen.Call(0, 3, 0xFF4020)
	oldPen := win.SelectObject(hdc, win.HGDIOBJ(pen))
	oldBrush := win.SelectObject(hdc, win.GetStockObject(win.NULL_BRUSH))

	procRectangle.Call(uintptr(hdc),
		uintptr(int32(r.X)), uintptr(int32(r.Y)),
		uintptr(int32(r.X+r.Width)), uintptr(int32(r.Y+r.Height)))

	win.SelectObject(hdc, oldPen)
	win.SelectObject(hdc, oldBrush)
	win.DeleteObject(win.HGDIOBJ(pen))

	// Dimension label above the rectangle, like the dimension readout in the
	// control window.
	label := fmt.Sprintf("%dx%d", r.Width, r.Height)
	win.SetBkMode(hdc, win.TRANSPARENT)
	win.SetTextColor(hdc, win.COLORREF(0x00FFFF))
	y := int32(r.Y) - 20
	if y < 0 {
		y = int32(r.Y + r.Height + 4)
	}
	win.TextOut(hdc, int32(r.X+r.Width/2)-20, y, syscall.StringToUTF16Ptr(label), int32(len(label)))
}

func drawHints(hdc win.HDC, state region.State) {
	line1 := "ESC cancel   SPACE capture"
	line2 := "Click and drag to draw a region"
	if state == region.StatePositioned || state == region.StateMoving {
		line2 = "Drag inside the region to move it; arrow keys nudge by pixels"
	}

	win.SetBkMode(hdc, win.TRANSPARENT)
	win.SetTextColor(hdc, win.COLORREF(0x00FFFF))
	win.TextOut(hdc, 16, 16, syscall.StringToUTF16Ptr(line1), int32(len(line1)))
	win.TextOut(hdc, 16, 38, syscall.StringToUTF16Ptr(line2), int32(len(line2)))
}
