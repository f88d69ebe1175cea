package region

import (
	"errors"
	"fmt"
	"image"
)

// ErrEmptySelection is returned by Finalize when no usable rectangle exists.
var ErrEmptySelection = errors.New("empty selection")

// Rect is a normalized screen rectangle: Width and Height are never negative.
type Rect struct {
	X      int
	Y      int
	Width  int
	Height int
}

// Bounds returns the rectangle as an image.Rectangle.
func (r Rect) Bounds() image.Rectangle {
	return image.Rect(r.X, r.Y, r.X+r.Width, r.Y+r.Height)
}

// Empty reports whether the rectangle has no area.
func (r Rect) Empty() bool { return r.Width <= 0 || r.Height <= 0 }

// Contains reports whether the point lies inside the rectangle.
func (r Rect) Contains(p image.Point) bool {
	return p.X >= r.X && p.X < r.X+r.Width && p.Y >= r.Y && p.Y < r.Y+r.Height
}

func (r Rect) String() string {
	return fmt.Sprintf("%dx%d@(%d,%d)", r.Width, r.Height, r.X, r.Y)
}

// State identifies the selection session mode.
type State int

const (
	StateIdle State = iota
	StateDrawing
	StateMoving
	StatePositioned
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateDrawing:
		return "drawing"
	case StateMoving:
		return "moving"
	case StatePositioned:
		return "positioned"
	}
	return "unknown"
}

// Direction is a one-step nudge direction for arrow keys.
type Direction int

const (
	Left Direction = iota
	Right
	Up
	Down
)

// Session holds the transient selection state while the overlay is open.
// It is owned by the overlay and must only be mutated from its event thread.
type Session struct {
	screen image.Rectangle // clamp bounds, fixed for the session's lifetime
	step   int             // nudge step in pixels

	state  State
	origin image.Point // drag origin while drawing
	anchor image.Point // last pointer position while moving
	rect   Rect
}

// NewSession creates a session clamped to the given screen bounds.
// A nil initial rectangle starts in idle (nothing drawn yet); a non-nil one
// starts pre-positioned with that geometry, clamped into the screen.
func NewSession(screen image.Rectangle, step int, initial *Rect) *Session {
	if step < 1 {
		step = 1
	}
	s := &Session{screen: screen, step: step, state: StateIdle}
	if initial != nil && !initial.Empty() {
		s.rect = s.clamp(*initial)
		s.state = StatePositioned
	}
	return s
}

// State returns the current session state.
func (s *Session) State() State { return s.state }

// Rect returns the current rectangle. Meaningful in drawing, moving and
// positioned states; zero value while idle.
func (s *Session) Rect() Rect { return s.rect }

// StartDrag begins a new rectangle from p. A pointer-down inside an already
// positioned rectangle means "move" instead and switches to the moving state.
func (s *Session) StartDrag(p image.Point) {
	p = s.clampPoint(p)
	if s.state == StatePositioned && s.rect.Contains(p) {
		s.state = StateMoving
		s.anchor = p
		return
	}
	s.origin = p
	s.rect = Rect{X: p.X, Y: p.Y}
	s.state = StateDrawing
}

// UpdateDrag recomputes the rectangle as the axis-aligned bounding box of
// the drag origin and p, normalizing negative spans. In the moving state it
// translates by the pointer delta instead.
func (s *Session) UpdateDrag(p image.Point) {
	switch s.state {
	case StateDrawing:
		p = s.clampPoint(p)
		s.rect = bbox(s.origin, p)
	case StateMoving:
		s.moveBy(p.X-s.anchor.X, p.Y-s.anchor.Y)
		s.anchor = p
	}
}

// EndDrag finishes a draw or move gesture, returning to positioned.
// An idle session stays idle.
func (s *Session) EndDrag(p image.Point) {
	switch s.state {
	case StateDrawing:
		p = s.clampPoint(p)
		s.rect = bbox(s.origin, p)
		s.state = StatePositioned
	case StateMoving:
		s.moveBy(p.X-s.anchor.X, p.Y-s.anchor.Y)
		s.state = StatePositioned
	}
}

// Nudge translates the positioned rectangle by one step in the given
// direction, clamped at screen edges. Further nudges toward a boundary the
// rectangle already touches are no-ops.
func (s *Session) Nudge(d Direction) {
	if s.state != StatePositioned {
		return
	}
	switch d {
	case Left:
		s.moveBy(-s.step, 0)
	case Right:
		s.moveBy(s.step, 0)
	case Up:
		s.moveBy(0, -s.step)
	case Down:
		s.moveBy(0, s.step)
	}
}

// Finalize returns the rectangle for capture. It fails on an empty or
// never-drawn selection; the session itself is left untouched so the user
// can keep adjusting after a refused capture.
func (s *Session) Finalize() (Rect, error) {
	if s.state == StateIdle || s.rect.Empty() {
		return Rect{}, ErrEmptySelection
	}
	return s.rect, nil
}

func (s *Session) moveBy(dx, dy int) {
	r := s.rect
	r.X += dx
	r.Y += dy
	s.rect = s.clamp(r)
}

// clamp keeps r inside the screen without shrinking it below the screen size.
func (s *Session) clamp(r Rect) Rect {
	if r.Width > s.screen.Dx() {
		r.Width = s.screen.Dx()
	}
	if r.Height > s.screen.Dy() {
		r.Height = s.screen.Dy()
	}
	if r.X < s.screen.Min.X {
		r.X = s.screen.Min.X
	}
	if r.Y < s.screen.Min.Y {
		r.Y = s.screen.Min.Y
	}
	if r.X+r.Width > s.screen.Max.X {
		r.X = s.screen.Max.X - r.Width
	}
	if r.Y+r.Height > s.screen.Max.Y {
		r.Y = s.screen.Max.Y - r.Height
	}
	return r
}

func (s *Session) clampPoint(p image.Point) image.Point {
	if p.X < s.screen.Min.X {
		p.X = s.screen.Min.X
	}
	if p.Y < s.screen.Min.Y {
		p.Y = s.screen.Min.Y
	}
	if p.X > s.screen.Max.X {
		p.X = s.screen.Max.X
	}
	if p.Y > s.screen.Max.Y {
		p.Y = s.screen.Max.Y
	}
	return p
}

func bbox(a, b image.Point) Rect {
	x0, x1 := a.X, b.X
	if x1 < x0 {
		x0, x1 = x1, x0
	}
	y0, y1 := a.Y, b.Y
	if y1 < y0 {
		y0, y1 = y1, y0
	}
	return Rect{X: x0, Y: y0, Width: x1 - x0, Height: y1 - y0}
}
