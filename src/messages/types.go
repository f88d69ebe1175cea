package messages

import (
	"io"

	"region-snip/src/region"
)

// Message is the base interface for events posted into the event loop.
// Every producer (buttons, tray menu, hotkey, dialogs, workers) sends one of
// these; only the loop goroutine reacts to them.
type Message interface {
	Type() string
}

const (
	TypeNewRegion      = "NewRegion"
	TypeTakeScreenshot = "TakeScreenshot"
	TypeReuseLast      = "ReuseLastRegion"
	TypeCloseRegion    = "CloseRegion"
	TypeQuit           = "Quit"
	TypeSelectionDone  = "SelectionDone"
	TypeSaveChosen     = "SaveTargetChosen"
	TypeWriteDone      = "WriteDone"
)

// NewRegion - open (or reset) the selection overlay in drawing state.
type NewRegion struct{}

func (NewRegion) Type() string { return TypeNewRegion }

// TakeScreenshot - confirm the currently positioned rectangle for capture.
type TakeScreenshot struct{}

func (TakeScreenshot) Type() string { return TypeTakeScreenshot }

// ReuseLastRegion - open the overlay pre-positioned with the last captured
// rectangle.
type ReuseLastRegion struct{}

func (ReuseLastRegion) Type() string { return TypeReuseLast }

// CloseRegion - dismiss the open selection overlay without capturing.
type CloseRegion struct{}

func (CloseRegion) Type() string { return TypeCloseRegion }

// Quit - shut the application down.
type Quit struct{}

func (Quit) Type() string { return TypeQuit }

// SelectionDone - posted when the overlay closes. Cancelled selections carry
// no rectangle; errors come from the platform selector.
type SelectionDone struct {
	Region    region.Rect
	Cancelled bool
	Err       error
}

func (SelectionDone) Type() string { return TypeSelectionDone }

// SaveTargetChosen - posted by the save dialog callback. A nil Writer means
// the user cancelled the dialog (a normal abort, not an error).
type SaveTargetChosen struct {
	Writer io.WriteCloser
	Name   string
	Err    error
}

func (SaveTargetChosen) Type() string { return TypeSaveChosen }

// WriteDone - posted by the worker pool when the PNG write finished.
type WriteDone struct {
	Name string
	Err  error
}

func (WriteDone) Type() string { return TypeWriteDone }
