package tray

import (
	_ "embed"
)

// Embedded SVG icon data, used for the control window resource.
//
//go:embed icon.svg
var IconSVG []byte

// Embedded ICO icon data for the tray; systray on Windows only renders ICO.
//
//go:embed icon.ico
var IconICO []byte
