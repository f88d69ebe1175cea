//go:build !windows

package main

// DPI awareness is a Windows process property; elsewhere the display server
// handles scaling.
func enableDPIAwareness() {}

func logMonitorConfiguration() {}
