// Package ui provides terminal output for the paper-video CLI.
package ui

import (
	"github.com/fatih/color"
)

var (
	successColor = color.New(color.FgGreen, color.Bold)
	errorColor   = color.New(color.FgRed, color.Bold)
	warningColor = color.New(color.FgYellow)
	infoColor    = color.New(color.FgCyan)
)

// InitUI applies the color setting.
func InitUI(noColor bool) {
	if noColor {
		color.NoColor = true
	}
}
