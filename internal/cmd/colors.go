package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/muesli/termenv"
)

// ANSI color codes for terminal output, cleared when colors are off.
var (
	colorRed    string
	colorGreen  string
	colorYellow string
	colorCyan   string
	colorDim    string
	colorBold   string
	colorReset  string
)

func enableColors() {
	colorRed = "\033[0;31m"
	colorGreen = "\033[0;32m"
	colorYellow = "\033[0;33m"
	colorCyan = "\033[0;36m"
	colorDim = "\033[2m"
	colorBold = "\033[1m"
	colorReset = "\033[0m"
}

func disableColors() {
	colorRed = ""
	colorGreen = ""
	colorYellow = ""
	colorCyan = ""
	colorDim = ""
	colorBold = ""
	colorReset = ""
}

// applyColorMode turns colors on or off for out according to mode.
func applyColorMode(mode string, out io.Writer) error {
	switch mode {
	case "always":
		enableColors()
	case "never":
		disableColors()
	case "auto", "":
		if shouldDisableColors(out) {
			disableColors()
		} else {
			enableColors()
		}
	default:
		return fmt.Errorf("invalid color mode %q: must be auto, always, or never", mode)
	}
	return nil
}

func shouldDisableColors(out io.Writer) bool {
	// https://no-color.org/
	if os.Getenv("NO_COLOR") != "" {
		return true
	}
	if os.Getenv("TERM") == "dumb" {
		return true
	}
	f, ok := out.(*os.File)
	if !ok || (!isatty.IsTerminal(f.Fd()) && !isatty.IsCygwinTerminal(f.Fd())) {
		return true
	}
	return termenv.NewOutput(f).ColorProfile() == termenv.Ascii
}

// termWidth returns the width of the terminal behind out, or 0 when it is
// not a terminal. $COLUMNS is used when the ioctl gives nothing.
func termWidth(out io.Writer) int {
	f, ok := out.(*os.File)
	if !ok {
		return 0
	}
	if w := getTermWidthIoctl(f); w > 0 {
		return w
	}
	var w int
	if _, err := fmt.Sscanf(os.Getenv("COLUMNS"), "%d", &w); err == nil && w > 0 {
		return w
	}
	return 0
}
