package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
)

// Pre-configured color instances for the run summary, matching
// kraklabs-cie/internal/ui's color-usage guidelines (red errors, yellow
// warnings, green success, cyan info, bold headers, dim details).
var (
	colorRed    = color.New(color.FgRed)
	colorYellow = color.New(color.FgYellow)
	colorGreen  = color.New(color.FgGreen)
	colorCyan   = color.New(color.FgCyan)
	colorBold   = color.New(color.Bold)
	colorDim    = color.New(color.Faint)
)

// initColors configures global color output based on --no-color.
func initColors(noColor bool) {
	color.NoColor = noColor
}

func printHeader(msg string) {
	colorBold.Println(msg)
}

func printSuccess(format string, a ...any) {
	colorGreen.Print("✓ ")
	fmt.Printf(format+"\n", a...)
}

func printError(format string, a ...any) {
	colorRed.Fprintf(os.Stderr, "✗ "+format+"\n", a...)
}

func printWarn(format string, a ...any) {
	colorYellow.Print("! ")
	fmt.Printf(format+"\n", a...)
}
