package main

import (
	"os"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/schollz/progressbar/v3"
)

// newRunSpinner creates an indeterminate progress spinner for the pipeline
// run, whose duration can't be known ahead of traversal. Returns nil (safe
// to call Describe/Finish on a nil *progressbar.ProgressBar — guarded by
// the caller) when quiet is set or stderr is not a TTY, matching
// kraklabs-cie/cmd/cie's progress.go NewSpinner gating.
func newRunSpinner(quiet, noColor bool, description string) *progressbar.ProgressBar {
	if quiet || !isatty.IsTerminal(os.Stderr.Fd()) {
		return nil
	}
	return progressbar.NewOptions(-1,
		progressbar.OptionSetDescription(description),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionClearOnFinish(),
		progressbar.OptionEnableColorCodes(!noColor),
	)
}

// animateSpinner advances bar once per tick until stop is closed. Runs in
// its own goroutine; a nil bar is a no-op so callers don't need to branch.
func animateSpinner(bar *progressbar.ProgressBar, stop <-chan struct{}) {
	if bar == nil {
		<-stop
		return
	}
	ticker := time.NewTicker(65 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			_ = bar.Finish()
			return
		case <-ticker.C:
			_ = bar.Add(1)
		}
	}
}
