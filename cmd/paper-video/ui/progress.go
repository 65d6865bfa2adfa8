package ui

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/briandowns/spinner"
	"github.com/schollz/progressbar/v3"
)

// progressSteps is the resolution of the fraction-based bar
const progressSteps = 1000

// ProgressSink renders pipeline progress. A spinner runs until the first
// report arrives, then a progress bar takes over.
type ProgressSink struct {
	mu      sync.Mutex
	spinner *Spinner
	bar     *progressbar.ProgressBar
}

// NewProgressSink starts the spinner with the given message.
func NewProgressSink(message string) *ProgressSink {
	s := NewSpinner(message)
	s.Start()
	return &ProgressSink{spinner: s}
}

// Report implements domain.ProgressSink.
func (p *ProgressSink) Report(fraction float64, message string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.bar == nil {
		if p.spinner != nil {
			p.spinner.Stop()
			p.spinner = nil
		}
		p.bar = newProgressBar(progressSteps, message)
	}
	p.bar.Describe(message)
	_ = p.bar.Set(int(fraction * progressSteps))
}

// Finish stops the spinner or completes the bar.
func (p *ProgressSink) Finish() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.spinner != nil {
		p.spinner.Stop()
		p.spinner = nil
	}
	if p.bar != nil {
		_ = p.bar.Exit()
		fmt.Fprintln(os.Stderr)
	}
}

func newProgressBar(total int, description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(
		total,
		progressbar.OptionSetWidth(40),
		progressbar.OptionSetDescription(description),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "█",
			SaucerHead:    "█",
			SaucerPadding: "░",
			BarStart:      "│",
			BarEnd:        "│",
		}),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetPredictTime(false),
		progressbar.OptionSetRenderBlankState(true),
	)
}

// Spinner wraps a spinner instance for indeterminate progress display.
type Spinner struct {
	spinner *spinner.Spinner
}

// NewSpinner creates a new spinner with the given message.
func NewSpinner(message string) *Spinner {
	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
	s.Suffix = " " + message
	s.Writer = os.Stderr
	return &Spinner{spinner: s}
}

// Start starts the spinner animation.
func (s *Spinner) Start() {
	s.spinner.Start()
}

// Stop stops the spinner animation and clears the line.
func (s *Spinner) Stop() {
	s.spinner.Stop()
}
