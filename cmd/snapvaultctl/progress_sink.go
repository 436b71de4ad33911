package main

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/mattn/go-isatty"
	"github.com/raaihank/snapvault/internal/progress"
	"github.com/schollz/progressbar/v3"
)

// terminalSink renders pipeline checkpoints as a progress bar on a terminal
// and as plain lines everywhere else
type terminalSink struct {
	mu  sync.Mutex
	out io.Writer
	bar *progressbar.ProgressBar
}

func newTerminalSink(out io.Writer) *terminalSink {
	s := &terminalSink{out: out}
	if isTerminal(out) {
		s.bar = progressbar.NewOptions(100,
			progressbar.OptionSetWriter(out),
			progressbar.OptionSetWidth(30),
			progressbar.OptionShowDescriptionAtLineEnd(),
			progressbar.OptionSetPredictTime(false),
			progressbar.OptionClearOnFinish(),
		)
	}
	return s
}

func (s *terminalSink) Report(e progress.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.bar == nil {
		fmt.Fprintf(s.out, "[%3d%%] %s\n", e.Percent, e.Message)
		return
	}
	s.bar.Describe(e.Message)
	s.bar.Set(e.Percent)
}

// Finish clears the bar so the summary starts on a clean line
func (s *terminalSink) Finish() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.bar != nil {
		s.bar.Finish()
		fmt.Fprintln(s.out)
	}
}

func isTerminal(w io.Writer) bool {
	file, ok := w.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
