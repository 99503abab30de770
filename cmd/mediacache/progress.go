package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"

	"media-cache/internal/memory"
	"media-cache/internal/pipeline"
)

const defaultTermWidth = 80

// progressLine redraws a single status line on a terminal.
type progressLine struct {
	w     io.Writer
	label string
	width int
	ticks int
}

var spinner = []string{"|", "/", "-", "\\"}

// terminal returns out as a file when it is an interactive terminal.
func terminal(out io.Writer) (*os.File, bool) {
	f, ok := out.(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		return nil, false
	}
	return f, true
}

func newProgressLine(f *os.File, label string) *progressLine {
	width, _, err := term.GetSize(int(f.Fd()))
	if err != nil || width <= 0 {
		width = defaultTermWidth
	}
	return &progressLine{w: f, label: label, width: width}
}

func (p *progressLine) update(written int64) {
	p.ticks++
	line := fmt.Sprintf("%s %s  %s", spinner[p.ticks%len(spinner)], p.label, memory.FormatBytes(written))
	fmt.Fprintf(p.w, "\r%s", fit(line, p.width-1))
}

func (p *progressLine) clear() {
	fmt.Fprintf(p.w, "\r%s\r", strings.Repeat(" ", p.width-1))
}

// fit pads or truncates line to exactly width runes.
func fit(line string, width int) string {
	if width <= 0 {
		return ""
	}
	runes := []rune(line)
	if len(runes) > width {
		if width <= 3 {
			return string(runes[:width])
		}
		return string(runes[:width-3]) + "..."
	}
	return line + strings.Repeat(" ", width-len(runes))
}

// track drains task progress onto a status line when out is a terminal.
// It returns once the task has finished either way.
func track(out io.Writer, task *pipeline.Task, label string) pipeline.Result {
	if f, ok := terminal(out); ok {
		line := newProgressLine(f, label)
		for written := range task.Progress() {
			line.update(written)
		}
		line.clear()
	}
	return task.Wait()
}
