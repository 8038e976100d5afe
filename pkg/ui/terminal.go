package ui

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
)

const (
	ansiReset   = "\033[0m"
	ansiRed     = "\033[31m"
	ansiGreen   = "\033[32m"
	ansiYellow  = "\033[33m"
	ansiMagenta = "\033[35m"
	ansiCyan    = "\033[36m"
	ansiDim     = "\033[2m"
)

// Printer writes user-facing messages, coloured only when the destination
// is a terminal and NO_COLOR is unset.
type Printer struct {
	w     io.Writer
	color bool
}

// NewPrinter creates a Printer for w
func NewPrinter(w io.Writer) *Printer {
	return &Printer{w: w, color: ShouldColorize(w)}
}

// Writer returns the underlying writer
func (p *Printer) Writer() io.Writer { return p.w }

// ShouldColorize reports whether w is a terminal that accepts ANSI colours
func ShouldColorize(w io.Writer) bool {
	if _, ok := os.LookupEnv("NO_COLOR"); ok {
		return false
	}
	file, ok := w.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

func (p *Printer) paint(color, text string) string {
	if !p.color {
		return text
	}
	return color + text + ansiReset
}

func (p *Printer) Cyan(text string) string    { return p.paint(ansiCyan, text) }
func (p *Printer) Yellow(text string) string  { return p.paint(ansiYellow, text) }
func (p *Printer) Red(text string) string     { return p.paint(ansiRed, text) }
func (p *Printer) Green(text string) string   { return p.paint(ansiGreen, text) }
func (p *Printer) Magenta(text string) string { return p.paint(ansiMagenta, text) }
func (p *Printer) Dim(text string) string     { return p.paint(ansiDim, text) }

// Error prints an error message in red
func (p *Printer) Error(msg string, err error) {
	if err != nil {
		msg = msg + ": " + err.Error()
	}
	fmt.Fprintln(p.w, p.Red(msg))
}

// Success prints a success message in green
func (p *Printer) Success(msg string) {
	fmt.Fprintln(p.w, p.Green(msg))
}

// Info prints a label/value pair
func (p *Printer) Info(label string, value string) {
	fmt.Fprintf(p.w, "%s: %s\n", p.Cyan(label), p.Yellow(value))
}

// Warning prints a warning message in yellow
func (p *Printer) Warning(msg string) {
	fmt.Fprintln(p.w, p.Yellow(msg))
}

// Highlight prints a highlighted message in magenta
func (p *Printer) Highlight(msg string) {
	fmt.Fprintln(p.w, p.Magenta(msg))
}

// Section prints a titled rule
func (p *Printer) Section(title string) {
	line := fmt.Sprintf("== %s ==", strings.TrimSpace(title))
	fmt.Fprintln(p.w, p.Cyan(line))
}
