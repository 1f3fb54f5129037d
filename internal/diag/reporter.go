package diag

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"
)

// Pos locates a diagnostic inside a source file. The zero value means
// "no position".
type Pos struct {
	File string
	Line int
	Col  int
}

// IsValid reports whether the position carries a line number.
func (p Pos) IsValid() bool {
	return p.Line > 0
}

func (p Pos) String() string {
	switch {
	case !p.IsValid() && p.File == "":
		return "-"
	case !p.IsValid():
		return p.File
	case p.File == "":
		return fmt.Sprintf("%d:%d", p.Line, p.Col)
	default:
		return fmt.Sprintf("%s:%d:%d", p.File, p.Line, p.Col)
	}
}

// Severity classifies a reported diagnostic.
type Severity int

const (
	SeverityError Severity = iota
	SeverityWarning
	SeverityNote
)

func (s Severity) String() string {
	switch s {
	case SeverityError:
		return "error"
	case SeverityWarning:
		return "warning"
	default:
		return "note"
	}
}

// Reporter collects diagnostics and prints them in text or JSON form.
type Reporter struct {
	mu       sync.Mutex
	w        io.Writer
	format   string
	verbose  bool
	errors   int
	warnings int
}

// NewReporter returns a reporter writing to w. format is "text" or "json";
// anything else falls back to text.
func NewReporter(w io.Writer, format string) *Reporter {
	if w == nil {
		w = io.Discard
	}
	if format != "json" {
		format = "text"
	}
	return &Reporter{w: w, format: format}
}

// SetVerbose enables printing of notes.
func (r *Reporter) SetVerbose(v bool) {
	if r == nil {
		return
	}
	r.mu.Lock()
	r.verbose = v
	r.mu.Unlock()
}

// Error records an error at pos.
func (r *Reporter) Error(pos Pos, msg string) {
	r.emit(SeverityError, pos, msg)
}

// Errorf records an error without a position.
func (r *Reporter) Errorf(format string, args ...any) {
	r.emit(SeverityError, Pos{}, fmt.Sprintf(format, args...))
}

// Warn records a warning at pos.
func (r *Reporter) Warn(pos Pos, msg string) {
	r.emit(SeverityWarning, pos, msg)
}

// Notef records an informational note; notes are dropped unless the
// reporter is verbose.
func (r *Reporter) Notef(format string, args ...any) {
	if r == nil || !r.verbose {
		return
	}
	r.emit(SeverityNote, Pos{}, fmt.Sprintf(format, args...))
}

// Report records err as an error diagnostic, using the position carried
// by a *Error when present.
func (r *Reporter) Report(err error) {
	if err == nil {
		return
	}
	if de := AsError(err); de != nil && de.Pos.IsValid() {
		r.emit(SeverityError, de.Pos, de.Message())
		return
	}
	r.emit(SeverityError, Pos{}, err.Error())
}

// HasErrors reports whether any error was recorded.
func (r *Reporter) HasErrors() bool {
	if r == nil {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.errors > 0
}

// ErrorCount returns the number of recorded errors.
func (r *Reporter) ErrorCount() int {
	if r == nil {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.errors
}

type jsonDiagnostic struct {
	Severity string `json:"severity"`
	File     string `json:"file,omitempty"`
	Line     int    `json:"line,omitempty"`
	Col      int    `json:"col,omitempty"`
	Message  string `json:"message"`
}

func (r *Reporter) emit(sev Severity, pos Pos, msg string) {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	switch sev {
	case SeverityError:
		r.errors++
	case SeverityWarning:
		r.warnings++
	}
	if r.format == "json" {
		data, err := json.Marshal(jsonDiagnostic{
			Severity: sev.String(),
			File:     pos.File,
			Line:     pos.Line,
			Col:      pos.Col,
			Message:  msg,
		})
		if err != nil {
			fmt.Fprintf(r.w, "%s: %s\n", sev, msg)
			return
		}
		fmt.Fprintln(r.w, string(data))
		return
	}
	if pos.IsValid() || pos.File != "" {
		fmt.Fprintf(r.w, "%s: %s: %s\n", pos, sev, msg)
		return
	}
	fmt.Fprintf(r.w, "%s: %s\n", sev, msg)
}
