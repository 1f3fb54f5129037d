package diag

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"testing"
)

func TestReporterTextFormat(t *testing.T) {
	var buf bytes.Buffer
	r := NewReporter(&buf, "text")
	r.Error(Pos{File: "main.ir", Line: 3, Col: 7}, "unknown op")
	r.Errorf("no position %d", 1)
	r.Notef("hidden")
	if !r.HasErrors() || r.ErrorCount() != 2 {
		t.Fatalf("expected two errors, got %d", r.ErrorCount())
	}
	got := buf.String()
	want := "main.ir:3:7: error: unknown op\nerror: no position 1\n"
	if got != want {
		t.Fatalf("unexpected output:\n%s\nwant:\n%s", got, want)
	}
}

func TestReporterVerboseNotes(t *testing.T) {
	var buf bytes.Buffer
	r := NewReporter(&buf, "text")
	r.SetVerbose(true)
	r.Notef("selected %d tiles", 4)
	if r.HasErrors() {
		t.Fatalf("notes must not count as errors")
	}
	if got := buf.String(); got != "note: selected 4 tiles\n" {
		t.Fatalf("unexpected note output %q", got)
	}
}

func TestReporterJSONFormat(t *testing.T) {
	var buf bytes.Buffer
	r := NewReporter(&buf, "json")
	r.Report(At(TypeError, Pos{File: "a.ir", Line: 2, Col: 1}, "duplicate id %q", "x"))
	var got jsonDiagnostic
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &got); err != nil {
		t.Fatalf("decode json diagnostic: %v (%s)", err, buf.String())
	}
	if got.Severity != "error" || got.File != "a.ir" || got.Line != 2 {
		t.Fatalf("unexpected diagnostic %+v", got)
	}
	if !strings.Contains(got.Message, `duplicate id "x"`) {
		t.Fatalf("message lost: %q", got.Message)
	}
}

func TestKindSurvivesWrapping(t *testing.T) {
	base := Errorf(PlacerError, "instruction %d unassigned", 3)
	wrapped := fmt.Errorf("place main: %w", base)
	if KindOf(wrapped) != PlacerError {
		t.Fatalf("expected placer kind, got %s", KindOf(wrapped))
	}
	if !Is(wrapped, PlacerError) || Is(wrapped, ParseError) {
		t.Fatalf("Is mismatch for %v", wrapped)
	}
	io := Wrap(IOError, fmt.Errorf("disk full"), "write %s", "out.v")
	if got := io.Error(); got != "io error: write out.v: disk full" {
		t.Fatalf("unexpected message %q", got)
	}
	if KindOf(fmt.Errorf("plain")) != UnknownError {
		t.Fatalf("plain errors must be unknown")
	}
}
