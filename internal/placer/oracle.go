package placer

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"tilec/internal/diag"
	"tilec/internal/ir"
)

// Oracle answers a placement request. The request and the response use the
// line protocol "<id>,<prim>" and "<id>,<x>,<y>".
type Oracle interface {
	Place(ctx context.Context, request []byte) ([]byte, error)
}

// OracleFunc adapts a function to Oracle.
type OracleFunc func(ctx context.Context, request []byte) ([]byte, error)

// Place implements Oracle.
func (f OracleFunc) Place(ctx context.Context, request []byte) ([]byte, error) {
	return f(ctx, request)
}

// Command runs an external placement tool that reads the request on stdin
// and writes the response on stdout.
type Command struct {
	Path string
	Args []string
}

// Place implements Oracle.
func (c Command) Place(ctx context.Context, request []byte) ([]byte, error) {
	path, err := resolveBinary(c.Path)
	if err != nil {
		return nil, diag.Wrap(diag.PlacerError, err, "resolve placer %s", c.Path)
	}
	cmd := exec.CommandContext(ctx, path, c.Args...)
	cmd.Stdin = bytes.NewReader(request)
	var stdout bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return nil, diag.Wrap(diag.PlacerError, err, "placer %s failed", path)
	}
	return stdout.Bytes(), nil
}

func resolveBinary(path string) (string, error) {
	if strings.ContainsRune(path, os.PathSeparator) {
		if _, err := os.Stat(path); err != nil {
			return "", err
		}
		return path, nil
	}
	return exec.LookPath(path)
}

// Grid is the built-in oracle. Each primitive class gets its own grid
// filled in request order: fabric sites row-major with Columns sites per
// row, DSP slices column-major with DspRows slices per column so that
// consecutive cascade stages sit on top of each other.
type Grid struct {
	Columns int
	DspRows int
}

// Grid sizes used when the fields are not positive.
const (
	DefaultColumns = 8
	DefaultDspRows = 24
)

// Place implements Oracle.
func (g Grid) Place(_ context.Context, request []byte) ([]byte, error) {
	cols, rows := g.Columns, g.DspRows
	if cols <= 0 {
		cols = DefaultColumns
	}
	if rows <= 0 {
		rows = DefaultDspRows
	}
	dsp := ir.PrimDsp.String()
	next := make(map[string]int)
	var out bytes.Buffer
	sc := bufio.NewScanner(bytes.NewReader(request))
	for line := 1; sc.Scan(); line++ {
		text := strings.TrimSpace(sc.Text())
		if text == "" {
			continue
		}
		id, prim, ok := strings.Cut(text, ",")
		if !ok {
			return nil, diag.Errorf(diag.PlacerError, "grid: malformed request line %d: %q", line, text)
		}
		n := next[prim]
		next[prim] = n + 1
		if prim == dsp {
			fmt.Fprintf(&out, "%s,%d,%d\n", id, n/rows, n%rows)
			continue
		}
		fmt.Fprintf(&out, "%s,%d,%d\n", id, n%cols, n/cols)
	}
	if err := sc.Err(); err != nil {
		return nil, diag.Wrap(diag.PlacerError, err, "grid: read request")
	}
	return out.Bytes(), nil
}
