package ingest

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/papercomputeco/tracks/pkg/events"
)

// maxLine bounds a single JSONL record.
const maxLine = 10 * 1024 * 1024

// LineError describes a record that could not be ingested.
type LineError struct {
	Path string
	Line int
	Err  error
}

func (e LineError) Error() string {
	return fmt.Sprintf("%s:%d: %v", e.Path, e.Line, e.Err)
}

func (e LineError) Unwrap() error {
	return e.Err
}

// ScanDir finds all JSONL files under the given directory in lexical order.
func ScanDir(dir string) ([]string, error) {
	var files []string
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() && strings.HasSuffix(path, ".jsonl") {
			files = append(files, path)
		}
		return nil
	})
	return files, err
}

// Expand turns each argument into the JSONL files it names. Directories are
// scanned recursively; files are taken as is.
func Expand(paths []string) ([]string, error) {
	var files []string
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			files = append(files, p)
			continue
		}
		found, err := ScanDir(p)
		if err != nil {
			return nil, err
		}
		files = append(files, found...)
	}
	return files, nil
}

// Parse reads JSONL records from r. Blank lines are skipped. Lines that are
// not valid records are returned as LineErrors next to the good events.
func Parse(name string, r io.Reader) ([]*events.Event, []LineError, error) {
	var (
		evs  []*events.Event
		bad  []LineError
		line int
	)

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 1024*1024), maxLine)

	for scanner.Scan() {
		line++
		raw := strings.TrimSpace(scanner.Text())
		if raw == "" {
			continue
		}

		var rec events.Record
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			bad = append(bad, LineError{Path: name, Line: line, Err: err})
			continue
		}
		ev, err := rec.ToEvent()
		if err != nil {
			bad = append(bad, LineError{Path: name, Line: line, Err: err})
			continue
		}
		evs = append(evs, ev)
	}

	if err := scanner.Err(); err != nil {
		return nil, nil, fmt.Errorf("reading %s: %w", name, err)
	}
	return evs, bad, nil
}

// ParseFile is Parse over a file on disk.
func ParseFile(path string) ([]*events.Event, []LineError, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()

	return Parse(path, f)
}
