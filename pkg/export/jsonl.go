package export

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"os"
	"strings"

	"github.com/Sternrassler/readwise-export/pkg/document"
)

// appendJSONL writes one compact JSON line per record.
// Existing lines are indexed whitespace-trimmed.
func appendJSONL(w *recordWriter, records iter.Seq2[document.Document, error]) error {
	ix := newIndex()
	needsNewline := false

	if !w.opts.Overwrite {
		size, err := existingSize(w.opts.Path)
		if err != nil {
			return err
		}
		if size > 0 {
			needsNewline, err = indexJSONL(w.opts.Path, ix)
			if err != nil {
				return err
			}
			indexedRecords.WithLabelValues(string(FormatJSONL)).Set(float64(ix.Len()))
		}
	}

	f, err := os.OpenFile(w.opts.Path, w.openFlags(), 0o644)
	if err != nil {
		return fmt.Errorf("open %s: %w", w.opts.Path, err)
	}
	defer f.Close()

	out := bufio.NewWriter(f)
	if needsNewline {
		if err := out.WriteByte('\n'); err != nil {
			return fmt.Errorf("write %s: %w", w.opts.Path, err)
		}
	}

	for doc, err := range records {
		if err != nil {
			return errors.Join(err, flush(out, f, w.opts.Path))
		}
		if err := w.ctx.Err(); err != nil {
			return errors.Join(err, flush(out, f, w.opts.Path))
		}

		line, err := json.Marshal(doc)
		if err != nil {
			return errors.Join(fmt.Errorf("encode record: %w", err), flush(out, f, w.opts.Path))
		}
		if !w.admit(ix, strings.TrimSpace(string(line))) {
			continue
		}

		if _, err := out.Write(line); err != nil {
			return fmt.Errorf("write %s: %w", w.opts.Path, err)
		}
		if err := out.WriteByte('\n'); err != nil {
			return fmt.Errorf("write %s: %w", w.opts.Path, err)
		}
	}

	return flush(out, f, w.opts.Path)
}

// indexJSONL adds every trimmed line of path to ix. It reports whether the
// file lacks a trailing newline.
func indexJSONL(path string, ix *index) (bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return false, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	r := bufio.NewReader(f)
	for {
		line, err := r.ReadString('\n')
		if line != "" {
			ix.Add(strings.TrimSpace(line))
		}
		if err == io.EOF {
			return line != "", nil
		}
		if err != nil {
			return false, fmt.Errorf("read %s: %w", path, err)
		}
	}
}

func flush(out *bufio.Writer, f *os.File, path string) error {
	if err := out.Flush(); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("sync %s: %w", path, err)
	}
	return nil
}
