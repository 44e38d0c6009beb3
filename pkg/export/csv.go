package export

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"os"

	"github.com/Sternrassler/readwise-export/pkg/document"
)

// appendCSV writes one row per record under a single header.
//
// The header is the existing file's header when appending, otherwise the
// first record's field names. Fields outside the header are dropped and
// missing fields are left empty. An empty sequence leaves the file system
// untouched.
func appendCSV(w *recordWriter, records iter.Seq2[document.Document, error]) error {
	ix := newIndex()
	var header []string

	size := int64(-1)
	needsNewline := false
	if !w.opts.Overwrite {
		var err error
		size, err = existingSize(w.opts.Path)
		if err != nil {
			return err
		}
		if size > 0 {
			header, needsNewline, err = indexCSV(w.opts.Path, ix)
			if err != nil {
				return err
			}
			indexedRecords.WithLabelValues(string(FormatCSV)).Set(float64(ix.Len()))
		}
	}

	next, stop := iter.Pull2(records)
	defer stop()

	first, err, ok := next()
	if !ok {
		w.logger.Info().Msg("No records to export, output left untouched")
		return nil
	}
	if err != nil {
		return err
	}

	writeHeader := len(header) == 0
	if writeHeader {
		header = first.Keys()
	}

	f, err := os.OpenFile(w.opts.Path, w.openFlags(), 0o644)
	if err != nil {
		return fmt.Errorf("open %s: %w", w.opts.Path, err)
	}
	defer f.Close()

	buf := bufio.NewWriter(f)
	out := csv.NewWriter(buf)
	finish := func() error {
		out.Flush()
		if err := out.Error(); err != nil {
			return fmt.Errorf("write %s: %w", w.opts.Path, err)
		}
		return flush(buf, f, w.opts.Path)
	}

	if needsNewline {
		if err := buf.WriteByte('\n'); err != nil {
			return fmt.Errorf("write %s: %w", w.opts.Path, err)
		}
	}

	if writeHeader {
		if err := out.Write(header); err != nil {
			return fmt.Errorf("write header: %w", err)
		}
	}

	doc := first
	for {
		if err := w.ctx.Err(); err != nil {
			return errors.Join(err, finish())
		}

		row := renderRow(doc, header)
		if w.admit(ix, rowKey(row)) {
			if err := out.Write(row); err != nil {
				return fmt.Errorf("write row: %w", err)
			}
		}

		doc, err, ok = next()
		if !ok {
			break
		}
		if err != nil {
			return errors.Join(err, finish())
		}
	}

	return finish()
}

// indexCSV reads the header of path and adds every data row to ix.
// It also reports whether the file lacks a trailing newline.
func indexCSV(path string, ix *index) ([]string, bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, false, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(bufio.NewReader(f))
	r.FieldsPerRecord = -1
	r.ReuseRecord = true

	header, err := r.Read()
	if err == io.EOF {
		needsNewline, err := lacksTrailingNewline(f, path)
		return nil, needsNewline, err
	}
	if err != nil {
		return nil, false, fmt.Errorf("read header of %s: %w", path, err)
	}
	header = append([]string(nil), header...)

	row := make([]string, len(header))
	for {
		record, err := r.Read()
		if err == io.EOF {
			needsNewline, err := lacksTrailingNewline(f, path)
			return header, needsNewline, err
		}
		if err != nil {
			return nil, false, fmt.Errorf("read %s: %w", path, err)
		}

		// short rows are padded, long rows truncated to the header
		for i := range row {
			row[i] = ""
			if i < len(record) {
				row[i] = record[i]
			}
		}
		ix.Add(rowKey(row))
	}
}

// lacksTrailingNewline reports whether f is non-empty and its last byte is
// not a newline.
func lacksTrailingNewline(f *os.File, path string) (bool, error) {
	info, err := f.Stat()
	if err != nil {
		return false, fmt.Errorf("stat %s: %w", path, err)
	}
	if info.Size() == 0 {
		return false, nil
	}

	last := make([]byte, 1)
	if _, err := f.ReadAt(last, info.Size()-1); err != nil {
		return false, fmt.Errorf("read %s: %w", path, err)
	}
	return last[0] != '\n', nil
}

// renderRow lays doc out in header order.
func renderRow(doc document.Document, header []string) []string {
	row := make([]string, len(header))
	for i, name := range header {
		row[i] = doc.Text(name)
	}
	return row
}

// rowKey encodes row as an unambiguous index key.
func rowKey(row []string) string {
	data, _ := json.Marshal(row)
	return string(data)
}
