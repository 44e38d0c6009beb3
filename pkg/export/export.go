// Package export appends documents to a local JSONL or CSV file.
//
// Appending is idempotent: unless duplicates are allowed, a record that is
// already present in the file (or was written earlier in the same run) is
// skipped. The existing file is read once per run to build that index.
package export

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"iter"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Sternrassler/readwise-export/pkg/document"
)

// Progress observes each record handled by Append.
type Progress interface {
	// Record is called once per record; written is false for skipped duplicates.
	Record(written bool)
}

// Options controls how records are written.
type Options struct {
	// Path is the output file.
	Path string

	// Format overrides the format inferred from the Path extension.
	Format Format

	// Overwrite truncates the file instead of appending to it.
	Overwrite bool

	// AllowDuplicates writes every record, even if already present.
	AllowDuplicates bool

	// Progress, if set, is notified for every record.
	Progress Progress
}

// Result summarizes an Append call.
type Result struct {
	Path    string
	Format  Format
	Written int
	Skipped int
}

// Append consumes records and writes them to opts.Path.
//
// The format is resolved before the file is touched, so an unsupported
// format never creates or modifies a file. Records are written as they
// arrive; if the sequence yields an error, what was written so far stays in
// the file and the error is returned.
func Append(ctx context.Context, records iter.Seq2[document.Document, error], opts Options) (Result, error) {
	format, err := ResolveFormat(opts.Path, opts.Format)
	if err != nil {
		return Result{}, err
	}

	result := Result{Path: opts.Path, Format: format}
	logger := log.With().
		Str("component", "exporter").
		Str("path", opts.Path).
		Str("format", string(format)).
		Logger()

	logger.Info().
		Bool("overwrite", opts.Overwrite).
		Bool("allow_duplicates", opts.AllowDuplicates).
		Msg("Starting export")

	w := &recordWriter{ctx: ctx, opts: opts, format: format, result: &result, logger: logger}
	switch format {
	case FormatJSONL:
		err = appendJSONL(w, records)
	case FormatCSV:
		err = appendCSV(w, records)
	}

	event := logger.Info()
	if err != nil {
		event = logger.Error().Err(err)
	}
	event.
		Int("written", result.Written).
		Int("skipped", result.Skipped).
		Msg("Export finished")

	return result, err
}

// recordWriter holds the state shared by the format writers.
type recordWriter struct {
	ctx    context.Context
	opts   Options
	format Format
	result *Result
	logger zerolog.Logger
}

// admit decides whether key is written and updates counters.
// key joins ix when it is written.
func (w *recordWriter) admit(ix *index, key string) bool {
	write := true
	if !w.opts.AllowDuplicates {
		write = ix.Add(key)
	}

	outcome := "written"
	if write {
		w.result.Written++
	} else {
		w.result.Skipped++
		outcome = "skipped"
	}
	recordsTotal.WithLabelValues(string(w.format), outcome).Inc()

	if w.opts.Progress != nil {
		w.opts.Progress.Record(write)
	}
	return write
}

// openFlags returns the flags for opening the output for writing.
func (w *recordWriter) openFlags() int {
	if w.opts.Overwrite {
		return os.O_CREATE | os.O_WRONLY | os.O_TRUNC
	}
	return os.O_CREATE | os.O_WRONLY | os.O_APPEND
}

// existingSize returns the size of the output file, or -1 if it does not exist.
func existingSize(path string) (int64, error) {
	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return -1, nil
	}
	if err != nil {
		return 0, fmt.Errorf("stat %s: %w", path, err)
	}
	if info.IsDir() {
		return 0, fmt.Errorf("output %s is a directory", path)
	}
	return info.Size(), nil
}
