package export

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// ErrUnsupportedFormat is returned for any format other than jsonl or csv.
var ErrUnsupportedFormat = errors.New("unsupported file format")

// Format is an output file format.
type Format string

const (
	// FormatJSONL writes one compact JSON object per line.
	FormatJSONL Format = "jsonl"

	// FormatCSV writes a header row followed by one row per document.
	FormatCSV Format = "csv"
)

// defaultBaseName is the output file name used when no path is given.
const defaultBaseName = "readwise_export"

// Formats lists the supported formats.
func Formats() []Format {
	return []Format{FormatJSONL, FormatCSV}
}

// ParseFormat validates a format name.
func ParseFormat(name string) (Format, error) {
	switch f := Format(name); f {
	case FormatJSONL, FormatCSV:
		return f, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, name)
	}
}

// ResolveFormat returns format if set, else the format named by the
// extension of path.
func ResolveFormat(path string, format Format) (Format, error) {
	if format != "" {
		return ParseFormat(string(format))
	}
	return ParseFormat(strings.TrimPrefix(filepath.Ext(path), "."))
}

// DefaultPath returns the output path used when none is given:
// readwise_export.csv without a format, readwise_export.<format> otherwise.
func DefaultPath(format Format) string {
	if format == "" {
		format = FormatCSV
	}
	return defaultBaseName + "." + string(format)
}
