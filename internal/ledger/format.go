package ledger

import (
	"fmt"
	"path/filepath"
	"strings"

	"bookkeeper/internal/core"
)

// Format identifies a supported ledger source.
type Format string

const (
	FormatText Format = "txt"
	FormatCSV  Format = "csv"
)

// DetectFormat maps a file name to a Format by extension.
func DetectFormat(name string) (Format, error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".txt", "":
		return FormatText, nil
	case ".csv":
		return FormatCSV, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Ext(name))
	}
}

// ParseFile dispatches to the adapter for name's format. It returns
// ErrEmptyLedger when no record survived parsing.
func ParseFile(name string, data []byte) (core.Ledger, Stats, error) {
	format, err := DetectFormat(name)
	if err != nil {
		return nil, Stats{}, err
	}

	var (
		l     core.Ledger
		stats Stats
	)
	switch format {
	case FormatCSV:
		l, stats, err = ParseCSV(data)
	default:
		l, stats, err = Parse(data)
	}
	if err != nil {
		return nil, stats, err
	}
	if len(l) == 0 {
		return nil, stats, ErrEmptyLedger
	}
	return l, stats, nil
}
