package memory

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"bookkeeper/internal/core"
	"bookkeeper/internal/ledger"
	ports "bookkeeper/internal/sheets"
)

// Store is an in-process spreadsheet source. Sheets are keyed by spreadsheet
// ID; the range is ignored. With a directory set, unknown IDs are loaded from
// <dir>/<id>.csv on first use.
type Store struct {
	mu     sync.Mutex
	dir    string
	sheets map[string][][]string
}

var _ ports.LedgerReader = (*Store)(nil)

func New() *Store {
	return &Store{sheets: make(map[string][][]string)}
}

// NewFromDir serves spreadsheets from CSV files in dir.
func NewFromDir(dir string) *Store {
	s := New()
	s.dir = dir
	return s
}

// Put stores rows under spreadsheetID, replacing any previous content.
func (s *Store) Put(spreadsheetID string, rows [][]string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sheets[spreadsheetID] = rows
}

// ReadLedger implements sheets.LedgerReader.
func (s *Store) ReadLedger(_ context.Context, ref ports.Ref) (core.Ledger, ledger.Stats, error) {
	rows, err := s.rows(ref.SpreadsheetID)
	if err != nil {
		return nil, ledger.Stats{}, err
	}
	l, stats := ledger.FromRows(rows)
	if len(l) == 0 {
		return nil, stats, ledger.ErrEmptyLedger
	}
	return l, stats, nil
}

func (s *Store) rows(id string) ([][]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rows, ok := s.sheets[id]; ok {
		return rows, nil
	}
	if s.dir == "" || id == "" || strings.ContainsAny(id, `/\`) || strings.HasPrefix(id, ".") {
		return nil, fmt.Errorf("spreadsheet %q not found", id)
	}

	f, err := os.Open(filepath.Join(s.dir, id+".csv"))
	if err != nil {
		return nil, fmt.Errorf("spreadsheet %q: %w", id, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read spreadsheet %q: %w", id, err)
	}
	s.sheets[id] = rows
	return rows, nil
}
