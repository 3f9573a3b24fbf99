package ledger

import (
	"errors"
	"testing"
)

func TestParse(t *testing.T) {
	input := "2024-01-05|카드매출|1,000,000|매출\n" +
		"\n" +
		"2024-01-06 | 밀가루 | 600,000 | 원재료비\n" +
		"2024-01-07|too|few\n" +
		"2024-01-08|a|b|c|d\n" +
		"2024-01-09|소모품|abc|소모품비\n" +
		"someday|조의금|50000|경조사비\n"

	l, stats, err := Parse([]byte(input))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(l) != 4 {
		t.Fatalf("expected 4 transactions, got %d", len(l))
	}
	want := Stats{Lines: 6, Accepted: 4, Dropped: 2, RepairedAmounts: 1, InvalidDates: 1}
	if stats != want {
		t.Fatalf("stats: got %+v, want %+v", stats, want)
	}
	if l[0].Amount != 1000000 || l[0].Category != "매출" || l[0].Description != "카드매출" {
		t.Fatalf("first row: %+v", l[0])
	}
	if l[1].Description != "밀가루" || l[1].Category != "원재료비" {
		t.Fatalf("fields not trimmed: %+v", l[1])
	}
	if l[2].Amount != 0 {
		t.Fatalf("unparseable amount must become 0, got %d", l[2].Amount)
	}
	if l[3].Date.Valid() || l[3].Amount != 50000 {
		t.Fatalf("bad date row: %+v", l[3])
	}
}

func TestParseCSVHeaders(t *testing.T) {
	cases := []struct {
		name  string
		input string
		rows  int
		first int64
	}{
		{"korean header", "날짜,내용,금액,분류\n2024-01-01,판매,\"10,000\",매출\n", 1, 10000},
		{"english header", "Date,Description,Amount,Category\n2024-01-01,sale,500,매출\n", 1, 500},
		{"foreign header forced positionally", "when,what,how much,kind\n2024-01-01,sale,700,매출\n", 1, 700},
		{"no header", "2024-01-01,sale,900,매출\n2024-01-02,ink,100,소모품비\n", 2, 900},
		{"extra columns ignored", "2024-01-01,sale,300,매출,memo\n", 1, 300},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			l, _, err := ParseCSV([]byte(tc.input))
			if err != nil {
				t.Fatalf("parse csv: %v", err)
			}
			if len(l) != tc.rows {
				t.Fatalf("rows: got %d, want %d", len(l), tc.rows)
			}
			if l[0].Amount != tc.first {
				t.Fatalf("first amount: got %d, want %d", l[0].Amount, tc.first)
			}
		})
	}
}

func TestParseCSVQuotesAreLenient(t *testing.T) {
	good := "2024-01-01,sale,1000,매출\n2024-01-02,ink,200,소모품비\n2024-01-03,paper,100,소모품비\n"

	t.Run("bare quote", func(t *testing.T) {
		l, stats, err := ParseCSV([]byte(good + "2024-01-04,He said \"hi\",300,소모품비\n"))
		if err != nil {
			t.Fatalf("parse csv: %v", err)
		}
		if len(l) != 4 || stats.Dropped != 0 {
			t.Fatalf("got %d rows, stats %+v", len(l), stats)
		}
		if l[3].Description != `He said "hi"` || l[3].Amount != 300 {
			t.Fatalf("bare quote row: %+v", l[3])
		}
	})

	t.Run("unterminated quote", func(t *testing.T) {
		l, stats, err := ParseCSV([]byte(good + "2024-01-04,\"broken,300,소모품비\n2024-01-05,sale,50,매출\n"))
		if err != nil {
			t.Fatalf("parse csv: %v", err)
		}
		if len(l) != 3 || stats.Accepted != 3 || stats.Dropped != 1 {
			t.Fatalf("got %d rows, stats %+v", len(l), stats)
		}
	})

	t.Run("through ParseFile", func(t *testing.T) {
		l, _, err := ParseFile("ledger.csv", []byte(good+"2024-01-04,He said \"hi\",300,소모품비\n"))
		if err != nil || len(l) != 4 {
			t.Fatalf("got %d rows, err %v", len(l), err)
		}
	})
}

func TestParseOversizedAmountIsRepaired(t *testing.T) {
	l, stats, err := Parse([]byte("2024-01-01|매출|1,000,000,000,000,000,000|매출\n"))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(l) != 1 || l[0].Amount != 0 || stats.RepairedAmounts != 1 {
		t.Fatalf("got %+v, stats %+v", l, stats)
	}
}

func TestFromRowsDropsShortRows(t *testing.T) {
	l, stats := FromRows([][]string{
		{"2024-01-01", "sale", "100", "매출"},
		{"2024-01-02", "short"},
		{"", "", "", ""},
	})
	if len(l) != 1 || stats.Dropped != 1 || stats.Lines != 2 {
		t.Fatalf("got %d rows, stats %+v", len(l), stats)
	}
}

func TestParseFile(t *testing.T) {
	if _, _, err := ParseFile("ledger.xlsx", []byte("x")); !errors.Is(err, ErrUnsupportedFormat) {
		t.Fatalf("expected ErrUnsupportedFormat, got %v", err)
	}
	if _, _, err := ParseFile("ledger.txt", []byte("only|three|fields\n")); !errors.Is(err, ErrEmptyLedger) {
		t.Fatalf("expected ErrEmptyLedger, got %v", err)
	}
	l, _, err := ParseFile("LEDGER.CSV", []byte("2024-01-01,sale,100,매출\n"))
	if err != nil || len(l) != 1 {
		t.Fatalf("csv dispatch: %v (%d rows)", err, len(l))
	}
}
