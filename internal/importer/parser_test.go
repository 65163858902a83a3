package importer

import (
	"errors"
	"io"
	"strings"
	"testing"
)

func collectRecords(t *testing.T, src Source) []Record {
	t.Helper()
	p := NewParser(src, nil)
	it, err := p.Rows()
	if err != nil {
		t.Fatalf("Rows failed: %v", err)
	}
	defer it.Close()

	var out []Record
	for {
		rec, err := it.Next()
		if err == io.EOF {
			return out
		}
		if err != nil {
			t.Fatalf("Next failed: %v", err)
		}
		out = append(out, rec)
	}
}

func TestParser_BasicCSV(t *testing.T) {
	src := BytesSource("sku,name,description\nA-1,Widget,Small widget\nB-2,Gadget,\n")
	recs := collectRecords(t, src)

	if len(recs) != 2 {
		t.Fatalf("got %d records, want 2", len(recs))
	}
	if recs[0].SKU != "A-1" || recs[0].Name != "Widget" || recs[0].Description != "Small widget" {
		t.Errorf("first record = %+v", recs[0])
	}
	if recs[1].Description != "" {
		t.Errorf("second record description = %q, want empty", recs[1].Description)
	}
	if recs[0].RowNumber != 2 || recs[1].RowNumber != 3 {
		t.Errorf("row numbers = %d, %d, want 2, 3", recs[0].RowNumber, recs[1].RowNumber)
	}
}

func TestCleanHeader_StripsBOM(t *testing.T) {
	if got := cleanHeader("\uFEFF SKU "); got != "sku" {
		t.Errorf("cleanHeader = %q, want sku", got)
	}
}

func TestParser_HeaderAliases(t *testing.T) {
	tests := []struct {
		name   string
		header string
	}{
		{"canonical", "sku,name,description"},
		{"product prefixes", "product_sku,product_name,product description"},
		{"id and title", "ID,Title,Desc"},
		{"mixed case with spaces", " SKU , Name , Details "},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := BytesSource(tt.header + "\nA-1,Widget,d\n")
			recs := collectRecords(t, src)
			if len(recs) != 1 {
				t.Fatalf("got %d records, want 1", len(recs))
			}
			if recs[0].SKU != "A-1" || recs[0].Name != "Widget" || recs[0].Description != "d" {
				t.Errorf("record = %+v", recs[0])
			}
		})
	}
}

func TestParser_MissingColumns(t *testing.T) {
	src := BytesSource("sku,price\nA-1,9.99\n")
	p := NewParser(src, nil)

	err := p.ValidateFormat()
	var fe *FormatError
	if !errors.As(err, &fe) {
		t.Fatalf("want *FormatError, got %v", err)
	}
	// description has no alias either, but only required-by-alias columns
	// appear: all three canonical columns are required here.
	if len(fe.Missing) == 0 {
		t.Fatal("Missing is empty")
	}
	for _, col := range fe.Missing {
		if col != ColName && col != ColDescription {
			t.Errorf("unexpected missing column %q", col)
		}
	}
	if !strings.Contains(fe.Error(), "missing required columns") {
		t.Errorf("error message = %q", fe.Error())
	}
}

func TestParser_EmptyFile(t *testing.T) {
	p := NewParser(BytesSource(""), nil)
	err := p.ValidateFormat()
	var fe *FormatError
	if !errors.As(err, &fe) {
		t.Fatalf("want *FormatError for empty file, got %v", err)
	}
}

func TestParser_DelimiterSniffing(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"semicolon", "sku;name;description\nA-1;Widget;d\n"},
		{"tab", "sku\tname\tdescription\nA-1\tWidget\td\n"},
		{"pipe", "sku|name|description\nA-1|Widget|d\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			recs := collectRecords(t, BytesSource(tt.data))
			if len(recs) != 1 {
				t.Fatalf("got %d records, want 1", len(recs))
			}
			if recs[0].SKU != "A-1" || recs[0].Name != "Widget" {
				t.Errorf("record = %+v", recs[0])
			}
		})
	}
}

func TestParser_BOMHeader(t *testing.T) {
	data := append([]byte{0xEF, 0xBB, 0xBF}, []byte("sku,name,description\nA-1,Widget,\n")...)
	recs := collectRecords(t, BytesSource(data))
	if len(recs) != 1 || recs[0].SKU != "A-1" {
		t.Fatalf("records = %+v", recs)
	}
}

func TestParser_QuotedMultilineField(t *testing.T) {
	src := BytesSource("sku,name,description\nA-1,Widget,\"line one\nline two\"\nB-2,Gadget,d\n")

	p := NewParser(src, nil)
	total, err := p.CountRows()
	if err != nil {
		t.Fatalf("CountRows failed: %v", err)
	}
	if total != 2 {
		t.Errorf("CountRows = %d, want 2 (multi-line field counts once)", total)
	}

	recs := collectRecords(t, src)
	if len(recs) != 2 {
		t.Fatalf("got %d records, want 2", len(recs))
	}
	if recs[0].Description != "line one\nline two" {
		t.Errorf("description = %q", recs[0].Description)
	}
	if recs[1].RowNumber != 3 {
		t.Errorf("second record row = %d, want 3", recs[1].RowNumber)
	}
}

func TestParser_ExtraColumnsPassthrough(t *testing.T) {
	src := BytesSource("sku,name,description,price\nA-1,Widget,,9.99\n")
	recs := collectRecords(t, src)
	if len(recs) != 1 {
		t.Fatalf("got %d records, want 1", len(recs))
	}
	if recs[0].Extra["price"] != "9.99" {
		t.Errorf("Extra = %+v", recs[0].Extra)
	}
}

func TestParser_CountMatchesRows(t *testing.T) {
	src := BytesSource("sku,name,description\nA-1,W,\n,,\nB-2,G,d\n")
	p := NewParser(src, nil)

	total, err := p.CountRows()
	if err != nil {
		t.Fatalf("CountRows failed: %v", err)
	}
	recs := collectRecords(t, src)
	if total != len(recs) {
		t.Errorf("CountRows = %d but Rows yielded %d", total, len(recs))
	}
}

func TestParser_DuplicateAliasColumns(t *testing.T) {
	// Both "sku" and "id" map to sku; the first occurrence wins and the
	// second passes through as an extra column.
	src := BytesSource("sku,id,name,description\nA-1,ignored,Widget,\n")
	recs := collectRecords(t, src)
	if len(recs) != 1 {
		t.Fatalf("got %d records, want 1", len(recs))
	}
	if recs[0].SKU != "A-1" {
		t.Errorf("SKU = %q, want A-1", recs[0].SKU)
	}
	if recs[0].Extra["id"] != "ignored" {
		t.Errorf("Extra = %+v", recs[0].Extra)
	}
}
