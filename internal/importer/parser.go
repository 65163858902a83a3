package importer

// parser.go turns a raw byte source into a lazy sequence of normalized
// records. Header names are resolved against a configurable alias table and
// the delimiter is sniffed from a bounded prefix, so files exported from
// different tools parse without manual configuration.

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"sort"
	"strings"
)

// Canonical column names every import file must provide (via any alias).
const (
	ColSKU         = "sku"
	ColName        = "name"
	ColDescription = "description"
)

// sniffLimit is how many bytes of the file are sampled to detect the
// delimiter before falling back to the default dialect.
const sniffLimit = 8 * 1024

// delimiterCandidates are tried in order when sniffing; comma wins ties.
var delimiterCandidates = []rune{',', ';', '\t', '|'}

// AliasTable maps a canonical column name to the set of accepted header
// spellings. Matching is case-insensitive and whitespace-trimmed.
type AliasTable map[string][]string

// DefaultAliases returns the alias table used when the caller does not
// supply one.
func DefaultAliases() AliasTable {
	return AliasTable{
		ColSKU:         {"sku", "product_sku", "id", "product id", "productid"},
		ColName:        {"name", "product_name", "title", "product name"},
		ColDescription: {"description", "desc", "details", "product description"},
	}
}

// FormatError reports a file that cannot be imported at all: required
// columns with no matching header, or content that is not parseable CSV.
// Format failures terminate the job before any row is processed.
type FormatError struct {
	Missing []string // canonical columns with no alias match
	Reason  string   // non-column failure, e.g. empty file
}

func (e *FormatError) Error() string {
	if len(e.Missing) > 0 {
		return fmt.Sprintf("missing required columns: %s", strings.Join(e.Missing, ", "))
	}
	return "invalid csv: " + e.Reason
}

// Record is one normalized data row. Values are trimmed; the empty string
// means the field was absent.
type Record struct {
	// RowNumber is the 1-based position in the file counting the header as
	// row 1, so the first data row is 2. Quoted multi-line fields count as
	// one row.
	RowNumber int

	SKU         string
	Name        string
	Description string

	// Extra carries unmapped columns under their lowercased header name.
	Extra map[string]string
}

// Dialect is the detected CSV flavor.
type Dialect struct {
	Comma rune
}

// Parser reads a Source as dialect-aware CSV with alias-resolved headers.
type Parser struct {
	src     Source
	aliases AliasTable
}

// NewParser creates a Parser over src. A nil alias table uses DefaultAliases.
func NewParser(src Source, aliases AliasTable) *Parser {
	if aliases == nil {
		aliases = DefaultAliases()
	}
	return &Parser{src: src, aliases: aliases}
}

// ValidateFormat checks that the file has a header row satisfying every
// canonical column's alias set. It returns a *FormatError on failure and
// reads only the header, never the data rows.
func (p *Parser) ValidateFormat() error {
	rc, err := p.src.Open()
	if err != nil {
		return &FormatError{Reason: err.Error()}
	}
	defer rc.Close()

	reader, _, err := p.newCSVReader(rc)
	if err != nil {
		return err
	}

	_, err = p.resolveHeader(reader)
	return err
}

// CountRows counts data rows (excluding the header) in a cheap pass that
// never builds records. The count matches the number of records Rows will
// yield: quoted multi-line fields count once.
func (p *Parser) CountRows() (int, error) {
	rc, err := p.src.Open()
	if err != nil {
		return 0, fmt.Errorf("open source: %w", err)
	}
	defer rc.Close()

	reader, _, err := p.newCSVReader(rc)
	if err != nil {
		return 0, err
	}
	reader.ReuseRecord = true

	total := 0
	for {
		_, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return 0, fmt.Errorf("count rows: %w", err)
		}
		total++
	}

	// First record is the header
	if total > 0 {
		total--
	}
	return total, nil
}

// Rows opens the source for a full parse pass. The caller must Close the
// returned iterator. Rows are produced lazily; memory stays at O(one row).
func (p *Parser) Rows() (*RowIter, error) {
	rc, err := p.src.Open()
	if err != nil {
		return nil, fmt.Errorf("open source: %w", err)
	}

	reader, _, err := p.newCSVReader(rc)
	if err != nil {
		rc.Close()
		return nil, err
	}

	header, err := p.resolveHeader(reader)
	if err != nil {
		rc.Close()
		return nil, err
	}

	return &RowIter{
		reader: reader,
		closer: rc,
		header: header,
	}, nil
}

// newCSVReader wraps rc with the streaming sanitizers, sniffs the dialect
// from a bounded prefix and returns a configured csv.Reader.
func (p *Parser) newCSVReader(rc io.Reader) (*csv.Reader, Dialect, error) {
	buf := bufio.NewReaderSize(wrapReader(rc), sniffLimit)

	prefix, err := buf.Peek(sniffLimit)
	if err != nil && err != io.EOF && err != bufio.ErrBufferFull {
		return nil, Dialect{}, &FormatError{Reason: err.Error()}
	}
	if len(prefix) == 0 {
		return nil, Dialect{}, &FormatError{Reason: "file is empty"}
	}

	dialect := sniffDialect(prefix)

	reader := csv.NewReader(buf)
	reader.Comma = dialect.Comma
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	return reader, dialect, nil
}

// resolveHeader reads the header record and maps each column position to a
// canonical name (via the alias table) or its lowercased passthrough name.
// It fails with *FormatError when any canonical column is unmatched.
func (p *Parser) resolveHeader(reader *csv.Reader) ([]string, error) {
	raw, err := reader.Read()
	if err == io.EOF {
		return nil, &FormatError{Reason: "file is empty or has no header row"}
	}
	if err != nil {
		return nil, &FormatError{Reason: err.Error()}
	}

	// alias spelling -> canonical name
	lookup := make(map[string]string)
	for canonical, spellings := range p.aliases {
		for _, s := range spellings {
			lookup[cleanHeader(s)] = canonical
		}
	}

	header := make([]string, len(raw))
	seen := make(map[string]bool, len(p.aliases))
	for i, h := range raw {
		key := cleanHeader(h)
		if canonical, ok := lookup[key]; ok && !seen[canonical] {
			header[i] = canonical
			seen[canonical] = true
			continue
		}
		header[i] = key
	}

	var missing []string
	for canonical := range p.aliases {
		if !seen[canonical] {
			missing = append(missing, canonical)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return nil, &FormatError{Missing: missing}
	}

	return header, nil
}

// RowIter lazily yields normalized records from an open parse pass.
type RowIter struct {
	reader *csv.Reader
	closer io.Closer
	header []string
	read   int // data records consumed so far
}

// Next returns the next record, or io.EOF when the source is exhausted.
// A malformed record is still yielded as a Record so its problems surface
// as row errors downstream rather than aborting the whole file.
func (it *RowIter) Next() (Record, error) {
	raw, err := it.reader.Read()
	if err == io.EOF {
		return Record{}, io.EOF
	}
	if err != nil {
		// csv.Reader with LazyQuotes and free-form field counts only fails
		// on hard parse errors; surface the row with nothing but a number
		// so the upsert engine records it and moves on.
		it.read++
		return Record{RowNumber: it.read + 1}, nil
	}

	it.read++
	rec := Record{RowNumber: it.read + 1}

	for i, v := range raw {
		if i >= len(it.header) {
			break
		}
		val := strings.TrimSpace(v)
		switch it.header[i] {
		case ColSKU:
			rec.SKU = val
		case ColName:
			rec.Name = val
		case ColDescription:
			rec.Description = val
		default:
			if val != "" {
				if rec.Extra == nil {
					rec.Extra = make(map[string]string)
				}
				rec.Extra[it.header[i]] = val
			}
		}
	}

	return rec, nil
}

// Close releases the underlying stream.
func (it *RowIter) Close() error {
	return it.closer.Close()
}

// sniffDialect inspects the prefix and picks the delimiter that appears
// most often outside quoted regions on the first line. It never fails;
// unknown input falls back to comma.
func sniffDialect(prefix []byte) Dialect {
	line := firstLine(string(prefix))

	best := ','
	bestCount := 0
	for _, cand := range delimiterCandidates {
		n := countUnquoted(line, cand)
		if n > bestCount {
			best = cand
			bestCount = n
		}
	}
	return Dialect{Comma: best}
}

func firstLine(s string) string {
	if i := strings.IndexAny(s, "\r\n"); i >= 0 {
		return s[:i]
	}
	return s
}

// countUnquoted counts occurrences of delim outside double-quoted regions.
func countUnquoted(line string, delim rune) int {
	count := 0
	inQuotes := false
	for _, r := range line {
		switch {
		case r == '"':
			inQuotes = !inQuotes
		case r == delim && !inQuotes:
			count++
		}
	}
	return count
}

// cleanHeader normalizes a header cell for alias matching: trims whitespace
// and a stray BOM, then lowercases.
func cleanHeader(h string) string {
	h = strings.TrimSpace(h)
	h = strings.TrimPrefix(h, "\uFEFF")
	return strings.ToLower(strings.TrimSpace(h))
}
