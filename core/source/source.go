package source

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"fileno-manager/core/storage"

	"github.com/minio/minio-go/v7"
	"github.com/xuri/excelize/v2"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
)

// ErrMissingColumns is returned by Require when the header lacks required columns.
var ErrMissingColumns = errors.New("missing required columns")

// Options controls how a source is read.
type Options struct {
	// Limit caps the number of data rows. Zero reads everything.
	Limit int
	// Sheet selects the XLSX sheet. Empty means the first sheet.
	Sheet string
}

// Row is one data row.
type Row struct {
	// Index is the 1-based position among data rows.
	Index  int
	values []string
	cols   map[string]int
}

// Get returns the trimmed value of a column, or "" when absent.
func (r Row) Get(column string) string {
	i, ok := r.cols[column]
	if !ok || i >= len(r.values) {
		return ""
	}
	return strings.TrimSpace(r.values[i])
}

// Reader hands out the rows of a table decoded up front. The encoding of a
// CSV is only known once every byte has been checked, so Open and OpenObject
// hold the whole file; Len is exact as a result.
type Reader interface {
	// Header returns the column names in file order.
	Header() []string
	// Len returns the number of data rows that Next will yield.
	Len() int
	// Encoding names the text encoding that was used.
	Encoding() string
	// Next returns the next row, or io.EOF.
	Next() (Row, error)
	Close() error
}

type candidate struct {
	name string
	enc  encoding.Encoding
}

// Order matters: Windows-1252 is a superset of the printable ISO-8859-1 range.
var candidates = []candidate{
	{name: "utf-8"},
	{name: "windows-1252", enc: charmap.Windows1252},
	{name: "iso-8859-1", enc: charmap.ISO8859_1},
}

// Open reads a local CSV or XLSX file.
func Open(path string, opts Options) (Reader, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return Parse(filepath.Base(path), data, opts)
}

// OpenObject downloads s3://bucket/key through client and parses it.
func OpenObject(ctx context.Context, client storage.Client, location string, opts Options) (Reader, error) {
	bucket, object, err := storage.ParseURI(location)
	if err != nil {
		return nil, err
	}

	body, err := client.GetObject(ctx, bucket, object, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to get %s: %w", location, err)
	}
	defer body.Close()

	data, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("failed to download %s: %w", location, err)
	}
	return Parse(object, data, opts)
}

// Parse dispatches on the file extension of name.
func Parse(name string, data []byte, opts Options) (Reader, error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".xlsx", ".xlsm":
		return parseXLSX(name, data, opts)
	case ".csv", ".txt", "":
		return parseCSV(name, data, opts)
	default:
		return nil, fmt.Errorf("unsupported source format: %s", name)
	}
}

// Require fails when any of columns is missing from the header.
func Require(r Reader, columns []string) error {
	present := make(map[string]struct{}, len(r.Header()))
	for _, h := range r.Header() {
		present[h] = struct{}{}
	}
	var missing []string
	for _, c := range columns {
		if _, ok := present[c]; !ok {
			missing = append(missing, c)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrMissingColumns, strings.Join(missing, ", "))
	}
	return nil
}

func parseCSV(name string, data []byte, opts Options) (Reader, error) {
	var lastErr error
	for _, c := range candidates {
		text, ok := decode(data, c)
		if !ok {
			continue
		}
		records, err := readCSV(text)
		if err != nil {
			lastErr = err
			continue
		}
		return newTable(c.name, records, opts)
	}
	if lastErr != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", name, lastErr)
	}
	return nil, fmt.Errorf("failed to decode %s with any supported encoding", name)
}

func decode(data []byte, c candidate) (string, bool) {
	if c.enc == nil {
		if !utf8.Valid(data) {
			return "", false
		}
		return string(data), true
	}
	out, err := c.enc.NewDecoder().Bytes(data)
	if err != nil {
		return "", false
	}
	if bytes.ContainsRune(out, utf8.RuneError) {
		return "", false
	}
	return string(out), true
}

func readCSV(text string) ([][]string, error) {
	r := csv.NewReader(strings.NewReader(text))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	return r.ReadAll()
}

func parseXLSX(name string, data []byte, opts Options) (Reader, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook %s: %w", name, err)
	}
	defer f.Close()

	sheet := opts.Sheet
	if sheet == "" {
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return nil, fmt.Errorf("workbook %s has no sheets", name)
		}
		sheet = sheets[0]
	}

	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %s of %s: %w", sheet, name, err)
	}
	return newTable("xlsx", rows, opts)
}

type table struct {
	encoding string
	header   []string
	cols     map[string]int
	rows     [][]string
	pos      int
}

func newTable(enc string, records [][]string, opts Options) (*table, error) {
	if len(records) == 0 {
		return nil, errors.New("source has no header row")
	}

	header := make([]string, len(records[0]))
	cols := make(map[string]int, len(header))
	for i, h := range records[0] {
		if i == 0 {
			h = strings.TrimPrefix(h, "\ufeff")
		}
		h = strings.TrimSpace(h)
		header[i] = h
		if _, dup := cols[h]; !dup {
			cols[h] = i
		}
	}

	rows := make([][]string, 0, len(records)-1)
	for _, rec := range records[1:] {
		if blank(rec) {
			continue
		}
		rows = append(rows, rec)
		if opts.Limit > 0 && len(rows) == opts.Limit {
			break
		}
	}

	return &table{encoding: enc, header: header, cols: cols, rows: rows}, nil
}

func blank(rec []string) bool {
	for _, v := range rec {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

func (t *table) Header() []string { return t.header }
func (t *table) Len() int         { return len(t.rows) }
func (t *table) Encoding() string { return t.encoding }
func (t *table) Close() error     { return nil }

func (t *table) Next() (Row, error) {
	if t.pos >= len(t.rows) {
		return Row{}, io.EOF
	}
	row := Row{Index: t.pos + 1, values: t.rows[t.pos], cols: t.cols}
	t.pos++
	return row, nil
}
