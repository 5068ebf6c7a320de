package ingest

import (
	"bufio"
	"encoding/csv"
	"io"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/go-faster/errors"
)

// RowReader streams a header-named delimited file one row at a time.
type RowReader struct {
	f      *os.File
	r      *csv.Reader
	header []string
}

// OpenRows opens path and consumes its header line. A file without any
// content yields a reader that is immediately exhausted.
func OpenRows(path string, delimiter rune) (*RowReader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open source file")
	}

	br := bufio.NewReader(f)
	stripUTF8BOM(br)

	r := csv.NewReader(br)
	r.Comma = delimiter
	r.FieldsPerRecord = -1
	r.ReuseRecord = true

	rr := &RowReader{f: f, r: r}
	header, err := r.Read()
	switch {
	case errors.Is(err, io.EOF):
		return rr, nil
	case err != nil:
		_ = f.Close()
		return nil, errors.Wrap(err, "read header")
	}

	rr.header = make([]string, len(header))
	for i, h := range header {
		h = strings.ToLower(strings.TrimSpace(h))
		if !utf8.ValidString(h) {
			_ = f.Close()
			return nil, errors.New("invalid header encoding")
		}
		rr.header[i] = h
	}
	return rr, nil
}

// Next returns the next row keyed by header name, or io.EOF once the
// stream is exhausted. Missing trailing cells read as empty strings.
func (rr *RowReader) Next() (map[string]string, error) {
	if rr.header == nil {
		return nil, io.EOF
	}
	rec, err := rr.r.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		return nil, errors.Wrap(err, "read row")
	}
	row := make(map[string]string, len(rr.header))
	for i, name := range rr.header {
		if name == "" || i >= len(rec) {
			continue
		}
		row[name] = rec[i]
	}
	return row, nil
}

// Close releases the underlying file.
func (rr *RowReader) Close() error {
	return rr.f.Close()
}

// CountRows streams the file once and returns the number of data rows.
func CountRows(path string, delimiter rune) (int64, error) {
	rr, err := OpenRows(path, delimiter)
	if err != nil {
		return 0, err
	}
	defer rr.Close()

	var n int64
	for {
		if _, err := rr.Next(); err != nil {
			if errors.Is(err, io.EOF) {
				return n, nil
			}
			return n, err
		}
		n++
	}
}

func stripUTF8BOM(r *bufio.Reader) {
	b, err := r.Peek(3)
	if err == nil && b[0] == 0xEF && b[1] == 0xBB && b[2] == 0xBF {
		_, _ = r.Discard(3)
	}
}
