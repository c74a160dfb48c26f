package core

// csv.go provides the default readCSV/writeCSV collaborators: CSV parsing
// and serialization are external, swappable concerns, but callers get a
// working implementation out of the box rather than being forced to bring
// their own. No byte-counting progress here — a load/dump run reports
// progress per pass/phase, not per byte.

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/stomita/salesforce-migration-automatic/internal/errs"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// ReadCSV parses CSV text into headers and rows, skipping a leading UTF-8
// BOM and sanitizing invalid UTF-8 sequences to the replacement character
// rather than failing the whole parse over one bad byte.
func ReadCSV(data []byte) (headers []string, rows [][]string, err error) {
	data = bytes.TrimPrefix(data, utf8BOM)
	data = sanitizeUTF8(data)

	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	all, err := r.ReadAll()
	if err != nil {
		return nil, nil, errs.NewCsvParse(err)
	}
	if len(all) == 0 {
		return nil, nil, nil
	}
	return all[0], all[1:], nil
}

// ReadCSVDataset parses CSV text for object, validating that every row has
// len(headers) cells.
func ReadCSVDataset(object ObjectName, data []byte) (LoadDataset, error) {
	headers, rows, err := ReadCSV(data)
	if err != nil {
		return LoadDataset{}, err
	}
	for i, row := range rows {
		if len(row) != len(headers) {
			return LoadDataset{}, errs.NewCsvParse(fmt.Errorf("row %d has %d cells, want %d", i, len(row), len(headers)))
		}
	}
	return LoadDataset{Object: object, Headers: headers, Rows: rows}, nil
}

// sanitizeUTF8 replaces invalid UTF-8 byte sequences with the Unicode
// replacement character. Operates on the whole buffer at once since CSV
// input here is already fully read by the time it reaches this package.
func sanitizeUTF8(data []byte) []byte {
	if utf8.Valid(data) {
		return data
	}
	var out bytes.Buffer
	out.Grow(len(data))
	for len(data) > 0 {
		r, size := utf8.DecodeRune(data)
		if r == utf8.RuneError && size <= 1 {
			out.WriteRune(utf8.RuneError)
			data = data[1:]
			continue
		}
		out.Write(data[:size])
		data = data[size:]
	}
	return out.Bytes()
}

// WriteCSV serializes rows under headers, using \n line endings and
// quoting only where required by encoding/csv's writer.
func WriteCSV(headers []string, rows [][]string) (string, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(headers); err != nil {
		return "", errs.NewCsvParse(err)
	}
	for _, row := range rows {
		if err := w.Write(row); err != nil {
			return "", errs.NewCsvParse(err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", errs.NewCsvParse(err)
	}
	return buf.String(), nil
}

// bomSkippingReader strips a leading UTF-8 BOM from a streaming io.Reader,
// for callers that hand the engine a file handle instead of a []byte.
type bomSkippingReader struct {
	r       io.Reader
	checked bool
	pending []byte
}

func newBOMSkippingReader(r io.Reader) *bomSkippingReader {
	return &bomSkippingReader{r: r}
}

func (b *bomSkippingReader) Read(p []byte) (int, error) {
	if !b.checked {
		b.checked = true
		var buf [3]byte
		n, err := io.ReadFull(b.r, buf[:])
		if n == 3 && bytes.Equal(buf[:], utf8BOM) {
			b.pending = nil
		} else {
			b.pending = append([]byte{}, buf[:n]...)
		}
		if err == io.ErrUnexpectedEOF {
			err = nil
		}
		if err != nil && err != io.EOF {
			return 0, err
		}
	}
	if len(b.pending) > 0 {
		n := copy(p, b.pending)
		b.pending = b.pending[n:]
		return n, nil
	}
	return b.r.Read(p)
}

// ReadAllCSVReader reads all of r (after BOM skipping) and parses it the
// same way ReadCSV does.
func ReadAllCSVReader(r io.Reader) ([]string, [][]string, error) {
	data, err := io.ReadAll(newBOMSkippingReader(r))
	if err != nil {
		return nil, nil, errs.NewCsvParse(err)
	}
	return ReadCSV(data)
}

// splitFieldList splits a comma-separated field list into trimmed,
// non-empty names. DumpQuery.Fields/IgnoreFields are []string and nothing
// in this package calls splitFieldList, so a DumpQuery does not accept a
// single comma-separated string for them.
func splitFieldList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
