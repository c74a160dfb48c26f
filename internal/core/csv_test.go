package core

import (
	"strings"
	"testing"
)

func TestReadCSVBasic(t *testing.T) {
	headers, rows, err := ReadCSV([]byte("Id,Name\n1,Ada\n2,Grace\n"))
	if err != nil {
		t.Fatalf("ReadCSV: %v", err)
	}
	if len(headers) != 2 || headers[0] != "Id" || headers[1] != "Name" {
		t.Errorf("headers = %v", headers)
	}
	if len(rows) != 2 || rows[0][1] != "Ada" {
		t.Errorf("rows = %v", rows)
	}
}

func TestReadCSVStripsBOM(t *testing.T) {
	data := append([]byte{0xEF, 0xBB, 0xBF}, []byte("Id,Name\n1,Ada\n")...)
	headers, _, err := ReadCSV(data)
	if err != nil {
		t.Fatalf("ReadCSV: %v", err)
	}
	if headers[0] != "Id" {
		t.Errorf("expected BOM stripped from first header, got %q", headers[0])
	}
}

func TestReadCSVSanitizesInvalidUTF8(t *testing.T) {
	data := []byte("Id,Name\n1,A\xffB\n")
	headers, rows, err := ReadCSV(data)
	if err != nil {
		t.Fatalf("ReadCSV: %v", err)
	}
	if !strings.Contains(rows[0][1], "�") {
		t.Errorf("expected replacement character in %q", rows[0][1])
	}
	_ = headers
}

func TestReadCSVDatasetRejectsRaggedRow(t *testing.T) {
	_, err := ReadCSVDataset("Account", []byte("Id,Name\n1,Ada,extra\n"))
	if err == nil {
		t.Fatal("expected CsvParseError for ragged row")
	}
}

func TestReadCSVDatasetEmptyInput(t *testing.T) {
	ds, err := ReadCSVDataset("Account", []byte(""))
	if err != nil {
		t.Fatalf("ReadCSVDataset: %v", err)
	}
	if ds.Headers != nil || ds.Rows != nil {
		t.Errorf("expected empty dataset, got %+v", ds)
	}
}

func TestWriteCSVRoundTrip(t *testing.T) {
	out, err := WriteCSV([]string{"Id", "Name"}, [][]string{{"1", "Ada"}, {"2", "Grace, the second"}})
	if err != nil {
		t.Fatalf("WriteCSV: %v", err)
	}
	headers, rows, err := ReadCSV([]byte(out))
	if err != nil {
		t.Fatalf("ReadCSV(written): %v", err)
	}
	if headers[0] != "Id" || headers[1] != "Name" {
		t.Errorf("headers = %v", headers)
	}
	if rows[1][1] != "Grace, the second" {
		t.Errorf("expected comma-containing cell to round-trip, got %q", rows[1][1])
	}
}

func TestReadAllCSVReaderStripsBOM(t *testing.T) {
	data := append([]byte{0xEF, 0xBB, 0xBF}, []byte("Id\n1\n")...)
	headers, rows, err := ReadAllCSVReader(strings.NewReader(string(data)))
	if err != nil {
		t.Fatalf("ReadAllCSVReader: %v", err)
	}
	if headers[0] != "Id" || rows[0][0] != "1" {
		t.Errorf("headers=%v rows=%v", headers, rows)
	}
}

func TestSplitFieldList(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"", nil},
		{"Id", []string{"Id"}},
		{"Id, Name,  AccountId ", []string{"Id", "Name", "AccountId"}},
	}
	for _, tt := range tests {
		got := splitFieldList(tt.in)
		if len(got) != len(tt.want) {
			t.Errorf("splitFieldList(%q) = %v, want %v", tt.in, got, tt.want)
			continue
		}
		for i := range got {
			if got[i] != tt.want[i] {
				t.Errorf("splitFieldList(%q)[%d] = %q, want %q", tt.in, i, got[i], tt.want[i])
			}
		}
	}
}
