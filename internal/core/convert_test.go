package core

import (
	"errors"
	"testing"

	"github.com/stomita/salesforce-migration-automatic/internal/errs"
)

func contactDesc() ObjectDescription {
	return ObjectDescription{
		Name: "Contact",
		Fields: []FieldDescription{
			{Name: "Id", Type: FieldID},
			{Name: "FirstName", Type: FieldString, Createable: true},
			{Name: "AccountId", Type: FieldReference, Createable: true, ReferenceTo: []ObjectName{"Account"}},
			{Name: "NumOfPets", Type: FieldInt, Createable: true},
			{Name: "Rating", Type: FieldDouble, Createable: true},
			{Name: "Birthdate", Type: FieldDate, Createable: true},
			{Name: "IsActive", Type: FieldBoolean, Createable: true},
			{Name: "ReadOnlyField", Type: FieldString, Createable: false},
		},
	}
}

func TestConvertRowBasicFields(t *testing.T) {
	headers := []string{"Id", "FirstName", "NumOfPets", "Rating", "Birthdate", "IsActive", "ReadOnlyField"}
	row := []string{"con1", "Ada", "3", "4.5", "1990-01-01", "true", "ignored"}

	pair, err := convertRow(headers, row, "Contact", contactDesc(), map[string]string{}, "")
	if err != nil {
		t.Fatalf("convertRow: %v", err)
	}
	if pair.OrigID != "con1" {
		t.Errorf("OrigID = %q, want con1", pair.OrigID)
	}
	if pair.Record["FirstName"].Str != "Ada" {
		t.Errorf("FirstName = %+v", pair.Record["FirstName"])
	}
	if pair.Record["NumOfPets"].Int != 3 {
		t.Errorf("NumOfPets = %+v", pair.Record["NumOfPets"])
	}
	if pair.Record["Rating"].Float != 4.5 {
		t.Errorf("Rating = %+v", pair.Record["Rating"])
	}
	if pair.Record["Birthdate"].Str != "1990-01-01" {
		t.Errorf("Birthdate = %+v", pair.Record["Birthdate"])
	}
	if !pair.Record["IsActive"].Bool {
		t.Errorf("IsActive = %+v, want true", pair.Record["IsActive"])
	}
	if _, ok := pair.Record["ReadOnlyField"]; ok {
		t.Error("expected non-createable field to be excluded")
	}
}

func TestConvertRowBooleanFalsyTable(t *testing.T) {
	headers := []string{"Id", "IsActive"}
	tests := []struct {
		cell string
		want bool
	}{
		{"", false},
		{"0", false},
		{"n", false},
		{"f", false},
		{"false", false},
		{"FALSE", false},
		{"1", true},
		{"yes", true},
		{"true", true},
	}
	for _, tt := range tests {
		row := []string{"con1", tt.cell}
		pair, err := convertRow(headers, row, "Contact", contactDesc(), map[string]string{}, "")
		if err != nil {
			t.Fatalf("convertRow(%q): %v", tt.cell, err)
		}
		if pair.Record["IsActive"].Bool != tt.want {
			t.Errorf("IsActive for cell %q = %v, want %v", tt.cell, pair.Record["IsActive"].Bool, tt.want)
		}
	}
}

func TestConvertRowReferenceRewritesThroughIdMap(t *testing.T) {
	headers := []string{"Id", "AccountId"}
	row := []string{"con1", "acc1"}
	idMap := map[string]string{"acc1": "accTgt1"}

	pair, err := convertRow(headers, row, "Contact", contactDesc(), idMap, "")
	if err != nil {
		t.Fatalf("convertRow: %v", err)
	}
	if pair.Record["AccountId"].Str != "accTgt1" {
		t.Errorf("AccountId = %+v, want accTgt1", pair.Record["AccountId"])
	}
}

func TestConvertRowReferenceMissingFromIdMapIsNull(t *testing.T) {
	headers := []string{"Id", "AccountId"}
	row := []string{"con1", "acc1"}

	pair, err := convertRow(headers, row, "Contact", contactDesc(), map[string]string{}, "")
	if err != nil {
		t.Fatalf("convertRow: %v", err)
	}
	if !pair.Record["AccountId"].IsNull() {
		t.Errorf("expected AccountId to be null, got %+v", pair.Record["AccountId"])
	}
}

func TestConvertRowNonNumericNumberFieldOmitted(t *testing.T) {
	headers := []string{"Id", "NumOfPets"}
	row := []string{"con1", "not-a-number"}

	pair, err := convertRow(headers, row, "Contact", contactDesc(), map[string]string{}, "")
	if err != nil {
		t.Fatalf("convertRow: %v", err)
	}
	if _, ok := pair.Record["NumOfPets"]; ok {
		t.Error("expected non-numeric cell to be omitted from the record")
	}
}

func TestConvertRowMissingIdColumn(t *testing.T) {
	headers := []string{"FirstName"}
	row := []string{"Ada"}

	_, err := convertRow(headers, row, "Contact", contactDesc(), map[string]string{}, "")
	if err == nil {
		t.Fatal("expected MissingIdColumn error")
	}
	var e *errs.Error
	if !errors.As(err, &e) || e.Kind != errs.KindMissingIdColumn {
		t.Fatalf("expected KindMissingIdColumn, got %v", err)
	}
}

func TestConvertRowUnknownHeaderSkipped(t *testing.T) {
	headers := []string{"Id", "NotAField"}
	row := []string{"con1", "whatever"}

	pair, err := convertRow(headers, row, "Contact", contactDesc(), map[string]string{}, "")
	if err != nil {
		t.Fatalf("convertRow: %v", err)
	}
	if len(pair.Record) != 0 {
		t.Errorf("expected empty record, got %+v", pair.Record)
	}
}
